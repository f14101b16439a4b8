// Package realtime implements the push fan-out core: a registry of live
// client connections, a per-connection subscription index with equality
// filters, and a hub that dispatches ingested events to every matching
// connection without blocking on any single client.
//
// Delivery is best-effort and at-most-once. Each connection owns a bounded
// outbound frame queue; a full queue or a transport write failure closes
// only that connection and never delays delivery to the others.
package realtime
