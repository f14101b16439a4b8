// Package changefeed turns row-level database change notifications into
// ingest calls, one event per changed row. Two sources are supported:
// Postgres LISTEN/NOTIFY and Redis Pub/Sub. The core does not depend on the
// table schema beyond treating the notified row as an opaque payload.
package changefeed

import (
	"encoding/json"
	"log/slog"

	"github.com/sentinelx/realtime/internal/ingest"
	"github.com/sentinelx/realtime/internal/metrics"
	"github.com/sentinelx/realtime/internal/realtime"
)

// WatchedTables are the tables whose changes are pushed to clients. Table
// names double as channel names.
var WatchedTables = []string{
	realtime.ChannelDisasters,
	realtime.ChannelCommunityReports,
	realtime.ChannelAlerts,
}

// Ingestor accepts translated change events.
type Ingestor interface {
	Ingest(req ingest.Request) (ingest.Result, error)
}

// deliver decodes a notification payload and hands it to the ingestor.
// Malformed payloads are counted and dropped; a bad row from the feed must
// never take the feed down.
func deliver(source string, ingestor Ingestor, table string, payload []byte) {
	var row map[string]any
	if err := json.Unmarshal(payload, &row); err != nil {
		metrics.ChangefeedErrorsTotal.WithLabelValues(source, "decode").Inc()
		slog.Warn("Dropping malformed change notification",
			"source", source, "table", table, "error", err)
		return
	}

	metrics.ChangefeedNotificationsTotal.WithLabelValues(source, table).Inc()

	_, err := ingestor.Ingest(ingest.Request{
		Channel:   table,
		EventType: ingest.DefaultEventType,
		Payload:   row,
		Origin:    "changefeed:" + source,
	})
	if err != nil {
		metrics.ChangefeedErrorsTotal.WithLabelValues(source, "ingest").Inc()
		slog.Warn("Change notification rejected by ingest",
			"source", source, "table", table, "error", err)
	}
}
