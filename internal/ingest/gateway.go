// Package ingest validates inbound events and hands them to the dispatcher
// and the analytics window. It is the single entry point for internal
// producers and for the external database change feed.
package ingest

import (
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/sentinelx/realtime/internal/analytics"
	apperrors "github.com/sentinelx/realtime/internal/errors"
	"github.com/sentinelx/realtime/internal/metrics"
	"github.com/sentinelx/realtime/internal/realtime"
)

// DefaultEventType tags events with no explicit type, matching the tag the
// change feed uses for row-level notifications.
const DefaultEventType = "broadcast"

// Dispatcher fans an event out to matching subscribers and reports how many
// clients it was delivered to.
type Dispatcher interface {
	Dispatch(ev realtime.Event) int
}

// Request is one inbound event. Payload is treated as an opaque flat mapping.
type Request struct {
	Channel   string         `validate:"required"`
	EventType string
	Payload   map[string]any `validate:"required"`
	Origin    string
}

// Result reports the outcome of a successful ingest.
type Result struct {
	Delivered int
}

// Gateway validates and accepts events, forwarding them to the dispatcher
// and recording them in the analytics window. Delivery failures are handled
// entirely inside the dispatcher and never surface here.
type Gateway struct {
	dispatcher Dispatcher
	window     *analytics.Window
	clock      clockwork.Clock
	validate   *validator.Validate
}

// NewGateway creates a gateway.
func NewGateway(dispatcher Dispatcher, window *analytics.Window, clock clockwork.Clock) *Gateway {
	return &Gateway{
		dispatcher: dispatcher,
		window:     window,
		clock:      clock,
		validate:   validator.New(),
	}
}

// Ingest validates the request, dispatches the event, and records it in the
// analytics window. Unknown channels are accepted; they simply match no
// explicit subscribers, only the wildcard.
func (g *Gateway) Ingest(req Request) (Result, error) {
	if err := g.validate.Struct(req); err != nil {
		metrics.IngestEventsTotal.WithLabelValues(req.Channel, "invalid").Inc()
		return Result{}, apperrors.ValidationError("channel and data are required")
	}

	if !realtime.IsKnownChannel(req.Channel) {
		slog.Debug("Ingesting event on unknown channel", "channel", req.Channel)
	}

	eventType := req.EventType
	if eventType == "" {
		eventType = DefaultEventType
	}

	ev := realtime.Event{
		Channel:   req.Channel,
		EventType: eventType,
		Payload:   req.Payload,
		Timestamp: g.clock.Now(),
		Origin:    req.Origin,
	}

	delivered := g.dispatcher.Dispatch(ev)
	g.window.Record(ev)

	metrics.IngestEventsTotal.WithLabelValues(req.Channel, "accepted").Inc()
	metrics.IngestDeliveredClients.Observe(float64(delivered))

	return Result{Delivered: delivered}, nil
}
