package realtime

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sentinelx/realtime/internal/metrics"
)

const defaultSendBuffer = 16

var (
	// ErrConnectionLimit is returned by Connect when the registry is full.
	ErrConnectionLimit = errors.New("connection limit reached")
	// ErrNotOpen is returned by Subscribe for unknown or non-open connections.
	ErrNotOpen = errors.New("connection is not open")
)

// Hub wires the registry and subscription index together and owns the two
// paths that walk all connections: event dispatch and the heartbeat sweep.
// One slow or failed recipient never delays or fails delivery to any other
// recipient; a failed send closes only the failing connection.
type Hub struct {
	clock             clockwork.Clock
	registry          *Registry
	subs              *Index
	maxConnections    int
	heartbeatInterval time.Duration
	sendBuffer        int
	startTime         time.Time

	done     chan struct{}
	stopOnce sync.Once
}

// NewHub creates a hub and starts its liveness sweep.
// maxConnections bounds the registry size; heartbeatInterval controls how
// often heartbeat frames are pushed to every open connection.
func NewHub(clock clockwork.Clock, maxConnections int, heartbeatInterval time.Duration) *Hub {
	h := &Hub{
		clock:             clock,
		registry:          NewRegistry(clock),
		subs:              NewIndex(),
		maxConnections:    maxConnections,
		heartbeatInterval: heartbeatInterval,
		sendBuffer:        defaultSendBuffer,
		startTime:         clock.Now(),
		done:              make(chan struct{}),
	}
	go h.runLiveness()
	return h
}

// Connect registers a new connection for the given transport.
func (h *Hub) Connect(transport Transport) (*Conn, error) {
	if h.maxConnections > 0 && h.registry.Len() >= h.maxConnections {
		metrics.RealtimeConnectionsTotal.WithLabelValues(transport.String(), "rejected").Inc()
		return nil, ErrConnectionLimit
	}
	conn := h.registry.Register(transport, h.sendBuffer)
	metrics.RealtimeConnectionsTotal.WithLabelValues(transport.String(), "accepted").Inc()
	metrics.RealtimeConnectedClients.Set(float64(h.registry.Len()))
	slog.Debug("Client connected", "conn_id", conn.ID.String(), "transport", transport.String())
	return conn, nil
}

// Subscribe upserts a channel subscription for an open connection.
func (h *Hub) Subscribe(connID uuid.UUID, channel string, filter Filter) error {
	conn, ok := h.registry.Get(connID)
	if !ok || conn.State() != StateOpen {
		return ErrNotOpen
	}
	h.subs.Subscribe(connID, channel, filter)
	// Close may run between the state read above and the insert, in which
	// case RemoveConnection already happened and the entry would outlive the
	// connection. Re-checking after the insert converges that interleaving
	// on the closed outcome: beginClose leaves OPEN before subscriptions are
	// removed, so seeing OPEN here means any concurrent Close removes the
	// entry itself.
	if conn.State() != StateOpen {
		h.subs.RemoveConnection(connID)
		metrics.RealtimeActiveSubscriptions.Set(float64(h.subs.Count()))
		return ErrNotOpen
	}
	metrics.RealtimeActiveSubscriptions.Set(float64(h.subs.Count()))
	return nil
}

// Unsubscribe removes a channel subscription; absent entries are a no-op.
func (h *Hub) Unsubscribe(connID uuid.UUID, channel string) {
	h.subs.Unsubscribe(connID, channel)
	metrics.RealtimeActiveSubscriptions.Set(float64(h.subs.Count()))
}

// Dispatch fans the event out to every matching subscriber with independent
// non-blocking sends and returns the number of successful deliveries.
// A failed send transitions that connection to CLOSING and is otherwise
// swallowed; dispatch always completes after attempting all matches.
func (h *Hub) Dispatch(ev Event) int {
	start := h.clock.Now()
	defer func() {
		metrics.RealtimeDispatchDuration.Observe(h.clock.Since(start).Seconds())
	}()

	frame, err := DataFrame(ev).Encode()
	if err != nil {
		slog.Error("Failed to encode data frame", "channel", ev.Channel, "error", err)
		return 0
	}

	delivered := 0
	for _, connID := range h.subs.MatchingSubscribers(ev) {
		conn, ok := h.registry.Get(connID)
		if !ok {
			continue
		}
		if conn.TrySend(frame) {
			delivered++
			metrics.RealtimeFramesDeliveredTotal.Inc()
			continue
		}
		metrics.RealtimeFramesDroppedTotal.WithLabelValues("queue_full").Inc()
		slog.Warn("Dropping slow client", "conn_id", conn.ID.String(), "channel", ev.Channel)
		h.Close(conn, "send_failed")
	}
	return delivered
}

// Close runs the full cleanup sequence exactly once, even when a client
// abort races a heartbeat-triggered cleanup for the same connection: state
// transition, registry eviction and subscription removal, then the terminal
// CLOSED state.
func (h *Hub) Close(conn *Conn, reason string) {
	if !conn.beginClose() {
		return
	}
	h.registry.Unregister(conn.ID)
	h.subs.RemoveConnection(conn.ID)
	conn.finishClose()

	metrics.RealtimeConnectedClients.Set(float64(h.registry.Len()))
	metrics.RealtimeActiveSubscriptions.Set(float64(h.subs.Count()))
	metrics.RealtimeConnectionsClosedTotal.WithLabelValues(reason).Inc()
	slog.Debug("Connection closed",
		"conn_id", conn.ID.String(),
		"reason", reason,
		"age", h.clock.Since(conn.CreatedAt()),
		"idle", h.clock.Since(conn.LastActivity()))
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int { return h.registry.Len() }

// SubscriptionCount returns the number of active subscriptions.
func (h *Hub) SubscriptionCount() int { return h.subs.Count() }

// Uptime returns how long the hub has been running.
func (h *Hub) Uptime() time.Duration { return h.clock.Since(h.startTime) }

// Stop terminates the liveness sweep and closes every connection.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		count := h.registry.Len()
		h.registry.ForEach(func(conn *Conn) {
			h.Close(conn, "shutdown")
		})
		slog.Info("Hub stopped", "disconnected_clients", count)
	})
}

// runLiveness pushes a heartbeat frame to every open connection at a fixed
// interval. A failed heartbeat is treated identically to a dispatch failure.
// The sweep iterates a registry snapshot, so connections removed
// concurrently are either fully visible or fully absent.
func (h *Hub) runLiveness() {
	ticker := h.clock.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.Chan():
			h.sweep()
		}
	}
}

func (h *Hub) sweep() {
	frame, err := HeartbeatFrame(h.clock.Now()).Encode()
	if err != nil {
		slog.Error("Failed to encode heartbeat frame", "error", err)
		return
	}
	h.registry.ForEach(func(conn *Conn) {
		if conn.State() != StateOpen {
			return
		}
		if !conn.TrySend(frame) {
			metrics.RealtimeHeartbeatFailuresTotal.Inc()
			h.Close(conn, "heartbeat_failed")
		}
	})
}
