package realtime

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Registry tracks every live connection. It is the sole owner of Conn
// lifetimes: connections are created here and evicted here, and every walk
// over the registry iterates a point-in-time snapshot so that dispatch and
// the liveness sweep never observe a half-removed entry.
type Registry struct {
	clock clockwork.Clock

	mu    sync.RWMutex
	conns map[uuid.UUID]*Conn
}

// NewRegistry creates an empty registry.
func NewRegistry(clock clockwork.Clock) *Registry {
	return &Registry{
		clock: clock,
		conns: make(map[uuid.UUID]*Conn),
	}
}

// Register creates and stores a new connection with a fresh id. The
// connection starts in CONNECTING; the transport adapter marks it open after
// the handshake frame is queued.
func (r *Registry) Register(transport Transport, buffer int) *Conn {
	conn := newConn(transport, buffer, r.clock)
	r.mu.Lock()
	r.conns[conn.ID] = conn
	r.mu.Unlock()
	return conn
}

// Unregister removes the connection unconditionally. Removing an absent id
// is a no-op, which makes racing cleanups (client abort vs. heartbeat
// failure) safe.
func (r *Registry) Unregister(id uuid.UUID) {
	r.mu.Lock()
	delete(r.conns, id)
	r.mu.Unlock()
}

// Get looks up a connection by id.
func (r *Registry) Get(id uuid.UUID) (*Conn, bool) {
	r.mu.RLock()
	conn, ok := r.conns[id]
	r.mu.RUnlock()
	return conn, ok
}

// ForEach visits a snapshot of all connections. The visitor runs without the
// registry lock held, so it may register or unregister freely.
func (r *Registry) ForEach(visit func(*Conn)) {
	r.mu.RLock()
	snapshot := make([]*Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		snapshot = append(snapshot, conn)
	}
	r.mu.RUnlock()

	for _, conn := range snapshot {
		visit(conn)
	}
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
