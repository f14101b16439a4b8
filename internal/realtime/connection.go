package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Transport identifies how frames reach the client.
type Transport int

const (
	// TransportPushStream is the unidirectional newline-delimited JSON
	// stream over a long-lived HTTP response.
	TransportPushStream Transport = iota
	// TransportSocket is the bidirectional WebSocket transport.
	TransportSocket
)

func (t Transport) String() string {
	switch t {
	case TransportPushStream:
		return "push_stream"
	case TransportSocket:
		return "socket"
	default:
		return "unknown"
	}
}

// State is the connection lifecycle state.
type State int

const (
	// StateConnecting means the transport handshake is not yet acknowledged.
	StateConnecting State = iota
	// StateOpen means the connection accepts and receives events.
	StateOpen
	// StateClosing means a disconnect signal was received or a write failed;
	// cleanup is in progress.
	StateClosing
	// StateClosed is terminal: the registry entry and all subscriptions for
	// this connection have been removed.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is one client transport session. It is owned exclusively by the
// registry; transport adapters drain Frames and write them to the wire, and
// hold no reference that extends its lifetime past Close.
type Conn struct {
	ID        uuid.UUID
	Transport Transport

	clock     clockwork.Clock
	createdAt time.Time

	send chan []byte
	done chan struct{}

	mu           sync.Mutex
	state        State
	lastActivity time.Time

	closeOnce sync.Once
}

func newConn(transport Transport, buffer int, clock clockwork.Clock) *Conn {
	now := clock.Now()
	return &Conn{
		ID:           uuid.New(),
		Transport:    transport,
		clock:        clock,
		createdAt:    now,
		send:         make(chan []byte, buffer),
		done:         make(chan struct{}),
		state:        StateConnecting,
		lastActivity: now,
	}
}

// Frames is the bounded outbound queue drained by the transport adapter.
func (c *Conn) Frames() <-chan []byte { return c.send }

// Done is closed when the connection begins closing. Transport adapters
// select on it to terminate their write loops.
func (c *Conn) Done() <-chan struct{} { return c.done }

// CreatedAt returns the connection creation time.
func (c *Conn) CreatedAt() time.Time { return c.createdAt }

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastActivity returns the time of the last successful send or client signal.
func (c *Conn) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// MarkOpen transitions CONNECTING -> OPEN once the transport handshake has
// been acknowledged. It is a no-op in any other state.
func (c *Conn) MarkOpen() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateConnecting {
		c.state = StateOpen
	}
}

// Touch records client activity (control message, pong).
func (c *Conn) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActivity = c.clock.Now()
}

// TrySend queues an encoded frame without blocking. It reports false if the
// connection is closing, closed, or its queue is full; the caller treats a
// false return as a delivery failure for this connection only.
//
// The state check and the send are not atomic against beginClose: a frame
// can land in the queue just as the connection starts closing. The queue is
// then never drained, so the late frame is indistinguishable from a drop.
func (c *Conn) TrySend(frame []byte) bool {
	c.mu.Lock()
	if c.state != StateConnecting && c.state != StateOpen {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	select {
	case c.send <- frame:
		c.mu.Lock()
		c.lastActivity = c.clock.Now()
		c.mu.Unlock()
		return true
	default:
		return false
	}
}

// beginClose transitions to CLOSING and signals Done exactly once. It
// reports whether this call won the transition; exactly one caller performs
// the rest of the cleanup sequence.
func (c *Conn) beginClose() bool {
	won := false
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosing
		c.mu.Unlock()
		close(c.done)
		won = true
	})
	return won
}

// finishClose marks the terminal state after registry and subscription
// cleanup have completed.
func (c *Conn) finishClose() {
	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
}
