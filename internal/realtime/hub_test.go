package realtime

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(clockwork.NewRealClock(), 100, time.Hour)
	t.Cleanup(hub.Stop)
	return hub
}

func openConn(t *testing.T, hub *Hub, transport Transport) *Conn {
	t.Helper()
	conn, err := hub.Connect(transport)
	require.NoError(t, err)
	conn.MarkOpen()
	return conn
}

func decodeFrame(t *testing.T, raw []byte) Frame {
	t.Helper()
	var frame Frame
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame
}

// drainFrames empties the connection's queue and returns the decoded frames.
func drainFrames(t *testing.T, conn *Conn) []Frame {
	t.Helper()
	var frames []Frame
	for {
		select {
		case raw := <-conn.Frames():
			frames = append(frames, decodeFrame(t, raw))
		default:
			return frames
		}
	}
}

func TestHub_DispatchRoutesByChannel(t *testing.T) {
	hub := testHub(t)
	a := openConn(t, hub, TransportPushStream)
	b := openConn(t, hub, TransportSocket)

	require.NoError(t, hub.Subscribe(a.ID, ChannelDisasters, Filter{}))
	require.NoError(t, hub.Subscribe(b.ID, ChannelAlerts, Filter{}))

	delivered := hub.Dispatch(Event{Channel: ChannelDisasters, EventType: "broadcast", Payload: map[string]any{"id": "d1"}, Timestamp: time.Now()})

	assert.Equal(t, 1, delivered)
	frames := drainFrames(t, a)
	require.Len(t, frames, 1)
	assert.Equal(t, FrameData, frames[0].Type)
	assert.Equal(t, ChannelDisasters, frames[0].Channel)
	assert.Equal(t, "d1", frames[0].Data["id"])
	assert.Empty(t, drainFrames(t, b))
}

func TestHub_WildcardReceivesEveryChannel(t *testing.T) {
	hub := testHub(t)
	conn := openConn(t, hub, TransportPushStream)
	require.NoError(t, hub.Subscribe(conn.ID, ChannelAll, Filter{}))

	for _, channel := range []string{ChannelDisasters, ChannelAlerts, "unmapped_channel"} {
		delivered := hub.Dispatch(Event{Channel: channel, Payload: map[string]any{}, Timestamp: time.Now()})
		assert.Equal(t, 1, delivered, "channel %s", channel)
	}

	assert.Len(t, drainFrames(t, conn), 3)
}

func TestHub_FilterSuppressesDelivery(t *testing.T) {
	hub := testHub(t)
	conn := openConn(t, hub, TransportSocket)
	require.NoError(t, hub.Subscribe(conn.ID, ChannelAlerts, Filter{"severity": "critical"}))

	delivered := hub.Dispatch(Event{Channel: ChannelAlerts, Payload: map[string]any{"severity": "medium"}, Timestamp: time.Now()})
	assert.Equal(t, 0, delivered)

	delivered = hub.Dispatch(Event{Channel: ChannelAlerts, Payload: map[string]any{"severity": "critical"}, Timestamp: time.Now()})
	assert.Equal(t, 1, delivered)
}

func TestHub_SubscribeRequiresOpenConnection(t *testing.T) {
	hub := testHub(t)

	conn, err := hub.Connect(TransportSocket)
	require.NoError(t, err)

	// Still CONNECTING: the handshake has not been acknowledged.
	assert.ErrorIs(t, hub.Subscribe(conn.ID, ChannelAlerts, Filter{}), ErrNotOpen)

	assert.ErrorIs(t, hub.Subscribe(uuid.New(), ChannelAlerts, Filter{}), ErrNotOpen)
}

func TestHub_ConnectionLimit(t *testing.T) {
	hub := NewHub(clockwork.NewRealClock(), 2, time.Hour)
	t.Cleanup(hub.Stop)

	_, err := hub.Connect(TransportPushStream)
	require.NoError(t, err)
	_, err = hub.Connect(TransportPushStream)
	require.NoError(t, err)

	_, err = hub.Connect(TransportPushStream)
	assert.ErrorIs(t, err, ErrConnectionLimit)
}

func TestHub_CloseRemovesSubscriptionsAndRegistryEntry(t *testing.T) {
	hub := testHub(t)
	a := openConn(t, hub, TransportSocket)
	b := openConn(t, hub, TransportSocket)
	require.NoError(t, hub.Subscribe(a.ID, ChannelDisasters, Filter{}))
	require.NoError(t, hub.Subscribe(a.ID, ChannelAlerts, Filter{}))
	require.NoError(t, hub.Subscribe(b.ID, ChannelDisasters, Filter{}))

	require.Equal(t, 2, hub.ClientCount())
	require.Equal(t, 1, hub.Dispatch(Event{Channel: ChannelAlerts, Payload: map[string]any{}, Timestamp: time.Now()}))

	hub.Close(a, "client_disconnect")

	assert.Equal(t, 1, hub.ClientCount())
	assert.Equal(t, 1, hub.SubscriptionCount())
	assert.Equal(t, StateClosed, a.State())

	// The closed connection no longer receives anything; b still does.
	assert.Equal(t, 1, hub.Dispatch(Event{Channel: ChannelDisasters, Payload: map[string]any{}, Timestamp: time.Now()}))
	assert.Equal(t, 0, hub.Dispatch(Event{Channel: ChannelAlerts, Payload: map[string]any{}, Timestamp: time.Now()}))
}

func TestHub_CloseIsIdempotentUnderRacingCleanups(t *testing.T) {
	hub := testHub(t)
	conn := openConn(t, hub, TransportSocket)
	require.NoError(t, hub.Subscribe(conn.ID, ChannelAlerts, Filter{}))

	// A client abort racing a heartbeat-triggered cleanup must run the
	// cleanup sequence exactly once.
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Close(conn, "client_disconnect")
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, hub.ClientCount())
	assert.Equal(t, 0, hub.SubscriptionCount())
	assert.Equal(t, StateClosed, conn.State())
}

func TestHub_SubscribeRacingCloseLeavesNoSubscription(t *testing.T) {
	hub := testHub(t)

	// Subscribe and Close race on fresh connections; whichever interleaving
	// occurs, a closed connection must never retain a subscription.
	for i := 0; i < 1000; i++ {
		conn := openConn(t, hub, TransportSocket)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = hub.Subscribe(conn.ID, ChannelAlerts, Filter{})
		}()
		go func() {
			defer wg.Done()
			hub.Close(conn, "client_disconnect")
		}()
		wg.Wait()

		require.Equal(t, 0, hub.ClientCount())
		require.Equal(t, 0, hub.SubscriptionCount())
	}
}

func TestHub_SlowClientIsDroppedWithoutAffectingOthers(t *testing.T) {
	hub := testHub(t)
	slow := openConn(t, hub, TransportPushStream)
	healthy := openConn(t, hub, TransportPushStream)
	require.NoError(t, hub.Subscribe(slow.ID, ChannelDisasters, Filter{}))
	require.NoError(t, hub.Subscribe(healthy.ID, ChannelDisasters, Filter{}))

	// Fill the slow client's bounded queue; nobody drains it.
	for n := 0; n < defaultSendBuffer; n++ {
		delivered := hub.Dispatch(Event{Channel: ChannelDisasters, Payload: map[string]any{"n": n}, Timestamp: time.Now()})
		require.Equal(t, 2, delivered)
		drainFrames(t, healthy)
	}

	// The next event overflows the slow queue: the event is dropped for
	// that client only, and the client is closed.
	delivered := hub.Dispatch(Event{Channel: ChannelDisasters, Payload: map[string]any{"n": defaultSendBuffer}, Timestamp: time.Now()})

	assert.Equal(t, 1, delivered)
	assert.Equal(t, StateClosed, slow.State())
	assert.Equal(t, 1, hub.ClientCount())
	assert.Len(t, drainFrames(t, healthy), 1)
}

func TestHub_HeartbeatSweepSendsFrames(t *testing.T) {
	clock := clockwork.NewFakeClock()
	hub := NewHub(clock, 10, 30*time.Second)
	t.Cleanup(hub.Stop)

	conn, err := hub.Connect(TransportPushStream)
	require.NoError(t, err)
	conn.MarkOpen()

	clock.BlockUntil(1)
	clock.Advance(30 * time.Second)

	select {
	case raw := <-conn.Frames():
		assert.Equal(t, FrameHeartbeat, decodeFrame(t, raw).Type)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a heartbeat frame")
	}
}

func TestHub_HeartbeatFailureClosesConnection(t *testing.T) {
	clock := clockwork.NewFakeClock()
	hub := NewHub(clock, 10, 30*time.Second)
	t.Cleanup(hub.Stop)

	conn, err := hub.Connect(TransportPushStream)
	require.NoError(t, err)
	conn.MarkOpen()

	// A client that stopped draining: the heartbeat cannot be queued and the
	// connection is reaped, identically to a dispatch failure.
	for conn.TrySend([]byte("{}")) {
	}

	clock.BlockUntil(1)
	clock.Advance(30 * time.Second)

	assert.Eventually(t, func() bool {
		return hub.ClientCount() == 0 && conn.State() == StateClosed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHub_HeartbeatSkipsNonOpenConnections(t *testing.T) {
	clock := clockwork.NewFakeClock()
	hub := NewHub(clock, 10, 30*time.Second)
	t.Cleanup(hub.Stop)

	// Still CONNECTING: the sweep must leave it alone.
	conn, err := hub.Connect(TransportSocket)
	require.NoError(t, err)

	clock.BlockUntil(1)
	clock.Advance(30 * time.Second)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, drainFrames(t, conn))
	assert.Equal(t, 1, hub.ClientCount())
}

func TestHub_ConcurrentRegistrationAndDispatch(t *testing.T) {
	hub := NewHub(clockwork.NewRealClock(), 0, time.Hour)
	t.Cleanup(hub.Stop)
	hub.sendBuffer = 256 // large enough that no subscriber can overflow

	const subscribers = 100
	const events = 100

	conns := make([]*Conn, subscribers)
	for n := range conns {
		conns[n] = openConn(t, hub, TransportPushStream)
		require.NoError(t, hub.Subscribe(conns[n].ID, ChannelDisasters, Filter{}))
	}

	var totalDelivered atomic.Int64
	var wg sync.WaitGroup

	// Dispatchers and new registrations run concurrently against the same
	// registry and index.
	for worker := 0; worker < 4; worker++ {
		worker := worker
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < events/4; n++ {
				ev := Event{
					Channel:   ChannelDisasters,
					EventType: "broadcast",
					Payload:   map[string]any{"worker": worker, "n": n},
					Timestamp: time.Now(),
				}
				totalDelivered.Add(int64(hub.Dispatch(ev)))
			}
		}()
	}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := hub.Connect(TransportSocket)
			if err == nil {
				conn.MarkOpen()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(subscribers*events), totalDelivered.Load())
	assert.Equal(t, subscribers+20, hub.ClientCount())

	// Every subscriber that is still open received exactly one frame per
	// event: no duplicates, no gaps.
	for n, conn := range conns {
		require.Equal(t, StateOpen, conn.State(), "conn %d", n)
		assert.Len(t, drainFrames(t, conn), events, "conn %d", n)
	}
}

func TestHub_StopClosesAllConnections(t *testing.T) {
	hub := NewHub(clockwork.NewRealClock(), 10, time.Hour)

	a := openConn(t, hub, TransportPushStream)
	b := openConn(t, hub, TransportSocket)
	require.NoError(t, hub.Subscribe(a.ID, ChannelAll, Filter{}))

	hub.Stop()

	assert.Equal(t, 0, hub.ClientCount())
	assert.Equal(t, 0, hub.SubscriptionCount())
	assert.Equal(t, StateClosed, a.State())
	assert.Equal(t, StateClosed, b.State())
}
