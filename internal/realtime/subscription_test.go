package realtime

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func alertEvent(payload map[string]any) Event {
	return Event{Channel: ChannelAlerts, EventType: "broadcast", Payload: payload}
}

func TestFilter_Matches(t *testing.T) {
	tests := []struct {
		name    string
		filter  Filter
		payload map[string]any
		want    bool
	}{
		{"empty filter matches everything", Filter{}, map[string]any{"severity": "low"}, true},
		{"nil filter matches everything", nil, map[string]any{}, true},
		{"equal value matches", Filter{"severity": "critical"}, map[string]any{"severity": "critical"}, true},
		{"different value does not match", Filter{"severity": "critical"}, map[string]any{"severity": "medium"}, false},
		{"missing field does not match", Filter{"severity": "critical"}, map[string]any{"region": "north"}, false},
		{"matching is case-sensitive", Filter{"severity": "critical"}, map[string]any{"severity": "Critical"}, false},
		{"all fields must match", Filter{"severity": "critical", "region": "north"}, map[string]any{"severity": "critical", "region": "south"}, false},
		{"numbers compare as decoded", Filter{"level": float64(3)}, map[string]any{"level": float64(3)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(tt.payload))
		})
	}
}

func TestIndex_ChannelRouting(t *testing.T) {
	index := NewIndex()
	a := uuid.New()
	b := uuid.New()

	index.Subscribe(a, ChannelDisasters, Filter{})
	index.Subscribe(b, ChannelAlerts, Filter{})

	matched := index.MatchingSubscribers(Event{Channel: ChannelDisasters, Payload: map[string]any{}})
	assert.ElementsMatch(t, []uuid.UUID{a}, matched)
}

func TestIndex_WildcardMatchesEveryChannel(t *testing.T) {
	index := NewIndex()
	a := uuid.New()
	index.Subscribe(a, ChannelAll, Filter{})

	for _, channel := range []string{ChannelDisasters, ChannelAlerts, "seismic_readings"} {
		matched := index.MatchingSubscribers(Event{Channel: channel, Payload: map[string]any{}})
		assert.ElementsMatch(t, []uuid.UUID{a}, matched, "channel %s", channel)
	}
}

func TestIndex_FilterSuppressesNonMatching(t *testing.T) {
	index := NewIndex()
	a := uuid.New()
	index.Subscribe(a, ChannelAlerts, Filter{"severity": "critical"})

	assert.Empty(t, index.MatchingSubscribers(alertEvent(map[string]any{"severity": "medium"})))
	assert.Len(t, index.MatchingSubscribers(alertEvent(map[string]any{"severity": "critical"})), 1)
}

func TestIndex_ResubscribeReplacesFilter(t *testing.T) {
	index := NewIndex()
	a := uuid.New()

	index.Subscribe(a, ChannelAlerts, Filter{"severity": "critical"})
	index.Subscribe(a, ChannelAlerts, Filter{"severity": "medium"})

	assert.Equal(t, 1, index.Count())
	assert.Len(t, index.MatchingSubscribers(alertEvent(map[string]any{"severity": "medium"})), 1)
	assert.Empty(t, index.MatchingSubscribers(alertEvent(map[string]any{"severity": "critical"})))
}

func TestIndex_ConnectionMatchedOncePerEvent(t *testing.T) {
	index := NewIndex()
	a := uuid.New()

	// Both subscriptions match the same event; the connection still gets a
	// single delivery.
	index.Subscribe(a, ChannelAlerts, Filter{})
	index.Subscribe(a, ChannelAll, Filter{})

	assert.Len(t, index.MatchingSubscribers(alertEvent(map[string]any{})), 1)
}

func TestIndex_Unsubscribe(t *testing.T) {
	index := NewIndex()
	a := uuid.New()
	index.Subscribe(a, ChannelAlerts, Filter{})

	index.Unsubscribe(a, ChannelAlerts)
	assert.Equal(t, 0, index.Count())
	assert.Empty(t, index.MatchingSubscribers(alertEvent(map[string]any{})))

	// Removing an absent subscription is a no-op.
	index.Unsubscribe(a, ChannelAlerts)
	index.Unsubscribe(uuid.New(), ChannelDisasters)
}

func TestIndex_RemoveConnectionDropsAllSubscriptions(t *testing.T) {
	index := NewIndex()
	a := uuid.New()
	b := uuid.New()
	index.Subscribe(a, ChannelAlerts, Filter{})
	index.Subscribe(a, ChannelDisasters, Filter{})
	index.Subscribe(b, ChannelAlerts, Filter{})

	index.RemoveConnection(a)

	assert.Equal(t, 1, index.Count())
	assert.ElementsMatch(t, []uuid.UUID{b}, index.MatchingSubscribers(alertEvent(map[string]any{})))
}

func TestIndex_MatchingIsPure(t *testing.T) {
	index := NewIndex()
	a := uuid.New()
	index.Subscribe(a, ChannelAlerts, Filter{"severity": "critical"})

	ev := alertEvent(map[string]any{"severity": "critical"})
	first := index.MatchingSubscribers(ev)
	second := index.MatchingSubscribers(ev)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, index.Count())
}
