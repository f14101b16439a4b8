package realtime

import (
	"reflect"
	"sync"

	"github.com/google/uuid"
)

// Filter is an equality predicate over top-level event payload fields.
// Matching is case-sensitive and compares values as decoded from JSON, so
// numbers compare as float64. An empty filter matches everything.
type Filter map[string]any

// Matches reports whether every filter field is present in the payload with
// an equal value.
func (f Filter) Matches(payload map[string]any) bool {
	for key, want := range f {
		got, ok := payload[key]
		if !ok {
			return false
		}
		if !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

type subscription struct {
	channel string
	filter  Filter
}

// Index maps connections to their channel subscriptions. Re-subscribing to
// the same channel replaces the filter. The index is pure storage: the hub
// enforces that only OPEN connections may subscribe.
type Index struct {
	mu     sync.RWMutex
	byConn map[uuid.UUID]map[string]Filter
}

// NewIndex creates an empty subscription index.
func NewIndex() *Index {
	return &Index{byConn: make(map[uuid.UUID]map[string]Filter)}
}

// Subscribe upserts the (connection, channel) subscription.
func (i *Index) Subscribe(connID uuid.UUID, channel string, filter Filter) {
	i.mu.Lock()
	defer i.mu.Unlock()
	subs, ok := i.byConn[connID]
	if !ok {
		subs = make(map[string]Filter)
		i.byConn[connID] = subs
	}
	subs[channel] = filter
}

// Unsubscribe removes the (connection, channel) subscription; absent entries
// are a no-op.
func (i *Index) Unsubscribe(connID uuid.UUID, channel string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	subs, ok := i.byConn[connID]
	if !ok {
		return
	}
	delete(subs, channel)
	if len(subs) == 0 {
		delete(i.byConn, connID)
	}
}

// RemoveConnection drops every subscription owned by the connection.
func (i *Index) RemoveConnection(connID uuid.UUID) {
	i.mu.Lock()
	delete(i.byConn, connID)
	i.mu.Unlock()
}

// MatchingSubscribers returns the ids of every connection holding a
// subscription whose channel equals the event's channel or the wildcard, and
// whose filter matches the event payload. The result is a snapshot; matching
// has no side effects.
func (i *Index) MatchingSubscribers(ev Event) []uuid.UUID {
	i.mu.RLock()
	defer i.mu.RUnlock()

	var matched []uuid.UUID
	for connID, subs := range i.byConn {
		for channel, filter := range subs {
			if channel != ev.Channel && channel != ChannelAll {
				continue
			}
			if !filter.Matches(ev.Payload) {
				continue
			}
			matched = append(matched, connID)
			break
		}
	}
	return matched
}

// Count returns the total number of active subscriptions.
func (i *Index) Count() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	total := 0
	for _, subs := range i.byConn {
		total += len(subs)
	}
	return total
}
