// Package analytics keeps a bounded in-memory window of recently ingested
// events and computes windowed statistics over it on demand. The window is
// the only retained state in the realtime core; overflow evicts the oldest
// record, which is the only place data is discarded rather than delivered.
package analytics

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sentinelx/realtime/internal/metrics"
	"github.com/sentinelx/realtime/internal/realtime"
)

// DefaultCapacity is the number of records the window retains.
const DefaultCapacity = 1000

// Record is an ingested event plus the time the window stored it.
type Record struct {
	Event      realtime.Event `json:"event"`
	IngestedAt time.Time      `json:"ingested_at"`
}

// PeakHour is the hour of day (0-23) with the most event occurrences in the
// window. Ties break toward the lowest hour.
type PeakHour struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

// Stats summarizes the current window contents. All counts are computed over
// the buffer only, not global history.
type Stats struct {
	TotalEvents    int            `json:"total_events"`
	EventsLastHour int            `json:"events_last_hour"`
	EventsLastDay  int            `json:"events_last_day"`
	EventTypes     map[string]int `json:"event_types"`
	PeakHour       PeakHour       `json:"peak_hour"`
}

// Window is a fixed-capacity FIFO ring buffer of analytics records. Appends
// are serialized by a single writer lock; reads copy a snapshot so that
// stats and recent-event queries never observe a half-applied append.
type Window struct {
	clock clockwork.Clock

	mu       sync.Mutex
	buf      []Record
	head     int // next write position
	size     int
	capacity int
}

// NewWindow creates a window with the given capacity.
func NewWindow(capacity int, clock clockwork.Clock) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Window{
		clock:    clock,
		buf:      make([]Record, capacity),
		capacity: capacity,
	}
}

// Record appends an event, evicting the oldest record when at capacity.
func (w *Window) Record(ev realtime.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size == w.capacity {
		metrics.AnalyticsEvictionsTotal.Inc()
	} else {
		w.size++
	}
	w.buf[w.head] = Record{Event: ev, IngestedAt: w.clock.Now()}
	w.head = (w.head + 1) % w.capacity
	metrics.AnalyticsBufferSize.Set(float64(w.size))
}

// Len returns the number of records currently retained.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// Recent returns the last limit records, most-recent last. The call is
// non-destructive and restartable.
func (w *Window) Recent(limit int) []Record {
	w.mu.Lock()
	defer w.mu.Unlock()

	if limit <= 0 || limit > w.size {
		limit = w.size
	}
	out := make([]Record, 0, limit)
	start := w.head - limit
	if start < 0 {
		start += w.capacity
	}
	for n := 0; n < limit; n++ {
		out = append(out, w.buf[(start+n)%w.capacity])
	}
	return out
}

// WindowedStats computes statistics over the current buffer contents. All
// computations are O(n) over the buffer on demand; no incremental
// aggregation is kept because the buffer is capacity-bounded.
func (w *Window) WindowedStats() Stats {
	records := w.Recent(0)
	now := w.clock.Now()
	hourAgo := now.Add(-time.Hour)
	dayAgo := now.Add(-24 * time.Hour)

	stats := Stats{
		TotalEvents: len(records),
		EventTypes:  make(map[string]int),
	}

	var hourCounts [24]int
	for _, r := range records {
		ts := r.Event.Timestamp
		if ts.After(hourAgo) {
			stats.EventsLastHour++
		}
		if ts.After(dayAgo) {
			stats.EventsLastDay++
		}
		stats.EventTypes[r.Event.EventType]++
		hourCounts[ts.Hour()]++
	}

	for hour := 0; hour < 24; hour++ {
		if hourCounts[hour] > stats.PeakHour.Count {
			stats.PeakHour = PeakHour{Hour: hour, Count: hourCounts[hour]}
		}
	}
	return stats
}
