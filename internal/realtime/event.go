package realtime

import "time"

// Channel names routed by the hub. Unknown channels are accepted on ingest
// but only reach subscribers of ChannelAll.
const (
	ChannelDisasters        = "disasters"
	ChannelCommunityReports = "community_reports"
	ChannelAlerts           = "alerts"
	ChannelAnalytics        = "analytics"

	// ChannelAll is the wildcard channel: subscribing to it matches events
	// on every channel.
	ChannelAll = "all"
)

// KnownChannels lists the channels clients are expected to subscribe to.
var KnownChannels = []string{
	ChannelDisasters,
	ChannelCommunityReports,
	ChannelAlerts,
	ChannelAnalytics,
	ChannelAll,
}

// IsKnownChannel reports whether name is one of the fixed channel set.
func IsKnownChannel(name string) bool {
	for _, ch := range KnownChannels {
		if ch == name {
			return true
		}
	}
	return false
}

// Event is an immutable value flowing through the hub. It is never mutated
// after ingest; the payload is treated as an opaque flat mapping.
type Event struct {
	Channel   string         `json:"channel"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
	Origin    string         `json:"origin,omitempty"`
}
