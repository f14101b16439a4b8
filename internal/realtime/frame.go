package realtime

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Frame types written to clients. Connection, heartbeat and data frames go
// to every transport; the remaining types are unicast control replies on the
// socket transport and bypass the dispatcher.
const (
	FrameConnection   = "connection"
	FrameHeartbeat    = "heartbeat"
	FrameData         = "data"
	FrameSubscribed   = "subscribed"
	FrameUnsubscribed = "unsubscribed"
	FramePong         = "pong"
	FrameError        = "error"
)

// Frame is the wire representation of a single message to a client.
// Push-stream clients receive frames as newline-delimited JSON; socket
// clients receive them as text messages.
type Frame struct {
	Type      string         `json:"type"`
	ClientID  string         `json:"client_id,omitempty"`
	Channel   string         `json:"channel,omitempty"`
	EventType string         `json:"event_type,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Message   string         `json:"message,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// Encode marshals the frame to JSON.
func (f Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// ConnectionFrame is sent once at handshake, before the connection is open.
func ConnectionFrame(id uuid.UUID, channel string, now time.Time) Frame {
	return Frame{
		Type:      FrameConnection,
		ClientID:  id.String(),
		Channel:   channel,
		Message:   "Connected to SentinelX real-time updates",
		Timestamp: now.UTC().Format(time.RFC3339),
	}
}

// HeartbeatFrame is sent by the liveness sweep at a fixed interval.
func HeartbeatFrame(now time.Time) Frame {
	return Frame{
		Type:      FrameHeartbeat,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
}

// DataFrame wraps an ingested event for delivery.
func DataFrame(ev Event) Frame {
	return Frame{
		Type:      FrameData,
		Channel:   ev.Channel,
		EventType: ev.EventType,
		Data:      ev.Payload,
		Timestamp: ev.Timestamp.UTC().Format(time.RFC3339),
	}
}
