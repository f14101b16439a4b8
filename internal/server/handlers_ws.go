package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sentinelx/realtime/internal/metrics"
	"github.com/sentinelx/realtime/internal/realtime"

	"github.com/labstack/echo/v4"
)

const socketWriteDeadline = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboard is served from a separate origin
	},
}

// clientMessage is a control message from a socket client.
type clientMessage struct {
	Type    string         `json:"type"`
	Channel string         `json:"channel"`
	Filters map[string]any `json:"filters"`
}

// handleSocket serves the bidirectional transport. The read pump runs on the
// handler goroutine; a writer goroutine drains the connection's frame queue
// so that dispatch never blocks on this client's socket.
func (s *Server) handleSocket(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Debug("WebSocket upgrade failed", "error", err)
		return nil
	}

	conn, err := s.hub.Connect(realtime.TransportSocket)
	if err != nil {
		closeMsg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "connection limit reached")
		_ = ws.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(socketWriteDeadline))
		_ = ws.Close()
		return nil
	}

	go s.writeSocket(conn, ws)

	s.sendControl(conn, realtime.ConnectionFrame(conn.ID, "", s.clock.Now()))
	conn.MarkOpen()

	s.readSocket(conn, ws)
	s.hub.Close(conn, "client_disconnect")
	return nil
}

// writeSocket drains queued frames onto the wire. A write failure is a
// delivery error: it closes only this connection.
func (s *Server) writeSocket(conn *realtime.Conn, ws *websocket.Conn) {
	defer ws.Close()

	for {
		select {
		case <-conn.Done():
			closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = ws.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(socketWriteDeadline))
			return
		case frame := <-conn.Frames():
			_ = ws.SetWriteDeadline(time.Now().Add(socketWriteDeadline))
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				metrics.RealtimeFramesDroppedTotal.WithLabelValues("write_error").Inc()
				s.hub.Close(conn, "write_error")
				return
			}
		}
	}
}

// readSocket handles control messages until the client disconnects.
// Replies are unicast and bypass the dispatcher.
func (s *Server) readSocket(conn *realtime.Conn, ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendControl(conn, s.errorFrame("Invalid message format"))
			continue
		}

		conn.Touch()

		switch msg.Type {
		case "subscribe":
			if msg.Channel == "" {
				s.sendControl(conn, s.errorFrame("channel is required"))
				continue
			}
			if err := s.hub.Subscribe(conn.ID, msg.Channel, realtime.Filter(msg.Filters)); err != nil {
				s.sendControl(conn, s.errorFrame("connection is not open"))
				continue
			}
			s.sendControl(conn, realtime.Frame{
				Type:      realtime.FrameSubscribed,
				Channel:   msg.Channel,
				Message:   "Subscribed to " + msg.Channel,
				Timestamp: s.clock.Now().UTC().Format(time.RFC3339),
			})
		case "unsubscribe":
			s.hub.Unsubscribe(conn.ID, msg.Channel)
			s.sendControl(conn, realtime.Frame{
				Type:      realtime.FrameUnsubscribed,
				Channel:   msg.Channel,
				Message:   "Unsubscribed from " + msg.Channel,
				Timestamp: s.clock.Now().UTC().Format(time.RFC3339),
			})
		case "ping":
			s.sendControl(conn, realtime.Frame{
				Type:      realtime.FramePong,
				Timestamp: s.clock.Now().UTC().Format(time.RFC3339),
			})
		default:
			s.sendControl(conn, s.errorFrame("Unknown message type"))
		}
	}
}

func (s *Server) errorFrame(message string) realtime.Frame {
	return realtime.Frame{
		Type:      realtime.FrameError,
		Message:   message,
		Timestamp: s.clock.Now().UTC().Format(time.RFC3339),
	}
}

func (s *Server) sendControl(conn *realtime.Conn, frame realtime.Frame) {
	encoded, err := frame.Encode()
	if err != nil {
		slog.Error("Failed to encode control frame", "type", frame.Type, "error", err)
		return
	}
	if !conn.TrySend(encoded) {
		metrics.RealtimeFramesDroppedTotal.WithLabelValues("queue_full").Inc()
	}
}
