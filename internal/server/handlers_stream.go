package server

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sentinelx/realtime/internal/metrics"
	"github.com/sentinelx/realtime/internal/realtime"
)

// handleStream serves the unidirectional push transport: a long-lived
// response carrying newline-delimited JSON frames. The handler goroutine
// owns the ResponseWriter and drains the connection's frame queue; the hub
// never touches the wire directly.
func (s *Server) handleStream(c echo.Context) error {
	channel := c.QueryParam("channel")
	if channel == "" {
		channel = realtime.ChannelAll
	}

	conn, err := s.hub.Connect(realtime.TransportPushStream)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "connection limit reached")
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "application/x-ndjson")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set(echo.HeaderConnection, "keep-alive")
	resp.WriteHeader(http.StatusOK)

	writeFrame := func(frame []byte) error {
		if _, err := resp.Write(append(frame, '\n')); err != nil {
			return err
		}
		resp.Flush()
		return nil
	}

	handshake, err := realtime.ConnectionFrame(conn.ID, channel, s.clock.Now()).Encode()
	if err != nil {
		s.hub.Close(conn, "encode_error")
		return nil
	}
	if err := writeFrame(handshake); err != nil {
		s.hub.Close(conn, "write_error")
		return nil
	}

	conn.MarkOpen()
	// The channel query parameter is the stream's single implicit
	// subscription; it carries no filter.
	if err := s.hub.Subscribe(conn.ID, channel, realtime.Filter{}); err != nil {
		s.hub.Close(conn, "subscribe_failed")
		return nil
	}

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			s.hub.Close(conn, "client_disconnect")
			return nil
		case <-conn.Done():
			return nil
		case frame := <-conn.Frames():
			if err := writeFrame(frame); err != nil {
				metrics.RealtimeFramesDroppedTotal.WithLabelValues("write_error").Inc()
				slog.Debug("Stream write failed", "conn_id", conn.ID.String(), "error", err)
				s.hub.Close(conn, "write_error")
				return nil
			}
		}
	}
}
