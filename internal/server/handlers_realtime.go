package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	apperrors "github.com/sentinelx/realtime/internal/errors"
	"github.com/sentinelx/realtime/internal/ingest"
	"github.com/sentinelx/realtime/internal/realtime"
)

const defaultEventsLimit = 50

type broadcastRequest struct {
	Channel   string         `json:"channel"`
	Data      map[string]any `json:"data"`
	EventType string         `json:"event_type"`
}

func (s *Server) handleBroadcast(c echo.Context) error {
	var req broadcastRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid JSON body")
	}

	result, err := s.gateway.Ingest(ingest.Request{
		Channel:   req.Channel,
		EventType: req.EventType,
		Payload:   req.Data,
		Origin:    "api",
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":           true,
		"message":           "Data broadcasted successfully",
		"delivered":         result.Delivered,
		"clients_connected": s.hub.ClientCount(),
	})
}

func (s *Server) handleRealtime(c echo.Context) error {
	switch c.QueryParam("action") {
	case "stats":
		return s.handleStats(c)
	case "events":
		return s.handleRecentEvents(c)
	default:
		return s.handleServiceInfo(c)
	}
}

func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"websocket": map[string]any{
				"connectedClients":    s.hub.ClientCount(),
				"activeSubscriptions": s.hub.SubscriptionCount(),
				"uptime":              s.hub.Uptime().Seconds(),
			},
			"analytics": s.window.WindowedStats(),
		},
	})
}

func (s *Server) handleRecentEvents(c echo.Context) error {
	limit := defaultEventsLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return apperrors.ValidationError("limit must be a positive integer")
		}
		limit = parsed
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"data":    s.window.Recent(limit),
	})
}

func (s *Server) handleServiceInfo(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": "SentinelX real-time service",
		"endpoints": map[string]string{
			"stream":    "/api/realtime/stream?channel=all",
			"websocket": "/api/realtime/ws",
			"broadcast": "/api/realtime/broadcast",
			"stats":     "/api/realtime?action=stats",
			"events":    "/api/realtime?action=events&limit=50",
		},
		"supported_channels": realtime.KnownChannels,
	})
}
