package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/version", s.handleVersion)

	// Service descriptor, stats and recent events (selected via ?action=)
	s.echo.GET("/api/realtime", s.handleRealtime)

	// Event ingest
	s.echo.POST("/api/realtime/broadcast", s.handleBroadcast)

	// Client transports
	s.echo.GET("/api/realtime/stream", s.handleStream)
	s.echo.GET("/api/realtime/ws", s.handleSocket)
}
