// Package server exposes the realtime core over HTTP: the push-stream and
// socket transports, the ingest endpoint, and the stats/observability
// surface.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sentinelx/realtime/internal/analytics"
	"github.com/sentinelx/realtime/internal/config"
	apperrors "github.com/sentinelx/realtime/internal/errors"
	"github.com/sentinelx/realtime/internal/ingest"
	"github.com/sentinelx/realtime/internal/realtime"
)

// FeedHealth reports whether the external change feed is connected; nil when
// no feed is configured.
type FeedHealth interface {
	Connected() bool
}

type Server struct {
	echo      *echo.Echo
	config    *config.Config
	hub       *realtime.Hub
	gateway   *ingest.Gateway
	window    *analytics.Window
	feed      FeedHealth
	clock     clockwork.Clock
	startTime time.Time
}

func NewServer(cfg *config.Config, hub *realtime.Hub, gateway *ingest.Gateway, window *analytics.Window, feed FeedHealth, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:      e,
		config:    cfg,
		hub:       hub,
		gateway:   gateway,
		window:    window,
		feed:      feed,
		clock:     clock,
		startTime: clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
