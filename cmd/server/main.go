package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sentinelx/realtime/internal/analytics"
	"github.com/sentinelx/realtime/internal/changefeed"
	"github.com/sentinelx/realtime/internal/config"
	"github.com/sentinelx/realtime/internal/ingest"
	"github.com/sentinelx/realtime/internal/logging"
	"github.com/sentinelx/realtime/internal/metrics"
	"github.com/sentinelx/realtime/internal/realtime"
	"github.com/sentinelx/realtime/internal/server"
	"github.com/sentinelx/realtime/internal/version"
)

// feedSource is a change feed that runs until canceled and reports health.
type feedSource interface {
	Run(ctx context.Context) error
	Connected() bool
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupChangefeed(cfg *config.Config, gateway *ingest.Gateway) (feedSource, func()) {
	switch cfg.ChangefeedSource {
	case config.ChangefeedPostgres:
		return changefeed.NewPostgresSource(cfg.DatabaseURL, gateway), func() {}
	case config.ChangefeedRedis:
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("Invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		client := goredis.NewClient(opts)
		return changefeed.NewRedisSource(client, gateway), func() { _ = client.Close() }
	default:
		return nil, func() {}
	}
}

func runGracefulShutdown(srv *server.Server, hub *realtime.Hub, cancelFeed context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		cancelFeed()
		hub.Stop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	info := version.Get()
	metrics.BuildInfo.WithLabelValues(info.Version, info.Commit, info.BuildTime, info.GoVersion).Set(1)

	hub := realtime.NewHub(clock, cfg.MaxConnections, cfg.HeartbeatInterval)
	window := analytics.NewWindow(analytics.DefaultCapacity, clock)
	gateway := ingest.NewGateway(hub, window, clock)

	feed, closeFeed := setupChangefeed(cfg, gateway)
	defer closeFeed()

	feedCtx, cancelFeed := context.WithCancel(context.Background())
	defer cancelFeed()
	if feed != nil {
		go func() {
			if err := feed.Run(feedCtx); err != nil {
				slog.Error("Change feed stopped", "error", err)
			}
		}()
	}

	var feedHealth server.FeedHealth
	if feed != nil {
		feedHealth = feed
	}
	srv := server.NewServer(cfg, hub, gateway, window, feedHealth, clock)

	done := runGracefulShutdown(srv, hub, cancelFeed)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
