// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Change feed source selectors.
const (
	ChangefeedNone     = "none"
	ChangefeedPostgres = "postgres"
	ChangefeedRedis    = "redis"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// ChangefeedSource selects where row-change notifications come from:
	// "postgres" (LISTEN/NOTIFY), "redis" (Pub/Sub), or "none".
	ChangefeedSource string `env:"CHANGEFEED_SOURCE" default:"none"`
	DatabaseURL      string `env:"DATABASE_URL"`
	RedisURL         string `env:"REDIS_URL"`

	MaxConnections    int           `env:"MAX_CONNECTIONS" default:"10000"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" default:"30s"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.ChangefeedSource {
	case ChangefeedNone:
	case ChangefeedPostgres:
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when CHANGEFEED_SOURCE=postgres")
		}
	case ChangefeedRedis:
		if cfg.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when CHANGEFEED_SOURCE=redis")
		}
	default:
		return fmt.Errorf("CHANGEFEED_SOURCE must be one of none, postgres, redis; got %q", cfg.ChangefeedSource)
	}

	if cfg.MaxConnections < 1 {
		return fmt.Errorf("MAX_CONNECTIONS must be positive, got %d", cfg.MaxConnections)
	}
	if cfg.HeartbeatInterval < time.Second {
		return fmt.Errorf("HEARTBEAT_INTERVAL must be at least 1s, got %s", cfg.HeartbeatInterval)
	}

	return nil
}
