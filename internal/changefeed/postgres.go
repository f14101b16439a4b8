package changefeed

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sentinelx/realtime/internal/metrics"
)

const reconnectDelay = 5 * time.Second

// PostgresSource receives row-change notifications via LISTEN/NOTIFY on a
// dedicated connection. The database side is expected to NOTIFY on a channel
// named after the table, with the changed row serialized as the JSON payload.
type PostgresSource struct {
	url       string
	ingestor  Ingestor
	connected atomic.Bool
}

// NewPostgresSource creates a source; Run must be called to start listening.
func NewPostgresSource(url string, ingestor Ingestor) *PostgresSource {
	return &PostgresSource{url: url, ingestor: ingestor}
}

// Connected reports whether the listening connection is currently up.
func (s *PostgresSource) Connected() bool {
	return s.connected.Load()
}

// Run listens until the context is canceled, reconnecting with a fixed delay
// after connection loss. It returns nil on context cancellation.
func (s *PostgresSource) Run(ctx context.Context) error {
	for {
		if err := s.listen(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("Change feed connection lost, reconnecting",
				"source", "postgres", "delay", reconnectDelay, "error", err)
			metrics.ChangefeedReconnectsTotal.WithLabelValues("postgres").Inc()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *PostgresSource) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, s.url)
	if err != nil {
		return fmt.Errorf("connecting change feed listener: %w", err)
	}
	defer func() {
		s.connected.Store(false)
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	for _, table := range WatchedTables {
		if _, err := conn.Exec(ctx, fmt.Sprintf("LISTEN %q", table)); err != nil {
			return fmt.Errorf("LISTEN %s: %w", table, err)
		}
	}

	s.connected.Store(true)
	slog.Info("Change feed listening", "source", "postgres", "tables", WatchedTables)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("waiting for notification: %w", err)
		}
		deliver("postgres", s.ingestor, notification.Channel, []byte(notification.Payload))
	}
}
