package changefeed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	goredis "github.com/redis/go-redis/v9"
)

// channelPrefix namespaces the Pub/Sub channels the collaborator publishes
// row changes on, e.g. "changes:disasters".
const channelPrefix = "changes:"

// RedisSource receives row-change notifications via Redis Pub/Sub. The
// go-redis subscription reconnects internally, so no retry loop is needed
// around message consumption.
type RedisSource struct {
	client    *goredis.Client
	ingestor  Ingestor
	connected atomic.Bool
}

// NewRedisSource creates a source; Run must be called to start consuming.
func NewRedisSource(client *goredis.Client, ingestor Ingestor) *RedisSource {
	return &RedisSource{client: client, ingestor: ingestor}
}

// Connected reports whether the subscription is currently established.
func (s *RedisSource) Connected() bool {
	return s.connected.Load()
}

// Run consumes notifications until the context is canceled.
func (s *RedisSource) Run(ctx context.Context) error {
	channels := make([]string, len(WatchedTables))
	for i, table := range WatchedTables {
		channels[i] = channelPrefix + table
	}

	sub := s.client.Subscribe(ctx, channels...)
	defer func() {
		s.connected.Store(false)
		_ = sub.Close()
	}()

	// Confirm the subscription before consuming.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing change feed: %w", err)
	}

	s.connected.Store(true)
	slog.Info("Change feed listening", "source", "redis", "channels", channels)

	msgCh := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgCh:
			if !ok {
				return nil
			}
			table := strings.TrimPrefix(msg.Channel, channelPrefix)
			deliver("redis", s.ingestor, table, []byte(msg.Payload))
		}
	}
}
