// Package bus wraps Redis pub/sub behind the event-channel contract shared by
// both services.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"log/slog"

	redis "github.com/redis/go-redis/v9"
)

const (
	connectTimeout = 2 * time.Second
	publishTimeout = 5 * time.Second
)

// Handler is invoked for every message received on a subscribed channel.
type Handler = func(ctx context.Context, message string, channel string)

// Bus holds the three Redis connections used by a service: one for general
// commands, one dedicated to publishing and one dedicated to subscribing.
type Bus struct {
	client     *redis.Client
	publisher  *redis.Client
	subscriber *redis.Client
	logger     *slog.Logger
}

// Connect establishes the three connections. A failed ping on any of them is
// returned to the caller; services treat that as fatal at startup.
func Connect(ctx context.Context, addr, password string, db int, logger *slog.Logger) (*Bus, error) {
	if logger != nil {
		logger = logger.With("component", "bus")
	}
	opts := func() *redis.Options {
		return &redis.Options{Addr: addr, Password: password, DB: db}
	}

	b := &Bus{logger: logger}
	for _, role := range []struct {
		name   string
		target **redis.Client
	}{
		{"client", &b.client},
		{"publisher", &b.publisher},
		{"subscriber", &b.subscriber},
	} {
		c := redis.NewClient(opts())
		pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		err := c.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			c.Close()
			b.Close()
			return nil, fmt.Errorf("connect redis %s: %w", role.name, err)
		}
		*role.target = c
	}
	if logger != nil {
		logger.Info("connected to redis", "addr", addr)
	}
	return b, nil
}

// Client exposes the general-command connection for co-located consumers such
// as the time-series store and the rate limiter.
func (b *Bus) Client() *redis.Client {
	return b.client
}

// Publish serialises message to a string (pass-through for strings) and sends
// it on channel. The returned count is the number of receivers notified;
// delivery is fire-and-forget.
func (b *Bus) Publish(ctx context.Context, channel string, message any) (int64, error) {
	var payload string
	switch m := message.(type) {
	case string:
		payload = m
	case []byte:
		payload = string(m)
	default:
		encoded, err := json.Marshal(m)
		if err != nil {
			return 0, fmt.Errorf("encode message: %w", err)
		}
		payload = string(encoded)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	receivers, err := b.publisher.Publish(ctx, channel, payload).Result()
	if err != nil {
		return 0, fmt.Errorf("publish on %s: %w", channel, err)
	}
	return receivers, nil
}

// Subscribe registers handler for every message published on channel after
// subscription time and starts the receive loop. The loop runs until ctx is
// cancelled; per-message handler panics are not recovered because handlers
// own their error handling.
func (b *Bus) Subscribe(ctx context.Context, channel string, handler Handler) error {
	sub := b.subscriber.Subscribe(ctx, channel)

	// Receive forces the SUBSCRIBE round trip so a broken connection
	// surfaces here instead of as a silent empty channel.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("subscribe to %s: %w", channel, err)
	}

	go func() {
		defer sub.Close()
		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				handler(ctx, msg.Payload, msg.Channel)
			}
		}
	}()
	return nil
}

// Close tears down all connections. Safe to call with partially established
// state.
func (b *Bus) Close() {
	for _, c := range []*redis.Client{b.subscriber, b.publisher, b.client} {
		if c != nil {
			_ = c.Close()
		}
	}
}
