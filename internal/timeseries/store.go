// Package timeseries implements the latency sample store and the typed query
// engine on top of Redis TimeSeries.
package timeseries

import (
	"context"
	"fmt"
	"strings"
	"time"

	"log/slog"

	redis "github.com/redis/go-redis/v9"

	"github.com/krizhik-test/microservices-demo/internal/domain"
)

// DefaultRetention bounds how long samples are kept before the store may
// expire them.
const DefaultRetention = 30 * 24 * time.Hour

const commandTimeout = 5 * time.Second

// Store is the sample storage contract shared by the Redis backend and the
// in-memory backend.
type Store interface {
	// EnsureSeries creates the series if needed. Creation is idempotent:
	// "already exists" is a no-op, even when labels differ from a prior call.
	EnsureSeries(ctx context.Context, key string, labels map[string]string, retention time.Duration) error
	// AppendSample appends one sample. A timestamp of zero means "now".
	AppendSample(ctx context.Context, key string, value float64, timestamp int64) error
	// RangeQuery returns samples within [fromTs, toTs] inclusive, bucketed by
	// agg when supplied, ordered by timestamp ascending.
	RangeQuery(ctx context.Context, key string, fromTs, toTs int64, agg *domain.Aggregation) ([]domain.Sample, error)
	// FindKeys returns all known series keys matching a glob pattern.
	FindKeys(ctx context.Context, pattern string) ([]string, error)
}

// RedisStore implements Store on Redis TimeSeries.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps an established Redis connection.
func NewRedisStore(client *redis.Client, logger *slog.Logger) *RedisStore {
	if logger != nil {
		logger = logger.With("component", "timeseries")
	}
	return &RedisStore{client: client, logger: logger}
}

func (s *RedisStore) EnsureSeries(ctx context.Context, key string, labels map[string]string, retention time.Duration) error {
	if retention <= 0 {
		retention = DefaultRetention
	}
	opts := &redis.TSOptions{
		Retention:       int(retention.Milliseconds()),
		Encoding:        "UNCOMPRESSED",
		DuplicatePolicy: "BLOCK",
	}
	if len(labels) > 0 {
		opts.Labels = labels
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	err := s.client.TSCreateWithArgs(ctx, key, opts).Err()
	if err != nil && strings.Contains(err.Error(), "already exists") {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create series %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) AppendSample(ctx context.Context, key string, value float64, timestamp int64) error {
	var ts any = timestamp
	if timestamp <= 0 {
		ts = "*"
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	if err := s.client.TSAdd(ctx, key, ts, value).Err(); err != nil {
		return fmt.Errorf("append sample to %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) RangeQuery(ctx context.Context, key string, fromTs, toTs int64, agg *domain.Aggregation) ([]domain.Sample, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var points []redis.TSTimestampValue
	var err error
	if agg != nil {
		opts := &redis.TSRangeOptions{
			Aggregator:     aggregator(agg.Kind),
			BucketDuration: int(agg.BucketSizeMs),
		}
		points, err = s.client.TSRangeWithArgs(ctx, key, int(fromTs), int(toTs), opts).Result()
	} else {
		points, err = s.client.TSRange(ctx, key, int(fromTs), int(toTs)).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("range query %s: %w", key, err)
	}

	samples := make([]domain.Sample, 0, len(points))
	for _, p := range points {
		samples = append(samples, domain.Sample{Timestamp: p.Timestamp, Value: p.Value})
	}
	return samples, nil
}

func (s *RedisStore) FindKeys(ctx context.Context, pattern string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	keys, err := s.client.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, fmt.Errorf("find keys %s: %w", pattern, err)
	}
	return keys, nil
}

func aggregator(kind domain.AggregationKind) redis.Aggregator {
	switch kind {
	case domain.AggSum:
		return redis.Sum
	case domain.AggMin:
		return redis.Min
	case domain.AggMax:
		return redis.Max
	case domain.AggCount:
		return redis.Count
	default:
		return redis.Avg
	}
}
