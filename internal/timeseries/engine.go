package timeseries

import (
	"context"
	"errors"
	"time"

	"log/slog"

	"github.com/krizhik-test/microservices-demo/internal/domain"
)

// Bucket thresholds: the default bucket size shrinks with the query span so a
// plotted series stays a bounded number of points regardless of range.
const (
	oneMinute   = time.Minute
	fiveMinutes = 5 * time.Minute
	oneHour     = time.Hour
	sixHours    = 6 * time.Hour
	oneDay      = 24 * time.Hour
	oneWeek     = 7 * oneDay
	oneMonth    = 30 * oneDay
)

// ErrInvalidRange rejects queries whose bounds are missing or inverted before
// any backend call is attempted.
var ErrInvalidRange = errors.New("timeseries: invalid query range")

// Engine translates typed series queries into key-pattern matching, per-key
// range retrieval, label reconstruction and bucketed aggregation.
type Engine struct {
	store   Store
	channel string
	logger  *slog.Logger
}

// NewEngine builds an Engine over a Store. channel is the event channel name
// pinned into event-trace patterns.
func NewEngine(store Store, channel string, logger *slog.Logger) *Engine {
	if logger != nil {
		logger = logger.With("component", "timeseries_engine")
	}
	return &Engine{store: store, channel: channel, logger: logger}
}

// Query resolves a typed query into matched series. A failing series during
// the multi-key scan is logged and skipped; the successfully retrieved subset
// is returned. Series with zero samples in range are omitted.
func (e *Engine) Query(ctx context.Context, query domain.SeriesQuery) ([]domain.SeriesResult, error) {
	if query.From.IsZero() || query.To.IsZero() || query.To.Before(query.From) {
		return nil, ErrInvalidRange
	}
	fromTs := query.From.UnixMilli()
	toTs := query.To.UnixMilli()

	pattern := BuildPattern(query.Type, e.filters(query))
	keys, err := e.store.FindKeys(ctx, pattern)
	if err != nil {
		return nil, err
	}

	var agg *domain.Aggregation
	if query.Aggregation != "" {
		agg = &domain.Aggregation{
			Kind:         query.Aggregation,
			BucketSizeMs: defaultBucketSize(time.Duration(toTs-fromTs) * time.Millisecond).Milliseconds(),
		}
	}

	results := make([]domain.SeriesResult, 0, len(keys))
	for _, key := range keys {
		samples, err := e.store.RangeQuery(ctx, key, fromTs, toTs, agg)
		if err != nil {
			if e.logger != nil {
				e.logger.Warn("series skipped during scan", "key", key, "error", err)
			}
			continue
		}
		if len(samples) == 0 {
			continue
		}
		results = append(results, domain.SeriesResult{
			Key:    key,
			Labels: ParseLabels(query.Type, key),
			Data:   samples,
		})
	}
	return results, nil
}

// filters maps query fields onto positional pattern components. When no
// service filter is supplied the ingestion service is assumed; the logging
// service was built against a single producer and downstream consumers may
// depend on that default.
func (e *Engine) filters(query domain.SeriesQuery) map[string]string {
	filters := map[string]string{}

	service := query.Service
	if service == "" {
		service = string(domain.ServiceDataIngestion)
	}
	filters["service"] = service

	switch query.Type {
	case domain.SeriesAPIRequest:
		if query.Method != "" {
			filters["method"] = query.Method
		}
		if query.Endpoint != "" {
			filters["endpoint"] = query.Endpoint
		}
		if query.StatusCode != "" {
			filters["statusCode"] = query.StatusCode
		}
	case domain.SeriesEventTrace:
		if query.EventType != "" {
			filters["eventType"] = query.EventType
		}
		filters["channel"] = e.channel
	}
	return filters
}

func defaultBucketSize(span time.Duration) time.Duration {
	switch {
	case span > oneMonth:
		return oneDay
	case span > oneWeek:
		return sixHours
	case span > oneDay:
		return oneHour
	case span > sixHours:
		return fiveMinutes
	default:
		return oneMinute
	}
}
