package timeseries

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/krizhik-test/microservices-demo/internal/domain"
)

type faultyStore struct {
	Store
	failKey string
}

func (s *faultyStore) RangeQuery(ctx context.Context, key string, fromTs, toTs int64, agg *domain.Aggregation) ([]domain.Sample, error) {
	if key == s.failKey {
		return nil, errors.New("backend unreachable")
	}
	return s.Store.RangeQuery(ctx, key, fromTs, toTs, agg)
}

func seedAPISeries(t *testing.T, store Store, key string, base time.Time, values []float64) {
	t.Helper()
	ctx := context.Background()
	if err := store.EnsureSeries(ctx, key, nil, 0); err != nil {
		t.Fatalf("create %s failed: %v", key, err)
	}
	for i, value := range values {
		ts := base.Add(time.Duration(i) * time.Minute).UnixMilli()
		if err := store.AppendSample(ctx, key, value, ts); err != nil {
			t.Fatalf("append to %s failed: %v", key, err)
		}
	}
}

func TestQueryReturnsMatchedSeries(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	seedAPISeries(t, store, "api:data_ingestion:GET:/search:200", base, []float64{10, 20, 30, 40, 50})

	engine := NewEngine(store, "events", nil)
	results, err := engine.Query(context.Background(), domain.SeriesQuery{
		Type:     domain.SeriesAPIRequest,
		From:     base,
		To:       base.Add(time.Hour),
		Service:  "data_ingestion",
		Endpoint: "/search",
	})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one series, got %d", len(results))
	}
	if len(results[0].Data) != 5 {
		t.Fatalf("expected 5 points, got %d", len(results[0].Data))
	}
	var sum float64
	for _, sample := range results[0].Data {
		sum += sample.Value
	}
	if sum != 150 {
		t.Fatalf("expected point sum 150, got %v", sum)
	}
	if results[0].Labels["endpoint"] != "/search" {
		t.Fatalf("unexpected labels %v", results[0].Labels)
	}
}

func TestQueryDefaultsToIngestionService(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	seedAPISeries(t, store, "api:data_ingestion:GET:/search:200", base, []float64{10})
	seedAPISeries(t, store, "api:logging:GET:/events:200", base, []float64{10})

	engine := NewEngine(store, "events", nil)
	results, err := engine.Query(context.Background(), domain.SeriesQuery{
		Type: domain.SeriesAPIRequest,
		From: base,
		To:   base.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected only the ingestion series, got %d", len(results))
	}
	if results[0].Labels["service"] != "data_ingestion" {
		t.Fatalf("unexpected service %s", results[0].Labels["service"])
	}
}

func TestQuerySkipsFailingSeries(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	seedAPISeries(t, store, "api:data_ingestion:GET:/search:200", base, []float64{10})
	seedAPISeries(t, store, "api:data_ingestion:POST:/data/fetch:200", base, []float64{20})
	seedAPISeries(t, store, "api:data_ingestion:GET:/data/files:200", base, []float64{30})

	engine := NewEngine(&faultyStore{Store: store, failKey: "api:data_ingestion:GET:/search:200"}, "events", nil)
	results, err := engine.Query(context.Background(), domain.SeriesQuery{
		Type:    domain.SeriesAPIRequest,
		From:    base,
		To:      base.Add(time.Hour),
		Service: "data_ingestion",
	})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected partial results for 2 series, got %d", len(results))
	}
	for _, result := range results {
		if result.Key == "api:data_ingestion:GET:/search:200" {
			t.Fatalf("failing series should have been skipped")
		}
	}
}

func TestQuerySkipsEmptySeries(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	seedAPISeries(t, store, "api:data_ingestion:GET:/search:200", base, []float64{10})
	if err := store.EnsureSeries(context.Background(), "api:data_ingestion:GET:/data/files:200", nil, 0); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	engine := NewEngine(store, "events", nil)
	results, err := engine.Query(context.Background(), domain.SeriesQuery{
		Type:    domain.SeriesAPIRequest,
		From:    base,
		To:      base.Add(time.Hour),
		Service: "data_ingestion",
	})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected the empty series to be skipped, got %d results", len(results))
	}
}

func TestQueryRejectsInvalidRange(t *testing.T) {
	engine := NewEngine(NewMemoryStore(), "events", nil)
	base := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

	_, err := engine.Query(context.Background(), domain.SeriesQuery{Type: domain.SeriesAPIRequest})
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange for zero bounds, got %v", err)
	}

	_, err = engine.Query(context.Background(), domain.SeriesQuery{
		Type: domain.SeriesAPIRequest,
		From: base,
		To:   base.Add(-time.Hour),
	})
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange for inverted bounds, got %v", err)
	}
}

func TestDefaultBucketSize(t *testing.T) {
	cases := []struct {
		span time.Duration
		want time.Duration
	}{
		{31 * oneDay, oneDay},
		{10 * oneDay, sixHours},
		{2 * oneDay, oneHour},
		{12 * time.Hour, fiveMinutes},
		{time.Hour, oneMinute},
		{time.Minute, oneMinute},
	}
	for _, tc := range cases {
		if got := defaultBucketSize(tc.span); got != tc.want {
			t.Fatalf("span %s: expected bucket %s, got %s", tc.span, tc.want, got)
		}
	}
}

func TestQueryAggregationUsesSpanScaledBuckets(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC).Truncate(oneMinute)
	key := "event:logging:consume:events"
	ctx := context.Background()
	if err := store.EnsureSeries(ctx, key, nil, 0); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	// Two samples inside one minute bucket, one in the next.
	for _, sample := range []domain.Sample{
		{Timestamp: base.UnixMilli(), Value: 10},
		{Timestamp: base.Add(30 * time.Second).UnixMilli(), Value: 20},
		{Timestamp: base.Add(90 * time.Second).UnixMilli(), Value: 30},
	} {
		if err := store.AppendSample(ctx, key, sample.Value, sample.Timestamp); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	engine := NewEngine(store, "events", nil)
	results, err := engine.Query(ctx, domain.SeriesQuery{
		Type:        domain.SeriesEventTrace,
		From:        base,
		To:          base.Add(time.Hour),
		Service:     "logging",
		Aggregation: domain.AggAvg,
	})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one series, got %d", len(results))
	}
	if len(results[0].Data) != 2 {
		t.Fatalf("expected 2 one-minute buckets, got %d", len(results[0].Data))
	}
	if results[0].Data[0].Value != 15 || results[0].Data[1].Value != 30 {
		t.Fatalf("unexpected bucket values %v", results[0].Data)
	}
}
