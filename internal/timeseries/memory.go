package timeseries

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/krizhik-test/microservices-demo/internal/domain"
)

// MemoryStore is an in-process Store used by tests and local development. It
// mirrors the Redis backend's observable behavior: idempotent creation,
// BLOCK duplicate policy, retention trimming and epoch-aligned bucket
// aggregation.
type MemoryStore struct {
	mu     sync.RWMutex
	series map[string]*memorySeries
	now    func() time.Time
}

type memorySeries struct {
	labels    map[string]string
	retention time.Duration
	samples   []domain.Sample
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{series: make(map[string]*memorySeries), now: time.Now}
}

func (s *MemoryStore) EnsureSeries(_ context.Context, key string, labels map[string]string, retention time.Duration) error {
	if retention <= 0 {
		retention = DefaultRetention
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.series[key]; ok {
		// Label drift across calls is not detected or reconciled.
		return nil
	}
	copied := make(map[string]string, len(labels))
	for k, v := range labels {
		copied[k] = v
	}
	s.series[key] = &memorySeries{labels: copied, retention: retention}
	return nil
}

func (s *MemoryStore) AppendSample(_ context.Context, key string, value float64, timestamp int64) error {
	if timestamp <= 0 {
		timestamp = s.now().UnixMilli()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	series, ok := s.series[key]
	if !ok {
		return fmt.Errorf("append sample to %s: series does not exist", key)
	}
	idx := sort.Search(len(series.samples), func(i int) bool {
		return series.samples[i].Timestamp >= timestamp
	})
	if idx < len(series.samples) && series.samples[idx].Timestamp == timestamp {
		return fmt.Errorf("append sample to %s: duplicate timestamp %d", key, timestamp)
	}
	series.samples = append(series.samples, domain.Sample{})
	copy(series.samples[idx+1:], series.samples[idx:])
	series.samples[idx] = domain.Sample{Timestamp: timestamp, Value: value}
	series.expire()
	return nil
}

func (s *MemoryStore) RangeQuery(_ context.Context, key string, fromTs, toTs int64, agg *domain.Aggregation) ([]domain.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series, ok := s.series[key]
	if !ok {
		return nil, fmt.Errorf("range query %s: series does not exist", key)
	}
	var window []domain.Sample
	for _, sample := range series.samples {
		if sample.Timestamp >= fromTs && sample.Timestamp <= toTs {
			window = append(window, sample)
		}
	}
	if agg == nil || agg.BucketSizeMs <= 0 {
		return window, nil
	}
	return bucketize(window, agg.Kind, agg.BucketSizeMs), nil
}

func (s *MemoryStore) FindKeys(_ context.Context, pattern string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for key := range s.series {
		if globMatch(pattern, key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// expire drops samples older than the retention window relative to the most
// recent sample, matching the backend's retention semantics.
func (m *memorySeries) expire() {
	if m.retention <= 0 || len(m.samples) == 0 {
		return
	}
	cutoff := m.samples[len(m.samples)-1].Timestamp - m.retention.Milliseconds()
	idx := sort.Search(len(m.samples), func(i int) bool {
		return m.samples[i].Timestamp >= cutoff
	})
	if idx > 0 {
		m.samples = m.samples[idx:]
	}
}

// bucketize merges samples into fixed-size buckets aligned to bucketMs from
// epoch. Buckets are keyed by their start timestamp; empty buckets are not
// reported.
func bucketize(samples []domain.Sample, kind domain.AggregationKind, bucketMs int64) []domain.Sample {
	type bucket struct {
		sum   float64
		min   float64
		max   float64
		count int
	}
	buckets := make(map[int64]*bucket)
	for _, sample := range samples {
		start := sample.Timestamp - sample.Timestamp%bucketMs
		b, ok := buckets[start]
		if !ok {
			b = &bucket{min: sample.Value, max: sample.Value}
			buckets[start] = b
		}
		b.sum += sample.Value
		b.count++
		if sample.Value < b.min {
			b.min = sample.Value
		}
		if sample.Value > b.max {
			b.max = sample.Value
		}
	}

	starts := make([]int64, 0, len(buckets))
	for start := range buckets {
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	out := make([]domain.Sample, 0, len(starts))
	for _, start := range starts {
		b := buckets[start]
		var value float64
		switch kind {
		case domain.AggSum:
			value = b.sum
		case domain.AggMin:
			value = b.min
		case domain.AggMax:
			value = b.max
		case domain.AggCount:
			value = float64(b.count)
		default:
			value = b.sum / float64(b.count)
		}
		out = append(out, domain.Sample{Timestamp: start, Value: value})
	}
	return out
}

// globMatch reports whether key matches pattern, where '*' matches any run of
// characters including ':'.
func globMatch(pattern, key string) bool {
	if pattern == "" {
		return key == ""
	}
	if !strings.Contains(pattern, "*") {
		return pattern == key
	}
	parts := strings.Split(pattern, "*")
	if !strings.HasPrefix(key, parts[0]) {
		return false
	}
	key = key[len(parts[0]):]
	for i := 1; i < len(parts)-1; i++ {
		idx := strings.Index(key, parts[i])
		if idx < 0 {
			return false
		}
		key = key[idx+len(parts[i]):]
	}
	return strings.HasSuffix(key, parts[len(parts)-1])
}
