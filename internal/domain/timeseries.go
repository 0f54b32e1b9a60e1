package domain

import "time"

// SeriesType selects one of the two fixed time-series key schemas.
type SeriesType string

const (
	SeriesAPIRequest SeriesType = "api_request"
	SeriesEventTrace SeriesType = "event_trace"
)

// TraceKind distinguishes publish from consume samples in event-trace series.
type TraceKind string

const (
	TracePublish TraceKind = "publish"
	TraceConsume TraceKind = "consume"
)

// AggregationKind is a bucket reducer supported by the store.
type AggregationKind string

const (
	AggAvg   AggregationKind = "avg"
	AggSum   AggregationKind = "sum"
	AggMin   AggregationKind = "min"
	AggMax   AggregationKind = "max"
	AggCount AggregationKind = "count"
)

// Aggregation merges raw samples into fixed-size time buckets aligned to
// BucketSizeMs from epoch.
type Aggregation struct {
	Kind         AggregationKind
	BucketSizeMs int64
}

// Sample is one (timestamp, value) point of a series. Timestamps are
// milliseconds since epoch, values are execution times in milliseconds.
type Sample struct {
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
}

// SeriesResult is one matched series with labels reconstructed from its key,
// data ordered by timestamp ascending.
type SeriesResult struct {
	Key    string            `json:"key"`
	Labels map[string]string `json:"labels"`
	Data   []Sample          `json:"data"`
}

// SeriesQuery is a typed time-series query translated by the engine into
// key-pattern matching and per-key range retrieval.
type SeriesQuery struct {
	Type        SeriesType
	From        time.Time
	To          time.Time
	Aggregation AggregationKind
	Service     string
	Method      string
	Endpoint    string
	StatusCode  string
	EventType   string
}

// Statistics summarises sample values flattened across a set of series.
type Statistics struct {
	TotalDataPoints int     `json:"totalDataPoints"`
	Min             float64 `json:"min"`
	Max             float64 `json:"max"`
	Average         float64 `json:"average"`
	StdDev          float64 `json:"stdDev"`
}
