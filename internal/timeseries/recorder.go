package timeseries

import (
	"context"

	"log/slog"

	"github.com/krizhik-test/microservices-demo/internal/domain"
)

// Recorder writes latency samples under the two fixed key schemas. It ensures
// the series exists before the first append so label metadata is associated
// with the key.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

// NewRecorder wraps a Store.
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if logger != nil {
		logger = logger.With("component", "timeseries_recorder")
	}
	return &Recorder{store: store, logger: logger}
}

// LogAPIRequest records one request latency sample under the API-latency
// schema. Errors are logged, not returned: request handling must not fail
// because a metrics write did.
func (r *Recorder) LogAPIRequest(ctx context.Context, service domain.ServiceName, method, endpoint string, statusCode int, executionMs float64) {
	key := APIRequestKey(service, method, endpoint, statusCode)
	labels := APIRequestLabels(service, method, endpoint, statusCode)

	if err := r.store.EnsureSeries(ctx, key, labels, DefaultRetention); err != nil {
		r.warn("ensure api series failed", key, err)
		return
	}
	if err := r.store.AppendSample(ctx, key, executionMs, 0); err != nil {
		r.warn("append api sample failed", key, err)
	}
}

// LogEventTrace records one publish/consume latency sample under the
// event-trace schema. The error is returned so publish-path callers can
// propagate it.
func (r *Recorder) LogEventTrace(ctx context.Context, service domain.ServiceName, kind domain.TraceKind, channel string, executionMs float64) error {
	key := EventTraceKey(service, kind, channel)
	labels := EventTraceLabels(service, kind, channel)

	if err := r.store.EnsureSeries(ctx, key, labels, DefaultRetention); err != nil {
		return err
	}
	return r.store.AppendSample(ctx, key, executionMs, 0)
}

func (r *Recorder) warn(msg, key string, err error) {
	if r.logger != nil {
		r.logger.Warn(msg, "key", key, "error", err)
	}
}
