package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/krizhik-test/microservices-demo/internal/domain"
	"github.com/krizhik-test/microservices-demo/internal/event"
	"github.com/krizhik-test/microservices-demo/internal/report"
	"github.com/krizhik-test/microservices-demo/internal/repository"
	"github.com/krizhik-test/microservices-demo/internal/ws"
)

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitRead      = 120
	rateLimitReport    = 10
	rateLimitWebsocket = 30
	healthCheckTimeout = 2 * time.Second
)

// SeriesQuerier resolves typed time-series queries.
type SeriesQuerier interface {
	Query(ctx context.Context, query domain.SeriesQuery) ([]domain.SeriesResult, error)
}

// ReportGenerator produces downloadable report artifacts.
type ReportGenerator interface {
	Generate(ctx context.Context, query domain.SeriesQuery) (*report.Artifact, error)
}

// LoggingRouter wires the logging service endpoints: stored-event queries,
// time-series queries, report downloads and the live event stream.
type LoggingRouter struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	events   event.Service
	series   SeriesQuerier
	reports  ReportGenerator
	hub      *ws.Hub
	channel  string
	upgrader websocket.Upgrader
	inst     *instrumenter
	health   []HealthCheck
}

// HealthCheck probes one backing component.
type HealthCheck struct {
	Name  string
	Probe func(context.Context) error
}

// LoggingRouterConfig carries the logging router dependencies.
type LoggingRouterConfig struct {
	Logger   *slog.Logger
	Events   event.Service
	Series   SeriesQuerier
	Reports  ReportGenerator
	Hub      *ws.Hub
	Channel  string
	Recorder APIRecorder
	Limiter  RateLimiter
	Health   []HealthCheck
}

// NewLoggingRouter assembles the logging service routes.
func NewLoggingRouter(cfg LoggingRouterConfig) *LoggingRouter {
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = NewMemoryRateLimiter()
	}
	r := &LoggingRouter{
		mux:     http.NewServeMux(),
		logger:  cfg.Logger,
		events:  cfg.Events,
		series:  cfg.Series,
		reports: cfg.Reports,
		hub:     cfg.Hub,
		channel: cfg.Channel,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		inst: &instrumenter{
			logger:   cfg.Logger,
			metrics:  newMetrics("logging"),
			recorder: cfg.Recorder,
			service:  domain.ServiceLogging,
			limiter:  limiter,
		},
		health: cfg.Health,
	}
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *LoggingRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *LoggingRouter) Close() {
	if r.inst.limiter != nil {
		r.inst.limiter.Close()
	}
}

func (r *LoggingRouter) register() {
	r.mux.HandleFunc("/healthz", r.inst.handle("/healthz", 0, 0, r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/events", r.inst.handle("/events", rateLimitRead, rateWindowDefault, r.handleEvents))
	r.mux.HandleFunc("/events/", r.inst.handle("/events/{id}", rateLimitRead, rateWindowDefault, r.handleEventByID))
	r.mux.HandleFunc("/timeseries", r.inst.handle("/timeseries", rateLimitRead, rateWindowDefault, r.handleTimeseries))
	r.mux.HandleFunc("/reports/generate", r.inst.handle("/reports/generate", rateLimitReport, rateWindowDefault, r.handleReport))
	r.mux.HandleFunc("/ws/events", r.inst.handle("/ws/events", rateLimitWebsocket, rateWindowRealtime, r.handleEventsWS))
}

func (r *LoggingRouter) handleEvents(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	query := event.ListQuery{
		Type:      domain.EventType(req.URL.Query().Get("type")),
		Operation: domain.OperationType(req.URL.Query().Get("operation")),
		Status:    domain.EventStatus(req.URL.Query().Get("status")),
	}
	var err error
	if query.From, err = parseTimeParam(req, "from"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if query.To, err = parseTimeParam(req, "to"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if query.Page, err = parseIntParam(req, "page"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if query.Limit, err = parseIntParam(req, "limit"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := r.events.List(req.Context(), query)
	if err != nil {
		if errors.Is(err, event.ErrInvalidQuery) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (r *LoggingRouter) handleEventByID(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	recordID := strings.TrimPrefix(req.URL.Path, "/events/")
	if recordID == "" || strings.Contains(recordID, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	record, err := r.events.Get(req.Context(), recordID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, http.StatusNotFound, "event not found")
		case errors.Is(err, event.ErrInvalidQuery):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (r *LoggingRouter) handleTimeseries(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	query, err := seriesQueryFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	results, err := r.series.Query(req.Context(), query)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"series":     results,
		"statistics": report.ComputeStatistics(results),
	})
}

func (r *LoggingRouter) handleReport(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	query, err := seriesQueryFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	artifact, err := r.reports.Generate(req.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact.Data)
}

func (r *LoggingRouter) handleEventsWS(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(r.channel, client)
	go func() {
		defer func() {
			r.hub.Unregister(r.channel, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (r *LoggingRouter) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeHealth(w, req, r.health)
}

func writeHealth(w http.ResponseWriter, req *http.Request, checks []HealthCheck) {
	components := make(map[string]any)
	status := "ok"
	for _, check := range checks {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		err := check.Probe(ctx)
		cancel()
		if err != nil {
			status = "degraded"
			components[check.Name] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components[check.Name] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func seriesQueryFromRequest(req *http.Request) (domain.SeriesQuery, error) {
	params := req.URL.Query()
	query := domain.SeriesQuery{
		Type:        domain.SeriesType(params.Get("type")),
		Aggregation: domain.AggregationKind(params.Get("aggregation")),
		Service:     params.Get("service"),
		Method:      params.Get("method"),
		Endpoint:    params.Get("endpoint"),
		StatusCode:  params.Get("statusCode"),
		EventType:   params.Get("eventType"),
	}
	if query.Type == "" {
		query.Type = domain.SeriesAPIRequest
	}
	if query.Type != domain.SeriesAPIRequest && query.Type != domain.SeriesEventTrace {
		return domain.SeriesQuery{}, fmt.Errorf("unknown series type %q", query.Type)
	}
	switch query.Aggregation {
	case "", domain.AggAvg, domain.AggSum, domain.AggMin, domain.AggMax, domain.AggCount:
	default:
		return domain.SeriesQuery{}, fmt.Errorf("unknown aggregation %q", query.Aggregation)
	}

	var err error
	if query.From, err = parseTimeParam(req, "from"); err != nil {
		return domain.SeriesQuery{}, err
	}
	if query.To, err = parseTimeParam(req, "to"); err != nil {
		return domain.SeriesQuery{}, err
	}
	now := time.Now()
	if query.To.IsZero() {
		query.To = now
	}
	if query.From.IsZero() {
		query.From = query.To.Add(-24 * time.Hour)
	}
	return query, nil
}

// parseTimeParam accepts either epoch milliseconds or RFC 3339.
func parseTimeParam(req *http.Request, name string) (time.Time, error) {
	raw := strings.TrimSpace(req.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s parameter", name)
	}
	return parsed, nil
}

func parseIntParam(req *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(req.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter", name)
	}
	return value, nil
}
