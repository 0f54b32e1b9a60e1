package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"log/slog"

	"github.com/krizhik-test/microservices-demo/internal/domain"
	"github.com/krizhik-test/microservices-demo/internal/event"
	"github.com/krizhik-test/microservices-demo/internal/report"
	"github.com/krizhik-test/microservices-demo/internal/repository"
	"github.com/krizhik-test/microservices-demo/internal/ws"
)

type eventRepoStub struct {
	records []domain.EventRecord
	err     error
}

func (s *eventRepoStub) InsertEvent(context.Context, *domain.EventRecord) error { return nil }

func (s *eventRepoStub) FindEvents(_ context.Context, _ domain.EventFilter, skip, limit int) ([]domain.EventRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	if skip >= len(s.records) {
		return nil, nil
	}
	end := skip + limit
	if end > len(s.records) {
		end = len(s.records)
	}
	return s.records[skip:end], nil
}

func (s *eventRepoStub) GetEventByID(_ context.Context, recordID string) (*domain.EventRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	for i := range s.records {
		if s.records[i].RecordID == recordID {
			return &s.records[i], nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *eventRepoStub) CountEvents(context.Context, domain.EventFilter) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	return len(s.records), nil
}

type seriesStub struct {
	results []domain.SeriesResult
	err     error
	last    domain.SeriesQuery
}

func (s *seriesStub) Query(_ context.Context, query domain.SeriesQuery) ([]domain.SeriesResult, error) {
	s.last = query
	return s.results, s.err
}

type reportStub struct {
	artifact *report.Artifact
	err      error
}

func (s *reportStub) Generate(context.Context, domain.SeriesQuery) (*report.Artifact, error) {
	return s.artifact, s.err
}

type recorderStub struct {
	samples []string
}

func (s *recorderStub) LogAPIRequest(_ context.Context, service domain.ServiceName, method, endpoint string, statusCode int, _ float64) {
	s.samples = append(s.samples, string(service)+" "+method+" "+endpoint)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestLoggingRouter(repo *eventRepoStub, series *seriesStub, reports *reportStub, recorder APIRecorder) *LoggingRouter {
	return NewLoggingRouter(LoggingRouterConfig{
		Logger:   discardLogger(),
		Events:   event.NewService(repo),
		Series:   series,
		Reports:  reports,
		Hub:      ws.NewHub(),
		Channel:  "events",
		Recorder: recorder,
	})
}

func TestListEventsEndpoint(t *testing.T) {
	repo := &eventRepoStub{records: []domain.EventRecord{
		{RecordID: "rec-1", Type: domain.EventDataFetch, Operation: domain.OpFetchData, Status: domain.StatusSuccess},
		{RecordID: "rec-2", Type: domain.EventDataSearch, Operation: domain.OpSearch, Status: domain.StatusError},
	}}
	router := newTestLoggingRouter(repo, &seriesStub{}, &reportStub{}, nil)
	defer router.Close()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events?limit=10", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body event.ListResult
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Data) != 2 || body.Pagination.Total != 2 {
		t.Errorf("unexpected page %+v", body.Pagination)
	}
}

func TestListEventsRejectsBadParams(t *testing.T) {
	router := newTestLoggingRouter(&eventRepoStub{}, &seriesStub{}, &reportStub{}, nil)
	defer router.Close()

	for _, target := range []string{"/events?page=abc", "/events?from=notatime", "/events?page=-1"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestGetEventByID(t *testing.T) {
	repo := &eventRepoStub{records: []domain.EventRecord{{RecordID: "rec-1"}}}
	router := newTestLoggingRouter(repo, &seriesStub{}, &reportStub{}, nil)
	defer router.Close()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/rec-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("miss status = %d, want 404", rec.Code)
	}
}

func TestTimeseriesEndpoint(t *testing.T) {
	series := &seriesStub{results: []domain.SeriesResult{{
		Key:    "api:data_ingestion:GET:/search:200",
		Labels: map[string]string{"service": "data_ingestion"},
		Data:   []domain.Sample{{Timestamp: 1, Value: 12.5}, {Timestamp: 2, Value: 7.5}},
	}}}
	router := newTestLoggingRouter(&eventRepoStub{}, series, &reportStub{}, nil)
	defer router.Close()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/timeseries?type=api_request&aggregation=avg", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if series.last.Type != domain.SeriesAPIRequest || series.last.Aggregation != domain.AggAvg {
		t.Errorf("query = %+v", series.last)
	}
	if series.last.From.IsZero() || series.last.To.IsZero() {
		t.Error("expected defaulted time range")
	}

	var body struct {
		Series     []domain.SeriesResult `json:"series"`
		Statistics domain.Statistics     `json:"statistics"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Series) != 1 {
		t.Fatalf("got %d series, want 1", len(body.Series))
	}
	if body.Statistics.TotalDataPoints != 2 || body.Statistics.Average != 10 {
		t.Errorf("statistics = %+v", body.Statistics)
	}
}

func TestTimeseriesRejectsUnknownType(t *testing.T) {
	router := newTestLoggingRouter(&eventRepoStub{}, &seriesStub{}, &reportStub{}, nil)
	defer router.Close()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/timeseries?type=bogus", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestReportEndpointStreamsPDF(t *testing.T) {
	reports := &reportStub{artifact: &report.Artifact{
		Data:     []byte("%PDF-1.4 fake"),
		Filename: "report-1700000000000.pdf",
	}}
	router := newTestLoggingRouter(&eventRepoStub{}, &seriesStub{}, reports, nil)
	defer router.Close()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/generate?type=api_request", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != report.ContentType {
		t.Errorf("Content-Type = %q", got)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, reports.artifact.Filename) {
		t.Errorf("Content-Disposition = %q", got)
	}
	if !strings.HasPrefix(rec.Body.String(), "%PDF") {
		t.Error("body is not a PDF stream")
	}
}

func TestReportEndpointFailure(t *testing.T) {
	reports := &reportStub{err: errors.New("render failed")}
	router := newTestLoggingRouter(&eventRepoStub{}, &seriesStub{}, reports, nil)
	defer router.Close()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/generate", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestLoggingRouterRecordsLatencySamples(t *testing.T) {
	recorder := &recorderStub{}
	router := newTestLoggingRouter(&eventRepoStub{}, &seriesStub{}, &reportStub{}, recorder)
	defer router.Close()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))

	if len(recorder.samples) != 1 {
		t.Fatalf("got %d samples, want 1", len(recorder.samples))
	}
	if recorder.samples[0] != "logging GET /events" {
		t.Errorf("sample = %q", recorder.samples[0])
	}
}

func TestHealthzDegraded(t *testing.T) {
	router := NewLoggingRouter(LoggingRouterConfig{
		Logger:  discardLogger(),
		Events:  event.NewService(&eventRepoStub{}),
		Series:  &seriesStub{},
		Reports: &reportStub{},
		Hub:     ws.NewHub(),
		Channel: "events",
		Health: []HealthCheck{
			{Name: "database", Probe: func(context.Context) error { return nil }},
			{Name: "redis", Probe: func(context.Context) error { return errors.New("down") }},
		},
	})
	defer router.Close()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var body struct {
		Status     string                    `json:"status"`
		Components map[string]map[string]any `json:"components"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "degraded" {
		t.Errorf("status = %q, want degraded", body.Status)
	}
	if body.Components["redis"]["status"] != "down" {
		t.Errorf("redis component = %+v", body.Components["redis"])
	}
}
