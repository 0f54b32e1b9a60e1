package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/krizhik-test/microservices-demo/internal/domain"
	"github.com/krizhik-test/microservices-demo/internal/ingestion/data"
	"github.com/krizhik-test/microservices-demo/internal/ingestion/search"
)

const (
	rateLimitFetch     = 10
	rateLimitFileOps   = 60
	rateLimitSearchOps = 120
)

// IngestionRouter wires the ingestion service endpoints: external data
// fetching, download management and stored-document search.
type IngestionRouter struct {
	mux    *http.ServeMux
	logger *slog.Logger
	data   *data.Service
	search *search.Service
	inst   *instrumenter
	health []HealthCheck
}

// IngestionRouterConfig carries the ingestion router dependencies.
type IngestionRouterConfig struct {
	Logger   *slog.Logger
	Data     *data.Service
	Search   *search.Service
	Recorder APIRecorder
	Limiter  RateLimiter
	Health   []HealthCheck
}

// NewIngestionRouter assembles the ingestion service routes.
func NewIngestionRouter(cfg IngestionRouterConfig) *IngestionRouter {
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = NewMemoryRateLimiter()
	}
	r := &IngestionRouter{
		mux:    http.NewServeMux(),
		logger: cfg.Logger,
		data:   cfg.Data,
		search: cfg.Search,
		inst: &instrumenter{
			logger:   cfg.Logger,
			metrics:  newMetrics("ingestion"),
			recorder: cfg.Recorder,
			service:  domain.ServiceDataIngestion,
			limiter:  limiter,
		},
		health: cfg.Health,
	}
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *IngestionRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *IngestionRouter) Close() {
	if r.inst.limiter != nil {
		r.inst.limiter.Close()
	}
}

func (r *IngestionRouter) register() {
	r.mux.HandleFunc("/healthz", r.inst.handle("/healthz", 0, 0, r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/data/fetch", r.inst.handle("/data/fetch", rateLimitFetch, rateWindowDefault, r.handleFetch))
	r.mux.HandleFunc("/data/files", r.inst.handle("/data/files", rateLimitFileOps, rateWindowDefault, r.handleFiles))
	r.mux.HandleFunc("/data/files/", r.inst.handle("/data/files/{filename}", rateLimitFileOps, rateWindowDefault, r.handleFileByName))
	r.mux.HandleFunc("/search", r.inst.handle("/search", rateLimitSearchOps, rateWindowDefault, r.handleSearch))
}

func (r *IngestionRouter) handleFetch(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var payload struct {
		Query    string `json:"query"`
		Limit    int    `json:"limit"`
		Filename string `json:"filename"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(payload.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	result, err := r.data.Fetch(req.Context(), payload.Query, payload.Limit, payload.Filename)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (r *IngestionRouter) handleFiles(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		files, err := r.data.ListFiles()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if files == nil {
			files = []data.FileInfo{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"files": files, "count": len(files)})
	case http.MethodDelete:
		count, err := r.data.DeleteAllFiles(req.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": count})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (r *IngestionRouter) handleFileByName(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	filename := strings.TrimPrefix(req.URL.Path, "/data/files/")
	if filename == "" || strings.Contains(filename, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err := r.data.DeleteFile(req.Context(), filename); err != nil {
		switch {
		case errors.Is(err, data.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, data.ErrInvalidFile):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": filename})
}

func (r *IngestionRouter) handleSearch(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	params := req.URL.Query()
	query := search.Query{
		Query:   params.Get("query"),
		Title:   params.Get("title"),
		Snippet: params.Get("snippet"),
	}
	var err error
	if query.Page, err = parseIntParam(req, "page"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if query.Limit, err = parseIntParam(req, "limit"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := r.search.Search(req.Context(), query)
	if err != nil {
		if errors.Is(err, search.ErrInvalidQuery) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (r *IngestionRouter) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeHealth(w, req, r.health)
}
