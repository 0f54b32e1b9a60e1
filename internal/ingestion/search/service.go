// Package search exposes stored-document lookups for the ingestion service.
package search

import (
	"context"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/krizhik-test/microservices-demo/internal/domain"
	"github.com/krizhik-test/microservices-demo/internal/repository"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

// ErrInvalidQuery indicates out-of-range pagination or an empty criteria set.
var ErrInvalidQuery = errors.New("search: invalid query")

// EventPublisher emits operation events.
type EventPublisher interface {
	Publish(ctx context.Context, eventType domain.EventType, partial domain.EventPartial) (string, error)
}

// Query carries the caller-supplied search parameters.
type Query struct {
	Query   string
	Title   string
	Snippet string
	Page    int
	Limit   int
}

// Result is one page of matching documents.
type Result struct {
	Documents  []domain.Document `json:"documents"`
	Pagination domain.Pagination `json:"pagination"`
}

// Service runs criteria searches against the document store.
type Service struct {
	docs   repository.DocumentRepository
	events EventPublisher
	logger *slog.Logger
	now    func() time.Time
}

// New constructs a Service.
func New(docs repository.DocumentRepository, events EventPublisher, logger *slog.Logger) *Service {
	if logger != nil {
		logger = logger.With("component", "search_service")
	}
	return &Service{docs: docs, events: events, logger: logger, now: time.Now}
}

// Search finds documents matching the query and publishes the outcome event.
func (s *Service) Search(ctx context.Context, q Query) (*Result, error) {
	start := s.now()

	result, err := s.search(ctx, q)
	status := domain.StatusSuccess
	payload := map[string]any{
		"query":   q.Query,
		"title":   q.Title,
		"snippet": q.Snippet,
	}
	if err != nil {
		status = domain.StatusError
		payload["error"] = err.Error()
	} else {
		payload["total"] = result.Pagination.Total
	}
	if _, pubErr := s.events.Publish(ctx, domain.EventDataSearch, domain.EventPartial{
		Operation: domain.OpSearch,
		Status:    status,
		Data:      payload,
		Metadata:  map[string]any{"executionTime": s.now().Sub(start).Milliseconds()},
	}); pubErr != nil && s.logger != nil {
		s.logger.Warn("event publish failed", "operation", domain.OpSearch, "error", pubErr)
	}
	return result, err
}

func (s *Service) search(ctx context.Context, q Query) (*Result, error) {
	criteria := domain.DocumentCriteria{
		Query:   strings.TrimSpace(q.Query),
		Title:   strings.TrimSpace(q.Title),
		Snippet: strings.TrimSpace(q.Snippet),
	}
	if criteria.Query == "" && criteria.Title == "" && criteria.Snippet == "" {
		return nil, ErrInvalidQuery
	}
	if q.Page < 0 || q.Limit < 0 {
		return nil, ErrInvalidQuery
	}

	page := q.Page
	if page == 0 {
		page = 1
	}
	limit := q.Limit
	if limit == 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	skip := (page - 1) * limit

	docs, err := s.docs.FindDocuments(ctx, criteria, skip, limit)
	if err != nil {
		return nil, err
	}
	total, err := s.docs.CountDocuments(ctx, criteria)
	if err != nil {
		return nil, err
	}

	pages := 0
	if total > 0 {
		pages = (total + limit - 1) / limit
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	return &Result{
		Documents: docs,
		Pagination: domain.Pagination{
			Total: total,
			Page:  page,
			Limit: limit,
			Pages: pages,
		},
	}, nil
}
