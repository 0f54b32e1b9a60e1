package event

import (
	"context"
	"errors"
	"time"

	"github.com/krizhik-test/microservices-demo/internal/domain"
	"github.com/krizhik-test/microservices-demo/internal/repository"
)

const (
	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 100
)

// ErrInvalidQuery rejects caller-supplied parameters before any backend call.
var ErrInvalidQuery = errors.New("event: invalid query parameters")

// ListQuery filters stored-event listings.
type ListQuery struct {
	Type      domain.EventType
	Operation domain.OperationType
	Status    domain.EventStatus
	From      time.Time
	To        time.Time
	Page      int
	Limit     int
}

// ListResult is one page of stored events.
type ListResult struct {
	Data       []domain.EventRecord `json:"data"`
	Pagination domain.Pagination    `json:"pagination"`
}

// Service answers queries over persisted event records.
type Service struct {
	repo repository.EventRepository
}

// NewService constructs a Service.
func NewService(repo repository.EventRepository) Service {
	return Service{repo: repo}
}

// List returns a filtered, paginated page of stored events, newest first.
func (s Service) List(ctx context.Context, query ListQuery) (*ListResult, error) {
	if query.Page < 0 || query.Limit < 0 {
		return nil, ErrInvalidQuery
	}
	if !query.From.IsZero() && !query.To.IsZero() && query.To.Before(query.From) {
		return nil, ErrInvalidQuery
	}
	page := query.Page
	if page == 0 {
		page = defaultPage
	}
	limit := query.Limit
	if limit == 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	filter := domain.EventFilter{
		Type:      query.Type,
		Operation: query.Operation,
		Status:    query.Status,
	}
	if !query.From.IsZero() {
		filter.FromTs = query.From.UnixMilli()
	}
	if !query.To.IsZero() {
		filter.ToTs = query.To.UnixMilli()
	}

	skip := (page - 1) * limit
	data, err := s.repo.FindEvents(ctx, filter, skip, limit)
	if err != nil {
		return nil, err
	}
	total, err := s.repo.CountEvents(ctx, filter)
	if err != nil {
		return nil, err
	}

	pages := total / limit
	if total%limit != 0 {
		pages++
	}
	return &ListResult{
		Data: data,
		Pagination: domain.Pagination{
			Total: total,
			Page:  page,
			Limit: limit,
			Pages: pages,
		},
	}, nil
}

// Get fetches one stored event by its record id. A miss surfaces as
// repository.ErrNotFound.
func (s Service) Get(ctx context.Context, recordID string) (*domain.EventRecord, error) {
	if recordID == "" {
		return nil, ErrInvalidQuery
	}
	return s.repo.GetEventByID(ctx, recordID)
}
