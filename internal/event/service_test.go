package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/krizhik-test/microservices-demo/internal/domain"
	"github.com/krizhik-test/microservices-demo/internal/repository"
)

func seededRepo(count int) *fakeEventRepo {
	repo := &fakeEventRepo{}
	for i := 0; i < count; i++ {
		status := domain.StatusSuccess
		if i%2 == 1 {
			status = domain.StatusError
		}
		rec := domain.EventRecord{
			Type:      domain.EventDataFetch,
			ID:        "evt",
			Timestamp: time.Now().UnixMilli(),
			Service:   domain.ServiceDataIngestion,
			Operation: domain.OpFetchData,
			Status:    status,
		}
		_ = repo.InsertEvent(context.Background(), &rec)
	}
	return repo
}

func TestListPaginates(t *testing.T) {
	svc := NewService(seededRepo(25))

	result, err := svc.List(context.Background(), ListQuery{Page: 2, Limit: 10})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(result.Data) != 10 {
		t.Fatalf("expected 10 records on page 2, got %d", len(result.Data))
	}
	if result.Pagination.Total != 25 || result.Pagination.Pages != 3 {
		t.Fatalf("unexpected pagination %+v", result.Pagination)
	}
}

func TestListDefaultsAndFilters(t *testing.T) {
	svc := NewService(seededRepo(25))

	result, err := svc.List(context.Background(), ListQuery{Status: domain.StatusError})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if result.Pagination.Page != 1 || result.Pagination.Limit != 10 {
		t.Fatalf("expected default pagination, got %+v", result.Pagination)
	}
	if result.Pagination.Total != 12 {
		t.Fatalf("expected 12 error events, got %d", result.Pagination.Total)
	}
	for _, rec := range result.Data {
		if rec.Status != domain.StatusError {
			t.Fatalf("filter leaked record with status %s", rec.Status)
		}
	}
}

func TestListRejectsInvalidParameters(t *testing.T) {
	svc := NewService(seededRepo(1))

	if _, err := svc.List(context.Background(), ListQuery{Page: -1}); !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery for negative page, got %v", err)
	}
	now := time.Now()
	if _, err := svc.List(context.Background(), ListQuery{From: now, To: now.Add(-time.Hour)}); !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery for inverted range, got %v", err)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	svc := NewService(seededRepo(1))

	if _, err := svc.Get(context.Background(), "rec-1"); err != nil {
		t.Fatalf("expected existing record, got %v", err)
	}
	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
