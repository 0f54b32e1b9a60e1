package repository

import (
	"context"

	"github.com/krizhik-test/microservices-demo/internal/domain"
)

// EventRepository persists consumed event records for the logging service.
// Records are created once and never updated.
type EventRepository interface {
	InsertEvent(ctx context.Context, record *domain.EventRecord) error
	FindEvents(ctx context.Context, filter domain.EventFilter, skip, limit int) ([]domain.EventRecord, error)
	GetEventByID(ctx context.Context, recordID string) (*domain.EventRecord, error)
	CountEvents(ctx context.Context, filter domain.EventFilter) (int, error)
}

// DocumentRepository stores fetched search result items for the ingestion
// service.
type DocumentRepository interface {
	InsertDocuments(ctx context.Context, docs []domain.Document) (int64, error)
	FindDocuments(ctx context.Context, criteria domain.DocumentCriteria, skip, limit int) ([]domain.Document, error)
	CountDocuments(ctx context.Context, criteria domain.DocumentCriteria) (int, error)
}
