// Package postgres implements the persistence interfaces on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/krizhik-test/microservices-demo/internal/domain"
	"github.com/krizhik-test/microservices-demo/internal/repository"
)

const queryTimeout = 10 * time.Second

// Repository implements persistence interfaces on a pgx pool.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var (
	_ repository.EventRepository    = (*Repository)(nil)
	_ repository.DocumentRepository = (*Repository)(nil)
)

// InsertEvent stores one event record. The primary key is assigned by the
// store and written back to the record.
func (r *Repository) InsertEvent(ctx context.Context, record *domain.EventRecord) error {
	const query = `INSERT INTO events (type, event_id, event_timestamp, service, operation, status, data, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING record_id`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	row := r.pool.QueryRow(ctx, query,
		record.Type, record.ID, record.Timestamp, record.Service,
		record.Operation, record.Status, record.Data, record.Metadata)
	return row.Scan(&record.RecordID)
}

// FindEvents lists stored events matching filter, newest first.
func (r *Repository) FindEvents(ctx context.Context, filter domain.EventFilter, skip, limit int) ([]domain.EventRecord, error) {
	where, args := eventCriteria(filter)
	query := fmt.Sprintf(`SELECT record_id, type, event_id, event_timestamp, service, operation, status, data, metadata
		FROM events %s
		ORDER BY event_timestamp DESC
		LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	args = append(args, limit, skip)

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.EventRecord
	for rows.Next() {
		var rec domain.EventRecord
		if err := rows.Scan(&rec.RecordID, &rec.Type, &rec.ID, &rec.Timestamp,
			&rec.Service, &rec.Operation, &rec.Status, &rec.Data, &rec.Metadata); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetEventByID fetches a record by its store-assigned primary key.
func (r *Repository) GetEventByID(ctx context.Context, recordID string) (*domain.EventRecord, error) {
	const query = `SELECT record_id, type, event_id, event_timestamp, service, operation, status, data, metadata
		FROM events WHERE record_id = $1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	row := r.pool.QueryRow(ctx, query, recordID)
	var rec domain.EventRecord
	if err := row.Scan(&rec.RecordID, &rec.Type, &rec.ID, &rec.Timestamp,
		&rec.Service, &rec.Operation, &rec.Status, &rec.Data, &rec.Metadata); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// CountEvents counts stored events matching filter.
func (r *Repository) CountEvents(ctx context.Context, filter domain.EventFilter) (int, error) {
	where, args := eventCriteria(filter)
	query := "SELECT COUNT(1) FROM events " + where
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	var count int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func eventCriteria(filter domain.EventFilter) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.Type != "" {
		add("type = $%d", filter.Type)
	}
	if filter.Operation != "" {
		add("operation = $%d", filter.Operation)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.FromTs > 0 {
		add("event_timestamp >= $%d", filter.FromTs)
	}
	if filter.ToTs > 0 {
		add("event_timestamp <= $%d", filter.ToTs)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// InsertDocuments batch inserts fetched documents with CopyFrom.
func (r *Repository) InsertDocuments(ctx context.Context, docs []domain.Document) (int64, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	rows := make([][]any, 0, len(docs))
	for _, doc := range docs {
		fetchedAt := doc.FetchedAt
		if fetchedAt.IsZero() {
			fetchedAt = time.Now().UTC()
		}
		rows = append(rows, []any{doc.PageID, doc.Title, doc.Snippet, []byte(doc.Raw), fetchedAt})
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return r.pool.CopyFrom(ctx,
		pgx.Identifier{"documents"},
		[]string{"page_id", "title", "snippet", "raw", "fetched_at"},
		pgx.CopyFromRows(rows))
}

// FindDocuments lists documents matching criteria, newest fetch first.
func (r *Repository) FindDocuments(ctx context.Context, criteria domain.DocumentCriteria, skip, limit int) ([]domain.Document, error) {
	where, args := documentCriteria(criteria)
	query := fmt.Sprintf(`SELECT id, page_id, title, snippet, raw, fetched_at
		FROM documents %s
		ORDER BY fetched_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	args = append(args, limit, skip)

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var doc domain.Document
		if err := rows.Scan(&doc.ID, &doc.PageID, &doc.Title, &doc.Snippet, &doc.Raw, &doc.FetchedAt); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// CountDocuments counts documents matching criteria.
func (r *Repository) CountDocuments(ctx context.Context, criteria domain.DocumentCriteria) (int, error) {
	where, args := documentCriteria(criteria)
	query := "SELECT COUNT(1) FROM documents " + where
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	var count int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func documentCriteria(criteria domain.DocumentCriteria) (string, []any) {
	var clauses []string
	var args []any

	if criteria.Query != "" {
		args = append(args, "%"+criteria.Query+"%")
		clauses = append(clauses, fmt.Sprintf("(title ILIKE $%d OR snippet ILIKE $%d)", len(args), len(args)))
	}
	if criteria.Title != "" {
		args = append(args, "%"+criteria.Title+"%")
		clauses = append(clauses, fmt.Sprintf("title ILIKE $%d", len(args)))
	}
	if criteria.Snippet != "" {
		args = append(args, "%"+criteria.Snippet+"%")
		clauses = append(clauses, fmt.Sprintf("snippet ILIKE $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}
