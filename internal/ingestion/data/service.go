// Package data implements the paginated fetch pipeline of the ingestion
// service: external search results are written to a JSON artifact, batch
// inserted into the document store and announced on the events channel.
package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/krizhik-test/microservices-demo/internal/domain"
	"github.com/krizhik-test/microservices-demo/internal/ingestion/wiki"
	"github.com/krizhik-test/microservices-demo/internal/repository"
)

const (
	maxResultsPerRequest = 500
	maxTotalResults      = 10000
	defaultFetchLimit    = 100
	pageDelay            = 100 * time.Millisecond
)

var (
	// ErrNotFound indicates the named download artifact does not exist.
	ErrNotFound = errors.New("data: file not found")
	// ErrInvalidFile rejects deletion of anything but JSON artifacts.
	ErrInvalidFile = errors.New("data: only JSON files can be deleted")
)

// Searcher is the external search API contract.
type Searcher interface {
	Search(ctx context.Context, query string, limit, offset int) (*wiki.SearchPage, error)
}

// EventPublisher emits operation events.
type EventPublisher interface {
	Publish(ctx context.Context, eventType domain.EventType, partial domain.EventPartial) (string, error)
}

// FetchResult describes one completed fetch.
type FetchResult struct {
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	Path      string    `json:"path"`
	Count     int       `json:"count"`
	TotalHits int       `json:"totalHits"`
	Timestamp time.Time `json:"timestamp"`
}

// FileInfo describes one download artifact.
type FileInfo struct {
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// Service coordinates fetching, artifact writing and document persistence.
type Service struct {
	api          Searcher
	docs         repository.DocumentRepository
	events       EventPublisher
	downloadsDir string
	logger       *slog.Logger
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration)
}

// New constructs a Service writing artifacts under downloadsDir.
func New(api Searcher, docs repository.DocumentRepository, events EventPublisher, downloadsDir string, logger *slog.Logger) *Service {
	if logger != nil {
		logger = logger.With("component", "data_service")
	}
	return &Service{
		api:          api,
		docs:         docs,
		events:       events,
		downloadsDir: downloadsDir,
		logger:       logger,
		now:          time.Now,
		sleep: func(ctx context.Context, d time.Duration) {
			select {
			case <-ctx.Done():
			case <-time.After(d):
			}
		},
	}
}

// Fetch pulls up to limit results for query from the external API, writes the
// artifact, stores the documents and publishes the outcome event. The fetch
// error is returned after a best-effort error event.
func (s *Service) Fetch(ctx context.Context, query string, limit int, filename string) (*FetchResult, error) {
	start := s.now()

	result, err := s.fetch(ctx, query, limit, filename)
	if err != nil {
		s.emitBestEffort(ctx, domain.EventDataFetch, domain.EventPartial{
			Operation: domain.OpFetchData,
			Status:    domain.StatusError,
			Data:      map[string]any{"query": query, "limit": limit, "error": err.Error()},
			Metadata:  executionMeta(start, s.now()),
		})
		return nil, err
	}

	if _, err := s.events.Publish(ctx, domain.EventDataFetch, domain.EventPartial{
		Operation: domain.OpFetchData,
		Status:    domain.StatusSuccess,
		Data: map[string]any{
			"query":    query,
			"limit":    limit,
			"filename": result.Filename,
			"size":     result.Size,
		},
		Metadata: executionMeta(start, s.now()),
	}); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) fetch(ctx context.Context, query string, limit int, filename string) (*FetchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("data: query is required")
	}
	if limit <= 0 {
		limit = defaultFetchLimit
	}
	if limit > maxTotalResults {
		limit = maxTotalResults
	}

	outputFilename := filename
	if outputFilename == "" {
		outputFilename = strings.ReplaceAll(strings.TrimSpace(query), " ", "-")
	}
	outputFilename = fmt.Sprintf("%s-%s.json", strings.TrimSuffix(outputFilename, ".json"), uuid.NewString()[:8])

	if err := os.MkdirAll(s.downloadsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create downloads dir: %w", err)
	}

	var (
		results   []wiki.SearchResult
		totalHits int
	)
	for offset := 0; len(results) < limit; offset += maxResultsPerRequest {
		pageLimit := limit - len(results)
		if pageLimit > maxResultsPerRequest {
			pageLimit = maxResultsPerRequest
		}

		page, err := s.api.Search(ctx, query, pageLimit, offset)
		if err != nil {
			return nil, err
		}
		if offset == 0 {
			totalHits = page.TotalHits
		}
		results = append(results, page.Results...)
		if len(page.Results) < pageLimit {
			break
		}
		if len(results) < limit {
			// Keep a respectful distance from the API's rate limits.
			s.sleep(ctx, pageDelay)
		}
	}

	path := filepath.Join(s.downloadsDir, outputFilename)
	if err := s.writeArtifact(path, query, limit, totalHits, results); err != nil {
		return nil, err
	}

	docs := make([]domain.Document, 0, len(results))
	fetchedAt := s.now().UTC()
	for _, item := range results {
		raw, err := json.Marshal(item)
		if err != nil {
			continue
		}
		docs = append(docs, domain.Document{
			PageID:    item.PageID,
			Title:     item.Title,
			Snippet:   item.Snippet,
			Raw:       raw,
			FetchedAt: fetchedAt,
		})
	}
	if _, err := s.docs.InsertDocuments(ctx, docs); err != nil {
		return nil, fmt.Errorf("store documents: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat artifact: %w", err)
	}
	return &FetchResult{
		Filename:  outputFilename,
		Size:      info.Size(),
		Path:      path,
		Count:     len(results),
		TotalHits: totalHits,
		Timestamp: fetchedAt,
	}, nil
}

type artifact struct {
	Query struct {
		SearchInfo struct {
			TotalHits int `json:"totalhits"`
		} `json:"searchinfo"`
		Search []wiki.SearchResult `json:"search"`
	} `json:"query"`
	Meta struct {
		OriginalQuery      string `json:"originalQuery"`
		RequestedLimit     int    `json:"requestedLimit"`
		ActualResultsCount int    `json:"actualResultsCount"`
		Timestamp          string `json:"timestamp"`
	} `json:"_meta"`
}

func (s *Service) writeArtifact(path, query string, limit, totalHits int, results []wiki.SearchResult) error {
	var doc artifact
	doc.Query.SearchInfo.TotalHits = totalHits
	doc.Query.Search = results
	doc.Meta.OriginalQuery = query
	doc.Meta.RequestedLimit = limit
	doc.Meta.ActualResultsCount = len(results)
	doc.Meta.Timestamp = s.now().UTC().Format(time.RFC3339)

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

// ListFiles enumerates JSON artifacts in the downloads directory.
func (s *Service) ListFiles() ([]FileInfo, error) {
	entries, err := os.ReadDir(s.downloadsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read downloads dir: %w", err)
	}

	var files []FileInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Filename:  entry.Name(),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}
	return files, nil
}

// DeleteFile removes one downloaded artifact and publishes the outcome.
func (s *Service) DeleteFile(ctx context.Context, filename string) error {
	start := s.now()
	err := s.deleteFile(filename)
	status := domain.StatusSuccess
	payload := map[string]any{"filename": filename}
	if err != nil {
		status = domain.StatusError
		payload["error"] = err.Error()
	}
	s.emitBestEffort(ctx, domain.EventDataDelete, domain.EventPartial{
		Operation: domain.OpDeleteDownloadedFile,
		Status:    status,
		Data:      payload,
		Metadata:  executionMeta(start, s.now()),
	})
	return err
}

func (s *Service) deleteFile(filename string) error {
	filename = filepath.Base(filename)
	if !strings.HasSuffix(filename, ".json") {
		return ErrInvalidFile
	}
	path := filepath.Join(s.downloadsDir, filename)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, filename)
		}
		return err
	}
	return os.Remove(path)
}

// DeleteAllFiles removes every JSON artifact and publishes the outcome with
// the deleted count.
func (s *Service) DeleteAllFiles(ctx context.Context) (int, error) {
	start := s.now()

	files, err := s.ListFiles()
	var count int
	if err == nil {
		for _, file := range files {
			if removeErr := os.Remove(filepath.Join(s.downloadsDir, file.Filename)); removeErr == nil {
				count++
			} else if err == nil {
				err = removeErr
			}
		}
	}

	status := domain.StatusSuccess
	payload := map[string]any{"count": count}
	if err != nil {
		status = domain.StatusError
		payload["error"] = err.Error()
	}
	s.emitBestEffort(ctx, domain.EventDataDelete, domain.EventPartial{
		Operation: domain.OpDeleteAllDownloadedFiles,
		Status:    status,
		Data:      payload,
		Metadata:  executionMeta(start, s.now()),
	})
	return count, err
}

func (s *Service) emitBestEffort(ctx context.Context, eventType domain.EventType, partial domain.EventPartial) {
	if _, err := s.events.Publish(ctx, eventType, partial); err != nil && s.logger != nil {
		s.logger.Warn("event publish failed", "operation", partial.Operation, "error", err)
	}
}

func executionMeta(start, end time.Time) map[string]any {
	return map[string]any{"executionTime": end.Sub(start).Milliseconds()}
}
