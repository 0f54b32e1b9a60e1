package search

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/krizhik-test/microservices-demo/internal/domain"
)

type fakeDocRepo struct {
	docs         []domain.Document
	lastCriteria domain.DocumentCriteria
	lastSkip     int
	lastLimit    int
	err          error
}

func (f *fakeDocRepo) InsertDocuments(context.Context, []domain.Document) (int64, error) {
	return 0, nil
}

func (f *fakeDocRepo) FindDocuments(_ context.Context, criteria domain.DocumentCriteria, skip, limit int) ([]domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastCriteria = criteria
	f.lastSkip = skip
	f.lastLimit = limit
	if skip >= len(f.docs) {
		return nil, nil
	}
	end := skip + limit
	if end > len(f.docs) {
		end = len(f.docs)
	}
	return f.docs[skip:end], nil
}

func (f *fakeDocRepo) CountDocuments(context.Context, domain.DocumentCriteria) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return len(f.docs), nil
}

type fakePublisher struct {
	events []domain.EventPartial
	types  []domain.EventType
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, eventType domain.EventType, partial domain.EventPartial) (string, error) {
	f.types = append(f.types, eventType)
	f.events = append(f.events, partial)
	return "evt-1", f.err
}

func seedDocs(n int) []domain.Document {
	docs := make([]domain.Document, n)
	for i := range docs {
		docs[i] = domain.Document{
			ID:    fmt.Sprintf("doc-%d", i+1),
			Title: fmt.Sprintf("Title %d", i+1),
		}
	}
	return docs
}

func TestSearchPaginates(t *testing.T) {
	repo := &fakeDocRepo{docs: seedDocs(25)}
	events := &fakePublisher{}
	svc := New(repo, events, nil)

	result, err := svc.Search(context.Background(), Query{Query: "title", Page: 2, Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if repo.lastSkip != 10 || repo.lastLimit != 10 {
		t.Errorf("skip/limit = %d/%d, want 10/10", repo.lastSkip, repo.lastLimit)
	}
	if len(result.Documents) != 10 {
		t.Errorf("got %d documents, want 10", len(result.Documents))
	}
	if result.Documents[0].ID != "doc-11" {
		t.Errorf("first document = %s, want doc-11", result.Documents[0].ID)
	}
	want := domain.Pagination{Total: 25, Page: 2, Limit: 10, Pages: 3}
	if result.Pagination != want {
		t.Errorf("pagination = %+v, want %+v", result.Pagination, want)
	}

	if len(events.events) != 1 {
		t.Fatalf("got %d events, want 1", len(events.events))
	}
	if events.types[0] != domain.EventDataSearch || events.events[0].Operation != domain.OpSearch {
		t.Errorf("unexpected event %v/%v", events.types[0], events.events[0].Operation)
	}
	if events.events[0].Status != domain.StatusSuccess {
		t.Errorf("event status = %v, want success", events.events[0].Status)
	}
}

func TestSearchDefaults(t *testing.T) {
	repo := &fakeDocRepo{docs: seedDocs(5)}
	svc := New(repo, &fakePublisher{}, nil)

	result, err := svc.Search(context.Background(), Query{Title: "Title 1"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if result.Pagination.Page != 1 || result.Pagination.Limit != defaultLimit {
		t.Errorf("pagination defaults = %+v", result.Pagination)
	}
	if repo.lastCriteria.Title != "Title 1" || repo.lastCriteria.Query != "" {
		t.Errorf("criteria = %+v", repo.lastCriteria)
	}
}

func TestSearchCapsLimit(t *testing.T) {
	repo := &fakeDocRepo{docs: seedDocs(2)}
	svc := New(repo, &fakePublisher{}, nil)

	if _, err := svc.Search(context.Background(), Query{Query: "x", Limit: 500}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if repo.lastLimit != maxLimit {
		t.Errorf("limit = %d, want %d", repo.lastLimit, maxLimit)
	}
}

func TestSearchRejectsEmptyCriteria(t *testing.T) {
	svc := New(&fakeDocRepo{}, &fakePublisher{}, nil)
	if _, err := svc.Search(context.Background(), Query{Query: "  "}); !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("err = %v, want ErrInvalidQuery", err)
	}
}

func TestSearchRejectsNegativePage(t *testing.T) {
	svc := New(&fakeDocRepo{}, &fakePublisher{}, nil)
	if _, err := svc.Search(context.Background(), Query{Query: "x", Page: -1}); !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("err = %v, want ErrInvalidQuery", err)
	}
}

func TestSearchPublishesErrorEvent(t *testing.T) {
	repo := &fakeDocRepo{err: errors.New("store down")}
	events := &fakePublisher{}
	svc := New(repo, events, nil)

	if _, err := svc.Search(context.Background(), Query{Query: "x"}); err == nil {
		t.Fatal("expected search error")
	}
	if len(events.events) != 1 || events.events[0].Status != domain.StatusError {
		t.Fatal("expected one error event")
	}
	if events.events[0].Data["error"] == nil {
		t.Error("error event missing error detail")
	}
}
