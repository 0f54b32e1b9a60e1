package wiki

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const samplePage = `{
	"query": {
		"searchinfo": {"totalhits": 42},
		"search": [
			{"ns": 0, "title": "Pizza", "pageid": 24768, "size": 1000, "wordcount": 150, "snippet": "a dish"},
			{"ns": 0, "title": "Pizza Margherita", "pageid": 24769, "size": 500, "wordcount": 80, "snippet": "a pizza"}
		]
	}
}`

func testClient(url string) *Client {
	c := New(url, 5*time.Second)
	c.retryWait = time.Millisecond
	return c
}

func TestSearchParsesPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("action") != "query" || q.Get("list") != "search" {
			t.Errorf("unexpected query params %v", q)
		}
		if q.Get("srsearch") != "pizza" || q.Get("srlimit") != "10" || q.Get("sroffset") != "20" {
			t.Errorf("unexpected search params %v", q)
		}
		fmt.Fprint(w, samplePage)
	}))
	defer srv.Close()

	page, err := testClient(srv.URL).Search(context.Background(), "pizza", 10, 20)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if page.TotalHits != 42 {
		t.Fatalf("expected 42 total hits, got %d", page.TotalHits)
	}
	if len(page.Results) != 2 || page.Results[0].Title != "Pizza" {
		t.Fatalf("unexpected results %+v", page.Results)
	}
}

func TestSearchRetriesTransientFailures(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, samplePage)
	}))
	defer srv.Close()

	page, err := testClient(srv.URL).Search(context.Background(), "pizza", 10, 0)
	if err != nil {
		t.Fatalf("expected retries to recover, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if page.TotalHits != 42 {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestSearchGivesUpAfterMaxTries(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).Search(context.Background(), "pizza", 10, 0); err == nil {
		t.Fatalf("expected failure after exhausting retries")
	}
	if calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", calls)
	}
}

func TestSearchClientErrorIsPermanent(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).Search(context.Background(), "pizza", 10, 0); err == nil {
		t.Fatalf("expected client error to surface")
	}
	if calls != 1 {
		t.Fatalf("client errors must not be retried, got %d attempts", calls)
	}
}
