// Package wiki is a typed client for the MediaWiki-style search API the
// ingestion service fetches from.
package wiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	defaultTimeout  = 15 * time.Second
	retryInitial    = time.Second
	retryMaxTries   = 3
	retryMultiplier = 2
)

// SearchResult is one item of a search page.
type SearchResult struct {
	NS        int    `json:"ns"`
	Title     string `json:"title"`
	PageID    int64  `json:"pageid"`
	Size      int    `json:"size"`
	WordCount int    `json:"wordcount"`
	Snippet   string `json:"snippet"`
	Timestamp string `json:"timestamp"`
}

// SearchPage is one page of search results with the reported total.
type SearchPage struct {
	TotalHits int
	Results   []SearchResult
}

type searchResponse struct {
	Query struct {
		SearchInfo struct {
			TotalHits int `json:"totalhits"`
		} `json:"searchinfo"`
		Search []SearchResult `json:"search"`
	} `json:"query"`
}

// Client calls the external search API with a fixed timeout and bounded
// retry.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retryWait  time.Duration
}

// New constructs a Client for the given API base URL.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		retryWait:  retryInitial,
	}
}

// Search fetches one result page. Transient failures are retried up to 3
// times with exponential backoff doubling from 1s; client errors from the API
// are permanent.
func (c *Client) Search(ctx context.Context, query string, limit, offset int) (*SearchPage, error) {
	operation := func() (*SearchPage, error) {
		page, err := c.fetch(ctx, query, limit, offset)
		if err != nil {
			var status *statusError
			if errors.As(err, &status) && status.code >= 400 && status.code < 500 {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return page, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryWait
	bo.Multiplier = retryMultiplier

	page, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(retryMaxTries))
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	return page, nil
}

func (c *Client) fetch(ctx context.Context, query string, limit, offset int) (*SearchPage, error) {
	params := url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {query},
		"format":   {"json"},
		"srlimit":  {strconv.Itoa(limit)},
		"sroffset": {strconv.Itoa(offset)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{code: resp.StatusCode}
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return &SearchPage{
		TotalHits: decoded.Query.SearchInfo.TotalHits,
		Results:   decoded.Query.Search,
	}, nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("search api returned status %d", e.code)
}
