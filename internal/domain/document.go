package domain

import (
	"encoding/json"
	"time"
)

// Document is one stored search result item fetched from the external API.
type Document struct {
	ID        string          `json:"id"`
	PageID    int64           `json:"pageId"`
	Title     string          `json:"title"`
	Snippet   string          `json:"snippet"`
	Raw       json.RawMessage `json:"raw"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

// DocumentCriteria filters document searches. Query matches title or snippet;
// Title and Snippet match their field only. All matches are case-insensitive
// substring matches.
type DocumentCriteria struct {
	Query   string
	Title   string
	Snippet string
}
