package domain

import "encoding/json"

// ServiceName identifies the origin service of an event.
type ServiceName string

const (
	ServiceDataIngestion ServiceName = "data_ingestion"
	ServiceLogging       ServiceName = "logging"
)

// EventType categorises events published on the bus.
type EventType string

const (
	EventDataFetch  EventType = "data_fetch"
	EventDataUpload EventType = "data_upload"
	EventDataSearch EventType = "data_search"
	EventDataDelete EventType = "data_delete"
	EventSystem     EventType = "system"
)

// OperationType names the specific operation an event describes.
type OperationType string

const (
	OpSearch                    OperationType = "search"
	OpFetchData                 OperationType = "fetch_data"
	OpUploadFile                OperationType = "upload_file"
	OpProcessFile               OperationType = "process_file"
	OpDeleteFile                OperationType = "delete_file"
	OpDeleteAllFiles            OperationType = "delete_all_files"
	OpDeleteDownloadedFile      OperationType = "delete_downloaded_file"
	OpDeleteAllDownloadedFiles OperationType = "delete_all_downloaded_files"
)

// EventStatus marks an event as the outcome of a successful or failed operation.
type EventStatus string

const (
	StatusSuccess EventStatus = "success"
	StatusError   EventStatus = "error"
)

// EventEnvelope is the immutable message unit published on the bus. ID and
// Timestamp are assigned by the publisher, never by the caller.
type EventEnvelope struct {
	ID        string         `json:"id"`
	Timestamp int64          `json:"timestamp"`
	Service   ServiceName    `json:"service"`
	Operation OperationType  `json:"operation"`
	Status    EventStatus    `json:"status"`
	Data      map[string]any `json:"data"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// EventMessage is the wire shape of a bus message: the envelope tagged with
// its event type.
type EventMessage struct {
	Type    EventType     `json:"type"`
	Payload EventEnvelope `json:"payload"`
}

// EventPartial carries the caller-supplied portion of an envelope. The
// publisher fills in id, timestamp and service.
type EventPartial struct {
	Operation OperationType
	Status    EventStatus
	Data      map[string]any
	Metadata  map[string]any
}

// EventRecord is the persisted form of a consumed bus message. RecordID is
// assigned by the store and is distinct from the envelope id.
type EventRecord struct {
	RecordID  string          `json:"recordId"`
	Type      EventType       `json:"type"`
	ID        string          `json:"id"`
	Timestamp int64           `json:"timestamp"`
	Service   ServiceName     `json:"service"`
	Operation OperationType   `json:"operation"`
	Status    EventStatus     `json:"status"`
	Data      json.RawMessage `json:"data"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// EventFilter narrows stored-event queries.
type EventFilter struct {
	Type      EventType
	Operation OperationType
	Status    EventStatus
	FromTs    int64
	ToTs      int64
}

// Pagination describes a page of a listing result.
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}
