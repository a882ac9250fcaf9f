package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRecordNotFound is returned when no record exists for the requested event ID
	ErrRecordNotFound = errors.New("record not found")
	// ErrStoreClosed is returned when operating on a store after Close
	ErrStoreClosed = errors.New("store is closed")
	// ErrMissingEventID is returned when a record has no event ID
	ErrMissingEventID = errors.New("event_id is required")
)

// Record is the persisted form of a processed event. Rules are stored as
// records whose EventID is the rule ID and whose Payload is the canonical
// rule document.
type Record struct {
	EventID   string                 `json:"event_id"`
	EventType string                 `json:"event_type"`
	Timestamp string                 `json:"timestamp"`
	Source    string                 `json:"source"`
	TenantID  string                 `json:"tenant_id"`
	Payload   map[string]interface{} `json:"payload"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
	CreatedAt string                 `json:"created_at"`
	UpdatedAt string                 `json:"updated_at"`
}

// Filter selects records in Query calls. Zero-value fields match
// everything. StartTime and EndTime bound the record timestamp
// inclusively and compare as strings, so they are expected in the stored
// RFC 3339 UTC form. Limit caps the result count, zero meaning unbounded.
type Filter struct {
	EventType string
	Source    string
	TenantID  string
	StartTime string
	EndTime   string
	Limit     int
}

func (f Filter) matches(record *Record) bool {
	if f.EventType != "" && record.EventType != f.EventType {
		return false
	}
	if f.Source != "" && record.Source != f.Source {
		return false
	}
	if f.TenantID != "" && record.TenantID != f.TenantID {
		return false
	}
	if f.StartTime != "" && record.Timestamp < f.StartTime {
		return false
	}
	if f.EndTime != "" && record.Timestamp > f.EndTime {
		return false
	}
	return true
}

// MetadataStore persists event metadata records.
//
// Put replaces any existing record with the same event ID wholesale and
// returns the ID. Update applies a partial document onto an existing
// record, skipping the immutable event_id and created_at fields, and
// reports whether anything was written; there is no transactional
// read-modify-write guarantee. Query returns records newest first.
type MetadataStore interface {
	Put(ctx context.Context, record *Record) (string, error)
	PutBatch(ctx context.Context, records []*Record) ([]string, error)
	Get(ctx context.Context, eventID string) (*Record, error)
	Update(ctx context.Context, eventID string, partial map[string]interface{}) (bool, error)
	Delete(ctx context.Context, eventID string) (bool, error)
	Query(ctx context.Context, filter Filter) ([]*Record, error)
	Ping(ctx context.Context) error
	Close() error
}

// normalize applies storage defaults and stamps bookkeeping timestamps
// before a record is written
func normalize(record *Record) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if record.EventType == "" {
		record.EventType = "unknown"
	}
	if record.Source == "" {
		record.Source = "unknown"
	}
	if record.TenantID == "" {
		record.TenantID = "default"
	}
	if record.Timestamp == "" {
		record.Timestamp = now
	}
	if record.CreatedAt == "" {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
}

// applyPartial copies updatable fields from a partial document onto a
// record. The immutable event_id and created_at are skipped, as is any
// key the record has no field for.
func applyPartial(record *Record, partial map[string]interface{}) {
	for key, value := range partial {
		switch key {
		case "event_type":
			if s, ok := value.(string); ok {
				record.EventType = s
			}
		case "timestamp":
			if s, ok := value.(string); ok {
				record.Timestamp = s
			}
		case "source":
			if s, ok := value.(string); ok {
				record.Source = s
			}
		case "tenant_id":
			if s, ok := value.(string); ok {
				record.TenantID = s
			}
		case "payload":
			if m, ok := value.(map[string]interface{}); ok {
				record.Payload = m
			}
		case "metadata":
			if m := toStringMap(value); m != nil {
				record.Metadata = m
			}
		}
	}
}

// toStringMap accepts both the typed and the JSON-decoded metadata shape
func toStringMap(value interface{}) map[string]string {
	switch m := value.(type) {
	case map[string]string:
		return m
	case map[string]interface{}:
		out := make(map[string]string, len(m))
		for k, v := range m {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
		return out
	}
	return nil
}

// clone guards stored records against callers mutating shared maps
func clone(record *Record) *Record {
	copied := *record
	if record.Payload != nil {
		copied.Payload = make(map[string]interface{}, len(record.Payload))
		for k, v := range record.Payload {
			copied.Payload[k] = v
		}
	}
	if record.Metadata != nil {
		copied.Metadata = make(map[string]string, len(record.Metadata))
		for k, v := range record.Metadata {
			copied.Metadata[k] = v
		}
	}
	return &copied
}
