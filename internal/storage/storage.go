package storage

import (
	"context"
	"time"
)

// RequestRecord is the audit entry for one outbound HTTP request made on
// behalf of a tool call.
type RequestRecord struct {
	ID           string
	CallID       string // tool call that issued the request
	Tool         string // "search", "fetch_content" or "scholar_search"
	URL          string
	Method       string
	StatusCode   int
	Bytes        int64
	Duration     time.Duration
	Proxy        string
	DetectedBot  bool
	DetectionSrc string // e.g. "Cloudflare", "DuckDuckGo", "Google"
	CreatedAt    time.Time
	Error        string // non-empty if the request failed
}

// Filter allows querying for specific RequestRecords.
type Filter struct {
	Tool        string
	URL         string
	DetectedBot *bool
	Since       *time.Time
	Limit       int
	Offset      int
}

// Matches reports whether r passes the field filters. Limit and Offset are
// left to the caller.
func (f Filter) Matches(r *RequestRecord) bool {
	if f.Tool != "" && r.Tool != f.Tool {
		return false
	}
	if f.URL != "" && r.URL != f.URL {
		return false
	}
	if f.DetectedBot != nil && r.DetectedBot != *f.DetectedBot {
		return false
	}
	if f.Since != nil && r.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

// Backend defines the interface for storing and querying request records.
type Backend interface {
	Save(ctx context.Context, rec *RequestRecord) error
	Query(ctx context.Context, filter Filter) ([]*RequestRecord, error)
	Close() error
}
