// Package scholar enumerates Google Scholar publications lazily and enriches
// each one with a BibTeX citation.
package scholar

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// SortBy orders Scholar results.
type SortBy string

const (
	SortRelevance SortBy = "relevance"
	SortDate      SortBy = "date"
)

// ParseSortBy accepts "relevance" or "date"; empty means relevance.
func ParseSortBy(s string) (SortBy, error) {
	switch SortBy(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortRelevance:
		return SortRelevance, nil
	case SortDate:
		return SortDate, nil
	}
	return "", fmt.Errorf("scholar: sort_by must be %q or %q, got %q", SortRelevance, SortDate, s)
}

// Record is one publication. Empty fields are absent.
type Record struct {
	Title     string   `json:"title"`
	Authors   []string `json:"authors,omitempty"`
	Venue     string   `json:"venue,omitempty"`
	Year      string   `json:"year,omitempty"`
	PubURL    string   `json:"pub_url,omitempty"`
	Abstract  string   `json:"abstract,omitempty"`
	BibTeX    string   `json:"bibtex,omitempty"`
	ClusterID string   `json:"cluster_id,omitempty"`
}

// Query describes one Scholar search.
type Query struct {
	Text       string
	YearLow    *int
	YearHigh   *int
	SortBy     SortBy
	StartIndex int
}

// Iterator yields records on demand. Next returns io.EOF once exhausted.
type Iterator interface {
	Next(ctx context.Context) (Record, error)
}

// Provider is an academic search backend.
type Provider interface {
	// Search prepares an iterator; it may or may not touch the network.
	Search(ctx context.Context, q Query) (Iterator, error)
	// Citation returns the BibTeX entry for rec.
	Citation(ctx context.Context, rec Record) (string, error)
}

// ErrBlocked marks a response replaced by a bot challenge.
var ErrBlocked = errors.New("request blocked by bot challenge")

// ProviderError is a failure inside the Scholar backend.
type ProviderError struct {
	Op  string // "search", "page" or "citation"
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("scholar %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
