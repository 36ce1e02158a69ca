// Package jsonbackend appends audit records to a newline-delimited JSON file.
package jsonbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/FranksOps/searchmcp/internal/storage"
)

var _ storage.Backend = (*jsonBackend)(nil)

// line is the on-disk shape of one record.
type line struct {
	ID           string    `json:"id"`
	CallID       string    `json:"call_id,omitempty"`
	Tool         string    `json:"tool"`
	URL          string    `json:"url"`
	Method       string    `json:"method"`
	StatusCode   int       `json:"status_code,omitempty"`
	Bytes        int64     `json:"bytes,omitempty"`
	DurationMS   float64   `json:"duration_ms"`
	Proxy        string    `json:"proxy,omitempty"`
	DetectedBot  bool      `json:"detected_bot,omitempty"`
	DetectionSrc string    `json:"detection_src,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	Error        string    `json:"error,omitempty"`
}

func toLine(r *storage.RequestRecord) line {
	return line{
		ID:           r.ID,
		CallID:       r.CallID,
		Tool:         r.Tool,
		URL:          r.URL,
		Method:       r.Method,
		StatusCode:   r.StatusCode,
		Bytes:        r.Bytes,
		DurationMS:   float64(r.Duration) / float64(time.Millisecond),
		Proxy:        r.Proxy,
		DetectedBot:  r.DetectedBot,
		DetectionSrc: r.DetectionSrc,
		CreatedAt:    r.CreatedAt,
		Error:        r.Error,
	}
}

func (l line) record() *storage.RequestRecord {
	return &storage.RequestRecord{
		ID:           l.ID,
		CallID:       l.CallID,
		Tool:         l.Tool,
		URL:          l.URL,
		Method:       l.Method,
		StatusCode:   l.StatusCode,
		Bytes:        l.Bytes,
		Duration:     time.Duration(l.DurationMS * float64(time.Millisecond)),
		Proxy:        l.Proxy,
		DetectedBot:  l.DetectedBot,
		DetectionSrc: l.DetectionSrc,
		CreatedAt:    l.CreatedAt,
		Error:        l.Error,
	}
}

// jsonBackend is an append-only NDJSON audit log. Queries scan the whole file.
type jsonBackend struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// New opens or creates filePath for appending.
func New(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("jsonbackend: %w", err)
	}
	return &jsonBackend{file: f, enc: json.NewEncoder(f)}, nil
}

// Save appends rec as a single line.
func (b *jsonBackend) Save(_ context.Context, rec *storage.RequestRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.enc.Encode(toLine(rec)); err != nil {
		return fmt.Errorf("jsonbackend: %w", err)
	}
	return nil
}

// Query returns matching records, newest first.
func (b *jsonBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.RequestRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("jsonbackend: %w", err)
	}
	// O_APPEND writes ignore the offset, but leave it at the end anyway.
	defer func() { _, _ = b.file.Seek(0, io.SeekEnd) }()

	matched := []*storage.RequestRecord{}
	dec := json.NewDecoder(b.file)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var l line
		err := dec.Decode(&l)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("jsonbackend: decoding record: %w", err)
		}
		if r := l.record(); filter.Matches(r) {
			matched = append(matched, r)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.Offset >= len(matched) {
		return []*storage.RequestRecord{}, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// Close closes the underlying file.
func (b *jsonBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
