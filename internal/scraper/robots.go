package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

// DefaultRobotsTTL is how long a fetched robots.txt is trusted.
const DefaultRobotsTTL = 24 * time.Hour

type robotsEntry struct {
	data    *robotstxt.RobotsData // nil allows everything
	fetched time.Time
}

// RobotsTxtAuditor fetches, caches and enforces robots.txt per origin.
type RobotsTxtAuditor struct {
	fetcher *Fetcher
	logger  *slog.Logger
	ttl     time.Duration
	now     func() time.Time

	mu    sync.RWMutex
	cache map[string]robotsEntry
	group singleflight.Group
}

// NewRobotsTxtAuditor creates a new instance. Entries expire after
// DefaultRobotsTTL.
func NewRobotsTxtAuditor(fetcher *Fetcher, logger *slog.Logger) *RobotsTxtAuditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &RobotsTxtAuditor{
		fetcher: fetcher,
		logger:  logger,
		ttl:     DefaultRobotsTTL,
		now:     time.Now,
		cache:   make(map[string]robotsEntry),
	}
}

// IsAllowed determines if targetURL may be fetched by userAgent. A missing or
// unreachable robots.txt allows everything; a 5xx answer disallows it.
func (r *RobotsTxtAuditor) IsAllowed(ctx context.Context, targetURL string, userAgent string) (bool, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false, fmt.Errorf("scraper: invalid url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return false, fmt.Errorf("scraper: invalid url %q: missing scheme or host", targetURL)
	}

	data := r.lookup(ctx, u.Scheme+"://"+u.Host, userAgent)
	if data == nil {
		return true, nil
	}
	return data.TestAgent(u.EscapedPath(), userAgent), nil
}

func (r *RobotsTxtAuditor) lookup(ctx context.Context, origin, userAgent string) *robotstxt.RobotsData {
	r.mu.RLock()
	e, ok := r.cache[origin]
	r.mu.RUnlock()
	if ok && r.now().Sub(e.fetched) < r.ttl {
		return e.data
	}

	// Concurrent misses for one origin share a single request.
	v, _, _ := r.group.Do(origin, func() (any, error) {
		data := r.fetch(ctx, origin, userAgent)
		r.mu.Lock()
		r.cache[origin] = robotsEntry{data: data, fetched: r.now()}
		r.mu.Unlock()
		return data, nil
	})
	return v.(*robotstxt.RobotsData)
}

func (r *RobotsTxtAuditor) fetch(ctx context.Context, origin, userAgent string) *robotstxt.RobotsData {
	resp, err := r.fetcher.Do(ctx, Request{
		Tool:   "robots",
		URL:    origin + "/robots.txt",
		Header: http.Header{"User-Agent": {userAgent}},
	})
	if resp == nil {
		r.logger.Debug("robots.txt unreachable, allowing", "origin", origin, "err", err)
		return nil
	}

	// 4xx allows everything and 5xx disallows everything.
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, resp.Body)
	if err != nil {
		r.logger.Debug("robots.txt unparseable, allowing", "origin", origin, "err", err)
		return nil
	}
	return data
}
