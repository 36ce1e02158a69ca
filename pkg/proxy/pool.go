package proxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrUnknownProxy is returned when marking a proxy that was never added.
var ErrUnknownProxy = errors.New("proxy: not found in pool")

type contextKey struct{}

// Proxy is a single upstream proxy with health tracking.
type Proxy struct {
	URL           *url.URL
	Failures      int
	Successes     int
	LastUsed      time.Time
	Disabled      bool
	DisabledUntil time.Time
}

// Config defines settings for the Pool.
type Config struct {
	// MaxFailures before a proxy is disabled temporarily.
	MaxFailures int
	// Cooldown is how long a disabled proxy stays out of rotation.
	Cooldown time.Duration
}

// Pool rotates through proxies round-robin, skipping those cooling down.
type Pool struct {
	mu          sync.Mutex
	proxies     []*Proxy
	byURL       map[string]*Proxy
	next        int
	maxFailures int
	cooldown    time.Duration
}

// NewPool creates an empty pool. Zero config values select defaults.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Pool{
		byURL:       make(map[string]*Proxy),
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
	}
}

// LoadFile reads proxies from a file, one URL per line. Blank lines and
// lines starting with '#' are ignored.
func (p *Pool) LoadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("proxy: %w", err)
	}
	defer file.Close()

	var urls []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("proxy: reading %s: %w", path, err)
	}

	return p.Add(urls...)
}

// Add parses raw proxy URLs and appends them. A missing scheme means http.
func (p *Pool) Add(rawURLs ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, raw := range rawURLs {
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("proxy: %w", err)
		}
		if _, dup := p.byURL[u.String()]; dup {
			continue
		}
		prx := &Proxy{URL: u}
		p.proxies = append(p.proxies, prx)
		p.byURL[u.String()] = prx
	}
	return nil
}

// Len returns the number of proxies in the pool.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.proxies)
}

// Next returns the next healthy proxy, or nil when the pool is empty or
// every proxy is cooling down.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for i := 0; i < len(p.proxies); i++ {
		prx := p.proxies[p.next]
		p.next = (p.next + 1) % len(p.proxies)

		if prx.Disabled && now.After(prx.DisabledUntil) {
			prx.Disabled = false
			prx.Failures = 0
		}
		if !prx.Disabled {
			prx.LastUsed = now
			return prx.URL
		}
	}
	return nil
}

// MarkSuccess records a successful request through proxyURL.
func (p *Pool) MarkSuccess(proxyURL *url.URL) error {
	return p.mark(proxyURL, func(prx *Proxy) {
		prx.Successes++
		if prx.Failures > 0 {
			prx.Failures--
		}
	})
}

// MarkFailure records a failed request through proxyURL and disables it for
// the cooldown once it reaches the failure threshold.
func (p *Pool) MarkFailure(proxyURL *url.URL) error {
	return p.mark(proxyURL, func(prx *Proxy) {
		prx.Failures++
		if prx.Failures >= p.maxFailures {
			prx.Disabled = true
			prx.DisabledUntil = time.Now().Add(p.cooldown)
		}
	})
}

func (p *Pool) mark(proxyURL *url.URL, update func(*Proxy)) error {
	if proxyURL == nil {
		return errors.New("proxy: url cannot be nil")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	prx, ok := p.byURL[proxyURL.String()]
	if !ok {
		return ErrUnknownProxy
	}
	update(prx)
	return nil
}

// WithProxy attaches the proxy chosen for one request to its context.
func WithProxy(ctx context.Context, u *url.URL) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// FromRequest is an http.Transport Proxy function. It uses the proxy stored by
// WithProxy and otherwise falls back to the environment, except for loopback
// targets which are always dialled directly.
func FromRequest(req *http.Request) (*url.URL, error) {
	if u, ok := req.Context().Value(contextKey{}).(*url.URL); ok && u != nil {
		return u, nil
	}
	switch req.URL.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return nil, nil
	}
	return http.ProxyFromEnvironment(req)
}
