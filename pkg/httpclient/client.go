// Package httpclient wraps net/http with a redirect policy and a cap on the
// number of requests in flight.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	// DefaultMaxConcurrent caps in-flight requests when Config.MaxConcurrent is zero.
	DefaultMaxConcurrent = 8
	defaultTimeout       = 30 * time.Second
)

// Config defines the setup for the HTTP Client.
type Config struct {
	Timeout time.Duration
	// MaxRedirects < 0 disables redirect following.
	MaxRedirects int
	UseCookieJar bool
	// MaxConcurrent bounds the number of requests in flight at once, counted
	// until the response body is closed.
	MaxConcurrent int64
	// Transport overrides http.DefaultTransport, e.g. for uTLS fingerprinting.
	Transport http.RoundTripper
}

// Client is an http.Client that admits at most MaxConcurrent exchanges.
type Client struct {
	http *http.Client
	sem  *semaphore.Weighted
}

// New creates a new HTTP client based on the provided configuration.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}

	c := &http.Client{
		Timeout:       cfg.Timeout,
		Transport:     cfg.Transport,
		CheckRedirect: redirectPolicy(cfg.MaxRedirects),
	}
	if cfg.UseCookieJar {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("httpclient: %w", err)
		}
		c.Jar = jar
	}

	return &Client{http: c, sem: semaphore.NewWeighted(cfg.MaxConcurrent)}, nil
}

func redirectPolicy(limit int) func(*http.Request, []*http.Request) error {
	if limit < 0 {
		return func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	}
	return func(_ *http.Request, via []*http.Request) error {
		if len(via) >= limit {
			return fmt.Errorf("httpclient: stopped after %d redirects", limit)
		}
		return nil
	}
}

// Do executes req under ctx once a slot is free. The slot is held until the
// caller closes resp.Body, so body reads count against the cap.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if ctx == nil {
		return nil, errors.New("httpclient: context cannot be nil")
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("httpclient: waiting for a request slot: %w", err)
	}

	resp, err := c.http.Do(req.Clone(ctx))
	if err != nil {
		c.sem.Release(1)
		return nil, fmt.Errorf("httpclient: %w", err)
	}
	resp.Body = &slotBody{ReadCloser: resp.Body, release: func() { c.sem.Release(1) }}
	return resp, nil
}

type slotBody struct {
	io.ReadCloser
	once    sync.Once
	release func()
}

func (b *slotBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}
