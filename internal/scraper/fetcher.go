package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/FranksOps/searchmcp/internal/bypass"
	"github.com/FranksOps/searchmcp/internal/fingerprint"
	"github.com/FranksOps/searchmcp/internal/metrics"
	"github.com/FranksOps/searchmcp/internal/storage"
	"github.com/FranksOps/searchmcp/pkg/httpclient"
	"github.com/FranksOps/searchmcp/pkg/proxy"
	"github.com/google/uuid"
)

const (
	// DefaultTimeout bounds every outbound request.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxBodySize caps how much of a response body is read.
	DefaultMaxBodySize = 5 << 20
	defaultRedirects   = 10
)

type callIDKey struct{}

// WithCallID tags ctx with the tool call that issues the requests made under
// it, so audit records can be grouped per call.
func WithCallID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callIDKey{}, id)
}

// CallID returns the call ID stored by WithCallID, or "".
func CallID(ctx context.Context) string {
	id, _ := ctx.Value(callIDKey{}).(string)
	return id
}

// Config configures the shared outbound requester.
type Config struct {
	Timeout time.Duration
	// MaxRedirects defaults to 10; negative disables redirect following.
	MaxRedirects  int
	MaxConcurrent int64
	MaxBodySize   int64
	// KeepCookies persists cookies between requests to the same host.
	// Scholar hands out a session cookie on the first page.
	KeepCookies bool
	Fingerprint fingerprint.Profile
	ProxyPool   *proxy.Pool
	// Backend receives one audit record per request when set.
	Backend   storage.Backend
	Detectors []bypass.Detector
	Logger    *slog.Logger
}

// Request describes one outbound call. Form, when set, is sent as an
// urlencoded body and forces POST unless Method says otherwise.
type Request struct {
	Tool   string
	Method string
	URL    string
	Form   url.Values
	Header http.Header
}

// Response is a fully read HTTP response.
type Response struct {
	URL          string // final URL after redirects
	StatusCode   int
	Header       http.Header
	Body         []byte
	Duration     time.Duration
	DetectedBot  bool
	DetectionSrc string
}

// Fetcher performs single HTTP exchanges for every tool. It owns the
// transport, so connection pooling and TLS fingerprinting are shared.
type Fetcher struct {
	config Config
	client *httpclient.Client
	logger *slog.Logger
}

// NewFetcher initializes a Fetcher with the given configuration.
func NewFetcher(cfg Config) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRedirects == 0 {
		cfg.MaxRedirects = defaultRedirects
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileGo
	}
	if cfg.Detectors == nil {
		cfg.Detectors = bypass.SearchDetectors()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.ProxyPool != nil && cfg.ProxyPool.Len() > 0 && cfg.Fingerprint != fingerprint.ProfileGo {
		// net/http tunnels HTTPS through the proxy with CONNECT and runs its own
		// crypto/tls handshake, bypassing the uTLS dialer.
		logger.Warn("TLS fingerprint is not applied to HTTPS requests sent through a proxy",
			"fingerprint", cfg.Fingerprint, "proxies", cfg.ProxyPool.Len())
	}

	// Proxy choice travels in the request context so one transport can serve
	// every rotation.
	transport, err := fingerprint.Transport(cfg.Fingerprint, proxy.FromRequest)
	if err != nil {
		return nil, fmt.Errorf("scraper: setting up transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:       cfg.Timeout,
		MaxRedirects:  cfg.MaxRedirects,
		MaxConcurrent: cfg.MaxConcurrent,
		UseCookieJar:  cfg.KeepCookies,
		Transport:     transport,
	})
	if err != nil {
		return nil, fmt.Errorf("scraper: creating client: %w", err)
	}

	return &Fetcher{config: cfg, client: client, logger: logger}, nil
}

// Do executes req. Network failures return a *TransportError. A non-2xx
// status returns the read response together with a *ProtocolError so callers
// can still inspect bot detection. Every attempt is metered and audited.
func (f *Fetcher) Do(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	rec := &storage.RequestRecord{
		ID:        uuid.NewString(),
		CallID:    CallID(ctx),
		Tool:      req.Tool,
		URL:       req.URL,
		Method:    req.method(),
		CreatedAt: start.UTC(),
	}
	defer func() {
		rec.Duration = time.Since(start)
		f.record(ctx, rec)
	}()

	httpReq, err := req.build(ctx)
	if err != nil {
		rec.Error = err.Error()
		return nil, &TransportError{URL: req.URL, Err: err}
	}

	var activeProxy *url.URL
	if f.config.ProxyPool != nil {
		if activeProxy = f.config.ProxyPool.Next(); activeProxy != nil {
			rec.Proxy = activeProxy.Redacted()
			httpReq = httpReq.WithContext(proxy.WithProxy(httpReq.Context(), activeProxy))
		}
	}

	resp, err := f.client.Do(httpReq.Context(), httpReq)
	if err != nil {
		f.proxyFailed(activeProxy)
		rec.Error = err.Error()
		return nil, &TransportError{URL: req.URL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodySize))
	if err != nil {
		f.proxyFailed(activeProxy)
		rec.StatusCode = resp.StatusCode
		rec.Error = err.Error()
		return nil, &TransportError{URL: req.URL, Err: fmt.Errorf("reading body: %w", err)}
	}
	if activeProxy != nil {
		_ = f.config.ProxyPool.MarkSuccess(activeProxy)
	}

	out := &Response{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Duration:   time.Since(start),
	}
	out.DetectedBot, out.DetectionSrc = bypass.Analyze(&bypass.Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}, f.config.Detectors)

	rec.StatusCode = resp.StatusCode
	rec.Bytes = int64(len(body))
	rec.DetectedBot = out.DetectedBot
	rec.DetectionSrc = out.DetectionSrc

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		perr := &ProtocolError{URL: req.URL, StatusCode: resp.StatusCode, Status: resp.Status}
		rec.Error = perr.Error()
		return out, perr
	}
	return out, nil
}

func (f *Fetcher) proxyFailed(u *url.URL) {
	if u == nil {
		return
	}
	_ = f.config.ProxyPool.MarkFailure(u)
	metrics.RecordProxyFailure(u.Redacted())
}

func (f *Fetcher) record(ctx context.Context, rec *storage.RequestRecord) {
	metrics.RecordRequest(rec)

	attrs := []any{"tool", rec.Tool, "method", rec.Method, "url", rec.URL, "status", rec.StatusCode, "duration", rec.Duration}
	if rec.DetectedBot {
		attrs = append(attrs, "detection_src", rec.DetectionSrc)
	}
	if rec.Error != "" {
		f.logger.Debug("outbound request failed", append(attrs, "err", rec.Error)...)
	} else {
		f.logger.Debug("outbound request", attrs...)
	}

	if f.config.Backend == nil {
		return
	}
	// The audit write must not be lost when the caller's context is cancelled.
	if err := f.config.Backend.Save(context.WithoutCancel(ctx), rec); err != nil {
		f.logger.Warn("failed to save request record", "id", rec.ID, "err", err)
	}
}

func (r Request) method() string {
	if r.Method != "" {
		return r.Method
	}
	if r.Form != nil {
		return http.MethodPost
	}
	return http.MethodGet
}

func (r Request) build(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if r.Form != nil {
		body = strings.NewReader(r.Form.Encode())
	}
	httpReq, err := http.NewRequestWithContext(ctx, r.method(), r.URL, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if r.Form != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return httpReq, nil
}

// StatusCode extracts the HTTP status from a *ProtocolError, or 0.
func StatusCode(err error) int {
	var perr *ProtocolError
	if errors.As(err, &perr) {
		return perr.StatusCode
	}
	return 0
}
