package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/FranksOps/searchmcp/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchmcp_tool_calls_total",
			Help: "Total number of tool invocations by outcome",
		},
		[]string{"tool", "outcome"},
	)

	ToolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "searchmcp_tool_call_duration_seconds",
			Help:    "Wall time of tool invocations including rate limit waits",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"tool"},
	)

	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchmcp_requests_total",
			Help: "Total number of outbound HTTP requests",
		},
		[]string{"tool", "domain", "status", "detected", "detection_src"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "searchmcp_request_duration_seconds",
			Help:    "Duration of outbound HTTP requests in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"tool"},
	)

	BytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchmcp_response_bytes_total",
			Help: "Total response bytes read across outbound requests",
		},
		[]string{"tool"},
	)

	RateLimitWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "searchmcp_rate_limit_wait_seconds",
			Help:    "Time spent waiting for a rate limiter grant",
			Buckets: []float64{0, 0.01, 0.1, 1, 5, 15, 30, 60},
		},
		[]string{"limiter"},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchmcp_proxy_failures_total",
			Help: "Total number of proxy failures during outbound requests",
		},
		[]string{"proxy_url"},
	)
)

// RecordToolCall counts one tool invocation. outcome is "ok", "empty",
// "error" or "panic".
func RecordToolCall(tool, outcome string, d time.Duration) {
	ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
	ToolCallDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// RecordRequest updates the request metrics from an audit record.
func RecordRequest(rec *storage.RequestRecord) {
	if rec == nil {
		return
	}

	domain := "unknown"
	if u, err := url.Parse(rec.URL); err == nil && u.Hostname() != "" {
		domain = u.Hostname()
	}

	statusStr := strconv.Itoa(rec.StatusCode)
	if rec.StatusCode == 0 && rec.Error != "" {
		statusStr = "error"
	}

	RequestsTotal.WithLabelValues(rec.Tool, domain, statusStr, strconv.FormatBool(rec.DetectedBot), rec.DetectionSrc).Inc()
	RequestDuration.WithLabelValues(rec.Tool).Observe(rec.Duration.Seconds())
	BytesTotal.WithLabelValues(rec.Tool).Add(float64(rec.Bytes))
}

// ObserveRateLimitWait records how long a caller blocked on a limiter.
func ObserveRateLimitWait(limiter string, d time.Duration) {
	RateLimitWaitSeconds.WithLabelValues(limiter).Observe(d.Seconds())
}

// RecordProxyFailure counts a failed request through proxyURL.
func RecordProxyFailure(proxyURL string) {
	ProxyFailures.WithLabelValues(proxyURL).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Start listens on addr and serves /metrics in the background. Listen errors
// are returned immediately; serve errors are logged.
func Start(addr string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", addr, "err", err)
		}
	}()

	return &Server{srv: srv, ln: ln}, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
