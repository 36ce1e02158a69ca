package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/searchmcp/internal/config"
	"github.com/FranksOps/searchmcp/internal/fingerprint"
	"github.com/FranksOps/searchmcp/internal/metrics"
	"github.com/FranksOps/searchmcp/internal/scholar"
	"github.com/FranksOps/searchmcp/internal/scraper"
	"github.com/FranksOps/searchmcp/internal/serp"
	"github.com/FranksOps/searchmcp/internal/storage"
	"github.com/FranksOps/searchmcp/internal/tools"
	"github.com/FranksOps/searchmcp/internal/webfetch"
	"github.com/FranksOps/searchmcp/pkg/proxy"
	"github.com/FranksOps/searchmcp/pkg/ratelimit"
	"github.com/FranksOps/searchmcp/pkg/useragent"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP tool server",
	Long: `serve registers the search, fetch_content and scholar_search tools and
serves them over SSE on host:port, or over stdin/stdout with --stdio. When
metrics_addr is set, Prometheus metrics are served there on /metrics.`,
	RunE: runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.String("host", "0.0.0.0", "address to listen on")
	flags.Int("port", 8000, "port to listen on")
	flags.String("metrics-addr", "", "address for the Prometheus /metrics endpoint (disabled when empty)")
	flags.Bool("respect-robots", false, "refuse fetch_content for pages disallowed by robots.txt")
	flags.String("fingerprint", string(fingerprint.ProfileChrome), "TLS fingerprint: chrome, firefox, safari, random or go")
	flags.String("proxy-file", "", "file with one proxy URL per line")
	flags.String("fetch-mode", "text", "fetch_content extraction: text, readability or markdown")
	flags.Bool("stdio", false, "serve over stdin/stdout instead of SSE")

	for key, flag := range map[string]string{
		"host":           "host",
		"port":           "port",
		"metrics_addr":   "metrics-addr",
		"respect_robots": "respect-robots",
		"fingerprint":    "fingerprint",
		"proxy_file":     "proxy-file",
		"fetch_mode":     "fetch-mode",
	} {
		if err := settings.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, closeSvc, err := newService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeSvc(); err != nil {
			logger.Warn("closing audit store", "err", err)
		}
	}()

	var metricsSrv *metrics.Server
	if cfg.MetricsAddr != "" {
		metricsSrv, err = metrics.Start(cfg.MetricsAddr, logger)
		if err != nil {
			return fmt.Errorf("starting metrics server: %w", err)
		}
		logger.Info("metrics server listening", "addr", metricsSrv.Addr())
	}

	mcpSrv := tools.NewServer(svc, version, logger)

	if stdio, _ := cmd.Flags().GetBool("stdio"); stdio {
		logger.Info("serving MCP over stdio")
		err := server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout)
		if stopErr := metricsSrv.Stop(context.WithoutCancel(ctx)); stopErr != nil {
			logger.Warn("stopping metrics server", "err", stopErr)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("stdio server: %w", err)
		}
		return nil
	}

	sse := server.NewSSEServer(mcpSrv)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("serving MCP over SSE", "addr", cfg.Addr(), "version", version)
		if err := sse.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("sse server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return errors.Join(sse.Shutdown(shutdownCtx), metricsSrv.Stop(shutdownCtx))
	})

	return g.Wait()
}

// newService assembles the request pipeline and the three tool pipelines on
// top of it. The returned func releases the audit store.
func newService(ctx context.Context, cfg config.Config, logger *slog.Logger) (*tools.Service, func() error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	closeFn := func() error { return nil }

	var backend storage.Backend
	if cfg.AuditDSN != "" {
		b, err := openAuditBackend(ctx, cfg.AuditDSN)
		if err != nil {
			return nil, nil, err
		}
		backend, closeFn = b, b.Close
	}

	var pool *proxy.Pool
	if cfg.ProxyFile != "" {
		pool = proxy.NewPool(proxy.Config{})
		if err := pool.LoadFile(cfg.ProxyFile); err != nil {
			_ = closeFn()
			return nil, nil, err
		}
		logger.Info("proxy rotation enabled", "proxies", pool.Len())
	}

	profile, err := fingerprint.ParseProfile(cfg.Fingerprint)
	if err != nil {
		_ = closeFn()
		return nil, nil, err
	}

	requester, err := scraper.NewFetcher(scraper.Config{
		Timeout:       cfg.RequestTimeout,
		MaxConcurrent: cfg.MaxConcurrent,
		MaxBodySize:   cfg.MaxBodyBytes,
		KeepCookies:   true,
		Fingerprint:   profile,
		ProxyPool:     pool,
		Backend:       backend,
		Logger:        logger,
	})
	if err != nil {
		_ = closeFn()
		return nil, nil, err
	}

	var robots *scraper.RobotsTxtAuditor
	if cfg.RespectRobots {
		robots = scraper.NewRobotsTxtAuditor(requester, logger)
	}
	var agents *useragent.Pool
	if cfg.RotateUserAgents {
		agents = useragent.NewPool(nil)
		logger.Info("user agent rotation enabled", "agents", agents.Len())
	}
	mode, err := webfetch.ParseMode(cfg.FetchMode)
	if err != nil {
		_ = closeFn()
		return nil, nil, err
	}

	google, err := scholar.NewGoogle(scholar.GoogleConfig{Requester: requester, Logger: logger})
	if err != nil {
		_ = closeFn()
		return nil, nil, err
	}
	delay := cfg.ScholarDelay
	if delay == 0 {
		delay = -1
	}

	svc := tools.NewService(tools.Config{
		Search: serp.NewDuckDuckGo(serp.DuckDuckGoConfig{
			Requester: requester,
			Limiter:   ratelimit.NewLimiter(cfg.SearchRPM),
			Logger:    logger,
		}),
		Fetch: webfetch.New(webfetch.Config{
			Requester:  requester,
			Limiter:    ratelimit.NewLimiter(cfg.FetchRPM),
			Robots:     robots,
			UserAgents: agents,
			Mode:       mode,
			Logger:     logger,
		}),
		Scholar: scholar.NewPipeline(scholar.PipelineConfig{
			Provider: google,
			Delay:    delay,
			Logger:   logger,
		}),
		Logger: logger,
	})
	return svc, closeFn, nil
}
