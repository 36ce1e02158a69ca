// Package webfetch downloads a page and reduces it to plain prose text.
package webfetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/FranksOps/searchmcp/internal/notify"
	"github.com/FranksOps/searchmcp/internal/scraper"
	"github.com/FranksOps/searchmcp/pkg/ratelimit"
	"github.com/FranksOps/searchmcp/pkg/useragent"
)

const (
	// MaxLength caps returned text, in runes.
	MaxLength = 8000
	// TruncationMarker is appended when text exceeds MaxLength.
	TruncationMarker = "... [content truncated]"
	// ErrorPrefix starts every failure string so callers can tell it apart
	// from page content.
	ErrorPrefix = "Error: "

	// DefaultFetchRPM is the default number of fetches allowed per minute.
	DefaultFetchRPM = 20
)

// Elements removed before text extraction.
const strippedElements = "script, style, nav, header, footer"

// Requester issues outbound HTTP requests; *scraper.Fetcher satisfies it.
type Requester interface {
	Do(ctx context.Context, req scraper.Request) (*scraper.Response, error)
}

// Config configures the fetch pipeline.
type Config struct {
	Requester Requester
	Limiter   *ratelimit.Limiter
	// Robots, when set, is consulted before every fetch.
	Robots *scraper.RobotsTxtAuditor
	// UserAgents defaults to the fixed Generic agent.
	UserAgents *useragent.Pool
	// Mode defaults to ModeText.
	Mode   Mode
	Logger *slog.Logger
}

// Fetcher is the fetch_content pipeline.
type Fetcher struct {
	requester Requester
	limiter   *ratelimit.Limiter
	robots    *scraper.RobotsTxtAuditor
	agents    *useragent.Pool
	mode      Mode
	logger    *slog.Logger
}

// New builds a Fetcher. A nil Limiter gets the default 20 requests per minute.
func New(cfg Config) *Fetcher {
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.NewLimiter(DefaultFetchRPM)
	}
	if cfg.UserAgents == nil {
		cfg.UserAgents = useragent.Fixed(useragent.Generic)
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeText
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Fetcher{
		requester: cfg.Requester,
		limiter:   cfg.Limiter,
		robots:    cfg.Robots,
		agents:    cfg.UserAgents,
		mode:      cfg.Mode,
		logger:    cfg.Logger,
	}
}

// Fetch returns the readable text of targetURL, or a string starting with
// ErrorPrefix. It never returns markup.
func (f *Fetcher) Fetch(ctx context.Context, sink notify.Sink, targetURL string) string {
	if err := scraper.Acquire(ctx, f.limiter, "fetch"); err != nil {
		sink.Error(fmt.Sprintf("Fetch of %s cancelled while waiting for the rate limiter: %v", targetURL, err))
		return fmt.Sprintf("%sAn unexpected error occurred while fetching the webpage (%v)", ErrorPrefix, err)
	}

	sink.Info(fmt.Sprintf("Fetching content from: %s", targetURL))
	ua := f.agents.Next()

	if f.robots != nil {
		allowed, err := f.robots.IsAllowed(ctx, targetURL, ua)
		if err != nil {
			sink.Error(fmt.Sprintf("Error fetching content from %s: %v", targetURL, err))
			return fmt.Sprintf("%sAn unexpected error occurred while fetching the webpage (%v)", ErrorPrefix, err)
		}
		if !allowed {
			sink.Error(fmt.Sprintf("robots.txt disallows fetching %s", targetURL))
			return ErrorPrefix + "Fetching this webpage is disallowed by its robots.txt"
		}
	}

	resp, err := f.requester.Do(ctx, scraper.Request{
		Tool:   "fetch_content",
		URL:    targetURL,
		Header: useragent.BrowserHeaders(ua),
	})
	if err != nil {
		var (
			terr *scraper.TransportError
			perr *scraper.ProtocolError
		)
		switch {
		case errors.As(err, &perr):
			sink.Error(fmt.Sprintf("HTTP error occurred while fetching %s: %v", targetURL, err))
			return fmt.Sprintf("%sCould not access the webpage (%v)", ErrorPrefix, err)
		case errors.As(err, &terr):
			sink.Error(fmt.Sprintf("An HTTP request error occurred while fetching %s: %v", targetURL, err))
			return fmt.Sprintf("%sAn HTTP request error occurred while fetching the webpage (%v)", ErrorPrefix, err)
		default:
			sink.Error(fmt.Sprintf("Error fetching content from %s: %v", targetURL, err))
			return fmt.Sprintf("%sAn unexpected error occurred while fetching the webpage (%v)", ErrorPrefix, err)
		}
	}

	// Pages declare their encoding in the header or a meta tag; the extractors want UTF-8.
	page := resp.Body
	if decoded, cerr := charset.NewReader(bytes.NewReader(resp.Body), resp.Header.Get("Content-Type")); cerr == nil {
		if b, rerr := io.ReadAll(decoded); rerr == nil {
			page = b
		}
	} else {
		f.logger.Debug("charset detection failed, assuming utf-8", "url", targetURL, "err", cerr)
	}

	text, err := f.mode.extract(page, resp.URL)
	if err != nil {
		sink.Error(fmt.Sprintf("Error fetching content from %s: %v", targetURL, err))
		return fmt.Sprintf("%sAn unexpected error occurred while fetching the webpage (%v)", ErrorPrefix, err)
	}
	if resp.DetectedBot {
		sink.Warning(fmt.Sprintf("%s looks like a %s bot challenge page", targetURL, resp.DetectionSrc))
	}

	text = Truncate(text, MaxLength)
	sink.Info(fmt.Sprintf("Successfully fetched and parsed content (%d characters)", utf8.RuneCountInString(text)))
	return text
}

// ExtractText parses HTML, drops non-content elements and returns the
// remaining text with every whitespace run collapsed to one space.
func ExtractText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("webfetch: parsing document: %w", err)
	}
	doc.Find(strippedElements).Remove()
	return strings.Join(strings.Fields(doc.Text()), " "), nil
}

// Truncate cuts s to max runes and appends TruncationMarker when it was cut.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + TruncationMarker
}
