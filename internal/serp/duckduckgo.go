package serp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/FranksOps/searchmcp/internal/notify"
	"github.com/FranksOps/searchmcp/internal/scraper"
	"github.com/FranksOps/searchmcp/pkg/ratelimit"
	"github.com/FranksOps/searchmcp/pkg/useragent"
)

const (
	// DuckDuckGoEndpoint is the JavaScript-free results page.
	DuckDuckGoEndpoint = "https://html.duckduckgo.com/html"

	DefaultMaxResults = 10
	MaxResultsCap     = 50

	// DefaultSearchRPM is the default number of searches allowed per minute.
	DefaultSearchRPM = 30

	adMarker       = "y.js"
	redirectPrefix = "//duckduckgo.com/l/?uddg="
)

// DuckDuckGoConfig configures the search pipeline.
type DuckDuckGoConfig struct {
	Requester Requester
	Limiter   *ratelimit.Limiter
	// Endpoint overrides DuckDuckGoEndpoint.
	Endpoint string
	// Region is sent as the kl form field; empty lets DuckDuckGo decide.
	Region string
	Logger *slog.Logger
}

// DuckDuckGo scrapes the DuckDuckGo HTML endpoint.
type DuckDuckGo struct {
	requester Requester
	limiter   *ratelimit.Limiter
	endpoint  string
	region    string
	logger    *slog.Logger
}

var _ Provider = (*DuckDuckGo)(nil)

// NewDuckDuckGo builds the search pipeline. A nil Limiter gets the default
// 30 requests per minute.
func NewDuckDuckGo(cfg DuckDuckGoConfig) *DuckDuckGo {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DuckDuckGoEndpoint
	}
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.NewLimiter(DefaultSearchRPM)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &DuckDuckGo{
		requester: cfg.Requester,
		limiter:   cfg.Limiter,
		endpoint:  cfg.Endpoint,
		region:    cfg.Region,
		logger:    cfg.Logger,
	}
}

// ClampMaxResults applies the default and the cap to a requested count.
func ClampMaxResults(n int) int {
	switch {
	case n <= 0:
		return DefaultMaxResults
	case n > MaxResultsCap:
		return MaxResultsCap
	}
	return n
}

// Search runs one rate-limited query. Every failure is reported through sink
// and yields an empty slice.
func (d *DuckDuckGo) Search(ctx context.Context, sink notify.Sink, query string, maxResults int) []Result {
	maxResults = ClampMaxResults(maxResults)

	if err := scraper.Acquire(ctx, d.limiter, "search"); err != nil {
		sink.Error(fmt.Sprintf("Search cancelled while waiting for the rate limiter: %v", err))
		return nil
	}

	sink.Info(fmt.Sprintf("Searching DuckDuckGo for: %s", query))

	resp, err := d.requester.Do(ctx, scraper.Request{
		Tool: "search",
		URL:  d.endpoint,
		Form: url.Values{
			"q":  {query},
			"b":  {""},
			"kl": {d.region},
		},
		Header: useragent.BrowserHeaders(useragent.Chrome),
	})
	if err != nil {
		var perr *scraper.ProtocolError
		switch {
		case errors.As(err, &perr):
			msg := fmt.Sprintf("HTTP error occurred: %v", err)
			if resp != nil && resp.DetectedBot {
				msg += fmt.Sprintf(" (%s bot challenge detected)", resp.DetectionSrc)
			}
			sink.Error(msg)
		default:
			sink.Error(fmt.Sprintf("An HTTP request error occurred: %v", err))
		}
		return nil
	}

	results, err := ExtractResults(bytes.NewReader(resp.Body), maxResults)
	if err != nil {
		sink.Error(fmt.Sprintf("Failed to parse HTML response: %v", err))
		return nil
	}
	d.logger.Debug("search extracted", "query", query, "results", len(results), "detected_bot", resp.DetectedBot)

	if len(results) == 0 {
		if resp.DetectedBot {
			sink.Info(fmt.Sprintf("No results found: the response is a %s bot challenge page", resp.DetectionSrc))
		} else {
			sink.Info("No results found: the page parsed but contained no result blocks")
		}
		return results
	}

	sink.Info(fmt.Sprintf("Successfully found %d results", len(results)))
	return results
}

// ExtractResults walks .result blocks in document order and keeps at most
// maxResults of them. Blocks without a title anchor or with an ad-tracking
// link are skipped; redirect wrappers are decoded. A document with no blocks
// yields an empty slice, not an error.
func ExtractResults(r io.Reader, maxResults int) ([]Result, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("serp: parsing document: %w", err)
	}

	results := []Result{}
	doc.Find(".result").EachWithBreak(func(_ int, block *goquery.Selection) bool {
		anchor := block.Find(".result__title").First().Find("a").First()
		if anchor.Length() == 0 {
			return true
		}

		link, ok := anchor.Attr("href")
		link = strings.TrimSpace(link)
		if !ok || link == "" || strings.Contains(link, adMarker) {
			return true
		}

		results = append(results, Result{
			Title:    collapse(anchor.Text()),
			Link:     DecodeRedirect(link),
			Snippet:  collapse(block.Find(".result__snippet").First().Text()),
			Position: len(results) + 1,
		})
		return len(results) < maxResults
	})

	return results, nil
}

// DecodeRedirect unwraps a duckduckgo.com/l/?uddg= link to its destination.
// Anything else is returned unchanged.
func DecodeRedirect(link string) string {
	raw := link
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() != "duckduckgo.com" || u.Path != "/l/" {
		return link
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return link
}

// EncodeRedirect wraps target the way DuckDuckGo does; DecodeRedirect
// reverses it.
func EncodeRedirect(target string) string {
	return redirectPrefix + url.QueryEscape(target)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
