package scholar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/FranksOps/searchmcp/internal/scraper"
	"github.com/FranksOps/searchmcp/pkg/useragent"
)

// GoogleScholarBase is the production Scholar origin.
const GoogleScholarBase = "https://scholar.google.com"

var trailingYear = regexp.MustCompile(`^(.*?)[,\s]*\b(\d{4})$`)

// Requester issues outbound HTTP requests; *scraper.Fetcher satisfies it.
type Requester interface {
	Do(ctx context.Context, req scraper.Request) (*scraper.Response, error)
}

// GoogleConfig configures the Google Scholar provider.
type GoogleConfig struct {
	Requester Requester
	// BaseURL overrides GoogleScholarBase.
	BaseURL string
	Logger  *slog.Logger
}

// Google scrapes Google Scholar result pages.
type Google struct {
	requester Requester
	base      *url.URL
	logger    *slog.Logger
}

var _ Provider = (*Google)(nil)

// NewGoogle builds the provider.
func NewGoogle(cfg GoogleConfig) (*Google, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = GoogleScholarBase
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("scholar: invalid base url: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Google{requester: cfg.Requester, base: base, logger: cfg.Logger}, nil
}

// Search returns an iterator positioned at q.StartIndex. No request is made
// until the first Next.
func (g *Google) Search(ctx context.Context, q Query) (Iterator, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, &ProviderError{Op: "search", Err: errors.New("empty query")}
	}
	if q.YearLow != nil && q.YearHigh != nil && *q.YearLow > *q.YearHigh {
		return nil, &ProviderError{Op: "search", Err: fmt.Errorf("year_low %d is after year_high %d", *q.YearLow, *q.YearHigh)}
	}
	return &googleIterator{g: g, next: g.searchURL(q)}, nil
}

func (g *Google) searchURL(q Query) string {
	v := url.Values{}
	v.Set("q", q.Text)
	v.Set("hl", "en")
	if q.YearLow != nil {
		v.Set("as_ylo", strconv.Itoa(*q.YearLow))
	}
	if q.YearHigh != nil {
		v.Set("as_yhi", strconv.Itoa(*q.YearHigh))
	}
	if q.SortBy == SortDate {
		v.Set("scisbd", "1")
	}
	if q.StartIndex > 0 {
		v.Set("start", strconv.Itoa(q.StartIndex))
	}
	return g.resolve("/scholar?" + v.Encode())
}

// Citation follows the cite dialog of rec to its BibTeX export.
func (g *Google) Citation(ctx context.Context, rec Record) (string, error) {
	if rec.ClusterID == "" {
		return "", &ProviderError{Op: "citation", Err: fmt.Errorf("%q has no cluster id", rec.Title)}
	}

	v := url.Values{}
	v.Set("q", "info:"+rec.ClusterID+":scholar.google.com/")
	v.Set("output", "cite")
	v.Set("scirp", "0")
	v.Set("hl", "en")

	doc, err := g.document(ctx, "citation", g.resolve("/scholar?"+v.Encode()))
	if err != nil {
		return "", err
	}

	var bibURL string
	doc.Find("a.gs_citi").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if strings.TrimSpace(a.Text()) == "BibTeX" {
			bibURL, _ = a.Attr("href")
			return false
		}
		return true
	})
	if bibURL == "" {
		return "", &ProviderError{Op: "citation", Err: errors.New("no BibTeX link in cite dialog")}
	}

	resp, err := g.fetch(ctx, "citation", g.resolve(bibURL))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(resp.Body)), nil
}

func (g *Google) fetch(ctx context.Context, op, target string) (*scraper.Response, error) {
	resp, err := g.requester.Do(ctx, scraper.Request{
		Tool:   "scholar_search",
		URL:    target,
		Header: useragent.BrowserHeaders(useragent.Chrome),
	})
	if resp != nil && resp.DetectedBot {
		return nil, &ProviderError{Op: op, Err: fmt.Errorf("%w (%s)", ErrBlocked, resp.DetectionSrc)}
	}
	if err != nil {
		return nil, &ProviderError{Op: op, Err: err}
	}
	return resp, nil
}

func (g *Google) document(ctx context.Context, op, target string) (*goquery.Document, error) {
	resp, err := g.fetch(ctx, op, target)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, &ProviderError{Op: op, Err: err}
	}
	return doc, nil
}

func (g *Google) resolve(ref string) string {
	u, err := g.base.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}

type googleIterator struct {
	g    *Google
	buf  []Record
	next string
}

func (it *googleIterator) Next(ctx context.Context) (Record, error) {
	for len(it.buf) == 0 {
		if it.next == "" {
			return Record{}, io.EOF
		}
		doc, err := it.g.document(ctx, "page", it.next)
		if err != nil {
			return Record{}, err
		}
		records, next := parsePage(doc)
		it.g.logger.Debug("scholar page parsed", "url", it.next, "records", len(records))
		it.buf = records
		it.next = ""
		if next != "" {
			it.next = it.g.resolve(next)
		}
		if len(records) == 0 {
			return Record{}, io.EOF
		}
	}

	rec := it.buf[0]
	it.buf = it.buf[1:]
	return rec, nil
}

// parsePage extracts result rows and the next-page link, if any.
func parsePage(doc *goquery.Document) ([]Record, string) {
	var records []Record
	doc.Find(".gs_r.gs_or.gs_scl").Each(func(_ int, row *goquery.Selection) {
		rec, ok := parseRow(row)
		if ok {
			records = append(records, rec)
		}
	})

	next, _ := doc.Find(".gs_ico_nav_next").First().Closest("a").Attr("href")
	return records, next
}

func parseRow(row *goquery.Selection) (Record, bool) {
	var rec Record
	rec.ClusterID, _ = row.Attr("data-cid")

	h3 := row.Find("h3.gs_rt").First()
	if h3.Length() == 0 {
		return rec, false
	}
	if a := h3.Find("a").First(); a.Length() > 0 {
		rec.Title = collapse(a.Text())
		rec.PubURL, _ = a.Attr("href")
	} else {
		// Citation-only rows carry "[CITATION]" style markers in spans.
		clone := h3.Clone()
		clone.Find("span").Remove()
		rec.Title = collapse(clone.Text())
	}
	if rec.Title == "" {
		return rec, false
	}

	byline := strings.ReplaceAll(row.Find(".gs_a").First().Text(), "\u00a0", " ")
	parts := strings.Split(byline, " - ")
	for _, a := range strings.Split(parts[0], ",") {
		a = strings.Trim(collapse(a), "…")
		a = strings.TrimSpace(a)
		if a != "" {
			rec.Authors = append(rec.Authors, a)
		}
	}
	if len(parts) > 1 {
		venue := collapse(parts[1])
		if m := trailingYear.FindStringSubmatch(venue); m != nil {
			rec.Venue = strings.TrimSpace(strings.Trim(m[1], "…,"))
			rec.Year = m[2]
		} else {
			rec.Venue = strings.TrimSpace(strings.Trim(venue, "…"))
		}
	}

	rec.Abstract = strings.TrimSpace(strings.Trim(collapse(row.Find(".gs_rs").First().Text()), "…"))
	return rec, true
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
