package serp

import (
	"context"

	"github.com/FranksOps/searchmcp/internal/notify"
	"github.com/FranksOps/searchmcp/internal/scraper"
)

// Result is one organic web search hit. Position is 1-based and contiguous
// within a single response.
type Result struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Position int    `json:"position"`
}

// Provider abstracts a web search engine. Implementations report failures
// through the sink and return an empty slice instead of an error.
type Provider interface {
	Search(ctx context.Context, sink notify.Sink, query string, maxResults int) []Result
}

// Requester issues outbound HTTP requests; *scraper.Fetcher satisfies it.
type Requester interface {
	Do(ctx context.Context, req scraper.Request) (*scraper.Response, error)
}
