// Package format renders pipeline results as the plain text returned to tool
// callers.
package format

import (
	"fmt"
	"strings"

	"github.com/FranksOps/searchmcp/internal/scholar"
	"github.com/FranksOps/searchmcp/internal/serp"
)

// Style selects how Scholar records are rendered.
type Style string

const (
	StyleText   Style = "text"
	StyleBibTeX Style = "bibtex"
)

const (
	NoSearchResults  = "No results were found for your search query. This could be due to DuckDuckGo's bot detection or the query returned no matches. Please try rephrasing your search or try again in a few minutes."
	NoScholarResults = "No results were found for your search query on Google Scholar."

	missing = "N/A"
)

// ParseStyle maps a tool argument onto a Style. Anything other than "text"
// selects BibTeX.
func ParseStyle(s string) Style {
	if Style(strings.ToLower(strings.TrimSpace(s))) == StyleText {
		return StyleText
	}
	return StyleBibTeX
}

// SearchResults renders web search hits as numbered blocks.
func SearchResults(results []serp.Result) string {
	if len(results) == 0 {
		return NoSearchResults
	}

	lines := []string{header(len(results))}
	for _, r := range results {
		lines = append(lines,
			fmt.Sprintf("%d. %s", r.Position, r.Title),
			"   URL: "+r.Link,
			"   Summary: "+r.Snippet,
			"",
		)
	}
	return strings.Join(lines, "\n")
}

// ScholarRecords renders publications in the given style.
func ScholarRecords(records []scholar.Record, style Style) string {
	if len(records) == 0 {
		return NoScholarResults
	}

	lines := []string{header(len(records))}
	for i, rec := range records {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, orNA(rec.Title)))
		if style == StyleText {
			lines = append(lines,
				"   Authors: "+orNA(strings.Join(rec.Authors, ", ")),
				"   Venue: "+orNA(rec.Venue),
				"   Year: "+orNA(rec.Year),
				"   URL: "+orNA(rec.PubURL),
				"Abstract:\n"+orNA(rec.Abstract),
			)
		} else {
			lines = append(lines, orNA(rec.BibTeX))
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func header(n int) string {
	return fmt.Sprintf("Found %d search results:\n", n)
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return missing
	}
	return s
}
