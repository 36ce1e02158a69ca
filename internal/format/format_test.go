package format

import (
	"strings"
	"testing"

	"github.com/FranksOps/searchmcp/internal/scholar"
	"github.com/FranksOps/searchmcp/internal/serp"
)

func TestSearchResults(t *testing.T) {
	got := SearchResults([]serp.Result{
		{Title: "Go", Link: "https://go.dev/", Snippet: "The Go language.", Position: 1},
		{Title: "Tour", Link: "https://go.dev/tour", Position: 2},
	})

	want := "Found 2 search results:\n\n" +
		"1. Go\n" +
		"   URL: https://go.dev/\n" +
		"   Summary: The Go language.\n" +
		"\n" +
		"2. Tour\n" +
		"   URL: https://go.dev/tour\n" +
		"   Summary: \n"
	if got != want {
		t.Errorf("unexpected output:\n%q\nwant\n%q", got, want)
	}
}

func TestSearchResults_Empty(t *testing.T) {
	for _, in := range [][]serp.Result{nil, {}} {
		if got := SearchResults(in); got != NoSearchResults {
			t.Errorf("expected fixed sentence, got %q", got)
		}
	}
	if !strings.Contains(NoSearchResults, "bot detection") {
		t.Error("empty-result sentence should mention bot detection")
	}
}

func TestScholarRecords_Text(t *testing.T) {
	records := []scholar.Record{
		{
			Title:    "Attention is all you need",
			Authors:  []string{"A Vaswani", "N Shazeer"},
			Venue:    "NeurIPS",
			Year:     "2017",
			PubURL:   "https://arxiv.org/abs/1706.03762",
			Abstract: "Transformers.",
		},
		{Title: "Untitled draft"},
	}

	got := ScholarRecords(records, StyleText)
	want := "Found 2 search results:\n\n" +
		"1. Attention is all you need\n" +
		"   Authors: A Vaswani, N Shazeer\n" +
		"   Venue: NeurIPS\n" +
		"   Year: 2017\n" +
		"   URL: https://arxiv.org/abs/1706.03762\n" +
		"Abstract:\nTransformers.\n" +
		"\n" +
		"2. Untitled draft\n" +
		"   Authors: N/A\n" +
		"   Venue: N/A\n" +
		"   Year: N/A\n" +
		"   URL: N/A\n" +
		"Abstract:\nN/A\n"
	if got != want {
		t.Errorf("unexpected output:\n%q\nwant\n%q", got, want)
	}
}

func TestScholarRecords_BibTeX(t *testing.T) {
	records := []scholar.Record{
		{Title: "Deep learning", BibTeX: "@article{lecun2015deep}"},
		{BibTeX: ""},
	}

	want := "Found 2 search results:\n\n" +
		"1. Deep learning\n" +
		"@article{lecun2015deep}\n" +
		"\n" +
		"2. N/A\n" +
		"N/A\n"
	for _, style := range []Style{StyleBibTeX, Style("markdown")} {
		if got := ScholarRecords(records, style); got != want {
			t.Errorf("style %q: unexpected output:\n%q\nwant\n%q", style, got, want)
		}
	}
}

func TestScholarRecords_Empty(t *testing.T) {
	if got := ScholarRecords(nil, StyleText); got != NoScholarResults {
		t.Errorf("expected fixed sentence, got %q", got)
	}
}

func TestParseStyle(t *testing.T) {
	tests := map[string]Style{
		"text":   StyleText,
		" TEXT ": StyleText,
		"bibtex": StyleBibTeX,
		"":       StyleBibTeX,
		"yaml":   StyleBibTeX,
	}
	for in, want := range tests {
		if got := ParseStyle(in); got != want {
			t.Errorf("ParseStyle(%q) = %q, want %q", in, got, want)
		}
	}
}
