package webfetch

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// Mode selects how a fetched page is reduced to text.
type Mode string

const (
	// ModeText strips non-content elements and flattens the rest.
	ModeText Mode = "text"
	// ModeReadability keeps only the main article as found by go-readability.
	ModeReadability Mode = "readability"
	// ModeMarkdown normalizes the stripped page through Markdown, which keeps
	// link and list text apart, and returns the Markdown's plain text.
	ModeMarkdown Mode = "markdown"
)

// ParseMode maps a config value onto a Mode. Empty selects ModeText.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeText, nil
	case ModeText, ModeReadability, ModeMarkdown:
		return m, nil
	}
	return "", fmt.Errorf("webfetch: unknown mode %q", s)
}

func (m Mode) extract(page []byte, pageURL string) (string, error) {
	switch m {
	case ModeReadability:
		return ExtractReadable(page, pageURL)
	case ModeMarkdown:
		return ExtractMarkdown(page)
	}
	return ExtractText(bytes.NewReader(page))
}

// ExtractReadable returns the flattened text of the page's main article.
// Pages readability cannot make sense of fall back to ExtractText.
func ExtractReadable(page []byte, pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("webfetch: parsing page url: %w", err)
	}
	article, err := readability.FromReader(bytes.NewReader(page), u)
	if err == nil {
		if text := strings.Join(strings.Fields(article.TextContent), " "); text != "" {
			return text, nil
		}
	}
	return ExtractText(bytes.NewReader(page))
}

// ExtractMarkdown strips the same elements as ExtractText, converts the
// remainder to Markdown and returns the text of that Markdown with every
// whitespace run collapsed. No Markdown syntax survives.
func ExtractMarkdown(page []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("webfetch: parsing document: %w", err)
	}
	doc.Find(strippedElements).Remove()
	html, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("webfetch: rendering document: %w", err)
	}
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("webfetch: converting to markdown: %w", err)
	}
	return markdownText([]byte(md))
}

var markdown = goldmark.New()

// markdownText walks the Markdown syntax tree and keeps only literal text.
func markdownText(src []byte) (string, error) {
	var b strings.Builder
	write := func(v []byte) {
		v = util.UnescapePunctuations(v)
		v = util.ResolveNumericReferences(v)
		b.Write(util.ResolveEntityNames(v))
	}

	root := markdown.Parser().Parse(text.NewReader(src))
	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				b.WriteByte(' ')
			}
			return ast.WalkContinue, nil
		}
		switch n := n.(type) {
		case *ast.Text:
			write(n.Segment.Value(src))
			if n.SoftLineBreak() || n.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			write(n.Value)
		case *ast.AutoLink:
			b.Write(n.Label(src))
		case *ast.CodeSpan:
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					b.Write(t.Segment.Value(src))
				}
			}
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(src))
				b.WriteByte(' ')
			}
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", fmt.Errorf("webfetch: reading markdown: %w", err)
	}
	return strings.Join(strings.Fields(b.String()), " "), nil
}
