// Package useragent holds the browser identities sent on outbound requests.
package useragent

import (
	"net/http"
	"sync/atomic"
)

const (
	// Chrome is a complete desktop Chrome User-Agent. Search providers reject
	// clients that do not look like a browser, so search traffic uses it verbatim.
	Chrome = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

	// Generic is the short browser User-Agent sent when fetching arbitrary pages.
	Generic = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// DefaultPool provides a realistic set of modern User-Agents for desktop browsers.
var DefaultPool = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:122.0) Gecko/20100101 Firefox/122.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
}

// BrowserHeaders returns the fixed header set a desktop browser sends for a
// top-level navigation, using ua as the User-Agent.
func BrowserHeaders(ua string) http.Header {
	h := make(http.Header)
	h.Set("User-Agent", ua)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.5")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "none")
	h.Set("Sec-Fetch-User", "?1")
	return h
}

// Pool rotates through a fixed list of User-Agents. The zero value and a
// nil *Pool both yield "".
type Pool struct {
	uas  []string
	next atomic.Uint64
}

// NewPool copies uas into a rotation. An empty slice selects DefaultPool.
func NewPool(uas []string) *Pool {
	if len(uas) == 0 {
		uas = DefaultPool
	}
	return &Pool{uas: append([]string(nil), uas...)}
}

// Fixed returns a pool that always yields ua.
func Fixed(ua string) *Pool {
	return NewPool([]string{ua})
}

// Next returns the following User-Agent in round-robin order. It is safe for
// concurrent use.
func (p *Pool) Next() string {
	if p == nil || len(p.uas) == 0 {
		return ""
	}
	i := p.next.Add(1) - 1
	return p.uas[i%uint64(len(p.uas))]
}

// Len reports how many User-Agents the pool rotates through.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.uas)
}
