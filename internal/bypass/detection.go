package bypass

import (
	"bytes"
	"net/http"
	"strings"
)

// Response is the slice of an HTTP exchange the detectors look at.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Detector examines a response to determine if a bot protection mechanism
// blocked or challenged the request.
type Detector func(res *Response) (detected bool, source string)

// DefaultDetectors returns the CDN-level detectors that apply to any site.
func DefaultDetectors() []Detector {
	return []Detector{
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
	}
}

// SearchDetectors adds the search-provider specific challenge pages to the
// default set.
func SearchDetectors() []Detector {
	return append(DefaultDetectors(), detectDuckDuckGo, detectGoogle)
}

// Analyze runs res through detectors and reports the first match.
func Analyze(res *Response, detectors []Detector) (bool, string) {
	if res == nil {
		return false, ""
	}
	for _, d := range detectors {
		if detected, source := d(res); detected {
			return true, source
		}
	}
	return false, ""
}

func server(res *Response) string {
	return strings.ToLower(res.Headers.Get("Server"))
}

func bodyContains(res *Response, needles ...string) bool {
	for _, n := range needles {
		if bytes.Contains(res.Body, []byte(n)) {
			return true
		}
	}
	return false
}

// detectCloudflare looks for common Cloudflare challenge/block signatures.
func detectCloudflare(res *Response) (bool, string) {
	if res.StatusCode != http.StatusForbidden && res.StatusCode != http.StatusServiceUnavailable {
		return false, ""
	}
	if strings.Contains(server(res), "cloudflare") {
		return true, "Cloudflare"
	}
	if bodyContains(res, "cf-browser-verification", "cloudflare-nginx", "cf-turnstile", "Attention Required! | Cloudflare") {
		return true, "Cloudflare"
	}
	return false, ""
}

// detectAkamai looks for Akamai Bot Manager signatures.
func detectAkamai(res *Response) (bool, string) {
	if res.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(server(res), "akamai") {
		return true, "Akamai"
	}
	// Akamai often returns a generic "Reference #" block page
	if bodyContains(res, "Reference #") && bodyContains(res, "Access Denied") {
		return true, "Akamai"
	}
	return false, ""
}

// detectDataDome looks for DataDome challenge/block signatures.
func detectDataDome(res *Response) (bool, string) {
	if res.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(server(res), "datadome") {
		return true, "DataDome"
	}
	if res.Headers.Get("X-DataDome") != "" || res.Headers.Get("X-DataDome-Response") != "" {
		return true, "DataDome"
	}
	if bodyContains(res, "geo.captcha-delivery.com", "datadome") {
		return true, "DataDome"
	}
	return false, ""
}

// detectPerimeterX looks for PerimeterX (HUMAN) signatures.
func detectPerimeterX(res *Response) (bool, string) {
	if res.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if res.Headers.Get("X-Px-Captcha") != "" {
		return true, "PerimeterX"
	}
	if bodyContains(res, "client.perimeterx.net", "px-captcha", "_pxBlock") {
		return true, "PerimeterX"
	}
	return false, ""
}

// detectDuckDuckGo matches the anomaly challenge the HTML endpoint serves,
// usually with a 200 or 202 status and no results.
func detectDuckDuckGo(res *Response) (bool, string) {
	if bodyContains(res, "anomaly-modal", "bots use DuckDuckGo too") {
		return true, "DuckDuckGo"
	}
	return false, ""
}

// detectGoogle matches the Google "sorry" interstitial and the Scholar captcha.
// Result pages can quote the interstitial's wording, so plain text only
// counts on a non-200 status; a 200 needs the challenge form itself.
func detectGoogle(res *Response) (bool, string) {
	if res.StatusCode == http.StatusTooManyRequests && strings.Contains(res.Headers.Get("Location"), "/sorry/") {
		return true, "Google"
	}
	if bodyContains(res, "id=\"gs_captcha_f\"", "id=\"gs_captcha_c\"", "action=\"/sorry/index", "action=\"https://www.google.com/sorry/index") {
		return true, "Google"
	}
	if res.StatusCode != http.StatusOK && bodyContains(res, "unusual traffic from your computer network") {
		return true, "Google"
	}
	return false, ""
}
