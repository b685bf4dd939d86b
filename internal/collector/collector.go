// Package collector discovers candidate items from feed endpoints and scraped listing pages.
//
// Every source degrades instead of failing: Collect returns whatever it could
// gather plus, at most, an error explaining why the result is empty or partial.
package collector

import (
	"errors"
	"net/url"
	"strings"
)

// ErrSourceUnavailable wraps any failure to fetch or parse a whole source.
var ErrSourceUnavailable = errors.New("source unavailable")

// resolveLink turns href into an absolute http(s) URL relative to base.
// ok is false for fragments, mail links and script URLs.
func resolveLink(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := ref
	if base != nil {
		abs = base.ResolveReference(ref)
	}
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	abs.Fragment = ""
	return abs.String(), true
}
