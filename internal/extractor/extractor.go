// Package extractor fetches one article and reduces it to bounded plain text for classification.
package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/regwatch/regwatch/internal/logging"
	"github.com/regwatch/regwatch/internal/regwatch"
)

// ErrExtraction marks a terminal failure for one URL within the current run.
var ErrExtraction = errors.New("extraction failed")

// DefaultMaxChars bounds the text handed to the classifier.
const DefaultMaxChars = 12000

var (
	whitespace = regexp.MustCompile(`\s+`)
	// Elements that never carry article text.
	boilerplate = "script, style, noscript, template, iframe, svg, form, nav, footer, header, aside"
	// Preferred content roots, most specific first.
	contentRoots = []string{"article", "main", "[role=main]", "#content", ".content", "body"}
)

// Extractor turns a URL into normalized article text.
type Extractor struct {
	fetcher  regwatch.Fetcher
	maxChars int
	logger   *zap.Logger
}

// New returns an Extractor. maxChars <= 0 selects DefaultMaxChars.
func New(fetcher regwatch.Fetcher, maxChars int, logger *zap.Logger) *Extractor {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Extractor{
		fetcher:  fetcher,
		maxChars: maxChars,
		logger:   logging.Component(logger, "extractor"),
	}
}

// Extract fetches rawURL and returns its visible text. Every failure wraps ErrExtraction.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("%w: %q is not an absolute url", ErrExtraction, rawURL)
	}
	resp, err := e.fetcher.Fetch(ctx, regwatch.FetchRequest{URL: u.String()})
	if err != nil {
		return "", fmt.Errorf("%w: fetch %s: %v", ErrExtraction, rawURL, err)
	}
	text, err := CleanHTML(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: parse %s: %v", ErrExtraction, rawURL, err)
	}
	if text == "" {
		return "", fmt.Errorf("%w: no text in %s", ErrExtraction, rawURL)
	}
	truncated := Truncate(text, e.maxChars)
	e.logger.Debug("extracted article",
		zap.String("url", rawURL),
		zap.Int("chars", utf8.RuneCountInString(truncated)),
		zap.Bool("truncated", len(truncated) < len(text)),
	)
	return truncated, nil
}

// CleanHTML strips markup and boilerplate and collapses whitespace.
func CleanHTML(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find(boilerplate).Remove()

	for _, sel := range contentRoots {
		root := doc.Find(sel).First()
		if root.Length() == 0 {
			continue
		}
		if text := collapse(root.Text()); text != "" {
			return text, nil
		}
	}
	return collapse(doc.Text()), nil
}

// Truncate cuts s to at most maxChars runes without splitting a rune.
func Truncate(s string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:maxChars]))
}

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
