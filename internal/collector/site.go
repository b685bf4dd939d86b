package collector

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/regwatch/regwatch/internal/logging"
	"github.com/regwatch/regwatch/internal/regwatch"
)

// DefaultRecency is how far back a scraped item may be dated.
const DefaultRecency = 7 * 24 * time.Hour

var (
	defaultTitleSelectors = []string{"h2 a", "h3 a", "h4 a", "h2", "h3", "h4", "a"}
	defaultLinkSelectors  = []string{"h2 a[href]", "h3 a[href]", "h4 a[href]", "a[href]"}
	defaultDateSelectors  = []string{"time[datetime]", "time", ".date", ".published", ".meta-date"}
)

// SiteSpec describes how to scrape one listing page.
type SiteSpec struct {
	Name    string
	BaseURL string
	ListURL string
	// ItemSelectors are tried in order; the first that matches anything wins.
	ItemSelectors  []string
	TitleSelectors []string
	LinkSelectors  []string
	DateSelectors  []string
}

// SiteSource scrapes a regulator's news listing.
type SiteSource struct {
	spec    SiteSpec
	base    *url.URL
	fetcher regwatch.Fetcher
	clock   regwatch.Clock
	recency time.Duration
	logger  *zap.Logger
}

// NewSiteSource validates spec and fills selector defaults.
func NewSiteSource(
	spec SiteSpec,
	fetcher regwatch.Fetcher,
	clock regwatch.Clock,
	recency time.Duration,
	logger *zap.Logger,
) (*SiteSource, error) {
	if len(spec.ItemSelectors) == 0 {
		return nil, fmt.Errorf("site %q: item selectors are required", spec.Name)
	}
	baseRaw := spec.BaseURL
	if baseRaw == "" {
		baseRaw = spec.ListURL
	}
	base, err := url.Parse(baseRaw)
	if err != nil || !base.IsAbs() {
		return nil, fmt.Errorf("site %q: base url %q must be absolute", spec.Name, baseRaw)
	}
	if len(spec.TitleSelectors) == 0 {
		spec.TitleSelectors = defaultTitleSelectors
	}
	if len(spec.LinkSelectors) == 0 {
		spec.LinkSelectors = defaultLinkSelectors
	}
	if len(spec.DateSelectors) == 0 {
		spec.DateSelectors = defaultDateSelectors
	}
	if recency <= 0 {
		recency = DefaultRecency
	}
	return &SiteSource{
		spec:    spec,
		base:    base,
		fetcher: fetcher,
		clock:   clock,
		recency: recency,
		logger:  logging.Component(logger, "collector.site").With(zap.String("source", spec.Name)),
	}, nil
}

// Name returns the configured source name.
func (s *SiteSource) Name() string {
	return s.spec.Name
}

// Collect fetches the listing and returns dated, recent items.
func (s *SiteSource) Collect(ctx context.Context) ([]regwatch.CandidateItem, error) {
	resp, err := s.fetcher.Fetch(ctx, regwatch.FetchRequest{URL: s.spec.ListURL})
	if err != nil {
		return nil, fmt.Errorf("%w: fetch listing %s: %v", ErrSourceUnavailable, s.spec.ListURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse listing %s: %v", ErrSourceUnavailable, s.spec.ListURL, err)
	}

	nodes, selector := s.findItems(doc)
	if nodes == nil {
		s.logger.Warn("no item selector matched", zap.Strings("selectors", s.spec.ItemSelectors))
		return nil, nil
	}

	now := s.clock.Now().UTC()
	cutoff := startOfDay(now.Add(-s.recency))
	horizon := now.Add(24 * time.Hour)

	var (
		items               []regwatch.CandidateItem
		undated, stale, bad int
	)
	seen := make(map[string]struct{})
	nodes.Each(func(_ int, node *goquery.Selection) {
		title := firstText(node, s.spec.TitleSelectors)
		link, ok := s.firstLink(node)
		if title == "" || !ok {
			bad++
			return
		}
		published, ok := s.itemDate(node)
		if !ok {
			undated++
			return
		}
		if published.Before(cutoff) || published.After(horizon) {
			stale++
			return
		}
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		items = append(items, regwatch.CandidateItem{
			Title:       title,
			Link:        link,
			PublishedAt: published,
			SourceName:  s.spec.Name,
		})
	})
	s.logger.Debug("listing scraped",
		zap.String("selector", selector),
		zap.Int("items", len(items)),
		zap.Int("undated", undated),
		zap.Int("stale", stale),
		zap.Int("malformed", bad),
	)
	return items, nil
}

func (s *SiteSource) findItems(doc *goquery.Document) (*goquery.Selection, string) {
	for _, sel := range s.spec.ItemSelectors {
		if found := doc.Find(sel); found.Length() > 0 {
			return found, sel
		}
	}
	return nil, ""
}

func (s *SiteSource) firstLink(node *goquery.Selection) (string, bool) {
	if goquery.NodeName(node) == "a" {
		if href, ok := node.Attr("href"); ok {
			if link, ok := resolveLink(s.base, href); ok {
				return link, true
			}
		}
	}
	for _, sel := range s.spec.LinkSelectors {
		found := node.Find(sel)
		for i := range found.Nodes {
			href, ok := found.Eq(i).Attr("href")
			if !ok {
				continue
			}
			if link, ok := resolveLink(s.base, href); ok {
				return link, true
			}
		}
	}
	return "", false
}

// itemDate prefers an explicit date node and falls back to scanning the item's text.
func (s *SiteSource) itemDate(node *goquery.Selection) (time.Time, bool) {
	for _, sel := range s.spec.DateSelectors {
		found := node.Find(sel).First()
		if found.Length() == 0 {
			continue
		}
		if attr, ok := found.Attr("datetime"); ok {
			if t, ok := ParseDate(attr); ok {
				return t, true
			}
		}
		if t, ok := ParseDate(found.Text()); ok {
			return t, true
		}
	}
	return ScanDate(node.Text())
}

func firstText(node *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		if text := strings.Join(strings.Fields(node.Find(sel).First().Text()), " "); text != "" {
			return text
		}
	}
	if goquery.NodeName(node) == "a" {
		return strings.Join(strings.Fields(node.Text()), " ")
	}
	return ""
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
