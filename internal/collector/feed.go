package collector

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/regwatch/regwatch/internal/logging"
	"github.com/regwatch/regwatch/internal/regwatch"
)

// FeedSource collects items from one RSS, Atom or JSON feed.
type FeedSource struct {
	name    string
	feedURL string
	fetcher regwatch.Fetcher
	parser  *gofeed.Parser
	logger  *zap.Logger
}

// NewFeedSource builds a source for one (name, feedURL) pair.
func NewFeedSource(name, feedURL string, fetcher regwatch.Fetcher, logger *zap.Logger) *FeedSource {
	return &FeedSource{
		name:    name,
		feedURL: feedURL,
		fetcher: fetcher,
		parser:  gofeed.NewParser(),
		logger:  logging.Component(logger, "collector.feed").With(zap.String("source", name)),
	}
}

// Name returns the configured source name.
func (s *FeedSource) Name() string {
	return s.name
}

// Collect fetches and parses the feed. Items without a usable link are dropped.
func (s *FeedSource) Collect(ctx context.Context) ([]regwatch.CandidateItem, error) {
	resp, err := s.fetcher.Fetch(ctx, regwatch.FetchRequest{URL: s.feedURL})
	if err != nil {
		return nil, fmt.Errorf("%w: fetch feed %s: %v", ErrSourceUnavailable, s.feedURL, err)
	}
	feed, err := s.parser.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse feed %s: %v", ErrSourceUnavailable, s.feedURL, err)
	}

	base, _ := url.Parse(s.feedURL)
	if feed.Link != "" {
		if link, err := url.Parse(feed.Link); err == nil && link.IsAbs() {
			base = link
		}
	}

	seen := make(map[string]struct{}, len(feed.Items))
	items := make([]regwatch.CandidateItem, 0, len(feed.Items))
	dropped := 0
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		link, ok := resolveLink(base, it.Link)
		if !ok {
			dropped++
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		items = append(items, regwatch.CandidateItem{
			Title:       strings.TrimSpace(it.Title),
			Link:        link,
			PublishedAt: itemTime(it),
			SourceName:  s.name,
		})
	}
	s.logger.Debug("feed collected", zap.Int("items", len(items)), zap.Int("dropped", dropped))
	return items, nil
}

func itemTime(it *gofeed.Item) time.Time {
	switch {
	case it.PublishedParsed != nil:
		return it.PublishedParsed.UTC()
	case it.UpdatedParsed != nil:
		return it.UpdatedParsed.UTC()
	default:
		return time.Time{}
	}
}
