package ingest

import (
	"time"

	"go.uber.org/zap"

	"github.com/regwatch/regwatch/internal/collector"
	"github.com/regwatch/regwatch/internal/config"
	"github.com/regwatch/regwatch/internal/regwatch"
)

// BuildSources turns the configured feed and site lists into collectors, feeds first.
func BuildSources(
	cfg config.IngestConfig,
	fetcher regwatch.Fetcher,
	clock regwatch.Clock,
	recency time.Duration,
	logger *zap.Logger,
) ([]regwatch.Collector, error) {
	sources := make([]regwatch.Collector, 0, len(cfg.Feeds)+len(cfg.Sites))
	for _, f := range cfg.Feeds {
		sources = append(sources, collector.NewFeedSource(f.Name, f.URL, fetcher, logger))
	}
	for _, s := range cfg.Sites {
		site, err := collector.NewSiteSource(collector.SiteSpec{
			Name:           s.Name,
			BaseURL:        s.BaseURL,
			ListURL:        s.ListURL,
			ItemSelectors:  s.ItemSelectors,
			TitleSelectors: s.TitleSelectors,
			LinkSelectors:  s.LinkSelectors,
			DateSelectors:  s.DateSelectors,
		}, fetcher, clock, recency, logger)
		if err != nil {
			return nil, err
		}
		sources = append(sources, site)
	}
	return sources, nil
}
