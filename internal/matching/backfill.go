package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/regwatch/regwatch/internal/regwatch"
)

// Backfill defaults.
const (
	DefaultWindowDays = 90
	DefaultPageSize   = 100
	DefaultMaxPages   = 10
)

// BackfillOptions bounds a backfill run. Zero values take the defaults.
type BackfillOptions struct {
	WindowDays int
	PageSize   int
	MaxPages   int
}

func (o BackfillOptions) withDefaults() BackfillOptions {
	if o.WindowDays <= 0 {
		o.WindowDays = DefaultWindowDays
	}
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}
	return o
}

// BackfillSummary reports what one backfill run did.
type BackfillSummary struct {
	WatchListID string `json:"watch_list_id"`
	Pages       int    `json:"pages"`
	Scanned     int    `json:"scanned"`
	Created     int    `json:"created"`
	Existing    int    `json:"existing"`
	Suppressed  int    `json:"suppressed"`
	Failed      int    `json:"failed"`
	// Truncated is true when MaxPages stopped the run before history ran out.
	Truncated bool `json:"truncated"`
}

// BulkMatchWatchList evaluates one watch list against the updates fetched in the
// last WindowDays, newest first, reading at most MaxPages pages.
func (e *Engine) BulkMatchWatchList(
	ctx context.Context,
	watchListID, ownerID string,
	opts BackfillOptions,
) (BackfillSummary, error) {
	opts = opts.withDefaults()
	wl, err := e.watchLists.GetWatchList(ctx, watchListID, ownerID)
	if err != nil {
		return BackfillSummary{}, err
	}
	summary := BackfillSummary{WatchListID: wl.ID}
	since := e.clock.Now().Add(-time.Duration(opts.WindowDays) * 24 * time.Hour)

	var errs []error
	for page := 0; page < opts.MaxPages; page++ {
		updates, err := e.updates.ListUpdatesSince(ctx, since, opts.PageSize, page*opts.PageSize)
		if err != nil {
			return summary, errors.Join(append(errs, fmt.Errorf("list updates page %d: %w", page, err))...)
		}
		summary.Pages++
		for _, u := range updates {
			summary.Scanned++
			m, ok, err := e.evaluate(ctx, "backfill", wl, u)
			switch {
			case err != nil:
				summary.Failed++
				errs = append(errs, err)
			case !ok:
			case m.Status == regwatch.SaveCreated:
				summary.Created++
			case m.Status == regwatch.SaveExisting:
				summary.Existing++
			default:
				summary.Suppressed++
			}
		}
		if len(updates) < opts.PageSize {
			break
		}
		if page == opts.MaxPages-1 {
			summary.Truncated = true
		}
	}
	e.logger.Info("backfill finished",
		zap.String("watch_list_id", wl.ID),
		zap.Int("pages", summary.Pages),
		zap.Int("scanned", summary.Scanned),
		zap.Int("created", summary.Created),
		zap.Bool("truncated", summary.Truncated),
	)
	return summary, errors.Join(errs...)
}
