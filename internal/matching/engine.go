package matching

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/regwatch/regwatch/internal/dispatcher"
	"github.com/regwatch/regwatch/internal/logging"
	"github.com/regwatch/regwatch/internal/metrics"
	"github.com/regwatch/regwatch/internal/regwatch"
)

// FanOut receives every newly created match record.
type FanOut interface {
	Dispatch(
		ctx context.Context,
		wl regwatch.WatchList,
		update regwatch.RegulatoryUpdate,
		match regwatch.MatchRecord,
		status regwatch.SaveStatus,
	) dispatcher.Result
}

// Match is one stored evaluation.
type Match struct {
	WatchListID string
	Record      regwatch.MatchRecord
	Status      regwatch.SaveStatus
}

// Engine evaluates updates against watch lists and persists qualifying matches.
type Engine struct {
	updates    regwatch.UpdateStore
	watchLists regwatch.WatchListStore
	matches    regwatch.MatchStore
	fanOut     FanOut
	ids        regwatch.IDGenerator
	clock      regwatch.Clock
	logger     *zap.Logger
}

// NewEngine constructs an Engine. fanOut may be nil.
func NewEngine(
	updates regwatch.UpdateStore,
	watchLists regwatch.WatchListStore,
	matches regwatch.MatchStore,
	fanOut FanOut,
	ids regwatch.IDGenerator,
	clock regwatch.Clock,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		updates:    updates,
		watchLists: watchLists,
		matches:    matches,
		fanOut:     fanOut,
		ids:        ids,
		clock:      clock,
		logger:     logging.Component(logger, "matching"),
	}
}

// MatchUpdateAgainstWatchLists evaluates one update against every active watch
// list of ownerID (all owners when empty). A nil update is loaded by updateID.
func (e *Engine) MatchUpdateAgainstWatchLists(
	ctx context.Context,
	updateID string,
	update *regwatch.RegulatoryUpdate,
	ownerID string,
) ([]Match, error) {
	var u regwatch.RegulatoryUpdate
	if update != nil {
		u = *update
		if u.ID == "" {
			u.ID = updateID
		}
	} else {
		loaded, err := e.updates.GetUpdate(ctx, updateID)
		if err != nil {
			return nil, err
		}
		u = loaded
	}
	return e.MatchUpdate(ctx, u, ownerID)
}

// MatchUpdate evaluates u against the active watch lists sequentially. A failure
// on one watch list does not stop the others; all failures are joined.
func (e *Engine) MatchUpdate(ctx context.Context, u regwatch.RegulatoryUpdate, ownerID string) ([]Match, error) {
	lists, err := e.watchLists.ListActiveWatchLists(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list watch lists: %w", err)
	}
	var (
		out  []Match
		errs []error
	)
	for _, wl := range lists {
		m, ok, err := e.evaluate(ctx, "streaming", wl, u)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			out = append(out, m)
		}
	}
	return out, errors.Join(errs...)
}

// evaluate scores one pair and persists the record when it qualifies. ok is
// false when the score fell below the threshold.
func (e *Engine) evaluate(
	ctx context.Context,
	mode string,
	wl regwatch.WatchList,
	u regwatch.RegulatoryUpdate,
) (Match, bool, error) {
	score := Evaluate(wl, u)
	if !score.Qualifies(wl.AlertThreshold) {
		metrics.ObserveMatch(mode, "below_threshold")
		return Match{}, false, nil
	}
	id, err := e.ids.NewID()
	if err != nil {
		return Match{}, false, fmt.Errorf("match id: %w", err)
	}
	rec, status, err := e.matches.SaveMatch(ctx, regwatch.MatchRecord{
		ID:          id,
		WatchListID: wl.ID,
		UpdateID:    u.ID,
		Score:       score.Value,
		Reasons:     score.Reasons,
		CreatedAt:   e.clock.Now(),
	})
	if err != nil {
		metrics.ObserveMatch(mode, "error")
		return Match{}, false, fmt.Errorf("save match for watch list %s: %w", wl.ID, err)
	}
	metrics.ObserveMatch(mode, string(status))
	e.logger.Debug("match saved",
		zap.String("mode", mode),
		zap.String("watch_list_id", wl.ID),
		zap.String("update_id", u.ID),
		zap.Float64("score", rec.Score),
		zap.String("status", string(status)),
	)
	if status == regwatch.SaveCreated && e.fanOut != nil {
		e.fanOut.Dispatch(ctx, wl, u, rec, status)
	}
	return Match{WatchListID: wl.ID, Record: rec, Status: status}, true, nil
}
