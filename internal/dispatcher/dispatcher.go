// Package dispatcher turns stored match records into best-effort side effects:
// owner notifications, dossier auto-filing and match events.
package dispatcher

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/regwatch/regwatch/internal/logging"
	"github.com/regwatch/regwatch/internal/metrics"
	"github.com/regwatch/regwatch/internal/regwatch"
)

// Config controls Dispatcher behavior.
type Config struct {
	// Topic receives match events. Empty disables publishing.
	Topic string
}

// Dispatcher fans a match record out to its watch list's configured side effects.
type Dispatcher struct {
	notifications regwatch.NotificationStore
	dossiers      regwatch.DossierStore
	publisher     regwatch.Publisher
	ids           regwatch.IDGenerator
	clock         regwatch.Clock
	cfg           Config
	logger        *zap.Logger
}

// New creates a Dispatcher. publisher may be nil.
func New(
	notifications regwatch.NotificationStore,
	dossiers regwatch.DossierStore,
	publisher regwatch.Publisher,
	ids regwatch.IDGenerator,
	clock regwatch.Clock,
	cfg Config,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		notifications: notifications,
		dossiers:      dossiers,
		publisher:     publisher,
		ids:           ids,
		clock:         clock,
		cfg:           cfg,
		logger:        logging.Component(logger, "dispatcher"),
	}
}

// Result reports each side effect independently. A nil error with a false
// flag means the effect was not configured or had already happened.
type Result struct {
	Notified   bool
	NotifyErr  error
	Filed      bool
	FileErr    error
	Published  bool
	PublishErr error
}

// Failed reports whether any side effect errored.
func (r Result) Failed() bool {
	return r.NotifyErr != nil || r.FileErr != nil || r.PublishErr != nil
}

// MatchEvent is the payload published for a new match.
type MatchEvent struct {
	Type        string    `json:"type"`
	MatchID     string    `json:"match_id"`
	WatchListID string    `json:"watch_list_id"`
	OwnerID     string    `json:"owner_id"`
	UpdateID    string    `json:"update_id"`
	URL         string    `json:"url"`
	Headline    string    `json:"headline"`
	Score       float64   `json:"score"`
	Reasons     []string  `json:"reasons"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// EventType implements the pubsub attribute hook.
func (e MatchEvent) EventType() string { return e.Type }

// Dispatch runs every configured side effect for match. Failures are logged and
// counted; none of them touch the match record.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	wl regwatch.WatchList,
	update regwatch.RegulatoryUpdate,
	match regwatch.MatchRecord,
	status regwatch.SaveStatus,
) Result {
	var res Result
	logger := d.logger.With(
		zap.String("match_id", match.ID),
		zap.String("watch_list_id", wl.ID),
		zap.String("update_id", update.ID),
	)

	if wl.AlertOnMatch {
		res.Notified, res.NotifyErr = d.notify(ctx, wl, update, match)
		if res.NotifyErr != nil {
			metrics.ObserveFanOutFailure("notify")
			logger.Warn("notification failed", zap.Error(res.NotifyErr))
		}
	}

	if target := strings.TrimSpace(wl.AutoFileTargetID); target != "" {
		res.Filed, res.FileErr = d.dossiers.AddDossierItem(ctx, regwatch.DossierItem{
			DossierID: target,
			UpdateID:  update.ID,
			OwnerID:   wl.OwnerID,
			Note:      ProvenanceNote(wl, match.Score),
			AddedAt:   d.clock.Now(),
		})
		if res.FileErr != nil {
			metrics.ObserveFanOutFailure("autofile")
			logger.Warn("auto-file failed", zap.String("dossier_id", target), zap.Error(res.FileErr))
		}
	}

	if d.publisher != nil && d.cfg.Topic != "" {
		event := MatchEvent{
			Type:        "match." + string(status),
			MatchID:     match.ID,
			WatchListID: wl.ID,
			OwnerID:     wl.OwnerID,
			UpdateID:    update.ID,
			URL:         update.URL,
			Headline:    update.Headline,
			Score:       match.Score,
			Reasons:     match.Reasons,
			OccurredAt:  d.clock.Now(),
		}
		if _, err := d.publisher.Publish(ctx, d.cfg.Topic, event); err != nil {
			res.PublishErr = fmt.Errorf("publish %s: %w", event.Type, err)
			metrics.ObserveFanOutFailure("publish")
			logger.Warn("match event publish failed", zap.Error(res.PublishErr))
		} else {
			res.Published = true
		}
	}
	return res
}

func (d *Dispatcher) notify(
	ctx context.Context,
	wl regwatch.WatchList,
	update regwatch.RegulatoryUpdate,
	match regwatch.MatchRecord,
) (bool, error) {
	id, err := d.ids.NewID()
	if err != nil {
		return false, fmt.Errorf("notification id: %w", err)
	}
	created, err := d.notifications.CreateNotification(ctx, regwatch.Notification{
		ID:          id,
		OwnerID:     wl.OwnerID,
		MatchID:     match.ID,
		WatchListID: wl.ID,
		UpdateID:    update.ID,
		Title:       fmt.Sprintf("%s matched %q", wl.DisplayName(), update.Headline),
		Body:        notificationBody(update, match),
		CreatedAt:   d.clock.Now(),
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func notificationBody(update regwatch.RegulatoryUpdate, match regwatch.MatchRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d%% match", percent(match.Score))
	if update.Authority != "" {
		fmt.Fprintf(&b, " on a %s update", update.Authority)
	}
	if len(match.Reasons) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(match.Reasons, "; "))
	}
	if update.URL != "" {
		b.WriteString(". ")
		b.WriteString(update.URL)
	}
	return b.String()
}

// ProvenanceNote is the note stored on an auto-filed dossier item.
func ProvenanceNote(wl regwatch.WatchList, score float64) string {
	return fmt.Sprintf("Auto-added by watch list %q at %d%% match", wl.DisplayName(), percent(score))
}

func percent(score float64) int {
	return int(math.Round(score * 100))
}
