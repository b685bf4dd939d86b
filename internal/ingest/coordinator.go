// Package ingest runs the collection pass: dedup, extract, classify, persist and
// match, one candidate at a time.
package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/regwatch/regwatch/internal/classifier"
	"github.com/regwatch/regwatch/internal/logging"
	"github.com/regwatch/regwatch/internal/matching"
	"github.com/regwatch/regwatch/internal/metrics"
	"github.com/regwatch/regwatch/internal/regwatch"
)

// Extractor reduces one URL to article text.
type Extractor interface {
	Extract(ctx context.Context, url string) (string, error)
}

// Classifier turns article text into a classifier.Result.
type Classifier interface {
	Classify(ctx context.Context, text string) (classifier.Result, error)
}

// Matcher evaluates a freshly stored update against watch lists.
type Matcher interface {
	MatchUpdate(ctx context.Context, u regwatch.RegulatoryUpdate, ownerID string) ([]matching.Match, error)
}

// Coordinator owns one ingestion run over a fixed source list.
type Coordinator struct {
	sources    []regwatch.Collector
	updates    regwatch.UpdateStore
	extractor  Extractor
	classifier Classifier
	matcher    Matcher
	archive    *Archive
	ids        regwatch.IDGenerator
	clock      regwatch.Clock
	logger     *zap.Logger
}

// NewCoordinator wires a Coordinator. A nil classifier means the inference
// credential is absent: every new item is skipped without extraction. matcher
// and archive may be nil.
func NewCoordinator(
	sources []regwatch.Collector,
	updates regwatch.UpdateStore,
	extractor Extractor,
	classifier Classifier,
	matcher Matcher,
	archive *Archive,
	ids regwatch.IDGenerator,
	clock regwatch.Clock,
	logger *zap.Logger,
) *Coordinator {
	return &Coordinator{
		sources:    sources,
		updates:    updates,
		extractor:  extractor,
		classifier: classifier,
		matcher:    matcher,
		archive:    archive,
		ids:        ids,
		clock:      clock,
		logger:     logging.Component(logger, "ingest"),
	}
}

// run holds per-run state.
type run struct {
	summary       RunSummary
	attempted     map[string]struct{}
	warnedNoCreds bool
}

// RunIngestion executes one collection pass across all sources, sequentially.
// The error is non-nil only when ctx ended the run early; the partial summary is still returned.
func (c *Coordinator) RunIngestion(ctx context.Context) (RunSummary, error) {
	r := &run{
		summary:   RunSummary{StartedAt: c.clock.Now(), Sources: []SourceSummary{}, Outcomes: []ItemOutcome{}},
		attempted: make(map[string]struct{}),
	}
	var runErr error
	for _, src := range c.sources {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if err := c.runSource(ctx, r, src); err != nil {
			runErr = err
			break
		}
	}
	r.summary.FinishedAt = c.clock.Now()

	status := "ok"
	switch {
	case runErr != nil:
		status = "interrupted"
	case r.summary.Totals.Failed > 0:
		status = "partial"
	}
	metrics.ObserveRun(status)
	c.logger.Info("ingestion run finished",
		zap.String("status", status),
		zap.Int("sources", len(r.summary.Sources)),
		zap.Int("processed", r.summary.Totals.Processed),
		zap.Int("skipped", r.summary.Totals.Skipped),
		zap.Int("failed", r.summary.Totals.Failed),
		zap.Duration("elapsed", r.summary.FinishedAt.Sub(r.summary.StartedAt)),
	)
	return r.summary, runErr
}

func (c *Coordinator) runSource(ctx context.Context, r *run, src regwatch.Collector) error {
	name := src.Name()
	ss := SourceSummary{Name: name}
	items, err := src.Collect(ctx)
	if err != nil {
		ss.Error = err.Error()
		metrics.ObserveSourceFailure(name)
		c.logger.Warn("source unavailable", zap.String("source", name), zap.Error(err))
	}
	ss.Candidates = len(items)

	var ctxErr error
	for _, item := range items {
		if ctxErr = ctx.Err(); ctxErr != nil {
			break
		}
		out := c.processItem(ctx, r, name, item)
		ss.add(out.Outcome)
		r.summary.Totals.add(out.Outcome)
		r.summary.Outcomes = append(r.summary.Outcomes, out)
		metrics.ObserveItem(name, string(out.Outcome))
	}
	r.summary.Sources = append(r.summary.Sources, ss)
	return ctxErr
}

// processItem is one isolated attempt; it never returns an error.
func (c *Coordinator) processItem(ctx context.Context, r *run, source string, item regwatch.CandidateItem) ItemOutcome {
	out := ItemOutcome{SourceName: source, URL: item.Link}
	logger := c.logger.With(zap.String("source", source), zap.String("url", item.Link))
	fail := func(o Outcome, detail string, err error) ItemOutcome {
		out.Outcome, out.Detail = o, detail
		fields := []zap.Field{zap.String("outcome", string(o))}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		if detail != "" {
			fields = append(fields, zap.String("detail", detail))
		}
		logger.Warn("item not stored", fields...)
		return out
	}

	if _, seen := r.attempted[item.Link]; seen {
		out.Outcome, out.Detail = OutcomeDuplicate, "already attempted in this run"
		return out
	}
	r.attempted[item.Link] = struct{}{}

	exists, err := c.updates.ExistsByURL(ctx, item.Link)
	if err != nil {
		return fail(OutcomePersistenceFailed, "dedup lookup", err)
	}
	if exists {
		out.Outcome = OutcomeDuplicate
		return out
	}

	if c.classifier == nil {
		if !r.warnedNoCreds {
			r.warnedNoCreds = true
			c.logger.Warn("classifier credential missing; new items are skipped for this run",
				zap.Error(classifier.ErrCredentialMissing))
		}
		out.Outcome = OutcomeClassifierUnavailable
		return out
	}

	text, err := c.extractor.Extract(ctx, item.Link)
	if err != nil {
		return fail(OutcomeExtractionFailed, "", err)
	}

	res, err := c.classifier.Classify(ctx, text)
	if err != nil {
		return fail(OutcomeInferenceFailed, "", err)
	}
	var cls classifier.Classification
	switch v := res.(type) {
	case classifier.Ok:
		cls = v.Classification
	case classifier.SchemaError:
		return fail(OutcomeSchemaRejected, v.String(), nil)
	case classifier.ParseError:
		return fail(OutcomeParseFailed, v.Reason, nil)
	default:
		return fail(OutcomeParseFailed, fmt.Sprintf("unexpected result %T", res), nil)
	}

	id, err := c.ids.NewID()
	if err != nil {
		return fail(OutcomePersistenceFailed, "update id", err)
	}
	update := cls.Update(item.Link, c.clock.Now())
	update.ID = id
	stored, err := c.updates.UpsertUpdate(ctx, update)
	if err != nil {
		return fail(OutcomePersistenceFailed, "upsert", err)
	}
	out.Outcome, out.UpdateID = OutcomeStored, stored.ID

	if c.archive != nil {
		if uri, err := c.archive.Store(ctx, stored.URL, text); err != nil {
			logger.Warn("archive write failed", zap.Error(err))
		} else {
			logger.Debug("text archived", zap.String("uri", uri))
		}
	}
	if c.matcher != nil {
		matches, err := c.matcher.MatchUpdate(ctx, stored, "")
		out.Matches = len(matches)
		if err != nil {
			logger.Warn("matching failed for some watch lists", zap.String("update_id", stored.ID), zap.Error(err))
		}
	}
	logger.Info("update stored", zap.String("update_id", stored.ID), zap.Int("matches", out.Matches))
	return out
}
