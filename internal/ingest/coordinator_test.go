package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/regwatch/regwatch/internal/classifier"
	"github.com/regwatch/regwatch/internal/config"
	"github.com/regwatch/regwatch/internal/matching"
	"github.com/regwatch/regwatch/internal/regwatch"
	"github.com/regwatch/regwatch/internal/storage/memory"
)

var now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func validFields(headline string) map[string]any {
	return map[string]any{
		classifier.FieldHeadline:    headline,
		classifier.FieldImpact:      "Firms must review their plans.",
		classifier.FieldArea:        "Prudential",
		classifier.FieldAuthority:   "PRA",
		classifier.FieldImpactLevel: "Significant",
		classifier.FieldUrgency:     "High",
		classifier.FieldSector:      "Banking",
		classifier.FieldKeyDates:    []string{"2026-06-30"},
	}
}

// TestRunIngestionEndToEnd collects, classifies, stores and matches.
func TestRunIngestionEndToEnd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	_, err := store.UpsertUpdate(ctx, regwatch.RegulatoryUpdate{ID: "old", URL: "https://pra.example/old", Headline: "Old"})
	require.NoError(t, err)
	store.PutWatchList(regwatch.WatchList{
		ID: "wl", OwnerID: "alice", Keywords: []string{"capital", "buffer"}, AlertThreshold: 0.3, Active: true,
	})

	src := &staticSource{name: "pra", items: []regwatch.CandidateItem{
		{Link: "https://pra.example/a"},
		{Link: "https://pra.example/old"},
		{Link: "https://pra.example/b"},
	}}
	gen := &scriptedGenerator{replies: map[string]map[string]any{
		"article a": validFields("PRA sets new capital requirements"),
		"article b": validFields("Consumer duty update"),
	}}
	ext := &mapExtractor{texts: map[string]string{
		"https://pra.example/a": "article a",
		"https://pra.example/b": "article b",
	}}
	ids := &seqIDs{}
	engine := matching.NewEngine(store, store, store, nil, ids, fixedClock{now}, nil)
	coord := NewCoordinator([]regwatch.Collector{src}, store, ext, classifier.New(gen, 0, nil), engine,
		NewArchive(memory.NewBlobStore(), nil, ""), ids, fixedClock{now}, nil)

	summary, err := coord.RunIngestion(ctx)
	require.NoError(t, err)
	require.Equal(t, Counters{Processed: 2, Skipped: 1}, summary.Totals)
	require.Len(t, summary.Sources, 1)
	require.Equal(t, 3, summary.Sources[0].Candidates)
	require.Equal(t, []Outcome{OutcomeStored, OutcomeDuplicate, OutcomeStored}, outcomes(summary))
	require.Equal(t, []string{"https://pra.example/a", "https://pra.example/b"}, ext.calls())

	matches := store.Matches("wl")
	require.Len(t, matches, 1)
	require.Equal(t, summary.Outcomes[0].UpdateID, matches[0].UpdateID)
	require.Contains(t, matches[0].Reasons, "keyword: capital")
	require.Equal(t, 1, summary.Outcomes[0].Matches)
	require.Zero(t, summary.Outcomes[2].Matches)
}

// TestRunIngestionIsIdempotent skips URLs already stored.
func TestRunIngestionIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	src := &staticSource{name: "feed", items: []regwatch.CandidateItem{{Link: "https://x.example/1"}}}
	gen := &scriptedGenerator{replies: map[string]map[string]any{"one": validFields("Capital")}}
	ext := &mapExtractor{texts: map[string]string{"https://x.example/1": "one"}}
	coord := NewCoordinator([]regwatch.Collector{src}, store, ext, classifier.New(gen, 0, nil), nil, nil,
		&seqIDs{}, fixedClock{now}, nil)

	first, err := coord.RunIngestion(ctx)
	require.NoError(t, err)
	second, err := coord.RunIngestion(ctx)
	require.NoError(t, err)

	require.Equal(t, Counters{Processed: 1}, first.Totals)
	require.Equal(t, Counters{Skipped: 1}, second.Totals)
	require.Equal(t, 1, gen.callCount())
	require.Len(t, ext.calls(), 1)

	page, err := store.ListUpdatesSince(ctx, time.Time{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, page, 1)
}

// TestReclassifyingKeepsUpdateID keeps the ID when a URL is re-stored.
func TestReclassifyingKeepsUpdateID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	coordFor := func(headline string) *Coordinator {
		src := &staticSource{name: "feed", items: []regwatch.CandidateItem{{Link: "https://x.example/1"}}}
		gen := &scriptedGenerator{replies: map[string]map[string]any{"one": validFields(headline)}}
		ext := &mapExtractor{texts: map[string]string{"https://x.example/1": "one"}}
		return NewCoordinator([]regwatch.Collector{src}, &alwaysNew{UpdateStore: store}, ext,
			classifier.New(gen, 0, nil), nil, nil, &seqIDs{prefix: headline}, fixedClock{now}, nil)
	}

	first, err := coordFor("First").RunIngestion(ctx)
	require.NoError(t, err)
	second, err := coordFor("Second").RunIngestion(ctx)
	require.NoError(t, err)

	id := first.Outcomes[0].UpdateID
	require.Equal(t, id, second.Outcomes[0].UpdateID)
	got, err := store.GetUpdate(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Second", got.Headline)
}

// TestSchemaRejectionPersistsNothing stores nothing for an invalid reply.
func TestSchemaRejectionPersistsNothing(t *testing.T) {
	t.Parallel()

	for _, field := range classifier.RequiredFields {
		t.Run(field, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zap.WarnLevel)
			store := memory.NewStore()
			fields := validFields("Capital")
			delete(fields, field)
			gen := &scriptedGenerator{replies: map[string]map[string]any{"text": fields}}
			src := &staticSource{name: "feed", items: []regwatch.CandidateItem{{Link: "https://x.example/1"}}}
			ext := &mapExtractor{texts: map[string]string{"https://x.example/1": "text"}}
			coord := NewCoordinator([]regwatch.Collector{src}, store, ext, classifier.New(gen, 0, nil), nil, nil,
				&seqIDs{}, fixedClock{now}, zap.New(core))

			summary, err := coord.RunIngestion(context.Background())
			require.NoError(t, err)
			require.Equal(t, Counters{Failed: 1}, summary.Totals)
			require.Equal(t, OutcomeSchemaRejected, summary.Outcomes[0].Outcome)
			require.Contains(t, summary.Outcomes[0].Detail, field)

			exists, err := store.ExistsByURL(context.Background(), "https://x.example/1")
			require.NoError(t, err)
			require.False(t, exists)
			require.Equal(t, 1, logs.FilterMessage("item not stored").FilterField(zap.String("outcome", "schema_rejected")).Len())
		})
	}
}

// TestMissingCredentialSkipsWithoutExtracting skips before extraction without a classifier.
func TestMissingCredentialSkipsWithoutExtracting(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	store := memory.NewStore()
	src := &staticSource{name: "feed", items: []regwatch.CandidateItem{
		{Link: "https://x.example/1"}, {Link: "https://x.example/2"},
	}}
	ext := &mapExtractor{}
	coord := NewCoordinator([]regwatch.Collector{src}, store, ext, nil, nil, nil, &seqIDs{}, fixedClock{now}, zap.New(core))

	summary, err := coord.RunIngestion(context.Background())
	require.NoError(t, err)
	require.Equal(t, Counters{Skipped: 2}, summary.Totals)
	require.Equal(t, []Outcome{OutcomeClassifierUnavailable, OutcomeClassifierUnavailable}, outcomes(summary))
	require.Empty(t, ext.calls())
	require.Equal(t, 1, logs.FilterMessageSnippet("credential missing").Len())
}

// TestFailuresAreIsolatedPerItemAndSource isolates failures per item and source.
func TestFailuresAreIsolatedPerItemAndSource(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	broken := &staticSource{name: "down", err: errors.New("dial tcp: refused")}
	partial := &staticSource{name: "site", items: []regwatch.CandidateItem{
		{Link: "https://x.example/no-page"},
		{Link: "https://x.example/garbled"},
		{Link: "https://x.example/timeout"},
		{Link: "https://x.example/good"},
	}}
	gen := &scriptedGenerator{
		replies: map[string]map[string]any{"good": validFields("Capital")},
		raw:     map[string]string{"garbled": "sorry, I cannot help"},
		fail:    map[string]bool{"timeout": true},
	}
	ext := &mapExtractor{texts: map[string]string{
		"https://x.example/garbled": "garbled",
		"https://x.example/timeout": "timeout",
		"https://x.example/good":    "good",
	}}
	coord := NewCoordinator([]regwatch.Collector{broken, partial}, store, ext, classifier.New(gen, 0, nil), nil, nil,
		&seqIDs{}, fixedClock{now}, nil)

	summary, err := coord.RunIngestion(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Sources, 2)
	require.Contains(t, summary.Sources[0].Error, "refused")
	require.Zero(t, summary.Sources[0].Candidates)
	require.Equal(t, Counters{Processed: 1, Failed: 3}, summary.Sources[1].Counters)
	require.Equal(t, []Outcome{
		OutcomeExtractionFailed, OutcomeParseFailed, OutcomeInferenceFailed, OutcomeStored,
	}, outcomes(summary))
}

// TestRunIngestionArchivesText archives extracted text.
func TestRunIngestionArchivesText(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	archive := NewArchive(blobs, nil, "/texts/")
	src := &staticSource{name: "feed", items: []regwatch.CandidateItem{{Link: "https://x.example/1"}}}
	gen := &scriptedGenerator{replies: map[string]map[string]any{"body text": validFields("Capital")}}
	ext := &mapExtractor{texts: map[string]string{"https://x.example/1": "body text"}}
	coord := NewCoordinator([]regwatch.Collector{src}, memory.NewStore(), ext, classifier.New(gen, 0, nil), nil,
		archive, &seqIDs{}, fixedClock{now}, nil)

	_, err := coord.RunIngestion(context.Background())
	require.NoError(t, err)

	p := archive.Path("https://x.example/1")
	require.True(t, strings.HasPrefix(p, "texts/"))
	require.True(t, strings.HasSuffix(p, ".txt"))
	got, _, ok := blobs.Get(p)
	require.True(t, ok)
	require.Equal(t, "body text", string(got))
}

// TestRunIngestionStopsWhenContextEnds stops when the context ends.
func TestRunIngestionStopsWhenContextEnds(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &staticSource{name: "feed", items: []regwatch.CandidateItem{{Link: "https://x.example/1"}}}
	coord := NewCoordinator([]regwatch.Collector{src}, memory.NewStore(), &mapExtractor{}, nil, nil, nil,
		&seqIDs{}, fixedClock{now}, nil)

	summary, err := coord.RunIngestion(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, summary.Outcomes)
}

// TestBuildSourcesFromConfig builds feed and site collectors.
func TestBuildSourcesFromConfig(t *testing.T) {
	t.Parallel()

	sources, err := BuildSources(config.IngestConfig{
		Feeds: []config.FeedConfig{{Name: "pra", URL: "https://pra.example/rss"}},
		Sites: []config.SiteConfig{{Name: "fca", ListURL: "https://fca.example/news", ItemSelectors: []string{"li"}}},
	}, nil, fixedClock{now}, 0, nil)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	require.Equal(t, "pra", sources[0].Name())
	require.Equal(t, "fca", sources[1].Name())

	_, err = BuildSources(config.IngestConfig{Sites: []config.SiteConfig{{Name: "bad", ListURL: "https://x"}}},
		nil, fixedClock{now}, 0, nil)
	require.Error(t, err)
}

// TestOutcomeCounter tallies outcomes.
func TestOutcomeCounter(t *testing.T) {
	t.Parallel()

	require.Equal(t, "processed", OutcomeStored.Counter())
	require.Equal(t, "skipped", OutcomeDuplicate.Counter())
	require.Equal(t, "skipped", OutcomeClassifierUnavailable.Counter())
	for _, o := range []Outcome{OutcomeExtractionFailed, OutcomeSchemaRejected, OutcomeParseFailed,
		OutcomeInferenceFailed, OutcomePersistenceFailed} {
		require.Equal(t, "failed", o.Counter())
	}
}

func outcomes(s RunSummary) []Outcome {
	out := make([]Outcome, 0, len(s.Outcomes))
	for _, o := range s.Outcomes {
		out = append(out, o.Outcome)
	}
	return out
}

type staticSource struct {
	name  string
	items []regwatch.CandidateItem
	err   error
}

func (s *staticSource) Name() string { return s.name }

func (s *staticSource) Collect(context.Context) ([]regwatch.CandidateItem, error) {
	return s.items, s.err
}

type mapExtractor struct {
	mu    sync.Mutex
	texts map[string]string
	seen  []string
}

func (m *mapExtractor) Extract(_ context.Context, url string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, url)
	text, ok := m.texts[url]
	if !ok {
		return "", fmt.Errorf("fetch %s: status 404", url)
	}
	return text, nil
}

func (m *mapExtractor) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.seen...)
}

// scriptedGenerator answers by looking for a known key in the prompt.
type scriptedGenerator struct {
	mu      sync.Mutex
	replies map[string]map[string]any
	raw     map[string]string
	fail    map[string]bool
	calls   int
}

func (g *scriptedGenerator) Generate(_ context.Context, _, user string) (string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	for key := range g.fail {
		if strings.Contains(user, key) {
			return "", context.DeadlineExceeded
		}
	}
	for key, raw := range g.raw {
		if strings.Contains(user, key) {
			return raw, nil
		}
	}
	for key, fields := range g.replies {
		if strings.Contains(user, key) {
			b, err := json.Marshal(fields)
			if err != nil {
				return "", err
			}
			return "Here you go:\n" + string(b), nil
		}
	}
	return "", errors.New("no scripted reply")
}

func (g *scriptedGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type seqIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%sid-%03d", s.prefix, s.n), nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// alwaysNew hides existing rows from the dedup gate so a URL is classified again.
type alwaysNew struct {
	regwatch.UpdateStore
}

func (alwaysNew) ExistsByURL(context.Context, string) (bool, error) { return false, nil }
