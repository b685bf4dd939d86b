package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/regwatch/regwatch/internal/config"
	"github.com/regwatch/regwatch/internal/ingest"
	"github.com/regwatch/regwatch/internal/matching"
	"github.com/regwatch/regwatch/internal/regwatch"
)

// mockApp mocks the App interface.
type mockApp struct {
	mock.Mock
}

func (m *mockApp) Close() { m.Called() }

func (m *mockApp) Logger() *zap.Logger { return zap.NewNop() }

func (m *mockApp) Run(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockApp) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockApp) RunIngestion(ctx context.Context) (ingest.RunSummary, error) {
	args := m.Called(ctx)
	return args.Get(0).(ingest.RunSummary), args.Error(1)
}

func (m *mockApp) MatchUpdate(ctx context.Context, updateID, ownerID string) ([]matching.Match, error) {
	args := m.Called(ctx, updateID, ownerID)
	return args.Get(0).([]matching.Match), args.Error(1)
}

func (m *mockApp) BulkMatchWatchList(
	ctx context.Context,
	watchListID, ownerID string,
	opts matching.BackfillOptions,
) (matching.BackfillSummary, error) {
	args := m.Called(ctx, watchListID, ownerID, opts)
	return args.Get(0).(matching.BackfillSummary), args.Error(1)
}

func (m *mockApp) BackfillOptions() matching.BackfillOptions {
	return matching.BackfillOptions{WindowDays: 90, PageSize: 100, MaxPages: 10}
}

// withMockApp swaps the factory for the duration of the test. Tests using it
// must not run in parallel.
func withMockApp(t *testing.T, m *mockApp) {
	t.Helper()
	t.Setenv("REGWATCH_LOGGING_DEVELOPMENT", "false")
	orig := newApp
	newApp = func(context.Context, config.Config, *zap.Logger) (App, error) { return m, nil }
	t.Cleanup(func() { newApp = orig })
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := execute(context.Background(), args, &out)
	return out.String(), err
}

// TestIngestPrintsSummary prints the run summary as JSON.
func TestIngestPrintsSummary(t *testing.T) {
	m := &mockApp{}
	m.On("RunIngestion", mock.Anything).Return(ingest.RunSummary{Totals: ingest.Counters{Processed: 3}}, nil)
	m.On("Close").Return()
	withMockApp(t, m)

	out, err := run(t, "ingest")
	require.NoError(t, err)

	var summary ingest.RunSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	require.Equal(t, 3, summary.Totals.Processed)
	m.AssertExpectations(t)
}

// TestIngestClosesAppOnError closes the app even when the run fails.
func TestIngestClosesAppOnError(t *testing.T) {
	m := &mockApp{}
	m.On("RunIngestion", mock.Anything).Return(ingest.RunSummary{}, context.Canceled)
	m.On("Close").Return()
	withMockApp(t, m)

	_, err := run(t, "ingest")
	require.ErrorIs(t, err, context.Canceled)
	m.AssertCalled(t, "Close")
}

// TestBackfillAppliesFlags passes flag overrides into the backfill options.
func TestBackfillAppliesFlags(t *testing.T) {
	m := &mockApp{}
	want := matching.BackfillOptions{WindowDays: 30, PageSize: 100, MaxPages: 2}
	m.On("BulkMatchWatchList", mock.Anything, "wl-1", "owner-1", want).
		Return(matching.BackfillSummary{WatchListID: "wl-1", Created: 4}, nil)
	m.On("Close").Return()
	withMockApp(t, m)

	out, err := run(t, "backfill", "wl-1", "--owner", "owner-1", "--window-days", "30", "--max-pages", "2")
	require.NoError(t, err)
	require.Contains(t, out, `"created": 4`)
	m.AssertExpectations(t)
}

// TestBackfillRequiresOwner fails without --owner.
func TestBackfillRequiresOwner(t *testing.T) {
	m := &mockApp{}
	m.On("Close").Return()
	withMockApp(t, m)

	_, err := run(t, "backfill", "wl-1")
	require.Error(t, err)
	m.AssertNotCalled(t, "BulkMatchWatchList", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// TestMatchPrintsMatchesAndSurfacesErrors prints partial matches and still returns the error.
func TestMatchPrintsMatchesAndSurfacesErrors(t *testing.T) {
	m := &mockApp{}
	matches := []matching.Match{{WatchListID: "wl-1", Status: regwatch.SaveCreated}}
	m.On("MatchUpdate", mock.Anything, "upd-1", "").Return(matches, errors.New("wl-2: store down"))
	m.On("Close").Return()
	withMockApp(t, m)

	out, err := run(t, "match", "upd-1")
	require.ErrorContains(t, err, "store down")
	require.Contains(t, out, "wl-1")
}

// TestMigrateDelegates forwards to App.Migrate.
func TestMigrateDelegates(t *testing.T) {
	m := &mockApp{}
	m.On("Migrate", mock.Anything).Return(nil)
	m.On("Close").Return()
	withMockApp(t, m)

	_, err := run(t, "migrate")
	require.NoError(t, err)
	m.AssertExpectations(t)
}

// TestConfigErrorStopsBeforeBuild never builds an app from a bad config.
func TestConfigErrorStopsBeforeBuild(t *testing.T) {
	m := &mockApp{}
	withMockApp(t, m)

	_, err := run(t, "--config", "/does/not/exist.yaml", "ingest")
	require.ErrorContains(t, err, "read config")
	m.AssertNotCalled(t, "Close")
}
