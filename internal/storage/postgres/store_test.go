package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/regwatch/regwatch/internal/regwatch"
)

var fetchedAt = time.Unix(1767225600, 0).UTC()

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func updateRows(mock pgxmock.PgxPoolIface) *pgxmock.Rows {
	return mock.NewRows([]string{
		"id", "url", "headline", "impact_summary", "focus_area", "authority",
		"impact_level", "urgency", "sector", "key_dates", "fetched_at",
	})
}

// TestNewStoreWithPoolRequiresPool rejects a nil pool.
func TestNewStoreWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewStoreWithPool(nil)
	require.Error(t, err)
}

// TestPoolConfigBoundsConnectAndStatements ensures every pool carries a dial
// timeout and a server-side statement timeout.
func TestPoolConfigBoundsConnectAndStatements(t *testing.T) {
	t.Parallel()

	cfg, err := poolConfig(Config{DSN: "postgres://u:p@localhost:5432/regwatch", MaxConns: 3})
	require.NoError(t, err)
	require.Equal(t, int32(3), cfg.MaxConns)
	require.Equal(t, DefaultConnectTimeout, cfg.ConnConfig.ConnectTimeout)
	require.Equal(t, "30000", cfg.ConnConfig.RuntimeParams["statement_timeout"])

	cfg, err = poolConfig(Config{
		DSN:              "postgres://u:p@localhost:5432/regwatch",
		ConnectTimeout:   2 * time.Second,
		StatementTimeout: 1500 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, cfg.ConnConfig.ConnectTimeout)
	require.Equal(t, "1500", cfg.ConnConfig.RuntimeParams["statement_timeout"])

	_, err = poolConfig(Config{DSN: "://bad"})
	require.ErrorContains(t, err, "parse postgres dsn")
}

// TestPingReportsPoolErrors ensures ping failures are wrapped.
func TestPingReportsPoolErrors(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectPing()
	require.NoError(t, store.Ping(context.Background()))
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	require.ErrorContains(t, store.Ping(context.Background()), "ping postgres")
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestMigrateAppliesSchema runs the embedded schema.
func TestMigrateAppliesSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS regulatory_updates").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestUpsertUpdateReturnsStoredRow returns the row as stored.
func TestUpsertUpdateReturnsStoredRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	in := regwatch.RegulatoryUpdate{
		ID:            "new-id",
		URL:           "https://pra.example/ps1-26",
		Headline:      "Capital buffer changes",
		ImpactSummary: "Firms must hold more capital.",
		FocusArea:     "Capital",
		Authority:     "PRA",
		ImpactLevel:   regwatch.ImpactSignificant,
		Urgency:       regwatch.UrgencyHigh,
		Sector:        regwatch.SectorBanking,
		FetchedAt:     fetchedAt,
	}
	mock.ExpectQuery("INSERT INTO regulatory_updates").
		WithArgs(in.ID, in.URL, in.Headline, in.ImpactSummary, in.FocusArea, in.Authority,
			"Significant", "High", "Banking", []string{}, in.FetchedAt).
		WillReturnRows(updateRows(mock).AddRow(
			"existing-id", in.URL, in.Headline, in.ImpactSummary, in.FocusArea, in.Authority,
			"Significant", "High", "Banking", []string{}, in.FetchedAt,
		))

	got, err := store.UpsertUpdate(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, "existing-id", got.ID)
	require.Equal(t, regwatch.SectorBanking, got.Sector)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestGetUpdateNotFound maps no rows to ErrNotFound.
func TestGetUpdateNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM regulatory_updates WHERE id").
		WithArgs("missing").
		WillReturnRows(updateRows(mock))

	_, err := store.GetUpdate(context.Background(), "missing")
	require.ErrorIs(t, err, regwatch.ErrNotFound)
}

// TestListUpdatesSincePassesPaging passes limit and offset through.
func TestListUpdatesSincePassesPaging(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	since := fetchedAt.Add(-90 * 24 * time.Hour)
	mock.ExpectQuery("ORDER BY fetched_at DESC, id DESC").
		WithArgs(since, 100, 200).
		WillReturnRows(updateRows(mock).AddRow(
			"u-1", "https://x.example/1", "h", "s", "a", "FCA",
			"Moderate", "Low", "Payments", []string{"2026-06-30"}, fetchedAt,
		))

	got, err := store.ListUpdatesSince(context.Background(), since, 100, 200)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, []string{"2026-06-30"}, got[0].KeyDates)
	require.NoError(t, mock.ExpectationsWereMet())
}

func matchRows(mock pgxmock.PgxPoolIface) *pgxmock.Rows {
	return mock.NewRows([]string{"id", "watch_list_id", "update_id", "score", "reasons", "reviewed", "dismissed", "created_at"})
}

// TestSaveMatchStatuses ensures SaveMatch never rewrites a stored pair and
// reports created, existing or suppressed.
func TestSaveMatchStatuses(t *testing.T) {
	t.Parallel()

	in := regwatch.MatchRecord{
		ID: "m-new", WatchListID: "wl", UpdateID: "u", Score: 0.5,
		Reasons: []string{"keyword: capital"}, CreatedAt: fetchedAt,
	}

	t.Run("created", func(t *testing.T) {
		t.Parallel()
		store, mock := newMockStore(t)
		mock.ExpectQuery("ON CONFLICT \\(watch_list_id, update_id\\) DO NOTHING").
			WithArgs(in.ID, in.WatchListID, in.UpdateID, in.Score, in.Reasons, in.CreatedAt).
			WillReturnRows(matchRows(mock).AddRow(
				"m-new", "wl", "u", 0.5, in.Reasons, false, false, fetchedAt))

		rec, status, err := store.SaveMatch(context.Background(), in)
		require.NoError(t, err)
		require.Equal(t, regwatch.SaveCreated, status)
		require.Equal(t, "m-new", rec.ID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("existing", func(t *testing.T) {
		t.Parallel()
		store, mock := newMockStore(t)
		mock.ExpectQuery("INSERT INTO watch_list_matches").
			WithArgs(in.ID, in.WatchListID, in.UpdateID, in.Score, in.Reasons, in.CreatedAt).
			WillReturnRows(matchRows(mock))
		mock.ExpectQuery("FROM watch_list_matches WHERE watch_list_id").
			WithArgs("wl", "u").
			WillReturnRows(matchRows(mock).AddRow(
				"m-old", "wl", "u", 0.25, []string{"sector: Banking"}, true, false, fetchedAt))

		rec, status, err := store.SaveMatch(context.Background(), in)
		require.NoError(t, err)
		require.Equal(t, regwatch.SaveExisting, status)
		require.Equal(t, "m-old", rec.ID)
		require.True(t, rec.Reviewed)
		require.InDelta(t, 0.25, rec.Score, 1e-9)
		require.Equal(t, []string{"sector: Banking"}, rec.Reasons)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("suppressed", func(t *testing.T) {
		t.Parallel()
		store, mock := newMockStore(t)
		mock.ExpectQuery("INSERT INTO watch_list_matches").
			WithArgs(in.ID, in.WatchListID, in.UpdateID, in.Score, in.Reasons, in.CreatedAt).
			WillReturnRows(matchRows(mock))
		mock.ExpectQuery("FROM watch_list_matches WHERE watch_list_id").
			WithArgs("wl", "u").
			WillReturnRows(matchRows(mock).AddRow(
				"m-old", "wl", "u", 0.25, []string{"sector: Banking"}, false, true, fetchedAt))

		rec, status, err := store.SaveMatch(context.Background(), in)
		require.NoError(t, err)
		require.Equal(t, regwatch.SaveSuppressed, status)
		require.True(t, rec.Dismissed)
		require.InDelta(t, 0.25, rec.Score, 1e-9)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

// TestDismissMatchScopedToOwner returns ErrNotFound for another owner.
func TestDismissMatchScopedToOwner(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE watch_list_matches m SET dismissed = TRUE").
		WithArgs("m-1", "bob").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec("UPDATE watch_list_matches m SET reviewed = TRUE").
		WithArgs("m-1", "alice").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.ErrorIs(t, store.DismissMatch(context.Background(), "m-1", "bob"), regwatch.ErrNotFound)
	require.NoError(t, store.ReviewMatch(context.Background(), "m-1", "alice"))
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestCreateNotificationConflictIsNotAnError reports an existing notification as not created.
func TestCreateNotificationConflictIsNotAnError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	n := regwatch.Notification{
		ID: "n-1", OwnerID: "alice", MatchID: "m-1", WatchListID: "wl", UpdateID: "u",
		Title: "t", Body: "b", CreatedAt: fetchedAt,
	}
	mock.ExpectExec("ON CONFLICT \\(match_id\\) DO NOTHING").
		WithArgs(n.ID, n.OwnerID, n.MatchID, n.WatchListID, n.UpdateID, n.Title, n.Body, n.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	created, err := store.CreateNotification(context.Background(), n)
	require.NoError(t, err)
	require.False(t, created)
}

// TestAddDossierItemDistinguishesDuplicateFromForeignDossier tells a duplicate item from a foreign dossier.
func TestAddDossierItemDistinguishesDuplicateFromForeignDossier(t *testing.T) {
	t.Parallel()

	item := regwatch.DossierItem{DossierID: "d", UpdateID: "u", OwnerID: "alice", Note: "n", AddedAt: fetchedAt}

	t.Run("duplicate", func(t *testing.T) {
		t.Parallel()
		store, mock := newMockStore(t)
		mock.ExpectExec("INSERT INTO dossier_items").
			WithArgs("d", "u", "alice", "n", fetchedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 0))
		mock.ExpectQuery("FROM dossiers WHERE id").
			WithArgs("d", "alice").
			WillReturnRows(mock.NewRows([]string{"exists"}).AddRow(true))

		added, err := store.AddDossierItem(context.Background(), item)
		require.NoError(t, err)
		require.False(t, added)
	})

	t.Run("foreign", func(t *testing.T) {
		t.Parallel()
		store, mock := newMockStore(t)
		mock.ExpectExec("INSERT INTO dossier_items").
			WithArgs("d", "u", "alice", "n", fetchedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 0))
		mock.ExpectQuery("FROM dossiers WHERE id").
			WithArgs("d", "alice").
			WillReturnRows(mock.NewRows([]string{"exists"}).AddRow(false))

		_, err := store.AddDossierItem(context.Background(), item)
		require.ErrorIs(t, err, regwatch.ErrNotFound)
	})
}

// TestUpdateIDsForChecksOwnership refuses entities the owner does not hold.
func TestUpdateIDsForChecksOwnership(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM policies WHERE id").
		WithArgs("p", "alice").
		WillReturnRows(mock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("FROM policy_citations").
		WithArgs("p").
		WillReturnRows(mock.NewRows([]string{"update_id"}).AddRow("u-1").AddRow("u-2"))
	mock.ExpectQuery("FROM policies WHERE id").
		WithArgs("p", "bob").
		WillReturnRows(mock.NewRows([]string{"exists"}).AddRow(false))

	ids, err := store.UpdateIDsFor(context.Background(), regwatch.EntityRef{Type: regwatch.EntityPolicy, ID: "p"}, "alice")
	require.NoError(t, err)
	require.Equal(t, []string{"u-1", "u-2"}, ids)

	_, err = store.UpdateIDsFor(context.Background(), regwatch.EntityRef{Type: regwatch.EntityPolicy, ID: "p"}, "bob")
	require.ErrorIs(t, err, regwatch.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestRelatedByUpdatesPassesExclusionAndLimit forwards the excluded ID and limit.
func TestRelatedByUpdatesPassesExclusionAndLimit(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM dossiers d").
		WithArgs("alice", []string{"u-1"}, "d-self", 25).
		WillReturnRows(mock.NewRows([]string{"id", "title"}).AddRow("d-2", "Basel IV"))

	refs, err := store.RelatedByUpdates(context.Background(), regwatch.RelatedQuery{
		Type: regwatch.EntityDossier, UpdateIDs: []string{"u-1"}, OwnerID: "alice", ExcludeID: "d-self", Limit: 25,
	})
	require.NoError(t, err)
	require.Equal(t, []regwatch.EntityRef{{Type: regwatch.EntityDossier, ID: "d-2", Title: "Basel IV"}}, refs)

	_, err = store.RelatedByUpdates(context.Background(), regwatch.RelatedQuery{Type: "memo"})
	require.Error(t, err)
}

// TestStatsAggregates scans the aggregate row.
func TestStatsAggregates(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT count").
		WithArgs("alice").
		WillReturnRows(mock.NewRows([]string{"updates", "active", "unread"}).AddRow(int64(12), int64(2), int64(3)))
	mock.ExpectQuery("FROM watch_lists w").
		WithArgs("alice").
		WillReturnRows(mock.NewRows([]string{"id", "count"}).AddRow("wl-1", int64(4)).AddRow("wl-2", int64(0)))
	mock.ExpectQuery("FROM dossiers d").
		WithArgs("alice").
		WillReturnRows(mock.NewRows([]string{"id", "count"}).AddRow("d-1", int64(1)))

	st, err := store.Stats(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, 12, st.Updates)
	require.Equal(t, 2, st.ActiveWatchLists)
	require.Equal(t, 3, st.UnreadNotifications)
	require.Equal(t, map[string]int{"wl-1": 4, "wl-2": 0}, st.MatchesByWatchList)
	require.Equal(t, map[string]int{"d-1": 1}, st.ItemsByDossier)
	require.NoError(t, mock.ExpectationsWereMet())
}
