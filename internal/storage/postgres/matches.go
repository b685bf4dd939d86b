package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/regwatch/regwatch/internal/regwatch"
)

const matchColumns = `id, watch_list_id, update_id, score, reasons, reviewed, dismissed, created_at`

// SaveMatch inserts the pair's record. When the pair already exists the stored
// row is re-read and returned unchanged.
func (s *Store) SaveMatch(
	ctx context.Context,
	m regwatch.MatchRecord,
) (regwatch.MatchRecord, regwatch.SaveStatus, error) {
	if m.ID == "" {
		return regwatch.MatchRecord{}, "", fmt.Errorf("match id is required")
	}
	var rec regwatch.MatchRecord
	err := s.pool.QueryRow(ctx, `
INSERT INTO watch_list_matches (`+matchColumns+`)
VALUES ($1,$2,$3,$4,$5,FALSE,FALSE,$6)
ON CONFLICT (watch_list_id, update_id) DO NOTHING
RETURNING `+matchColumns,
		m.ID, m.WatchListID, m.UpdateID, m.Score, orEmpty(m.Reasons), m.CreatedAt,
	).Scan(
		&rec.ID, &rec.WatchListID, &rec.UpdateID, &rec.Score, &rec.Reasons,
		&rec.Reviewed, &rec.Dismissed, &rec.CreatedAt,
	)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		existing, err := s.matchByPair(ctx, m.WatchListID, m.UpdateID)
		if err != nil {
			return regwatch.MatchRecord{}, "", err
		}
		if existing.Dismissed {
			return existing, regwatch.SaveSuppressed, nil
		}
		return existing, regwatch.SaveExisting, nil
	case err != nil:
		return regwatch.MatchRecord{}, "", fmt.Errorf("save match %s/%s: %w", m.WatchListID, m.UpdateID, err)
	default:
		return rec, regwatch.SaveCreated, nil
	}
}

func (s *Store) matchByPair(ctx context.Context, watchListID, updateID string) (regwatch.MatchRecord, error) {
	var rec regwatch.MatchRecord
	err := s.pool.QueryRow(ctx,
		`SELECT `+matchColumns+` FROM watch_list_matches WHERE watch_list_id = $1 AND update_id = $2`,
		watchListID, updateID,
	).Scan(&rec.ID, &rec.WatchListID, &rec.UpdateID, &rec.Score, &rec.Reasons,
		&rec.Reviewed, &rec.Dismissed, &rec.CreatedAt)
	if err != nil {
		return regwatch.MatchRecord{}, notFound(err, "match", watchListID+"/"+updateID)
	}
	return rec, nil
}

// ReviewMatch marks a match reviewed when its watch list belongs to ownerID.
func (s *Store) ReviewMatch(ctx context.Context, matchID, ownerID string) error {
	return s.flagMatch(ctx, "reviewed", matchID, ownerID)
}

// DismissMatch marks a match dismissed when its watch list belongs to ownerID.
func (s *Store) DismissMatch(ctx context.Context, matchID, ownerID string) error {
	return s.flagMatch(ctx, "dismissed", matchID, ownerID)
}

func (s *Store) flagMatch(ctx context.Context, column, matchID, ownerID string) error {
	var query string
	switch column {
	case "reviewed":
		query = `UPDATE watch_list_matches m SET reviewed = TRUE
			FROM watch_lists w
			WHERE m.id = $1 AND w.id = m.watch_list_id AND w.owner_id = $2`
	case "dismissed":
		query = `UPDATE watch_list_matches m SET dismissed = TRUE
			FROM watch_lists w
			WHERE m.id = $1 AND w.id = m.watch_list_id AND w.owner_id = $2`
	default:
		return fmt.Errorf("unknown match flag %q", column)
	}
	tag, err := s.pool.Exec(ctx, query, matchID, ownerID)
	if err != nil {
		return fmt.Errorf("mark match %s %s: %w", matchID, column, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("match %s: %w", matchID, regwatch.ErrNotFound)
	}
	return nil
}
