package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/regwatch/regwatch/internal/regwatch"
)

const watchListColumns = `id, owner_id, name, keywords, authorities, sectors,
	alert_threshold, alert_on_match, COALESCE(auto_file_target_id, ''), active, created_at`

// GetWatchList fetches a watch list owned by ownerID.
func (s *Store) GetWatchList(ctx context.Context, id, ownerID string) (regwatch.WatchList, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+watchListColumns+` FROM watch_lists WHERE id = $1 AND owner_id = $2`, id, ownerID)
	wl, err := scanWatchList(row)
	if err != nil {
		return regwatch.WatchList{}, notFound(err, "watch list", id)
	}
	return wl, nil
}

// ListActiveWatchLists returns active lists for ownerID, or for all owners when ownerID is empty.
func (s *Store) ListActiveWatchLists(ctx context.Context, ownerID string) ([]regwatch.WatchList, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+watchListColumns+`
FROM watch_lists
WHERE active AND ($1 = '' OR owner_id = $1)
ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list watch lists: %w", err)
	}
	defer rows.Close()

	out := []regwatch.WatchList{}
	for rows.Next() {
		wl, err := scanWatchList(rows)
		if err != nil {
			return nil, fmt.Errorf("scan watch list: %w", err)
		}
		out = append(out, wl)
	}
	return out, rows.Err()
}

func scanWatchList(row pgx.Row) (regwatch.WatchList, error) {
	var wl regwatch.WatchList
	err := row.Scan(
		&wl.ID,
		&wl.OwnerID,
		&wl.Name,
		&wl.Keywords,
		&wl.Authorities,
		&wl.Sectors,
		&wl.AlertThreshold,
		&wl.AlertOnMatch,
		&wl.AutoFileTargetID,
		&wl.Active,
		&wl.CreatedAt,
	)
	return wl, err
}
