package postgres

import (
	"context"
	"fmt"

	"github.com/regwatch/regwatch/internal/regwatch"
)

// Stats computes overview counters for ownerID.
func (s *Store) Stats(ctx context.Context, ownerID string) (regwatch.Stats, error) {
	var updates, active, unread int64
	err := s.pool.QueryRow(ctx, `
SELECT
	(SELECT count(*) FROM regulatory_updates),
	(SELECT count(*) FROM watch_lists WHERE owner_id = $1 AND active),
	(SELECT count(*) FROM notifications WHERE owner_id = $1 AND NOT read)`, ownerID,
	).Scan(&updates, &active, &unread)
	if err != nil {
		return regwatch.Stats{}, fmt.Errorf("load totals: %w", err)
	}

	byWatchList, err := s.countBy(ctx, `
SELECT w.id, count(m.id) FILTER (WHERE NOT m.dismissed)
FROM watch_lists w
LEFT JOIN watch_list_matches m ON m.watch_list_id = w.id
WHERE w.owner_id = $1
GROUP BY w.id`, ownerID)
	if err != nil {
		return regwatch.Stats{}, fmt.Errorf("count matches: %w", err)
	}
	byDossier, err := s.countBy(ctx, `
SELECT d.id, count(i.update_id)
FROM dossiers d
LEFT JOIN dossier_items i ON i.dossier_id = d.id
WHERE d.owner_id = $1
GROUP BY d.id`, ownerID)
	if err != nil {
		return regwatch.Stats{}, fmt.Errorf("count dossier items: %w", err)
	}

	return regwatch.Stats{
		Updates:             int(updates),
		ActiveWatchLists:    int(active),
		UnreadNotifications: int(unread),
		MatchesByWatchList:  byWatchList,
		ItemsByDossier:      byDossier,
	}, nil
}

func (s *Store) countBy(ctx context.Context, query, ownerID string) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var (
			id string
			n  int64
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = int(n)
	}
	return out, rows.Err()
}
