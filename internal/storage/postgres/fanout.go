package postgres

import (
	"context"
	"fmt"

	"github.com/regwatch/regwatch/internal/regwatch"
)

// CreateNotification inserts n unless a notification already exists for n.MatchID.
func (s *Store) CreateNotification(ctx context.Context, n regwatch.Notification) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
INSERT INTO notifications (id, owner_id, match_id, watch_list_id, update_id, title, body, read, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,FALSE,$8)
ON CONFLICT (match_id) DO NOTHING`,
		n.ID, n.OwnerID, n.MatchID, n.WatchListID, n.UpdateID, n.Title, n.Body, n.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert notification for match %s: %w", n.MatchID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// AddDossierItem files item when the dossier belongs to item.OwnerID.
func (s *Store) AddDossierItem(ctx context.Context, item regwatch.DossierItem) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
INSERT INTO dossier_items (dossier_id, update_id, owner_id, note, added_at)
SELECT d.id, $2, d.owner_id, $4, $5
FROM dossiers d
WHERE d.id = $1 AND d.owner_id = $3
ON CONFLICT (dossier_id, update_id) DO NOTHING`,
		item.DossierID, item.UpdateID, item.OwnerID, item.Note, item.AddedAt)
	if err != nil {
		return false, fmt.Errorf("file update %s into dossier %s: %w", item.UpdateID, item.DossierID, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	owned, err := s.owns(ctx, regwatch.EntityDossier, item.DossierID, item.OwnerID)
	if err != nil {
		return false, err
	}
	if !owned {
		return false, fmt.Errorf("dossier %s: %w", item.DossierID, regwatch.ErrNotFound)
	}
	return false, nil
}
