package postgres

import (
	"context"
	"fmt"

	"github.com/regwatch/regwatch/internal/regwatch"
)

type linkQueries struct {
	owned     string
	updateIDs string
	related   string
}

// Every related query takes $1 owner, $2 update ids, $3 excluded id, $4 limit.
var linkSQL = map[regwatch.EntityType]linkQueries{
	regwatch.EntityWatchList: {
		owned: `SELECT EXISTS (SELECT 1 FROM watch_lists WHERE id = $1 AND owner_id = $2)`,
		updateIDs: `SELECT update_id FROM watch_list_matches
			WHERE watch_list_id = $1 AND NOT dismissed ORDER BY update_id`,
		related: `SELECT DISTINCT w.id, COALESCE(NULLIF(TRIM(w.name), ''), w.id) AS title
			FROM watch_lists w
			JOIN watch_list_matches m ON m.watch_list_id = w.id
			WHERE w.owner_id = $1 AND NOT m.dismissed AND m.update_id = ANY($2) AND w.id <> $3
			ORDER BY title, w.id
			LIMIT $4`,
	},
	regwatch.EntityDossier: {
		owned:     `SELECT EXISTS (SELECT 1 FROM dossiers WHERE id = $1 AND owner_id = $2)`,
		updateIDs: `SELECT update_id FROM dossier_items WHERE dossier_id = $1 ORDER BY added_at, update_id`,
		related: `SELECT DISTINCT d.id, d.title
			FROM dossiers d
			JOIN dossier_items i ON i.dossier_id = d.id
			WHERE d.owner_id = $1 AND i.update_id = ANY($2) AND d.id <> $3
			ORDER BY d.title, d.id
			LIMIT $4`,
	},
	regwatch.EntityPolicy: {
		owned:     `SELECT EXISTS (SELECT 1 FROM policies WHERE id = $1 AND owner_id = $2)`,
		updateIDs: `SELECT update_id FROM policy_citations WHERE policy_id = $1 ORDER BY update_id`,
		related: `SELECT DISTINCT p.id, p.title
			FROM policies p
			JOIN policy_citations c ON c.policy_id = p.id
			WHERE p.owner_id = $1 AND c.update_id = ANY($2) AND p.id <> $3
			ORDER BY p.title, p.id
			LIMIT $4`,
	},
	regwatch.EntityWorkflowItem: {
		owned: `SELECT EXISTS (SELECT 1 FROM workflow_items WHERE id = $1 AND owner_id = $2)`,
		updateIDs: `SELECT source_update_id FROM workflow_items
			WHERE id = $1 AND source_update_id IS NOT NULL`,
		related: `SELECT w.id, w.title
			FROM workflow_items w
			WHERE w.owner_id = $1 AND w.source_update_id = ANY($2) AND w.id <> $3
			ORDER BY w.title, w.id
			LIMIT $4`,
	},
}

func (s *Store) owns(ctx context.Context, typ regwatch.EntityType, id, ownerID string) (bool, error) {
	q, ok := linkSQL[typ]
	if !ok {
		return false, fmt.Errorf("unknown entity type %q", typ)
	}
	var owned bool
	if err := s.pool.QueryRow(ctx, q.owned, id, ownerID).Scan(&owned); err != nil {
		return false, fmt.Errorf("check %s %s owner: %w", typ, id, err)
	}
	return owned, nil
}

// UpdateIDsFor returns the update ids ref points at, after checking ownerID owns ref.
func (s *Store) UpdateIDsFor(ctx context.Context, ref regwatch.EntityRef, ownerID string) ([]string, error) {
	owned, err := s.owns(ctx, ref.Type, ref.ID, ownerID)
	if err != nil {
		return nil, err
	}
	if !owned {
		return nil, fmt.Errorf("%s %s: %w", ref.Type, ref.ID, regwatch.ErrNotFound)
	}

	rows, err := s.pool.Query(ctx, linkSQL[ref.Type].updateIDs, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("list %s %s updates: %w", ref.Type, ref.ID, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan update id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RelatedByUpdates lists q.Type entities owned by q.OwnerID that reference any of q.UpdateIDs.
func (s *Store) RelatedByUpdates(ctx context.Context, q regwatch.RelatedQuery) ([]regwatch.EntityRef, error) {
	sqls, ok := linkSQL[q.Type]
	if !ok {
		return nil, fmt.Errorf("unknown entity type %q", q.Type)
	}
	var limit any
	if q.Limit > 0 {
		limit = q.Limit
	}
	rows, err := s.pool.Query(ctx, sqls.related, q.OwnerID, orEmpty(q.UpdateIDs), q.ExcludeID, limit)
	if err != nil {
		return nil, fmt.Errorf("related %s: %w", q.Type, err)
	}
	defer rows.Close()

	out := []regwatch.EntityRef{}
	for rows.Next() {
		ref := regwatch.EntityRef{Type: q.Type}
		if err := rows.Scan(&ref.ID, &ref.Title); err != nil {
			return nil, fmt.Errorf("scan related %s: %w", q.Type, err)
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}
