package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/regwatch/regwatch/internal/regwatch"
)

const updateColumns = `id, url, headline, impact_summary, focus_area, authority,
	impact_level, urgency, sector, key_dates, fetched_at`

// ExistsByURL reports whether an update with url is stored.
func (s *Store) ExistsByURL(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM regulatory_updates WHERE url = $1)`, url).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check update url: %w", err)
	}
	return exists, nil
}

// UpsertUpdate inserts update or overwrites the classification of the row with the same URL.
// The row id is fixed on first insert.
func (s *Store) UpsertUpdate(ctx context.Context, u regwatch.RegulatoryUpdate) (regwatch.RegulatoryUpdate, error) {
	if u.ID == "" || u.URL == "" {
		return regwatch.RegulatoryUpdate{}, fmt.Errorf("update id and url are required")
	}
	query := `
INSERT INTO regulatory_updates (` + updateColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (url) DO UPDATE SET
	headline = EXCLUDED.headline,
	impact_summary = EXCLUDED.impact_summary,
	focus_area = EXCLUDED.focus_area,
	authority = EXCLUDED.authority,
	impact_level = EXCLUDED.impact_level,
	urgency = EXCLUDED.urgency,
	sector = EXCLUDED.sector,
	key_dates = EXCLUDED.key_dates,
	fetched_at = EXCLUDED.fetched_at
RETURNING ` + updateColumns
	row := s.pool.QueryRow(ctx, query,
		u.ID,
		u.URL,
		u.Headline,
		u.ImpactSummary,
		u.FocusArea,
		u.Authority,
		string(u.ImpactLevel),
		string(u.Urgency),
		string(u.Sector),
		orEmpty(u.KeyDates),
		u.FetchedAt,
	)
	stored, err := scanUpdate(row)
	if err != nil {
		return regwatch.RegulatoryUpdate{}, fmt.Errorf("upsert update %s: %w", u.URL, err)
	}
	return stored, nil
}

// GetUpdate fetches an update by id.
func (s *Store) GetUpdate(ctx context.Context, id string) (regwatch.RegulatoryUpdate, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+updateColumns+` FROM regulatory_updates WHERE id = $1`, id)
	u, err := scanUpdate(row)
	if err != nil {
		return regwatch.RegulatoryUpdate{}, notFound(err, "update", id)
	}
	return u, nil
}

// ListUpdatesSince pages through updates fetched at or after since, newest first.
func (s *Store) ListUpdatesSince(
	ctx context.Context,
	since time.Time,
	limit, offset int,
) ([]regwatch.RegulatoryUpdate, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+updateColumns+`
FROM regulatory_updates
WHERE fetched_at >= $1
ORDER BY fetched_at DESC, id DESC
LIMIT $2 OFFSET $3`, since, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list updates: %w", err)
	}
	defer rows.Close()

	out := []regwatch.RegulatoryUpdate{}
	for rows.Next() {
		u, err := scanUpdate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan update: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list updates: %w", err)
	}
	return out, nil
}

func scanUpdate(row pgx.Row) (regwatch.RegulatoryUpdate, error) {
	var (
		u                       regwatch.RegulatoryUpdate
		impact, urgency, sector string
	)
	err := row.Scan(
		&u.ID,
		&u.URL,
		&u.Headline,
		&u.ImpactSummary,
		&u.FocusArea,
		&u.Authority,
		&impact,
		&urgency,
		&sector,
		&u.KeyDates,
		&u.FetchedAt,
	)
	if err != nil {
		return regwatch.RegulatoryUpdate{}, err
	}
	u.ImpactLevel = regwatch.ImpactLevel(impact)
	u.Urgency = regwatch.Urgency(urgency)
	u.Sector = regwatch.Sector(sector)
	u.KeyDates = orEmpty(u.KeyDates)
	return u, nil
}
