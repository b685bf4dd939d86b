// Package xref resolves the entities that share regulatory updates with a given entity.
package xref

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/regwatch/regwatch/internal/logging"
	"github.com/regwatch/regwatch/internal/regwatch"
)

// Limits on related rows per entity type.
const (
	DefaultLimit = 25
	MaxLimit     = 50
)

// ErrUnknownEntityType is returned for entity types outside regwatch.EntityTypes.
var ErrUnknownEntityType = errors.New("unknown entity type")

// LinkedItems is the read model for one entity's cross references.
type LinkedItems struct {
	Entity    regwatch.EntityRef                           `json:"entity"`
	UpdateIDs []string                                     `json:"update_ids"`
	Related   map[regwatch.EntityType][]regwatch.EntityRef `json:"related"`
}

// Resolver answers cross-reference lookups. It holds no cache; every call reads current state.
type Resolver struct {
	links  regwatch.LinkStore
	limit  int
	logger *zap.Logger
}

// New returns a Resolver capping each related type at limit, clamped to [1, MaxLimit].
// limit <= 0 selects DefaultLimit.
func New(links regwatch.LinkStore, limit int, logger *zap.Logger) *Resolver {
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	return &Resolver{links: links, limit: limit, logger: logging.Component(logger, "xref")}
}

// GetLinkedItems returns, per entity type, the other entities owned by ownerID
// that reference any update the given entity references.
func (r *Resolver) GetLinkedItems(
	ctx context.Context,
	entityType regwatch.EntityType,
	entityID, ownerID string,
) (LinkedItems, error) {
	if _, ok := regwatch.ParseEntityType(string(entityType)); !ok {
		return LinkedItems{}, fmt.Errorf("%w: %q", ErrUnknownEntityType, entityType)
	}
	if strings.TrimSpace(entityID) == "" || strings.TrimSpace(ownerID) == "" {
		return LinkedItems{}, fmt.Errorf("entity id and owner id are required")
	}
	ref := regwatch.EntityRef{Type: entityType, ID: entityID}

	ids, err := r.links.UpdateIDsFor(ctx, ref, ownerID)
	if err != nil {
		return LinkedItems{}, err
	}
	out := LinkedItems{
		Entity:    ref,
		UpdateIDs: ids,
		Related:   make(map[regwatch.EntityType][]regwatch.EntityRef, len(regwatch.EntityTypes)),
	}
	for _, typ := range regwatch.EntityTypes {
		out.Related[typ] = []regwatch.EntityRef{}
	}
	if len(ids) == 0 {
		return out, nil
	}

	for _, typ := range regwatch.EntityTypes {
		q := regwatch.RelatedQuery{Type: typ, UpdateIDs: ids, OwnerID: ownerID, Limit: r.limit}
		if typ == entityType {
			q.ExcludeID = entityID
		}
		related, err := r.links.RelatedByUpdates(ctx, q)
		if err != nil {
			return LinkedItems{}, fmt.Errorf("resolve %s links: %w", typ, err)
		}
		if len(related) > r.limit {
			related = related[:r.limit]
		}
		out.Related[typ] = related
	}
	r.logger.Debug("linked items resolved",
		zap.String("entity_type", string(entityType)),
		zap.String("entity_id", entityID),
		zap.Int("update_ids", len(ids)),
	)
	return out, nil
}
