package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/regwatch/regwatch/internal/regwatch"
)

// Store is an in-memory implementation of every relational port, for local runs and tests.
// Getters return copies so callers never alias stored slices.
type Store struct {
	mu sync.RWMutex

	updates      map[string]regwatch.RegulatoryUpdate
	updateByURL  map[string]string
	watchLists   map[string]regwatch.WatchList
	matches      map[string]regwatch.MatchRecord
	matchByPair  map[pairKey]string
	notes        map[string]regwatch.Notification
	noteByMatch  map[string]string
	dossiers     map[string]regwatch.Dossier
	dossierItems map[string][]regwatch.DossierItem
	policies     map[string]regwatch.Policy
	workflow     map[string]regwatch.WorkflowItem
}

type pairKey struct {
	watchListID string
	updateID    string
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		updates:      make(map[string]regwatch.RegulatoryUpdate),
		updateByURL:  make(map[string]string),
		watchLists:   make(map[string]regwatch.WatchList),
		matches:      make(map[string]regwatch.MatchRecord),
		matchByPair:  make(map[pairKey]string),
		notes:        make(map[string]regwatch.Notification),
		noteByMatch:  make(map[string]string),
		dossiers:     make(map[string]regwatch.Dossier),
		dossierItems: make(map[string][]regwatch.DossierItem),
		policies:     make(map[string]regwatch.Policy),
		workflow:     make(map[string]regwatch.WorkflowItem),
	}
}

// ExistsByURL reports whether an update with url is stored.
func (s *Store) ExistsByURL(_ context.Context, url string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.updateByURL[url]
	return ok, nil
}

// UpsertUpdate inserts update, or overwrites the classification fields of the row
// already stored for update.URL while keeping its id.
func (s *Store) UpsertUpdate(_ context.Context, update regwatch.RegulatoryUpdate) (regwatch.RegulatoryUpdate, error) {
	if update.URL == "" {
		return regwatch.RegulatoryUpdate{}, errors.New("update url is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.updateByURL[update.URL]; ok {
		update.ID = id
	} else if update.ID == "" {
		return regwatch.RegulatoryUpdate{}, errors.New("update id is required")
	}
	update.KeyDates = slices.Clone(update.KeyDates)
	s.updates[update.ID] = update
	s.updateByURL[update.URL] = update.ID
	return cloneUpdate(update), nil
}

// GetUpdate fetches an update by id.
func (s *Store) GetUpdate(_ context.Context, id string) (regwatch.RegulatoryUpdate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.updates[id]
	if !ok {
		return regwatch.RegulatoryUpdate{}, fmt.Errorf("update %s: %w", id, regwatch.ErrNotFound)
	}
	return cloneUpdate(u), nil
}

// ListUpdatesSince pages through updates fetched at or after since, newest first.
func (s *Store) ListUpdatesSince(
	_ context.Context,
	since time.Time,
	limit, offset int,
) ([]regwatch.RegulatoryUpdate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]regwatch.RegulatoryUpdate, 0, len(s.updates))
	for _, u := range s.updates {
		if !u.FetchedAt.Before(since) {
			all = append(all, u)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].FetchedAt.Equal(all[j].FetchedAt) {
			return all[i].FetchedAt.After(all[j].FetchedAt)
		}
		return all[i].ID > all[j].ID
	})
	if offset >= len(all) {
		return []regwatch.RegulatoryUpdate{}, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]regwatch.RegulatoryUpdate, 0, end-offset)
	for _, u := range all[offset:end] {
		out = append(out, cloneUpdate(u))
	}
	return out, nil
}

// PutWatchList creates or replaces a watch list definition.
func (s *Store) PutWatchList(wl regwatch.WatchList) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchLists[wl.ID] = cloneWatchList(wl)
}

// GetWatchList fetches a watch list visible to ownerID.
func (s *Store) GetWatchList(_ context.Context, id, ownerID string) (regwatch.WatchList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wl, ok := s.watchLists[id]
	if !ok || wl.OwnerID != ownerID {
		return regwatch.WatchList{}, fmt.Errorf("watch list %s: %w", id, regwatch.ErrNotFound)
	}
	return cloneWatchList(wl), nil
}

// ListActiveWatchLists returns active lists for ownerID, or for all owners when empty.
func (s *Store) ListActiveWatchLists(_ context.Context, ownerID string) ([]regwatch.WatchList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]regwatch.WatchList, 0, len(s.watchLists))
	for _, wl := range s.watchLists {
		if !wl.Active || (ownerID != "" && wl.OwnerID != ownerID) {
			continue
		}
		out = append(out, cloneWatchList(wl))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveMatch creates the pair's record. Stored records are never rewritten.
func (s *Store) SaveMatch(
	_ context.Context,
	match regwatch.MatchRecord,
) (regwatch.MatchRecord, regwatch.SaveStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{watchListID: match.WatchListID, updateID: match.UpdateID}
	if id, ok := s.matchByPair[key]; ok {
		existing := s.matches[id]
		if existing.Dismissed {
			return cloneMatch(existing), regwatch.SaveSuppressed, nil
		}
		return cloneMatch(existing), regwatch.SaveExisting, nil
	}
	if match.ID == "" {
		return regwatch.MatchRecord{}, "", errors.New("match id is required")
	}
	match.Reasons = slices.Clone(match.Reasons)
	s.matches[match.ID] = match
	s.matchByPair[key] = match.ID
	return cloneMatch(match), regwatch.SaveCreated, nil
}

// ReviewMatch marks a match reviewed when its watch list belongs to ownerID.
func (s *Store) ReviewMatch(_ context.Context, matchID, ownerID string) error {
	return s.mutateMatch(matchID, ownerID, func(m *regwatch.MatchRecord) { m.Reviewed = true })
}

// DismissMatch marks a match dismissed when its watch list belongs to ownerID.
func (s *Store) DismissMatch(_ context.Context, matchID, ownerID string) error {
	return s.mutateMatch(matchID, ownerID, func(m *regwatch.MatchRecord) { m.Dismissed = true })
}

func (s *Store) mutateMatch(matchID, ownerID string, apply func(*regwatch.MatchRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok || s.watchLists[m.WatchListID].OwnerID != ownerID {
		return fmt.Errorf("match %s: %w", matchID, regwatch.ErrNotFound)
	}
	apply(&m)
	s.matches[matchID] = m
	return nil
}

// Matches returns the records stored for a watch list, oldest first.
func (s *Store) Matches(watchListID string) []regwatch.MatchRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []regwatch.MatchRecord
	for _, m := range s.matches {
		if m.WatchListID == watchListID {
			out = append(out, cloneMatch(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CreateNotification stores n unless one already exists for n.MatchID.
func (s *Store) CreateNotification(_ context.Context, n regwatch.Notification) (bool, error) {
	if n.MatchID == "" || n.ID == "" {
		return false, errors.New("notification id and match id are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.noteByMatch[n.MatchID]; exists {
		return false, nil
	}
	s.notes[n.ID] = n
	s.noteByMatch[n.MatchID] = n.ID
	return true, nil
}

// Notifications returns every notification for ownerID.
func (s *Store) Notifications(ownerID string) []regwatch.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []regwatch.Notification
	for _, n := range s.notes {
		if n.OwnerID == ownerID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PutDossier creates or replaces a dossier.
func (s *Store) PutDossier(d regwatch.Dossier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dossiers[d.ID] = d
}

// AddDossierItem files an update into a dossier owned by item.OwnerID.
func (s *Store) AddDossierItem(_ context.Context, item regwatch.DossierItem) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dossiers[item.DossierID]
	if !ok || d.OwnerID != item.OwnerID {
		return false, fmt.Errorf("dossier %s: %w", item.DossierID, regwatch.ErrNotFound)
	}
	for _, existing := range s.dossierItems[item.DossierID] {
		if existing.UpdateID == item.UpdateID {
			return false, nil
		}
	}
	s.dossierItems[item.DossierID] = append(s.dossierItems[item.DossierID], item)
	return true, nil
}

// DossierItems returns the items filed in a dossier, in insertion order.
func (s *Store) DossierItems(dossierID string) []regwatch.DossierItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.dossierItems[dossierID])
}

// PutPolicy creates or replaces a policy and its citations.
func (s *Store) PutPolicy(p regwatch.Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.CitedUpdateIDs = slices.Clone(p.CitedUpdateIDs)
	s.policies[p.ID] = p
}

// PutWorkflowItem creates or replaces a workflow item.
func (s *Store) PutWorkflowItem(w regwatch.WorkflowItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflow[w.ID] = w
}

// UpdateIDsFor returns the update ids ref points at. Entities not owned by
// ownerID are reported as not found.
func (s *Store) UpdateIDsFor(_ context.Context, ref regwatch.EntityRef, ownerID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	notFound := fmt.Errorf("%s %s: %w", ref.Type, ref.ID, regwatch.ErrNotFound)
	switch ref.Type {
	case regwatch.EntityWatchList:
		wl, ok := s.watchLists[ref.ID]
		if !ok || wl.OwnerID != ownerID {
			return nil, notFound
		}
		return s.watchListUpdates(ref.ID), nil
	case regwatch.EntityDossier:
		d, ok := s.dossiers[ref.ID]
		if !ok || d.OwnerID != ownerID {
			return nil, notFound
		}
		return s.dossierUpdates(ref.ID), nil
	case regwatch.EntityPolicy:
		p, ok := s.policies[ref.ID]
		if !ok || p.OwnerID != ownerID {
			return nil, notFound
		}
		return dedupe(p.CitedUpdateIDs), nil
	case regwatch.EntityWorkflowItem:
		w, ok := s.workflow[ref.ID]
		if !ok || w.OwnerID != ownerID {
			return nil, notFound
		}
		if w.SourceUpdateID == "" {
			return []string{}, nil
		}
		return []string{w.SourceUpdateID}, nil
	default:
		return nil, fmt.Errorf("unknown entity type %q", ref.Type)
	}
}

// RelatedByUpdates lists entities of q.Type owned by q.OwnerID that reference any of q.UpdateIDs.
func (s *Store) RelatedByUpdates(_ context.Context, q regwatch.RelatedQuery) ([]regwatch.EntityRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[string]struct{}, len(q.UpdateIDs))
	for _, id := range q.UpdateIDs {
		wanted[id] = struct{}{}
	}
	hits := func(ids []string) bool {
		for _, id := range ids {
			if _, ok := wanted[id]; ok {
				return true
			}
		}
		return false
	}

	var out []regwatch.EntityRef
	add := func(id, owner, title string, ids []string) {
		if owner != q.OwnerID || id == q.ExcludeID || !hits(ids) {
			return
		}
		out = append(out, regwatch.EntityRef{Type: q.Type, ID: id, Title: title})
	}
	switch q.Type {
	case regwatch.EntityWatchList:
		for id, wl := range s.watchLists {
			add(id, wl.OwnerID, wl.DisplayName(), s.watchListUpdates(id))
		}
	case regwatch.EntityDossier:
		for id, d := range s.dossiers {
			add(id, d.OwnerID, d.Title, s.dossierUpdates(id))
		}
	case regwatch.EntityPolicy:
		for id, p := range s.policies {
			add(id, p.OwnerID, p.Title, p.CitedUpdateIDs)
		}
	case regwatch.EntityWorkflowItem:
		for id, w := range s.workflow {
			add(id, w.OwnerID, w.Title, []string{w.SourceUpdateID})
		}
	default:
		return nil, fmt.Errorf("unknown entity type %q", q.Type)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Stats computes the overview counters for ownerID.
func (s *Store) Stats(_ context.Context, ownerID string) (regwatch.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := regwatch.Stats{
		Updates:            len(s.updates),
		MatchesByWatchList: make(map[string]int),
		ItemsByDossier:     make(map[string]int),
	}
	for id, wl := range s.watchLists {
		if wl.OwnerID != ownerID {
			continue
		}
		if wl.Active {
			st.ActiveWatchLists++
		}
		st.MatchesByWatchList[id] = len(s.watchListUpdates(id))
	}
	for _, n := range s.notes {
		if n.OwnerID == ownerID && !n.Read {
			st.UnreadNotifications++
		}
	}
	for id, d := range s.dossiers {
		if d.OwnerID == ownerID {
			st.ItemsByDossier[id] = len(s.dossierItems[id])
		}
	}
	return st, nil
}

// watchListUpdates must be called with s.mu held.
func (s *Store) watchListUpdates(watchListID string) []string {
	var ids []string
	for _, m := range s.matches {
		if m.WatchListID == watchListID && !m.Dismissed {
			ids = append(ids, m.UpdateID)
		}
	}
	sort.Strings(ids)
	return ids
}

// dossierUpdates must be called with s.mu held.
func (s *Store) dossierUpdates(dossierID string) []string {
	items := s.dossierItems[dossierID]
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.UpdateID)
	}
	return ids
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func cloneUpdate(u regwatch.RegulatoryUpdate) regwatch.RegulatoryUpdate {
	u.KeyDates = slices.Clone(u.KeyDates)
	return u
}

func cloneWatchList(wl regwatch.WatchList) regwatch.WatchList {
	wl.Keywords = slices.Clone(wl.Keywords)
	wl.Authorities = slices.Clone(wl.Authorities)
	wl.Sectors = slices.Clone(wl.Sectors)
	return wl
}

func cloneMatch(m regwatch.MatchRecord) regwatch.MatchRecord {
	m.Reasons = slices.Clone(m.Reasons)
	return m
}
