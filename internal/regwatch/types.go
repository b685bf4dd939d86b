// Package regwatch defines core types shared across the ingestion, matching and fan-out subsystems.
package regwatch

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// ErrNotFound is returned by stores when a row does not exist or is not visible to the caller.
var ErrNotFound = errors.New("not found")

// ImpactLevel grades how much an update changes obligations.
type ImpactLevel string

// Impact levels accepted from the classifier.
const (
	ImpactSignificant   ImpactLevel = "Significant"
	ImpactModerate      ImpactLevel = "Moderate"
	ImpactInformational ImpactLevel = "Informational"
)

// Urgency grades how soon action is required.
type Urgency string

// Urgency values accepted from the classifier.
const (
	UrgencyHigh   Urgency = "High"
	UrgencyMedium Urgency = "Medium"
	UrgencyLow    Urgency = "Low"
)

// Sector is the closed set of industry sectors an update can target.
type Sector string

// Sector values accepted from the classifier.
const (
	SectorBanking         Sector = "Banking"
	SectorInsurance       Sector = "Insurance"
	SectorAssetManagement Sector = "Asset Management"
	SectorCapitalMarkets  Sector = "Capital Markets"
	SectorPayments        Sector = "Payments"
	SectorPensions        Sector = "Pensions"
	SectorCryptoAssets    Sector = "Crypto Assets"
	SectorCrossSector     Sector = "Cross-Sector"
)

// Sectors lists every valid sector in display order.
var Sectors = []Sector{
	SectorBanking,
	SectorInsurance,
	SectorAssetManagement,
	SectorCapitalMarkets,
	SectorPayments,
	SectorPensions,
	SectorCryptoAssets,
	SectorCrossSector,
}

// ParseImpactLevel normalizes s case-insensitively. ok is false for values outside the set.
func ParseImpactLevel(s string) (ImpactLevel, bool) {
	for _, v := range []ImpactLevel{ImpactSignificant, ImpactModerate, ImpactInformational} {
		if strings.EqualFold(strings.TrimSpace(s), string(v)) {
			return v, true
		}
	}
	return "", false
}

// ParseUrgency normalizes s case-insensitively.
func ParseUrgency(s string) (Urgency, bool) {
	for _, v := range []Urgency{UrgencyHigh, UrgencyMedium, UrgencyLow} {
		if strings.EqualFold(strings.TrimSpace(s), string(v)) {
			return v, true
		}
	}
	return "", false
}

// ParseSector normalizes s case-insensitively against Sectors.
func ParseSector(s string) (Sector, bool) {
	for _, v := range Sectors {
		if strings.EqualFold(strings.TrimSpace(s), string(v)) {
			return v, true
		}
	}
	return "", false
}

// CandidateItem is an unvalidated item discovered by a collector. It is never persisted.
type CandidateItem struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	PublishedAt time.Time `json:"published_at"`
	SourceName  string    `json:"source_name"`
}

// RegulatoryUpdate is a classified publication, unique by URL.
type RegulatoryUpdate struct {
	ID            string      `json:"id"`
	URL           string      `json:"url"`
	Headline      string      `json:"headline"`
	ImpactSummary string      `json:"impact_summary"`
	FocusArea     string      `json:"focus_area"`
	Authority     string      `json:"authority"`
	ImpactLevel   ImpactLevel `json:"impact_level"`
	Urgency       Urgency     `json:"urgency"`
	Sector        Sector      `json:"sector"`
	KeyDates      []string    `json:"key_dates"`
	FetchedAt     time.Time   `json:"fetched_at"`
}

// WatchList is a user-owned filter evaluated against every new update.
type WatchList struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"owner_id"`
	Name             string    `json:"name"`
	Keywords         []string  `json:"keywords"`
	Authorities      []string  `json:"authorities"`
	Sectors          []string  `json:"sectors"`
	AlertThreshold   float64   `json:"alert_threshold"`
	AlertOnMatch     bool      `json:"alert_on_match"`
	AutoFileTargetID string    `json:"auto_file_target_id,omitempty"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
}

// DisplayName returns the name used in notifications and provenance notes.
func (w WatchList) DisplayName() string {
	if strings.TrimSpace(w.Name) != "" {
		return w.Name
	}
	return w.ID
}

// MatchRecord is durable evidence that an update satisfied a watch list's threshold.
type MatchRecord struct {
	ID          string    `json:"id"`
	WatchListID string    `json:"watch_list_id"`
	UpdateID    string    `json:"update_id"`
	Score       float64   `json:"score"`
	Reasons     []string  `json:"reasons"`
	Reviewed    bool      `json:"reviewed"`
	Dismissed   bool      `json:"dismissed"`
	CreatedAt   time.Time `json:"created_at"`
}

// SaveStatus reports what SaveMatch did with a record.
type SaveStatus string

// SaveMatch outcomes.
const (
	SaveCreated    SaveStatus = "created"
	SaveExisting   SaveStatus = "existing"
	SaveSuppressed SaveStatus = "suppressed"
)

// Notification is an owner-facing alert created for a match. At most one exists per match.
type Notification struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	MatchID     string    `json:"match_id"`
	WatchListID string    `json:"watch_list_id"`
	UpdateID    string    `json:"update_id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"`
}

// DossierItem files an update into a dossier.
type DossierItem struct {
	DossierID string    `json:"dossier_id"`
	UpdateID  string    `json:"update_id"`
	OwnerID   string    `json:"owner_id"`
	Note      string    `json:"note"`
	AddedAt   time.Time `json:"added_at"`
}

// Dossier is a user-curated collection of updates.
type Dossier struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Title   string `json:"title"`
}

// Policy is an internal policy document that cites updates.
type Policy struct {
	ID             string   `json:"id"`
	OwnerID        string   `json:"owner_id"`
	Title          string   `json:"title"`
	CitedUpdateIDs []string `json:"cited_update_ids"`
}

// WorkflowItem is a work item raised from at most one source update.
type WorkflowItem struct {
	ID             string `json:"id"`
	OwnerID        string `json:"owner_id"`
	Title          string `json:"title"`
	SourceUpdateID string `json:"source_update_id,omitempty"`
}

// EntityType names the kinds of entity that can reference an update.
type EntityType string

// Entity types reachable through the cross-reference graph.
const (
	EntityWatchList    EntityType = "watchlist"
	EntityDossier      EntityType = "dossier"
	EntityPolicy       EntityType = "policy"
	EntityWorkflowItem EntityType = "workflow_item"
)

// EntityTypes lists every linkable entity type.
var EntityTypes = []EntityType{EntityWatchList, EntityDossier, EntityPolicy, EntityWorkflowItem}

// ParseEntityType validates s against EntityTypes.
func ParseEntityType(s string) (EntityType, bool) {
	for _, t := range EntityTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// EntityRef identifies one entity in the cross-reference graph.
type EntityRef struct {
	Type  EntityType `json:"type"`
	ID    string     `json:"id"`
	Title string     `json:"title"`
}

// RelatedQuery selects entities of one type that reference any of UpdateIDs.
type RelatedQuery struct {
	Type      EntityType
	UpdateIDs []string
	OwnerID   string
	ExcludeID string
	Limit     int
}

// Stats carries the count aggregates shown on overview pages.
type Stats struct {
	Updates             int            `json:"updates"`
	ActiveWatchLists    int            `json:"active_watch_lists"`
	UnreadNotifications int            `json:"unread_notifications"`
	MatchesByWatchList  map[string]int `json:"matches_by_watch_list"`
	ItemsByDossier      map[string]int `json:"items_by_dossier"`
}

// FetchRequest describes one outbound page fetch.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse captures the body and metadata of a successful fetch.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}
