package regwatch

import (
	"context"
	"io"
	"time"
)

// Collector discovers candidate items from one source. Failures degrade to a partial
// result; the error only explains why the result is partial.
type Collector interface {
	Name() string
	Collect(ctx context.Context) ([]CandidateItem, error)
}

// UpdateStore persists regulatory updates keyed by URL.
type UpdateStore interface {
	ExistsByURL(ctx context.Context, url string) (bool, error)
	// UpsertUpdate inserts or overwrites the classification fields of the row with
	// update.URL and returns the stored row. The ID of an existing row never changes.
	UpsertUpdate(ctx context.Context, update RegulatoryUpdate) (RegulatoryUpdate, error)
	GetUpdate(ctx context.Context, id string) (RegulatoryUpdate, error)
	// ListUpdatesSince pages through updates fetched at or after since, newest first.
	ListUpdatesSince(ctx context.Context, since time.Time, limit, offset int) ([]RegulatoryUpdate, error)
}

// WatchListStore reads watch list definitions.
type WatchListStore interface {
	GetWatchList(ctx context.Context, id, ownerID string) (WatchList, error)
	// ListActiveWatchLists returns active lists for ownerID, or for every owner when ownerID is empty.
	ListActiveWatchLists(ctx context.Context, ownerID string) ([]WatchList, error)
}

// MatchStore persists match records, one per (watch list, update) pair.
type MatchStore interface {
	// SaveMatch creates the pair's record. An existing record is returned
	// unchanged as SaveExisting, or SaveSuppressed when it was dismissed.
	SaveMatch(ctx context.Context, match MatchRecord) (MatchRecord, SaveStatus, error)
	ReviewMatch(ctx context.Context, matchID, ownerID string) error
	DismissMatch(ctx context.Context, matchID, ownerID string) error
}

// NotificationStore persists owner notifications.
type NotificationStore interface {
	// CreateNotification is idempotent on MatchID; created is false when one already exists.
	CreateNotification(ctx context.Context, n Notification) (created bool, err error)
}

// DossierStore files updates into dossiers.
type DossierStore interface {
	// AddDossierItem inserts the item when the dossier belongs to item.OwnerID.
	// added is false when the update is already filed there.
	AddDossierItem(ctx context.Context, item DossierItem) (added bool, err error)
}

// LinkStore answers cross-reference lookups over shared update ids.
type LinkStore interface {
	UpdateIDsFor(ctx context.Context, ref EntityRef, ownerID string) ([]string, error)
	RelatedByUpdates(ctx context.Context, q RelatedQuery) ([]EntityRef, error)
}

// StatsStore computes count aggregates for one owner.
type StatsStore interface {
	Stats(ctx context.Context, ownerID string) (Stats, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Hasher derives stable object keys from update URLs.
type Hasher interface {
	URLKey(rawURL string) string
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces row ids.
type IDGenerator interface {
	NewID() (string, error)
}
