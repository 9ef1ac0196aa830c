// Package database defines the catalog store contract shared by the
// in-memory and PostgreSQL implementations, plus the errors and filter types
// the rest of the service uses to talk to it.
package database

import (
	"context"
	"errors"
	"time"

	"github.com/ragmap-dev/ragmap/internal/ragmap/types"
)

// Common database errors
var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrDatabase     = errors.New("database error")
)

// MaxListLimit caps a single listLatest page.
const MaxListLimit = 200

// DefaultListLimit applies when a caller passes a non-positive limit.
const DefaultListLimit = 100

// VersionLatest resolves to the name-level latest snapshot in GetVersion.
const VersionLatest = "latest"

// ListLatestFilter selects a page of the latest-snapshot projection.
type ListLatestFilter struct {
	// Cursor is the last name returned by the previous page; empty starts
	// from the beginning.
	Cursor string
	// Limit is clamped to [1, MaxListLimit]; non-positive selects
	// DefaultListLimit.
	Limit int
	// UpdatedSince keeps only entries whose official updatedAt is strictly
	// greater.
	UpdatedSince *time.Time
}

// UpsertRequest writes one catalog entry at (name, version) granularity.
type UpsertRequest struct {
	RunID  string
	At     time.Time
	Entry  types.CatalogEntry
	Hidden bool
}

// ReachabilityDetail carries the optional probe outcome metadata persisted
// next to the reachable flag.
type ReachabilityDetail struct {
	Status *int
	Method string
}

// CatalogStore persists versioned server records and their enrichment, and
// projects the per-name latest snapshot the read paths serve from. Both
// implementations honor the same contract:
//
//   - upserts replace the (name, version) entry atomically;
//   - listing never returns hidden servers and returns each name once;
//   - reachability writes touch only the reachability fields of the latest
//     entry's enrichment;
//   - hiding is per full-run diffing, never deletion.
type CatalogStore interface {
	// BeginRun allocates a fresh run id and invalidates derived caches.
	BeginRun(ctx context.Context, mode types.RunMode) (string, error)
	// GetLastSuccessfulIngestAt returns nil when no run ever completed.
	GetLastSuccessfulIngestAt(ctx context.Context) (*time.Time, error)
	// SetLastSuccessfulIngestAt records a clean ingestion completion.
	SetLastSuccessfulIngestAt(ctx context.Context, t time.Time) error
	// GetLastReachabilityRunAt returns nil when no reachability pass ever ran.
	GetLastReachabilityRunAt(ctx context.Context) (*time.Time, error)
	// SetLastReachabilityRunAt records a reachability pass completion.
	SetLastReachabilityRunAt(ctx context.Context, t time.Time) error
	// MarkServerSeen stamps the name with the run id, creating a stub when
	// the name is new.
	MarkServerSeen(ctx context.Context, runID, name string, seenAt time.Time) error
	// UpsertServerVersion writes the version entry and, when the entry is
	// the latest for its name, refreshes the latest snapshot.
	UpsertServerVersion(ctx context.Context, req UpsertRequest) error
	// HideServersNotSeen hides every visible server whose lastSeenRunId
	// differs from runID and returns how many were hidden.
	HideServersNotSeen(ctx context.Context, runID string) (int, error)
	// ListLatest pages the latest snapshots of visible servers in name order.
	// The returned cursor is empty on the final page.
	ListLatest(ctx context.Context, filter ListLatestFilter) ([]types.CatalogEntry, string, error)
	// ListVersions returns the visible versions of a name ordered by
	// (isLatest desc, publishedAt desc). Unknown or hidden names return
	// ErrNotFound.
	ListVersions(ctx context.Context, name string) ([]types.CatalogEntry, error)
	// GetVersion resolves a concrete version or VersionLatest. Hidden
	// entries are indistinguishable from absent ones.
	GetVersion(ctx context.Context, name, version string) (*types.CatalogEntry, error)
	// ListCategories returns the sorted union of categories across visible
	// latest entries.
	ListCategories(ctx context.Context) ([]string, error)
	// SetReachability updates the reachability fields of the latest entry's
	// enrichment. Unknown names are a no-op.
	SetReachability(ctx context.Context, name string, ok bool, checkedAt time.Time, detail ReachabilityDetail) error
	// HealthCheck reports whether the underlying store is usable.
	HealthCheck(ctx context.Context) error
	// Close releases the store's resources.
	Close() error
}

// ClampListLimit normalizes a caller-supplied page size to the store bounds.
func ClampListLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
