package database

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ragmap-dev/ragmap/internal/ragmap/types"
)

const categoriesCacheTTL = 30 * time.Second

// memoryVersion is one (name, version) entry. The entry pointer is swapped,
// never mutated in place, so concurrent readers stay consistent without
// holding the store lock while serializing.
type memoryVersion struct {
	entry      *types.CatalogEntry
	hidden     bool
	seenRunID  string
	upsertedAt time.Time
	seq        int
}

// memoryServer is the name-level record carrying the latest pointer and the
// run-scoped seen tracking.
type memoryServer struct {
	hidden        bool
	lastSeenRunID string
	lastSeenAt    time.Time
	latestVersion string
	versions      map[string]*memoryVersion
	nextSeq       int
}

// MemoryStore is the volatile CatalogStore used by tests and DATABASE_URL-less
// development runs. A single mutex serializes writers; readers take the same
// lock briefly and work on swapped-in snapshots afterwards.
type MemoryStore struct {
	mu      sync.RWMutex
	servers map[string]*memoryServer

	lastSuccessfulIngestAt *time.Time
	lastReachabilityRunAt  *time.Time

	categoriesCache    []string
	categoriesCachedAt time.Time
}

var _ CatalogStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory catalog store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		servers: make(map[string]*memoryServer),
	}
}

// BeginRun allocates a fresh run id and drops derived caches.
func (s *MemoryStore) BeginRun(_ context.Context, _ types.RunMode) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidateCachesLocked()
	return uuid.New().String(), nil
}

func (s *MemoryStore) GetLastSuccessfulIngestAt(context.Context) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyTime(s.lastSuccessfulIngestAt), nil
}

func (s *MemoryStore) SetLastSuccessfulIngestAt(_ context.Context, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t = t.UTC()
	s.lastSuccessfulIngestAt = &t
	return nil
}

func (s *MemoryStore) GetLastReachabilityRunAt(context.Context) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyTime(s.lastReachabilityRunAt), nil
}

func (s *MemoryStore) SetLastReachabilityRunAt(_ context.Context, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t = t.UTC()
	s.lastReachabilityRunAt = &t
	return nil
}

// MarkServerSeen stamps the name-level record, creating a stub when absent.
// Stubs without an upserted version never surface in listings.
func (s *MemoryStore) MarkServerSeen(_ context.Context, runID, name string, seenAt time.Time) error {
	if name == "" {
		return fmt.Errorf("%w: server name is required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	server := s.servers[name]
	if server == nil {
		server = &memoryServer{versions: make(map[string]*memoryVersion)}
		s.servers[name] = server
	}
	server.lastSeenRunID = runID
	server.lastSeenAt = seenAt.UTC()
	return nil
}

// UpsertServerVersion replaces the (name, version) entry and refreshes the
// name-level latest snapshot when the entry is (or becomes) latest.
func (s *MemoryStore) UpsertServerVersion(_ context.Context, req UpsertRequest) error {
	name := req.Entry.Server.Name
	version := req.Entry.Server.Version
	if name == "" || version == "" {
		return fmt.Errorf("%w: name and version are required", ErrInvalidInput)
	}

	entry, err := cloneEntry(req.Entry)
	if err != nil {
		return fmt.Errorf("failed to clone catalog entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	server := s.servers[name]
	if server == nil {
		server = &memoryServer{versions: make(map[string]*memoryVersion)}
		s.servers[name] = server
	}

	existing := server.versions[version]
	mv := &memoryVersion{
		entry:      entry,
		hidden:     req.Hidden,
		seenRunID:  req.RunID,
		upsertedAt: req.At.UTC(),
		seq:        server.nextSeq,
	}
	if existing != nil {
		mv.seq = existing.seq
	} else {
		server.nextSeq++
	}
	server.versions[version] = mv

	// The version claiming isLatest owns the snapshot; short of any claim,
	// the first-upserted version does.
	official := types.ParseOfficial(entry.Official)
	switch {
	case official.IsLatest:
		server.latestVersion = version
		server.hidden = req.Hidden
	case server.latestVersion == "":
		server.latestVersion = version
		server.hidden = req.Hidden
	case server.latestVersion == version:
		server.hidden = req.Hidden
	}

	s.invalidateCachesLocked()
	return nil
}

// HideServersNotSeen hides every visible server the given run did not touch.
func (s *MemoryStore) HideServersNotSeen(_ context.Context, runID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hidden := 0
	for _, server := range s.servers {
		if server.lastSeenRunID != runID && !server.hidden {
			server.hidden = true
			hidden++
		}
	}
	if hidden > 0 {
		s.invalidateCachesLocked()
	}
	return hidden, nil
}

// ListLatest pages the visible latest snapshots in name order.
func (s *MemoryStore) ListLatest(_ context.Context, filter ListLatestFilter) ([]types.CatalogEntry, string, error) {
	limit := ClampListLimit(filter.Limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	names := s.sortedNamesLocked()
	var results []types.CatalogEntry
	for _, name := range names {
		if filter.Cursor != "" && name <= filter.Cursor {
			continue
		}
		mv := s.visibleLatestLocked(name)
		if mv == nil {
			continue
		}
		if filter.UpdatedSince != nil {
			updatedAt := types.ParseOfficial(mv.entry.Official).UpdatedAtTime()
			if !updatedAt.After(*filter.UpdatedSince) {
				continue
			}
		}
		results = append(results, *mv.entry)
		if len(results) >= limit {
			break
		}
	}

	nextCursor := ""
	if len(results) >= limit {
		nextCursor = results[len(results)-1].Server.Name
	}
	return results, nextCursor, nil
}

// ListVersions returns the visible versions of a name, latest first, then by
// publishedAt descending.
func (s *MemoryStore) ListVersions(_ context.Context, name string) ([]types.CatalogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	server := s.servers[name]
	if server == nil || server.hidden {
		return nil, ErrNotFound
	}

	var visible []*memoryVersion
	for _, mv := range server.versions {
		if !mv.hidden {
			visible = append(visible, mv)
		}
	}
	if len(visible) == 0 {
		return nil, ErrNotFound
	}

	latest := server.latestVersion
	sort.Slice(visible, func(i, j int) bool {
		iLatest := visible[i].entry.Server.Version == latest
		jLatest := visible[j].entry.Server.Version == latest
		if iLatest != jLatest {
			return iLatest
		}
		iPub := types.ParseOfficial(visible[i].entry.Official).PublishedAtTime()
		jPub := types.ParseOfficial(visible[j].entry.Official).PublishedAtTime()
		if !iPub.Equal(jPub) {
			return iPub.After(jPub)
		}
		return visible[i].entry.Server.Version < visible[j].entry.Server.Version
	})

	results := make([]types.CatalogEntry, 0, len(visible))
	for _, mv := range visible {
		results = append(results, *mv.entry)
	}
	return results, nil
}

// GetVersion resolves a concrete version or VersionLatest for a visible name.
func (s *MemoryStore) GetVersion(_ context.Context, name, version string) (*types.CatalogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	server := s.servers[name]
	if server == nil || server.hidden {
		return nil, ErrNotFound
	}

	resolved := version
	if resolved == VersionLatest || resolved == "" {
		resolved = server.latestVersion
	}
	mv := server.versions[resolved]
	if mv == nil || mv.hidden {
		return nil, ErrNotFound
	}
	entry := *mv.entry
	return &entry, nil
}

// ListCategories returns the sorted union of categories across visible latest
// entries, cached briefly between mutations.
func (s *MemoryStore) ListCategories(_ context.Context) ([]string, error) {
	s.mu.RLock()
	if s.categoriesCache != nil && time.Since(s.categoriesCachedAt) < categoriesCacheTTL {
		cached := s.categoriesCache
		s.mu.RUnlock()
		return cached, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	var categories []string
	for _, name := range s.sortedNamesLocked() {
		mv := s.visibleLatestLocked(name)
		if mv == nil {
			continue
		}
		for _, category := range mv.entry.RagMap.Categories {
			key := strings.ToLower(category)
			if !seen[key] {
				seen[key] = true
				categories = append(categories, category)
			}
		}
	}
	sort.Strings(categories)

	s.categoriesCache = categories
	s.categoriesCachedAt = time.Now()
	return categories, nil
}

// SetReachability swaps in a copy of the latest entry with refreshed
// reachability fields; everything else in the enrichment is untouched.
func (s *MemoryStore) SetReachability(_ context.Context, name string, ok bool, checkedAt time.Time, detail ReachabilityDetail) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	server := s.servers[name]
	if server == nil || server.latestVersion == "" {
		return nil
	}
	mv := server.versions[server.latestVersion]
	if mv == nil {
		return nil
	}

	entry := *mv.entry
	checked := checkedAt.UTC()
	entry.RagMap.Reachable = &ok
	entry.RagMap.ReachableCheckedAt = &checked
	if ok {
		entry.RagMap.LastReachableAt = &checked
	}
	entry.RagMap.ReachableStatus = copyInt(detail.Status)
	entry.RagMap.ReachableMethod = detail.Method

	updated := *mv
	updated.entry = &entry
	server.versions[server.latestVersion] = &updated

	s.invalidateCachesLocked()
	return nil
}

// HealthCheck always succeeds for the in-memory store.
func (s *MemoryStore) HealthCheck(context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) invalidateCachesLocked() {
	s.categoriesCache = nil
	s.categoriesCachedAt = time.Time{}
}

func (s *MemoryStore) sortedNamesLocked() []string {
	names := make([]string, 0, len(s.servers))
	for name := range s.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// visibleLatestLocked resolves the latest visible version of a name, or nil.
func (s *MemoryStore) visibleLatestLocked(name string) *memoryVersion {
	server := s.servers[name]
	if server == nil || server.hidden || server.latestVersion == "" {
		return nil
	}
	mv := server.versions[server.latestVersion]
	if mv == nil || mv.hidden {
		return nil
	}
	return mv
}

// cloneEntry makes a deep copy through the canonical JSON form so later
// caller-side mutation cannot leak into the store.
func cloneEntry(entry types.CatalogEntry) (*types.CatalogEntry, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	var cloned types.CatalogEntry
	if err := json.Unmarshal(data, &cloned); err != nil {
		return nil, err
	}
	return &cloned, nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	copied := *t
	return &copied
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	copied := *v
	return &copied
}
