package reach

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"time"

	"github.com/ragmap-dev/ragmap/internal/ragmap/database"
	"github.com/ragmap-dev/ragmap/internal/ragmap/types"
)

const (
	// MaxRefreshLimit caps how many servers one pass may probe.
	MaxRefreshLimit = 500
	// DefaultRefreshLimit applies when a caller passes a non-positive limit.
	DefaultRefreshLimit = 50

	listPageSize        = 200
	defaultProbeTimeout = 5 * time.Second
	defaultProbeDelay   = 800 * time.Millisecond
)

// ClampRefreshLimit normalizes a caller-supplied probe budget.
func ClampRefreshLimit(limit int) int {
	if limit <= 0 {
		return DefaultRefreshLimit
	}
	if limit > MaxRefreshLimit {
		return MaxRefreshLimit
	}
	return limit
}

// RefreshResult reports what a reachability pass did.
type RefreshResult struct {
	Limit      int   `json:"limit"`
	Candidates int   `json:"candidates"`
	Checked    int   `json:"checked"`
	Reachable  int   `json:"reachable"`
	DurationMs int64 `json:"durationMs"`
}

// candidate is one probeable latest entry.
type candidate struct {
	name        string
	url         string
	ragScore    int
	kind        types.ServerKind
	updatedAtMs int64
	checkedAtMs *int64
}

// Scheduler picks which servers to probe each pass and records the outcomes.
// High-scoring retrievers with unknown or stale reachability rotate to the
// front; everything else gets opportunistic coverage.
type Scheduler struct {
	store        database.CatalogStore
	prober       *Prober
	policy       Policy
	probeTimeout time.Duration
	probeDelay   time.Duration
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration)
	shuffle      func(n int, swap func(i, j int))
}

// NewScheduler builds a scheduler probing with the given policy.
func NewScheduler(store database.CatalogStore, prober *Prober, policy Policy) *Scheduler {
	return &Scheduler{
		store:        store,
		prober:       prober,
		policy:       policy,
		probeTimeout: defaultProbeTimeout,
		probeDelay:   defaultProbeDelay,
		now:          time.Now,
		sleep:        sleepContext,
		shuffle:      rand.Shuffle,
	}
}

// SetProbeTimeout overrides the per-method probe timeout.
func (s *Scheduler) SetProbeTimeout(d time.Duration) {
	if d > 0 {
		s.probeTimeout = d
	}
}

// SetProbeDelay overrides the pause between consecutive probes.
func (s *Scheduler) SetProbeDelay(d time.Duration) {
	if d >= 0 {
		s.probeDelay = d
	}
}

// SetClock overrides the time source.
func (s *Scheduler) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Refresh probes up to limit servers from the latest catalog. Probes run
// serially with a cooperative delay; cancellation aborts between probes and
// keeps the results written so far.
func (s *Scheduler) Refresh(ctx context.Context, limit int) (*RefreshResult, error) {
	limit = ClampRefreshLimit(limit)
	startedAt := s.now().UTC()

	candidates, err := s.collectCandidates(ctx)
	if err != nil {
		return nil, err
	}
	selected := s.planCandidates(candidates, limit)
	log.Printf("Reachability pass: %d candidates, probing %d (policy=%s)", len(candidates), len(selected), s.policy)

	result := &RefreshResult{Limit: limit, Candidates: len(candidates)}
	for i, cand := range selected {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		probe := s.prober.Probe(ctx, cand.url, s.probeTimeout, s.policy)
		checkedAt := s.now().UTC()
		detail := database.ReachabilityDetail{Status: probe.Status, Method: probe.Method}
		if err := s.store.SetReachability(ctx, cand.name, probe.OK, checkedAt, detail); err != nil {
			return result, fmt.Errorf("failed to record reachability for %s: %w", cand.name, err)
		}
		result.Checked++
		if probe.OK {
			result.Reachable++
		}

		if i < len(selected)-1 {
			s.sleep(ctx, s.probeDelay)
		}
	}

	finishedAt := s.now().UTC()
	if err := s.store.SetLastReachabilityRunAt(ctx, finishedAt); err != nil {
		return result, fmt.Errorf("failed to record reachability run completion: %w", err)
	}
	result.DurationMs = finishedAt.Sub(startedAt).Milliseconds()
	return result, nil
}

// collectCandidates pages the latest catalog and keeps every entry with a
// probeable URL and a remote capability.
func (s *Scheduler) collectCandidates(ctx context.Context) ([]candidate, error) {
	var out []candidate
	cursor := ""
	for {
		entries, next, err := s.store.ListLatest(ctx, database.ListLatestFilter{Cursor: cursor, Limit: listPageSize})
		if err != nil {
			return nil, fmt.Errorf("failed to list catalog for reachability: %w", err)
		}
		for i := range entries {
			if cand, ok := candidateFor(&entries[i]); ok {
				out = append(out, cand)
			}
		}
		if next == "" {
			return out, nil
		}
		cursor = next
	}
}

func candidateFor(entry *types.CatalogEntry) (candidate, bool) {
	if !entry.RagMap.HasRemote {
		return candidate{}, false
	}
	url := ProbeURL(entry)
	if url == "" {
		return candidate{}, false
	}

	cand := candidate{
		name:        entry.Server.Name,
		url:         url,
		ragScore:    entry.RagMap.RagScore,
		kind:        entry.RagMap.ServerKind,
		updatedAtMs: types.ParseOfficial(entry.Official).UpdatedAtTime().UnixMilli(),
	}
	if entry.RagMap.ReachableCheckedAt != nil {
		ms := entry.RagMap.ReachableCheckedAt.UnixMilli()
		cand.checkedAtMs = &ms
	}
	return cand, true
}

// ProbeURL picks the endpoint a reachability probe would hit: the first
// streamable-http remote URL, else the first streamable-http package
// transport URL. Empty means the server has nothing probeable.
func ProbeURL(entry *types.CatalogEntry) string {
	for _, remote := range entry.Server.Remotes {
		if remote.Type == types.TransportStreamableHTTP && remote.URL != "" {
			return remote.URL
		}
	}
	for _, pkg := range entry.Server.Packages {
		if pkg.Transport != nil && pkg.Transport.Type == types.TransportStreamableHTTP && pkg.Transport.URL != "" {
			return pkg.Transport.URL
		}
	}
	return ""
}

// planCandidates picks up to limit candidates in refresh-priority order.
func (s *Scheduler) planCandidates(candidates []candidate, limit int) []candidate {
	tierA, tierB, tierC := bucketCandidates(candidates)
	sortTierA(tierA)
	sortTierB(tierB)
	s.shuffle(len(tierC), func(i, j int) { tierC[i], tierC[j] = tierC[j], tierC[i] })
	return selectCandidates(tierA, tierB, tierC, limit)
}

// bucketCandidates splits candidates into priority tiers: A holds retrievers
// scoring at least 10, B the remaining retrievers with any score, C the rest.
func bucketCandidates(candidates []candidate) (tierA, tierB, tierC []candidate) {
	for _, cand := range candidates {
		switch {
		case cand.kind == types.ServerKindRetriever && cand.ragScore >= 10:
			tierA = append(tierA, cand)
		case cand.kind == types.ServerKindRetriever && cand.ragScore >= 1:
			tierB = append(tierB, cand)
		default:
			tierC = append(tierC, cand)
		}
	}
	return tierA, tierB, tierC
}

// sortTierA rotates never-probed candidates to the front, then oldest-checked
// first; ties break by score desc, update recency, name.
func sortTierA(tier []candidate) {
	sort.SliceStable(tier, func(i, j int) bool {
		a, b := tier[i], tier[j]
		if (a.checkedAtMs == nil) != (b.checkedAtMs == nil) {
			return a.checkedAtMs == nil
		}
		if a.checkedAtMs != nil && *a.checkedAtMs != *b.checkedAtMs {
			return *a.checkedAtMs < *b.checkedAtMs
		}
		if a.ragScore != b.ragScore {
			return a.ragScore > b.ragScore
		}
		if a.updatedAtMs != b.updatedAtMs {
			return a.updatedAtMs > b.updatedAtMs
		}
		return a.name < b.name
	})
}

// sortTierB orders by score desc, update recency, name.
func sortTierB(tier []candidate) {
	sort.SliceStable(tier, func(i, j int) bool {
		a, b := tier[i], tier[j]
		if a.ragScore != b.ragScore {
			return a.ragScore > b.ragScore
		}
		if a.updatedAtMs != b.updatedAtMs {
			return a.updatedAtMs > b.updatedAtMs
		}
		return a.name < b.name
	})
}

// selectCandidates reserves 70% of the budget (rounded up) for tier A and
// fills the remainder from B, then C.
func selectCandidates(tierA, tierB, tierC []candidate, limit int) []candidate {
	if limit <= 0 {
		return nil
	}
	quotaA := (limit*7 + 9) / 10
	if quotaA > len(tierA) {
		quotaA = len(tierA)
	}

	selected := make([]candidate, 0, limit)
	selected = append(selected, tierA[:quotaA]...)
	for _, tier := range [][]candidate{tierB, tierC, tierA[quotaA:]} {
		for _, cand := range tier {
			if len(selected) >= limit {
				return selected
			}
			selected = append(selected, cand)
		}
	}
	return selected
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
