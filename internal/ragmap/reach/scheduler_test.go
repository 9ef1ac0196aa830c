package reach

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragmap-dev/ragmap/internal/ragmap/database"
	"github.com/ragmap-dev/ragmap/internal/ragmap/types"
)

func seedCatalog(t *testing.T, store database.CatalogStore, entries ...types.CatalogEntry) {
	t.Helper()
	ctx := context.Background()
	runID, err := store.BeginRun(ctx, types.RunModeFull)
	require.NoError(t, err)
	for _, entry := range entries {
		require.NoError(t, store.MarkServerSeen(ctx, runID, entry.Server.Name, time.Now()))
		require.NoError(t, store.UpsertServerVersion(ctx, database.UpsertRequest{
			RunID: runID,
			At:    time.Now(),
			Entry: entry,
		}))
	}
}

func remoteEntry(name, url string, score int, kind types.ServerKind) types.CatalogEntry {
	return types.CatalogEntry{
		Server: types.ServerRecord{
			Name:    name,
			Version: "1.0.0",
			Remotes: []types.Remote{{Type: types.TransportStreamableHTTP, URL: url}},
		},
		Official: json.RawMessage(`{"status":"active","isLatest":true,"updatedAt":"2026-01-01T00:00:00Z"}`),
		RagMap: types.Enrichment{
			RagScore:   score,
			ServerKind: kind,
			HasRemote:  true,
		},
	}
}

func newTestScheduler(store database.CatalogStore, policy Policy) *Scheduler {
	sched := NewScheduler(store, NewProber(nil), policy)
	sched.SetProbeDelay(0)
	return sched
}

func TestRefreshProbesAndRecords(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := database.NewMemoryStore()
	stdioOnly := types.CatalogEntry{
		Server: types.ServerRecord{
			Name:     "io.example/local",
			Version:  "1.0.0",
			Packages: []types.Package{{RegistryType: "npm", Identifier: "@example/local", Transport: &types.Transport{Type: types.TransportStdio}}},
		},
		Official: json.RawMessage(`{"status":"active","isLatest":true}`),
		RagMap:   types.Enrichment{RagScore: 50, ServerKind: types.ServerKindRetriever, LocalOnly: true},
	}
	seedCatalog(t, store,
		remoteEntry("io.example/alpha", srv.URL, 40, types.ServerKindRetriever),
		remoteEntry("io.example/beta", srv.URL, 20, types.ServerKindRetriever),
		stdioOnly,
	)

	result, err := newTestScheduler(store, PolicyStrict).Refresh(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Candidates)
	assert.Equal(t, 2, result.Checked)
	assert.Equal(t, 2, result.Reachable)

	alpha, err := store.GetVersion(ctx, "io.example/alpha", database.VersionLatest)
	require.NoError(t, err)
	require.NotNil(t, alpha.RagMap.Reachable)
	assert.True(t, *alpha.RagMap.Reachable)
	require.NotNil(t, alpha.RagMap.ReachableStatus)
	assert.Equal(t, http.StatusOK, *alpha.RagMap.ReachableStatus)
	assert.Equal(t, http.MethodHead, alpha.RagMap.ReachableMethod)
	assert.NotNil(t, alpha.RagMap.ReachableCheckedAt)
	assert.NotNil(t, alpha.RagMap.LastReachableAt)

	local, err := store.GetVersion(ctx, "io.example/local", database.VersionLatest)
	require.NoError(t, err)
	assert.Nil(t, local.RagMap.Reachable)

	last, err := store.GetLastReachabilityRunAt(ctx)
	require.NoError(t, err)
	assert.NotNil(t, last)
}

func TestRefreshPolicyDecides422(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	for _, tc := range []struct {
		policy    Policy
		reachable bool
	}{
		{policy: PolicyStrict, reachable: false},
		{policy: PolicyLoose, reachable: true},
	} {
		t.Run(string(tc.policy), func(t *testing.T) {
			ctx := context.Background()
			store := database.NewMemoryStore()
			seedCatalog(t, store, remoteEntry("io.example/flaky", srv.URL, 30, types.ServerKindRetriever))

			result, err := newTestScheduler(store, tc.policy).Refresh(ctx, 5)
			require.NoError(t, err)
			assert.Equal(t, 1, result.Checked)

			entry, err := store.GetVersion(ctx, "io.example/flaky", database.VersionLatest)
			require.NoError(t, err)
			require.NotNil(t, entry.RagMap.Reachable)
			assert.Equal(t, tc.reachable, *entry.RagMap.Reachable)
			require.NotNil(t, entry.RagMap.ReachableStatus)
			assert.Equal(t, http.StatusUnprocessableEntity, *entry.RagMap.ReachableStatus)
		})
	}
}

func TestPriorityRotationOrder(t *testing.T) {
	ms := func(s string) int64 {
		parsed, err := time.Parse("2006-01-02", s)
		require.NoError(t, err)
		return parsed.UnixMilli()
	}
	msp := func(s string) *int64 {
		v := ms(s)
		return &v
	}

	candidates := []candidate{
		{name: "high-newer", kind: types.ServerKindRetriever, ragScore: 9000, updatedAtMs: ms("2026-03-01"), checkedAtMs: msp("2026-02-01")},
		{name: "same-check-high-old", kind: types.ServerKindRetriever, ragScore: 100, updatedAtMs: ms("2026-03-01"), checkedAtMs: msp("2026-02-10")},
		{name: "oldest", kind: types.ServerKindRetriever, ragScore: 5000, updatedAtMs: ms("2026-01-01"), checkedAtMs: msp("2026-01-15")},
		{name: "unknown", kind: types.ServerKindRetriever, ragScore: 10, updatedAtMs: ms("2026-03-01")},
		{name: "same-check-high-updated", kind: types.ServerKindRetriever, ragScore: 100, updatedAtMs: ms("2026-03-10"), checkedAtMs: msp("2026-02-10")},
	}

	selected := newTestScheduler(nil, PolicyStrict).planCandidates(candidates, 8)

	names := make([]string, 0, len(selected))
	for _, cand := range selected {
		names = append(names, cand.name)
	}
	assert.Equal(t, []string{
		"unknown",
		"oldest",
		"high-newer",
		"same-check-high-updated",
		"same-check-high-old",
	}, names)
}

func TestBucketCandidates(t *testing.T) {
	candidates := []candidate{
		{name: "a", kind: types.ServerKindRetriever, ragScore: 50},
		{name: "b", kind: types.ServerKindRetriever, ragScore: 10},
		{name: "c", kind: types.ServerKindRetriever, ragScore: 5},
		{name: "d", kind: types.ServerKindRetriever, ragScore: 0},
		{name: "e", kind: types.ServerKindIndexer, ragScore: 90},
		{name: "f", kind: types.ServerKindOther, ragScore: 20},
	}

	tierA, tierB, tierC := bucketCandidates(candidates)

	assert.Equal(t, []string{"a", "b"}, candidateNames(tierA))
	assert.Equal(t, []string{"c"}, candidateNames(tierB))
	assert.Equal(t, []string{"d", "e", "f"}, candidateNames(tierC))
}

func TestSelectCandidatesQuota(t *testing.T) {
	var tierA, tierB, tierC []candidate
	for i := 0; i < 10; i++ {
		tierA = append(tierA, candidate{name: fmt.Sprintf("a%d", i)})
	}
	for i := 0; i < 5; i++ {
		tierB = append(tierB, candidate{name: fmt.Sprintf("b%d", i)})
	}
	for i := 0; i < 2; i++ {
		tierC = append(tierC, candidate{name: fmt.Sprintf("c%d", i)})
	}

	// 70% of the budget goes to tier A, rounded up.
	selected := selectCandidates(tierA, tierB, tierC, 10)
	assert.Equal(t, []string{"a0", "a1", "a2", "a3", "a4", "a5", "a6", "b0", "b1", "b2"}, candidateNames(selected))

	// When the budget covers everyone, the leftover tier A entries go last.
	selected = selectCandidates(tierA, tierB, tierC, 50)
	assert.Len(t, selected, 17)
	assert.Equal(t, "c1", selected[13].name)
	assert.Equal(t, "a7", selected[14].name)

	assert.Empty(t, selectCandidates(tierA, tierB, tierC, 0))
}

func candidateNames(candidates []candidate) []string {
	names := make([]string, 0, len(candidates))
	for _, cand := range candidates {
		names = append(names, cand.name)
	}
	return names
}

func TestCandidateForDerivesProbeURL(t *testing.T) {
	remoteFirst := remoteEntry("io.example/remote", "https://remote.example.com/mcp", 10, types.ServerKindRetriever)
	remoteFirst.Server.Packages = []types.Package{{
		RegistryType: "npm",
		Identifier:   "@example/remote",
		Transport:    &types.Transport{Type: types.TransportStreamableHTTP, URL: "https://pkg.example.com/mcp"},
	}}

	cand, ok := candidateFor(&remoteFirst)
	require.True(t, ok)
	assert.Equal(t, "https://remote.example.com/mcp", cand.url)

	packageOnly := types.CatalogEntry{
		Server: types.ServerRecord{
			Name:    "io.example/pkg",
			Version: "1.0.0",
			Packages: []types.Package{{
				RegistryType: "npm",
				Identifier:   "@example/pkg",
				Transport:    &types.Transport{Type: types.TransportStreamableHTTP, URL: "https://pkg.example.com/mcp"},
			}},
		},
		RagMap: types.Enrichment{HasRemote: true},
	}
	cand, ok = candidateFor(&packageOnly)
	require.True(t, ok)
	assert.Equal(t, "https://pkg.example.com/mcp", cand.url)

	noRemoteFlag := remoteEntry("io.example/flagless", "https://remote.example.com/mcp", 10, types.ServerKindRetriever)
	noRemoteFlag.RagMap.HasRemote = false
	_, ok = candidateFor(&noRemoteFlag)
	assert.False(t, ok)

	sseOnly := types.CatalogEntry{
		Server: types.ServerRecord{
			Name:    "io.example/sse",
			Version: "1.0.0",
			Remotes: []types.Remote{{Type: types.TransportSSE, URL: "https://sse.example.com/mcp"}},
		},
		RagMap: types.Enrichment{HasRemote: true},
	}
	_, ok = candidateFor(&sseOnly)
	assert.False(t, ok)
}

func TestRefreshCancellationKeepsPartialResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := database.NewMemoryStore()
	seedCatalog(t, store,
		remoteEntry("io.example/first", srv.URL, 90, types.ServerKindRetriever),
		remoteEntry("io.example/second", srv.URL, 80, types.ServerKindRetriever),
	)

	ctx, cancel := context.WithCancel(context.Background())
	sched := NewScheduler(store, NewProber(nil), PolicyStrict)
	sched.sleep = func(context.Context, time.Duration) { cancel() }

	result, err := sched.Refresh(ctx, 2)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, result.Checked)

	first, err := store.GetVersion(context.Background(), "io.example/first", database.VersionLatest)
	require.NoError(t, err)
	assert.NotNil(t, first.RagMap.Reachable)

	second, err := store.GetVersion(context.Background(), "io.example/second", database.VersionLatest)
	require.NoError(t, err)
	assert.Nil(t, second.RagMap.Reachable)

	// An aborted pass must not move the run watermark.
	last, err := store.GetLastReachabilityRunAt(context.Background())
	require.NoError(t, err)
	assert.Nil(t, last)
}
