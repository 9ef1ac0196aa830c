package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragmap-dev/ragmap/internal/ragmap/database"
	"github.com/ragmap-dev/ragmap/internal/ragmap/embeddings"
	"github.com/ragmap-dev/ragmap/internal/ragmap/types"
	"github.com/ragmap-dev/ragmap/internal/ragmap/upstream"
)

type fakePager struct {
	pages    []*upstream.Page
	requests []upstream.PageRequest
	failAt   int // 1-based request index that errors, 0 never
}

func (f *fakePager) FetchPage(_ context.Context, req upstream.PageRequest) (*upstream.Page, error) {
	f.requests = append(f.requests, req)
	if f.failAt > 0 && len(f.requests) == f.failAt {
		return nil, &upstream.UpstreamError{Status: 502, BodyExcerpt: "bad gateway"}
	}
	idx := len(f.requests) - 1
	if idx >= len(f.pages) {
		return &upstream.Page{}, nil
	}
	return f.pages[idx], nil
}

type fakeProvider struct {
	calls int
	err   error
}

func (p *fakeProvider) Generate(_ context.Context, _ embeddings.Payload) (*embeddings.Result, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &embeddings.Result{
		Provider:   "fake",
		Model:      "fake-embed",
		Dimensions: 3,
		Vector:     []float32{0.1, 0.2, 0.3},
	}, nil
}

func rawEntry(t *testing.T, name, version, description, status string, isLatest bool) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"server": map[string]any{
			"name":        name,
			"version":     version,
			"description": description,
		},
		"_meta": map[string]any{
			officialMetaKey: map[string]any{
				"status":      status,
				"publishedAt": "2025-05-01T00:00:00Z",
				"updatedAt":   "2025-06-01T00:00:00Z",
				"isLatest":    isLatest,
			},
		},
	})
	require.NoError(t, err)
	return raw
}

func pageOf(cursor string, entries ...json.RawMessage) *upstream.Page {
	return &upstream.Page{Entries: entries, NextCursor: cursor}
}

func TestRunFullWalksPagesAndUpserts(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	pager := &fakePager{pages: []*upstream.Page{
		pageOf("cursor-1",
			rawEntry(t, "io.example/alpha", "1.0.0", "vector search over documents", "active", true),
			rawEntry(t, "io.example/beta", "2.0.0", "an unrelated tool", "active", true),
		),
		pageOf("",
			rawEntry(t, "io.example/gamma", "0.3.0", "rag pipeline helper", "active", true),
		),
	}}

	coord := NewCoordinator(store, pager, nil, 0)
	result, err := coord.Run(ctx, types.RunModeFull)
	require.NoError(t, err)

	assert.Equal(t, types.RunModeFull, result.Mode)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, 3, result.Fetched)
	assert.Equal(t, 3, result.Upserted)
	assert.Equal(t, 0, result.Hidden)

	// Cursor chains from page to page.
	require.Len(t, pager.requests, 2)
	assert.Equal(t, "", pager.requests[0].Cursor)
	assert.Equal(t, "cursor-1", pager.requests[1].Cursor)
	assert.Nil(t, pager.requests[0].UpdatedSince)

	entries, _, err := store.ListLatest(ctx, database.ListLatestFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Enrichment is attached during ingestion.
	gamma, err := store.GetVersion(ctx, "io.example/gamma", "0.3.0")
	require.NoError(t, err)
	assert.Contains(t, gamma.RagMap.Categories, "rag")
	assert.NotEmpty(t, gamma.RagMap.EmbeddingTextHash)
	assert.Nil(t, gamma.RagMap.Embedding)

	// Clean completion stamps the ingest watermark.
	last, err := store.GetLastSuccessfulIngestAt(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
}

func TestRunFullHidesServersNotSeen(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()

	first := &fakePager{pages: []*upstream.Page{pageOf("",
		rawEntry(t, "io.example/alpha", "1.0.0", "search", "active", true),
		rawEntry(t, "io.example/beta", "1.0.0", "search", "active", true),
	)}}
	_, err := NewCoordinator(store, first, nil, 0).Run(ctx, types.RunModeFull)
	require.NoError(t, err)

	second := &fakePager{pages: []*upstream.Page{pageOf("",
		rawEntry(t, "io.example/alpha", "1.0.0", "search", "active", true),
	)}}
	result, err := NewCoordinator(store, second, nil, 0).Run(ctx, types.RunModeFull)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Hidden)

	entries, _, err := store.ListLatest(ctx, database.ListLatestFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "io.example/alpha", entries[0].Server.Name)
}

func TestRunIncrementalPassesWatermarkAndNeverHides(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()

	full := &fakePager{pages: []*upstream.Page{pageOf("",
		rawEntry(t, "io.example/alpha", "1.0.0", "search", "active", true),
		rawEntry(t, "io.example/beta", "1.0.0", "search", "active", true),
	)}}
	_, err := NewCoordinator(store, full, nil, 0).Run(ctx, types.RunModeFull)
	require.NoError(t, err)

	watermark := time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)
	require.NoError(t, store.SetLastSuccessfulIngestAt(ctx, watermark))

	// The incremental page only mentions alpha; beta must stay visible.
	incr := &fakePager{pages: []*upstream.Page{pageOf("",
		rawEntry(t, "io.example/alpha", "1.1.0", "search", "active", true),
	)}}
	result, err := NewCoordinator(store, incr, nil, 0).Run(ctx, types.RunModeIncremental)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Hidden)

	require.Len(t, incr.requests, 1)
	require.NotNil(t, incr.requests[0].UpdatedSince)
	assert.True(t, incr.requests[0].UpdatedSince.Equal(watermark))

	entries, _, err := store.ListLatest(ctx, database.ListLatestFilter{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRunIncrementalWithoutWatermarkFetchesEverything(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	pager := &fakePager{pages: []*upstream.Page{pageOf("")}}

	_, err := NewCoordinator(store, pager, nil, 0).Run(ctx, types.RunModeIncremental)
	require.NoError(t, err)
	require.Len(t, pager.requests, 1)
	assert.Nil(t, pager.requests[0].UpdatedSince)
}

func TestRunHidesDeletedKeepsDeprecated(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	pager := &fakePager{pages: []*upstream.Page{pageOf("",
		rawEntry(t, "io.example/gone", "1.0.0", "search", "Deleted", true),
		rawEntry(t, "io.example/aging", "1.0.0", "search", "deprecated", true),
	)}}

	_, err := NewCoordinator(store, pager, nil, 0).Run(ctx, types.RunModeFull)
	require.NoError(t, err)

	_, err = store.GetVersion(ctx, "io.example/gone", database.VersionLatest)
	assert.ErrorIs(t, err, database.ErrNotFound)

	aging, err := store.GetVersion(ctx, "io.example/aging", database.VersionLatest)
	require.NoError(t, err)
	assert.Equal(t, "io.example/aging", aging.Server.Name)

	entries, _, err := store.ListLatest(ctx, database.ListLatestFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "io.example/aging", entries[0].Server.Name)
}

func TestRunAbortKeepsPartialEffects(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	pager := &fakePager{
		pages: []*upstream.Page{pageOf("cursor-1",
			rawEntry(t, "io.example/alpha", "1.0.0", "search", "active", true),
		)},
		failAt: 2,
	}

	_, err := NewCoordinator(store, pager, nil, 0).Run(ctx, types.RunModeFull)
	require.Error(t, err)
	var upstreamErr *upstream.UpstreamError
	assert.ErrorAs(t, err, &upstreamErr)

	// Page one was persisted even though the run failed.
	entry, err := store.GetVersion(ctx, "io.example/alpha", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "io.example/alpha", entry.Server.Name)

	// The watermark must not move, so the window is re-covered next time.
	last, err := store.GetLastSuccessfulIngestAt(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestRunSkipsEntriesWithoutNameOrVersion(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	pager := &fakePager{pages: []*upstream.Page{pageOf("",
		rawEntry(t, "", "1.0.0", "missing name", "active", true),
		rawEntry(t, "io.example/no-version", "", "missing version", "active", true),
		json.RawMessage(`{"not": "an entry"}`),
		rawEntry(t, "io.example/ok", "1.0.0", "search", "active", true),
	)}}

	result, err := NewCoordinator(store, pager, nil, 0).Run(ctx, types.RunModeFull)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Fetched)
	assert.Equal(t, 1, result.Upserted)
	assert.Equal(t, 3, result.Skipped)
}

func TestRunReusesEmbeddingWhenTextUnchanged(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	provider := &fakeProvider{}

	run := func(description string) *RunResult {
		pager := &fakePager{pages: []*upstream.Page{pageOf("",
			rawEntry(t, "io.example/alpha", "1.0.0", description, "active", true),
		)}}
		result, err := NewCoordinator(store, pager, provider, 3).Run(ctx, types.RunModeFull)
		require.NoError(t, err)
		return result
	}

	first := run("semantic search over documents")
	assert.Equal(t, 1, first.EmbeddingsGenerated)
	assert.Equal(t, 0, first.EmbeddingsReused)
	assert.Equal(t, 1, provider.calls)

	// Identical text reuses the stored vector without another provider call.
	second := run("semantic search over documents")
	assert.Equal(t, 0, second.EmbeddingsGenerated)
	assert.Equal(t, 1, second.EmbeddingsReused)
	assert.Equal(t, 1, provider.calls)

	// Changed text regenerates.
	third := run("completely different text")
	assert.Equal(t, 1, third.EmbeddingsGenerated)
	assert.Equal(t, 2, provider.calls)

	entry, err := store.GetVersion(ctx, "io.example/alpha", "1.0.0")
	require.NoError(t, err)
	require.NotNil(t, entry.RagMap.Embedding)
	assert.Equal(t, "fake-embed", entry.RagMap.Embedding.Model)
}

func TestRunEmbeddingFailureIsNonFatal(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	provider := &fakeProvider{err: errors.New("provider down")}
	pager := &fakePager{pages: []*upstream.Page{pageOf("",
		rawEntry(t, "io.example/alpha", "1.0.0", "search", "active", true),
	)}}

	result, err := NewCoordinator(store, pager, provider, 3).Run(ctx, types.RunModeFull)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Upserted)
	assert.Equal(t, 1, result.EmbeddingsFailed)

	entry, err := store.GetVersion(ctx, "io.example/alpha", "1.0.0")
	require.NoError(t, err)
	assert.Nil(t, entry.RagMap.Embedding)
	assert.NotEmpty(t, entry.RagMap.EmbeddingTextHash)
}

func TestRunInvokesReachabilityRefresherOnFullOnly(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()

	var refreshes int
	newCoord := func() *Coordinator {
		pager := &fakePager{pages: []*upstream.Page{pageOf("",
			rawEntry(t, "io.example/alpha", "1.0.0", "search", "active", true),
		)}}
		coord := NewCoordinator(store, pager, nil, 0)
		coord.SetReachabilityRefresher(func(context.Context) (int, error) {
			refreshes++
			return 5, nil
		})
		return coord
	}

	result, err := newCoord().Run(ctx, types.RunModeFull)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshes)
	assert.Equal(t, 5, result.ReachabilityChecked)

	_, err = newCoord().Run(ctx, types.RunModeIncremental)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshes)
}

func TestNormalizeEntry(t *testing.T) {
	raw := json.RawMessage(`{
		"server": {
			"name": "io.example/docs",
			"version": "2.1.0",
			"description": "documentation retriever",
			"title": "Docs",
			"websiteUrl": "https://docs.example.com",
			"repository": {"url": "https://github.com/example/docs", "source": "github"},
			"remotes": [{"type": "streamable-http", "url": "https://mcp.example.com/http"}],
			"packages": [{"registryType": "npm", "identifier": "@example/docs", "version": "2.1.0"}]
		},
		"_meta": {
			"io.modelcontextprotocol.registry/official": {"status": "active", "isLatest": true},
			"io.modelcontextprotocol.registry/publisher-provided": {"vendor": "example"}
		}
	}`)

	entry, err := normalizeEntry(raw)
	require.NoError(t, err)

	assert.Equal(t, "io.example/docs", entry.Server.Name)
	assert.Equal(t, "2.1.0", entry.Server.Version)
	assert.Equal(t, "Docs", entry.Server.Title)
	assert.Equal(t, "https://github.com/example/docs", entry.Server.RepositoryURL)
	assert.Equal(t, "https://docs.example.com", entry.Server.WebsiteURL)
	require.Len(t, entry.Server.Remotes, 1)
	assert.Equal(t, types.TransportStreamableHTTP, entry.Server.Remotes[0].Type)
	require.Len(t, entry.Server.Packages, 1)
	assert.Equal(t, "npm", entry.Server.Packages[0].RegistryType)

	official := types.ParseOfficial(entry.Official)
	assert.True(t, official.IsLatest)
	assert.JSONEq(t, `{"vendor": "example"}`, string(entry.PublisherProvided))

	_, err = normalizeEntry(json.RawMessage(`{"_meta": {}}`))
	assert.Error(t, err)

	_, err = normalizeEntry(json.RawMessage(`[1, 2]`))
	assert.Error(t, err)
}
