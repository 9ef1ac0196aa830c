package query

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ragmap-dev/ragmap/internal/ragmap/types"
)

func boolPtr(v bool) *bool { return &v }
func intPtr(v int) *int    { return &v }

func filterItem(mutate ...func(*types.CatalogEntry)) *Item {
	entry := catalogEntry("io.example/subject", "rag retrieval over documents", mutate...)
	return &Item{Entry: entry}
}

func TestFiltersMinScore(t *testing.T) {
	item := filterItem(func(e *types.CatalogEntry) { e.RagMap.RagScore = 30 })

	assert.True(t, Filters{MinScore: intPtr(30)}.Matches(item))
	assert.True(t, Filters{MinScore: intPtr(10)}.Matches(item))
	assert.False(t, Filters{MinScore: intPtr(31)}.Matches(item))
}

func TestFiltersCategoriesAllRequired(t *testing.T) {
	item := filterItem(func(e *types.CatalogEntry) {
		e.RagMap.Categories = []string{"rag", "retrieval", "documents"}
	})

	assert.True(t, Filters{Categories: []string{"rag"}}.Matches(item))
	assert.True(t, Filters{Categories: []string{"RAG", "Documents"}}.Matches(item))
	assert.False(t, Filters{Categories: []string{"rag", "embeddings"}}.Matches(item))
}

func TestFiltersTransport(t *testing.T) {
	stdioPkg := filterItem(func(e *types.CatalogEntry) {
		e.Server.Packages = []types.Package{{
			RegistryType: "npm",
			Identifier:   "@example/x",
			Transport:    &types.Transport{Type: types.TransportStdio},
		}}
	})
	remote := filterItem(func(e *types.CatalogEntry) {
		e.Server.Remotes = []types.Remote{{Type: types.TransportStreamableHTTP, URL: "https://x.example.com"}}
	})

	assert.True(t, Filters{Transport: types.TransportStdio}.Matches(stdioPkg))
	assert.False(t, Filters{Transport: types.TransportStreamableHTTP}.Matches(stdioPkg))
	assert.True(t, Filters{Transport: types.TransportStreamableHTTP}.Matches(remote))
	assert.False(t, Filters{Transport: types.TransportStdio}.Matches(remote))
}

func TestFiltersRegistryType(t *testing.T) {
	item := filterItem(func(e *types.CatalogEntry) {
		e.Server.Packages = []types.Package{{RegistryType: "npm", Identifier: "@example/x"}}
	})

	assert.True(t, Filters{RegistryType: "npm"}.Matches(item))
	assert.True(t, Filters{RegistryType: "NPM"}.Matches(item))
	assert.False(t, Filters{RegistryType: "pypi"}.Matches(item))
}

func TestFiltersReachableRequiresExplicitTrue(t *testing.T) {
	unknown := filterItem()
	reachable := filterItem(func(e *types.CatalogEntry) { e.RagMap.Reachable = boolPtr(true) })
	unreachable := filterItem(func(e *types.CatalogEntry) { e.RagMap.Reachable = boolPtr(false) })

	assert.True(t, Filters{Reachable: boolPtr(true)}.Matches(reachable))
	assert.False(t, Filters{Reachable: boolPtr(true)}.Matches(unknown))
	assert.False(t, Filters{Reachable: boolPtr(true)}.Matches(unreachable))

	// reachable=false keeps everything that is not known-reachable.
	assert.True(t, Filters{Reachable: boolPtr(false)}.Matches(unknown))
	assert.True(t, Filters{Reachable: boolPtr(false)}.Matches(unreachable))
	assert.False(t, Filters{Reachable: boolPtr(false)}.Matches(reachable))
}

func TestFiltersCitations(t *testing.T) {
	with := filterItem(func(e *types.CatalogEntry) { e.RagMap.Citations = true })
	without := filterItem()

	assert.True(t, Filters{Citations: boolPtr(true)}.Matches(with))
	assert.False(t, Filters{Citations: boolPtr(true)}.Matches(without))
}

func TestFiltersRemoteAndLocal(t *testing.T) {
	remote := filterItem(func(e *types.CatalogEntry) {
		e.Server.Remotes = []types.Remote{{Type: types.TransportStreamableHTTP, URL: "https://x.example.com"}}
		e.RagMap.HasRemote = true
		e.RagMap.LocalOnly = false
	})
	local := filterItem(func(e *types.CatalogEntry) {
		e.RagMap.HasRemote = false
		e.RagMap.LocalOnly = true
	})

	assert.True(t, Filters{HasRemote: boolPtr(true)}.Matches(remote))
	assert.False(t, Filters{HasRemote: boolPtr(true)}.Matches(local))
	assert.True(t, Filters{LocalOnly: boolPtr(true)}.Matches(local))
	assert.False(t, Filters{LocalOnly: boolPtr(true)}.Matches(remote))
}

func TestFiltersRecomputeWhenEnrichmentSilent(t *testing.T) {
	// Neither capability flag set means the enrichment never ran; the filter
	// falls back to the server record itself.
	item := filterItem(func(e *types.CatalogEntry) {
		e.Server.Remotes = []types.Remote{{Type: types.TransportStreamableHTTP, URL: "https://x.example.com"}}
		e.RagMap = types.Enrichment{}
	})

	assert.True(t, Filters{HasRemote: boolPtr(true)}.Matches(item))
	assert.False(t, Filters{LocalOnly: boolPtr(true)}.Matches(item))
}

func TestFiltersServerKind(t *testing.T) {
	retriever := filterItem(func(e *types.CatalogEntry) { e.RagMap.ServerKind = types.ServerKindRetriever })
	assert.True(t, Filters{ServerKind: types.ServerKindRetriever}.Matches(retriever))
	assert.False(t, Filters{ServerKind: types.ServerKindIndexer}.Matches(retriever))

	// Absent kind falls back to classification from the record text.
	silent := filterItem(func(e *types.CatalogEntry) {
		e.Server.Description = "crawl and ingest the web"
		e.RagMap.ServerKind = ""
	})
	assert.True(t, Filters{ServerKind: types.ServerKindIndexer}.Matches(silent))
}

func TestFiltersCombineWithAndSemantics(t *testing.T) {
	item := filterItem(func(e *types.CatalogEntry) {
		e.RagMap.RagScore = 45
		e.RagMap.Categories = []string{"rag", "retrieval"}
		e.RagMap.ServerKind = types.ServerKindRetriever
	})

	assert.True(t, Filters{
		MinScore:   intPtr(40),
		Categories: []string{"rag"},
		ServerKind: types.ServerKindRetriever,
	}.Matches(item))

	assert.False(t, Filters{
		MinScore:   intPtr(40),
		Categories: []string{"rag"},
		ServerKind: types.ServerKindIndexer,
	}.Matches(item))
}
