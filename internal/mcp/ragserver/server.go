// Package ragserver exposes the curated catalog as MCP tools so agents can
// discover retrieval servers over the protocol itself.
package ragserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	restv0 "github.com/ragmap-dev/ragmap/internal/ragmap/api/handlers/v0"
	"github.com/ragmap-dev/ragmap/internal/ragmap/database"
	"github.com/ragmap-dev/ragmap/internal/ragmap/install"
	"github.com/ragmap-dev/ragmap/internal/ragmap/query"
	"github.com/ragmap-dev/ragmap/internal/ragmap/service"
	"github.com/ragmap-dev/ragmap/internal/ragmap/stats"
	"github.com/ragmap-dev/ragmap/internal/ragmap/types"
)

const serverName = "ragmap-mcp"

// NewServer constructs an MCP server that exposes read-only discovery tools
// backed by the catalog service. The surface is safe for unauthenticated
// agents; triggers stay HTTP-only.
func NewServer(rag service.RagService, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: version,
	}, &mcp.ServerOptions{
		HasTools: true,
	})

	addCatalogTools(server, rag)
	addRagTools(server, rag)
	addMetaTools(server, version)

	return server
}

type listServersArgs = restv0.ListServersInput

func addCatalogTools(server *mcp.Server, rag service.RagService) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_servers",
		Description: "List the latest visible version of every MCP server in the catalog, with cursor pagination",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args listServersArgs) (*mcp.CallToolResult, restv0.ServerListBody, error) {
		filter := database.ListLatestFilter{
			Cursor: args.Cursor,
			Limit:  database.ClampListLimit(args.Limit),
		}
		if args.UpdatedSince != "" {
			ts, err := time.Parse(time.RFC3339, args.UpdatedSince)
			if err != nil {
				return nil, restv0.ServerListBody{}, fmt.Errorf("invalid updated_since: %w", err)
			}
			filter.UpdatedSince = &ts
		}

		servers, nextCursor, err := rag.ListServers(ctx, filter)
		if err != nil {
			return nil, restv0.ServerListBody{}, err
		}
		if servers == nil {
			servers = []types.CatalogEntry{}
		}
		return nil, restv0.ServerListBody{
			Servers:  servers,
			Metadata: restv0.ListMetadata{Count: len(servers), NextCursor: nextCursor},
		}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_server",
		Description: "Fetch a single catalog entry by name (defaults to the latest version)",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args struct {
		Name    string `json:"name"`
		Version string `json:"version,omitempty"`
	}) (*mcp.CallToolResult, types.CatalogEntry, error) {
		if args.Name == "" {
			return nil, types.CatalogEntry{}, fmt.Errorf("name is required")
		}
		version := args.Version
		if version == "" {
			version = database.VersionLatest
		}

		var entry *types.CatalogEntry
		var err error
		if version == database.VersionLatest {
			entry, err = rag.GetServerByName(ctx, args.Name)
		} else {
			entry, err = rag.GetServerByNameAndVersion(ctx, args.Name, version)
		}
		if err != nil {
			return nil, types.CatalogEntry{}, err
		}
		return nil, *entry, nil
	})
}

// ragToolFilters carries the shared filter arguments of rag_search and
// rag_top. Pointered booleans are tri-state: absent means "don't filter".
type ragToolFilters struct {
	Categories   string `json:"categories,omitempty" jsonschema:"comma-separated enrichment categories, all of which must match"`
	Transport    string `json:"transport,omitempty" jsonschema:"required transport: stdio, streamable-http or sse"`
	RegistryType string `json:"registryType,omitempty" jsonschema:"required package registry type, e.g. npm"`
	HasRemote    *bool  `json:"hasRemote,omitempty" jsonschema:"filter by remote endpoint presence"`
	Reachable    *bool  `json:"reachable,omitempty" jsonschema:"filter by probe verdict; unknown counts as not reachable"`
	Citations    *bool  `json:"citations,omitempty" jsonschema:"filter by citation support"`
	LocalOnly    *bool  `json:"localOnly,omitempty" jsonschema:"filter by local-only capability"`
}

func (f ragToolFilters) filters(minScore int, serverKind string) query.Filters {
	filters := query.Filters{
		MinScore:     &minScore,
		Transport:    f.Transport,
		RegistryType: f.RegistryType,
		ServerKind:   types.ServerKind(serverKind),
		HasRemote:    f.HasRemote,
		Reachable:    f.Reachable,
		Citations:    f.Citations,
		LocalOnly:    f.LocalOnly,
	}
	for _, category := range strings.Split(f.Categories, ",") {
		if category = strings.TrimSpace(category); category != "" {
			filters.Categories = append(filters.Categories, category)
		}
	}
	return filters
}

type ragSearchArgs struct {
	Query      string `json:"query,omitempty" jsonschema:"search query; empty searches for 'rag'"`
	Limit      int    `json:"limit,omitempty" jsonschema:"maximum results, capped at 50"`
	MinScore   int    `json:"minScore,omitempty" jsonschema:"minimum rag score, 0 to 100"`
	ServerKind string `json:"serverKind,omitempty" jsonschema:"pipeline role: retriever, evaluator, indexer, router or other"`
	ragToolFilters
}

type ragTopArgs struct {
	Limit      int    `json:"limit,omitempty" jsonschema:"maximum results, capped at 50"`
	MinScore   *int   `json:"minScore,omitempty" jsonschema:"minimum rag score, defaults to 10"`
	ServerKind string `json:"serverKind,omitempty" jsonschema:"pipeline role, defaults to retriever"`
	ragToolFilters
}

func addRagTools(server *mcp.Server, rag service.RagService) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "rag_search",
		Description: "Rank catalog servers against a query for RAG fitness; keyword matching always runs, semantic ranking when embeddings are configured",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args ragSearchArgs) (*mcp.CallToolResult, restv0.SearchBody, error) {
		queryText := strings.TrimSpace(args.Query)
		if queryText == "" {
			queryText = query.DefaultQuery
		}
		limit := query.ClampSearchLimit(args.Limit)

		results, err := rag.Search(ctx, queryText, limit, args.filters(args.MinScore, args.ServerKind))
		if err != nil {
			return nil, restv0.SearchBody{}, err
		}
		return nil, restv0.SearchBody{
			Query:   queryText,
			Results: restv0.RankedServers(results),
			Count:   len(results),
		}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "rag_top",
		Description: "Best catalog servers by quality signals: reachability, rag score, update recency. Defaults to scored retrievers",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args ragTopArgs) (*mcp.CallToolResult, restv0.TopBody, error) {
		limit := query.ClampSearchLimit(args.Limit)
		minScore := 10
		if args.MinScore != nil {
			minScore = *args.MinScore
		}
		serverKind := args.ServerKind
		if serverKind == "" {
			serverKind = string(types.ServerKindRetriever)
		}

		results, err := rag.Top(ctx, limit, args.filters(minScore, serverKind))
		if err != nil {
			return nil, restv0.TopBody{}, err
		}
		return nil, restv0.TopBody{
			Results: restv0.RankedServers(results),
			Count:   len(results),
		}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "rag_install",
		Description: "Project a server's latest version into ready-to-paste client configuration; header values are placeholders",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args struct {
		Name string `json:"name"`
	}) (*mcp.CallToolResult, install.Projection, error) {
		if args.Name == "" {
			return nil, install.Projection{}, fmt.Errorf("name is required")
		}
		projection, err := rag.Install(ctx, args.Name)
		if err != nil {
			return nil, install.Projection{}, err
		}
		return nil, *projection, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "rag_explain",
		Description: "Report the rag score, categories, and scoring reasons for a server's latest version",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args struct {
		Name string `json:"name"`
	}) (*mcp.CallToolResult, service.Explanation, error) {
		if args.Name == "" {
			return nil, service.Explanation{}, fmt.Errorf("name is required")
		}
		explanation, err := rag.Explain(ctx, args.Name)
		if err != nil {
			return nil, service.Explanation{}, err
		}
		return nil, *explanation, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "rag_stats",
		Description: "Catalog coverage statistics: score buckets, reachability coverage, run watermarks",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, stats.Snapshot, error) {
		snapshot, err := rag.Stats(ctx)
		if err != nil {
			return nil, stats.Snapshot{}, err
		}
		return nil, *snapshot, nil
	})
}

func addMetaTools(server *mcp.Server, version string) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "ragmap_health",
		Description: "Simple health check for the catalog MCP bridge",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, map[string]string, error) {
		_ = ctx
		return nil, map[string]string{"status": "ok"}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ragmap_version",
		Description: "Return catalog build metadata",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, map[string]string, error) {
		return nil, map[string]string{
			"version":    version,
			"serverName": serverName,
		}, nil
	})
}
