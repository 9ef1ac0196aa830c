package v0

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ragmap-dev/ragmap/internal/ragmap/database"
	"github.com/ragmap-dev/ragmap/internal/ragmap/install"
	"github.com/ragmap-dev/ragmap/internal/ragmap/query"
	"github.com/ragmap-dev/ragmap/internal/ragmap/service"
	"github.com/ragmap-dev/ragmap/internal/ragmap/stats"
	"github.com/ragmap-dev/ragmap/internal/ragmap/types"
)

// RagFilterInput carries the filter controls shared by /rag/search and
// /rag/top. Boolean filters are tri-state: absent means "don't filter".
type RagFilterInput struct {
	Categories   string `query:"categories" json:"categories,omitempty" doc:"Comma-separated enrichment categories, all of which must match" required:"false" example:"vector-search,documents"`
	Transport    string `query:"transport" json:"transport,omitempty" doc:"Required transport" required:"false" enum:"stdio,streamable-http,sse"`
	RegistryType string `query:"registryType" json:"registryType,omitempty" doc:"Required package registry type" required:"false" example:"npm"`
	HasRemote    string `query:"hasRemote" json:"hasRemote,omitempty" doc:"Filter by remote endpoint presence" required:"false" enum:"true,false"`
	Reachable    string `query:"reachable" json:"reachable,omitempty" doc:"Filter by probe verdict; unknown counts as not reachable" required:"false" enum:"true,false"`
	Citations    string `query:"citations" json:"citations,omitempty" doc:"Filter by citation support" required:"false" enum:"true,false"`
	LocalOnly    string `query:"localOnly" json:"localOnly,omitempty" doc:"Filter by local-only capability" required:"false" enum:"true,false"`
}

// SearchInput represents the input for ranked catalog search.
type SearchInput struct {
	Query      string `query:"q" json:"q,omitempty" doc:"Search query; empty searches for 'rag'" required:"false" example:"vector database with citations"`
	Limit      int    `query:"limit" json:"limit,omitempty" doc:"Maximum results" default:"20" minimum:"1" maximum:"50" example:"10"`
	MinScore   int    `query:"minScore" json:"minScore,omitempty" doc:"Minimum rag score" required:"false" minimum:"0" maximum:"100"`
	ServerKind string `query:"serverKind" json:"serverKind,omitempty" doc:"Pipeline role filter" required:"false" enum:"retriever,evaluator,indexer,router,other"`
	RagFilterInput
}

// TopInput represents the input for the curated shortlist. The defaults
// narrow it to scored retrievers.
type TopInput struct {
	Limit      int    `query:"limit" json:"limit,omitempty" doc:"Maximum results" default:"20" minimum:"1" maximum:"50" example:"10"`
	MinScore   int    `query:"minScore" json:"minScore,omitempty" doc:"Minimum rag score" default:"10" minimum:"0" maximum:"100"`
	ServerKind string `query:"serverKind" json:"serverKind,omitempty" doc:"Pipeline role filter" default:"retriever" enum:"retriever,evaluator,indexer,router,other"`
	RagFilterInput
}

// InstallInput identifies the server to project install instructions for.
type InstallInput struct {
	Name string `query:"name" json:"name" doc:"Server name" required:"true" minLength:"1" example:"io.example/docs-mcp"`
}

// ExplainInput identifies the server whose enrichment verdict is reported.
type ExplainInput struct {
	ServerName string `path:"serverName" json:"serverName" doc:"URL-encoded server name" example:"io.example%2Fdocs-mcp"`
}

// RankedServer is one search or top hit, flattened for agent consumption.
type RankedServer struct {
	Name        string     `json:"name"`
	Version     string     `json:"version"`
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	Score       float64    `json:"score"`
	MatchKind   string     `json:"matchKind,omitempty" doc:"Ranker that produced the hit: keyword or semantic"`
	RagScore    int        `json:"ragScore"`
	Categories  []string   `json:"categories"`
	ServerKind  string     `json:"serverKind,omitempty"`
	HasRemote   bool       `json:"hasRemote"`
	Reachable   *bool      `json:"reachable,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

// SearchBody is the /rag/search response.
type SearchBody struct {
	Query   string         `json:"query"`
	Results []RankedServer `json:"results"`
	Count   int            `json:"count"`
}

// TopBody is the /rag/top response.
type TopBody struct {
	Results []RankedServer `json:"results"`
	Count   int            `json:"count"`
}

// CategoriesBody lists the enrichment categories in use.
type CategoriesBody struct {
	Categories []string `json:"categories"`
	Count      int      `json:"count"`
}

// RegisterRagEndpoints registers the curated discovery surface under /rag.
func RegisterRagEndpoints(api huma.API, rag service.RagService) {
	tags := []string{"rag"}

	huma.Register(api, huma.Operation{
		OperationID: "rag-search",
		Method:      http.MethodGet,
		Path:        "/rag/search",
		Summary:     "Search the curated catalog",
		Description: "Rank the latest visible servers against a query. Keyword matching always runs; when embeddings are configured semantic hits are merged in first.",
		Tags:        tags,
	}, func(ctx context.Context, input *SearchInput) (*Response[SearchBody], error) {
		queryText := strings.TrimSpace(input.Query)
		if queryText == "" {
			queryText = query.DefaultQuery
		}

		results, err := rag.Search(ctx, queryText, input.Limit, input.filters(input.MinScore, input.ServerKind))
		if err != nil {
			return nil, huma.Error500InternalServerError("Search failed", err)
		}
		return &Response[SearchBody]{
			Body: SearchBody{
				Query:   queryText,
				Results: RankedServers(results),
				Count:   len(results),
			},
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rag-top",
		Method:      http.MethodGet,
		Path:        "/rag/top",
		Summary:     "Best servers by quality signals",
		Description: "Order the latest visible servers purely by quality signals: reachability, rag score, update recency. Defaults to scored retrievers.",
		Tags:        tags,
	}, func(ctx context.Context, input *TopInput) (*Response[TopBody], error) {
		results, err := rag.Top(ctx, input.Limit, input.filters(input.MinScore, input.ServerKind))
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to rank servers", err)
		}
		return &Response[TopBody]{
			Body: TopBody{
				Results: RankedServers(results),
				Count:   len(results),
			},
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rag-categories",
		Method:      http.MethodGet,
		Path:        "/rag/categories",
		Summary:     "List enrichment categories",
		Description: "Get the sorted set of categories assigned across the latest visible servers",
		Tags:        tags,
	}, func(ctx context.Context, input *struct{}) (*Response[CategoriesBody], error) {
		categories, err := rag.ListCategories(ctx)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to list categories", err)
		}
		if categories == nil {
			categories = []string{}
		}
		return &Response[CategoriesBody]{
			Body: CategoriesBody{Categories: categories, Count: len(categories)},
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rag-install",
		Method:      http.MethodGet,
		Path:        "/rag/install",
		Summary:     "Install instructions for a server",
		Description: "Project the latest version of a server into ready-to-paste client configuration. Header values are placeholders; real secrets never pass through the catalog.",
		Tags:        tags,
	}, func(ctx context.Context, input *InstallInput) (*Response[install.Projection], error) {
		projection, err := rag.Install(ctx, input.Name)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return nil, huma.Error404NotFound("Server not found")
			}
			return nil, huma.Error500InternalServerError("Failed to project install instructions", err)
		}
		return &Response[install.Projection]{Body: *projection}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rag-explain",
		Method:      http.MethodGet,
		Path:        "/rag/servers/{serverName}/explain",
		Summary:     "Explain a server's enrichment",
		Description: "Report the rag score, categories, and scoring reasons for the latest version of a server",
		Tags:        tags,
	}, func(ctx context.Context, input *ExplainInput) (*Response[service.Explanation], error) {
		serverName, err := url.PathUnescape(input.ServerName)
		if err != nil {
			return nil, huma.Error400BadRequest("Invalid server name encoding", err)
		}

		explanation, err := rag.Explain(ctx, serverName)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return nil, huma.Error404NotFound("Server not found")
			}
			return nil, huma.Error500InternalServerError("Failed to explain server", err)
		}
		return &Response[service.Explanation]{Body: *explanation}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rag-stats",
		Method:      http.MethodGet,
		Path:        "/rag/stats",
		Summary:     "Catalog coverage statistics",
		Description: "Fold the latest visible snapshot into score buckets, reachability coverage, and run watermarks",
		Tags:        tags,
	}, func(ctx context.Context, input *struct{}) (*Response[stats.Snapshot], error) {
		snapshot, err := rag.Stats(ctx)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to compute stats", err)
		}
		return &Response[stats.Snapshot]{Body: *snapshot}, nil
	})
}

// filters assembles the engine filter set from the validated query values.
func (f *RagFilterInput) filters(minScore int, serverKind string) query.Filters {
	filters := query.Filters{
		MinScore:     &minScore,
		Transport:    f.Transport,
		RegistryType: f.RegistryType,
		ServerKind:   types.ServerKind(serverKind),
		HasRemote:    boolFilter(f.HasRemote),
		Reachable:    boolFilter(f.Reachable),
		Citations:    boolFilter(f.Citations),
		LocalOnly:    boolFilter(f.LocalOnly),
	}
	for _, category := range strings.Split(f.Categories, ",") {
		if category = strings.TrimSpace(category); category != "" {
			filters.Categories = append(filters.Categories, category)
		}
	}
	return filters
}

// boolFilter maps a validated true/false query value onto a tri-state filter.
func boolFilter(value string) *bool {
	switch value {
	case "true":
		t := true
		return &t
	case "false":
		f := false
		return &f
	default:
		return nil
	}
}

// RankedServers flattens engine results into the wire shape. Shared with the
// MCP bridge, which reuses the REST body types.
func RankedServers(results []query.Result) []RankedServer {
	ranked := make([]RankedServer, 0, len(results))
	for i := range results {
		ranked = append(ranked, rankedServer(&results[i]))
	}
	return ranked
}

func rankedServer(result *query.Result) RankedServer {
	entry := &result.Item.Entry
	ranked := RankedServer{
		Name:        entry.Server.Name,
		Version:     entry.Server.Version,
		Title:       entry.Server.Title,
		Description: entry.Server.Description,
		Score:       result.Score,
		MatchKind:   string(result.Kind),
		RagScore:    entry.RagMap.RagScore,
		Categories:  entry.RagMap.Categories,
		ServerKind:  string(entry.RagMap.ServerKind),
		HasRemote:   entry.RagMap.HasRemote,
		Reachable:   entry.RagMap.Reachable,
	}
	if ranked.Categories == nil {
		ranked.Categories = []string{}
	}
	if !result.Item.UpdatedAt.IsZero() {
		updatedAt := result.Item.UpdatedAt
		ranked.UpdatedAt = &updatedAt
	}
	return ranked
}
