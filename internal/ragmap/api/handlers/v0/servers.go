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
	"github.com/ragmap-dev/ragmap/internal/ragmap/service"
	"github.com/ragmap-dev/ragmap/internal/ragmap/types"
)

// ListServersInput represents the input for listing latest server versions
type ListServersInput struct {
	Cursor       string `query:"cursor" json:"cursor,omitempty" doc:"Pagination cursor (server name to resume after)" required:"false" example:"io.example/alpha"`
	Limit        int    `query:"limit" json:"limit,omitempty" doc:"Number of items per page" default:"100" minimum:"1" maximum:"200" example:"50"`
	UpdatedSince string `query:"updated_since" json:"updated_since,omitempty" doc:"Only servers updated since timestamp (RFC3339 datetime)" required:"false" example:"2026-08-07T13:15:04.280Z"`
}

// ServerVersionsInput represents the input for listing all versions of a server
type ServerVersionsInput struct {
	ServerName string `path:"serverName" json:"serverName" doc:"URL-encoded server name" example:"io.example%2Fdocs-mcp"`
}

// ServerVersionDetailInput represents the input for getting a specific version
type ServerVersionDetailInput struct {
	ServerName string `path:"serverName" json:"serverName" doc:"URL-encoded server name" example:"io.example%2Fdocs-mcp"`
	Version    string `path:"version" json:"version" doc:"URL-encoded server version, or 'latest'" example:"1.0.0"`
}

// ListMetadata carries pagination details for list responses.
type ListMetadata struct {
	Count      int    `json:"count" doc:"Number of items in this page"`
	NextCursor string `json:"nextCursor,omitempty" doc:"Cursor for the next page, omitted on the last page"`
}

// ServerListBody is the body of paginated catalog listings.
type ServerListBody struct {
	Servers  []types.CatalogEntry `json:"servers"`
	Metadata ListMetadata         `json:"metadata"`
}

// RegisterServersEndpoints registers the upstream-compatible read endpoints
// under the given path prefix.
func RegisterServersEndpoints(api huma.API, pathPrefix string, rag service.RagService) {
	tags := []string{"servers"}

	// List latest versions
	huma.Register(api, huma.Operation{
		OperationID: "list-servers" + strings.ReplaceAll(pathPrefix, "/", "-"),
		Method:      http.MethodGet,
		Path:        pathPrefix + "/servers",
		Summary:     "List MCP servers",
		Description: "Get a paginated list of the latest visible version of every MCP server in the catalog, ordered by name",
		Tags:        tags,
	}, func(ctx context.Context, input *ListServersInput) (*Response[ServerListBody], error) {
		filter := database.ListLatestFilter{
			Cursor: input.Cursor,
			Limit:  input.Limit,
		}
		if input.UpdatedSince != "" {
			if updatedTime, err := time.Parse(time.RFC3339, input.UpdatedSince); err == nil {
				filter.UpdatedSince = &updatedTime
			} else {
				return nil, huma.Error400BadRequest("Invalid updated_since format: expected RFC3339 timestamp (e.g., 2026-08-07T13:15:04.280Z)")
			}
		}

		servers, nextCursor, err := rag.ListServers(ctx, filter)
		if err != nil {
			if errors.Is(err, database.ErrInvalidInput) {
				return nil, huma.Error400BadRequest(err.Error(), err)
			}
			return nil, huma.Error500InternalServerError("Failed to get server list", err)
		}

		if servers == nil {
			servers = []types.CatalogEntry{}
		}
		return &Response[ServerListBody]{
			Body: ServerListBody{
				Servers: servers,
				Metadata: ListMetadata{
					Count:      len(servers),
					NextCursor: nextCursor,
				},
			},
		}, nil
	})

	// Get all versions for a server
	huma.Register(api, huma.Operation{
		OperationID: "get-server-versions" + strings.ReplaceAll(pathPrefix, "/", "-"),
		Method:      http.MethodGet,
		Path:        pathPrefix + "/servers/{serverName}/versions",
		Summary:     "Get all versions of an MCP server",
		Description: "Get every visible version recorded for a server, newest first",
		Tags:        tags,
	}, func(ctx context.Context, input *ServerVersionsInput) (*Response[ServerListBody], error) {
		serverName, err := url.PathUnescape(input.ServerName)
		if err != nil {
			return nil, huma.Error400BadRequest("Invalid server name encoding", err)
		}

		servers, err := rag.GetAllVersionsByServerName(ctx, serverName)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return nil, huma.Error404NotFound("Server not found")
			}
			return nil, huma.Error500InternalServerError("Failed to get server versions", err)
		}

		return &Response[ServerListBody]{
			Body: ServerListBody{
				Servers: servers,
				Metadata: ListMetadata{
					Count: len(servers),
				},
			},
		}, nil
	})

	// Get specific server version (supports "latest")
	huma.Register(api, huma.Operation{
		OperationID: "get-server-version" + strings.ReplaceAll(pathPrefix, "/", "-"),
		Method:      http.MethodGet,
		Path:        pathPrefix + "/servers/{serverName}/versions/{version}",
		Summary:     "Get specific MCP server version",
		Description: "Get detailed information about a specific version of an MCP server. Use the special version 'latest' to get the latest version.",
		Tags:        tags,
	}, func(ctx context.Context, input *ServerVersionDetailInput) (*Response[types.CatalogEntry], error) {
		serverName, err := url.PathUnescape(input.ServerName)
		if err != nil {
			return nil, huma.Error400BadRequest("Invalid server name encoding", err)
		}
		version, err := url.PathUnescape(input.Version)
		if err != nil {
			return nil, huma.Error400BadRequest("Invalid version encoding", err)
		}

		var entry *types.CatalogEntry
		if version == database.VersionLatest {
			entry, err = rag.GetServerByName(ctx, serverName)
		} else {
			entry, err = rag.GetServerByNameAndVersion(ctx, serverName, version)
		}
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return nil, huma.Error404NotFound("Server not found")
			}
			return nil, huma.Error500InternalServerError("Failed to get server details", err)
		}
		return &Response[types.CatalogEntry]{Body: *entry}, nil
	})
}
