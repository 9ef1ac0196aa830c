package service

import (
	"context"

	"github.com/ragmap-dev/ragmap/internal/ragmap/database"
	"github.com/ragmap-dev/ragmap/internal/ragmap/install"
	"github.com/ragmap-dev/ragmap/internal/ragmap/query"
	"github.com/ragmap-dev/ragmap/internal/ragmap/stats"
	"github.com/ragmap-dev/ragmap/internal/ragmap/types"
)

// Explanation spells out why a server carries its current rag score.
type Explanation struct {
	Name       string   `json:"name"`
	Version    string   `json:"version"`
	RagScore   int      `json:"ragScore"`
	Categories []string `json:"categories"`
	Reasons    []string `json:"reasons"`
}

// RagService defines the interface for catalog read operations
type RagService interface {
	// ListServers retrieves the latest visible snapshot of every server with cursor pagination
	ListServers(ctx context.Context, filter database.ListLatestFilter) ([]types.CatalogEntry, string, error)
	// GetServerByName retrieves the latest version of a server by server name
	GetServerByName(ctx context.Context, serverName string) (*types.CatalogEntry, error)
	// GetServerByNameAndVersion retrieves a specific version of a server by server name and version
	GetServerByNameAndVersion(ctx context.Context, serverName string, version string) (*types.CatalogEntry, error)
	// GetAllVersionsByServerName retrieves all visible versions of a server by server name
	GetAllVersionsByServerName(ctx context.Context, serverName string) ([]types.CatalogEntry, error)
	// ListCategories retrieves the distinct enrichment categories across the latest snapshot
	ListCategories(ctx context.Context) ([]string, error)
	// Search ranks the latest snapshot against a text query, semantically when
	// an embeddings provider is configured
	Search(ctx context.Context, q string, limit int, filters query.Filters) ([]query.Result, error)
	// Top returns the highest-quality entries matching the given filters
	Top(ctx context.Context, limit int, filters query.Filters) ([]query.Result, error)
	// Install projects the latest version of a server into install instructions
	Install(ctx context.Context, serverName string) (*install.Projection, error)
	// Explain reports the enrichment verdict for the latest version of a server
	Explain(ctx context.Context, serverName string) (*Explanation, error)
	// Stats folds the latest snapshot into coverage counts
	Stats(ctx context.Context) (*stats.Snapshot, error)
	// HealthCheck verifies the backing store is reachable
	HealthCheck(ctx context.Context) error
}
