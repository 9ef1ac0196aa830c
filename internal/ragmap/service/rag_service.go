package service

import (
	"context"
	"log"
	"strings"

	"github.com/ragmap-dev/ragmap/internal/ragmap/config"
	"github.com/ragmap-dev/ragmap/internal/ragmap/database"
	"github.com/ragmap-dev/ragmap/internal/ragmap/embeddings"
	"github.com/ragmap-dev/ragmap/internal/ragmap/install"
	"github.com/ragmap-dev/ragmap/internal/ragmap/query"
	"github.com/ragmap-dev/ragmap/internal/ragmap/stats"
	"github.com/ragmap-dev/ragmap/internal/ragmap/types"
)

// ragServiceImpl implements the RagService interface on top of a CatalogStore
type ragServiceImpl struct {
	store              database.CatalogStore
	cfg                *config.Config
	engine             *query.Engine
	projector          *stats.Projector
	embeddingsProvider embeddings.Provider
}

// NewRagService creates a new rag service with the provided store and configuration
func NewRagService(
	store database.CatalogStore,
	cfg *config.Config,
	embeddingProvider embeddings.Provider,
) RagService {
	return &ragServiceImpl{
		store:              store,
		cfg:                cfg,
		engine:             query.NewEngine(store),
		projector:          stats.NewProjector(store),
		embeddingsProvider: embeddingProvider,
	}
}

// ListServers returns latest snapshots with cursor-based pagination
func (s *ragServiceImpl) ListServers(ctx context.Context, filter database.ListLatestFilter) ([]types.CatalogEntry, string, error) {
	filter.Limit = database.ClampListLimit(filter.Limit)
	return s.store.ListLatest(ctx, filter)
}

// GetServerByName retrieves the latest version of a server by its server name
func (s *ragServiceImpl) GetServerByName(ctx context.Context, serverName string) (*types.CatalogEntry, error) {
	return s.store.GetVersion(ctx, serverName, database.VersionLatest)
}

// GetServerByNameAndVersion retrieves a specific version of a server
func (s *ragServiceImpl) GetServerByNameAndVersion(ctx context.Context, serverName string, version string) (*types.CatalogEntry, error) {
	return s.store.GetVersion(ctx, serverName, version)
}

// GetAllVersionsByServerName retrieves all visible versions of a server
func (s *ragServiceImpl) GetAllVersionsByServerName(ctx context.Context, serverName string) ([]types.CatalogEntry, error) {
	return s.store.ListVersions(ctx, serverName)
}

// ListCategories returns the distinct enrichment categories in use
func (s *ragServiceImpl) ListCategories(ctx context.Context) ([]string, error) {
	return s.store.ListCategories(ctx)
}

// Search ranks the latest snapshot against q. When an embeddings provider is
// configured the query is embedded as well; an embedding failure degrades to
// keyword-only matching rather than failing the request.
func (s *ragServiceImpl) Search(ctx context.Context, q string, limit int, filters query.Filters) ([]query.Result, error) {
	req := query.SearchRequest{
		Query:   q,
		Limit:   limit,
		Filters: filters,
	}
	if s.embeddingsProvider != nil {
		text := strings.TrimSpace(q)
		if text == "" {
			text = query.DefaultQuery
		}
		embedding, err := embeddings.GenerateEmbedding(ctx, s.embeddingsProvider, text, s.embeddingDimensions())
		if err != nil {
			log.Printf("Warning: failed to embed query %q, falling back to keyword search: %v", text, err)
		} else {
			req.QueryVector = embedding.Vector
		}
	}
	return s.engine.Search(ctx, req)
}

// Top returns the best entries under the quality ordering
func (s *ragServiceImpl) Top(ctx context.Context, limit int, filters query.Filters) ([]query.Result, error) {
	return s.engine.Top(ctx, limit, filters)
}

// Install projects the latest version of a server into install instructions
func (s *ragServiceImpl) Install(ctx context.Context, serverName string) (*install.Projection, error) {
	entry, err := s.store.GetVersion(ctx, serverName, database.VersionLatest)
	if err != nil {
		return nil, err
	}
	projection := install.Project(entry.Server)
	return &projection, nil
}

// Explain reports the enrichment verdict for the latest version of a server
func (s *ragServiceImpl) Explain(ctx context.Context, serverName string) (*Explanation, error) {
	entry, err := s.store.GetVersion(ctx, serverName, database.VersionLatest)
	if err != nil {
		return nil, err
	}
	return &Explanation{
		Name:       entry.Server.Name,
		Version:    entry.Server.Version,
		RagScore:   entry.RagMap.RagScore,
		Categories: entry.RagMap.Categories,
		Reasons:    entry.RagMap.Reasons,
	}, nil
}

// Stats folds the latest snapshot into coverage counts
func (s *ragServiceImpl) Stats(ctx context.Context) (*stats.Snapshot, error) {
	return s.projector.Snapshot(ctx)
}

// HealthCheck verifies the backing store is reachable
func (s *ragServiceImpl) HealthCheck(ctx context.Context) error {
	return s.store.HealthCheck(ctx)
}

func (s *ragServiceImpl) embeddingDimensions() int {
	if s.cfg == nil {
		return 0
	}
	return s.cfg.Embeddings.Dimensions
}
