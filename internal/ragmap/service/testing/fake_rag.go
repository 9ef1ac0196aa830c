// Package testing provides test utilities for the rag service.
package testing

import (
	"context"
	"sync"

	"github.com/ragmap-dev/ragmap/internal/ragmap/database"
	"github.com/ragmap-dev/ragmap/internal/ragmap/install"
	"github.com/ragmap-dev/ragmap/internal/ragmap/query"
	"github.com/ragmap-dev/ragmap/internal/ragmap/service"
	"github.com/ragmap-dev/ragmap/internal/ragmap/stats"
	"github.com/ragmap-dev/ragmap/internal/ragmap/types"
)

// FakeRagService is a configurable fake implementation of service.RagService for testing.
// It supports both data-driven setup via struct fields and function hooks for custom behavior.
type FakeRagService struct {
	mu sync.Mutex

	// Data fields for simple data-driven tests
	Servers       []types.CatalogEntry
	Categories    []string
	SearchResults []query.Result
	TopResults    []query.Result
	Projection    *install.Projection
	Explanation   *service.Explanation
	Snapshot      *stats.Snapshot

	// Function hooks for custom behavior (take precedence over data fields when set)
	ListServersFn                func(ctx context.Context, filter database.ListLatestFilter) ([]types.CatalogEntry, string, error)
	GetServerByNameFn            func(ctx context.Context, serverName string) (*types.CatalogEntry, error)
	GetServerByNameAndVersionFn  func(ctx context.Context, serverName, version string) (*types.CatalogEntry, error)
	GetAllVersionsByServerNameFn func(ctx context.Context, serverName string) ([]types.CatalogEntry, error)
	ListCategoriesFn             func(ctx context.Context) ([]string, error)
	SearchFn                     func(ctx context.Context, q string, limit int, filters query.Filters) ([]query.Result, error)
	TopFn                        func(ctx context.Context, limit int, filters query.Filters) ([]query.Result, error)
	InstallFn                    func(ctx context.Context, serverName string) (*install.Projection, error)
	ExplainFn                    func(ctx context.Context, serverName string) (*service.Explanation, error)
	StatsFn                      func(ctx context.Context) (*stats.Snapshot, error)
	HealthCheckFn                func(ctx context.Context) error
}

// NewFakeRagService creates a new FakeRagService.
func NewFakeRagService() *FakeRagService {
	return &FakeRagService{}
}

func (f *FakeRagService) ListServers(ctx context.Context, filter database.ListLatestFilter) ([]types.CatalogEntry, string, error) {
	if f.ListServersFn != nil {
		return f.ListServersFn(ctx, filter)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if filter.Cursor != "" {
		return nil, "", nil
	}
	return f.Servers, "", nil
}

func (f *FakeRagService) GetServerByName(ctx context.Context, serverName string) (*types.CatalogEntry, error) {
	if f.GetServerByNameFn != nil {
		return f.GetServerByNameFn(ctx, serverName)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.Servers {
		if f.Servers[i].Server.Name == serverName {
			return &f.Servers[i], nil
		}
	}
	return nil, database.ErrNotFound
}

func (f *FakeRagService) GetServerByNameAndVersion(ctx context.Context, serverName, version string) (*types.CatalogEntry, error) {
	if f.GetServerByNameAndVersionFn != nil {
		return f.GetServerByNameAndVersionFn(ctx, serverName, version)
	}
	if version == database.VersionLatest {
		return f.GetServerByName(ctx, serverName)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.Servers {
		if f.Servers[i].Server.Name == serverName && f.Servers[i].Server.Version == version {
			return &f.Servers[i], nil
		}
	}
	return nil, database.ErrNotFound
}

func (f *FakeRagService) GetAllVersionsByServerName(ctx context.Context, serverName string) ([]types.CatalogEntry, error) {
	if f.GetAllVersionsByServerNameFn != nil {
		return f.GetAllVersionsByServerNameFn(ctx, serverName)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var versions []types.CatalogEntry
	for _, entry := range f.Servers {
		if entry.Server.Name == serverName {
			versions = append(versions, entry)
		}
	}
	if len(versions) == 0 {
		return nil, database.ErrNotFound
	}
	return versions, nil
}

func (f *FakeRagService) ListCategories(ctx context.Context) ([]string, error) {
	if f.ListCategoriesFn != nil {
		return f.ListCategoriesFn(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Categories, nil
}

func (f *FakeRagService) Search(ctx context.Context, q string, limit int, filters query.Filters) ([]query.Result, error) {
	if f.SearchFn != nil {
		return f.SearchFn(ctx, q, limit, filters)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.SearchResults, nil
}

func (f *FakeRagService) Top(ctx context.Context, limit int, filters query.Filters) ([]query.Result, error) {
	if f.TopFn != nil {
		return f.TopFn(ctx, limit, filters)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.TopResults, nil
}

func (f *FakeRagService) Install(ctx context.Context, serverName string) (*install.Projection, error) {
	if f.InstallFn != nil {
		return f.InstallFn(ctx, serverName)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Projection != nil {
		return f.Projection, nil
	}
	return nil, database.ErrNotFound
}

func (f *FakeRagService) Explain(ctx context.Context, serverName string) (*service.Explanation, error) {
	if f.ExplainFn != nil {
		return f.ExplainFn(ctx, serverName)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Explanation != nil {
		return f.Explanation, nil
	}
	return nil, database.ErrNotFound
}

func (f *FakeRagService) Stats(ctx context.Context) (*stats.Snapshot, error) {
	if f.StatsFn != nil {
		return f.StatsFn(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Snapshot != nil {
		return f.Snapshot, nil
	}
	return &stats.Snapshot{}, nil
}

func (f *FakeRagService) HealthCheck(ctx context.Context) error {
	if f.HealthCheckFn != nil {
		return f.HealthCheckFn(ctx)
	}
	return nil
}
