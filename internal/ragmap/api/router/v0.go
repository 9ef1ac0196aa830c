package router

import (
	"github.com/danielgtaylor/huma/v2"

	v0 "github.com/ragmap-dev/ragmap/internal/ragmap/api/handlers/v0"
	"github.com/ragmap-dev/ragmap/internal/ragmap/config"
	"github.com/ragmap-dev/ragmap/internal/ragmap/service"
)

// RouteDependencies bundles everything the handlers need.
type RouteDependencies struct {
	Rag          service.RagService
	Ingest       v0.IngestTrigger
	Reachability v0.ReachabilityTrigger
}

// RegisterRoutes registers all API routes on the Huma API.
func RegisterRoutes(api huma.API, cfg *config.Config, deps RouteDependencies) {
	v0.RegisterHealthEndpoints(api, cfg, deps.Rag)
	v0.RegisterServersEndpoints(api, "/v0.1", deps.Rag)
	v0.RegisterRagEndpoints(api, deps.Rag)
	v0.RegisterAdminEndpoints(api, cfg, deps.Ingest, deps.Reachability)
	v0.RegisterWellKnownEndpoints(api, cfg)
}
