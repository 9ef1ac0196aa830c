package v0

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ragmap-dev/ragmap/internal/ragmap/config"
)

// Canonical locations of the agent capability descriptor. Both paths serve
// the same document; agent-card.json exists for clients following the A2A
// naming.
const (
	WellKnownAgentPath     = "/.well-known/agent.json"
	WellKnownAgentCardPath = "/.well-known/agent-card.json"
)

// AgentCardBody is the static capability descriptor agents fetch before
// talking to the catalog.
type AgentCardBody struct {
	Name         string            `json:"name" example:"ragmap"`
	Description  string            `json:"description"`
	Version      string            `json:"version" example:"0.3.0"`
	Capabilities []string          `json:"capabilities"`
	Endpoints    map[string]string `json:"endpoints"`
}

// RegisterWellKnownEndpoints registers the discovery descriptors.
func RegisterWellKnownEndpoints(api huma.API, cfg *config.Config) {
	tags := []string{"discovery"}

	register := func(operationID, path string) {
		huma.Register(api, huma.Operation{
			OperationID: operationID,
			Method:      http.MethodGet,
			Path:        path,
			Summary:     "Agent capability descriptor",
			Description: "Static descriptor advertising the discovery surface of this catalog",
			Tags:        tags,
		}, func(ctx context.Context, input *struct{}) (*Response[AgentCardBody], error) {
			return &Response[AgentCardBody]{Body: agentCard(cfg)}, nil
		})
	}

	register("get-agent-descriptor", WellKnownAgentPath)
	register("get-agent-card", WellKnownAgentCardPath)
}

func agentCard(cfg *config.Config) AgentCardBody {
	return AgentCardBody{
		Name:        "ragmap",
		Description: "Curated subregistry of MCP servers useful for retrieval-augmented generation",
		Version:     cfg.Version,
		Capabilities: []string{
			"search",
			"top",
			"install",
			"explain",
			"stats",
		},
		Endpoints: map[string]string{
			"servers":    "/v0.1/servers",
			"search":     "/rag/search",
			"top":        "/rag/top",
			"install":    "/rag/install",
			"explain":    "/rag/servers/{serverName}/explain",
			"categories": "/rag/categories",
			"stats":      "/rag/stats",
			"openapi":    "/openapi.json",
		},
	}
}
