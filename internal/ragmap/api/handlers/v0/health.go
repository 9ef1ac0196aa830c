package v0

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ragmap-dev/ragmap/internal/ragmap/config"
	"github.com/ragmap-dev/ragmap/internal/ragmap/service"
)

// HealthBody reports liveness plus the deployment facts operators care about.
type HealthBody struct {
	Status      string    `json:"status" doc:"Health status" example:"ok"`
	Version     string    `json:"version" doc:"Service version" example:"0.3.0"`
	StorageKind string    `json:"storageKind" doc:"Active catalog store backend" example:"postgres"`
	Embeddings  bool      `json:"embeddings" doc:"Whether semantic embeddings are enabled"`
	Timestamp   time.Time `json:"ts" doc:"Server time"`
}

// notReadyBody is the readiness failure payload.
type notReadyBody struct {
	Status string `json:"status" example:"not_ready"`
	Detail string `json:"detail" example:"store unavailable"`
}

// notReadyError renders as a 503 with the readiness payload instead of the
// shared error envelope.
type notReadyError struct {
	notReadyBody
}

func (e *notReadyError) Error() string  { return e.Detail }
func (e *notReadyError) GetStatus() int { return http.StatusServiceUnavailable }

// StorageKind derives the storage backend label reported by /health.
func StorageKind(cfg *config.Config) string {
	if cfg.DatabaseURL == "" {
		return "memory"
	}
	return "postgres"
}

// RegisterHealthEndpoints registers /health and /readyz.
//
// /health only says the process is up; it never touches the store. /readyz
// performs a store round trip and fails with 503 until the catalog is usable.
func RegisterHealthEndpoints(api huma.API, cfg *config.Config, rag service.RagService) {
	huma.Register(api, huma.Operation{
		OperationID: "get-health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Liveness probe reporting version, storage backend, and embedding availability",
		Tags:        []string{"health"},
	}, func(ctx context.Context, input *struct{}) (*Response[HealthBody], error) {
		return &Response[HealthBody]{
			Body: HealthBody{
				Status:      "ok",
				Version:     cfg.Version,
				StorageKind: StorageKind(cfg),
				Embeddings:  cfg.Embeddings.Enabled,
				Timestamp:   time.Now().UTC(),
			},
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-readyz",
		Method:      http.MethodGet,
		Path:        "/readyz",
		Summary:     "Readiness check",
		Description: "Readiness probe that round-trips the catalog store",
		Tags:        []string{"health"},
	}, func(ctx context.Context, input *struct{}) (*Response[HealthBody], error) {
		if err := rag.HealthCheck(ctx); err != nil {
			return nil, &notReadyError{notReadyBody{Status: "not_ready", Detail: err.Error()}}
		}
		return &Response[HealthBody]{
			Body: HealthBody{
				Status:      "ok",
				Version:     cfg.Version,
				StorageKind: StorageKind(cfg),
				Embeddings:  cfg.Embeddings.Enabled,
				Timestamp:   time.Now().UTC(),
			},
		}, nil
	})
}
