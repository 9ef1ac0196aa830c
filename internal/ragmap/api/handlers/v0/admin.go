package v0

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ragmap-dev/ragmap/internal/ragmap/config"
	"github.com/ragmap-dev/ragmap/internal/ragmap/ingest"
	"github.com/ragmap-dev/ragmap/internal/ragmap/jobs"
	"github.com/ragmap-dev/ragmap/internal/ragmap/reach"
	"github.com/ragmap-dev/ragmap/internal/ragmap/types"
	"github.com/ragmap-dev/ragmap/internal/ragmap/upstream"
)

// IngestTrigger starts a synchronous ingestion run.
type IngestTrigger interface {
	RunIngest(ctx context.Context, mode types.RunMode) (*ingest.RunResult, error)
}

// ReachabilityTrigger starts a synchronous reachability refresh.
type ReachabilityTrigger interface {
	RunReachability(ctx context.Context, limit int) (*reach.RefreshResult, error)
}

// IngestRunInput represents the input for triggering an ingestion run. The
// body is optional; an empty POST runs an incremental ingest.
type IngestRunInput struct {
	Token string `header:"X-Ingest-Token" json:"-" doc:"Shared trigger token" required:"false"`
	Body  struct {
		Mode string `json:"mode,omitempty" doc:"Run mode" enum:"full,incremental" default:"incremental"`
	} `required:"false"`
}

// ReachabilityRunInput represents the input for triggering a reachability
// refresh. The body is optional; an empty POST probes the default budget.
type ReachabilityRunInput struct {
	Token string `header:"X-Ingest-Token" json:"-" doc:"Shared trigger token" required:"false"`
	Body  struct {
		Limit int `json:"limit,omitempty" doc:"Maximum servers to probe" minimum:"0" maximum:"500" default:"50"`
	} `required:"false"`
}

// RegisterAdminEndpoints registers the token-guarded trigger endpoints under
// /internal. Runs execute synchronously; the response carries the run's
// statistics.
func RegisterAdminEndpoints(api huma.API, cfg *config.Config, ingestTrigger IngestTrigger, reachabilityTrigger ReachabilityTrigger) {
	tags := []string{"admin"}

	huma.Register(api, huma.Operation{
		OperationID: "run-ingest",
		Method:      http.MethodPost,
		Path:        "/internal/ingest/run",
		Summary:     "Trigger an ingestion run",
		Description: "Pull the upstream registry into the catalog. Full runs re-cover everything and hide servers upstream no longer lists; incremental runs only cover entries updated since the last successful run.",
		Tags:        tags,
	}, func(ctx context.Context, input *IngestRunInput) (*Response[ingest.RunResult], error) {
		if err := checkTriggerToken(cfg, input.Token); err != nil {
			return nil, err
		}

		mode := types.RunMode(input.Body.Mode)
		if mode != types.RunModeFull {
			mode = types.RunModeIncremental
		}

		result, err := ingestTrigger.RunIngest(ctx, mode)
		if err != nil {
			return nil, triggerError("Ingestion run failed", err)
		}
		return &Response[ingest.RunResult]{Body: *result}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "run-reachability",
		Method:      http.MethodPost,
		Path:        "/internal/reachability/run",
		Summary:     "Trigger a reachability refresh",
		Description: "Probe a budgeted, tier-weighted sample of remote-capable servers and record the verdicts on their latest catalog entries.",
		Tags:        tags,
	}, func(ctx context.Context, input *ReachabilityRunInput) (*Response[reach.RefreshResult], error) {
		if err := checkTriggerToken(cfg, input.Token); err != nil {
			return nil, err
		}

		result, err := reachabilityTrigger.RunReachability(ctx, input.Body.Limit)
		if err != nil {
			return nil, triggerError("Reachability refresh failed", err)
		}
		return &Response[reach.RefreshResult]{Body: *result}, nil
	})
}

// checkTriggerToken validates the shared trigger token. An unconfigured token
// makes the triggers unusable rather than open.
func checkTriggerToken(cfg *config.Config, token string) error {
	if cfg.IngestToken == "" {
		return huma.Error500InternalServerError("Trigger token is not configured")
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(cfg.IngestToken)) != 1 {
		return huma.Error401Unauthorized("Invalid trigger token")
	}
	return nil
}

// triggerError maps run failures onto response codes: a concurrent run is a
// conflict, upstream trouble is a bad gateway, everything else is internal.
func triggerError(message string, err error) error {
	if errors.Is(err, jobs.ErrJobAlreadyRunning) {
		return huma.Error409Conflict(err.Error())
	}

	var upstreamErr *upstream.UpstreamError
	var shapeErr *upstream.ShapeError
	if errors.As(err, &upstreamErr) || errors.As(err, &shapeErr) {
		return huma.Error502BadGateway(message, err)
	}
	return huma.Error500InternalServerError(message, err)
}
