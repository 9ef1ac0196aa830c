package jobs

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ragmap-dev/ragmap/internal/ragmap/ingest"
	"github.com/ragmap-dev/ragmap/internal/ragmap/reach"
	"github.com/ragmap-dev/ragmap/internal/ragmap/telemetry"
	"github.com/ragmap-dev/ragmap/internal/ragmap/types"
)

// IngestRunner executes one ingestion pass.
type IngestRunner interface {
	Run(ctx context.Context, mode types.RunMode) (*ingest.RunResult, error)
}

// ReachabilityRunner executes one reachability pass.
type ReachabilityRunner interface {
	Refresh(ctx context.Context, limit int) (*reach.RefreshResult, error)
}

// Runner drives ingestion and reachability passes through the manager so that
// every trigger path (HTTP endpoint, cron schedule, post-ingest refresh)
// shares the same single-flight guarantee and run metrics.
type Runner struct {
	manager      *Manager
	ingest       IngestRunner
	reachability ReachabilityRunner
	metrics      *telemetry.Metrics
}

// NewRunner creates a runner. metrics may be nil; runs then go unrecorded.
func NewRunner(manager *Manager, ingest IngestRunner, reachability ReachabilityRunner, metrics *telemetry.Metrics) *Runner {
	return &Runner{
		manager:      manager,
		ingest:       ingest,
		reachability: reachability,
		metrics:      metrics,
	}
}

// RunIngest executes one ingestion run synchronously. When an ingest job is
// already in flight it fails fast with ErrJobAlreadyRunning instead of
// queueing.
func (r *Runner) RunIngest(ctx context.Context, mode types.RunMode) (*ingest.RunResult, error) {
	if mode != types.RunModeIncremental {
		mode = types.RunModeFull
	}

	job, err := r.manager.CreateJob(IngestJobType)
	if err != nil {
		return nil, r.busy(IngestJobType, err)
	}
	_ = r.manager.StartJob(job.ID)

	result, err := r.ingest.Run(ctx, mode)
	outcome := "success"
	if err != nil {
		outcome = "error"
		_ = r.manager.FailJob(job.ID, err.Error())
	} else {
		_ = r.manager.CompleteJob(job.ID, &JobResult{Ingest: result})
	}

	if r.metrics != nil {
		r.metrics.IngestRuns.Add(ctx, 1, metric.WithAttributes(
			attribute.String("mode", string(mode)),
			attribute.String("outcome", outcome),
		))
	}
	return result, err
}

// RunReachability executes one reachability refresh synchronously, with the
// same fail-fast behavior as RunIngest when a refresh is already in flight.
func (r *Runner) RunReachability(ctx context.Context, limit int) (*reach.RefreshResult, error) {
	job, err := r.manager.CreateJob(ReachabilityJobType)
	if err != nil {
		return nil, r.busy(ReachabilityJobType, err)
	}
	_ = r.manager.StartJob(job.ID)

	result, err := r.reachability.Refresh(ctx, limit)
	if err != nil {
		_ = r.manager.FailJob(job.ID, err.Error())
	} else {
		_ = r.manager.CompleteJob(job.ID, &JobResult{Reachability: result})
	}

	if r.metrics != nil && result != nil {
		r.metrics.ProbesTotal.Add(ctx, int64(result.Reachable), metric.WithAttributes(
			attribute.String("outcome", "reachable"),
		))
		r.metrics.ProbesTotal.Add(ctx, int64(result.Checked-result.Reachable), metric.WithAttributes(
			attribute.String("outcome", "unreachable"),
		))
	}
	return result, err
}

// busy decorates ErrJobAlreadyRunning with the id of the run holding the
// slot so callers can report which run they collided with.
func (r *Runner) busy(jobType string, err error) error {
	if !errors.Is(err, ErrJobAlreadyRunning) {
		return err
	}
	if running := r.manager.GetRunningJob(jobType); running != nil {
		return fmt.Errorf("%w: %s", ErrJobAlreadyRunning, running.ID)
	}
	return err
}
