// Package stats folds the latest catalog snapshot into coverage counts for
// the /rag/stats endpoint and the CLI.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/ragmap-dev/ragmap/internal/ragmap/database"
	"github.com/ragmap-dev/ragmap/internal/ragmap/reach"
)

const projectionPageSize = 200

// Snapshot is the stats projection over the latest visible servers.
type Snapshot struct {
	TotalLatestServers     int        `json:"totalLatestServers"`
	CountRagScoreGte1      int        `json:"countRagScoreGte1"`
	CountRagScoreGte25     int        `json:"countRagScoreGte25"`
	ReachabilityCandidates int        `json:"reachabilityCandidates"`
	ReachabilityKnown      int        `json:"reachabilityKnown"`
	ReachabilityTrue       int        `json:"reachabilityTrue"`
	ReachabilityUnknown    int        `json:"reachabilityUnknown"`
	LastSuccessfulIngestAt *time.Time `json:"lastSuccessfulIngestAt"`
	LastReachabilityRunAt  *time.Time `json:"lastReachabilityRunAt"`
}

// Projector computes Snapshot values from a catalog store.
type Projector struct {
	store database.CatalogStore
}

// NewProjector creates a stats projector backed by the given store.
func NewProjector(store database.CatalogStore) *Projector {
	return &Projector{store: store}
}

// Snapshot walks every latest visible server and counts score buckets and
// reachability coverage. Known and true counts are scoped to candidates, the
// servers a reachability pass could actually probe.
func (p *Projector) Snapshot(ctx context.Context) (*Snapshot, error) {
	snapshot := &Snapshot{}

	cursor := ""
	for {
		entries, next, err := p.store.ListLatest(ctx, database.ListLatestFilter{
			Cursor: cursor,
			Limit:  projectionPageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list servers for stats: %w", err)
		}

		for i := range entries {
			entry := &entries[i]
			snapshot.TotalLatestServers++
			if entry.RagMap.RagScore >= 1 {
				snapshot.CountRagScoreGte1++
			}
			if entry.RagMap.RagScore >= 25 {
				snapshot.CountRagScoreGte25++
			}
			if !entry.RagMap.HasRemote || reach.ProbeURL(entry) == "" {
				continue
			}
			snapshot.ReachabilityCandidates++
			if entry.RagMap.HasReachabilitySignal() {
				snapshot.ReachabilityKnown++
			}
			if entry.RagMap.Reachable != nil && *entry.RagMap.Reachable {
				snapshot.ReachabilityTrue++
			}
		}

		if next == "" {
			break
		}
		cursor = next
	}

	unknown := snapshot.ReachabilityCandidates - snapshot.ReachabilityKnown
	if unknown < 0 {
		unknown = 0
	}
	snapshot.ReachabilityUnknown = unknown

	ingestAt, err := p.store.GetLastSuccessfulIngestAt(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read ingest watermark: %w", err)
	}
	snapshot.LastSuccessfulIngestAt = ingestAt

	reachabilityAt, err := p.store.GetLastReachabilityRunAt(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read reachability watermark: %w", err)
	}
	snapshot.LastReachabilityRunAt = reachabilityAt

	return snapshot, nil
}
