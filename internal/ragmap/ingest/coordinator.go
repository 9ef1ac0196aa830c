// Package ingest orchestrates catalog runs. A run pages the upstream
// registry and turns each entry into an enriched upsert; full runs also
// diff-hide servers the upstream no longer lists.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ragmap-dev/ragmap/internal/ragmap/database"
	"github.com/ragmap-dev/ragmap/internal/ragmap/embeddings"
	"github.com/ragmap-dev/ragmap/internal/ragmap/enrich"
	"github.com/ragmap-dev/ragmap/internal/ragmap/types"
	"github.com/ragmap-dev/ragmap/internal/ragmap/upstream"
)

// defaultPageLimit is how many entries each upstream page requests.
const defaultPageLimit = 100

// statusDeleted hides an entry; any other upstream status stays visible.
const statusDeleted = "deleted"

// PageFetcher pulls one page of the upstream catalog.
type PageFetcher interface {
	FetchPage(ctx context.Context, req upstream.PageRequest) (*upstream.Page, error)
}

// RunResult reports what a single ingestion run did.
type RunResult struct {
	Mode                types.RunMode `json:"mode"`
	RunID               string        `json:"runId"`
	StartedAt           time.Time     `json:"startedAt"`
	FinishedAt          time.Time     `json:"finishedAt"`
	Pages               int           `json:"pages"`
	Fetched             int           `json:"fetched"`
	Upserted            int           `json:"upserted"`
	Skipped             int           `json:"skipped,omitempty"`
	Hidden              int           `json:"hidden"`
	EmbeddingsGenerated int           `json:"embeddingsGenerated,omitempty"`
	EmbeddingsReused    int           `json:"embeddingsReused,omitempty"`
	EmbeddingsFailed    int           `json:"embeddingsFailed,omitempty"`
	ReachabilityChecked int           `json:"reachabilityChecked,omitempty"`
	DurationMs          int64         `json:"durationMs"`
}

// Coordinator drives ingestion runs against a catalog store.
type Coordinator struct {
	store               database.CatalogStore
	fetcher             PageFetcher
	provider            embeddings.Provider
	dimensions          int
	pageLimit           int
	now                 func() time.Time
	refreshReachability func(ctx context.Context) (int, error)
}

// NewCoordinator builds a coordinator. provider may be nil when embeddings
// are disabled; entries then persist without vectors.
func NewCoordinator(store database.CatalogStore, fetcher PageFetcher, provider embeddings.Provider, dimensions int) *Coordinator {
	return &Coordinator{
		store:      store,
		fetcher:    fetcher,
		provider:   provider,
		dimensions: dimensions,
		pageLimit:  defaultPageLimit,
		now:        time.Now,
	}
}

// SetClock overrides the time source.
func (c *Coordinator) SetClock(now func() time.Time) {
	if now != nil {
		c.now = now
	}
}

// SetReachabilityRefresher wires an optional reachability pass that runs
// after full ingests. It returns how many servers were probed; failures are
// logged and never fail the run.
func (c *Coordinator) SetReachabilityRefresher(fn func(ctx context.Context) (int, error)) {
	c.refreshReachability = fn
}

// Run executes one ingestion run. Upstream and store errors abort the run
// with partial effects kept; lastSuccessfulIngestAt moves only on clean
// completion, so a later incremental run re-covers the failed window.
func (c *Coordinator) Run(ctx context.Context, mode types.RunMode) (*RunResult, error) {
	if mode != types.RunModeIncremental {
		mode = types.RunModeFull
	}
	startedAt := c.now().UTC()

	var updatedSince *time.Time
	if mode == types.RunModeIncremental {
		last, err := c.store.GetLastSuccessfulIngestAt(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read last successful ingest time: %w", err)
		}
		updatedSince = last
	}

	runID, err := c.store.BeginRun(ctx, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to begin ingestion run: %w", err)
	}
	log.Printf("Ingestion run %s started (mode=%s)", runID, mode)

	result := &RunResult{Mode: mode, RunID: runID, StartedAt: startedAt}

	cursor := ""
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		page, err := c.fetcher.FetchPage(ctx, upstream.PageRequest{
			Cursor:       cursor,
			Limit:        c.pageLimit,
			UpdatedSince: updatedSince,
		})
		if err != nil {
			return nil, fmt.Errorf("ingestion run %s aborted on page %d: %w", runID, result.Pages+1, err)
		}
		result.Pages++

		for _, raw := range page.Entries {
			entry, err := normalizeEntry(raw)
			if err != nil {
				log.Printf("Skipping malformed upstream entry: %v", err)
				result.Skipped++
				continue
			}
			if entry.Server.Name == "" || entry.Server.Version == "" {
				result.Skipped++
				continue
			}
			result.Fetched++

			if err := c.ingestEntry(ctx, runID, entry, result); err != nil {
				return nil, fmt.Errorf("ingestion run %s aborted at %s@%s: %w", runID, entry.Server.Name, entry.Server.Version, err)
			}
			result.Upserted++
		}

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	if mode == types.RunModeFull {
		hidden, err := c.store.HideServersNotSeen(ctx, runID)
		if err != nil {
			return nil, fmt.Errorf("failed to hide unseen servers: %w", err)
		}
		result.Hidden = hidden

		if c.refreshReachability != nil {
			checked, err := c.refreshReachability(ctx)
			if err != nil {
				log.Printf("Warning: reachability refresh after run %s failed: %v", runID, err)
			}
			result.ReachabilityChecked = checked
		}
	}

	finishedAt := c.now().UTC()
	if err := c.store.SetLastSuccessfulIngestAt(ctx, finishedAt); err != nil {
		return nil, fmt.Errorf("failed to record ingest completion: %w", err)
	}

	result.FinishedAt = finishedAt
	result.DurationMs = finishedAt.Sub(startedAt).Milliseconds()
	log.Printf("Ingestion run %s finished: %d fetched, %d upserted, %d hidden in %dms",
		runID, result.Fetched, result.Upserted, result.Hidden, result.DurationMs)
	return result, nil
}

// ingestEntry enriches and persists one normalized entry.
func (c *Coordinator) ingestEntry(ctx context.Context, runID string, entry *normalizedEntry, result *RunResult) error {
	now := c.now().UTC()
	official := types.ParseOfficial(entry.Official)
	hidden := strings.EqualFold(official.Status, statusDeleted)

	enrichment := enrich.Enrich(entry.Server)
	enrichment.Embedding = c.resolveEmbedding(ctx, entry, enrichment.EmbeddingTextHash, result)

	if err := c.store.MarkServerSeen(ctx, runID, entry.Server.Name, now); err != nil {
		return err
	}
	return c.store.UpsertServerVersion(ctx, database.UpsertRequest{
		RunID: runID,
		At:    now,
		Entry: types.CatalogEntry{
			Server:            entry.Server,
			Official:          entry.Official,
			PublisherProvided: entry.PublisherProvided,
			RagMap:            enrichment,
		},
		Hidden: hidden,
	})
}

// resolveEmbedding reuses the stored vector when the embedding text is
// unchanged and otherwise generates a fresh one. Every failure is non-fatal;
// the entry just persists without a vector.
func (c *Coordinator) resolveEmbedding(ctx context.Context, entry *normalizedEntry, textHash string, result *RunResult) *types.Embedding {
	if c.provider == nil {
		return nil
	}

	prior, err := c.store.GetVersion(ctx, entry.Server.Name, entry.Server.Version)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		log.Printf("Warning: failed to read prior entry for %s@%s: %v", entry.Server.Name, entry.Server.Version, err)
	}
	if prior != nil && prior.RagMap.Embedding != nil && prior.RagMap.EmbeddingTextHash == textHash {
		result.EmbeddingsReused++
		return prior.RagMap.Embedding
	}

	text := enrich.BuildText(entry.Server)
	embedding, err := embeddings.GenerateEmbedding(ctx, c.provider, text, c.dimensions)
	if err != nil {
		log.Printf("Warning: failed to generate embedding for %s@%s: %v", entry.Server.Name, entry.Server.Version, err)
		result.EmbeddingsFailed++
		return nil
	}
	result.EmbeddingsGenerated++
	return embedding
}
