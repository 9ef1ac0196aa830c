package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ragmap-dev/ragmap/internal/ragmap/types"
)

const (
	metaKeyLastIngest       = "last_successful_ingest_at"
	metaKeyLastReachability = "last_reachability_run_at"
)

// schema is applied on connect. Statements are idempotent so every process
// can run them; deployments with managed migrations simply find them applied.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS server_versions (
		name TEXT NOT NULL,
		version TEXT NOT NULL,
		value JSONB NOT NULL,
		hidden BOOLEAN NOT NULL DEFAULT FALSE,
		is_latest BOOLEAN NOT NULL DEFAULT FALSE,
		published_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ,
		seen_run_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (name, version)
	)`,
	`CREATE TABLE IF NOT EXISTS server_names (
		name TEXT PRIMARY KEY,
		latest_version TEXT NOT NULL DEFAULT '',
		hidden BOOLEAN NOT NULL DEFAULT FALSE,
		last_seen_run_id TEXT NOT NULL DEFAULT '',
		last_seen_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS ingest_runs (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS process_meta (
		key TEXT PRIMARY KEY,
		value TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_server_names_visible ON server_names (name) WHERE NOT hidden`,
	`CREATE INDEX IF NOT EXISTS idx_server_versions_seen ON server_versions (seen_run_id)`,
}

// PostgreSQL is the durable CatalogStore over a Postgres JSONB document
// layout: one row per (name, version) carrying the serialized catalog entry,
// plus a per-name latest-snapshot row to avoid fan-in on listing.
type PostgreSQL struct {
	pool *pgxpool.Pool
}

var _ CatalogStore = (*PostgreSQL)(nil)

// NewPostgreSQL connects a pool and applies the schema.
func NewPostgreSQL(ctx context.Context, connectionURI string) (*PostgreSQL, error) {
	config, err := pgxpool.ParseConfig(connectionURI)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL config: %w", err)
	}

	// Stability-focused pool defaults.
	config.MaxConns = 30
	config.MinConns = 5
	config.MaxConnIdleTime = 30 * time.Minute
	config.MaxConnLifetime = 2 * time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL pool: %w", err)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	return &PostgreSQL{pool: pool}, nil
}

// BeginRun records the run for audit and returns its id.
func (db *PostgreSQL) BeginRun(ctx context.Context, mode types.RunMode) (string, error) {
	runID := uuid.New().String()
	_, err := db.pool.Exec(ctx,
		`INSERT INTO ingest_runs (id, mode, started_at) VALUES ($1, $2, NOW())`,
		runID, string(mode))
	if err != nil {
		return "", fmt.Errorf("failed to record run: %w", err)
	}
	return runID, nil
}

func (db *PostgreSQL) GetLastSuccessfulIngestAt(ctx context.Context) (*time.Time, error) {
	return db.getMeta(ctx, metaKeyLastIngest)
}

func (db *PostgreSQL) SetLastSuccessfulIngestAt(ctx context.Context, t time.Time) error {
	return db.setMeta(ctx, metaKeyLastIngest, t)
}

func (db *PostgreSQL) GetLastReachabilityRunAt(ctx context.Context) (*time.Time, error) {
	return db.getMeta(ctx, metaKeyLastReachability)
}

func (db *PostgreSQL) SetLastReachabilityRunAt(ctx context.Context, t time.Time) error {
	return db.setMeta(ctx, metaKeyLastReachability, t)
}

func (db *PostgreSQL) getMeta(ctx context.Context, key string) (*time.Time, error) {
	var value time.Time
	err := db.pool.QueryRow(ctx, `SELECT value FROM process_meta WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read process meta %q: %w", key, err)
	}
	value = value.UTC()
	return &value, nil
}

func (db *PostgreSQL) setMeta(ctx context.Context, key string, t time.Time) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO process_meta (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, t.UTC())
	if err != nil {
		return fmt.Errorf("failed to write process meta %q: %w", key, err)
	}
	return nil
}

// MarkServerSeen stamps the name row with the run id, creating a stub when
// absent. Stubs without an upserted version never surface in listings.
func (db *PostgreSQL) MarkServerSeen(ctx context.Context, runID, name string, seenAt time.Time) error {
	if name == "" {
		return fmt.Errorf("%w: server name is required", ErrInvalidInput)
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO server_names (name, last_seen_run_id, last_seen_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET last_seen_run_id = EXCLUDED.last_seen_run_id,
		                                  last_seen_at = EXCLUDED.last_seen_at`,
		name, runID, seenAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to mark server seen: %w", err)
	}
	return nil
}

// UpsertServerVersion writes the version row and refreshes the name-level
// latest snapshot inside a single transaction.
func (db *PostgreSQL) UpsertServerVersion(ctx context.Context, req UpsertRequest) error {
	name := req.Entry.Server.Name
	version := req.Entry.Server.Version
	if name == "" || version == "" {
		return fmt.Errorf("%w: name and version are required", ErrInvalidInput)
	}

	value, err := json.Marshal(req.Entry)
	if err != nil {
		return fmt.Errorf("failed to marshal catalog entry: %w", err)
	}

	official := types.ParseOfficial(req.Entry.Official)
	publishedAt := nullableTime(official.PublishedAtTime())
	updatedAt := nullableTime(official.UpdatedAtTime())

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO server_versions (name, version, value, hidden, is_latest, published_at, updated_at, seen_run_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (name, version) DO UPDATE SET
		     value = EXCLUDED.value,
		     hidden = EXCLUDED.hidden,
		     is_latest = EXCLUDED.is_latest,
		     published_at = EXCLUDED.published_at,
		     updated_at = EXCLUDED.updated_at,
		     seen_run_id = EXCLUDED.seen_run_id`,
		name, version, value, req.Hidden, official.IsLatest, publishedAt, updatedAt, req.RunID)
	if err != nil {
		return fmt.Errorf("failed to upsert server version: %w", err)
	}

	var currentLatest string
	err = tx.QueryRow(ctx,
		`SELECT latest_version FROM server_names WHERE name = $1 FOR UPDATE`, name).Scan(&currentLatest)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		_, err = tx.Exec(ctx,
			`INSERT INTO server_names (name, latest_version, hidden, updated_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (name) DO UPDATE SET latest_version = EXCLUDED.latest_version,
			                                  hidden = EXCLUDED.hidden,
			                                  updated_at = EXCLUDED.updated_at`,
			name, version, req.Hidden, updatedAt)
		if err != nil {
			return fmt.Errorf("failed to create latest snapshot: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to read latest snapshot: %w", err)
	case official.IsLatest || currentLatest == "" || currentLatest == version:
		_, err = tx.Exec(ctx,
			`UPDATE server_names SET latest_version = $2, hidden = $3, updated_at = $4 WHERE name = $1`,
			name, version, req.Hidden, updatedAt)
		if err != nil {
			return fmt.Errorf("failed to update latest snapshot: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}
	return nil
}

// HideServersNotSeen hides every visible server the given run did not touch.
func (db *PostgreSQL) HideServersNotSeen(ctx context.Context, runID string) (int, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE server_names SET hidden = TRUE WHERE last_seen_run_id <> $1 AND hidden = FALSE`, runID)
	if err != nil {
		return 0, fmt.Errorf("failed to hide servers: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ListLatest pages the visible latest snapshots in name order.
func (db *PostgreSQL) ListLatest(ctx context.Context, filter ListLatestFilter) ([]types.CatalogEntry, string, error) {
	limit := ClampListLimit(filter.Limit)

	conditions := []string{"sn.hidden = FALSE", "sv.hidden = FALSE"}
	args := []any{}
	argIndex := 1

	if filter.UpdatedSince != nil {
		conditions = append(conditions, fmt.Sprintf("sn.updated_at > $%d", argIndex))
		args = append(args, filter.UpdatedSince.UTC())
		argIndex++
	}
	if filter.Cursor != "" {
		conditions = append(conditions, fmt.Sprintf("sn.name > $%d", argIndex))
		args = append(args, filter.Cursor)
		argIndex++
	}

	query := fmt.Sprintf(`
        SELECT sv.value
        FROM server_names sn
        JOIN server_versions sv ON sv.name = sn.name AND sv.version = sn.latest_version
        WHERE %s
        ORDER BY sn.name
        LIMIT $%d`,
		strings.Join(conditions, " AND "), argIndex)
	args = append(args, limit)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to query latest snapshots: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, "", err
	}

	nextCursor := ""
	if len(entries) >= limit {
		nextCursor = entries[len(entries)-1].Server.Name
	}
	return entries, nextCursor, nil
}

// ListVersions returns the visible versions of a name, latest first, then by
// publishedAt descending.
func (db *PostgreSQL) ListVersions(ctx context.Context, name string) ([]types.CatalogEntry, error) {
	visible, latest, err := db.nameSnapshot(ctx, name)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, ErrNotFound
	}

	rows, err := db.pool.Query(ctx,
		`SELECT value FROM server_versions
		 WHERE name = $1 AND hidden = FALSE
		 ORDER BY (version = $2) DESC, published_at DESC NULLS LAST, version`,
		name, latest)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return entries, nil
}

// GetVersion resolves a concrete version or VersionLatest for a visible name.
func (db *PostgreSQL) GetVersion(ctx context.Context, name, version string) (*types.CatalogEntry, error) {
	visible, latest, err := db.nameSnapshot(ctx, name)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, ErrNotFound
	}

	resolved := version
	if resolved == VersionLatest || resolved == "" {
		resolved = latest
	}

	var value []byte
	err = db.pool.QueryRow(ctx,
		`SELECT value FROM server_versions WHERE name = $1 AND version = $2 AND hidden = FALSE`,
		name, resolved).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query version: %w", err)
	}

	var entry types.CatalogEntry
	if err := json.Unmarshal(value, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal catalog entry: %w", err)
	}
	return &entry, nil
}

// ListCategories returns the sorted union of categories across visible latest
// entries.
func (db *PostgreSQL) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT DISTINCT category
		 FROM server_names sn
		 JOIN server_versions sv ON sv.name = sn.name AND sv.version = sn.latest_version,
		      jsonb_array_elements_text(sv.value->'ragmap'->'categories') AS category
		 WHERE sn.hidden = FALSE AND sv.hidden = FALSE
		 ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}
	return categories, nil
}

// SetReachability patches the reachability fields of the latest entry's
// enrichment in one atomic UPDATE. Unknown names are a no-op.
func (db *PostgreSQL) SetReachability(ctx context.Context, name string, ok bool, checkedAt time.Time, detail ReachabilityDetail) error {
	checked := checkedAt.UTC()
	patch := map[string]any{
		"reachable":          ok,
		"reachableCheckedAt": checked,
		"reachableStatus":    detail.Status,
	}
	if detail.Method != "" {
		patch["reachableMethod"] = detail.Method
	} else {
		patch["reachableMethod"] = nil
	}
	if ok {
		patch["lastReachableAt"] = checked
	}
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to marshal reachability patch: %w", err)
	}

	// Merging then stripping nulls makes an absent probe status erase the
	// previous one, mirroring the in-memory store. lastReachableAt is only
	// in the patch on success, so failures keep the previous value.
	_, err = db.pool.Exec(ctx,
		`UPDATE server_versions sv
		 SET value = jsonb_set(sv.value, '{ragmap}', jsonb_strip_nulls((sv.value->'ragmap') || $2::jsonb))
		 FROM server_names sn
		 WHERE sn.name = $1 AND sv.name = sn.name AND sv.version = sn.latest_version`,
		name, patchJSON)
	if err != nil {
		return fmt.Errorf("failed to set reachability: %w", err)
	}
	return nil
}

// HealthCheck pings the pool.
func (db *PostgreSQL) HealthCheck(ctx context.Context) error {
	if err := db.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %s", ErrDatabase, err)
	}
	return nil
}

// Close closes the connection pool.
func (db *PostgreSQL) Close() error {
	db.pool.Close()
	return nil
}

// nameSnapshot reads the name-level row; visible is false when the row is
// absent or hidden.
func (db *PostgreSQL) nameSnapshot(ctx context.Context, name string) (visible bool, latest string, err error) {
	var hidden bool
	err = db.pool.QueryRow(ctx,
		`SELECT hidden, latest_version FROM server_names WHERE name = $1`, name).Scan(&hidden, &latest)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("failed to read name snapshot: %w", err)
	}
	return !hidden && latest != "", latest, nil
}

func scanEntries(rows pgx.Rows) ([]types.CatalogEntry, error) {
	var entries []types.CatalogEntry
	for rows.Next() {
		var value []byte
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("failed to scan catalog entry: %w", err)
		}
		var entry types.CatalogEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal catalog entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return entries, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}
