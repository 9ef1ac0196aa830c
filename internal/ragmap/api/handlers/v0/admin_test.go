package v0_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v0 "github.com/ragmap-dev/ragmap/internal/ragmap/api/handlers/v0"
	"github.com/ragmap-dev/ragmap/internal/ragmap/config"
	"github.com/ragmap-dev/ragmap/internal/ragmap/ingest"
	"github.com/ragmap-dev/ragmap/internal/ragmap/jobs"
	"github.com/ragmap-dev/ragmap/internal/ragmap/reach"
	"github.com/ragmap-dev/ragmap/internal/ragmap/types"
	"github.com/ragmap-dev/ragmap/internal/ragmap/upstream"
)

const testTriggerToken = "test-trigger-token"

type fakeIngestTrigger struct {
	gotMode types.RunMode
	result  *ingest.RunResult
	err     error
}

func (f *fakeIngestTrigger) RunIngest(ctx context.Context, mode types.RunMode) (*ingest.RunResult, error) {
	f.gotMode = mode
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeReachabilityTrigger struct {
	gotLimit int
	result   *reach.RefreshResult
	err      error
}

func (f *fakeReachabilityTrigger) RunReachability(ctx context.Context, limit int) (*reach.RefreshResult, error) {
	f.gotLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newAdminMux(cfg *config.Config, ingestTrigger *fakeIngestTrigger, reachabilityTrigger *fakeReachabilityTrigger) *http.ServeMux {
	mux := http.NewServeMux()
	api := humago.New(mux, huma.DefaultConfig("Test API", "0.0.1"))
	v0.RegisterAdminEndpoints(api, cfg, ingestTrigger, reachabilityTrigger)
	return mux
}

func postJSON(mux *http.ServeMux, target, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("X-Ingest-Token", token)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestIngestTriggerTokenGuard(t *testing.T) {
	ingestTrigger := &fakeIngestTrigger{result: &ingest.RunResult{Mode: types.RunModeIncremental}}
	reachabilityTrigger := &fakeReachabilityTrigger{result: &reach.RefreshResult{}}

	t.Run("unconfigured token disables triggers", func(t *testing.T) {
		mux := newAdminMux(&config.Config{}, ingestTrigger, reachabilityTrigger)

		w := postJSON(mux, "/internal/ingest/run", testTriggerToken, "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)

		var envelope errorEnvelope
		require.NoError(t, json.NewDecoder(w.Body).Decode(&envelope))
		assert.Equal(t, "Trigger token is not configured", envelope.Error)
	})

	cfg := &config.Config{IngestToken: testTriggerToken}

	t.Run("missing token", func(t *testing.T) {
		mux := newAdminMux(cfg, ingestTrigger, reachabilityTrigger)

		w := postJSON(mux, "/internal/ingest/run", "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong token", func(t *testing.T) {
		mux := newAdminMux(cfg, ingestTrigger, reachabilityTrigger)

		w := postJSON(mux, "/internal/ingest/run", "not-the-token", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		var envelope errorEnvelope
		require.NoError(t, json.NewDecoder(w.Body).Decode(&envelope))
		assert.Equal(t, "Invalid trigger token", envelope.Error)
	})

	t.Run("guard applies to reachability too", func(t *testing.T) {
		mux := newAdminMux(cfg, ingestTrigger, reachabilityTrigger)

		w := postJSON(mux, "/internal/reachability/run", "not-the-token", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestIngestTriggerRuns(t *testing.T) {
	cfg := &config.Config{IngestToken: testTriggerToken}

	t.Run("empty body runs incremental", func(t *testing.T) {
		ingestTrigger := &fakeIngestTrigger{result: &ingest.RunResult{
			Mode:       types.RunModeIncremental,
			RunID:      "run-123",
			StartedAt:  time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC),
			FinishedAt: time.Date(2025, 6, 2, 3, 1, 0, 0, time.UTC),
			Pages:      2,
			Fetched:    150,
			Upserted:   12,
			DurationMs: 60000,
		}}
		mux := newAdminMux(cfg, ingestTrigger, &fakeReachabilityTrigger{})

		w := postJSON(mux, "/internal/ingest/run", testTriggerToken, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, types.RunModeIncremental, ingestTrigger.gotMode)

		var body ingest.RunResult
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "run-123", body.RunID)
		assert.Equal(t, 12, body.Upserted)
		assert.Equal(t, int64(60000), body.DurationMs)
	})

	t.Run("full mode honored", func(t *testing.T) {
		ingestTrigger := &fakeIngestTrigger{result: &ingest.RunResult{Mode: types.RunModeFull}}
		mux := newAdminMux(cfg, ingestTrigger, &fakeReachabilityTrigger{})

		w := postJSON(mux, "/internal/ingest/run", testTriggerToken, `{"mode":"full"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, types.RunModeFull, ingestTrigger.gotMode)
	})

	t.Run("unknown mode rejected", func(t *testing.T) {
		ingestTrigger := &fakeIngestTrigger{result: &ingest.RunResult{}}
		mux := newAdminMux(cfg, ingestTrigger, &fakeReachabilityTrigger{})

		w := postJSON(mux, "/internal/ingest/run", testTriggerToken, `{"mode":"turbo"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("concurrent run conflicts", func(t *testing.T) {
		ingestTrigger := &fakeIngestTrigger{
			err: fmt.Errorf("%w: %s", jobs.ErrJobAlreadyRunning, "ingest-abc123"),
		}
		mux := newAdminMux(cfg, ingestTrigger, &fakeReachabilityTrigger{})

		w := postJSON(mux, "/internal/ingest/run", testTriggerToken, "")
		assert.Equal(t, http.StatusConflict, w.Code)

		var envelope errorEnvelope
		require.NoError(t, json.NewDecoder(w.Body).Decode(&envelope))
		assert.Contains(t, envelope.Error, "ingest-abc123")
	})

	t.Run("upstream failure is a bad gateway", func(t *testing.T) {
		ingestTrigger := &fakeIngestTrigger{
			err: fmt.Errorf("fetch page 1: %w", &upstream.UpstreamError{Status: 503, BodyExcerpt: "maintenance"}),
		}
		mux := newAdminMux(cfg, ingestTrigger, &fakeReachabilityTrigger{})

		w := postJSON(mux, "/internal/ingest/run", testTriggerToken, "")
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})

	t.Run("malformed upstream payload is a bad gateway", func(t *testing.T) {
		ingestTrigger := &fakeIngestTrigger{
			err: fmt.Errorf("fetch page 1: %w", &upstream.ShapeError{Detail: "servers is not an array"}),
		}
		mux := newAdminMux(cfg, ingestTrigger, &fakeReachabilityTrigger{})

		w := postJSON(mux, "/internal/ingest/run", testTriggerToken, "")
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})

	t.Run("other failures are internal", func(t *testing.T) {
		ingestTrigger := &fakeIngestTrigger{err: errors.New("store: connection reset")}
		mux := newAdminMux(cfg, ingestTrigger, &fakeReachabilityTrigger{})

		w := postJSON(mux, "/internal/ingest/run", testTriggerToken, "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestReachabilityTriggerRuns(t *testing.T) {
	cfg := &config.Config{IngestToken: testTriggerToken}

	t.Run("limit forwarded", func(t *testing.T) {
		reachabilityTrigger := &fakeReachabilityTrigger{result: &reach.RefreshResult{
			Limit:      120,
			Candidates: 200,
			Checked:    120,
			Reachable:  95,
			DurationMs: 4500,
		}}
		mux := newAdminMux(cfg, &fakeIngestTrigger{}, reachabilityTrigger)

		w := postJSON(mux, "/internal/reachability/run", testTriggerToken, `{"limit":120}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 120, reachabilityTrigger.gotLimit)

		var body reach.RefreshResult
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, 120, body.Checked)
		assert.Equal(t, 95, body.Reachable)
	})

	t.Run("empty body uses the default budget", func(t *testing.T) {
		reachabilityTrigger := &fakeReachabilityTrigger{result: &reach.RefreshResult{}}
		mux := newAdminMux(cfg, &fakeIngestTrigger{}, reachabilityTrigger)

		w := postJSON(mux, "/internal/reachability/run", testTriggerToken, "")
		require.Equal(t, http.StatusOK, w.Code)
		// A zero limit reaches the scheduler, which applies its default.
		assert.Equal(t, 0, reachabilityTrigger.gotLimit)
	})

	t.Run("limit above the cap rejected", func(t *testing.T) {
		reachabilityTrigger := &fakeReachabilityTrigger{result: &reach.RefreshResult{}}
		mux := newAdminMux(cfg, &fakeIngestTrigger{}, reachabilityTrigger)

		w := postJSON(mux, "/internal/reachability/run", testTriggerToken, `{"limit":501}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("concurrent refresh conflicts", func(t *testing.T) {
		reachabilityTrigger := &fakeReachabilityTrigger{
			err: fmt.Errorf("%w: %s", jobs.ErrJobAlreadyRunning, "reachability-def456"),
		}
		mux := newAdminMux(cfg, &fakeIngestTrigger{}, reachabilityTrigger)

		w := postJSON(mux, "/internal/reachability/run", testTriggerToken, "")
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}
