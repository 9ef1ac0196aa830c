package v0_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v0 "github.com/ragmap-dev/ragmap/internal/ragmap/api/handlers/v0"
	"github.com/ragmap-dev/ragmap/internal/ragmap/database"
	ragtesting "github.com/ragmap-dev/ragmap/internal/ragmap/service/testing"
	"github.com/ragmap-dev/ragmap/internal/ragmap/types"
)

func newServersMux(fake *ragtesting.FakeRagService) *http.ServeMux {
	mux := http.NewServeMux()
	api := humago.New(mux, huma.DefaultConfig("Test API", "0.0.1"))
	v0.RegisterServersEndpoints(api, "/v0.1", fake)
	return mux
}

func catalogFixture(name, version string, ragScore int) types.CatalogEntry {
	return types.CatalogEntry{
		Server: types.ServerRecord{
			Name:        name,
			Version:     version,
			Description: "Test server",
		},
		Official: json.RawMessage(`{"status":"active","isLatest":true,"updatedAt":"2025-06-01T12:00:00Z"}`),
		RagMap: types.Enrichment{
			Categories: []string{"documents"},
			RagScore:   ragScore,
			ServerKind: types.ServerKindRetriever,
		},
	}
}

func TestListLatestServersEndpoint(t *testing.T) {
	fake := ragtesting.NewFakeRagService()
	fake.Servers = []types.CatalogEntry{
		catalogFixture("com.example/server-alpha", "1.0.0", 30),
		catalogFixture("com.example/server-beta", "2.0.0", 0),
	}

	mux := newServersMux(fake)

	t.Run("list all servers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v0.1/servers", nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var body v0.ServerListBody
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		require.Len(t, body.Servers, 2)
		assert.Equal(t, 2, body.Metadata.Count)
		assert.Empty(t, body.Metadata.NextCursor)

		assert.Equal(t, "com.example/server-alpha", body.Servers[0].Server.Name)
		assert.Equal(t, 30, body.Servers[0].RagMap.RagScore)
		// The official metadata blob round-trips untouched.
		assert.JSONEq(t,
			`{"status":"active","isLatest":true,"updatedAt":"2025-06-01T12:00:00Z"}`,
			string(body.Servers[0].Official),
		)
	})

	t.Run("filter values forwarded to the store", func(t *testing.T) {
		var gotFilter database.ListLatestFilter
		fake.ListServersFn = func(ctx context.Context, filter database.ListLatestFilter) ([]types.CatalogEntry, string, error) {
			gotFilter = filter
			return nil, "", nil
		}
		defer func() { fake.ListServersFn = nil }()

		target := "/v0.1/servers?cursor=com.example%2Fserver-alpha&limit=50&updated_since=2025-06-01T00:00:00Z"
		req := httptest.NewRequest(http.MethodGet, target, nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "com.example/server-alpha", gotFilter.Cursor)
		assert.Equal(t, 50, gotFilter.Limit)
		require.NotNil(t, gotFilter.UpdatedSince)
		assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), gotFilter.UpdatedSince.UTC())

		var body v0.ServerListBody
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.NotNil(t, body.Servers)
		assert.Equal(t, 0, body.Metadata.Count)
	})

	t.Run("invalid updated_since", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v0.1/servers?updated_since=yesterday", nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var envelope errorEnvelope
		require.NoError(t, json.NewDecoder(w.Body).Decode(&envelope))
		assert.Contains(t, envelope.Error, "updated_since")
	})

	limitCases := []struct {
		name   string
		target string
	}{
		{name: "limit zero", target: "/v0.1/servers?limit=0"},
		{name: "limit above maximum", target: "/v0.1/servers?limit=201"},
		{name: "limit not a number", target: "/v0.1/servers?limit=abc"},
	}

	for _, tt := range limitCases {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)

			var envelope errorEnvelope
			require.NoError(t, json.NewDecoder(w.Body).Decode(&envelope))
			assert.Equal(t, "Invalid request", envelope.Error)
		})
	}
}

func TestServerVersionsEndpoint(t *testing.T) {
	fake := ragtesting.NewFakeRagService()
	fake.Servers = []types.CatalogEntry{
		catalogFixture("com.example/server-beta", "2.0.0", 10),
		catalogFixture("com.example/server-beta", "1.9.0", 10),
		catalogFixture("com.example/server-alpha", "1.0.0", 30),
	}

	mux := newServersMux(fake)

	t.Run("all versions for a server", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v0.1/servers/com.example%2Fserver-beta/versions", nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var body v0.ServerListBody
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		require.Len(t, body.Servers, 2)
		assert.Equal(t, 2, body.Metadata.Count)
		assert.Equal(t, "2.0.0", body.Servers[0].Server.Version)
		assert.Equal(t, "1.9.0", body.Servers[1].Server.Version)
	})

	t.Run("unknown server", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v0.1/servers/com.example%2Fmissing/versions", nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)

		var envelope errorEnvelope
		require.NoError(t, json.NewDecoder(w.Body).Decode(&envelope))
		assert.Equal(t, "Server not found", envelope.Error)
	})
}

func TestServerVersionDetailEndpoint(t *testing.T) {
	fake := ragtesting.NewFakeRagService()
	fake.Servers = []types.CatalogEntry{
		catalogFixture("com.example/server-beta", "2.0.0", 10),
		catalogFixture("com.example/server-beta", "1.9.0", 10),
	}

	mux := newServersMux(fake)

	t.Run("specific version", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v0.1/servers/com.example%2Fserver-beta/versions/1.9.0", nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var body types.CatalogEntry
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "com.example/server-beta", body.Server.Name)
		assert.Equal(t, "1.9.0", body.Server.Version)
	})

	t.Run("latest alias", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v0.1/servers/com.example%2Fserver-beta/versions/latest", nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var body types.CatalogEntry
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "2.0.0", body.Server.Version)
	})

	t.Run("unknown version", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v0.1/servers/com.example%2Fserver-beta/versions/9.9.9", nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
