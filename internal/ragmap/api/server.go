package api

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/cors"

	v0 "github.com/ragmap-dev/ragmap/internal/ragmap/api/handlers/v0"
	"github.com/ragmap-dev/ragmap/internal/ragmap/api/router"
	"github.com/ragmap-dev/ragmap/internal/ragmap/config"
	"github.com/ragmap-dev/ragmap/internal/ragmap/service"
	"github.com/ragmap-dev/ragmap/internal/ragmap/telemetry"
)

// TrailingSlashMiddleware redirects requests with trailing slashes to their canonical form
func TrailingSlashMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only apply trailing slash logic to API routes
		isAPIRoute := strings.HasPrefix(r.URL.Path, "/v0.1/") ||
			strings.HasPrefix(r.URL.Path, "/rag/") ||
			strings.HasPrefix(r.URL.Path, "/internal/") ||
			r.URL.Path == "/health/" ||
			r.URL.Path == "/readyz/" ||
			r.URL.Path == "/metrics/" ||
			strings.HasPrefix(r.URL.Path, "/docs")

		// Only redirect if it's an API route and ends with a "/"
		if isAPIRoute && r.URL.Path != "/" && strings.HasSuffix(r.URL.Path, "/") {
			// Create a copy of the URL and remove the trailing slash
			newURL := *r.URL
			newURL.Path = strings.TrimSuffix(r.URL.Path, "/")
			newURL.RawPath = ""

			// Use 308 Permanent Redirect to preserve the request method
			http.Redirect(w, r, newURL.String(), http.StatusPermanentRedirect)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// WellKnownRedirectMiddleware redirects agent descriptor lookups issued against
// arbitrary subpaths to the canonical root documents. Crawlers commonly probe
// paths like /some/prefix/.well-known/agent.json; the descriptor only lives at
// the root.
func WellKnownRedirectMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, doc := range []string{v0.WellKnownAgentPath, v0.WellKnownAgentCardPath} {
			if r.URL.Path != doc && strings.HasSuffix(r.URL.Path, doc) {
				target := doc
				if r.URL.RawQuery != "" {
					target += "?" + r.URL.RawQuery
				}
				http.Redirect(w, r, target, http.StatusMovedPermanently)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// serverNameRoutes lists the route shapes that carry a server name segment.
// Names are reverse-DNS identifiers like "io.github.acme/vector-server" and
// may contain literal slashes, which would otherwise split across ServeMux
// wildcard segments.
var serverNameRoutes = []struct {
	prefix string
	suffix string
}{
	{prefix: "/v0.1/servers/", suffix: "/versions"},
	{prefix: "/rag/servers/", suffix: "/explain"},
}

// ServerNameMiddleware percent-encodes literal slashes inside server name path
// segments so that {serverName} wildcards match them as a single segment.
// Handlers unescape the value before use.
func ServerNameMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		for _, route := range serverNameRoutes {
			if !strings.HasPrefix(path, route.prefix) {
				continue
			}
			rest := strings.TrimPrefix(path, route.prefix)

			var name, tail string
			switch {
			case strings.HasSuffix(rest, route.suffix):
				name = strings.TrimSuffix(rest, route.suffix)
				tail = route.suffix
			default:
				// A trailing segment may follow the suffix, e.g.
				// /v0.1/servers/{name}/versions/{version}.
				marker := route.suffix + "/"
				idx := strings.LastIndex(rest, marker)
				if idx < 0 {
					continue
				}
				name = rest[:idx]
				version := rest[idx+len(marker):]
				if strings.Contains(version, "/") {
					continue
				}
				tail = route.suffix + "/" + url.PathEscape(version)
			}

			if name == "" || !strings.Contains(name, "/") {
				continue
			}

			// The decoded path is unchanged; only the escaped form needs
			// the slashes inside the name encoded.
			newURL := *r.URL
			newURL.RawPath = route.prefix + url.PathEscape(name) + tail
			r2 := r.Clone(r.Context())
			r2.URL = &newURL
			next.ServeHTTP(w, r2)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Server represents the HTTP server
type Server struct {
	config  *config.Config
	rag     service.RagService
	humaAPI huma.API
	mux     *http.ServeMux
	server  *http.Server
}

// HumaAPI returns the Huma API instance, allowing registration of new routes
func (s *Server) HumaAPI() huma.API {
	return s.humaAPI
}

// Mux returns the HTTP ServeMux, allowing registration of custom HTTP handlers
func (s *Server) Mux() *http.ServeMux {
	return s.mux
}

// Handler returns the root handler with the full middleware stack applied
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, rag service.RagService, metrics *telemetry.Metrics, ingest v0.IngestTrigger, reachability v0.ReachabilityTrigger) *Server {
	// Create HTTP mux and Huma API
	mux := http.NewServeMux()

	api := router.NewHumaAPI(cfg, router.RouteDependencies{
		Rag:          rag,
		Ingest:       ingest,
		Reachability: reachability,
	}, mux, metrics)

	// Configure CORS with permissive settings for public API
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Type", "Content-Length"},
		AllowCredentials: false, // Must be false when AllowedOrigins is "*"
		MaxAge:           86400, // 24 hours
	})

	// Wrap the mux with middleware stack
	// Order: TrailingSlash -> WellKnownRedirect -> ServerName -> CORS -> Mux
	handler := TrailingSlashMiddleware(
		WellKnownRedirectMiddleware(
			ServerNameMiddleware(
				corsHandler.Handler(mux),
			),
		),
	)

	server := &Server{
		config:  cfg,
		rag:     rag,
		humaAPI: api,
		mux:     mux,
		server: &http.Server{
			Addr:              cfg.ServerAddress,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	return server
}

// Start begins listening for incoming HTTP requests
func (s *Server) Start() error {
	log.Printf("HTTP server starting on %s", s.config.ServerAddress)
	log.Printf("API documentation at http://localhost%s/docs", s.config.ServerAddress)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
