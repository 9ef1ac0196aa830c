package ragmap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/robfig/cron/v3"

	"github.com/ragmap-dev/ragmap/internal/mcp/ragserver"
	"github.com/ragmap-dev/ragmap/internal/ragmap/api"
	"github.com/ragmap-dev/ragmap/internal/ragmap/config"
	"github.com/ragmap-dev/ragmap/internal/ragmap/database"
	"github.com/ragmap-dev/ragmap/internal/ragmap/embeddings"
	"github.com/ragmap-dev/ragmap/internal/ragmap/ingest"
	"github.com/ragmap-dev/ragmap/internal/ragmap/jobs"
	"github.com/ragmap-dev/ragmap/internal/ragmap/reach"
	"github.com/ragmap-dev/ragmap/internal/ragmap/service"
	"github.com/ragmap-dev/ragmap/internal/ragmap/telemetry"
	"github.com/ragmap-dev/ragmap/internal/ragmap/types"
	"github.com/ragmap-dev/ragmap/internal/ragmap/upstream"
)

// App wires the catalog together and runs it until SIGINT or SIGTERM.
func App(_ context.Context) error {
	cfg := config.NewConfig()

	// Create a context with timeout for the PostgreSQL connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Store selection: PostgreSQL when a database URL is configured, an
	// in-memory store otherwise.
	var store database.CatalogStore
	if cfg.DatabaseURL == "" {
		log.Println("RAGMAP_DATABASE_URL not set, using the in-memory catalog store (contents are lost on restart)")
		store = database.NewMemoryStore()
	} else {
		pg, err := database.NewPostgreSQL(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		store = pg
	}

	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("Error closing catalog store: %v", err)
		}
	}()

	var embeddingProvider embeddings.Provider
	if cfg.Embeddings.Enabled {
		client := &http.Client{Timeout: 30 * time.Second}
		if provider, err := embeddings.Factory(&cfg.Embeddings, client); err != nil {
			log.Printf("Warning: semantic embeddings disabled: %v", err)
		} else {
			embeddingProvider = provider
		}
	}

	policy, err := reach.ParsePolicy(cfg.ReachabilityPolicy)
	if err != nil {
		return fmt.Errorf("invalid reachability policy: %w", err)
	}

	upstreamClient := upstream.NewClient(cfg.UpstreamURL, &http.Client{Timeout: 30 * time.Second})
	coordinator := ingest.NewCoordinator(store, upstreamClient, embeddingProvider, cfg.Embeddings.Dimensions)
	scheduler := reach.NewScheduler(store, reach.NewProber(nil), policy)

	rag := service.NewRagService(store, cfg, embeddingProvider)

	log.Printf("Starting ragmap %s", cfg.Version)

	shutdownTelemetry, metrics, err := telemetry.InitMetrics(cfg.Version)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %v", err)
	}

	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			log.Printf("Failed to shutdown telemetry: %v", err)
		}
	}()

	runner := jobs.NewRunner(jobs.NewManager(), coordinator, scheduler, metrics)

	// Full ingestion runs finish with a reachability refresh over the fresh
	// snapshot. A refresh already in flight is skipped, not queued.
	coordinator.SetReachabilityRefresher(func(ctx context.Context) (int, error) {
		result, err := runner.RunReachability(ctx, 0)
		if err != nil {
			if errors.Is(err, jobs.ErrJobAlreadyRunning) {
				log.Printf("Skipping post-ingest reachability refresh: %v", err)
				return 0, nil
			}
			return 0, err
		}
		return result.Checked, nil
	})

	// Initialize HTTP server
	server := api.NewServer(cfg, rag, metrics, runner, runner)

	var mcpHTTPServer *http.Server
	if cfg.EnableMCP {
		mcpServer := ragserver.NewServer(rag, cfg.Version)

		handler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
			return mcpServer
		}, &mcp.StreamableHTTPOptions{})

		mcpHTTPServer = &http.Server{
			Addr:              cfg.MCPServerAddress,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			log.Printf("MCP HTTP server starting on %s", cfg.MCPServerAddress)
			if err := mcpHTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("Failed to start MCP server: %v", err)
				os.Exit(1)
			}
		}()
	}

	// Optional scheduled runs. Triggers share the runner with the HTTP
	// endpoints, so a cron tick overlapping a manual trigger loses quietly.
	var schedule *cron.Cron
	if cfg.IngestCron != "" || cfg.ReachabilityCron != "" {
		schedule = cron.New()

		if cfg.IngestCron != "" {
			if _, err := schedule.AddFunc(cfg.IngestCron, func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
				defer cancel()
				result, err := runner.RunIngest(ctx, types.RunModeIncremental)
				if err != nil {
					log.Printf("Scheduled ingest failed: %v", err)
					return
				}
				log.Printf("Scheduled ingest finished: upserted=%d hidden=%d duration=%dms",
					result.Upserted, result.Hidden, result.DurationMs)
			}); err != nil {
				return fmt.Errorf("invalid ingest cron expression: %w", err)
			}
		}

		if cfg.ReachabilityCron != "" {
			if _, err := schedule.AddFunc(cfg.ReachabilityCron, func() {
				ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
				defer cancel()
				result, err := runner.RunReachability(ctx, 0)
				if err != nil {
					log.Printf("Scheduled reachability refresh failed: %v", err)
					return
				}
				log.Printf("Scheduled reachability refresh finished: checked=%d reachable=%d",
					result.Checked, result.Reachable)
			}); err != nil {
				return fmt.Errorf("invalid reachability cron expression: %w", err)
			}
		}

		schedule.Start()
		defer schedule.Stop()
	}

	// Start server in a goroutine so it doesn't block signal handling
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Failed to start server: %v", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)

	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Create context with timeout for shutdown
	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()

	// Gracefully shutdown the server
	if err := server.Shutdown(sctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	if mcpHTTPServer != nil {
		if err := mcpHTTPServer.Shutdown(sctx); err != nil {
			log.Printf("MCP server forced to shutdown: %v", err)
		}
	}

	log.Println("Server exiting")
	return nil
}
