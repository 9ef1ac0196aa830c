package config

import (
	"log"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the application configuration
// See .env.example for more documentation
type Config struct {
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:":8080"`
	Version       string `env:"VERSION" envDefault:"dev"`

	// Catalog storage. An empty DatabaseURL selects the in-memory store,
	// which is volatile and intended for development and tests only.
	DatabaseURL string `env:"DATABASE_URL" envDefault:""`

	// Upstream registry the catalog is pulled from.
	UpstreamURL string `env:"UPSTREAM_URL" envDefault:"https://registry.modelcontextprotocol.io"`

	// Shared token guarding the /internal trigger endpoints. Empty means
	// the triggers are unusable (the handlers answer 500).
	IngestToken string `env:"INGEST_TOKEN" envDefault:""`

	// Reachability probing.
	ReachabilityPolicy string `env:"REACHABILITY_POLICY" envDefault:"strict"`

	// Optional in-process triggers. Empty disables them; deployments that
	// drive the /internal endpoints from an external scheduler leave these
	// unset.
	IngestCron       string `env:"INGEST_CRON" envDefault:""`
	ReachabilityCron string `env:"REACHABILITY_CRON" envDefault:""`

	// MCP bridge.
	EnableMCP        bool   `env:"ENABLE_MCP" envDefault:"true"`
	MCPServerAddress string `env:"MCP_SERVER_ADDRESS" envDefault:":8090"`

	// Embeddings / Semantic Search
	Embeddings EmbeddingsConfig
}

// EmbeddingsConfig captures configuration needed to generate embeddings
type EmbeddingsConfig struct {
	Enabled       bool   `env:"EMBEDDINGS_ENABLED" envDefault:"false"`
	Provider      string `env:"EMBEDDINGS_PROVIDER" envDefault:"openai"`
	Model         string `env:"EMBEDDINGS_MODEL" envDefault:"text-embedding-3-small"`
	Dimensions    int    `env:"EMBEDDINGS_DIMENSIONS" envDefault:"1536"`
	OpenAIAPIKey  string `env:"EMBEDDINGS_OPENAI_API_KEY" envDefault:""`
	OpenAIBaseURL string `env:"EMBEDDINGS_OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Printf("No .env file found or error loading .env file: %v", err)
	}
	var cfg Config
	err = env.ParseWithOptions(&cfg, env.Options{
		Prefix: "RAGMAP_",
	})
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return &cfg
}
