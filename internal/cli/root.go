package cli

import (
	"os"
	"strings"

	"github.com/ragmap-dev/ragmap/internal/client"
	"github.com/spf13/cobra"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

var (
	apiURL   string
	apiToken string
)

var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "RAGMap catalog CLI",
	Long: `ragctl is a CLI tool for browsing a RAGMap catalog, running ranked
searches, and triggering ingestion or reachability runs.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		APIClient = client.NewClient(normalizeBaseURL(apiURL), apiToken)
		return nil
	},
}

// APIClient is the shared API client used by CLI commands
var APIClient *client.Client

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Catalog API base URL (overrides RAGCTL_API_BASE_URL; default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", "", "Trigger token for protected endpoints (overrides RAGCTL_INGEST_TOKEN)")
}

// normalizeBaseURL tolerates host:port targets without a scheme.
func normalizeBaseURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return trimmed
	}
	return "http://" + trimmed
}
