package cli

import (
	"github.com/ragmap-dev/ragmap/internal/ragmap"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the catalog API server",
	Long: `Starts the RAGMap HTTP API, and the MCP bridge when enabled. Configuration
comes from RAGMAP_* environment variables; see .env.example.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return ragmap.App(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
