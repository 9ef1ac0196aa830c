package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/ragmap-dev/ragmap/internal/ragmap/types"
	"github.com/ragmap-dev/ragmap/pkg/printer"
	"github.com/spf13/cobra"
)

var (
	ingestMode   string
	ingestOutput string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Trigger an ingestion run",
	Long: `Triggers an upstream ingestion run on the connected catalog API. The
endpoint is protected; pass the trigger token via --token or
RAGCTL_INGEST_TOKEN.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode := strings.ToLower(strings.TrimSpace(ingestMode))
		switch types.RunMode(mode) {
		case types.RunModeFull, types.RunModeIncremental:
		default:
			return fmt.Errorf("invalid mode %q (expected full or incremental)", ingestMode)
		}

		stop := startSpinner("Running ingestion")
		result, err := APIClient.RunIngest(mode)
		stop()
		if err != nil {
			return fmt.Errorf("ingestion failed: %w", err)
		}

		if ingestOutput == "json" {
			return printJSON(result)
		}

		printer.PrintSuccess(fmt.Sprintf("Ingestion run %s (%s) finished in %dms", result.RunID, result.Mode, result.DurationMs))
		table := printer.NewTablePrinter(os.Stdout, printer.WithNoHeaders())
		table.AddRow("Pages fetched", result.Pages)
		table.AddRow("Servers fetched", result.Fetched)
		table.AddRow("Upserted", result.Upserted)
		table.AddRow("Skipped", result.Skipped)
		table.AddRow("Hidden", result.Hidden)
		if result.EmbeddingsGenerated > 0 || result.EmbeddingsReused > 0 || result.EmbeddingsFailed > 0 {
			table.AddRow("Embeddings generated", result.EmbeddingsGenerated)
			table.AddRow("Embeddings reused", result.EmbeddingsReused)
			table.AddRow("Embeddings failed", result.EmbeddingsFailed)
		}
		if result.ReachabilityChecked > 0 {
			table.AddRow("Reachability checked", result.ReachabilityChecked)
		}
		return table.Render()
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVar(&ingestMode, "mode", string(types.RunModeIncremental), "Run mode (full or incremental)")
	ingestCmd.Flags().StringVarP(&ingestOutput, "output", "o", "text", "Output format (text, json)")
}
