package cli

import (
	"fmt"

	"github.com/ragmap-dev/ragmap/pkg/printer"
	"github.com/spf13/cobra"
)

var (
	reachabilityLimit  int
	reachabilityOutput string
)

var reachabilityCmd = &cobra.Command{
	Use:   "reachability",
	Short: "Trigger a reachability refresh",
	Long: `Probes the stalest remote endpoints in the catalog and records the results.
The endpoint is protected; pass the trigger token via --token or
RAGCTL_INGEST_TOKEN.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if reachabilityLimit < 0 {
			return fmt.Errorf("invalid limit %d", reachabilityLimit)
		}

		stop := startSpinner("Probing endpoints")
		result, err := APIClient.RunReachability(reachabilityLimit)
		stop()
		if err != nil {
			return fmt.Errorf("reachability refresh failed: %w", err)
		}

		if reachabilityOutput == "json" {
			return printJSON(result)
		}

		printer.PrintSuccess(fmt.Sprintf("Checked %d of %d candidates in %dms, %d reachable",
			result.Checked, result.Candidates, result.DurationMs, result.Reachable))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reachabilityCmd)
	reachabilityCmd.Flags().IntVar(&reachabilityLimit, "limit", 0, "Candidates to probe (server default 50, max 500)")
	reachabilityCmd.Flags().StringVarP(&reachabilityOutput, "output", "o", "text", "Output format (text, json)")
}
