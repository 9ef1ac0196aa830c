package cli

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ragmap-dev/ragmap/pkg/printer"
	"github.com/spf13/cobra"
)

var statsOutput string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show catalog statistics",
	Run: func(cmd *cobra.Command, args []string) {
		snapshot, err := APIClient.Stats()
		if err != nil {
			log.Fatalf("Failed to fetch stats: %v", err)
		}

		if statsOutput == "json" {
			if err := printJSON(snapshot); err != nil {
				log.Fatalf("Failed to output JSON: %v", err)
			}
			return
		}

		table := printer.NewTablePrinter(os.Stdout, printer.WithNoHeaders())
		table.AddRow("Latest servers", snapshot.TotalLatestServers)
		table.AddRow("RAG score >= 1", snapshot.CountRagScoreGte1)
		table.AddRow("RAG score >= 25", snapshot.CountRagScoreGte25)
		table.AddRow("Reachability candidates", snapshot.ReachabilityCandidates)
		table.AddRow("Reachability known", snapshot.ReachabilityKnown)
		table.AddRow("Reachable", snapshot.ReachabilityTrue)
		table.AddRow("Reachability unknown", snapshot.ReachabilityUnknown)
		table.AddRow("Last ingest", formatRunTime(snapshot.LastSuccessfulIngestAt))
		table.AddRow("Last reachability run", formatRunTime(snapshot.LastReachabilityRunAt))
		if err := table.Render(); err != nil {
			log.Fatalf("Failed to render table: %v", err)
		}
	},
}

func formatRunTime(t *time.Time) string {
	if t == nil {
		return "<never>"
	}
	return fmt.Sprintf("%s (%s ago)", printer.FormatTimestamp(*t), printer.FormatAge(*t))
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringVarP(&statsOutput, "output", "o", "table", "Output format (table, json)")
}
