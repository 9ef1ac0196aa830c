package cli

import (
	"log"

	"github.com/ragmap-dev/ragmap/internal/client"
	"github.com/ragmap-dev/ragmap/pkg/printer"
	"github.com/spf13/cobra"
)

var (
	topLimit     int
	topMinScore  int
	topKind      string
	topReachable string
	topOutput    string
)

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Show the curated shortlist",
	Long: `Prints the quality-ordered shortlist. By default only retrievers with a
RAG score of at least 10 appear; pass --min-score 0 or --kind other to widen.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := validateBoolFlag("reachable", topReachable); err != nil {
			log.Fatalf("%v", err)
		}

		opts := client.TopOptions{
			Limit:      topLimit,
			ServerKind: topKind,
			Reachable:  topReachable,
		}
		if cmd.Flags().Changed("min-score") {
			opts.MinScore = &topMinScore
		}

		body, err := APIClient.Top(opts)
		if err != nil {
			log.Fatalf("Failed to fetch shortlist: %v", err)
		}

		switch topOutput {
		case "json":
			if err := printJSON(body); err != nil {
				log.Fatalf("Failed to output JSON: %v", err)
			}
		default:
			if len(body.Results) == 0 {
				printer.PrintInfo("No servers met the shortlist bar")
				return
			}
			if err := renderRankedTable(body.Results, topOutput == "wide"); err != nil {
				log.Fatalf("Failed to render table: %v", err)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(topCmd)
	topCmd.Flags().IntVar(&topLimit, "limit", 0, "Maximum results (server default 20, max 50)")
	topCmd.Flags().IntVar(&topMinScore, "min-score", 10, "Minimum RAG score, 0 to widen")
	topCmd.Flags().StringVar(&topKind, "kind", "", "Server kind filter (server default retriever)")
	topCmd.Flags().StringVar(&topReachable, "reachable", "", "Filter by probed reachability (true or false)")
	topCmd.Flags().StringVarP(&topOutput, "output", "o", "table", "Output format (table, wide, json)")
}
