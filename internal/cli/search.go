package cli

import (
	"fmt"
	"log"

	"github.com/ragmap-dev/ragmap/internal/client"
	"github.com/ragmap-dev/ragmap/pkg/printer"
	"github.com/spf13/cobra"
)

var (
	searchLimit      int
	searchMinScore   int
	searchKind       string
	searchCategories string
	searchTransport  string
	searchReachable  string
	searchHasRemote  string
	searchOutput     string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the curated catalog",
	Long: `Runs a ranked search over the curated catalog. Keyword matches come first,
semantic matches fill the remainder when embeddings are enabled. Without a
query the server falls back to its default.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := validateBoolFlag("reachable", searchReachable); err != nil {
			log.Fatalf("%v", err)
		}
		if err := validateBoolFlag("has-remote", searchHasRemote); err != nil {
			log.Fatalf("%v", err)
		}

		query := ""
		if len(args) == 1 {
			query = args[0]
		}

		body, err := APIClient.Search(query, client.SearchOptions{
			Limit:      searchLimit,
			MinScore:   searchMinScore,
			ServerKind: searchKind,
			Categories: searchCategories,
			Transport:  searchTransport,
			Reachable:  searchReachable,
			HasRemote:  searchHasRemote,
		})
		if err != nil {
			log.Fatalf("Search failed: %v", err)
		}

		switch searchOutput {
		case "json":
			if err := printJSON(body); err != nil {
				log.Fatalf("Failed to output JSON: %v", err)
			}
		default:
			if len(body.Results) == 0 {
				printer.PrintInfo(fmt.Sprintf("No servers matched %q", body.Query))
				return
			}
			if err := renderRankedTable(body.Results, searchOutput == "wide"); err != nil {
				log.Fatalf("Failed to render table: %v", err)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "Maximum results (server default 20, max 50)")
	searchCmd.Flags().IntVar(&searchMinScore, "min-score", 0, "Minimum RAG score (0-100)")
	searchCmd.Flags().StringVar(&searchKind, "kind", "", "Server kind filter (retriever, evaluator, indexer, router, other)")
	searchCmd.Flags().StringVar(&searchCategories, "categories", "", "Comma-separated category filter")
	searchCmd.Flags().StringVar(&searchTransport, "transport", "", "Transport filter (stdio, streamable-http, sse)")
	searchCmd.Flags().StringVar(&searchReachable, "reachable", "", "Filter by probed reachability (true or false)")
	searchCmd.Flags().StringVar(&searchHasRemote, "has-remote", "", "Filter by remote endpoint presence (true or false)")
	searchCmd.Flags().StringVarP(&searchOutput, "output", "o", "table", "Output format (table, wide, json)")
}
