package cli

import (
	"fmt"
	"log"

	"github.com/ragmap-dev/ragmap/internal/ragmap/types"
	"github.com/ragmap-dev/ragmap/pkg/printer"
	"github.com/spf13/cobra"
)

var (
	listLimit  int
	listCursor string
	listAll    bool
	listOutput string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List latest catalog servers",
	Long:  `Lists the latest version of every visible server in the curated catalog.`,
	Run: func(cmd *cobra.Command, args []string) {
		entries, next, err := fetchServerPages()
		if err != nil {
			log.Fatalf("Failed to list servers: %v", err)
		}

		switch listOutput {
		case "json":
			if err := printJSON(entries); err != nil {
				log.Fatalf("Failed to output JSON: %v", err)
			}
		default:
			if len(entries) == 0 {
				printer.PrintInfo("No servers in the catalog")
				return
			}
			if err := renderEntryTable(entries, listOutput == "wide"); err != nil {
				log.Fatalf("Failed to render table: %v", err)
			}
			if next != "" {
				printer.PrintInfo(fmt.Sprintf("Next cursor: %s", next))
			}
		}
	},
}

// fetchServerPages fetches one page, or every page when --all is set.
func fetchServerPages() ([]types.CatalogEntry, string, error) {
	var entries []types.CatalogEntry
	cursor := listCursor
	for {
		page, err := APIClient.ListServers(cursor, listLimit)
		if err != nil {
			return nil, "", err
		}
		entries = append(entries, page.Servers...)
		cursor = page.Metadata.NextCursor
		if !listAll || cursor == "" {
			return entries, cursor, nil
		}
	}
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "Page size (server default 100, max 200)")
	listCmd.Flags().StringVar(&listCursor, "cursor", "", "Opaque pagination cursor from a previous page")
	listCmd.Flags().BoolVarP(&listAll, "all", "a", false, "Follow pagination cursors and list every server")
	listCmd.Flags().StringVarP(&listOutput, "output", "o", "table", "Output format (table, wide, json)")
}
