package cli

import (
	"log"

	"github.com/ragmap-dev/ragmap/pkg/printer"
	"github.com/spf13/cobra"
)

var categoriesOutput string

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List enrichment categories in use",
	Run: func(cmd *cobra.Command, args []string) {
		body, err := APIClient.Categories()
		if err != nil {
			log.Fatalf("Failed to list categories: %v", err)
		}

		if categoriesOutput == "json" {
			if err := printJSON(body); err != nil {
				log.Fatalf("Failed to output JSON: %v", err)
			}
			return
		}
		if len(body.Categories) == 0 {
			printer.PrintInfo("No categories assigned yet")
			return
		}
		for _, category := range body.Categories {
			printer.PrintInfo(category)
		}
	},
}

func init() {
	rootCmd.AddCommand(categoriesCmd)
	categoriesCmd.Flags().StringVarP(&categoriesOutput, "output", "o", "table", "Output format (table, json)")
}
