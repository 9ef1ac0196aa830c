package cli

import (
	"fmt"
	"log"
	"strings"

	"github.com/ragmap-dev/ragmap/internal/client"
	"github.com/ragmap-dev/ragmap/pkg/printer"
	"github.com/spf13/cobra"
)

var explainOutput string

var explainCmd = &cobra.Command{
	Use:   "explain <server-name>",
	Short: "Show how a server earned its RAG score",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name := args[0]

		explanation, err := APIClient.Explain(name)
		if err != nil {
			if client.IsNotFound(err) {
				log.Fatalf("Server %q not found", name)
			}
			log.Fatalf("Failed to explain server: %v", err)
		}

		if explainOutput == "json" {
			if err := printJSON(explanation); err != nil {
				log.Fatalf("Failed to output JSON: %v", err)
			}
			return
		}

		fmt.Printf("%s %s\n", explanation.Name, explanation.Version)
		fmt.Printf("RAG score: %d\n", explanation.RagScore)
		if len(explanation.Categories) > 0 {
			fmt.Printf("Categories: %s\n", strings.Join(explanation.Categories, ", "))
		}
		if len(explanation.Reasons) == 0 {
			printer.PrintInfo("No scoring signals recorded")
			return
		}
		fmt.Println("Signals:")
		for _, reason := range explanation.Reasons {
			fmt.Printf("  - %s\n", reason)
		}
	},
}

func init() {
	rootCmd.AddCommand(explainCmd)
	explainCmd.Flags().StringVarP(&explainOutput, "output", "o", "text", "Output format (text, json)")
}
