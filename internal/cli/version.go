package cli

import (
	"fmt"

	"github.com/ragmap-dev/ragmap/pkg/printer"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print client and server versions",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ragctl %s\n", Version)

		health, err := APIClient.Health()
		if err != nil {
			printer.PrintWarning(fmt.Sprintf("API not reachable: %v", err))
			return
		}
		fmt.Printf("server %s (storage %s, embeddings %t)\n", health.Version, health.StorageKind, health.Embeddings)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
