package cli

import (
	"log"

	"github.com/ragmap-dev/ragmap/internal/client"
	"github.com/spf13/cobra"
)

var (
	getVersion  string
	getVersions bool
)

var getCmd = &cobra.Command{
	Use:   "get <server-name>",
	Short: "Show one catalog server",
	Long: `Prints the catalog entry for a server as JSON, latest version by default.
Use --versions to list every stored version instead.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name := args[0]

		if getVersions {
			page, err := APIClient.GetServerVersions(name)
			if err != nil {
				if client.IsNotFound(err) {
					log.Fatalf("Server %q not found", name)
				}
				log.Fatalf("Failed to list versions: %v", err)
			}
			if err := renderEntryTable(page.Servers, true); err != nil {
				log.Fatalf("Failed to render table: %v", err)
			}
			return
		}

		entry, err := APIClient.GetServer(name, getVersion)
		if err != nil {
			if client.IsNotFound(err) {
				log.Fatalf("Server %q not found", name)
			}
			log.Fatalf("Failed to get server: %v", err)
		}
		if err := printJSON(entry); err != nil {
			log.Fatalf("Failed to output JSON: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().StringVar(&getVersion, "version", "", "Specific version (default latest)")
	getCmd.Flags().BoolVar(&getVersions, "versions", false, "List all stored versions of the server")
}
