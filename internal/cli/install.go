package cli

import (
	"fmt"
	"log"
	"strings"

	"github.com/ragmap-dev/ragmap/internal/client"
	"github.com/ragmap-dev/ragmap/internal/ragmap/install"
	"github.com/spf13/cobra"
)

var installOutput string

var installCmd = &cobra.Command{
	Use:   "install <server-name>",
	Short: "Print install configuration for a server",
	Long: `Prints ready-to-paste client configuration for a server's latest version.
Secret header values are replaced with placeholders; fill them in locally.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name := args[0]

		projection, err := APIClient.Install(name)
		if err != nil {
			if client.IsNotFound(err) {
				log.Fatalf("Server %q not found", name)
			}
			log.Fatalf("Failed to build install configuration: %v", err)
		}

		if installOutput == "json" {
			if err := printJSON(projection); err != nil {
				log.Fatalf("Failed to output JSON: %v", err)
			}
			return
		}
		printInstall(projection)
	},
}

func printInstall(p *install.Projection) {
	fmt.Printf("%s %s (transport: %s)\n", p.Name, p.Version, p.Transport.Summary)

	if p.Stdio != nil {
		fmt.Println("\nLocal launch:")
		command := p.Stdio.Command
		if len(p.Stdio.Args) > 0 {
			command += " " + strings.Join(p.Stdio.Args, " ")
		}
		fmt.Printf("  %s\n", command)
	}

	if p.Remote != nil {
		fmt.Println("\nRemote endpoint:")
		fmt.Printf("  %s\n", p.Remote.URL)
		for _, h := range p.Remote.Headers {
			var attrs []string
			if h.Required {
				attrs = append(attrs, "required")
			}
			if h.IsSecret {
				attrs = append(attrs, "secret")
			}
			suffix := ""
			if len(attrs) > 0 {
				suffix = " (" + strings.Join(attrs, ", ") + ")"
			}
			fmt.Printf("  header %s%s\n", h.Name, suffix)
		}
	}

	if p.Configs.Remote != "" {
		fmt.Println("\nHost config (remote):")
		fmt.Println(indent(p.Configs.Remote, "  "))
	}
	if p.Configs.Stdio != "" {
		fmt.Println("\nHost config (stdio):")
		fmt.Println(indent(p.Configs.Stdio, "  "))
	}
}

func init() {
	rootCmd.AddCommand(installCmd)
	installCmd.Flags().StringVarP(&installOutput, "output", "o", "text", "Output format (text, json)")
}
