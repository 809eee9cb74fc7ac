package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/docpipe/internal/cli"
	"github.com/cloo-solutions/docpipe/internal/cli/client"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "docpipe",
		Short: "Docpipe CLI - document pipeline runs",
		Long: `Docpipe CLI provides commands to trigger and inspect pipeline runs.

Environment variables:
  DOCPIPE_API_URL   API base URL (default: http://localhost:8080)`,
		Version: version,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env)")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.TriggerCmd())
	rootCmd.AddCommand(client.StatusCmd())
	rootCmd.AddCommand(client.ListCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
