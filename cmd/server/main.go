package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "docchat",
	Short: "Documentation question answering service",
	Long: `docchat ingests Markdown, OpenAPI and PDF documentation into a
pgvector index and answers questions grounded in the retrieved sections.
Without a subcommand it serves the HTTP API.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
