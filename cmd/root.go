// Package cmd implements the ragstore command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ragstore",
	Short: "ragstore - pgvector embedding store for RAG pipelines",
	Long: `ragstore manages a PostgreSQL + pgvector embedding store and exposes it
over a JSON HTTP API: insert embedding records, run cosine similarity
search, and maintain the store.

Run 'ragstore serve' to start the API server, or 'ragstore migrate' to
apply schema migrations without starting it.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
