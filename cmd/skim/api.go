package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/skim/internal/api"
	"github.com/jackzampolin/skim/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running Skim server via HTTP.

These commands require a running server (skim serve).
Use --server to specify a custom server URL.

Examples:
  skim api health                          # Check server health
  skim api upload ./book.epub              # Upload a book
  skim api books status <id> --wait        # Wait for every chapter
  skim api summary <id> --depth 2          # Read depth-2 summaries
  skim api llmcalls list --book-id <id>    # Summarizer call history`,
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)

	reg := api.NewRegistry()
	for _, ep := range endpoints.All() {
		reg.Register(ep)
	}
	reg.BuildCommands(apiCmd, getServerURL, endpoints.Groups)

	rootCmd.AddCommand(apiCmd)
}
