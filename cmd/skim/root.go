package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/skim/internal/api"
	"github.com/jackzampolin/skim/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "skim",
	Short: "Book summarizer with chapter summaries at four depths",
	Long: `Skim splits uploaded books into chapters and summarizes each one
with an LLM, at four levels of detail.

The server includes:
  - PDF, EPUB and MOBI ingestion with chapter detection
  - A rate-limited queue that summarizes every chapter in the background
  - On-demand summaries at depths 1 through 4, cached on disk
  - A history of every summarizer call`,
	Version:      version.GitRelease,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.skim/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "skim home directory (default: ~/.skim)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
