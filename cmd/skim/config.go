package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/skim/internal/api"
	"github.com/jackzampolin/skim/internal/config"
	"github.com/jackzampolin/skim/internal/home"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Local configuration commands",
}

var (
	configInitPath  string
	configInitForce bool
)

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long: `Write the default configuration to ~/.skim/config.yaml, or to --path.

Existing files are left alone unless --force is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		path := configInitPath
		if path == "" {
			if err := h.EnsureExists(); err != nil {
				return err
			}
			path = h.ConfigPath()
		}

		if _, err := os.Stat(path); err == nil && !configInitForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective local configuration with secrets redacted",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		cfgMgr, err := config.NewManager(cfgFile, h.Path())
		if err != nil {
			return err
		}
		return api.Output(cfgMgr.Get().Redacted())
	},
}

func init() {
	configInitCmd.Flags().StringVar(&configInitPath, "path", "", "Write to this path instead of the home directory")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
