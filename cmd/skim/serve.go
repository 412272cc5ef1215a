package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/skim/internal/config"
	"github.com/jackzampolin/skim/internal/home"
	"github.com/jackzampolin/skim/internal/server"
)

var (
	serveHost string
	servePort string
	logLevel  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Skim server",
	Long: `Start the Skim HTTP server.

This starts the HTTP API, the background summarization queue and the
LLM call history database. Books live under the home directory unless
books_dir is set in the config. Config file changes are picked up while
the server runs.

The server provides:
  - /health - Basic server health check
  - /ready  - Readiness check (queue and call history)
  - /status - Providers, queue and rate limiter state

Examples:
  skim serve                    # Start on default port 8080
  skim serve --port 3000        # Start on custom port
  skim serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		level, err := parseLevel(logLevel)
		if err != nil {
			return err
		}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		}))

		// Get home directory
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		cfgMgr, err := config.NewManager(cfgFile, h.Path())
		if err != nil {
			return err
		}
		cfgMgr.SetLogger(logger)
		if f := cfgMgr.ConfigFile(); f != "" {
			logger.Info("loaded config", "file", f)
			cfgMgr.WatchConfig()
		} else {
			logger.Info("no config file found, using defaults", "hint", "skim config init")
		}

		// Create server
		srv, err := server.New(server.Config{
			Host:          serveHost,
			Port:          servePort,
			Home:          h,
			ConfigManager: cfgMgr,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return level, fmt.Errorf("invalid log level %q: use debug, info, warn or error", s)
	}
	return level, nil
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default from config: 127.0.0.1)")
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (default from config: 8080)")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")

	rootCmd.AddCommand(serveCmd)
}
