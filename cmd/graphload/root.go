package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/graphmill/graphload/cmd/graphload/internal"
	"github.com/graphmill/graphload/internal/config"
	"github.com/graphmill/graphload/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:   "graphload",
	Short: "graphload - version-aware bulk graph loader for Neo4j",
	Long: `graphload loads large datasets into Neo4j through batched UNWIND
writes. It probes the server version once per run, selects the matching
Cypher dialect, applies constraints and indexes before any data, and runs
the manifest's phases in order with retry and resume support.`,
	PersistentPreRunE: setup,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

// loadedConfig is populated by setup for use by subcommands.
var loadedConfig *config.Config

// logger is the process-wide logger, configured by setup.
var logger *slog.Logger

// Execute runs the root command with signal handling
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

// setup parses global flags, loads configuration, and wires logging before
// any command runs.
func setup(cmd *cobra.Command, args []string) error {
	flags, err := ParseGlobalFlags(cmd)
	if err != nil {
		return internal.WrapError(internal.ExitConfigError, "invalid flags", err)
	}

	if cmd.Name() == "version" || cmd.Name() == "help" {
		return nil
	}

	configFile := flags.ConfigFile
	if configFile == "" {
		configFile = defaultConfigPath()
	}

	cfg, err := config.NewLoader(config.NewValidator()).LoadWithDefaults(configFile)
	if err != nil {
		return err
	}
	loadedConfig = cfg

	logger = observability.NewLogger(cmd.ErrOrStderr(),
		flags.LogLevel(cfg.Logging.Level), cfg.Logging.Format)
	slog.SetDefault(logger)

	return nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "graphload.yaml"
	}
	return filepath.Join(home, ".graphload", "config.yaml")
}

func init() {
	RegisterGlobalFlags(rootCmd)

	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(versionCmd)
}
