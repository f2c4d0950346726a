package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentfabric/knowledgefabric/internal/config"
	"github.com/agentfabric/knowledgefabric/internal/fabric"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the fabric in the foreground",
	Long: `Start connects to the configured graph backend, opens the local
bookkeeping store, and starts the event pipeline and background
synchronizer. It runs until interrupted (SIGINT/SIGTERM), at which
point it shuts every service down in reverse order before exiting.`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	flags, err := ParseGlobalFlags(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfigFile(flags)
	if err != nil {
		return err
	}

	logger := newLogger(cfg)

	f, err := fabric.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to construct fabric: %w", err)
	}

	ctx := cmd.Context()
	if err := f.Start(ctx); err != nil {
		return fmt.Errorf("failed to start fabric: %w", err)
	}

	cmd.Printf("fabric started for agent %q, graph=%s\n", cfg.Core.AgentName, cfg.Graph.URI)
	cmd.Println("press Ctrl+C to stop")

	<-ctx.Done()

	cmd.Println("\nshutting down...")
	return f.Stop(context.Background())
}

// loadConfigFile resolves the home/config paths from flags and loads the
// configuration, falling back to defaults if no config file exists yet.
func loadConfigFile(flags *GlobalFlags) (*config.Config, error) {
	homeDir := flags.HomeDir
	if homeDir == "" {
		homeDir = os.Getenv("FABRIC_HOME")
	}
	if homeDir == "" {
		homeDir = config.DefaultHomeDir()
	}

	configFile := flags.ConfigFile
	if configFile == "" {
		configFile = config.DefaultConfigPath(homeDir)
	}

	loader := config.NewConfigLoader(config.NewValidator())
	cfg, err := loader.LoadWithDefaults(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", configFile, err)
	}
	return cfg, nil
}

// newLogger builds a slog.Logger from the configured level and format, the
// way the teacher wires log/slog as its ambient logging stack.
func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
