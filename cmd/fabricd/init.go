package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/agentfabric/knowledgefabric/internal/config"
)

var (
	initForce   bool
	initHomeDir string
	initAgent   string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a fabric home directory and default configuration",
	Long: `Initialize creates the fabric home directory layout:
- config.yaml with default settings
- data/ and cache/ subdirectories
- the local SQLite bookkeeping store's parent directory

It does not connect to the graph backend; run "fabricd start" after
editing config.yaml to point at a reachable Neo4j instance.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config.yaml")
	initCmd.Flags().StringVar(&initHomeDir, "home", "", "Custom home directory (default: ~/.fabric)")
	initCmd.Flags().StringVar(&initAgent, "agent-name", "default", "Agent name this fabric instance identifies as")
}

func runInit(cmd *cobra.Command, args []string) error {
	homeDir := initHomeDir
	if homeDir == "" {
		homeDir = config.DefaultHomeDir()
	}

	cmd.Printf("Initializing fabric home at %s...\n", homeDir)

	cfg := config.DefaultConfig()
	cfg.Core.HomeDir = homeDir
	cfg.Core.DataDir = filepath.Join(homeDir, "data")
	cfg.Core.CacheDir = filepath.Join(homeDir, "cache")
	cfg.Core.AgentName = initAgent
	cfg.Database.Path = filepath.Join(homeDir, "fabric.db")
	cfg.Vector.StoragePath = filepath.Join(homeDir, "vectors.db")

	dirs := []string{homeDir, cfg.Core.DataDir, cfg.Core.CacheDir}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", d, err)
		}
	}

	configPath := config.DefaultConfigPath(homeDir)
	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", configPath)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", configPath, err)
	}

	cmd.Println("\nFabric initialized successfully!")
	cmd.Printf("  Home directory: %s\n", homeDir)
	cmd.Printf("  Config written: %s\n", configPath)
	cmd.Printf("  Agent name: %s\n", cfg.Core.AgentName)
	cmd.Println("\nEdit the graph section of config.yaml to point at your Neo4j instance, then run 'fabricd start'.")

	return nil
}
