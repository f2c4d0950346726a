package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentfabric/knowledgefabric/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "fabricd",
	Short: "Knowledge fabric daemon and CLI",
	Long: `fabricd runs the dual-layer knowledge fabric for one agent: a
private graph layer synced against a shared fabric, with associative
memory and an event pipeline wired in between.

Run "fabricd start" to bring the fabric up in the foreground, or use
the sync/memory/status subcommands to operate an already-initialized
home directory.`,
	PersistentPreRunE: loadConfig,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

// Execute runs the root command with signal-driven cancellation.
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

// loadConfig runs before every command to determine the home/config paths;
// commands that don't need a loaded config (init, version, help) skip it.
func loadConfig(cmd *cobra.Command, args []string) error {
	flags, err := ParseGlobalFlags(cmd)
	if err != nil {
		return err
	}

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

	switch cmd.Name() {
	case "init", "version", "help":
		return nil
	}

	if _, err := os.Stat(configFile); err != nil {
		if os.IsNotExist(err) && flags.IsVerbose() {
			cmd.PrintErrf("Config file not found at %s (run 'fabricd init' to create)\n", configFile)
		}
	}

	return nil
}

func init() {
	RegisterGlobalFlags(rootCmd)

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(memoryCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("fabricd v0.1.0")
	},
}
