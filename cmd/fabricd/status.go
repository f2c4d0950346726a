package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentfabric/knowledgefabric/cmd/fabricd/internal"
	"github.com/agentfabric/knowledgefabric/internal/config"
	"github.com/agentfabric/knowledgefabric/internal/database"
	"github.com/agentfabric/knowledgefabric/internal/graph"
	"github.com/agentfabric/knowledgefabric/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display fabric health and configuration summary",
	RunE:  runStatus,
}

// SystemStatus is the status command's report shape, printed as text or JSON.
type SystemStatus struct {
	AgentName     string             `json:"agent_name"`
	OverallHealth types.HealthStatus `json:"overall_health"`
	Graph         DependencyStatus   `json:"graph"`
	Database      DependencyStatus   `json:"database"`
	RecentJobs    int                `json:"recent_jobs"`
	CheckedAt     time.Time          `json:"checked_at"`
}

// DependencyStatus reports one external dependency's reachability.
type DependencyStatus struct {
	Target    string `json:"target"`
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

func init() {
	statusCmd.Flags().Bool("json", false, "Output status as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	flags, err := ParseGlobalFlags(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfigFile(flags)
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	format := internal.FormatText
	if jsonOutput {
		format = internal.FormatJSON
	}
	formatter := internal.NewFormatter(format, cmd.OutOrStdout())

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	status := collectStatus(ctx, cfg)

	if format == internal.FormatJSON {
		return formatter.PrintJSON(status)
	}
	return printTextStatus(cmd, status)
}

func collectStatus(ctx context.Context, cfg *config.Config) SystemStatus {
	status := SystemStatus{
		AgentName: cfg.Core.AgentName,
		CheckedAt: time.Now(),
	}

	status.Graph = checkGraphStatus(ctx, cfg)
	status.Database = checkDatabaseStatus(ctx, cfg)
	status.RecentJobs = countRecentJobs(ctx, cfg)

	switch {
	case status.Graph.Connected && status.Database.Connected:
		status.OverallHealth = types.Healthy("all dependencies reachable")
	case status.Graph.Connected || status.Database.Connected:
		status.OverallHealth = types.Degraded("one dependency unreachable")
	default:
		status.OverallHealth = types.Unhealthy("no dependencies reachable")
	}
	return status
}

func checkGraphStatus(ctx context.Context, cfg *config.Config) DependencyStatus {
	ds := DependencyStatus{Target: cfg.Graph.URI}

	client, err := graph.NewNeo4jClient(graph.Config{
		URI:             cfg.Graph.URI,
		Username:        cfg.Graph.Username,
		Password:        cfg.Graph.Password,
		MaxConnPoolSize: cfg.Graph.MaxConnections,
		ConnectTimeout:  cfg.Graph.ConnectionTimeout,
		MaxRetries:      1,
		RetryBaseDelay:  100 * time.Millisecond,
	}, nil)
	if err != nil {
		ds.Error = err.Error()
		return ds
	}
	defer client.Close(ctx)

	if err := client.Connect(ctx); err != nil {
		ds.Error = err.Error()
		return ds
	}
	if err := client.Health(ctx); err != nil {
		ds.Error = err.Error()
		return ds
	}
	ds.Connected = true
	return ds
}

func checkDatabaseStatus(ctx context.Context, cfg *config.Config) DependencyStatus {
	ds := DependencyStatus{Target: cfg.Database.Path}

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		ds.Error = err.Error()
		return ds
	}
	defer db.Close()

	if err := db.Health(ctx); err != nil {
		ds.Error = err.Error()
		return ds
	}
	ds.Connected = true
	return ds
}

func countRecentJobs(ctx context.Context, cfg *config.Config) int {
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return 0
	}
	defer db.Close()

	jobs, err := database.NewJobDAO(db).ListByAgent(ctx, cfg.Core.AgentName, 100)
	if err != nil {
		return 0
	}
	return len(jobs)
}

func printTextStatus(cmd *cobra.Command, status SystemStatus) error {
	symbol := "✓"
	if status.OverallHealth.IsDegraded() {
		symbol = "⚠"
	} else if status.OverallHealth.IsUnhealthy() {
		symbol = "✗"
	}

	cmd.Printf("\n%s Overall Status: %s (agent %q)\n", symbol, status.OverallHealth.State, status.AgentName)
	if status.OverallHealth.Message != "" {
		cmd.Printf("  %s\n", status.OverallHealth.Message)
	}
	cmd.Println()

	printDependency(cmd, "Graph", status.Graph)
	printDependency(cmd, "Database", status.Database)

	cmd.Printf("\nRecent sync jobs: %d\n", status.RecentJobs)
	return nil
}

func printDependency(cmd *cobra.Command, name string, ds DependencyStatus) {
	cmd.Printf("%s:\n", name)
	if ds.Connected {
		cmd.Printf("  ✓ Connected: %s\n", ds.Target)
	} else {
		cmd.Printf("  ✗ Not connected: %s\n", ds.Target)
		if ds.Error != "" {
			cmd.Printf("    Error: %s\n", ds.Error)
		}
	}
	cmd.Println()
}
