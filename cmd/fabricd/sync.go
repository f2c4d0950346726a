package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentfabric/knowledgefabric/internal/config"
	"github.com/agentfabric/knowledgefabric/internal/database"
	"github.com/agentfabric/knowledgefabric/internal/dkm"
	"github.com/agentfabric/knowledgefabric/internal/graph"
	"github.com/agentfabric/knowledgefabric/internal/schema"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run or inspect synchronization between the private and shared graph",
}

var syncLabelsFlag []string

func init() {
	syncSpecificCmd.Flags().StringSliceVar(&syncLabelsFlag, "labels", nil, "Node labels to sync (required)")
	syncHistoryCmd.Flags().Int("limit", 20, "Maximum number of jobs to show")

	syncCmd.AddCommand(syncAllCmd)
	syncCmd.AddCommand(syncPriorityCmd)
	syncCmd.AddCommand(syncSpecificCmd)
	syncCmd.AddCommand(syncHistoryCmd)
}

var syncAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Sync every registered label in both directions",
	RunE:  runSyncAll,
}

var syncPriorityCmd = &cobra.Command{
	Use:   "priority",
	Short: "Sync only the configured priority labels",
	RunE:  runSyncPriority,
}

var syncSpecificCmd = &cobra.Command{
	Use:   "labels",
	Short: "Sync a caller-supplied set of labels",
	RunE:  runSyncSpecific,
}

var syncHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent sync job history",
	RunE:  runSyncHistory,
}

// buildSyncManager opens a graph connection and DKM manager for a
// one-shot sync command, independent of the long-running fabric.Fabric
// lifecycle used by "start".
func buildSyncManager(cmd *cobra.Command) (*dkm.Manager, graph.GraphClient, *config.Config, error) {
	flags, err := ParseGlobalFlags(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	cfg, err := loadConfigFile(flags)
	if err != nil {
		return nil, nil, nil, err
	}

	client, err := graph.NewNeo4jClient(graph.Config{
		URI:             cfg.Graph.URI,
		Username:        cfg.Graph.Username,
		Password:        cfg.Graph.Password,
		MaxConnPoolSize: cfg.Graph.MaxConnections,
		ConnectTimeout:  cfg.Graph.ConnectionTimeout,
		MaxRetries:      3,
		RetryBaseDelay:  200 * time.Millisecond,
	}, newLogger(cfg))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to construct graph client: %w", err)
	}
	if err := client.Connect(cmd.Context()); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to graph: %w", err)
	}

	registry := schema.New()
	for _, s := range schema.CoreNodeSchemas() {
		if err := registry.RegisterNode(s); err != nil {
			client.Close(cmd.Context())
			return nil, nil, nil, err
		}
	}
	for _, s := range schema.CoreRelationshipSchemas() {
		if err := registry.RegisterRelationship(s); err != nil {
			client.Close(cmd.Context())
			return nil, nil, nil, err
		}
	}

	manager := dkm.New(client, registry, cfg.Core.AgentName)
	return manager, client, cfg, nil
}

func runSyncAll(cmd *cobra.Command, args []string) error {
	manager, client, cfg, err := buildSyncManager(cmd)
	if err != nil {
		return err
	}
	defer client.Close(cmd.Context())

	toShared, err := manager.SyncToShared(cmd.Context())
	if err != nil {
		return fmt.Errorf("sync to shared failed: %w", err)
	}
	fromShared, err := manager.SyncFromShared(cmd.Context())
	if err != nil {
		return fmt.Errorf("sync from shared failed: %w", err)
	}

	printSyncSummary(cmd, cfg.Core.AgentName, toShared, fromShared)
	return nil
}

func runSyncPriority(cmd *cobra.Command, args []string) error {
	manager, client, cfg, err := buildSyncManager(cmd)
	if err != nil {
		return err
	}
	defer client.Close(cmd.Context())

	labels := cfg.Sync.PriorityLabels
	toShared, err := manager.SyncToShared(cmd.Context(), labels...)
	if err != nil {
		return fmt.Errorf("sync to shared failed: %w", err)
	}
	fromShared, err := manager.SyncFromShared(cmd.Context(), labels...)
	if err != nil {
		return fmt.Errorf("sync from shared failed: %w", err)
	}

	printSyncSummary(cmd, cfg.Core.AgentName, toShared, fromShared)
	return nil
}

func runSyncSpecific(cmd *cobra.Command, args []string) error {
	if len(syncLabelsFlag) == 0 {
		return fmt.Errorf("--labels is required")
	}

	manager, client, cfg, err := buildSyncManager(cmd)
	if err != nil {
		return err
	}
	defer client.Close(cmd.Context())

	toShared, err := manager.SyncToShared(cmd.Context(), syncLabelsFlag...)
	if err != nil {
		return fmt.Errorf("sync to shared failed: %w", err)
	}
	fromShared, err := manager.SyncFromShared(cmd.Context(), syncLabelsFlag...)
	if err != nil {
		return fmt.Errorf("sync from shared failed: %w", err)
	}

	printSyncSummary(cmd, cfg.Core.AgentName, toShared, fromShared)
	return nil
}

func runSyncHistory(cmd *cobra.Command, args []string) error {
	flags, err := ParseGlobalFlags(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfigFile(flags)
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open local store: %w", err)
	}
	defer db.Close()

	records, err := database.NewJobDAO(db).ListByAgent(cmd.Context(), cfg.Core.AgentName, limit)
	if err != nil {
		return fmt.Errorf("failed to list job history: %w", err)
	}

	if len(records) == 0 {
		cmd.Println("no sync jobs recorded")
		return nil
	}

	for _, r := range records {
		cmd.Printf("%s  %-8s  %-8s  labels=%s  nodes(to=%d,from=%d)  conflicts=%d\n",
			r.QueuedAt.Format(time.RFC3339), r.Kind, r.Status,
			strings.Join(r.Labels, ","), r.NodesToShared, r.NodesFromShared, r.ConflictsResolved)
		if r.Err != "" {
			cmd.Printf("    error: %s\n", r.Err)
		}
	}
	return nil
}

func printSyncSummary(cmd *cobra.Command, agentName string, toShared, fromShared *dkm.SyncSummary) {
	cmd.Printf("sync complete for agent %q\n", agentName)
	cmd.Printf("  to shared:   nodes=%d relationships=%d conflicts=%d\n",
		toShared.NodesSynced, toShared.RelationshipsSynced, toShared.ConflictsResolved)
	cmd.Printf("  from shared: nodes=%d relationships=%d conflicts=%d\n",
		fromShared.NodesSynced, fromShared.RelationshipsSynced, fromShared.ConflictsResolved)
}
