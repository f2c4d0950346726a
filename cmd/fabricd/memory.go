package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentfabric/knowledgefabric/internal/config"
	"github.com/agentfabric/knowledgefabric/internal/graph"
	"github.com/agentfabric/knowledgefabric/internal/memory"
	"github.com/agentfabric/knowledgefabric/internal/memory/embedder"
	"github.com/agentfabric/knowledgefabric/internal/memory/vector"
	"github.com/agentfabric/knowledgefabric/internal/types"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect and query the associative memory store",
}

var (
	memoryStoreContent string
	memoryStoreKind    string
	memoryRecallLimit  int
	memoryRecallKind   string
)

func init() {
	memoryStoreCmd.Flags().StringVar(&memoryStoreContent, "content", "", "Record content as a JSON object (required)")
	memoryStoreCmd.Flags().StringVar(&memoryStoreKind, "kind", string(types.MemoryKindEpisodic), "Memory kind (episodic|semantic|working|procedural)")

	memoryRecallCmd.Flags().IntVar(&memoryRecallLimit, "limit", 20, "Maximum records to return")
	memoryRecallCmd.Flags().StringVar(&memoryRecallKind, "kind", "", "Filter by memory kind instead of full-text content match")

	memoryCmd.AddCommand(memoryStoreCmd)
	memoryCmd.AddCommand(memoryRecallCmd)
	memoryCmd.AddCommand(memoryStatsCmd)
}

var memoryStoreCmd = &cobra.Command{
	Use:   "store <query>",
	Short: "Store a new memory record tagged with the given query string as context",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runMemoryStore,
}

var memoryRecallCmd = &cobra.Command{
	Use:   "recall [query]",
	Short: "Recall memory records by content match, or by kind with --kind",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runMemoryRecall,
}

var memoryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show summary statistics for the associative memory store",
	RunE:  runMemoryStats,
}

// buildMemory connects to the graph and wires up an AssociativeMemory the
// same way fabric.New does, for one-shot memory commands.
func buildMemory(cmd *cobra.Command) (*memory.AssociativeMemory, graph.GraphClient, *config.Config, error) {
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

	vectorStore, err := vector.NewVectorStore(cfg.Vector)
	if err != nil {
		client.Close(cmd.Context())
		return nil, nil, nil, fmt.Errorf("failed to construct vector store: %w", err)
	}
	emb, err := embedder.CreateEmbedder(cfg.Embedder)
	if err != nil {
		client.Close(cmd.Context())
		return nil, nil, nil, fmt.Errorf("failed to construct embedder: %w", err)
	}

	m := memory.New(client,
		memory.WithVectorStore(vectorStore),
		memory.WithEmbedder(emb),
		memory.WithScoreWeights(cfg.Memory.Weights),
		memory.WithDecayConfig(cfg.Memory.Decay),
	)
	return m, client, cfg, nil
}

func runMemoryStore(cmd *cobra.Command, args []string) error {
	if memoryStoreContent == "" {
		return fmt.Errorf("--content is required")
	}
	var content map[string]any
	if err := json.Unmarshal([]byte(memoryStoreContent), &content); err != nil {
		return fmt.Errorf("--content must be a JSON object: %w", err)
	}

	kind := types.MemoryKind(memoryStoreKind)
	if !kind.IsValid() {
		return fmt.Errorf("invalid --kind %q", memoryStoreKind)
	}

	var queryContext map[string]any
	if len(args) == 1 {
		queryContext = map[string]any{"query": args[0]}
	}

	m, client, _, err := buildMemory(cmd)
	if err != nil {
		return err
	}
	defer client.Close(cmd.Context())

	rec := memory.NewRecord(content, queryContext, kind, 0)
	if err := m.Store(cmd.Context(), rec); err != nil {
		return fmt.Errorf("failed to store memory: %w", err)
	}

	cmd.Printf("stored memory %s (kind=%s)\n", rec.ID, rec.Kind)
	return nil
}

func runMemoryRecall(cmd *cobra.Command, args []string) error {
	m, client, _, err := buildMemory(cmd)
	if err != nil {
		return err
	}
	defer client.Close(cmd.Context())

	var records []*memory.Record
	if memoryRecallKind != "" {
		kind := types.MemoryKind(memoryRecallKind)
		if !kind.IsValid() {
			return fmt.Errorf("invalid --kind %q", memoryRecallKind)
		}
		records, err = m.RecallByKind(cmd.Context(), kind, memoryRecallLimit)
	} else if len(args) == 1 {
		records, err = m.RecallByContent(cmd.Context(), args[0], memoryRecallLimit)
	} else {
		return fmt.Errorf("provide a query string or --kind")
	}
	if err != nil {
		return fmt.Errorf("recall failed: %w", err)
	}

	if len(records) == 0 {
		cmd.Println("no matching memories")
		return nil
	}
	for _, r := range records {
		cmd.Printf("%s  kind=%-11s  importance=%.2f  accessed=%d  %v\n",
			r.ID, r.Kind, r.Importance, r.AccessCount, r.Content)
	}
	return nil
}

func runMemoryStats(cmd *cobra.Command, args []string) error {
	m, client, _, err := buildMemory(cmd)
	if err != nil {
		return err
	}
	defer client.Close(cmd.Context())

	stats, err := m.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to compute stats: %w", err)
	}

	cmd.Printf("total memories:        %d\n", stats.TotalMemories)
	cmd.Printf("avg importance:        %.3f\n", stats.AvgImportance)
	cmd.Printf("avg access count:      %.2f\n", stats.AvgAccessCount)
	cmd.Printf("low importance count:  %d\n", stats.LowImportanceCount)
	for kind, count := range stats.MemoryKinds {
		cmd.Printf("  %-11s %d\n", kind, count)
	}
	return nil
}
