package fabric

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfabric/knowledgefabric/internal/config"
	"github.com/agentfabric/knowledgefabric/internal/database"
	"github.com/agentfabric/knowledgefabric/internal/dkm"
	"github.com/agentfabric/knowledgefabric/internal/events"
	"github.com/agentfabric/knowledgefabric/internal/graph"
	"github.com/agentfabric/knowledgefabric/internal/memory"
	"github.com/agentfabric/knowledgefabric/internal/memory/embedder"
	"github.com/agentfabric/knowledgefabric/internal/memory/vector"
	"github.com/agentfabric/knowledgefabric/internal/repository"
	"github.com/agentfabric/knowledgefabric/internal/schema"
	"github.com/agentfabric/knowledgefabric/internal/sync"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewRejectsNilConfig(t *testing.T) {
	f, err := New(nil, nil)
	require.Error(t, err)
	assert.Nil(t, f)
	assert.Contains(t, err.Error(), "config cannot be nil")
}

func TestNewRejectsEmptyAgentName(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Core.AgentName = ""

	f, err := New(cfg, nil)
	require.Error(t, err)
	assert.Nil(t, f)
	assert.Contains(t, err.Error(), "agent_name")
}

// buildTestFabric assembles a Fabric from fakes/mocks, the same way New
// does, without touching a real Neo4j backend. This exercises Start/Stop/
// Health/Uptime/JobHistory against the same wiring New produces.
func buildTestFabric(t *testing.T) *Fabric {
	t.Helper()

	tmpDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Core.AgentName = "test-agent"
	cfg.Database.Path = filepath.Join(tmpDir, "fabric.db")

	graphClient := graph.NewMockClient()
	registry := schema.New()
	for _, s := range schema.CoreNodeSchemas() {
		require.NoError(t, registry.RegisterNode(s))
	}
	for _, s := range schema.CoreRelationshipSchemas() {
		require.NoError(t, registry.RegisterRelationship(s))
	}

	db, err := database.Open(cfg.Database.Path)
	require.NoError(t, err)
	require.NoError(t, db.InitSchema())
	jobDAO := database.NewJobDAO(db)

	bus := events.NewEventBus()
	pipeline := events.NewPipeline(events.PipelineConfig{QueueSize: 16, Workers: 1})

	vectorStore, err := vector.NewVectorStore(cfg.Vector)
	require.NoError(t, err)
	emb := embedder.NewMockEmbedder()

	assocMemory := memory.New(graphClient,
		memory.WithVectorStore(vectorStore),
		memory.WithEmbedder(emb),
	)

	manager := dkm.New(graphClient, registry, cfg.Core.AgentName)
	synchronizer := sync.New(manager, cfg.Core.AgentName,
		sync.WithEventBus(bus),
		sync.WithJobRecorder(jobDAO),
	)

	return &Fabric{
		cfg:      cfg,
		logger:   nil,
		graph:    graphClient,
		registry: registry,
		repos: &Repositories{
			Domains: repository.NewDomainRepository(graphClient, registry),
			Agents:  repository.NewAgentRepository(graphClient, registry),
		},
		db:           db,
		jobDAO:       jobDAO,
		bus:          bus,
		pipeline:     pipeline,
		memory:       assocMemory,
		dkm:          manager,
		synchronizer: synchronizer,
	}
}

func TestFabricStartStop(t *testing.T) {
	f := buildTestFabric(t)
	f.logger = discardLogger()
	ctx := context.Background()

	require.NoError(t, f.Start(ctx))
	assert.True(t, f.Uptime() >= 0)

	require.NoError(t, f.Health(ctx))

	require.NoError(t, f.Stop(ctx))
	// Stop is idempotent.
	require.NoError(t, f.Stop(ctx))
}

func TestFabricJobHistoryEmptyInitially(t *testing.T) {
	f := buildTestFabric(t)
	f.logger = discardLogger()

	records, err := f.JobHistory(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFabricLogAndSubscribe(t *testing.T) {
	f := buildTestFabric(t)
	f.logger = discardLogger()
	ctx := context.Background()

	received := make(chan events.Event, 1)
	unsubscribe := f.Subscribe("sync.*", func(_ context.Context, e events.Event) error {
		received <- e
		return nil
	})
	defer unsubscribe()

	require.NoError(t, f.Log(ctx, events.Event{Type: events.EventMemoryStored}))
	require.NoError(t, f.Log(ctx, events.Event{Type: events.EventSyncJobQueued}))

	select {
	case e := <-received:
		assert.Equal(t, events.EventSyncJobQueued, e.Type)
	case <-time.After(time.Second):
		t.Fatal("expected subscriber to receive the matching event")
	}
}

func TestFabricAccessors(t *testing.T) {
	f := buildTestFabric(t)
	f.logger = discardLogger()

	assert.NotNil(t, f.Graph())
	assert.NotNil(t, f.Schema())
	assert.NotNil(t, f.Repositories())
	assert.NotNil(t, f.Memory())
	assert.NotNil(t, f.DKM())
	assert.NotNil(t, f.Synchronizer())
	assert.NotNil(t, f.Events())
	assert.Equal(t, time.Duration(0), f.Uptime())
}
