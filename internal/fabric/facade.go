// Package fabric wires the Graph Access Layer, schema registry,
// repositories, event pipeline, associative memory, dual knowledge
// manager, and synchronizer into one owned lifecycle, the way the
// teacher's daemon package wires its own service set: build everything
// up front in New, bring services up in dependency order in Start,
// roll back whatever already started if any step fails, and tear
// everything down in reverse order in Stop.
package fabric

import (
	"context"
	"fmt"
	"log/slog"
	"time"

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

// Repositories groups the typed, per-label repository accessors so
// callers get one field instead of nine.
type Repositories struct {
	Domains         *repository.DomainRepository
	Projects        *repository.ProjectRepository
	Components      *repository.ComponentRepository
	Requirements    *repository.RequirementRepository
	Implementations *repository.ImplementationRepository
	Patterns        *repository.PatternRepository
	Decisions       *repository.DecisionRepository
	Agents          *repository.AgentRepository
	Relationships   *repository.RelationshipRepository
}

// Fabric is the assembled knowledge fabric for one agent: a graph
// backend, the schema it validates against, typed repositories over it,
// an event pipeline, associative memory, and the dual-knowledge sync
// machinery that keeps this agent's private graph and the shared fabric
// converged.
type Fabric struct {
	cfg    *config.Config
	logger *slog.Logger

	graph    graph.GraphClient
	registry *schema.Registry
	repos    *Repositories

	db     *database.DB
	jobDAO *database.JobDAO

	bus      events.EventBus
	pipeline *events.Pipeline

	memory       *memory.AssociativeMemory
	dkm          *dkm.Manager
	synchronizer *sync.Synchronizer

	startTime time.Time
}

// New builds a Fabric from cfg but starts nothing: it opens no network
// connections and runs no goroutines. Call Start to bring it up.
func New(cfg *config.Config, logger *slog.Logger) (*Fabric, error) {
	if cfg == nil {
		return nil, fmt.Errorf("fabric: config cannot be nil")
	}
	if cfg.Core.AgentName == "" {
		return nil, fmt.Errorf("fabric: core.agent_name cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "fabric", "agent", cfg.Core.AgentName)

	rawGraphClient, err := graph.NewNeo4jClient(graph.Config{
		URI:             cfg.Graph.URI,
		Username:        cfg.Graph.Username,
		Password:        cfg.Graph.Password,
		MaxConnPoolSize: cfg.Graph.MaxConnections,
		ConnectTimeout:  cfg.Graph.ConnectionTimeout,
		MaxRetries:      5,
		RetryBaseDelay:  200 * time.Millisecond,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("fabric: failed to construct graph client: %w", err)
	}

	// Every higher layer (repositories, memory, dkm) reaches the backend
	// through this bounded pool rather than the raw client, so concurrent
	// access beyond cfg.Graph.PoolSize waits up to PoolAcquireWait and then
	// fails with PoolExhausted instead of piling up on the driver.
	graphClient := graph.NewPooledClient(rawGraphClient, cfg.Graph.PoolSize, cfg.Graph.PoolAcquireWait)

	registry := schema.New()
	for _, s := range schema.CoreNodeSchemas() {
		if err := registry.RegisterNode(s); err != nil {
			return nil, fmt.Errorf("fabric: failed to register node schema %q: %w", s.Label, err)
		}
	}
	for _, s := range schema.CoreRelationshipSchemas() {
		if err := registry.RegisterRelationship(s); err != nil {
			return nil, fmt.Errorf("fabric: failed to register relationship schema %q: %w", s.Type, err)
		}
	}

	repos := &Repositories{
		Domains:         repository.NewDomainRepository(graphClient, registry),
		Projects:        repository.NewProjectRepository(graphClient, registry),
		Components:      repository.NewComponentRepository(graphClient, registry),
		Requirements:    repository.NewRequirementRepository(graphClient, registry),
		Implementations: repository.NewImplementationRepository(graphClient, registry),
		Patterns:        repository.NewPatternRepository(graphClient, registry),
		Decisions:       repository.NewDecisionRepository(graphClient, registry),
		Agents:          repository.NewAgentRepository(graphClient, registry),
		Relationships:   repository.NewRelationshipRepository(graphClient, registry),
	}

	db, err := database.OpenWithConfig(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxConnections,
		MaxIdleConns:    cfg.Database.MaxConnections,
		ConnMaxLifetime: time.Hour,
		BusyTimeout:     cfg.Database.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("fabric: failed to open local store: %w", err)
	}
	if err := db.InitSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("fabric: failed to initialize local schema: %w", err)
	}
	jobDAO := database.NewJobDAO(db)

	bus := events.NewEventBus(
		events.WithDefaultBufferSize(cfg.Events.DefaultBufferSize),
	)
	pipeline := events.NewPipeline(events.PipelineConfig{
		QueueSize: cfg.Events.QueueCapacity,
		Workers:   cfg.Events.WorkerCount,
		Logger:    logger.With("component", "event-pipeline"),
	})

	vectorStore, err := vector.NewVectorStore(cfg.Vector)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("fabric: failed to construct vector store: %w", err)
	}
	emb, err := embedder.CreateEmbedder(cfg.Embedder)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("fabric: failed to construct embedder: %w", err)
	}

	assocMemory := memory.New(graphClient,
		memory.WithVectorStore(vectorStore),
		memory.WithEmbedder(emb),
		memory.WithScoreWeights(cfg.Memory.Weights),
		memory.WithDecayConfig(cfg.Memory.Decay),
	)

	manager := dkm.New(graphClient, registry, cfg.Core.AgentName, dkm.WithEventBus(bus))

	synchronizer := sync.New(manager, cfg.Core.AgentName,
		sync.WithEventBus(bus),
		sync.WithLogger(logger.With("component", "synchronizer")),
		sync.WithJobRecorder(jobDAO),
		sync.WithSchedule(sync.Schedule{
			Interval:       time.Duration(cfg.Sync.IntervalMinutes) * time.Minute,
			PriorityLabels: cfg.Sync.PriorityLabels,
		}),
	)

	return &Fabric{
		cfg:          cfg,
		logger:       logger,
		graph:        graphClient,
		registry:     registry,
		repos:        repos,
		db:           db,
		jobDAO:       jobDAO,
		bus:          bus,
		pipeline:     pipeline,
		memory:       assocMemory,
		dkm:          manager,
		synchronizer: synchronizer,
	}, nil
}

// Start brings the fabric's services up in dependency order: graph
// connection, event pipeline, then the background synchronizer. If any
// step fails, everything already started is rolled back before
// returning the error.
func (f *Fabric) Start(ctx context.Context) error {
	f.logger.Info("starting fabric", "graph_uri", f.cfg.Graph.URI)
	f.startTime = time.Now()

	if err := f.graph.Connect(ctx); err != nil {
		return fmt.Errorf("fabric: failed to connect graph client: %w", err)
	}

	if err := f.registry.Initialize(ctx, f.graph); err != nil {
		f.stopServices(ctx)
		return fmt.Errorf("fabric: failed to initialize schema: %w", err)
	}

	if err := f.pipeline.Start(ctx); err != nil {
		f.stopServices(ctx)
		return fmt.Errorf("fabric: failed to start event pipeline: %w", err)
	}

	if started := f.synchronizer.Start(ctx); !started {
		f.stopServices(ctx)
		return fmt.Errorf("fabric: synchronizer already running")
	}

	if err := f.bus.Publish(ctx, events.Event{
		Type:      events.EventSystemStarted,
		Timestamp: time.Now(),
		AgentName: f.cfg.Core.AgentName,
	}); err != nil {
		f.logger.Warn("failed to publish system started event", "error", err)
	}

	f.logger.Info("fabric started", "agent", f.cfg.Core.AgentName)
	return nil
}

// Stop gracefully shuts down every running service in reverse order of
// startup. It is idempotent: calling it more than once, or before Start,
// is safe.
func (f *Fabric) Stop(ctx context.Context) error {
	f.logger.Info("stopping fabric")

	shutdownCtx := ctx
	if ctx.Err() == nil {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
	}

	if err := f.bus.Publish(shutdownCtx, events.Event{
		Type:      events.EventSystemStopped,
		Timestamp: time.Now(),
		AgentName: f.cfg.Core.AgentName,
	}); err != nil {
		f.logger.Warn("failed to publish system stopped event", "error", err)
	}

	f.stopServices(shutdownCtx)

	f.logger.Info("fabric stopped")
	return nil
}

// stopServices stops running services in reverse startup order, logging
// (rather than failing) individual shutdown errors so one broken service
// never prevents the others from shutting down cleanly.
func (f *Fabric) stopServices(ctx context.Context) {
	if f.synchronizer != nil {
		f.logger.Info("stopping synchronizer")
		f.synchronizer.Stop()
	}

	if f.pipeline != nil {
		f.logger.Info("stopping event pipeline")
		if err := f.pipeline.Stop(5 * time.Second); err != nil {
			f.logger.Warn("error stopping event pipeline", "error", err)
		}
	}

	if f.bus != nil {
		f.logger.Info("closing event bus")
		if err := f.bus.Close(); err != nil {
			f.logger.Warn("error closing event bus", "error", err)
		}
	}

	if f.graph != nil {
		f.logger.Info("closing graph connection")
		if err := f.graph.Close(ctx); err != nil {
			f.logger.Warn("error closing graph connection", "error", err)
		}
	}

	if f.db != nil {
		f.logger.Info("closing local store")
		if err := f.db.Close(); err != nil {
			f.logger.Warn("error closing local store", "error", err)
		}
	}
}

// Graph returns the underlying graph client, for callers that need raw
// Cypher access beyond what Repositories exposes.
func (f *Fabric) Graph() graph.GraphClient { return f.graph }

// Schema returns the schema registry backing every repository and the
// memory and dkm layers.
func (f *Fabric) Schema() *schema.Registry { return f.registry }

// Repositories returns the typed per-label repository accessors.
func (f *Fabric) Repositories() *Repositories { return f.repos }

// Memory returns the associative memory store.
func (f *Fabric) Memory() *memory.AssociativeMemory { return f.memory }

// DKM returns the dual knowledge manager for this agent.
func (f *Fabric) DKM() *dkm.Manager { return f.dkm }

// Synchronizer returns the background synchronizer driving DKM sync passes.
func (f *Fabric) Synchronizer() *sync.Synchronizer { return f.synchronizer }

// Events returns the event bus that the pipeline and synchronizer publish to.
func (f *Fabric) Events() events.EventBus { return f.bus }

// Log publishes a domain event onto the fabric's event bus, for callers
// that want to record something outside of what the repository, memory,
// dkm, and sync layers already publish on their own.
func (f *Fabric) Log(ctx context.Context, event events.Event) error {
	return f.bus.Publish(ctx, event)
}

// Subscribe registers handler to run for every event whose type matches
// pattern ("sync.*", "memory.stored", "*"), using the same glob syntax
// the event pipeline's keyed filters and handlers use. It returns a
// cleanup function that must be called to stop the subscription and
// release its goroutine; it does not block the caller.
func (f *Fabric) Subscribe(pattern string, handler events.EventHandler) func() {
	ch, unsubscribe := f.bus.Subscribe(context.Background(), events.Filter{}, 0)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-ch:
				if !ok {
					return
				}
				if !events.MatchesEventType(pattern, event.Type) {
					continue
				}
				if err := handler(ctx, event); err != nil {
					f.logger.Error("fabric: subscriber handler failed", "pattern", pattern, "error", err)
				}
			}
		}
	}()

	return func() {
		cancel()
		unsubscribe()
	}
}

// JobHistory returns persisted sync job records for this agent, most
// recent first, up to limit.
func (f *Fabric) JobHistory(ctx context.Context, limit int) ([]*database.JobRecord, error) {
	return f.jobDAO.ListByAgent(ctx, f.cfg.Core.AgentName, limit)
}

// Health reports the combined health of the fabric's external
// dependencies: the graph backend and the local bookkeeping store.
func (f *Fabric) Health(ctx context.Context) error {
	if err := f.graph.Health(ctx); err != nil {
		return fmt.Errorf("fabric: graph unhealthy: %w", err)
	}
	if err := f.db.Health(ctx); err != nil {
		return fmt.Errorf("fabric: local store unhealthy: %w", err)
	}
	return nil
}

// Uptime reports how long the fabric has been running since Start,
// zero if it has not started.
func (f *Fabric) Uptime() time.Duration {
	if f.startTime.IsZero() {
		return 0
	}
	return time.Since(f.startTime)
}
