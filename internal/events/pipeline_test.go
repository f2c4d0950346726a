package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfabric/knowledgefabric/internal/types"
)

func TestPipelineFilterDropsEvent(t *testing.T) {
	var mu sync.Mutex
	var handled []EventType

	p := NewPipeline(PipelineConfig{
		QueueSize: 10,
		Workers:   1,
		Filters: []FilterEntry{
			{Pattern: "*", Filter: func(e Event) bool { return e.Type != EventNodeDeleted }},
		},
		Handlers: []HandlerEntry{
			{Pattern: "*", Handler: func(_ context.Context, e Event) error {
				mu.Lock()
				handled = append(handled, e.Type)
				mu.Unlock()
				return nil
			}},
		},
	})

	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	defer p.Stop(time.Second)

	require.NoError(t, p.Ingest(ctx, Event{Type: EventNodeDeleted}, time.Second))
	require.NoError(t, p.Ingest(ctx, Event{Type: EventNodeCreated}, time.Second))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(handled) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []EventType{EventNodeCreated}, handled)
	mu.Unlock()
}

func TestPipelineBackpressureTimesOut(t *testing.T) {
	block := make(chan struct{})
	p := NewPipeline(PipelineConfig{
		QueueSize: 1,
		Workers:   1,
		Handlers: []HandlerEntry{
			// The only worker blocks here, so nothing drains the queue.
			{Pattern: "*", Handler: func(_ context.Context, _ Event) error {
				<-block
				return nil
			}},
		},
	})
	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	defer p.Stop(10 * time.Millisecond)
	defer close(block)

	require.NoError(t, p.Ingest(ctx, Event{Type: EventNodeCreated}, time.Second))
	require.Eventually(t, func() bool { return p.QueueLen() == 0 }, time.Second, time.Millisecond)
	require.NoError(t, p.Ingest(ctx, Event{Type: EventNodeCreated}, time.Second))
	err := p.Ingest(ctx, Event{Type: EventNodeCreated}, 20*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, types.ErrBackpressure, types.CodeOf(err))
}

func TestPipelineIngestAfterStopFails(t *testing.T) {
	p := NewPipeline(PipelineConfig{})
	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	require.NoError(t, p.Stop(time.Second))
	err := p.Ingest(ctx, Event{Type: EventNodeCreated}, time.Second)
	require.Error(t, err)
	assert.Equal(t, types.ErrProcessorStopped, types.CodeOf(err))
}

func TestPipelineCorrelationRuleFiresOnWindow(t *testing.T) {
	var mu sync.Mutex
	var correlated []CorrelatedPayload

	rule := &CorrelationRule{
		Name:    "burst",
		Window:  time.Minute,
		MinSize: 2,
		Match:   func(e Event) bool { return e.Type == EventMemoryStored },
	}

	p := NewPipeline(PipelineConfig{
		QueueSize: 10,
		Workers:   1,
		Rules:     []*CorrelationRule{rule},
		Handlers: []HandlerEntry{
			{Pattern: "*", Handler: func(_ context.Context, e Event) error {
				if cp, ok := e.Payload.(CorrelatedPayload); ok {
					mu.Lock()
					correlated = append(correlated, cp)
					mu.Unlock()
				}
				return nil
			}},
		},
	})

	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	defer p.Stop(time.Second)

	now := time.Now()
	require.NoError(t, p.Ingest(ctx, Event{Type: EventMemoryStored, Timestamp: now}, time.Second))
	require.NoError(t, p.Ingest(ctx, Event{Type: EventMemoryStored, Timestamp: now.Add(time.Second)}, time.Second))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(correlated) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, "burst", correlated[0].RuleName)
	assert.Len(t, correlated[0].Events, 2)
	mu.Unlock()
}

func TestPipelineStartStopIdempotent(t *testing.T) {
	p := NewPipeline(PipelineConfig{Workers: 2})
	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	require.NoError(t, p.Start(ctx))
	require.NoError(t, p.Stop(100*time.Millisecond))
	require.NoError(t, p.Stop(100*time.Millisecond))
}

func TestPipelineHandlerKeyedByEventTypeGlob(t *testing.T) {
	var mu sync.Mutex
	var syncHandled, memoryHandled []EventType

	p := NewPipeline(PipelineConfig{
		QueueSize: 10,
		Workers:   1,
		Handlers: []HandlerEntry{
			{Pattern: "sync.*", Handler: func(_ context.Context, e Event) error {
				mu.Lock()
				syncHandled = append(syncHandled, e.Type)
				mu.Unlock()
				return nil
			}},
			{Pattern: "memory.*", Handler: func(_ context.Context, e Event) error {
				mu.Lock()
				memoryHandled = append(memoryHandled, e.Type)
				mu.Unlock()
				return nil
			}},
		},
	})

	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	defer p.Stop(time.Second)

	require.NoError(t, p.Ingest(ctx, Event{Type: EventSyncJobQueued}, time.Second))
	require.NoError(t, p.Ingest(ctx, Event{Type: EventMemoryStored}, time.Second))
	require.NoError(t, p.Ingest(ctx, Event{Type: EventNodeCreated}, time.Second))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(syncHandled) == 1 && len(memoryHandled) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []EventType{EventSyncJobQueued}, syncHandled)
	assert.Equal(t, []EventType{EventMemoryStored}, memoryHandled)
	mu.Unlock()
}

func TestMatchesPattern(t *testing.T) {
	assert.True(t, matchesPattern("", EventNodeCreated))
	assert.True(t, matchesPattern("*", EventNodeCreated))
	assert.True(t, matchesPattern("node.*", EventNodeCreated))
	assert.False(t, matchesPattern("sync.*", EventNodeCreated))
	assert.True(t, matchesPattern("sync.job_queued", EventSyncJobQueued))
}
