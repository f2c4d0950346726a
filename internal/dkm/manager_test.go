package dkm

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfabric/knowledgefabric/internal/events"
	"github.com/agentfabric/knowledgefabric/internal/graph"
	"github.com/agentfabric/knowledgefabric/internal/schema"
	"github.com/agentfabric/knowledgefabric/internal/types"
)

// fakeGraph is a minimal in-memory stand-in for a real backend: it
// interprets the small set of WHERE-equality and SET-merge Cypher shapes
// the DKM issues, without understanding Cypher in general.
type fakeGraph struct {
	mu    sync.Mutex
	nodes map[string]map[string]any
}

var kvPattern = regexp.MustCompile(`n\.(\w+) = \$(\w+)`)

func newFakeGraph() *fakeGraph {
	return &fakeGraph{nodes: map[string]map[string]any{}}
}

func (f *fakeGraph) attach(client *graph.MockClient) {
	client.Handler = func(cypher string, params map[string]any) (*graph.QueryResult, error) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch {
		case strings.HasPrefix(cypher, "CREATE "):
			label := strings.TrimPrefix(cypher, "CREATE ")
			id, _ := params["id"].(string)
			node := cloneProps(params)
			node["__label"] = label
			f.nodes[id] = node
			return &graph.QueryResult{}, nil

		case strings.Contains(cypher, "SET n += $props"):
			id := params["id"]
			props, _ := params["props"].(map[string]any)
			for _, n := range f.nodes {
				if fmt.Sprint(n["id"]) == fmt.Sprint(id) {
					for k, v := range props {
						n[k] = v
					}
				}
			}
			return &graph.QueryResult{}, nil

		case strings.Contains(cypher, "MERGE (s)-[r:"):
			return &graph.QueryResult{}, nil

		case strings.Contains(cypher, "RETURN type(r)"):
			return &graph.QueryResult{}, nil

		case strings.Contains(cypher, "RETURN n"):
			pairs := kvPattern.FindAllStringSubmatch(cypher, -1)
			var matches []map[string]any
			for _, n := range f.nodes {
				ok := true
				for _, pair := range pairs {
					prop, paramKey := pair[1], pair[2]
					want, exists := params[paramKey]
					if !exists {
						continue
					}
					got, hasProp := n[prop]
					if !hasProp || fmt.Sprint(got) != fmt.Sprint(want) {
						ok = false
						break
					}
				}
				if ok {
					matches = append(matches, cloneProps(n))
				}
			}
			if strings.Contains(cypher, "LIMIT 1") && len(matches) > 1 {
				matches = matches[:1]
			}
			var recs []map[string]any
			for _, m := range matches {
				recs = append(recs, map[string]any{"n": m})
			}
			return &graph.QueryResult{Records: recs}, nil
		}
		return &graph.QueryResult{}, nil
	}
}

func cloneProps(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func newTestManager(agentID string) (*Manager, *graph.MockClient, *fakeGraph) {
	client := graph.NewMockClient()
	fg := newFakeGraph()
	fg.attach(client)
	return New(client, schema.New(), agentID), client, fg
}

func TestSyncToSharedCreatesNewSharedNode(t *testing.T) {
	m, _, fg := newTestManager("agent-1")

	fg.nodes["d1"] = map[string]any{
		"id": "d1", "name": "payments", "layer": "private", "owner": "agent-1",
		"updated_at": time.Now().UTC(),
	}

	summary, err := m.SyncToShared(context.Background(), schema.LabelDomain)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.NodesSynced)

	fg.mu.Lock()
	defer fg.mu.Unlock()
	var found bool
	for _, n := range fg.nodes {
		if n["layer"] == "shared" && n["id"] == "d1" {
			found = true
			assert.Equal(t, "shared", n["source_kg"])
			assert.Equal(t, "agent-1", n["original_source_kg"])
		}
	}
	assert.True(t, found, "expected a shared copy of d1")
}

func TestSyncToSharedMergesIntoExistingNode(t *testing.T) {
	m, _, fg := newTestManager("agent-1")

	older := time.Now().UTC().Add(-time.Hour)
	newer := time.Now().UTC()

	fg.nodes["d1-private"] = map[string]any{
		"id": "d1", "name": "payments-v2", "layer": "private", "owner": "agent-1",
		"updated_at": newer,
	}
	fg.nodes["d1-shared"] = map[string]any{
		"id": "d1", "name": "payments-v1", "layer": "shared",
		"updated_at": older,
	}

	summary, err := m.SyncToShared(context.Background(), schema.LabelDomain)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.NodesSynced)
	assert.Equal(t, 1, summary.ConflictsResolved)

	fg.mu.Lock()
	defer fg.mu.Unlock()
	assert.Equal(t, "payments-v2", fg.nodes["d1-shared"]["name"])
}

func TestSyncFromSharedSkipsStaleSharedData(t *testing.T) {
	m, _, fg := newTestManager("agent-2")

	newer := time.Now().UTC()
	older := time.Now().UTC().Add(-time.Hour)

	fg.nodes["shared-1"] = map[string]any{
		"id": "r1", "name": "stale", "layer": "shared", "updated_at": older,
	}
	fg.nodes["priv-1"] = map[string]any{
		"id": "r1", "name": "fresh", "layer": "private", "owner": "agent-2", "updated_at": newer,
	}

	_, err := m.SyncFromShared(context.Background(), schema.LabelRequirement)
	require.NoError(t, err)

	fg.mu.Lock()
	defer fg.mu.Unlock()
	assert.Equal(t, "fresh", fg.nodes["priv-1"]["name"], "newer private value must win over stale shared value")
}

func TestSynchronizeAppliesItemsAgainstRegisteredRule(t *testing.T) {
	m, _, fg := newTestManager("agent-1")
	require.NoError(t, m.RegisterRule(SynchronizationRule{
		Name: "domains-to-shared", Source: "agent-1", Target: "shared", Labels: []string{schema.LabelDomain},
	}))

	fg.nodes["d1"] = map[string]any{
		"id": "d1", "name": "payments", "layer": "private", "owner": "agent-1",
		"updated_at": time.Now().UTC(),
	}

	summary, err := m.Synchronize(context.Background(), "agent-1", "shared", "domains-to-shared", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ItemsApplied)
	assert.Equal(t, 0, summary.ItemsVetoed)
}

func TestSynchronizeVetoesItemsPerPolicy(t *testing.T) {
	m, _, fg := newTestManager("agent-1")
	require.NoError(t, m.RegisterRule(SynchronizationRule{
		Name: "domains-to-shared", Source: "agent-1", Target: "shared", Labels: []string{schema.LabelDomain},
	}))
	require.NoError(t, m.RegisterPolicy(KnowledgePolicy{
		Name:  "no-internal",
		Label: schema.LabelDomain,
		Veto: func(item map[string]any) (bool, string) {
			if item["name"] == "internal-only" {
				return true, "marked internal-only"
			}
			return false, ""
		},
	}))

	fg.nodes["d1"] = map[string]any{
		"id": "d1", "name": "internal-only", "layer": "private", "owner": "agent-1",
		"updated_at": time.Now().UTC(),
	}

	summary, err := m.Synchronize(context.Background(), "agent-1", "shared", "domains-to-shared", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.ItemsApplied)
	assert.Equal(t, 1, summary.ItemsVetoed)
}

func TestSynchronizeEmitsKnowledgeSynchronizedEvent(t *testing.T) {
	m, client, fg := newTestManager("agent-1")
	bus := events.NewEventBus()
	defer bus.Close()
	m.bus = bus
	_ = client

	require.NoError(t, m.RegisterRule(SynchronizationRule{
		Name: "domains-to-shared", Source: "agent-1", Target: "shared", Labels: []string{schema.LabelDomain},
	}))
	fg.nodes["d1"] = map[string]any{
		"id": "d1", "name": "payments", "layer": "private", "owner": "agent-1",
		"updated_at": time.Now().UTC(),
	}

	received, cleanup := bus.Subscribe(context.Background(), events.Filter{Types: []events.EventType{events.EventKnowledgeSynchronized}}, 1)
	defer cleanup()

	_, err := m.Synchronize(context.Background(), "agent-1", "shared", "domains-to-shared", nil)
	require.NoError(t, err)

	select {
	case e := <-received:
		payload, ok := e.Payload.(events.KnowledgeSyncedPayload)
		require.True(t, ok)
		assert.Equal(t, "domains-to-shared", payload.RuleName)
		assert.Equal(t, 1, payload.ItemsApplied)
	case <-time.After(time.Second):
		t.Fatal("expected knowledge.synchronized event")
	}
}

func TestSynchronizeUnknownRuleReturnsNotFound(t *testing.T) {
	m, _, _ := newTestManager("agent-1")
	_, err := m.Synchronize(context.Background(), "agent-1", "shared", "does-not-exist", nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrEntityNotFound, types.CodeOf(err))
}

func TestSchemaMappingTranslatesLabelOnSynchronize(t *testing.T) {
	m, _, fg := newTestManager("agent-1")
	require.NoError(t, m.RegisterMapping(SchemaMapping{SourceLabel: schema.LabelDomain, TargetLabel: "SharedDomain"}))
	require.NoError(t, m.RegisterRule(SynchronizationRule{
		Name: "domains-to-shared", Source: "agent-1", Target: "shared", Labels: []string{schema.LabelDomain},
	}))

	fg.nodes["d1"] = map[string]any{
		"id": "d1", "name": "payments", "layer": "private", "owner": "agent-1",
		"updated_at": time.Now().UTC(),
	}

	summary, err := m.Synchronize(context.Background(), "agent-1", "shared", "domains-to-shared", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ItemsApplied)
}
