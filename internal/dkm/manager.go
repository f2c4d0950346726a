// Package dkm implements the Dual Knowledge Manager: it keeps each agent's
// private knowledge graph in sync with the shared fabric, merging
// conflicting properties last-writer-wins by "updated_at" and stamping
// every synced node with a provenance trail.
//
// Rather than a separate backend per agent (the architecture the original
// system's per-agent Neo4j connections suggest), private and shared data
// live in one backend, distinguished by a "layer" property
// (types.LayerPrivate / types.LayerShared) plus an "owner" property on
// private nodes. This is the labeled-subspace option spec.md permits; see
// DESIGN.md for the rationale.
package dkm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentfabric/knowledgefabric/internal/events"
	"github.com/agentfabric/knowledgefabric/internal/graph"
	"github.com/agentfabric/knowledgefabric/internal/schema"
	"github.com/agentfabric/knowledgefabric/internal/types"
)

// SyncSummary reports what a single sync pass moved, mirroring the
// sync_summary dict returned by sync_to_shared/sync_from_shared, extended
// with the policy/mapping outcomes a Synchronize pass can produce.
type SyncSummary struct {
	NodesSynced         int
	RelationshipsSynced int
	ConflictsResolved   int
	ItemsApplied        int
	ItemsVetoed         int
	ItemsDeferred       int
}

// Manager synchronizes one agent's private knowledge graph with the
// shared fabric, both served by the same GraphClient. It also holds the
// DKM's meta-graph registries (ManagedKGs, SynchronizationRules, schema
// mappings, and sharing policies) consulted by Synchronize.
type Manager struct {
	client   graph.GraphClient
	registry *schema.Registry
	agentID  string
	bus      events.EventBus

	mu         sync.RWMutex
	managedKGs map[string]*ManagedKG
	rules      map[string]*SynchronizationRule
	mappings   map[string]*SchemaMapping
	policies   []KnowledgePolicy
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithEventBus wires an EventBus that receives knowledge.synchronized and
// policy.veto events emitted by Synchronize.
func WithEventBus(bus events.EventBus) Option {
	return func(m *Manager) { m.bus = bus }
}

// New constructs a Manager for agentID. The registry supplies the label set
// for syncs that name no labels; writes are not validated against it.
func New(client graph.GraphClient, registry *schema.Registry, agentID string, opts ...Option) *Manager {
	m := &Manager{
		client:     client,
		registry:   registry,
		agentID:    agentID,
		managedKGs: make(map[string]*ManagedKG),
		rules:      make(map[string]*SynchronizationRule),
		mappings:   make(map[string]*SchemaMapping),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SyncToShared promotes this agent's private nodes of the given labels
// (all registered labels if none given) into the shared layer, merging
// into any matching existing shared node rather than duplicating it.
// Mirrors sync_to_shared.
func (m *Manager) SyncToShared(ctx context.Context, labels ...string) (*SyncSummary, error) {
	return m.sync(ctx, labels, types.LayerPrivate, types.LayerShared, m.agentID, "")
}

// SyncFromShared pulls shared nodes of the given labels (all registered
// labels if none given) into this agent's private layer, merging into any
// matching existing private node rather than duplicating it. Mirrors
// sync_from_shared.
func (m *Manager) SyncFromShared(ctx context.Context, labels ...string) (*SyncSummary, error) {
	return m.sync(ctx, labels, types.LayerShared, types.LayerPrivate, "", m.agentID)
}

// sync pulls every node of from-layer labels matching fetchOwner (empty
// means unfiltered, used when from is the shared layer) and promotes or
// merges each into to-layer, stamping newly created to-layer nodes with
// targetOwner (empty for the shared layer, which carries no owner).
func (m *Manager) sync(ctx context.Context, labels []string, from, to types.KnowledgeLayer, fetchOwner, targetOwner string) (*SyncSummary, error) {
	if len(labels) == 0 {
		labels = m.registry.Labels()
	}
	summary := &SyncSummary{}

	for _, label := range labels {
		sourceNodes, err := m.fetchLayer(ctx, label, from, fetchOwner)
		if err != nil {
			return summary, err
		}

		for _, node := range sourceNodes {
			keyProps := keyPropertiesFor(label)
			existing, err := m.findMatching(ctx, label, to, targetOwner, node, keyProps)
			if err != nil {
				return summary, err
			}

			if existing != nil {
				merged := mergeProperties(node, existing, keyProps)
				if len(merged) > 0 {
					summary.ConflictsResolved++
				}
				if err := m.updateNode(ctx, label, existing["id"], merged); err != nil {
					return summary, err
				}
			} else {
				if err := m.createNode(ctx, label, node, from, to, targetOwner); err != nil {
					return summary, err
				}
			}
			summary.NodesSynced++

			synced, err := m.syncRelationships(ctx, node, to)
			if err != nil {
				return summary, err
			}
			summary.RelationshipsSynced += synced
		}
	}
	return summary, nil
}

func (m *Manager) fetchLayer(ctx context.Context, label string, layer types.KnowledgeLayer, owner string) ([]map[string]any, error) {
	clauses := "n.layer = $layer"
	params := map[string]any{"layer": string(layer)}
	if owner != "" {
		clauses += " AND n.owner = $owner"
		params["owner"] = owner
	}
	cypher := fmt.Sprintf("MATCH (n:%s) WHERE %s RETURN n", label, clauses)
	result, err := m.client.Query(ctx, cypher, params)
	if err != nil {
		return nil, types.WrapError(types.ErrQuery, "dkm: fetch failed", err)
	}
	return extractNodes(result, "n"), nil
}

func (m *Manager) findMatching(ctx context.Context, label string, layer types.KnowledgeLayer, owner string, node map[string]any, keyProps []string) (map[string]any, error) {
	clauses := "n.layer = $layer"
	params := map[string]any{"layer": string(layer)}
	if owner != "" {
		clauses += " AND n.owner = $owner"
		params["owner"] = owner
	}
	for i, key := range keyProps {
		v, ok := node[key]
		if !ok {
			continue
		}
		pk := fmt.Sprintf("k%d", i)
		clauses += fmt.Sprintf(" AND n.%s = $%s", key, pk)
		params[pk] = v
	}
	cypher := fmt.Sprintf("MATCH (n:%s) WHERE %s RETURN n LIMIT 1", label, clauses)
	result, err := m.client.Query(ctx, cypher, params)
	if err != nil {
		return nil, types.WrapError(types.ErrQuery, "dkm: match lookup failed", err)
	}
	nodes := extractNodes(result, "n")
	if len(nodes) == 0 {
		return nil, nil
	}
	return nodes[0], nil
}

func (m *Manager) createNode(ctx context.Context, label string, source map[string]any, from, to types.KnowledgeLayer, targetOwner string) error {
	props := make(map[string]any, len(source)+4)
	for k, v := range source {
		props[k] = v
	}
	props["layer"] = string(to)
	if targetOwner != "" {
		props["owner"] = targetOwner
	} else {
		delete(props, "owner")
	}

	// original_source_kg preserves where the data was first authored:
	// the source node's own owner if it has one, else the layer it came
	// from (e.g. a shared node authored directly in the shared layer).
	originalOwner, _ := source["owner"].(string)
	if originalOwner == "" {
		originalOwner = string(from)
	}
	stampProvenance(props, string(to), originalOwner)
	props["last_synced"] = time.Now().UTC()

	if _, err := m.client.CreateNode(ctx, label, props); err != nil {
		return types.WrapError(types.ErrQuery, "dkm: create failed", err)
	}
	return nil
}

func (m *Manager) updateNode(ctx context.Context, label string, id any, props map[string]any) error {
	if len(props) == 0 {
		return nil
	}
	props["last_synced"] = time.Now().UTC()
	cypher := fmt.Sprintf("MATCH (n:%s {id: $id}) SET n += $props", label)
	_, err := m.client.Query(ctx, cypher, map[string]any{"id": id, "props": props})
	if err != nil {
		return types.WrapError(types.ErrQuery, "dkm: update failed", err)
	}
	return nil
}

// syncRelationships re-creates every outgoing relationship of node in the
// target layer, mirroring _get_node_relationships/_sync_relationship. It
// is best-effort: endpoints that don't exist in the target layer are
// skipped rather than failing the whole sync pass.
func (m *Manager) syncRelationships(ctx context.Context, node map[string]any, layer types.KnowledgeLayer) (int, error) {
	id, ok := node["id"]
	if !ok {
		return 0, nil
	}
	cypher := "MATCH (n {id: $id})-[r]->(m) RETURN type(r) as relType, r as props, m.id as targetID, labels(m)[0] as targetLabel"
	result, err := m.client.Query(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return 0, types.WrapError(types.ErrQuery, "dkm: relationship scan failed", err)
	}

	synced := 0
	for _, rec := range result.Records {
		relType, _ := rec["relType"].(string)
		targetID, _ := rec["targetID"]
		if relType == "" || targetID == nil {
			continue
		}
		props, _ := rec["props"].(map[string]any)
		if props == nil {
			props = map[string]any{}
		}
		createCypher := fmt.Sprintf("MATCH (s {id: $sid}), (t {id: $tid}) MERGE (s)-[r:%s]->(t) SET r += $props", relType)
		if _, err := m.client.Query(ctx, createCypher, map[string]any{
			"sid": id, "tid": targetID, "props": props,
		}); err != nil {
			return synced, types.WrapError(types.ErrQuery, "dkm: relationship sync failed", err)
		}
		synced++
	}
	return synced, nil
}

// syncRelationshipsDeferred mirrors syncRelationships but distinguishes a
// relationship whose target endpoint does not yet exist in the target
// layer: rather than silently dropping it, it is counted as deferred so
// Synchronize's caller knows a later pass (once the endpoint has synced)
// is needed to carry it over.
func (m *Manager) syncRelationshipsDeferred(ctx context.Context, node map[string]any, layer types.KnowledgeLayer) (synced, deferred int, err error) {
	id, ok := node["id"]
	if !ok {
		return 0, 0, nil
	}
	cypher := "MATCH (n {id: $id})-[r]->(m) RETURN type(r) as relType, r as props, m.id as targetID"
	result, qErr := m.client.Query(ctx, cypher, map[string]any{"id": id})
	if qErr != nil {
		return 0, 0, types.WrapError(types.ErrQuery, "dkm: relationship scan failed", qErr)
	}

	for _, rec := range result.Records {
		relType, _ := rec["relType"].(string)
		targetID, _ := rec["targetID"]
		if relType == "" || targetID == nil {
			continue
		}

		exists, existsErr := m.nodeExists(ctx, targetID, layer)
		if existsErr != nil {
			return synced, deferred, existsErr
		}
		if !exists {
			deferred++
			continue
		}

		props, _ := rec["props"].(map[string]any)
		if props == nil {
			props = map[string]any{}
		}
		createCypher := fmt.Sprintf("MATCH (s {id: $sid}), (t {id: $tid}) MERGE (s)-[r:%s]->(t) SET r += $props", relType)
		if _, createErr := m.client.Query(ctx, createCypher, map[string]any{
			"sid": id, "tid": targetID, "props": props,
		}); createErr != nil {
			return synced, deferred, types.WrapError(types.ErrQuery, "dkm: relationship sync failed", createErr)
		}
		synced++
	}
	return synced, deferred, nil
}

func (m *Manager) nodeExists(ctx context.Context, id any, layer types.KnowledgeLayer) (bool, error) {
	cypher := "MATCH (n) WHERE n.id = $id AND n.layer = $layer RETURN n LIMIT 1"
	result, err := m.client.Query(ctx, cypher, map[string]any{
		"id": id, "layer": string(layer),
	})
	if err != nil {
		return false, types.WrapError(types.ErrQuery, "dkm: endpoint existence check failed", err)
	}
	return len(result.Records) > 0, nil
}

// Synchronize runs ruleName against source and target, applying the
// sharing/access veto policies, any registered schema mapping, and
// last-writer-wins conflict resolution, mirroring the DKM's declarative
// synchronization rules rather than the fixed private/shared passes sync()
// drives. If items is nil, the rule's own labels (or, if empty, every
// registered label) are pulled from source and synced item by item;
// passing items directly lets a caller (e.g. the Synchronizer reacting to
// a single on_event trigger) synchronize a specific, already-known set of
// records instead of rescanning the whole layer.
func (m *Manager) Synchronize(ctx context.Context, source, target, ruleName string, items []map[string]any) (*SyncSummary, error) {
	m.mu.RLock()
	rule, ok := m.rules[ruleName]
	m.mu.RUnlock()
	if !ok {
		return nil, types.NewError(types.ErrEntityNotFound, fmt.Sprintf("dkm: synchronization rule %q not registered", ruleName))
	}

	summary := &SyncSummary{}
	if err := m.synchronizeOnce(ctx, source, target, rule, items, summary); err != nil {
		return summary, err
	}
	if rule.Bidirectional {
		// Two deterministic unidirectional passes, local (source) to
		// global (target) first, then the reverse.
		if err := m.synchronizeOnce(ctx, target, source, rule, nil, summary); err != nil {
			return summary, err
		}
	}

	if m.bus != nil {
		_ = m.bus.Publish(ctx, events.Event{
			Type:      events.EventKnowledgeSynchronized,
			Timestamp: time.Now().UTC(),
			AgentName: m.agentID,
			Payload: events.KnowledgeSyncedPayload{
				RuleName: ruleName, Source: source, Target: target,
				ItemsApplied: summary.ItemsApplied, ItemsVetoed: summary.ItemsVetoed, ItemsDeferred: summary.ItemsDeferred,
			},
		})
	}
	return summary, nil
}

func (m *Manager) synchronizeOnce(ctx context.Context, source, target string, rule *SynchronizationRule, items []map[string]any, summary *SyncSummary) error {
	fromLayer, fromOwner := m.resolveLayer(source)
	toLayer, toOwner := m.resolveLayer(target)

	labels := rule.Labels
	if len(labels) == 0 {
		labels = m.registry.Labels()
	}

	for _, label := range labels {
		sourceItems := items
		if sourceItems == nil {
			fetched, err := m.fetchLayer(ctx, label, fromLayer, fromOwner)
			if err != nil {
				return err
			}
			sourceItems = fetched
		}

		mapping, _ := m.mappingFor(label)
		targetLabel := label
		if mapping != nil {
			targetLabel = mapping.TargetLabel
		}

		for _, item := range sourceItems {
			if vetoed, reason, policyName := m.checkPolicies(item, label); vetoed {
				summary.ItemsVetoed++
				if m.bus != nil {
					_ = m.bus.Publish(ctx, events.Event{
						Type:      events.EventPolicyVeto,
						Timestamp: time.Now().UTC(),
						AgentName: m.agentID,
						Payload: events.PolicyVetoPayload{
							PolicyName: policyName, Reason: reason, NodeID: fmt.Sprint(item["id"]),
						},
					})
				}
				continue
			}

			mapped := applyMapping(item, mapping)

			keyProps := keyPropertiesFor(targetLabel)
			existing, err := m.findMatching(ctx, targetLabel, toLayer, toOwner, mapped, keyProps)
			if err != nil {
				return err
			}
			if existing != nil {
				merged := mergeProperties(mapped, existing, keyProps)
				if len(merged) > 0 {
					summary.ConflictsResolved++
				}
				if err := m.updateNode(ctx, targetLabel, existing["id"], merged); err != nil {
					return err
				}
			} else {
				if err := m.createNode(ctx, targetLabel, mapped, fromLayer, toLayer, toOwner); err != nil {
					return err
				}
			}
			summary.ItemsApplied++
			summary.NodesSynced++

			synced, deferred, err := m.syncRelationshipsDeferred(ctx, mapped, toLayer)
			if err != nil {
				return err
			}
			summary.RelationshipsSynced += synced
			summary.ItemsDeferred += deferred
		}
	}
	return nil
}

func extractNodes(result *graph.QueryResult, key string) []map[string]any {
	out := make([]map[string]any, 0, len(result.Records))
	for _, rec := range result.Records {
		if n, ok := rec[key].(map[string]any); ok {
			out = append(out, n)
		}
	}
	return out
}
