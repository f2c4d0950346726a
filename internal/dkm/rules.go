package dkm

import (
	"context"
	"fmt"
	"time"

	"github.com/agentfabric/knowledgefabric/internal/schema"
	"github.com/agentfabric/knowledgefabric/internal/types"
)

// ManagedKG is a named private or shared knowledge graph layer the DKM
// tracks as a synchronization endpoint. Registering one gives a rule or
// policy a stable name to reference instead of a bare layer/owner pair.
type ManagedKG struct {
	ID        types.ID
	Name      string
	Layer     types.KnowledgeLayer
	Owner     string // non-empty for a private ManagedKG, empty for shared
	CreatedAt time.Time
}

// SynchronizationRule declares how and when two ManagedKGs are kept
// consistent: which labels move, in which direction(s), and what cadence
// triggers the pass.
type SynchronizationRule struct {
	Name          string
	Source        string
	Target        string
	Labels        []string // empty means every registered label
	Cadence       string   // "scheduled", "on_event", "manual"
	TriggerEvent  string   // event type pattern that fires this rule when Cadence == "on_event"
	Bidirectional bool
}

// SchemaMapping translates a node's label (and, if PropertyMap is set,
// individual property names) when it crosses from SourceLabel's ManagedKG
// into TargetLabel's.
type SchemaMapping struct {
	SourceLabel string
	TargetLabel string
	PropertyMap map[string]string // source property name -> target property name
}

// KnowledgePolicy is a sharing/access predicate evaluated against every
// item a Synchronize pass considers. Veto returns true (and a reason) to
// block the item from crossing layers.
type KnowledgePolicy struct {
	Name  string
	Label string // label this policy applies to; empty means every label
	Veto  func(item map[string]any) (vetoed bool, reason string)
}

// CreateManagedKG registers and persists a new ManagedKG node, so it can
// be referenced by name from SynchronizationRule.Source/Target.
func (m *Manager) CreateManagedKG(ctx context.Context, name string, layer types.KnowledgeLayer, owner string) (*ManagedKG, error) {
	if name == "" {
		return nil, fmt.Errorf("dkm: managed KG name cannot be empty")
	}
	kg := &ManagedKG{ID: types.NewID(), Name: name, Layer: layer, Owner: owner, CreatedAt: time.Now().UTC()}

	props := map[string]any{
		"id": string(kg.ID), "name": kg.Name, "layer": string(kg.Layer), "owner": kg.Owner,
		"created_at": kg.CreatedAt, "updated_at": kg.CreatedAt,
	}
	if _, err := m.client.CreateNode(ctx, schema.LabelManagedKG, props); err != nil {
		return nil, types.WrapError(types.ErrQuery, "dkm: failed to create ManagedKG", err)
	}

	m.mu.Lock()
	m.managedKGs[name] = kg
	m.mu.Unlock()
	return kg, nil
}

// RegisterRule adds or replaces a SynchronizationRule under rule.Name.
func (m *Manager) RegisterRule(rule SynchronizationRule) error {
	if rule.Name == "" {
		return fmt.Errorf("dkm: synchronization rule name cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rule.Name] = &rule
	return nil
}

// RegisterMapping adds a SchemaMapping for translating SourceLabel into
// TargetLabel during synchronization. Multiple mappings may share a
// SourceLabel; Synchronize uses the most recently registered one.
func (m *Manager) RegisterMapping(mapping SchemaMapping) error {
	if mapping.SourceLabel == "" || mapping.TargetLabel == "" {
		return fmt.Errorf("dkm: schema mapping requires both a source and target label")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mappings[mapping.SourceLabel] = &mapping
	return nil
}

// RegisterPolicy adds policy to the set evaluated against every item a
// Synchronize pass considers.
func (m *Manager) RegisterPolicy(policy KnowledgePolicy) error {
	if policy.Name == "" {
		return fmt.Errorf("dkm: knowledge policy name cannot be empty")
	}
	if policy.Veto == nil {
		return fmt.Errorf("dkm: knowledge policy %q has no veto predicate", policy.Name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies = append(m.policies, policy)
	return nil
}

// checkPolicies evaluates every registered policy applicable to label
// against item, returning the first veto encountered.
func (m *Manager) checkPolicies(item map[string]any, label string) (vetoed bool, reason string, policyName string) {
	m.mu.RLock()
	policies := append([]KnowledgePolicy(nil), m.policies...)
	m.mu.RUnlock()

	for _, p := range policies {
		if p.Label != "" && p.Label != label {
			continue
		}
		if v, r := p.Veto(item); v {
			return true, r, p.Name
		}
	}
	return false, "", ""
}

// mappingFor returns the registered SchemaMapping for label, if any.
func (m *Manager) mappingFor(label string) (*SchemaMapping, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mapping, ok := m.mappings[label]
	return mapping, ok
}

// applyMapping renames item's keys per mapping.PropertyMap and returns the
// renamed copy; the target label is read from mapping.TargetLabel by the
// caller. Items with no registered mapping, or a mapping with no
// PropertyMap, pass through unchanged.
func applyMapping(item map[string]any, mapping *SchemaMapping) map[string]any {
	if mapping == nil || len(mapping.PropertyMap) == 0 {
		return item
	}
	out := make(map[string]any, len(item))
	for k, v := range item {
		if renamed, ok := mapping.PropertyMap[k]; ok {
			out[renamed] = v
			continue
		}
		out[k] = v
	}
	return out
}

// Rule returns the registered SynchronizationRule named name, if any.
func (m *Manager) Rule(name string) (SynchronizationRule, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rule, ok := m.rules[name]
	if !ok {
		return SynchronizationRule{}, false
	}
	return *rule, true
}

// Rules returns every registered SynchronizationRule, for callers (like
// the Synchronizer) that need to discover on_event rules to subscribe to
// or report per-rule status without reaching into Manager internals.
func (m *Manager) Rules() []SynchronizationRule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SynchronizationRule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, *r)
	}
	return out
}

// resolveLayer resolves a Synchronize source/target argument: a name
// registered via CreateManagedKG resolves to its Layer/Owner; otherwise
// the argument is treated as a bare layer value ("shared") or, for any
// other non-empty string, a private owner id (mirroring the SyncToShared/
// SyncFromShared convention of naming the private side by agent id).
func (m *Manager) resolveLayer(name string) (types.KnowledgeLayer, string) {
	m.mu.RLock()
	kg, ok := m.managedKGs[name]
	m.mu.RUnlock()
	if ok {
		return kg.Layer, kg.Owner
	}
	if types.KnowledgeLayer(name) == types.LayerShared {
		return types.LayerShared, ""
	}
	return types.LayerPrivate, name
}
