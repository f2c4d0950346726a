// Package schema implements the declarative Schema Registry: per-label
// property and constraint definitions, used to validate node and
// relationship writes before they reach the Graph Access Layer.
package schema

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentfabric/knowledgefabric/internal/graph"
	"github.com/agentfabric/knowledgefabric/internal/types"
)

// PropertyType enumerates the primitive property types the registry accepts.
type PropertyType string

const (
	TypeString   PropertyType = "string"
	TypeInt      PropertyType = "int"
	TypeFloat    PropertyType = "float"
	TypeBool     PropertyType = "bool"
	TypeDateTime PropertyType = "datetime"
	TypeList     PropertyType = "list"
)

// Property defines one property of a node or relationship schema.
type Property struct {
	Name        string
	Type        PropertyType
	Required    bool
	Description string
	Default     any
}

// NodeSchema declares the shape of all nodes carrying a given label.
type NodeSchema struct {
	Label       string
	Description string
	Properties  []Property
	Unique      []string // property names that must be unique among nodes of this label
}

func (s NodeSchema) property(name string) (Property, bool) {
	for _, p := range s.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// RelationshipSchema declares the shape and valid endpoints of a relationship type.
type RelationshipSchema struct {
	Type         string
	Description  string
	SourceLabels []string
	TargetLabels []string
	Properties   []Property
}

func (s RelationshipSchema) allowsEndpoints(sourceLabel, targetLabel string) bool {
	return contains(s.SourceLabels, sourceLabel) && contains(s.TargetLabels, targetLabel)
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// Registry holds the live set of node and relationship schemas, including
// core definitions and any domain-namespaced extensions registered at
// runtime. Registry is safe for concurrent use.
type Registry struct {
	mu            sync.RWMutex
	nodes         map[string]NodeSchema
	relationships map[string]RelationshipSchema
}

// New returns a Registry pre-populated with the core schema.
func New() *Registry {
	r := &Registry{
		nodes:         make(map[string]NodeSchema),
		relationships: make(map[string]RelationshipSchema),
	}
	for _, n := range CoreNodeSchemas() {
		r.nodes[n.Label] = n
	}
	for _, rel := range CoreRelationshipSchemas() {
		r.relationships[rel.Type] = rel
	}
	return r
}

// RegisterNode adds a new node schema, or replaces an existing one of the
// same label if s is compatible with it (see isCompatibleNode). Domain
// extensions should namespace their label (e.g. "secops:Finding") to
// avoid colliding with core labels.
func (r *Registry) RegisterNode(s NodeSchema) error {
	if s.Label == "" {
		return fmt.Errorf("schema: node label cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.nodes[s.Label]; ok {
		if err := isCompatibleNode(existing, s); err != nil {
			return types.WrapError(types.ErrSchemaConflict,
				fmt.Sprintf("schema: label %q redefined incompatibly", s.Label), err)
		}
	}
	r.nodes[s.Label] = s
	return nil
}

// RegisterRelationship adds a new relationship schema, or replaces an
// existing one of the same type if s is compatible with it (see
// isCompatibleRelationship).
func (r *Registry) RegisterRelationship(s RelationshipSchema) error {
	if s.Type == "" {
		return fmt.Errorf("schema: relationship type cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.relationships[s.Type]; ok {
		if err := isCompatibleRelationship(existing, s); err != nil {
			return types.WrapError(types.ErrSchemaConflict,
				fmt.Sprintf("schema: relationship %q redefined incompatibly", s.Type), err)
		}
	}
	r.relationships[s.Type] = s
	return nil
}

// isCompatibleNode reports whether replacement may safely take over for
// existing: every property existing declares must still be declared with
// the same type, and a property existing marks Required must still be
// Required, and every uniqueness constraint existing declares must still
// hold. Replacement may freely add new optional properties.
func isCompatibleNode(existing, replacement NodeSchema) error {
	for _, ep := range existing.Properties {
		np, ok := replacement.property(ep.Name)
		if !ok {
			return fmt.Errorf("property %q dropped", ep.Name)
		}
		if np.Type != ep.Type {
			return fmt.Errorf("property %q type changed from %s to %s", ep.Name, ep.Type, np.Type)
		}
		if ep.Required && !np.Required {
			return fmt.Errorf("property %q is no longer required", ep.Name)
		}
	}
	for _, u := range existing.Unique {
		if !contains(replacement.Unique, u) {
			return fmt.Errorf("uniqueness constraint on %q dropped", u)
		}
	}
	return nil
}

// isCompatibleRelationship mirrors isCompatibleNode for relationship
// schemas: existing properties and endpoint labels must remain valid
// under replacement.
func isCompatibleRelationship(existing, replacement RelationshipSchema) error {
	for _, ep := range existing.Properties {
		var np Property
		var ok bool
		for _, p := range replacement.Properties {
			if p.Name == ep.Name {
				np, ok = p, true
				break
			}
		}
		if !ok {
			return fmt.Errorf("property %q dropped", ep.Name)
		}
		if np.Type != ep.Type {
			return fmt.Errorf("property %q type changed from %s to %s", ep.Name, ep.Type, np.Type)
		}
		if ep.Required && !np.Required {
			return fmt.Errorf("property %q is no longer required", ep.Name)
		}
	}
	for _, l := range existing.SourceLabels {
		if !contains(replacement.SourceLabels, l) {
			return fmt.Errorf("source label %q dropped", l)
		}
	}
	for _, l := range existing.TargetLabels {
		if !contains(replacement.TargetLabels, l) {
			return fmt.Errorf("target label %q dropped", l)
		}
	}
	return nil
}

// DomainExtension groups the node and relationship schemas a single
// domain namespace registers together via ExtendForDomain.
type DomainExtension struct {
	Nodes         []NodeSchema
	Relationships []RelationshipSchema
}

// ExtendForDomain registers every node and relationship schema in
// extension under domainName. All candidates are checked for
// compatibility against anything already registered before any of them
// are committed, so a single incompatible label fails the whole
// extension rather than leaving the registry partially updated. Returns
// a SchemaConflict-coded error naming the offending label or type if an
// existing definition would be redefined incompatibly.
func (r *Registry) ExtendForDomain(domainName string, extension DomainExtension) error {
	if domainName == "" {
		return fmt.Errorf("schema: domain name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range extension.Nodes {
		if n.Label == "" {
			return fmt.Errorf("schema: node label cannot be empty")
		}
		if existing, ok := r.nodes[n.Label]; ok {
			if err := isCompatibleNode(existing, n); err != nil {
				return types.WrapError(types.ErrSchemaConflict,
					fmt.Sprintf("schema: domain %q: label %q conflicts with existing schema", domainName, n.Label), err)
			}
		}
	}
	for _, rel := range extension.Relationships {
		if rel.Type == "" {
			return fmt.Errorf("schema: relationship type cannot be empty")
		}
		if existing, ok := r.relationships[rel.Type]; ok {
			if err := isCompatibleRelationship(existing, rel); err != nil {
				return types.WrapError(types.ErrSchemaConflict,
					fmt.Sprintf("schema: domain %q: relationship %q conflicts with existing schema", domainName, rel.Type), err)
			}
		}
	}

	for _, n := range extension.Nodes {
		r.nodes[n.Label] = n
	}
	for _, rel := range extension.Relationships {
		r.relationships[rel.Type] = rel
	}
	return nil
}

// Initialize issues backend statements creating a uniqueness constraint
// for every property each registered node schema marks Unique, plus
// lookup indexes on the frequently queried name/type/status properties
// when a schema declares them. It is idempotent: Neo4j's IF NOT EXISTS
// constraint/index syntax makes repeated calls (e.g. on every agent
// restart) no-ops against an already-initialized backend.
func (r *Registry) Initialize(ctx context.Context, client graph.GraphClient) error {
	r.mu.RLock()
	nodes := make([]NodeSchema, 0, len(r.nodes))
	for _, n := range r.nodes {
		nodes = append(nodes, n)
	}
	r.mu.RUnlock()

	indexedProps := map[string]bool{"name": true, "type": true, "status": true}

	for _, n := range nodes {
		for _, prop := range n.Unique {
			cypher := fmt.Sprintf(
				"CREATE CONSTRAINT IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE",
				n.Label, prop,
			)
			if _, err := client.Query(ctx, cypher, nil); err != nil {
				return types.WrapError(types.ErrSchemaConflict,
					fmt.Sprintf("schema: failed to create uniqueness constraint on %s.%s", n.Label, prop), err)
			}
		}
		for _, p := range n.Properties {
			if !indexedProps[p.Name] {
				continue
			}
			indexName := fmt.Sprintf("idx_%s_%s", n.Label, p.Name)
			cypher := fmt.Sprintf(
				"CREATE INDEX %s IF NOT EXISTS FOR (n:%s) ON (n.%s)",
				indexName, n.Label, p.Name,
			)
			if _, err := client.Query(ctx, cypher, nil); err != nil {
				return types.WrapError(types.ErrSchemaConflict,
					fmt.Sprintf("schema: failed to create index on %s.%s", n.Label, p.Name), err)
			}
		}
		if n.Label == LabelMemory {
			if _, err := client.Query(ctx,
				"CREATE VECTOR INDEX memory_embedding IF NOT EXISTS FOR (n:Memory) ON (n.embedding) "+
					"OPTIONS {indexConfig: {`vector.dimensions`: 384, `vector.similarity_function`: 'cosine'}}",
				nil); err != nil {
				return types.WrapError(types.ErrSchemaConflict, "schema: failed to create Memory vector index", err)
			}
		}
	}
	return nil
}

// NodeSchema returns the registered schema for label, if any.
func (r *Registry) NodeSchema(label string) (NodeSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.nodes[label]
	return s, ok
}

// Labels returns every node label currently registered, core and extended.
func (r *Registry) Labels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	labels := make([]string, 0, len(r.nodes))
	for label := range r.nodes {
		labels = append(labels, label)
	}
	return labels
}

// RelationshipSchema returns the registered schema for relType, if any.
func (r *Registry) RelationshipSchema(relType string) (RelationshipSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.relationships[relType]
	return s, ok
}

// ValidateNode checks props against the registered schema for label:
// required properties must be present, and every present property must
// match its declared type. Unknown properties are permitted — the schema
// is closed over required fields, not over the full property set.
func (r *Registry) ValidateNode(label string, props map[string]any) error {
	schema, ok := r.NodeSchema(label)
	if !ok {
		return fmt.Errorf("schema: unknown node label %q", label)
	}
	for _, p := range schema.Properties {
		v, present := props[p.Name]
		if !present {
			if p.Required {
				return fmt.Errorf("schema: %s.%s is required", label, p.Name)
			}
			continue
		}
		if err := checkType(p, v); err != nil {
			return fmt.Errorf("schema: %s.%s: %w", label, p.Name, err)
		}
	}
	return nil
}

// ValidateNodePartial checks only the properties present in props against
// label's registered schema's declared types, without requiring every
// Required property to be present. Used for partial updates, where props
// deliberately carries a subset of a node's fields.
func (r *Registry) ValidateNodePartial(label string, props map[string]any) error {
	schema, ok := r.NodeSchema(label)
	if !ok {
		return fmt.Errorf("schema: unknown node label %q", label)
	}
	for _, p := range schema.Properties {
		v, present := props[p.Name]
		if !present {
			continue
		}
		if err := checkType(p, v); err != nil {
			return fmt.Errorf("schema: %s.%s: %w", label, p.Name, err)
		}
	}
	return nil
}

// ValidateRelationship checks that relType is registered and that its
// declared endpoint labels permit linking sourceLabel to targetLabel.
func (r *Registry) ValidateRelationship(relType, sourceLabel, targetLabel string, props map[string]any) error {
	schema, ok := r.RelationshipSchema(relType)
	if !ok {
		return fmt.Errorf("schema: unknown relationship type %q", relType)
	}
	if !schema.allowsEndpoints(sourceLabel, targetLabel) {
		return fmt.Errorf("schema: relationship %q does not permit %s -> %s", relType, sourceLabel, targetLabel)
	}
	for _, p := range schema.Properties {
		v, present := props[p.Name]
		if !present {
			if p.Required {
				return fmt.Errorf("schema: %s.%s is required", relType, p.Name)
			}
			continue
		}
		if err := checkType(p, v); err != nil {
			return fmt.Errorf("schema: %s.%s: %w", relType, p.Name, err)
		}
	}
	return nil
}

func checkType(p Property, v any) error {
	switch p.Type {
	case TypeString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
	case TypeInt:
		switch v.(type) {
		case int, int32, int64:
		default:
			return fmt.Errorf("expected int, got %T", v)
		}
	case TypeFloat:
		switch v.(type) {
		case float32, float64:
		default:
			return fmt.Errorf("expected float, got %T", v)
		}
	case TypeBool:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("expected bool, got %T", v)
		}
	case TypeList:
		if _, ok := v.([]any); !ok {
			return fmt.Errorf("expected list, got %T", v)
		}
	case TypeDateTime:
		// accepted as either time.Time or an RFC3339 string by callers;
		// the registry only checks presence, not format, to stay backend-agnostic.
	}
	return nil
}
