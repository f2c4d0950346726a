// Package repository implements the typed, per-label repository pattern
// atop the Graph Access Layer. Each node label gets a thin typed accessor
// sharing the CRUD semantics implemented here: idempotent Create via
// MERGE, Get/Update/Delete by id, and label-scoped List.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/agentfabric/knowledgefabric/internal/graph"
	"github.com/agentfabric/knowledgefabric/internal/schema"
	"github.com/agentfabric/knowledgefabric/internal/types"
)

// Base provides the CRUD operations shared by every label-specific
// repository. It validates writes against the schema Registry before
// issuing Cypher through the GraphClient.
type Base struct {
	client   graph.GraphClient
	registry *schema.Registry
	label    string
}

// NewBase constructs a Base repository for label, validating writes
// against registry.
func NewBase(client graph.GraphClient, registry *schema.Registry, label string) Base {
	return Base{client: client, registry: registry, label: label}
}

// Create idempotently creates a node of this label keyed by id: if a node
// with this id already exists, its properties are merged (ON MATCH SET);
// otherwise a new node is created (ON CREATE SET). This mirrors the
// MERGE-dedup pattern used everywhere idempotent writes are required.
func (b Base) Create(ctx context.Context, props map[string]any) (map[string]any, error) {
	id, ok := props["id"].(string)
	if !ok || id == "" {
		newID := types.NewID()
		id = newID.String()
		props["id"] = id
	}
	now := time.Now().UTC()
	if _, ok := props["created_at"]; !ok {
		props["created_at"] = now
	}
	props["updated_at"] = now

	if b.registry != nil {
		if err := b.registry.ValidateNode(b.label, props); err != nil {
			return nil, types.WrapError(types.ErrValidation, "repository: validation failed", err)
		}
	}

	cypher := fmt.Sprintf(`
		MERGE (n:%s {id: $id})
		ON CREATE SET n = $props
		ON MATCH SET n += $props
		RETURN n
	`, b.label)

	result, err := b.client.Query(ctx, cypher, map[string]any{"id": id, "props": props})
	if err != nil {
		return nil, err
	}
	return firstNode(result, "n")
}

// Get retrieves a node by id, returning EntityNotFound if it doesn't exist.
func (b Base) Get(ctx context.Context, id string) (map[string]any, error) {
	cypher := fmt.Sprintf("MATCH (n:%s {id: $id}) RETURN n", b.label)
	result, err := b.client.Query(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	node, err := firstNode(result, "n")
	if err != nil {
		return nil, types.WrapError(types.ErrEntityNotFound, fmt.Sprintf("%s %s not found", b.label, id), err)
	}
	return node, nil
}

// Update applies a partial property update to an existing node, returning
// EntityNotFound if the node doesn't exist. Unlike Create, Update never
// creates a node.
func (b Base) Update(ctx context.Context, id string, props map[string]any) (map[string]any, error) {
	if b.registry != nil {
		if err := b.registry.ValidateNodePartial(b.label, props); err != nil {
			return nil, types.WrapError(types.ErrValidation, "repository: validation failed", err)
		}
	}

	props["updated_at"] = time.Now().UTC()

	cypher := fmt.Sprintf(`
		MATCH (n:%s {id: $id})
		SET n += $props
		RETURN n
	`, b.label)

	result, err := b.client.Query(ctx, cypher, map[string]any{"id": id, "props": props})
	if err != nil {
		return nil, err
	}
	node, err := firstNode(result, "n")
	if err != nil {
		return nil, types.WrapError(types.ErrEntityNotFound, fmt.Sprintf("%s %s not found", b.label, id), err)
	}
	return node, nil
}

// Delete removes a node and its relationships by id.
func (b Base) Delete(ctx context.Context, id string) error {
	return b.client.DeleteNode(ctx, b.label, id)
}

// List returns up to limit nodes of this label, optionally filtered by an
// exact-match property predicate.
func (b Base) List(ctx context.Context, filter map[string]any, limit int) ([]map[string]any, error) {
	if limit <= 0 {
		limit = 100
	}
	cypher := fmt.Sprintf("MATCH (n:%s) WHERE $filter = {} OR true RETURN n LIMIT $limit", b.label)
	params := map[string]any{"filter": filter, "limit": limit}
	if len(filter) > 0 {
		cypher = fmt.Sprintf("MATCH (n:%s) WHERE all(k IN keys($filter) WHERE n[k] = $filter[k]) RETURN n LIMIT $limit", b.label)
	}
	result, err := b.client.Query(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return allNodes(result, "n")
}

func firstNode(result *graph.QueryResult, key string) (map[string]any, error) {
	if len(result.Records) == 0 {
		return nil, fmt.Errorf("no records returned")
	}
	v, ok := result.Records[0][key]
	if !ok {
		return nil, fmt.Errorf("missing key %q in record", key)
	}
	node, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("key %q is not a node map", key)
	}
	return node, nil
}

func allNodes(result *graph.QueryResult, key string) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(result.Records))
	for _, rec := range result.Records {
		v, ok := rec[key]
		if !ok {
			continue
		}
		node, ok := v.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, node)
	}
	return out, nil
}
