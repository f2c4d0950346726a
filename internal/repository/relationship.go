package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/agentfabric/knowledgefabric/internal/graph"
	"github.com/agentfabric/knowledgefabric/internal/schema"
	"github.com/agentfabric/knowledgefabric/internal/types"
)

// RelationshipRepository creates and queries typed relationships between
// nodes, validating endpoint labels against the schema Registry.
type RelationshipRepository struct {
	client   graph.GraphClient
	registry *schema.Registry
}

func NewRelationshipRepository(client graph.GraphClient, registry *schema.Registry) *RelationshipRepository {
	return &RelationshipRepository{client: client, registry: registry}
}

// Create links fromID -> toID with relType, validating that sourceLabel
// and targetLabel are permitted endpoints for relType.
func (r *RelationshipRepository) Create(ctx context.Context, relType, sourceLabel, fromID, targetLabel, toID string, props map[string]any) error {
	if props == nil {
		props = map[string]any{}
	}
	props["created_at"] = time.Now().UTC()

	if r.registry != nil {
		if err := r.registry.ValidateRelationship(relType, sourceLabel, targetLabel, props); err != nil {
			return types.WrapError(types.ErrValidation, "relationship validation failed", err)
		}
	}

	_, err := r.client.CreateRelationship(ctx, fromID, toID, relType, props)
	return err
}

// Neighbors returns nodes connected to id by relType in the given direction
// ("out", "in", or "both").
func (r *RelationshipRepository) Neighbors(ctx context.Context, id, relType, direction string) ([]map[string]any, error) {
	var pattern string
	switch direction {
	case "out":
		pattern = fmt.Sprintf("(n {id: $id})-[:%s]->(m)", relType)
	case "in":
		pattern = fmt.Sprintf("(n {id: $id})<-[:%s]-(m)", relType)
	default:
		pattern = fmt.Sprintf("(n {id: $id})-[:%s]-(m)", relType)
	}
	cypher := fmt.Sprintf("MATCH %s RETURN m", pattern)
	result, err := r.client.Query(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	return allNodes(result, "m")
}
