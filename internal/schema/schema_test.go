package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfabric/knowledgefabric/internal/graph"
	"github.com/agentfabric/knowledgefabric/internal/types"
)

func TestNewRegistrySeedsCore(t *testing.T) {
	r := New()
	s, ok := r.NodeSchema(LabelComponent)
	require.True(t, ok)
	assert.Equal(t, LabelComponent, s.Label)

	_, ok = r.RelationshipSchema(RelDependsOn)
	require.True(t, ok)
}

func TestValidateNodeRequiredFields(t *testing.T) {
	r := New()
	err := r.ValidateNode(LabelDomain, map[string]any{
		"id":         "d1",
		"created_at": "2026-01-01T00:00:00Z",
		"updated_at": "2026-01-01T00:00:00Z",
	})
	assert.Error(t, err, "name is required and missing")

	err = r.ValidateNode(LabelDomain, map[string]any{
		"id":         "d1",
		"name":       "cybersecurity",
		"created_at": "2026-01-01T00:00:00Z",
		"updated_at": "2026-01-01T00:00:00Z",
	})
	assert.NoError(t, err)
}

func TestValidateNodeWrongType(t *testing.T) {
	r := New()
	err := r.ValidateNode(LabelProject, map[string]any{
		"id":         "p1",
		"name":       "fabric",
		"status":     42,
		"created_at": "2026-01-01T00:00:00Z",
		"updated_at": "2026-01-01T00:00:00Z",
	})
	assert.Error(t, err)
}

func TestValidateNodeUnknownLabel(t *testing.T) {
	r := New()
	err := r.ValidateNode("NotALabel", map[string]any{})
	assert.Error(t, err)
}

func TestValidateRelationshipEndpoints(t *testing.T) {
	r := New()
	err := r.ValidateRelationship(RelImplements, LabelComponent, LabelRequirement, map[string]any{
		"created_at": "2026-01-01T00:00:00Z",
	})
	assert.NoError(t, err)

	err = r.ValidateRelationship(RelImplements, LabelDomain, LabelRequirement, map[string]any{
		"created_at": "2026-01-01T00:00:00Z",
	})
	assert.Error(t, err, "Domain is not a valid source label for IMPLEMENTS")
}

func TestRegisterNodeExtendsRegistry(t *testing.T) {
	r := New()
	err := r.RegisterNode(NodeSchema{
		Label: "secops:Finding",
		Properties: []Property{
			{Name: "id", Type: TypeString, Required: true},
			{Name: "severity", Type: TypeString, Required: true},
		},
	})
	require.NoError(t, err)

	err = r.ValidateNode("secops:Finding", map[string]any{"id": "f1", "severity": "high"})
	assert.NoError(t, err)
}

func TestRegisterNodeRejectsEmptyLabel(t *testing.T) {
	r := New()
	err := r.RegisterNode(NodeSchema{})
	assert.Error(t, err)
}

func TestRegisterNodeRejectsIncompatibleRedefinition(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterNode(NodeSchema{
		Label:      "secops:Finding",
		Unique:     []string{"id"},
		Properties: []Property{{Name: "id", Type: TypeString, Required: true}},
	}))

	err := r.RegisterNode(NodeSchema{
		Label:      "secops:Finding",
		Properties: []Property{{Name: "id", Type: TypeInt, Required: true}},
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrSchemaConflict, types.CodeOf(err))
}

func TestRegisterNodeAllowsCompatibleRedefinition(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterNode(NodeSchema{
		Label:      "secops:Finding",
		Properties: []Property{{Name: "id", Type: TypeString, Required: true}},
	}))

	err := r.RegisterNode(NodeSchema{
		Label: "secops:Finding",
		Properties: []Property{
			{Name: "id", Type: TypeString, Required: true},
			{Name: "severity", Type: TypeString},
		},
	})
	assert.NoError(t, err)
}

func TestExtendForDomainRejectsConflictAtomically(t *testing.T) {
	r := New()
	err := r.ExtendForDomain("secops", DomainExtension{
		Nodes: []NodeSchema{
			{Label: "secops:Finding", Properties: []Property{{Name: "id", Type: TypeString, Required: true}}},
		},
	})
	require.NoError(t, err)

	err = r.ExtendForDomain("secops", DomainExtension{
		Nodes: []NodeSchema{
			{Label: "secops:Finding", Properties: []Property{{Name: "id", Type: TypeInt, Required: true}}},
			{Label: "secops:Incident", Properties: []Property{{Name: "id", Type: TypeString, Required: true}}},
		},
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrSchemaConflict, types.CodeOf(err))

	// The whole extension must have been rejected: secops:Incident must
	// not have been committed even though it was itself conflict-free.
	_, ok := r.NodeSchema("secops:Incident")
	assert.False(t, ok)
}

func TestInitializeIssuesConstraintsAndIndexes(t *testing.T) {
	r := New()
	client := graph.NewMockClient()
	require.NoError(t, r.Initialize(context.Background(), client))

	var sawConstraint, sawIndex, sawVectorIndex bool
	for _, call := range client.Calls {
		switch {
		case containsSubstr(call.Cypher, "CREATE VECTOR INDEX"):
			sawVectorIndex = true
		case containsSubstr(call.Cypher, "CREATE CONSTRAINT"):
			sawConstraint = true
		case containsSubstr(call.Cypher, "CREATE INDEX"):
			sawIndex = true
		}
	}
	assert.True(t, sawConstraint, "expected at least one uniqueness constraint statement")
	assert.True(t, sawIndex, "expected at least one lookup index statement")
	assert.True(t, sawVectorIndex, "expected the Memory embedding vector index statement")
}

func containsSubstr(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(substr) == 0 ||
		func() bool {
			for i := 0; i+len(substr) <= len(s); i++ {
				if s[i:i+len(substr)] == substr {
					return true
				}
			}
			return false
		}())
}
