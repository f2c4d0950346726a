package repository

import (
	"github.com/agentfabric/knowledgefabric/internal/graph"
	"github.com/agentfabric/knowledgefabric/internal/schema"
)

// DomainRepository is the typed accessor for :Domain nodes.
type DomainRepository struct{ Base }

func NewDomainRepository(c graph.GraphClient, r *schema.Registry) *DomainRepository {
	return &DomainRepository{NewBase(c, r, schema.LabelDomain)}
}

// ProjectRepository is the typed accessor for :Project nodes.
type ProjectRepository struct{ Base }

func NewProjectRepository(c graph.GraphClient, r *schema.Registry) *ProjectRepository {
	return &ProjectRepository{NewBase(c, r, schema.LabelProject)}
}

// ComponentRepository is the typed accessor for :Component nodes.
type ComponentRepository struct{ Base }

func NewComponentRepository(c graph.GraphClient, r *schema.Registry) *ComponentRepository {
	return &ComponentRepository{NewBase(c, r, schema.LabelComponent)}
}

// RequirementRepository is the typed accessor for :Requirement nodes.
type RequirementRepository struct{ Base }

func NewRequirementRepository(c graph.GraphClient, r *schema.Registry) *RequirementRepository {
	return &RequirementRepository{NewBase(c, r, schema.LabelRequirement)}
}

// ImplementationRepository is the typed accessor for :Implementation nodes.
type ImplementationRepository struct{ Base }

func NewImplementationRepository(c graph.GraphClient, r *schema.Registry) *ImplementationRepository {
	return &ImplementationRepository{NewBase(c, r, schema.LabelImplementation)}
}

// PatternRepository is the typed accessor for :Pattern nodes.
type PatternRepository struct{ Base }

func NewPatternRepository(c graph.GraphClient, r *schema.Registry) *PatternRepository {
	return &PatternRepository{NewBase(c, r, schema.LabelPattern)}
}

// DecisionRepository is the typed accessor for :Decision nodes.
type DecisionRepository struct{ Base }

func NewDecisionRepository(c graph.GraphClient, r *schema.Registry) *DecisionRepository {
	return &DecisionRepository{NewBase(c, r, schema.LabelDecision)}
}

// AgentRepository is the typed accessor for :Agent nodes.
type AgentRepository struct{ Base }

func NewAgentRepository(c graph.GraphClient, r *schema.Registry) *AgentRepository {
	return &AgentRepository{NewBase(c, r, schema.LabelAgent)}
}
