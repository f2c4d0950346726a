package schema

// Core node labels shared by every knowledge fabric deployment.
const (
	LabelDomain         = "Domain"
	LabelProject        = "Project"
	LabelComponent      = "Component"
	LabelRequirement    = "Requirement"
	LabelImplementation = "Implementation"
	LabelPattern        = "Pattern"
	LabelDecision       = "Decision"
	LabelAgent          = "Agent"

	// LabelEvent, LabelMemory, LabelPolicy and the four DKM meta-graph
	// labels below describe the nodes of the Event Pipeline, Associative
	// Memory, and Dual Knowledge Manager modules. Those packages do not
	// validate their writes against these schemas, and internal/memory
	// declares its own LabelMemory constant with the same value.
	LabelEvent               = "Event"
	LabelMemory              = "Memory"
	LabelPolicy              = "Policy"
	LabelManagedKG           = "ManagedKG"
	LabelSynchronizationRule = "SynchronizationRule"
	LabelSchemaMapping       = "SchemaMapping"
	LabelKnowledgePolicy     = "KnowledgePolicy"
)

// Core relationship types shared by every knowledge fabric deployment.
const (
	RelBelongsTo   = "BELONGS_TO"
	RelDependsOn   = "DEPENDS_ON"
	RelImplements  = "IMPLEMENTS"
	RelUsesPattern = "USES_PATTERN"
	RelMadeBy      = "MADE_BY"
	RelSatisfies   = "SATISFIES"
	RelContributes = "CONTRIBUTES_TO"
	RelRelatedTo   = "RELATED_TO"

	// RelTriggers, RelGovernedBy and RelNextStep thread the event/policy/
	// workflow graph together; the remaining five attach the DKM's
	// meta-graph objects (ManagedKG, SynchronizationRule, SchemaMapping,
	// KnowledgePolicy) to each other and to the entities they govern.
	RelTriggers    = "TRIGGERS"     // Event -> entity it caused a change in
	RelGovernedBy  = "GOVERNED_BY"  // entity -> Policy/KnowledgePolicy constraining it
	RelNextStep    = "NEXT_STEP"    // Decision/Requirement -> the step that follows it
	RelSyncsWith   = "SYNCS_WITH"   // ManagedKG <-> ManagedKG linked by a SynchronizationRule
	RelSyncsTo     = "SYNCS_TO"     // SynchronizationRule -> the ManagedKG it writes into
	RelAppliesTo   = "APPLIES_TO"   // SchemaMapping/KnowledgePolicy -> the label(s) it governs
	RelMapsBetween = "MAPS_BETWEEN" // SchemaMapping -> the ManagedKG pair it translates between
	RelGoverns     = "GOVERNS"      // KnowledgePolicy -> the ManagedKG it vetoes sharing for
)

func timestamped(extra ...Property) []Property {
	base := []Property{
		{Name: "id", Type: TypeString, Required: true},
		{Name: "created_at", Type: TypeDateTime, Required: true},
		{Name: "updated_at", Type: TypeDateTime, Required: true},
	}
	return append(base, extra...)
}

// CoreNodeSchemas returns the built-in node schemas seeded into every new Registry.
func CoreNodeSchemas() []NodeSchema {
	return []NodeSchema{
		{
			Label:       LabelDomain,
			Description: "A knowledge or application domain",
			Unique:      []string{"id"},
			Properties: timestamped(
				Property{Name: "name", Type: TypeString, Required: true},
				Property{Name: "description", Type: TypeString},
			),
		},
		{
			Label:       LabelProject,
			Description: "A development initiative with specific goals and requirements",
			Unique:      []string{"id"},
			Properties: timestamped(
				Property{Name: "name", Type: TypeString, Required: true},
				Property{Name: "description", Type: TypeString},
				Property{Name: "status", Type: TypeString, Required: true},
			),
		},
		{
			Label:       LabelComponent,
			Description: "A modular part of the system under development",
			Unique:      []string{"id"},
			Properties: timestamped(
				Property{Name: "name", Type: TypeString, Required: true},
				Property{Name: "description", Type: TypeString},
				Property{Name: "type", Type: TypeString, Required: true},
				Property{Name: "status", Type: TypeString, Required: true},
			),
		},
		{
			Label:       LabelRequirement,
			Description: "A functional or non-functional specification",
			Unique:      []string{"id"},
			Properties: timestamped(
				Property{Name: "name", Type: TypeString, Required: true},
				Property{Name: "description", Type: TypeString, Required: true},
				Property{Name: "type", Type: TypeString, Required: true},
				Property{Name: "priority", Type: TypeString, Required: true},
				Property{Name: "status", Type: TypeString, Required: true},
			),
		},
		{
			Label:       LabelImplementation,
			Description: "Code or configuration realizing a requirement",
			Unique:      []string{"id"},
			Properties: timestamped(
				Property{Name: "name", Type: TypeString, Required: true},
				Property{Name: "path", Type: TypeString, Required: true},
				Property{Name: "language", Type: TypeString},
				Property{Name: "version", Type: TypeString},
				Property{Name: "status", Type: TypeString, Required: true},
			),
		},
		{
			Label:       LabelPattern,
			Description: "A reusable design or architectural pattern",
			Unique:      []string{"id"},
			Properties: timestamped(
				Property{Name: "name", Type: TypeString, Required: true},
				Property{Name: "description", Type: TypeString, Required: true},
				Property{Name: "type", Type: TypeString, Required: true},
			),
		},
		{
			Label:       LabelDecision,
			Description: "A key architectural or development decision",
			Unique:      []string{"id"},
			Properties: timestamped(
				Property{Name: "title", Type: TypeString, Required: true},
				Property{Name: "description", Type: TypeString, Required: true},
				Property{Name: "context", Type: TypeString, Required: true},
				Property{Name: "status", Type: TypeString, Required: true},
			),
		},
		{
			Label:       LabelAgent,
			Description: "An autonomous agent participating in the orchestration platform",
			Unique:      []string{"id"},
			Properties: timestamped(
				Property{Name: "name", Type: TypeString, Required: true},
				Property{Name: "type", Type: TypeString, Required: true},
				Property{Name: "layer", Type: TypeString, Required: true},
				Property{Name: "description", Type: TypeString},
				Property{Name: "status", Type: TypeString, Required: true},
			),
		},
		{
			Label:       LabelEvent,
			Description: "A recorded occurrence flowing through the event pipeline",
			Unique:      []string{"id"},
			Properties: timestamped(
				Property{Name: "type", Type: TypeString, Required: true},
				Property{Name: "agent_name", Type: TypeString},
				Property{Name: "layer", Type: TypeString},
			),
		},
		{
			Label:       LabelMemory,
			Description: "An associative memory record produced by an agent",
			Unique:      []string{"id"},
			Properties: timestamped(
				Property{Name: "kind", Type: TypeString, Required: true},
				Property{Name: "content", Type: TypeString, Required: true},
				Property{Name: "embedding", Type: TypeList},
				Property{Name: "importance", Type: TypeFloat},
				Property{Name: "access_count", Type: TypeInt},
				Property{Name: "last_accessed", Type: TypeDateTime},
			),
		},
		{
			Label:       LabelPolicy,
			Description: "A governance constraint applied to one or more entities",
			Unique:      []string{"id"},
			Properties: timestamped(
				Property{Name: "name", Type: TypeString, Required: true},
				Property{Name: "description", Type: TypeString},
			),
		},
		{
			Label:       LabelManagedKG,
			Description: "A private or shared knowledge graph layer managed by the DKM",
			Unique:      []string{"id"},
			Properties: timestamped(
				Property{Name: "name", Type: TypeString, Required: true},
				Property{Name: "layer", Type: TypeString, Required: true},
				Property{Name: "owner", Type: TypeString},
			),
		},
		{
			Label:       LabelSynchronizationRule,
			Description: "A declarative rule driving synchronization between two ManagedKGs",
			Unique:      []string{"id", "name"},
			Properties: timestamped(
				Property{Name: "name", Type: TypeString, Required: true},
				Property{Name: "source", Type: TypeString, Required: true},
				Property{Name: "target", Type: TypeString, Required: true},
				Property{Name: "cadence", Type: TypeString, Required: true},
				Property{Name: "bidirectional", Type: TypeBool},
				Property{Name: "labels", Type: TypeList},
			),
		},
		{
			Label:       LabelSchemaMapping,
			Description: "A property/label translation applied while synchronizing between ManagedKGs",
			Unique:      []string{"id"},
			Properties: timestamped(
				Property{Name: "source_label", Type: TypeString, Required: true},
				Property{Name: "target_label", Type: TypeString, Required: true},
			),
		},
		{
			Label:       LabelKnowledgePolicy,
			Description: "A sharing/access rule that can veto items crossing between ManagedKGs",
			Unique:      []string{"id"},
			Properties: timestamped(
				Property{Name: "name", Type: TypeString, Required: true},
				Property{Name: "action", Type: TypeString, Required: true},
			),
		},
	}
}

// CoreRelationshipSchemas returns the built-in relationship schemas seeded into every new Registry.
func CoreRelationshipSchemas() []RelationshipSchema {
	entityLabels := []string{LabelComponent, LabelRequirement, LabelImplementation, LabelPattern, LabelDecision, LabelAgent, LabelProject}
	return []RelationshipSchema{
		{
			Type:         RelBelongsTo,
			Description:  "Links an entity to its parent domain or project",
			SourceLabels: entityLabels,
			TargetLabels: []string{LabelDomain, LabelProject},
			Properties:   []Property{{Name: "created_at", Type: TypeDateTime, Required: true}},
		},
		{
			Type:         RelDependsOn,
			Description:  "Captures dependencies between components",
			SourceLabels: []string{LabelComponent, LabelImplementation, LabelRequirement},
			TargetLabels: []string{LabelComponent, LabelImplementation, LabelRequirement},
			Properties: []Property{
				{Name: "dependency_type", Type: TypeString},
				{Name: "strength", Type: TypeFloat},
				{Name: "created_at", Type: TypeDateTime, Required: true},
			},
		},
		{
			Type:         RelImplements,
			Description:  "Links components/implementations to the requirements they satisfy",
			SourceLabels: []string{LabelComponent, LabelImplementation},
			TargetLabels: []string{LabelRequirement},
			Properties:   []Property{{Name: "created_at", Type: TypeDateTime, Required: true}},
		},
		{
			Type:         RelUsesPattern,
			Description:  "Links a component or implementation to a pattern it follows",
			SourceLabels: []string{LabelComponent, LabelImplementation},
			TargetLabels: []string{LabelPattern},
			Properties:   []Property{{Name: "created_at", Type: TypeDateTime, Required: true}},
		},
		{
			Type:         RelMadeBy,
			Description:  "Attributes a decision to the agent that made it",
			SourceLabels: []string{LabelDecision},
			TargetLabels: []string{LabelAgent},
			Properties:   []Property{{Name: "created_at", Type: TypeDateTime, Required: true}},
		},
		{
			Type:         RelSatisfies,
			Description:  "Links an implementation to a requirement it fulfils",
			SourceLabels: []string{LabelImplementation},
			TargetLabels: []string{LabelRequirement},
			Properties:   []Property{{Name: "created_at", Type: TypeDateTime, Required: true}},
		},
		{
			Type:         RelContributes,
			Description:  "Generic contribution edge between entities and a decision or pattern",
			SourceLabels: entityLabels,
			TargetLabels: []string{LabelDecision, LabelPattern},
			Properties:   []Property{{Name: "created_at", Type: TypeDateTime, Required: true}},
		},
		{
			Type:         RelRelatedTo,
			Description:  "Generic untyped association between any two entities",
			SourceLabels: entityLabels,
			TargetLabels: entityLabels,
			Properties:   []Property{{Name: "created_at", Type: TypeDateTime, Required: true}},
		},
		{
			Type:         RelTriggers,
			Description:  "Links an Event to the entity whose state it changed",
			SourceLabels: []string{LabelEvent},
			TargetLabels: append(append([]string{}, entityLabels...), LabelMemory),
			Properties:   []Property{{Name: "created_at", Type: TypeDateTime, Required: true}},
		},
		{
			Type:         RelGovernedBy,
			Description:  "Links an entity to the policy constraining it",
			SourceLabels: entityLabels,
			TargetLabels: []string{LabelPolicy, LabelKnowledgePolicy},
			Properties:   []Property{{Name: "created_at", Type: TypeDateTime, Required: true}},
		},
		{
			Type:         RelNextStep,
			Description:  "Orders a decision or requirement ahead of the step that follows it",
			SourceLabels: []string{LabelDecision, LabelRequirement},
			TargetLabels: []string{LabelDecision, LabelRequirement},
			Properties:   []Property{{Name: "created_at", Type: TypeDateTime, Required: true}},
		},
		{
			Type:         RelSyncsWith,
			Description:  "Pairs two ManagedKGs kept consistent by a SynchronizationRule",
			SourceLabels: []string{LabelManagedKG},
			TargetLabels: []string{LabelManagedKG},
			Properties:   []Property{{Name: "created_at", Type: TypeDateTime, Required: true}},
		},
		{
			Type:         RelSyncsTo,
			Description:  "Links a SynchronizationRule to the ManagedKG it writes into",
			SourceLabels: []string{LabelSynchronizationRule},
			TargetLabels: []string{LabelManagedKG},
			Properties:   []Property{{Name: "created_at", Type: TypeDateTime, Required: true}},
		},
		{
			Type:         RelAppliesTo,
			Description:  "Links a SchemaMapping or KnowledgePolicy to the label it governs",
			SourceLabels: []string{LabelSchemaMapping, LabelKnowledgePolicy},
			TargetLabels: entityLabels,
			Properties:   []Property{{Name: "created_at", Type: TypeDateTime, Required: true}},
		},
		{
			Type:         RelMapsBetween,
			Description:  "Links a SchemaMapping to the ManagedKG pair it translates between",
			SourceLabels: []string{LabelSchemaMapping},
			TargetLabels: []string{LabelManagedKG},
			Properties:   []Property{{Name: "created_at", Type: TypeDateTime, Required: true}},
		},
		{
			Type:         RelGoverns,
			Description:  "Links a KnowledgePolicy to the ManagedKG it can veto sharing for",
			SourceLabels: []string{LabelKnowledgePolicy},
			TargetLabels: []string{LabelManagedKG},
			Properties:   []Property{{Name: "created_at", Type: TypeDateTime, Required: true}},
		},
	}
}
