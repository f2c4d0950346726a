package events

import (
	"time"

	"github.com/agentfabric/knowledgefabric/internal/types"
)

// EventType identifies the category and nature of an event flowing through
// the fabric's event pipeline.
type EventType string

// Node lifecycle events.
const (
	EventNodeCreated EventType = "node.created"
	EventNodeUpdated EventType = "node.updated"
	EventNodeDeleted EventType = "node.deleted"
)

// Relationship lifecycle events.
const (
	EventRelationshipCreated EventType = "relationship.created"
	EventRelationshipDeleted EventType = "relationship.deleted"
)

// Memory events.
const (
	EventMemoryStored      EventType = "memory.stored"
	EventMemoryRecalled     EventType = "memory.recalled"
	EventMemoryAssociated   EventType = "memory.associated"
	EventMemoryDecayed      EventType = "memory.decayed"
	EventMemoryPruned       EventType = "memory.pruned"
)

// Dual knowledge / synchronization events.
const (
	EventSyncJobQueued    EventType = "sync.job_queued"
	EventSyncJobStarted   EventType = "sync.job_started"
	EventSyncJobCompleted EventType = "sync.job_completed"
	EventSyncJobFailed    EventType = "sync.job_failed"
	EventSyncConflict     EventType = "sync.conflict_resolved"
	EventPolicyVeto       EventType = "policy.veto"

	// EventKnowledgeSynchronized fires once per dkm.Manager.Synchronize
	// call, after every item has been applied, vetoed, or deferred.
	EventKnowledgeSynchronized EventType = "knowledge.synchronized"
)

// System lifecycle events.
const (
	EventSystemStarted EventType = "system.started"
	EventSystemStopped EventType = "system.stopped"
)

func (t EventType) String() string { return string(t) }

// Event is the envelope carried through the pipeline: filters, handlers,
// and correlation rules all operate on this shape.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	SourceID  types.ID       `json:"source_id,omitempty"`  // node/relationship/job ID that produced this event
	AgentName string         `json:"agent_name,omitempty"` // originating agent, if any
	Layer     types.KnowledgeLayer `json:"layer,omitempty"`
	Payload   any            `json:"payload,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// Filter defines AND-combined criteria for matching events. Empty fields
// act as wildcards.
type Filter struct {
	Types     []EventType
	AgentName string
	Layer     types.KnowledgeLayer
}

func (f *Filter) Matches(event Event) bool {
	if len(f.Types) > 0 {
		matched := false
		for _, t := range f.Types {
			if event.Type == t {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if f.AgentName != "" && event.AgentName != f.AgentName {
		return false
	}
	if f.Layer != "" && event.Layer != f.Layer {
		return false
	}
	return true
}

// NodeCreatedPayload carries the label and properties of a newly created node.
type NodeCreatedPayload struct {
	Label string         `json:"label"`
	Props map[string]any `json:"props,omitempty"`
}

// NodeUpdatedPayload carries the changed properties of an updated node.
type NodeUpdatedPayload struct {
	Label   string         `json:"label"`
	Changed map[string]any `json:"changed,omitempty"`
}

// RelationshipCreatedPayload carries the endpoints and type of a new relationship.
type RelationshipCreatedPayload struct {
	Type     string `json:"type"`
	FromID   string `json:"from_id"`
	ToID     string `json:"to_id"`
}

// MemoryStoredPayload carries the kind and context tags of a stored memory record.
type MemoryStoredPayload struct {
	MemoryID types.ID   `json:"memory_id"`
	Kind     types.MemoryKind `json:"kind"`
	Context  []string   `json:"context,omitempty"`
}

// SyncJobPayload carries the identity and outcome of a synchronizer job.
type SyncJobPayload struct {
	JobID    types.ID `json:"job_id"`
	RuleName string   `json:"rule_name"`
	Source   string   `json:"source"`
	Target   string   `json:"target"`
	Error    string   `json:"error,omitempty"`
}

// PolicyVetoPayload records why a sharing/access policy blocked an operation.
type PolicyVetoPayload struct {
	PolicyName string `json:"policy_name"`
	Reason     string `json:"reason"`
	NodeID     string `json:"node_id,omitempty"`
}

// KnowledgeSyncedPayload summarizes one dkm.Manager.Synchronize call.
type KnowledgeSyncedPayload struct {
	RuleName      string `json:"rule_name"`
	Source        string `json:"source"`
	Target        string `json:"target"`
	ItemsApplied  int    `json:"items_applied"`
	ItemsVetoed   int    `json:"items_vetoed"`
	ItemsDeferred int    `json:"items_deferred"`
}

// CorrelatedPayload wraps the set of events a correlation rule matched
// within its sliding window, delivered to handlers as a single derived event.
type CorrelatedPayload struct {
	RuleName string  `json:"rule_name"`
	Window   time.Duration `json:"window"`
	Events   []Event `json:"events"`
}
