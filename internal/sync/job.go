// Package sync schedules and drives synchronization between an agent's
// private knowledge graph and the shared fabric, on top of a dkm.Manager.
// It mirrors the Python KnowledgeSynchronizer's three sync modes (full,
// priority, specific-labels) and its dual-interval scheduler, but trades
// threading.Thread plus the "schedule" library for goroutines driven by
// time.Ticker, following the pattern the teacher's daemon package uses for
// its own background loops.
package sync

import (
	"time"

	"github.com/agentfabric/knowledgefabric/internal/dkm"
	"github.com/agentfabric/knowledgefabric/internal/types"
)

// Job records one synchronization pass: which labels it covered, its
// outcome, and the dkm.SyncSummary it produced. Mirrors the dict
// sync_all/sync_priority_nodes/sync_specific_nodes return, structured for
// status reporting and job-history persistence.
type Job struct {
	ID         types.ID
	Kind       JobKind
	Labels     []string
	Priority   int
	Status     types.SyncJobStatus
	QueuedAt   time.Time
	StartedAt  time.Time
	EndedAt    time.Time
	ToShared   *dkm.SyncSummary
	FromShared *dkm.SyncSummary
	Err        string
}

// JobKind distinguishes the three synchronization modes the scheduler and
// ad-hoc callers can request.
type JobKind string

const (
	JobKindAll      JobKind = "all"      // sync_all: every registered label
	JobKindPriority JobKind = "priority" // sync_priority_nodes: the configured priority labels
	JobKindSpecific JobKind = "specific" // sync_specific_nodes: a caller-supplied label set
)

// NewJob builds a queued job for kind against labels, stamped with priority
// for queue ordering (lower values run first; priority jobs sort ahead of
// regular ones by convention, see queue.go).
func NewJob(kind JobKind, labels []string, priority int) *Job {
	return &Job{
		ID:       types.NewID(),
		Kind:     kind,
		Labels:   labels,
		Priority: priority,
		Status:   types.SyncJobQueued,
		QueuedAt: time.Now().UTC(),
	}
}

// Result summarizes a completed job's combined sync_to_shared/
// sync_from_shared counts, matching the combined_result dict shape.
type Result struct {
	JobID      types.ID
	Labels     []string
	ToShared   *dkm.SyncSummary
	FromShared *dkm.SyncSummary
	Err        error
}
