package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentfabric/knowledgefabric/internal/dkm"
	"github.com/agentfabric/knowledgefabric/internal/events"
	"github.com/agentfabric/knowledgefabric/internal/types"
)

// Schedule controls the scheduler's two tickers, mirroring sync_schedule:
// regular syncs run every Interval, priority syncs run three times as
// often, covering only PriorityLabels.
type Schedule struct {
	Interval       time.Duration
	PriorityLabels []string
}

// DefaultSchedule mirrors the Python default: 15 minute interval, EVENT
// and RED_FLAG (here: Event) treated as priority.
func DefaultSchedule() Schedule {
	return Schedule{
		Interval:       15 * time.Minute,
		PriorityLabels: []string{"Event"},
	}
}

func (s Schedule) priorityInterval() time.Duration {
	third := s.Interval / 3
	if third < time.Minute {
		return time.Minute
	}
	return third
}

// JobRecorder persists job records durably so sync history survives an
// agent restart. internal/database.JobDAO satisfies this.
type JobRecorder interface {
	Create(ctx context.Context, agentID string, job *Job) error
	Update(ctx context.Context, job *Job) error
}

// Status reports the scheduler's current state, mirroring get_sync_status.
type Status struct {
	AgentID         string
	SchedulerActive bool
	Schedule        Schedule
	LastSync        map[string]map[string]time.Time
	QueueDepth      int
	Rules           map[string]RuleStatus
}

// RuleStatus reports the last known outcome of a single dkm.
// SynchronizationRule, keyed by rule name in Status.Rules.
type RuleStatus struct {
	Paused             bool
	LastRunStartedAt   time.Time
	LastRunDuration    time.Duration
	ItemsConsidered    int
	ItemsApplied       int
	ItemsVetoed        int
	LastError          string
}

// Synchronizer drives dkm.Manager sync passes, either on a schedule or on
// demand, and records each pass's outcome. It is the Go-idiomatic stand-in
// for KnowledgeSynchronizer: the Python "schedule" library's thread-plus-
// polling-loop becomes one goroutine selecting over two time.Tickers, started and
// stopped the way the teacher's daemon components start and stop their own
// background loops.
type Synchronizer struct {
	manager  *dkm.Manager
	agentID  string
	bus      events.EventBus
	logger   *slog.Logger
	recorder JobRecorder

	mu       sync.Mutex
	schedule Schedule
	lastSync map[string]map[string]time.Time
	history  []*Job
	queue    *JobQueue
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	ruleStatus   map[string]*RuleStatus
	runningRules map[string]bool // keyed by rule name: a rule run currently in flight
	dirtyRules   map[string]bool // set when TriggerNow/on_event fires while the rule is already running
	eventUnsub   func()
}

// Option configures a Synchronizer at construction time.
type Option func(*Synchronizer)

// WithEventBus wires an EventBus that receives EventSyncJobQueued/Started/
// Completed/Failed for every sync pass, mirroring the events_node hooks
// the Python synchronizer logs through.
func WithEventBus(bus events.EventBus) Option {
	return func(s *Synchronizer) { s.bus = bus }
}

// WithSchedule overrides DefaultSchedule.
func WithSchedule(sched Schedule) Option {
	return func(s *Synchronizer) { s.schedule = sched }
}

// WithLogger overrides the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synchronizer) { s.logger = logger }
}

// WithJobRecorder wires durable persistence for job records. Without one,
// history lives only in memory for the process lifetime.
func WithJobRecorder(recorder JobRecorder) Option {
	return func(s *Synchronizer) { s.recorder = recorder }
}

// New constructs a Synchronizer for the manager's agent.
func New(manager *dkm.Manager, agentID string, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		manager:  manager,
		agentID:  agentID,
		schedule: DefaultSchedule(),
		logger:   slog.Default(),
		queue:    NewJobQueue(),
		lastSync: map[string]map[string]time.Time{
			"to_shared":   {},
			"from_shared": {},
		},
		ruleStatus:   map[string]*RuleStatus{},
		runningRules: map[string]bool{},
		dirtyRules:   map[string]bool{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the scheduled-sync loop. Mirrors start_scheduled_sync;
// returns false if a loop is already running.
func (s *Synchronizer) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.logger.Warn("sync scheduler already running", "agent_id", s.agentID)
		return false
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go s.runScheduler(loopCtx)

	if s.bus != nil {
		s.eventUnsub = s.subscribeOnEventRules(loopCtx)
	}

	s.emit(ctx, events.EventSystemStarted, "", map[string]any{
		"component":        "Synchronizer",
		"interval_minutes": s.schedule.Interval.Minutes(),
	})
	s.logger.Info("started scheduled sync", "agent_id", s.agentID, "interval", s.schedule.Interval)
	return true
}

// Stop halts the scheduled-sync loop, waiting up to 5 seconds for it to
// exit. Mirrors stop_scheduled_sync.
func (s *Synchronizer) Stop() bool {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.logger.Warn("no active sync scheduler", "agent_id", s.agentID)
		return false
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()

	s.mu.Lock()
	unsub := s.eventUnsub
	s.eventUnsub = nil
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.emit(context.Background(), events.EventSystemStopped, "", map[string]any{
		"component": "Synchronizer",
		"agent_id":  s.agentID,
	})
	s.logger.Info("stopped scheduled sync", "agent_id", s.agentID)
	return true
}

func (s *Synchronizer) runScheduler(ctx context.Context) {
	defer s.wg.Done()

	regular := time.NewTicker(s.schedule.Interval)
	defer regular.Stop()

	s.mu.Lock()
	priorityEvery := s.schedule.priorityInterval()
	s.mu.Unlock()
	priority := time.NewTicker(priorityEvery)
	defer priority.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-regular.C:
			if _, err := s.SyncAll(ctx); err != nil {
				s.logger.Error("scheduled full sync failed", "agent_id", s.agentID, "error", err)
			}
		case <-priority.C:
			if _, err := s.SyncPriority(ctx); err != nil {
				s.logger.Error("scheduled priority sync failed", "agent_id", s.agentID, "error", err)
			}
		}
	}
}

// SyncAll runs sync_to_shared then sync_from_shared across every
// registered label. Mirrors sync_all.
func (s *Synchronizer) SyncAll(ctx context.Context) (*Result, error) {
	return s.runJob(ctx, NewJob(JobKindAll, nil, 5))
}

// SyncPriority syncs only the configured priority labels, in both
// directions. Mirrors sync_priority_nodes.
func (s *Synchronizer) SyncPriority(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	labels := append([]string(nil), s.schedule.PriorityLabels...)
	s.mu.Unlock()
	return s.runJob(ctx, NewJob(JobKindPriority, labels, 1))
}

// SyncSpecific syncs exactly the given labels, in both directions. Mirrors
// sync_specific_nodes.
func (s *Synchronizer) SyncSpecific(ctx context.Context, labels []string) (*Result, error) {
	return s.runJob(ctx, NewJob(JobKindSpecific, labels, 2))
}

// ForceSyncNow runs a sync pass outside the schedule, immediately. Mirrors
// force_sync_now: a nil/empty label set runs a full sync, otherwise only
// the given labels.
func (s *Synchronizer) ForceSyncNow(ctx context.Context, labels []string) (*Result, error) {
	if len(labels) > 0 {
		return s.runJob(ctx, NewJob(JobKindSpecific, labels, 0))
	}
	return s.runJob(ctx, NewJob(JobKindAll, nil, 0))
}

// Enqueue places job on the pending queue without running it, returning
// its queue depth at insertion time. Callers drain the queue with
// RunNext; this supports batching ad-hoc sync requests behind the
// scheduler's own passes instead of running them inline.
func (s *Synchronizer) Enqueue(job *Job) int {
	s.queue.Push(job)
	s.emit(context.Background(), events.EventSyncJobQueued, job.ID, map[string]any{
		"kind": job.Kind, "labels": job.Labels,
	})
	return s.queue.Len()
}

// RunNext pops and runs the highest-priority queued job, or returns nil if
// the queue is empty.
func (s *Synchronizer) RunNext(ctx context.Context) (*Result, error) {
	job := s.queue.Pop()
	if job == nil {
		return nil, nil
	}
	return s.runJob(ctx, job)
}

func (s *Synchronizer) runJob(ctx context.Context, job *Job) (*Result, error) {
	job.Status = types.SyncJobRunning
	job.StartedAt = time.Now().UTC()
	s.record(ctx, job, true)
	s.emit(ctx, events.EventSyncJobStarted, job.ID, map[string]any{"kind": job.Kind, "labels": job.Labels})

	toShared, err := s.manager.SyncToShared(ctx, job.Labels...)
	if err != nil {
		return s.fail(ctx, job, fmt.Errorf("sync to shared: %w", err))
	}
	fromShared, err := s.manager.SyncFromShared(ctx, job.Labels...)
	if err != nil {
		return s.fail(ctx, job, fmt.Errorf("sync from shared: %w", err))
	}

	job.ToShared = toShared
	job.FromShared = fromShared
	job.Status = types.SyncJobSucceeded
	job.EndedAt = time.Now().UTC()
	s.record(ctx, job, false)

	bucket := bucketKey(job.Kind, job.Labels)
	s.mu.Lock()
	s.lastSync["to_shared"][bucket] = job.EndedAt
	s.lastSync["from_shared"][bucket] = job.EndedAt
	s.history = append(s.history, job)
	s.mu.Unlock()

	if toShared.ConflictsResolved+fromShared.ConflictsResolved > 0 {
		s.emit(ctx, events.EventSyncConflict, job.ID, map[string]any{
			"to_shared_conflicts":   toShared.ConflictsResolved,
			"from_shared_conflicts": fromShared.ConflictsResolved,
		})
	}
	s.emit(ctx, events.EventSyncJobCompleted, job.ID, map[string]any{
		"kind": job.Kind, "labels": job.Labels,
		"nodes_to_shared": toShared.NodesSynced, "nodes_from_shared": fromShared.NodesSynced,
	})

	return &Result{JobID: job.ID, Labels: job.Labels, ToShared: toShared, FromShared: fromShared}, nil
}

func (s *Synchronizer) fail(ctx context.Context, job *Job, err error) (*Result, error) {
	job.Status = types.SyncJobFailed
	job.EndedAt = time.Now().UTC()
	job.Err = err.Error()
	s.record(ctx, job, false)

	s.mu.Lock()
	s.history = append(s.history, job)
	s.mu.Unlock()

	s.emit(ctx, events.EventSyncJobFailed, job.ID, map[string]any{
		"kind": job.Kind, "labels": job.Labels, "error": err.Error(),
	})
	s.logger.Error("sync job failed", "agent_id", s.agentID, "kind", job.Kind, "error", err)
	return &Result{JobID: job.ID, Labels: job.Labels, Err: err}, err
}

// record persists job via the configured JobRecorder, if any. created
// distinguishes the initial insert (job just started) from a later update
// (job reached a terminal state); errors are logged, not propagated, since
// a sync pass's correctness does not depend on its own history surviving.
func (s *Synchronizer) record(ctx context.Context, job *Job, created bool) {
	if s.recorder == nil {
		return
	}
	var err error
	if created {
		err = s.recorder.Create(ctx, s.agentID, job)
	} else {
		err = s.recorder.Update(ctx, job)
	}
	if err != nil {
		s.logger.Error("failed to persist sync job record", "agent_id", s.agentID, "job_id", job.ID, "error", err)
	}
}

func bucketKey(kind JobKind, labels []string) string {
	if kind == JobKindAll || len(labels) == 0 {
		return "all"
	}
	key := ""
	for i, l := range labels {
		if i > 0 {
			key += ","
		}
		key += l
	}
	return key
}

// UpdateSchedule changes the interval and/or priority label set, mirroring
// update_sync_schedule, restarting the scheduler loop if it was running so
// the new tickers take effect.
func (s *Synchronizer) UpdateSchedule(ctx context.Context, interval time.Duration, priorityLabels []string) Schedule {
	s.mu.Lock()
	wasRunning := s.running
	if interval > 0 {
		s.schedule.Interval = interval
	}
	if priorityLabels != nil {
		s.schedule.PriorityLabels = priorityLabels
	}
	updated := s.schedule
	s.mu.Unlock()

	if wasRunning {
		s.Stop()
		s.Start(ctx)
	}
	return updated
}

// Status reports the current scheduler state, mirroring get_sync_status.
func (s *Synchronizer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	lastSync := make(map[string]map[string]time.Time, len(s.lastSync))
	for k, v := range s.lastSync {
		inner := make(map[string]time.Time, len(v))
		for kk, vv := range v {
			inner[kk] = vv
		}
		lastSync[k] = inner
	}
	rules := make(map[string]RuleStatus, len(s.ruleStatus))
	for name, rs := range s.ruleStatus {
		rules[name] = *rs
	}

	return Status{
		AgentID:         s.agentID,
		SchedulerActive: s.running,
		Schedule:        s.schedule,
		LastSync:        lastSync,
		QueueDepth:      s.queue.Len(),
		Rules:           rules,
	}
}

// History returns every completed or failed job, oldest first.
func (s *Synchronizer) History() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Job(nil), s.history...)
}

// Pause stops ruleName from being triggered by TriggerNow or an on_event
// subscription, until Resume is called. A rule already running when Pause
// is called is allowed to finish. No rule runs on a schedule of its own: the
// scheduler's tickers drive SyncAll and SyncPriority only, so a rule with
// Cadence "scheduled" runs only through TriggerNow.
func (s *Synchronizer) Pause(ruleName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusFor(ruleName).Paused = true
}

// Resume clears a Pause on ruleName.
func (s *Synchronizer) Resume(ruleName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusFor(ruleName).Paused = false
}

// statusFor returns (creating if necessary) the RuleStatus entry for name.
// Callers must hold s.mu.
func (s *Synchronizer) statusFor(name string) *RuleStatus {
	rs, ok := s.ruleStatus[name]
	if !ok {
		rs = &RuleStatus{}
		s.ruleStatus[name] = rs
	}
	return rs
}

// Cancel removes a queued (not yet running) job by id, reporting whether
// it was found.
func (s *Synchronizer) Cancel(jobID types.ID) bool {
	return s.queue.Remove(jobID)
}

// Drain runs every currently queued job to completion, in priority order,
// and returns their results. Jobs enqueued by another caller while Drain is
// running are also picked up, since it keeps popping until the queue is
// empty.
func (s *Synchronizer) Drain(ctx context.Context) ([]*Result, error) {
	var results []*Result
	for {
		job := s.queue.Pop()
		if job == nil {
			return results, nil
		}
		result, err := s.runJob(ctx, job)
		results = append(results, result)
		if err != nil {
			return results, err
		}
	}
}

// TriggerNow runs the named dkm.SynchronizationRule immediately, outside
// its configured cadence. If the rule is paused, TriggerNow is a no-op and
// returns (nil, nil). If the rule is already running (at most one
// concurrent run per rule is guaranteed), the request is coalesced: it
// marks the run dirty so the in-flight pass re-runs once more after it
// finishes, and returns (nil, nil) immediately rather than blocking.
func (s *Synchronizer) TriggerNow(ctx context.Context, ruleName string) (*dkm.SyncSummary, error) {
	rule, ok := s.manager.Rule(ruleName)
	if !ok {
		return nil, fmt.Errorf("sync: synchronization rule %q not registered", ruleName)
	}

	s.mu.Lock()
	if s.statusFor(ruleName).Paused {
		s.mu.Unlock()
		return nil, nil
	}
	if s.runningRules[ruleName] {
		s.dirtyRules[ruleName] = true
		s.mu.Unlock()
		return nil, nil
	}
	s.runningRules[ruleName] = true
	s.mu.Unlock()

	var summary *dkm.SyncSummary
	var err error
	for {
		summary, err = s.runRuleOnce(ctx, rule)

		s.mu.Lock()
		if s.dirtyRules[ruleName] {
			delete(s.dirtyRules, ruleName)
			s.mu.Unlock()
			continue
		}
		s.runningRules[ruleName] = false
		s.mu.Unlock()
		break
	}
	return summary, err
}

func (s *Synchronizer) runRuleOnce(ctx context.Context, rule dkm.SynchronizationRule) (*dkm.SyncSummary, error) {
	jobID := types.NewID()
	started := time.Now().UTC()
	s.emit(ctx, events.EventSyncJobStarted, jobID, map[string]any{"rule": rule.Name})

	summary, err := s.manager.Synchronize(ctx, rule.Source, rule.Target, rule.Name, nil)
	duration := time.Since(started)

	s.mu.Lock()
	rs := s.statusFor(rule.Name)
	rs.LastRunStartedAt = started
	rs.LastRunDuration = duration
	if summary != nil {
		rs.ItemsConsidered = summary.ItemsApplied + summary.ItemsVetoed + summary.ItemsDeferred
		rs.ItemsApplied = summary.ItemsApplied
		rs.ItemsVetoed = summary.ItemsVetoed
	}
	if err != nil {
		rs.LastError = err.Error()
	} else {
		rs.LastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.emit(ctx, events.EventSyncJobFailed, jobID, map[string]any{"rule": rule.Name, "error": err.Error()})
		s.logger.Error("synchronization rule failed", "agent_id", s.agentID, "rule", rule.Name, "error", err)
		return summary, err
	}
	s.emit(ctx, events.EventSyncJobCompleted, jobID, map[string]any{"rule": rule.Name})
	return summary, nil
}

// subscribeOnEventRules subscribes to the bus for every registered
// on_event-cadence rule and fires TriggerNow when a matching event
// arrives. The subscription itself is exact-match-everything (mirroring
// Fabric.Subscribe's approach), filtered client-side by glob against each
// rule's TriggerEvent pattern so newly registered rules are picked up
// without re-subscribing.
func (s *Synchronizer) subscribeOnEventRules(ctx context.Context) func() {
	ch, unsubscribe := s.bus.Subscribe(ctx, events.Filter{}, 0)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-ch:
				if !ok {
					return
				}
				for _, rule := range s.manager.Rules() {
					if rule.Cadence != "on_event" || rule.TriggerEvent == "" {
						continue
					}
					if !events.MatchesEventType(rule.TriggerEvent, event.Type) {
						continue
					}
					go func(name string) {
						if _, err := s.TriggerNow(ctx, name); err != nil {
							s.logger.Error("on_event synchronization rule failed", "agent_id", s.agentID, "rule", name, "error", err)
						}
					}(rule.Name)
				}
			}
		}
	}()

	return unsubscribe
}

func (s *Synchronizer) emit(ctx context.Context, eventType events.EventType, sourceID types.ID, attrs map[string]any) {
	if s.bus == nil {
		return
	}
	_ = s.bus.Publish(ctx, events.Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		SourceID:  sourceID,
		AgentName: s.agentID,
		Attrs:     attrs,
	})
}
