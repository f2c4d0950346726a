package events

import (
	"context"
	"log/slog"
	"path"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentfabric/knowledgefabric/internal/types"
)

// EventFilter decides whether an event should continue through the
// pipeline. Returning false drops the event before any handler sees it.
type EventFilter func(Event) bool

// EventHandler processes a single event. A handler error is logged but
// does not stop the pipeline or other handlers for the same event.
type EventHandler func(context.Context, Event) error

// FilterEntry binds a filter to the event-type glob pattern it applies
// to. Pattern follows path.Match syntax ("node.*", "sync.job_*"); "" or
// "*" matches every event type.
type FilterEntry struct {
	Pattern string
	Filter  EventFilter
}

// HandlerEntry binds a handler to the event-type glob pattern it applies
// to, with the same pattern semantics as FilterEntry.
type HandlerEntry struct {
	Pattern string
	Handler EventHandler
}

// matchesPattern reports whether an event type is selected by pattern.
func matchesPattern(pattern string, t EventType) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	matched, err := path.Match(pattern, string(t))
	return err == nil && matched
}

// MatchesEventType reports whether t is selected by the given event-type
// glob pattern, using path.Match syntax ("node.*", "sync.job_*"); "" or
// "*" matches every event type. Exported for callers outside the
// pipeline (the facade's Subscribe) that need the same matching rule.
func MatchesEventType(pattern string, t EventType) bool {
	return matchesPattern(pattern, t)
}

// CorrelationRule groups events into a derived CorrelatedPayload event
// once a sliding time window of window length accumulates events that
// all satisfy Match. A rule fires at most once per accumulated window;
// its buffer is cleared on fire.
type CorrelationRule struct {
	Name    string
	Window  time.Duration
	Match   func(Event) bool
	MinSize int // minimum events in the window required to fire
}

// Pipeline drains a bounded dispatch queue with a pool of worker
// goroutines, running each event through filters, then handlers, then
// correlation rules, in that order. Ingest blocks up to a caller-supplied
// timeout when the queue is full, converting overflow into a typed
// BackpressureExceeded error rather than silently dropping events.
type Pipeline struct {
	queue      chan Event
	filters    []FilterEntry
	handlers   []HandlerEntry
	rules      []*CorrelationRule
	ruleState  map[string]*ruleWindow
	ruleMu     sync.Mutex
	logger     *slog.Logger

	workers int

	mu     sync.Mutex
	state  types.ProcessorState
	cancel context.CancelFunc
	group  *errgroup.Group
}

type ruleWindow struct {
	events []Event
}

// PipelineConfig configures a new Pipeline.
type PipelineConfig struct {
	QueueSize  int
	Workers    int
	Filters    []FilterEntry
	Handlers   []HandlerEntry
	Rules      []*CorrelationRule
	Logger     *slog.Logger
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	p := &Pipeline{
		queue:     make(chan Event, cfg.QueueSize),
		filters:   cfg.Filters,
		handlers:  cfg.Handlers,
		rules:     cfg.Rules,
		ruleState: make(map[string]*ruleWindow),
		logger:    cfg.Logger,
		state:     types.ProcessorStateStopped,
		workers:   cfg.Workers,
	}
	return p
}

// Start launches the worker pool. Start is idempotent; calling it while
// already running is a no-op.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == types.ProcessorStateRunning {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	p.cancel = cancel
	p.group = group
	p.state = types.ProcessorStateRunning

	for i := 0; i < p.workers; i++ {
		group.Go(func() error {
			p.runWorker(groupCtx)
			return nil
		})
	}
	return nil
}

// Stop drains remaining queued events (up to drainTimeout) then halts all
// workers. ProcessorStopped is returned by Ingest once Stop has returned.
func (p *Pipeline) Stop(drainTimeout time.Duration) error {
	p.mu.Lock()
	if p.state != types.ProcessorStateRunning {
		p.mu.Unlock()
		return nil
	}
	p.state = types.ProcessorStateDrain
	p.mu.Unlock()

	deadline := time.After(drainTimeout)
drain:
	for {
		select {
		case <-deadline:
			break drain
		default:
			if len(p.queue) == 0 {
				break drain
			}
			time.Sleep(5 * time.Millisecond)
		}
	}

	p.mu.Lock()
	p.cancel()
	group := p.group
	p.state = types.ProcessorStateStopped
	p.mu.Unlock()

	if group != nil {
		return group.Wait()
	}
	return nil
}

// Ingest enqueues event, blocking up to timeout for room in the queue.
// Returns BackpressureExceeded if the queue stays full past timeout, and
// ProcessorStopped if the pipeline isn't running.
func (p *Pipeline) Ingest(ctx context.Context, event Event, timeout time.Duration) error {
	p.mu.Lock()
	state := p.state
	p.mu.Unlock()
	if state != types.ProcessorStateRunning {
		return types.NewError(types.ErrProcessorStopped, "pipeline is not running")
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case p.queue <- event:
		return nil
	case <-ctx.Done():
		return types.WrapError(types.ErrCancelled, "ingest cancelled", ctx.Err())
	case <-timer.C:
		return types.NewError(types.ErrBackpressure, "event queue full")
	}
}

func (p *Pipeline) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-p.queue:
			if !ok {
				return
			}
			p.process(ctx, event)
		}
	}
}

// process runs a single event through the three pipeline stages in order:
// filters may drop it, handlers observe it unconditionally, and
// correlation rules may derive a further event from an accumulated window.
func (p *Pipeline) process(ctx context.Context, event Event) {
	for _, fe := range p.filters {
		if !matchesPattern(fe.Pattern, event.Type) {
			continue
		}
		if !fe.Filter(event) {
			return
		}
	}

	p.dispatch(ctx, event)

	p.evaluateRules(ctx, event)
}

// dispatch runs event through every handler whose pattern matches its type.
func (p *Pipeline) dispatch(ctx context.Context, event Event) {
	for _, he := range p.handlers {
		if !matchesPattern(he.Pattern, event.Type) {
			continue
		}
		if err := he.Handler(ctx, event); err != nil {
			p.logger.Error("events: handler failed", "type", event.Type, "error", err)
		}
	}
}

func (p *Pipeline) evaluateRules(ctx context.Context, event Event) {
	now := event.Timestamp
	if now.IsZero() {
		now = time.Now()
		event.Timestamp = now
	}

	p.ruleMu.Lock()
	defer p.ruleMu.Unlock()

	for _, rule := range p.rules {
		if !rule.Match(event) {
			continue
		}
		w, ok := p.ruleState[rule.Name]
		if !ok {
			w = &ruleWindow{}
			p.ruleState[rule.Name] = w
		}
		// Slide the window: drop buffered events older than rule.Window
		// before this one.
		cutoff := now.Add(-rule.Window)
		kept := w.events[:0]
		for _, e := range w.events {
			if !e.Timestamp.Before(cutoff) {
				kept = append(kept, e)
			}
		}
		w.events = append(kept, event)

		minSize := rule.MinSize
		if minSize <= 0 {
			minSize = 1
		}
		if len(w.events) >= minSize {
			correlated := Event{
				Type:      "correlation." + EventType(rule.Name),
				Timestamp: now,
				Payload: CorrelatedPayload{
					RuleName: rule.Name,
					Window:   rule.Window,
					Events:   append([]Event{}, w.events...),
				},
			}
			delete(p.ruleState, rule.Name)
			p.dispatch(ctx, correlated)
		}
	}
}

// QueueLen reports how many events are currently buffered, for monitoring.
func (p *Pipeline) QueueLen() int {
	return len(p.queue)
}
