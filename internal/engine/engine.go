package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/ckpt/internal/ir"
)

// DefaultMaxSteps is the default maximum number of frames per flow.
const DefaultMaxSteps = 1000

// Engine is the checkpointed actor scheduler.
//
// All frame execution, commits and rollbacks happen under the Run loop: the
// loop and at most one frame goroutine take turns, so exactly one handler is
// active system-wide at any time.
//
// Thread-safety model:
//   - Submit, Dispatch, Deploy, Teardown, State, Version: safe from any goroutine
//   - Run: must be called from exactly one goroutine
//
// INVARIANTS:
//   - At most one frame owns an actor (may commit to its State Cell)
//   - Commits happen only at outbound calls and at Update-method return
//   - A failed frame's working copy never reaches the State Cell
type Engine struct {
	clock      *Clock
	queue      *eventQueue
	flowGen    FlowTokenGenerator
	journal    Journal
	metrics    Metrics
	logger     *slog.Logger
	inspector  Inspector
	maxSteps   int
	reentrancy ReentrancyPolicy

	mu     sync.RWMutex
	actors map[ir.ActorID]*actor

	// Run loop only.
	frames  map[string]*Frame
	quotas  map[string]*stepBudget
	tracker *ReentrancyTracker
	freed   []*actor
	parked  int

	// Ingress messages whose caller has not been answered yet.
	waitMu  sync.Mutex
	waiting map[*Message]struct{}

	running  atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithJournal records every frame lifecycle transition to j.
func WithJournal(j Journal) EngineOption {
	return func(e *Engine) {
		if j != nil {
			e.journal = j
		}
	}
}

// WithMetrics reports engine metrics to m.
func WithMetrics(m Metrics) EngineOption {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithLogger sets the engine's logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithInspector installs the ingress admission filter.
func WithInspector(i Inspector) EngineOption {
	return func(e *Engine) {
		e.inspector = i
	}
}

// WithMaxSteps sets the maximum frames per flow.
//
// Default: 1000 (DefaultMaxSteps). Values below 1 are ignored.
func WithMaxSteps(maxSteps int) EngineOption {
	return func(e *Engine) {
		if maxSteps > 0 {
			e.maxSteps = maxSteps
		}
	}
}

// WithReentrancy sets the re-entrancy policy. Default: ReentrancyAllow.
func WithReentrancy(p ReentrancyPolicy) EngineOption {
	return func(e *Engine) {
		e.reentrancy = p
	}
}

// WithFlowGenerator sets the flow token generator. Default: UUIDv7Generator.
func WithFlowGenerator(g FlowTokenGenerator) EngineOption {
	return func(e *Engine) {
		if g != nil {
			e.flowGen = g
		}
	}
}

// WithClock sets the logical clock, e.g. to continue an existing journal.
func WithClock(c *Clock) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// New creates an Engine with no actors. Deploy actors, then call Run.
func New(opts ...EngineOption) *Engine {
	e := &Engine{
		clock:    NewClock(),
		queue:    newEventQueue(),
		flowGen:  UUIDv7Generator{},
		journal:  nopJournal{},
		metrics:  NopMetrics(),
		logger:   slog.Default(),
		maxSteps: DefaultMaxSteps,
		actors:   make(map[ir.ActorID]*actor),
		frames:   make(map[string]*Frame),
		quotas:   make(map[string]*stepBudget),
		tracker:  NewReentrancyTracker(),
		waiting:  make(map[*Message]struct{}),
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Clock returns the engine's logical clock.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// Run starts the event loop. Blocks until ctx is cancelled or Stop is called.
//
// ERROR HANDLING: an event that cannot be processed (for example a reply for
// a frame that no longer exists) is logged and skipped. Handler failures are
// not errors here; they are outcomes delivered to callers.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer e.Stop()

	e.logger.Info("engine starting",
		"actors", len(e.Actors()),
		"max_steps", e.maxSteps,
		"reentrancy", e.reentrancy,
	)

	for {
		if e.stopped() {
			e.logger.Info("engine stopping: stopped")
			return nil
		}

		event, ok := e.queue.TryDequeue()
		if ok {
			if err := e.processEvent(ctx, event); err != nil {
				e.logEventError(event, err)
			}
			e.drainBacklogs(ctx)
			e.metrics.QueueDepth(e.queue.Len())
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			return ctx.Err()

		case <-e.done:
			e.logger.Info("engine stopping: stopped")
			return nil

		case <-e.queue.Wait():
			// Loop back to TryDequeue. A closed queue fires immediately and
			// the stopped check above returns.
		}
	}
}

// Stop shuts the engine down. Parked and suspended frames are abandoned:
// their uncommitted working copies are dropped and every unanswered ingress
// call, queued or in flight, receives an Outcome carrying ErrEngineStopped.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.done)
		e.queue.Close()

		e.waitMu.Lock()
		defer e.waitMu.Unlock()
		for msg := range e.waiting {
			delete(e.waiting, msg)
			msg.reply <- Outcome{FlowToken: msg.FlowToken, Err: ErrEngineStopped}
		}
	})
}

// expect registers an ingress message as awaiting its outcome.
func (e *Engine) expect(msg *Message) {
	e.waitMu.Lock()
	e.waiting[msg] = struct{}{}
	e.waitMu.Unlock()
}

// answered unregisters msg and reports whether it was still waiting. Only
// the caller that gets true may write to msg.reply.
func (e *Engine) answered(msg *Message) bool {
	e.waitMu.Lock()
	defer e.waitMu.Unlock()
	if _, ok := e.waiting[msg]; !ok {
		return false
	}
	delete(e.waiting, msg)
	return true
}

func (e *Engine) stopped() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// processEvent routes an event to the appropriate handler.
// Called only from the Run loop.
func (e *Engine) processEvent(ctx context.Context, event Event) error {
	switch event.Type {
	case EventDeliver:
		if event.Message == nil {
			return fmt.Errorf("deliver event missing message")
		}
		return e.deliver(ctx, event.Message)

	case EventResume:
		return e.resumeFrame(ctx, event)

	case EventWake:
		return e.wakeFrame(ctx, event)

	case EventTeardown:
		e.teardown(event)
		return nil

	default:
		return fmt.Errorf("unknown event type: %d", event.Type)
	}
}

// logEventError logs an event processing failure with full context.
func (e *Engine) logEventError(event Event, err error) {
	switch event.Type {
	case EventDeliver:
		if event.Message != nil {
			e.logger.Error("message delivery failed",
				"error", err,
				"actor", event.Message.Target,
				"method", event.Message.Method,
				"flow_token", event.Message.FlowToken,
				"parent_id", event.Message.ParentID,
			)
			return
		}
		e.logger.Error("message delivery failed",
			"error", err,
			"note", "message was nil",
		)

	default:
		e.logger.Error("event processing failed",
			"error", err,
			"event_type", event.Type,
			"frame_id", event.FrameID,
			"actor", event.Actor,
		)
	}
}
