package engine

import (
	"sync"

	"github.com/roach88/ckpt/internal/ir"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventDeliver delivers a message to an actor, creating a new frame.
	EventDeliver EventType = iota + 1
	// EventResume delivers an outbound call's reply to a parked frame.
	EventResume
	// EventWake resumes a frame after a local suspension.
	EventWake
	// EventTeardown removes an idle actor.
	EventTeardown
)

func (t EventType) String() string {
	switch t {
	case EventDeliver:
		return "deliver"
	case EventResume:
		return "resume"
	case EventWake:
		return "wake"
	case EventTeardown:
		return "teardown"
	default:
		return "unknown"
	}
}

// Event is one unit of work for the Run loop.
type Event struct {
	Type    EventType
	Message *Message   // EventDeliver
	FrameID string     // EventResume, EventWake
	Reply   *Outcome   // EventResume, EventWake
	Actor   ir.ActorID // EventTeardown
	done    chan error // EventTeardown
}

// eventQueue is the router's one serial stream, an unbounded FIFO. Ingress
// callers push from any goroutine; only the Run loop pops.
//
// signal has room for one token, so pushes coalesce and the Run loop can
// select on it alongside ctx.Done().
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{signal: make(chan struct{}, 1)}
}

// Enqueue appends e. It reports false once the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.events = append(q.events, e)
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue pops the oldest event without blocking.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return Event{}, false
	}
	e := q.events[0]
	// Zero the slot so the backing array does not pin message payloads.
	q.events[0] = Event{}
	q.events = q.events[1:]
	if len(q.events) == 0 {
		q.events = nil
	}
	return e, true
}

// Wait fires when events may be available, and forever once closed.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued events.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close rejects further events and wakes the waiter. It is idempotent.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.signal)
	}
}

