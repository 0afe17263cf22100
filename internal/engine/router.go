package engine

import (
	"context"
	"fmt"

	"github.com/roach88/ckpt/internal/ir"
)

// Message is a call in flight: an ingress call from outside or a call relayed
// from a parked frame. ParentID is the continuation reference; it is empty
// for ingress calls.
type Message struct {
	FlowToken string
	Target    ir.ActorID
	Method    string
	Args      ir.IRValue
	Caller    ir.ActorID
	ParentID  string
	Depth     int

	reply    chan Outcome // ingress only
	admitted bool
}

func (m *Message) ingress() bool {
	return m.ParentID == ""
}

// Outcome is the result of a call: a payload or a failure, never both.
type Outcome struct {
	FlowToken string
	FrameID   string
	Result    ir.IRValue
	Err       error
}

// Submit enqueues an ingress call and returns a channel that receives exactly
// one Outcome, the call's own or ErrEngineStopped if Stop comes first. Each
// call starts a new flow.
//
// Safe to call from any goroutine. Calls are processed in the order Submit
// enqueues them.
func (e *Engine) Submit(ctx context.Context, target ir.ActorID, method string, args ir.IRValue) (<-chan Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.stopped() {
		return nil, ErrEngineStopped
	}

	reply := make(chan Outcome, 1)
	msg := &Message{
		FlowToken: e.flowGen.Generate(),
		Target:    target,
		Method:    method,
		Args:      ir.Clone(args),
		reply:     reply,
	}
	e.expect(msg)
	if !e.queue.Enqueue(Event{Type: EventDeliver, Message: msg}) {
		e.answered(msg)
		return nil, ErrEngineStopped
	}
	return reply, nil
}

// Dispatch is the ingress entry point: it submits a call and waits for its
// outcome.
func (e *Engine) Dispatch(ctx context.Context, target ir.ActorID, method string, args ir.IRValue) (ir.IRValue, error) {
	out, err := e.DispatchOutcome(ctx, target, method, args)
	if err != nil {
		return nil, err
	}
	return out.Result, out.Err
}

// DispatchOutcome is Dispatch returning the full Outcome, including the flow
// token to look the call up in the journal. The returned error is non-nil
// only if the call could not be awaited.
func (e *Engine) DispatchOutcome(ctx context.Context, target ir.ActorID, method string, args ir.IRValue) (Outcome, error) {
	ch, err := e.Submit(ctx, target, method, args)
	if err != nil {
		return Outcome{}, err
	}
	select {
	case out := <-ch:
		return out, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	case <-e.done:
		return Outcome{}, ErrEngineStopped
	}
}

// deliver routes a message to its target actor. If the actor is owned by
// another frame the message joins its backlog; otherwise a frame is created
// and run to its first suspension.
func (e *Engine) deliver(ctx context.Context, msg *Message) error {
	if msg.ingress() && !msg.admitted {
		if fail := e.admit(ctx, msg); fail != nil {
			e.replyTo(msg, Outcome{FlowToken: msg.FlowToken, Err: fail})
			return nil
		}
		msg.admitted = true
		e.quotas[msg.FlowToken] = newStepBudget(e.maxSteps)
	}

	a := e.lookup(msg.Target)
	if a == nil {
		e.replyTo(msg, Outcome{FlowToken: msg.FlowToken, Err: e.routeFailure(msg, CodeUnknownActor,
			fmt.Sprintf("no actor %s", msg.Target), ErrUnknownActor)})
		e.endFlowIfRoot(msg)
		return nil
	}
	if a.owner != nil {
		a.backlog = append(a.backlog, Event{Type: EventDeliver, Message: msg})
		return nil
	}

	m, ok := a.methods[msg.Method]
	if !ok {
		e.replyTo(msg, Outcome{FlowToken: msg.FlowToken, Err: e.routeFailure(msg, CodeUnknownMethod,
			fmt.Sprintf("actor %s has no method %s", msg.Target, msg.Method), nil)})
		e.endFlowIfRoot(msg)
		return nil
	}

	f := e.newFrame(ctx, a, m, msg)
	go e.runFrame(f, m.Handler, ir.Clone(msg.Args))
	e.step(ctx, f)
	return nil
}

// routeFailure builds the failure for a message that could not be delivered.
// Ingress callers see a rejection; parked callers an outbound failure.
func (e *Engine) routeFailure(msg *Message, code Code, text string, cause error) *Failure {
	kind := OutboundCallFailure
	if msg.ingress() {
		kind = RejectionFailure
	}
	return &Failure{Kind: kind, Code: code, Actor: msg.Target, Method: msg.Method, Message: text, Cause: cause}
}

// relay handles an outbound suspension. It returns true if the call was
// refused before the boundary; the refusal is then in f's inbox and the
// frame continues without having committed or parked.
func (e *Engine) relay(ctx context.Context, f *Frame, call *OutboundCall) bool {
	if refusal := e.refuse(f, call); refusal != nil {
		e.logger.Debug("outbound call refused",
			"frame_id", f.ID,
			"target", call.Target,
			"target_method", call.Method,
			"code", refusal.Code,
		)
		f.inbox = &Outcome{FlowToken: f.FlowToken, Err: refusal}
		return true
	}

	// The boundary: commit before the call leaves the actor.
	if fail := e.checkpoint(ctx, f, CommitOutbound); fail != nil {
		f.inbox = &Outcome{FlowToken: f.FlowToken, Err: fail}
		return true
	}

	f.Status = FrameAwaitingReply
	f.pending = append(f.pending, call)
	call.Seq = e.record(ctx, ir.JournalEntry{
		Type:         ir.EntryPark,
		FlowToken:    f.FlowToken,
		FrameID:      f.ID,
		ParentID:     f.ParentID,
		Actor:        f.Actor,
		Method:       f.Method,
		Depth:        f.Depth,
		Target:       call.Target,
		TargetMethod: call.Method,
		Version:      f.base,
	})

	a := e.lookup(f.Actor)
	a.parked++
	e.parked++
	e.tracker.Park(f.FlowToken, f.Actor)
	e.release(a)
	e.metrics.ParkedFrames(e.parked)

	e.queue.Enqueue(Event{Type: EventDeliver, Message: &Message{
		FlowToken: f.FlowToken,
		Target:    call.Target,
		Method:    call.Method,
		Args:      call.Args,
		Caller:    f.Actor,
		ParentID:  f.ID,
		Depth:     f.Depth + 1,
		admitted:  true,
	}})
	return false
}

// refuse checks the limits that apply before an outbound call crosses the
// boundary.
func (e *Engine) refuse(f *Frame, call *OutboundCall) *Failure {
	if f.Kind == Query {
		return newFailure(OutboundCallFailure, CodeQueryCall, f, "query methods cannot issue outbound calls", nil)
	}
	if b := e.quotas[f.FlowToken]; b != nil {
		if err := b.take(f.FlowToken); err != nil {
			return NewQuotaError(f, err)
		}
	}
	if e.reentrancy == ReentrancyReject && e.tracker.WouldReenter(f.FlowToken, f.Actor, call.Target) {
		return NewReentrancyError(f, call.Target)
	}
	return nil
}

// replyTo delivers an outcome to a message's continuation: the ingress
// caller's channel or the parked parent frame.
func (e *Engine) replyTo(msg *Message, out Outcome) {
	if msg.ingress() {
		if e.answered(msg) {
			msg.reply <- out
		}
		return
	}
	e.queue.Enqueue(Event{Type: EventResume, FrameID: msg.ParentID, Reply: &out})
}

// resumeFrame delivers a reply to a parked frame. The frame reacquires its
// actor and gets a working copy seeded from the current State Cell.
func (e *Engine) resumeFrame(ctx context.Context, ev Event) error {
	f, ok := e.frames[ev.FrameID]
	if !ok || f.Status != FrameAwaitingReply {
		return fmt.Errorf("no parked frame %s", ev.FrameID)
	}
	a := e.lookup(f.Actor)
	if a.owner != nil {
		a.backlog = append(a.backlog, ev)
		return nil
	}

	f.pending = f.pending[1:]
	a.parked--
	e.parked--
	e.tracker.Unpark(f.FlowToken, f.Actor)
	e.metrics.ParkedFrames(e.parked)

	a.owner = f
	f.working, f.base = a.cell.Snapshot()
	f.Status = FrameRunning
	f.inbox = ev.Reply

	e.record(ctx, ir.JournalEntry{
		Type:      ir.EntryResume,
		FlowToken: f.FlowToken,
		FrameID:   f.ID,
		ParentID:  f.ParentID,
		Actor:     f.Actor,
		Method:    f.Method,
		Depth:     f.Depth,
		Reason:    "reply",
		Version:   f.base,
	})
	e.step(ctx, f)
	return nil
}

// wakeFrame resumes a frame after a local suspension. It never released its
// actor and its working copy is untouched.
func (e *Engine) wakeFrame(ctx context.Context, ev Event) error {
	f, ok := e.frames[ev.FrameID]
	if !ok || f.Status != FrameSuspended {
		return fmt.Errorf("no suspended frame %s", ev.FrameID)
	}

	f.Status = FrameRunning
	f.inbox = ev.Reply

	e.record(ctx, ir.JournalEntry{
		Type:      ir.EntryResume,
		FlowToken: f.FlowToken,
		FrameID:   f.ID,
		ParentID:  f.ParentID,
		Actor:     f.Actor,
		Method:    f.Method,
		Depth:     f.Depth,
		Reason:    "local",
		Version:   f.base,
	})
	e.step(ctx, f)
	return nil
}

// release gives up a frame's ownership of a. Backlogged events for a are
// drained before the next queued event.
func (e *Engine) release(a *actor) {
	a.owner = nil
	if len(a.backlog) > 0 {
		e.freed = append(e.freed, a)
	}
}

// drainBacklogs processes backlogged events of released actors in arrival
// order until every released actor is owned again or has an empty backlog.
func (e *Engine) drainBacklogs(ctx context.Context) {
	for len(e.freed) > 0 {
		a := e.freed[0]
		e.freed = e.freed[1:]

		for a.owner == nil && len(a.backlog) > 0 {
			ev := a.backlog[0]
			a.backlog[0] = Event{}
			a.backlog = a.backlog[1:]
			if err := e.processEvent(ctx, ev); err != nil {
				e.logEventError(ev, err)
			}
		}
	}
}
