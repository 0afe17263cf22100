package engine

import (
	"context"
	"fmt"

	"github.com/roach88/ckpt/internal/ir"
)

// newFrame creates a frame for msg seeded from a's State Cell and gives it
// ownership of a. The dispatch entry's seq feeds the frame ID.
func (e *Engine) newFrame(ctx context.Context, a *actor, m Method, msg *Message) *Frame {
	seq := e.clock.Next()
	id, err := ir.FrameID(msg.FlowToken, a.id, msg.Method, msg.Args, seq)
	if err != nil {
		e.logger.Warn("frame id: arguments not hashable, hashing without them",
			"actor", a.id,
			"method", msg.Method,
			"error", err,
		)
		id = ir.MustFrameID(msg.FlowToken, a.id, msg.Method, nil, seq)
	}

	f := &Frame{
		ID:        id,
		Actor:     a.id,
		Method:    msg.Method,
		Kind:      m.Kind,
		FlowToken: msg.FlowToken,
		ParentID:  msg.ParentID,
		Caller:    msg.Caller,
		Depth:     msg.Depth,
		Status:    FrameRunning,
		msg:       msg,
		resume:    make(chan struct{}),
		yield:     make(chan yieldSignal),
		done:      e.done,
		timer:     e.metrics.FrameDuration(a.id, msg.Method),
	}
	f.working, f.base = a.cell.Snapshot()
	f.call = newCall(ctx, e, f)

	a.owner = f
	e.frames[id] = f

	e.record(ctx, ir.JournalEntry{
		Seq:       seq,
		Type:      ir.EntryDispatch,
		FlowToken: f.FlowToken,
		FrameID:   f.ID,
		ParentID:  f.ParentID,
		Actor:     f.Actor,
		Method:    f.Method,
		Depth:     f.Depth,
		Version:   f.base,
	})
	e.logger.Debug("frame dispatched",
		"frame_id", f.ID,
		"actor", f.Actor,
		"method", f.Method,
		"kind", f.Kind,
		"flow_token", f.FlowToken,
		"depth", f.Depth,
	)
	return f
}

// runFrame is the frame goroutine. It waits for the Run loop to hand over
// control, runs the handler, and reports the terminal signal.
func (e *Engine) runFrame(f *Frame, h Handler, args ir.IRValue) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(frameAbort); ok {
				return
			}
			panic(r)
		}
	}()

	f.wait()
	result, fail := e.invoke(f, h, args)
	if fail != nil {
		f.finish(yieldSignal{kind: yieldFail, failure: fail})
		return
	}
	f.finish(yieldSignal{kind: yieldReturn, result: result})
}

// invoke runs the handler and converts every way it can end into a result or
// a Failure. Traps are sticky: once Trap was called the frame fails even if
// the handler recovered and returned normally.
func (e *Engine) invoke(f *Frame, h Handler, args ir.IRValue) (result ir.IRValue, fail *Failure) {
	defer func() {
		r := recover()
		if _, ok := r.(frameAbort); ok {
			panic(r)
		}

		hookFail := f.unwind()
		switch {
		case f.trap != nil:
			fail = f.trap
		case r != nil:
			fail = newFailure(HandlerFailure, CodeHandlerPanic, f, fmt.Sprintf("handler panicked: %v", r), nil)
		case fail == nil && hookFail != nil:
			fail = hookFail
		}
		if fail != nil {
			result = nil
		}
	}()

	out, err := h(f.call, args)
	if err != nil {
		return nil, newFailure(HandlerFailure, CodeHandlerError, f, err.Error(), err)
	}
	return out, nil
}

// step runs f until it suspends or terminates. Exactly one of the Run loop
// and the frame goroutine executes at a time.
func (e *Engine) step(ctx context.Context, f *Frame) {
	for {
		select {
		case f.resume <- struct{}{}:
		case <-e.done:
			return
		}

		var y yieldSignal
		select {
		case y = <-f.yield:
		case <-e.done:
			return
		}

		if !e.handleYield(ctx, f, y) {
			return
		}
	}
}

// handleYield classifies why the frame stopped. It returns true when the
// frame should continue immediately (an outbound call refused before the
// boundary).
func (e *Engine) handleYield(ctx context.Context, f *Frame, y yieldSignal) bool {
	switch y.kind {
	case yieldLocal:
		e.suspendLocal(ctx, f, y.await)
		return false
	case yieldOutbound:
		return e.relay(ctx, f, y.call)
	case yieldReturn:
		e.complete(ctx, f, y.result)
		return false
	case yieldFail:
		e.fail(ctx, f, y.failure)
		return false
	default:
		e.fail(ctx, f, newFailure(HandlerFailure, CodeHandlerPanic, f, fmt.Sprintf("unknown yield kind %d", y.kind), nil))
		return false
	}
}

// suspendLocal parks f without committing and without releasing its actor.
// fn runs here, between frames, and its result wakes the frame from the back
// of the queue so other ready work runs first.
func (e *Engine) suspendLocal(ctx context.Context, f *Frame, fn AwaitFunc) {
	f.Status = FrameSuspended
	e.record(ctx, ir.JournalEntry{
		Type:      ir.EntrySuspend,
		FlowToken: f.FlowToken,
		FrameID:   f.ID,
		ParentID:  f.ParentID,
		Actor:     f.Actor,
		Method:    f.Method,
		Depth:     f.Depth,
		Version:   f.base,
	})

	out := runAwait(ctx, fn)
	out.FlowToken = f.FlowToken
	e.queue.Enqueue(Event{Type: EventWake, FrameID: f.ID, Reply: &out})
}

func runAwait(ctx context.Context, fn AwaitFunc) (out Outcome) {
	if fn == nil {
		return Outcome{}
	}
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Err: fmt.Errorf("await function panicked: %v", r)}
		}
	}()
	v, err := fn(ctx)
	return Outcome{Result: v, Err: err}
}

// complete commits an Update frame's final working copy and replies.
func (e *Engine) complete(ctx context.Context, f *Frame, result ir.IRValue) {
	if fail := e.checkpoint(ctx, f, CommitReturn); fail != nil {
		e.fail(ctx, f, fail)
		return
	}

	f.Status = FrameCompleted
	e.record(ctx, ir.JournalEntry{
		Type:      ir.EntryComplete,
		FlowToken: f.FlowToken,
		FrameID:   f.ID,
		ParentID:  f.ParentID,
		Actor:     f.Actor,
		Method:    f.Method,
		Depth:     f.Depth,
		Version:   f.base,
		Result:    result,
	})
	e.logger.Info("frame completed",
		"frame_id", f.ID,
		"actor", f.Actor,
		"method", f.Method,
		"flow_token", f.FlowToken,
	)

	e.finish(f)
	e.replyTo(f.msg, Outcome{FlowToken: f.FlowToken, FrameID: f.ID, Result: result})
}

// fail rolls f back and replies with the failure. A parent frame receives it
// wrapped as CALLEE_FAILED.
func (e *Engine) fail(ctx context.Context, f *Frame, fail *Failure) {
	e.rollback(ctx, f, fail)
	e.finish(f)

	var err error = fail
	if !f.msg.ingress() {
		err = newFailure(OutboundCallFailure, CodeCalleeFailed, f,
			fmt.Sprintf("call to %s.%s failed: %s", f.Actor, f.Method, fail.Message), fail)
	}
	e.replyTo(f.msg, Outcome{FlowToken: f.FlowToken, FrameID: f.ID, Err: err})
}

// finish releases f's actor and forgets the frame.
func (e *Engine) finish(f *Frame) {
	if a := e.lookup(f.Actor); a != nil && a.owner == f {
		e.release(a)
	}
	delete(e.frames, f.ID)

	f.timer.ObserveDuration()
	e.metrics.FrameFinished(f.Actor, f.Method, f.Status)
	e.endFlowIfRoot(f.msg)
}

// endFlowIfRoot drops per-flow bookkeeping once the ingress call is answered.
func (e *Engine) endFlowIfRoot(msg *Message) {
	if !msg.ingress() {
		return
	}
	delete(e.quotas, msg.FlowToken)
	e.tracker.Clear(msg.FlowToken)
}
