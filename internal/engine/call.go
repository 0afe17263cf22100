package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/ckpt/internal/ir"
)

// Handler implements one actor method. It reads and mutates state only
// through c, which is valid for the duration of the invocation.
//
// Returning a non-nil error fails the frame (HANDLER_ERROR). Panics are
// recovered by the engine and fail the frame as well.
type Handler func(c *Call, args ir.IRValue) (ir.IRValue, error)

// AwaitFunc is the body of a local suspension. It runs on the Run loop
// between frames and must not touch the Call that issued it.
type AwaitFunc func(ctx context.Context) (ir.IRValue, error)

// MethodKind distinguishes state-changing methods from read-only ones.
type MethodKind int

const (
	// Update methods commit their working copy at outbound calls and on
	// return.
	Update MethodKind = iota + 1
	// Query methods never commit and may not issue outbound calls.
	Query
)

func (k MethodKind) String() string {
	if k == Query {
		return "query"
	}
	return "update"
}

// Method is a handler plus its kind.
type Method struct {
	Kind    MethodKind
	Handler Handler
}

// Methods is an actor's handler table.
type Methods map[string]Method

// UpdateMethod wraps h as an Update method.
func UpdateMethod(h Handler) Method {
	return Method{Kind: Update, Handler: h}
}

// QueryMethod wraps h as a Query method.
func QueryMethod(h Handler) Method {
	return Method{Kind: Query, Handler: h}
}

// Call is the handler's view of its frame.
type Call struct {
	e   *Engine
	f   *Frame
	ctx context.Context
	log *slog.Logger
}

func newCall(ctx context.Context, e *Engine, f *Frame) *Call {
	return &Call{
		e:   e,
		f:   f,
		ctx: ctx,
		log: e.logger.With(
			"frame_id", f.ID,
			"actor", f.Actor,
			"method", f.Method,
			"flow_token", f.FlowToken,
		),
	}
}

// Self returns the actor this frame runs against.
func (c *Call) Self() ir.ActorID { return c.f.Actor }

// Caller returns the calling actor, or "" for ingress calls.
func (c *Call) Caller() ir.ActorID { return c.f.Caller }

// Method returns the invoked method name.
func (c *Call) Method() string { return c.f.Method }

// Depth returns the call depth (0 for ingress).
func (c *Call) Depth() int { return c.f.Depth }

// FlowToken returns the flow this frame belongs to.
func (c *Call) FlowToken() string { return c.f.FlowToken }

// FrameID returns the content-addressed frame ID.
func (c *Call) FrameID() string { return c.f.ID }

// Context returns the Run loop's context.
func (c *Call) Context() context.Context { return c.ctx }

// Log returns a logger annotated with the frame's identity.
func (c *Call) Log() *slog.Logger { return c.log }

// Peer resolves a named peer from the actor's deployment.
func (c *Call) Peer(name string) (ir.ActorID, bool) {
	a := c.e.lookup(c.f.Actor)
	if a == nil {
		return "", false
	}
	return a.spec.Peer(name)
}

// State returns a copy of the whole working copy.
func (c *Call) State() ir.IRObject {
	return c.f.working.Clone()
}

// Get returns a copy of a field of the working copy, or nil if unset.
func (c *Call) Get(field string) ir.IRValue {
	return ir.Clone(c.f.working[field])
}

// Set writes a field of the working copy. The write becomes durable only at
// the frame's next commit point.
func (c *Call) Set(field string, v ir.IRValue) {
	c.f.working[field] = ir.Clone(v)
}

// Int reads an integer field. Unset fields read as 0; a non-integer field
// traps.
func (c *Call) Int(field string) int64 {
	n, err := ir.AsInt(c.f.working[field])
	if err != nil {
		c.Trap(fmt.Sprintf("field %q: %v", field, err))
	}
	return n
}

// Add adds delta to an integer field and returns the new value.
func (c *Call) Add(field string, delta int64) int64 {
	n := c.Int(field) + delta
	c.f.working[field] = ir.IRInt(n)
	return n
}

// Await suspends the frame locally while fn runs. The actor stays owned by
// this frame and nothing is committed.
func (c *Call) Await(fn AwaitFunc) (ir.IRValue, error) {
	if c.f.trap != nil {
		return nil, c.f.trap
	}
	if c.f.unwinding {
		return nil, newFailure(HandlerFailure, CodeSuspendInHook, c.f, "cannot suspend inside an unwind hook", nil)
	}
	out := c.f.suspend(yieldSignal{kind: yieldLocal, await: fn})
	return out.Result, out.Err
}

// Call issues an outbound call to target (which may be Self) and blocks until
// the reply arrives.
//
// For Update methods the working copy is committed before the call leaves
// the actor; on return the working copy is reseeded from the State Cell.
// Failures come back as *Failure errors of kind OutboundCallFailure.
//
// A trapped frame cannot suspend: the call returns the trap without leaving
// the actor, so nothing written after the trap is ever committed.
func (c *Call) Call(target ir.ActorID, method string, args ir.IRValue) (ir.IRValue, error) {
	if c.f.trap != nil {
		return nil, c.f.trap
	}
	if c.f.unwinding {
		return nil, newFailure(HandlerFailure, CodeSuspendInHook, c.f, "cannot suspend inside an unwind hook", nil)
	}
	out := c.f.suspend(yieldSignal{
		kind: yieldOutbound,
		call: &OutboundCall{
			Target:       target,
			Method:       method,
			Args:         ir.Clone(args),
			Continuation: c.f.ID,
		},
	})
	return out.Result, out.Err
}

// Trap fails the frame. The failure is recorded before unwinding, so a
// handler that recovers the panic still fails when it returns.
func (c *Call) Trap(msg string) {
	if c.f.trap == nil {
		c.f.trap = newFailure(HandlerFailure, CodeTrap, c.f, msg, nil)
	}
	panic(trapSignal{msg: msg})
}

// Trapf is Trap with formatting.
func (c *Call) Trapf(format string, args ...any) {
	c.Trap(fmt.Sprintf(format, args...))
}

// Defer registers fn to run when the handler finishes, on success and on
// failure alike. Hooks run LIFO before the commit or rollback decision, so
// their writes share the frame's fate.
func (c *Call) Defer(fn func(c *Call)) {
	c.f.hooks = append(c.f.hooks, fn)
}
