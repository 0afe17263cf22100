package engine

import (
	"fmt"

	"github.com/roach88/ckpt/internal/ir"
)

// FrameStatus is the state of an execution frame.
type FrameStatus int

const (
	// FrameRunning means the frame holds its actor and is executing.
	FrameRunning FrameStatus = iota + 1
	// FrameSuspended means the frame is in a local suspension. It keeps
	// ownership of its actor and its working copy is not committed.
	FrameSuspended
	// FrameAwaitingReply means the frame committed and parked on an outbound
	// call. Its actor is free for other frames.
	FrameAwaitingReply
	// FrameCompleted means the handler returned normally.
	FrameCompleted
	// FrameFailed means the frame was rolled back.
	FrameFailed
)

func (s FrameStatus) String() string {
	switch s {
	case FrameRunning:
		return "running"
	case FrameSuspended:
		return "suspended"
	case FrameAwaitingReply:
		return "awaiting_reply"
	case FrameCompleted:
		return "completed"
	case FrameFailed:
		return "failed"
	default:
		return fmt.Sprintf("FrameStatus(%d)", int(s))
	}
}

// OutboundCall records one call issued by a frame. Continuation is the ID of
// the frame that receives the reply.
type OutboundCall struct {
	Target       ir.ActorID
	Method       string
	Args         ir.IRValue
	Continuation string
	Seq          int64 // seq of the park entry
}

// Frame is one in-flight handler invocation.
//
// The handler runs on its own goroutine, but control is handed back and forth
// with the Run loop over unbuffered channels, so exactly one of them executes
// at any moment. Fields below are therefore accessed without locks.
type Frame struct {
	ID        string
	Actor     ir.ActorID
	Method    string
	Kind      MethodKind
	FlowToken string
	ParentID  string
	Caller    ir.ActorID
	Depth     int
	Status    FrameStatus

	working ir.IRObject
	base    int64 // cell version the working copy was seeded from

	pending []*OutboundCall // issued, not yet replied to

	msg   *Message
	call  *Call
	timer Timer

	resume chan struct{}
	yield  chan yieldSignal
	done   <-chan struct{}
	inbox  *Outcome

	trap      *Failure
	hooks     []func(*Call)
	unwinding bool
}

type yieldKind int

const (
	yieldLocal yieldKind = iota + 1
	yieldOutbound
	yieldReturn
	yieldFail
)

// yieldSignal tells the Run loop why the frame stopped executing. The commit
// decision is made from kind alone.
type yieldSignal struct {
	kind    yieldKind
	await   AwaitFunc
	call    *OutboundCall
	result  ir.IRValue
	failure *Failure
}

// frameAbort unwinds a frame goroutine when the engine stops.
type frameAbort struct{}

// trapSignal is the panic value raised by Call.Trap.
type trapSignal struct {
	msg string
}

// wait blocks the frame goroutine until the Run loop hands it control.
func (f *Frame) wait() {
	select {
	case <-f.resume:
	case <-f.done:
		panic(frameAbort{})
	}
}

// suspend hands control back to the Run loop and blocks until resumed,
// returning the outcome the loop left in the inbox.
func (f *Frame) suspend(y yieldSignal) Outcome {
	select {
	case f.yield <- y:
	case <-f.done:
		panic(frameAbort{})
	}
	f.wait()

	out := f.inbox
	f.inbox = nil
	if out == nil {
		return Outcome{}
	}
	return *out
}

// finish hands the terminal signal to the Run loop. The goroutine exits after.
func (f *Frame) finish(y yieldSignal) {
	select {
	case f.yield <- y:
	case <-f.done:
	}
}

// unwind runs the Defer hooks in LIFO order. A panicking hook does not stop
// the others.
func (f *Frame) unwind() (fail *Failure) {
	f.unwinding = true
	defer func() { f.unwinding = false }()

	for len(f.hooks) > 0 {
		hook := f.hooks[len(f.hooks)-1]
		f.hooks = f.hooks[:len(f.hooks)-1]
		if hf := f.runHook(hook); hf != nil && fail == nil {
			fail = hf
		}
	}
	return fail
}

func (f *Frame) runHook(hook func(*Call)) (fail *Failure) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		switch r.(type) {
		case frameAbort:
			panic(r)
		case trapSignal:
			// f.trap is already set
		default:
			fail = newFailure(HandlerFailure, CodeHandlerPanic, f, fmt.Sprintf("unwind hook panicked: %v", r), nil)
		}
	}()
	hook(f.call)
	return nil
}
