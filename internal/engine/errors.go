package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/ckpt/internal/ir"
)

// Sentinel errors returned by the engine's public surface.
var (
	ErrEngineStopped  = errors.New("engine stopped")
	ErrActorExists    = errors.New("actor already deployed")
	ErrActorBusy      = errors.New("actor is busy")
	ErrUnknownActor   = errors.New("unknown actor")
	ErrAlreadyRunning = errors.New("engine already running")
)

// FailureKind is the top-level failure taxonomy.
type FailureKind string

const (
	// HandlerFailure means the handler raised an unrecoverable error. The
	// frame's uncommitted working copy is rolled back.
	HandlerFailure FailureKind = "HandlerFailure"

	// OutboundCallFailure means a relayed call could not be completed or its
	// callee failed. Handlers receive it as an ordinary error value.
	OutboundCallFailure FailureKind = "OutboundCallFailure"

	// RejectionFailure means an ingress call was refused before any frame
	// existed.
	RejectionFailure FailureKind = "RejectionFailure"
)

// Code categorizes a failure within its kind.
type Code string

const (
	CodeHandlerError  Code = "HANDLER_ERROR"
	CodeHandlerPanic  Code = "HANDLER_PANIC"
	CodeTrap          Code = "TRAP"
	CodeCalleeFailed  Code = "CALLEE_FAILED"
	CodeUnknownActor  Code = "UNKNOWN_ACTOR"
	CodeUnknownMethod Code = "UNKNOWN_METHOD"
	CodeQueryCall     Code = "QUERY_CALL"
	CodeQuotaExceeded Code = "QUOTA_EXCEEDED"
	CodeReentrantCall Code = "REENTRANT_CALL"
	CodeInspectReject Code = "INSPECT_REJECTED"
	CodeStaleCommit   Code = "STALE_COMMIT"
	CodeSuspendInHook Code = "SUSPEND_IN_HOOK"
)

// Failure is the opaque failure signal observed by callers. Callers never see
// partial results: an Outcome carries either a payload or a Failure.
type Failure struct {
	Kind    FailureKind
	Code    Code
	Actor   ir.ActorID
	Method  string
	FrameID string
	Message string

	// Cause is the underlying error, if any. For CALLEE_FAILED it is the
	// callee's own *Failure.
	Cause error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.Actor != "" {
		return fmt.Sprintf("%s %s: %s (actor=%s, method=%s)", f.Kind, f.Code, f.Message, f.Actor, f.Method)
	}
	return fmt.Sprintf("%s %s: %s", f.Kind, f.Code, f.Message)
}

// Unwrap returns the cause so errors.Is/As can reach wrapped errors.
func (f *Failure) Unwrap() error {
	return f.Cause
}

// IsHandlerFailure reports whether err is (or wraps) a HandlerFailure.
func IsHandlerFailure(err error) bool {
	return hasKind(err, HandlerFailure)
}

// IsOutboundFailure reports whether err is (or wraps) an OutboundCallFailure.
func IsOutboundFailure(err error) bool {
	return hasKind(err, OutboundCallFailure)
}

// IsRejection reports whether err is (or wraps) a RejectionFailure.
func IsRejection(err error) bool {
	return hasKind(err, RejectionFailure)
}

// FailureCode returns the code of the outermost Failure in err's chain, or ""
// if err carries none.
func FailureCode(err error) Code {
	var f *Failure
	if errors.As(err, &f) {
		return f.Code
	}
	return ""
}

func hasKind(err error, kind FailureKind) bool {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind == kind
	}
	return false
}

// newFailure builds a Failure attributed to frame f (which may be nil for
// ingress rejections).
func newFailure(kind FailureKind, code Code, f *Frame, msg string, cause error) *Failure {
	fail := &Failure{
		Kind:    kind,
		Code:    code,
		Message: msg,
		Cause:   cause,
	}
	if f != nil {
		fail.Actor = f.Actor
		fail.Method = f.Method
		fail.FrameID = f.ID
	}
	return fail
}

// NewQuotaError creates the failure returned when a flow exceeds its step
// quota.
func NewQuotaError(f *Frame, err error) *Failure {
	return newFailure(OutboundCallFailure, CodeQuotaExceeded, f, err.Error(), err)
}

// NewReentrancyError creates the failure returned when a call would re-enter
// an actor that already has a parked frame in the same flow.
func NewReentrancyError(f *Frame, target ir.ActorID) *Failure {
	return newFailure(OutboundCallFailure, CodeReentrantCall, f,
		fmt.Sprintf("call would re-enter actor %s in flow %s", target, f.FlowToken), nil)
}
