package engine

import (
	"context"
	"errors"

	"github.com/roach88/ckpt/internal/ir"
)

// ErrNotAllowed is returned by DenyList for denied methods.
var ErrNotAllowed = errors.New("NotAllowed")

// Inspector is the admission filter for ingress calls. It runs before any
// frame exists; a non-nil error rejects the call with INSPECT_REJECTED.
// Relayed calls between actors are never inspected.
type Inspector interface {
	Inspect(actor ir.ActorID, method string, args ir.IRValue) error
}

// InspectorFunc adapts a function to the Inspector interface.
type InspectorFunc func(actor ir.ActorID, method string, args ir.IRValue) error

// Inspect implements Inspector.
func (fn InspectorFunc) Inspect(actor ir.ActorID, method string, args ir.IRValue) error {
	return fn(actor, method, args)
}

// DenyList rejects ingress calls to specific methods of specific actors.
type DenyList map[ir.ActorID]map[string]bool

// NewDenyList builds a DenyList from the deny lists of deployed actors.
func NewDenyList(specs []ir.ActorSpec) DenyList {
	d := make(DenyList)
	for _, spec := range specs {
		for _, method := range spec.Deny {
			d.Deny(spec.ID, method)
		}
	}
	return d
}

// Deny adds actor.method to the list.
func (d DenyList) Deny(actor ir.ActorID, method string) {
	if d[actor] == nil {
		d[actor] = make(map[string]bool)
	}
	d[actor][method] = true
}

// Inspect implements Inspector.
func (d DenyList) Inspect(actor ir.ActorID, method string, _ ir.IRValue) error {
	if d[actor][method] {
		return ErrNotAllowed
	}
	return nil
}

// admit applies ingress admission: the target must exist and define the
// method, and the inspector must accept the call. On rejection the reject
// entry is journaled and the failure returned.
func (e *Engine) admit(ctx context.Context, msg *Message) *Failure {
	var fail *Failure

	a := e.lookup(msg.Target)
	switch {
	case a == nil:
		fail = &Failure{Kind: RejectionFailure, Code: CodeUnknownActor, Actor: msg.Target, Method: msg.Method,
			Message: "no actor " + string(msg.Target), Cause: ErrUnknownActor}
	case !a.hasMethod(msg.Method):
		fail = &Failure{Kind: RejectionFailure, Code: CodeUnknownMethod, Actor: msg.Target, Method: msg.Method,
			Message: "actor " + string(msg.Target) + " has no method " + msg.Method}
	case e.inspector != nil:
		if err := e.inspector.Inspect(msg.Target, msg.Method, msg.Args); err != nil {
			fail = &Failure{Kind: RejectionFailure, Code: CodeInspectReject, Actor: msg.Target, Method: msg.Method,
				Message: "call rejected by inspect check: " + err.Error(), Cause: err}
		}
	}
	if fail == nil {
		return nil
	}

	e.record(ctx, ir.JournalEntry{
		Type:      ir.EntryReject,
		FlowToken: msg.FlowToken,
		Actor:     msg.Target,
		Method:    msg.Method,
		Code:      string(fail.Code),
		Error:     fail.Message,
	})
	e.metrics.Rejected(msg.Target, fail.Code)
	e.logger.Warn("ingress call rejected",
		"actor", msg.Target,
		"method", msg.Method,
		"flow_token", msg.FlowToken,
		"code", fail.Code,
	)
	return fail
}
