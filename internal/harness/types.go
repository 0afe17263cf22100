package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/ckpt/internal/ir"
)

// TraceEvent is one journal entry as seen by assertions and golden files.
// Frame IDs and state payloads are left out: they are covered by the store's
// own checks, and traces stay readable.
type TraceEvent struct {
	Seq          int64  `json:"seq"`
	Type         string `json:"type"`
	FlowToken    string `json:"flow_token"`
	Actor        string `json:"actor"`
	Method       string `json:"method"`
	Depth        int    `json:"depth,omitempty"`
	Reason       string `json:"reason,omitempty"`
	Target       string `json:"target,omitempty"`
	TargetMethod string `json:"target_method,omitempty"`
	Code         string `json:"code,omitempty"`
}

// String renders the event the way scenarios name it:
//
//	dispatch a.inc
//	commit a.inc return
//	park a.call_b -> b.get_counter
//	rollback a.call_b TRAP
func (e TraceEvent) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s.%s", e.Type, e.Actor, e.Method)
	if e.Reason != "" {
		b.WriteString(" " + e.Reason)
	}
	if e.Target != "" {
		fmt.Fprintf(&b, " -> %s.%s", e.Target, e.TargetMethod)
	}
	if e.Code != "" {
		b.WriteString(" " + e.Code)
	}
	return b.String()
}

// traceEvent converts a journal entry.
func traceEvent(entry ir.JournalEntry) TraceEvent {
	return TraceEvent{
		Seq:          entry.Seq,
		Type:         string(entry.Type),
		FlowToken:    entry.FlowToken,
		Actor:        string(entry.Actor),
		Method:       entry.Method,
		Depth:        entry.Depth,
		Reason:       entry.Reason,
		Target:       string(entry.Target),
		TargetMethod: entry.TargetMethod,
		Code:         entry.Code,
	}
}

// StepResult is the observed outcome of one ingress call.
type StepResult struct {
	Actor     string     `json:"actor"`
	Method    string     `json:"method"`
	FlowToken string     `json:"flow_token"`
	Outcome   string     `json:"outcome"`
	Code      string     `json:"code,omitempty"`
	Result    ir.IRValue `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Steps holds one entry per ingress call, in submission order,
	// setup calls included.
	Steps []StepResult `json:"steps"`

	// Trace contains every journal entry in seq order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State contains the final State Cell value of every actor.
	State map[string]ir.IRObject `json:"state,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepResult{},
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]ir.IRObject),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Lines returns the trace rendered with TraceEvent.String.
func (r *Result) Lines() []string {
	out := make([]string, len(r.Trace))
	for i, e := range r.Trace {
		out[i] = e.String()
	}
	return out
}

// FlowLines returns the trace lines of one flow, in seq order.
func (r *Result) FlowLines(flowToken string) []string {
	var out []string
	for _, e := range r.Trace {
		if e.FlowToken == flowToken {
			out = append(out, e.String())
		}
	}
	return out
}
