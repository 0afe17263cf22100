package engine

import (
	"sync"

	"github.com/roach88/ckpt/internal/ir"
)

// ReentrancyPolicy decides what happens when a call would re-enter an actor
// that already has a frame parked in the same flow.
type ReentrancyPolicy int

const (
	// ReentrancyAllow serializes the re-entrant dispatch through the actor's
	// queue like any other message. The parked frame resumes from whatever
	// the nested dispatch committed.
	ReentrancyAllow ReentrancyPolicy = iota

	// ReentrancyReject refuses the call before the boundary with
	// REENTRANT_CALL. No commit happens.
	ReentrancyReject
)

func (p ReentrancyPolicy) String() string {
	if p == ReentrancyReject {
		return "reject"
	}
	return "allow"
}

// ReentrancyTracker records, per flow, which actors have frames parked on an
// outbound call.
//
// Example:
//
//	A.m parks calling B.n   -> parked {A:1}
//	B.n calls A.k           -> A already parked in this flow: re-entrant
//
// A self-call is never re-entrant: the parked frame is the direct caller and
// the nested dispatch is an independent, fully serialized frame.
type ReentrancyTracker struct {
	mu     sync.Mutex
	parked map[string]map[ir.ActorID]int // map[flow_token]map[actor]parked frames
}

// NewReentrancyTracker creates an empty tracker.
func NewReentrancyTracker() *ReentrancyTracker {
	return &ReentrancyTracker{
		parked: make(map[string]map[ir.ActorID]int),
	}
}

// WouldReenter reports whether caller calling target would re-enter target
// within flowToken.
func (r *ReentrancyTracker) WouldReenter(flowToken string, caller, target ir.ActorID) bool {
	if caller == target {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.parked[flowToken][target] > 0
}

// Park records a frame of actor parking in flowToken.
func (r *ReentrancyTracker) Park(flowToken string, actor ir.ActorID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.parked[flowToken] == nil {
		r.parked[flowToken] = make(map[ir.ActorID]int)
	}
	r.parked[flowToken][actor]++
}

// Unpark records a parked frame of actor resuming.
func (r *ReentrancyTracker) Unpark(flowToken string, actor ir.ActorID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	flow := r.parked[flowToken]
	if flow == nil {
		return
	}
	flow[actor]--
	if flow[actor] <= 0 {
		delete(flow, actor)
	}
	if len(flow) == 0 {
		delete(r.parked, flowToken)
	}
}

// Clear removes all history for a flow token.
func (r *ReentrancyTracker) Clear(flowToken string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.parked, flowToken)
}

// HistorySize returns the number of flows with parked frames.
func (r *ReentrancyTracker) HistorySize() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.parked)
}

// Parked returns the number of frames of actor parked in flowToken.
func (r *ReentrancyTracker) Parked(flowToken string, actor ir.ActorID) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.parked[flowToken][actor]
}
