package ir

// ActorID identifies an actor. It is opaque to the engine beyond equality.
type ActorID string

// ActorSpec describes one deployed actor: the program providing its handler
// table, the initial value of its state cell, and deployment-level settings.
type ActorSpec struct {
	ID      ActorID            `json:"id"`
	Program string             `json:"program"`
	State   IRObject           `json:"state"`
	Deny    []string           `json:"deny,omitempty"`  // Methods refused at ingress
	Peers   map[string]ActorID `json:"peers,omitempty"` // Named references to other actors
}

// Peer resolves a named peer reference, returning false when the deployment
// does not define it.
func (s ActorSpec) Peer(name string) (ActorID, bool) {
	id, ok := s.Peers[name]
	return id, ok
}

// EntryType names a frame lifecycle transition recorded in the journal.
type EntryType string

const (
	// EntryDispatch records frame creation, seeded from the state cell.
	EntryDispatch EntryType = "dispatch"
	// EntrySuspend records a local suspension (no commit).
	EntrySuspend EntryType = "suspend"
	// EntryCommit records a working copy becoming authoritative.
	EntryCommit EntryType = "commit"
	// EntryPark records a frame parking on an outbound call.
	EntryPark EntryType = "park"
	// EntryResume records a frame resuming after a reply or local wake.
	EntryResume EntryType = "resume"
	// EntryComplete records normal termination.
	EntryComplete EntryType = "complete"
	// EntryRollback records failure and the discarded working copy.
	EntryRollback EntryType = "rollback"
	// EntryReject records an ingress call refused before dispatch.
	EntryReject EntryType = "reject"
)

// JournalEntry is one append-only record of the engine's frame lifecycle.
//
// Only the fields meaningful for Type are set:
//   - commit: Reason ("outbound" or "return"), State, Version
//   - park: Target, TargetMethod
//   - rollback: State (the discarded working copy), Code, Error
//   - complete: Result
//   - reject: Code, Error
type JournalEntry struct {
	Seq          int64     `json:"seq"` // Logical clock
	Type         EntryType `json:"type"`
	FlowToken    string    `json:"flow_token"`
	FrameID      string    `json:"frame_id,omitempty"`
	ParentID     string    `json:"parent_id,omitempty"`
	Actor        ActorID   `json:"actor"`
	Method       string    `json:"method"`
	Depth        int       `json:"depth"`
	Reason       string    `json:"reason,omitempty"`
	Target       ActorID   `json:"target,omitempty"`
	TargetMethod string    `json:"target_method,omitempty"`
	State        IRObject  `json:"state,omitempty"`
	Version      int64     `json:"version,omitempty"`
	Result       IRValue   `json:"result,omitempty"`
	Code         string    `json:"code,omitempty"`
	Error        string    `json:"error,omitempty"`
}
