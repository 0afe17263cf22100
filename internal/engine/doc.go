// Package engine implements the ckpt checkpointed actor engine.
//
// Actors own a State Cell and a handler table. Calls arrive through a single
// FIFO event queue and are executed one frame at a time: the Run loop hands
// control to a frame's goroutine and takes it back when the frame suspends or
// terminates, so no two handlers ever run concurrently.
//
// ARCHITECTURE:
//
// Frame lifecycle:
//  1. deliver: a message for an unowned actor creates a frame seeded from the
//     State Cell; the frame takes ownership of the actor
//  2. local suspension (Call.Await): frame keeps ownership, nothing commits
//  3. outbound call (Call.Call): the working copy commits, the frame parks and
//     releases the actor, the call is relayed to the back of the queue
//  4. reply: the frame reacquires its actor and is reseeded from the cell
//  5. return: an Update frame commits once more; failure rolls back
//
// While an actor is owned, events for it wait in a per-actor backlog and are
// drained in arrival order as soon as the owner releases it.
//
// CRITICAL PATTERNS:
//
// Logical Clock
// Every journal entry is stamped by Clock.Next(). Frame IDs hash the flow
// token, target, method, arguments and dispatch seq, so identical call
// sequences produce identical journals.
//
// Commit Points
// A commit happens only when a frame crosses the actor boundary with an
// outbound call (including a call to itself) and when an Update frame
// returns. Failures discard exactly the frame's uncommitted working copy.
package engine
