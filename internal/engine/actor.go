package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/ckpt/internal/ir"
)

// actor is a deployed actor: one State Cell and one handler table.
//
// owner, backlog and parked are touched only by the Run loop. owner is the
// frame holding the right to commit (running or locally suspended); while it
// is set, events for the actor wait in backlog in arrival order.
type actor struct {
	id      ir.ActorID
	spec    ir.ActorSpec
	methods Methods
	cell    *StateCell

	owner   *Frame
	backlog []Event
	parked  int
}

func (a *actor) hasMethod(name string) bool {
	_, ok := a.methods[name]
	return ok
}

func (a *actor) busy() bool {
	return a.owner != nil || len(a.backlog) > 0 || a.parked > 0
}

// Deploy creates an actor with a State Cell initialized from spec.State.
// Safe to call before or during Run.
func (e *Engine) Deploy(spec ir.ActorSpec, methods Methods) error {
	if spec.ID == "" {
		return fmt.Errorf("deploy: actor id is required")
	}

	table := make(Methods, len(methods))
	for name, m := range methods {
		if m.Handler == nil {
			return fmt.Errorf("deploy %s: method %s has no handler", spec.ID, name)
		}
		if m.Kind == 0 {
			m.Kind = Update
		}
		table[name] = m
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.actors[spec.ID]; exists {
		return fmt.Errorf("deploy %s: %w", spec.ID, ErrActorExists)
	}
	e.actors[spec.ID] = &actor{
		id:      spec.ID,
		spec:    spec,
		methods: table,
		cell:    NewStateCell(spec.State),
	}

	e.logger.Info("actor deployed",
		"actor", spec.ID,
		"program", spec.Program,
		"methods", len(table),
	)
	return nil
}

// Teardown removes an idle actor. It fails with ErrActorBusy if a frame owns
// the actor, is parked on it, or messages are waiting for it.
//
// Teardown is processed by the Run loop in queue order, so it blocks until
// Run reaches it or ctx is done.
func (e *Engine) Teardown(ctx context.Context, id ir.ActorID) error {
	done := make(chan error, 1)
	if !e.queue.Enqueue(Event{Type: EventTeardown, Actor: id, done: done}) {
		return ErrEngineStopped
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrEngineStopped
	}
}

func (e *Engine) teardown(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.actors[ev.Actor]
	switch {
	case !ok:
		ev.done <- fmt.Errorf("teardown %s: %w", ev.Actor, ErrUnknownActor)
	case a.busy():
		ev.done <- fmt.Errorf("teardown %s: %w", ev.Actor, ErrActorBusy)
	default:
		delete(e.actors, ev.Actor)
		e.logger.Info("actor torn down", "actor", ev.Actor)
		ev.done <- nil
	}
}

// State returns a copy of an actor's committed state.
func (e *Engine) State(id ir.ActorID) (ir.IRObject, error) {
	a := e.lookup(id)
	if a == nil {
		return nil, fmt.Errorf("state %s: %w", id, ErrUnknownActor)
	}
	return a.cell.Read(), nil
}

// Version returns the number of commits applied to an actor's State Cell.
func (e *Engine) Version(id ir.ActorID) (int64, error) {
	a := e.lookup(id)
	if a == nil {
		return 0, fmt.Errorf("version %s: %w", id, ErrUnknownActor)
	}
	return a.cell.Version(), nil
}

// Actors returns the deployed actor IDs in sorted order.
func (e *Engine) Actors() []ir.ActorID {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := make([]ir.ActorID, 0, len(e.actors))
	for id := range e.actors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (e *Engine) lookup(id ir.ActorID) *actor {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.actors[id]
}
