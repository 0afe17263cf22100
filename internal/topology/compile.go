package topology

import (
	"fmt"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/ckpt/internal/ir"
)

// Topology is a compiled deployment: the actors to deploy and engine
// settings.
type Topology struct {
	Actors []ir.ActorSpec

	// MaxSteps is the per-flow step quota; 0 means the engine default.
	MaxSteps int
	// Reentrancy is "allow", "reject", or "" for the engine default.
	Reentrancy string

	// Files is the number of .cue files the topology was built from.
	Files int
}

// Actor returns the spec for id.
func (t *Topology) Actor(id ir.ActorID) (ir.ActorSpec, bool) {
	for _, a := range t.Actors {
		if a.ID == id {
			return a, true
		}
	}
	return ir.ActorSpec{}, false
}

// CompileValue compiles a unified CUE value into a Topology. Actors are
// returned sorted by ID.
func CompileValue(v cue.Value) (*Topology, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	topo := &Topology{}
	if err := compileEngine(v.LookupPath(cue.ParsePath("engine")), topo); err != nil {
		return nil, err
	}

	actorsVal := v.LookupPath(cue.ParsePath("actor"))
	if !actorsVal.Exists() {
		return nil, &CompileError{
			Field:   "actor",
			Message: "at least one actor is required",
			Pos:     v.Pos(),
		}
	}
	iter, err := actorsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		spec, err := CompileActor(ir.ActorID(iter.Label()), iter.Value())
		if err != nil {
			return nil, err
		}
		topo.Actors = append(topo.Actors, *spec)
	}
	if len(topo.Actors) == 0 {
		return nil, &CompileError{
			Field:   "actor",
			Message: "at least one actor is required",
			Pos:     actorsVal.Pos(),
		}
	}

	sort.Slice(topo.Actors, func(i, j int) bool { return topo.Actors[i].ID < topo.Actors[j].ID })
	return topo, nil
}

func compileEngine(v cue.Value, topo *Topology) error {
	if !v.Exists() {
		return nil
	}

	if ms := v.LookupPath(cue.ParsePath("max_steps")); ms.Exists() {
		n, err := ms.Int64()
		if err != nil {
			return &CompileError{Field: "engine.max_steps", Message: "must be an integer", Pos: ms.Pos()}
		}
		if n < 1 {
			return &CompileError{Field: "engine.max_steps", Message: "must be at least 1", Pos: ms.Pos()}
		}
		topo.MaxSteps = int(n)
	}

	if re := v.LookupPath(cue.ParsePath("reentrancy")); re.Exists() {
		s, err := re.String()
		if err != nil {
			return &CompileError{Field: "engine.reentrancy", Message: "must be a string", Pos: re.Pos()}
		}
		if s != "allow" && s != "reject" {
			return &CompileError{
				Field:   "engine.reentrancy",
				Message: fmt.Sprintf("unknown policy %q (want \"allow\" or \"reject\")", s),
				Pos:     re.Pos(),
			}
		}
		topo.Reentrancy = s
	}
	return nil
}

// CompileActor parses one actor struct.
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`actor: a: { program: "counter" }`)
//	spec, err := CompileActor("a", v.LookupPath(cue.ParsePath("actor.a")))
func CompileActor(id ir.ActorID, v cue.Value) (*ir.ActorSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.ActorSpec{ID: id, State: ir.IRObject{}}
	field := func(name string) string { return fmt.Sprintf("actor.%s.%s", id, name) }

	progVal := v.LookupPath(cue.ParsePath("program"))
	if !progVal.Exists() {
		return nil, &CompileError{Field: field("program"), Message: "program is required", Pos: v.Pos()}
	}
	prog, err := progVal.String()
	if err != nil {
		return nil, &CompileError{Field: field("program"), Message: "program must be a string", Pos: progVal.Pos()}
	}
	spec.Program = prog

	if stateVal := v.LookupPath(cue.ParsePath("state")); stateVal.Exists() {
		state, err := convertValue(field("state"), stateVal)
		if err != nil {
			return nil, err
		}
		obj, ok := state.(ir.IRObject)
		if !ok {
			return nil, &CompileError{Field: field("state"), Message: "state must be a struct", Pos: stateVal.Pos()}
		}
		spec.State = obj
	}

	if denyVal := v.LookupPath(cue.ParsePath("deny")); denyVal.Exists() {
		list, err := denyVal.List()
		if err != nil {
			return nil, &CompileError{Field: field("deny"), Message: "deny must be a list of method names", Pos: denyVal.Pos()}
		}
		for list.Next() {
			m, err := list.Value().String()
			if err != nil {
				return nil, &CompileError{Field: field("deny"), Message: "deny entries must be strings", Pos: list.Value().Pos()}
			}
			spec.Deny = append(spec.Deny, m)
		}
	}

	if peersVal := v.LookupPath(cue.ParsePath("peers")); peersVal.Exists() {
		iter, err := peersVal.Fields()
		if err != nil {
			return nil, &CompileError{Field: field("peers"), Message: "peers must be a struct", Pos: peersVal.Pos()}
		}
		spec.Peers = make(map[string]ir.ActorID)
		for iter.Next() {
			target, err := iter.Value().String()
			if err != nil {
				return nil, &CompileError{
					Field:   field("peers." + iter.Label()),
					Message: "peer must name an actor",
					Pos:     iter.Value().Pos(),
				}
			}
			spec.Peers[iter.Label()] = ir.ActorID(target)
		}
	}

	return spec, nil
}

// convertValue converts a concrete CUE value to an IRValue. Floats are
// forbidden: use int instead.
func convertValue(field string, v cue.Value) (ir.IRValue, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, &CompileError{Field: field, Message: "value must be concrete", Pos: v.Pos()}
	}

	switch v.Kind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRString(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, &CompileError{Field: field, Message: fmt.Sprintf("integer out of range: %v", err), Pos: v.Pos()}
		}
		return ir.IRInt(n), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRBool(b), nil
	case cue.ListKind:
		list, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		arr := ir.IRArray{}
		for i := 0; list.Next(); i++ {
			elem, err := convertValue(fmt.Sprintf("%s[%d]", field, i), list.Value())
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		obj := ir.IRObject{}
		for iter.Next() {
			elem, err := convertValue(field+"."+iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			obj[iter.Label()] = elem
		}
		return obj, nil
	case cue.FloatKind:
		return nil, &CompileError{Field: field, Message: "floats are forbidden - use int instead", Pos: v.Pos()}
	case cue.NullKind:
		return nil, &CompileError{Field: field, Message: "null is forbidden", Pos: v.Pos()}
	default:
		return nil, &CompileError{Field: field, Message: fmt.Sprintf("unsupported kind: %v", v.Kind()), Pos: v.Pos()}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
