package programs

import (
	"fmt"
	"sort"

	"github.com/roach88/ckpt/internal/engine"
	"github.com/roach88/ckpt/internal/ir"
)

// Program builds the handler table for an actor.
type Program struct {
	Name        string
	Description string
	Methods     func() engine.Methods
}

// Registry maps program names to programs.
type Registry struct {
	programs map[string]Program
}

// NewRegistry creates a registry holding ps.
func NewRegistry(ps ...Program) (*Registry, error) {
	r := &Registry{programs: make(map[string]Program)}
	for _, p := range ps {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Default returns a registry with the built-in programs.
func Default() *Registry {
	r, err := NewRegistry(Counter(), Recorder())
	if err != nil {
		panic(err)
	}
	return r
}

// Register adds p. Names must be unique.
func (r *Registry) Register(p Program) error {
	if p.Name == "" {
		return fmt.Errorf("register program: name is required")
	}
	if p.Methods == nil {
		return fmt.Errorf("register program %s: no methods", p.Name)
	}
	if _, exists := r.programs[p.Name]; exists {
		return fmt.Errorf("register program %s: already registered", p.Name)
	}
	r.programs[p.Name] = p
	return nil
}

// Lookup returns the program registered under name.
func (r *Registry) Lookup(name string) (Program, bool) {
	p, ok := r.programs[name]
	return p, ok
}

// Known reports whether name is registered. It has the shape
// topology.Validate expects.
func (r *Registry) Known(name string) bool {
	_, ok := r.programs[name]
	return ok
}

// Names returns the registered program names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.programs))
	for name := range r.programs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Deploy deploys every spec on e with its program's handler table.
func (r *Registry) Deploy(e *engine.Engine, specs []ir.ActorSpec) error {
	for _, spec := range specs {
		p, ok := r.Lookup(spec.Program)
		if !ok {
			return fmt.Errorf("deploy %s: unknown program %q", spec.ID, spec.Program)
		}
		if err := e.Deploy(spec, p.Methods()); err != nil {
			return err
		}
	}
	return nil
}
