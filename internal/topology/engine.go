package topology

import "github.com/roach88/ckpt/internal/engine"

// EngineOptions returns the engine settings the topology declares: the step
// quota, the re-entrancy policy, and an admission filter built from the
// actors' deny lists. Unset settings keep the engine defaults.
func (t *Topology) EngineOptions() []engine.EngineOption {
	opts := []engine.EngineOption{
		engine.WithInspector(engine.NewDenyList(t.Actors)),
	}
	if t.MaxSteps > 0 {
		opts = append(opts, engine.WithMaxSteps(t.MaxSteps))
	}
	if policy, ok := t.ReentrancyPolicy(); ok {
		opts = append(opts, engine.WithReentrancy(policy))
	}
	return opts
}

// ReentrancyPolicy maps the declared policy name. ok is false when the
// topology leaves it unset.
func (t *Topology) ReentrancyPolicy() (engine.ReentrancyPolicy, bool) {
	switch t.Reentrancy {
	case "allow":
		return engine.ReentrancyAllow, true
	case "reject":
		return engine.ReentrancyReject, true
	default:
		return engine.ReentrancyAllow, false
	}
}
