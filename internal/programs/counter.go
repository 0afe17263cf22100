package programs

import (
	"context"

	"github.com/roach88/ckpt/internal/engine"
	"github.com/roach88/ckpt/internal/ir"
)

// State fields of the counter program.
const (
	FieldCounter     = "counter"
	FieldDropCounter = "drop_counter"
)

// PeerOther is the peer name counter methods call out to.
const PeerOther = "other"

// Counter returns the counter program.
func Counter() Program {
	return Program{
		Name:        "counter",
		Description: "integer counter with failure points at local and outbound suspensions",
		Methods:     counterMethods,
	}
}

func counterMethods() engine.Methods {
	return engine.Methods{
		"get_counter":      engine.QueryMethod(getCounter),
		"get_drop_counter": engine.QueryMethod(getDropCounter),
		"catch_panic":      engine.QueryMethod(catchPanic),

		"inc":                          engine.UpdateMethod(inc),
		"increase_counter":             engine.UpdateMethod(inc),
		"increase_counter_panic":       engine.UpdateMethod(increaseCounterPanic),
		"protected_by_inspect_message": engine.UpdateMethod(inc),
		"increase_drop_counter":        engine.UpdateMethod(increaseDropCounter),

		"increase_counter_then_call_async_fn_then_panic":         engine.UpdateMethod(increaseThenAwaitThenPanic),
		"increase_counter_then_call_another_canister_then_panic": engine.UpdateMethod(increaseThenCallOtherThenPanic),
		"increase_counter_then_call_same_canister_then_panic":    engine.UpdateMethod(increaseThenCallSelfThenPanic),
		"get_counter_from_another_canister":                      engine.UpdateMethod(getCounterFromOther),
	}
}

func getCounter(c *engine.Call, _ ir.IRValue) (ir.IRValue, error) {
	return ir.IRInt(c.Int(FieldCounter)), nil
}

func getDropCounter(c *engine.Call, _ ir.IRValue) (ir.IRValue, error) {
	return ir.IRInt(c.Int(FieldDropCounter)), nil
}

func inc(c *engine.Call, _ ir.IRValue) (ir.IRValue, error) {
	c.Add(FieldCounter, 1)
	return nil, nil
}

func increaseCounterPanic(c *engine.Call, _ ir.IRValue) (ir.IRValue, error) {
	c.Add(FieldCounter, 1)
	c.Trap("panic after increasing counter")
	return nil, nil
}

func increaseThenAwaitThenPanic(c *engine.Call, _ ir.IRValue) (ir.IRValue, error) {
	c.Add(FieldCounter, 1)
	if _, err := c.Await(noop); err != nil {
		return nil, err
	}
	c.Trap("panic after local await")
	return nil, nil
}

func increaseThenCallOtherThenPanic(c *engine.Call, _ ir.IRValue) (ir.IRValue, error) {
	c.Add(FieldCounter, 1)
	if _, err := c.Call(other(c), "get_counter", nil); err != nil {
		return nil, err
	}
	c.Trap("panic after calling another actor")
	return nil, nil
}

func increaseThenCallSelfThenPanic(c *engine.Call, _ ir.IRValue) (ir.IRValue, error) {
	c.Add(FieldCounter, 1)
	if _, err := c.Call(c.Self(), "get_counter", nil); err != nil {
		return nil, err
	}
	c.Trap("panic after calling self")
	return nil, nil
}

func getCounterFromOther(c *engine.Call, _ ir.IRValue) (ir.IRValue, error) {
	return c.Call(other(c), "get_counter", nil)
}

// catchPanic tries to recover a trap locally. Traps are terminal for the
// frame, so the call still fails.
func catchPanic(c *engine.Call, _ ir.IRValue) (ir.IRValue, error) {
	func() {
		defer func() {
			if r := recover(); r != nil {
				c.Log().Debug("recovered panic inside handler", "value", r)
			}
		}()
		c.Trap("panic to be caught")
	}()
	return ir.IRString("caught"), nil
}

// increaseDropCounter bumps drop_counter from an unwind hook, then traps if
// args is true. The hook's write shares the frame's fate.
func increaseDropCounter(c *engine.Call, args ir.IRValue) (ir.IRValue, error) {
	c.Defer(func(c *engine.Call) {
		c.Add(FieldDropCounter, 1)
	})
	if fail, _ := args.(ir.IRBool); fail {
		c.Trap("panic with a drop guard alive")
	}
	return nil, nil
}

func other(c *engine.Call) ir.ActorID {
	peer, ok := c.Peer(PeerOther)
	if !ok {
		c.Trapf("actor %s has no %q peer", c.Self(), PeerOther)
	}
	return peer
}

func noop(context.Context) (ir.IRValue, error) {
	return nil, nil
}
