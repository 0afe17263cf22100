package programs

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ckpt/internal/engine"
	"github.com/roach88/ckpt/internal/ir"
)

// canisters deploys canister_a (counter 0) and canister_b (counter
// 999_999_999) as each other's "other" peer and runs the engine.
func canisters(t *testing.T, opts ...engine.EngineOption) *engine.Engine {
	t.Helper()

	specs := []ir.ActorSpec{
		{
			ID:      "canister_a",
			Program: "counter",
			State:   ir.IRObject{FieldCounter: ir.IRInt(0), FieldDropCounter: ir.IRInt(0)},
			Deny:    []string{"protected_by_inspect_message"},
			Peers:   map[string]ir.ActorID{PeerOther: "canister_b"},
		},
		{
			ID:      "canister_b",
			Program: "counter",
			State:   ir.IRObject{FieldCounter: ir.IRInt(999_999_999)},
			Peers:   map[string]ir.ActorID{PeerOther: "canister_a"},
		},
	}

	base := []engine.EngineOption{
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithInspector(engine.NewDenyList(specs)),
	}
	e := engine.New(append(base, opts...)...)
	require.NoError(t, Default().Deploy(e, specs))

	ctx, cancel := context.WithCancel(context.Background())
	go e.Run(ctx)
	t.Cleanup(func() {
		cancel()
		e.Stop()
	})
	return e
}

func call(t *testing.T, e *engine.Engine, actor ir.ActorID, method string, args ir.IRValue) (ir.IRValue, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.Dispatch(ctx, actor, method, args)
}

func counter(t *testing.T, e *engine.Engine, actor ir.ActorID, method string) int64 {
	t.Helper()
	v, err := call(t, e, actor, method, nil)
	require.NoError(t, err)
	n, err := ir.AsInt(v)
	require.NoError(t, err)
	return n
}

func TestCounter_GetCounter(t *testing.T) {
	e := canisters(t)
	assert.Equal(t, int64(0), counter(t, e, "canister_a", "get_counter"))
}

func TestCounter_IncreaseCounter(t *testing.T) {
	e := canisters(t)

	_, err := call(t, e, "canister_a", "increase_counter", nil)
	require.NoError(t, err)
	_, err = call(t, e, "canister_a", "inc", nil)
	require.NoError(t, err)

	assert.Equal(t, int64(2), counter(t, e, "canister_a", "get_counter"))
}

func TestCounter_FailurePoints(t *testing.T) {
	tests := []struct {
		method string
		want   int64
	}{
		{"increase_counter_panic", 0},
		{"increase_counter_then_call_async_fn_then_panic", 0},
		{"increase_counter_then_call_another_canister_then_panic", 1},
		{"increase_counter_then_call_same_canister_then_panic", 1},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			e := canisters(t)

			_, err := call(t, e, "canister_a", tt.method, nil)
			require.Error(t, err)
			assert.Equal(t, engine.CodeTrap, engine.FailureCode(err))

			assert.Equal(t, tt.want, counter(t, e, "canister_a", "get_counter"))
			assert.Equal(t, int64(999_999_999), counter(t, e, "canister_b", "get_counter"))
		})
	}
}

func TestCounter_GetCounterFromAnotherCanister(t *testing.T) {
	e := canisters(t)

	v, err := call(t, e, "canister_a", "get_counter_from_another_canister", nil)
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(999_999_999), v)
}

func TestCounter_CatchPanicStillFails(t *testing.T) {
	e := canisters(t)

	_, err := call(t, e, "canister_a", "catch_panic", nil)
	require.Error(t, err)
	assert.Equal(t, engine.CodeTrap, engine.FailureCode(err))
}

func TestCounter_ProtectedByInspectMessage(t *testing.T) {
	e := canisters(t)

	_, err := call(t, e, "canister_a", "protected_by_inspect_message", nil)
	require.Error(t, err)
	assert.True(t, engine.IsRejection(err))
	assert.Contains(t, err.Error(), "call rejected by inspect check")

	// Only canister_a denies it.
	_, err = call(t, e, "canister_b", "protected_by_inspect_message", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counter(t, e, "canister_a", "get_counter"))
}

func TestCounter_DropCounter(t *testing.T) {
	e := canisters(t)
	assert.Equal(t, int64(0), counter(t, e, "canister_a", "get_drop_counter"))

	_, err := call(t, e, "canister_a", "increase_drop_counter", ir.IRBool(false))
	require.NoError(t, err)
	assert.Equal(t, int64(1), counter(t, e, "canister_a", "get_drop_counter"))

	_, err = call(t, e, "canister_a", "increase_drop_counter", ir.IRBool(true))
	require.Error(t, err)
	assert.Equal(t, int64(1), counter(t, e, "canister_a", "get_drop_counter"))
}

func TestCounter_MissingPeerTraps(t *testing.T) {
	e := engine.New(engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, Default().Deploy(e, []ir.ActorSpec{{ID: "lonely", Program: "counter"}}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	_, err := call(t, e, "lonely", "get_counter_from_another_canister", nil)
	require.Error(t, err)
	assert.Equal(t, engine.CodeTrap, engine.FailureCode(err))
	assert.Contains(t, err.Error(), `no "other" peer`)
}

func TestRecorder_NoInterleaving(t *testing.T) {
	e := engine.New(engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, Default().Deploy(e, []ir.ActorSpec{{ID: "rec", Program: "recorder"}}))

	var replies []<-chan engine.Outcome
	for _, arg := range []string{"x", "y"} {
		ch, err := e.Submit(context.Background(), "rec", "append_twice", ir.IRString(arg))
		require.NoError(t, err)
		replies = append(replies, ch)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	for _, ch := range replies {
		out := <-ch
		require.NoError(t, out.Err)
	}

	v, err := call(t, e, "rec", "entries", nil)
	require.NoError(t, err)
	assert.Equal(t, ir.IRArray{ir.IRString("x"), ir.IRString("x"), ir.IRString("y"), ir.IRString("y")}, v)
}

func TestRegistry(t *testing.T) {
	r := Default()
	assert.Equal(t, []string{"counter", "recorder"}, r.Names())
	assert.True(t, r.Known("counter"))
	assert.False(t, r.Known("ledger"))

	_, err := NewRegistry(Counter(), Counter())
	assert.ErrorContains(t, err, "already registered")
	_, err = NewRegistry(Program{Name: "x"})
	assert.ErrorContains(t, err, "no methods")
	_, err = NewRegistry(Program{Methods: counterMethods})
	assert.ErrorContains(t, err, "name is required")

	e := engine.New()
	err = r.Deploy(e, []ir.ActorSpec{{ID: "a", Program: "ledger"}})
	assert.ErrorContains(t, err, `unknown program "ledger"`)
}
