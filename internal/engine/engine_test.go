package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ckpt/internal/ir"
)

// seqFlowGen returns flow-1, flow-2, ... for deterministic tests.
type seqFlowGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqFlowGen) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("flow-%d", g.n)
}

// memJournal keeps journal entries in memory.
type memJournal struct {
	mu      sync.Mutex
	entries []ir.JournalEntry
}

func (j *memJournal) Record(_ context.Context, e ir.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return nil
}

func (j *memJournal) flow(token string) []ir.JournalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []ir.JournalEntry
	for _, e := range j.entries {
		if e.FlowToken == token {
			out = append(out, e)
		}
	}
	return out
}

func (j *memJournal) count(typ ir.EntryType) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	n := 0
	for _, e := range j.entries {
		if e.Type == typ {
			n++
		}
	}
	return n
}

// trace renders entries as "type actor.method" strings, with the commit
// reason appended.
func trace(entries []ir.JournalEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		s := fmt.Sprintf("%s %s.%s", e.Type, e.Actor, e.Method)
		if e.Reason != "" {
			s += " " + e.Reason
		}
		out[i] = s
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, opts ...EngineOption) (*Engine, *memJournal) {
	t.Helper()
	j := &memJournal{}
	base := []EngineOption{
		WithJournal(j),
		WithLogger(discardLogger()),
		WithFlowGenerator(&seqFlowGen{}),
	}
	return New(append(base, opts...)...), j
}

// start runs e until the test ends.
func start(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-errCh:
		case <-time.After(5 * time.Second):
			t.Error("engine did not stop")
		}
	})
}

func deploy(t *testing.T, e *Engine, id ir.ActorID, state ir.IRObject, methods Methods) {
	t.Helper()
	require.NoError(t, e.Deploy(ir.ActorSpec{ID: id, Program: "test", State: state}, methods))
}

func dispatch(t *testing.T, e *Engine, actor ir.ActorID, method string, args ir.IRValue) Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := e.DispatchOutcome(ctx, actor, method, args)
	require.NoError(t, err)
	return out
}

func counterOf(t *testing.T, e *Engine, actor ir.ActorID) int64 {
	t.Helper()
	state, err := e.State(actor)
	require.NoError(t, err)
	n, err := ir.AsInt(state["counter"])
	require.NoError(t, err)
	return n
}

func counterState(n int64) ir.IRObject {
	return ir.IRObject{"counter": ir.IRInt(n)}
}

func getCounter(c *Call, _ ir.IRValue) (ir.IRValue, error) {
	return ir.IRInt(c.Int("counter")), nil
}

func incCounter(c *Call, _ ir.IRValue) (ir.IRValue, error) {
	return ir.IRInt(c.Add("counter", 1)), nil
}

func TestEngine_Defaults(t *testing.T) {
	e := New()
	assert.Equal(t, DefaultMaxSteps, e.maxSteps)
	assert.Equal(t, ReentrancyAllow, e.reentrancy)
	assert.NotNil(t, e.Clock())
	assert.Empty(t, e.Actors())
}

func TestEngine_OptionsIgnoreInvalidValues(t *testing.T) {
	e := New(WithMaxSteps(0), WithLogger(nil), WithJournal(nil), WithMetrics(nil), WithFlowGenerator(nil), WithClock(nil))
	assert.Equal(t, DefaultMaxSteps, e.maxSteps)
	assert.NotNil(t, e.logger)
	assert.NotNil(t, e.flowGen)
	assert.NotNil(t, e.clock)
}

func TestEngine_Deploy(t *testing.T) {
	e, _ := newTestEngine(t)
	deploy(t, e, "b", nil, Methods{"get": QueryMethod(getCounter)})
	deploy(t, e, "a", counterState(5), Methods{"get": {Handler: getCounter}})

	assert.Equal(t, []ir.ActorID{"a", "b"}, e.Actors())
	assert.Equal(t, Update, e.lookup("a").methods["get"].Kind, "zero kind defaults to update")

	err := e.Deploy(ir.ActorSpec{ID: "a"}, nil)
	assert.ErrorIs(t, err, ErrActorExists)

	assert.Error(t, e.Deploy(ir.ActorSpec{}, nil))
	assert.Error(t, e.Deploy(ir.ActorSpec{ID: "c"}, Methods{"m": {}}))

	state, err := e.State("a")
	require.NoError(t, err)
	assert.Equal(t, counterState(5), state)

	_, err = e.State("missing")
	assert.ErrorIs(t, err, ErrUnknownActor)
	_, err = e.Version("missing")
	assert.ErrorIs(t, err, ErrUnknownActor)
}

func TestEngine_RunStopsOnContext(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("engine did not stop on context cancellation")
	}

	_, err := e.Submit(context.Background(), "a", "inc", nil)
	assert.ErrorIs(t, err, ErrEngineStopped)
}

func TestEngine_RunTwice(t *testing.T) {
	e, _ := newTestEngine(t)
	start(t, e)

	require.Eventually(t, e.running.Load, time.Second, time.Millisecond)
	assert.ErrorIs(t, e.Run(context.Background()), ErrAlreadyRunning)
}

func TestEngine_StopReleasesWaitingCallers(t *testing.T) {
	e, _ := newTestEngine(t)
	deploy(t, e, "a", counterState(0), Methods{"inc": UpdateMethod(incCounter)})

	// Not running: the call stays queued until Stop.
	errCh := make(chan error, 1)
	go func() {
		_, err := e.Dispatch(context.Background(), "a", "inc", nil)
		errCh <- err
	}()
	require.Eventually(t, func() bool { return e.queue.Len() == 1 }, time.Second, time.Millisecond)

	e.Stop()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrEngineStopped)
	case <-time.After(time.Second):
		t.Fatal("caller not released")
	}
	assert.Equal(t, int64(0), counterOf(t, e, "a"))
}

func TestEngine_StopAnswersSubmittedCalls(t *testing.T) {
	e, _ := newTestEngine(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	deploy(t, e, "a", counterState(0), Methods{
		"block": UpdateMethod(func(c *Call, _ ir.IRValue) (ir.IRValue, error) {
			c.Add("counter", 1)
			return c.Await(func(context.Context) (ir.IRValue, error) {
				close(entered)
				<-release
				return nil, nil
			})
		}),
		"inc": UpdateMethod(incCounter),
	})
	start(t, e)

	inFlight, err := e.Submit(context.Background(), "a", "block", nil)
	require.NoError(t, err)
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("frame never suspended")
	}
	queued, err := e.Submit(context.Background(), "a", "inc", nil)
	require.NoError(t, err)

	e.Stop()

	for name, ch := range map[string]<-chan Outcome{"in flight": inFlight, "queued": queued} {
		select {
		case out := <-ch:
			assert.ErrorIs(t, out.Err, ErrEngineStopped, name)
			assert.NotEmpty(t, out.FlowToken, name)
		case <-time.After(time.Second):
			t.Fatalf("%s call not answered", name)
		}
		select {
		case out := <-ch:
			t.Errorf("%s call answered twice: %+v", name, out)
		default:
		}
	}
	assert.Equal(t, int64(0), counterOf(t, e, "a"))
}

func TestEngine_DispatchHonorsContext(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Dispatch(ctx, "a", "inc", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_Teardown(t *testing.T) {
	e, _ := newTestEngine(t)
	deploy(t, e, "a", counterState(0), Methods{"inc": UpdateMethod(incCounter)})
	start(t, e)

	ctx := context.Background()
	assert.ErrorIs(t, e.Teardown(ctx, "missing"), ErrUnknownActor)
	require.NoError(t, e.Teardown(ctx, "a"))
	assert.Empty(t, e.Actors())

	out := dispatch(t, e, "a", "inc", nil)
	assert.True(t, IsRejection(out.Err))
	assert.ErrorIs(t, out.Err, ErrUnknownActor)
}

func TestEngine_TeardownBusyActor(t *testing.T) {
	e, _ := newTestEngine(t)
	deploy(t, e, "a", counterState(0), Methods{
		"call_b": UpdateMethod(func(c *Call, _ ir.IRValue) (ir.IRValue, error) {
			return c.Call("b", "get", nil)
		}),
	})
	deploy(t, e, "b", counterState(7), Methods{"get": QueryMethod(getCounter)})

	// Queue [deliver a.call_b, teardown a] before Run starts. By the time
	// the teardown is processed, a's frame is parked on b.
	reply, err := e.Submit(context.Background(), "a", "call_b", nil)
	require.NoError(t, err)

	teardownErr := make(chan error, 1)
	go func() { teardownErr <- e.Teardown(context.Background(), "a") }()
	require.Eventually(t, func() bool { return e.queue.Len() == 2 }, time.Second, time.Millisecond)

	start(t, e)

	select {
	case err := <-teardownErr:
		assert.ErrorIs(t, err, ErrActorBusy)
	case <-time.After(5 * time.Second):
		t.Fatal("teardown not processed")
	}

	out := <-reply
	require.NoError(t, out.Err)
	assert.Equal(t, ir.IRInt(7), out.Result)
	assert.Equal(t, []ir.ActorID{"a", "b"}, e.Actors())
}

func TestEngine_DeterministicFrameIDs(t *testing.T) {
	run := func() []ir.JournalEntry {
		e, j := newTestEngine(t)
		deploy(t, e, "a", counterState(0), Methods{
			"inc":  UpdateMethod(incCounter),
			"call": UpdateMethod(func(c *Call, _ ir.IRValue) (ir.IRValue, error) { return c.Call("a", "inc", nil) }),
		})
		start(t, e)
		dispatch(t, e, "a", "inc", nil)
		dispatch(t, e, "a", "call", ir.IRObject{"n": ir.IRInt(1)})
		return j.flow("flow-1")
	}

	first, second := run(), run()
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Seq, second[i].Seq)
		assert.Equal(t, first[i].FrameID, second[i].FrameID)
	}
	assert.Equal(t, ir.MustFrameID("flow-1", "a", "inc", nil, 1), first[0].FrameID)
}
