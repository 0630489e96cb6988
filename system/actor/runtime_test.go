package actor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/flowrt/infrastructure/logging"
	"github.com/r3e-network/flowrt/system/eventstore"
)

// counterBehavior is a minimal actor: state is a JSON-encoded int counter.
// "inc" appends an Incremented event; "fail" always errors, to exercise the
// restart path.
type counterBehavior struct{}

type counterState struct {
	Count int `json:"count"`
}

func (counterBehavior) Initial() json.RawMessage {
	b, _ := json.Marshal(counterState{})
	return b
}

func (counterBehavior) Handle(_ context.Context, state json.RawMessage, cmd Command) ([]eventstore.Event, any, error) {
	switch cmd.Type {
	case "inc":
		return []eventstore.Event{{Type: "incremented", Payload: json.RawMessage(`{}`)}}, nil, nil
	case "fail":
		return nil, nil, errors.New("boom")
	case "get":
		var s counterState
		_ = json.Unmarshal(state, &s)
		return nil, s.Count, nil
	default:
		return nil, nil, fmt.Errorf("unknown command %q", cmd.Type)
	}
}

func (counterBehavior) Reduce(state json.RawMessage, evt eventstore.Event) (json.RawMessage, error) {
	var s counterState
	if len(state) > 0 {
		if err := json.Unmarshal(state, &s); err != nil {
			return nil, err
		}
	}
	if evt.Type == "incremented" {
		s.Count++
	}
	return json.Marshal(s)
}

func testRuntime(t *testing.T, cfg Config) (*Runtime, eventstore.Store, context.Context, func()) {
	t.Helper()
	store := eventstore.NewMemoryStore()
	log := logging.New("flowrt-test", "error", "text")
	rt := New(store, log, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	rt.Start(ctx)
	return rt, store, ctx, func() {
		cancel()
		rt.Stop()
	}
}

func TestRuntime_TellAndAskSerializePerActor(t *testing.T) {
	rt, _, ctx, cleanup := testRuntime(t, Config{Workers: 4, MailboxCapacity: 64})
	defer cleanup()

	require.NoError(t, rt.Spawn(ctx, "tenant-a", "counter-1", counterBehavior{}))

	var wg sync.WaitGroup
	const n = 50
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = rt.Tell(ctx, "tenant-a", "counter-1", Command{Type: "inc"})
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		resp, err := rt.Ask(ctx, "tenant-a", "counter-1", Command{Type: "get"})
		return err == nil && resp.Value == n
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRuntime_AskReturnsBehaviorResponse(t *testing.T) {
	rt, _, ctx, cleanup := testRuntime(t, Config{Workers: 2, MailboxCapacity: 8})
	defer cleanup()

	require.NoError(t, rt.Spawn(ctx, "tenant-a", "counter-2", counterBehavior{}))
	_, err := rt.Ask(ctx, "tenant-a", "counter-2", Command{Type: "inc"})
	require.NoError(t, err)

	resp, err := rt.Ask(ctx, "tenant-a", "counter-2", Command{Type: "get"})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Value)
}

func TestRuntime_TellRejectsWhenMailboxFull(t *testing.T) {
	rt, _, ctx, cleanup := testRuntime(t, Config{Workers: 1, MailboxCapacity: 1})
	defer cleanup()

	require.NoError(t, rt.Spawn(ctx, "tenant-a", "counter-3", counterBehavior{}))

	// Fill the one mailbox slot by flooding Tell calls faster than the single
	// worker can drain it.
	var rejected bool
	for i := 0; i < 1000; i++ {
		if err := rt.Tell(ctx, "tenant-a", "counter-3", Command{Type: "inc"}); errors.Is(err, ErrMailboxFull) {
			rejected = true
			break
		}
	}
	assert.True(t, rejected, "expected at least one ErrMailboxFull under flood")
}

func TestRuntime_AskUnknownActorErrors(t *testing.T) {
	rt, _, ctx, cleanup := testRuntime(t, Config{Workers: 1, MailboxCapacity: 1})
	defer cleanup()

	_, err := rt.Ask(ctx, "tenant-a", "does-not-exist", Command{Type: "get"})
	assert.Error(t, err)
}

func TestRuntime_CrashRestoresFromStoreWithinBudget(t *testing.T) {
	policy := RestartPolicy{
		MaxRestarts: 3,
		Window:      time.Minute,
		Backoff:     func(int) time.Duration { return time.Millisecond },
	}
	rt, store, ctx, cleanup := testRuntime(t, Config{Workers: 1, MailboxCapacity: 8, RestartPolicy: policy})
	defer cleanup()

	require.NoError(t, rt.Spawn(ctx, "tenant-a", "counter-4", counterBehavior{}))
	_, err := rt.Ask(ctx, "tenant-a", "counter-4", Command{Type: "inc"})
	require.NoError(t, err)

	_, err = rt.Ask(ctx, "tenant-a", "counter-4", Command{Type: "fail"})
	assert.Error(t, err)

	resp, err := rt.Ask(ctx, "tenant-a", "counter-4", Command{Type: "get"})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Value, "state should survive a recoverable crash by replaying from the store")

	version, err := store.CurrentVersion(ctx, "tenant-a", "counter-4")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), version)
}

func TestRuntime_StopsActorAfterExceedingRestartBudget(t *testing.T) {
	policy := RestartPolicy{
		MaxRestarts: 1,
		Window:      time.Minute,
		Backoff:     func(int) time.Duration { return 0 },
	}
	rt, _, ctx, cleanup := testRuntime(t, Config{Workers: 1, MailboxCapacity: 8, RestartPolicy: policy})
	defer cleanup()

	require.NoError(t, rt.Spawn(ctx, "tenant-a", "counter-5", counterBehavior{}))

	for i := 0; i < 2; i++ {
		_, _ = rt.Ask(ctx, "tenant-a", "counter-5", Command{Type: "fail"})
	}

	_, err := rt.Ask(ctx, "tenant-a", "counter-5", Command{Type: "get"})
	require.Error(t, err)
}

func TestRuntime_SpawnIsIdempotent(t *testing.T) {
	rt, _, ctx, cleanup := testRuntime(t, Config{Workers: 1, MailboxCapacity: 8})
	defer cleanup()

	require.NoError(t, rt.Spawn(ctx, "tenant-a", "counter-6", counterBehavior{}))
	_, err := rt.Ask(ctx, "tenant-a", "counter-6", Command{Type: "inc"})
	require.NoError(t, err)

	require.NoError(t, rt.Spawn(ctx, "tenant-a", "counter-6", counterBehavior{}))
	resp, err := rt.Ask(ctx, "tenant-a", "counter-6", Command{Type: "get"})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Value, "re-spawning a live actor must not reset its state")
}

func TestRuntime_Stats(t *testing.T) {
	rt, _, ctx, cleanup := testRuntime(t, Config{Workers: 1, MailboxCapacity: 8})
	defer cleanup()

	require.NoError(t, rt.Spawn(ctx, "tenant-a", "counter-7", counterBehavior{}))
	require.NoError(t, rt.Spawn(ctx, "tenant-b", "counter-7", counterBehavior{}))

	assert.Equal(t, 2, rt.Stats().LiveActors)
}
