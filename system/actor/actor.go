// Package actor implements flowrt's supervised, mailboxed actor runtime on
// top of system/eventstore: each actor is a single-writer, event-sourced
// state machine processed at-most-once per message and strictly serially
// per actor, scheduled across a fixed worker pool.
package actor

import (
	"context"
	"encoding/json"

	"github.com/r3e-network/flowrt/system/conflict"
	"github.com/r3e-network/flowrt/system/eventstore"
)

// Command is a request delivered to an actor's mailbox.
type Command struct {
	Type    string
	Payload json.RawMessage

	// VectorClock is the caller's last-observed clock for this actor, set
	// only by clients doing optimistic replicated writes (§4.7). A nil
	// clock skips conflict detection entirely — the common single-writer
	// case pays nothing for it.
	VectorClock conflict.Clock

	// CausalDependencies names event ids this command's write depends on,
	// consulted only by the causalOrder conflict strategy.
	CausalDependencies []string
}

// Behavior is the user-supplied logic for one actor kind: given the actor's
// current folded state and an incoming command, it decides what events (if
// any) to append and what to return to the caller. Behaviors must not
// mutate state in place; Handle receives a read-only view and the runtime
// applies Reduce to the returned events to compute the next state.
type Behavior interface {
	// Handle decides the events to emit for cmd against state. It must be
	// deterministic given (state, cmd) aside from timestamps/IDs it assigns
	// to emitted events.
	Handle(ctx context.Context, state json.RawMessage, cmd Command) (events []eventstore.Event, response any, err error)

	// Reduce folds one event onto state, producing the next state. Same
	// reducer used by eventstore.Rebuild during replay/snapshot rebuild.
	Reduce(state json.RawMessage, evt eventstore.Event) (json.RawMessage, error)

	// Initial returns the zero-value state for a brand-new actor.
	Initial() json.RawMessage
}

// Response is what Ask returns: the behavior's response value plus the
// actor's version after the command was applied.
type Response struct {
	Value   any
	Version uint64
}
