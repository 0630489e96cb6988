package actor

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/r3e-network/flowrt/system/conflict"
	"github.com/r3e-network/flowrt/system/eventstore"
)

// cell is one actor's live state: its behavior, mailbox, and the in-memory
// view of its folded state. mu is held while a message is processed and
// guards state, version, clock, lastByType and restarts.
type cell struct {
	tenantID string
	actorID  string
	behavior Behavior
	mbox     *mailbox

	mu      sync.Mutex // guards state/version/clock/lastByType/restarts
	state   json.RawMessage
	version uint64

	// clock is this actor's own causal view, advanced by tick whenever it
	// appends an event. lastByType holds the most recent applied event for
	// each command type, the comparison point conflict detection needs
	// when a later command arrives carrying a stale client clock.
	clock      conflict.Clock
	lastByType map[string]eventstore.Event

	active   int32 // not read or written by the scheduler
	stopped  bool
	restarts []time.Time // crash timestamps within the supervisor's window
}

func newCell(tenantID, actorID string, behavior Behavior, mailboxCapacity int) *cell {
	return &cell{
		tenantID:   tenantID,
		actorID:    actorID,
		behavior:   behavior,
		mbox:       newMailbox(mailboxCapacity),
		state:      behavior.Initial(),
		lastByType: make(map[string]eventstore.Event),
	}
}
