package actor

import (
	"context"
	"errors"
)

// ErrMailboxFull is returned by Tell/Ask when the actor's bounded mailbox
// has no room; the message is dropped, never queued past capacity.
var ErrMailboxFull = errors.New("actor: mailbox full")

// ErrActorStopped is returned when a message is sent to an actor that has
// been stopped or has exceeded its restart budget.
var ErrActorStopped = errors.New("actor: stopped")

type envelope struct {
	ctx   context.Context
	cmd   Command
	reply chan askResult // nil for Tell (fire-and-forget)
}

type askResult struct {
	resp Response
	err  error
}

// mailbox is a bounded FIFO queue of envelopes for one actor. Sends never
// block: a full mailbox rejects the new message immediately, giving
// at-most-once, never-queued-indefinitely delivery semantics.
type mailbox struct {
	ch chan envelope
}

func newMailbox(capacity int) *mailbox {
	if capacity <= 0 {
		capacity = 1
	}
	return &mailbox{ch: make(chan envelope, capacity)}
}

func (m *mailbox) offer(e envelope) bool {
	select {
	case m.ch <- e:
		return true
	default:
		return false
	}
}
