package eventstore

import (
	"context"
	"errors"
)

// ErrVersionConflict is returned by Append when expectedVersion does not
// match the actor's current highest version (optimistic concurrency).
var ErrVersionConflict = errors.New("eventstore: version conflict")

// ErrNotFound is not returned by MemoryStore or the Postgres store; they
// report a missing snapshot through their bool result and no events as an
// empty slice.
var ErrNotFound = errors.New("eventstore: not found")

// Store is the append/read/snapshot interface the actor runtime and process
// engine consume. Concrete backends (in-memory, Postgres) only need to
// satisfy this; neither caller cares which one is wired in.
type Store interface {
	// Append writes events for actorID if the actor's current version equals
	// expectedVersion, otherwise it returns ErrVersionConflict without
	// writing anything. expectedVersion 0 means "actor must not yet exist".
	Append(ctx context.Context, tenantID, actorID string, expectedVersion uint64, events []Event) error

	// Load returns events for actorID with version > fromVersion, in order.
	Load(ctx context.Context, tenantID, actorID string, fromVersion uint64) ([]Event, error)

	// GetByID looks up a single event by its id within tenantID, without the
	// caller needing to know which actor wrote it. Backends satisfy this via
	// a (tenantId, eventId) -> (actorId, version) secondary index rather than
	// scanning every actor's stream.
	GetByID(ctx context.Context, tenantID, eventID string) (Event, bool, error)

	// CurrentVersion returns the actor's highest known version, or 0 if the
	// actor has never been written.
	CurrentVersion(ctx context.Context, tenantID, actorID string) (uint64, error)

	// SaveSnapshot stores a snapshot, replacing any prior snapshot for the actor.
	SaveSnapshot(ctx context.Context, snap Snapshot) error

	// LoadSnapshot returns the most recent snapshot for actorID, if any.
	LoadSnapshot(ctx context.Context, tenantID, actorID string) (Snapshot, bool, error)

	// ActorIDs lists actor IDs with events for a tenant, used by maintenance
	// sweeps. Order is unspecified.
	ActorIDs(ctx context.Context, tenantID string) ([]string, error)
}

// LoadForReplay loads the snapshot (if any) and the events since it for an
// actor, in one call. Callers fold the snapshot's state with Rebuild over
// the returned events to reconstruct current state.
func LoadForReplay(ctx context.Context, store Store, tenantID, actorID string) (Snapshot, []Event, error) {
	snap, ok, err := store.LoadSnapshot(ctx, tenantID, actorID)
	if err != nil {
		return Snapshot{}, nil, err
	}
	fromVersion := uint64(0)
	if ok {
		fromVersion = snap.Version
	}
	events, err := store.Load(ctx, tenantID, actorID, fromVersion)
	if err != nil {
		return Snapshot{}, nil, err
	}
	return snap, events, nil
}
