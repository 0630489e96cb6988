// Package eventstore implements flowrt's append-only, per-actor event log
// with CAS appends and periodic snapshots.
package eventstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is a single fact appended to an actor's log. Versions are
// monotonic and gap-free starting at 1. CausalDependencies and VectorClock
// are preserved verbatim by the store (never enforced or interpreted here)
// so system/conflict can reason about concurrent writes across actors.
type Event struct {
	EventID            string            `json:"eventId"`
	TenantID           string            `json:"tenantId"`
	ActorID            string            `json:"actorId"`
	Version            uint64            `json:"version"`
	Type               string            `json:"type"`
	Payload            json.RawMessage   `json:"payload"`
	Timestamp          time.Time         `json:"timestamp"`
	CausalDependencies []string          `json:"causalDependencies,omitempty"`
	VectorClock        map[string]uint64 `json:"vectorClock,omitempty"`
}

// NewEventID generates a fresh unique event identifier.
func NewEventID() string {
	return uuid.New().String()
}

// Snapshot captures a reduced actor state at a given version so replay
// doesn't have to start from version 1. LastEventID anchors the snapshot to
// the precise event it was taken after, and Checksum lets a reader detect
// corruption or divergence without replaying.
type Snapshot struct {
	TenantID    string          `json:"tenantId"`
	ActorID     string          `json:"actorId"`
	Version     uint64          `json:"version"`
	State       json.RawMessage `json:"state"`
	LastEventID string          `json:"lastEventId"`
	Timestamp   time.Time       `json:"timestamp"`
	Checksum    string          `json:"checksum"`
}

// ChecksumState hashes state's canonical encoding: unmarshaling into
// interface{} and remarshaling runs it through encoding/json's
// map-key-sorting, so two byte-different-but-semantically-equal JSON
// documents (reordered keys, incidental whitespace) produce the same
// checksum.
func ChecksumState(state json.RawMessage) (string, error) {
	var v interface{}
	if len(state) > 0 {
		if err := json.Unmarshal(state, &v); err != nil {
			return "", err
		}
	}
	canonical, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Reducer folds one event onto the current state, returning the next state.
// Reducers must be deterministic and side-effect free: replaying the same
// events from the same initial state always yields the same result.
type Reducer func(state json.RawMessage, evt Event) (json.RawMessage, error)

// Rebuild folds a reducer over events in order, starting from initial.
func Rebuild(reducer Reducer, initial json.RawMessage, events []Event) (json.RawMessage, error) {
	state := initial
	for _, evt := range events {
		next, err := reducer(state, evt)
		if err != nil {
			return nil, err
		}
		state = next
	}
	return state, nil
}
