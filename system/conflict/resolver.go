package conflict

import (
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/r3e-network/flowrt/system/eventstore"
)

var errNoEvents = errors.New("conflict: no events to resolve")

// Conflicting reports whether a and b conflict: same actor, same type, and
// mutually concurrent by vector clock.
func Conflicting(a, b eventstore.Event) bool {
	if a.ActorID != b.ActorID || a.Type != b.Type {
		return false
	}
	return ConcurrentWith(Clock(a.VectorClock), Clock(b.VectorClock))
}

// Strategy picks a single winner (or synthesizes a merged event) from a set
// of mutually conflicting events.
type Strategy string

const (
	LastWriteWins Strategy = "lastWriteWins"
	CausalOrder   Strategy = "causalOrder"
	Merge         Strategy = "merge"
)

// Resolve applies strategy to a non-empty set of conflicting events,
// returning the winning (or synthesized) event.
func Resolve(strategy Strategy, events []eventstore.Event) (eventstore.Event, error) {
	if len(events) == 0 {
		return eventstore.Event{}, errNoEvents
	}
	if len(events) == 1 {
		return events[0], nil
	}

	switch strategy {
	case CausalOrder:
		return resolveCausalOrder(events)
	case Merge:
		return resolveMerge(events)
	case LastWriteWins:
		fallthrough
	default:
		return resolveLastWriteWins(events), nil
	}
}

func resolveLastWriteWins(events []eventstore.Event) eventstore.Event {
	winner := events[0]
	for _, evt := range events[1:] {
		if evt.Timestamp.After(winner.Timestamp) {
			winner = evt
			continue
		}
		if evt.Timestamp.Equal(winner.Timestamp) && evt.EventID < winner.EventID {
			winner = evt
		}
	}
	return winner
}

// resolveCausalOrder picks the unique minimum under the partial order
// induced by causalDependencies (an event that is a dependency of another
// precedes it). If more than one minimal element remains — no unique
// topological minimum — it falls back to lastWriteWins among the minimal
// set, per spec.
func resolveCausalOrder(events []eventstore.Event) (eventstore.Event, error) {
	byID := make(map[string]eventstore.Event, len(events))
	for _, evt := range events {
		byID[evt.EventID] = evt
	}

	isDependedOn := make(map[string]bool, len(events))
	for _, evt := range events {
		for _, dep := range evt.CausalDependencies {
			if _, known := byID[dep]; known {
				isDependedOn[dep] = true
			}
		}
	}

	var minimal []eventstore.Event
	for _, evt := range events {
		dependsOnAnother := false
		for _, other := range events {
			if other.EventID == evt.EventID {
				continue
			}
			if contains(evt.CausalDependencies, other.EventID) {
				dependsOnAnother = true
				break
			}
		}
		if !dependsOnAnother {
			minimal = append(minimal, evt)
		}
	}

	if len(minimal) == 1 {
		return minimal[0], nil
	}
	return resolveLastWriteWins(minimal), nil
}

func contains(deps []string, id string) bool {
	for _, d := range deps {
		if d == id {
			return true
		}
	}
	return false
}

// resolveMerge folds payloads field-by-field, last-writer-wins per field by
// timestamp, and synthesizes a new event with a fresh id/timestamp and the
// union of the inputs' causal dependencies plus the inputs' own event ids.
func resolveMerge(events []eventstore.Event) (eventstore.Event, error) {
	sorted := make([]eventstore.Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	merged := map[string]json.RawMessage{}
	for _, evt := range sorted {
		var fields map[string]json.RawMessage
		if len(evt.Payload) > 0 {
			if err := json.Unmarshal(evt.Payload, &fields); err != nil {
				return eventstore.Event{}, err
			}
		}
		for k, v := range fields {
			merged[k] = v
		}
	}

	payload, err := json.Marshal(merged)
	if err != nil {
		return eventstore.Event{}, err
	}

	depSet := map[string]struct{}{}
	for _, evt := range events {
		for _, dep := range evt.CausalDependencies {
			depSet[dep] = struct{}{}
		}
		depSet[evt.EventID] = struct{}{}
	}
	deps := make([]string, 0, len(depSet))
	for id := range depSet {
		deps = append(deps, id)
	}
	sort.Strings(deps)

	last := sorted[len(sorted)-1]
	clock := Clock(nil)
	for _, evt := range events {
		clock = Merge(clock, Clock(evt.VectorClock))
	}

	return eventstore.Event{
		EventID:            eventstore.NewEventID(),
		TenantID:           last.TenantID,
		ActorID:            last.ActorID,
		Type:               last.Type,
		Payload:            payload,
		Timestamp:          time.Now(),
		CausalDependencies: deps,
		VectorClock:        clock,
	}, nil
}
