package conflict

import (
	"sort"

	"github.com/r3e-network/flowrt/system/eventstore"
)

// Level names a consistency check to run over an event sequence.
type Level string

const (
	Causal     Level = "causal"
	Sequential Level = "sequential"
	Eventual   Level = "eventual"
	Strong     Level = "strong"
)

// Check evaluates whether events satisfy level.
func Check(level Level, events []eventstore.Event) bool {
	switch level {
	case Causal:
		return checkCausal(events)
	case Sequential:
		return checkSequential(events)
	case Strong:
		return checkCausal(events) && checkSequential(events)
	case Eventual:
		fallthrough
	default:
		return true
	}
}

// checkCausal verifies every event's declared dependencies were recorded at
// or before it in wall-clock time.
func checkCausal(events []eventstore.Event) bool {
	seenAt := make(map[string]int, len(events))
	for i, evt := range events {
		seenAt[evt.EventID] = i
	}
	for i, evt := range events {
		for _, dep := range evt.CausalDependencies {
			depIdx, known := seenAt[dep]
			if !known {
				continue // dependency outside this window; nothing to contradict
			}
			if events[depIdx].Timestamp.After(evt.Timestamp) {
				return false
			}
			_ = i
		}
	}
	return true
}

// checkSequential verifies each actor's events form a gap-free ascending
// version sequence starting at 1.
func checkSequential(events []eventstore.Event) bool {
	byActor := make(map[string][]uint64)
	for _, evt := range events {
		key := evt.TenantID + "/" + evt.ActorID
		byActor[key] = append(byActor[key], evt.Version)
	}
	for _, versions := range byActor {
		sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
		for i, v := range versions {
			if v != uint64(i+1) {
				return false
			}
		}
	}
	return true
}
