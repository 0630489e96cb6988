// Package workflowapi exposes spec.md §4.3's process engine over the RPC
// dispatch layer's minimal procedure surface: process.start, process.signal,
// process.message, process.completeTask, process.getTasks,
// process.getInstance. It owns the tenant-scoped instance registry the
// engine itself is agnostic to (process.Engine operates on an *Instance
// handed to it, not an instance store).
package workflowapi

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/r3e-network/flowrt/infrastructure/errors"
	"github.com/r3e-network/flowrt/infrastructure/logging"
	"github.com/r3e-network/flowrt/infrastructure/state"
	"github.com/r3e-network/flowrt/system/process"
)

// Registry holds running instances keyed by tenant, bridging the RPC
// surface's instanceId strings to process.Engine's *Instance values. The
// in-memory map is the live source of truth — process.Engine mutates the
// *Instance it's handed in place — so an optional PersistentState is kept
// as a write-through snapshot for restart recovery, not a replacement.
type Registry struct {
	engine *process.Engine

	mu        sync.RWMutex
	instances map[string]*process.Instance // "tenantID/instanceID" -> instance

	persist *state.PersistentState
	log     *logging.Logger
}

// NewRegistry builds a Registry driving engine.
func NewRegistry(engine *process.Engine) *Registry {
	return &Registry{engine: engine, instances: make(map[string]*process.Instance)}
}

// SetPersistence installs a write-through snapshot store: every put and
// every successful mutating RPC (signal/message/completeTask) re-saves the
// instance's current state under its tenant/instance key. log receives
// save failures (best-effort — a snapshot write failing must not fail the
// RPC that triggered it, since r.instances already holds the live state).
func (r *Registry) SetPersistence(persist *state.PersistentState, log *logging.Logger) {
	r.persist = persist
	r.log = log
}

// Restore repopulates the in-memory registry from the persistence layer's
// snapshots, for recovery after a restart. A nil persistence layer makes
// this a no-op, matching the default in-memory-only deployment.
func (r *Registry) Restore(ctx context.Context) error {
	if r.persist == nil {
		return nil
	}
	keys, err := r.persist.ListKeys(ctx, "")
	if err != nil {
		return fmt.Errorf("list persisted instances: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		data, err := r.persist.Load(ctx, k)
		if err != nil {
			continue
		}
		var inst process.Instance
		if err := json.Unmarshal(data, &inst); err != nil {
			continue
		}
		r.instances[k] = &inst
	}
	return nil
}

func key(tenantID, instanceID string) string {
	return tenantID + "/" + instanceID
}

func (r *Registry) put(tenantID string, inst *process.Instance) {
	r.mu.Lock()
	r.instances[key(tenantID, inst.InstanceID)] = inst
	r.mu.Unlock()
	r.snapshot(key(tenantID, inst.InstanceID), inst)
}

// snapshot best-effort persists inst's current state; a failure is logged
// but never returned, since r.instances is already the authoritative copy.
func (r *Registry) snapshot(k string, inst *process.Instance) {
	if r.persist == nil {
		return
	}
	data, err := json.Marshal(inst)
	if err != nil {
		return
	}
	if err := r.persist.Save(context.Background(), k, data); err != nil && r.log != nil {
		r.log.Error(context.Background(), "persist process instance snapshot", err, map[string]interface{}{"key": k})
	}
}

// lookup resolves instanceID within tenantID's namespace. A wrong tenant or
// an unknown id both surface as plain not-found, never distinguishing the
// two — per spec.md §7's "never leak whether a resource exists" rule.
func (r *Registry) lookup(tenantID, instanceID string) (*process.Instance, error) {
	trimmed := trimInstancePrefix(instanceID)
	r.mu.RLock()
	inst, ok := r.instances[key(tenantID, trimmed)]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.NotFound("process instance", instanceID)
	}
	return inst, nil
}

// externalID is the wire-facing instance identifier, prefixed per spec.md
// §8 scenario 1's literal example ("instance-<...>").
func externalID(inst *process.Instance) string {
	return "instance-" + inst.InstanceID
}

func trimInstancePrefix(id string) string {
	const prefix = "instance-"
	if len(id) > len(prefix) && id[:len(prefix)] == prefix {
		return id[len(prefix):]
	}
	return id
}

func tenantOf(tenantID string) string {
	if tenantID == "" {
		return "default"
	}
	return tenantID
}

func missingField(field string) error {
	return fmt.Errorf("%s is required", field)
}
