// Package saga implements flowrt's saga orchestrator: ordered named steps,
// forward execution, and reverse-order compensation of completed
// compensatable steps when a later step fails.
package saga

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/r3e-network/flowrt/infrastructure/logging"
	"github.com/r3e-network/flowrt/system/eventstore"
)

// sagaCompensatedEventType is the event type appended to the store once per
// invoked (not skipped) compensation, per spec.md §8 scenario 6.
const sagaCompensatedEventType = "saga_compensated"

type sagaCompensatedPayload struct {
	Step string `json:"step"`
}

// State is a saga's lifecycle state (spec.md "State machines").
type State string

const (
	Idle         State = "idle"
	Running      State = "running"
	Compensating State = "compensating"
	Completed    State = "completed"
	Failed       State = "failed"
)

// StepFunc performs a step's forward action.
type StepFunc func(ctx context.Context, vars map[string]any) error

// CompensateFunc reverses a previously completed compensatable step.
// Compensation handlers are pure with respect to the saga context: they
// must not enqueue further forward steps.
type CompensateFunc func(ctx context.Context, vars map[string]any) error

// Step is one named, ordered unit of saga work.
type Step struct {
	Name          string
	Compensatable bool
	Forward       StepFunc
	Compensate    CompensateFunc // nil for non-compensatable steps
}

// ReasonNotCompensatable is logged when a non-compensatable step is skipped
// during the reverse-compensation pass because it is already externally
// observable and cannot be undone.
const ReasonNotCompensatable = "not compensatable — already externally observable"

// CompensationRecord is one invoked (or skipped) compensation during the
// reverse pass.
type CompensationRecord struct {
	StepName string
	Invoked  bool
	Reason   string // set when Invoked is false
	Err      error  // set when the compensation handler itself failed
}

// Instance is one run of a saga definition: ordered steps plus the
// execution trace needed to compensate on failure.
type Instance struct {
	SagaID         string
	TenantID       string
	Steps          []Step
	CompletedSteps []string
	FailedStep     string
	ErrorMessage   string
	State          State
	Compensations  []CompensationRecord
	Variables      map[string]any
}

// New creates an idle saga instance over steps, executed in the given order,
// scoped to the "default" tenant until WithTenant sets another.
func New(sagaID string, steps []Step, variables map[string]any) *Instance {
	if variables == nil {
		variables = map[string]any{}
	}
	return &Instance{
		SagaID:    sagaID,
		TenantID:  "default",
		Steps:     steps,
		State:     Idle,
		Variables: variables,
	}
}

// WithTenant sets the tenant an instance's saga_compensated events are
// appended under. Defaults to "default" if never called.
func (i *Instance) WithTenant(tenantID string) *Instance {
	i.TenantID = tenantID
	return i
}

// Orchestrator drives saga instances forward and, on failure, backward
// through compensation, appending one saga_compensated event per invoked
// compensation to store.
type Orchestrator struct {
	log   *logging.Logger
	store eventstore.Store
}

// NewOrchestrator constructs an Orchestrator that logs step transitions via
// log and, when store is non-nil, records compensation events there.
func NewOrchestrator(log *logging.Logger, store eventstore.Store) *Orchestrator {
	return &Orchestrator{log: log, store: store}
}

// Run executes inst's steps forward in order. On any step failure, it
// compensates all completed compensatable steps in reverse order, skipping
// non-compensatable ones (logged, not invoked), then leaves inst in Failed.
// A failure in a non-compensatable step itself still triggers compensation
// of the prior compensatable steps, but the failing step is never
// compensated (it has no CompensateFunc to invoke).
func (o *Orchestrator) Run(ctx context.Context, inst *Instance) error {
	inst.State = Running

	for _, step := range inst.Steps {
		err := step.Forward(ctx, inst.Variables)
		if o.log != nil {
			o.log.LogSagaStep(ctx, inst.SagaID, step.Name, false, err)
		}
		if err != nil {
			inst.FailedStep = step.Name
			inst.ErrorMessage = err.Error()
			o.compensate(ctx, inst)
			inst.State = Failed
			return fmt.Errorf("saga %s: step %s failed: %w", inst.SagaID, step.Name, err)
		}
		inst.CompletedSteps = append(inst.CompletedSteps, step.Name)
	}

	inst.State = Completed
	return nil
}

// compensate walks inst.CompletedSteps in reverse, invoking each
// compensatable step's CompensateFunc and skipping non-compensatable ones.
func (o *Orchestrator) compensate(ctx context.Context, inst *Instance) {
	if len(inst.CompletedSteps) == 0 {
		return
	}
	inst.State = Compensating

	byName := make(map[string]Step, len(inst.Steps))
	for _, s := range inst.Steps {
		byName[s.Name] = s
	}

	var errs *multierror.Error
	for i := len(inst.CompletedSteps) - 1; i >= 0; i-- {
		name := inst.CompletedSteps[i]
		step := byName[name]

		if !step.Compensatable || step.Compensate == nil {
			inst.Compensations = append(inst.Compensations, CompensationRecord{
				StepName: name,
				Invoked:  false,
				Reason:   ReasonNotCompensatable,
			})
			if o.log != nil {
				o.log.Info(ctx, "saga step skipped during compensation", map[string]any{
					"saga_id": inst.SagaID,
					"step":    name,
					"reason":  ReasonNotCompensatable,
				})
			}
			continue
		}

		err := step.Compensate(ctx, inst.Variables)
		if o.log != nil {
			o.log.LogSagaStep(ctx, inst.SagaID, name, true, err)
		}
		inst.Compensations = append(inst.Compensations, CompensationRecord{
			StepName: name,
			Invoked:  true,
			Err:      err,
		})
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("compensate %s: %w", name, err))
		}
		o.recordCompensated(ctx, inst, name)
	}

	if errs != nil {
		inst.ErrorMessage = fmt.Sprintf("%s; compensation errors: %s", inst.ErrorMessage, errs.Error())
	}
}

// recordCompensated appends one saga_compensated event for an invoked
// compensation. Append failures are logged, never fatal: the compensation
// itself already ran, and the saga's in-memory Compensations trail remains
// the source of truth for the caller.
func (o *Orchestrator) recordCompensated(ctx context.Context, inst *Instance, stepName string) {
	if o.store == nil {
		return
	}
	payload, err := json.Marshal(sagaCompensatedPayload{Step: stepName})
	if err != nil {
		return
	}
	version, err := o.store.CurrentVersion(ctx, inst.TenantID, inst.SagaID)
	if err != nil {
		if o.log != nil {
			o.log.Warn(ctx, "saga_compensated: could not read current version", map[string]any{"saga_id": inst.SagaID, "error": err.Error()})
		}
		return
	}
	evt := eventstore.Event{
		TenantID: inst.TenantID,
		ActorID:  inst.SagaID,
		Version:  version + 1,
		Type:     sagaCompensatedEventType,
		Payload:  payload,
	}
	if err := o.store.Append(ctx, inst.TenantID, inst.SagaID, version, []eventstore.Event{evt}); err != nil {
		if o.log != nil {
			o.log.Warn(ctx, "saga_compensated: append failed", map[string]any{"saga_id": inst.SagaID, "step": stepName, "error": err.Error()})
		}
	}
}
