package workflowapi

import (
	"context"

	"github.com/r3e-network/flowrt/infrastructure/reqcontext"
	"github.com/r3e-network/flowrt/system/rpc"
)

// RegisterProcedures wires the minimal procedure surface onto router.
// Registration is expected once at startup, before Call is served
// concurrently (rpc.Router's own documented contract).
func (r *Registry) RegisterProcedures(router *rpc.Router) error {
	if err := rpc.RegisterTyped(router, "process.start", r.start); err != nil {
		return err
	}
	if err := rpc.RegisterTyped(router, "process.signal", r.signal); err != nil {
		return err
	}
	if err := rpc.RegisterTyped(router, "process.message", r.message); err != nil {
		return err
	}
	if err := rpc.RegisterTyped(router, "process.completeTask", r.completeTask); err != nil {
		return err
	}
	if err := rpc.RegisterTyped(router, "process.getTasks", r.getTasks); err != nil {
		return err
	}
	return rpc.RegisterTyped(router, "process.getInstance", r.getInstance)
}

func (r *Registry) start(ctx context.Context, rc *reqcontext.RequestContext, in startInput) (instanceDTO, error) {
	tenantID := tenantOf(requestTenant(rc))
	inst, err := r.engine.Start(ctx, in.ProcessID, in.BusinessKey, in.Variables)
	if inst != nil {
		r.put(tenantID, inst)
	}
	if err != nil {
		return instanceDTO{}, err
	}
	return toInstanceDTO(inst), nil
}

func (r *Registry) signal(ctx context.Context, rc *reqcontext.RequestContext, in resumeInput) (instanceDTO, error) {
	tenantID := tenantOf(requestTenant(rc))
	inst, err := r.lookup(tenantID, in.InstanceID)
	if err != nil {
		return instanceDTO{}, err
	}
	if err := r.engine.Signal(ctx, inst, in.Name, in.Variables); err != nil {
		return instanceDTO{}, err
	}
	r.snapshot(key(tenantID, inst.InstanceID), inst)
	return toInstanceDTO(inst), nil
}

func (r *Registry) message(ctx context.Context, rc *reqcontext.RequestContext, in resumeInput) (instanceDTO, error) {
	tenantID := tenantOf(requestTenant(rc))
	inst, err := r.lookup(tenantID, in.InstanceID)
	if err != nil {
		return instanceDTO{}, err
	}
	if err := r.engine.Message(ctx, inst, in.Name, in.Variables); err != nil {
		return instanceDTO{}, err
	}
	r.snapshot(key(tenantID, inst.InstanceID), inst)
	return toInstanceDTO(inst), nil
}

func (r *Registry) completeTask(ctx context.Context, rc *reqcontext.RequestContext, in completeTaskInput) (instanceDTO, error) {
	tenantID := tenantOf(requestTenant(rc))
	inst, err := r.lookup(tenantID, in.InstanceID)
	if err != nil {
		return instanceDTO{}, err
	}
	if err := r.engine.CompleteTask(ctx, inst, in.TaskID, in.Variables); err != nil {
		return instanceDTO{}, err
	}
	r.snapshot(key(tenantID, inst.InstanceID), inst)
	return toInstanceDTO(inst), nil
}

func (r *Registry) getTasks(ctx context.Context, rc *reqcontext.RequestContext, in instanceQuery) (tasksOutput, error) {
	tenantID := tenantOf(requestTenant(rc))
	inst, err := r.lookup(tenantID, in.InstanceID)
	if err != nil {
		return tasksOutput{}, err
	}
	return tasksOutput{Tasks: toInstanceDTO(inst).PendingTasks}, nil
}

func (r *Registry) getInstance(ctx context.Context, rc *reqcontext.RequestContext, in instanceQuery) (instanceDTO, error) {
	tenantID := tenantOf(requestTenant(rc))
	inst, err := r.lookup(tenantID, in.InstanceID)
	if err != nil {
		return instanceDTO{}, err
	}
	return toInstanceDTO(inst), nil
}

// requestTenant reads rc.TenantID defensively; rc is nil for callers that
// bypass transport-level context derivation (direct Go callers, tests).
func requestTenant(rc *reqcontext.RequestContext) string {
	if rc == nil {
		return ""
	}
	return rc.TenantID
}
