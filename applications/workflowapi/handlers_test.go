package workflowapi

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/flowrt/infrastructure/reqcontext"
	"github.com/r3e-network/flowrt/infrastructure/resilience"
	"github.com/r3e-network/flowrt/system/process"
	"github.com/r3e-network/flowrt/system/rpc"
)

func newOrderProcessRegistry(t *testing.T) *Registry {
	t.Helper()
	def, err := process.NewBuilder("OrderProcess").
		StartEvent("start").
		UserTask("ValidateOrder", "ops-team", 1).
		EndEvent("end").
		Build()
	require.NoError(t, err)

	engine := process.NewEngine(resilience.Config{})
	engine.Register(def)
	return NewRegistry(engine)
}

func callRPC(t *testing.T, router *rpc.Router, rc *reqcontext.RequestContext, procedure string, input any) rpc.Response {
	t.Helper()
	raw, err := json.Marshal(input)
	require.NoError(t, err)
	return router.Call(context.Background(), rc, rpc.Request{Procedure: procedure, Input: raw})
}

func tenantContext(tenantID string) *reqcontext.RequestContext {
	return &reqcontext.RequestContext{TenantID: tenantID, CorrelationID: "corr-1"}
}

func TestWorkflowAPI_StartCreatesInstanceWithPendingTask(t *testing.T) {
	registry := newOrderProcessRegistry(t)
	router := rpc.NewRouter()
	require.NoError(t, registry.RegisterProcedures(router))

	resp := callRPC(t, router, tenantContext("tenant-a"), "process.start", startInput{
		ProcessID:   "OrderProcess",
		BusinessKey: "BK-1",
		Variables:   map[string]any{"amount": 500},
	})
	require.True(t, resp.OK)

	var out instanceDTO
	require.NoError(t, json.Unmarshal(resp.Result, &out))
	assert.Contains(t, out.ID, "instance-")
	assert.Equal(t, "OrderProcess", out.ProcessID)
	assert.Equal(t, "BK-1", out.BusinessKey)
	assert.Equal(t, "running", out.Status)
	require.Len(t, out.PendingTasks, 1)
	assert.Equal(t, "ValidateOrder", out.PendingTasks[0].Name)
}

func TestWorkflowAPI_GetInstanceReturnsStartedInstance(t *testing.T) {
	registry := newOrderProcessRegistry(t)
	router := rpc.NewRouter()
	require.NoError(t, registry.RegisterProcedures(router))

	startResp := callRPC(t, router, tenantContext("tenant-a"), "process.start", startInput{ProcessID: "OrderProcess"})
	var started instanceDTO
	require.NoError(t, json.Unmarshal(startResp.Result, &started))

	getResp := callRPC(t, router, tenantContext("tenant-a"), "process.getInstance", instanceQuery{InstanceID: started.ID})
	require.True(t, getResp.OK)
	var fetched instanceDTO
	require.NoError(t, json.Unmarshal(getResp.Result, &fetched))
	assert.Equal(t, started.ID, fetched.ID)
}

func TestWorkflowAPI_GetInstanceFromOtherTenantIsNotFound(t *testing.T) {
	registry := newOrderProcessRegistry(t)
	router := rpc.NewRouter()
	require.NoError(t, registry.RegisterProcedures(router))

	startResp := callRPC(t, router, tenantContext("tenant-a"), "process.start", startInput{ProcessID: "OrderProcess"})
	var started instanceDTO
	require.NoError(t, json.Unmarshal(startResp.Result, &started))

	resp := callRPC(t, router, tenantContext("tenant-b"), "process.getInstance", instanceQuery{InstanceID: started.ID})
	require.False(t, resp.OK)
	assert.Equal(t, "PROCEDURE_NOT_FOUND", resp.Error.Code)
}

func TestWorkflowAPI_CompleteTaskAdvancesToEnd(t *testing.T) {
	registry := newOrderProcessRegistry(t)
	router := rpc.NewRouter()
	require.NoError(t, registry.RegisterProcedures(router))

	startResp := callRPC(t, router, tenantContext("tenant-a"), "process.start", startInput{ProcessID: "OrderProcess"})
	var started instanceDTO
	require.NoError(t, json.Unmarshal(startResp.Result, &started))
	require.Len(t, started.PendingTasks, 1)

	completeResp := callRPC(t, router, tenantContext("tenant-a"), "process.completeTask", completeTaskInput{
		InstanceID: started.ID,
		TaskID:     started.PendingTasks[0].TaskID,
	})
	require.True(t, completeResp.OK)
	var completed instanceDTO
	require.NoError(t, json.Unmarshal(completeResp.Result, &completed))
	assert.Equal(t, "completed", completed.Status)
	assert.Empty(t, completed.PendingTasks)
}

func TestWorkflowAPI_GetTasksMissingInstanceIdIsValidationFailed(t *testing.T) {
	registry := newOrderProcessRegistry(t)
	router := rpc.NewRouter()
	require.NoError(t, registry.RegisterProcedures(router))

	resp := callRPC(t, router, tenantContext("tenant-a"), "process.getTasks", map[string]string{})
	require.False(t, resp.OK)
	assert.Equal(t, "VALIDATION_FAILED", resp.Error.Code)
}
