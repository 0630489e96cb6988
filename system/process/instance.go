package process

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/r3e-network/flowrt/infrastructure/resilience"
)

// Status is a process instance's lifecycle state (spec.md "State machines").
type Status string

const (
	Running    Status = "running"
	Completed  Status = "completed"
	Suspended  Status = "suspended"
	Terminated Status = "terminated"
)

// Task is an externally visible unit of pending work created when control
// reaches a task node.
type Task struct {
	TaskID     string
	InstanceID string
	Name       string
	Kind       TaskKind
	Assignee   string
	DueDate    *time.Time
	Priority   int
	Variables  map[string]any
}

// Instance is one running (or completed/suspended/terminated) execution of
// a Definition.
type Instance struct {
	InstanceID   string
	ProcessID    string
	BusinessKey  string
	Status       Status
	Variables    map[string]any
	StartTime    time.Time
	EndTime      *time.Time
	CurrentNode  string
	PendingTasks []Task

	taskSeq int
}

// Engine interprets process definitions and drives instances through them.
// One Engine serves many definitions and instances; service-task circuit
// breakers are scoped per (processID, nodeID) so a persistently failing
// integration trips independently of other nodes.
type Engine struct {
	mu          sync.Mutex
	definitions map[string]*Definition
	breakers    map[string]*resilience.CircuitBreaker
	breakerCfg  resilience.Config
}

// NewEngine constructs an Engine with the given circuit breaker config
// applied to every service/business-rule task node.
func NewEngine(breakerCfg resilience.Config) *Engine {
	return &Engine{
		definitions: make(map[string]*Definition),
		breakers:    make(map[string]*resilience.CircuitBreaker),
		breakerCfg:  breakerCfg,
	}
}

// Register makes def available to Start by its ID.
func (e *Engine) Register(def *Definition) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.definitions[def.ID] = def
}

func (e *Engine) breakerFor(processID, nodeID string) *resilience.CircuitBreaker {
	key := processID + "/" + nodeID
	e.mu.Lock()
	defer e.mu.Unlock()
	if cb, ok := e.breakers[key]; ok {
		return cb
	}
	cb := resilience.New(e.breakerCfg)
	e.breakers[key] = cb
	return cb
}

// Start creates a running instance at the process's start node and drives
// it until it blocks on a user/receive task or reaches an end event.
func (e *Engine) Start(ctx context.Context, processID, businessKey string, variables map[string]any) (*Instance, error) {
	e.mu.Lock()
	def, ok := e.definitions[processID]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("process: unknown process definition %q", processID)
	}

	inst := &Instance{
		InstanceID:  newInstanceID(),
		ProcessID:   processID,
		BusinessKey: businessKey,
		Status:      Running,
		Variables:   cloneVars(variables),
		StartTime:   time.Now(),
		CurrentNode: def.StartNodeID,
	}

	if err := e.advance(ctx, def, inst); err != nil {
		return inst, err
	}
	return inst, nil
}

// Signal merges variables into inst and advances it, used for BPMN signal
// events (broadcast, no specific waiting task targeted).
func (e *Engine) Signal(ctx context.Context, inst *Instance, name string, variables map[string]any) error {
	return e.resumeWithVariables(ctx, inst, variables)
}

// Message merges variables into inst and advances it, used for BPMN
// message events (targeted at one waiting receive task).
func (e *Engine) Message(ctx context.Context, inst *Instance, name string, variables map[string]any) error {
	return e.resumeWithVariables(ctx, inst, variables)
}

func (e *Engine) resumeWithVariables(ctx context.Context, inst *Instance, variables map[string]any) error {
	if inst.Status != Running {
		return fmt.Errorf("process: instance %s is not running (status=%s)", inst.InstanceID, inst.Status)
	}
	mergeVars(inst.Variables, variables)

	e.mu.Lock()
	def := e.definitions[inst.ProcessID]
	e.mu.Unlock()
	if def == nil {
		return fmt.Errorf("process: unknown process definition %q", inst.ProcessID)
	}
	if node := def.Nodes[inst.CurrentNode]; node != nil && node.Kind == ReceiveTask {
		for i, t := range inst.PendingTasks {
			if t.Name == node.ID {
				inst.PendingTasks = append(inst.PendingTasks[:i], inst.PendingTasks[i+1:]...)
				break
			}
		}
		next, err := singleOutgoing(def, node.ID)
		if err != nil {
			return err
		}
		inst.CurrentNode = next
	}
	return e.advance(ctx, def, inst)
}

// CompleteTask removes taskID from inst's pending tasks, merges variables,
// and advances the instance past that task's node.
func (e *Engine) CompleteTask(ctx context.Context, inst *Instance, taskID string, variables map[string]any) error {
	if inst.Status != Running {
		return fmt.Errorf("process: instance %s is not running (status=%s)", inst.InstanceID, inst.Status)
	}

	idx := -1
	for i, t := range inst.PendingTasks {
		if t.TaskID == taskID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("process: task %s not pending on instance %s", taskID, inst.InstanceID)
	}
	task := inst.PendingTasks[idx]
	inst.PendingTasks = append(inst.PendingTasks[:idx], inst.PendingTasks[idx+1:]...)
	mergeVars(inst.Variables, variables)

	e.mu.Lock()
	def := e.definitions[inst.ProcessID]
	e.mu.Unlock()
	if def == nil {
		return fmt.Errorf("process: unknown process definition %q", inst.ProcessID)
	}

	next, err := singleOutgoing(def, task.Name) // task.Name holds the node id it was created for
	if err != nil {
		return err
	}
	inst.CurrentNode = next
	return e.advance(ctx, def, inst)
}

// Suspend moves a running instance to suspended.
func (e *Engine) Suspend(inst *Instance) error {
	if inst.Status != Running {
		return fmt.Errorf("process: can only suspend a running instance (status=%s)", inst.Status)
	}
	inst.Status = Suspended
	return nil
}

// Resume moves a suspended instance back to running.
func (e *Engine) Resume(inst *Instance) error {
	if inst.Status != Suspended {
		return fmt.Errorf("process: can only resume a suspended instance (status=%s)", inst.Status)
	}
	inst.Status = Running
	return nil
}

// Terminate ends a running or suspended instance without reaching an end event.
func (e *Engine) Terminate(inst *Instance) error {
	if inst.Status != Running && inst.Status != Suspended {
		return fmt.Errorf("process: cannot terminate instance in status %s", inst.Status)
	}
	inst.Status = Terminated
	now := time.Now()
	inst.EndTime = &now
	return nil
}

// advance drives the instance forward from its current node until it
// blocks (user/receive task, suspend) or completes.
func (e *Engine) advance(ctx context.Context, def *Definition, inst *Instance) error {
	for {
		node, ok := def.Nodes[inst.CurrentNode]
		if !ok {
			return fmt.Errorf("process: instance %s references unknown node %s", inst.InstanceID, inst.CurrentNode)
		}

		switch node.Kind {
		case StartEvent:
			next, err := singleOutgoing(def, node.ID)
			if err != nil {
				return err
			}
			inst.CurrentNode = next

		case EndEvent:
			inst.Status = Completed
			now := time.Now()
			inst.EndTime = &now
			return nil

		case ExclusiveGateway:
			branch, err := selectBranch(node.ID, def.Branches[node.ID], inst.Variables)
			if err != nil {
				return err
			}
			inst.CurrentNode = branch.Target

		case ParallelGateway:
			// Single-threaded interpretation: a parallel gateway with one
			// modeled outgoing edge behaves as a pass-through join point.
			next, err := singleOutgoing(def, node.ID)
			if err != nil {
				return err
			}
			inst.CurrentNode = next

		case ServiceTask, SendTask, BusinessRuleTask:
			if node.Kind != SendTask || node.Script != "" {
				breaker := e.breakerFor(def.ID, node.ID)
				output, err := executeServiceTask(ctx, node, inst.Variables, breaker)
				if err != nil {
					return fmt.Errorf("process: instance %s failed at %s: %w", inst.InstanceID, node.ID, err)
				}
				mergeVars(inst.Variables, output)
			}
			next, err := singleOutgoing(def, node.ID)
			if err != nil {
				return err
			}
			inst.CurrentNode = next

		case UserTask, ManualTask, ReceiveTask:
			inst.taskSeq++
			inst.PendingTasks = append(inst.PendingTasks, Task{
				TaskID:     fmt.Sprintf("%s-task-%d", inst.InstanceID, inst.taskSeq),
				InstanceID: inst.InstanceID,
				Name:       node.ID,
				Kind:       nodeKindToTaskKind[node.Kind],
				Assignee:   node.Assignee,
				Priority:   node.Priority,
				Variables:  map[string]any{},
			})
			return nil

		default:
			return fmt.Errorf("process: unsupported node kind %q", node.Kind)
		}
	}
}

func singleOutgoing(def *Definition, nodeID string) (string, error) {
	for _, e := range def.Edges {
		if e.From == nodeID {
			return e.To, nil
		}
	}
	return "", fmt.Errorf("process: node %s has no outgoing edge", nodeID)
}

func mergeVars(dst, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}

func cloneVars(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	mergeVars(out, src)
	return out
}
