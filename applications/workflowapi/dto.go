package workflowapi

import (
	"time"

	"github.com/r3e-network/flowrt/system/process"
)

type instanceDTO struct {
	ID           string         `json:"id"`
	ProcessID    string         `json:"processId"`
	BusinessKey  string         `json:"businessKey"`
	Status       string         `json:"status"`
	Variables    map[string]any `json:"variables"`
	CurrentNode  string         `json:"currentNode,omitempty"`
	StartTime    time.Time      `json:"startTime"`
	EndTime      *time.Time     `json:"endTime,omitempty"`
	PendingTasks []taskDTO      `json:"pendingTasks"`
}

type taskDTO struct {
	TaskID     string         `json:"taskId"`
	InstanceID string         `json:"instanceId"`
	Name       string         `json:"name"`
	Kind       string         `json:"kind"`
	Assignee   string         `json:"assignee,omitempty"`
	DueDate    *time.Time     `json:"dueDate,omitempty"`
	Priority   int            `json:"priority,omitempty"`
	Variables  map[string]any `json:"variables,omitempty"`
}

func toInstanceDTO(inst *process.Instance) instanceDTO {
	tasks := make([]taskDTO, 0, len(inst.PendingTasks))
	for _, t := range inst.PendingTasks {
		tasks = append(tasks, taskDTO{
			TaskID:     t.TaskID,
			InstanceID: t.InstanceID,
			Name:       t.Name,
			Kind:       string(t.Kind),
			Assignee:   t.Assignee,
			DueDate:    t.DueDate,
			Priority:   t.Priority,
			Variables:  t.Variables,
		})
	}
	return instanceDTO{
		ID:           externalID(inst),
		ProcessID:    inst.ProcessID,
		BusinessKey:  inst.BusinessKey,
		Status:       string(inst.Status),
		Variables:    inst.Variables,
		CurrentNode:  inst.CurrentNode,
		StartTime:    inst.StartTime,
		EndTime:      inst.EndTime,
		PendingTasks: tasks,
	}
}

type startInput struct {
	ProcessID   string         `json:"processId"`
	BusinessKey string         `json:"businessKey"`
	Variables   map[string]any `json:"variables"`
}

func (in startInput) Validate() error {
	if in.ProcessID == "" {
		return missingField("processId")
	}
	return nil
}

type resumeInput struct {
	InstanceID string         `json:"instanceId"`
	Name       string         `json:"name"`
	Variables  map[string]any `json:"variables"`
}

func (in resumeInput) Validate() error {
	if in.InstanceID == "" {
		return missingField("instanceId")
	}
	return nil
}

type completeTaskInput struct {
	InstanceID string         `json:"instanceId"`
	TaskID     string         `json:"taskId"`
	Variables  map[string]any `json:"variables"`
}

func (in completeTaskInput) Validate() error {
	if in.InstanceID == "" {
		return missingField("instanceId")
	}
	if in.TaskID == "" {
		return missingField("taskId")
	}
	return nil
}

type instanceQuery struct {
	InstanceID string `json:"instanceId"`
}

func (in instanceQuery) Validate() error {
	if in.InstanceID == "" {
		return missingField("instanceId")
	}
	return nil
}

type tasksOutput struct {
	Tasks []taskDTO `json:"tasks"`
}
