package models

import "fmt"

// TaskStatus represents the current state of a decomposed task.
type TaskStatus string

const (
	// TaskPending indicates the task has not started.
	TaskPending TaskStatus = "pending"
	// TaskInProgress indicates the task is being worked on.
	TaskInProgress TaskStatus = "in_progress"
	// TaskCompleted indicates the task completed successfully.
	TaskCompleted TaskStatus = "completed"
	// TaskFailed indicates the task failed.
	TaskFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted, TaskFailed:
		return true
	default:
		return false
	}
}

// Task is one assignable unit of a decomposed goal.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Description is what the task asks the assigned role to do.
	Description string `json:"description"`
	// RoleID is the role assigned to execute the task.
	RoleID string `json:"role_id"`
	// Dependencies lists task IDs that must complete before this task.
	Dependencies []string `json:"dependencies,omitempty"`
	// Priority orders tasks among those with no unmet dependency;
	// higher runs first.
	Priority int `json:"priority"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Error contains the failure message if the task failed.
	Error string `json:"error,omitempty"`
}

// TaskDecomposition is the result of breaking a goal into a dependency
// graph of tasks plus a valid execution order.
type TaskDecomposition struct {
	// Goal is the original goal text.
	Goal string `json:"goal"`
	// Tasks is the full task list.
	Tasks []Task `json:"tasks"`
	// ExecutionOrder is a topological order of the task IDs, ties broken
	// by descending priority.
	ExecutionOrder []string `json:"execution_order"`
	// Dependencies maps task ID to the IDs it depends on.
	Dependencies map[string][]string `json:"dependencies"`
}

// TaskByID returns the task with the given ID, or nil if not found.
func (d *TaskDecomposition) TaskByID(id string) *Task {
	for i := range d.Tasks {
		if d.Tasks[i].ID == id {
			return &d.Tasks[i]
		}
	}
	return nil
}

// Validate checks structural integrity: every dependency refers to a known
// task, every task has an assigned role, and the execution order is a
// permutation of all task IDs.
func (d *TaskDecomposition) Validate() error {
	known := make(map[string]bool, len(d.Tasks))
	for _, t := range d.Tasks {
		if t.ID == "" {
			return fmt.Errorf("task with empty id")
		}
		if known[t.ID] {
			return fmt.Errorf("duplicate task id %s", t.ID)
		}
		known[t.ID] = true
	}

	for _, t := range d.Tasks {
		if t.RoleID == "" {
			return fmt.Errorf("task %s has no assigned role", t.ID)
		}
		for _, dep := range t.Dependencies {
			if !known[dep] {
				return fmt.Errorf("task %s depends on unknown task %s", t.ID, dep)
			}
		}
	}

	if len(d.ExecutionOrder) != len(d.Tasks) {
		return fmt.Errorf("execution order has %d entries for %d tasks", len(d.ExecutionOrder), len(d.Tasks))
	}
	seen := make(map[string]bool, len(d.ExecutionOrder))
	for _, id := range d.ExecutionOrder {
		if !known[id] {
			return fmt.Errorf("execution order references unknown task %s", id)
		}
		if seen[id] {
			return fmt.Errorf("execution order lists task %s twice", id)
		}
		seen[id] = true
	}

	return nil
}
