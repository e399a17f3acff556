package skill

import (
	"context"
	"time"

	"github.com/mbright/conductor/pkg/models"
)

// RunStatus is the overall status of one skill workflow execution.
type RunStatus string

const (
	// RunRunning indicates the execution is in progress.
	RunRunning RunStatus = "running"
	// RunCompleted indicates every required step completed or was
	// legitimately skipped.
	RunCompleted RunStatus = "completed"
	// RunFailed indicates a required step failed or was starved by a
	// failed dependency.
	RunFailed RunStatus = "failed"
)

// Execution is the run-scoped record of one skill workflow invocation.
// It is created per run and persisted or discarded by the caller.
type Execution struct {
	// WorkflowID is the executed skill workflow.
	WorkflowID string `json:"workflow_id"`
	// Status is the overall run status.
	Status RunStatus `json:"status"`
	// StepStatuses maps step ID to its terminal status.
	StepStatuses map[string]models.StepStatus `json:"step_statuses"`
	// StepOutputs maps step ID to the outputs it produced.
	StepOutputs map[string]map[string]any `json:"step_outputs,omitempty"`
	// Outputs is the accumulated output map across all completed steps.
	Outputs map[string]any `json:"outputs,omitempty"`
	// Errors collects step failure messages.
	Errors []string `json:"errors,omitempty"`
	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`
	// FinishedAt is when the run reached a terminal status.
	FinishedAt time.Time `json:"finished_at"`
}

// Executor invokes a unit of work by ID. Implementations are external to
// the engine: a tool call, a model call, or a deterministic function.
type Executor interface {
	Invoke(ctx context.Context, skillID string, input map[string]any) (map[string]any, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, skillID string, input map[string]any) (map[string]any, error)

// Invoke calls the function.
func (f ExecutorFunc) Invoke(ctx context.Context, skillID string, input map[string]any) (map[string]any, error) {
	return f(ctx, skillID, input)
}

// Resolver selects a concrete skill for a dynamic step at run time.
type Resolver interface {
	Resolve(ctx context.Context, sel models.DynamicSkill, outputs map[string]any) (string, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, sel models.DynamicSkill, outputs map[string]any) (string, error)

// Resolve calls the function.
func (f ResolverFunc) Resolve(ctx context.Context, sel models.DynamicSkill, outputs map[string]any) (string, error) {
	return f(ctx, sel, outputs)
}
