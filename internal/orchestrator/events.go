// Package orchestrator coordinates concurrent execution of workflow stages
// and tasks over their dependency sets.
package orchestrator

import (
	"time"
)

// EventType represents the type of coordinator event.
type EventType string

const (
	// EventUnitQueued indicates a unit is ready and queued for execution.
	EventUnitQueued EventType = "unit_queued"
	// EventUnitStarted indicates a unit has started execution.
	EventUnitStarted EventType = "unit_started"
	// EventUnitCompleted indicates a unit completed successfully.
	EventUnitCompleted EventType = "unit_completed"
	// EventUnitFailed indicates a unit failed.
	EventUnitFailed EventType = "unit_failed"
	// EventUnitSkipped indicates a unit was skipped because a dependency failed.
	EventUnitSkipped EventType = "unit_skipped"
	// EventStageStarted indicates a workflow stage transitioned to in_progress.
	EventStageStarted EventType = "stage_started"
	// EventStageCompleted indicates a workflow stage completed its gates.
	EventStageCompleted EventType = "stage_completed"
	// EventStageBlocked indicates a workflow stage was blocked by gates or
	// missing outputs.
	EventStageBlocked EventType = "stage_blocked"
	// EventSkillWorkflowStarted indicates a triggered skill workflow began.
	EventSkillWorkflowStarted EventType = "skill_workflow_started"
	// EventSkillWorkflowDone indicates a triggered skill workflow finished.
	EventSkillWorkflowDone EventType = "skill_workflow_done"
	// EventCheckpointCreated indicates a checkpoint was taken around a stage.
	EventCheckpointCreated EventType = "checkpoint_created"
	// EventRunDone indicates the entire workflow run is complete.
	EventRunDone EventType = "run_done"
)

// Event represents a progress event emitted during coordination.
// The CLI consumes these to print live status.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// UnitID is the ID of the related unit or task, if applicable.
	UnitID string
	// StageID is the ID of the related stage, if applicable.
	StageID string
	// RoleID is the role executing the related stage or task.
	RoleID string
	// WorkflowID is the workflow this event belongs to.
	WorkflowID string
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Warnings carries non-blocking gate failures for stage events.
	Warnings []string
}
