// Package models defines the shared data types for workflows, stages,
// tasks, skill workflows, checkpoints, and agent messages.
package models

// StageStatus represents the lifecycle state of a stage.
type StageStatus string

const (
	// StagePending indicates the stage has not started.
	StagePending StageStatus = "pending"
	// StageInProgress indicates the stage is being worked on.
	StageInProgress StageStatus = "in_progress"
	// StageCompleted indicates the stage completed successfully.
	StageCompleted StageStatus = "completed"
	// StageBlocked indicates the stage cannot complete until its
	// blocking errors are resolved.
	StageBlocked StageStatus = "blocked"
)

// Valid returns true if the status is a known value.
func (s StageStatus) Valid() bool {
	switch s {
	case StagePending, StageInProgress, StageCompleted, StageBlocked:
		return true
	default:
		return false
	}
}

// WorkflowDefinition describes an ordered set of stages assigned to roles.
// Definitions are immutable after load; execution status lives in
// ExecutionState, never on the definition.
type WorkflowDefinition struct {
	// ID is the unique identifier for this workflow.
	ID string `json:"id" yaml:"id"`
	// Name is the human-readable workflow name.
	Name string `json:"name" yaml:"name"`
	// Stages is the ordered list of stages in this workflow.
	Stages []Stage `json:"stages" yaml:"stages"`
}

// StageByID returns the stage with the given ID, or nil if not found.
func (w *WorkflowDefinition) StageByID(id string) *Stage {
	for i := range w.Stages {
		if w.Stages[i].ID == id {
			return &w.Stages[i]
		}
	}
	return nil
}

// Stage is one lifecycle unit of a workflow, owned by a role and gated by
// quality gates and required outputs. Stage order is only a default; explicit
// prerequisites take precedence for sequencing.
type Stage struct {
	// ID is the unique identifier for this stage within the workflow.
	ID string `json:"id" yaml:"id"`
	// RoleID is the role responsible for executing this stage.
	RoleID string `json:"role_id" yaml:"role_id"`
	// Order is the default position of the stage in the workflow.
	Order int `json:"order" yaml:"order"`
	// Prerequisites lists stage IDs that must complete before this stage
	// can start.
	Prerequisites []string `json:"prerequisites,omitempty" yaml:"prerequisites,omitempty"`
	// QualityGates lists the checks evaluated when completing this stage.
	QualityGates []QualityGate `json:"quality_gates,omitempty" yaml:"quality_gates,omitempty"`
	// Outputs lists the artifacts this stage is expected to produce.
	Outputs []Output `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	// GoalTemplate is the templated goal text handed to the assigned role.
	GoalTemplate string `json:"goal_template,omitempty" yaml:"goal_template,omitempty"`
}

// QualityGate is a named check that must pass before a stage can complete.
type QualityGate struct {
	// Type is the gate category (e.g. "tests", "review").
	Type string `json:"type" yaml:"type"`
	// Validator is the registry key of the validator implementation.
	// When empty, Type is used as the lookup key.
	Validator string `json:"validator,omitempty" yaml:"validator,omitempty"`
	// Criteria lists the individual criteria the validator checks.
	Criteria []string `json:"criteria,omitempty" yaml:"criteria,omitempty"`
	// Strict gates block completion on failure; non-strict gates degrade
	// to warnings.
	Strict bool `json:"strict" yaml:"strict"`
}

// Output describes an artifact a stage produces.
type Output struct {
	// Name is the artifact file name or path fragment.
	Name string `json:"name" yaml:"name"`
	// Kind categorizes the artifact (e.g. "document", "report", "code").
	Kind string `json:"kind" yaml:"kind"`
	// Required outputs must exist on disk before the stage can complete.
	Required bool `json:"required" yaml:"required"`
}

// ExecutionState is the mutable runtime state of one workflow execution.
// It has a single logical owner (the stage machine) and is mutated only
// through its transition operations.
type ExecutionState struct {
	// CurrentStage is the ID of the stage currently in progress.
	CurrentStage string `json:"current_stage"`
	// CurrentRole is the role executing the current stage.
	CurrentRole string `json:"current_role"`
	// CompletedStages lists stage IDs that have completed.
	CompletedStages []string `json:"completed_stages"`
	// StageStatuses maps stage ID to its current status.
	StageStatuses map[string]StageStatus `json:"stage_statuses"`
	// ActiveAgents lists agent IDs currently working on the workflow.
	ActiveAgents []string `json:"active_agents,omitempty"`
}

// NewExecutionState returns an empty execution state with allocated maps.
func NewExecutionState() *ExecutionState {
	return &ExecutionState{
		CompletedStages: []string{},
		StageStatuses:   make(map[string]StageStatus),
	}
}

// IsCompleted returns true if the given stage ID is in the completed set.
func (s *ExecutionState) IsCompleted(stageID string) bool {
	for _, id := range s.CompletedStages {
		if id == stageID {
			return true
		}
	}
	return false
}

// MarkCompleted adds the stage to the completed set if not already present.
func (s *ExecutionState) MarkCompleted(stageID string) {
	if !s.IsCompleted(stageID) {
		s.CompletedStages = append(s.CompletedStages, stageID)
	}
	if s.StageStatuses == nil {
		s.StageStatuses = make(map[string]StageStatus)
	}
	s.StageStatuses[stageID] = StageCompleted
}

// Clone returns a deep copy of the execution state. Checkpoints store
// clones so later transitions cannot mutate a snapshot.
func (s *ExecutionState) Clone() *ExecutionState {
	if s == nil {
		return nil
	}
	c := &ExecutionState{
		CurrentStage: s.CurrentStage,
		CurrentRole:  s.CurrentRole,
	}
	c.CompletedStages = make([]string, len(s.CompletedStages))
	copy(c.CompletedStages, s.CompletedStages)
	c.StageStatuses = make(map[string]StageStatus, len(s.StageStatuses))
	for k, v := range s.StageStatuses {
		c.StageStatuses[k] = v
	}
	if s.ActiveAgents != nil {
		c.ActiveAgents = make([]string, len(s.ActiveAgents))
		copy(c.ActiveAgents, s.ActiveAgents)
	}
	return c
}
