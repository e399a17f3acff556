package models

import "time"

// StepStatus represents the execution state of a skill workflow step.
type StepStatus string

const (
	// StepPending indicates the step has not started.
	StepPending StepStatus = "pending"
	// StepRunning indicates the step is executing.
	StepRunning StepStatus = "running"
	// StepCompleted indicates the step completed successfully.
	StepCompleted StepStatus = "completed"
	// StepFailed indicates the step failed after exhausting retries.
	StepFailed StepStatus = "failed"
	// StepSkipped indicates the step was skipped by a condition or branch.
	// Skipped steps satisfy their dependents.
	StepSkipped StepStatus = "skipped"
)

// Valid returns true if the status is a known value.
func (s StepStatus) Valid() bool {
	switch s {
	case StepPending, StepRunning, StepCompleted, StepFailed, StepSkipped:
		return true
	default:
		return false
	}
}

// SkillWorkflow is a dependency graph of steps, each wrapping one unit of
// work, with conditions, branches, and loops. The step graph induced by
// depends_on must be acyclic; this is validated once at load time.
type SkillWorkflow struct {
	// ID is the unique identifier for this skill workflow.
	ID string `json:"id" yaml:"id"`
	// Name is the human-readable workflow name.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// Steps is the ordered list of steps.
	Steps []SkillStep `json:"steps" yaml:"steps"`
	// Trigger describes which stage auto-fires this workflow.
	Trigger *SkillTrigger `json:"trigger,omitempty" yaml:"trigger,omitempty"`
	// Config holds run-level execution settings.
	Config SkillWorkflowConfig `json:"config" yaml:"config"`
}

// StepByID returns the step with the given ID, or nil if not found.
func (w *SkillWorkflow) StepByID(id string) *SkillStep {
	for i := range w.Steps {
		if w.Steps[i].ID == id {
			return &w.Steps[i]
		}
	}
	return nil
}

// SkillTrigger binds a skill workflow to a stage.
type SkillTrigger struct {
	// StageID is the stage whose execution fires this workflow.
	StageID string `json:"stage_id" yaml:"stage_id"`
	// Condition optionally gates the trigger against stage outputs.
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// SkillWorkflowConfig holds run-level execution settings for a skill workflow.
type SkillWorkflowConfig struct {
	// MaxParallel is the maximum number of steps running concurrently.
	// Zero or negative means unbounded.
	MaxParallel int `json:"max_parallel,omitempty" yaml:"max_parallel,omitempty"`
	// FailFast aborts the whole run on the first required-step failure.
	FailFast bool `json:"fail_fast,omitempty" yaml:"fail_fast,omitempty"`
	// RetryFailedSteps enables the default retry policy for steps that do
	// not carry their own retry configuration.
	RetryFailedSteps bool `json:"retry_failed_steps,omitempty" yaml:"retry_failed_steps,omitempty"`
	// Timeout bounds the whole run. Zero means no limit.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// SkillStep is one node in a skill workflow graph.
type SkillStep struct {
	// ID is the unique step identifier within the workflow.
	ID string `json:"id" yaml:"id"`
	// SkillID is the unit of work this step invokes. Empty when Dynamic
	// selection is configured.
	SkillID string `json:"skill_id,omitempty" yaml:"skill_id,omitempty"`
	// Dynamic configures run-time skill selection with a fallback.
	Dynamic *DynamicSkill `json:"dynamic,omitempty" yaml:"dynamic,omitempty"`
	// DependsOn lists step IDs that must complete (or be skipped) before
	// this step becomes ready.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	// Config holds per-step execution settings.
	Config StepConfig `json:"config" yaml:"config"`
	// Condition guards execution; when it evaluates false against the
	// accumulated outputs the step is skipped.
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
	// Branches redirect control flow after this step completes.
	Branches []StepBranch `json:"branches,omitempty" yaml:"branches,omitempty"`
	// Loop re-executes the step body over items or while a condition holds.
	Loop *LoopSpec `json:"loop,omitempty" yaml:"loop,omitempty"`
}

// StepConfig holds per-step execution settings.
type StepConfig struct {
	// Timeout bounds one invocation of the step. Zero means no limit.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// RetryOnFailure enables retry with backoff for this step.
	RetryOnFailure bool `json:"retry_on_failure,omitempty" yaml:"retry_on_failure,omitempty"`
	// MaxRetries caps retry attempts. Subject to the engine-wide ceiling.
	MaxRetries int `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	// Required steps fail the run when they fail; optional steps do not.
	Required bool `json:"required" yaml:"required"`
}

// StepBranch redirects control flow based on a condition over accumulated
// outputs. When the condition is true, TargetStepID becomes ready and the
// alternative path is skipped; ElseStepID covers the negative case.
type StepBranch struct {
	// Condition is evaluated against the accumulated outputs.
	Condition string `json:"condition" yaml:"condition"`
	// TargetStepID is made ready when the condition holds.
	TargetStepID string `json:"target_step_id" yaml:"target_step_id"`
	// ElseStepID is made ready when the condition does not hold.
	ElseStepID string `json:"else_step_id,omitempty" yaml:"else_step_id,omitempty"`
}

// LoopKind selects between while-loops and for-each loops.
type LoopKind string

const (
	// LoopWhile repeats the body while a condition holds.
	LoopWhile LoopKind = "while"
	// LoopForEach repeats the body once per item in an output list.
	LoopForEach LoopKind = "for_each"
)

// LoopSpec re-executes a step body over a fixed item source or while a
// condition holds, bounded by MaxIterations.
type LoopSpec struct {
	// Kind is "while" or "for_each".
	Kind LoopKind `json:"kind" yaml:"kind"`
	// Condition is the continuation condition for while loops.
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
	// ItemsKey names the output field holding the item list for for-each
	// loops. Each iteration receives the current item as input "item".
	ItemsKey string `json:"items_key,omitempty" yaml:"items_key,omitempty"`
	// MaxIterations bounds the loop.
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`
	// BreakOnFailure stops iterating on the first failed iteration.
	BreakOnFailure bool `json:"break_on_failure,omitempty" yaml:"break_on_failure,omitempty"`
}

// DynamicSkill configures run-time skill selection. The resolver picks a
// skill ID from the selector and criteria; resolution failures fall back
// to FallbackSkillID.
type DynamicSkill struct {
	// Selector names the resolution strategy.
	Selector string `json:"selector" yaml:"selector"`
	// Criteria is passed to the resolver.
	Criteria map[string]string `json:"criteria,omitempty" yaml:"criteria,omitempty"`
	// FallbackSkillID is used when resolution fails.
	FallbackSkillID string `json:"fallback_skill_id,omitempty" yaml:"fallback_skill_id,omitempty"`
}
