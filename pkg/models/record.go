package models

import "time"

// ErrorKind classifies an execution failure for retry decisions.
type ErrorKind string

const (
	// ErrKindValidation indicates an input or schema validation failure.
	ErrKindValidation ErrorKind = "validation_error"
	// ErrKindTimeout indicates the unit of work timed out.
	ErrKindTimeout ErrorKind = "timeout_error"
	// ErrKindTestFailure indicates failing tests.
	ErrKindTestFailure ErrorKind = "test_failure"
	// ErrKindInsufficientContext indicates missing context or inputs.
	ErrKindInsufficientContext ErrorKind = "insufficient_context"
	// ErrKindExecution is the default classification for other failures.
	ErrKindExecution ErrorKind = "execution_error"
)

// Valid returns true if the kind is a known value.
func (k ErrorKind) Valid() bool {
	switch k {
	case ErrKindValidation, ErrKindTimeout, ErrKindTestFailure,
		ErrKindInsufficientContext, ErrKindExecution:
		return true
	default:
		return false
	}
}

// RecordStatus is the outcome of one execution attempt.
type RecordStatus string

const (
	// RecordSuccess indicates the attempt succeeded.
	RecordSuccess RecordStatus = "success"
	// RecordFailure indicates the attempt failed.
	RecordFailure RecordStatus = "failure"
)

// ExecutionRecord captures one attempt of a unit of work. Records are
// append-only and never mutated after creation.
type ExecutionRecord struct {
	// SkillID is the unit of work that was invoked.
	SkillID string `json:"skill_id"`
	// Input is the input payload for the attempt.
	Input map[string]any `json:"input,omitempty"`
	// Output is the output payload on success.
	Output map[string]any `json:"output,omitempty"`
	// Status is the attempt outcome.
	Status RecordStatus `json:"status"`
	// ErrorKind classifies the failure, if any.
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	// ErrorMessage is the failure message, if any.
	ErrorMessage string `json:"error_message,omitempty"`
	// Duration is how long the attempt took.
	Duration time.Duration `json:"duration"`
	// RetryCount is the zero-based attempt index.
	RetryCount int `json:"retry_count"`
	// StageID is the stage context of the attempt, if any.
	StageID string `json:"stage_id,omitempty"`
	// RoleID is the role context of the attempt, if any.
	RoleID string `json:"role_id,omitempty"`
	// Timestamp is when the attempt finished.
	Timestamp time.Time `json:"timestamp"`
}
