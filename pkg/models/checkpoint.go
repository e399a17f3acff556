package models

import "time"

// Checkpoint is an immutable, named snapshot of execution state usable to
// restore a run. Checkpoints are namespaced by workflow ID on disk.
type Checkpoint struct {
	// ID is the unique checkpoint identifier.
	ID string `json:"id"`
	// Name is the human-readable checkpoint name.
	Name string `json:"name,omitempty"`
	// Description explains why the checkpoint was taken.
	Description string `json:"description,omitempty"`
	// CreatedAt is when the checkpoint was created.
	CreatedAt time.Time `json:"created_at"`
	// WorkflowID is the workflow this checkpoint belongs to.
	WorkflowID string `json:"workflow_id"`
	// StageID is the stage active when the checkpoint was taken, if any.
	StageID string `json:"stage_id,omitempty"`
	// State is a deep copy of the execution state at checkpoint time.
	State *ExecutionState `json:"state"`
	// Progress is an optional free-form progress snapshot.
	Progress map[string]any `json:"progress,omitempty"`
	// Context is an optional free-form context snapshot.
	Context map[string]any `json:"context,omitempty"`
	// OutputFiles lists artifact paths produced so far.
	OutputFiles []string `json:"output_files,omitempty"`
	// Metadata carries arbitrary caller-supplied annotations.
	Metadata map[string]string `json:"metadata,omitempty"`
}
