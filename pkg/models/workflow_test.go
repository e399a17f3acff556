package models

import "testing"

func TestStageStatusValid(t *testing.T) {
	valid := []StageStatus{StagePending, StageInProgress, StageCompleted, StageBlocked}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}

	if StageStatus("done").Valid() {
		t.Error("expected 'done' to be invalid")
	}
	if StageStatus("").Valid() {
		t.Error("expected empty status to be invalid")
	}
}

func TestStageByID(t *testing.T) {
	wf := &WorkflowDefinition{
		ID: "w1",
		Stages: []Stage{
			{ID: "stage1", RoleID: "role1"},
			{ID: "stage2", RoleID: "role2"},
		},
	}

	s := wf.StageByID("stage2")
	if s == nil {
		t.Fatal("expected stage2 to be found")
	}
	if s.RoleID != "role2" {
		t.Errorf("expected role2, got %q", s.RoleID)
	}

	if wf.StageByID("missing") != nil {
		t.Error("expected nil for unknown stage")
	}
}

func TestExecutionStateMarkCompleted(t *testing.T) {
	st := NewExecutionState()

	st.MarkCompleted("stage1")
	if !st.IsCompleted("stage1") {
		t.Error("expected stage1 to be completed")
	}
	if st.StageStatuses["stage1"] != StageCompleted {
		t.Errorf("expected status completed, got %q", st.StageStatuses["stage1"])
	}

	// Marking twice must not duplicate the entry.
	st.MarkCompleted("stage1")
	if len(st.CompletedStages) != 1 {
		t.Errorf("expected 1 completed stage, got %d", len(st.CompletedStages))
	}
}

func TestExecutionStateClone(t *testing.T) {
	st := NewExecutionState()
	st.CurrentStage = "stage1"
	st.CurrentRole = "role1"
	st.MarkCompleted("stage0")
	st.ActiveAgents = []string{"agent-1"}

	c := st.Clone()
	if c.CurrentStage != "stage1" || c.CurrentRole != "role1" {
		t.Errorf("clone mismatch: stage=%q role=%q", c.CurrentStage, c.CurrentRole)
	}

	// Mutating the original must not affect the clone.
	st.MarkCompleted("stage1")
	st.StageStatuses["stage0"] = StageBlocked
	st.ActiveAgents[0] = "agent-2"

	if c.IsCompleted("stage1") {
		t.Error("clone shares completed slice with original")
	}
	if c.StageStatuses["stage0"] != StageCompleted {
		t.Error("clone shares status map with original")
	}
	if c.ActiveAgents[0] != "agent-1" {
		t.Error("clone shares agents slice with original")
	}
}

func TestExecutionStateCloneNil(t *testing.T) {
	var st *ExecutionState
	if st.Clone() != nil {
		t.Error("expected nil clone of nil state")
	}
}
