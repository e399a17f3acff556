package stage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mbright/conductor/internal/checkpoint"
	"github.com/mbright/conductor/pkg/models"
)

func twoStageWorkflow() *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		ID:   "w1",
		Name: "Two Stage",
		Stages: []models.Stage{
			{ID: "stage1", RoleID: "role1", Order: 1},
			{ID: "stage2", RoleID: "role2", Order: 2, Prerequisites: []string{"stage1"}},
		},
	}
}

func TestStartBeforePrerequisite(t *testing.T) {
	m := NewMachine(twoStageWorkflow(), nil)

	err := m.Start("stage2", "role2")
	if !errors.Is(err, ErrPrerequisiteNotMet) {
		t.Fatalf("expected ErrPrerequisiteNotMet, got %v", err)
	}
}

func TestStageLifecycle(t *testing.T) {
	m := NewMachine(twoStageWorkflow(), nil)

	if err := m.Start("stage1", "role1"); err != nil {
		t.Fatalf("start stage1: %v", err)
	}
	if got := m.State().StageStatuses["stage1"]; got != models.StageInProgress {
		t.Errorf("expected in_progress, got %q", got)
	}

	ok, msgs, err := m.Complete("stage1")
	if err != nil || !ok {
		t.Fatalf("complete stage1: ok=%v msgs=%v err=%v", ok, msgs, err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no warnings, got %v", msgs)
	}

	if err := m.Start("stage2", "role2"); err != nil {
		t.Fatalf("start stage2 after prerequisite completed: %v", err)
	}
	ok, _, err = m.Complete("stage2")
	if err != nil || !ok {
		t.Fatalf("complete stage2: ok=%v err=%v", ok, err)
	}

	state := m.State()
	if !state.IsCompleted("stage1") || !state.IsCompleted("stage2") {
		t.Errorf("both stages should be completed: %v", state.CompletedStages)
	}
}

func TestStartUnknownStage(t *testing.T) {
	m := NewMachine(twoStageWorkflow(), nil)
	if err := m.Start("ghost", "role1"); !errors.Is(err, ErrUnknownStage) {
		t.Errorf("expected ErrUnknownStage, got %v", err)
	}
}

func TestMissingRequiredOutputBlocks(t *testing.T) {
	wf := &models.WorkflowDefinition{
		ID: "w1",
		Stages: []models.Stage{
			{
				ID:     "design",
				RoleID: "architect",
				Outputs: []models.Output{
					{Name: "design.md", Kind: "document", Required: true},
				},
			},
		},
	}
	m := NewMachine(wf, nil)
	m.SetWorkspace(t.TempDir())

	if err := m.Start("design", "architect"); err != nil {
		t.Fatalf("start: %v", err)
	}

	ok, msgs, err := m.Complete("design")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if ok {
		t.Fatal("expected completion to be blocked")
	}
	if len(msgs) == 0 {
		t.Fatal("expected a blocking message naming the output")
	}
	if got := m.State().StageStatuses["design"]; got != models.StageBlocked {
		t.Errorf("expected blocked, got %q", got)
	}
}

func TestRequiredOutputPresent(t *testing.T) {
	workspace := t.TempDir()
	wf := &models.WorkflowDefinition{
		ID: "w1",
		Stages: []models.Stage{
			{
				ID:     "design",
				RoleID: "architect",
				Outputs: []models.Output{
					{Name: "design.md", Kind: "document", Required: true},
					{Name: "main.go", Kind: "code", Required: true},
				},
			},
		},
	}

	docDir := filepath.Join(workspace, "docs", "w1", "design")
	if err := os.MkdirAll(docDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(docDir, "design.md"), []byte("# design"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(workspace, "main.go"), []byte("package main"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewMachine(wf, nil)
	m.SetWorkspace(workspace)
	if err := m.Start("design", "architect"); err != nil {
		t.Fatalf("start: %v", err)
	}
	ok, msgs, err := m.Complete("design")
	if err != nil || !ok {
		t.Fatalf("complete: ok=%v msgs=%v err=%v", ok, msgs, err)
	}
}

func TestNonStrictGateWarns(t *testing.T) {
	wf := &models.WorkflowDefinition{
		ID: "w1",
		Stages: []models.Stage{
			{
				ID:     "review",
				RoleID: "qa",
				QualityGates: []models.QualityGate{
					{Type: "lint", Strict: false},
				},
			},
		},
	}

	reg := NewValidatorRegistry()
	reg.Register("lint", ValidatorFunc(func(g models.QualityGate, s models.Stage, ws string) (bool, []string) {
		return false, []string{"lint: unused variable"}
	}))

	m := NewMachine(wf, reg)
	if err := m.Start("review", "qa"); err != nil {
		t.Fatalf("start: %v", err)
	}

	ok, msgs, err := m.Complete("review")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !ok {
		t.Fatal("non-strict failure should not block completion")
	}
	if len(msgs) != 1 || msgs[0] != "lint: unused variable" {
		t.Errorf("expected the failure surfaced as a warning, got %v", msgs)
	}
}

func TestStrictGateBlocks(t *testing.T) {
	wf := &models.WorkflowDefinition{
		ID: "w1",
		Stages: []models.Stage{
			{
				ID:     "verify",
				RoleID: "qa",
				QualityGates: []models.QualityGate{
					{Type: "tests", Strict: true},
				},
			},
		},
	}

	reg := NewValidatorRegistry()
	reg.Register("tests", ValidatorFunc(func(g models.QualityGate, s models.Stage, ws string) (bool, []string) {
		return false, []string{"tests: 2 failures"}
	}))

	m := NewMachine(wf, reg)
	if err := m.Start("verify", "qa"); err != nil {
		t.Fatalf("start: %v", err)
	}

	ok, msgs, err := m.Complete("verify")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if ok {
		t.Fatal("strict failure must block completion")
	}
	if len(msgs) != 1 {
		t.Errorf("expected the blocking error, got %v", msgs)
	}
	if m.State().IsCompleted("verify") {
		t.Error("blocked stage must not be marked completed")
	}
}

func TestUnknownValidatorIsConfigError(t *testing.T) {
	wf := &models.WorkflowDefinition{
		ID: "w1",
		Stages: []models.Stage{
			{
				ID:     "verify",
				RoleID: "qa",
				QualityGates: []models.QualityGate{
					{Type: "security-scan", Strict: true},
				},
			},
		},
	}
	m := NewMachine(wf, nil)
	if _, _, err := m.Complete("verify"); err == nil {
		t.Error("expected an error for an unregistered validator")
	}
}

func TestValidatorKeyOverridesType(t *testing.T) {
	reg := NewValidatorRegistry()
	called := ""
	reg.Register("custom", ValidatorFunc(func(g models.QualityGate, s models.Stage, ws string) (bool, []string) {
		called = "custom"
		return true, nil
	}))
	reg.Register("tests", ValidatorFunc(func(g models.QualityGate, s models.Stage, ws string) (bool, []string) {
		called = "tests"
		return true, nil
	}))

	wf := &models.WorkflowDefinition{
		ID: "w1",
		Stages: []models.Stage{
			{
				ID:     "verify",
				RoleID: "qa",
				QualityGates: []models.QualityGate{
					{Type: "tests", Validator: "custom", Strict: true},
				},
			},
		},
	}
	m := NewMachine(wf, reg)
	if ok, _, err := m.Complete("verify"); err != nil || !ok {
		t.Fatalf("complete: ok=%v err=%v", ok, err)
	}
	if called != "custom" {
		t.Errorf("expected the explicit validator key, got %q", called)
	}
}

func TestFileExistsValidator(t *testing.T) {
	workspace := t.TempDir()
	if err := os.WriteFile(filepath.Join(workspace, "report.txt"), []byte("ok"), 0o644); err != nil {
		t.Fatal(err)
	}

	v := FileExistsValidator()
	gate := models.QualityGate{Type: "artifacts", Criteria: []string{"report.txt"}}
	if ok, errs := v.Validate(gate, models.Stage{}, workspace); !ok {
		t.Errorf("expected pass, got %v", errs)
	}

	gate.Criteria = append(gate.Criteria, "missing.txt")
	if ok, errs := v.Validate(gate, models.Stage{}, workspace); ok || len(errs) != 1 {
		t.Errorf("expected one failure, got ok=%v errs=%v", ok, errs)
	}
}

func TestMachinePersistsStateTransitions(t *testing.T) {
	dir := t.TempDir()
	store := checkpoint.NewStore(dir)

	m := NewMachine(twoStageWorkflow(), nil)
	m.SetPersister(store)

	if err := m.Start("stage1", "role1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, _, err := m.Complete("stage1"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	state, err := store.LoadState("w1")
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if state == nil || !state.IsCompleted("stage1") {
		t.Errorf("persisted state should show stage1 completed: %+v", state)
	}
}

func TestCheckpointRoundTripThroughMachine(t *testing.T) {
	dir := t.TempDir()
	store := checkpoint.NewStore(dir)

	m := NewMachine(twoStageWorkflow(), nil)
	if err := m.Start("stage1", "role1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	cp, err := store.Create(checkpoint.CreateOptions{
		WorkflowID: "w1",
		State:      m.State(),
		Name:       "before-stage2",
	})
	if err != nil {
		t.Fatalf("create checkpoint: %v", err)
	}

	fresh := NewMachine(twoStageWorkflow(), nil)
	if _, err := store.Restore(cp.ID, fresh); err != nil {
		t.Fatalf("restore: %v", err)
	}

	got := fresh.State()
	if got.CurrentStage != "stage1" || got.CurrentRole != "role1" {
		t.Errorf("restored state mismatch: stage=%q role=%q", got.CurrentStage, got.CurrentRole)
	}
}
