// Package stage drives the per-stage lifecycle of a workflow: starting a
// stage once its prerequisites have completed, and completing it behind
// quality gates and required-output checks.
package stage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mbright/conductor/pkg/models"
)

// ErrPrerequisiteNotMet is returned by Start when a stage's prerequisites
// are not all in the completed set.
var ErrPrerequisiteNotMet = errors.New("prerequisite not met")

// ErrUnknownStage is returned when an operation names a stage the workflow
// does not define.
var ErrUnknownStage = errors.New("unknown stage")

// StatePersister saves execution state after each transition. The checkpoint
// store satisfies this.
type StatePersister interface {
	SaveState(workflowID string, state *models.ExecutionState) error
}

// Machine owns the execution state of one workflow run. All mutation goes
// through Start and Complete; concurrent coordinators must share one Machine
// rather than holding their own copies of the state.
type Machine struct {
	mu         sync.Mutex
	workflow   *models.WorkflowDefinition
	state      *models.ExecutionState
	validators *ValidatorRegistry
	persister  StatePersister
	workspace  string
}

// NewMachine creates a machine for the given workflow with a fresh execution
// state. The registry may be shared across machines; nil creates an empty one.
func NewMachine(workflow *models.WorkflowDefinition, registry *ValidatorRegistry) *Machine {
	if registry == nil {
		registry = NewValidatorRegistry()
	}
	return &Machine{
		workflow:   workflow,
		state:      models.NewExecutionState(),
		validators: registry,
	}
}

// SetPersister configures where state is saved after each transition.
func (m *Machine) SetPersister(p StatePersister) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persister = p
}

// SetWorkspace sets the root directory against which stage outputs and gate
// criteria are resolved.
func (m *Machine) SetWorkspace(dir string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workspace = dir
}

// State returns a copy of the current execution state.
func (m *Machine) State() *models.ExecutionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// RestoreState replaces the live execution state with the given one. The
// checkpoint store calls this during restore.
func (m *Machine) RestoreState(state *models.ExecutionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state == nil {
		m.state = models.NewExecutionState()
		return
	}
	m.state = state.Clone()
}

// Start transitions a stage to in_progress. It fails with
// ErrPrerequisiteNotMet unless every prerequisite stage has completed.
func (m *Machine) Start(stageID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.workflow.StageByID(stageID)
	if st == nil {
		return fmt.Errorf("%w: %s", ErrUnknownStage, stageID)
	}

	var missing []string
	for _, prereq := range st.Prerequisites {
		if !m.state.IsCompleted(prereq) {
			missing = append(missing, prereq)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: stage %s requires [%s]", ErrPrerequisiteNotMet, stageID, strings.Join(missing, ", "))
	}

	m.state.CurrentStage = stageID
	m.state.CurrentRole = roleID
	m.state.StageStatuses[stageID] = models.StageInProgress

	return m.persistLocked()
}

// Complete evaluates the stage's quality gates and required outputs. On
// success the stage transitions to completed and (true, warnings) is
// returned. Strict-gate failures and missing required outputs block
// completion: the stage transitions to blocked and (false, errors) is
// returned with the full blocking plus warning list. An unregistered gate
// validator is a configuration error.
func (m *Machine) Complete(stageID string) (bool, []string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.workflow.StageByID(stageID)
	if st == nil {
		return false, nil, fmt.Errorf("%w: %s", ErrUnknownStage, stageID)
	}

	var blocking, warnings []string

	for _, gate := range st.QualityGates {
		v, err := m.validators.Lookup(gate)
		if err != nil {
			return false, nil, err
		}
		passed, errs := v.Validate(gate, *st, m.workspace)
		if passed {
			continue
		}
		if len(errs) == 0 {
			errs = []string{fmt.Sprintf("gate %s failed", gate.Type)}
		}
		if gate.Strict {
			blocking = append(blocking, errs...)
		} else {
			warnings = append(warnings, errs...)
		}
	}

	// Required outputs block regardless of gate strictness.
	for _, out := range st.Outputs {
		if !out.Required {
			continue
		}
		path := m.outputPath(stageID, out)
		if _, err := os.Stat(path); err != nil {
			blocking = append(blocking, fmt.Sprintf("required output %s missing at %s", out.Name, path))
		}
	}

	if len(blocking) > 0 {
		m.state.StageStatuses[stageID] = models.StageBlocked
		if err := m.persistLocked(); err != nil {
			return false, nil, err
		}
		return false, append(blocking, warnings...), nil
	}

	m.state.MarkCompleted(stageID)
	if err := m.persistLocked(); err != nil {
		return false, nil, err
	}
	return true, warnings, nil
}

// outputPath computes where a stage output is expected to live. Documents
// and reports are scoped under the workflow and stage; other kinds resolve
// directly against the workspace.
func (m *Machine) outputPath(stageID string, out models.Output) string {
	switch out.Kind {
	case "document", "report":
		return filepath.Join(m.workspace, "docs", m.workflow.ID, stageID, out.Name)
	default:
		return filepath.Join(m.workspace, out.Name)
	}
}

func (m *Machine) persistLocked() error {
	if m.persister == nil {
		return nil
	}
	if err := m.persister.SaveState(m.workflow.ID, m.state); err != nil {
		return fmt.Errorf("persisting execution state: %w", err)
	}
	return nil
}
