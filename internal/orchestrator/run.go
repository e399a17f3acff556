package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mbright/conductor/internal/bus"
	"github.com/mbright/conductor/internal/checkpoint"
	"github.com/mbright/conductor/internal/skill"
	"github.com/mbright/conductor/internal/stage"
	"github.com/mbright/conductor/pkg/models"
)

// Runner drives one full workflow run: stages execute in dependency order
// through the coordinator, each stage transitions through the state machine,
// and skill workflows attached to a stage fire automatically. Checkpoints
// optionally bracket each stage.
type Runner struct {
	coordinator *Coordinator
	machine     *stage.Machine
	engine      *skill.Engine
	checkpoints *checkpoint.Store
	skills      []*models.SkillWorkflow
	bus         *bus.Bus

	bracketCheckpoints bool
	logger             *DebugLogger
	emit               func(Event)
}

// NewRunner wires a runner from its collaborators. The checkpoint store may
// be nil when bracketing is disabled.
func NewRunner(coord *Coordinator, machine *stage.Machine, engine *skill.Engine) *Runner {
	return &Runner{
		coordinator: coord,
		machine:     machine,
		engine:      engine,
		logger:      NopLogger(),
	}
}

// SetCheckpointStore enables checkpoint bracketing around each stage.
func (r *Runner) SetCheckpointStore(store *checkpoint.Store, bracket bool) {
	r.checkpoints = store
	r.bracketCheckpoints = bracket
}

// SetSkillWorkflows registers the skill workflows whose triggers are
// consulted when a stage starts.
func (r *Runner) SetSkillWorkflows(skills []*models.SkillWorkflow) {
	r.skills = skills
}

// SetBus attaches a message bus. Each stage's role is registered as an
// agent; stage transitions are broadcast and a completed stage shares its
// outputs as the role's context.
func (r *Runner) SetBus(b *bus.Bus) {
	r.bus = b
}

// SetLogger sets the debug logger for the runner and its coordinator, and
// routes the skill engine's debug output through the package-level hook.
func (r *Runner) SetLogger(l *DebugLogger) {
	if l == nil {
		l = NopLogger()
	}
	r.logger = l
	r.coordinator.SetLogger(l)
	if r.engine != nil {
		r.engine.SetLogger(debugLog)
	}
}

// SetEventSink registers a progress event callback on the runner and its
// coordinator.
func (r *Runner) SetEventSink(fn func(Event)) {
	r.emit = fn
	r.coordinator.SetEventSink(fn)
}

func (r *Runner) emitEvent(ev Event) {
	if r.emit != nil {
		ev.Timestamp = time.Now()
		r.emit(ev)
	}
}

// StageReport records the outcome of one stage within a run.
type StageReport struct {
	// StageID identifies the stage.
	StageID string
	// Completed is true if the stage passed its gates and outputs.
	Completed bool
	// Skipped is true if the stage never ran because a predecessor failed.
	Skipped bool
	// Warnings holds non-blocking gate failures.
	Warnings []string
	// Outputs aggregates outputs from skill workflows fired for the stage.
	Outputs map[string]any
	// Err is the failure, if any.
	Err error
}

// RunReport is the outcome of one full workflow run.
type RunReport struct {
	// WorkflowID identifies the executed workflow.
	WorkflowID string
	// Stages maps stage ID to its report.
	Stages map[string]*StageReport
	// Completed is true if every stage completed.
	Completed bool
}

// RunWorkflow executes every stage of the workflow. Stages with explicit
// prerequisites wait on them; stages without prerequisites implicitly follow
// the previous stage in order. A stage failure skips its dependents but
// leaves independent stages running.
func (r *Runner) RunWorkflow(ctx context.Context, wf *models.WorkflowDefinition, inputs map[string]any) (*RunReport, error) {
	report := &RunReport{
		WorkflowID: wf.ID,
		Stages:     make(map[string]*StageReport, len(wf.Stages)),
	}

	if r.bus != nil {
		// Register every role up front so broadcasts reach all of them.
		for _, st := range wf.Stages {
			r.bus.Register(st.RoleID)
		}
	}

	units := make([]Unit, 0, len(wf.Stages))
	for _, st := range stagesInOrder(wf) {
		st := st
		units = append(units, Unit{
			ID:   st.ID,
			Deps: stageDeps(wf, st),
			Run: func(ctx context.Context) (map[string]any, error) {
				return r.runStage(ctx, wf, st, inputs)
			},
		})
	}

	results, err := r.coordinator.Run(ctx, units)
	if err != nil {
		return report, err
	}

	report.Completed = true
	for id, res := range results {
		sr := &StageReport{StageID: id, Outputs: res.Output}
		switch res.Status {
		case UnitCompleted:
			sr.Completed = true
		case UnitSkipped:
			sr.Skipped = true
		case UnitFailed:
			sr.Err = res.Err
		}
		if !sr.Completed {
			report.Completed = false
		}
		report.Stages[id] = sr
	}

	r.emitEvent(Event{Type: EventRunDone, WorkflowID: wf.ID})
	return report, nil
}

// runStage transitions one stage through the machine, firing any attached
// skill workflows in between.
func (r *Runner) runStage(ctx context.Context, wf *models.WorkflowDefinition, st models.Stage, inputs map[string]any) (map[string]any, error) {
	if err := r.checkpointStage(wf.ID, st.ID, "before"); err != nil {
		r.logger.Log("[runner] checkpoint before %s failed: %v", st.ID, err)
	}

	if err := r.machine.Start(st.ID, st.RoleID); err != nil {
		return nil, err
	}
	r.emitEvent(Event{Type: EventStageStarted, StageID: st.ID, RoleID: st.RoleID, WorkflowID: wf.ID})
	r.notify("stage_started", wf.ID, st)

	outputs := make(map[string]any, len(inputs))
	for k, v := range inputs {
		outputs[k] = v
	}

	for _, sw := range r.triggeredFor(st.ID, outputs) {
		r.emitEvent(Event{Type: EventSkillWorkflowStarted, StageID: st.ID, WorkflowID: wf.ID, Message: sw.ID})

		exec, err := r.engine.ExecuteInStage(ctx, sw, outputs, st.ID, st.RoleID)
		if exec != nil {
			for k, v := range exec.Outputs {
				outputs[k] = v
			}
		}
		if err == nil && exec != nil && exec.Status == skill.RunFailed {
			err = fmt.Errorf("required steps failed: %s", strings.Join(exec.Errors, "; "))
		}
		r.emitEvent(Event{Type: EventSkillWorkflowDone, StageID: st.ID, WorkflowID: wf.ID, Message: sw.ID, Error: err})
		if err != nil {
			return outputs, fmt.Errorf("skill workflow %s for stage %s: %w", sw.ID, st.ID, err)
		}
	}

	ok, msgs, err := r.machine.Complete(st.ID)
	if err != nil {
		return outputs, err
	}
	if !ok {
		r.emitEvent(Event{Type: EventStageBlocked, StageID: st.ID, WorkflowID: wf.ID, Warnings: msgs})
		return outputs, fmt.Errorf("stage %s blocked: %v", st.ID, msgs)
	}
	r.emitEvent(Event{Type: EventStageCompleted, StageID: st.ID, WorkflowID: wf.ID, Warnings: msgs})
	r.notify("stage_completed", wf.ID, st)
	if r.bus != nil && len(outputs) > 0 {
		r.bus.ShareContext(st.RoleID, outputs)
	}

	if err := r.checkpointStage(wf.ID, st.ID, "after"); err != nil {
		r.logger.Log("[runner] checkpoint after %s failed: %v", st.ID, err)
	}

	return outputs, nil
}

// notify broadcasts a stage transition to every registered role. Publish
// failures only affect persistence and are logged, not fatal.
func (r *Runner) notify(msgType, workflowID string, st models.Stage) {
	if r.bus == nil {
		return
	}
	_, err := r.bus.Publish("coordinator", models.Broadcast, msgType, map[string]any{
		"workflow_id": workflowID,
		"stage_id":    st.ID,
		"role_id":     st.RoleID,
	})
	if err != nil {
		r.logger.Log("[runner] broadcast %s for %s failed: %v", msgType, st.ID, err)
	}
}

// triggeredFor returns the skill workflows whose trigger binds them to the
// stage and whose trigger condition, if any, holds against the current
// outputs.
func (r *Runner) triggeredFor(stageID string, outputs map[string]any) []*models.SkillWorkflow {
	var fired []*models.SkillWorkflow
	for _, sw := range r.skills {
		if sw.Trigger == nil || sw.Trigger.StageID != stageID {
			continue
		}
		if sw.Trigger.Condition != "" && !skill.EvalCondition(sw.Trigger.Condition, outputs) {
			continue
		}
		fired = append(fired, sw)
	}
	return fired
}

// checkpointStage takes a bracketing checkpoint if configured. Checkpoint
// failures are reported but never fail the stage.
func (r *Runner) checkpointStage(workflowID, stageID, phase string) error {
	if !r.bracketCheckpoints || r.checkpoints == nil {
		return nil
	}
	cp, err := r.checkpoints.Create(checkpoint.CreateOptions{
		WorkflowID:  workflowID,
		State:       r.machine.State(),
		Name:        fmt.Sprintf("%s-%s", phase, stageID),
		Description: fmt.Sprintf("automatic checkpoint %s stage %s", phase, stageID),
		StageID:     stageID,
	})
	if err != nil {
		return err
	}
	r.emitEvent(Event{Type: EventCheckpointCreated, StageID: stageID, WorkflowID: workflowID, Message: cp.ID})
	return nil
}

// stagesInOrder returns the workflow's stages sorted by their order field.
func stagesInOrder(wf *models.WorkflowDefinition) []models.Stage {
	stages := make([]models.Stage, len(wf.Stages))
	copy(stages, wf.Stages)
	sort.SliceStable(stages, func(i, j int) bool { return stages[i].Order < stages[j].Order })
	return stages
}

// stageDeps resolves a stage's scheduling dependencies. Explicit
// prerequisites win; a stage without any implicitly follows the previous
// stage in order, keeping the default sequential flow.
func stageDeps(wf *models.WorkflowDefinition, st models.Stage) []string {
	if len(st.Prerequisites) > 0 {
		deps := make([]string, len(st.Prerequisites))
		copy(deps, st.Prerequisites)
		return deps
	}

	var prev *models.Stage
	for i := range wf.Stages {
		candidate := &wf.Stages[i]
		if candidate.ID == st.ID || candidate.Order >= st.Order {
			continue
		}
		if prev == nil || candidate.Order > prev.Order {
			prev = candidate
		}
	}
	if prev == nil {
		return nil
	}
	return []string{prev.ID}
}

// UnitsFromTasks converts a task decomposition into coordinator units, with
// run supplying each task's work keyed by task ID.
func UnitsFromTasks(decomp *models.TaskDecomposition, run func(ctx context.Context, task models.Task) (map[string]any, error)) []Unit {
	byID := make(map[string]models.Task, len(decomp.Tasks))
	for _, t := range decomp.Tasks {
		byID[t.ID] = t
	}

	units := make([]Unit, 0, len(decomp.Tasks))
	for _, id := range decomp.ExecutionOrder {
		task := byID[id]
		units = append(units, Unit{
			ID:   task.ID,
			Deps: task.Dependencies,
			Run: func(ctx context.Context) (map[string]any, error) {
				return run(ctx, task)
			},
		})
	}
	return units
}
