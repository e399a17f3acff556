package skill

import (
	"context"
	"fmt"
	"time"

	"github.com/mbright/conductor/internal/retry"
	"github.com/mbright/conductor/pkg/models"
)

// Engine executes skill workflows against an Executor. One Engine may run
// many workflows; per-run state lives in the Execution.
type Engine struct {
	executor Executor
	runner   *retry.Runner
	resolver Resolver
	// defaultPolicy applies to steps that enable retry without their own
	// retry fields, and to workflows with retry_failed_steps.
	defaultPolicy retry.Policy
	logf          func(format string, args ...interface{})
}

// NewEngine creates an engine invoking skills through executor and
// wrapping attempts with the retry runner.
func NewEngine(executor Executor, runner *retry.Runner) *Engine {
	return &Engine{
		executor: executor,
		runner:   runner,
		defaultPolicy: retry.Policy{
			Strategy:   retry.StrategyExponential,
			BaseDelay:  time.Second,
			MaxDelay:   time.Minute,
			MaxRetries: 3,
		},
		logf: func(format string, args ...interface{}) {},
	}
}

// SetResolver sets the dynamic skill resolver.
func (e *Engine) SetResolver(r Resolver) {
	e.resolver = r
}

// SetDefaultPolicy replaces the default retry policy.
func (e *Engine) SetDefaultPolicy(p retry.Policy) {
	e.defaultPolicy = p
}

// SetLogger sets the debug logging function.
func (e *Engine) SetLogger(fn func(format string, args ...interface{})) {
	if fn != nil {
		e.logf = fn
	}
}

// Execute runs a skill workflow with the given initial inputs.
func (e *Engine) Execute(ctx context.Context, wf *models.SkillWorkflow, inputs map[string]any) (*Execution, error) {
	return e.execute(ctx, wf, inputs, "", "")
}

// ExecuteInStage runs a skill workflow recording stage and role context on
// every execution record.
func (e *Engine) ExecuteInStage(ctx context.Context, wf *models.SkillWorkflow, inputs map[string]any, stageID, roleID string) (*Execution, error) {
	return e.execute(ctx, wf, inputs, stageID, roleID)
}

// stepResult carries one finished step back to the scheduling loop.
type stepResult struct {
	id  string
	out map[string]any
	err error
}

func (e *Engine) execute(ctx context.Context, wf *models.SkillWorkflow, inputs map[string]any, stageID, roleID string) (*Execution, error) {
	if err := Validate(wf); err != nil {
		return nil, err
	}

	if wf.Config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wf.Config.Timeout)
		defer cancel()
	}
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	exec := &Execution{
		WorkflowID:   wf.ID,
		Status:       RunRunning,
		StepStatuses: make(map[string]models.StepStatus, len(wf.Steps)),
		StepOutputs:  make(map[string]map[string]any),
		Outputs:      make(map[string]any, len(inputs)),
		StartedAt:    time.Now(),
	}
	for _, step := range wf.Steps {
		exec.StepStatuses[step.ID] = models.StepPending
	}
	for k, v := range inputs {
		exec.Outputs[k] = v
	}

	gated := branchGated(wf)
	unlocked := make(map[string]bool)
	// tainted marks steps that failed or were starved by a failure;
	// skips caused by guards or branch decisions are not tainted.
	tainted := make(map[string]bool)

	maxParallel := wf.Config.MaxParallel
	if maxParallel <= 0 {
		maxParallel = len(wf.Steps)
	}

	resultCh := make(chan stepResult, len(wf.Steps))
	running := 0
	aborted := false

	for {
		// Launch every ready step, and cascade skips for steps starved
		// by a failed dependency, until nothing changes.
		for progress := true; progress; {
			progress = false
			for i := range wf.Steps {
				step := &wf.Steps[i]
				if exec.StepStatuses[step.ID] != models.StepPending {
					continue
				}

				satisfied, starved := e.depState(step, exec, tainted)
				if starved {
					e.logf("[skill] step %s skipped: dependency failed", step.ID)
					exec.StepStatuses[step.ID] = models.StepSkipped
					tainted[step.ID] = true
					progress = true
					continue
				}
				if !satisfied {
					continue
				}
				if gated[step.ID] && !unlocked[step.ID] {
					// Waits for a branch decision.
					continue
				}
				if step.Condition != "" && !EvalCondition(step.Condition, exec.Outputs) {
					e.logf("[skill] step %s skipped: condition %q is false", step.ID, step.Condition)
					exec.StepStatuses[step.ID] = models.StepSkipped
					progress = true
					continue
				}
				if aborted || running >= maxParallel {
					continue
				}

				exec.StepStatuses[step.ID] = models.StepRunning
				running++
				e.logf("[skill] step %s started", step.ID)
				outputs := snapshot(exec.Outputs)
				go func(st models.SkillStep) {
					out, err := e.runStep(runCtx, wf, &st, outputs, stageID, roleID)
					resultCh <- stepResult{id: st.ID, out: out, err: err}
				}(*step)
			}
		}

		if running == 0 {
			break
		}

		res := <-resultCh
		running--

		if res.err != nil {
			e.logf("[skill] step %s failed: %v", res.id, res.err)
			exec.StepStatuses[res.id] = models.StepFailed
			tainted[res.id] = true
			exec.Errors = append(exec.Errors, fmt.Sprintf("step %s: %v", res.id, res.err))

			step := wf.StepByID(res.id)
			if wf.Config.FailFast && step != nil && step.Config.Required && !aborted {
				e.logf("[skill] fail_fast: aborting run after step %s", res.id)
				aborted = true
				cancelRun()
			}
			continue
		}

		e.logf("[skill] step %s completed", res.id)
		exec.StepStatuses[res.id] = models.StepCompleted
		exec.StepOutputs[res.id] = res.out
		for k, v := range res.out {
			exec.Outputs[k] = v
		}

		if step := wf.StepByID(res.id); step != nil {
			e.applyBranches(step, exec, unlocked)
		}
	}

	// Steps still pending were branch alternatives that never got selected,
	// or dependents of such steps. They are legitimately skipped.
	for id, status := range exec.StepStatuses {
		if status == models.StepPending {
			exec.StepStatuses[id] = models.StepSkipped
		}
	}

	exec.FinishedAt = time.Now()
	exec.Status = e.terminalStatus(wf, exec, tainted, aborted)
	return exec, nil
}

// depState reports whether a step's dependencies are all satisfied
// (completed or skipped), and whether the step is starved by a failed or
// failure-skipped dependency.
func (e *Engine) depState(step *models.SkillStep, exec *Execution, tainted map[string]bool) (satisfied, starved bool) {
	satisfied = true
	for _, dep := range step.DependsOn {
		switch exec.StepStatuses[dep] {
		case models.StepCompleted:
		case models.StepSkipped:
			if tainted[dep] {
				return false, true
			}
		case models.StepFailed:
			return false, true
		default:
			satisfied = false
		}
	}
	return satisfied, false
}

// applyBranches evaluates a completed step's branches: the selected side
// is unlocked, the other side is skipped.
func (e *Engine) applyBranches(step *models.SkillStep, exec *Execution, unlocked map[string]bool) {
	for _, br := range step.Branches {
		taken, notTaken := br.TargetStepID, br.ElseStepID
		if !EvalCondition(br.Condition, exec.Outputs) {
			taken, notTaken = br.ElseStepID, br.TargetStepID
		}
		if taken != "" {
			e.logf("[skill] branch on %s selects step %s", step.ID, taken)
			unlocked[taken] = true
		}
		if notTaken != "" && exec.StepStatuses[notTaken] == models.StepPending {
			e.logf("[skill] branch on %s skips step %s", step.ID, notTaken)
			exec.StepStatuses[notTaken] = models.StepSkipped
		}
	}
}

// terminalStatus computes the run status: completed iff every required
// step completed or was skipped for a legitimate reason.
func (e *Engine) terminalStatus(wf *models.SkillWorkflow, exec *Execution, tainted map[string]bool, aborted bool) RunStatus {
	if aborted {
		return RunFailed
	}
	for _, step := range wf.Steps {
		if !step.Config.Required {
			continue
		}
		switch exec.StepStatuses[step.ID] {
		case models.StepFailed:
			return RunFailed
		case models.StepSkipped:
			if tainted[step.ID] {
				return RunFailed
			}
		}
	}
	return RunCompleted
}

// runStep resolves the skill, then executes the step body once or as a
// loop, wrapped in retry policy.
func (e *Engine) runStep(ctx context.Context, wf *models.SkillWorkflow, step *models.SkillStep, outputs map[string]any, stageID, roleID string) (map[string]any, error) {
	skillID := step.SkillID
	if step.Dynamic != nil {
		resolved, err := e.resolveSkill(ctx, *step.Dynamic, outputs)
		if err != nil {
			return nil, err
		}
		skillID = resolved
	}

	policy := e.policyFor(wf, step)
	if step.Loop != nil {
		return e.runLoop(ctx, step, skillID, outputs, policy, stageID, roleID)
	}
	return e.invoke(ctx, skillID, step, outputs, policy, stageID, roleID)
}

// resolveSkill runs the dynamic resolver, falling back to the configured
// fallback skill on resolution failure.
func (e *Engine) resolveSkill(ctx context.Context, sel models.DynamicSkill, outputs map[string]any) (string, error) {
	if e.resolver != nil {
		id, err := e.resolver.Resolve(ctx, sel, outputs)
		if err == nil && id != "" {
			return id, nil
		}
		if err != nil {
			e.logf("[skill] dynamic resolution failed (%v), using fallback %q", err, sel.FallbackSkillID)
		}
	}
	if sel.FallbackSkillID != "" {
		return sel.FallbackSkillID, nil
	}
	return "", fmt.Errorf("dynamic skill selector %q resolved nothing and has no fallback", sel.Selector)
}

// policyFor returns the retry policy for a step, or nil when the step
// does not retry.
func (e *Engine) policyFor(wf *models.SkillWorkflow, step *models.SkillStep) *retry.Policy {
	if !step.Config.RetryOnFailure && !wf.Config.RetryFailedSteps {
		return nil
	}
	p := e.defaultPolicy
	if step.Config.MaxRetries > 0 {
		p.MaxRetries = step.Config.MaxRetries
	}
	return &p
}

// invoke performs one retry-wrapped invocation of a skill.
func (e *Engine) invoke(ctx context.Context, skillID string, step *models.SkillStep, input map[string]any, policy *retry.Policy, stageID, roleID string) (map[string]any, error) {
	return e.runner.Do(ctx, retry.Request{
		SkillID: skillID,
		Input:   input,
		StageID: stageID,
		RoleID:  roleID,
		Policy:  policy,
		Attempt: func(ctx context.Context) (map[string]any, error) {
			if step.Config.Timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, step.Config.Timeout)
				defer cancel()
			}
			return e.executor.Invoke(ctx, skillID, input)
		},
	})
}

// runLoop executes a step body repeatedly: once per item for for-each
// loops, or while the condition holds for while loops, bounded by
// max_iterations.
func (e *Engine) runLoop(ctx context.Context, step *models.SkillStep, skillID string, outputs map[string]any, policy *retry.Policy, stageID, roleID string) (map[string]any, error) {
	loop := step.Loop
	var results []any
	var iterErrors []string
	iterations := 0

	local := snapshot(outputs)

	runOnce := func(input map[string]any) error {
		out, err := e.invoke(ctx, skillID, step, input, policy, stageID, roleID)
		iterations++
		if err != nil {
			iterErrors = append(iterErrors, err.Error())
			return err
		}
		results = append(results, out)
		for k, v := range out {
			local[k] = v
		}
		return nil
	}

	switch loop.Kind {
	case models.LoopForEach:
		items, _ := local[loop.ItemsKey].([]any)
		for i, item := range items {
			if i >= loop.MaxIterations {
				break
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			input := snapshot(local)
			input["item"] = item
			input["iteration"] = i
			if err := runOnce(input); err != nil && loop.BreakOnFailure {
				return loopOutput(iterations, results, iterErrors), err
			}
		}
	case models.LoopWhile:
		for iterations < loop.MaxIterations && EvalCondition(loop.Condition, local) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			input := snapshot(local)
			input["iteration"] = iterations
			if err := runOnce(input); err != nil && loop.BreakOnFailure {
				return loopOutput(iterations, results, iterErrors), err
			}
		}
	}

	return loopOutput(iterations, results, iterErrors), nil
}

// loopOutput packages loop results as a step output map.
func loopOutput(iterations int, results []any, errs []string) map[string]any {
	out := map[string]any{
		"iterations": iterations,
		"results":    results,
	}
	if len(errs) > 0 {
		out["iteration_errors"] = errs
	}
	return out
}

// snapshot copies an output map so concurrent steps never share one.
func snapshot(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
