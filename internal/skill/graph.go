// Package skill executes skill workflows: directed acyclic graphs of steps
// honoring dependencies, guard conditions, branches, and loops. The unit of
// work behind each step is invoked through the Executor contract; the
// engine never knows how a skill is implemented.
package skill

import (
	"fmt"
	"strings"

	"github.com/mbright/conductor/pkg/models"
)

// CycleError indicates the step graph contains a circular dependency.
// Steps lists the steps on the detected cycle.
type CycleError struct {
	// WorkflowID is the offending workflow.
	WorkflowID string
	// Steps lists step IDs on the detected cycle.
	Steps []string
}

// Error names the workflow and the steps on the cycle.
func (e *CycleError) Error() string {
	return fmt.Sprintf("skill workflow %s has a dependency cycle through steps: %s",
		e.WorkflowID, strings.Join(e.Steps, " -> "))
}

// Validate checks a skill workflow once at load time: step IDs are unique,
// every depends_on, branch, and fallback reference resolves, steps carry a
// skill or a dynamic selector, and the dependency graph is acyclic.
func Validate(wf *models.SkillWorkflow) error {
	if wf.ID == "" {
		return fmt.Errorf("skill workflow has no id")
	}
	if len(wf.Steps) == 0 {
		return fmt.Errorf("skill workflow %s has no steps", wf.ID)
	}

	steps := make(map[string]*models.SkillStep, len(wf.Steps))
	for i := range wf.Steps {
		step := &wf.Steps[i]
		if step.ID == "" {
			return fmt.Errorf("skill workflow %s has a step with no id", wf.ID)
		}
		if _, dup := steps[step.ID]; dup {
			return fmt.Errorf("skill workflow %s has duplicate step id %s", wf.ID, step.ID)
		}
		steps[step.ID] = step
	}

	for _, step := range wf.Steps {
		if step.SkillID == "" && step.Dynamic == nil {
			return fmt.Errorf("step %s in workflow %s has neither a skill id nor a dynamic selector", step.ID, wf.ID)
		}
		if step.Dynamic != nil && step.Dynamic.Selector == "" {
			return fmt.Errorf("step %s in workflow %s has a dynamic selector with no strategy", step.ID, wf.ID)
		}
		for _, dep := range step.DependsOn {
			if _, ok := steps[dep]; !ok {
				return fmt.Errorf("step %s in workflow %s depends on unknown step %s", step.ID, wf.ID, dep)
			}
		}
		for _, br := range step.Branches {
			if br.Condition == "" {
				return fmt.Errorf("step %s in workflow %s has a branch with no condition", step.ID, wf.ID)
			}
			if _, ok := steps[br.TargetStepID]; !ok {
				return fmt.Errorf("step %s in workflow %s branches to unknown step %s", step.ID, wf.ID, br.TargetStepID)
			}
			if br.ElseStepID != "" {
				if _, ok := steps[br.ElseStepID]; !ok {
					return fmt.Errorf("step %s in workflow %s branches to unknown else step %s", step.ID, wf.ID, br.ElseStepID)
				}
			}
		}
		if step.Loop != nil {
			if step.Loop.Kind != models.LoopWhile && step.Loop.Kind != models.LoopForEach {
				return fmt.Errorf("step %s in workflow %s has unknown loop kind %q", step.ID, wf.ID, step.Loop.Kind)
			}
			if step.Loop.MaxIterations <= 0 {
				return fmt.Errorf("step %s in workflow %s has a loop without max_iterations", step.ID, wf.ID)
			}
		}
	}

	if cycle := findCycle(wf); cycle != nil {
		return &CycleError{WorkflowID: wf.ID, Steps: cycle}
	}
	return nil
}

// findCycle runs a depth-first search with coloring and returns the steps
// on a back edge, or nil when the graph is acyclic.
func findCycle(wf *models.SkillWorkflow) []string {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int, len(wf.Steps))
	deps := make(map[string][]string, len(wf.Steps))
	for _, step := range wf.Steps {
		deps[step.ID] = step.DependsOn
	}

	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1
		stack = append(stack, id)

		for _, dep := range deps[id] {
			switch colors[dep] {
			case 1:
				// Back edge: extract the cycle portion of the stack.
				for i, s := range stack {
					if s == dep {
						cycle = append([]string{}, stack[i:]...)
						break
					}
				}
				return true
			case 0:
				if visit(dep) {
					return true
				}
			}
		}

		stack = stack[:len(stack)-1]
		colors[id] = 2
		return false
	}

	for _, step := range wf.Steps {
		if colors[step.ID] == 0 {
			if visit(step.ID) {
				return cycle
			}
		}
	}
	return nil
}

// TopologicalOrder returns the step IDs in an order placing every step
// after all of its dependencies. Returns a CycleError for cyclic graphs.
func TopologicalOrder(wf *models.SkillWorkflow) ([]string, error) {
	if cycle := findCycle(wf); cycle != nil {
		return nil, &CycleError{WorkflowID: wf.ID, Steps: cycle}
	}

	deps := make(map[string][]string, len(wf.Steps))
	for _, step := range wf.Steps {
		deps[step.ID] = step.DependsOn
	}

	visited := make(map[string]bool, len(wf.Steps))
	var order []string

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, dep := range deps[id] {
			visit(dep)
		}
		order = append(order, id)
	}

	// Iterate in declaration order so the result is deterministic.
	for _, step := range wf.Steps {
		visit(step.ID)
	}
	return order, nil
}

// branchGated returns the set of step IDs reachable only through a branch
// decision. Gated steps run when selected, or are skipped when the branch
// goes the other way.
func branchGated(wf *models.SkillWorkflow) map[string]bool {
	gated := make(map[string]bool)
	for _, step := range wf.Steps {
		for _, br := range step.Branches {
			gated[br.TargetStepID] = true
			if br.ElseStepID != "" {
				gated[br.ElseStepID] = true
			}
		}
	}
	return gated
}
