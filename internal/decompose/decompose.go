// Package decompose turns a goal into a dependency graph of assignable
// tasks plus a valid execution order. The heuristic that proposes tasks
// and matches roles is pluggable; the ordering and validation logic here
// is what the orchestrator depends on.
package decompose

import (
	"fmt"

	"github.com/mbright/conductor/pkg/models"
)

// Role is a candidate assignee for decomposed tasks.
type Role struct {
	// ID is the unique role identifier.
	ID string `json:"id" yaml:"id"`
	// Name is the human-readable role name.
	Name string `json:"name" yaml:"name"`
	// Description is what the role is responsible for.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Planner proposes tasks for a goal. Implementations may use keyword
// heuristics, embeddings, or model calls; the decomposer only consumes
// the proposed task list.
type Planner interface {
	ProposeTasks(goal string, roles []Role) ([]models.Task, error)
}

// PlannerFunc adapts a function to the Planner interface.
type PlannerFunc func(goal string, roles []Role) ([]models.Task, error)

// ProposeTasks calls the function.
func (f PlannerFunc) ProposeTasks(goal string, roles []Role) ([]models.Task, error) {
	return f(goal, roles)
}

// SequentialPlanner is the built-in fallback planner: one task per role,
// in role order, each depending on the previous. Priorities descend with
// role order so earlier phases schedule first.
type SequentialPlanner struct{}

// ProposeTasks builds the sequential task chain.
func (SequentialPlanner) ProposeTasks(goal string, roles []Role) ([]models.Task, error) {
	if len(roles) == 0 {
		return nil, fmt.Errorf("no candidate roles for goal %q", goal)
	}

	tasks := make([]models.Task, 0, len(roles))
	for i, role := range roles {
		t := models.Task{
			ID:          fmt.Sprintf("task-%d", i+1),
			Description: fmt.Sprintf("%s: %s", role.Name, goal),
			RoleID:      role.ID,
			Priority:    len(roles) - i,
			Status:      models.TaskPending,
		}
		if i > 0 {
			t.Dependencies = []string{fmt.Sprintf("task-%d", i)}
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Decomposer builds validated task decompositions.
type Decomposer struct {
	planner Planner
}

// New creates a decomposer using the given planner. A nil planner falls
// back to the sequential planner.
func New(planner Planner) *Decomposer {
	if planner == nil {
		planner = SequentialPlanner{}
	}
	return &Decomposer{planner: planner}
}

// Decompose proposes tasks for the goal, resolves a priority-aware
// topological execution order, and validates the result.
func (d *Decomposer) Decompose(goal string, roles []Role) (*models.TaskDecomposition, error) {
	tasks, err := d.planner.ProposeTasks(goal, roles)
	if err != nil {
		return nil, fmt.Errorf("propose tasks: %w", err)
	}

	order, err := BuildOrder(tasks)
	if err != nil {
		return nil, err
	}

	deps := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		if len(t.Dependencies) > 0 {
			deps[t.ID] = append([]string{}, t.Dependencies...)
		}
	}

	decomp := &models.TaskDecomposition{
		Goal:           goal,
		Tasks:          tasks,
		ExecutionOrder: order,
		Dependencies:   deps,
	}
	if err := decomp.Validate(); err != nil {
		return nil, fmt.Errorf("invalid decomposition: %w", err)
	}
	return decomp, nil
}
