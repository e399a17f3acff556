package decompose

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mbright/conductor/pkg/models"
)

// CircularDependencyError indicates the task graph is not a DAG.
// Tasks lists the tasks left unordered after Kahn's algorithm drained.
type CircularDependencyError struct {
	Tasks []string
}

// Error names the tasks involved in the cycle.
func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency among tasks: %s", strings.Join(e.Tasks, ", "))
}

// BuildOrder computes a topological execution order via Kahn's algorithm.
// The ready queue holds tasks with no unmet dependency, sorted by
// descending priority; the sort is stable so insertion order breaks ties.
// A graph that cannot be fully ordered yields a CircularDependencyError.
func BuildOrder(tasks []models.Task) ([]string, error) {
	byID := make(map[string]*models.Task, len(tasks))
	for i := range tasks {
		byID[tasks[i].ID] = &tasks[i]
	}

	inDegree := make(map[string]int, len(tasks))
	dependents := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		inDegree[t.ID] = len(t.Dependencies)
		for _, dep := range t.Dependencies {
			if _, ok := byID[dep]; !ok {
				return nil, fmt.Errorf("task %s depends on unknown task %s", t.ID, dep)
			}
			dependents[dep] = append(dependents[dep], t.ID)
		}
	}

	// Seed with zero-dependency tasks in declaration order.
	var ready []string
	for _, t := range tasks {
		if inDegree[t.ID] == 0 {
			ready = append(ready, t.ID)
		}
	}
	sortByPriority(ready, byID)

	order := make([]string, 0, len(tasks))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		resort := false
		for _, dep := range dependents[id] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = append(ready, dep)
				resort = true
			}
		}
		if resort {
			sortByPriority(ready, byID)
		}
	}

	if len(order) != len(tasks) {
		ordered := make(map[string]bool, len(order))
		for _, id := range order {
			ordered[id] = true
		}
		var leftover []string
		for _, t := range tasks {
			if !ordered[t.ID] {
				leftover = append(leftover, t.ID)
			}
		}
		return nil, &CircularDependencyError{Tasks: leftover}
	}

	return order, nil
}

// sortByPriority stably sorts ready task IDs by descending priority.
func sortByPriority(ids []string, byID map[string]*models.Task) {
	sort.SliceStable(ids, func(i, j int) bool {
		return byID[ids[i]].Priority > byID[ids[j]].Priority
	})
}
