package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mbright/conductor/internal/decompose"
)

var planCmd = &cobra.Command{
	Use:   "plan <goal>",
	Short: "Decompose a goal into an ordered task graph",
	Long: `Break a goal into tasks assigned to the workflow's roles and print
the resolved execution order.

Roles are drawn from the selected workflow's stages, in stage order.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	goal := strings.Join(args, " ")

	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	wf, err := env.selectWorkflow()
	if err != nil {
		return err
	}

	var roles []decompose.Role
	seen := make(map[string]bool)
	for _, st := range wf.Stages {
		if seen[st.RoleID] {
			continue
		}
		seen[st.RoleID] = true
		roles = append(roles, decompose.Role{ID: st.RoleID, Name: st.RoleID})
	}

	decomp, err := decompose.New(nil).Decompose(goal, roles)
	if err != nil {
		return fmt.Errorf("decompose goal: %w", err)
	}

	fmt.Printf("Goal: %s\n\nTasks:\n", color.CyanString(goal))
	byID := make(map[string]int, len(decomp.Tasks))
	for i, task := range decomp.Tasks {
		byID[task.ID] = i
	}
	for _, id := range decomp.ExecutionOrder {
		task := decomp.Tasks[byID[id]]
		deps := ""
		if len(task.Dependencies) > 0 {
			deps = fmt.Sprintf("  (after %s)", strings.Join(task.Dependencies, ", "))
		}
		fmt.Printf("  %s [%s]%s\n    %s\n", task.ID, task.RoleID, deps, task.Description)
	}

	fmt.Printf("\nExecution order: %s\n", strings.Join(decomp.ExecutionOrder, " → "))
	return nil
}
