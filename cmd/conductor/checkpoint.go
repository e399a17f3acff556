package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mbright/conductor/internal/checkpoint"
)

var (
	checkpointName        string
	checkpointDescription string
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Manage execution checkpoints",
	Long: `Create, list, restore, and delete checkpoints.

A checkpoint is an immutable snapshot of a workflow's execution state,
stored under the state directory namespaced by workflow ID.`,
}

var checkpointCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Snapshot the current execution state",
	RunE:  runCheckpointCreate,
}

var checkpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List checkpoints, most recent first",
	RunE:  runCheckpointList,
}

var checkpointRestoreCmd = &cobra.Command{
	Use:   "restore <checkpoint-id>",
	Short: "Restore execution state from a checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckpointRestore,
}

var checkpointDeleteCmd = &cobra.Command{
	Use:   "delete <checkpoint-id>",
	Short: "Delete a checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckpointDelete,
}

func init() {
	checkpointCreateCmd.Flags().StringVar(&checkpointName, "name", "", "Checkpoint name")
	checkpointCreateCmd.Flags().StringVar(&checkpointDescription, "description", "", "Why the checkpoint was taken")

	checkpointCmd.AddCommand(checkpointCreateCmd)
	checkpointCmd.AddCommand(checkpointListCmd)
	checkpointCmd.AddCommand(checkpointRestoreCmd)
	checkpointCmd.AddCommand(checkpointDeleteCmd)
}

func runCheckpointCreate(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	wf, err := env.selectWorkflow()
	if err != nil {
		return err
	}

	state, err := env.checkpoints.LoadState(wf.ID)
	if err != nil {
		return fmt.Errorf("load execution state: %w", err)
	}
	if state == nil {
		return fmt.Errorf("workflow %s has no execution state to snapshot", wf.ID)
	}

	cp, err := env.checkpoints.Create(checkpoint.CreateOptions{
		WorkflowID:  wf.ID,
		State:       state,
		Name:        checkpointName,
		Description: checkpointDescription,
		StageID:     state.CurrentStage,
	})
	if err != nil {
		return fmt.Errorf("create checkpoint: %w", err)
	}

	fmt.Printf("%s checkpoint %s created\n", color.GreenString("✓"), cp.ID)
	return nil
}

func runCheckpointList(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	wf, err := env.selectWorkflow()
	if err != nil {
		return err
	}

	cps, err := env.checkpoints.List(wf.ID)
	if err != nil {
		return fmt.Errorf("list checkpoints: %w", err)
	}
	if len(cps) == 0 {
		fmt.Printf("No checkpoints for workflow %s.\n", wf.ID)
		return nil
	}

	fmt.Printf("Checkpoints for %s:\n", color.CyanString(wf.ID))
	for _, cp := range cps {
		name := cp.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Printf("  %s  %s  %s", cp.ID, cp.CreatedAt.Format(time.RFC3339), name)
		if cp.StageID != "" {
			fmt.Printf("  [stage %s]", cp.StageID)
		}
		fmt.Println()
	}
	return nil
}

func runCheckpointRestore(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	wf, err := env.selectWorkflow()
	if err != nil {
		return err
	}
	machine, err := env.newMachine(wf)
	if err != nil {
		return err
	}

	parts, err := env.checkpoints.Restore(args[0], machine)
	if err != nil {
		return fmt.Errorf("restore checkpoint: %w", err)
	}

	fmt.Printf("%s checkpoint %s restored", color.GreenString("✓"), args[0])
	if parts.State {
		state := machine.State()
		fmt.Printf(" (stage %s, %d completed)", state.CurrentStage, len(state.CompletedStages))
	}
	fmt.Println()
	return nil
}

func runCheckpointDelete(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}

	deleted, err := env.checkpoints.Delete(args[0])
	if err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	if !deleted {
		fmt.Printf("No checkpoint %s found.\n", args[0])
		return nil
	}
	fmt.Printf("%s checkpoint %s deleted\n", color.GreenString("✓"), args[0])
	return nil
}
