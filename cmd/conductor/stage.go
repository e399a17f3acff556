package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var startRole string

var startCmd = &cobra.Command{
	Use:   "start <stage-id>",
	Short: "Start a workflow stage",
	Long: `Transition a stage to in_progress.

Fails if any prerequisite stage has not completed. The role defaults to
the stage's assigned role.`,
	Args: cobra.ExactArgs(1),
	RunE: runStart,
}

var completeCmd = &cobra.Command{
	Use:   "complete <stage-id>",
	Short: "Complete a workflow stage",
	Long: `Evaluate a stage's quality gates and required outputs.

Strict gate failures and missing required outputs block completion and
leave the stage blocked. Non-strict gate failures are reported as
warnings and do not block.`,
	Args: cobra.ExactArgs(1),
	RunE: runComplete,
}

func init() {
	startCmd.Flags().StringVar(&startRole, "role", "", "Role executing the stage (defaults to the stage's assigned role)")
}

func runStart(cmd *cobra.Command, args []string) error {
	stageID := args[0]

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

	role := startRole
	if role == "" {
		st := wf.StageByID(stageID)
		if st == nil {
			return fmt.Errorf("workflow %s has no stage %q", wf.ID, stageID)
		}
		role = st.RoleID
	}

	if err := machine.Start(stageID, role); err != nil {
		return err
	}

	fmt.Printf("%s stage %s started (%s)\n", color.GreenString("✓"), stageID, role)
	return nil
}

func runComplete(cmd *cobra.Command, args []string) error {
	stageID := args[0]

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

	ok, msgs, err := machine.Complete(stageID)
	if err != nil {
		return err
	}

	if ok {
		fmt.Printf("%s stage %s completed\n", color.GreenString("✓"), stageID)
		for _, w := range msgs {
			fmt.Printf("  %s %s\n", color.YellowString("⚠"), w)
		}
		return nil
	}

	fmt.Printf("%s stage %s blocked\n", color.RedString("✗"), stageID)
	for _, m := range msgs {
		fmt.Printf("  %s\n", m)
	}
	return fmt.Errorf("stage %s did not complete", stageID)
}
