package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mbright/conductor/internal/bus"
	"github.com/mbright/conductor/internal/exec"
	"github.com/mbright/conductor/internal/orchestrator"
	"github.com/mbright/conductor/internal/retry"
	"github.com/mbright/conductor/internal/skill"
)

var runNoCheckpoints bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a full workflow",
	Long: `Run every stage of a workflow in dependency order.

Stages with explicit prerequisites wait on them; stages without follow
their declared order. Skill workflows attached to a stage fire
automatically, executing their steps through the skill executables in
.conductor/skills. Each stage is bracketed with checkpoints unless
disabled.

Examples:
  conductor run                 # Run the only loaded workflow
  conductor run -w feature      # Run a specific workflow
  conductor run --no-checkpoints`,
	RunE: runWorkflow,
}

func init() {
	runCmd.Flags().BoolVar(&runNoCheckpoints, "no-checkpoints", false, "Disable checkpoint bracketing around stages")
}

func runWorkflow(cmd *cobra.Command, args []string) error {
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

	recordStore, err := env.openRecords()
	if err != nil {
		return err
	}
	defer recordStore.Close()

	executor := exec.NewSkillExecutor(filepath.Join(".conductor", "skills"))
	executor.SetWorkDir(env.cfg.Storage.WorkspaceDir)

	engine := skill.NewEngine(executor, retry.NewRunner(recordStore))
	engine.SetDefaultPolicy(env.defaultRetryPolicy())

	logger, err := orchestrator.NewDebugLogger(env.cfg.Orchestrator.DebugLog)
	if err != nil {
		return err
	}
	defer logger.Close()

	messageBus := bus.New()
	if env.cfg.Bus.Persist {
		if err := messageBus.EnablePersistence(env.cfg.Bus.MessageDir); err != nil {
			return fmt.Errorf("enable bus persistence: %w", err)
		}
	}
	defer messageBus.Close()

	coord := orchestrator.NewCoordinator(env.cfg.Orchestrator.MaxParallel)
	runner := orchestrator.NewRunner(coord, machine, engine)
	runner.SetLogger(logger)
	runner.SetSkillWorkflows(env.defs.SkillList())
	runner.SetBus(messageBus)
	if env.cfg.Orchestrator.CheckpointStages && !runNoCheckpoints {
		runner.SetCheckpointStore(env.checkpoints, true)
	}
	runner.SetEventSink(printEvent)

	fmt.Printf("Running workflow %s (%d stages)\n\n", color.CyanString(wf.ID), len(wf.Stages))
	start := time.Now()

	report, err := runner.RunWorkflow(cmd.Context(), wf, nil)
	if err != nil {
		return fmt.Errorf("run workflow: %w", err)
	}

	fmt.Println()
	for _, st := range wf.Stages {
		sr := report.Stages[st.ID]
		if sr == nil {
			continue
		}
		switch {
		case sr.Completed:
			fmt.Printf("%s %s\n", color.GreenString("✓"), st.ID)
		case sr.Skipped:
			fmt.Printf("%s %s (skipped)\n", color.YellowString("-"), st.ID)
		default:
			fmt.Printf("%s %s: %v\n", color.RedString("✗"), st.ID, sr.Err)
		}
	}

	fmt.Printf("\nFinished in %s\n", time.Since(start).Round(time.Millisecond))
	if !report.Completed {
		return fmt.Errorf("workflow %s did not complete", wf.ID)
	}
	return nil
}

// printEvent renders coordinator events as they happen.
func printEvent(ev orchestrator.Event) {
	switch ev.Type {
	case orchestrator.EventStageStarted:
		fmt.Printf("%s stage %s (%s)\n", color.CyanString("→"), ev.StageID, ev.RoleID)
	case orchestrator.EventStageCompleted:
		fmt.Printf("%s stage %s completed\n", color.GreenString("✓"), ev.StageID)
		for _, w := range ev.Warnings {
			fmt.Printf("  %s %s\n", color.YellowString("⚠"), w)
		}
	case orchestrator.EventStageBlocked:
		fmt.Printf("%s stage %s blocked\n", color.RedString("✗"), ev.StageID)
		for _, w := range ev.Warnings {
			fmt.Printf("  %s\n", w)
		}
	case orchestrator.EventSkillWorkflowStarted:
		fmt.Printf("  %s skill workflow %s\n", color.CyanString("•"), ev.Message)
	case orchestrator.EventSkillWorkflowDone:
		if ev.Error != nil {
			fmt.Printf("  %s skill workflow %s: %v\n", color.RedString("✗"), ev.Message, ev.Error)
		}
	}
}
