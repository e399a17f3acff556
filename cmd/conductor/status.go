package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mbright/conductor/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show workflow execution state",
	Long: `Display the current execution state of a workflow.

Shows:
  - Current stage and role
  - Per-stage statuses
  - Recent skill execution records and success rates`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
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
		fmt.Printf("Workflow %s has not been started. Run 'conductor run' or 'conductor start <stage>'.\n", wf.ID)
		return nil
	}

	fmt.Printf("Workflow: %s\n", color.CyanString(wf.ID))
	if state.CurrentStage != "" {
		fmt.Printf("  Current stage: %s (%s)\n", state.CurrentStage, state.CurrentRole)
	}
	fmt.Printf("  Completed: %d / %d stages\n\n", len(state.CompletedStages), len(wf.Stages))

	fmt.Println("Stages:")
	for _, st := range wf.Stages {
		status := state.StageStatuses[st.ID]
		if status == "" {
			status = models.StagePending
		}
		fmt.Printf("  %s %s: %s\n", statusSymbol(status), st.ID, status)
	}

	return displayRecords(env)
}

// statusSymbol maps a stage status to a colored marker.
func statusSymbol(s models.StageStatus) string {
	switch s {
	case models.StageCompleted:
		return color.GreenString("✓")
	case models.StageInProgress:
		return color.CyanString("→")
	case models.StageBlocked:
		return color.RedString("✗")
	default:
		return " "
	}
}

// displayRecords prints recent execution records and per-skill analytics.
func displayRecords(env *environment) error {
	if _, err := os.Stat(env.cfg.Storage.RecordsDB); os.IsNotExist(err) {
		return nil
	}

	store, err := env.openRecords()
	if err != nil {
		return err
	}
	defer store.Close()

	recent, err := store.Recent(10)
	if err != nil {
		return fmt.Errorf("recent records: %w", err)
	}
	if len(recent) == 0 {
		return nil
	}

	fmt.Println("\nRecent executions:")
	skills := make(map[string]bool)
	for _, rec := range recent {
		skills[rec.SkillID] = true
		mark := color.GreenString("✓")
		detail := ""
		if rec.Status == models.RecordFailure {
			mark = color.RedString("✗")
			detail = fmt.Sprintf(" [%s] %s", rec.ErrorKind, rec.ErrorMessage)
		}
		fmt.Printf("  %s %s (%s)%s\n", mark, rec.SkillID, rec.Duration.Round(time.Millisecond), detail)
	}

	ids := make([]string, 0, len(skills))
	for id := range skills {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Println("\nSkill success rates:")
	for _, id := range ids {
		rate, err := store.SuccessRate(id)
		if err != nil {
			continue
		}
		avg, err := store.AverageDuration(id)
		if err != nil {
			continue
		}
		fmt.Printf("  %s: %.0f%% (avg %s)\n", id, rate*100, avg.Round(time.Millisecond))
	}

	return nil
}
