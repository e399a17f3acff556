package main

import (
	"os"

	"github.com/spf13/cobra"
)

var flagWorkflow string

var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "Workflow orchestration engine",
	Long: `Conductor runs role-based workflows through staged lifecycles.

Each workflow is an ordered set of stages guarded by prerequisites,
quality gates, and required outputs. Stages can auto-fire skill
workflows: dependency graphs of externally-executed units of work with
retries, branches, and loops. Execution state is checkpointed so runs
can be inspected and restored.

Definitions are YAML documents in the configured definitions directory
(default .conductor/workflows).`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagWorkflow, "workflow", "w", "", "Workflow ID (defaults to the only loaded workflow)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(checkpointCmd)
	rootCmd.AddCommand(versionCmd)
}
