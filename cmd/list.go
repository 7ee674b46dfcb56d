package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"queuectl/internal/model"
	"queuectl/internal/queue"
)

// ListCmd lists jobs, optionally filtered by --state.
func ListCmd(manager *queue.Manager) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs by state",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("state")

			var statePtr *model.State
			if raw != "" {
				s := model.State(raw)
				statePtr = &s
			}

			jobs, err := manager.ListJobs(cmd.Context(), statePtr)
			if err != nil {
				return fmt.Errorf("failed to list jobs: %w", err)
			}

			if len(jobs) == 0 {
				fmt.Println("No jobs found.")
				return nil
			}

			fmt.Println("ID\t\tSTATE\t\tPRIORITY\tATTEMPTS\tCOMMAND")
			for _, job := range jobs {
				fmt.Printf("%s\t%s\t\t%d\t\t%d\t\t%s\n", job.ID, job.State, job.Priority, job.Attempts, job.Command)
			}
			return nil
		},
	}
	cmd.Flags().String("state", "", "Filter jobs by state (pending, processing, completed, failed, dead)")
	return cmd
}

// StatusCmd prints a summary of job state counts.
func StatusCmd(manager *queue.Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show a summary of job states",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := manager.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get stats: %w", err)
			}

			fmt.Println("--- Job Queue Status ---")
			for _, state := range []model.State{
				model.StatePending, model.StateProcessing, model.StateCompleted, model.StateFailed, model.StateDead,
			} {
				fmt.Printf("%s:\t%d\n", state, stats[state])
			}
			return nil
		},
	}
}
