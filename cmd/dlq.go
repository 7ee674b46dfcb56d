package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"queuectl/internal/model"
	"queuectl/internal/queue"
)

// DlqCmd manages the dead-letter queue.
func DlqCmd(manager *queue.Manager) *cobra.Command {
	dlqCmd := &cobra.Command{
		Use:   "dlq",
		Short: "Manage the Dead Letter Queue (DLQ)",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all jobs in the DLQ",
		RunE: func(cmd *cobra.Command, args []string) error {
			dead := model.StateDead
			jobs, err := manager.ListJobs(cmd.Context(), &dead)
			if err != nil {
				return fmt.Errorf("failed to list DLQ jobs: %w", err)
			}

			if len(jobs) == 0 {
				fmt.Println("Dead Letter Queue is empty.")
				return nil
			}

			fmt.Println("ID\t\tCOMMAND\t\tATTEMPTS\tERROR")
			for _, job := range jobs {
				errMsg := ""
				if job.ErrorMessage != nil {
					errMsg = *job.ErrorMessage
				}
				fmt.Printf("%s\t%s\t\t%d\t\t%s\n", job.ID, job.Command, job.Attempts, errMsg)
			}
			return nil
		},
	}

	retryCmd := &cobra.Command{
		Use:   "retry [job-id]",
		Short: "Retry a specific job from the DLQ",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := args[0]
			if err := manager.RetryDLQJob(cmd.Context(), jobID); err != nil {
				return err
			}
			log.Printf("Job %s moved from DLQ to 'pending' state.", jobID)
			return nil
		},
	}

	dlqCmd.AddCommand(listCmd)
	dlqCmd.AddCommand(retryCmd)
	return dlqCmd
}
