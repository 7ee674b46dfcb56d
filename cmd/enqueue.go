package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"queuectl/internal/queue"
)

type enqueueArg struct {
	ID         string `json:"id"`
	Command    string `json:"command"`
	Priority   int    `json:"priority"`
	MaxRetries int    `json:"max_retries"`
	RunAt      string `json:"run_at"`
}

// EnqueueCmd adds a new job to the queue from a JSON argument.
func EnqueueCmd(manager *queue.Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <job(json)>",
		Short: "adds the job to the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in enqueueArg
			if err := json.Unmarshal([]byte(args[0]), &in); err != nil {
				return fmt.Errorf("invalid job JSON: %w", err)
			}

			var runAt *time.Time
			if in.RunAt != "" {
				t, err := time.Parse(time.RFC3339, in.RunAt)
				if err != nil {
					return fmt.Errorf("invalid run_at (want ISO-8601 UTC): %w", err)
				}
				runAt = &t
			}

			job, err := manager.Enqueue(cmd.Context(), queue.EnqueueInput{
				ID:         in.ID,
				Command:    in.Command,
				Priority:   in.Priority,
				MaxRetries: in.MaxRetries,
				RunAt:      runAt,
			})
			if err != nil {
				return fmt.Errorf("failed to enqueue job: %w", err)
			}
			fmt.Printf("Job %s enqueued.\n", job.ID)
			return nil
		},
	}
}
