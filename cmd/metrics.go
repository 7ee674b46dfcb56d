package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"queuectl/internal/queue"
)

// MetricsCmd prints event counts, mean completed-job duration, and the
// most recent events from the append-only metric log.
func MetricsCmd(manager *queue.Manager) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Show queue metrics and recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, _ := cmd.Flags().GetInt("recent")

			summary, err := manager.Metrics(cmd.Context(), n)
			if err != nil {
				return fmt.Errorf("failed to load metrics: %w", err)
			}

			fmt.Println("--- Event Counts ---")
			for eventType, count := range summary.EventCounts {
				fmt.Printf("%s:\t%d\n", eventType, count)
			}
			fmt.Printf("\nAverage completed duration: %.1fms\n", summary.AvgDurationMs)

			fmt.Printf("\n--- Last %d Events ---\n", n)
			fmt.Println("SEQ\tJOB ID\t\tEVENT\t\tWHEN")
			for _, ev := range summary.RecentEvents {
				fmt.Printf("%d\t%s\t%s\t%s\n", ev.Seq, ev.JobID, ev.EventType, ev.Timestamp.Format("2006-01-02T15:04:05Z"))
			}
			return nil
		},
	}
	cmd.Flags().Int("recent", 10, "Number of recent events to show")
	return cmd
}
