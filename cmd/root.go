// Package cmd wires the cobra CLI surface to the queue manager.
package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"queuectl/internal/config"
	"queuectl/internal/queue"
)

var rootCmd = &cobra.Command{
	Use:   "queuectl",
	Short: "A CLI-based background job queue",
}

// Execute builds the full command tree over manager and runs it.
func Execute(manager *queue.Manager, cfg *config.Config) {
	rootCmd.AddCommand(EnqueueCmd(manager))
	rootCmd.AddCommand(ListCmd(manager))
	rootCmd.AddCommand(StatusCmd(manager))
	rootCmd.AddCommand(MetricsCmd(manager))
	rootCmd.AddCommand(WorkerCmd(manager, cfg))
	rootCmd.AddCommand(DlqCmd(manager))
	rootCmd.AddCommand(ConfigCmd(cfg))
	rootCmd.AddCommand(DashboardCmd(manager))

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Fatal(err)
	}
}
