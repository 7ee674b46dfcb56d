package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"queuectl/internal/dashboard"
	"queuectl/internal/queue"
)

// DashboardCmd serves the read-mostly HTTP API over manager.
func DashboardCmd(manager *queue.Manager) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Serve the HTTP dashboard API on localhost",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go func() {
				sigCh := make(chan os.Signal, 1)
				signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
				<-sigCh
				cancel()
			}()

			log.Printf("serving dashboard on %s", addr)
			return dashboard.Serve(ctx, manager, addr)
		},
	}
	cmd.Flags().String("addr", dashboard.DefaultAddr, "Address to bind the dashboard to")
	return cmd
}
