package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"queuectl/internal/config"
	"queuectl/internal/queue"
	"queuectl/internal/worker"
)

// statusFileName holds the running pool's PID and start time, so a
// separate CLI invocation (`worker stop`) can find and signal it.
const statusFileName = "worker.status"

// WorkerStatus is the pool supervision record written by `worker start`
// and read by `worker stop`.
type WorkerStatus struct {
	Count         int       `json:"count"`
	StartedAt     time.Time `json:"started_at"`
	WorkerPoolPid int       `json:"worker_pool_pid"`
}

func statusFilePath(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, statusFileName)
}

// WorkerCmd manages the worker pool: starting it in the foreground,
// stopping a running pool by PID, and inspecting its published health.
func WorkerCmd(manager *queue.Manager, cfg *config.Config) *cobra.Command {
	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Manage the worker pool",
	}

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the worker pool in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("count")

			status := WorkerStatus{
				Count:         count,
				StartedAt:     time.Now().UTC(),
				WorkerPoolPid: os.Getpid(),
			}
			data, err := json.MarshalIndent(status, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(statusFilePath(cfg), data, 0644); err != nil {
				return fmt.Errorf("failed to write worker status: %w", err)
			}
			defer os.Remove(statusFilePath(cfg))

			log.Printf("Starting %d worker(s). Press Ctrl+C to shut down gracefully.", count)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go func() {
				sigCh := make(chan os.Signal, 1)
				signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
				sig := <-sigCh
				log.Printf("received signal: %v, shutting down", sig)
				cancel()
			}()

			pool := worker.NewPool(manager, cfg, count)
			if err := pool.Run(ctx); err != nil {
				return fmt.Errorf("worker pool exited with error: %w", err)
			}

			log.Println("all workers have shut down")
			return nil
		},
	}
	startCmd.Flags().Int("count", 1, "Number of workers to start")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Signal a running worker pool to shut down gracefully",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(statusFilePath(cfg))
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Println("No running worker pool found.")
					return nil
				}
				return fmt.Errorf("could not read worker status: %w", err)
			}

			var status WorkerStatus
			if err := json.Unmarshal(data, &status); err != nil {
				return fmt.Errorf("could not parse worker status: %w", err)
			}

			if err := syscall.Kill(status.WorkerPoolPid, syscall.SIGTERM); err != nil {
				return fmt.Errorf("failed to signal worker pool (pid %d): %w", status.WorkerPoolPid, err)
			}
			fmt.Printf("Sent shutdown signal to worker pool (pid %d).\n", status.WorkerPoolPid)
			return nil
		},
	}

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Show the running worker pool's per-worker heartbeat status",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(cfg.DataDir, worker.HealthFileName)
			data, err := os.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Println("No running worker pool found.")
					return nil
				}
				return fmt.Errorf("could not read worker health: %w", err)
			}

			var snapshot []worker.WorkerHealth
			if err := json.Unmarshal(data, &snapshot); err != nil {
				return fmt.Errorf("could not parse worker health: %w", err)
			}

			fmt.Println("WORKER\tALIVE\tJOBS PROCESSED\tLAST HEARTBEAT")
			for _, w := range snapshot {
				fmt.Printf("%d\t%v\t%d\t\t%s\n", w.WorkerID, w.Alive, w.JobsProcessed, w.LastHeartbeat.Format(time.RFC3339))
			}
			return nil
		},
	}

	workerCmd.AddCommand(startCmd)
	workerCmd.AddCommand(stopCmd)
	workerCmd.AddCommand(healthCmd)
	return workerCmd
}
