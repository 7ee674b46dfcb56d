package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"queuectl/internal/config"
	"queuectl/internal/logctl"
	"queuectl/internal/model"
	"queuectl/internal/queue"
)

// healthFileInterval is how often the pool dumps its HealthMap snapshot
// to disk, so a separate `worker health` invocation (which has no
// access to this process's memory) can report on it.
const healthFileInterval = 2 * time.Second

// HealthFileName is the file a running pool publishes its health
// snapshot to, relative to the configured data directory.
const HealthFileName = "worker.health"

// Pool spawns count worker goroutines that each run the
// claim -> execute -> transition loop against a shared Manager,
// publishing heartbeats and observing a cooperative shutdown signal.
type Pool struct {
	manager  *queue.Manager
	config   *config.Config
	executor *Executor
	count    int
	health   *HealthMap
	logger   *slog.Logger

	shutdown chan struct{}
}

// NewPool constructs a Pool of count workers over manager.
func NewPool(manager *queue.Manager, cfg *config.Config, count int) *Pool {
	return &Pool{
		manager:  manager,
		config:   cfg,
		executor: NewExecutor(),
		count:    count,
		health:   NewHealthMap(),
		logger:   logctl.New("pool"),
		shutdown: make(chan struct{}),
	}
}

// Health returns the pool's shared heartbeat map for in-process
// inspection. The `worker health` command reads the snapshot file that
// publishHealth writes instead.
func (p *Pool) Health() *HealthMap {
	return p.health
}

// Run starts count worker goroutines and blocks until ctx is cancelled
// (the graceful-shutdown signal) and every worker has returned, or until
// the 30-second grace period elapses and remaining workers are
// abandoned. Worker goroutines always return nil, so Run returns nil.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("starting worker pool", "count", p.count)

	g, gctx := errgroup.WithContext(context.Background())
	for i := 1; i <= p.count; i++ {
		id := i
		g.Go(func() error {
			p.runWorker(gctx, id)
			return nil
		})
	}

	healthDone := make(chan struct{})
	go p.publishHealth(healthDone)

	<-ctx.Done()
	p.logger.Info("shutdown requested, waiting for workers to finish")
	close(p.shutdown)
	<-healthDone
	_ = os.Remove(p.healthFilePath())

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		p.logger.Info("all workers stopped")
		return err
	case <-time.After(30 * time.Second):
		p.logger.Warn("grace period elapsed, abandoning remaining workers")
		return nil
	}
}

func (p *Pool) healthFilePath() string {
	return filepath.Join(p.config.DataDir, HealthFileName)
}

// publishHealth periodically dumps the HealthMap snapshot to disk until
// shutdown is signalled, then closes done.
func (p *Pool) publishHealth(done chan<- struct{}) {
	ticker := time.NewTicker(healthFileInterval)
	defer ticker.Stop()
	defer close(done)

	write := func() {
		data, err := json.MarshalIndent(p.health.Snapshot(), "", "  ")
		if err != nil {
			return
		}
		_ = os.WriteFile(p.healthFilePath(), data, 0644)
	}

	for {
		select {
		case <-ticker.C:
			write()
		case <-p.shutdown:
			write()
			return
		}
	}
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	logger := p.logger.With("worker_id", id)
	logger.Info("worker starting")

	pollInterval := time.Duration(p.config.WorkerPollInterval * float64(time.Second))

	for {
		if p.isShuttingDown() {
			logger.Info("worker shutting down")
			return
		}

		p.health.Heartbeat(id)

		job, err := p.manager.Claim(ctx)
		if err != nil {
			logger.Error("claim failed", "error", err)
			if !p.sleepInterruptible(pollInterval) {
				return
			}
			continue
		}
		if job == nil {
			if !p.sleepInterruptible(pollInterval) {
				return
			}
			continue
		}

		p.health.Heartbeat(id)
		p.executeJob(ctx, logger, id, job)
	}
}

func (p *Pool) executeJob(ctx context.Context, logger *slog.Logger, workerID int, job *model.Job) {
	logger.Info("processing job", "job_id", job.ID, "command", job.Command)

	timeout := time.Duration(p.config.JobTimeout) * time.Second
	result := p.executor.Execute(ctx, job.Command, timeout)

	attempts := job.Attempts + 1
	job.Attempts = attempts // reflect the attempt about to be committed before consulting its predicates

	if result.Success {
		if err := p.retryTransition(ctx, logger, job.ID, func() error {
			return p.manager.MarkCompleted(ctx, job.ID, attempts, result.DurationMs)
		}); err != nil {
			return
		}
		p.health.IncrementProcessed(workerID)
		logger.Info("job completed", "job_id", job.ID)
		return
	}

	logger.Warn("job failed", "job_id", job.ID, "error", result.Error, "attempt", attempts, "max_retries", job.MaxRetries)

	if job.ShouldRetry() {
		backoff := time.Duration(job.CalculateBackoff(p.config.BackoffBase)) * time.Second
		logger.Info("retrying after backoff", "job_id", job.ID, "backoff_seconds", backoff.Seconds())
		if !p.sleepInterruptible(backoff) {
			return
		}
		_ = p.retryTransition(ctx, logger, job.ID, func() error {
			return p.manager.MarkPending(ctx, job.ID, attempts, result.Error)
		})
		return
	}

	logger.Error("job moved to DLQ", "job_id", job.ID, "attempts", attempts)
	_ = p.retryTransition(ctx, logger, job.ID, func() error {
		return p.manager.MarkDead(ctx, job.ID, attempts, result.Error)
	})
}

// retryTransition retries a single state-transition call with bounded
// backoff on StorageError; a claimed job must never be silently
// dropped. If every retry fails, it logs loudly and returns the last
// error. The worker does not exit on that error: it goes back to
// polling, and the job stays in its current state.
func (p *Pool) retryTransition(ctx context.Context, logger *slog.Logger, jobID string, fn func() error) error {
	const maxAttempts = 5
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := fn(); err != nil {
			var storageErr *model.StorageError
			if !isStorageError(err, &storageErr) {
				logger.Error("non-retryable transition error", "job_id", jobID, "error", err)
				return err
			}
			lastErr = err
			if !p.sleepInterruptible(time.Duration(1<<attempt) * 100 * time.Millisecond) {
				return lastErr
			}
			continue
		}
		return nil
	}
	logger.Error("giving up on transition after repeated storage errors", "job_id", jobID, "error", lastErr)
	return lastErr
}

func isStorageError(err error, target **model.StorageError) bool {
	se, ok := err.(*model.StorageError)
	if ok {
		*target = se
	}
	return ok
}

// sleepInterruptible sleeps for d, returning false early if shutdown
// was requested mid-sleep so backoff and poll sleeps never delay
// graceful shutdown by their full duration.
func (p *Pool) sleepInterruptible(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-p.shutdown:
		return false
	}
}

func (p *Pool) isShuttingDown() bool {
	select {
	case <-p.shutdown:
		return true
	default:
		return false
	}
}
