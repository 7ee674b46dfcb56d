// Package queue provides the Manager facade: the sole entry point CLI
// commands and the dashboard use to touch jobs. It fills in config
// defaults, validates caller input, and delegates every state change to
// the storage engine's already-atomic operations.
package queue

import (
	"context"
	"fmt"
	"time"

	"queuectl/internal/config"
	"queuectl/internal/model"
	"queuectl/internal/storage"
)

// Manager is a thin facade over the storage engine.
type Manager struct {
	store  *storage.Store
	config *config.Config
}

// New constructs a Manager bound to the given store and config.
func New(store *storage.Store, cfg *config.Config) *Manager {
	return &Manager{store: store, config: cfg}
}

// EnqueueInput is the caller-supplied shape for Enqueue; zero values for
// Priority/MaxRetries/RunAt mean "use the default."
type EnqueueInput struct {
	ID         string
	Command    string
	Priority   int
	MaxRetries int
	RunAt      *time.Time
}

// Enqueue validates input, fills in defaults from config, and inserts a
// new pending job.
func (m *Manager) Enqueue(ctx context.Context, in EnqueueInput) (*model.Job, error) {
	if in.ID == "" {
		return nil, &model.ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if in.Command == "" {
		return nil, &model.ValidationError{Field: "command", Reason: "must not be empty"}
	}

	priority := in.Priority
	if priority == 0 {
		priority = model.DefaultPriority
	}
	if priority < model.MinPriority || priority > model.MaxPriority {
		return nil, &model.ValidationError{Field: "priority", Reason: fmt.Sprintf("must be between %d and %d", model.MinPriority, model.MaxPriority)}
	}

	maxRetries := in.MaxRetries
	if maxRetries == 0 {
		maxRetries = m.config.MaxRetries
	}
	if maxRetries <= 0 {
		return nil, &model.ValidationError{Field: "max_retries", Reason: "must be positive"}
	}

	now := time.Now().UTC()
	job := &model.Job{
		ID:         in.ID,
		Command:    in.Command,
		State:      model.StatePending,
		Attempts:   0,
		MaxRetries: maxRetries,
		Priority:   priority,
		RunAt:      in.RunAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := m.store.Insert(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Claim atomically claims the next eligible pending job, or returns nil
// if none is available.
func (m *Manager) Claim(ctx context.Context) (*model.Job, error) {
	return m.store.Claim(ctx)
}

// MarkCompleted records a successful execution, including it in the
// job's attempt count.
func (m *Manager) MarkCompleted(ctx context.Context, jobID string, attempts int, durationMs int64) error {
	return m.store.MarkCompleted(ctx, jobID, attempts, durationMs)
}

// MarkPending returns a job to pending after a retryable failure.
func (m *Manager) MarkPending(ctx context.Context, jobID string, attempts int, errMsg string) error {
	return m.store.MarkPending(ctx, jobID, attempts, errMsg)
}

// MarkDead sends a job to the dead-letter queue after exhausting retries.
func (m *Manager) MarkDead(ctx context.Context, jobID string, attempts int, errMsg string) error {
	return m.store.MarkDead(ctx, jobID, attempts, errMsg)
}

// RetryDLQJob resets a dead job to pending with attempts cleared,
// preserving its priority and max_retries.
func (m *Manager) RetryDLQJob(ctx context.Context, jobID string) error {
	return m.store.RetryDead(ctx, jobID)
}

// GetJob looks up a single job by id.
func (m *Manager) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	return m.store.Get(ctx, jobID)
}

// ListJobs lists jobs, optionally filtered by state.
func (m *Manager) ListJobs(ctx context.Context, state *model.State) ([]*model.Job, error) {
	return m.store.List(ctx, state)
}

// Stats returns job counts grouped by state.
func (m *Manager) Stats(ctx context.Context) (map[model.State]int, error) {
	return m.store.Stats(ctx)
}

// Metrics returns the metrics summary over the last n events.
func (m *Manager) Metrics(ctx context.Context, n int) (*model.MetricsSummary, error) {
	return m.store.MetricsSummary(ctx, n)
}

// Config exposes the manager's bound configuration (read-only).
func (m *Manager) Config() *config.Config {
	return m.config
}
