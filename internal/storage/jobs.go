package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"queuectl/internal/model"
)

// Insert stores a new pending job and records its enqueued metric
// event in the same commit. Fails with ValidationError if priority is
// out of range; if id already exists, the driver's constraint error is
// returned as is.
func (s *Store) Insert(ctx context.Context, job *model.Job) error {
	if job.Priority < model.MinPriority || job.Priority > model.MaxPriority {
		return &model.ValidationError{Field: "priority", Reason: "must be between 1 and 10"}
	}

	return s.withImmediateTx(ctx, "insert", func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO jobs (id, command, state, attempts, max_retries, priority, run_at,
			                   created_at, updated_at, error_message, last_executed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			job.ID, job.Command, string(model.StatePending), job.Attempts, job.MaxRetries,
			job.Priority, formatTimePtr(job.RunAt), formatTime(job.CreatedAt), formatTime(job.UpdatedAt),
			job.ErrorMessage, formatTimePtr(job.LastExecutedAt),
		)
		if err != nil {
			return err
		}
		return recordMetric(ctx, conn, job.ID, model.EventEnqueued, nil, nil)
	})
}

// Claim atomically selects the highest-priority, oldest eligible
// pending job, transitions it to processing, and returns the
// pre-update snapshot with its new state applied. Returns (nil, nil)
// on a miss.
func (s *Store) Claim(ctx context.Context) (*model.Job, error) {
	var claimed *model.Job
	err := s.withImmediateTx(ctx, "claim", func(conn *sql.Conn) error {
		now := time.Now().UTC()
		row := conn.QueryRowContext(ctx, `
			SELECT id, command, state, attempts, max_retries, priority, run_at,
			       created_at, updated_at, error_message, last_executed_at
			FROM jobs
			WHERE state = ?
			  AND (run_at IS NULL OR run_at <= ?)
			ORDER BY priority DESC, created_at ASC
			LIMIT 1
		`, string(model.StatePending), formatTime(now))

		job, err := scanJob(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}

		job.State = model.StateProcessing
		job.UpdatedAt = now
		job.LastExecutedAt = &now

		_, err = conn.ExecContext(ctx, `
			UPDATE jobs SET state = ?, updated_at = ?, last_executed_at = ? WHERE id = ?
		`, string(model.StateProcessing), formatTime(now), formatTime(now), job.ID)
		if err != nil {
			return err
		}

		if err := recordMetric(ctx, conn, job.ID, model.EventStarted, nil, nil); err != nil {
			return err
		}

		claimed = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// MarkCompleted transitions a processing job to completed, recording
// the attempt count that includes the successful execution, and
// records the completed metric with its execution duration.
func (s *Store) MarkCompleted(ctx context.Context, jobID string, attempts int, durationMs int64) error {
	return s.transitionFrom(ctx, jobID, model.StateProcessing, "mark_completed", func(ctx context.Context, conn *sql.Conn, now time.Time) error {
		_, err := conn.ExecContext(ctx, `UPDATE jobs SET state = ?, attempts = ?, updated_at = ? WHERE id = ?`,
			string(model.StateCompleted), attempts, formatTime(now), jobID)
		if err != nil {
			return err
		}
		return recordMetric(ctx, conn, jobID, model.EventCompleted, &durationMs, nil)
	})
}

// MarkPending returns a processing job to pending for retry, recording
// its new attempt count and error. Fails with InvalidTransitionError if
// attempts would exceed max_retries.
func (s *Store) MarkPending(ctx context.Context, jobID string, attempts int, errMsg string) error {
	return s.transitionFrom(ctx, jobID, model.StateProcessing, "mark_pending", func(ctx context.Context, conn *sql.Conn, now time.Time) error {
		var maxRetries int
		if err := conn.QueryRowContext(ctx, `SELECT max_retries FROM jobs WHERE id = ?`, jobID).Scan(&maxRetries); err != nil {
			return err
		}
		if attempts > maxRetries {
			return &model.InvalidTransitionError{JobID: jobID, From: model.StateProcessing, Want: model.StatePending, Op: "mark_pending"}
		}
		_, err := conn.ExecContext(ctx, `
			UPDATE jobs SET state = ?, attempts = ?, error_message = ?, updated_at = ? WHERE id = ?
		`, string(model.StatePending), attempts, errMsg, formatTime(now), jobID)
		if err != nil {
			return err
		}
		return recordMetric(ctx, conn, jobID, model.EventFailed, nil, &errMsg)
	})
}

// MarkDead transitions a processing job to dead (the DLQ), recording
// both a failed event and a dlq event per the two-event DLQ convention.
func (s *Store) MarkDead(ctx context.Context, jobID string, attempts int, errMsg string) error {
	return s.transitionFrom(ctx, jobID, model.StateProcessing, "mark_dead", func(ctx context.Context, conn *sql.Conn, now time.Time) error {
		_, err := conn.ExecContext(ctx, `
			UPDATE jobs SET state = ?, attempts = ?, error_message = ?, updated_at = ? WHERE id = ?
		`, string(model.StateDead), attempts, errMsg, formatTime(now), jobID)
		if err != nil {
			return err
		}
		if err := recordMetric(ctx, conn, jobID, model.EventFailed, nil, &errMsg); err != nil {
			return err
		}
		return recordMetric(ctx, conn, jobID, model.EventDLQ, nil, &errMsg)
	})
}

// RetryDead moves a dead job back to pending with attempts reset to
// zero and its error cleared, preserving priority and max_retries.
// Calling it on a job that isn't dead fails with InvalidTransitionError.
func (s *Store) RetryDead(ctx context.Context, jobID string) error {
	return s.transitionFrom(ctx, jobID, model.StateDead, "retry_dead", func(ctx context.Context, conn *sql.Conn, now time.Time) error {
		_, err := conn.ExecContext(ctx, `
			UPDATE jobs SET state = ?, attempts = 0, error_message = NULL, updated_at = ? WHERE id = ?
		`, string(model.StatePending), formatTime(now), jobID)
		if err != nil {
			return err
		}
		return recordMetric(ctx, conn, jobID, model.EventEnqueued, nil, nil)
	})
}

// transitionFrom runs fn inside a transaction after verifying the job
// currently sits in `from` state, surfacing NotFoundError /
// InvalidTransitionError as appropriate without ever committing a
// partial transition.
func (s *Store) transitionFrom(ctx context.Context, jobID string, from model.State, op string, fn func(ctx context.Context, conn *sql.Conn, now time.Time) error) error {
	return s.withImmediateTx(ctx, op, func(conn *sql.Conn) error {
		var current string
		err := conn.QueryRowContext(ctx, `SELECT state FROM jobs WHERE id = ?`, jobID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return &model.NotFoundError{JobID: jobID}
		}
		if err != nil {
			return err
		}
		if model.State(current) != from {
			return &model.InvalidTransitionError{JobID: jobID, From: model.State(current), Want: from, Op: op}
		}
		return fn(ctx, conn, time.Now().UTC())
	})
}

// Get retrieves a single job by id, outside any transaction.
func (s *Store) Get(ctx context.Context, jobID string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, command, state, attempts, max_retries, priority, run_at,
		       created_at, updated_at, error_message, last_executed_at
		FROM jobs WHERE id = ?
	`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &model.NotFoundError{JobID: jobID}
	}
	if err != nil {
		return nil, &model.StorageError{Op: "get", Err: err}
	}
	return job, nil
}

// List returns a snapshot of jobs ordered by created_at, optionally
// filtered by state. Runs outside any transaction so it is never
// blocked behind a claim beyond whatever SQLite's WAL readers wait for.
func (s *Store) List(ctx context.Context, state *model.State) ([]*model.Job, error) {
	query := `
		SELECT id, command, state, attempts, max_retries, priority, run_at,
		       created_at, updated_at, error_message, last_executed_at
		FROM jobs
	`
	args := []interface{}{}
	if state != nil {
		query += " WHERE state = ?"
		args = append(args, string(*state))
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &model.StorageError{Op: "list", Err: err}
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		job, err := scanJobRows(rows)
		if err != nil {
			return nil, &model.StorageError{Op: "list", Err: err}
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Stats returns job counts grouped by state, with every known state
// present even if its count is zero.
func (s *Store) Stats(ctx context.Context) (map[model.State]int, error) {
	counts := map[model.State]int{
		model.StatePending:    0,
		model.StateProcessing: 0,
		model.StateCompleted:  0,
		model.StateFailed:     0,
		model.StateDead:       0,
	}

	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, &model.StorageError{Op: "stats", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, &model.StorageError{Op: "stats", Err: err}
		}
		counts[model.State(state)] = count
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	return scanJobRows(row)
}

func scanJobRows(row rowScanner) (*model.Job, error) {
	var job model.Job
	var state, createdAt, updatedAt string
	var runAt, errMsg, lastExecutedAt sql.NullString

	if err := row.Scan(
		&job.ID, &job.Command, &state, &job.Attempts, &job.MaxRetries, &job.Priority,
		&runAt, &createdAt, &updatedAt, &errMsg, &lastExecutedAt,
	); err != nil {
		return nil, err
	}

	job.State = model.State(state)

	createdAtT, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	job.CreatedAt = createdAtT

	updatedAtT, err := time.Parse(timeLayout, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	job.UpdatedAt = updatedAtT

	runAtT, err := parseTimePtr(runAt)
	if err != nil {
		return nil, fmt.Errorf("parse run_at: %w", err)
	}
	job.RunAt = runAtT

	lastExecT, err := parseTimePtr(lastExecutedAt)
	if err != nil {
		return nil, fmt.Errorf("parse last_executed_at: %w", err)
	}
	job.LastExecutedAt = lastExecT

	if errMsg.Valid {
		msg := errMsg.String
		job.ErrorMessage = &msg
	}

	return &job, nil
}
