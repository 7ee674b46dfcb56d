// Package storage is the durable persistence layer: CRUD over jobs, the
// atomic claim protocol, and the append-only metrics log. It is the one
// place in the system that talks to the database.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/mattn/go-sqlite3"

	"queuectl/internal/model"
)

// Store is a SQLite-backed implementation of the durable job store.
// BEGIN IMMEDIATE is used for every write transaction so the writer
// lock is acquired before the row that decides a claim's winner is
// read, making claim() linearizable with respect to other claims.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id                TEXT PRIMARY KEY,
	command           TEXT NOT NULL,
	state             TEXT NOT NULL CHECK(state IN ('pending','processing','completed','failed','dead')),
	attempts          INTEGER NOT NULL DEFAULT 0,
	max_retries       INTEGER NOT NULL DEFAULT 3,
	priority          INTEGER NOT NULL DEFAULT 5 CHECK(priority BETWEEN 1 AND 10),
	run_at            TEXT,
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL,
	error_message     TEXT,
	last_executed_at  TEXT
);

CREATE INDEX IF NOT EXISTS idx_state_priority_created ON jobs(state, priority DESC, created_at ASC);
CREATE INDEX IF NOT EXISTS idx_state_runat ON jobs(state, run_at);

CREATE TABLE IF NOT EXISTS job_metrics (
	seq            INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id         TEXT NOT NULL,
	event_type     TEXT NOT NULL CHECK(event_type IN ('enqueued','started','completed','failed','dlq')),
	timestamp      TEXT NOT NULL,
	duration_ms    INTEGER,
	error_message  TEXT
);

CREATE INDEX IF NOT EXISTS idx_metrics_jobid ON job_metrics(job_id);
CREATE INDEX IF NOT EXISTS idx_metrics_timestamp ON job_metrics(timestamp DESC);
`

const timeLayout = time.RFC3339Nano

// Open creates or opens the SQLite database at path, applying the
// schema if necessary. WAL journaling lets readers (list/stats) proceed
// without blocking behind a writer's BEGIN IMMEDIATE.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=off", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, &model.StorageError{Op: "open", Err: err}
	}
	if err := db.Ping(); err != nil {
		return nil, &model.StorageError{Op: "ping", Err: err}
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, &model.StorageError{Op: "migrate", Err: err}
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

const maxBusyRetries = 5

// withImmediateTx runs fn inside a BEGIN IMMEDIATE/COMMIT transaction on
// a dedicated connection, retrying the whole transaction with jittered
// backoff if SQLite reports the database as locked or busy. This is the
// "loser retries from scratch" branch the claim contract permits.
func (s *Store) withImmediateTx(ctx context.Context, op string, fn func(conn *sql.Conn) error) error {
	var lastErr error
	for attempt := 0; attempt < maxBusyRetries; attempt++ {
		err := s.runImmediateTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return err
		}
		lastErr = err
		sleepJittered(attempt)
	}
	return &model.StorageError{Op: op, Err: lastErr}
}

func (s *Store) runImmediateTx(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return err
	}

	if err := fn(conn); err != nil {
		_, _ = conn.ExecContext(ctx, "ROLLBACK")
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		_, _ = conn.ExecContext(ctx, "ROLLBACK")
		return err
	}
	return nil
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

func sleepJittered(attempt int) {
	base := time.Duration(1<<attempt) * 10 * time.Millisecond
	jitter := time.Duration(rand.Intn(10)) * time.Millisecond
	time.Sleep(base + jitter)
}

func recordMetric(ctx context.Context, conn *sql.Conn, jobID string, eventType model.EventType, durationMs *int64, errMsg *string) error {
	_, err := conn.ExecContext(ctx, `
		INSERT INTO job_metrics (job_id, event_type, timestamp, duration_ms, error_message)
		VALUES (?, ?, ?, ?, ?)
	`, jobID, string(eventType), time.Now().UTC().Format(timeLayout), durationMs, errMsg)
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTimeStrict(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
