// Package model defines the job entity, its state machine, and the
// metric events emitted as jobs move through it.
package model

import (
	"math"
	"time"
)

// State is one of the five states a Job can occupy.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateDead       State = "dead"
)

// Terminal reports whether a job in this state is done mutating forever.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateDead
}

const (
	// MinPriority and MaxPriority bound the valid priority range; 10 is
	// the most urgent.
	MinPriority = 1
	MaxPriority = 10

	// DefaultPriority is used when a caller omits priority at enqueue time.
	DefaultPriority = 5
)

// Job is the persisted unit of work.
type Job struct {
	ID             string     `json:"id"`
	Command        string     `json:"command"`
	State          State      `json:"state"`
	Attempts       int        `json:"attempts"`
	MaxRetries     int        `json:"max_retries"`
	Priority       int        `json:"priority"`
	RunAt          *time.Time `json:"run_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
	LastExecutedAt *time.Time `json:"last_executed_at,omitempty"`
}

// ShouldRetry reports whether a failed attempt should return the job to
// pending (true) or send it to the dead-letter queue (false).
func (j *Job) ShouldRetry() bool {
	return j.Attempts < j.MaxRetries
}

// CalculateBackoff returns the exponential backoff delay, in seconds,
// for the job's current attempt count: base ^ attempts.
func (j *Job) CalculateBackoff(base float64) float64 {
	return math.Pow(base, float64(j.Attempts))
}
