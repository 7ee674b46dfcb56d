package model

import "time"

// EventType is the kind of a MetricEvent.
type EventType string

const (
	EventEnqueued  EventType = "enqueued"
	EventStarted   EventType = "started"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventDLQ       EventType = "dlq"
)

// MetricEvent is one append-only row in the job metrics log. The
// sequence of a job's events is a linearization of its state
// transitions: enqueued, then alternating started/failed for each
// retried attempt, ending in either completed or failed+dlq.
type MetricEvent struct {
	Seq          int64     `json:"seq"`
	JobID        string    `json:"job_id"`
	EventType    EventType `json:"event_type"`
	Timestamp    time.Time `json:"timestamp"`
	DurationMs   *int64    `json:"duration_ms,omitempty"`
	ErrorMessage *string   `json:"error_message,omitempty"`
}

// MetricsSummary is the aggregate view returned by `metrics` and the
// dashboard's /api/metrics route.
type MetricsSummary struct {
	EventCounts   map[EventType]int `json:"event_counts"`
	AvgDurationMs float64           `json:"avg_duration_ms"`
	RecentEvents  []MetricEvent     `json:"recent_events"`
}
