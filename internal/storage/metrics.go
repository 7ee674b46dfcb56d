package storage

import (
	"context"
	"database/sql"

	"queuectl/internal/model"
)

// MetricsSummary returns counts per event type, the mean duration_ms
// over completed jobs, and the most recent n events (newest first).
func (s *Store) MetricsSummary(ctx context.Context, n int) (*model.MetricsSummary, error) {
	summary := &model.MetricsSummary{
		EventCounts: map[model.EventType]int{
			model.EventEnqueued:  0,
			model.EventStarted:   0,
			model.EventCompleted: 0,
			model.EventFailed:    0,
			model.EventDLQ:       0,
		},
	}

	rows, err := s.db.QueryContext(ctx, `SELECT event_type, COUNT(*) FROM job_metrics GROUP BY event_type`)
	if err != nil {
		return nil, &model.StorageError{Op: "metrics_summary", Err: err}
	}
	for rows.Next() {
		var eventType string
		var count int
		if err := rows.Scan(&eventType, &count); err != nil {
			rows.Close()
			return nil, &model.StorageError{Op: "metrics_summary", Err: err}
		}
		summary.EventCounts[model.EventType(eventType)] = count
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, &model.StorageError{Op: "metrics_summary", Err: err}
	}
	rows.Close()

	var avg sql.NullFloat64
	row := s.db.QueryRowContext(ctx, `
		SELECT AVG(duration_ms) FROM job_metrics WHERE event_type = ? AND duration_ms IS NOT NULL
	`, string(model.EventCompleted))
	if err := row.Scan(&avg); err != nil {
		return nil, &model.StorageError{Op: "metrics_summary", Err: err}
	}
	if avg.Valid {
		summary.AvgDurationMs = avg.Float64
	}

	recentRows, err := s.db.QueryContext(ctx, `
		SELECT seq, job_id, event_type, timestamp, duration_ms, error_message
		FROM job_metrics
		ORDER BY seq DESC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, &model.StorageError{Op: "metrics_summary", Err: err}
	}
	defer recentRows.Close()

	for recentRows.Next() {
		var ev model.MetricEvent
		var eventType, timestamp string
		var durationMs sql.NullInt64
		var errMsg sql.NullString

		if err := recentRows.Scan(&ev.Seq, &ev.JobID, &eventType, &timestamp, &durationMs, &errMsg); err != nil {
			return nil, &model.StorageError{Op: "metrics_summary", Err: err}
		}
		ev.EventType = model.EventType(eventType)
		ts, err := parseTimeStrict(timestamp)
		if err != nil {
			return nil, &model.StorageError{Op: "metrics_summary", Err: err}
		}
		ev.Timestamp = ts
		if durationMs.Valid {
			d := durationMs.Int64
			ev.DurationMs = &d
		}
		if errMsg.Valid {
			m := errMsg.String
			ev.ErrorMessage = &m
		}
		summary.RecentEvents = append(summary.RecentEvents, ev)
	}

	return summary, recentRows.Err()
}
