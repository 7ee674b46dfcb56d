package dashboard_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"queuectl/internal/config"
	"queuectl/internal/dashboard"
	"queuectl/internal/model"
	"queuectl/internal/queue"
	"queuectl/internal/storage"
)

func newTestServer(t *testing.T) (*httptest.Server, *queue.Manager) {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	m := queue.New(s, config.New())
	srv := httptest.NewServer(dashboard.NewRouter(m))
	t.Cleanup(srv.Close)
	return srv, m
}

func TestDashboard_EnqueueThenStats(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]interface{}{"id": "job-1", "command": "echo hi"})
	resp, err := http.Post(srv.URL+"/api/enqueue", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/enqueue: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	resp.Body.Close()

	statsResp, err := http.Get(srv.URL + "/api/stats")
	if err != nil {
		t.Fatalf("GET /api/stats: %v", err)
	}
	defer statsResp.Body.Close()

	var stats map[model.State]int
	if err := json.NewDecoder(statsResp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats[model.StatePending] != 1 {
		t.Errorf("pending count = %d, want 1", stats[model.StatePending])
	}
}

func TestDashboard_Enqueue_MissingFieldsIsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]interface{}{"id": "job-1"})
	resp, err := http.Post(srv.URL+"/api/enqueue", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/enqueue: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestDashboard_ListJobs(t *testing.T) {
	srv, m := newTestServer(t)

	if _, err := m.Enqueue(context.Background(), queue.EnqueueInput{ID: "a", Command: "echo hi"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	resp, err := http.Get(srv.URL + "/api/jobs")
	if err != nil {
		t.Fatalf("GET /api/jobs: %v", err)
	}
	defer resp.Body.Close()

	var jobs []*model.Job
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		t.Fatalf("decode jobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("got %d jobs, want 1", len(jobs))
	}
	if jobs[0].ID != "a" {
		t.Errorf("job id = %q, want %q", jobs[0].ID, "a")
	}
}

func TestDashboard_RetryDLQ_UnknownJobIsNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/retry/does-not-exist", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/retry: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestDashboard_Metrics(t *testing.T) {
	srv, m := newTestServer(t)
	if _, err := m.Enqueue(context.Background(), queue.EnqueueInput{ID: "a", Command: "echo hi"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	resp, err := http.Get(srv.URL + "/api/metrics?recent=5")
	if err != nil {
		t.Fatalf("GET /api/metrics: %v", err)
	}
	defer resp.Body.Close()

	var summary model.MetricsSummary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if summary.EventCounts[model.EventEnqueued] != 1 {
		t.Errorf("enqueued count = %d, want 1", summary.EventCounts[model.EventEnqueued])
	}
}
