package storage_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"queuectl/internal/model"
	"queuectl/internal/storage"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue.db")
	s, err := storage.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newPendingJob(id string, priority int) *model.Job {
	now := time.Now().UTC()
	return &model.Job{
		ID:         id,
		Command:    "echo hi",
		State:      model.StatePending,
		MaxRetries: 3,
		Priority:   priority,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestStore_InsertAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := newPendingJob("job-1", model.DefaultPriority)
	if err := s.Insert(ctx, job); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := s.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != model.StatePending {
		t.Errorf("State = %q, want %q", got.State, model.StatePending)
	}
	if got.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", got.Attempts)
	}
}

func TestStore_Insert_RejectsOutOfRangePriority(t *testing.T) {
	s := openTestStore(t)
	job := newPendingJob("job-bad-priority", 99)

	err := s.Insert(context.Background(), job)
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestStore_Get_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	var nf *model.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestStore_Claim_PriorityThenFIFO(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	low := newPendingJob("low", 3)
	low.CreatedAt = time.Now().UTC().Add(-time.Minute)
	high := newPendingJob("high", 8)
	high.CreatedAt = time.Now().UTC().Add(-30 * time.Second)

	if err := s.Insert(ctx, low); err != nil {
		t.Fatalf("Insert low: %v", err)
	}
	if err := s.Insert(ctx, high); err != nil {
		t.Fatalf("Insert high: %v", err)
	}

	claimed, err := s.Claim(ctx)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed == nil {
		t.Fatal("expected a claimed job, got nil")
	}
	if claimed.ID != "high" {
		t.Errorf("claimed %q, want the higher-priority job %q", claimed.ID, "high")
	}
	if claimed.State != model.StateProcessing {
		t.Errorf("claimed job state = %q, want %q", claimed.State, model.StateProcessing)
	}
}

func TestStore_Claim_RespectsRunAt(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	future := time.Now().UTC().Add(time.Hour)
	scheduled := newPendingJob("scheduled", model.DefaultPriority)
	scheduled.RunAt = &future
	if err := s.Insert(ctx, scheduled); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	claimed, err := s.Claim(ctx)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed != nil {
		t.Errorf("expected no eligible job yet, got %q", claimed.ID)
	}
}

func TestStore_Claim_NoEligibleJobsReturnsNil(t *testing.T) {
	s := openTestStore(t)
	claimed, err := s.Claim(context.Background())
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed != nil {
		t.Errorf("expected nil claim on an empty queue, got %q", claimed.ID)
	}
}

func TestStore_Claim_IsExclusiveUnderConcurrency(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		if err := s.Insert(ctx, newPendingJob(jobID(i), model.DefaultPriority)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	var mu sync.Mutex
	seen := map[string]int{}
	var wg sync.WaitGroup

	for w := 0; w < 5; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := s.Claim(ctx)
				if err != nil {
					t.Errorf("Claim: %v", err)
					return
				}
				if job == nil {
					return
				}
				mu.Lock()
				seen[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != 20 {
		t.Errorf("claimed %d distinct jobs, want 20", len(seen))
	}
	for id, count := range seen {
		if count != 1 {
			t.Errorf("job %q claimed %d times, want exactly 1", id, count)
		}
	}
}

func jobID(i int) string {
	return "job-" + string(rune('a'+i%26)) + string(rune('0'+i/26))
}

func TestStore_MarkCompleted_PersistsAttempts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := newPendingJob("job-complete", model.DefaultPriority)
	if err := s.Insert(ctx, job); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := s.Claim(ctx); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	if err := s.MarkCompleted(ctx, "job-complete", 3, 42); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	got, err := s.Get(ctx, "job-complete")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != model.StateCompleted {
		t.Errorf("State = %q, want %q", got.State, model.StateCompleted)
	}
	if got.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", got.Attempts)
	}
}

func TestStore_MarkPending_RejectsAttemptsPastMaxRetries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := newPendingJob("job-over", model.DefaultPriority)
	job.MaxRetries = 2
	if err := s.Insert(ctx, job); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := s.Claim(ctx); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	err := s.MarkPending(ctx, "job-over", 3, "boom")
	var it *model.InvalidTransitionError
	if !errors.As(err, &it) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
}

func TestStore_MarkDead_RecordsFailedAndDLQEvents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := newPendingJob("job-dead", model.DefaultPriority)
	job.MaxRetries = 1
	if err := s.Insert(ctx, job); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := s.Claim(ctx); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := s.MarkDead(ctx, "job-dead", 1, "fatal"); err != nil {
		t.Fatalf("MarkDead: %v", err)
	}

	got, err := s.Get(ctx, "job-dead")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != model.StateDead {
		t.Errorf("State = %q, want %q", got.State, model.StateDead)
	}

	summary, err := s.MetricsSummary(ctx, 10)
	if err != nil {
		t.Fatalf("MetricsSummary: %v", err)
	}
	if summary.EventCounts[model.EventFailed] != 1 {
		t.Errorf("failed event count = %d, want 1", summary.EventCounts[model.EventFailed])
	}
	if summary.EventCounts[model.EventDLQ] != 1 {
		t.Errorf("dlq event count = %d, want 1", summary.EventCounts[model.EventDLQ])
	}
}

func TestStore_RetryDead_ResetsAttemptsPreservesPriority(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := newPendingJob("job-retry", 9)
	job.MaxRetries = 1
	if err := s.Insert(ctx, job); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := s.Claim(ctx); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := s.MarkDead(ctx, "job-retry", 1, "fatal"); err != nil {
		t.Fatalf("MarkDead: %v", err)
	}

	if err := s.RetryDead(ctx, "job-retry"); err != nil {
		t.Fatalf("RetryDead: %v", err)
	}

	got, err := s.Get(ctx, "job-retry")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != model.StatePending {
		t.Errorf("State = %q, want %q", got.State, model.StatePending)
	}
	if got.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", got.Attempts)
	}
	if got.Priority != 9 {
		t.Errorf("Priority = %d, want 9 (preserved)", got.Priority)
	}
	if got.MaxRetries != 1 {
		t.Errorf("MaxRetries = %d, want 1 (preserved)", got.MaxRetries)
	}
	if got.ErrorMessage != nil {
		t.Errorf("ErrorMessage = %q, want cleared", *got.ErrorMessage)
	}
}

func TestStore_RetryDead_RequiresDeadState(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := newPendingJob("job-not-dead", model.DefaultPriority)
	if err := s.Insert(ctx, job); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	err := s.RetryDead(ctx, "job-not-dead")
	var it *model.InvalidTransitionError
	if !errors.As(err, &it) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
}

func TestStore_List_FiltersByState(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Insert(ctx, newPendingJob("p1", model.DefaultPriority)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Insert(ctx, newPendingJob("p2", model.DefaultPriority)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := s.Claim(ctx); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	pending := model.StatePending
	jobs, err := s.List(ctx, &pending)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("got %d pending jobs, want 1", len(jobs))
	}
}

func TestStore_Stats_AllStatesPresent(t *testing.T) {
	s := openTestStore(t)
	stats, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	for _, state := range []model.State{
		model.StatePending, model.StateProcessing, model.StateCompleted, model.StateFailed, model.StateDead,
	} {
		if _, ok := stats[state]; !ok {
			t.Errorf("expected stats to include state %q even with zero jobs", state)
		}
	}
}
