package worker_test

import (
	"context"
	"testing"
	"time"

	"queuectl/internal/worker"
)

func TestExecutor_Success(t *testing.T) {
	e := worker.NewExecutor()
	result := e.Execute(context.Background(), "exit 0", time.Second)
	if !result.Success {
		t.Errorf("expected success, got error %q", result.Error)
	}
	if result.Error != "" {
		t.Errorf("expected no error message, got %q", result.Error)
	}
}

func TestExecutor_NonZeroExit(t *testing.T) {
	e := worker.NewExecutor()
	result := e.Execute(context.Background(), "echo failure-detail 1>&2; exit 1", time.Second)
	if result.Success {
		t.Error("expected failure for non-zero exit")
	}
	if result.Error != "failure-detail" {
		t.Errorf("Error = %q, want stderr content %q", result.Error, "failure-detail")
	}
}

func TestExecutor_Timeout(t *testing.T) {
	e := worker.NewExecutor()
	result := e.Execute(context.Background(), "sleep 5", 50*time.Millisecond)
	if result.Success {
		t.Error("expected failure on timeout")
	}
	if result.DurationMs > 2000 {
		t.Errorf("expected execution to be killed quickly, took %dms", result.DurationMs)
	}
}

func TestExecutor_FailureWithNoStderrFallsBackToExitError(t *testing.T) {
	e := worker.NewExecutor()
	result := e.Execute(context.Background(), "exit 2", time.Second)
	if result.Success {
		t.Error("expected failure")
	}
	if result.Error == "" {
		t.Error("expected a non-empty error message from the exit status")
	}
}
