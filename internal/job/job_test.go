package job

import (
	"strings"
	"testing"
	"time"
)

var testRequest = Request{Input: "https://www.youtube.com/watch?v=abc", Language: "en"}

func TestNew(t *testing.T) {
	job := New(testRequest)

	if !strings.HasPrefix(job.ID, "job-") {
		t.Errorf("expected ID to start with 'job-', got %s", job.ID)
	}
	if job.Status != StatusInQueue {
		t.Errorf("expected status %s, got %s", StatusInQueue, job.Status)
	}
	if job.Request != testRequest {
		t.Errorf("expected request %+v, got %+v", testRequest, job.Request)
	}
	if job.CreatedAt.IsZero() || job.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}
}

func TestNewWithID(t *testing.T) {
	job := NewWithID("custom-id", testRequest)

	if job.ID != "custom-id" {
		t.Errorf("expected ID custom-id, got %s", job.ID)
	}
	if job.Status != StatusInQueue {
		t.Errorf("expected status %s, got %s", StatusInQueue, job.Status)
	}
}

func TestJob_ValidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		// Valid transitions from IN_QUEUE
		{"IN_QUEUE to RUNNING", StatusInQueue, StatusRunning, false},
		{"IN_QUEUE to CANCELLED", StatusInQueue, StatusCancelled, false},
		{"IN_QUEUE to TIMED_OUT", StatusInQueue, StatusTimedOut, false},
		// Valid transitions from RUNNING
		{"RUNNING to COMPLETED", StatusRunning, StatusCompleted, false},
		{"RUNNING to FAILED", StatusRunning, StatusFailed, false},
		{"RUNNING to CANCELLED", StatusRunning, StatusCancelled, false},
		{"RUNNING to TIMED_OUT", StatusRunning, StatusTimedOut, false},
		// Invalid transitions
		{"IN_QUEUE to COMPLETED", StatusInQueue, StatusCompleted, true},
		{"IN_QUEUE to FAILED", StatusInQueue, StatusFailed, true},
		{"COMPLETED to IN_QUEUE", StatusCompleted, StatusInQueue, true},
		{"COMPLETED to RUNNING", StatusCompleted, StatusRunning, true},
		{"FAILED to RUNNING", StatusFailed, StatusRunning, true},
		{"FAILED to COMPLETED", StatusFailed, StatusCompleted, true},
		{"CANCELLED to RUNNING", StatusCancelled, StatusRunning, true},
		{"TIMED_OUT to RUNNING", StatusTimedOut, StatusRunning, true},
		{"unknown to RUNNING", Status("BOGUS"), StatusRunning, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewWithID("test", testRequest)
			job.Status = tt.from

			err := job.TransitionTo(tt.to)

			if tt.wantErr && err == nil {
				t.Errorf("expected error for transition %s -> %s", tt.from, tt.to)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error for transition %s -> %s: %v", tt.from, tt.to, err)
			}
		})
	}
}

func TestJob_Start(t *testing.T) {
	job := New(testRequest)
	beforeStart := time.Now()

	if err := job.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Status != StatusRunning {
		t.Errorf("expected status %s, got %s", StatusRunning, job.Status)
	}
	if job.StartedAt.Before(beforeStart) {
		t.Error("expected StartedAt to be set after test start")
	}
}

func TestJob_Complete(t *testing.T) {
	job := New(testRequest)
	_ = job.Start()

	result := Result{
		BaseName: "abc",
		Segments: 3,
		Speech:   2,
		NoSpeech: 1,
		Artifacts: []Artifact{
			{Kind: "tags", Group: "all", Name: "timestamps/abc.md", Path: "/work/timestamps/abc.md"},
		},
	}

	if err := job.Complete(result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Status != StatusCompleted {
		t.Errorf("expected status %s, got %s", StatusCompleted, job.Status)
	}
	if job.CompletedAt.IsZero() {
		t.Error("expected CompletedAt to be set")
	}
	if job.Result.BaseName != "abc" || len(job.Result.Artifacts) != 1 {
		t.Errorf("unexpected result %+v", job.Result)
	}

	// The stored result must not alias the caller's slice.
	result.Artifacts[0].Name = "mutated"
	if job.Result.Artifacts[0].Name != "timestamps/abc.md" {
		t.Error("Complete should copy the artifacts")
	}
}

func TestJob_Complete_FromQueueRejected(t *testing.T) {
	job := New(testRequest)

	if err := job.Complete(Result{BaseName: "abc"}); err != ErrInvalidTransition {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if job.Result.BaseName != "" {
		t.Error("result must not be stored on a rejected transition")
	}
}

func TestJob_Fail(t *testing.T) {
	job := New(testRequest)
	_ = job.Start()

	if err := job.Fail("transcribe: rate limited"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Status != StatusFailed {
		t.Errorf("expected status %s, got %s", StatusFailed, job.Status)
	}
	if job.Error != "transcribe: rate limited" {
		t.Errorf("expected error message, got %q", job.Error)
	}
	if job.CompletedAt.IsZero() {
		t.Error("expected CompletedAt to be set")
	}
}

func TestJob_Cancel(t *testing.T) {
	job := New(testRequest)

	if err := job.Cancel(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != StatusCancelled {
		t.Errorf("expected status %s, got %s", StatusCancelled, job.Status)
	}
}

func TestJob_Timeout(t *testing.T) {
	job := New(testRequest)
	_ = job.Start()

	if err := job.Timeout("transcribe: context deadline exceeded"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != StatusTimedOut {
		t.Errorf("expected status %s, got %s", StatusTimedOut, job.Status)
	}
	if job.Error != "transcribe: context deadline exceeded" {
		t.Errorf("expected error message to be recorded, got %q", job.Error)
	}
}

func TestJob_TimeoutAfterFailIsRejected(t *testing.T) {
	job := New(testRequest)
	_ = job.Start()
	_ = job.Fail("boom")

	if err := job.Timeout("late"); err != ErrInvalidTransition {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if job.Error != "boom" {
		t.Errorf("expected original error to be kept, got %q", job.Error)
	}
}

func TestJob_CannotTransitionFromTerminalState(t *testing.T) {
	terminalStates := []Status{StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut}
	allStates := []Status{StatusInQueue, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut}

	for _, terminal := range terminalStates {
		for _, target := range allStates {
			t.Run(string(terminal)+"_to_"+string(target), func(t *testing.T) {
				job := NewWithID("test", testRequest)
				job.Status = terminal

				err := job.TransitionTo(target)
				if err != ErrInvalidTransition {
					t.Errorf("expected ErrInvalidTransition, got %v", err)
				}
			})
		}
	}
}

func TestJob_IsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusInQueue, false},
		{StatusRunning, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusCancelled, true},
		{StatusTimedOut, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			job := NewWithID("test", testRequest)
			job.Status = tt.status

			if got := job.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}

func TestJob_Clone(t *testing.T) {
	job := New(testRequest)
	_ = job.Start()
	_ = job.Complete(Result{
		BaseName:  "abc",
		Artifacts: []Artifact{{Name: "jsons/abc.json"}},
	})

	clone := job.Clone()

	if clone.ID != job.ID {
		t.Errorf("expected ID %s, got %s", job.ID, clone.ID)
	}
	if clone.Status != job.Status {
		t.Errorf("expected Status %s, got %s", job.Status, clone.Status)
	}
	if clone.Request != job.Request {
		t.Error("expected Request to be copied")
	}

	// Verify deep copy of artifacts
	clone.Result.Artifacts[0].Name = "changed"
	if job.Result.Artifacts[0].Name == "changed" {
		t.Error("modifying clone artifacts should not affect original")
	}
}

func TestJob_GetStatus_ThreadSafe(t *testing.T) {
	job := New(testRequest)

	done := make(chan bool)
	go func() {
		for i := 0; i < 100; i++ {
			_ = job.GetStatus()
			_ = job.Clone()
		}
		done <- true
	}()

	go func() {
		for i := 0; i < 100; i++ {
			_ = job.Start()
		}
		done <- true
	}()

	<-done
	<-done
	// If no race conditions, test passes
}
