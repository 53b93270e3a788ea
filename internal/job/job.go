// Package job provides the Job aggregate for tracking transcription runs
// submitted over HTTP. It includes the Job entity with its state machine
// and the repository port for persistence.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/whisper-timestamps/internal/job/id"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job is waiting for a worker.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates the pipeline is running.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the job finished successfully.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the pipeline returned an error.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the job was cancelled before completion.
	StatusCancelled Status = "CANCELLED"
	// StatusTimedOut indicates the job exceeded its processing deadline.
	StatusTimedOut Status = "TIMED_OUT"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusCancelled, StatusTimedOut},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
	StatusTimedOut:  {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Request holds what the client asked for.
type Request struct {
	Input     string `json:"input"`
	Prompt    string `json:"prompt,omitempty"`
	Language  string `json:"language,omitempty"`
	Translate bool   `json:"translate,omitempty"`
	Overwrite bool   `json:"overwrite,omitempty"`
	PushToS3  bool   `json:"push_to_s3,omitempty"`
}

// Artifact is a file written by the job.
type Artifact struct {
	Kind  string `json:"kind"`
	Group string `json:"group"`
	Name  string `json:"name"`
	Path  string `json:"path"`
	URL   string `json:"url,omitempty"`
}

// Result is what a completed run produced.
type Result struct {
	BaseName  string     `json:"base_name,omitempty"`
	SourceURL string     `json:"source_url,omitempty"`
	AudioPath string     `json:"audio_path,omitempty"`
	Segments  int        `json:"segments"`
	Speech    int        `json:"speech"`
	NoSpeech  int        `json:"no_speech"`
	Duration  float64    `json:"duration_seconds,omitempty"`
	Reused    bool       `json:"reused"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

func (r Result) clone() Result {
	if r.Artifacts != nil {
		artifacts := make([]Artifact, len(r.Artifacts))
		copy(artifacts, r.Artifacts)
		r.Artifacts = artifacts
	}
	return r
}

// Job represents a transcription job aggregate.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Status is the current job state.
	Status Status
	// Request is the submitted pipeline input.
	Request Request
	// Result is filled in on completion.
	Result Result
	// Error contains any error message if the job failed.
	Error string
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when processing started.
	StartedAt time.Time
	// CompletedAt is when processing finished.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID and initial IN_QUEUE status.
func New(req Request) *Job {
	return NewWithID(id.Generate(), req)
}

// NewWithID creates a new Job with the specified ID and initial IN_QUEUE status.
// Useful for testing or when ID needs to be externally generated.
func NewWithID(jobID string, req Request) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusInQueue,
		Request:   req,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Start transitions the job from IN_QUEUE to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete records the result and transitions the job to COMPLETED.
// The result is only stored when the transition is allowed.
func (j *Job) Complete(result Result) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	j.Result = result.clone()
	return nil
}

// Fail transitions the job to FAILED state with an error message.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusFailed); err != nil {
		return err
	}
	j.Error = errMsg
	return nil
}

// Cancel transitions the job to CANCELLED state.
func (j *Job) Cancel() error {
	return j.TransitionTo(StatusCancelled)
}

// Timeout transitions the job to TIMED_OUT state with the error that
// reported the deadline.
func (j *Job) Timeout(errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusTimedOut); err != nil {
		return err
	}
	j.Error = errMsg
	return nil
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(validTransitions[j.Status]) == 0
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:          j.ID,
		Status:      j.Status,
		Request:     j.Request,
		Result:      j.Result.clone(),
		Error:       j.Error,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}
