// Package server provides the HTTP API for submitting transcriptions and
// rendering timestamp tags. DTOs live here, separate from domain types.
package server

import (
	"encoding/json"
	"time"

	"github.com/maauso/whisper-timestamps/internal/job"
	"github.com/maauso/whisper-timestamps/internal/transcript"
)

// CreateTranscriptionRequest is the HTTP request body for submitting a
// pipeline run.
type CreateTranscriptionRequest struct {
	// Input is a local audio path on the server or an http(s) video URL.
	Input string `json:"input" validate:"required"`
	// Prompt is passed to the transcriber verbatim.
	Prompt string `json:"prompt"`
	// Language is an optional ISO-639-1 code.
	Language string `json:"language" validate:"omitempty,len=2,alpha,lowercase"`
	// Translate produces an English translation.
	Translate bool `json:"translate"`
	// Overwrite regenerates existing audio and transcriptions instead of
	// reusing them.
	Overwrite bool `json:"overwrite"`
	// PushToS3 uploads every written artifact.
	PushToS3 bool `json:"push_to_s3"`
}

// CreateTranscriptionResponse is the HTTP response after submitting a run.
type CreateTranscriptionResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// DeleteTranscriptionResponse reports the final status of a deleted job.
type DeleteTranscriptionResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// TranscriptionResponse is the job view returned by GET /transcriptions/{id}.
type TranscriptionResponse struct {
	ID          string      `json:"id"`
	Status      string      `json:"status"`
	Request     job.Request `json:"request"`
	Result      *job.Result `json:"result,omitempty"`
	Error       string      `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Markdown    string      `json:"markdown,omitempty"`
}

// ListTranscriptionsResponse is the HTTP response for GET /transcriptions.
type ListTranscriptionsResponse struct {
	Transcriptions []TranscriptionResponse `json:"transcriptions"`
}

// TagsRequest is the HTTP request body for POST /tags.
type TagsRequest struct {
	// Segments is a Whisper segments array, kept raw so that a malformed
	// segment can be reported by index and field.
	Segments json.RawMessage `json:"segments" validate:"required"`
	// SourceURL is the page timestamps link to; empty links to local anchors.
	SourceURL string `json:"source_url" validate:"omitempty,url"`
}

// TagGroup is one rendered segment group.
type TagGroup struct {
	Segments []transcript.Segment `json:"segments"`
	Tags     []string             `json:"tags"`
	Markdown string               `json:"markdown"`
}

// TagsResponse is the HTTP response for POST /tags.
type TagsResponse struct {
	SourceURL string   `json:"source_url,omitempty"`
	Threshold float64  `json:"threshold"`
	All       TagGroup `json:"all"`
	Speech    TagGroup `json:"speech"`
	NoSpeech  TagGroup `json:"no_speech"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}
