package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/whisper-timestamps/internal/job"
	"github.com/maauso/whisper-timestamps/internal/pipeline"
	"github.com/maauso/whisper-timestamps/internal/transcript"
)

// maxTagsBody bounds POST /tags request bodies.
const maxTagsBody = 16 << 20

// ArtifactLoader opens stored artifacts by name. storage.Storage
// satisfies it.
type ArtifactLoader interface {
	Load(ctx context.Context, name string) (io.ReadCloser, error)
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service            *job.Service
	artifacts          ArtifactLoader
	validator          *validator.Validate
	logger             *slog.Logger
	enableAsyncProcess bool
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateTranscription only creates the job and returns
// immediately without starting the pipeline.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// NewHandlers creates a new Handlers instance. Completed jobs have their
// tags read back through artifacts.
func NewHandlers(service *job.Service, artifacts ArtifactLoader, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:            service,
		artifacts:          artifacts,
		validator:          validator.New(),
		logger:             logger,
		enableAsyncProcess: true,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateTranscription handles POST /transcriptions requests.
func (h *Handlers) CreateTranscription(w http.ResponseWriter, r *http.Request) {
	var req CreateTranscriptionRequest
	if !h.decode(w, r, &req) {
		return
	}

	created, err := h.service.CreateJob(r.Context(), job.Request{
		Input:     req.Input,
		Prompt:    req.Prompt,
		Language:  req.Language,
		Translate: req.Translate,
		Overwrite: req.Overwrite,
		PushToS3:  req.PushToS3,
	})
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalidOptions) {
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
			return
		}
		h.logger.Error("failed to create job",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
		return
	}

	// The pipeline outlives the request, so it runs on a detached context.
	if h.enableAsyncProcess {
		go func(ctx context.Context, jobID string) {
			_, processErr := h.service.ProcessExistingJob(ctx, jobID)
			switch {
			case processErr == nil:
			case errors.Is(processErr, context.Canceled):
				h.logger.Info("background processing cancelled", slog.String("job_id", jobID))
			default:
				h.logger.Error("background processing failed",
					slog.String("job_id", jobID),
					slog.String("error", processErr.Error()),
				)
			}
		}(context.WithoutCancel(r.Context()), created.ID)
	}

	h.logger.Info("transcription submitted",
		slog.String("job_id", created.ID),
		slog.String("input", req.Input),
	)

	writeJSON(w, http.StatusAccepted, CreateTranscriptionResponse{
		ID:     created.ID,
		Status: string(created.Status),
	})
}

// ListTranscriptions handles GET /transcriptions requests.
func (h *Handlers) ListTranscriptions(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_FETCH_FAILED")
		return
	}

	resp := ListTranscriptionsResponse{Transcriptions: make([]TranscriptionResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Transcriptions = append(resp.Transcriptions, toTranscriptionResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetTranscription handles GET /transcriptions/{id} requests.
func (h *Handlers) GetTranscription(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	found, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	resp := toTranscriptionResponse(found)
	if found.Status == job.StatusCompleted {
		resp.Markdown = h.markdown(r.Context(), found)
	}

	writeJSON(w, http.StatusOK, resp)
}

// DeleteTranscription handles DELETE /transcriptions/{id} requests. An
// unfinished job is cancelled before it is removed; artifacts stay on disk.
func (h *Handlers) DeleteTranscription(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	deleted, err := h.service.DeleteJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to delete job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to delete job", "JOB_DELETE_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, DeleteTranscriptionResponse{
		ID:     deleted.ID,
		Status: string(deleted.GetStatus()),
	})
}

// markdown returns the all-segments tags of a completed job. Tags pushed to
// S3 are linked from the result instead. A reused run rewrites no tags file,
// so the name is derived from the base name rather than the artifacts.
func (h *Handlers) markdown(ctx context.Context, j *job.Job) string {
	if h.artifacts == nil || j.Result.BaseName == "" {
		return ""
	}
	if a, ok := allTags(j.Result); ok && a.URL != "" {
		return ""
	}

	name := pipeline.TagsName(j.Result.BaseName)
	rc, err := h.artifacts.Load(ctx, name)
	if err != nil {
		h.logger.Warn("failed to open tags",
			slog.String("job_id", j.ID),
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		return ""
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		h.logger.Warn("failed to read tags",
			slog.String("job_id", j.ID),
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return string(data)
}

// RenderTags handles POST /tags requests. It classifies the posted
// segments and renders tags for every group without touching storage.
func (h *Handlers) RenderTags(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxTagsBody)

	var req TagsRequest
	if !h.decode(w, r, &req) {
		return
	}

	payload, err := json.Marshal(map[string]json.RawMessage{"segments": req.Segments})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_SEGMENTS")
		return
	}
	result, err := transcript.Parse(payload)
	if err != nil {
		var malformed *transcript.MalformedSegmentError
		if errors.As(err, &malformed) {
			writeError(w, http.StatusBadRequest, err.Error(), "MALFORMED_SEGMENT")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_SEGMENTS")
		return
	}

	rendering := pipeline.Render(result, req.SourceURL)

	writeJSON(w, http.StatusOK, TagsResponse{
		SourceURL: req.SourceURL,
		Threshold: transcript.DefaultNoSpeechThreshold,
		All:       toTagGroup(rendering.All),
		Speech:    toTagGroup(rendering.Speech),
		NoSpeech:  toTagGroup(rendering.NoSpeech),
	})
}

// decode reads and validates a JSON body, writing the error response
// itself when it returns false.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

func toTranscriptionResponse(j *job.Job) TranscriptionResponse {
	resp := TranscriptionResponse{
		ID:          j.ID,
		Status:      string(j.Status),
		Request:     j.Request,
		Error:       j.Error,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   timeOrNil(j.StartedAt),
		CompletedAt: timeOrNil(j.CompletedAt),
	}
	if j.Status == job.StatusCompleted {
		result := j.Result
		resp.Result = &result
	}
	return resp
}

func allTags(result job.Result) (job.Artifact, bool) {
	for _, a := range result.Artifacts {
		if a.Kind == pipeline.KindTags && a.Group == pipeline.GroupAll {
			return a, true
		}
	}
	return job.Artifact{}, false
}

func toTagGroup(g pipeline.Group) TagGroup {
	return TagGroup{
		Segments: g.Result.Segments,
		Tags:     g.Tags,
		Markdown: string(g.Markdown),
	}
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
