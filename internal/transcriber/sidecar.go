package transcriber

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/maauso/whisper-timestamps/internal/transcript"
)

// DefaultSidecarModel is the faster-whisper model requested when none is set.
const DefaultSidecarModel = "base"

// Static errors for sidecar operations.
var (
	// ErrSidecarURLRequired is returned when the sidecar base URL is not provided.
	ErrSidecarURLRequired = errors.New("transcriber: sidecar URL is required")
	// ErrServerError is returned when the sidecar returns a 5xx status code.
	ErrServerError = errors.New("transcriber: server error")
	// ErrRateLimited is returned when the sidecar returns a 429 status code.
	ErrRateLimited = errors.New("transcriber: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("transcriber: request failed")
)

// Sidecar implements Transcriber against a self-hosted faster-whisper
// HTTP sidecar exposing POST /transcribe.
type Sidecar struct {
	baseURL     string
	model       string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
	logger      *slog.Logger
}

// SidecarOption is a function that configures a Sidecar.
type SidecarOption func(*Sidecar)

// WithSidecarModel sets the model name sent with each request.
func WithSidecarModel(model string) SidecarOption {
	return func(s *Sidecar) {
		if model != "" {
			s.model = model
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) SidecarOption {
	return func(s *Sidecar) {
		s.httpClient = c
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) SidecarOption {
	return func(s *Sidecar) {
		s.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) SidecarOption {
	return func(s *Sidecar) {
		s.baseBackoff = d
	}
}

// WithSidecarLogger sets the logger.
func WithSidecarLogger(l *slog.Logger) SidecarOption {
	return func(s *Sidecar) {
		s.logger = l
	}
}

// NewSidecar creates a sidecar transcriber rooted at baseURL.
func NewSidecar(baseURL string, opts ...SidecarOption) (*Sidecar, error) {
	if baseURL == "" {
		return nil, ErrSidecarURLRequired
	}

	s := &Sidecar{
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       DefaultSidecarModel,
		httpClient:  &http.Client{Timeout: 10 * time.Minute},
		maxRetries:  3,
		baseBackoff: 1 * time.Second,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Transcribe implements Transcriber.
func (s *Sidecar) Transcribe(ctx context.Context, req Request) (*transcript.Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	body, contentType, err := s.buildForm(req)
	if err != nil {
		return nil, err
	}

	s.logger.Info("uploading audio to sidecar",
		slog.String("path", req.AudioPath),
		slog.String("model", s.model),
		slog.String("task", req.task()),
	)

	respBody, err := s.doRequestWithRetry(ctx, s.baseURL+"/transcribe", body, contentType)
	if err != nil {
		return nil, err
	}

	return transcript.Parse(respBody)
}

// buildForm encodes the upload once so every retry sends identical bytes.
func (s *Sidecar) buildForm(req Request) ([]byte, string, error) {
	audio, err := os.ReadFile(req.AudioPath)
	if err != nil {
		return nil, "", fmt.Errorf("read audio file: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("audio", filepath.Base(req.AudioPath))
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, "", fmt.Errorf("write audio data: %w", err)
	}

	fields := [][2]string{
		{"model", s.model},
		{"task", req.task()},
		{"response_format", "verbose_json"},
	}
	if req.Language != "" && !req.Translate {
		fields = append(fields, [2]string{"language", req.Language})
	}
	if req.Prompt != "" {
		fields = append(fields, [2]string{"prompt", req.Prompt})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f[0], err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}

	return buf.Bytes(), w.FormDataContentType(), nil
}

// doRequestWithRetry performs the upload with exponential backoff retry.
func (s *Sidecar) doRequestWithRetry(ctx context.Context, url string, body []byte, contentType string) ([]byte, error) {
	var lastErr error
	backoff := s.baseBackoff

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			s.logger.Warn("retrying sidecar request",
				slog.Int("attempt", attempt),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("transcriber: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		respBody, err := s.doRequest(ctx, url, body, contentType)
		if err == nil {
			return respBody, nil
		}

		if !isRetryable(err) {
			return nil, err
		}

		lastErr = err
	}

	return nil, fmt.Errorf("transcriber: max retries exceeded: %w", lastErr)
}

// doRequest performs a single HTTP request.
func (s *Sidecar) doRequest(ctx context.Context, url string, body []byte, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("transcriber: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("transcriber: context cancelled: %w", ctx.Err())
		}
		return nil, &retryableError{err: fmt.Errorf("transcriber: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("transcriber: read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return nil, &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody))}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, string(respBody))}
		}
		return nil, fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
