package transcriber

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/maauso/whisper-timestamps/internal/transcript"
)

// DefaultOpenAIModel is the model used when none is configured.
const DefaultOpenAIModel = openai.AudioModelWhisper1

// ErrAPIKeyRequired is returned when no OpenAI API key is provided.
var ErrAPIKeyRequired = errors.New("transcriber: OpenAI API key is required")

// OpenAI implements Transcriber with the OpenAI audio API.
type OpenAI struct {
	client openai.Client
	model  openai.AudioModel
	logger *slog.Logger

	reqOpts []option.RequestOption
}

// OpenAIOption configures an OpenAI transcriber.
type OpenAIOption func(*OpenAI)

// WithModel overrides the transcription model.
func WithModel(model string) OpenAIOption {
	return func(o *OpenAI) {
		if model != "" {
			o.model = openai.AudioModel(model)
		}
	}
}

// WithOpenAIBaseURL points the client at an OpenAI-compatible endpoint.
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(o *OpenAI) {
		if url != "" {
			o.reqOpts = append(o.reqOpts, option.WithBaseURL(url))
		}
	}
}

// WithOpenAIMaxRetries sets the SDK retry budget.
func WithOpenAIMaxRetries(n int) OpenAIOption {
	return func(o *OpenAI) {
		o.reqOpts = append(o.reqOpts, option.WithMaxRetries(n))
	}
}

// WithOpenAIHTTPClient sets a custom HTTP client.
func WithOpenAIHTTPClient(c *http.Client) OpenAIOption {
	return func(o *OpenAI) {
		o.reqOpts = append(o.reqOpts, option.WithHTTPClient(c))
	}
}

// WithOpenAIRequestTimeout bounds each HTTP attempt.
func WithOpenAIRequestTimeout(d time.Duration) OpenAIOption {
	return func(o *OpenAI) {
		o.reqOpts = append(o.reqOpts, option.WithRequestTimeout(d))
	}
}

// WithOpenAILogger sets the logger.
func WithOpenAILogger(l *slog.Logger) OpenAIOption {
	return func(o *OpenAI) {
		o.logger = l
	}
}

// NewOpenAI creates an OpenAI transcriber authenticated with apiKey.
func NewOpenAI(apiKey string, opts ...OpenAIOption) (*OpenAI, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}

	o := &OpenAI{
		model:  DefaultOpenAIModel,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, o.reqOpts...)
	o.client = openai.NewClient(reqOpts...)

	return o, nil
}

// Transcribe implements Transcriber. Translation requests go to the
// translations endpoint, which always answers in English.
func (o *OpenAI) Transcribe(ctx context.Context, req Request) (*transcript.Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	f, err := os.Open(req.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	defer func() { _ = f.Close() }()

	o.logger.Info("uploading audio",
		slog.String("path", req.AudioPath),
		slog.String("model", string(o.model)),
		slog.String("task", req.task()),
	)
	start := time.Now()

	var raw string
	if req.Translate {
		params := openai.AudioTranslationNewParams{
			File:           f,
			Model:          o.model,
			ResponseFormat: openai.AudioTranslationNewParamsResponseFormatVerboseJSON,
		}
		if req.Prompt != "" {
			params.Prompt = openai.String(req.Prompt)
		}
		res, err := o.client.Audio.Translations.New(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("openai translation: %w", err)
		}
		raw = res.RawJSON()
	} else {
		params := openai.AudioTranscriptionNewParams{
			File:           f,
			Model:          o.model,
			ResponseFormat: openai.AudioResponseFormatVerboseJSON,
		}
		if req.Prompt != "" {
			params.Prompt = openai.String(req.Prompt)
		}
		if req.Language != "" {
			params.Language = openai.String(req.Language)
		}
		res, err := o.client.Audio.Transcriptions.New(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("openai transcription: %w", err)
		}
		raw = res.RawJSON()
	}

	result, err := transcript.Parse([]byte(raw))
	if err != nil {
		return nil, err
	}

	o.logger.Info("transcription received",
		slog.Int("segments", len(result.Segments)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}
