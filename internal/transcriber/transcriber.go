// Package transcriber turns audio files into Whisper verbose transcriptions.
package transcriber

import (
	"context"
	"errors"

	"github.com/maauso/whisper-timestamps/internal/transcript"
)

// ErrAudioPathRequired is returned when a Request carries no audio path.
var ErrAudioPathRequired = errors.New("transcriber: audio path is required")

// Request describes one transcription call.
type Request struct {
	// AudioPath is the local file to upload.
	AudioPath string
	// Prompt guides the model's style or vocabulary. Optional.
	Prompt string
	// Language is the ISO-639-1 code of the spoken language. Optional;
	// ignored when Translate is set.
	Language string
	// Translate asks for an English translation instead of a transcription.
	Translate bool
}

// Transcriber produces a segment-level transcription of an audio file.
type Transcriber interface {
	// Transcribe uploads the audio and returns the parsed verbose result.
	// Payloads whose segments lack a required field fail with a
	// *transcript.MalformedSegmentError.
	Transcribe(ctx context.Context, req Request) (*transcript.Result, error)
}

func (r Request) validate() error {
	if r.AudioPath == "" {
		return ErrAudioPathRequired
	}
	return nil
}

// task names the Whisper task for the request.
func (r Request) task() string {
	if r.Translate {
		return "translate"
	}
	return "transcribe"
}
