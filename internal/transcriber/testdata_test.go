package transcriber

import (
	"os"
	"path/filepath"
	"testing"
)

const verboseResponse = `{
  "task": "transcribe",
  "language": "english",
  "duration": 12.0,
  "text": "hello world",
  "segments": [
    {"id": 0, "seek": 0, "start": 0.0, "end": 5.0, "text": " hello", "avg_logprob": -0.2, "compression_ratio": 1.1, "no_speech_prob": 0.1},
    {"id": 1, "seek": 0, "start": 5.0, "end": 8.0, "text": "", "avg_logprob": -1.0, "compression_ratio": 0.5, "no_speech_prob": 0.95},
    {"id": 2, "seek": 0, "start": 8.0, "end": 12.0, "text": " world", "avg_logprob": -0.3, "compression_ratio": 1.2, "no_speech_prob": 0.2}
  ]
}`

const malformedResponse = `{
  "text": "hello",
  "segments": [
    {"id": 0, "start": 0.0, "end": 5.0, "text": " hello", "no_speech_prob": 0.1},
    {"id": 1, "start": 5.0, "text": " missing end", "no_speech_prob": 0.2}
  ]
}`

// writeAudio writes a placeholder audio file; the servers never decode it.
func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "talk.mp3")
	if err := os.WriteFile(path, []byte("fake mp3 bytes"), 0o600); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	return path
}
