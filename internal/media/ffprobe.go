package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
)

// FFprobe implements Prober using the ffprobe CLI.
type FFprobe struct {
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
}

// NewFFprobe creates a new FFprobe.
// If ffprobePath is empty, it defaults to "ffprobe" (found via PATH).
func NewFFprobe(ffprobePath string) *FFprobe {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFprobe{ffprobePath: ffprobePath}
}

// Probe runs ffprobe and decodes its JSON report.
func (p *FFprobe) Probe(ctx context.Context, path string) (*Metadata, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	out, err := p.runFFprobe(ctx, args)
	if err != nil {
		return nil, err
	}

	return parseProbeOutput(out)
}

func parseProbeOutput(out []byte) (*Metadata, error) {
	var meta Metadata
	if err := json.Unmarshal(out, &meta); err != nil {
		return nil, fmt.Errorf("decode ffprobe output: %w", err)
	}
	return &meta, nil
}

// runFFprobe executes ffprobe with the given arguments and returns stdout.
// Failures carry stderr in an FFprobeError.
func (p *FFprobe) runFFprobe(ctx context.Context, args []string) ([]byte, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return nil, &FFprobeError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return stdout.Bytes(), nil
}

// FFprobeError represents an error from running ffprobe, including the stderr output.
type FFprobeError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFprobeError) Error() string {
	return fmt.Sprintf("ffprobe error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFprobeError) Unwrap() error {
	return e.Err
}
