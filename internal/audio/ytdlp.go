package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// destinationPattern matches both the fresh download line and the
// already-downloaded notice yt-dlp prints for every post-processor.
var destinationPattern = regexp.MustCompile(`\[(?:.*)\] (?:Destination: (.*)|(.*) has already been downloaded)`)

// YTDLP implements Downloader using the yt-dlp CLI.
type YTDLP struct {
	// ytdlpPath is the path to the yt-dlp binary. Defaults to "yt-dlp".
	ytdlpPath string
}

// NewYTDLP creates a new YTDLP.
// If ytdlpPath is empty, it defaults to "yt-dlp" (found in PATH).
func NewYTDLP(ytdlpPath string) *YTDLP {
	if ytdlpPath == "" {
		ytdlpPath = "yt-dlp"
	}
	return &YTDLP{ytdlpPath: ytdlpPath}
}

// VideoID implements Downloader.VideoID.
func (y *YTDLP) VideoID(ctx context.Context, url string) (string, error) {
	out, err := y.run(ctx, []string{"--get-id", url})
	if err != nil {
		return "", err
	}

	id := strings.TrimSpace(out)
	if id == "" {
		return "", fmt.Errorf("yt-dlp returned no id for %s", url)
	}
	// Playlists print one id per line; the first entry is the one downloaded.
	if i := strings.IndexByte(id, '\n'); i >= 0 {
		id = strings.TrimSpace(id[:i])
	}
	return id, nil
}

// Download implements Downloader.Download.
func (y *YTDLP) Download(ctx context.Context, url, dir string) (string, error) {
	out, err := y.run(ctx, downloadArgs(url, dir))
	if err != nil {
		return "", err
	}
	return parseDestination(out)
}

func downloadArgs(url, dir string) []string {
	return []string{
		"--format", "bestaudio/best",
		"--format-sort", "+size,+br,+res,+fps",
		"--extract-audio",
		"--paths", dir,
		"--output", "%(id)s.%(ext)s",
		"--embed-metadata",
		url,
	}
}

// parseDestination returns the last destination yt-dlp reported. The audio
// extractor runs after the download, so its line names the final file.
func parseDestination(out string) (string, error) {
	matches := destinationPattern.FindAllStringSubmatch(out, -1)
	if len(matches) == 0 {
		return "", ErrNoDestination
	}

	last := matches[len(matches)-1]
	path := last[1]
	if path == "" {
		path = last[2]
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return "", ErrNoDestination
	}
	return path, nil
}

func (y *YTDLP) run(ctx context.Context, args []string) (string, error) {
	// #nosec G204 - ytdlpPath is set by the application; the url is passed as a single argument
	cmd := exec.CommandContext(ctx, y.ytdlpPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("yt-dlp cancelled: %w", ctx.Err())
		}
		return "", &YTDLPError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return stdout.String(), nil
}

// YTDLPError represents an error from running yt-dlp, including the stderr output.
type YTDLPError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *YTDLPError) Error() string {
	return fmt.Sprintf("yt-dlp error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *YTDLPError) Unwrap() error {
	return e.Err
}
