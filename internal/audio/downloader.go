// Package audio acquires source audio for transcription.
package audio

import (
	"context"
	"errors"
	"regexp"
)

// ErrNoDestination is returned when yt-dlp output names no destination file.
var ErrNoDestination = errors.New("audio: no destination in downloader output")

var remotePattern = regexp.MustCompile(`^https?://`)

// Downloader fetches the audio track of an online video.
type Downloader interface {
	// VideoID returns the extractor's identifier for url. Downloaded files
	// are named after it, so callers can look for an earlier download.
	VideoID(ctx context.Context, url string) (string, error)

	// Download extracts the best audio track of url into dir and returns
	// the path of the resulting file.
	Download(ctx context.Context, url, dir string) (string, error)
}

// IsRemote reports whether input is an http(s) URL rather than a local path.
func IsRemote(input string) bool {
	return remotePattern.MatchString(input)
}
