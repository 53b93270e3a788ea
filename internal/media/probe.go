// Package media inspects local media files with ffprobe.
package media

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// SourceURLTag is the container tag that yt-dlp --embed-metadata fills with
// the page URL of the downloaded video.
const SourceURLTag = "comment"

// Static errors for media operations.
var (
	// ErrNoSourceURL is returned when a file carries no source URL tag.
	ErrNoSourceURL = errors.New("media: no source URL tag")
	// ErrNoDuration is returned when ffprobe reports no container duration.
	ErrNoDuration = errors.New("media: no duration")
)

// supportedExtensions are the audio containers accepted by the Whisper API.
var supportedExtensions = []string{".mp3", ".mp4", ".mpeg", ".mpga", ".m4a", ".wav", ".webm"}

// Prober reads container metadata from local media files. The embedded
// source URL, the duration and the audio check all come from one report.
type Prober interface {
	// Probe returns the format and stream metadata of the file at path.
	Probe(ctx context.Context, path string) (*Metadata, error)
}

// Metadata is the subset of ffprobe's JSON output used by this module.
type Metadata struct {
	Format  Format   `json:"format"`
	Streams []Stream `json:"streams"`
}

// Format describes the container.
type Format struct {
	Filename   string            `json:"filename"`
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
	Tags       map[string]string `json:"tags"`
}

// Stream describes a single elementary stream.
type Stream struct {
	Index     int    `json:"index"`
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
}

// Tag looks up a container tag by name. Containers disagree on tag casing
// (mp4 writes "comment", matroska "COMMENT"), so the match ignores case.
func (m *Metadata) Tag(name string) (string, bool) {
	if v, ok := m.Format.Tags[name]; ok {
		return v, true
	}
	for k, v := range m.Format.Tags {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// SourceURL returns the trimmed comment tag or ErrNoSourceURL.
func (m *Metadata) SourceURL() (string, error) {
	v, ok := m.Tag(SourceURLTag)
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return "", ErrNoSourceURL
	}
	return v, nil
}

// Seconds parses the container duration.
func (m *Metadata) Seconds() (float64, error) {
	if m.Format.Duration == "" || m.Format.Duration == "N/A" {
		return 0, ErrNoDuration
	}
	d, err := strconv.ParseFloat(m.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", m.Format.Duration, err)
	}
	return d, nil
}

// HasAudio reports whether the file carries at least one audio stream.
func (m *Metadata) HasAudio() bool {
	for _, s := range m.Streams {
		if s.CodecType == "audio" {
			return true
		}
	}
	return false
}

// SupportedExtension reports whether path ends in one of the accepted
// audio extensions. The comparison ignores case.
func SupportedExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range supportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// SupportedExtensions returns the accepted extensions, dot included.
func SupportedExtensions() []string {
	out := make([]string, len(supportedExtensions))
	copy(out, supportedExtensions)
	return out
}
