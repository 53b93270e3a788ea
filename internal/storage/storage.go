// Package storage persists pipeline artifacts under a working directory
// and optionally mirrors them to S3.
package storage

import (
	"context"
	"io"
	"strings"
)

// Storage defines the interface for artifact storage.
// Names are slash-separated paths relative to Root, e.g. "jsons/talk.json".
type Storage interface {
	// Root returns the directory every name is resolved against.
	Root() string

	// Save writes data under name and returns the absolute path. The write
	// is atomic: readers see either the previous content or the new one,
	// never a partial file.
	Save(ctx context.Context, name string, data io.Reader) (path string, err error)

	// Load opens the artifact stored under name.
	// The caller is responsible for closing the returned ReadCloser.
	Load(ctx context.Context, name string) (io.ReadCloser, error)

	// Find returns the names matching a glob pattern relative to Root,
	// sorted. Literal parts of the pattern must be escaped with EscapeGlob.
	Find(ctx context.Context, pattern string) ([]string, error)

	// Remove deletes the given names. Missing names are ignored and
	// removal continues past individual failures.
	Remove(ctx context.Context, names []string) error

	// UploadToS3 uploads data to S3 and returns the public URL.
	// Returns ErrS3NotConfigured if S3 is not configured.
	UploadToS3(ctx context.Context, key string, data io.Reader) (url string, err error)
}

var globReplacer = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`)

// EscapeGlob escapes the glob metacharacters in s so it matches literally.
// Video ids and file stems may contain brackets ("talk[English]").
func EscapeGlob(s string) string {
	return globReplacer.Replace(s)
}
