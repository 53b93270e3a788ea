// Package id provides unique identifier generation for jobs.
package id

import "github.com/google/uuid"

// Prefix starts every job ID.
const Prefix = "job-"

// Generate creates a new unique job ID.
// Format: job-<uuid v4>
// Example: job-9b2f3c1e-4a8d-4e6b-9c1f-2d3e4f5a6b7c
func Generate() string {
	return Prefix + uuid.NewString()
}

// Valid reports whether s has the shape produced by Generate.
func Valid(s string) bool {
	if len(s) <= len(Prefix) || s[:len(Prefix)] != Prefix {
		return false
	}
	_, err := uuid.Parse(s[len(Prefix):])
	return err == nil
}
