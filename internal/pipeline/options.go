package pipeline

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Options describes one pipeline run.
type Options struct {
	// Input is a local audio path or an http(s) video URL.
	Input string `json:"input" validate:"required"`
	// Prompt is passed to the transcriber verbatim.
	Prompt string `json:"prompt,omitempty"`
	// Language is an optional ISO-639-1 code such as "en".
	Language string `json:"language,omitempty" validate:"omitempty,len=2,alpha,lowercase"`
	// Translate produces an English translation; artifact names get an
	// "[English]" suffix.
	Translate bool `json:"translate,omitempty"`
	// PushToS3 uploads every written artifact.
	PushToS3 bool `json:"push_to_s3,omitempty"`

	// Resolver overrides the service's conflict resolver for this run.
	Resolver ConflictResolver `json:"-" validate:"-"`
}

// Validate checks field constraints.
func (o Options) Validate() error {
	if err := optionsValidator.Struct(o); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	return nil
}

var optionsValidator = validator.New()
