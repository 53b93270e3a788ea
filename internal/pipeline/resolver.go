package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Decision is the answer to "this artifact already exists, what now?".
type Decision int

const (
	// Reuse keeps the existing file and skips regenerating it.
	Reuse Decision = iota
	// Overwrite regenerates the file and replaces it.
	Overwrite
)

// ErrUnknownDecision is returned by ParseDecision for unrecognised names.
var ErrUnknownDecision = errors.New("pipeline: unknown conflict decision")

func (d Decision) String() string {
	switch d {
	case Reuse:
		return "reuse"
	case Overwrite:
		return "overwrite"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// ParseDecision maps "reuse" or "overwrite" to a Decision.
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "reuse":
		return Reuse, nil
	case "overwrite":
		return Overwrite, nil
	default:
		return Reuse, fmt.Errorf("%w: %q", ErrUnknownDecision, s)
	}
}

// ConflictResolver decides what to do with an artifact that already exists.
type ConflictResolver interface {
	Resolve(ctx context.Context, path string) (Decision, error)
}

// StaticResolver answers every conflict with the same decision.
type StaticResolver struct {
	Decision Decision
}

// Resolve implements ConflictResolver.
func (s StaticResolver) Resolve(context.Context, string) (Decision, error) {
	return s.Decision, nil
}

// PromptResolver asks on a terminal. Anything other than y/yes keeps the
// existing file, including end of input.
type PromptResolver struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

// NewPromptResolver reads answers from in and writes questions to out.
func NewPromptResolver(in io.Reader, out io.Writer) *PromptResolver {
	return &PromptResolver{in: bufio.NewReader(in), out: out}
}

// Resolve implements ConflictResolver.
func (p *PromptResolver) Resolve(ctx context.Context, path string) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Reuse, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := fmt.Fprintf(p.out, "File %q already exists. Overwrite? Default is \"no\". [(y)es/(n)o] ", path); err != nil {
		return Reuse, fmt.Errorf("write prompt: %w", err)
	}

	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return Reuse, fmt.Errorf("read answer: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return Overwrite, nil
	default:
		return Reuse, nil
	}
}
