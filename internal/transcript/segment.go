// Package transcript provides the segment model for Whisper transcription
// results and the speech/no-speech classifier that partitions them.
package transcript

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
)

// ErrMalformedSegment is matched by every MalformedSegmentError.
var ErrMalformedSegment = errors.New("malformed segment")

// Wire names of the segment fields. Whisper emits no_speech_prob; saved
// results use no_speech_probability. Both are accepted on input.
const (
	fieldStart           = "start"
	fieldEnd             = "end"
	fieldText            = "text"
	fieldNoSpeech        = "no_speech_probability"
	fieldNoSpeechWhisper = "no_speech_prob"
	fieldSegments        = "segments"
)

// Segment is one transcribed interval.
type Segment struct {
	// Start is the interval start in seconds.
	Start float64 `json:"start"`
	// End is the interval end in seconds.
	End float64 `json:"end"`
	// Text is the transcribed text; it may be empty or whitespace-only.
	Text string `json:"text"`
	// NoSpeechProbability is the model's estimate, in [0, 1], that the
	// interval holds no intelligible speech.
	NoSpeechProbability float64 `json:"no_speech_probability"`
}

// MalformedSegmentError reports a segment that is missing a required field
// or carries one with the wrong type. Index is -1 when the problem is the
// segments array itself.
type MalformedSegmentError struct {
	Index int
	Field string
	Err   error
}

func (e *MalformedSegmentError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("malformed transcription: field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("malformed segment %d: field %q: %v", e.Index, e.Field, e.Err)
}

func (e *MalformedSegmentError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrMalformedSegment) match any MalformedSegmentError.
func (e *MalformedSegmentError) Is(target error) bool {
	return target == ErrMalformedSegment
}

var errMissing = errors.New("missing")

// Result is a transcription result: the ordered segments plus any other
// top-level fields (language, duration, text, task ...) kept verbatim.
type Result struct {
	Segments []Segment
	Extra    map[string]json.RawMessage
}

// Parse decodes a transcription payload. Segment order is preserved.
// A segment lacking start, end, text or a no-speech probability aborts the
// whole parse with a *MalformedSegmentError.
func Parse(data []byte) (*Result, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("decode transcription: %w", err)
	}

	rawSegments, ok := top[fieldSegments]
	if !ok {
		return nil, &MalformedSegmentError{Index: -1, Field: fieldSegments, Err: errMissing}
	}
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(rawSegments, &items); err != nil {
		return nil, &MalformedSegmentError{Index: -1, Field: fieldSegments, Err: err}
	}

	segments := make([]Segment, 0, len(items))
	for i, item := range items {
		seg, err := parseSegment(i, item)
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}

	delete(top, fieldSegments)
	return &Result{Segments: segments, Extra: top}, nil
}

func parseSegment(index int, item map[string]json.RawMessage) (Segment, error) {
	var seg Segment
	if err := decodeField(index, item, fieldStart, &seg.Start); err != nil {
		return Segment{}, err
	}
	if err := decodeField(index, item, fieldEnd, &seg.End); err != nil {
		return Segment{}, err
	}
	if err := decodeField(index, item, fieldText, &seg.Text); err != nil {
		return Segment{}, err
	}

	probField := fieldNoSpeechWhisper
	if _, ok := item[probField]; !ok {
		probField = fieldNoSpeech
	}
	if err := decodeField(index, item, probField, &seg.NoSpeechProbability); err != nil {
		return Segment{}, err
	}
	return seg, nil
}

func decodeField(index int, item map[string]json.RawMessage, field string, dst any) error {
	raw, ok := item[field]
	if !ok || string(raw) == "null" {
		return &MalformedSegmentError{Index: index, Field: field, Err: errMissing}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &MalformedSegmentError{Index: index, Field: field, Err: err}
	}
	return nil
}

// WithSegments returns a result with the same pass-through fields and the
// given segments.
func (r *Result) WithSegments(segments []Segment) *Result {
	extra := make(map[string]json.RawMessage, len(r.Extra))
	for k, v := range r.Extra {
		extra[k] = v
	}
	return &Result{Segments: segments, Extra: extra}
}

// MarshalJSON writes the pass-through fields followed by the segments.
func (r *Result) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(r.Extra))
	for k := range r.Extra {
		if k == fieldSegments {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for _, k := range keys {
		if err := writeMember(&buf, k, r.Extra[k]); err != nil {
			return nil, err
		}
		buf.WriteByte(',')
	}

	segments := r.Segments
	if segments == nil {
		segments = []Segment{}
	}
	if err := writeMember(&buf, fieldSegments, segments); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeMember(buf *bytes.Buffer, key string, value any) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(key); err != nil {
		return fmt.Errorf("encode key %q: %w", key, err)
	}
	buf.Truncate(buf.Len() - 1) // Encode appends a newline
	buf.WriteByte(':')
	if err := enc.Encode(value); err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	buf.Truncate(buf.Len() - 1)
	return nil
}

// Encode writes the result as indented JSON (four spaces) with non-ASCII
// and HTML characters left as-is.
func Encode(w io.Writer, r *Result) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode transcription: %w", err)
	}
	return nil
}
