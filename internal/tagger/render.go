package tagger

import (
	"strings"

	"github.com/maauso/whisper-timestamps/internal/transcript"
)

// LineSeparator joins tags in the markdown artifact: a backslash hard line
// break followed by a newline.
const LineSeparator = "\\\n"

// Render produces one tag per segment, in order:
//
//	[HH:MM:SS](href) text
//
// Segments with empty text still get a tag.
func Render(segments []transcript.Segment, sourceURL string) []string {
	tags := make([]string, 0, len(segments))
	for _, seg := range segments {
		tags = append(tags, Tag(seg, sourceURL))
	}
	return tags
}

// Tag renders a single segment.
func Tag(seg transcript.Segment, sourceURL string) string {
	label, href := Link(seg.Start, sourceURL)
	return "[" + label + "](" + href + ") " + strings.TrimSpace(seg.Text)
}

// Markdown joins tags into the markdown artifact body, ending with a single
// newline.
func Markdown(tags []string) []byte {
	return []byte(strings.Join(tags, LineSeparator) + "\n")
}
