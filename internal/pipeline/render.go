package pipeline

import (
	"bytes"
	"fmt"

	"github.com/maauso/whisper-timestamps/internal/tagger"
	"github.com/maauso/whisper-timestamps/internal/transcript"
)

// Group names. The suffix of each group's artifacts is derived from them.
const (
	GroupAll      = "all"
	GroupSpeech   = "speech"
	GroupNoSpeech = "no_speech"
)

// Group is one rendered segment set.
type Group struct {
	Name     string
	Result   *transcript.Result
	Tags     []string
	Markdown []byte
}

// Suffix returns the artifact name suffix: "" for all, "-speech" or
// "-no_speech" for the partitions.
func (g Group) Suffix() string {
	if g.Name == GroupAll {
		return ""
	}
	return "-" + g.Name
}

// Rendering holds every group of a transcription, rendered in memory.
type Rendering struct {
	All      Group
	Speech   Group
	NoSpeech Group
}

// Split reports whether the transcription has any no-speech segment, in
// which case the partitions are worth persisting separately.
func (r *Rendering) Split() bool {
	return len(r.NoSpeech.Result.Segments) > 0
}

// Groups returns the groups in output order.
func (r *Rendering) Groups() []Group {
	return []Group{r.All, r.Speech, r.NoSpeech}
}

// Lookup returns the group with the given name.
func (r *Rendering) Lookup(name string) (Group, error) {
	for _, g := range r.Groups() {
		if g.Name == name {
			return g, nil
		}
	}
	return Group{}, fmt.Errorf("%w: %q", ErrUnknownGroup, name)
}

// Render classifies result with the fixed no-speech threshold and renders
// the tags of every group. It is pure and never touches storage.
func Render(result *transcript.Result, sourceURL string) *Rendering {
	speech, noSpeech := transcript.Classify(result.Segments)

	group := func(name string, r *transcript.Result) Group {
		tags := tagger.Render(r.Segments, sourceURL)
		return Group{
			Name:     name,
			Result:   r,
			Tags:     tags,
			Markdown: tagger.Markdown(tags),
		}
	}

	return &Rendering{
		All:      group(GroupAll, result),
		Speech:   group(GroupSpeech, result.WithSegments(speech)),
		NoSpeech: group(GroupNoSpeech, result.WithSegments(noSpeech)),
	}
}

// encodeJSON renders the transcription artifact bytes.
func encodeJSON(r *transcript.Result) ([]byte, error) {
	var buf bytes.Buffer
	if err := transcript.Encode(&buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
