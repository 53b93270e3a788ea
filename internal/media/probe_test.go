package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProbe = `{
    "streams": [
        {"index": 0, "codec_name": "opus", "codec_type": "audio"}
    ],
    "format": {
        "filename": "audios/abc.webm",
        "format_name": "matroska,webm",
        "duration": "212.481000",
        "tags": {
            "title": "A talk",
            "COMMENT": "https://www.youtube.com/watch?v=abc"
        }
    }
}`

func TestParseProbeOutput(t *testing.T) {
	meta, err := parseProbeOutput([]byte(sampleProbe))
	require.NoError(t, err)

	assert.Equal(t, "audios/abc.webm", meta.Format.Filename)
	assert.True(t, meta.HasAudio())

	url, err := meta.SourceURL()
	require.NoError(t, err)
	assert.Equal(t, "https://www.youtube.com/watch?v=abc", url)

	d, err := meta.Seconds()
	require.NoError(t, err)
	assert.InDelta(t, 212.481, d, 1e-9)
}

func TestParseProbeOutput_Invalid(t *testing.T) {
	_, err := parseProbeOutput([]byte("not json"))
	assert.Error(t, err)
}

func TestMetadata_Tag(t *testing.T) {
	meta := &Metadata{Format: Format{Tags: map[string]string{
		"comment": "exact",
		"Title":   "mixed",
	}}}

	v, ok := meta.Tag("comment")
	assert.True(t, ok)
	assert.Equal(t, "exact", v)

	v, ok = meta.Tag("TITLE")
	assert.True(t, ok)
	assert.Equal(t, "mixed", v)

	_, ok = meta.Tag("artist")
	assert.False(t, ok)
}

func TestMetadata_SourceURL_Missing(t *testing.T) {
	tests := []struct {
		name string
		tags map[string]string
	}{
		{"no tags", nil},
		{"other tags", map[string]string{"title": "x"}},
		{"blank comment", map[string]string{"comment": "   "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := &Metadata{Format: Format{Tags: tt.tags}}
			_, err := meta.SourceURL()
			assert.ErrorIs(t, err, ErrNoSourceURL)
		})
	}
}

func TestMetadata_Seconds(t *testing.T) {
	_, err := (&Metadata{}).Seconds()
	assert.ErrorIs(t, err, ErrNoDuration)

	_, err = (&Metadata{Format: Format{Duration: "N/A"}}).Seconds()
	assert.ErrorIs(t, err, ErrNoDuration)

	_, err = (&Metadata{Format: Format{Duration: "abc"}}).Seconds()
	assert.Error(t, err)
}

func TestMetadata_HasAudio(t *testing.T) {
	meta := &Metadata{Streams: []Stream{{Index: 0, CodecType: "video"}}}
	assert.False(t, meta.HasAudio())

	meta.Streams = append(meta.Streams, Stream{Index: 1, CodecType: "audio", CodecName: "aac"})
	assert.True(t, meta.HasAudio())

	assert.False(t, (&Metadata{}).HasAudio())
}

func TestSupportedExtension(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"talk.mp3", true},
		{"talk.mp4", true},
		{"talk.mpeg", true},
		{"talk.mpga", true},
		{"talk.m4a", true},
		{"talk.wav", true},
		{"talk.webm", true},
		{"dir/Talk.MP3", true},
		{"talk.ogg", false},
		{"talk.flac", false},
		{"talk", false},
		{"mp3", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, SupportedExtension(tt.path))
		})
	}
}

func TestSupportedExtensions_ReturnsCopy(t *testing.T) {
	exts := SupportedExtensions()
	exts[0] = ".ogg"
	assert.False(t, SupportedExtension("a.ogg"))
}
