// Package tagger renders transcript segments as markdown lines whose
// timestamps link to the matching playback position of the source media.
package tagger

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// TimeParam is the start-time query parameter understood by the video
// platform audio is downloaded from. Its value is whole seconds.
const TimeParam = "t"

// ErrMalformedSourceURL is returned by CheckSourceURL for values that are
// not absolute http(s) URLs. It is advisory: Link still appends the time
// parameter to such values.
var ErrMalformedSourceURL = errors.New("malformed source URL")

// Link returns the HH:MM:SS label for seconds and the link target for it.
// With an empty sourceURL the target is an in-document anchor; otherwise it
// is sourceURL with the time parameter appended.
func Link(seconds float64, sourceURL string) (label, href string) {
	whole := wholeSeconds(seconds)
	label = formatLabel(whole)
	if sourceURL == "" {
		return label, "#" + label
	}
	return label, appendTimeParam(sourceURL, whole)
}

// CheckSourceURL reports whether raw looks like a linkable media URL.
func CheckSourceURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedSourceURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrMalformedSourceURL, raw)
	}
	return nil
}

// wholeSeconds truncates toward zero and clamps to [0, math.MaxInt64].
func wholeSeconds(seconds float64) int64 {
	switch {
	case seconds <= 0 || math.IsNaN(seconds):
		return 0
	case seconds >= math.MaxInt64:
		return math.MaxInt64
	}
	return int64(math.Trunc(seconds))
}

func formatLabel(total int64) string {
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// appendTimeParam adds t=<seconds> to the query of raw without parsing or
// re-encoding it, so existing parameters survive byte-for-byte.
func appendTimeParam(raw string, seconds int64) string {
	base, fragment, hasFragment := strings.Cut(raw, "#")

	var sep string
	switch {
	case !strings.Contains(base, "?"):
		sep = "?"
	case strings.HasSuffix(base, "?"), strings.HasSuffix(base, "&"):
		sep = ""
	default:
		sep = "&"
	}

	linked := base + sep + TimeParam + "=" + strconv.FormatInt(seconds, 10)
	if hasFragment {
		linked += "#" + fragment
	}
	return linked
}
