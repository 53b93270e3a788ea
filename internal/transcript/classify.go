package transcript

// DefaultNoSpeechThreshold separates silence and noise from speech. It
// matches Whisper's own no_speech_threshold default.
const DefaultNoSpeechThreshold = 0.6

// Classify splits segments into speech and no-speech groups using
// DefaultNoSpeechThreshold.
func Classify(segments []Segment) (speech, noSpeech []Segment) {
	return ClassifyWithThreshold(segments, DefaultNoSpeechThreshold)
}

// ClassifyWithThreshold puts a segment into noSpeech iff its no-speech
// probability is strictly greater than threshold. Both groups keep input
// order and are never nil.
func ClassifyWithThreshold(segments []Segment, threshold float64) (speech, noSpeech []Segment) {
	speech = make([]Segment, 0, len(segments))
	noSpeech = make([]Segment, 0)
	for _, seg := range segments {
		if seg.NoSpeechProbability > threshold {
			noSpeech = append(noSpeech, seg)
			continue
		}
		speech = append(speech, seg)
	}
	return speech, noSpeech
}
