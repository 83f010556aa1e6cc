package stt

import "strings"

// Transcript is the result of a single recognition request.
type Transcript struct {
	// Text is the transcribed speech content. Empty when nothing was heard.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). May be zero if the
	// provider does not report confidence.
	Confidence float64
}

// JoinSegments concatenates per-result transcripts in the order the service
// returned them, separated by newlines.
func JoinSegments(segments []string) string {
	return strings.Join(segments, "\n")
}
