// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a batch transcription service (Google Speech-to-Text,
// a local whisper.cpp server, or the OpenAI audio API) and exposes a uniform
// request/response call: one finished utterance in, one transcript out.
//
// Implementations must be safe for concurrent use. The relay issues one
// Recognize call per finished speaking turn, and turns of different speakers
// overlap freely.
package stt

import (
	"context"
	"errors"
)

// EncodingLinear16 names signed 16-bit little-endian PCM, the only encoding
// the relay produces.
const EncodingLinear16 = "LINEAR16"

// ErrEmptyAudio is returned by providers asked to recognise zero bytes.
var ErrEmptyAudio = errors.New("stt: empty audio")

// RecognizeConfig describes the audio payload and recognition language of a
// single request. All fields must be compatible with what the underlying
// provider supports; see each provider's documentation for valid values.
type RecognizeConfig struct {
	// Encoding is the PCM encoding name (e.g., [EncodingLinear16]).
	Encoding string

	// SampleRate is the audio sample rate in Hz.
	SampleRate int

	// Channels is the number of interleaved channels in the payload.
	// Zero means mono.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	Language string
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Recognize transcribes audio, a complete utterance in the format described
	// by cfg, and returns the recognised text.
	//
	// An empty Transcript with a nil error means the service heard nothing it
	// could transcribe. Transport failures, non-success statuses and malformed
	// responses are returned as errors.
	Recognize(ctx context.Context, audio []byte, cfg RecognizeConfig) (Transcript, error)
}
