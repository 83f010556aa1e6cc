// Package audio defines the voice platform abstraction and the PCM helpers
// used by the transcription relay.
//
// The two primary abstractions are:
//
//   - [Platform] joins a voice channel and returns a [Connection].
//   - [Connection] is an active voice session that reports speaking events
//     and hands out one capture [Stream] per speaking turn.
//
// Implementations live in platform-specific adapter packages (audio/discord),
// with in-memory doubles in audio/mock.
package audio

import (
	"context"
	"errors"
)

// ErrDisconnected is passed to disconnect callbacks when the platform drops the
// voice connection without the relay asking it to.
var ErrDisconnected = errors.New("audio: voice connection dropped")

// Stream carries one speaker's raw PCM audio for a single speaking turn.
//
// Frames are delivered strictly in arrival order. The Frames channel is closed
// at end of turn; after that, Err reports whether the turn ended normally (nil)
// or because of a transport error.
type Stream interface {
	// Frames returns the channel of PCM chunks in [DiscordPCM] format.
	Frames() <-chan []byte

	// Err returns the error that terminated the stream, or nil on a normal
	// end of turn. Only meaningful after Frames has been closed.
	Err() error
}

// Connection represents an active session on a voice channel.
//
// Implementations must be safe for concurrent use.
type Connection interface {
	// OnSpeaking registers cb as the speaking-event callback. Only one callback
	// may be registered; subsequent calls replace it. The callback runs on the
	// receive goroutine and must not block.
	OnSpeaking(cb func(SpeakingEvent))

	// Receive opens a capture stream for the user's current speaking turn. If a
	// stream is already open for the user it is returned unchanged.
	Receive(userID string) Stream

	// OnDisconnect registers cb to be invoked once when the connection ends,
	// whether through [Connection.Disconnect] or because the platform dropped
	// it. err is nil for an explicit disconnect.
	OnDisconnect(cb func(err error))

	// SendSilence transmits a single silence frame so the platform treats the
	// relay as present. The stream ends immediately afterwards.
	SendSilence() error

	// Disconnect leaves the voice channel and closes the transport. It is safe
	// to call more than once; subsequent calls are no-ops and return nil.
	Disconnect() error
}

// Platform is the entry point for a voice-channel provider.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// Connect joins channelID in guildID and returns an active [Connection].
	// ctx governs the connection attempt only.
	Connect(ctx context.Context, guildID, channelID string) (Connection, error)
}
