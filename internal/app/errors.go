package app

import (
	"errors"
	"fmt"
)

// Errors returned by [SessionManager]. Callers branch on them with errors.Is
// to choose the reply shown to the user.
var (
	// ErrNoVoiceChannel means the requesting user is not in a voice channel.
	ErrNoVoiceChannel = errors.New("app: user is not in a voice channel")

	// ErrAlreadyConnected means the guild already has, or is establishing, a
	// voice session.
	ErrAlreadyConnected = errors.New("app: already connected")

	// ErrNotConnected means the guild has no voice session.
	ErrNotConnected = errors.New("app: not connected")

	// ErrChannelUnavailable means a channel lookup returned nothing.
	ErrChannelUnavailable = errors.New("app: channel unavailable")

	// ErrTransport means establishing the voice connection failed.
	ErrTransport = errors.New("app: voice transport failed")
)

// ChannelKind names which channel a [ChannelError] is about.
type ChannelKind string

const (
	VoiceChannel ChannelKind = "voice"
	TextChannel  ChannelKind = "text"
)

// ChannelError reports a channel that could not be resolved during join.
// It matches [ErrChannelUnavailable] with errors.Is.
type ChannelError struct {
	Kind      ChannelKind
	ChannelID string
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("app: %s channel %q unavailable", e.Kind, e.ChannelID)
}

// Unwrap returns [ErrChannelUnavailable].
func (e *ChannelError) Unwrap() error {
	return ErrChannelUnavailable
}
