package capture

import (
	"log/slog"

	"github.com/MrWong99/voxrelay/pkg/audio"
)

// Kind classifies how a finished turn ended.
type Kind int

const (
	// Delivered means the transcript was posted to the text channel.
	Delivered Kind = iota

	// DroppedIneligible means the turn was outside the duration window.
	DroppedIneligible

	// DroppedEmpty means the service returned no text.
	DroppedEmpty

	// SessionGone means the guild session ended before delivery.
	SessionGone

	// Failed means recognition or sending the message failed.
	Failed

	// Aborted means the capture stream ended with an error.
	Aborted
)

// String returns the metric label for k.
func (k Kind) String() string {
	switch k {
	case Delivered:
		return "delivered"
	case DroppedIneligible:
		return "dropped_ineligible"
	case DroppedEmpty:
		return "dropped_empty"
	case SessionGone:
		return "session_gone"
	case Failed:
		return "failed"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Outcome summarises one finished turn.
type Outcome struct {
	Kind    Kind
	GuildID string
	Speaker audio.Speaker
	Seconds float64

	// Text is the delivered line for Delivered outcomes.
	Text string

	// Err is set for Failed and Aborted outcomes.
	Err error
}

// LogAttrs returns the structured fields used when logging o.
func (o Outcome) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("outcome", o.Kind.String()),
		slog.String("guild_id", o.GuildID),
		slog.String("user_id", o.Speaker.ID),
		slog.Float64("duration_s", o.Seconds),
	}
	if o.Err != nil {
		attrs = append(attrs, slog.Any("err", o.Err))
	}
	return attrs
}
