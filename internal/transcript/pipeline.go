package transcript

import (
	"context"
	"fmt"

	"github.com/MrWong99/voxrelay/internal/capture"
	"github.com/MrWong99/voxrelay/internal/observe"
	"github.com/MrWong99/voxrelay/internal/session"
	"github.com/MrWong99/voxrelay/pkg/audio"
)

// Sender posts a message to a text channel.
type Sender interface {
	Send(ctx context.Context, channelID, content string) error
}

// Sessions looks up the live session of a guild.
type Sessions interface {
	Get(guildID string) (*session.GuildSession, bool)
}

// Utterance is a finished turn ready for delivery.
type Utterance struct {
	// Session is the guild session the turn was captured in.
	Session *session.GuildSession

	Speaker audio.Speaker

	// PCM is the turn's audio in [audio.DiscordPCM] format.
	PCM []byte

	// Seconds is the captured length, which may exceed len(PCM) when the
	// turn hit its buffer limit.
	Seconds float64

	// Truncated reports that audio was discarded at the buffer limit. Such a
	// turn was already too long for the policy it started under.
	Truncated bool
}

// FormatLine renders a transcript as it is posted to chat.
func FormatLine(name, text string) string {
	return name + ": " + text
}

// PipelineOption configures a [Pipeline].
type PipelineOption func(*Pipeline)

// WithGate applies the duration gate g instead of [capture.DefaultPolicy].
func WithGate(g *capture.Gate) PipelineOption {
	return func(p *Pipeline) {
		p.gate = g
	}
}

// Pipeline delivers finished turns to their guild's text channel.
type Pipeline struct {
	gateway  *Gateway
	sessions Sessions
	sender   Sender
	gate     *capture.Gate
}

// NewPipeline returns a Pipeline that recognises through gw, resolves the
// destination through sessions and posts through sender.
func NewPipeline(gw *Gateway, sessions Sessions, sender Sender, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		gateway:  gw,
		sessions: sessions,
		sender:   sender,
	}
	for _, o := range opts {
		o(p)
	}
	if p.gate == nil {
		p.gate = capture.NewGate(capture.DefaultPolicy())
	}
	return p
}

// Gate returns the duration gate so it can be adjusted at runtime.
func (p *Pipeline) Gate() *capture.Gate {
	return p.gate
}

// Process runs u through the delivery path and reports how it ended.
func (p *Pipeline) Process(ctx context.Context, u Utterance) capture.Outcome {
	gs := u.Session
	out := capture.Outcome{
		GuildID: gs.GuildID,
		Speaker: u.Speaker,
		Seconds: u.Seconds,
	}
	log := observe.Logger(ctx).With("guild_id", gs.GuildID, "user_id", u.Speaker.ID)
	level := observe.DiagnosticLevel(gs.Debug())

	log.Log(ctx, level, "relay: turn finished", "duration_s", u.Seconds)
	if u.Truncated || !p.gate.Policy().Eligible(u.Seconds) {
		log.Log(ctx, level, "relay: turn outside duration window, skipping", "duration_s", u.Seconds)
		out.Kind = capture.DroppedIneligible
		return out
	}

	mono := audio.Decimate(u.PCM)
	text, err := p.gateway.Transcribe(ctx, mono)
	if err != nil {
		log.Error("relay: transcription failed", "err", err)
		out.Kind = capture.Failed
		out.Err = err
		return out
	}
	log.Log(ctx, level, "relay: transcript received", "text", text)
	if text == "" {
		out.Kind = capture.DroppedEmpty
		return out
	}

	if cur, ok := p.sessions.Get(gs.GuildID); !ok || cur != gs {
		log.Log(ctx, level, "relay: session ended before delivery")
		out.Kind = capture.SessionGone
		return out
	}

	line := FormatLine(u.Speaker.Name(), text)
	if err := p.sender.Send(ctx, gs.TextChannel.ID, line); err != nil {
		log.Error("relay: failed to post transcript", "channel_id", gs.TextChannel.ID, "err", err)
		out.Kind = capture.Failed
		out.Err = fmt.Errorf("transcript: send: %w", err)
		return out
	}
	out.Kind = capture.Delivered
	out.Text = line
	log.Log(ctx, level, "relay: transcript delivered")
	return out
}
