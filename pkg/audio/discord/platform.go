// Package discord provides an [audio.Platform] implementation backed by
// Discord voice channels via the bwmarrin/discordgo library. It bridges
// Discord's Opus-based voice transport with the relay's per-speaker PCM
// capture streams.
//
// The platform requires an active *discordgo.Session (owned by the bot layer).
// Each call to [Platform.Connect] joins the specified voice channel and
// returns a [Connection] that reports speaking events and decodes each
// speaker's audio into its own [audio.Stream].
package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/voxrelay/pkg/audio"
	"github.com/bwmarrin/discordgo"
)

// Compile-time interface assertion.
var _ audio.Platform = (*Platform)(nil)

// defaultIdleTimeout ends a capture stream when a speaker sends no packets
// for this long without an explicit silence frame.
const defaultIdleTimeout = 300 * time.Millisecond

// Option configures a [Platform].
type Option func(*Platform)

// WithIdleTimeout sets how long a speaker may stay quiet before their
// current capture stream is ended. Non-positive values are ignored.
func WithIdleTimeout(d time.Duration) Option {
	return func(p *Platform) {
		if d > 0 {
			p.idleTimeout = d
		}
	}
}

// Platform implements [audio.Platform] using a discordgo voice connection.
//
// Platform is safe for concurrent use.
type Platform struct {
	session     *discordgo.Session
	idleTimeout time.Duration
}

// New creates a new Discord Platform for the given session.
func New(session *discordgo.Session, opts ...Option) *Platform {
	p := &Platform{
		session:     session,
		idleTimeout: defaultIdleTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Connect joins the voice channel identified by channelID in guildID and
// returns an active [audio.Connection]. The supplied ctx governs the
// connection-setup phase only; once the Connection is returned it lives until
// [Connection.Disconnect] is called or Discord drops it.
func (p *Platform) Connect(ctx context.Context, guildID, channelID string) (audio.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("discord: join voice channel %q: %w", channelID, err)
	}

	// mute=false so the silence frame can be sent, deaf=false to receive audio.
	vc, err := p.session.ChannelVoiceJoin(guildID, channelID, false, false)
	if err != nil {
		return nil, fmt.Errorf("discord: join voice channel %q: %w", channelID, err)
	}

	botID := ""
	if p.session.State != nil && p.session.State.User != nil {
		botID = p.session.State.User.ID
	}
	return newConnection(vc, p.session, guildID, botID, p.idleTimeout), nil
}
