// Package discord provides the Discord bot layer for the relay. It owns
// the discordgo.Session lifecycle, routes prefixed text commands to
// registered handlers, resolves channels and voice state for joins, and
// posts transcripts.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/voxrelay/internal/observe"
	"github.com/MrWong99/voxrelay/internal/session"
	"github.com/MrWong99/voxrelay/pkg/audio"
	discordaudio "github.com/MrWong99/voxrelay/pkg/audio/discord"
)

// Config holds Discord bot configuration.
type Config struct {
	// Token is the bot token without the "Bot " prefix.
	Token string

	// CommandPrefix starts every text command. Default: [DefaultPrefix].
	CommandPrefix string

	// DebugRoleID restricts the debug command. Empty allows everyone.
	DebugRoleID string

	// EndOfTurnSilence ends a speaking turn after this much receive idle time.
	EndOfTurnSilence time.Duration

	// Metrics records command counts. Default: [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Bot owns the Discord gateway connection, routes text commands and
// implements the channel lookups and message sending the relay needs.
type Bot struct {
	mu        sync.RWMutex
	session   *discordgo.Session
	platform  *discordaudio.Platform
	router    *CommandRouter
	sender    *ChannelSender
	closeOnce sync.Once
}

// New creates a Bot, connects to Discord, and registers the message handler.
func New(_ context.Context, cfg Config) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord: token is required")
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuilds

	b := newBot(session, cfg)
	session.AddHandler(b.router.Handle)

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}
	return b, nil
}

// newBot wires a Bot around an existing session without connecting it.
func newBot(s *discordgo.Session, cfg Config) *Bot {
	var audioOpts []discordaudio.Option
	if cfg.EndOfTurnSilence > 0 {
		audioOpts = append(audioOpts, discordaudio.WithIdleTimeout(cfg.EndOfTurnSilence))
	}
	return &Bot{
		session:  s,
		platform: discordaudio.New(s, audioOpts...),
		router: NewCommandRouter(s,
			WithPrefix(cfg.CommandPrefix),
			WithPermissions(NewPermissionChecker(cfg.DebugRoleID)),
			WithMetrics(cfg.Metrics),
		),
		sender: NewChannelSender(s),
	}
}

// Platform returns the audio.Platform for voice channel connections.
func (b *Bot) Platform() audio.Platform {
	return b.platform
}

// Session returns the underlying discordgo session.
func (b *Bot) Session() *discordgo.Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session
}

// Router returns the command router for registering handlers.
func (b *Bot) Router() *CommandRouter {
	return b.router
}

// Permissions returns the permission checker of restricted commands.
func (b *Bot) Permissions() *PermissionChecker {
	return b.router.Permissions()
}

// Send posts content to a text channel.
func (b *Bot) Send(ctx context.Context, channelID, content string) error {
	return b.sender.Send(ctx, channelID, content)
}

// UserVoiceChannel returns the voice channel userID occupies in guildID
// according to the gateway state cache.
func (b *Bot) UserVoiceChannel(_ context.Context, guildID, userID string) (string, bool) {
	s := b.Session()
	vs, err := s.State.VoiceState(guildID, userID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		return "", false
	}
	return vs.ChannelID, true
}

// Channel resolves channelID from the state cache, falling back to the
// REST API.
func (b *Bot) Channel(ctx context.Context, channelID string) (session.Channel, bool) {
	s := b.Session()
	ch, err := s.State.Channel(channelID)
	if err != nil {
		ch, err = s.Channel(channelID, discordgo.WithContext(ctx))
		if err != nil {
			slog.Debug("discord: channel lookup failed", "channel_id", channelID, "err", err)
			return session.Channel{}, false
		}
	}
	return session.Channel{ID: ch.ID, Name: ch.Name}, true
}

// Ready reports an error until the gateway has delivered its READY event.
func (b *Bot) Ready(context.Context) error {
	s := b.Session()
	s.RLock()
	defer s.RUnlock()
	if !s.DataReady {
		return errors.New("discord: gateway not ready")
	}
	return nil
}

// Run blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	s := b.Session()
	var user string
	if s.State != nil && s.State.User != nil {
		user = s.State.User.Username
	}
	slog.Info("discord: bot running", "user", user, "prefix", b.router.Prefix())
	<-ctx.Done()
	return nil
}

// Close disconnects from Discord. Voice sessions must be left first.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if b.session != nil {
			if err := b.session.Close(); err != nil {
				closeErr = fmt.Errorf("discord: close session: %w", err)
			}
		}

		slog.Info("discord: bot closed")
	})
	return closeErr
}
