package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// GenericFailure is posted when a command handler fails unexpectedly.
const GenericFailure = "Error#180: Something went wrong, try again or contact the developers if this keeps happening."

// Messenger is the subset of [discordgo.Session] used to post messages.
// Tests substitute mock.Messenger.
type Messenger interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendReply(channelID, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var _ Messenger = (*discordgo.Session)(nil)

// RespondReply answers msg in its channel as a reply to it.
func RespondReply(ctx context.Context, m Messenger, msg *discordgo.Message, content string) {
	if content == "" {
		return
	}
	if _, err := m.ChannelMessageSendReply(msg.ChannelID, content, msg.Reference(), discordgo.WithContext(ctx)); err != nil {
		slog.Warn("discord: failed to send reply", "channel_id", msg.ChannelID, "err", err)
	}
}

// RespondError answers msg with the generic failure reply and logs err.
func RespondError(ctx context.Context, m Messenger, msg *discordgo.Message, err error) {
	slog.Error("discord: command failed", "guild_id", msg.GuildID, "channel_id", msg.ChannelID, "err", err)
	RespondReply(ctx, m, msg, GenericFailure)
}

// ChannelSender posts plain messages through a [Messenger]. It implements
// the transcript sender used by the relay pipeline.
type ChannelSender struct {
	m Messenger
}

// NewChannelSender returns a ChannelSender writing through m.
func NewChannelSender(m Messenger) *ChannelSender {
	return &ChannelSender{m: m}
}

// Send posts content to channelID. Empty content is not sent.
func (cs *ChannelSender) Send(ctx context.Context, channelID, content string) error {
	if content == "" {
		return nil
	}
	if _, err := cs.m.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: send message: %w", err)
	}
	return nil
}
