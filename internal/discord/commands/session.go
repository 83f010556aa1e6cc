// Package commands implements the relay's text command handlers.
package commands

import (
	"context"
	"errors"

	"github.com/MrWong99/voxrelay/internal/app"
	"github.com/MrWong99/voxrelay/internal/discord"
)

// Replies posted by the session commands.
const (
	replyConnected      = "connected!"
	replyNoVoiceChannel = "Error: please join a voice channel first."
	replyAlreadyJoined  = "Already connected"
	replyVoiceMissing   = "Error: The voice channel does not exist!"
	replyTextMissing    = "Error: The text channel does not exist!"
	replyJoinFailed     = "Error: unable to join your voice channel."
	replyDisconnected   = "Disconnected."
	replyLeaveNotJoined = "Cannot leave because not connected."
	replyDebugEnabled   = "Debug mode enabled."
	replyDebugDisabled  = "Debug mode disabled."
	replyDebugNotJoined = "Cannot toggle debug because not connected."
)

// SessionCommands holds the dependencies for the join, leave and debug
// commands.
type SessionCommands struct {
	sessionMgr *app.SessionManager
}

// NewSessionCommands creates a SessionCommands and registers its handlers
// with router.
func NewSessionCommands(router *discord.CommandRouter, sessionMgr *app.SessionManager) *SessionCommands {
	sc := &SessionCommands{sessionMgr: sessionMgr}
	sc.Register(router)
	return sc
}

// Register registers the session commands with the router.
func (sc *SessionCommands) Register(router *discord.CommandRouter) {
	router.Register(discord.Command{
		Name:        "join",
		Description: "Begin transcribing your current VC",
		Handler:     sc.handleJoin,
	})
	router.Register(discord.Command{
		Name:        "leave",
		Description: "Stop transcribing your current VC",
		Handler:     sc.handleLeave,
	})
	router.Register(discord.Command{
		Name:        "debug",
		Description: "Toggle the logging of debug info",
		Restricted:  true,
		Handler:     sc.handleDebug,
	})
}

func (sc *SessionCommands) handleJoin(ctx context.Context, req *discord.Request) (discord.Reply, error) {
	_, err := sc.sessionMgr.Join(ctx, app.JoinRequest{
		GuildID:       req.GuildID(),
		UserID:        req.AuthorID(),
		TextChannelID: req.ChannelID(),
	})
	var chErr *app.ChannelError
	switch {
	case err == nil:
		return discord.OK(replyConnected), nil
	case errors.Is(err, app.ErrNoVoiceChannel):
		return discord.Reject(replyNoVoiceChannel), nil
	case errors.Is(err, app.ErrAlreadyConnected):
		return discord.Reject(replyAlreadyJoined), nil
	case errors.As(err, &chErr) && chErr.Kind == app.VoiceChannel:
		return discord.Reject(replyVoiceMissing), nil
	case errors.As(err, &chErr) && chErr.Kind == app.TextChannel:
		return discord.Reject(replyTextMissing), nil
	case errors.Is(err, app.ErrTransport):
		return discord.Reject(replyJoinFailed), nil
	default:
		return discord.Reply{}, err
	}
}

func (sc *SessionCommands) handleLeave(ctx context.Context, req *discord.Request) (discord.Reply, error) {
	err := sc.sessionMgr.Leave(ctx, req.GuildID())
	switch {
	case err == nil:
		return discord.OK(replyDisconnected), nil
	case errors.Is(err, app.ErrNotConnected):
		return discord.Reject(replyLeaveNotJoined), nil
	default:
		return discord.Reply{}, err
	}
}

func (sc *SessionCommands) handleDebug(_ context.Context, req *discord.Request) (discord.Reply, error) {
	on, err := sc.sessionMgr.ToggleDebug(req.GuildID())
	switch {
	case errors.Is(err, app.ErrNotConnected):
		return discord.Reject(replyDebugNotJoined), nil
	case err != nil:
		return discord.Reply{}, err
	case on:
		return discord.OK(replyDebugEnabled), nil
	default:
		return discord.OK(replyDebugDisabled), nil
	}
}
