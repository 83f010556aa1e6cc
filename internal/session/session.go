// Package session tracks the guilds that currently hold a voice connection.
//
// Each guild has at most one [GuildSession]: the text channel transcripts are
// posted to, the voice channel being captured, the live connection and the
// per-guild debug flag. The [Store] is the single source of truth for which
// guilds are connected; the lifecycle manager in internal/app is its only
// writer.
package session

import (
	"sync/atomic"
	"time"

	"github.com/MrWong99/voxrelay/pkg/audio"
)

// Channel identifies a chat or voice channel.
type Channel struct {
	ID   string
	Name string
}

// GuildSession is the live voice session of one guild.
//
// All fields except the debug flag are set once before the session is
// published to a [Store] and never change afterwards.
type GuildSession struct {
	GuildID      string
	TextChannel  Channel
	VoiceChannel Channel
	Conn         audio.Connection
	StartedAt    time.Time

	debug atomic.Bool
}

// Debug reports whether diagnostic logging is enabled for the guild.
func (s *GuildSession) Debug() bool {
	return s.debug.Load()
}

// SetDebug sets the diagnostic flag.
func (s *GuildSession) SetDebug(on bool) {
	s.debug.Store(on)
}

// ToggleDebug flips the diagnostic flag and returns the new value.
func (s *GuildSession) ToggleDebug() bool {
	for {
		old := s.debug.Load()
		if s.debug.CompareAndSwap(old, !old) {
			return !old
		}
	}
}
