package discord

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voxrelay/pkg/audio"
	"github.com/bwmarrin/discordgo"
)

// Compile-time interface assertion.
var _ audio.Connection = (*Connection)(nil)

const (
	streamBuffer       = 256
	silenceSendTimeout = time.Second
	minReapInterval    = 10 * time.Millisecond
)

var errClosed = errors.New("discord: connection closed")

// Connection wraps a discordgo.VoiceConnection and adapts it to the
// [audio.Connection] interface. It maps SSRCs to user IDs from speaking
// updates, decodes each user's Opus packets to PCM, and delivers them on a
// per-turn [audio.Stream].
//
// A turn ends when the speaker sends an Opus silence frame, when Discord
// reports that they stopped speaking, or when no packet arrived for the idle
// timeout.
//
// Connection is safe for concurrent use.
type Connection struct {
	vc      *discordgo.VoiceConnection
	session *discordgo.Session
	guildID string
	botID   string
	idle    time.Duration

	mu       sync.Mutex
	ssrcUser map[uint32]string
	streams  map[string]*stream // open turn per user ID
	speakers map[string]audio.Speaker

	cbMu         sync.Mutex
	speakingCb   func(audio.SpeakingEvent)
	disconnectCb []func(error)
	closed       bool
	cause        error

	done      chan struct{}
	closeOnce sync.Once

	removeHandler func() // removes the VoiceStateUpdate handler

	// Overridden in tests.
	disconnectVC   func() error
	speaking       func(bool) error
	resolveSpeaker func(userID string) audio.Speaker
	now            func() time.Time
}

// newConnection initialises a Connection for an already-joined voice channel,
// registers its Discord handlers and starts the receive and reaper loops.
func newConnection(vc *discordgo.VoiceConnection, session *discordgo.Session, guildID, botID string, idle time.Duration) *Connection {
	c := newConn(vc, session, guildID, botID, idle)
	vc.AddHandler(c.handleSpeakingUpdate)
	c.removeHandler = session.AddHandler(c.handleVoiceStateUpdate)
	c.start()
	return c
}

func newConn(vc *discordgo.VoiceConnection, session *discordgo.Session, guildID, botID string, idle time.Duration) *Connection {
	c := &Connection{
		vc:           vc,
		session:      session,
		guildID:      guildID,
		botID:        botID,
		idle:         idle,
		ssrcUser:     make(map[uint32]string),
		streams:      make(map[string]*stream),
		speakers:     make(map[string]audio.Speaker),
		done:         make(chan struct{}),
		disconnectVC: vc.Disconnect,
		speaking:     vc.Speaking,
		now:          time.Now,
	}
	c.resolveSpeaker = c.lookupSpeaker
	return c
}

func (c *Connection) start() {
	go c.recvLoop()
	go c.reapLoop()
}

// OnSpeaking registers cb as the speaking-event callback. Only one callback
// may be registered; subsequent calls replace the previous one.
func (c *Connection) OnSpeaking(cb func(audio.SpeakingEvent)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.speakingCb = cb
}

// Receive returns the open capture stream for userID, opening one if the
// user has none. After the connection is closed it returns an ended stream.
func (c *Connection) Receive(userID string) audio.Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		s := newStream(time.Time{})
		s.end(audio.ErrDisconnected)
		return s
	default:
	}
	if s, ok := c.streams[userID]; ok {
		return s
	}
	s := newStream(c.now())
	c.streams[userID] = s
	return s
}

// OnDisconnect registers cb to run once the connection ends. If it has
// already ended, cb runs immediately with the original cause.
func (c *Connection) OnDisconnect(cb func(err error)) {
	c.cbMu.Lock()
	if c.closed {
		cause := c.cause
		c.cbMu.Unlock()
		cb(cause)
		return
	}
	c.disconnectCb = append(c.disconnectCb, cb)
	c.cbMu.Unlock()
}

// SendSilence transmits a single Opus silence frame, framed by speaking
// notifications. Discord only starts forwarding audio to a client that has
// sent at least one packet.
func (c *Connection) SendSilence() error {
	c.setSpeaking(true)
	defer c.setSpeaking(false)

	timer := time.NewTimer(silenceSendTimeout)
	defer timer.Stop()

	select {
	case c.vc.OpusSend <- silenceFrame:
		return nil
	case <-c.done:
		return fmt.Errorf("discord: send silence: %w", errClosed)
	case <-timer.C:
		return fmt.Errorf("discord: send silence: timed out after %s", silenceSendTimeout)
	}
}

// Disconnect cleanly tears down the voice connection and stops all background
// goroutines. It is safe to call more than once; subsequent calls return nil.
func (c *Connection) Disconnect() error {
	return c.teardown(nil)
}

// teardown stops the loops, leaves the channel, ends every open stream and
// fires the disconnect callbacks with cause. Only the first call has effect.
func (c *Connection) teardown(cause error) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		if c.removeHandler != nil {
			c.removeHandler()
		}
		if c.disconnectVC != nil {
			err = c.disconnectVC()
		}

		c.mu.Lock()
		open := c.streams
		c.streams = make(map[string]*stream)
		c.mu.Unlock()
		for _, s := range open {
			s.end(audio.ErrDisconnected)
		}

		c.cbMu.Lock()
		c.closed = true
		c.cause = cause
		cbs := make([]func(error), len(c.disconnectCb))
		copy(cbs, c.disconnectCb)
		c.disconnectCb = nil
		c.cbMu.Unlock()
		for _, cb := range cbs {
			cb(cause)
		}
	})
	return err
}

// ─── Discord event handlers ───────────────────────────────────────────────────

// handleSpeakingUpdate records the SSRC of a speaker and opens or ends their
// turn according to the speaking flag.
func (c *Connection) handleSpeakingUpdate(_ *discordgo.VoiceConnection, vs *discordgo.VoiceSpeakingUpdate) {
	if vs == nil || vs.UserID == "" {
		return
	}
	c.mu.Lock()
	c.ssrcUser[uint32(vs.SSRC)] = vs.UserID
	c.mu.Unlock()

	if vs.Speaking {
		c.announce(vs.UserID)
		return
	}
	c.endStream(vs.UserID)
}

// handleVoiceStateUpdate watches the bot's own voice state. When the bot is
// removed from voice in this guild the connection is torn down with
// [audio.ErrDisconnected].
func (c *Connection) handleVoiceStateUpdate(_ *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
	if vsu == nil || vsu.VoiceState == nil {
		return
	}
	if c.botID == "" || vsu.GuildID != c.guildID || vsu.UserID != c.botID {
		return
	}
	if vsu.ChannelID != "" {
		return
	}
	slog.Info("discord: voice connection dropped", "guild_id", c.guildID)
	// Tearing down calls back into discordgo, so leave its event goroutine.
	go func() { _ = c.teardown(audio.ErrDisconnected) }()
}

// ─── receive path ─────────────────────────────────────────────────────────────

// recvLoop reads Opus packets from the Discord voice connection, attributes
// them to users by SSRC and delivers decoded PCM to the user's open stream.
// A closed OpusRecv channel means the transport is gone.
func (c *Connection) recvLoop() {
	// Each SSRC gets its own decoder to maintain state across frames.
	decoders := make(map[uint32]*opusDecoder)

	for {
		select {
		case <-c.done:
			return
		case pkt, ok := <-c.vc.OpusRecv:
			if !ok {
				_ = c.teardown(audio.ErrDisconnected)
				return
			}
			if pkt == nil {
				continue
			}
			c.handlePacket(decoders, pkt)
		}
	}
}

func (c *Connection) handlePacket(decoders map[uint32]*opusDecoder, pkt *discordgo.Packet) {
	c.mu.Lock()
	userID, known := c.ssrcUser[pkt.SSRC]
	c.mu.Unlock()
	if !known {
		// No speaking update yet, so the packet cannot be attributed.
		return
	}

	if isSilence(pkt.Opus) {
		c.endStream(userID)
		return
	}

	dec, ok := decoders[pkt.SSRC]
	if !ok {
		var err error
		dec, err = newOpusDecoder()
		if err != nil {
			slog.Error("discord: failed to create opus decoder", "ssrc", pkt.SSRC, "err", err)
			return
		}
		decoders[pkt.SSRC] = dec
	}

	pcm, err := dec.decode(pkt.Opus)
	if err != nil {
		slog.Warn("discord: opus decode error", "ssrc", pkt.SSRC, "err", err)
		return
	}

	c.announce(userID)

	c.mu.Lock()
	s := c.streams[userID]
	if s != nil {
		s.last = c.now()
	}
	c.mu.Unlock()

	if s != nil && !s.push(pcm) {
		slog.Debug("discord: capture buffer full, dropping frame", "user_id", userID)
	}
}

// announce opens a stream for userID and emits a speaking event, unless a
// turn is already open for that user. It runs on the receive and event
// goroutines, so a speaker missing from the caches is resolved in the
// background; frames keep buffering in the new stream meanwhile.
func (c *Connection) announce(userID string) {
	c.mu.Lock()
	if _, open := c.streams[userID]; open {
		c.mu.Unlock()
		return
	}
	select {
	case <-c.done:
		c.mu.Unlock()
		return
	default:
	}
	c.streams[userID] = newStream(c.now())
	c.mu.Unlock()

	if sp, ok := c.cachedSpeaker(userID); ok {
		c.emitSpeaking(sp)
		return
	}
	go func() {
		sp := c.speaker(userID)
		select {
		case <-c.done:
			return
		default:
		}
		c.emitSpeaking(sp)
	}()
}

func (c *Connection) emitSpeaking(sp audio.Speaker) {
	c.cbMu.Lock()
	cb := c.speakingCb
	c.cbMu.Unlock()
	if cb != nil {
		cb(audio.SpeakingEvent{Speaker: sp, Speaking: true})
	}
}

// endStream closes the open stream of userID, if any, as a normal end of turn.
func (c *Connection) endStream(userID string) {
	c.mu.Lock()
	s := c.streams[userID]
	delete(c.streams, userID)
	c.mu.Unlock()
	if s != nil {
		s.end(nil)
	}
}

// reapLoop ends streams whose speaker has been quiet for the idle timeout.
func (c *Connection) reapLoop() {
	interval := max(c.idle/2, minReapInterval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.reap()
		}
	}
}

func (c *Connection) reap() {
	now := c.now()
	var stale []*stream

	c.mu.Lock()
	for userID, s := range c.streams {
		if now.Sub(s.last) >= c.idle {
			stale = append(stale, s)
			delete(c.streams, userID)
		}
	}
	c.mu.Unlock()

	for _, s := range stale {
		s.end(nil)
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

// cachedSpeaker returns the identity of userID without network calls: from
// earlier turns, else from the session's state cache.
func (c *Connection) cachedSpeaker(userID string) (audio.Speaker, bool) {
	c.mu.Lock()
	sp, ok := c.speakers[userID]
	c.mu.Unlock()
	if ok {
		return sp, true
	}
	if c.session == nil || c.session.State == nil {
		return audio.Speaker{}, false
	}
	m, err := c.session.State.Member(c.guildID, userID)
	if err != nil {
		return audio.Speaker{}, false
	}
	sp = memberSpeaker(userID, m)
	c.mu.Lock()
	c.speakers[userID] = sp
	c.mu.Unlock()
	return sp, true
}

// speaker resolves and caches the identity of userID. It may block on a
// REST call.
func (c *Connection) speaker(userID string) audio.Speaker {
	if sp, ok := c.cachedSpeaker(userID); ok {
		return sp
	}
	sp := c.resolveSpeaker(userID)
	c.mu.Lock()
	c.speakers[userID] = sp
	c.mu.Unlock()
	return sp
}

// lookupSpeaker resolves a user's guild identity over REST. On failure only
// the ID is known.
func (c *Connection) lookupSpeaker(userID string) audio.Speaker {
	if c.session == nil {
		return audio.Speaker{ID: userID}
	}
	m, err := c.session.GuildMember(c.guildID, userID)
	if err != nil {
		slog.Debug("discord: resolve speaker", "user_id", userID, "err", err)
		return audio.Speaker{ID: userID}
	}
	return memberSpeaker(userID, m)
}

func memberSpeaker(userID string, m *discordgo.Member) audio.Speaker {
	sp := audio.Speaker{ID: userID}
	if m != nil && m.User != nil {
		sp.Username = m.User.Username
		sp.Bot = m.User.Bot
		sp.DisplayName = m.DisplayName()
	}
	return sp
}

// setSpeaking sends a speaking notification to Discord, logging any errors.
func (c *Connection) setSpeaking(b bool) {
	if err := c.speaking(b); err != nil {
		slog.Warn("discord: speaking notification error", "speaking", b, "err", err)
	}
}

// ─── stream ───────────────────────────────────────────────────────────────────

var _ audio.Stream = (*stream)(nil)

// stream is one speaker's capture for a single turn. last is guarded by the
// owning Connection's mu.
type stream struct {
	frames chan []byte
	last   time.Time

	mu     sync.Mutex
	err    error
	closed bool
}

func newStream(now time.Time) *stream {
	return &stream{frames: make(chan []byte, streamBuffer), last: now}
}

func (s *stream) Frames() <-chan []byte { return s.frames }

func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// push delivers pcm without blocking. It reports false if the stream is
// closed or its buffer is full.
func (s *stream) push(pcm []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.frames <- pcm:
		return true
	default:
		return false
	}
}

func (s *stream) end(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.frames)
}
