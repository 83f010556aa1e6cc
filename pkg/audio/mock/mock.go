// Package mock provides in-memory mock implementations of the [audio.Platform],
// [audio.Connection], and [audio.Stream] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	conn := &mock.Connection{}
//	platform := &mock.Platform{ConnectResult: conn}
//	got, _ := platform.Connect(ctx, "guild-1", "voice-1")
//	s := conn.Stream("user-1")
//	conn.EmitSpeaking(audio.SpeakingEvent{Speaker: audio.Speaker{ID: "user-1"}, Speaking: true})
//	s.Send(pcm)
//	s.End(nil)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxrelay/pkg/audio"
)

// ─── Stream ───────────────────────────────────────────────────────────────────

// Stream is a mock implementation of [audio.Stream]. Tests push frames with
// [Stream.Send] and finish the turn with [Stream.End].
type Stream struct {
	frames chan []byte

	mu    sync.Mutex
	err   error
	ended bool
}

// NewStream returns an open stream whose frame channel holds up to buffer
// frames before Send blocks.
func NewStream(buffer int) *Stream {
	return &Stream{frames: make(chan []byte, buffer)}
}

// Frames implements [audio.Stream].
func (s *Stream) Frames() <-chan []byte { return s.frames }

// Err implements [audio.Stream].
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Send delivers one PCM frame. It must not be called after End.
func (s *Stream) Send(pcm []byte) {
	s.frames <- pcm
}

// End closes the stream with the given terminal error. Subsequent calls are
// no-ops.
func (s *Stream) End(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.err = err
	close(s.frames)
}

// ─── Connection ───────────────────────────────────────────────────────────────

// Connection is a mock implementation of [audio.Connection].
// Register streams with [Connection.Stream] before emitting speaking events;
// inspect the Call* fields after.
type Connection struct {
	mu sync.Mutex

	// SendSilenceError is returned by [Connection.SendSilence].
	SendSilenceError error

	// DisconnectError is returned by [Connection.Disconnect].
	DisconnectError error

	// CallCountSendSilence records how many times SendSilence was called.
	CallCountSendSilence int

	// CallCountDisconnect records how many times Disconnect was called.
	CallCountDisconnect int

	// ReceiveCalls records the userID of every Receive call, in order.
	ReceiveCalls []string

	streams      map[string]*Stream
	onSpeaking   func(audio.SpeakingEvent)
	onDisconnect []func(error)
	disconnected bool
}

var _ audio.Connection = (*Connection)(nil)

// Stream returns the stream that the next Receive call for userID will hand
// out, creating it with a generous buffer on first use.
func (c *Connection) Stream(userID string) *Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.streams == nil {
		c.streams = make(map[string]*Stream)
	}
	s, ok := c.streams[userID]
	if !ok {
		s = NewStream(64)
		c.streams[userID] = s
	}
	return s
}

// SetStream installs s as the stream Receive hands out for userID, replacing
// any previous one. Use it to start a second turn for the same user.
func (c *Connection) SetStream(userID string, s *Stream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.streams == nil {
		c.streams = make(map[string]*Stream)
	}
	c.streams[userID] = s
}

// OnSpeaking implements [audio.Connection].
func (c *Connection) OnSpeaking(cb func(audio.SpeakingEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSpeaking = cb
}

// Receive implements [audio.Connection]. It returns the stream registered for
// userID, or an already-ended empty stream if none was registered.
func (c *Connection) Receive(userID string) audio.Stream {
	c.mu.Lock()
	c.ReceiveCalls = append(c.ReceiveCalls, userID)
	s, ok := c.streams[userID]
	c.mu.Unlock()
	if !ok {
		s = NewStream(0)
		s.End(nil)
	}
	return s
}

// OnDisconnect implements [audio.Connection].
func (c *Connection) OnDisconnect(cb func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = append(c.onDisconnect, cb)
}

// SendSilence implements [audio.Connection]. Returns SendSilenceError.
func (c *Connection) SendSilence() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountSendSilence++
	return c.SendSilenceError
}

// Disconnect implements [audio.Connection]. The first call fires the
// disconnect callbacks with a nil error; every call returns DisconnectError.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	c.CallCountDisconnect++
	err := c.DisconnectError
	c.mu.Unlock()
	c.fireDisconnect(nil)
	return err
}

// EmitSpeaking calls the registered speaking callback with ev. Use this in
// tests to simulate a participant starting or stopping to talk.
func (c *Connection) EmitSpeaking(ev audio.SpeakingEvent) {
	c.mu.Lock()
	cb := c.onSpeaking
	c.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

// EmitDisconnect simulates the platform dropping the connection. Callbacks
// fire only once across EmitDisconnect and Disconnect.
func (c *Connection) EmitDisconnect(err error) {
	c.fireDisconnect(err)
}

// Disconnected reports whether the disconnect callbacks have fired.
func (c *Connection) Disconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

func (c *Connection) fireDisconnect(err error) {
	c.mu.Lock()
	if c.disconnected {
		c.mu.Unlock()
		return
	}
	c.disconnected = true
	cbs := make([]func(error), len(c.onDisconnect))
	copy(cbs, c.onDisconnect)
	c.mu.Unlock()
	for _, cb := range cbs {
		cb(err)
	}
}

// ─── Platform ─────────────────────────────────────────────────────────────────

// ConnectCall records the arguments of a single [Platform.Connect] invocation.
type ConnectCall struct {
	GuildID   string
	ChannelID string
}

// Platform is a mock implementation of [audio.Platform].
type Platform struct {
	mu sync.Mutex

	// ConnectResult is the [audio.Connection] returned by Connect.
	ConnectResult audio.Connection

	// ConnectError is the error returned by Connect.
	ConnectError error

	// ConnectFunc, when set, overrides ConnectResult and ConnectError.
	ConnectFunc func(ctx context.Context, guildID, channelID string) (audio.Connection, error)

	// ConnectCalls records all Connect invocations.
	ConnectCalls []ConnectCall
}

var _ audio.Platform = (*Platform)(nil)

// Connect implements [audio.Platform]. Records the call and returns ConnectResult / ConnectError.
func (p *Platform) Connect(ctx context.Context, guildID, channelID string) (audio.Connection, error) {
	p.mu.Lock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{GuildID: guildID, ChannelID: channelID})
	fn := p.ConnectFunc
	res, err := p.ConnectResult, p.ConnectError
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx, guildID, channelID)
	}
	return res, err
}

// CallCount returns the number of Connect invocations so far.
func (p *Platform) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ConnectCalls)
}
