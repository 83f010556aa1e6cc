package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voxrelay/internal/capture"
	"github.com/MrWong99/voxrelay/internal/observe"
	"github.com/MrWong99/voxrelay/internal/session"
	"github.com/MrWong99/voxrelay/internal/transcript"
	"github.com/MrWong99/voxrelay/pkg/audio"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Directory resolves the chat-platform entities a join needs.
//
// Implementations must be safe for concurrent use.
type Directory interface {
	// UserVoiceChannel returns the ID of the voice channel userID currently
	// occupies in guildID, or false if they are not in one.
	UserVoiceChannel(ctx context.Context, guildID, userID string) (string, bool)

	// Channel resolves a channel by ID, or returns false if it does not exist.
	Channel(ctx context.Context, channelID string) (session.Channel, bool)
}

// JoinRequest describes who asked the relay to join, and where.
type JoinRequest struct {
	GuildID string

	// UserID is the member whose current voice channel is joined.
	UserID string

	// TextChannelID is where transcripts will be posted.
	TextChannelID string
}

// OutcomeFunc observes every finished turn.
type OutcomeFunc func(capture.Outcome)

// SessionManager owns the voice session of every guild: joining, leaving,
// the debug flag, the per-speaker capture goroutines and teardown when the
// platform drops a connection.
//
// A guild moves from disconnected to connecting when a join passes the
// precondition checks, to connected once the session is registered, and
// back to disconnected on leave or an unsolicited disconnect.
//
// All exported methods are safe for concurrent use.
type SessionManager struct {
	platform  audio.Platform
	directory Directory
	store     *session.Store
	pipeline  *transcript.Pipeline
	metrics   *observe.Metrics
	onOutcome OutcomeFunc

	mu         sync.Mutex
	connecting map[string]struct{}
	turns      map[turnKey]audio.Stream
	closing    bool // set by Shutdown; no turn starts afterwards

	// turnCtx parents every turn goroutine; cancelled by Shutdown.
	turnCtx    context.Context
	cancelTurn context.CancelFunc
	wg         sync.WaitGroup
}

type turnKey struct {
	guildID string
	userID  string
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	Platform  audio.Platform
	Directory Directory
	Pipeline  *transcript.Pipeline

	// Store defaults to a new empty store. The pipeline must resolve
	// sessions from the same store.
	Store *session.Store

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// OnOutcome, if set, is called after every finished turn.
	OnOutcome OutcomeFunc
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	ctx, cancel := context.WithCancel(context.Background())
	sm := &SessionManager{
		platform:   cfg.Platform,
		directory:  cfg.Directory,
		store:      cfg.Store,
		pipeline:   cfg.Pipeline,
		metrics:    cfg.Metrics,
		onOutcome:  cfg.OnOutcome,
		connecting: make(map[string]struct{}),
		turns:      make(map[turnKey]audio.Stream),
		turnCtx:    ctx,
		cancelTurn: cancel,
	}
	if sm.store == nil {
		sm.store = session.NewStore()
	}
	if sm.metrics == nil {
		sm.metrics = observe.DefaultMetrics()
	}
	return sm
}

// Store returns the session registry.
func (sm *SessionManager) Store() *session.Store {
	return sm.store
}

// Join connects the relay to the voice channel req.UserID is in and starts
// transcribing into req.TextChannelID.
//
// Errors: [ErrNoVoiceChannel], [ErrAlreadyConnected], a [ChannelError]
// (matching [ErrChannelUnavailable]) or [ErrTransport]. On error the guild's
// state is unchanged.
func (sm *SessionManager) Join(ctx context.Context, req JoinRequest) (*session.GuildSession, error) {
	voiceID, ok := sm.directory.UserVoiceChannel(ctx, req.GuildID, req.UserID)
	if !ok || voiceID == "" {
		return nil, ErrNoVoiceChannel
	}
	if !sm.reserve(req.GuildID) {
		return nil, ErrAlreadyConnected
	}
	defer sm.release(req.GuildID)

	voice, ok := sm.directory.Channel(ctx, voiceID)
	if !ok {
		return nil, &ChannelError{Kind: VoiceChannel, ChannelID: voiceID}
	}
	text, ok := sm.directory.Channel(ctx, req.TextChannelID)
	if !ok {
		return nil, &ChannelError{Kind: TextChannel, ChannelID: req.TextChannelID}
	}

	conn, err := sm.platform.Connect(ctx, req.GuildID, voice.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	// The platform may consider a silent bot absent.
	if err := conn.SendSilence(); err != nil {
		slog.Warn("session: failed to send silence frame", "guild_id", req.GuildID, "err", err)
	}

	gs := &session.GuildSession{
		GuildID:      req.GuildID,
		TextChannel:  text,
		VoiceChannel: voice,
		Conn:         conn,
		StartedAt:    time.Now().UTC(),
	}
	if !sm.store.Put(gs) {
		// Unreachable while the reservation is held; never leak the connection.
		_ = conn.Disconnect()
		return nil, ErrAlreadyConnected
	}
	sm.metrics.ActiveSessions.Add(ctx, 1)

	conn.OnSpeaking(func(ev audio.SpeakingEvent) { sm.handleSpeaking(gs, ev) })
	conn.OnDisconnect(func(err error) { sm.handleDisconnect(gs, err) })

	slog.Info("session: connected",
		"guild_id", req.GuildID,
		"voice_channel", voice.Name,
		"text_channel", text.Name,
		"requested_by", req.UserID,
	)
	return gs, nil
}

// Leave disconnects guildID. It returns [ErrNotConnected] if the guild has no
// registered session, including while a join is still connecting.
func (sm *SessionManager) Leave(ctx context.Context, guildID string) error {
	gs, ok := sm.store.Remove(guildID)
	if !ok {
		return ErrNotConnected
	}
	sm.metrics.ActiveSessions.Add(ctx, -1)
	if err := gs.Conn.Disconnect(); err != nil {
		slog.Warn("session: voice disconnect error", "guild_id", guildID, "err", err)
	}
	slog.Info("session: disconnected", "guild_id", guildID, "duration", time.Since(gs.StartedAt).Round(time.Second))
	return nil
}

// ToggleDebug flips the guild's diagnostic logging and returns the new value.
func (sm *SessionManager) ToggleDebug(guildID string) (bool, error) {
	gs, ok := sm.store.Get(guildID)
	if !ok {
		return false, ErrNotConnected
	}
	on := gs.ToggleDebug()
	slog.Info("session: debug toggled", "guild_id", guildID, "debug", on)
	return on, nil
}

// Active reports whether guildID has a registered session.
func (sm *SessionManager) Active(guildID string) bool {
	return sm.store.Has(guildID)
}

// Shutdown leaves every guild and waits for in-flight turns until ctx
// expires, after which they are cancelled.
func (sm *SessionManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	sm.closing = true
	sm.mu.Unlock()

	var errs []error
	for _, id := range sm.store.GuildIDs() {
		if err := sm.Leave(ctx, id); err != nil && !errors.Is(err, ErrNotConnected) {
			errs = append(errs, err)
		}
	}

	done := make(chan struct{})
	go func() {
		sm.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("session: shutdown deadline reached, cancelling in-flight turns")
		sm.cancelTurn()
		<-done
	}
	sm.cancelTurn()
	return errors.Join(errs...)
}

// ─── connection callbacks ────────────────────────────────────────────────────

func (sm *SessionManager) reserve(guildID string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if _, busy := sm.connecting[guildID]; busy || sm.store.Has(guildID) {
		return false
	}
	sm.connecting[guildID] = struct{}{}
	return true
}

func (sm *SessionManager) release(guildID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.connecting, guildID)
}

func (sm *SessionManager) isClosing() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.closing
}

// handleDisconnect runs once per connection. CompareAndRemove keeps a stale
// connection from removing a newer session of the same guild.
func (sm *SessionManager) handleDisconnect(gs *session.GuildSession, err error) {
	if !sm.store.CompareAndRemove(gs.GuildID, gs) {
		return
	}
	sm.metrics.ActiveSessions.Add(context.Background(), -1)
	if err != nil {
		slog.Warn("session: voice connection lost", "guild_id", gs.GuildID, "err", err)
		return
	}
	slog.Info("session: voice connection closed", "guild_id", gs.GuildID)
}

// handleSpeaking runs on the connection's receive goroutine and must not block.
func (sm *SessionManager) handleSpeaking(gs *session.GuildSession, ev audio.SpeakingEvent) {
	if !ev.Speaking || ev.Speaker.Bot {
		return
	}
	if cur, ok := sm.store.Get(gs.GuildID); !ok || cur != gs {
		return
	}
	if sm.isClosing() {
		return
	}

	stream := gs.Conn.Receive(ev.Speaker.ID)
	key := turnKey{guildID: gs.GuildID, userID: ev.Speaker.ID}

	sm.mu.Lock()
	if sm.closing {
		// Shutdown began after the check above; its Wait must not race Add.
		sm.mu.Unlock()
		return
	}
	if sm.turns[key] == stream {
		// Repeated speaking event for a turn that is already being captured.
		sm.mu.Unlock()
		return
	}
	sm.turns[key] = stream
	sm.wg.Add(1)
	sm.mu.Unlock()

	slog.Log(context.Background(), observe.DiagnosticLevel(gs.Debug()), "relay: listening",
		"guild_id", gs.GuildID,
		"user_id", ev.Speaker.ID,
		"username", ev.Speaker.Username,
	)
	go sm.runTurn(gs, ev.Speaker, key, stream)
}

// runTurn captures one speaking turn and hands it to the pipeline.
func (sm *SessionManager) runTurn(gs *session.GuildSession, sp audio.Speaker, key turnKey, stream audio.Stream) {
	defer sm.wg.Done()
	defer func() {
		sm.mu.Lock()
		if sm.turns[key] == stream {
			delete(sm.turns, key)
		}
		sm.mu.Unlock()
	}()

	ctx, span := observe.StartSpan(sm.turnCtx, observe.SpanTurn, trace.WithAttributes(
		attribute.String("guild_id", gs.GuildID),
		attribute.String("user_id", sp.ID),
	))
	defer span.End()

	// Buffer no more than the longest eligible turn plus one frame.
	limit := audio.DiscordPCM.Bytes(sm.pipeline.Gate().Policy().MaxSeconds) + audio.DiscordPCM.BytesPerFrame()
	turn := capture.NewTurn(gs.GuildID, sp, audio.DiscordPCM, capture.WithByteLimit(limit))

	pcm, seconds, err := capture.Collect(ctx, stream, turn)
	var out capture.Outcome
	if err != nil {
		out = capture.Outcome{Kind: capture.Aborted, GuildID: gs.GuildID, Speaker: sp, Seconds: seconds, Err: err}
	} else {
		out = sm.pipeline.Process(ctx, transcript.Utterance{
			Session:   gs,
			Speaker:   sp,
			PCM:       pcm,
			Seconds:   seconds,
			Truncated: turn.Truncated(),
		})
	}
	span.SetAttributes(attribute.String("outcome", out.Kind.String()), attribute.Float64("duration_s", out.Seconds))
	sm.report(ctx, gs, out)
}

func (sm *SessionManager) report(ctx context.Context, gs *session.GuildSession, out capture.Outcome) {
	sm.metrics.RecordTurn(ctx, out.Kind.String(), out.Seconds)

	level := observe.DiagnosticLevel(gs.Debug())
	if out.Kind == capture.Aborted && !errors.Is(out.Err, audio.ErrDisconnected) {
		level = slog.LevelWarn
	}
	observe.Logger(ctx).LogAttrs(ctx, level, "relay: turn complete", out.LogAttrs()...)

	if sm.onOutcome != nil {
		sm.onOutcome(out)
	}
}
