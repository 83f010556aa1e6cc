// Package app wires the relay's subsystems into a running application.
//
// The [App] owns the transcription gateway, the delivery pipeline, the guild
// session registry and the [SessionManager] that drives the per-guild
// join/leave state machine. The chat platform is injected: main.go passes the
// Discord bot as the [Directory] and the message [transcript.Sender], and the
// command router calls into [App.Sessions].
//
// For testing, inject mock implementations via functional options and the
// audio/stt mock packages.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/voxrelay/internal/capture"
	"github.com/MrWong99/voxrelay/internal/config"
	"github.com/MrWong99/voxrelay/internal/observe"
	"github.com/MrWong99/voxrelay/internal/session"
	"github.com/MrWong99/voxrelay/internal/transcript"
	"github.com/MrWong99/voxrelay/pkg/audio"
	"github.com/MrWong99/voxrelay/pkg/provider/stt"
)

// Providers holds the external services the relay depends on. Populated by
// main.go via the config registry and the Discord bot.
type Providers struct {
	// STT transcribes finished turns.
	STT stt.Provider

	// STTName labels the provider in metrics and spans.
	STTName string

	// Audio joins voice channels.
	Audio audio.Platform
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	store     *session.Store
	gate      *capture.Gate
	gateway   *transcript.Gateway
	pipeline  *transcript.Pipeline
	sessions  *SessionManager
	metrics   *observe.Metrics
	onOutcome OutcomeFunc

	stopOnce sync.Once
	stopErr  error
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithOutcomeFunc observes every finished turn.
func WithOutcomeFunc(fn OutcomeFunc) Option {
	return func(a *App) { a.onOutcome = fn }
}

// WithSessionStore injects the session registry instead of creating one.
func WithSessionStore(s *session.Store) Option {
	return func(a *App) { a.store = s }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring the subsystems together. sender posts
// transcripts and directory resolves channels and members' voice state.
func New(cfg *config.Config, providers *Providers, sender transcript.Sender, directory Directory, opts ...Option) (*App, error) {
	if providers == nil || providers.STT == nil {
		return nil, errors.New("app: no speech-to-text provider configured")
	}
	if providers.Audio == nil {
		return nil, errors.New("app: no audio platform configured")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.store == nil {
		a.store = session.NewStore()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	policy := capture.Policy{
		MinSeconds: cfg.Transcription.MinDuration,
		MaxSeconds: cfg.Transcription.MaxDuration,
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("app: duration window: %w", err)
	}
	a.gate = capture.NewGate(policy)

	name := providers.STTName
	if name == "" {
		name = cfg.Transcription.Provider.Name
	}
	a.gateway = transcript.NewGateway(providers.STT,
		transcript.WithProviderName(name),
		transcript.WithLanguage(cfg.Transcription.Language),
		transcript.WithGatewayMetrics(a.metrics),
	)
	a.pipeline = transcript.NewPipeline(a.gateway, a.store, sender, transcript.WithGate(a.gate))
	a.sessions = NewSessionManager(SessionManagerConfig{
		Platform:  providers.Audio,
		Directory: directory,
		Pipeline:  a.pipeline,
		Store:     a.store,
		Metrics:   a.metrics,
		OnOutcome: a.onOutcome,
	})

	slog.Info("app: initialised",
		"stt_provider", name,
		"language", a.gateway.Config().Language,
		"min_duration", policy.MinSeconds,
		"max_duration", policy.MaxSeconds,
	)
	return a, nil
}

// Sessions returns the guild session lifecycle manager.
func (a *App) Sessions() *SessionManager {
	return a.sessions
}

// Policy returns the duration window currently applied to finished turns.
func (a *App) Policy() capture.Policy {
	return a.gate.Policy()
}

// ApplyDiff applies the hot-reloadable parts of a config change that the
// App owns. Invalid duration windows are rejected and logged.
func (a *App) ApplyDiff(d config.ConfigDiff) {
	if !d.DurationsChanged {
		return
	}
	p := capture.Policy{MinSeconds: d.NewMinDuration, MaxSeconds: d.NewMaxDuration}
	if err := p.Validate(); err != nil {
		slog.Warn("app: ignoring invalid duration window", "err", err)
		return
	}
	a.gate.Set(p)
	slog.Info("app: duration window updated", "min_duration", p.MinSeconds, "max_duration", p.MaxSeconds)
}

// Shutdown leaves every guild and waits for in-flight turns. It is safe to
// call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	a.stopOnce.Do(func() {
		slog.Info("app: shutting down", "sessions", a.store.Len())
		a.stopErr = a.sessions.Shutdown(ctx)
	})
	return a.stopErr
}
