package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxrelay/internal/app"
	"github.com/MrWong99/voxrelay/internal/capture"
	"github.com/MrWong99/voxrelay/internal/config"
	"github.com/MrWong99/voxrelay/internal/observe"
	"github.com/MrWong99/voxrelay/internal/session"
	audiomock "github.com/MrWong99/voxrelay/pkg/audio/mock"
	"github.com/MrWong99/voxrelay/pkg/provider/stt"
	sttmock "github.com/MrWong99/voxrelay/pkg/provider/stt/mock"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// fakeDirectory resolves voice state and channels from maps.
type fakeDirectory struct {
	mu       sync.Mutex
	voice    map[string]string // guildID/userID -> voice channel ID
	channels map[string]session.Channel
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		voice: map[string]string{
			"g1/u1": "voice-1",
			"g2/u1": "voice-2",
		},
		channels: map[string]session.Channel{
			"voice-1": {ID: "voice-1", Name: "General"},
			"voice-2": {ID: "voice-2", Name: "Lounge"},
			"text-1":  {ID: "text-1", Name: "transcripts"},
			"text-2":  {ID: "text-2", Name: "chat"},
		},
	}
}

func (d *fakeDirectory) UserVoiceChannel(_ context.Context, guildID, userID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.voice[guildID+"/"+userID]
	return id, ok
}

func (d *fakeDirectory) Channel(_ context.Context, channelID string) (session.Channel, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch, ok := d.channels[channelID]
	return ch, ok
}

func (d *fakeDirectory) removeChannel(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.channels, id)
}

type sentMessage struct {
	ChannelID string
	Content   string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (s *fakeSender) Send(_ context.Context, channelID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{ChannelID: channelID, Content: content})
	return nil
}

func (s *fakeSender) messages() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.sent...)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return cfg
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// harness is a fully wired App over mock audio and STT.
type harness struct {
	app       *app.App
	sm        *app.SessionManager
	platform  *audiomock.Platform
	conn      *audiomock.Connection
	stt       *sttmock.Provider
	directory *fakeDirectory
	sender    *fakeSender
	outcomes  chan capture.Outcome
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := &audiomock.Connection{}
	h := &harness{
		platform:  &audiomock.Platform{ConnectResult: conn},
		conn:      conn,
		stt:       &sttmock.Provider{Result: stt.Transcript{Text: "hello world"}},
		directory: newFakeDirectory(),
		sender:    &fakeSender{},
		outcomes:  make(chan capture.Outcome, 16),
	}
	a, err := app.New(testConfig(),
		&app.Providers{STT: h.stt, STTName: "mock", Audio: h.platform},
		h.sender, h.directory,
		app.WithMetrics(testMetrics(t)),
		app.WithOutcomeFunc(func(o capture.Outcome) { h.outcomes <- o }),
	)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	h.app = a
	h.sm = a.Sessions()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return h
}

func (h *harness) join(t *testing.T) *session.GuildSession {
	t.Helper()
	gs, err := h.sm.Join(context.Background(), app.JoinRequest{GuildID: "g1", UserID: "u1", TextChannelID: "text-1"})
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	return gs
}

func (h *harness) waitOutcome(t *testing.T) capture.Outcome {
	t.Helper()
	select {
	case o := <-h.outcomes:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for turn outcome")
		return capture.Outcome{}
	}
}

func (h *harness) expectNoOutcome(t *testing.T) {
	t.Helper()
	select {
	case o := <-h.outcomes:
		t.Fatalf("unexpected outcome %v", o.Kind)
	case <-time.After(100 * time.Millisecond):
	}
}
