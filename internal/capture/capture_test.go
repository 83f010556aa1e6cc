package capture_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/voxrelay/internal/capture"
	"github.com/MrWong99/voxrelay/pkg/audio"
	"github.com/MrWong99/voxrelay/pkg/audio/mock"
)

// pcmFor returns silent Discord PCM lasting seconds.
func pcmFor(seconds float64) []byte {
	return make([]byte, audio.DiscordPCM.Bytes(seconds))
}

// ─── Policy ──────────────────────────────────────────────────────────────────

func TestPolicy_Eligible(t *testing.T) {
	t.Parallel()

	p := capture.DefaultPolicy()
	tests := []struct {
		name    string
		seconds float64
		want    bool
	}{
		{"empty", 0, false},
		{"just short", 0.99, false},
		{"lower bound", 1.0, true},
		{"typical", 4.2, true},
		{"upper bound", 19.0, true},
		{"just long", 19.01, false},
		{"very long", 120, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := p.Eligible(tt.seconds); got != tt.want {
				t.Errorf("Eligible(%v) = %v, want %v", tt.seconds, got, tt.want)
			}
		})
	}
}

func TestPolicy_EligibleFromBytes(t *testing.T) {
	t.Parallel()

	// 1 s of 48 kHz stereo 16-bit PCM is exactly 192000 bytes.
	p := capture.DefaultPolicy()
	if !p.Eligible(audio.DiscordPCM.Seconds(192000)) {
		t.Error("192000 bytes should be eligible")
	}
	if p.Eligible(audio.DiscordPCM.Seconds(191996)) {
		t.Error("191996 bytes should not be eligible")
	}
	if !p.Eligible(audio.DiscordPCM.Seconds(19 * 192000)) {
		t.Error("3648000 bytes should be eligible")
	}
	if p.Eligible(audio.DiscordPCM.Seconds(19*192000 + 4)) {
		t.Error("3648004 bytes should not be eligible")
	}
}

func TestPolicy_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		p       capture.Policy
		wantErr bool
	}{
		{"default", capture.DefaultPolicy(), false},
		{"single point", capture.Policy{MinSeconds: 2, MaxSeconds: 2}, false},
		{"negative min", capture.Policy{MinSeconds: -1, MaxSeconds: 5}, true},
		{"zero max", capture.Policy{MinSeconds: 0, MaxSeconds: 0}, true},
		{"inverted", capture.Policy{MinSeconds: 10, MaxSeconds: 5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.p.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGate(t *testing.T) {
	t.Parallel()

	var zero capture.Gate
	if got := zero.Policy(); got != capture.DefaultPolicy() {
		t.Errorf("zero Gate policy = %+v, want default", got)
	}

	g := capture.NewGate(capture.Policy{MinSeconds: 2, MaxSeconds: 3})
	if g.Policy().Eligible(1.5) {
		t.Error("1.5 s should be ineligible under 2..3")
	}
	g.Set(capture.DefaultPolicy())
	if !g.Policy().Eligible(1.5) {
		t.Error("1.5 s should be eligible after reset to default")
	}
}

// ─── Turn ────────────────────────────────────────────────────────────────────

func TestTurn_FinalizeConcatenatesInOrder(t *testing.T) {
	t.Parallel()

	turn := capture.NewTurn("g1", audio.Speaker{ID: "u1"}, audio.DiscordPCM)
	chunk := []byte{1, 2, 3, 4}
	if err := turn.Append(chunk); err != nil {
		t.Fatalf("Append: %v", err)
	}
	chunk[0] = 9 // Append must have copied.
	if err := turn.Append([]byte{5, 6, 7, 8}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	pcm, secs, err := turn.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if string(pcm) != string(want) {
		t.Errorf("pcm = %v, want %v", pcm, want)
	}
	if secs != audio.DiscordPCM.Seconds(8) {
		t.Errorf("seconds = %v, want %v", secs, audio.DiscordPCM.Seconds(8))
	}
	if turn.State() != capture.Finalized {
		t.Errorf("State = %v, want finalized", turn.State())
	}
}

func TestTurn_ClosedRejectsAudio(t *testing.T) {
	t.Parallel()

	finalized := capture.NewTurn("g1", audio.Speaker{ID: "u1"}, audio.DiscordPCM)
	if _, _, err := finalized.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if err := finalized.Append([]byte{1}); !errors.Is(err, capture.ErrTurnClosed) {
		t.Errorf("Append after Finalize err = %v, want ErrTurnClosed", err)
	}
	if _, _, err := finalized.Finalize(); !errors.Is(err, capture.ErrTurnClosed) {
		t.Errorf("second Finalize err = %v, want ErrTurnClosed", err)
	}

	aborted := capture.NewTurn("g1", audio.Speaker{ID: "u1"}, audio.DiscordPCM)
	cause := errors.New("gone")
	aborted.Abort(cause)
	aborted.Abort(errors.New("later"))
	if !errors.Is(aborted.Err(), cause) {
		t.Errorf("Err() = %v, want first abort reason", aborted.Err())
	}
	if err := aborted.Append([]byte{1}); !errors.Is(err, capture.ErrTurnClosed) {
		t.Errorf("Append after Abort err = %v, want ErrTurnClosed", err)
	}
	if aborted.State() != capture.Aborted {
		t.Errorf("State = %v, want aborted", aborted.State())
	}
}

func TestTurn_ByteLimitKeepsDuration(t *testing.T) {
	t.Parallel()

	turn := capture.NewTurn("g1", audio.Speaker{ID: "u1"}, audio.DiscordPCM, capture.WithByteLimit(8))
	for range 4 {
		if err := turn.Append([]byte{1, 2, 3, 4}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	pcm, secs, err := turn.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if len(pcm) != 8 {
		t.Errorf("buffered %d bytes, want 8", len(pcm))
	}
	if want := audio.DiscordPCM.Seconds(16); secs != want {
		t.Errorf("seconds = %v, want %v", secs, want)
	}
	if !turn.Truncated() {
		t.Error("Truncated = false after exceeding the limit")
	}
}

func TestTurn_Truncated(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		limit  int
		chunks int
		want   bool
	}{
		{"no limit", 0, 4, false},
		{"under limit", 16, 3, false},
		{"exactly at limit", 16, 4, false},
		{"over limit", 16, 5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			turn := capture.NewTurn("g1", audio.Speaker{ID: "u1"}, audio.DiscordPCM, capture.WithByteLimit(tt.limit))
			for range tt.chunks {
				if err := turn.Append([]byte{1, 2, 3, 4}); err != nil {
					t.Fatalf("Append: %v", err)
				}
			}
			if got := turn.Truncated(); got != tt.want {
				t.Errorf("Truncated = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCollect(t *testing.T) {
	t.Parallel()

	t.Run("clean end finalizes", func(t *testing.T) {
		t.Parallel()
		s := mock.NewStream(4)
		s.Send(pcmFor(0.5))
		s.Send(pcmFor(0.75))
		s.End(nil)

		turn := capture.NewTurn("g1", audio.Speaker{ID: "u1"}, audio.DiscordPCM)
		pcm, secs, err := capture.Collect(context.Background(), s, turn)
		if err != nil {
			t.Fatalf("Collect: %v", err)
		}
		if secs != 1.25 {
			t.Errorf("seconds = %v, want 1.25", secs)
		}
		if len(pcm) != audio.DiscordPCM.Bytes(1.25) {
			t.Errorf("len(pcm) = %d", len(pcm))
		}
	})

	t.Run("stream error aborts", func(t *testing.T) {
		t.Parallel()
		s := mock.NewStream(4)
		s.Send(pcmFor(0.5))
		s.End(audio.ErrDisconnected)

		turn := capture.NewTurn("g1", audio.Speaker{ID: "u1"}, audio.DiscordPCM)
		_, _, err := capture.Collect(context.Background(), s, turn)
		if !errors.Is(err, audio.ErrDisconnected) {
			t.Fatalf("err = %v, want ErrDisconnected", err)
		}
		if turn.State() != capture.Aborted {
			t.Errorf("State = %v, want aborted", turn.State())
		}
	})

	t.Run("cancel aborts", func(t *testing.T) {
		t.Parallel()
		s := mock.NewStream(4)
		ctx, cancel := context.WithCancel(context.Background())
		turn := capture.NewTurn("g1", audio.Speaker{ID: "u1"}, audio.DiscordPCM)

		done := make(chan error, 1)
		go func() {
			_, _, err := capture.Collect(ctx, s, turn)
			done <- err
		}()
		cancel()
		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("err = %v, want context.Canceled", err)
			}
		case <-time.After(time.Second):
			t.Fatal("Collect did not return after cancel")
		}
		s.End(nil)
	})
}

// ─── Outcome ─────────────────────────────────────────────────────────────────

func TestKind_String(t *testing.T) {
	t.Parallel()

	tests := map[capture.Kind]string{
		capture.Delivered:         "delivered",
		capture.DroppedIneligible: "dropped_ineligible",
		capture.DroppedEmpty:      "dropped_empty",
		capture.SessionGone:       "session_gone",
		capture.Failed:            "failed",
		capture.Aborted:           "aborted",
		capture.Kind(42):          "unknown",
	}
	for k, want := range tests {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", int(k), got, want)
		}
	}
}

func TestOutcome_LogAttrs(t *testing.T) {
	t.Parallel()

	o := capture.Outcome{Kind: capture.Failed, GuildID: "g1", Speaker: audio.Speaker{ID: "u1"}, Err: errors.New("boom")}
	attrs := o.LogAttrs()
	found := map[string]bool{}
	for _, a := range attrs {
		found[a.Key] = true
	}
	for _, k := range []string{"outcome", "guild_id", "user_id", "duration_s", "err"} {
		if !found[k] {
			t.Errorf("missing attr %q", k)
		}
	}
}
