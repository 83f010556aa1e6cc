package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/voxrelay/pkg/provider/stt"
	sttmock "github.com/MrWong99/voxrelay/pkg/provider/stt/mock"
)

func TestSTTProvider_Forwards(t *testing.T) {
	t.Parallel()

	inner := &sttmock.Provider{Result: stt.Transcript{Text: "hello world"}}
	p := NewSTTProvider(inner, "google", Config{})

	cfg := stt.RecognizeConfig{Encoding: stt.EncodingLinear16, SampleRate: 48000, Language: "en-US"}
	got, err := p.Recognize(context.Background(), []byte{1, 2, 3, 4}, cfg)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if got.Text != "hello world" {
		t.Errorf("Text = %q", got.Text)
	}
	calls := inner.Calls()
	if len(calls) != 1 || calls[0].Cfg != cfg || len(calls[0].Audio) != 4 {
		t.Errorf("calls = %+v", calls)
	}
}

func TestSTTProvider_OpensAfterFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("503 service unavailable")
	inner := &sttmock.Provider{Err: boom}
	p := NewSTTProvider(inner, "google", Config{MaxFailures: 2, ResetTimeout: time.Hour})
	ctx := context.Background()

	for range 2 {
		if _, err := p.Recognize(ctx, []byte{0, 0}, stt.RecognizeConfig{}); !errors.Is(err, boom) {
			t.Fatalf("err = %v, want provider error", err)
		}
	}
	if err := p.Check(ctx); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Check = %v, want ErrCircuitOpen", err)
	}

	_, err := p.Recognize(ctx, []byte{0, 0}, stt.RecognizeConfig{})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if n := inner.CallCount(); n != 2 {
		t.Errorf("provider calls = %d, want 2", n)
	}

	p.Breaker().Reset()
	if err := p.Check(ctx); err != nil {
		t.Errorf("Check after reset = %v", err)
	}
}

func TestSTTProvider_EmptyAudioIsNotAFailure(t *testing.T) {
	t.Parallel()

	inner := &sttmock.Provider{Err: stt.ErrEmptyAudio}
	p := NewSTTProvider(inner, "google", Config{MaxFailures: 1})
	for range 3 {
		if _, err := p.Recognize(context.Background(), nil, stt.RecognizeConfig{}); !errors.Is(err, stt.ErrEmptyAudio) {
			t.Fatalf("err = %v, want ErrEmptyAudio", err)
		}
	}
	if p.Breaker().State() != StateClosed {
		t.Error("empty audio opened the breaker")
	}
}
