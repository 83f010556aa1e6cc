// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/voxrelay/pkg/provider/stt"
)

// modelSampleRate is the only input rate whisper.cpp models accept.
const modelSampleRate = 16000

// Compile-time assertion that NativeProvider satisfies stt.Provider.
var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider using whisper.cpp Go bindings
// (CGO) instead of a whisper-server over HTTP. The model is loaded once and
// shared; every Recognize call runs on its own whisper context.
type NativeProvider struct {
	model    whisperlib.Model
	language string
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the fallback language code used when a request
// names none. Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// NewNative loads the whisper.cpp model at modelPath. The caller must call
// Close when the provider is no longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Recognize down-mixes pcm to mono, resamples it to 16 kHz and runs
// inference. Segments are joined with [stt.JoinSegments]. Inference cannot
// be interrupted, so ctx is only checked before it starts.
func (p *NativeProvider) Recognize(ctx context.Context, pcm []byte, cfg stt.RecognizeConfig) (stt.Transcript, error) {
	if len(pcm) == 0 {
		return stt.Transcript{}, fmt.Errorf("whisper: %w", stt.ErrEmptyAudio)
	}
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, err
	}

	rate := cfg.SampleRate
	if rate <= 0 {
		rate = defaultSampleRate
	}
	samples := resample(pcmToFloat32Mono(pcm, cfg.Channels), rate, modelSampleRate)

	lang := baseLanguage(cfg.Language)
	if lang == "" {
		lang = p.language
	}

	wctx, err := p.model.NewContext()
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "err", err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Transcript{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return stt.Transcript{Text: stt.JoinSegments(parts)}, nil
}
