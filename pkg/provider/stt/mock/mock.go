// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to verify that the caller sends the expected audio and
// RecognizeConfig, and to script the transcript or error it gets back.
//
// Example:
//
//	p := &mock.Provider{Result: stt.Transcript{Text: "hello"}}
//	got, _ := p.Recognize(ctx, pcm, cfg)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxrelay/pkg/provider/stt"
)

// RecognizeCall records a single invocation of Provider.Recognize.
type RecognizeCall struct {
	// Ctx is the context passed to Recognize.
	Ctx context.Context
	// Audio is a copy of the bytes passed to Recognize.
	Audio []byte
	// Cfg is the RecognizeConfig passed to Recognize.
	Cfg stt.RecognizeConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Recognize when Err is nil.
	Result stt.Transcript

	// Err, if non-nil, is returned as the error from Recognize.
	Err error

	// RecognizeFunc, when set, overrides Result and Err. It runs outside the
	// mock's lock, so it may block to simulate a slow service.
	RecognizeFunc func(ctx context.Context, audio []byte, cfg stt.RecognizeConfig) (stt.Transcript, error)

	// RecognizeCalls records every call to Recognize.
	RecognizeCalls []RecognizeCall
}

// Recognize records the call and returns the scripted outcome.
func (p *Provider) Recognize(ctx context.Context, audio []byte, cfg stt.RecognizeConfig) (stt.Transcript, error) {
	cp := make([]byte, len(audio))
	copy(cp, audio)

	p.mu.Lock()
	p.RecognizeCalls = append(p.RecognizeCalls, RecognizeCall{Ctx: ctx, Audio: cp, Cfg: cfg})
	fn := p.RecognizeFunc
	res, err := p.Result, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, audio, cfg)
	}
	return res, err
}

// CallCount returns the number of Recognize calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.RecognizeCalls)
}

// Calls returns a copy of the recorded calls. Thread-safe.
func (p *Provider) Calls() []RecognizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]RecognizeCall, len(p.RecognizeCalls))
	copy(out, p.RecognizeCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.RecognizeCalls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
