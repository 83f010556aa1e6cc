package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/voxrelay/pkg/provider/stt"
)

// STTProvider implements [stt.Provider] by forwarding to a wrapped provider
// through a [CircuitBreaker]. While the breaker is open, Recognize fails
// immediately with an error matching [ErrCircuitOpen].
type STTProvider struct {
	name     string
	provider stt.Provider
	breaker  *CircuitBreaker
}

// Compile-time interface assertion.
var _ stt.Provider = (*STTProvider)(nil)

// NewSTTProvider wraps p. cfg.Name defaults to name. Unless cfg.IsFailure is
// set, [stt.ErrEmptyAudio] and context errors do not count as failures.
func NewSTTProvider(p stt.Provider, name string, cfg Config) *STTProvider {
	if cfg.Name == "" {
		cfg.Name = name
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool {
			return defaultIsFailure(err) && !errors.Is(err, stt.ErrEmptyAudio)
		}
	}
	return &STTProvider{name: name, provider: p, breaker: NewCircuitBreaker(cfg)}
}

// Recognize implements [stt.Provider].
func (s *STTProvider) Recognize(ctx context.Context, audio []byte, cfg stt.RecognizeConfig) (stt.Transcript, error) {
	var out stt.Transcript
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.provider.Recognize(ctx, audio, cfg)
		return err
	})
	if errors.Is(err, ErrCircuitOpen) {
		return stt.Transcript{}, fmt.Errorf("resilience: %s: %w", s.name, err)
	}
	return out, err
}

// Breaker returns the circuit breaker guarding the provider.
func (s *STTProvider) Breaker() *CircuitBreaker {
	return s.breaker
}

// Check reports an error while the breaker is open. It fits a readiness probe.
func (s *STTProvider) Check(context.Context) error {
	if s.breaker.State() == StateOpen {
		return fmt.Errorf("resilience: %s: %w", s.name, ErrCircuitOpen)
	}
	return nil
}
