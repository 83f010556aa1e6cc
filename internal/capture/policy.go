// Package capture accumulates one speaker's audio for a single speaking turn
// and decides whether the finished turn is worth transcribing.
//
// A [Turn] buffers PCM chunks in arrival order until the platform stream
// ends. Its length in seconds is then checked against a [Policy]; turns that
// are too short (coughs, clicks) or too long for a synchronous recognition
// request are dropped without contacting the transcription service. Every
// finished turn is summarised by an [Outcome].
package capture

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// Default eligibility bounds in seconds, both inclusive.
const (
	DefaultMinSeconds = 1.0
	DefaultMaxSeconds = 19.0
)

// Policy is the duration gate applied to finished turns.
type Policy struct {
	MinSeconds float64
	MaxSeconds float64
}

// DefaultPolicy returns the 1.0 s to 19.0 s gate.
func DefaultPolicy() Policy {
	return Policy{MinSeconds: DefaultMinSeconds, MaxSeconds: DefaultMaxSeconds}
}

// Eligible reports whether a turn of the given length should be transcribed.
// Both bounds are inclusive.
func (p Policy) Eligible(seconds float64) bool {
	return p.MinSeconds <= seconds && seconds <= p.MaxSeconds
}

// Validate checks that the bounds form a non-empty window.
func (p Policy) Validate() error {
	var errs []error
	if p.MinSeconds < 0 {
		errs = append(errs, fmt.Errorf("capture: min duration %v must not be negative", p.MinSeconds))
	}
	if p.MaxSeconds <= 0 {
		errs = append(errs, fmt.Errorf("capture: max duration %v must be positive", p.MaxSeconds))
	}
	if p.MinSeconds > p.MaxSeconds {
		errs = append(errs, fmt.Errorf("capture: min duration %v exceeds max duration %v", p.MinSeconds, p.MaxSeconds))
	}
	return errors.Join(errs...)
}

// Gate holds the active [Policy] and lets it be swapped while turns are in
// flight. The zero value applies [DefaultPolicy].
type Gate struct {
	p atomic.Pointer[Policy]
}

// NewGate returns a Gate starting with p.
func NewGate(p Policy) *Gate {
	g := &Gate{}
	g.Set(p)
	return g
}

// Policy returns the current policy.
func (g *Gate) Policy() Policy {
	if p := g.p.Load(); p != nil {
		return *p
	}
	return DefaultPolicy()
}

// Set replaces the current policy.
func (g *Gate) Set(p Policy) {
	g.p.Store(&p)
}
