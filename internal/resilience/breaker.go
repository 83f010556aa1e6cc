// Package resilience guards calls to external services with a circuit
// breaker so a provider outage fails turns fast instead of stalling every
// speaker on timeouts.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// rejects calls.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset
	// timeout elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. A failed
	// probe re-opens the breaker; enough successes close it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds tuning knobs for a [CircuitBreaker].
type Config struct {
	// Name labels log messages.
	Name string

	// MaxFailures is the number of consecutive failures that opens a closed
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is both the number of concurrent probes allowed while
	// half-open and the number of successes that close the breaker.
	// Default: 1.
	HalfOpenMax int

	// IsFailure decides whether an error counts against the breaker.
	// Default: every error except context cancellation and deadline.
	IsFailure func(error) bool

	// OnStateChange, if set, is called after every transition with the
	// breaker's lock released.
	OnStateChange func(from, to State)

	// now replaces time.Now in tests.
	now func() time.Time
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	cfg Config

	mu           sync.Mutex
	state        State
	failures     int
	openedAt     time.Time
	probes       int
	probeSuccess int
}

// NewCircuitBreaker creates a closed [CircuitBreaker]. Zero-value config
// fields are replaced with defaults.
func NewCircuitBreaker(cfg Config) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = defaultIsFailure
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

func defaultIsFailure(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Execute runs fn if the breaker admits the call. A ctx that is already
// done returns its error without calling fn or touching the counters.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	probe, err := cb.admit()
	if err != nil {
		return err
	}

	callErr := fn(ctx)
	if callErr != nil && !cb.cfg.IsFailure(callErr) {
		// Neither success nor failure; a probe slot is given back.
		if probe {
			cb.mu.Lock()
			if cb.state == StateHalfOpen && cb.probes > 0 {
				cb.probes--
			}
			cb.mu.Unlock()
		}
		return callErr
	}
	cb.record(probe, callErr != nil)
	return callErr
}

// admit reserves a call slot. probe reports whether the call runs half-open.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	var from State
	transitioned := false
	switch cb.state {
	case StateOpen:
		if cb.cfg.now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			cb.mu.Unlock()
			return false, ErrCircuitOpen
		}
		from, transitioned = cb.state, true
		cb.state = StateHalfOpen
		cb.probes, cb.probeSuccess = 0, 0
	case StateHalfOpen:
		if cb.probes >= cb.cfg.HalfOpenMax {
			cb.mu.Unlock()
			return false, ErrCircuitOpen
		}
	}
	probe = cb.state == StateHalfOpen
	if probe {
		cb.probes++
	}
	cb.mu.Unlock()

	if transitioned {
		cb.notify(from, StateHalfOpen)
	}
	return probe, nil
}

func (cb *CircuitBreaker) record(probe, failed bool) {
	cb.mu.Lock()
	from := cb.state
	switch {
	case failed && probe:
		cb.open()
	case failed:
		cb.failures++
		if cb.state == StateClosed && cb.failures >= cb.cfg.MaxFailures {
			cb.open()
		}
	case probe:
		cb.probeSuccess++
		if cb.state == StateHalfOpen && cb.probeSuccess >= cb.cfg.HalfOpenMax {
			cb.state = StateClosed
			cb.failures, cb.probes, cb.probeSuccess = 0, 0, 0
		}
	default:
		cb.failures = 0
	}
	to := cb.state
	failures := cb.failures
	cb.mu.Unlock()

	if from == to {
		return
	}
	switch to {
	case StateOpen:
		slog.Warn("resilience: circuit breaker opened", "name", cb.cfg.Name, "consecutive_failures", failures)
	case StateClosed:
		slog.Info("resilience: circuit breaker closed", "name", cb.cfg.Name)
	}
	cb.notify(from, to)
}

// open must be called with cb.mu held.
func (cb *CircuitBreaker) open() {
	cb.state = StateOpen
	cb.openedAt = cb.cfg.now()
	cb.failures = cb.cfg.MaxFailures
	cb.probes, cb.probeSuccess = 0, 0
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from == StateOpen && to == StateHalfOpen {
		slog.Info("resilience: circuit breaker half-open, probing", "name", cb.cfg.Name)
	}
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}

// State returns the current state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cfg.now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.failures, cb.probes, cb.probeSuccess = 0, 0, 0
	cb.mu.Unlock()

	slog.Info("resilience: circuit breaker manually reset", "name", cb.cfg.Name)
	if from != StateClosed {
		cb.notify(from, StateClosed)
	}
}
