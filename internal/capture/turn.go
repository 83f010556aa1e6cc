package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/voxrelay/pkg/audio"
)

// ErrTurnClosed is returned when audio is appended to a finished turn.
var ErrTurnClosed = errors.New("capture: turn closed")

// State is the lifecycle stage of a [Turn].
type State int

const (
	// Open turns accept audio.
	Open State = iota
	// Finalized turns have handed their audio out.
	Finalized
	// Aborted turns were cancelled and their audio discarded.
	Aborted
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Finalized:
		return "finalized"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// TurnOption configures a [Turn].
type TurnOption func(*Turn)

// WithByteLimit stops buffering audio beyond n bytes. The turn still counts
// every appended byte, so [Turn.Finalize] reports the true duration and an
// oversized turn fails the duration gate instead of growing without bound.
func WithByteLimit(n int) TurnOption {
	return func(t *Turn) {
		t.limit = n
	}
}

// Turn accumulates the audio of one speaker's speaking turn.
//
// Turn is safe for concurrent use.
type Turn struct {
	GuildID string
	Speaker audio.Speaker
	Format  audio.Format
	Started time.Time

	limit int

	mu     sync.Mutex
	chunks [][]byte
	kept   int
	total  int
	state  State
	err    error
}

// NewTurn opens a turn for sp in guildID with audio in format f.
func NewTurn(guildID string, sp audio.Speaker, f audio.Format, opts ...TurnOption) *Turn {
	t := &Turn{
		GuildID: guildID,
		Speaker: sp,
		Format:  f,
		Started: time.Now(),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Append copies chunk onto the end of the turn.
func (t *Turn) Append(chunk []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Open {
		return ErrTurnClosed
	}
	t.total += len(chunk)
	if t.limit > 0 && t.kept+len(chunk) > t.limit {
		return nil
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	t.chunks = append(t.chunks, cp)
	t.kept += len(chunk)
	return nil
}

// Finalize closes the turn and returns its concatenated audio together with
// the length in seconds of everything appended. Calling it on a closed turn
// returns [ErrTurnClosed].
func (t *Turn) Finalize() ([]byte, float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Open {
		return nil, 0, ErrTurnClosed
	}
	t.state = Finalized
	pcm := audio.Concat(t.chunks)
	t.chunks = nil
	return pcm, t.Format.Seconds(t.total), nil
}

// Abort discards the turn's audio. The first abort reason is kept.
func (t *Turn) Abort(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Open {
		return
	}
	t.state = Aborted
	t.err = err
	t.chunks = nil
}

// State returns the lifecycle stage.
func (t *Turn) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the abort reason, if any.
func (t *Turn) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Seconds returns the length of the audio appended so far.
func (t *Turn) Seconds() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Format.Seconds(t.total)
}

// Truncated reports whether audio past the byte limit was discarded.
func (t *Turn) Truncated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total > t.kept
}

// Collect appends every frame of s to t until the stream ends, then
// finalizes the turn. A stream error or cancellation of ctx aborts the turn
// and is returned; the rest of the stream is drained in the background.
func Collect(ctx context.Context, s audio.Stream, t *Turn) ([]byte, float64, error) {
	frames := s.Frames()
	for {
		select {
		case <-ctx.Done():
			t.Abort(ctx.Err())
			go func() { _ = audio.DrainStream(s) }()
			return nil, t.Seconds(), fmt.Errorf("capture: collect: %w", ctx.Err())
		case chunk, ok := <-frames:
			if !ok {
				if err := s.Err(); err != nil {
					t.Abort(err)
					return nil, t.Seconds(), fmt.Errorf("capture: stream: %w", err)
				}
				return t.Finalize()
			}
			if err := t.Append(chunk); err != nil {
				go func() { _ = audio.DrainStream(s) }()
				return nil, t.Seconds(), err
			}
		}
	}
}
