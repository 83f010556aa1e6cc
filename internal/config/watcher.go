package config

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher polls a config file and calls a callback with the old and new
// config whenever its content changes to another valid configuration.
// Invalid edits are logged and ignored; the last valid config stays current.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu        sync.Mutex
	current   *Config
	lastMtime time.Time
	lastHash  [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher creates a watcher for path whose initial config is initial.
// Polling starts with [Watcher.Run].
func NewWatcher(path string, initial *Config, onChange func(old, new *Config), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		current:  initial,
	}
	for _, opt := range opts {
		opt(w)
	}
	if data, err := os.ReadFile(path); err == nil {
		w.lastHash = sha256.Sum256(data)
		if info, err := os.Stat(path); err == nil {
			w.lastMtime = info.ModTime()
		}
	}
	return w
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls until ctx is cancelled. It always returns nil so it can run in an
// errgroup next to the bot without tearing it down.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.check()
		}
	}
}

// check reloads the file if its mtime moved and its content hash changed.
func (w *Watcher) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.lastMtime)
	w.mu.Unlock()
	if unchanged {
		return
	}

	data, err := os.ReadFile(w.path)
	if err != nil {
		slog.Warn("config watcher: cannot read file", "path", w.path, "err", err)
		return
	}
	hash := sha256.Sum256(data)

	w.mu.Lock()
	w.lastMtime = info.ModTime()
	if hash == w.lastHash {
		w.mu.Unlock()
		return
	}
	w.lastHash = hash
	w.mu.Unlock()

	cfg, err := parse(data)
	if err != nil {
		slog.Warn("config watcher: keeping previous config", "path", w.path, "err", fmt.Errorf("config: reload: %w", err))
		return
	}
	ApplyEnv(cfg, os.LookupEnv)

	w.mu.Lock()
	old := w.current
	w.current = cfg
	w.mu.Unlock()

	slog.Info("config watcher: configuration reloaded", "path", w.path)

	// Outside the lock so the callback may call Current.
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}
