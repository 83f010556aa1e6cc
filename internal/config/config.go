// Package config provides the configuration schema, loader, hot-reload
// watcher, and speech-to-text provider registry for the voxrelay bot.
package config

import "time"

// LogLevel controls log verbosity for the relay.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Default values applied by [ApplyDefaults].
const (
	DefaultLogLevel         = LogInfo
	DefaultListenAddr       = ":9090"
	DefaultCommandPrefix    = "*"
	DefaultSTTProvider      = "google"
	DefaultCredentialsFile  = "gspeech_key.json"
	DefaultLanguage         = "en-US"
	DefaultMinDuration      = 1.0
	DefaultMaxDuration      = 19.0
	DefaultEndOfTurnSilence = 300 * time.Millisecond
	DefaultBreakerFailures  = 5
	DefaultBreakerReset     = 30 * time.Second
)

// Config is the root configuration structure for the relay.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Discord       DiscordConfig       `yaml:"discord"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Capture       CaptureConfig       `yaml:"capture"`
}

// ServerConfig holds logging and the health/metrics listener.
type ServerConfig struct {
	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// ListenAddr is the TCP address for /healthz, /readyz and /metrics.
	// Set to "-" to disable the listener.
	ListenAddr string `yaml:"listen_addr"`
}

// HealthEnabled reports whether the health listener should be started.
func (s ServerConfig) HealthEnabled() bool {
	return s.ListenAddr != "" && s.ListenAddr != "-"
}

// DiscordConfig holds the bot credentials and command settings.
type DiscordConfig struct {
	// Token is the bot token. Falls back to $DISCORD_TOKEN, then $DISCORD_TOK.
	Token string `yaml:"token"`

	// CommandPrefix precedes every text command (e.g. "*join"). Hot-reloadable.
	CommandPrefix string `yaml:"command_prefix"`

	// DebugRoleID, when set, restricts the debug command to members holding
	// this role. Hot-reloadable.
	DebugRoleID string `yaml:"debug_role_id"`
}

// TranscriptionConfig selects the speech-to-text provider and the duration
// window of turns worth transcribing.
type TranscriptionConfig struct {
	// Provider selects a factory registered in the [Registry].
	Provider ProviderEntry `yaml:"provider"`

	// Language is the BCP-47 recognition language.
	Language string `yaml:"language"`

	// MinDuration is the shortest transcribed turn in seconds, inclusive.
	MinDuration float64 `yaml:"min_duration"`

	// MaxDuration is the longest transcribed turn in seconds, inclusive.
	MaxDuration float64 `yaml:"max_duration"`

	// Breaker stops calling a provider that keeps failing.
	Breaker BreakerConfig `yaml:"circuit_breaker"`
}

// BreakerConfig tunes the circuit breaker in front of the provider.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failed requests that opens
	// the breaker. Negative disables the breaker.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long an open breaker rejects turns before it
	// lets a probe request through.
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// Enabled reports whether the breaker should wrap the provider.
func (b BreakerConfig) Enabled() bool {
	return b.MaxFailures >= 0
}

// CaptureConfig tunes per-speaker audio capture.
type CaptureConfig struct {
	// EndOfTurnSilence ends a speaking turn when a speaker sends no audio
	// for this long without an explicit silence frame.
	EndOfTurnSilence time.Duration `yaml:"end_of_turn_silence"`
}

// ProviderEntry is the configuration block of a speech-to-text provider.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "google", "whisper").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "whisper-1").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// OptString returns the string option named key, or "" when it is absent or
// not a string.
func (e ProviderEntry) OptString(key string) string {
	if e.Options == nil {
		return ""
	}
	s, _ := e.Options[key].(string)
	return s
}
