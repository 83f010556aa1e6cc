package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Token environment variables, checked in order when the file has no token.
var tokenEnvVars = []string{"DISCORD_TOKEN", "DISCORD_TOK"}

// ValidSTTProviders lists the speech-to-text providers that ship with the relay.
var ValidSTTProviders = []string{"google", "whisper", "whisper-native", "openai", "deepgram"}

// Load reads the YAML configuration file at path, applies defaults and the
// token environment fallback, and returns a validated [Config].
//
// A missing file is not an error when a token is available from the
// environment; the relay then runs on defaults alone.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if _, ok := lookupToken(os.LookupEnv); ok {
			slog.Info("config: file not found, using defaults and environment", "path", path)
			data = nil
		} else {
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}

	cfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	ApplyEnv(cfg, os.LookupEnv)
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. The environment is not consulted.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field of cfg with its default value.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = DefaultLogLevel
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Discord.CommandPrefix == "" {
		cfg.Discord.CommandPrefix = DefaultCommandPrefix
	}
	t := &cfg.Transcription
	if t.Provider.Name == "" {
		t.Provider.Name = DefaultSTTProvider
		if t.Provider.OptString("credentials_file") == "" && t.Provider.APIKey == "" {
			if t.Provider.Options == nil {
				t.Provider.Options = make(map[string]any)
			}
			t.Provider.Options["credentials_file"] = DefaultCredentialsFile
		}
	}
	if t.Language == "" {
		t.Language = DefaultLanguage
	}
	if t.MinDuration == 0 {
		t.MinDuration = DefaultMinDuration
	}
	if t.MaxDuration == 0 {
		t.MaxDuration = DefaultMaxDuration
	}
	if t.Breaker.MaxFailures == 0 {
		t.Breaker.MaxFailures = DefaultBreakerFailures
	}
	if t.Breaker.ResetTimeout == 0 {
		t.Breaker.ResetTimeout = DefaultBreakerReset
	}
	if cfg.Capture.EndOfTurnSilence == 0 {
		cfg.Capture.EndOfTurnSilence = DefaultEndOfTurnSilence
	}
}

// ApplyEnv sets the Discord token from the environment when the file left it
// empty. lookup is usually [os.LookupEnv].
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if cfg.Discord.Token != "" {
		return
	}
	if tok, ok := lookupToken(lookup); ok {
		cfg.Discord.Token = tok
	}
}

func lookupToken(lookup func(string) (string, bool)) (string, bool) {
	for _, name := range tokenEnvVars {
		if v, ok := lookup(name); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if p := cfg.Discord.CommandPrefix; len(p) > 8 {
		errs = append(errs, fmt.Errorf("discord.command_prefix %q is longer than 8 characters", p))
	}

	t := cfg.Transcription
	if t.MinDuration < 0 {
		errs = append(errs, fmt.Errorf("transcription.min_duration %.2f must not be negative", t.MinDuration))
	}
	if t.MaxDuration < 0 {
		errs = append(errs, fmt.Errorf("transcription.max_duration %.2f must not be negative", t.MaxDuration))
	}
	if t.MinDuration > t.MaxDuration {
		errs = append(errs, fmt.Errorf("transcription.min_duration %.2f exceeds max_duration %.2f", t.MinDuration, t.MaxDuration))
	}
	if name := t.Provider.Name; name != "" && !slices.Contains(ValidSTTProviders, name) {
		slog.Warn("config: unknown stt provider name, may be a typo or third-party provider",
			"name", name,
			"known", ValidSTTProviders,
		)
	}
	if t.Provider.Name == "whisper" && t.Provider.BaseURL == "" {
		errs = append(errs, errors.New("transcription.provider.base_url is required for the whisper provider"))
	}
	if t.Provider.Name == "whisper-native" && t.Provider.Model == "" && t.Provider.OptString("model_path") == "" {
		errs = append(errs, errors.New("transcription.provider.model (or options.model_path) is required for the whisper-native provider"))
	}
	if (t.Provider.Name == "openai" || t.Provider.Name == "deepgram") && t.Provider.APIKey == "" {
		errs = append(errs, fmt.Errorf("transcription.provider.api_key is required for the %s provider", t.Provider.Name))
	}

	if t.Breaker.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("transcription.circuit_breaker.reset_timeout %s must not be negative", t.Breaker.ResetTimeout))
	}

	if cfg.Capture.EndOfTurnSilence < 0 {
		errs = append(errs, fmt.Errorf("capture.end_of_turn_silence %s must not be negative", cfg.Capture.EndOfTurnSilence))
	}

	return errors.Join(errs...)
}
