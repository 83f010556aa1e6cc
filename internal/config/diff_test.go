package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/voxrelay/internal/config"
)

func baseConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestDiff_NoChange(t *testing.T) {
	t.Parallel()
	if d := config.Diff(baseConfig(), baseConfig()); d.Changed() {
		t.Errorf("identical configs reported change: %+v", d)
	}
}

func TestDiff_HotReloadable(t *testing.T) {
	t.Parallel()

	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = config.LogDebug
	new.Transcription.MaxDuration = 25
	new.Discord.DebugRoleID = "role-1"
	new.Discord.CommandPrefix = "!"

	d := config.Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level diff = %+v", d)
	}
	if !d.DurationsChanged || d.NewMinDuration != 1 || d.NewMaxDuration != 25 {
		t.Errorf("duration diff = %+v", d)
	}
	if !d.DebugRoleChanged || d.NewDebugRoleID != "role-1" {
		t.Errorf("debug role diff = %+v", d)
	}
	if !d.PrefixChanged || d.NewPrefix != "!" {
		t.Errorf("prefix diff = %+v", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("RestartRequired = %v, want none", d.RestartRequired)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()

	old, new := baseConfig(), baseConfig()
	new.Discord.Token = "other"
	new.Transcription.Provider.Options = map[string]any{"credentials_file": "other.json"}
	new.Transcription.Breaker.MaxFailures = 2
	new.Capture.EndOfTurnSilence *= 2

	d := config.Diff(old, new)
	want := []string{"discord.token", "transcription.provider", "transcription.circuit_breaker", "capture.end_of_turn_silence"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
	if !d.Changed() {
		t.Error("Changed() = false")
	}
}
