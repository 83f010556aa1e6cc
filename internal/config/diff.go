package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are applied; the rest are
// listed in RestartRequired so the operator can be told.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	DurationsChanged bool
	NewMinDuration   float64
	NewMaxDuration   float64

	DebugRoleChanged bool
	NewDebugRoleID   string

	PrefixChanged bool
	NewPrefix     string

	// RestartRequired names changed fields that only take effect after a
	// restart, using their YAML paths.
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.DurationsChanged || d.DebugRoleChanged ||
		d.PrefixChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	ot, nt := old.Transcription, new.Transcription
	if ot.MinDuration != nt.MinDuration || ot.MaxDuration != nt.MaxDuration {
		d.DurationsChanged = true
		d.NewMinDuration = nt.MinDuration
		d.NewMaxDuration = nt.MaxDuration
	}

	if old.Discord.DebugRoleID != new.Discord.DebugRoleID {
		d.DebugRoleChanged = true
		d.NewDebugRoleID = new.Discord.DebugRoleID
	}

	if old.Discord.CommandPrefix != new.Discord.CommandPrefix {
		d.PrefixChanged = true
		d.NewPrefix = new.Discord.CommandPrefix
	}

	restart := func(path string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, path)
		}
	}
	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("discord.token", old.Discord.Token != new.Discord.Token)
	restart("transcription.provider", !sameProvider(ot.Provider, nt.Provider))
	restart("transcription.language", ot.Language != nt.Language)
	restart("transcription.circuit_breaker", ot.Breaker != nt.Breaker)
	restart("capture.end_of_turn_silence", old.Capture.EndOfTurnSilence != new.Capture.EndOfTurnSilence)

	return d
}

func sameProvider(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	return reflect.DeepEqual(a.Options, b.Options)
}
