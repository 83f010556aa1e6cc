package audio

// bytesPerSample is fixed at 2 for the signed 16-bit little-endian PCM used
// throughout the relay.
const bytesPerSample = 2

// Format describes the sample rate and channel count of a 16-bit PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// DiscordPCM is the format Discord voice audio decodes to: 48 kHz, stereo,
// signed 16-bit little-endian.
var DiscordPCM = Format{SampleRate: 48000, Channels: 2}

// BytesPerFrame returns the size of one interleaved sample frame
// (one sample for every channel).
func (f Format) BytesPerFrame() int {
	return f.Channels * bytesPerSample
}

// Seconds returns the playback duration in seconds of n bytes of PCM in
// format f. The division is done in floating point so boundary values such
// as exactly 1.0 s are representable.
func (f Format) Seconds(n int) float64 {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	return float64(n) / float64(f.SampleRate) / float64(f.BytesPerFrame())
}

// Bytes returns the number of PCM bytes that make up the given duration in
// seconds. It is the inverse of [Format.Seconds] rounded down to whole frames.
func (f Format) Bytes(seconds float64) int {
	frames := int(seconds * float64(f.SampleRate))
	return frames * f.BytesPerFrame()
}

// Mono returns f with the channel count set to one.
func (f Format) Mono() Format {
	return Format{SampleRate: f.SampleRate, Channels: 1}
}

// Speaker identifies the participant a speaking turn belongs to.
type Speaker struct {
	// ID is the platform user ID.
	ID string

	// Username is the account name.
	Username string

	// DisplayName is the per-guild nickname, if any.
	DisplayName string

	// Bot reports whether the account is a bot (including the relay itself).
	Bot bool
}

// Name returns the best human-readable label for s: the display name, then
// the username, then the raw ID.
func (s Speaker) Name() string {
	switch {
	case s.DisplayName != "":
		return s.DisplayName
	case s.Username != "":
		return s.Username
	default:
		return s.ID
	}
}

// SpeakingEvent is emitted by a [Connection] when a participant's speaking
// indicator changes.
type SpeakingEvent struct {
	Speaker Speaker

	// Speaking is true when the speaking indicator is non-zero.
	Speaking bool
}
