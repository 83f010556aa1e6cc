package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use this when a stream was opened but its audio is no longer wanted, so the
// producer never blocks on a full buffer.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}

// DrainStream discards the remaining frames of s and returns its terminal error.
func DrainStream(s Stream) error {
	Drain(s.Frames())
	return s.Err()
}
