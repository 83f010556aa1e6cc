package audio_test

import (
	"encoding/binary"
	"testing"

	"github.com/MrWong99/voxrelay/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestDecimate_KeepsFirstTwoOfEveryFour(t *testing.T) {
	t.Parallel()

	in := samplesToBytes([]int16{1, 2, 3, 4, -5, -6, -7, -8, 9, 10, 11, 12})
	got := bytesToSamples(audio.Decimate(in))
	want := []int16{1, 2, -5, -6, 9, 10}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestDecimate_IndexProperty(t *testing.T) {
	t.Parallel()

	for _, k := range []int{0, 1, 2, 7, 960} {
		samples := make([]int16, 4*k)
		for i := range samples {
			samples[i] = int16(i*37 - 1000)
		}
		out := bytesToSamples(audio.Decimate(samplesToBytes(samples)))
		if len(out) != 2*k {
			t.Fatalf("k=%d: output length = %d samples, want %d", k, len(out), 2*k)
		}
		for i := range k {
			if out[2*i] != samples[4*i] {
				t.Errorf("k=%d: out[%d] = %d, want in[%d] = %d", k, 2*i, out[2*i], 4*i, samples[4*i])
			}
			if out[2*i+1] != samples[4*i+1] {
				t.Errorf("k=%d: out[%d] = %d, want in[%d] = %d", k, 2*i+1, out[2*i+1], 4*i+1, samples[4*i+1])
			}
		}
	}
}

func TestDecimate_PartialWindowTruncates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []int16
		want []int16
	}{
		{name: "six samples", in: []int16{1, 2, 3, 4, 5, 6}, want: []int16{1, 2, 5}},
		{name: "two samples", in: []int16{1, 2}, want: []int16{1}},
		{name: "one sample", in: []int16{1}, want: []int16{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := bytesToSamples(audio.Decimate(samplesToBytes(tt.in)))
			if len(got) != len(tt.want) {
				t.Fatalf("length mismatch: got %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("sample %d: got %d, want %d", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestDecimate_OddTrailingByteIgnored(t *testing.T) {
	t.Parallel()

	in := append(samplesToBytes([]int16{7, 8, 9, 10}), 0xff)
	got := bytesToSamples(audio.Decimate(in))
	if len(got) != 2 || got[0] != 7 || got[1] != 8 {
		t.Errorf("got %v, want [7 8]", got)
	}
}

func TestConcat(t *testing.T) {
	t.Parallel()

	got := audio.Concat([][]byte{{1, 2}, nil, {3}, {4, 5, 6}})
	want := []byte{1, 2, 3, 4, 5, 6}
	if string(got) != string(want) {
		t.Errorf("Concat = %v, want %v", got, want)
	}
}

func TestInt16Roundtrip(t *testing.T) {
	t.Parallel()

	samples := []int16{0, 1, -1, 32767, -32768}
	got := audio.BytesToInt16s(audio.Int16sToBytes(samples))
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], samples[i])
		}
	}
}

func TestFormat_Seconds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		bytes int
		want  float64
	}{
		{name: "one second", bytes: 48000 * 4, want: 1.0},
		{name: "half second", bytes: 48000 * 2, want: 0.5},
		{name: "nineteen seconds", bytes: 19 * 48000 * 4, want: 19.0},
		{name: "empty", bytes: 0, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := audio.DiscordPCM.Seconds(tt.bytes); got != tt.want {
				t.Errorf("Seconds(%d) = %v, want %v", tt.bytes, got, tt.want)
			}
		})
	}
}

func TestFormat_BytesInvertsSeconds(t *testing.T) {
	t.Parallel()

	n := audio.DiscordPCM.Bytes(2.0)
	if n != 2*48000*4 {
		t.Fatalf("Bytes(2.0) = %d, want %d", n, 2*48000*4)
	}
	if s := audio.DiscordPCM.Seconds(n); s != 2.0 {
		t.Errorf("Seconds(Bytes(2.0)) = %v, want 2.0", s)
	}
	if got := audio.DiscordPCM.Mono(); got.Channels != 1 || got.SampleRate != 48000 {
		t.Errorf("Mono() = %+v", got)
	}
}

func TestSpeaker_Name(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		s    audio.Speaker
		want string
	}{
		{name: "display name wins", s: audio.Speaker{ID: "1", Username: "alice", DisplayName: "Ally"}, want: "Ally"},
		{name: "username fallback", s: audio.Speaker{ID: "1", Username: "alice"}, want: "alice"},
		{name: "id fallback", s: audio.Speaker{ID: "1"}, want: "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.s.Name(); got != tt.want {
				t.Errorf("Name() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncodeWAV_Header(t *testing.T) {
	t.Parallel()

	pcm := samplesToBytes([]int16{1, 2, 3, 4})
	wav := audio.EncodeWAV(pcm, audio.Format{SampleRate: 48000, Channels: 1})
	if len(wav) != 44+len(pcm) {
		t.Fatalf("len = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Fatalf("bad chunk ids: %q %q %q", wav[0:4], wav[8:12], wav[36:40])
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 48000 {
		t.Errorf("sample rate = %d, want 48000", got)
	}
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 1 {
		t.Errorf("channels = %d, want 1", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Errorf("data size = %d, want %d", got, len(pcm))
	}
	if string(wav[44:]) != string(pcm) {
		t.Error("payload does not match input PCM")
	}
}
