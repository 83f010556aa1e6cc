package audio

import "encoding/binary"

// Decimate halves the sample count of 16-bit little-endian PCM by keeping the
// first two samples of every four-sample window and discarding the other two.
// Interpreted as stereo input, this yields a buffer the transcription service
// accepts as mono at the same sample rate.
//
// For input samples s, the output o satisfies o[2i] = s[4i] and
// o[2i+1] = s[4i+1]. The output always holds len(s)/2 samples; a trailing
// partial window only fills the slots that remain, and a trailing odd byte is
// ignored.
//
// NOTE: this is a decimation, not an average of left and right. The
// transcription results are tuned against it, so it is kept as-is.
func Decimate(pcm []byte) []byte {
	in := len(pcm) / bytesPerSample
	n := in / 2
	out := make([]byte, n*bytesPerSample)
	j := 0
	for i := 0; i < in && j < n; i += 4 {
		putSample(out, j, sample(pcm, i))
		j++
		if j < n && i+1 < in {
			putSample(out, j, sample(pcm, i+1))
			j++
		}
	}
	return out
}

// Concat joins PCM chunks into one contiguous buffer.
func Concat(chunks [][]byte) []byte {
	size := 0
	for _, c := range chunks {
		size += len(c)
	}
	out := make([]byte, 0, size)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

// Int16sToBytes converts PCM samples to little-endian bytes.
func Int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*bytesPerSample)
	for i, s := range pcm {
		putSample(b, i, s)
	}
	return b
}

// BytesToInt16s converts little-endian bytes to PCM samples. A trailing odd
// byte is ignored.
func BytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/bytesPerSample)
	for i := range pcm {
		pcm[i] = sample(b, i)
	}
	return pcm
}

func sample(b []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(b[i*bytesPerSample:]))
}

func putSample(b []byte, i int, s int16) {
	binary.LittleEndian.PutUint16(b[i*bytesPerSample:], uint16(s))
}
