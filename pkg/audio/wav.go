package audio

import "encoding/binary"

// wavHeaderSize is the size of the canonical RIFF/WAVE PCM header.
const wavHeaderSize = 44

// EncodeWAV wraps 16-bit little-endian PCM in a canonical WAV container so it
// can be uploaded to transcription services that expect a file.
func EncodeWAV(pcm []byte, f Format) []byte {
	buf := make([]byte, wavHeaderSize+len(pcm))
	le := binary.LittleEndian

	copy(buf[0:4], "RIFF")
	le.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	le.PutUint32(buf[16:20], 16) // PCM fmt chunk size
	le.PutUint16(buf[20:22], 1)  // PCM
	le.PutUint16(buf[22:24], uint16(f.Channels))
	le.PutUint32(buf[24:28], uint32(f.SampleRate))
	le.PutUint32(buf[28:32], uint32(f.SampleRate*f.BytesPerFrame()))
	le.PutUint16(buf[32:34], uint16(f.BytesPerFrame()))
	le.PutUint16(buf[34:36], bytesPerSample*8)

	copy(buf[36:40], "data")
	le.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[wavHeaderSize:], pcm)
	return buf
}
