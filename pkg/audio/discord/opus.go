package discord

import (
	"bytes"
	"fmt"

	"github.com/MrWong99/voxrelay/pkg/audio"
	"layeh.com/gopus"
)

// Discord voice uses 48 kHz stereo Opus at 20 ms frame size.
const (
	opusSampleRate  = 48000
	opusChannels    = 2
	opusFrameSizeMs = 20
	// opusFrameSize is the number of samples per channel per 20 ms frame.
	opusFrameSize = opusSampleRate * opusFrameSizeMs / 1000 // 960
)

// silenceFrame is the Opus packet Discord clients send when a speaker goes
// quiet, and the one the relay sends to announce itself.
var silenceFrame = []byte{0xF8, 0xFF, 0xFE}

// isSilence reports whether an Opus payload is the silence marker.
func isSilence(opus []byte) bool {
	return bytes.Equal(opus, silenceFrame)
}

// opusDecoder wraps a gopus Opus decoder for a single SSRC. Each speaker gets
// its own decoder so decoder state carries across consecutive frames.
type opusDecoder struct {
	dec *gopus.Decoder
}

func newOpusDecoder() (*opusDecoder, error) {
	dec, err := gopus.NewDecoder(opusSampleRate, opusChannels)
	if err != nil {
		return nil, fmt.Errorf("discord: create opus decoder: %w", err)
	}
	return &opusDecoder{dec: dec}, nil
}

// decode turns one Opus packet into interleaved 48 kHz stereo PCM bytes.
func (d *opusDecoder) decode(opus []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(opus, opusFrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("discord: opus decode: %w", err)
	}
	return audio.Int16sToBytes(pcm), nil
}
