// Package deepgram provides a Deepgram-backed STT provider. It implements the
// stt.Provider interface over the Deepgram live WebSocket API: a whole
// utterance is written to the socket, the stream is closed, and the final
// results the service sends back are joined into one transcript.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxrelay/pkg/provider/stt"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en-US"
	defaultSampleRate = 48000

	// chunkSize bounds a single binary frame written to the socket.
	chunkSize = 16 * 1024
)

// closeStream asks Deepgram to flush pending audio and close the socket.
var closeStream = []byte(`{"type":"CloseStream"}`)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code used when a request names none.
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithEndpoint overrides the WebSocket endpoint. Tests point it at a local server.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram live API.
type Provider struct {
	apiKey   string
	model    string
	language string
	endpoint string
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: deepgramEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Recognize opens a socket, streams pcm as raw linear16 audio and returns the
// final results joined with [stt.JoinSegments]. Interim results are not
// requested.
func (p *Provider) Recognize(ctx context.Context, pcm []byte, cfg stt.RecognizeConfig) (stt.Transcript, error) {
	if len(pcm) == 0 {
		return stt.Transcript{}, fmt.Errorf("deepgram: %w", stt.ErrEmptyAudio)
	}

	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()

	for off := 0; off < len(pcm); off += chunkSize {
		end := min(off+chunkSize, len(pcm))
		if err := conn.Write(ctx, websocket.MessageBinary, pcm[off:end]); err != nil {
			return stt.Transcript{}, fmt.Errorf("deepgram: write audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, closeStream); err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: close stream: %w", err)
	}

	var (
		segments   []string
		confidence float64
	)
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			return stt.Transcript{}, fmt.Errorf("deepgram: read: %w", err)
		}
		r, ok := parseDeepgramResponse(msg)
		if !ok || !r.IsFinal || r.Text == "" {
			continue
		}
		segments = append(segments, r.Text)
		confidence += r.Confidence
	}

	if len(segments) == 0 {
		return stt.Transcript{}, nil
	}
	return stt.Transcript{
		Text:       stt.JoinSegments(segments),
		Confidence: confidence / float64(len(segments)),
	}, nil
}

// buildURL constructs the Deepgram endpoint URL for the given config.
func (p *Provider) buildURL(cfg stt.RecognizeConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = defaultSampleRate
	}
	ch := cfg.Channels
	if ch <= 0 {
		ch = 1
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("interim_results", "false")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sr))
	q.Set("channels", strconv.Itoa(ch))

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- response parsing ----

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// result is one parsed Results message.
type result struct {
	Text       string
	Confidence float64
	IsFinal    bool
}

// parseDeepgramResponse parses a raw Deepgram WebSocket message.
// Returns (result, true) on success, or (zero, false) if the message should be ignored.
func parseDeepgramResponse(data []byte) (result, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return result{}, false
	}
	if resp.Type != "Results" {
		return result{}, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return result{}, false
	}

	alt := resp.Channel.Alternatives[0]
	return result{
		Text:       strings.TrimSpace(alt.Transcript),
		Confidence: alt.Confidence,
		IsFinal:    resp.IsFinal,
	}, true
}
