// Package google provides an STT provider backed by the Google Cloud
// Speech-to-Text v1 REST API.
//
// Each [Provider.Recognize] call issues exactly one synchronous
// speech:recognize request with the audio inlined as base64 content. The
// returned result segments are joined in service order, one line per segment,
// using the first (most likely) alternative of each.
//
// Usage:
//
//	p, err := google.New(ctx, google.WithCredentialsFile("gspeech_key.json"))
//	t, err := p.Recognize(ctx, mono, stt.RecognizeConfig{
//	    Encoding: stt.EncodingLinear16, SampleRate: 48000, Language: "en-US",
//	})
package google

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/MrWong99/voxrelay/pkg/provider/stt"
	"google.golang.org/api/option"
	speech "google.golang.org/api/speech/v1"
)

const (
	defaultLanguage   = "en-US"
	defaultSampleRate = 48000
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithCredentialsFile authenticates with a service-account key file.
func WithCredentialsFile(path string) Option {
	return func(p *Provider) {
		p.credentialsFile = path
	}
}

// WithAPIKey authenticates with an API key instead of service-account
// credentials.
func WithAPIKey(key string) Option {
	return func(p *Provider) {
		p.apiKey = key
	}
}

// WithEndpoint overrides the service base URL (e.g., a regional endpoint or
// a test server).
func WithEndpoint(url string) Option {
	return func(p *Provider) {
		p.endpoint = url
	}
}

// WithHTTPClient uses c for all requests. The client is used as-is, so it
// must carry its own authentication if the endpoint requires it.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider using Google Speech-to-Text.
type Provider struct {
	credentialsFile string
	apiKey          string
	endpoint        string
	httpClient      *http.Client

	svc *speech.Service
}

// New creates a Provider. Without explicit credentials the client falls back
// to Application Default Credentials.
func New(ctx context.Context, opts ...Option) (*Provider, error) {
	p := &Provider{}
	for _, o := range opts {
		o(p)
	}

	var clientOpts []option.ClientOption
	switch {
	case p.httpClient != nil:
		clientOpts = append(clientOpts, option.WithHTTPClient(p.httpClient))
	case p.apiKey != "":
		clientOpts = append(clientOpts, option.WithAPIKey(p.apiKey))
	case p.credentialsFile != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(p.credentialsFile))
	}
	if p.endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(p.endpoint))
	}

	svc, err := speech.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("google: create speech service: %w", err)
	}
	p.svc = svc
	return p, nil
}

// Recognize sends audio to speech:recognize and returns the joined
// transcript. Zero fields in cfg fall back to LINEAR16, 48 kHz and en-US.
func (p *Provider) Recognize(ctx context.Context, audio []byte, cfg stt.RecognizeConfig) (stt.Transcript, error) {
	if len(audio) == 0 {
		return stt.Transcript{}, fmt.Errorf("google: %w", stt.ErrEmptyAudio)
	}

	req := &speech.RecognizeRequest{
		Audio: &speech.RecognitionAudio{
			Content: base64.StdEncoding.EncodeToString(audio),
		},
		Config: &speech.RecognitionConfig{
			Encoding:        valueOr(cfg.Encoding, stt.EncodingLinear16),
			SampleRateHertz: int64(valueOr(cfg.SampleRate, defaultSampleRate)),
			LanguageCode:    valueOr(cfg.Language, defaultLanguage),
		},
	}
	if cfg.Channels > 1 {
		req.Config.AudioChannelCount = int64(cfg.Channels)
	}

	resp, err := p.svc.Speech.Recognize(req).Context(ctx).Do()
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("google: recognize: %w", err)
	}
	return transcriptFrom(resp), nil
}

// transcriptFrom joins the top alternative of every result segment. The
// reported confidence is that of the first segment.
func transcriptFrom(resp *speech.RecognizeResponse) stt.Transcript {
	var (
		segments   []string
		confidence float64
	)
	for _, r := range resp.Results {
		if r == nil || len(r.Alternatives) == 0 || r.Alternatives[0] == nil {
			continue
		}
		alt := r.Alternatives[0]
		if len(segments) == 0 {
			confidence = alt.Confidence
		}
		segments = append(segments, alt.Transcript)
	}
	return stt.Transcript{Text: stt.JoinSegments(segments), Confidence: confidence}
}

func valueOr[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
