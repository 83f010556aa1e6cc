// Package transcript turns a finished speaking turn into a chat message.
//
// The [Gateway] issues exactly one recognition request per utterance to the
// configured [stt.Provider]. The [Pipeline] runs the full delivery path for a
// captured turn: duration gate, stereo to mono conversion, recognition,
// formatting as "<speaker>: <text>" and posting to the guild's text channel.
// Every path ends in a [capture.Outcome]; failures never propagate past the
// pipeline.
//
// All types in this package are safe for concurrent use.
package transcript

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/voxrelay/internal/observe"
	"github.com/MrWong99/voxrelay/pkg/audio"
	"github.com/MrWong99/voxrelay/pkg/provider/stt"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultLanguage is the recognition language used when none is configured.
const DefaultLanguage = "en-US"

// GatewayOption configures a [Gateway].
type GatewayOption func(*Gateway)

// WithProviderName sets the label used for the provider in metrics and spans.
func WithProviderName(name string) GatewayOption {
	return func(g *Gateway) {
		g.name = name
	}
}

// WithLanguage sets the BCP-47 recognition language. Empty values are ignored.
func WithLanguage(lang string) GatewayOption {
	return func(g *Gateway) {
		if lang != "" {
			g.cfg.Language = lang
		}
	}
}

// WithGatewayMetrics records latency and request counts on m instead of
// [observe.DefaultMetrics].
func WithGatewayMetrics(m *observe.Metrics) GatewayOption {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// Gateway sends mono utterances to a speech-to-text provider.
type Gateway struct {
	provider stt.Provider
	name     string
	cfg      stt.RecognizeConfig
	metrics  *observe.Metrics
}

// NewGateway returns a Gateway for p. Requests describe the audio as
// LINEAR16 mono at the Discord sample rate.
func NewGateway(p stt.Provider, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		provider: p,
		name:     "stt",
		cfg: stt.RecognizeConfig{
			Encoding:   stt.EncodingLinear16,
			SampleRate: audio.DiscordPCM.SampleRate,
			Channels:   1,
			Language:   DefaultLanguage,
		},
	}
	for _, o := range opts {
		o(g)
	}
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}
	return g
}

// Config returns the recognition parameters sent with every request.
func (g *Gateway) Config() stt.RecognizeConfig {
	return g.cfg
}

// Transcribe recognises mono and returns the provider's text as is. Provider
// errors are returned wrapped; the request is never retried.
func (g *Gateway) Transcribe(ctx context.Context, mono []byte) (string, error) {
	ctx, span := observe.StartSpan(ctx, observe.SpanRecognize, trace.WithAttributes(
		attribute.String("provider", g.name),
		attribute.Int("audio_bytes", len(mono)),
	))
	defer span.End()

	start := time.Now()
	tr, err := g.provider.Recognize(ctx, mono, g.cfg)
	g.metrics.STTDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("provider", g.name)))
	if err != nil {
		g.metrics.RecordProviderRequest(ctx, g.name, "error")
		g.metrics.RecordProviderError(ctx, g.name)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("transcript: recognize: %w", err)
	}
	g.metrics.RecordProviderRequest(ctx, g.name, "ok")
	return tr.Text, nil
}
