package deepgram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxrelay/pkg/provider/stt"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.RecognizeConfig{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "en-US", q.Get("language"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
	assertEqual(t, "interim_results", "false", q.Get("interim_results"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	assertEqual(t, "sample_rate", "48000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
}

func TestBuildURL_ConfigOverrides(t *testing.T) {
	p, err := New("key", WithModel("base"), WithLanguage("en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.RecognizeConfig{Language: "fr-FR", SampleRate: 16000, Channels: 2})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	q := u.Query()
	assertEqual(t, "model", "base", q.Get("model"))
	assertEqual(t, "language", "fr-FR", q.Get("language"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "2", q.Get("channels"))
}

// ---- JSON parsing tests ----

func TestParseDeepgramResponse(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		wantOK bool
		want   result
	}{
		{
			name:   "final",
			raw:    `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":" Hello world ","confidence":0.95}]}}`,
			wantOK: true,
			want:   result{Text: "Hello world", Confidence: 0.95, IsFinal: true},
		},
		{
			name:   "interim",
			raw:    `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"Hello","confidence":0.7}]}}`,
			wantOK: true,
			want:   result{Text: "Hello", Confidence: 0.7},
		},
		{name: "metadata", raw: `{"type":"Metadata","request_id":"abc"}`},
		{name: "no alternatives", raw: `{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`},
		{name: "invalid json", raw: `{invalid`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseDeepgramResponse([]byte(tt.raw))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("result = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// ---- Recognize tests ----

// session records what a fake Deepgram server received.
type session struct {
	mu     sync.Mutex
	auth   string
	query  url.Values
	audio  []byte
	closed bool
}

// startServer runs a fake Deepgram endpoint. It reads audio until the client
// sends CloseStream, then writes replies and closes the socket with status.
func startServer(t *testing.T, replies []string, status websocket.StatusCode) (*httptest.Server, *session) {
	t.Helper()
	rec := &session{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		rec.auth = r.Header.Get("Authorization")
		rec.query = r.URL.Query()
		rec.mu.Unlock()

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.CloseNow()

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		for {
			typ, msg, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageText && string(msg) == string(closeStream) {
				break
			}
			rec.mu.Lock()
			rec.audio = append(rec.audio, msg...)
			rec.mu.Unlock()
		}
		rec.mu.Lock()
		rec.closed = true
		rec.mu.Unlock()

		for _, reply := range replies {
			if err := conn.Write(ctx, websocket.MessageText, []byte(reply)); err != nil {
				return
			}
		}
		conn.Close(status, "done")
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRecognize_JoinsFinalResults(t *testing.T) {
	srv, rec := startServer(t, []string{
		`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hel","confidence":0.3}]}}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hello there","confidence":0.9}]}}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"","confidence":0}]}}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"general kenobi","confidence":0.7}]}}`,
		`{"type":"Metadata","request_id":"abc"}`,
	}, websocket.StatusNormalClosure)

	p, err := New("secret", WithEndpoint(wsURL(srv)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pcm := make([]byte, chunkSize*2+10)
	for i := range pcm {
		pcm[i] = byte(i)
	}
	got, err := p.Recognize(context.Background(), pcm, stt.RecognizeConfig{
		Encoding:   stt.EncodingLinear16,
		SampleRate: 48000,
		Language:   "en-US",
	})
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	assertEqual(t, "text", "hello there\ngeneral kenobi", got.Text)
	if got.Confidence < 0.79 || got.Confidence > 0.81 {
		t.Errorf("confidence = %f, want 0.8", got.Confidence)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assertEqual(t, "authorization", "Token secret", rec.auth)
	assertEqual(t, "language", "en-US", rec.query.Get("language"))
	if !rec.closed {
		t.Error("CloseStream was not sent")
	}
	if string(rec.audio) != string(pcm) {
		t.Errorf("server received %d audio bytes, want %d in order", len(rec.audio), len(pcm))
	}
}

func TestRecognize_NothingHeard(t *testing.T) {
	srv, _ := startServer(t, []string{`{"type":"Metadata"}`}, websocket.StatusNormalClosure)
	p, _ := New("key", WithEndpoint(wsURL(srv)))

	got, err := p.Recognize(context.Background(), []byte{1, 2}, stt.RecognizeConfig{})
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if got != (stt.Transcript{}) {
		t.Errorf("transcript = %+v, want empty", got)
	}
}

func TestRecognize_AbnormalClose(t *testing.T) {
	srv, _ := startServer(t, nil, websocket.StatusInternalError)
	p, _ := New("key", WithEndpoint(wsURL(srv)))

	if _, err := p.Recognize(context.Background(), []byte{1, 2}, stt.RecognizeConfig{}); err == nil {
		t.Fatal("expected error for abnormal close")
	}
}

func TestRecognize_EmptyAudio(t *testing.T) {
	p, _ := New("key", WithEndpoint("ws://127.0.0.1:1"))
	_, err := p.Recognize(context.Background(), nil, stt.RecognizeConfig{})
	if !errors.Is(err, stt.ErrEmptyAudio) {
		t.Errorf("err = %v, want ErrEmptyAudio", err)
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	_, err := New("")
	if err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	assertEqual(t, "model", defaultModel, p.model)
	assertEqual(t, "language", defaultLanguage, p.language)
	assertEqual(t, "endpoint", deepgramEndpoint, p.endpoint)
}

// ---- helpers ----

func assertEqual(t *testing.T, label, want, got string) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %q, got %q", label, want, got)
	}
}
