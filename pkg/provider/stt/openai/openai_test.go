package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/voxrelay/pkg/provider/stt"
	"github.com/MrWong99/voxrelay/pkg/provider/stt/openai"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := openai.New("", ""); err == nil {
		t.Fatal("expected error for empty apiKey")
	}
}

func TestRecognize_PostsMultipartAndReturnsText(t *testing.T) {
	t.Parallel()

	var (
		gotModel    string
		gotLanguage string
		gotFileName string
		gotAuth     string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotModel = r.FormValue("model")
		gotLanguage = r.FormValue("language")
		if _, hdr, err := r.FormFile("file"); err == nil {
			gotFileName = hdr.Filename
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": " hi there "})
	}))
	t.Cleanup(srv.Close)

	p, err := openai.New("sk-test", "", openai.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tr, err := p.Recognize(context.Background(), make([]byte, 3200), stt.RecognizeConfig{SampleRate: 48000, Language: "en-US"})
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if tr.Text != "hi there" {
		t.Errorf("Text = %q, want %q", tr.Text, "hi there")
	}
	if gotModel != openai.DefaultModel {
		t.Errorf("model = %q, want %q", gotModel, openai.DefaultModel)
	}
	if gotLanguage != "en" {
		t.Errorf("language = %q, want %q", gotLanguage, "en")
	}
	if gotFileName != "audio.wav" {
		t.Errorf("filename = %q, want audio.wav", gotFileName)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestRecognize_ErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
	t.Cleanup(srv.Close)

	p, _ := openai.New("sk-test", "", openai.WithBaseURL(srv.URL))
	if _, err := p.Recognize(context.Background(), []byte{0, 0}, stt.RecognizeConfig{}); err == nil {
		t.Fatal("expected error")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}
