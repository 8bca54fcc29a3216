package transcriber

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voicepipe/voicepipe/internal/classify"
	"github.com/voicepipe/voicepipe/internal/provider"
)

func TestElevenLabsAdapter_ImplementsAdapter(t *testing.T) {
	var _ Adapter = (*ElevenLabsAdapter)(nil)
}

func TestElevenLabsAdapter_Transcribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "test-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if got := r.FormValue("model_id"); got != "scribe_v1" {
			t.Errorf("model_id = %q, want scribe_v1", got)
		}
		if got := r.FormValue("language_code"); got != "en" {
			t.Errorf("language_code = %q, want en", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "hello world"})
	}))
	defer server.Close()

	adapter := NewElevenLabsAdapter(&provider.EndpointConfig{BaseURL: server.URL, Path: "/v1/speech-to-text"}, "test-key")
	result, err := adapter.Transcribe(context.Background(), []byte("fake audio"), Hints{Language: "en"})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if result.Text != "hello world" {
		t.Errorf("text = %q, want %q", result.Text, "hello world")
	}
	if len(result.Raw) == 0 {
		t.Error("raw provider JSON should be preserved")
	}
}

func TestElevenLabsAdapter_EncodingHintField(t *testing.T) {
	var gotFormat string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseMultipartForm(32 << 20)
		gotFormat = r.FormValue("file_format")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "ok"})
	}))
	defer server.Close()

	adapter := NewElevenLabsAdapter(&provider.EndpointConfig{BaseURL: server.URL, Path: "/v1/speech-to-text"}, "test-key")
	_, err := adapter.Transcribe(context.Background(), []byte("audio"), Hints{EncodingHint: "other"})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if gotFormat != "other" {
		t.Errorf("file_format = %q, want %q", gotFormat, "other")
	}
}

func TestElevenLabsAdapter_ErrorStatusCarriesHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limit reached", http.StatusTooManyRequests)
	}))
	defer server.Close()

	adapter := NewElevenLabsAdapter(&provider.EndpointConfig{BaseURL: server.URL, Path: "/v1/speech-to-text"}, "test-key")
	_, err := adapter.Transcribe(context.Background(), []byte("audio"), Hints{})
	if err == nil {
		t.Fatal("Transcribe() should fail on 429")
	}

	var httpErr *classify.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("error should wrap HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", httpErr.StatusCode)
	}
	if got := classify.Classify(err); got.Category != classify.RateLimited {
		t.Errorf("classified category = %s, want %s", got.Category, classify.RateLimited)
	}
}

func TestElevenLabsAdapter_EmptyAudioShortCircuits(t *testing.T) {
	adapter := NewElevenLabsAdapter(&provider.EndpointConfig{BaseURL: "http://invalid.localhost", Path: "/"}, "key")
	result, err := adapter.Transcribe(context.Background(), nil, Hints{})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if result.Text != "" {
		t.Errorf("text = %q, want empty", result.Text)
	}
}
