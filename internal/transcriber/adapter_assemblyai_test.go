package transcriber

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/voicepipe/voicepipe/internal/provider"
)

func TestAssemblyAIAdapter_ImplementsAsyncAdapter(t *testing.T) {
	var _ AsyncAdapter = (*AssemblyAIAdapter)(nil)
}

// mockAssemblyAI serves the upload, create, and status endpoints with a job
// that completes after a configurable number of polls.
func mockAssemblyAI(t *testing.T, pollsUntilDone int) *httptest.Server {
	t.Helper()
	polls := 0
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "test-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		switch {
		case r.URL.Path == "/v2/upload":
			_ = json.NewEncoder(w).Encode(map[string]string{"upload_url": "https://cdn.example/upload/abc"})
		case r.URL.Path == "/v2/transcript" && r.Method == "POST":
			var req map[string]any
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req["audio_url"] != "https://cdn.example/upload/abc" {
				t.Errorf("audio_url = %v, want uploaded URL", req["audio_url"])
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "job-1", "status": "queued"})
		case strings.HasPrefix(r.URL.Path, "/v2/transcript/"):
			polls++
			if polls < pollsUntilDone {
				_ = json.NewEncoder(w).Encode(map[string]any{
					"id": "job-1", "status": "processing", "percent_complete": 40,
				})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id": "job-1", "status": "completed", "text": "hello world", "percent_complete": 100,
			})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestAssemblyAIAdapter_SubmitPollFetch(t *testing.T) {
	server := mockAssemblyAI(t, 2)
	defer server.Close()

	adapter := NewAssemblyAIAdapter(&provider.EndpointConfig{BaseURL: server.URL, Path: "/v2/transcript"}, "test-key")
	ctx := context.Background()

	jobID, err := adapter.Submit(ctx, []byte("fake audio"), Hints{Punctuate: true})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if jobID != "job-1" {
		t.Errorf("jobID = %q, want job-1", jobID)
	}

	state, err := adapter.Poll(ctx, jobID)
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if state.Done || state.Failed {
		t.Errorf("first poll should be in flight, got %+v", state)
	}
	if state.Progress != 40 {
		t.Errorf("progress = %v, want 40", state.Progress)
	}

	state, err = adapter.Poll(ctx, jobID)
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if !state.Done {
		t.Fatalf("second poll should be done, got %+v", state)
	}

	result, err := adapter.Fetch(ctx, jobID)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if result.Text != "hello world" {
		t.Errorf("text = %q, want %q", result.Text, "hello world")
	}
}

func TestAssemblyAIAdapter_PollReportsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id": "job-2", "status": "error", "error": "no speech detected in audio",
		})
	}))
	defer server.Close()

	adapter := NewAssemblyAIAdapter(&provider.EndpointConfig{BaseURL: server.URL, Path: "/v2/transcript"}, "test-key")
	state, err := adapter.Poll(context.Background(), "job-2")
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if !state.Failed {
		t.Error("Failed = false, want true")
	}
	if !strings.Contains(state.Message, "no speech") {
		t.Errorf("message = %q, want provider error text", state.Message)
	}
}

func TestNewBuildsAdapterPerMode(t *testing.T) {
	sync, async, err := New(provider.Get("openai"), "sk-test")
	if err != nil {
		t.Fatalf("New(openai) error = %v", err)
	}
	if sync == nil || async != nil {
		t.Error("openai should yield a sync adapter only")
	}

	sync, async, err = New(provider.Get("assemblyai"), "test-key")
	if err != nil {
		t.Fatalf("New(assemblyai) error = %v", err)
	}
	if sync != nil || async == nil {
		t.Error("assemblyai should yield an async adapter only")
	}
}
