// Package transcriber holds the provider adapters that carry audio bytes to
// a remote speech-to-text API and bring transcript text back.
package transcriber

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/voicepipe/voicepipe/internal/provider"
)

// Hints carries per-request transcription options.
type Hints struct {
	Language  string
	Model     string
	Punctuate bool
	Diarize   bool
	// EncodingHint tells the provider what the payload encoding is. Empty
	// means the provider's assumed default; "auto" asks the provider to
	// detect it, used for the one-shot encoding-mismatch retry.
	EncodingHint string
}

// Result is one transcription outcome: the text plus the raw provider JSON
// so the caller can keep it for diagnostics.
type Result struct {
	Text string
	Raw  json.RawMessage
	// Progress is the provider-reported completion percentage, or -1 when
	// the provider gives no progress signal.
	Progress float64
}

// Adapter is a synchronous transcription backend: the submission response
// carries the final transcript.
type Adapter interface {
	Transcribe(ctx context.Context, audio []byte, hints Hints) (*Result, error)
}

// JobState is a poll snapshot from an asynchronous provider.
type JobState struct {
	Done     bool
	Failed   bool
	Message  string  // provider error text when Failed
	Progress float64 // -1 when the provider reports none
}

// AsyncAdapter is an asynchronous transcription backend: submission returns
// a job id that is polled until terminal, then the result is fetched.
type AsyncAdapter interface {
	Submit(ctx context.Context, audio []byte, hints Hints) (string, error)
	Poll(ctx context.Context, jobID string) (*JobState, error)
	Fetch(ctx context.Context, jobID string) (*Result, error)
}

// New builds the adapter for a registered provider. Exactly one of the two
// return values is non-nil on success, matching the provider's mode.
func New(p provider.Provider, apiKey string) (Adapter, AsyncAdapter, error) {
	switch p.Name() {
	case "openai":
		return NewOpenAIAdapter(apiKey), nil, nil
	case "elevenlabs":
		return NewElevenLabsAdapter(p.Endpoint(), apiKey), nil, nil
	case "assemblyai":
		return nil, NewAssemblyAIAdapter(p.Endpoint(), apiKey), nil
	default:
		return nil, nil, fmt.Errorf("unsupported provider: %s", p.Name())
	}
}
