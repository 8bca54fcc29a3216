package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/voicepipe/voicepipe/internal/classify"
)

// OpenAIAdapter implements Adapter for the OpenAI Whisper API.
type OpenAIAdapter struct {
	client *openai.Client
}

func NewOpenAIAdapter(apiKey string) *OpenAIAdapter {
	return &OpenAIAdapter{client: openai.NewClient(apiKey)}
}

func (a *OpenAIAdapter) Transcribe(ctx context.Context, audio []byte, hints Hints) (*Result, error) {
	if len(audio) == 0 {
		return &Result{Progress: -1}, nil
	}

	model := hints.Model
	if model == "" {
		model = openai.Whisper1
	}

	req := openai.AudioRequest{
		Model:    model,
		Reader:   bytes.NewReader(audio),
		FilePath: "audio.wav",
		Language: hints.Language,
	}

	start := time.Now()
	resp, err := a.client.CreateTranscription(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		log.Printf("openai-adapter: API call failed after %v: %v", elapsed, err)
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			msg := apiErr.Message
			return nil, fmt.Errorf("openai transcription: %w", &classify.HTTPError{
				StatusCode: apiErr.HTTPStatusCode,
				Body:       msg,
			})
		}
		return nil, fmt.Errorf("openai transcription: %w", err)
	}

	raw, _ := json.Marshal(resp)
	log.Printf("openai-adapter: transcribed %d bytes in %v", len(audio), elapsed)
	return &Result{Text: resp.Text, Raw: raw, Progress: -1}, nil
}
