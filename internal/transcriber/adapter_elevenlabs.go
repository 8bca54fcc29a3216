package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/voicepipe/voicepipe/internal/classify"
	"github.com/voicepipe/voicepipe/internal/provider"
)

// ElevenLabsAdapter implements Adapter for the ElevenLabs Scribe API.
type ElevenLabsAdapter struct {
	client   *http.Client
	endpoint *provider.EndpointConfig
	apiKey   string
}

type elevenLabsResponse struct {
	Text string `json:"text"`
}

func NewElevenLabsAdapter(endpoint *provider.EndpointConfig, apiKey string) *ElevenLabsAdapter {
	return &ElevenLabsAdapter{
		client:   &http.Client{},
		endpoint: endpoint,
		apiKey:   apiKey,
	}
}

func (a *ElevenLabsAdapter) Transcribe(ctx context.Context, audio []byte, hints Hints) (*Result, error) {
	if len(audio) == 0 {
		return &Result{Progress: -1}, nil
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(audio)); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}

	model := hints.Model
	if model == "" {
		model = "scribe_v1"
	}
	if err := writer.WriteField("model_id", model); err != nil {
		return nil, fmt.Errorf("write model_id: %w", err)
	}
	if hints.Language != "" {
		if err := writer.WriteField("language_code", hints.Language); err != nil {
			return nil, fmt.Errorf("write language_code: %w", err)
		}
	}
	if hints.Diarize {
		if err := writer.WriteField("diarize", "true"); err != nil {
			return nil, fmt.Errorf("write diarize: %w", err)
		}
	}
	if hints.EncodingHint != "" {
		if err := writer.WriteField("file_format", hints.EncodingHint); err != nil {
			return nil, fmt.Errorf("write file_format: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close writer: %w", err)
	}

	url := a.endpoint.BaseURL + a.endpoint.Path
	req, err := http.NewRequestWithContext(ctx, "POST", url, &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("xi-api-key", a.apiKey)

	start := time.Now()
	resp, err := a.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		log.Printf("elevenlabs-adapter: API call failed after %v: %v", elapsed, err)
		return nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Printf("elevenlabs-adapter: API returned status %d: %s", resp.StatusCode, string(raw))
		return nil, fmt.Errorf("elevenlabs transcription: %w", &classify.HTTPError{
			StatusCode: resp.StatusCode,
			Body:       string(raw),
		})
	}

	var result elevenLabsResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	log.Printf("elevenlabs-adapter: transcribed %d bytes in %v", len(audio), elapsed)
	return &Result{Text: result.Text, Raw: raw, Progress: -1}, nil
}
