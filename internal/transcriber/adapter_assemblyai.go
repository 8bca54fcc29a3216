package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/voicepipe/voicepipe/internal/classify"
	"github.com/voicepipe/voicepipe/internal/provider"
)

// AssemblyAIAdapter implements AsyncAdapter for the AssemblyAI transcript
// API: upload the audio, create a transcript job, poll its status until the
// provider reports completed or error, then fetch the result.
type AssemblyAIAdapter struct {
	client   *http.Client
	endpoint *provider.EndpointConfig
	apiKey   string
}

func NewAssemblyAIAdapter(endpoint *provider.EndpointConfig, apiKey string) *AssemblyAIAdapter {
	return &AssemblyAIAdapter{
		client:   &http.Client{},
		endpoint: endpoint,
		apiKey:   apiKey,
	}
}

type assemblyAITranscript struct {
	ID       string  `json:"id"`
	Status   string  `json:"status"` // queued | processing | completed | error
	Text     string  `json:"text"`
	Error    string  `json:"error"`
	Progress float64 `json:"percent_complete"`
}

type assemblyAIUpload struct {
	UploadURL string `json:"upload_url"`
}

// Submit uploads the audio bytes and creates a transcript job.
func (a *AssemblyAIAdapter) Submit(ctx context.Context, audio []byte, hints Hints) (string, error) {
	uploadURL, err := a.upload(ctx, audio)
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"audio_url":   uploadURL,
		"punctuate":   hints.Punctuate,
		"format_text": hints.Punctuate,
	}
	if hints.Language != "" {
		payload["language_code"] = hints.Language
	}
	if hints.Model != "" {
		payload["speech_model"] = hints.Model
	}
	if hints.Diarize {
		payload["speaker_labels"] = true
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal transcript request: %w", err)
	}

	var created assemblyAITranscript
	if err := a.doJSON(ctx, "POST", a.endpoint.Path, bytes.NewReader(body), &created); err != nil {
		return "", fmt.Errorf("create transcript: %w", err)
	}

	log.Printf("assemblyai-adapter: submitted %d bytes as job %s", len(audio), created.ID)
	return created.ID, nil
}

// Poll reports the current state of a transcript job.
func (a *AssemblyAIAdapter) Poll(ctx context.Context, jobID string) (*JobState, error) {
	var tr assemblyAITranscript
	if err := a.doJSON(ctx, "GET", a.endpoint.Path+"/"+jobID, nil, &tr); err != nil {
		return nil, fmt.Errorf("poll transcript %s: %w", jobID, err)
	}

	state := &JobState{Progress: -1}
	if tr.Progress > 0 {
		state.Progress = tr.Progress
	}
	switch tr.Status {
	case "completed":
		state.Done = true
	case "error":
		state.Failed = true
		state.Message = tr.Error
	}
	return state, nil
}

// Fetch retrieves the final transcript for a completed job.
func (a *AssemblyAIAdapter) Fetch(ctx context.Context, jobID string) (*Result, error) {
	url := a.endpoint.BaseURL + a.endpoint.Path + "/" + jobID
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch transcript %s: %w", jobID, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch transcript %s: %w", jobID, &classify.HTTPError{
			StatusCode: resp.StatusCode,
			Body:       string(raw),
		})
	}

	var tr assemblyAITranscript
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if tr.Status == "error" {
		return nil, fmt.Errorf("transcript %s failed: %s", jobID, tr.Error)
	}

	return &Result{Text: tr.Text, Raw: raw, Progress: 100}, nil
}

func (a *AssemblyAIAdapter) upload(ctx context.Context, audio []byte) (string, error) {
	url := a.endpoint.BaseURL + "/v2/upload"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Authorization", a.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload audio: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read upload response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload audio: %w", &classify.HTTPError{
			StatusCode: resp.StatusCode,
			Body:       string(body),
		})
	}

	var upload assemblyAIUpload
	if err := json.Unmarshal(body, &upload); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	return upload.UploadURL, nil
}

func (a *AssemblyAIAdapter) doJSON(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, a.endpoint.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", a.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &classify.HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return json.Unmarshal(raw, out)
}
