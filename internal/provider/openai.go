package provider

import "strings"

// OpenAIProvider implements Provider for the OpenAI Whisper API.
type OpenAIProvider struct{}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) RequiresAPIKey() bool {
	return true
}

func (p *OpenAIProvider) ValidateAPIKey(key string) bool {
	return strings.HasPrefix(key, "sk-")
}

func (p *OpenAIProvider) Mode() Mode {
	return Sync
}

// The audio endpoint rejects request bodies over 25 MB.
func (p *OpenAIProvider) PayloadCeiling() int64 {
	return 25 * 1024 * 1024
}

func (p *OpenAIProvider) LargeFileThreshold() int64 {
	return 10 * 1024 * 1024
}

func (p *OpenAIProvider) DefaultModel() string {
	return "whisper-1"
}

func (p *OpenAIProvider) Models() []string {
	return []string{"whisper-1", "gpt-4o-transcribe", "gpt-4o-mini-transcribe"}
}

func (p *OpenAIProvider) Endpoint() *EndpointConfig {
	return &EndpointConfig{BaseURL: "https://api.openai.com", Path: "/v1/audio/transcriptions"}
}

func (p *OpenAIProvider) EnvVar() string {
	return "OPENAI_API_KEY"
}
