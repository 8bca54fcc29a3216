package provider

import "strings"

// ElevenLabsProvider implements Provider for the ElevenLabs Scribe API.
type ElevenLabsProvider struct{}

func (p *ElevenLabsProvider) Name() string {
	return "elevenlabs"
}

func (p *ElevenLabsProvider) RequiresAPIKey() bool {
	return true
}

func (p *ElevenLabsProvider) ValidateAPIKey(key string) bool {
	return len(key) >= 32 && !strings.ContainsAny(key, " \t\n")
}

func (p *ElevenLabsProvider) Mode() Mode {
	return Sync
}

func (p *ElevenLabsProvider) PayloadCeiling() int64 {
	return 100 * 1024 * 1024
}

func (p *ElevenLabsProvider) LargeFileThreshold() int64 {
	return 50 * 1024 * 1024
}

func (p *ElevenLabsProvider) DefaultModel() string {
	return "scribe_v1"
}

func (p *ElevenLabsProvider) Models() []string {
	return []string{"scribe_v1", "scribe_v1_experimental"}
}

func (p *ElevenLabsProvider) Endpoint() *EndpointConfig {
	return &EndpointConfig{BaseURL: "https://api.elevenlabs.io", Path: "/v1/speech-to-text"}
}

func (p *ElevenLabsProvider) EnvVar() string {
	return "ELEVENLABS_API_KEY"
}
