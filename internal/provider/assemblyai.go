package provider

import "strings"

// AssemblyAIProvider implements Provider for the AssemblyAI transcript API,
// the one asynchronous provider: submissions return a job id that is polled
// until the provider reports a terminal state.
type AssemblyAIProvider struct{}

func (p *AssemblyAIProvider) Name() string {
	return "assemblyai"
}

func (p *AssemblyAIProvider) RequiresAPIKey() bool {
	return true
}

func (p *AssemblyAIProvider) ValidateAPIKey(key string) bool {
	return len(key) == 32 && !strings.ContainsAny(key, " \t\n")
}

func (p *AssemblyAIProvider) Mode() Mode {
	return Async
}

func (p *AssemblyAIProvider) PayloadCeiling() int64 {
	return 2 * 1024 * 1024 * 1024
}

func (p *AssemblyAIProvider) LargeFileThreshold() int64 {
	return 200 * 1024 * 1024
}

func (p *AssemblyAIProvider) DefaultModel() string {
	return "best"
}

func (p *AssemblyAIProvider) Models() []string {
	return []string{"best", "nano"}
}

func (p *AssemblyAIProvider) Endpoint() *EndpointConfig {
	return &EndpointConfig{BaseURL: "https://api.assemblyai.com", Path: "/v2/transcript"}
}

func (p *AssemblyAIProvider) EnvVar() string {
	return "ASSEMBLYAI_API_KEY"
}
