// Package provider is the registry of transcription service metadata:
// endpoints, credential requirements, payload ceilings and submission mode.
package provider

import "sort"

// Mode describes how a provider returns results.
type Mode int

const (
	// Sync providers return the transcript in the submission response.
	Sync Mode = iota
	// Async providers return a job id that must be polled until terminal.
	Async
)

// EndpointConfig holds HTTP endpoint configuration.
type EndpointConfig struct {
	BaseURL string // e.g. "https://api.openai.com"
	Path    string // e.g. "/v1/audio/transcriptions"
}

// Provider defines the interface for a transcription service provider.
type Provider interface {
	Name() string
	RequiresAPIKey() bool
	ValidateAPIKey(key string) bool
	Mode() Mode
	// PayloadCeiling is the maximum request body size in bytes the
	// provider accepts per call; files above it must be chunked.
	PayloadCeiling() int64
	// LargeFileThreshold is the size above which the UI warns that
	// processing may be slow. It is softer than the hard ceiling.
	LargeFileThreshold() int64
	DefaultModel() string
	Models() []string
	Endpoint() *EndpointConfig
	// EnvVar is the environment variable checked when no key is in config.
	EnvVar() string
}

var registry = make(map[string]Provider)

func init() {
	Register(&OpenAIProvider{})
	Register(&ElevenLabsProvider{})
	Register(&AssemblyAIProvider{})
}

// Register adds a provider to the registry.
func Register(p Provider) {
	registry[p.Name()] = p
}

// Get returns a provider by name, or nil if not found.
func Get(name string) Provider {
	return registry[name]
}

// List returns all registered provider names in stable order.
func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
