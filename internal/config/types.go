package config

import (
	"os"

	"github.com/voicepipe/voicepipe/internal/chunk"
	"github.com/voicepipe/voicepipe/internal/normalize"
	"github.com/voicepipe/voicepipe/internal/provider"
)

type Config struct {
	Transcription TranscriptionConfig       `toml:"transcription"`
	Normalize     NormalizeConfig           `toml:"normalize"`
	Chunking      ChunkingConfig            `toml:"chunking"`
	Providers     map[string]ProviderConfig `toml:"providers"`
}

type TranscriptionConfig struct {
	Provider  string `toml:"provider"`
	Language  string `toml:"language"`
	Model     string `toml:"model"`
	Punctuate bool   `toml:"punctuate"`
	Diarize   bool   `toml:"diarize"`
}

type NormalizeConfig struct {
	Enabled       bool    `toml:"enabled"`
	GateThreshold float64 `toml:"gate_threshold"`
	TargetDB      float64 `toml:"target_db"`
}

type ChunkingConfig struct {
	// PayloadCeiling overrides the provider's documented request size
	// limit in bytes. Zero means use the provider default.
	PayloadCeiling int64   `toml:"payload_ceiling"`
	SegmentSeconds float64 `toml:"segment_seconds"`
	OverlapSeconds float64 `toml:"overlap_seconds"`
}

// ProviderConfig holds the API key for a provider
type ProviderConfig struct {
	APIKey string `toml:"api_key"`
}

func (c *Config) ToNormalizeOptions() normalize.Options {
	opts := normalize.DefaultOptions()
	if c.Normalize.GateThreshold > 0 {
		opts.GateThreshold = c.Normalize.GateThreshold
	}
	if c.Normalize.TargetDB != 0 {
		opts.TargetDB = c.Normalize.TargetDB
	}
	return opts
}

func (c *Config) ToPlanner() chunk.Planner {
	p := chunk.NewPlanner()
	if c.Chunking.SegmentSeconds > 0 {
		p.SegmentSeconds = c.Chunking.SegmentSeconds
	}
	if c.Chunking.OverlapSeconds > 0 {
		p.OverlapSeconds = c.Chunking.OverlapSeconds
	}
	return p
}

// PayloadCeilingFor returns the effective ceiling for a provider, config
// override first, provider default otherwise.
func (c *Config) PayloadCeilingFor(p provider.Provider) int64 {
	if c.Chunking.PayloadCeiling > 0 {
		return c.Chunking.PayloadCeiling
	}
	return p.PayloadCeiling()
}

// ResolveAPIKey returns the API key for a provider from multiple sources:
// the providers table first, then the provider's environment variable.
func (c *Config) ResolveAPIKey(providerName string) string {
	if c.Providers != nil {
		if pc, ok := c.Providers[providerName]; ok && pc.APIKey != "" {
			return pc.APIKey
		}
	}

	if p := provider.Get(providerName); p != nil {
		if envVar := p.EnvVar(); envVar != "" {
			return os.Getenv(envVar)
		}
	}

	return ""
}
