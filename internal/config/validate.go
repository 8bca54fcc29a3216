package config

import (
	"fmt"
	"strings"

	"github.com/voicepipe/voicepipe/internal/language"
	"github.com/voicepipe/voicepipe/internal/provider"
)

func (c *Config) Validate() error {
	if c.Transcription.Provider == "" {
		return fmt.Errorf("invalid transcription.provider: empty")
	}

	p := provider.Get(c.Transcription.Provider)
	if p == nil {
		return fmt.Errorf("unsupported transcription.provider: %s (must be %s)",
			c.Transcription.Provider, strings.Join(provider.List(), ", "))
	}

	if p.RequiresAPIKey() {
		apiKey := c.ResolveAPIKey(c.Transcription.Provider)
		if apiKey == "" {
			return fmt.Errorf("%s API key required: not found in config (providers.%s.api_key) or environment variable (%s)",
				p.Name(), c.Transcription.Provider, p.EnvVar())
		}
		if !p.ValidateAPIKey(apiKey) {
			return fmt.Errorf("invalid API key format for provider %s", c.Transcription.Provider)
		}
	}

	if !language.IsValidCode(c.Transcription.Language) {
		return fmt.Errorf("invalid transcription.language: %s (use empty string for auto-detect or ISO-639-1 codes like 'en', 'es', 'fr')", c.Transcription.Language)
	}

	if c.Transcription.Model != "" {
		known := false
		for _, m := range p.Models() {
			if m == c.Transcription.Model {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("invalid model for %s: %s (must be %s)",
				c.Transcription.Provider, c.Transcription.Model, strings.Join(p.Models(), " or "))
		}
	}

	if c.Normalize.GateThreshold < 0 || c.Normalize.GateThreshold >= 1 {
		return fmt.Errorf("invalid normalize.gate_threshold: %v (must be in [0, 1))", c.Normalize.GateThreshold)
	}
	if c.Normalize.TargetDB > 0 {
		return fmt.Errorf("invalid normalize.target_db: %v (peak target must be at or below 0 dBFS)", c.Normalize.TargetDB)
	}

	if c.Chunking.PayloadCeiling < 0 {
		return fmt.Errorf("invalid chunking.payload_ceiling: %d", c.Chunking.PayloadCeiling)
	}
	if c.Chunking.SegmentSeconds < 0 {
		return fmt.Errorf("invalid chunking.segment_seconds: %v", c.Chunking.SegmentSeconds)
	}
	if c.Chunking.OverlapSeconds < 0 {
		return fmt.Errorf("invalid chunking.overlap_seconds: %v", c.Chunking.OverlapSeconds)
	}
	if c.Chunking.SegmentSeconds > 0 && c.Chunking.OverlapSeconds >= c.Chunking.SegmentSeconds {
		return fmt.Errorf("invalid chunking.overlap_seconds: %v (must be shorter than segment_seconds %v)",
			c.Chunking.OverlapSeconds, c.Chunking.SegmentSeconds)
	}

	return nil
}
