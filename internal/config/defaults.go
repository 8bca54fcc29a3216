package config

import "github.com/voicepipe/voicepipe/internal/normalize"

// DefaultConfig returns the initial configuration used for onboarding.
func DefaultConfig() *Config {
	opts := normalize.DefaultOptions()
	return &Config{
		Transcription: TranscriptionConfig{
			Provider:  "openai",
			Language:  "",
			Punctuate: true,
			Diarize:   false,
		},
		Normalize: NormalizeConfig{
			Enabled:       true,
			GateThreshold: opts.GateThreshold,
			TargetDB:      opts.TargetDB,
		},
		Chunking:  ChunkingConfig{},
		Providers: make(map[string]ProviderConfig),
	}
}
