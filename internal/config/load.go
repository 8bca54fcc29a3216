package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

var ErrConfigNotFound = errors.New("config not found")

func GetConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}

	voicepipeDir := filepath.Join(configDir, "voicepipe")
	if err := os.MkdirAll(voicepipeDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return filepath.Join(voicepipeDir, "config.toml"), nil
}

func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(configPath)
}

func LoadFrom(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: run voicepipe configure", ErrConfigNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat config file %s: %w", configPath, err)
	}

	log.Printf("config: loading configuration from %s", configPath)
	var config Config
	meta, err := toml.DecodeFile(configPath, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	if config.Providers == nil {
		config.Providers = make(map[string]ProviderConfig)
	}
	// Normalization is on unless the file turns it off explicitly.
	if !meta.IsDefined("normalize", "enabled") {
		config.Normalize.Enabled = true
	}
	config.applyDefaults()

	log.Printf("config: configuration loaded successfully")
	return &config, nil
}

// Save writes the configuration to the default path.
func Save(config *Config) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	if err := toml.NewEncoder(file).Encode(config); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyDefaults fills fields a hand-edited file commonly leaves out.
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Transcription.Provider == "" {
		c.Transcription.Provider = def.Transcription.Provider
	}
	if c.Normalize.GateThreshold == 0 {
		c.Normalize.GateThreshold = def.Normalize.GateThreshold
	}
	if c.Normalize.TargetDB == 0 {
		c.Normalize.TargetDB = def.Normalize.TargetDB
	}
}
