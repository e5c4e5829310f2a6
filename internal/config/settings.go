package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Narration backends.
const (
	SpeechElevenLabs = "elevenlabs"
	SpeechOpenAI     = "openai"
)

// Settings holds the player's credentials and narration preferences. They
// outlive any single case and are saved apart from it.
type Settings struct {
	mu sync.RWMutex

	Provider         string `yaml:"provider"`
	OpenAIAPIKey     string `yaml:"openai_api_key,omitempty"`
	GeminiAPIKey     string `yaml:"gemini_api_key,omitempty"`
	ElevenLabsAPIKey string `yaml:"elevenlabs_api_key,omitempty"`
	Voice            string `yaml:"voice"`
	Narration        bool   `yaml:"narration"`
	Illustrations    bool   `yaml:"illustrations"`
}

// SettingsFromConfig seeds settings from the environment.
func SettingsFromConfig(cfg *Config) *Settings {
	return &Settings{
		Provider:         cfg.Provider,
		OpenAIAPIKey:     cfg.OpenAIAPIKey,
		GeminiAPIKey:     cfg.GeminiAPIKey,
		ElevenLabsAPIKey: cfg.ElevenLabsAPIKey,
		Voice:            cfg.Voice,
		Narration:        cfg.SpeechEnabled,
		Illustrations:    cfg.Illustrations,
	}
}

// LoadSettings overlays the settings file at path onto s. A missing file
// leaves s untouched.
func (s *Settings) LoadSettings(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := yaml.Unmarshal(data, s); err != nil {
		return fmt.Errorf("decode settings %s: %w", path, err)
	}
	return nil
}

// Save writes the settings to path, readable only by the owner.
func (s *Settings) Save(path string) error {
	s.mu.RLock()
	data, err := yaml.Marshal(s)
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// APIKey returns the key for the selected provider.
func (s *Settings) APIKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.apiKey()
}

func (s *Settings) apiKey() string {
	if s.Provider == ProviderGemini {
		return strings.TrimSpace(s.GeminiAPIKey)
	}
	return strings.TrimSpace(s.OpenAIAPIKey)
}

// HasValidCredentials reports whether the selected provider has a usable key.
// OpenAI keys must look like "sk-..." and be at least 20 characters long.
func (s *Settings) HasValidCredentials() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := s.apiKey()
	switch s.Provider {
	case ProviderOpenAI:
		return strings.HasPrefix(key, "sk-") && len(key) >= 20
	case ProviderGemini:
		return key != ""
	}
	return false
}

// SpeechBackend names the narration backend: ElevenLabs when its key is set,
// OpenAI when only an OpenAI key is set, and "" when narration is impossible.
func (s *Settings) SpeechBackend() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case strings.TrimSpace(s.ElevenLabsAPIKey) != "":
		return SpeechElevenLabs
	case strings.TrimSpace(s.OpenAIAPIKey) != "":
		return SpeechOpenAI
	}
	return ""
}

// NarrationEnabled reports whether outcomes should be read aloud.
func (s *Settings) NarrationEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Narration
}

// NarrationVoice is the voice used for narration.
func (s *Settings) NarrationVoice() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Voice
}

// IllustrationsEnabled reports whether scenes should be illustrated.
func (s *Settings) IllustrationsEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Illustrations
}

// SetNarration toggles narration.
func (s *Settings) SetNarration(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Narration = on
}
