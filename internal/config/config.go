package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the process configuration read from the environment.
type Config struct {
	Provider string `envconfig:"PROVIDER" default:"openai"`

	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`
	GeminiModel  string `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`

	OpenAIAPIKey     string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL    string `envconfig:"OPENAI_BASE_URL"`
	OpenAIModel      string `envconfig:"OPENAI_MODEL" default:"gpt-3.5-turbo"`
	OpenAIImageModel string `envconfig:"OPENAI_IMAGE_MODEL" default:"dall-e-3"`
	OpenAITTSModel   string `envconfig:"OPENAI_TTS_MODEL" default:"tts-1"`

	Illustrations bool   `envconfig:"ILLUSTRATIONS" default:"false"`
	SpeechEnabled bool   `envconfig:"SPEECH_ENABLED" default:"false"`
	Voice         string `envconfig:"VOICE" default:"alloy"`
	// ElevenLabsAPIKey makes ElevenLabs the narration backend.
	ElevenLabsAPIKey  string `envconfig:"ELEVENLABS_API_KEY"`
	ElevenLabsVoiceID string `envconfig:"ELEVENLABS_VOICE_ID" default:"21m00Tcm4TlvDq8ikWAM"`

	MaxScore         int           `envconfig:"MAX_SCORE" default:"8"`
	AIMaxAttempts    int           `envconfig:"AI_MAX_ATTEMPTS" default:"5"`
	AIBaseRetryDelay time.Duration `envconfig:"AI_BASE_RETRY_DELAY" default:"2s"`
	AIMaxRetryDelay  time.Duration `envconfig:"AI_MAX_RETRY_DELAY" default:"10s"`
	NarrationWait    time.Duration `envconfig:"NARRATION_WAIT" default:"15s"`

	SaveDir      string `envconfig:"SAVE_DIR" default:".saves"`
	SettingsPath string `envconfig:"SETTINGS_PATH" default:".saves/settings.yaml"`
	// DBPath enables the SQLite case archive when set.
	DBPath string `envconfig:"DB_PATH"`

	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`
	LogFile     string `envconfig:"LOG_FILE" default:".saves/game.log"`
	// MetricsAddr serves /metrics when set, e.g. ":9090".
	MetricsAddr string `envconfig:"METRICS_ADDR"`
}

// LoadConfig loads an optional .env file and then the environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("PROVIDER must be %q or %q, got %q", ProviderOpenAI, ProviderGemini, c.Provider)
	}
	if c.MaxScore < 1 {
		return fmt.Errorf("MAX_SCORE must be positive, got %d", c.MaxScore)
	}
	if c.AIMaxAttempts < 1 {
		return fmt.Errorf("AI_MAX_ATTEMPTS must be positive, got %d", c.AIMaxAttempts)
	}
	if c.AIBaseRetryDelay < 0 || c.AIMaxRetryDelay < c.AIBaseRetryDelay {
		return fmt.Errorf("retry delays must satisfy 0 <= AI_BASE_RETRY_DELAY (%v) <= AI_MAX_RETRY_DELAY (%v)", c.AIBaseRetryDelay, c.AIMaxRetryDelay)
	}
	return nil
}
