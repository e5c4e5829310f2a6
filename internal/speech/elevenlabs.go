package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tatianab/casefile/internal/engine"
	"github.com/tatianab/casefile/internal/models"
	"github.com/tatianab/casefile/internal/retry"
)

const (
	// ElevenLabsRequestsPerMinute caps calls to ElevenLabs.
	ElevenLabsRequestsPerMinute = 20
	// ElevenLabsAttempts bounds the calls made for one narration.
	ElevenLabsAttempts = 3

	DefaultElevenLabsURL   = "https://api.elevenlabs.io"
	DefaultElevenLabsVoice = "21m00Tcm4TlvDq8ikWAM" // Rachel
	defaultElevenLabsModel = "eleven_monolingual_v1"
)

// ElevenLabsOptions configures the ElevenLabs speech backend.
type ElevenLabsOptions struct {
	APIKey  string
	BaseURL string
	// VoiceID replaces the voice the caller asks for, which names an
	// OpenAI voice.
	VoiceID string
	Model   string
	Dir     string
	// Limiter overrides the default ElevenLabsRequestsPerMinute limiter.
	Limiter *rate.Limiter
	// Policy overrides the retry schedule.
	Policy     *retry.Policy
	HTTPClient *http.Client
}

// ElevenLabs synthesizes speech with the ElevenLabs text-to-speech API.
type ElevenLabs struct {
	apiKey  string
	baseURL string
	voiceID string
	model   string
	dir     string
	limiter *rate.Limiter
	policy  retry.Policy
	client  *http.Client
	logger  *zap.Logger

	inflight
}

func NewElevenLabs(opts ElevenLabsOptions, logger *zap.Logger) *ElevenLabs {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &ElevenLabs{
		apiKey:  opts.APIKey,
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
		voiceID: opts.VoiceID,
		model:   opts.Model,
		dir:     opts.Dir,
		limiter: opts.Limiter,
		client:  opts.HTTPClient,
		logger:  logger.With(zap.String("component", "speech"), zap.String("backend", "elevenlabs")),
	}
	if e.baseURL == "" {
		e.baseURL = DefaultElevenLabsURL
	}
	if e.voiceID == "" {
		e.voiceID = DefaultElevenLabsVoice
	}
	if e.model == "" {
		e.model = defaultElevenLabsModel
	}
	if e.dir == "" {
		e.dir = os.TempDir()
	}
	if e.limiter == nil {
		e.limiter = newLimiter(ElevenLabsRequestsPerMinute)
	}
	if e.client == nil {
		e.client = &http.Client{Timeout: 60 * time.Second}
	}
	if opts.Policy != nil {
		e.policy = *opts.Policy
	} else {
		e.policy = retry.Policy{
			Attempts:  ElevenLabsAttempts,
			BaseDelay: 2 * time.Second,
			MaxDelay:  30 * time.Second,
			Retryable: models.Retryable,
		}
	}
	return e
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Synthesize narrates text with the configured voice. Auth and quota
// failures are not retried.
func (e *ElevenLabs) Synthesize(ctx context.Context, text, _ string) (Audio, error) {
	input := CleanText(text)
	if input == "" {
		return Audio{}, fmt.Errorf("%w: nothing to narrate", models.ErrValidation)
	}
	if !e.limiter.Allow() {
		return Audio{}, fmt.Errorf("%w: more than %d narrations a minute", models.ErrRateLimited, ElevenLabsRequestsPerMinute)
	}

	ctx, id := e.track(ctx)
	defer e.untrack(id)

	body, err := json.Marshal(ttsRequest{
		Text:    input,
		ModelID: e.model,
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.5,
			Style:           0.5,
			UseSpeakerBoost: true,
		},
	})
	if err != nil {
		return Audio{}, err
	}

	audio, err := retry.Do(ctx, e.policy, e.logger, func(ctx context.Context, attempt int) (Audio, error) {
		return e.post(ctx, body)
	})
	if err != nil {
		return Audio{}, fmt.Errorf("synthesize: %w", err)
	}
	e.logger.Debug("Narration ready", zap.String("path", audio.Path), zap.Int64("bytes", audio.Bytes))
	return audio, nil
}

func (e *ElevenLabs) post(ctx context.Context, body []byte) (Audio, error) {
	url := fmt.Sprintf("%s/v1/text-to-speech/%s", e.baseURL, e.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Audio{}, err
	}
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return Audio{}, engine.Classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return Audio{}, engine.Classify(&engine.StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(msg))})
	}
	return writeAudio(e.dir, resp.Body, e.voiceID)
}
