// Package speech narrates story text through a text-to-speech service.
// Narration is best effort: callers bound how long they wait for it.
package speech

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tatianab/casefile/internal/engine"
	"github.com/tatianab/casefile/internal/models"
)

// RequestsPerMinute caps calls to the OpenAI speech service.
const RequestsPerMinute = 10

func newLimiter(perMinute int) *rate.Limiter {
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
}

// Audio is a synthesized clip written to disk.
type Audio struct {
	Path  string
	Voice string
	Bytes int64
}

// Synthesizer is the speech service contract.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (Audio, error)
	// Stop abandons every synthesis in flight.
	Stop()
}

// Options configures the OpenAI speech backend.
type Options struct {
	APIKey  string
	BaseURL string
	Model   string
	// Dir receives the audio files.
	Dir string
	// Limiter overrides the default RequestsPerMinute limiter.
	Limiter *rate.Limiter
}

// OpenAI synthesizes speech with the OpenAI audio API.
type OpenAI struct {
	client  *openai.Client
	model   openai.SpeechModel
	dir     string
	limiter *rate.Limiter
	logger  *zap.Logger

	inflight
}

func NewOpenAI(opts Options, logger *zap.Logger) *OpenAI {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	model := openai.SpeechModel(opts.Model)
	if model == "" {
		model = openai.TTSModel1
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = newLimiter(RequestsPerMinute)
	}
	dir := opts.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	return &OpenAI{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		dir:     dir,
		limiter: limiter,
		logger:  logger.With(zap.String("component", "speech"), zap.String("backend", "openai")),
	}
}

// Synthesize narrates text with voice. Text is cleaned of emoji and markdown
// first; text that cleans to nothing is rejected with ErrValidation.
func (o *OpenAI) Synthesize(ctx context.Context, text, voice string) (Audio, error) {
	input := CleanText(text)
	if input == "" {
		return Audio{}, fmt.Errorf("%w: nothing to narrate", models.ErrValidation)
	}
	if !o.limiter.Allow() {
		return Audio{}, fmt.Errorf("%w: more than %d narrations a minute", models.ErrRateLimited, RequestsPerMinute)
	}

	ctx, id := o.track(ctx)
	defer o.untrack(id)

	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          o.model,
		Input:          input,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return Audio{}, fmt.Errorf("synthesize: %w", engine.Classify(err))
	}
	defer resp.Close()

	audio, err := writeAudio(o.dir, resp, voice)
	if err != nil {
		return Audio{}, err
	}
	o.logger.Debug("Narration ready", zap.String("path", audio.Path), zap.Int64("bytes", audio.Bytes), zap.String("voice", voice))
	return audio, nil
}

// writeAudio stores an mp3 stream under dir.
func writeAudio(dir string, r io.Reader, voice string) (Audio, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Audio{}, err
	}
	path := filepath.Join(dir, "narration-"+uuid.NewString()+".mp3")
	f, err := os.Create(path)
	if err != nil {
		return Audio{}, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return Audio{}, fmt.Errorf("write narration: %w", err)
	}
	return Audio{Path: path, Voice: voice, Bytes: n}, nil
}

// inflight tracks running syntheses so Stop can cancel them.
type inflight struct {
	mu      sync.Mutex
	next    uint64
	cancels map[uint64]context.CancelFunc
}

// Stop cancels every synthesis in flight.
func (t *inflight) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, cancel := range t.cancels {
		cancel()
		delete(t.cancels, id)
	}
}

func (t *inflight) track(ctx context.Context) (context.Context, uint64) {
	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancels == nil {
		t.cancels = make(map[uint64]context.CancelFunc)
	}
	t.next++
	t.cancels[t.next] = cancel
	return ctx, t.next
}

func (t *inflight) untrack(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cancel, ok := t.cancels[id]; ok {
		cancel()
		delete(t.cancels, id)
	}
}
