// Package engine talks to the narrative generation service. Backends return
// the raw reply; validation is the caller's job.
package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tatianab/casefile/internal/models"
	"github.com/tatianab/casefile/internal/story"
)

// Sampling settings per request kind.
const (
	turnTemperature   = 0.8
	turnMaxTokens     = 1000
	endingTemperature = 0.9
	endingMaxTokens   = 700
)

// ErrIllustrationUnsupported is returned by backends that cannot draw.
var ErrIllustrationUnsupported = errors.New("illustrations are not supported by this backend")

// TurnRequest asks for the next scene.
type TurnRequest struct {
	Case     models.CaseFile
	Turn     int
	Score    int
	MaxScore int
	Context  story.Context
	Opening  bool
	// LastOutcome is the outcome text of the choice that led here.
	LastOutcome string
}

// EndingRequest asks for the closing narrative of a finished case.
type EndingRequest struct {
	Case     models.CaseFile
	Log      story.Log
	Score    int
	MaxScore int
	Victory  bool
}

// IllustrationRequest asks for a picture of a scene.
type IllustrationRequest struct {
	Case   models.CaseFile
	Scene  string
	Mood   string
	Style  string
	Ending bool
}

// Generator is the generation service contract.
type Generator interface {
	RequestTurn(ctx context.Context, req TurnRequest) (string, error)
	RequestEnding(ctx context.Context, req EndingRequest) (string, error)
	// RequestIllustration returns a URL to the generated image.
	RequestIllustration(ctx context.Context, req IllustrationRequest) (string, error)
	Close() error
}

// Provider names a backend.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

// Options selects and configures a backend.
type Options struct {
	Provider   Provider
	APIKey     string
	Model      string
	BaseURL    string
	ImageModel string
}

// New builds the backend named by opts.Provider.
func New(ctx context.Context, opts Options, logger *zap.Logger) (Generator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch opts.Provider {
	case ProviderOpenAI:
		return NewOpenAI(opts, logger), nil
	case ProviderGemini:
		return NewGemini(ctx, opts, logger)
	}
	return nil, fmt.Errorf("%w: unknown provider %q", models.ErrValidation, opts.Provider)
}
