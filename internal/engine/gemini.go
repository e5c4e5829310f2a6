package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/tatianab/casefile/internal/models"
)

const defaultGeminiModel = "gemini-2.5-flash"

// Gemini generates scenes with Google's Gemini models. It cannot draw.
type Gemini struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

func NewGemini(ctx context.Context, opts Options, logger *zap.Logger) (*Gemini, error) {
	clientOpts := []option.ClientOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.BaseURL))
	}
	client, err := genai.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, Classify(err)
	}

	model := opts.Model
	if model == "" {
		model = defaultGeminiModel
	}
	return &Gemini{
		client: client,
		model:  model,
		logger: logger.With(zap.String("backend", "gemini"), zap.String("model", model)),
	}, nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

func (g *Gemini) RequestTurn(ctx context.Context, req TurnRequest) (string, error) {
	p, err := TurnPrompt(req)
	if err != nil {
		return "", err
	}
	return g.generate(ctx, "turn", p, turnTemperature, true)
}

func (g *Gemini) RequestEnding(ctx context.Context, req EndingRequest) (string, error) {
	p, err := EndingPrompt(req)
	if err != nil {
		return "", err
	}
	return g.generate(ctx, "ending", p, endingTemperature, false)
}

func (g *Gemini) RequestIllustration(context.Context, IllustrationRequest) (string, error) {
	return "", ErrIllustrationUnsupported
}

// generate sets no output token limit: thinking models spend part of it
// before the first visible token.
func (g *Gemini) generate(ctx context.Context, kind string, p Prompt, temperature float32, jsonMode bool) (reply string, err error) {
	start := time.Now()
	defer func() { observe("gemini", kind, start, reply, err) }()

	model := g.client.GenerativeModel(g.model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(p.System)}}
	model.SetTemperature(temperature)
	if jsonMode {
		model.ResponseMIMEType = "application/json"
	}

	g.logger.Debug("Sending request", zap.String("kind", kind), zap.Int("system_bytes", len(p.System)))
	resp, err := model.GenerateContent(ctx, genai.Text(p.User))
	if err != nil {
		err = Classify(err)
		g.logger.Warn("Request failed", zap.String("kind", kind), zap.Duration("took", time.Since(start)), zap.Error(err))
		return "", err
	}

	text, err := replyText(resp)
	if err != nil {
		g.logger.Warn("Unusable reply", zap.String("kind", kind), zap.String("finish_reason", finishReason(resp)), zap.Error(err))
		return "", err
	}
	g.logger.Debug("Request succeeded", zap.String("kind", kind), zap.Duration("took", time.Since(start)))
	return text, nil
}

// replyText returns the reply of a complete candidate.
func replyText(resp *genai.GenerateContentResponse) (string, error) {
	reason := finishReason(resp)
	text := Text(resp)
	switch {
	case reason == genai.FinishReasonMaxTokens.String():
		return "", fmt.Errorf("%w: Gemini reply cut off (%s)", models.ErrMalformedResponse, reason)
	case strings.TrimSpace(text) == "":
		return "", fmt.Errorf("%w: no content returned from Gemini (%s)", models.ErrMalformedResponse, reason)
	}
	return text, nil
}

func finishReason(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return "no candidates"
	}
	return resp.Candidates[0].FinishReason.String()
}

// Text joins the text parts of the first candidate.
func Text(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}
