package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/tatianab/casefile/internal/models"
)

const (
	defaultOpenAIModel      = openai.GPT3Dot5Turbo
	defaultOpenAIImageModel = openai.CreateImageModelDallE3
)

// OpenAI generates scenes with chat completions and illustrations with DALL-E.
type OpenAI struct {
	client     *openai.Client
	model      string
	imageModel string
	logger     *zap.Logger
}

// NewOpenAI builds the OpenAI backend. An empty BaseURL uses the public API.
func NewOpenAI(opts Options, logger *zap.Logger) *OpenAI {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	model := opts.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	imageModel := opts.ImageModel
	if imageModel == "" {
		imageModel = defaultOpenAIImageModel
	}
	return &OpenAI{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		imageModel: imageModel,
		logger:     logger.With(zap.String("backend", "openai"), zap.String("model", model)),
	}
}

func (o *OpenAI) RequestTurn(ctx context.Context, req TurnRequest) (string, error) {
	p, err := TurnPrompt(req)
	if err != nil {
		return "", err
	}
	return o.chat(ctx, "turn", p, turnTemperature, turnMaxTokens, true)
}

func (o *OpenAI) RequestEnding(ctx context.Context, req EndingRequest) (string, error) {
	p, err := EndingPrompt(req)
	if err != nil {
		return "", err
	}
	return o.chat(ctx, "ending", p, endingTemperature, endingMaxTokens, false)
}

func (o *OpenAI) RequestIllustration(ctx context.Context, req IllustrationRequest) (url string, err error) {
	prompt, err := IllustrationPrompt(req)
	if err != nil {
		return "", err
	}

	start := time.Now()
	defer func() { observe("openai", "illustration", start, url, err) }()

	resp, err := o.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          o.imageModel,
		N:              1,
		Size:           openai.CreateImageSize1792x1024,
		Quality:        openai.CreateImageQualityStandard,
		Style:          openai.CreateImageStyleVivid,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return "", Classify(err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", fmt.Errorf("%w: no image returned", models.ErrMalformedResponse)
	}
	return resp.Data[0].URL, nil
}

func (o *OpenAI) chat(ctx context.Context, kind string, p Prompt, temperature float32, maxTokens int, jsonMode bool) (reply string, err error) {
	start := time.Now()
	defer func() { observe("openai", kind, start, reply, err) }()

	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System},
			{Role: openai.ChatMessageRoleUser, Content: p.User},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	o.logger.Debug("Sending request",
		zap.String("kind", kind),
		zap.Int("system_bytes", len(p.System)),
		zap.Int("user_bytes", len(p.User)),
	)
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		err = Classify(err)
		o.logger.Warn("Request failed", zap.String("kind", kind), zap.Duration("took", time.Since(start)), zap.Error(err))
		return "", err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: empty reply", models.ErrMalformedResponse)
	}

	o.logger.Debug("Request succeeded",
		zap.String("kind", kind),
		zap.Duration("took", time.Since(start)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAI) Close() error { return nil }
