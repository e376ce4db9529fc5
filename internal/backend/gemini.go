package backend

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini adapter via the genai SDK, the
// teacher's own choice (internal/perception/client_gemini.go uses raw
// HTTP; this adapter instead uses the genai module the teacher also
// depends on for embeddings, so the chat path exercises the SDK rather
// than duplicating a fourth hand-rolled HTTP client).
type GeminiConfig struct {
	Tier    string
	Model   string
	APIKey  string
	Timeout time.Duration
}

type GeminiClient struct {
	tier    string
	model   string
	timeout time.Duration
	client  *genai.Client
	logger  *zap.Logger
}

func NewGeminiClient(ctx context.Context, cfg GeminiConfig, logger *zap.Logger) (*GeminiClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("backend.gemini: create client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiClient{
		tier:    cfg.Tier,
		model:   model,
		timeout: timeoutOrDefault(cfg.Timeout),
		client:  client,
		logger:  logger,
	}, nil
}

func (c *GeminiClient) Tier() string { return c.tier }
func (c *GeminiClient) Close() error { return nil }

func (c *GeminiClient) Generate(ctx context.Context, prompt string, params Params) (Result, error) {
	start := time.Now()
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr(float32(params.Temperature))}
	if params.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(params.SystemPrompt, genai.RoleUser)
	}
	if params.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(params.MaxTokens)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return Result{}, classify("backend.gemini.Generate", 0, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return Result{}, classify("backend.gemini.Generate", 0, fmt.Errorf("no completion candidates returned"))
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		text += part.Text
	}

	var tokensIn, tokensOut int
	if resp.UsageMetadata != nil {
		tokensIn = int(resp.UsageMetadata.PromptTokenCount)
		tokensOut = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	c.logger.Debug("gemini backend generate complete",
		zap.String("tier", c.tier), zap.Duration("latency", time.Since(start)))

	return Result{
		Text:      StripCodeFence(text),
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
		LatencyMS: time.Since(start).Milliseconds(),
	}, nil
}
