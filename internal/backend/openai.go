package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// OpenAIConfig configures any OpenAI-wire-compatible remote provider —
// OpenAI itself, xAI, and OpenRouter all share this request/response
// shape in the teacher's internal/perception/client_openai.go (XAI and
// OpenRouter are declared as straight type aliases of the OpenAI
// request/response structs there); one adapter implementation serves
// all three cascade tiers that point at such an endpoint.
type OpenAIConfig struct {
	Tier    string
	Model   string
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type OpenAIClient struct {
	tier    string
	model   string
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

func NewOpenAIClient(cfg OpenAIConfig, logger *zap.Logger) *OpenAIClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIClient{
		tier:    cfg.Tier,
		model:   cfg.Model,
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeoutOrDefault(cfg.Timeout)},
		logger:  logger,
	}
}

func (c *OpenAIClient) Tier() string { return c.tier }
func (c *OpenAIClient) Close() error { return nil }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *OpenAIClient) Generate(ctx context.Context, prompt string, params Params) (Result, error) {
	start := time.Now()
	if c.apiKey == "" {
		return Result{}, classify("backend.openai.Generate", 401, fmt.Errorf("no API key configured for tier %s", c.tier))
	}

	messages := []openAIMessage{}
	if strings.TrimSpace(params.SystemPrompt) != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: params.SystemPrompt})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: prompt})

	reqBody := openAIRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, classify("backend.openai.Generate", 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.baseURL, "/")+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return Result{}, classify("backend.openai.Generate", 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Result{}, classify("backend.openai.Generate", 0, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, classify("backend.openai.Generate", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, classify("backend.openai.Generate", resp.StatusCode, fmt.Errorf("provider returned %d: %s", resp.StatusCode, raw))
	}

	var out openAIResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Result{}, classify("backend.openai.Generate", resp.StatusCode, err)
	}
	if out.Error != nil {
		return Result{}, classify("backend.openai.Generate", resp.StatusCode, fmt.Errorf("provider error: %s", out.Error.Message))
	}
	if len(out.Choices) == 0 {
		return Result{}, classify("backend.openai.Generate", resp.StatusCode, fmt.Errorf("no completion choices returned"))
	}

	text := StripCodeFence(out.Choices[0].Message.Content)
	c.logger.Debug("openai-compatible backend generate complete",
		zap.String("tier", c.tier), zap.Duration("latency", time.Since(start)))

	return Result{
		Text:      text,
		TokensIn:  out.Usage.PromptTokens,
		TokensOut: out.Usage.CompletionTokens,
		LatencyMS: time.Since(start).Milliseconds(),
	}, nil
}
