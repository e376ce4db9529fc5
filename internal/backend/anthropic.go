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

// AnthropicConfig configures the Anthropic Messages API adapter.
// Grounded on the teacher's internal/perception/client_anthropic.go
// request/response shape, collapsed to the single Generate contract.
type AnthropicConfig struct {
	Tier    string
	Model   string
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type AnthropicClient struct {
	tier    string
	model   string
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

func NewAnthropicClient(cfg AnthropicConfig, logger *zap.Logger) *AnthropicClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com/v1"
	}
	return &AnthropicClient{
		tier:    cfg.Tier,
		model:   cfg.Model,
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeoutOrDefault(cfg.Timeout)},
		logger:  logger,
	}
}

func (c *AnthropicClient) Tier() string { return c.tier }
func (c *AnthropicClient) Close() error { return nil }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *AnthropicClient) Generate(ctx context.Context, prompt string, params Params) (Result, error) {
	start := time.Now()
	if c.apiKey == "" {
		return Result{}, classify("backend.anthropic.Generate", 401, fmt.Errorf("no API key configured for tier %s", c.tier))
	}

	maxTokens := params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	reqBody := anthropicRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		System:      params.SystemPrompt,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
		Temperature: params.Temperature,
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, classify("backend.anthropic.Generate", 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.baseURL, "/")+"/messages", bytes.NewReader(data))
	if err != nil {
		return Result{}, classify("backend.anthropic.Generate", 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Result{}, classify("backend.anthropic.Generate", 0, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, classify("backend.anthropic.Generate", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, classify("backend.anthropic.Generate", resp.StatusCode, fmt.Errorf("anthropic returned %d: %s", resp.StatusCode, raw))
	}

	var out anthropicResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Result{}, classify("backend.anthropic.Generate", resp.StatusCode, err)
	}
	if out.Error != nil {
		return Result{}, classify("backend.anthropic.Generate", resp.StatusCode, fmt.Errorf("anthropic error: %s", out.Error.Message))
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return Result{}, classify("backend.anthropic.Generate", resp.StatusCode, fmt.Errorf("no completion content returned"))
	}

	c.logger.Debug("anthropic backend generate complete",
		zap.String("tier", c.tier), zap.Duration("latency", time.Since(start)))

	return Result{
		Text:      StripCodeFence(text.String()),
		TokensIn:  out.Usage.InputTokens,
		TokensOut: out.Usage.OutputTokens,
		LatencyMS: time.Since(start).Milliseconds(),
	}, nil
}
