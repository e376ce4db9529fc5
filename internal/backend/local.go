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

// LocalConfig configures a local model host reachable over HTTP, the
// self-hosted tier of the enrichment cascade. Grounded on the teacher's
// internal/embedding/ollama.go HTTP idiom, generalized from an
// embeddings endpoint to a chat-completion one.
type LocalConfig struct {
	Tier    string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// LocalClient talks to an Ollama-compatible /api/generate endpoint.
type LocalClient struct {
	tier    string
	model   string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewLocalClient(cfg LocalConfig, logger *zap.Logger) *LocalClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &LocalClient{
		tier:    cfg.Tier,
		model:   cfg.Model,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeoutOrDefault(cfg.Timeout)},
		logger:  logger,
	}
}

func (c *LocalClient) Tier() string { return c.tier }

func (c *LocalClient) Close() error { return nil }

type localGenerateRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	System  string `json:"system,omitempty"`
	Stream  bool   `json:"stream"`
	Options struct {
		Temperature float64 `json:"temperature,omitempty"`
	} `json:"options,omitempty"`
}

type localGenerateResponse struct {
	Response  string `json:"response"`
	Done      bool   `json:"done"`
	EvalCount int    `json:"eval_count"`
	PromptEvalCount int `json:"prompt_eval_count"`
}

func (c *LocalClient) Generate(ctx context.Context, prompt string, params Params) (Result, error) {
	start := time.Now()
	req := localGenerateRequest{Model: c.model, Prompt: prompt, System: params.SystemPrompt, Stream: false}
	req.Options.Temperature = params.Temperature

	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, classify("backend.local.Generate", 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.baseURL, "/")+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return Result{}, classify("backend.local.Generate", 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Result{}, classify("backend.local.Generate", 0, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, classify("backend.local.Generate", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, classify("backend.local.Generate", resp.StatusCode, fmt.Errorf("local host returned %d: %s", resp.StatusCode, raw))
	}

	var out localGenerateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Result{}, classify("backend.local.Generate", resp.StatusCode, err)
	}

	text := StripCodeFence(out.Response)
	c.logger.Debug("local backend generate complete",
		zap.String("tier", c.tier), zap.Duration("latency", time.Since(start)), zap.Int("response_len", len(text)))

	return Result{
		Text:      text,
		TokensIn:  out.PromptEvalCount,
		TokensOut: out.EvalCount,
		LatencyMS: time.Since(start).Milliseconds(),
	}, nil
}
