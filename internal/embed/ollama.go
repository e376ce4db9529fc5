package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"llmc/internal/errs"
)

// OllamaProvider generates embeddings from a local Ollama server's
// /api/embeddings endpoint, grounded on the teacher's
// internal/embedding/ollama.go OllamaEngine. Ollama has no native batch
// embedding endpoint, so EmbedBatch calls Embed sequentially, matching
// the teacher's own comment: "Ollama doesn't have native batch API, so
// we call Embed sequentially."
type OllamaProvider struct {
	endpoint string
	model    string
	dim      int
	client   *http.Client
}

func NewOllamaProvider(endpoint, model string, dim int, timeout time.Duration) *OllamaProvider {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OllamaProvider{
		endpoint: endpoint,
		model:    model,
		dim:      dim,
		client:   &http.Client{Timeout: timeout},
	}
}

func (p *OllamaProvider) Dimensions() int { return p.dim }
func (p *OllamaProvider) Name() string    { return "ollama:" + p.model }

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: p.model, Prompt: text})
	if err != nil {
		return nil, errs.New(errs.BackendParse, "embed.OllamaProvider.Embed", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, errs.New(errs.BackendHTTP, "embed.OllamaProvider.Embed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errs.New(errs.Cancelled, "embed.OllamaProvider.Embed", ctx.Err())
		}
		return nil, errs.New(errs.BackendTimeout, "embed.OllamaProvider.Embed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, errs.New(errs.BackendHTTP, "embed.OllamaProvider.Embed", fmt.Errorf("status %d: %s", resp.StatusCode, string(b)))
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errs.New(errs.BackendParse, "embed.OllamaProvider.Embed", err)
	}
	return out.Embedding, nil
}

func (p *OllamaProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
