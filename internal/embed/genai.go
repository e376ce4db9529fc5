package embed

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"llmc/internal/errs"
)

// GenAIProvider generates embeddings via Google's genai SDK, grounded on
// the teacher's internal/embedding/genai.go GenAIEngine. Its native
// batch endpoint is capped at genAIMaxBatch items per call; larger
// batches are chunked sequentially, matching the teacher's own
// EmbedBatch chunking loop.
type GenAIProvider struct {
	client *genai.Client
	model  string
	dim    int32
}

const genAIMaxBatch = 100

func NewGenAIProvider(ctx context.Context, apiKey, model string, dim int) (*GenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embed.GenAIProvider: API key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("embed.GenAIProvider: create client: %w", err)
	}
	return &GenAIProvider{client: client, model: model, dim: int32(dim)}, nil
}

func (p *GenAIProvider) Dimensions() int { return int(p.dim) }
func (p *GenAIProvider) Name() string    { return "genai:" + p.model }

func (p *GenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vs, err := p.embedChunk(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vs) == 0 {
		return nil, errs.New(errs.BackendParse, "embed.GenAIProvider.Embed", fmt.Errorf("no embeddings returned"))
	}
	return vs[0], nil
}

func (p *GenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) <= genAIMaxBatch {
		return p.embedChunk(ctx, texts)
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += genAIMaxBatch {
		end := start + genAIMaxBatch
		if end > len(texts) {
			end = len(texts)
		}
		if err := ctx.Err(); err != nil {
			return nil, errs.New(errs.Cancelled, "embed.GenAIProvider.EmbedBatch", err)
		}
		chunk, err := p.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

func (p *GenAIProvider) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}

	cfg := &genai.EmbedContentConfig{}
	if p.dim > 0 {
		cfg.OutputDimensionality = genai.Ptr(p.dim)
	}

	result, err := p.client.Models.EmbedContent(ctx, p.model, contents, cfg)
	if err != nil {
		return nil, errs.New(errs.BackendHTTP, "embed.GenAIProvider.embedChunk", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, errs.New(errs.BackendParse, "embed.GenAIProvider.embedChunk", fmt.Errorf("got %d embeddings for %d texts", len(result.Embeddings), len(texts)))
	}

	out := make([][]float32, len(texts))
	for i, e := range result.Embeddings {
		out[i] = e.Values
	}
	return out, nil
}
