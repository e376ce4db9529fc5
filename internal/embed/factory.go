package embed

import (
	"context"
	"fmt"
	"os"
	"time"

	"llmc/internal/config"
)

// New constructs the Provider for one named embedding profile, dispatching
// on profile.Provider the way the teacher's embedding.NewEngine does on
// cfg.Provider ("ollama" | "genai").
func New(ctx context.Context, profile config.EmbeddingProfile, timeout time.Duration) (Provider, error) {
	switch profile.Provider {
	case "", "ollama":
		return NewOllamaProvider(profile.Endpoint, profile.Model, profile.Dim, timeout), nil
	case "genai", "gemini":
		return NewGenAIProvider(ctx, os.Getenv(profile.APIKeyEnv), profile.Model, profile.Dim)
	default:
		return nil, fmt.Errorf("embed.New: unsupported embedding provider %q", profile.Provider)
	}
}
