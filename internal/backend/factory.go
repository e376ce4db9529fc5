package backend

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"llmc/internal/config"
)

// New constructs the Adapter for one cascade tier from its
// config.BackendConfig, dispatching on Kind the way the teacher's
// internal/perception/client_factory.go dispatches on Provider. "local"
// always means an Ollama-compatible HTTP host; "anthropic" and "gemini"
// select those providers' own clients; "remote", "openai", "xai",
// "openrouter" and an empty kind all use the OpenAI-compatible wire
// format. Any other kind is an error.
func New(ctx context.Context, tier string, bc config.BackendConfig, logger *zap.Logger) (Adapter, error) {
	timeout := time.Duration(bc.TimeoutSeconds) * time.Second
	apiKey := resolveAPIKey(bc.APIKeyEnv)

	switch bc.Kind {
	case "local":
		return NewLocalClient(LocalConfig{
			Tier: tier, Model: bc.Model, BaseURL: bc.Endpoint, Timeout: timeout,
		}, logger), nil

	case "anthropic":
		return NewAnthropicClient(AnthropicConfig{
			Tier: tier, Model: bc.Model, BaseURL: bc.Endpoint, APIKey: apiKey, Timeout: timeout,
		}, logger), nil

	case "gemini":
		return NewGeminiClient(ctx, GeminiConfig{
			Tier: tier, Model: bc.Model, APIKey: apiKey, Timeout: timeout,
		}, logger)

	case "remote", "openai", "xai", "openrouter", "":
		return NewOpenAIClient(OpenAIConfig{
			Tier: tier, Model: bc.Model, BaseURL: bc.Endpoint, APIKey: apiKey, Timeout: timeout,
		}, logger), nil

	default:
		return nil, fmt.Errorf("backend.New: unknown backend kind %q for tier %s", bc.Kind, tier)
	}
}

// resolveAPIKey reads the environment variable named by envVar, mirroring
// the teacher's own env-var-keyed provider key lookup in
// internal/perception/client_factory.go's DetectProvider.
func resolveAPIKey(envVar string) string {
	if envVar == "" {
		return ""
	}
	return os.Getenv(envVar)
}

// Cascade builds one Adapter per tier named in cfg.Enrichment.Cascade, in
// order, skipping (and logging) any tier whose backend fails to
// construct rather than failing the whole cascade — a cascade with one
// bad tier should still serve the tiers that are configured correctly.
func Cascade(ctx context.Context, cfg *config.Config, logger *zap.Logger) []Adapter {
	var adapters []Adapter
	for _, tier := range cfg.Enrichment.Cascade {
		bc, ok := cfg.Enrichment.Backends[tier]
		if !ok {
			logger.Warn("cascade references backend with no configuration, skipping", zap.String("tier", tier))
			continue
		}
		adapter, err := New(ctx, tier, bc, logger)
		if err != nil {
			logger.Warn("failed to construct cascade tier, skipping", zap.String("tier", tier), zap.Error(err))
			continue
		}
		adapters = append(adapters, adapter)
	}
	return adapters
}
