// Package config loads the structured configuration document: named
// embedding profiles, storage location, enrichment pipeline and cascade
// parameters, daemon pacing, and classifier/router knobs. Loading
// follows the teacher's own idiom: build defaults, parse YAML over
// them, then apply environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EmbeddingProfile names a (provider, model, dim) triple. Switching a
// profile's Model or Dim invalidates every embedding stored under it.
type EmbeddingProfile struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	Dim       int    `yaml:"dim"`
	Endpoint  string `yaml:"endpoint"`   // ollama provider only
	APIKeyEnv string `yaml:"api_key_env"` // genai provider only
}

// BackendConfig parametrizes one member of the enrichment tier cascade.
type BackendConfig struct {
	Kind           string  `yaml:"kind"` // "local" | "anthropic" | "gemini" | "remote" | "openai" | "xai" | "openrouter"
	Endpoint       string  `yaml:"endpoint"`
	Model          string  `yaml:"model"`
	APIKeyEnv      string  `yaml:"api_key_env"`
	RPM            int     `yaml:"rpm"`
	TPM            int     `yaml:"tpm"`
	DailyUSDCap    float64 `yaml:"daily_usd_cap"`
	MonthlyUSDCap  float64 `yaml:"monthly_usd_cap"`
	RetryAttempts  int     `yaml:"retry_attempts"`
	TimeoutSeconds int     `yaml:"timeout_s"`
	// CostPer1KTokensUSD prices a combined input+output thousand-token
	// unit, for the reliability middleware's pre-call budget check.
	// Zero for local backends, which carry no USD cost.
	CostPer1KTokensUSD float64 `yaml:"cost_per_1k_tokens_usd"`
}

// EnrichmentConfig controls the C7 pipeline.
type EnrichmentConfig struct {
	Enabled          bool                     `yaml:"enabled"`
	BatchSize        int                      `yaml:"batch_size"`
	MaxLineGap       int                      `yaml:"max_line_gap"`
	MaxSpansPerCycle int                      `yaml:"max_spans_per_cycle"`
	CooldownSeconds  int                      `yaml:"cooldown_seconds"`
	StartTier        string                   `yaml:"start_tier"`
	Cascade          []string                 `yaml:"cascade"`
	Backends         map[string]BackendConfig `yaml:"backends"`
}

// DaemonConfig controls C11's loop pacing.
type DaemonConfig struct {
	TickSeconds        int `yaml:"tick_seconds"`
	NiceLevel          int `yaml:"nice_level"`
	IdleBackoffBase    int `yaml:"idle_backoff_base"`
	IdleBackoffMax     int `yaml:"idle_backoff_max"`
	PhaseTimeoutSeconds int `yaml:"phase_timeout_seconds"`
}

// RoutingConfig controls the C9 classifier/router and the C10
// retriever's fusion weights.
type RoutingConfig struct {
	PreferCodeOnConflict bool     `yaml:"prefer_code_on_conflict"`
	ConflictMargin       float64  `yaml:"conflict_margin"`
	ERPKeywords          []string `yaml:"erp_keywords"`
	CodeStructRegex      string   `yaml:"code_struct_regex"`
	VectorTopK           int      `yaml:"vector_top_k"`
	LexicalTopK          int      `yaml:"lexical_top_k"`
	GraphHopThreshold    int      `yaml:"graph_hop_threshold"` // query complexity at/above which graph expansion goes 2-hop instead of 1-hop
	FusionAlpha          float64  `yaml:"fusion_alpha"`        // vector weight
	FusionBeta           float64  `yaml:"fusion_beta"`         // lexical weight
	FusionGamma          float64  `yaml:"fusion_gamma"`        // graph weight (applied to 1/graph_distance)
}

// StorageConfig locates the Index Store on disk.
type StorageConfig struct {
	IndexPath string `yaml:"index_path"`
}

// Config is the root configuration document.
type Config struct {
	Storage    StorageConfig               `yaml:"storage"`
	Embeddings map[string]EmbeddingProfile `yaml:"embeddings"`
	Enrichment EnrichmentConfig            `yaml:"enrichment"`
	Daemon     DaemonConfig                `yaml:"daemon"`
	Routing    RoutingConfig               `yaml:"routing"`
}

// DefaultConfig returns the baseline configuration, merged with file and
// environment overrides by Load.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{IndexPath: ".llmc/index.db"},
		Embeddings: map[string]EmbeddingProfile{
			"default": {Provider: "ollama", Model: "embeddinggemma", Dim: 768},
		},
		Enrichment: EnrichmentConfig{
			Enabled:          true,
			BatchSize:        2,
			MaxLineGap:       20,
			MaxSpansPerCycle: 50,
			CooldownSeconds:  0,
			StartTier:        "local_small",
			Cascade:          []string{"local_small"},
			Backends: map[string]BackendConfig{
				"local_small": {
					Kind: "local", Endpoint: "http://localhost:11434", Model: "qwen2.5-coder:3b",
					RPM: 0, TPM: 0, RetryAttempts: 5, TimeoutSeconds: 30,
				},
			},
		},
		Daemon: DaemonConfig{
			TickSeconds:         180,
			NiceLevel:           10,
			IdleBackoffBase:     180,
			IdleBackoffMax:      1800,
			PhaseTimeoutSeconds: 600,
		},
		Routing: RoutingConfig{
			PreferCodeOnConflict: true,
			ConflictMargin:       0.1,
			ERPKeywords:          []string{"sku", "invoice", "ledger", "purchase_order", "vendor"},
			CodeStructRegex:      `\b(func|class|struct|interface|def|impl)\b`,
			VectorTopK:           20,
			LexicalTopK:          20,
			GraphHopThreshold:    3,
			FusionAlpha:          0.5,
			FusionBeta:           0.3,
			FusionGamma:          0.2,
		},
	}
}

// Load reads path, falling back to defaults silently if it does not
// exist, then applies environment overrides. Mirrors the teacher's own
// Load(path): DefaultConfig() first, then YAML over it, then env.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories as needed.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// applyEnvOverrides layers LLMC_*-prefixed environment variables over the
// loaded config, matching the teacher's env-override layering.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LLMC_INDEX_PATH"); v != "" {
		c.Storage.IndexPath = v
	}
	if v := os.Getenv("LLMC_ENRICHMENT_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Enrichment.Enabled = b
		}
	}
	if v := os.Getenv("LLMC_START_TIER"); v != "" {
		c.Enrichment.StartTier = v
	}
	if v := os.Getenv("LLMC_CASCADE"); v != "" {
		c.Enrichment.Cascade = strings.Split(v, ",")
	}
	if v := os.Getenv("LLMC_TICK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Daemon.TickSeconds = n
		}
	}
}

// Validate checks the config for internal consistency, returning a
// ConfigInvalid-classified error (via the caller) on the first problem.
func (c *Config) Validate() error {
	if c.Storage.IndexPath == "" {
		return fmt.Errorf("storage.index_path must not be empty")
	}
	if len(c.Embeddings) == 0 {
		return fmt.Errorf("at least one embeddings profile must be configured")
	}
	for name, p := range c.Embeddings {
		if p.Dim <= 0 {
			return fmt.Errorf("embeddings profile %q: dim must be positive", name)
		}
	}
	if c.Enrichment.Enabled {
		if len(c.Enrichment.Cascade) == 0 {
			return fmt.Errorf("enrichment.cascade must not be empty when enrichment is enabled")
		}
		for _, tier := range c.Enrichment.Cascade {
			if _, ok := c.Enrichment.Backends[tier]; !ok {
				return fmt.Errorf("enrichment.cascade references unknown backend %q", tier)
			}
		}
	}
	if c.Daemon.TickSeconds <= 0 {
		return fmt.Errorf("daemon.tick_seconds must be positive")
	}
	if c.Daemon.IdleBackoffMax < c.Daemon.IdleBackoffBase {
		return fmt.Errorf("daemon.idle_backoff_max must be >= idle_backoff_base")
	}
	return nil
}

// TickInterval returns the daemon's base tick interval as a duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Daemon.TickSeconds) * time.Second
}
