// Package main implements llmcd, the daemon entrypoint: one Daemon
// Loop per registered repository, ticking detectChanges -> apply ->
// enrich -> embed -> healthSnapshot until interrupted. Wiring mirrors
// the teacher's cmd/nerd/main.go: a cobra root command, a
// PersistentPreRunE that builds the zap logger under --verbose, and a
// PersistentPostRun that flushes it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"llmc/internal/backend"
	"llmc/internal/config"
	"llmc/internal/daemon"
	"llmc/internal/embed"
	"llmc/internal/enrich"
	"llmc/internal/indexstore"
	"llmc/internal/logging"
	"llmc/internal/query"
	"llmc/internal/reliability"
)

var (
	verbose    bool
	configPath string
	repos      []string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "llmcd",
	Short: "llmcd indexes and re-indexes repositories in the background",
	Long: `llmcd is the daemon half of llmc: it runs one Daemon Loop per
registered repository, watching for filesystem changes and periodically
re-running detectChanges, apply, enrich, and embed so the index stays
current without a human invoking anything.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runDaemon,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "llmc.yaml", "path to the llmc config file")
	rootCmd.Flags().StringArrayVarP(&repos, "repo", "r", nil, "repository to watch (repeatable; defaults to the current directory)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if len(repos) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getwd: %w", err)
		}
		repos = []string{cwd}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, repoPath := range repos {
		repoPath := repoPath
		g.Go(func() error {
			return runRepoLoop(gctx, repoPath, cfg)
		})
	}
	return g.Wait()
}

// runRepoLoop builds one repository's store, enrichment cascade,
// embedding providers, and router, then drives daemon.Loop.Run until
// ctx is cancelled. Each repo gets its own indexstore.Store handle
// since *indexstore.Store wraps one *sql.DB per index file.
func runRepoLoop(ctx context.Context, repoPath string, cfg *config.Config) error {
	repoLogger := logging.Component(logger, "daemon").With(zap.String("repo", repoPath))

	store, err := indexstore.Open(filepath.Join(repoPath, cfg.Storage.IndexPath), repoLogger)
	if err != nil {
		return fmt.Errorf("open index store for %s: %w", repoPath, err)
	}
	defer store.Close()

	router := query.NewRouter(cfg)

	var enrichPipeline *enrich.Pipeline
	if cfg.Enrichment.Enabled {
		adapters := backend.Cascade(ctx, cfg, repoLogger)
		wrapped := make([]backend.Adapter, 0, len(adapters))
		for _, adapter := range adapters {
			bc := cfg.Enrichment.Backends[adapter.Tier()]
			wrapped = append(wrapped, reliability.New(adapter, reliability.Config{
				RPM:                bc.RPM,
				TPM:                bc.TPM,
				DailyUSDCap:        bc.DailyUSDCap,
				MonthlyUSDCap:      bc.MonthlyUSDCap,
				CostPer1KTokensUSD: bc.CostPer1KTokensUSD,
			}, repoLogger))
		}
		cascade := enrich.NewCascade(wrapped)
		enrichPipeline = enrich.New(store, cascade, cfg.Enrichment, repoPath, router, repoLogger)
	}

	embedPipeline, err := buildEmbedPipeline(ctx, store, cfg, repoPath, repoLogger)
	if err != nil {
		return fmt.Errorf("build embedding pipeline for %s: %w", repoPath, err)
	}

	loop, err := daemon.NewLoop(repoPath, store, cfg, enrichPipeline, embedPipeline, repoLogger)
	if err != nil {
		return fmt.Errorf("start daemon loop for %s: %w", repoPath, err)
	}
	return loop.Run(ctx)
}

// buildEmbedPipeline constructs one embed.Provider per configured
// profile and wires them into an embed.Pipeline. A profile whose
// provider fails to construct (e.g. a local Ollama host that is not
// reachable yet) is skipped with a warning rather than failing the
// whole daemon: the tick loop simply leaves that profile's spans
// unembedded until the provider comes up.
func buildEmbedPipeline(ctx context.Context, store *indexstore.Store, cfg *config.Config, repoPath string, logger *zap.Logger) (*embed.Pipeline, error) {
	providers := make(map[string]embed.Provider, len(cfg.Embeddings))
	for name, profile := range cfg.Embeddings {
		provider, err := embed.New(ctx, profile, 30*time.Second)
		if err != nil {
			logger.Warn("failed to construct embedding provider, skipping profile", zap.String("profile", name), zap.Error(err))
			continue
		}
		providers[name] = provider
	}
	if len(providers) == 0 {
		return nil, nil
	}
	return embed.NewPipeline(store, providers, cfg.Embeddings, cfg.Enrichment.BatchSize, repoPath, logger), nil
}
