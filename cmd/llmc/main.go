// Package main implements llmc, the thin query/admin CLI: `search`,
// `status`, and `enrich-now` subcommands that drive a query.Retriever
// and indexstore.Store directly against an on-disk index, without
// requiring llmcd to be running. Wiring mirrors the teacher's
// cmd/nerd/main.go cobra root + PersistentPreRunE pattern.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"llmc/internal/backend"
	"llmc/internal/config"
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
	workspace  string
	toolCtx    string
	jsonOutput bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "llmc",
	Short: "llmc queries and administers a local repository index",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var searchCmd = &cobra.Command{
	Use:   "search [query text]",
	Short: "Run a hybrid search against the index",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the index's lifecycle state and health snapshot",
	RunE:  runStatus,
}

var enrichNowCmd = &cobra.Command{
	Use:   "enrich-now",
	Short: "Run one enrichment cycle and one embedding cycle immediately",
	RunE:  runEnrichNow,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "llmc.yaml", "path to the llmc config file")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "repository to operate on (default: current directory)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print machine-readable JSON instead of text")

	searchCmd.Flags().StringVar(&toolCtx, "tool-context", "", "calling tool/surface, fed to the classifier as an override signal")

	rootCmd.AddCommand(searchCmd, statusCmd, enrichNowCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveWorkspace() (string, error) {
	if workspace != "" {
		return filepath.Abs(workspace)
	}
	return os.Getwd()
}

func openStore(cfg *config.Config, repoPath string) (*indexstore.Store, error) {
	return indexstore.Open(filepath.Join(repoPath, cfg.Storage.IndexPath), logging.Component(logger, "indexstore"))
}

func runSearch(cmd *cobra.Command, args []string) error {
	repoPath, err := resolveWorkspace()
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := openStore(cfg, repoPath)
	if err != nil {
		return fmt.Errorf("open index store: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	router := query.NewRouter(cfg)

	providers := make(map[string]embed.Provider, len(cfg.Embeddings))
	for name, profile := range cfg.Embeddings {
		provider, err := embed.New(ctx, profile, 30*time.Second)
		if err != nil {
			logger.Warn("failed to construct embedding provider, vector search will be skipped for this profile", zap.String("profile", name), zap.Error(err))
			continue
		}
		providers[name] = provider
	}

	retriever := query.NewRetriever(store, router, providers, cfg.Routing)

	queryText := args[0]
	for _, extra := range args[1:] {
		queryText += " " + extra
	}

	resp, err := retriever.Search(ctx, repoPath, queryText, toolCtx)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if jsonOutput {
		return printJSON(resp)
	}
	printSearchResults(queryText, resp)
	return nil
}

func printSearchResults(queryText string, resp query.SearchResponse) {
	fmt.Printf("query: %s\n", queryText)
	fmt.Printf("freshness: %s\n", resp.Freshness)
	if len(resp.Results) == 0 {
		fmt.Println("no results")
		return
	}
	for i, r := range resp.Results {
		symbol := ""
		if r.Span != nil {
			symbol = r.Span.SymbolName
		}
		fmt.Printf("%2d. [%s] score=%.3f %s %s\n", i+1, r.Source, r.Score, r.FilePath, symbol)
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	repoPath, err := resolveWorkspace()
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := openStore(cfg, repoPath)
	if err != nil {
		return fmt.Errorf("open index store: %w", err)
	}
	defer store.Close()

	health, err := store.Health(repoPath)
	if err != nil {
		return fmt.Errorf("health: %w", err)
	}

	if jsonOutput {
		return printJSON(health)
	}

	fmt.Printf("repo:        %s\n", repoPath)
	fmt.Printf("state:       %s\n", health.Status.State)
	fmt.Printf("last indexed: %s (commit %s)\n", health.Status.LastIndexedAt.Format(time.RFC3339), health.Status.LastIndexedCommit)
	if health.Status.LastError != "" {
		fmt.Printf("last error:  %s\n", health.Status.LastError)
	}
	fmt.Printf("files:       %d\n", health.Stats.Files)
	fmt.Printf("spans:       %d (enriched %d, embedded %d, failing %d)\n",
		health.Stats.Spans, health.Stats.EnrichedSpans, health.Stats.EmbeddedSpans, health.Stats.FailingSpans)
	fmt.Printf("entities:    %d\n", health.Stats.Entities)
	fmt.Printf("relations:   %d\n", health.Stats.Relations)
	fmt.Printf("pending:     %d enrichments, %d embeddings\n", health.Stats.PendingEnrichments, health.Stats.PendingEmbeddings)
	return nil
}

// runEnrichNow drives one enrichment cycle and one embedding cycle
// synchronously, for operators who want the index caught up without
// waiting for llmcd's next tick or running the daemon at all.
func runEnrichNow(cmd *cobra.Command, args []string) error {
	repoPath, err := resolveWorkspace()
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := openStore(cfg, repoPath)
	if err != nil {
		return fmt.Errorf("open index store: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(cfg.Daemon.PhaseTimeoutSeconds)*time.Second)
	defer cancel()

	var enrichResult enrich.Result
	if cfg.Enrichment.Enabled {
		router := query.NewRouter(cfg)
		adapters := backend.Cascade(ctx, cfg, logger)
		wrapped := make([]backend.Adapter, 0, len(adapters))
		for _, adapter := range adapters {
			bc := cfg.Enrichment.Backends[adapter.Tier()]
			wrapped = append(wrapped, reliability.New(adapter, reliability.Config{
				RPM: bc.RPM, TPM: bc.TPM,
				DailyUSDCap: bc.DailyUSDCap, MonthlyUSDCap: bc.MonthlyUSDCap,
				CostPer1KTokensUSD: bc.CostPer1KTokensUSD,
			}, logger))
		}
		pipeline := enrich.New(store, enrich.NewCascade(wrapped), cfg.Enrichment, repoPath, router, logger)
		enrichResult, err = pipeline.RunCycle(ctx)
		if err != nil {
			logger.Warn("enrichment cycle returned an error", zap.Error(err))
		}
	}

	providers := make(map[string]embed.Provider, len(cfg.Embeddings))
	for name, profile := range cfg.Embeddings {
		provider, provErr := embed.New(ctx, profile, 30*time.Second)
		if provErr != nil {
			logger.Warn("failed to construct embedding provider, skipping profile", zap.String("profile", name), zap.Error(provErr))
			continue
		}
		providers[name] = provider
	}
	var embedResult embed.Result
	if len(providers) > 0 {
		embedPipeline := embed.NewPipeline(store, providers, cfg.Embeddings, cfg.Enrichment.BatchSize, repoPath, logger)
		embedResult, err = embedPipeline.RunCycle(ctx, cfg.Enrichment.MaxSpansPerCycle)
		if err != nil {
			logger.Warn("embedding cycle returned an error", zap.Error(err))
		}
	}

	if jsonOutput {
		return printJSON(struct {
			Enriched enrich.Result `json:"enriched"`
			Embedded embed.Result  `json:"embedded"`
		}{enrichResult, embedResult})
	}

	fmt.Printf("enriched: %d/%d spans (%d failed, %d batches fell back)\n",
		enrichResult.SpansEnriched, enrichResult.SpansConsidered, enrichResult.SpansFailed, enrichResult.BatchesFellBack)
	fmt.Printf("embedded: %d spans (%d invalidated)\n", embedResult.Embedded, embedResult.Invalidated)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
