package enrich

import (
	"context"
	"time"

	"go.uber.org/zap"

	"llmc/internal/backend"
	"llmc/internal/config"
	"llmc/internal/errs"
	"llmc/internal/indexstore"
)

// Pipeline selects pending spans and runs them through the tier
// cascade, batching adjacent spans where it can and falling back to
// per-span requests when a batch doesn't parse cleanly.
type Pipeline struct {
	store    *indexstore.Store
	cascade  Cascade
	cfg      config.EnrichmentConfig
	repoPath string
	router   Router
	logger   *zap.Logger
	metrics  *metricsWriter
}

func New(store *indexstore.Store, cascade Cascade, cfg config.EnrichmentConfig, repoPath string, router Router, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		store:    store,
		cascade:  cascade,
		cfg:      cfg,
		repoPath: repoPath,
		router:   router,
		logger:   logger,
		metrics:  newMetricsWriter(repoPath),
	}
}

// RunCycle selects up to cfg.MaxSpansPerCycle pending spans, groups
// adjacent ones into batches, and drives each group through the cascade.
func (p *Pipeline) RunCycle(ctx context.Context) (Result, error) {
	var res Result
	if !p.cfg.Enabled || len(p.cascade.Names) == 0 {
		return res, nil
	}

	startTier := p.cfg.StartTier
	if startTier == "" {
		startTier = p.cascade.Names[0]
	}

	hashes, err := p.store.QueryPendingEnrichments(startTier, p.cfg.MaxSpansPerCycle)
	if err != nil {
		return res, err
	}

	spans := make([]pendingSpan, 0, len(hashes))
	for _, h := range hashes {
		sp, path, err := p.store.GetSpanByHash(h)
		if err != nil {
			return res, err
		}
		if sp == nil {
			continue // orphaned since selection; skip silently
		}
		if cooling, err := p.store.IsCoolingDown(h, startTier); err == nil && cooling {
			continue
		}
		spans = append(spans, pendingSpan{
			Hash:            sp.SpanHash,
			FilePath:        path,
			Kind:            string(sp.Kind),
			Symbol:          sp.SymbolName,
			ContentLanguage: sp.ContentLanguage,
			Start:           sp.StartLine,
			End:             sp.EndLine,
			Content:         string(sp.Content),
		})
	}
	res.SpansConsidered = len(spans)

	for _, group := range groupAdjacent(spans, p.cfg.MaxLineGap) {
		if err := ctx.Err(); err != nil {
			return res, errs.New(errs.Cancelled, "enrich.Pipeline.RunCycle", err)
		}

		tier := startTier
		if p.router != nil && len(group) > 0 {
			// A batch resolves its tier from its first member; the
			// batching step groups adjacent spans of the same file, and
			// the other members are not classified.
			tier = p.router.StartTier(spanOf(group[0]), group[0].FilePath)
		}

		if len(group) >= p.cfg.BatchSize && p.cfg.BatchSize >= 2 {
			n, err := p.runBatch(ctx, group, tier)
			res.BatchesSent++
			res.SpansEnriched += n
			if err != nil {
				res.BatchesFellBack++
				fb := p.runIndividually(ctx, group, tier)
				res.SpansEnriched += fb.SpansEnriched
				res.SpansFailed += fb.SpansFailed
			}
			continue
		}

		fb := p.runIndividually(ctx, group, tier)
		res.SpansEnriched += fb.SpansEnriched
		res.SpansFailed += fb.SpansFailed
	}

	p.logger.Debug("enrichment cycle complete",
		zap.Int("considered", res.SpansConsidered),
		zap.Int("enriched", res.SpansEnriched),
		zap.Int("failed", res.SpansFailed),
		zap.Int("batches_sent", res.BatchesSent),
		zap.Int("batches_fell_back", res.BatchesFellBack),
	)
	return res, nil
}

// runBatch sends group as one batch prompt at tier. Returns the number of
// spans successfully enriched and a non-nil error if the batch as a whole
// must fall back to per-span requests (malformed response shape or a
// cascade-level failure before any response was parsed).
func (p *Pipeline) runBatch(ctx context.Context, group []pendingSpan, tier string) (int, error) {
	adapter, ok := p.cascade.Adapters[tier]
	if !ok {
		return 0, errs.New(errs.ConfigInvalid, "enrich.Pipeline.runBatch", errUnknownTier(tier))
	}

	prompt := buildBatchPrompt(group)
	start := time.Now()
	out, genErr := adapter.Generate(ctx, prompt, backend.Params{SystemPrompt: enrichSystemPrompt, MaxTokens: 2048})
	duration := time.Since(start).Milliseconds()

	if genErr != nil {
		p.recordMetric(metricsEvent{SpanHash: "batch", Tier: tier, DurationMS: duration, Success: false, Reason: string(errs.KindOf(genErr))})
		return 0, genErr
	}

	wires, err := parseBatchResponse("enrich.Pipeline.runBatch", out.Text, len(group))
	if err != nil {
		p.recordMetric(metricsEvent{SpanHash: "batch", Tier: tier, DurationMS: duration, Success: false, Reason: "batch_shape_mismatch"})
		return 0, err
	}

	enriched := 0
	for i, sp := range group {
		e := wires[i].toEnrichment(sp.Hash, adapter.Tier())
		if err := p.store.PutEnrichment(e); err != nil {
			p.recordMetric(metricsEvent{SpanHash: sp.Hash, Tier: tier, DurationMS: duration, Success: false, Reason: "persist_failed"})
			continue
		}
		p.store.ClearFailure(sp.Hash, tier)
		p.recordMetric(metricsEvent{SpanHash: sp.Hash, Tier: tier, TokensIn: out.TokensIn / len(group), TokensOut: out.TokensOut / len(group), DurationMS: duration, Success: true})
		enriched++
	}
	return enriched, nil
}

// runIndividually drives each span in group through the cascade one at a
// time, escalating tiers on retryable or quota exhaustion and recording a
// FailureRecord otherwise.
func (p *Pipeline) runIndividually(ctx context.Context, group []pendingSpan, startTier string) Result {
	var res Result
	for _, sp := range group {
		if p.enrichOne(ctx, sp, startTier) {
			res.SpansEnriched++
		} else {
			res.SpansFailed++
		}
	}
	return res
}

func (p *Pipeline) enrichOne(ctx context.Context, sp pendingSpan, startTier string) bool {
	tier := startTier
	for {
		adapter, ok := p.cascade.Adapters[tier]
		if !ok {
			return false
		}

		prompt := buildSinglePrompt(sp)
		start := time.Now()
		out, genErr := adapter.Generate(ctx, prompt, backend.Params{SystemPrompt: enrichSystemPrompt, MaxTokens: 1024})
		duration := time.Since(start).Milliseconds()

		if genErr == nil {
			w, parseErr := parseSingleResponse("enrich.Pipeline.enrichOne", out.Text)
			if parseErr == nil {
				e := w.toEnrichment(sp.Hash, adapter.Tier())
				if putErr := p.store.PutEnrichment(e); putErr != nil {
					p.recordMetric(metricsEvent{SpanHash: sp.Hash, Tier: tier, DurationMS: duration, Success: false, Reason: "persist_failed"})
					p.store.RecordFailure(sp.Hash, tier, "persist_failed")
					return false
				}
				p.store.ClearFailure(sp.Hash, tier)
				p.recordMetric(metricsEvent{SpanHash: sp.Hash, Tier: tier, Model: adapter.Tier(), TokensIn: out.TokensIn, TokensOut: out.TokensOut, DurationMS: duration, Success: true})
				return true
			}
			genErr = parseErr
		}

		kind := errs.KindOf(genErr)
		p.recordMetric(metricsEvent{SpanHash: sp.Hash, Tier: tier, DurationMS: duration, Success: false, Reason: string(kind)})

		escalates := errs.Retryable(kind) || kind == errs.QuotaExhausted
		if escalates {
			if next, ok := p.cascade.next(tier); ok {
				p.store.RecordFailure(sp.Hash, tier, string(kind))
				tier = next
				continue
			}
		}

		// Either a fatal error, or the cascade is exhausted: record a
		// FailureRecord and move on without blocking the rest of the
		// cycle.
		p.store.RecordFailure(sp.Hash, tier, string(kind))
		return false
	}
}

func (p *Pipeline) recordMetric(e metricsEvent) {
	p.metrics.record(e)
}

type errUnknownTier string

func (e errUnknownTier) Error() string { return "enrich: unknown cascade tier " + string(e) }
