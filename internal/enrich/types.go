// Package enrich implements the enrichment pipeline: selecting spans
// lacking an Enrichment, routing them through the tier cascade with
// escalation and batching, and persisting validated results.
package enrich

import (
	"llmc/internal/backend"
	"llmc/internal/span"
)

// Router resolves the cascade's starting tier for a span, by the same
// classifier/router logic used for queries. Implemented by
// internal/query; a nil Router falls back to the pipeline's configured
// default start tier.
type Router interface {
	StartTier(sp span.Span, filePath string) string
}

// Cascade is one ordered tier of the enrichment cascade: a name (matching
// an entry in config's enrichment.cascade list) paired with the adapter
// that serves it. Adapters are expected to already be wrapped by
// internal/reliability.Middleware by the caller that assembles the
// cascade, so the pipeline itself never deals with rate limits, retries,
// or circuit state directly.
type Cascade struct {
	Names    []string
	Adapters map[string]backend.Adapter
}

// NewCascade builds a Cascade from the ordered adapter list backend.Cascade
// returns, keyed by each adapter's own Tier().
func NewCascade(adapters []backend.Adapter) Cascade {
	c := Cascade{Adapters: make(map[string]backend.Adapter, len(adapters))}
	for _, a := range adapters {
		tier := a.Tier()
		c.Names = append(c.Names, tier)
		c.Adapters[tier] = a
	}
	return c
}

func (c Cascade) next(tier string) (string, bool) {
	for i, name := range c.Names {
		if name == tier && i+1 < len(c.Names) {
			return c.Names[i+1], true
		}
	}
	return "", false
}

// Result summarizes one RunCycle invocation.
type Result struct {
	SpansConsidered int
	SpansEnriched   int
	SpansFailed     int
	BatchesSent     int
	BatchesFellBack int
}
