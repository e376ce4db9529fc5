// Package query classifies an incoming query as code, domain/ERP, or
// docs; routes it to the right embedding profile and cascade start
// tier; then assembles a fused vector+lexical+graph result set gated
// on index freshness.
package query

import "llmc/internal/span"

// Category is the classifier's coarse verdict.
type Category string

const (
	CategoryCode   Category = "code"
	CategoryDomain Category = "domain"
	CategoryDocs   Category = "docs"
)

// Signals are the boolean classifier inputs: lexical and structural
// cues cheap enough to compute without a model call.
type Signals struct {
	ToolContextOverride string // non-empty means the caller already decided
	FencedCodePresent   bool
	CodeStructureRegex  bool
	ERPKeyword          bool
	CodeKeyword         bool
	DomainKeyword       bool
}

// Classification is the classifier's verdict plus the evidence behind
// it, returned to the caller so Router.Explain can report it.
type Classification struct {
	Category Category
	Reason   string
	Score    float64
	Signals  Signals
}

// RouteDecision is what the Router picks for one query: which
// embedding profile to search, which cascade tier to start enrichment
// from, and which rerank policy the retriever should apply.
type RouteDecision struct {
	TargetIndexProfile string
	StartTier          string
	RerankPolicy       string
	Classification      Classification
}

// Alternative is a runner-up category considered during classification,
// surfaced by Explain for observability.
type Alternative struct {
	Category Category
	Score    float64
}

// Explanation is Router.Explain's return value: the decision made plus
// enough of the classifier's reasoning to debug a misrouted query.
type Explanation struct {
	Decision     RouteDecision
	Reason       string
	Score        float64
	Alternatives []Alternative
}

// Freshness tags a retrieval result against the index's staleness
// gate: whether the commit it was built from is still current.
type Freshness string

const (
	FreshnessReady Freshness = "ready"
	FreshnessStale Freshness = "stale"
)

// Source names which retrieval step(s) contributed a result.
type Source string

const (
	SourceVector Source = "vector"
	SourceLexical Source = "lexical"
	SourceGraph   Source = "graph"
	SourceHybrid  Source = "hybrid"
)

// Result is one fused hit from Retriever.Search.
type Result struct {
	SpanHash string
	FilePath string
	Span     *span.Span
	Score    float64
	Source   Source
}

// SearchResponse is the retriever's top-level return value: the fused
// results plus the freshness verdict the caller should surface.
type SearchResponse struct {
	Results   []Result
	Freshness Freshness
}
