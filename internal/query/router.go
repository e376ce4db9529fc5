package query

import (
	"llmc/internal/config"
	"llmc/internal/span"
)

// Router resolves a classified query to an embedding profile, cascade
// start tier, and rerank policy, and doubles as the enrichment
// pipeline's tier-selection seam (internal/enrich.Router).
type Router struct {
	classifier *Classifier
	profiles   map[string]config.EmbeddingProfile
	cascade    []string
	startTier  string
}

func NewRouter(cfg *config.Config) *Router {
	return &Router{
		classifier: NewClassifier(cfg.Routing),
		profiles:   cfg.Embeddings,
		cascade:    cfg.Enrichment.Cascade,
		startTier:  cfg.Enrichment.StartTier,
	}
}

// Route classifies queryText and resolves the full routing decision.
func (r *Router) Route(queryText, toolContext string) RouteDecision {
	cls := r.classifier.Classify(queryText, toolContext)
	return RouteDecision{
		TargetIndexProfile: r.profileFor(cls.Category),
		StartTier:          r.tierFor(cls.Category),
		RerankPolicy:       rerankPolicyFor(cls.Category),
		Classification:     cls,
	}
}

// Explain exposes the decision plus score and runner-up categories, for
// debugging why a query landed where it did.
func (r *Router) Explain(queryText, toolContext string) Explanation {
	decision := r.Route(queryText, toolContext)
	sig := decision.Classification.Signals

	var alts []Alternative
	for _, cat := range []Category{CategoryCode, CategoryDomain, CategoryDocs} {
		if cat == decision.Classification.Category {
			continue
		}
		alts = append(alts, Alternative{Category: cat, Score: alternativeScore(cat, sig)})
	}

	return Explanation{
		Decision:     decision,
		Reason:       decision.Classification.Reason,
		Score:        decision.Classification.Score,
		Alternatives: alts,
	}
}

// alternativeScore reconstructs what score a non-winning category would
// have carried, purely for Explain's observability output.
func alternativeScore(cat Category, sig Signals) float64 {
	switch cat {
	case CategoryCode:
		switch {
		case sig.FencedCodePresent:
			return weightFencedCode
		case sig.CodeStructureRegex:
			return weightCodeStruct
		case sig.CodeKeyword:
			return weightCodeKeyword
		}
	case CategoryDomain:
		switch {
		case sig.ERPKeyword:
			return weightERPKeyword
		case sig.DomainKeyword:
			return weightDomainWord
		}
	}
	return 0
}

// profileFor maps a category to an embedding profile name, preferring a
// profile explicitly named after the category and falling back to
// "default" when none is configured.
func (r *Router) profileFor(cat Category) string {
	if _, ok := r.profiles[string(cat)]; ok {
		return string(cat)
	}
	return "default"
}

// tierFor resolves the cascade start tier for cat. Domain/ERP queries
// skip straight to the cascade's second tier when one exists: ERP
// content (invoices, SKUs, ledger entries) tends to need more context
// than the smallest local model carries, so escalating past it avoids
// a near-certain first-tier miss.
func (r *Router) tierFor(cat Category) string {
	if cat == CategoryDomain && len(r.cascade) > 1 {
		return r.cascade[1]
	}
	return r.startTier
}

// rerankPolicyFor picks which signal the retriever should lean on when
// reordering fused results: docs queries favor their strongest lexical
// matches, domain/ERP queries favor graph-connected entities (a
// SKU or invoice number usually matters because of what it's linked to),
// code queries trust the fusion order as-is.
func rerankPolicyFor(cat Category) string {
	switch cat {
	case CategoryDocs:
		return "lexical_boost"
	case CategoryDomain:
		return "graph_boost"
	default:
		return "none"
	}
}

// StartTier satisfies internal/enrich.Router: classify the span's own
// content the same way a query would be classified, then resolve a
// start tier from the resulting category. filePath is accepted to match
// the interface but unused, since content_language/content_type already
// travel on the span.
func (r *Router) StartTier(sp span.Span, filePath string) string {
	text := string(sp.Content)
	toolContext := ""
	if sp.ContentType == "docs" {
		toolContext = string(CategoryDocs)
	}
	cls := r.classifier.Classify(text, toolContext)
	return r.tierFor(cls.Category)
}
