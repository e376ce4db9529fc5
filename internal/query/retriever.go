package query

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"llmc/internal/config"
	"llmc/internal/embed"
	"llmc/internal/graph"
	"llmc/internal/indexstore"
)

// Retriever runs a hybrid search: vector + lexical + graph steps,
// fused into a single ranked, deduplicated result list.
type Retriever struct {
	store     *indexstore.Store
	router    *Router
	providers map[string]embed.Provider
	cfg       config.RoutingConfig
}

func NewRetriever(store *indexstore.Store, router *Router, providers map[string]embed.Provider, cfg config.RoutingConfig) *Retriever {
	return &Retriever{store: store, router: router, providers: providers, cfg: cfg}
}

var identifierPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_.]{2,}`)

var relationPhrases = map[string]graph.EdgeType{
	"who calls":   graph.EdgeCalls,
	"calls":       graph.EdgeCalls,
	"where_used":  graph.EdgeCalls,
	"called by":   graph.EdgeCalls,
	"extends":     graph.EdgeExtends,
	"inherits":    graph.EdgeExtends,
	"imports":     graph.EdgeImports,
	"imported by": graph.EdgeImports,
}

// Search runs all three retrieval steps, fuses them, and gates the
// response on index freshness.
func (r *Retriever) Search(ctx context.Context, repoPath, queryText, toolContext string) (SearchResponse, error) {
	decision := r.router.Route(queryText, toolContext)

	freshness, err := checkFreshness(r.store, repoPath)
	if err != nil {
		return SearchResponse{}, err
	}

	fused := map[string]*Result{}

	if err := r.runVectorStep(ctx, decision, queryText, fused); err != nil {
		return SearchResponse{}, err
	}
	if err := r.runLexicalStep(queryText, fused); err != nil {
		return SearchResponse{}, err
	}
	if err := r.runGraphStep(queryText, fused); err != nil {
		return SearchResponse{}, err
	}

	results := make([]Result, 0, len(fused))
	for _, res := range fused {
		results = append(results, *res)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	for i := range results {
		sp, filePath, err := r.store.GetSpanByHash(results[i].SpanHash)
		if err != nil {
			continue
		}
		results[i].Span = sp
		results[i].FilePath = filePath
	}

	return SearchResponse{Results: results, Freshness: freshness}, nil
}

func (r *Retriever) runVectorStep(ctx context.Context, decision RouteDecision, queryText string, fused map[string]*Result) error {
	provider, ok := r.providers[decision.TargetIndexProfile]
	if !ok {
		return nil
	}
	vec, err := provider.Embed(ctx, queryText)
	if err != nil {
		return nil // an embedding failure degrades to lexical+graph, not a hard error
	}
	k := r.cfg.VectorTopK
	if k <= 0 {
		k = 20
	}
	hits, err := r.store.SearchVector(decision.TargetIndexProfile, vec, k, queryText)
	if err != nil {
		return err
	}
	for _, h := range hits {
		addFusionScore(fused, h.SpanHash, r.cfg.FusionAlpha*h.Similarity, SourceVector)
	}
	return nil
}

func (r *Retriever) runLexicalStep(queryText string, fused map[string]*Result) error {
	k := r.cfg.LexicalTopK
	if k <= 0 {
		k = 20
	}
	hits, err := r.store.SearchLexical(queryText, k)
	if err != nil {
		return nil // malformed FTS query degrades to vector+graph only
	}
	for _, h := range hits {
		// bm25 rank is negative-is-better; fold it into a positive
		// contribution so it composes additively with the other steps.
		addFusionScore(fused, h.SpanHash, r.cfg.FusionBeta*(1/(1+(-h.Rank))), SourceLexical)
	}
	return nil
}

// runGraphStep expands from any entity the query appears to name (fuzzy
// match against known entity ids), 1-hop by default and 2-hop once the
// query mentions enough distinct identifiers to count as "complex",
// optionally filtered to a named relation kind (e.g. "who calls X").
func (r *Retriever) runGraphStep(queryText string, fused map[string]*Result) error {
	tokens := identifierPattern.FindAllString(queryText, -1)
	if len(tokens) == 0 {
		return nil
	}

	entities, err := r.store.AllEntities()
	if err != nil {
		return nil
	}
	matched := fuzzyMatchEntities(tokens, entities)
	if len(matched) == 0 {
		return nil
	}

	hops := 1
	if len(tokens) >= r.cfg.GraphHopThreshold {
		hops = 2
	}
	edgeFilter := relationFilter(queryText)

	for _, e := range matched {
		neighbors, err := r.store.Neighbors(e.ID, hops, edgeFilter)
		if err != nil {
			continue
		}
		near := map[string]bool{}
		if hops > 1 {
			if first, err := r.store.Neighbors(e.ID, 1, edgeFilter); err == nil {
				for _, n := range first {
					near[n.ID] = true
				}
			}
		}
		for _, n := range neighbors {
			distance := 1.0
			if hops > 1 && !near[n.ID] {
				distance = 2
			}
			hash, path, err := r.spanHashForEntity(n)
			if err != nil || hash == "" {
				continue
			}
			addFusionScore(fused, hash, r.cfg.FusionGamma*(1/distance), SourceGraph)
			_ = path
		}
	}
	return nil
}

// fuzzyMatchEntities matches query tokens against entity ids by
// case-insensitive substring containment on the symbol-name suffix
// (the part after "#"), grounded on the teacher's sparse.go keyword
// extraction tolerating partial identifier matches rather than
// requiring exact equality.
func fuzzyMatchEntities(tokens []string, entities []graph.Entity) []graph.Entity {
	var out []graph.Entity
	for _, e := range entities {
		name := e.ID
		if idx := strings.LastIndex(e.ID, "#"); idx >= 0 {
			name = e.ID[idx+1:]
		}
		lowerName := strings.ToLower(name)
		for _, tok := range tokens {
			lowerTok := strings.ToLower(tok)
			if strings.Contains(lowerName, lowerTok) || strings.Contains(lowerTok, lowerName) {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

func relationFilter(queryText string) []graph.EdgeType {
	lower := strings.ToLower(queryText)
	for phrase, edgeType := range relationPhrases {
		if strings.Contains(lower, phrase) {
			return []graph.EdgeType{edgeType}
		}
	}
	return nil
}

// spanHashForEntity resolves a graph entity back to the span it was
// declared from, by symbol name within its owning file (entities don't
// carry a span hash directly; they're the symbol-name layer above it).
func (r *Retriever) spanHashForEntity(e graph.Entity) (string, string, error) {
	symbolName := e.ID
	if idx := strings.LastIndex(e.ID, "#"); idx >= 0 {
		symbolName = e.ID[idx+1:]
	}
	if dot := strings.LastIndex(symbolName, "."); dot >= 0 {
		symbolName = symbolName[dot+1:]
	}

	file, err := r.store.GetFile(e.PathRef)
	if err != nil || file == nil {
		return "", "", err
	}
	spans, err := r.store.GetSpansForFile(file.ID)
	if err != nil {
		return "", "", err
	}
	for _, sp := range spans {
		if sp.SymbolName == symbolName {
			return sp.SpanHash, e.PathRef, nil
		}
	}
	return "", "", nil
}

func addFusionScore(fused map[string]*Result, spanHash string, contribution float64, source Source) {
	if existing, ok := fused[spanHash]; ok {
		existing.Score += contribution
		if existing.Source != source {
			existing.Source = SourceHybrid
		}
		return
	}
	fused[spanHash] = &Result{SpanHash: spanHash, Score: contribution, Source: source}
}
