package enrich

import "llmc/internal/span"

// groupAdjacent partitions spans (already ordered by file mtime desc,
// then span position asc per QueryPendingEnrichments) into runs from the
// same file whose consecutive members are within maxLineGap lines of
// each other. A maxLineGap of 0 treats every span as its own group of
// one.
func groupAdjacent(spans []pendingSpan, maxLineGap int) [][]pendingSpan {
	var groups [][]pendingSpan
	for _, sp := range spans {
		if len(groups) > 0 {
			last := groups[len(groups)-1]
			prev := last[len(last)-1]
			if prev.FilePath == sp.FilePath && maxLineGap > 0 && sp.Start-prev.End <= maxLineGap {
				groups[len(groups)-1] = append(last, sp)
				continue
			}
		}
		groups = append(groups, []pendingSpan{sp})
	}
	return groups
}

// spanOf reconstructs enough of a span.Span for Router.StartTier from a
// pendingSpan, which the batching/selection step already flattened.
// ContentType is not carried and is left empty.
func spanOf(p pendingSpan) span.Span {
	return span.Span{
		SpanHash:        p.Hash,
		Kind:            span.Kind(p.Kind),
		SymbolName:      p.Symbol,
		StartLine:       p.Start,
		EndLine:         p.End,
		Content:         []byte(p.Content),
		ContentLanguage: p.ContentLanguage,
	}
}
