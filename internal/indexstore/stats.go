package indexstore

import "llmc/internal/errs"

// Stats is a point-in-time count of how complete the index is.
type Stats struct {
	Files               int
	Spans               int
	EnrichedSpans       int
	EmbeddedSpans       int
	Entities            int
	Relations           int
	PendingEnrichments  int
	PendingEmbeddings   int // spans with no embedding under any profile
	FailingSpans        int
}

// Stats computes the current Stats snapshot for this store.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	queries := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM files WHERE tombstoned = 0`, &st.Files},
		{`SELECT COUNT(*) FROM spans`, &st.Spans},
		{`SELECT COUNT(*) FROM enrichments`, &st.EnrichedSpans},
		{`SELECT COUNT(DISTINCT span_hash) FROM embeddings`, &st.EmbeddedSpans},
		{`SELECT COUNT(*) FROM entities`, &st.Entities},
		{`SELECT COUNT(*) FROM relations`, &st.Relations},
		{`SELECT COUNT(*) FROM spans s LEFT JOIN enrichments e ON e.span_hash = s.span_hash WHERE e.span_hash IS NULL`, &st.PendingEnrichments},
		{`SELECT COUNT(*) FROM spans s WHERE NOT EXISTS (SELECT 1 FROM embeddings emb WHERE emb.span_hash = s.span_hash)`, &st.PendingEmbeddings},
		{`SELECT COUNT(DISTINCT span_hash) FROM failure_records`, &st.FailingSpans},
	}
	for _, q := range queries {
		if err := s.conn().QueryRow(q.query).Scan(q.dest); err != nil {
			return Stats{}, errs.New(errs.StoreBusy, "indexstore.Stats", err)
		}
	}
	return st, nil
}

// Health reports per-repo IndexStatus alongside Stats, the composite view
// an operator or the CLI's status command wants in one call.
type Health struct {
	Status IndexStatus
	Stats  Stats
}

func (s *Store) Health(repoPath string) (Health, error) {
	status, err := s.GetIndexStatus(repoPath)
	if err != nil {
		return Health{}, err
	}
	stats, err := s.Stats()
	if err != nil {
		return Health{}, err
	}
	return Health{Status: status, Stats: stats}, nil
}
