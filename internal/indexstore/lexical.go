package indexstore

import (
	"llmc/internal/errs"
)

// LexicalResult is one hit from SearchLexical.
type LexicalResult struct {
	SpanHash string
	Rank     float64
}

// SearchLexical runs query against the standalone spans_fts table,
// returning up to k span hashes ordered by FTS5's bm25 rank (more
// negative is a better match, per SQLite's FTS5 convention — callers
// should sort ascending).
func (s *Store) SearchLexical(query string, k int) ([]LexicalResult, error) {
	rows, err := s.conn().Query(`
		SELECT span_hash, bm25(spans_fts) AS rank
		FROM spans_fts
		WHERE spans_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, k)
	if err != nil {
		return nil, errs.New(errs.ParseError, "indexstore.SearchLexical", err)
	}
	defer rows.Close()

	var out []LexicalResult
	for rows.Next() {
		var r LexicalResult
		if err := rows.Scan(&r.SpanHash, &r.Rank); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
