package indexstore

import (
	"math"
	"sort"

	"llmc/internal/errs"
)

// VectorResult is one hit from SearchVector.
type VectorResult struct {
	SpanHash   string
	Similarity float64
}

// maxBruteForceCandidates bounds the plain (non-ANN) scan path: beyond
// this many rows under a profile, a full scan stops being interactive,
// so SearchVector narrows the candidate set with a lexical prefilter
// first instead.
const maxBruteForceCandidates = 2000

// SearchVector returns the k span hashes with highest cosine similarity
// to queryVec under profile. When the profile holds more than
// maxBruteForceCandidates embeddings and prefilterQuery is non-empty, the
// candidate set is narrowed to the top lexical matches first.
func (s *Store) SearchVector(profile string, queryVec []float32, k int, prefilterQuery string) ([]VectorResult, error) {
	var total int
	if err := s.conn().QueryRow(`SELECT COUNT(*) FROM embeddings WHERE profile = ?`, profile).Scan(&total); err != nil {
		return nil, errs.New(errs.StoreBusy, "indexstore.SearchVector", err)
	}

	var candidateFilter map[string]bool
	if total > maxBruteForceCandidates && prefilterQuery != "" {
		lexical, err := s.SearchLexical(prefilterQuery, maxBruteForceCandidates)
		if err != nil {
			return nil, err
		}
		candidateFilter = make(map[string]bool, len(lexical))
		for _, r := range lexical {
			candidateFilter[r.SpanHash] = true
		}
	}

	rows, err := s.conn().Query(`SELECT span_hash, vector_bytes FROM embeddings WHERE profile = ?`, profile)
	if err != nil {
		return nil, errs.New(errs.StoreBusy, "indexstore.SearchVector", err)
	}
	defer rows.Close()

	var results []VectorResult
	for rows.Next() {
		var spanHash string
		var blob []byte
		if err := rows.Scan(&spanHash, &blob); err != nil {
			return nil, err
		}
		if candidateFilter != nil && !candidateFilter[spanHash] {
			continue
		}
		sim := cosineSimilarity(queryVec, DecodeVector(blob))
		results = append(results, VectorResult{SpanHash: spanHash, Similarity: sim})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
