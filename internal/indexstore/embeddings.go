package indexstore

import (
	"database/sql"
	"encoding/binary"
	"math"
	"time"

	"llmc/internal/errs"
)

// Embedding is one stored vector for a (span, profile) pair.
type Embedding struct {
	SpanHash   string
	Profile    string
	Vector     []float32
	ProviderID string
	CreatedAt  time.Time
}

// EncodeVector serializes a float32 vector to a little-endian byte blob.
// Little-endian is fixed explicitly rather than left to host byte order,
// so the same float32 value always encodes to the same bytes regardless
// of which machine wrote it.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector is the inverse of EncodeVector.
func DecodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// PutEmbedding upserts the embedding for (spanHash, profile). Writing a
// new embedding for a profile whose dimension differs from any stored
// embedding under the same profile is an error: callers that rotate a
// profile's model must pick a new profile name.
func (s *Store) PutEmbedding(e Embedding) error {
	var existingDim int
	err := s.conn().QueryRow(`SELECT dim FROM embeddings WHERE profile = ? LIMIT 1`, e.Profile).Scan(&existingDim)
	if err != nil && err != sql.ErrNoRows {
		return errs.New(errs.StoreBusy, "indexstore.PutEmbedding", err)
	}
	if err == nil && existingDim != len(e.Vector) {
		return errs.New(errs.ConfigInvalid, "indexstore.PutEmbedding", errDimMismatch(e.Profile, existingDim, len(e.Vector)))
	}

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	blob := EncodeVector(e.Vector)

	writeErr := s.writer.Submit(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO embeddings(span_hash, profile, vector_bytes, dim, provider_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(span_hash, profile) DO UPDATE SET
				vector_bytes=excluded.vector_bytes, dim=excluded.dim,
				provider_id=excluded.provider_id, created_at=excluded.created_at
		`, e.SpanHash, e.Profile, blob, len(e.Vector), e.ProviderID, createdAt.Unix())
		return err
	})
	if writeErr != nil {
		return errs.New(errs.StoreBusy, "indexstore.PutEmbedding", writeErr)
	}
	return nil
}

// InvalidateProfile deletes every stored embedding under profile. Called
// when a profile's model or dimension changes in configuration, so stale
// vectors are never mixed with fresh ones under the same profile name.
func (s *Store) InvalidateProfile(profile string) (int, error) {
	var removed int
	err := s.writer.Submit(func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM embeddings WHERE profile = ?`, profile)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		removed = int(n)
		return nil
	})
	if err != nil {
		return 0, errs.New(errs.StoreBusy, "indexstore.InvalidateProfile", err)
	}
	return removed, nil
}

// QueryPendingEmbeddings returns up to limit span hashes of live files
// that have no Embedding yet under profile, whether or not they have an
// Enrichment.
func (s *Store) QueryPendingEmbeddings(profile string, limit int) ([]string, error) {
	rows, err := s.conn().Query(`
		SELECT s.span_hash
		FROM spans s
		JOIN files f ON f.id = s.file_id
		LEFT JOIN embeddings emb ON emb.span_hash = s.span_hash AND emb.profile = ?
		WHERE emb.span_hash IS NULL AND f.tombstoned = 0
		ORDER BY f.mtime DESC, s.start_line ASC
		LIMIT ?
	`, profile, limit)
	if err != nil {
		return nil, errs.New(errs.StoreBusy, "indexstore.QueryPendingEmbeddings", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

func errDimMismatch(profile string, existing, got int) error {
	return &dimMismatchError{profile, existing, got}
}

type dimMismatchError struct {
	profile        string
	existing, got int
}

func (e *dimMismatchError) Error() string {
	return "profile " + e.profile + " already has embeddings of a different dimension; rotate to a new profile name instead"
}
