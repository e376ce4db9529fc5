package indexstore

import (
	"database/sql"
	"time"

	"llmc/internal/errs"
	"llmc/internal/span"
)

// OrphanTTL is the default age after which an orphaned enrichment (one
// whose span disappeared from a file) is reaped.
const OrphanTTL = 7 * 24 * time.Hour

// ReplaceSpansForFile diffs spans (freshly extracted from fileID's current
// content) against the spans already stored for that file. New span
// hashes are inserted (plus their spans_fts row); span hashes that no
// longer appear are removed from spans/spans_fts, but their Enrichments
// and Embeddings are left in place — reported back as orphans rather than
// deleted, so that a later structural-only edit (same symbol, shifted
// lines producing the same hash again) can reconnect them. Spec.md §4.4:
// "Enrichments whose spans disappear are NOT deleted immediately."
func (s *Store) ReplaceSpansForFile(fileID int64, spans []span.Span) (orphaned []string, err error) {
	err = s.writer.Submit(func(tx *sql.Tx) error {
		existing := map[string]bool{}
		rows, qErr := tx.Query(`SELECT span_hash FROM spans WHERE file_id = ?`, fileID)
		if qErr != nil {
			return qErr
		}
		for rows.Next() {
			var h string
			if scanErr := rows.Scan(&h); scanErr != nil {
				rows.Close()
				return scanErr
			}
			existing[h] = true
		}
		rows.Close()

		fresh := map[string]bool{}
		for _, sp := range spans {
			fresh[sp.SpanHash] = true
		}

		for hash := range existing {
			if !fresh[hash] {
				if _, err := tx.Exec(`DELETE FROM spans WHERE span_hash = ? AND file_id = ?`, hash, fileID); err != nil {
					return err
				}
				if _, err := tx.Exec(`DELETE FROM spans_fts WHERE span_hash = ?`, hash); err != nil {
					return err
				}
				orphaned = append(orphaned, hash)
			}
		}

		for _, sp := range spans {
			if existing[sp.SpanHash] {
				continue
			}
			metadataJSON := encodeMetadata(sp.Metadata)
			if _, err := tx.Exec(
				`INSERT INTO spans(span_hash, file_id, kind, symbol_name, start_line, end_line, content, content_type, content_language, metadata)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				sp.SpanHash, fileID, string(sp.Kind), sp.SymbolName, sp.StartLine, sp.EndLine, sp.Content, sp.ContentType, sp.ContentLanguage, metadataJSON,
			); err != nil {
				return err
			}
			if _, err := tx.Exec(`INSERT INTO spans_fts(span_hash, content) VALUES (?, ?)`, sp.SpanHash, string(sp.Content)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errs.New(errs.StoreBusy, "indexstore.ReplaceSpansForFile", err)
	}
	return orphaned, nil
}

// ReapOrphanedEnrichments deletes Enrichments and Embeddings for span
// hashes that no longer exist in spans and have not been reconnected
// within OrphanTTL of their enrichment's created_at. The daemon loop
// calls it once per tick.
func (s *Store) ReapOrphanedEnrichments(now time.Time) (reaped int, err error) {
	cutoff := now.Add(-OrphanTTL).Unix()
	err = s.writer.Submit(func(tx *sql.Tx) error {
		res, execErr := tx.Exec(`
			DELETE FROM enrichments
			WHERE created_at < ?
			AND span_hash NOT IN (SELECT span_hash FROM spans)
		`, cutoff)
		if execErr != nil {
			return execErr
		}
		n, _ := res.RowsAffected()
		reaped = int(n)
		_, execErr = tx.Exec(`
			DELETE FROM embeddings
			WHERE created_at < ?
			AND span_hash NOT IN (SELECT span_hash FROM spans)
		`, cutoff)
		return execErr
	})
	if err != nil {
		return 0, errs.New(errs.StoreBusy, "indexstore.ReapOrphanedEnrichments", err)
	}
	return reaped, nil
}

// GetSpanByHash returns the Span stored under hash and the path of its
// owning file, or nil if the span has been orphaned (its span row
// deleted while its Enrichment/Embedding persist, per ReplaceSpansForFile).
func (s *Store) GetSpanByHash(hash string) (*span.Span, string, error) {
	row := s.conn().QueryRow(`
		SELECT s.span_hash, s.file_id, s.kind, s.symbol_name, s.start_line, s.end_line,
		       s.content, s.content_type, s.content_language, s.metadata, f.path
		FROM spans s JOIN files f ON f.id = s.file_id
		WHERE s.span_hash = ?`, hash)

	var sp span.Span
	var kind, metadataJSON, path string
	var content []byte
	if err := row.Scan(&sp.SpanHash, &sp.FileID, &kind, &sp.SymbolName, &sp.StartLine, &sp.EndLine,
		&content, &sp.ContentType, &sp.ContentLanguage, &metadataJSON, &path); err != nil {
		if err == sql.ErrNoRows {
			return nil, "", nil
		}
		return nil, "", errs.New(errs.StoreBusy, "indexstore.GetSpanByHash", err)
	}
	sp.Kind = span.Kind(kind)
	sp.Content = content
	sp.Metadata = decodeMetadata(metadataJSON)
	return &sp, path, nil
}

// GetSpansForFile returns every Span currently stored for fileID.
func (s *Store) GetSpansForFile(fileID int64) ([]span.Span, error) {
	rows, err := s.conn().Query(`
		SELECT span_hash, kind, symbol_name, start_line, end_line, content, content_type, content_language, metadata
		FROM spans WHERE file_id = ?`, fileID)
	if err != nil {
		return nil, errs.New(errs.StoreBusy, "indexstore.GetSpansForFile", err)
	}
	defer rows.Close()

	var out []span.Span
	for rows.Next() {
		var sp span.Span
		var kind, metadataJSON string
		var content []byte
		if err := rows.Scan(&sp.SpanHash, &kind, &sp.SymbolName, &sp.StartLine, &sp.EndLine, &content, &sp.ContentType, &sp.ContentLanguage, &metadataJSON); err != nil {
			return nil, err
		}
		sp.Kind = span.Kind(kind)
		sp.Content = content
		sp.FileID = fileID
		sp.Metadata = decodeMetadata(metadataJSON)
		out = append(out, sp)
	}
	return out, nil
}
