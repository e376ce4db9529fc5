package indexstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"llmc/internal/errs"
)

// EvidenceRange anchors a claim in an Enrichment back to specific lines
// of its span.
type EvidenceRange struct {
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`
}

// Enrichment is the LLM-produced summary and structured fields attached
// to one span.
type Enrichment struct {
	SpanHash     string
	Summary      string
	Inputs       []string
	Outputs      []string
	SideEffects  []string
	Pitfalls     []string
	UsageSnippet string
	Evidence     []EvidenceRange
	ModelID      string
	CreatedAt    time.Time
}

// ValidateEnrichment enforces the persistence invariants an Enrichment
// must satisfy before it is written: a summary of at most 120 words, a
// non-empty model id, and every evidence range falling inside
// [spanStart, spanEnd]. It does not require the input/output/
// side-effect/pitfall lists to be non-empty — a span can genuinely have
// none of those.
func ValidateEnrichment(e Enrichment, spanStart, spanEnd int) error {
	if strings.TrimSpace(e.Summary) == "" {
		return fmt.Errorf("enrichment for %s: summary is required", e.SpanHash)
	}
	if words := len(strings.Fields(e.Summary)); words > 120 {
		return fmt.Errorf("enrichment for %s: summary has %d words, limit is 120", e.SpanHash, words)
	}
	if strings.TrimSpace(e.ModelID) == "" {
		return fmt.Errorf("enrichment for %s: model_id is required", e.SpanHash)
	}
	for _, ev := range e.Evidence {
		if ev.StartLine < spanStart || ev.EndLine > spanEnd || ev.StartLine > ev.EndLine {
			return fmt.Errorf("enrichment for %s: evidence range %d-%d falls outside span %d-%d", e.SpanHash, ev.StartLine, ev.EndLine, spanStart, spanEnd)
		}
	}
	return nil
}

// PutEnrichment validates e against the stored span's line range, then
// upserts it transactionally via the batch writer.
func (s *Store) PutEnrichment(e Enrichment) error {
	var spanStart, spanEnd int
	if err := s.conn().QueryRow(`SELECT start_line, end_line FROM spans WHERE span_hash = ?`, e.SpanHash).Scan(&spanStart, &spanEnd); err != nil {
		if err == sql.ErrNoRows {
			return errs.New(errs.OrphanDetected, "indexstore.PutEnrichment", fmt.Errorf("span %s not found", e.SpanHash))
		}
		return errs.New(errs.StoreBusy, "indexstore.PutEnrichment", err)
	}
	if err := ValidateEnrichment(e, spanStart, spanEnd); err != nil {
		return errs.New(errs.ConfigInvalid, "indexstore.PutEnrichment", err)
	}

	evidenceJSON := encodeEvidence(e.Evidence)
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	err := s.writer.Submit(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO enrichments(span_hash, summary, inputs, outputs, side_effects, pitfalls, usage_snippet, evidence, model_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(span_hash) DO UPDATE SET
				summary=excluded.summary, inputs=excluded.inputs, outputs=excluded.outputs,
				side_effects=excluded.side_effects, pitfalls=excluded.pitfalls,
				usage_snippet=excluded.usage_snippet, evidence=excluded.evidence,
				model_id=excluded.model_id, created_at=excluded.created_at
		`, e.SpanHash, e.Summary, encodeStringSlice(e.Inputs), encodeStringSlice(e.Outputs),
			encodeStringSlice(e.SideEffects), encodeStringSlice(e.Pitfalls), e.UsageSnippet,
			evidenceJSON, e.ModelID, createdAt.Unix())
		return err
	})
	if err != nil {
		return errs.New(errs.StoreBusy, "indexstore.PutEnrichment", err)
	}
	return nil
}

// QueryPendingEnrichments returns up to limit spans that have no
// Enrichment row yet and are not under an active FailureRecord cooldown
// at startTier (the tier the cascade will first attempt), ordered by the
// owning file's mtime descending then span position ascending, so that
// recently-touched files are enriched first. A cooldown at a later
// cascade tier does not block a span here; escalation logic handles
// that once enrichment begins.
func (s *Store) QueryPendingEnrichments(startTier string, limit int) ([]string, error) {
	rows, err := s.conn().Query(`
		SELECT s.span_hash
		FROM spans s
		JOIN files f ON f.id = s.file_id
		LEFT JOIN enrichments e ON e.span_hash = s.span_hash
		LEFT JOIN failure_records fr ON fr.span_hash = s.span_hash AND fr.tier = ?
		WHERE e.span_hash IS NULL
		AND f.tombstoned = 0
		AND (fr.cooldown_until IS NULL OR fr.cooldown_until < ?)
		ORDER BY f.mtime DESC, s.start_line ASC
		LIMIT ?
	`, startTier, time.Now().Unix(), limit)
	if err != nil {
		return nil, errs.New(errs.StoreBusy, "indexstore.QueryPendingEnrichments", err)
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

func encodeEvidence(ranges []EvidenceRange) string {
	if len(ranges) == 0 {
		return "[]"
	}
	b, err := json.Marshal(ranges)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeEvidence(s string) []EvidenceRange {
	if s == "" {
		return nil
	}
	var ranges []EvidenceRange
	if err := json.Unmarshal([]byte(s), &ranges); err != nil {
		return nil
	}
	return ranges
}

// GetEnrichment returns the Enrichment stored for spanHash, or nil if none.
func (s *Store) GetEnrichment(spanHash string) (*Enrichment, error) {
	row := s.conn().QueryRow(`
		SELECT span_hash, summary, inputs, outputs, side_effects, pitfalls, usage_snippet, evidence, model_id, created_at
		FROM enrichments WHERE span_hash = ?`, spanHash)

	var e Enrichment
	var inputs, outputs, sideEffects, pitfalls, evidence string
	var createdAt int64
	if err := row.Scan(&e.SpanHash, &e.Summary, &inputs, &outputs, &sideEffects, &pitfalls, &e.UsageSnippet, &evidence, &e.ModelID, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errs.New(errs.StoreBusy, "indexstore.GetEnrichment", err)
	}
	e.Inputs = decodeStringSlice(inputs)
	e.Outputs = decodeStringSlice(outputs)
	e.SideEffects = decodeStringSlice(sideEffects)
	e.Pitfalls = decodeStringSlice(pitfalls)
	e.Evidence = decodeEvidence(evidence)
	e.CreatedAt = time.Unix(createdAt, 0)
	return &e, nil
}
