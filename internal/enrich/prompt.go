package enrich

import (
	"fmt"
	"strings"

	"llmc/internal/backend"
	"llmc/internal/errs"
	"llmc/internal/indexstore"
)

const enrichSystemPrompt = `You are a code analysis assistant. For each source span you are given, ` +
	`produce a structured JSON summary grounded only in the text provided. Never invent behavior the ` +
	`text does not show. A summary must be at most 120 words.`

// wireEnrichment is the JSON shape the backend is asked to return for
// one span, mirroring the Enrichment row's fields minus span_hash and
// model_id, which the pipeline fills in itself.
type wireEnrichment struct {
	Summary      string               `json:"summary"`
	Inputs       []string             `json:"inputs"`
	Outputs      []string             `json:"outputs"`
	SideEffects  []string             `json:"side_effects"`
	Pitfalls     []string             `json:"pitfalls"`
	UsageSnippet string               `json:"usage_snippet"`
	Evidence     []wireEvidenceRange  `json:"evidence"`
}

type wireEvidenceRange struct {
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`
}

func (w wireEnrichment) toEnrichment(spanHash, modelID string) indexstore.Enrichment {
	evidence := make([]indexstore.EvidenceRange, 0, len(w.Evidence))
	for _, e := range w.Evidence {
		evidence = append(evidence, indexstore.EvidenceRange{StartLine: e.StartLine, EndLine: e.EndLine})
	}
	return indexstore.Enrichment{
		SpanHash:     spanHash,
		Summary:      w.Summary,
		Inputs:       w.Inputs,
		Outputs:      w.Outputs,
		SideEffects:  w.SideEffects,
		Pitfalls:     w.Pitfalls,
		UsageSnippet: w.UsageSnippet,
		Evidence:     evidence,
		ModelID:      modelID,
	}
}

// pendingSpan bundles what prompt building and batching need about one
// span beyond its hash.
type pendingSpan struct {
	Hash            string
	FilePath        string
	Kind            string
	Symbol          string
	ContentLanguage string
	Start           int
	End             int
	Content         string
}

func buildSinglePrompt(sp pendingSpan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\nKind: %s\nSymbol: %s\nLines: %d-%d\n\n", sp.FilePath, sp.Kind, sp.Symbol, sp.Start, sp.End)
	b.WriteString("```\n")
	b.WriteString(sp.Content)
	b.WriteString("\n```\n\n")
	b.WriteString(`Respond with a single JSON object: {"summary": "...", "inputs": [...], ` +
		`"outputs": [...], "side_effects": [...], "pitfalls": [...], "usage_snippet": "...", ` +
		`"evidence": [{"start_line": N, "end_line": N}]}.`)
	return b.String()
}

func buildBatchPrompt(spans []pendingSpan) string {
	var b strings.Builder
	b.WriteString("You will be given multiple spans from the same file. Respond with a JSON array ")
	fmt.Fprintf(&b, "of exactly %d objects, one per span, in the same order as given. Each object has the ", len(spans))
	b.WriteString(`shape {"summary": "...", "inputs": [...], "outputs": [...], "side_effects": [...], ` +
		`"pitfalls": [...], "usage_snippet": "...", "evidence": [{"start_line": N, "end_line": N}]}.` + "\n\n")
	for i, sp := range spans {
		fmt.Fprintf(&b, "--- Span %d ---\nFile: %s\nKind: %s\nSymbol: %s\nLines: %d-%d\n\n", i, sp.FilePath, sp.Kind, sp.Symbol, sp.Start, sp.End)
		b.WriteString("```\n")
		b.WriteString(sp.Content)
		b.WriteString("\n```\n\n")
	}
	return b.String()
}

func parseSingleResponse(op, text string) (wireEnrichment, error) {
	var w wireEnrichment
	if err := backend.ParseJSON(op, text, &w); err != nil {
		return wireEnrichment{}, err
	}
	return w, nil
}

func parseBatchResponse(op, text string, n int) ([]wireEnrichment, error) {
	var ws []wireEnrichment
	if err := backend.ParseJSON(op, text, &ws); err != nil {
		return nil, err
	}
	if len(ws) != n {
		return nil, errs.New(errs.BackendParse, op, fmt.Errorf("batch response has %d entries, expected %d", len(ws), n))
	}
	return ws, nil
}
