package enrich

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"llmc/internal/backend"
	"llmc/internal/config"
	"llmc/internal/indexstore"
	"llmc/internal/span"
)

// stubAdapter scripts a fixed sequence of Generate outcomes, one per call.
type stubAdapter struct {
	tier    string
	calls   int
	texts   []string
	errs    []error
}

func (s *stubAdapter) Generate(ctx context.Context, prompt string, params backend.Params) (backend.Result, error) {
	i := s.calls
	s.calls++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	var text string
	if i < len(s.texts) {
		text = s.texts[i]
	}
	if err != nil {
		return backend.Result{}, err
	}
	return backend.Result{Text: text, TokensIn: 10, TokensOut: 10}, nil
}

func (s *stubAdapter) Close() error { return nil }
func (s *stubAdapter) Tier() string { return s.tier }

func openTestStore(t *testing.T) (*indexstore.Store, string) {
	t.Helper()
	dir := t.TempDir()
	st, err := indexstore.Open(filepath.Join(dir, "index.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st, dir
}

func insertSpan(t *testing.T, st *indexstore.Store, path, hash, content string, start, end int) {
	t.Helper()
	fileID, _, err := st.UpsertFile(indexstore.File{Path: path, ContentHash: "h", Mtime: time.Now(), Language: "go", Size: int64(len(content))})
	require.NoError(t, err)
	existing, err := st.GetSpansForFile(fileID)
	require.NoError(t, err)
	spans := append(existing, span.Span{
		SpanHash:        hash,
		FileID:          fileID,
		Kind:            span.KindFunction,
		SymbolName:      "fn",
		StartLine:       start,
		EndLine:         end,
		Content:         []byte(content),
		ContentType:     "code",
		ContentLanguage: "go",
	})
	_, err = st.ReplaceSpansForFile(fileID, spans)
	require.NoError(t, err)
}

func singleEnrichmentJSON() string {
	return `{"summary": "does a thing", "inputs": ["x"], "outputs": ["y"], "side_effects": [], ` +
		`"pitfalls": [], "usage_snippet": "fn(x)", "evidence": [{"start_line": 1, "end_line": 2}]}`
}

func TestRunCycleEnrichesSingleSpan(t *testing.T) {
	st, dir := openTestStore(t)
	insertSpan(t, st, "mod.go", "hash1", "func fn() {}", 1, 2)

	adapter := &stubAdapter{tier: "local_small", texts: []string{singleEnrichmentJSON()}}
	cascade := NewCascade([]backend.Adapter{adapter})
	cfg := config.EnrichmentConfig{Enabled: true, StartTier: "local_small", BatchSize: 2, MaxSpansPerCycle: 10}

	p := New(st, cascade, cfg, dir, nil, nil)
	res, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.SpansConsidered)
	require.Equal(t, 1, res.SpansEnriched)

	e, err := st.GetEnrichment("hash1")
	require.NoError(t, err)
	require.NotNil(t, e)
	require.Equal(t, "does a thing", e.Summary)

	_, statErr := os.Stat(filepath.Join(dir, "logs", "enrichment_metrics.jsonl"))
	require.NoError(t, statErr)
}

func TestRunCycleEscalatesOnParseError(t *testing.T) {
	st, dir := openTestStore(t)
	insertSpan(t, st, "mod.go", "hash1", "func fn() {}", 1, 2)

	tierA := &stubAdapter{tier: "local_small", texts: []string{"not json", "not json", "not json", "not json", "not json"}}
	tierB := &stubAdapter{tier: "local_large", texts: []string{singleEnrichmentJSON()}}
	cascade := NewCascade([]backend.Adapter{tierA, tierB})
	cfg := config.EnrichmentConfig{Enabled: true, StartTier: "local_small", BatchSize: 2, MaxSpansPerCycle: 10}

	p := New(st, cascade, cfg, dir, nil, nil)
	res, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.SpansEnriched)

	e, err := st.GetEnrichment("hash1")
	require.NoError(t, err)
	require.NotNil(t, e)
	require.Equal(t, "local_large", e.ModelID)
}

func TestRunCycleBatchFallsBackOnMalformedArray(t *testing.T) {
	st, dir := openTestStore(t)
	insertSpan(t, st, "mod.go", "hash1", "func a() {}", 1, 2)
	insertSpan(t, st, "mod.go", "hash2", "func b() {}", 3, 4)

	adapter := &stubAdapter{
		tier: "local_small",
		texts: []string{
			"[not, valid, json",
			singleEnrichmentJSON(),
			`{"summary": "does a thing", "inputs": ["x"], "outputs": ["y"], "side_effects": [], ` +
				`"pitfalls": [], "usage_snippet": "fn(x)", "evidence": [{"start_line": 3, "end_line": 4}]}`,
		},
	}
	cascade := NewCascade([]backend.Adapter{adapter})
	cfg := config.EnrichmentConfig{Enabled: true, StartTier: "local_small", BatchSize: 2, MaxLineGap: 20, MaxSpansPerCycle: 10}

	p := New(st, cascade, cfg, dir, nil, nil)
	res, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.BatchesSent)
	require.Equal(t, 1, res.BatchesFellBack)
	require.Equal(t, 2, res.SpansEnriched)

	e1, _ := st.GetEnrichment("hash1")
	e2, _ := st.GetEnrichment("hash2")
	require.NotNil(t, e1)
	require.NotNil(t, e2)
}
