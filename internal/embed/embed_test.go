package embed

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"llmc/internal/config"
	"llmc/internal/indexstore"
	"llmc/internal/span"
)

type stubProvider struct {
	dim   int
	calls int
	texts []string
}

func (s *stubProvider) Dimensions() int { return s.dim }
func (s *stubProvider) Name() string    { return "stub" }

func (s *stubProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

func (s *stubProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls++
	s.texts = append(s.texts, texts...)
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, s.dim)
		for j := range v {
			v[j] = float32(i + j)
		}
		out[i] = v
	}
	return out, nil
}

func openTestStore(t *testing.T) (*indexstore.Store, string) {
	t.Helper()
	dir := t.TempDir()
	st, err := indexstore.Open(filepath.Join(dir, "index.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st, dir
}

func insertSpan(t *testing.T, st *indexstore.Store, path, hash, content string) {
	t.Helper()
	fileID, _, err := st.UpsertFile(indexstore.File{Path: path, ContentHash: "h", Mtime: time.Now(), Language: "go", Size: int64(len(content))})
	require.NoError(t, err)
	existing, err := st.GetSpansForFile(fileID)
	require.NoError(t, err)
	spans := append(existing, span.Span{
		SpanHash:    hash,
		FileID:      fileID,
		Kind:        span.KindFunction,
		SymbolName:  "fn",
		StartLine:   1,
		EndLine:     2,
		Content:     []byte(content),
		ContentType: "code",
	})
	_, err = st.ReplaceSpansForFile(fileID, spans)
	require.NoError(t, err)
}

func TestRunCycleEmbedsFromCanonicalizedSpanText(t *testing.T) {
	st, dir := openTestStore(t)
	insertSpan(t, st, "mod.go", "hash1", "func   fn( ) {\n  return\n}")

	provider := &stubProvider{dim: 4}
	profiles := map[string]config.EmbeddingProfile{"default": {Provider: "ollama", Model: "m", Dim: 4}}
	providers := map[string]Provider{"default": provider}

	p := NewPipeline(st, providers, profiles, 16, dir, nil)
	res, err := p.RunCycle(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, res.Embedded)
	require.Equal(t, 1, provider.calls)
	require.Equal(t, []string{"func fn( ) { return }"}, provider.texts)

	got, err := st.SearchVector("default", []float32{0, 1, 2, 3}, 1, "")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestRunCyclePrefersEnrichmentSummary(t *testing.T) {
	st, dir := openTestStore(t)
	insertSpan(t, st, "mod.go", "hash1", "func fn() {}")
	require.NoError(t, st.PutEnrichment(indexstore.Enrichment{
		SpanHash: "hash1", Summary: "a concise summary", ModelID: "local_small",
	}))

	provider := &stubProvider{dim: 4}
	profiles := map[string]config.EmbeddingProfile{"default": {Provider: "ollama", Model: "m", Dim: 4}}
	providers := map[string]Provider{"default": provider}

	p := NewPipeline(st, providers, profiles, 16, dir, nil)
	_, err := p.RunCycle(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, provider.calls)
	require.Equal(t, []string{"a concise summary"}, provider.texts)
}

func TestReconcileProfilesInvalidatesOnModelChange(t *testing.T) {
	st, dir := openTestStore(t)
	insertSpan(t, st, "mod.go", "hash1", "func fn() {}")

	profileV1 := map[string]config.EmbeddingProfile{"default": {Provider: "ollama", Model: "m1", Dim: 4}}
	p1 := NewPipeline(st, map[string]Provider{"default": &stubProvider{dim: 4}}, profileV1, 16, dir, nil)
	_, err := p1.ReconcileProfiles()
	require.NoError(t, err)

	_, err = p1.RunCycle(context.Background(), 10)
	require.NoError(t, err)

	got, err := st.SearchVector("default", []float32{0, 1, 2, 3}, 1, "")
	require.NoError(t, err)
	require.Len(t, got, 1)

	profileV2 := map[string]config.EmbeddingProfile{"default": {Provider: "ollama", Model: "m2", Dim: 4}}
	p2 := NewPipeline(st, map[string]Provider{"default": &stubProvider{dim: 4}}, profileV2, 16, dir, nil)
	res, err := p2.ReconcileProfiles()
	require.NoError(t, err)
	require.Equal(t, 1, res.Invalidated)

	got, err = st.SearchVector("default", []float32{0, 1, 2, 3}, 1, "")
	require.NoError(t, err)
	require.Len(t, got, 0)
}
