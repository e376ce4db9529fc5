package indexstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"llmc/internal/graph"
	"llmc/internal/span"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertFileReportsCreatedOnlyOnce(t *testing.T) {
	s := openTestStore(t)
	f := File{Path: "a.go", ContentHash: "h1", Mtime: time.Now(), Language: "go", Size: 10}

	id1, created1, err := s.UpsertFile(f)
	require.NoError(t, err)
	require.True(t, created1)

	f.ContentHash = "h2"
	id2, created2, err := s.UpsertFile(f)
	require.NoError(t, err)
	require.False(t, created2)
	require.Equal(t, id1, id2)
}

func TestReplaceSpansForFileInsertsAndOrphans(t *testing.T) {
	s := openTestStore(t)
	id, _, err := s.UpsertFile(File{Path: "a.go", ContentHash: "h1", Mtime: time.Now(), Language: "go", Size: 10})
	require.NoError(t, err)

	spans := []span.Span{
		{SpanHash: "sh1", Kind: span.KindFunction, SymbolName: "Foo", StartLine: 1, EndLine: 5, Content: []byte("func Foo() {}"), ContentType: "code", ContentLanguage: "go"},
		{SpanHash: "sh2", Kind: span.KindFunction, SymbolName: "Bar", StartLine: 6, EndLine: 10, Content: []byte("func Bar() {}"), ContentType: "code", ContentLanguage: "go"},
	}
	orphans, err := s.ReplaceSpansForFile(id, spans)
	require.NoError(t, err)
	require.Empty(t, orphans)

	stored, err := s.GetSpansForFile(id)
	require.NoError(t, err)
	require.Len(t, stored, 2)

	// Second extraction drops sh2, adds sh3: sh2 must come back as an orphan
	// hash, not silently vanish.
	spans2 := []span.Span{
		spans[0],
		{SpanHash: "sh3", Kind: span.KindFunction, SymbolName: "Baz", StartLine: 11, EndLine: 15, Content: []byte("func Baz() {}"), ContentType: "code", ContentLanguage: "go"},
	}
	orphans, err = s.ReplaceSpansForFile(id, spans2)
	require.NoError(t, err)
	require.Equal(t, []string{"sh2"}, orphans)

	stored, err = s.GetSpansForFile(id)
	require.NoError(t, err)
	require.Len(t, stored, 2)
}

func TestReRunningReplaceWithNoChangesIsANoop(t *testing.T) {
	s := openTestStore(t)
	id, _, err := s.UpsertFile(File{Path: "a.go", ContentHash: "h1", Mtime: time.Now(), Language: "go", Size: 10})
	require.NoError(t, err)

	spans := []span.Span{
		{SpanHash: "sh1", Kind: span.KindFunction, SymbolName: "Foo", StartLine: 1, EndLine: 5, Content: []byte("func Foo() {}"), ContentType: "code", ContentLanguage: "go"},
	}
	_, err = s.ReplaceSpansForFile(id, spans)
	require.NoError(t, err)

	orphans, err := s.ReplaceSpansForFile(id, spans)
	require.NoError(t, err)
	require.Empty(t, orphans)

	stored, err := s.GetSpansForFile(id)
	require.NoError(t, err)
	require.Len(t, stored, 1)
}

func TestPutEnrichmentRejectsEvidenceOutsideSpan(t *testing.T) {
	s := openTestStore(t)
	id, _, err := s.UpsertFile(File{Path: "a.go", ContentHash: "h1", Mtime: time.Now(), Language: "go", Size: 10})
	require.NoError(t, err)
	_, err = s.ReplaceSpansForFile(id, []span.Span{
		{SpanHash: "sh1", Kind: span.KindFunction, SymbolName: "Foo", StartLine: 10, EndLine: 20, Content: []byte("func Foo() {}"), ContentType: "code", ContentLanguage: "go"},
	})
	require.NoError(t, err)

	err = s.PutEnrichment(Enrichment{
		SpanHash: "sh1",
		Summary:  "does a thing",
		ModelID:  "test-model",
		Evidence: []EvidenceRange{{StartLine: 1, EndLine: 5}},
	})
	require.Error(t, err)

	err = s.PutEnrichment(Enrichment{
		SpanHash: "sh1",
		Summary:  "does a thing",
		ModelID:  "test-model",
		Evidence: []EvidenceRange{{StartLine: 10, EndLine: 15}},
	})
	require.NoError(t, err)

	got, err := s.GetEnrichment("sh1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "does a thing", got.Summary)
}

func TestPutEnrichmentRejectsOverlongSummary(t *testing.T) {
	s := openTestStore(t)
	id, _, err := s.UpsertFile(File{Path: "a.go", ContentHash: "h1", Mtime: time.Now(), Language: "go", Size: 10})
	require.NoError(t, err)
	_, err = s.ReplaceSpansForFile(id, []span.Span{
		{SpanHash: "sh1", Kind: span.KindFunction, SymbolName: "Foo", StartLine: 1, EndLine: 5, Content: []byte("func Foo() {}"), ContentType: "code", ContentLanguage: "go"},
	})
	require.NoError(t, err)

	words := make([]string, 200)
	for i := range words {
		words[i] = "word"
	}
	long := ""
	for _, w := range words {
		long += w + " "
	}

	err = s.PutEnrichment(Enrichment{SpanHash: "sh1", Summary: long, ModelID: "m"})
	require.Error(t, err)
}

func TestEmbeddingVectorRoundTrips(t *testing.T) {
	v := []float32{0.1, -2.5, 3.0, 0}
	blob := EncodeVector(v)
	require.Len(t, blob, 16)
	require.Equal(t, v, DecodeVector(blob))
}

func TestPutEmbeddingRejectsDimensionChangeUnderSameProfile(t *testing.T) {
	s := openTestStore(t)
	id, _, err := s.UpsertFile(File{Path: "a.go", ContentHash: "h1", Mtime: time.Now(), Language: "go", Size: 10})
	require.NoError(t, err)
	_, err = s.ReplaceSpansForFile(id, []span.Span{
		{SpanHash: "sh1", Kind: span.KindFunction, SymbolName: "Foo", StartLine: 1, EndLine: 5, Content: []byte("x"), ContentType: "code", ContentLanguage: "go"},
		{SpanHash: "sh2", Kind: span.KindFunction, SymbolName: "Bar", StartLine: 6, EndLine: 9, Content: []byte("y"), ContentType: "code", ContentLanguage: "go"},
	})
	require.NoError(t, err)

	require.NoError(t, s.PutEmbedding(Embedding{SpanHash: "sh1", Profile: "default", Vector: []float32{1, 2, 3}, ProviderID: "p"}))
	err = s.PutEmbedding(Embedding{SpanHash: "sh2", Profile: "default", Vector: []float32{1, 2}, ProviderID: "p"})
	require.Error(t, err)
}

func TestPutRelationsRejectsUnknownEntity(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertEntity(graph.Entity{ID: "sym:a.go#Foo", Kind: "function", PathRef: "a.go"}))

	err := s.PutRelations([]graph.Relation{{SrcID: "sym:a.go#Foo", EdgeType: graph.EdgeCalls, DstID: "sym:missing"}})
	require.Error(t, err)
}

func TestNeighborsTraversesHops(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertEntity(graph.Entity{ID: "a", Kind: "function", PathRef: "a.go"}))
	require.NoError(t, s.UpsertEntity(graph.Entity{ID: "b", Kind: "function", PathRef: "b.go"}))
	require.NoError(t, s.UpsertEntity(graph.Entity{ID: "c", Kind: "function", PathRef: "c.go"}))
	require.NoError(t, s.PutRelations([]graph.Relation{
		{SrcID: "a", EdgeType: graph.EdgeCalls, DstID: "b"},
		{SrcID: "b", EdgeType: graph.EdgeCalls, DstID: "c"},
	}))

	oneHop, err := s.Neighbors("a", 1, nil)
	require.NoError(t, err)
	require.Len(t, oneHop, 1)
	require.Equal(t, "b", oneHop[0].ID)

	twoHop, err := s.Neighbors("a", 2, nil)
	require.NoError(t, err)
	require.Len(t, twoHop, 2)
}

func TestIndexStateTransitionsRejectInvalidJumps(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SetIndexState("repo", StateIndexing, ""))
	require.NoError(t, s.SetIndexState("repo", StateReady, ""))

	err := s.SetIndexState("repo", StateEmpty, "")
	require.Error(t, err)
}

func TestFailureCooldownBlocksPendingEnrichmentsUntilElapsed(t *testing.T) {
	s := openTestStore(t)
	id, _, err := s.UpsertFile(File{Path: "a.go", ContentHash: "h1", Mtime: time.Now(), Language: "go", Size: 10})
	require.NoError(t, err)
	_, err = s.ReplaceSpansForFile(id, []span.Span{
		{SpanHash: "sh1", Kind: span.KindFunction, SymbolName: "Foo", StartLine: 1, EndLine: 5, Content: []byte("x"), ContentType: "code", ContentLanguage: "go"},
	})
	require.NoError(t, err)

	pending, err := s.QueryPendingEnrichments("local_small", 10)
	require.NoError(t, err)
	require.Contains(t, pending, "sh1")

	require.NoError(t, s.RecordFailure("sh1", "local_small", "timeout"))

	cooling, err := s.IsCoolingDown("sh1", "local_small")
	require.NoError(t, err)
	require.True(t, cooling)

	pending, err = s.QueryPendingEnrichments("local_small", 10)
	require.NoError(t, err)
	require.NotContains(t, pending, "sh1") // cooling down at this tier

	pending, err = s.QueryPendingEnrichments("remote_cheap", 10)
	require.NoError(t, err)
	require.Contains(t, pending, "sh1") // a cooldown at one tier doesn't block another

	require.NoError(t, s.ClearFailure("sh1", "local_small"))
	cooling, err = s.IsCoolingDown("sh1", "local_small")
	require.NoError(t, err)
	require.False(t, cooling)
}

func TestStatsReflectsWrites(t *testing.T) {
	s := openTestStore(t)
	id, _, err := s.UpsertFile(File{Path: "a.go", ContentHash: "h1", Mtime: time.Now(), Language: "go", Size: 10})
	require.NoError(t, err)
	_, err = s.ReplaceSpansForFile(id, []span.Span{
		{SpanHash: "sh1", Kind: span.KindFunction, SymbolName: "Foo", StartLine: 1, EndLine: 5, Content: []byte("x"), ContentType: "code", ContentLanguage: "go"},
	})
	require.NoError(t, err)

	stats, err := s.Stats()
	require.NoError(t, err)
	require.Equal(t, 1, stats.Files)
	require.Equal(t, 1, stats.Spans)
	require.Equal(t, 1, stats.PendingEnrichments)
}
