package query

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"llmc/internal/config"
	"llmc/internal/embed"
	"llmc/internal/graph"
	"llmc/internal/indexstore"
	"llmc/internal/span"
)

func testRoutingConfig() config.RoutingConfig {
	return config.DefaultConfig().Routing
}

func TestClassifierToolContextOverrideWins(t *testing.T) {
	c := NewClassifier(testRoutingConfig())
	cls := c.Classify("invoice ledger ```func f() {}```", "docs")
	require.Equal(t, CategoryDocs, cls.Category)
	require.Equal(t, "tool_context_override", cls.Reason)
}

func TestClassifierFencedCodeBeatsERPKeyword(t *testing.T) {
	c := NewClassifier(testRoutingConfig())
	cls := c.Classify("how do I fix this invoice bug? ```go\nfunc f() {}\n```", "")
	require.Equal(t, CategoryCode, cls.Category)
}

func TestClassifierERPKeywordWinsOverNothingElse(t *testing.T) {
	c := NewClassifier(testRoutingConfig())
	cls := c.Classify("why is this invoice sku missing from the ledger", "")
	require.Equal(t, CategoryDomain, cls.Category)
	require.Equal(t, "erp_keyword", cls.Reason)
}

func TestClassifierDocsDefault(t *testing.T) {
	c := NewClassifier(testRoutingConfig())
	cls := c.Classify("what time is the meeting tomorrow", "")
	require.Equal(t, CategoryDocs, cls.Category)
	require.Equal(t, "docs_default", cls.Reason)
}

func TestRouterExplainReportsAlternatives(t *testing.T) {
	cfg := config.DefaultConfig()
	r := NewRouter(cfg)
	exp := r.Explain("please fix the invoice struct parsing bug", "")
	require.NotEmpty(t, exp.Reason)
	require.Len(t, exp.Alternatives, 2)
}

func openTestStore(t *testing.T) (*indexstore.Store, string) {
	t.Helper()
	dir := t.TempDir()
	st, err := indexstore.Open(filepath.Join(dir, "index.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st, dir
}

func writeRepoFile(t *testing.T, st *indexstore.Store, repoDir, relPath, content string) {
	t.Helper()
	full := filepath.Join(repoDir, relPath)
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	info, err := os.Stat(full)
	require.NoError(t, err)

	id, _, err := st.UpsertFile(indexstore.File{
		Path: relPath, ContentHash: "h", Mtime: info.ModTime(), Language: "go", Size: info.Size(),
	})
	require.NoError(t, err)
	_ = id
}

func TestSearchResolvesGraphNeighborAndReportsFreshness(t *testing.T) {
	st, repoDir := openTestStore(t)
	writeRepoFile(t, st, repoDir, "auth.go", "package auth\nfunc Login(user string) error {\n\treturn db.Query(user)\n}\n")
	writeRepoFile(t, st, repoDir, "db.go", "package db\nfunc Query(user string) error {\n\treturn nil\n}\n")

	authFile, err := st.GetFile("auth.go")
	require.NoError(t, err)
	_, err = st.ReplaceSpansForFile(authFile.ID, []span.Span{{
		SpanHash: "hash_login", FileID: authFile.ID, Kind: span.KindFunction,
		SymbolName: "Login", StartLine: 2, EndLine: 4, Content: []byte("func Login(user string) error { return db.Query(user) }"),
		ContentType: "code",
	}})
	require.NoError(t, err)

	dbFile, err := st.GetFile("db.go")
	require.NoError(t, err)
	_, err = st.ReplaceSpansForFile(dbFile.ID, []span.Span{{
		SpanHash: "hash_query", FileID: dbFile.ID, Kind: span.KindFunction,
		SymbolName: "Query", StartLine: 2, EndLine: 4, Content: []byte("func Query(user string) error { return nil }"),
		ContentType: "code",
	}})
	require.NoError(t, err)

	require.NoError(t, st.UpsertEntity(graph.Entity{ID: "sym:auth.go#Login", Kind: "function", PathRef: "auth.go"}))
	require.NoError(t, st.UpsertEntity(graph.Entity{ID: "sym:db.go#Query", Kind: "function", PathRef: "db.go"}))
	require.NoError(t, st.PutRelations([]graph.Relation{
		{SrcID: "sym:auth.go#Login", EdgeType: graph.EdgeCalls, DstID: "sym:db.go#Query"},
	}))
	require.NoError(t, st.MarkIndexed(repoDir, ""))

	cfg := config.DefaultConfig()
	router := NewRouter(cfg)
	retriever := NewRetriever(st, router, map[string]embed.Provider{}, cfg.Routing)

	resp, err := retriever.Search(context.Background(), repoDir, "where_used db.Query", "")
	require.NoError(t, err)
	require.Equal(t, FreshnessReady, resp.Freshness)

	found := false
	for _, res := range resp.Results {
		if res.SpanHash == "hash_login" {
			found = true
			require.True(t, res.Source == SourceGraph || res.Source == SourceHybrid)
		}
	}
	require.True(t, found, "expected Login's span to surface via the graph step")
}

func TestSearchTagsStaleThenReadyAfterReconciliation(t *testing.T) {
	st, repoDir := openTestStore(t)
	writeRepoFile(t, st, repoDir, "a.go", "package a\n")
	require.NoError(t, st.MarkIndexed(repoDir, ""))

	cfg := config.DefaultConfig()
	router := NewRouter(cfg)
	retriever := NewRetriever(st, router, map[string]embed.Provider{}, cfg.Routing)

	resp, err := retriever.Search(context.Background(), repoDir, "what does a.go do", "")
	require.NoError(t, err)
	require.Equal(t, FreshnessReady, resp.Freshness)

	// Simulate an out-of-band edit the daemon hasn't applied yet.
	time.Sleep(1100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(repoDir, "a.go"), []byte("package a\n\nfunc Extra() {}\n"), 0o644))

	resp, err = retriever.Search(context.Background(), repoDir, "what does a.go do", "")
	require.NoError(t, err)
	require.Equal(t, FreshnessStale, resp.Freshness)

	// The next daemon tick would re-apply and re-mark the file.
	info, err := os.Stat(filepath.Join(repoDir, "a.go"))
	require.NoError(t, err)
	_, _, err = st.UpsertFile(indexstore.File{Path: "a.go", ContentHash: "h2", Mtime: info.ModTime(), Language: "go", Size: info.Size()})
	require.NoError(t, err)
	require.NoError(t, st.MarkIndexed(repoDir, ""))

	resp, err = retriever.Search(context.Background(), repoDir, "what does a.go do", "")
	require.NoError(t, err)
	require.Equal(t, FreshnessReady, resp.Freshness)
}
