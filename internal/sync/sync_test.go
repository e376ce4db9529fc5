package sync

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"llmc/internal/graph"
	"llmc/internal/indexstore"
)

func openTestStore(t *testing.T) *indexstore.Store {
	t.Helper()
	s, err := indexstore.Open(":memory:", zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	full := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestDetectChangesManifestFindsAddedFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a\n\nfunc Foo() {}\n")
	store := openTestStore(t)

	cs, commit, err := DetectChanges(dir, "", store)
	require.NoError(t, err)
	require.Empty(t, commit) // no VCS marker on the manifest path
	require.Contains(t, cs.Added, "a.go")
}

func TestApplyThenReSyncWithNoChangesIsANoop(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a\n\nfunc Foo() {}\n")
	store := openTestStore(t)
	builder := graph.NewBuilder()

	cs, _, err := DetectChanges(dir, "", store)
	require.NoError(t, err)
	result, err := Apply(dir, store, cs, builder, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Equal(t, 1, result.FilesWritten)
	require.Equal(t, 1, result.SpansInserted)

	cs2, _, err := DetectChanges(dir, "", store)
	require.NoError(t, err)
	require.True(t, cs2.Empty())

	result2, err := Apply(dir, store, cs2, builder, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Equal(t, 0, result2.FilesWritten)
	require.Equal(t, 0, result2.SpansInserted)
}

func TestDeletedFileIsTombstoned(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a\n\nfunc Foo() {}\n")
	store := openTestStore(t)
	builder := graph.NewBuilder()

	cs, _, err := DetectChanges(dir, "", store)
	require.NoError(t, err)
	_, err = Apply(dir, store, cs, builder, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "a.go")))

	cs2, _, err := DetectChanges(dir, "", store)
	require.NoError(t, err)
	require.Contains(t, cs2.Deleted, "a.go")

	result, err := Apply(dir, store, cs2, builder, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Equal(t, 1, result.FilesDeleted)

	got, err := store.GetFile("a.go")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestRenameIsDetectedByContentHash(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "old.go", "package a\n\nfunc Foo() {}\n")
	store := openTestStore(t)
	builder := graph.NewBuilder()

	cs, _, err := DetectChanges(dir, "", store)
	require.NoError(t, err)
	_, err = Apply(dir, store, cs, builder, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, os.Rename(filepath.Join(dir, "old.go"), filepath.Join(dir, "new.go")))

	cs2, _, err := DetectChanges(dir, "", store)
	require.NoError(t, err)
	require.Len(t, cs2.Renamed, 1)
	require.Equal(t, "old.go", cs2.Renamed[0].OldPath)
	require.Equal(t, "new.go", cs2.Renamed[0].NewPath)
	require.Empty(t, cs2.Added)
	require.Empty(t, cs2.Deleted)
}

func TestCrossFileCallResolvesWithinSameApplyBatch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "db.go", "package a\n\nfunc Query() string { return \"\" }\n")
	writeFile(t, dir, "auth.go", "package a\n\nfunc Login() { Query() }\n")
	store := openTestStore(t)
	builder := graph.NewBuilder()

	cs, _, err := DetectChanges(dir, "", store)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"db.go", "auth.go"}, cs.Added)

	_, err = Apply(dir, store, cs, builder, zaptest.NewLogger(t))
	require.NoError(t, err)

	neighbors, err := store.Neighbors("sym:auth.go#Login", 1, []graph.EdgeType{graph.EdgeCalls})
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	require.Equal(t, "sym:db.go#Query", neighbors[0].ID)
}

func TestParseErrorFileDoesNotAbortSync(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.go", "package a\nfunc (\n")
	store := openTestStore(t)
	builder := graph.NewBuilder()

	cs, _, err := DetectChanges(dir, "", store)
	require.NoError(t, err)
	result, err := Apply(dir, store, cs, builder, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Equal(t, 1, result.ParseWarnings)
}
