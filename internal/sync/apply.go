package sync

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"llmc/internal/errs"
	"llmc/internal/graph"
	"llmc/internal/indexstore"
	"llmc/internal/span"
)

// Result summarizes one Apply call, for the daemon's health snapshot
// and for tests asserting that a no-op re-run performs zero writes.
type Result struct {
	FilesWritten  int
	SpansInserted int
	SpansOrphaned int
	FilesDeleted  int
	ParseWarnings int
}

// fileUpdate carries one changed file's freshly extracted spans forward
// from the entity-declaration phase into the relation-building phase.
type fileUpdate struct {
	path    string
	fileID  int64
	content []byte
	spans   []span.Span
}

// Apply re-extracts spans for every added/modified/renamed file in cs,
// diffs them against what's stored, and tombstones deleted files.
// Relation-building happens in a second pass over a registry rebuilt
// from every entity now in the store (not just this batch's), so a
// call from file A to a symbol newly declared in file B resolves even
// when A is processed first within the same sync. A file whose parse
// fails yields zero spans and a warning, never a fatal error.
func Apply(repoPath string, store *indexstore.Store, cs ChangeSet, builder *graph.Builder, logger *zap.Logger) (Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if builder == nil {
		builder = graph.NewBuilder()
	}
	var result Result

	for _, r := range cs.Renamed {
		if err := store.DeleteFile(r.OldPath); err != nil {
			return result, err
		}
		cs.Modified = append(cs.Modified, r.NewPath)
	}
	for _, path := range cs.Deleted {
		if err := store.DeleteFile(path); err != nil {
			return result, err
		}
		result.FilesDeleted++
	}

	changedPaths := append(append([]string{}, cs.Added...), cs.Modified...)
	updates := make([]fileUpdate, 0, len(changedPaths))

	for _, path := range changedPaths {
		u, parseWarn, err := declarePhase(repoPath, path, store, builder, logger)
		if err != nil {
			return result, err
		}
		if parseWarn {
			result.ParseWarnings++
		}
		if u == nil {
			continue
		}
		updates = append(updates, *u)
		result.FilesWritten++
		result.SpansInserted += len(u.spans)
	}

	if len(updates) == 0 {
		return result, nil
	}

	allEntities, err := store.AllEntities()
	if err != nil {
		return result, err
	}
	reg := graph.NewRegistry(allEntities)

	for _, u := range updates {
		orphans, err := store.ReplaceSpansForFile(u.fileID, u.spans)
		if err != nil {
			return result, err
		}
		result.SpansOrphaned += len(orphans)

		relations := builder.BuildRelations(u.path, u.content, u.spans, reg)
		if err := store.PutRelations(relations); err != nil {
			logger.Warn("some relations referenced unknown entities, dropped", zap.String("path", u.path), zap.Error(err))
		}
	}

	return result, nil
}

// declarePhase extracts spans, upserts the file row, and declares its
// entities — everything that doesn't depend on the full-repo registry.
func declarePhase(repoPath, relPath string, store *indexstore.Store, builder *graph.Builder, logger *zap.Logger) (*fileUpdate, bool, error) {
	fullPath := filepath.Join(repoPath, relPath)
	content, readErr := os.ReadFile(fullPath)
	if readErr != nil {
		logger.Warn("file unreadable during sync, skipping", zap.String("path", relPath), zap.Error(readErr))
		return nil, false, nil
	}
	info, statErr := os.Stat(fullPath)
	if statErr != nil {
		return nil, false, nil
	}

	spans, extractErr := span.Extract(relPath, content)
	parseWarn := false
	if extractErr != nil {
		parseWarn = true
		switch {
		case errs.Is(extractErr, errs.ParseError):
			logger.Warn("parse error during sync, file indexed with no spans", zap.String("path", relPath), zap.Error(extractErr))
		case errs.Is(extractErr, errs.UnsupportedLanguage):
			logger.Debug("skipping binary or unrecognized file", zap.String("path", relPath))
			return nil, parseWarn, nil
		default:
			return nil, parseWarn, extractErr
		}
	}

	fileID, _, upsertErr := store.UpsertFile(indexstore.File{
		Path:        relPath,
		ContentHash: FileHash(content),
		Mtime:       info.ModTime(),
		Language:    languageOf(spans),
		Size:        info.Size(),
	})
	if upsertErr != nil {
		return nil, parseWarn, upsertErr
	}
	for i := range spans {
		spans[i].FileID = fileID
	}

	for _, e := range builder.DeclareEntities(relPath, spans) {
		if err := store.UpsertEntity(e); err != nil {
			return nil, parseWarn, err
		}
	}

	return &fileUpdate{path: relPath, fileID: fileID, content: content, spans: spans}, parseWarn, nil
}

func languageOf(spans []span.Span) string {
	for _, sp := range spans {
		if sp.ContentLanguage != "" {
			return sp.ContentLanguage
		}
	}
	return "text"
}
