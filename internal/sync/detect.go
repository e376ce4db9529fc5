package sync

import (
	"os"
	"path/filepath"

	"llmc/internal/indexstore"
)

// DetectChanges runs a VCS-aware diff when repoPath has a .git
// directory, otherwise a persisted-manifest walk. sinceCommit is the
// repo's last indexed commit
// (IndexStatus.LastIndexedCommit); it is ignored on the manifest path.
// The returned commit string is the current HEAD (empty on the manifest
// path, since there's no VCS marker to record).
func DetectChanges(repoPath, sinceCommit string, store *indexstore.Store) (ChangeSet, string, error) {
	var cs ChangeSet
	var commit string
	var err error

	if HasGit(repoPath) {
		cs, commit, err = detectChangesGit(repoPath, sinceCommit)
	} else {
		cs, err = detectChangesManifest(repoPath, store)
	}
	if err != nil {
		return ChangeSet{}, "", err
	}

	cs.Renamed = resolveRenames(repoPath, store, &cs)
	return cs, commit, nil
}

// resolveRenames matches entries in cs.Added against cs.Deleted whose
// content hash equals a deleted path's last-known stored hash: rename
// detection uses content hash identity, not path similarity. Matched
// pairs are removed from Added/Deleted and returned as Renames.
func resolveRenames(repoPath string, store *indexstore.Store, cs *ChangeSet) []Rename {
	if len(cs.Added) == 0 || len(cs.Deleted) == 0 {
		return nil
	}

	deletedHashes := map[string]string{} // content hash -> deleted path
	for _, path := range cs.Deleted {
		existing, err := store.GetFile(path)
		if err != nil || existing == nil {
			continue
		}
		deletedHashes[existing.ContentHash] = path
	}
	if len(deletedHashes) == 0 {
		return nil
	}

	var renames []Rename
	var remainingAdded []string
	matchedDeleted := map[string]bool{}
	for _, path := range cs.Added {
		content, err := os.ReadFile(filepath.Join(repoPath, path))
		if err != nil {
			remainingAdded = append(remainingAdded, path)
			continue
		}
		if oldPath, ok := deletedHashes[FileHash(content)]; ok && !matchedDeleted[oldPath] {
			renames = append(renames, Rename{OldPath: oldPath, NewPath: path})
			matchedDeleted[oldPath] = true
			continue
		}
		remainingAdded = append(remainingAdded, path)
	}
	cs.Added = remainingAdded

	if len(matchedDeleted) > 0 {
		var remainingDeleted []string
		for _, path := range cs.Deleted {
			if !matchedDeleted[path] {
				remainingDeleted = append(remainingDeleted, path)
			}
		}
		cs.Deleted = remainingDeleted
	}
	return renames
}
