package sync

import (
	"io/fs"
	"os"
	"path/filepath"

	"llmc/internal/indexstore"
)

// detectChangesManifest compares the current file tree under repoPath
// against the File rows already stored in store (which together form
// a persisted mtime+size+content-hash manifest). Cheap mtime+size
// comparisons avoid re-hashing unchanged files.
func detectChangesManifest(repoPath string, store *indexstore.Store) (ChangeSet, error) {
	seen := map[string]bool{}
	var cs ChangeSet

	walkErr := filepath.WalkDir(repoPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if defaultIgnoredDirs[d.Name()] && path != repoPath {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(repoPath, path)
		if err != nil {
			return nil
		}
		seen[rel] = true

		info, err := d.Info()
		if err != nil {
			return nil
		}

		existing, err := store.GetFile(rel)
		if err != nil {
			return err
		}
		if existing == nil {
			cs.Added = append(cs.Added, rel)
			return nil
		}
		if existing.Size == info.Size() && existing.Mtime.Unix() == info.ModTime().Unix() {
			return nil // unchanged by the cheap check, skip hashing
		}

		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil // unreadable file is skipped, not fatal
		}
		if FileHash(content) != existing.ContentHash {
			cs.Modified = append(cs.Modified, rel)
		}
		return nil
	})
	if walkErr != nil {
		return ChangeSet{}, walkErr
	}

	allStored, err := store.ListFilePaths()
	if err != nil {
		return ChangeSet{}, err
	}
	for _, path := range allStored {
		if !seen[path] {
			cs.Deleted = append(cs.Deleted, path)
		}
	}
	return cs, nil
}
