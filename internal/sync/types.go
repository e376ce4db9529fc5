// Package sync detects which files in a repository changed since the
// last indexing pass, preferring a VCS-aware diff and falling back to
// an mtime+size+content-hash manifest walk.
package sync

// Rename pairs an old path with the new path content-hash-identical to
// it: rename detection uses content hash identity, not path similarity.
type Rename struct {
	OldPath string
	NewPath string
}

// ChangeSet is the result of DetectChanges.
type ChangeSet struct {
	Added    []string
	Modified []string
	Deleted  []string
	Renamed  []Rename
}

// Empty reports whether no changes were detected at all, so a re-run
// with nothing changed can short-circuit to a fast no-op rather than
// performing any writes.
func (c ChangeSet) Empty() bool {
	return len(c.Added) == 0 && len(c.Modified) == 0 && len(c.Deleted) == 0 && len(c.Renamed) == 0
}

// defaultIgnoredDirs are skipped by the manifest walk and never treated
// as source content there. The VCS path does not consult this list: it
// reports what the tree diff and worktree status report, so untracked
// files under these directories that .gitignore does not exclude are
// reported as added.
var defaultIgnoredDirs = map[string]bool{
	".git":         true,
	".llmc":        true,
	"node_modules": true,
	"vendor":       true,
	".venv":        true,
	"__pycache__":  true,
	"dist":         true,
	"build":        true,
}
