package query

import (
	"llmc/internal/indexstore"
	"llmc/internal/sync"
)

// checkFreshness reports a search as "stale" whenever the repo's index
// state isn't ready/warn, or whenever DetectChanges finds anything that
// hasn't been applied since the last recorded commit. Reusing
// DetectChanges (rather than a cheaper mtime-only check) means the gate
// and the daemon's own change detection can never disagree about what
// "up to date" means.
func checkFreshness(store *indexstore.Store, repoPath string) (Freshness, error) {
	status, err := store.GetIndexStatus(repoPath)
	if err != nil {
		return FreshnessStale, err
	}
	if status.State != indexstore.StateReady && status.State != indexstore.StateWarn {
		return FreshnessStale, nil
	}

	changes, _, err := sync.DetectChanges(repoPath, status.LastIndexedCommit, store)
	if err != nil {
		// Detection failing is not itself fatal to a search: report
		// stale so the caller knows the answer may be out of date.
		return FreshnessStale, nil
	}
	if !changes.Empty() {
		return FreshnessStale, nil
	}
	return FreshnessReady, nil
}
