package sync

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"
)

// HasGit reports whether repoPath is the root of a git working tree;
// parent directories are not searched.
func HasGit(repoPath string) bool {
	_, err := git.PlainOpen(repoPath)
	return err == nil
}

// HeadCommit returns the current HEAD commit hash for repoPath.
func HeadCommit(repoPath string) (string, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return "", fmt.Errorf("open repo: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

// detectChangesGit diffs the commit tree at sinceCommit against HEAD,
// then folds in any uncommitted worktree changes (since this tool
// indexes what is actually on disk, not only what has been committed).
// Grounded on sevigo-code-warden/internal/gitutil.Client.Diff's
// object.DiffTree + merkletrie.Action classification.
func detectChangesGit(repoPath, sinceCommit string) (ChangeSet, string, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return ChangeSet{}, "", fmt.Errorf("open repo: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return ChangeSet{}, "", fmt.Errorf("resolve HEAD: %w", err)
	}
	headCommit := head.Hash().String()

	var committed ChangeSet
	if sinceCommit != "" && sinceCommit != headCommit {
		committed, err = diffCommits(repo, sinceCommit, headCommit)
		if err != nil {
			return ChangeSet{}, "", err
		}
	}

	dirty, err := worktreeChanges(repo)
	if err != nil {
		return ChangeSet{}, "", err
	}

	merged := mergeChangeSets(committed, dirty)
	return merged, headCommit, nil
}

func diffCommits(repo *git.Repository, oldSHA, newSHA string) (ChangeSet, error) {
	oldCommit, err := repo.CommitObject(plumbing.NewHash(oldSHA))
	if err != nil {
		return ChangeSet{}, fmt.Errorf("resolve commit %s: %w", oldSHA, err)
	}
	newCommit, err := repo.CommitObject(plumbing.NewHash(newSHA))
	if err != nil {
		return ChangeSet{}, fmt.Errorf("resolve commit %s: %w", newSHA, err)
	}
	oldTree, err := oldCommit.Tree()
	if err != nil {
		return ChangeSet{}, err
	}
	newTree, err := newCommit.Tree()
	if err != nil {
		return ChangeSet{}, err
	}
	changes, err := object.DiffTree(oldTree, newTree)
	if err != nil {
		return ChangeSet{}, fmt.Errorf("diff trees %s..%s: %w", oldSHA, newSHA, err)
	}

	var cs ChangeSet
	for _, change := range changes {
		action, err := change.Action()
		if err != nil {
			continue // unresolvable change action is skipped, not fatal
		}
		switch action {
		case merkletrie.Insert:
			cs.Added = append(cs.Added, change.To.Name)
		case merkletrie.Modify:
			cs.Modified = append(cs.Modified, change.To.Name)
		case merkletrie.Delete:
			cs.Deleted = append(cs.Deleted, change.From.Name)
		}
	}
	return cs, nil
}

// worktreeChanges reports files that differ between HEAD and the actual
// working tree (staged or not) — edits the committed-tree diff alone
// would miss.
func worktreeChanges(repo *git.Repository) (ChangeSet, error) {
	wt, err := repo.Worktree()
	if err != nil {
		if errors.Is(err, git.ErrIsBareRepository) {
			return ChangeSet{}, nil
		}
		return ChangeSet{}, fmt.Errorf("open worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return ChangeSet{}, fmt.Errorf("worktree status: %w", err)
	}

	var cs ChangeSet
	for path, st := range status {
		switch st.Worktree {
		case git.Untracked, git.Added:
			cs.Added = append(cs.Added, path)
		case git.Modified:
			cs.Modified = append(cs.Modified, path)
		case git.Deleted:
			cs.Deleted = append(cs.Deleted, path)
		}
	}
	return cs, nil
}

func mergeChangeSets(sets ...ChangeSet) ChangeSet {
	added, modified, deleted := map[string]bool{}, map[string]bool{}, map[string]bool{}
	for _, cs := range sets {
		for _, p := range cs.Added {
			added[p] = true
		}
		for _, p := range cs.Modified {
			modified[p] = true
		}
		for _, p := range cs.Deleted {
			deleted[p] = true
		}
	}
	// A path appearing in both added and deleted across the two sources
	// (committed-tree add, then worktree delete, or vice versa) nets out
	// to deleted: whatever is NOT present on disk wins.
	for p := range added {
		if deleted[p] {
			delete(added, p)
		}
	}
	var out ChangeSet
	for p := range added {
		out.Added = append(out.Added, p)
	}
	for p := range modified {
		if !added[p] {
			out.Modified = append(out.Modified, p)
		}
	}
	for p := range deleted {
		out.Deleted = append(out.Deleted, p)
	}
	return out
}
