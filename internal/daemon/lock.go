package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// RepoLock is an advisory per-repo lock that prevents two daemon
// processes from indexing the same repository concurrently. No library
// in the pack does POSIX advisory locking, so this wraps the standard
// library's syscall.Flock directly rather than inventing a lock
// protocol of its own.
type RepoLock struct {
	file *os.File
}

// AcquireRepoLock takes an exclusive, non-blocking flock on
// <repoPath>/.llmc/daemon.lock. It fails fast (rather than blocking) so
// a second daemon for the same repo exits immediately instead of
// queuing up behind the first.
func AcquireRepoLock(repoPath string) (*RepoLock, error) {
	dir := filepath.Join(repoPath, ".llmc")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	path := filepath.Join(dir, "daemon.lock")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("repo %s is already locked by another daemon: %w", repoPath, err)
	}
	return &RepoLock{file: f}, nil
}

// Release drops the lock and closes the underlying file.
func (l *RepoLock) Release() error {
	if l.file == nil {
		return nil
	}
	_ = syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	return l.file.Close()
}
