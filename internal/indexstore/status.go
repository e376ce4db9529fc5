package indexstore

import (
	"database/sql"
	"fmt"
	"time"

	"llmc/internal/errs"
)

// IndexState is a repo's indexing lifecycle state: empty -> indexing ->
// ready, with ready <-> warn and either -> error -> (re-indexing
// returns to) empty.
type IndexState string

const (
	StateEmpty     IndexState = "empty"
	StateIndexing  IndexState = "indexing"
	StateReady     IndexState = "ready"
	StateWarn      IndexState = "warn"
	StateError     IndexState = "error"
)

var validTransitions = map[IndexState]map[IndexState]bool{
	StateEmpty:    {StateIndexing: true},
	StateIndexing: {StateReady: true, StateError: true, StateWarn: true},
	StateReady:    {StateWarn: true, StateIndexing: true, StateError: true},
	StateWarn:     {StateReady: true, StateIndexing: true, StateError: true},
	StateError:    {StateEmpty: true, StateIndexing: true},
}

// IndexStatus is the persisted lifecycle record for one repository.
type IndexStatus struct {
	RepoPath          string
	State             IndexState
	LastIndexedAt     time.Time
	LastIndexedCommit string
	SchemaVersion     int
	LastError         string
}

// GetIndexStatus returns the stored status for repoPath, or a zero-value
// StateEmpty status if none has been recorded yet.
func (s *Store) GetIndexStatus(repoPath string) (IndexStatus, error) {
	row := s.conn().QueryRow(`
		SELECT repo_path, state, last_indexed_at, last_indexed_commit, schema_version, last_error
		FROM index_status WHERE repo_path = ?`, repoPath)

	var st IndexStatus
	var state string
	var lastIndexedAt int64
	if err := row.Scan(&st.RepoPath, &state, &lastIndexedAt, &st.LastIndexedCommit, &st.SchemaVersion, &st.LastError); err != nil {
		if err == sql.ErrNoRows {
			return IndexStatus{RepoPath: repoPath, State: StateEmpty}, nil
		}
		return IndexStatus{}, errs.New(errs.StoreBusy, "indexstore.GetIndexStatus", err)
	}
	st.State = IndexState(state)
	st.LastIndexedAt = time.Unix(lastIndexedAt, 0)
	return st, nil
}

// SetIndexState transitions repoPath to next, rejecting transitions not
// in validTransitions so callers can't accidentally skip states (e.g.
// jumping straight from empty to ready).
func (s *Store) SetIndexState(repoPath string, next IndexState, lastError string) error {
	current, err := s.GetIndexStatus(repoPath)
	if err != nil {
		return err
	}
	if current.State != "" && current.State != next {
		if !validTransitions[current.State][next] {
			return errs.New(errs.ConfigInvalid, "indexstore.SetIndexState",
				fmt.Errorf("invalid index state transition %s -> %s for %s", current.State, next, repoPath))
		}
	}

	writeErr := s.writer.Submit(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO index_status(repo_path, state, last_indexed_at, last_indexed_commit, schema_version, last_error)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(repo_path) DO UPDATE SET
				state=excluded.state, last_error=excluded.last_error
		`, repoPath, string(next), current.LastIndexedAt.Unix(), current.LastIndexedCommit, CurrentSchemaVersion, lastError)
		return err
	})
	if writeErr != nil {
		return errs.New(errs.StoreBusy, "indexstore.SetIndexState", writeErr)
	}
	return nil
}

// MarkIndexed records a completed indexing pass: state becomes ready,
// last_indexed_at is now, and last_indexed_commit is recorded so a later
// query can tell whether the index still matches the working tree.
func (s *Store) MarkIndexed(repoPath, commit string) error {
	err := s.writer.Submit(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO index_status(repo_path, state, last_indexed_at, last_indexed_commit, schema_version, last_error)
			VALUES (?, 'ready', ?, ?, ?, '')
			ON CONFLICT(repo_path) DO UPDATE SET
				state='ready', last_indexed_at=excluded.last_indexed_at,
				last_indexed_commit=excluded.last_indexed_commit, schema_version=excluded.schema_version, last_error=''
		`, repoPath, time.Now().Unix(), commit, CurrentSchemaVersion)
		return err
	})
	if err != nil {
		return errs.New(errs.StoreBusy, "indexstore.MarkIndexed", err)
	}
	return nil
}
