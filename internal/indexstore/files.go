package indexstore

import (
	"database/sql"
	"time"

	"llmc/internal/errs"
)

// File is the persisted row for one tracked source file.
type File struct {
	ID          int64
	Path        string
	ContentHash string
	Mtime       time.Time
	Language    string
	Size        int64
}

// UpsertFile inserts or updates the File row for path. Returns whether a
// new file row was created, so callers can keep their own file-count
// bookkeeping exact instead of re-querying Stats after every write.
func (s *Store) UpsertFile(f File) (id int64, created bool, err error) {
	err = s.writer.Submit(func(tx *sql.Tx) error {
		var existingID int64
		lookupErr := tx.QueryRow(`SELECT id FROM files WHERE path = ?`, f.Path).Scan(&existingID)
		switch {
		case lookupErr == sql.ErrNoRows:
			res, insertErr := tx.Exec(
				`INSERT INTO files(path, content_hash, mtime, language, size, tombstoned) VALUES (?, ?, ?, ?, ?, 0)`,
				f.Path, f.ContentHash, f.Mtime.Unix(), f.Language, f.Size,
			)
			if insertErr != nil {
				return insertErr
			}
			id, err = res.LastInsertId()
			if err != nil {
				return err
			}
			created = true
			return nil
		case lookupErr != nil:
			return lookupErr
		default:
			id = existingID
			_, updateErr := tx.Exec(
				`UPDATE files SET content_hash = ?, mtime = ?, language = ?, size = ?, tombstoned = 0 WHERE id = ?`,
				f.ContentHash, f.Mtime.Unix(), f.Language, f.Size, existingID,
			)
			return updateErr
		}
	})
	if err != nil {
		return 0, false, errs.New(errs.StoreBusy, "indexstore.UpsertFile", err)
	}
	return id, created, nil
}

// GetFile returns the File row for path, or nil if it does not exist.
func (s *Store) GetFile(path string) (*File, error) {
	row := s.conn().QueryRow(`SELECT id, path, content_hash, mtime, language, size FROM files WHERE path = ? AND tombstoned = 0`, path)
	var f File
	var mtime int64
	if err := row.Scan(&f.ID, &f.Path, &f.ContentHash, &mtime, &f.Language, &f.Size); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errs.New(errs.StoreBusy, "indexstore.GetFile", err)
	}
	f.Mtime = time.Unix(mtime, 0)
	return &f, nil
}

// ListFilePaths returns every non-tombstoned File path, for the manifest
// walk to diff a repo's current file tree against.
func (s *Store) ListFilePaths() ([]string, error) {
	rows, err := s.conn().Query(`SELECT path FROM files WHERE tombstoned = 0`)
	if err != nil {
		return nil, errs.New(errs.StoreBusy, "indexstore.ListFilePaths", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// DeleteFile tombstones a File and deletes its Spans and their FTS rows.
// Enrichments, Embeddings and Entity/Relation rows for that file are not
// deleted here; enrichments and embeddings whose spans are gone are left
// for ReapOrphanedEnrichments.
func (s *Store) DeleteFile(path string) error {
	return s.writer.Submit(func(tx *sql.Tx) error {
		var fileID int64
		if err := tx.QueryRow(`SELECT id FROM files WHERE path = ?`, path).Scan(&fileID); err != nil {
			if err == sql.ErrNoRows {
				return nil
			}
			return err
		}
		if _, err := tx.Exec(`DELETE FROM spans_fts WHERE span_hash IN (SELECT span_hash FROM spans WHERE file_id = ?)`, fileID); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM spans WHERE file_id = ?`, fileID); err != nil {
			return err
		}
		_, err := tx.Exec(`UPDATE files SET tombstoned = 1 WHERE id = ?`, fileID)
		return err
	})
}
