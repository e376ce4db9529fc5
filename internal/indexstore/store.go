// Package indexstore implements the Index Store (C2): a single embedded
// SQLite file per repository holding files, spans, enrichments,
// embeddings, and a graph of entities/relations, with a schema-versioned
// migration discipline and a batched writer. Grounded on the teacher's
// internal/store/{migrations.go,local_graph.go,vector_store.go,
// vec_compat.go} — see DESIGN.md.
package indexstore

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"llmc/internal/errs"
)

// Store is the single writer / many readers handle onto one repository's
// index.db. Exactly one Store per repo should hold the writer role at a
// time (enforced by an advisory file lock at the daemon layer).
type Store struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
	writer *BatchWriter
}

// Open opens (creating if necessary) the index database at path, runs
// pending migrations, and starts the batched writer. The busy-timeout is
// held well above SQLite's default so a reader never trips over the
// batched writer's transaction.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path))
	if err != nil {
		return nil, errs.New(errs.StoreCorrupt, "indexstore.Open", err)
	}
	db.SetMaxOpenConns(1) // single-writer discipline; readers share the same WAL-mode handle

	s := &Store{db: db, path: path, logger: logger}

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, errs.New(errs.MigrationFailed, "indexstore.Open", err)
	}

	s.writer = NewBatchWriter(db, logger, 50, 5*time.Second)
	s.writer.Start()

	return s, nil
}

func (s *Store) Close() error {
	s.writer.Stop()
	return s.db.Close()
}

// conn exposes the underlying handle for read-only query helpers in
// sibling files of this package. Not exported outside the package.
func (s *Store) conn() *sql.DB { return s.db }
