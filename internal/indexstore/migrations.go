package indexstore

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
)

// CurrentSchemaVersion is the schema version this binary expects.
// Grounded on the teacher's internal/store/migrations.go
// CurrentSchemaVersion constant and versioned-ALTER idiom.
const CurrentSchemaVersion = 1

// RunMigrations brings db up to CurrentSchemaVersion. A failed migration
// leaves the store untouched: a file-level backup is taken before any
// migration runs, and restored if the migration transaction fails,
// exactly matching the teacher's RunAllMigrations backup/restore-on-
// failure discipline.
func RunMigrations(db *sql.DB, logger *zap.Logger) error {
	if err := ensureSchemaVersionsTable(db); err != nil {
		return err
	}
	current, err := schemaVersion(db)
	if err != nil {
		return err
	}
	if current == 0 {
		// Brand-new database: apply the full current schema directly,
		// no migration path needed.
		return applyFreshSchema(db)
	}
	if current == CurrentSchemaVersion {
		return nil
	}
	if current > CurrentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than this binary's %d", current, CurrentSchemaVersion)
	}

	dbPath := databaseFilePath(db)
	backupPath := ""
	if dbPath != "" {
		backupPath, err = backupFile(dbPath)
		if err != nil {
			logger.Warn("could not create pre-migration backup, proceeding without one", zap.Error(err))
		}
	}

	migrationErr := applyMigrations(db, current, logger)
	if migrationErr != nil && backupPath != "" {
		if restoreErr := restoreFile(backupPath, dbPath); restoreErr != nil {
			logger.Error("restore after failed migration also failed", zap.Error(restoreErr))
		}
		return migrationErr
	}
	return migrationErr
}

func applyFreshSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	for _, stmt := range schemaStatements {
		if _, err := tx.Exec(stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply fresh schema: %w", err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO schema_versions(version, applied_at) VALUES (?, ?)`, CurrentSchemaVersion, time.Now().Unix()); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// migrationSteps holds forward migrations keyed by the version they
// migrate FROM. Step 0 has no entry because applyFreshSchema handles it.
var migrationSteps = map[int]func(*sql.Tx) error{
	// Reserved for future schema changes, e.g.:
	// 1: func(tx *sql.Tx) error { ... ALTER TABLE ... },
}

func applyMigrations(db *sql.DB, from int, logger *zap.Logger) error {
	for v := from; v < CurrentSchemaVersion; v++ {
		step, ok := migrationSteps[v]
		if !ok {
			return fmt.Errorf("no migration registered from schema version %d", v)
		}
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if err := step(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate v%d->v%d: %w", v, v+1, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_versions(version, applied_at) VALUES (?, ?)`, v+1, time.Now().Unix()); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		logger.Info("applied schema migration", zap.Int("from", v), zap.Int("to", v+1))
	}
	return nil
}

func ensureSchemaVersionsTable(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`)
	return err
}

func schemaVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_versions`).Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// databaseFilePath extracts the on-disk path sqlite3 opened, for backup
// purposes. Returns "" for in-memory databases (tests), in which case
// backup/restore is skipped.
func databaseFilePath(db *sql.DB) string {
	var seq int
	var name, file string
	rows, err := db.Query(`PRAGMA database_list`)
	if err != nil {
		return ""
	}
	defer rows.Close()
	for rows.Next() {
		if err := rows.Scan(&seq, &name, &file); err == nil && name == "main" {
			return file
		}
	}
	return ""
}

func backupFile(path string) (string, error) {
	backupPath := fmt.Sprintf("%s.bak.%d", path, time.Now().UnixNano())
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()
	dst, err := os.Create(backupPath)
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return "", err
	}
	if err := dst.Sync(); err != nil {
		return "", err
	}
	return backupPath, nil
}

func restoreFile(backupPath, dbPath string) error {
	src, err := os.Open(backupPath)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(dbPath)
	if err != nil {
		return err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return err
	}
	return dst.Sync()
}
