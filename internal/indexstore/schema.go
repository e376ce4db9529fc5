package indexstore

// schemaStatements creates every table this store owns, for a brand-new
// database at CurrentSchemaVersion. Existing databases are brought up to
// date incrementally by the migrations in migrations.go instead.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		content_hash TEXT NOT NULL,
		mtime INTEGER NOT NULL,
		language TEXT NOT NULL,
		size INTEGER NOT NULL,
		tombstoned INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS spans (
		span_hash TEXT NOT NULL,
		file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		symbol_name TEXT NOT NULL DEFAULT '',
		start_line INTEGER NOT NULL,
		end_line INTEGER NOT NULL,
		content BLOB NOT NULL,
		content_type TEXT NOT NULL,
		content_language TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		PRIMARY KEY (span_hash, file_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_spans_file ON spans(file_id)`,
	// Standalone (not external-content) FTS5 table: rows are inserted and
	// deleted explicitly alongside spans writes rather than kept in sync
	// via FTS5 content-table triggers, which keeps the write path a plain
	// batched transaction instead of a trigger-driven one.
	`CREATE VIRTUAL TABLE IF NOT EXISTS spans_fts USING fts5(
		span_hash UNINDEXED, content
	)`,
	`CREATE TABLE IF NOT EXISTS enrichments (
		span_hash TEXT PRIMARY KEY,
		summary TEXT NOT NULL,
		inputs TEXT NOT NULL DEFAULT '[]',
		outputs TEXT NOT NULL DEFAULT '[]',
		side_effects TEXT NOT NULL DEFAULT '[]',
		pitfalls TEXT NOT NULL DEFAULT '[]',
		usage_snippet TEXT NOT NULL DEFAULT '',
		evidence TEXT NOT NULL DEFAULT '[]',
		model_id TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS embeddings (
		span_hash TEXT NOT NULL,
		profile TEXT NOT NULL,
		vector_bytes BLOB NOT NULL,
		dim INTEGER NOT NULL,
		provider_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (span_hash, profile)
	)`,
	`CREATE TABLE IF NOT EXISTS entities (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		path_ref TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS relations (
		src_id TEXT NOT NULL REFERENCES entities(id),
		edge_type TEXT NOT NULL,
		dst_id TEXT NOT NULL REFERENCES entities(id),
		PRIMARY KEY (src_id, edge_type, dst_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_relations_src ON relations(src_id)`,
	`CREATE INDEX IF NOT EXISTS idx_relations_dst ON relations(dst_id)`,
	`CREATE TABLE IF NOT EXISTS index_status (
		repo_path TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		last_indexed_at INTEGER NOT NULL DEFAULT 0,
		last_indexed_commit TEXT NOT NULL DEFAULT '',
		schema_version INTEGER NOT NULL,
		last_error TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS failure_records (
		span_hash TEXT NOT NULL,
		tier TEXT NOT NULL,
		reason TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		cooldown_until INTEGER NOT NULL DEFAULT 0,
		last_seen_at INTEGER NOT NULL,
		PRIMARY KEY (span_hash, tier)
	)`,
	`CREATE TABLE IF NOT EXISTS schema_versions (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`,
}
