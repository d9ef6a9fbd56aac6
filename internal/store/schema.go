package store

// schema is applied on every Open via CREATE TABLE IF NOT EXISTS / CREATE
// VIRTUAL TABLE IF NOT EXISTS statements, so running it against an existing
// database is a no-op beyond adding anything genuinely missing. Column
// additions to existing tables live in migrations.go instead, since SQLite
// does not support "ADD COLUMN IF NOT EXISTS".
const schema = `
CREATE TABLE IF NOT EXISTS metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS commits (
	hash           TEXT PRIMARY KEY,
	author_name    TEXT NOT NULL,
	author_email   TEXT NOT NULL,
	committed_at   TEXT NOT NULL,
	message        TEXT NOT NULL,
	classification TEXT,
	summary        TEXT,
	enriched_at    TEXT,
	model_used     TEXT
);

CREATE INDEX IF NOT EXISTS idx_commits_committed_at ON commits(committed_at DESC);
CREATE INDEX IF NOT EXISTS idx_commits_enriched_at ON commits(enriched_at);

CREATE TABLE IF NOT EXISTS commit_files (
	commit_hash       TEXT NOT NULL,
	file_path         TEXT NOT NULL,
	change_type       TEXT NOT NULL,
	additions         INTEGER NOT NULL DEFAULT 0,
	deletions         INTEGER NOT NULL DEFAULT 0,
	lines_of_code     INTEGER,
	indent_complexity INTEGER,
	max_indent        INTEGER,
	PRIMARY KEY (commit_hash, file_path),
	FOREIGN KEY (commit_hash) REFERENCES commits(hash) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_commit_files_path ON commit_files(file_path);
CREATE INDEX IF NOT EXISTS idx_commit_files_measured ON commit_files(lines_of_code);

CREATE TABLE IF NOT EXISTS file_stats (
	file_path          TEXT PRIMARY KEY,
	total_changes      INTEGER NOT NULL DEFAULT 0,
	bug_fix_count      INTEGER NOT NULL DEFAULT 0,
	feature_count      INTEGER NOT NULL DEFAULT 0,
	refactor_count     INTEGER NOT NULL DEFAULT 0,
	docs_count         INTEGER NOT NULL DEFAULT 0,
	chore_count        INTEGER NOT NULL DEFAULT 0,
	perf_count         INTEGER NOT NULL DEFAULT 0,
	test_count         INTEGER NOT NULL DEFAULT 0,
	style_count        INTEGER NOT NULL DEFAULT 0,
	first_seen         TEXT NOT NULL,
	last_changed       TEXT NOT NULL,
	total_additions    INTEGER NOT NULL DEFAULT 0,
	total_deletions    INTEGER NOT NULL DEFAULT 0,
	current_loc        INTEGER NOT NULL DEFAULT 0,
	current_complexity INTEGER NOT NULL DEFAULT 0,
	avg_complexity     REAL NOT NULL DEFAULT 0,
	max_complexity     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS file_contributors (
	file_path    TEXT NOT NULL,
	author_email TEXT NOT NULL,
	display_name TEXT NOT NULL,
	commit_count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (file_path, author_email)
);

CREATE TABLE IF NOT EXISTS file_coupling (
	file_a          TEXT NOT NULL,
	file_b          TEXT NOT NULL,
	co_change_count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (file_a, file_b)
);

CREATE INDEX IF NOT EXISTS idx_file_coupling_b ON file_coupling(file_b);

CREATE TABLE IF NOT EXISTS batch_jobs (
	batch_id        TEXT PRIMARY KEY,
	type            TEXT NOT NULL,
	status          TEXT NOT NULL,
	request_count   INTEGER NOT NULL DEFAULT 0,
	succeeded_count INTEGER NOT NULL DEFAULT 0,
	failed_count    INTEGER NOT NULL DEFAULT 0,
	submitted_at    TEXT NOT NULL,
	completed_at    TEXT,
	model_used      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_batch_jobs_type_status ON batch_jobs(type, status);

CREATE TABLE IF NOT EXISTS check_batch_items (
	batch_id       TEXT NOT NULL,
	hash           TEXT NOT NULL,
	classification TEXT NOT NULL,
	summary        TEXT NOT NULL,
	PRIMARY KEY (batch_id, hash)
);

CREATE VIRTUAL TABLE IF NOT EXISTS commits_fts USING fts5(
	hash UNINDEXED,
	message,
	classification,
	summary
);
`
