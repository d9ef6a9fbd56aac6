package store

import (
	"database/sql"
	"strings"
)

// columnMigration adds one column to an existing table, tolerating the
// "duplicate column name" error SQLite raises when it is already present.
// This is what makes Open idempotent across schema revisions: a fresh
// database gets the column from schema.go's CREATE TABLE, an older one
// picks it up here.
type columnMigration struct {
	Name  string
	Table string
	DDL   string
}

// migrationsList is the ordered set of "add missing column" migrations
// applied after the base schema. New columns to existing tables go here,
// never by editing the CREATE TABLE statements in schema.go (which would
// leave pre-existing databases without the column).
var migrationsList = []columnMigration{
	{
		Name:  "commit_files_max_indent",
		Table: "commit_files",
		DDL:   "ALTER TABLE commit_files ADD COLUMN max_indent INTEGER",
	},
	{
		Name:  "file_stats_avg_complexity",
		Table: "file_stats",
		DDL:   "ALTER TABLE file_stats ADD COLUMN avg_complexity REAL NOT NULL DEFAULT 0",
	},
	{
		Name:  "batch_jobs_model_used",
		Table: "batch_jobs",
		DDL:   "ALTER TABLE batch_jobs ADD COLUMN model_used TEXT NOT NULL DEFAULT ''",
	},
}

func runMigrations(db *sql.DB) error {
	for _, m := range migrationsList {
		if _, err := db.Exec(m.DDL); err != nil {
			if isDuplicateColumnErr(err) {
				continue
			}
			return err
		}
	}
	return nil
}

func isDuplicateColumnErr(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "duplicate column name")
}
