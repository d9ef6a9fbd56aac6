// Package search maintains gitmem's FTS5 full-text index over enriched
// commit text (commits_fts) and answers scope-filtered search queries
// against it.
package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// maxChunk bounds every IN (...) lookup, mirroring commitstore's bound-
// parameter ceiling (spec.md §4.3's "Algorithmic notes").
const maxChunk = 500

// Index wraps a *sqlx.DB for commits_fts maintenance and querying.
type Index struct {
	db *sqlx.DB
}

// New wraps db for search-index operations.
func New(db *sqlx.DB) *Index {
	return &Index{db: db}
}

type sourceRow struct {
	Hash           string         `db:"hash"`
	Message        string         `db:"message"`
	Classification sql.NullString `db:"classification"`
	Summary        sql.NullString `db:"summary"`
}

func chunk(hashes []string, size int) [][]string {
	var out [][]string
	for size < len(hashes) {
		out = append(out, hashes[:size])
		hashes = hashes[size:]
	}
	if len(hashes) > 0 {
		out = append(out, hashes)
	}
	return out
}

func inClause(hashes []string) (string, []any) {
	placeholders := strings.Repeat("?,", len(hashes))
	placeholders = strings.TrimSuffix(placeholders, ",")
	args := make([]any, len(hashes))
	for i, h := range hashes {
		args[i] = h
	}
	return placeholders, args
}

// IndexNewCommits inserts (or replaces) commits_fts rows for hashes,
// chunked at maxChunk. Called by the Enricher at finalization time with
// the hashes enriched during the run.
func (idx *Index) IndexNewCommits(ctx context.Context, hashes []string) error {
	for _, group := range chunk(hashes, maxChunk) {
		if err := idx.indexHashes(ctx, group); err != nil {
			return err
		}
	}
	return nil
}

// IndexCommit replaces the commits_fts row for a single commit.
func (idx *Index) IndexCommit(ctx context.Context, hash string) error {
	return idx.indexHashes(ctx, []string{hash})
}

func (idx *Index) indexHashes(ctx context.Context, hashes []string) error {
	if len(hashes) == 0 {
		return nil
	}

	placeholders, args := inClause(hashes)
	var rows []sourceRow
	query := `SELECT hash, message, classification, summary FROM commits WHERE hash IN (` + placeholders + `)`
	if err := idx.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return fmt.Errorf("query commits to index: %w", err)
	}

	tx, err := idx.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index transaction: %w", err)
	}
	defer tx.Rollback()

	if err := replaceRows(ctx, tx, rows); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit index transaction: %w", err)
	}
	return nil
}

// RebuildIndex truncates commits_fts and repopulates it from every commit
// row: enriched commits get their real classification/summary, unenriched
// ones get empty strings so a hash prefix lookup still finds them.
func (idx *Index) RebuildIndex(ctx context.Context) error {
	tx, err := idx.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rebuild_index transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM commits_fts`); err != nil {
		return fmt.Errorf("truncate commits_fts: %w", err)
	}

	var rows []sourceRow
	if err := tx.SelectContext(ctx, &rows, `SELECT hash, message, classification, summary FROM commits`); err != nil {
		return fmt.Errorf("query commits for rebuild_index: %w", err)
	}

	if err := insertRows(ctx, tx, rows); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rebuild_index transaction: %w", err)
	}
	return nil
}

// replaceRows deletes any existing commits_fts row for each hash before
// reinserting it, giving index_commit/index_new_commits "insert or
// replace" semantics over a virtual table that has no unique index.
func replaceRows(ctx context.Context, tx *sqlx.Tx, rows []sourceRow) error {
	for _, r := range rows {
		if _, err := tx.ExecContext(ctx, `DELETE FROM commits_fts WHERE hash = ?`, r.Hash); err != nil {
			return fmt.Errorf("delete stale fts row for %s: %w", r.Hash, err)
		}
	}
	return insertRows(ctx, tx, rows)
}

func insertRows(ctx context.Context, tx *sqlx.Tx, rows []sourceRow) error {
	const insertSQL = `INSERT INTO commits_fts (hash, message, classification, summary) VALUES (?, ?, ?, ?)`
	for _, r := range rows {
		if _, err := tx.ExecContext(ctx, insertSQL, r.Hash, r.Message, r.Classification.String, r.Summary.String); err != nil {
			return fmt.Errorf("insert fts row for %s: %w", r.Hash, err)
		}
	}
	return nil
}

// Result is one full-text match, mirroring the commits_fts row it came from.
type Result struct {
	Hash           string `db:"hash"`
	Message        string `db:"message"`
	Classification string `db:"classification"`
	Summary        string `db:"summary"`
}
