package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmcdonald-ut/gitmem/internal/errs"
	"github.com/jmcdonald-ut/gitmem/internal/scope"
	"github.com/jmoiron/sqlx"
)

// maxTrackedChunk bounds the inline IN (...) form of the tracked-files
// filter; larger working trees go through a temp table instead, mirroring
// commitstore's exclusion-set threshold.
const maxTrackedChunk = maxChunk

// Search wraps the underlying FTS5 MATCH query over commits_fts, ranked
// by bm25 relevance, optionally filtered to one classification label.
// Malformed FTS syntax is reported as an *errs.InvalidQueryError carrying
// the original query string rather than a bare SQLite error.
func (idx *Index) Search(ctx context.Context, query string, limit int, classification *string) ([]Result, error) {
	return idx.SearchWithScope(ctx, query, limit, classification, scope.Scope{}, nil)
}

// SearchWithScope is Search plus a restriction to commits where at least
// one touched file matches sc's include/exclude patterns, implemented as
// an EXISTS against commit_files with scope's SQL clause appended. An
// empty scope degenerates to Search. Scoped results additionally drop
// commits whose only scope-matching files are no longer tracked in the
// current working tree (spec.md §9's "Scoped FTS with deleted files");
// pass a nil trackedFiles to restore them (the --include-deleted opt-in).
func (idx *Index) SearchWithScope(ctx context.Context, query string, limit int, classification *string, sc scope.Scope, trackedFiles []string) ([]Result, error) {
	if !sc.IsEmpty() && trackedFiles != nil && len(trackedFiles) > maxTrackedChunk {
		return idx.searchWithScopeAndTempTrackedTable(ctx, query, limit, classification, sc, trackedFiles)
	}

	stmt, args := idx.buildScopedSearch(query, limit, classification, sc, trackedFiles, "")
	var rows []Result
	if err := idx.db.SelectContext(ctx, &rows, stmt, args...); err != nil {
		return nil, &errs.InvalidQueryError{Query: query, Err: err}
	}
	return rows, nil
}

// searchWithScopeAndTempTrackedTable materializes trackedFiles into a
// session-local temp table when there are too many to inline, so the
// tracked-files filter stays within SQLite's bound-parameter limit.
func (idx *Index) searchWithScopeAndTempTrackedTable(ctx context.Context, query string, limit int, classification *string, sc scope.Scope, trackedFiles []string) ([]Result, error) {
	tx, err := idx.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin temp tracked-files table transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `CREATE TEMP TABLE tracked_files (file_path TEXT PRIMARY KEY)`); err != nil {
		return nil, fmt.Errorf("create temp tracked-files table: %w", err)
	}
	for _, group := range chunk(trackedFiles, maxTrackedChunk) {
		placeholders, args := inClause(group)
		values := "(" + strings.Replace(placeholders, ",", "),(", -1) + ")"
		if _, err := tx.ExecContext(ctx, `INSERT INTO tracked_files (file_path) VALUES `+values, args...); err != nil {
			return nil, fmt.Errorf("populate temp tracked-files table: %w", err)
		}
	}

	stmt, args := idx.buildScopedSearch(query, limit, classification, sc, trackedFiles, "tracked_files")
	var rows []Result
	if err := sqlx.SelectContext(ctx, tx, &rows, stmt, args...); err != nil {
		return nil, &errs.InvalidQueryError{Query: query, Err: err}
	}
	return rows, tx.Commit()
}

// buildScopedSearch assembles the FTS5 query shared by both the inline
// and temp-table tracked-files paths. tempTrackedTable, when non-empty,
// names the temp table to join against instead of inlining trackedFiles.
func (idx *Index) buildScopedSearch(query string, limit int, classification *string, sc scope.Scope, trackedFiles []string, tempTrackedTable string) (string, []any) {
	stmt := `
		SELECT hash, message, classification, summary
		FROM commits_fts
		WHERE commits_fts MATCH ?
	`
	args := []any{query}

	if classification != nil {
		stmt += " AND classification = ?"
		args = append(args, *classification)
	}

	if !sc.IsEmpty() {
		clause := sc.ToSQL("cf.file_path")
		trackedPredicate := ""
		var trackedArgs []any
		switch {
		case tempTrackedTable != "":
			trackedPredicate = " AND cf.file_path IN (SELECT file_path FROM " + tempTrackedTable + ")"
		case trackedFiles != nil && len(trackedFiles) == 0:
			// Nothing is tracked: no scoped result can pass.
			trackedPredicate = " AND 0"
		case trackedFiles != nil:
			placeholders, a := inClause(trackedFiles)
			trackedPredicate = " AND cf.file_path IN (" + placeholders + ")"
			trackedArgs = a
		}
		stmt += fmt.Sprintf(`
			AND EXISTS (
				SELECT 1 FROM commit_files cf
				WHERE cf.commit_hash = commits_fts.hash AND %s%s
			)
		`, clause.SQL, trackedPredicate)
		args = append(args, clause.Args...)
		args = append(args, trackedArgs...)
	}

	stmt += " ORDER BY rank LIMIT ?"
	args = append(args, limit)
	return stmt, args
}
