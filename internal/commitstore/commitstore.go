// Package commitstore wraps all access to the commits and commit_files
// tables: raw insertion, enrichment/complexity updates, hash resolution,
// and the read paths search and the CLI render from (unenriched queues,
// random sampling for judging, recent-touch lookups).
package commitstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmcdonald-ut/gitmem/internal/errs"
	"github.com/jmcdonald-ut/gitmem/internal/models"
	"github.com/jmoiron/sqlx"
)

// maxChunk bounds every IN (...) clause and temp-table insert to stay well
// under SQLite's default bound-parameter ceiling (999), per spec.md §4.3's
// "Algorithmic notes".
const maxChunk = 500

// Store wraps a *sqlx.DB for commit and commit-file access.
type Store struct {
	db *sqlx.DB
}

// New wraps db for commit repository operations.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func chunk[T any](items []T, size int) [][]T {
	var out [][]T
	for size < len(items) {
		out = append(out, items[:size])
		items = items[size:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}

// InsertRaw inserts commits and their file rows in one transaction,
// silently skipping primary-key collisions (a commit already indexed).
func (s *Store) InsertRaw(ctx context.Context, commits []models.RawCommit) error {
	if len(commits) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert_raw transaction: %w", err)
	}
	defer tx.Rollback()

	const commitSQL = `
		INSERT OR IGNORE INTO commits (hash, author_name, author_email, committed_at, message)
		VALUES (?, ?, ?, ?, ?)
	`
	const fileSQL = `
		INSERT OR IGNORE INTO commit_files (commit_hash, file_path, change_type, additions, deletions)
		VALUES (?, ?, ?, ?, ?)
	`

	for _, c := range commits {
		if _, err := tx.ExecContext(ctx, commitSQL,
			c.Hash, c.AuthorName, c.AuthorEmail, c.CommittedAt.UTC().Format(time.RFC3339), c.Message,
		); err != nil {
			return fmt.Errorf("insert commit %s: %w", c.Hash, err)
		}
		for _, f := range c.Files {
			if _, err := tx.ExecContext(ctx, fileSQL,
				c.Hash, f.Path, f.ChangeType, f.Additions, f.Deletions,
			); err != nil {
				return fmt.Errorf("insert commit_file %s/%s: %w", c.Hash, f.Path, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert_raw transaction: %w", err)
	}
	return nil
}

// Unenriched returns commits with a null enriched_at, newest first.
func (s *Store) Unenriched(ctx context.Context) ([]models.Commit, error) {
	var rows []models.Commit
	err := s.db.SelectContext(ctx, &rows, `
		SELECT hash, author_name, author_email, committed_at, message,
		       classification, summary, enriched_at, model_used
		FROM commits
		WHERE enriched_at IS NULL
		ORDER BY committed_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query unenriched commits: %w", err)
	}
	return rows, nil
}

// UnenrichedSince is Unenriched restricted to committed_at >= since.
func (s *Store) UnenrichedSince(ctx context.Context, since time.Time) ([]models.Commit, error) {
	var rows []models.Commit
	err := s.db.SelectContext(ctx, &rows, `
		SELECT hash, author_name, author_email, committed_at, message,
		       classification, summary, enriched_at, model_used
		FROM commits
		WHERE enriched_at IS NULL AND committed_at >= ?
		ORDER BY committed_at DESC
	`, since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("query unenriched commits since %s: %w", since, err)
	}
	return rows, nil
}

// UpdateEnrichment sets the enrichment triple for a single commit and
// stamps enriched_at with the current time.
func (s *Store) UpdateEnrichment(ctx context.Context, e models.Enrichment) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE commits
		SET classification = ?, summary = ?, model_used = ?, enriched_at = ?
		WHERE hash = ?
	`, string(e.Classification), e.Summary, e.Model, nowRFC3339(), e.Hash)
	if err != nil {
		return fmt.Errorf("update enrichment for %s: %w", e.Hash, err)
	}
	return nil
}

// UpdateEnrichmentBatch applies many enrichments in a single transaction.
func (s *Store) UpdateEnrichmentBatch(ctx context.Context, items []models.Enrichment) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update_enrichment_batch transaction: %w", err)
	}
	defer tx.Rollback()

	stamp := nowRFC3339()
	for _, e := range items {
		if _, err := tx.ExecContext(ctx, `
			UPDATE commits
			SET classification = ?, summary = ?, model_used = ?, enriched_at = ?
			WHERE hash = ?
		`, string(e.Classification), e.Summary, e.Model, stamp, e.Hash); err != nil {
			return fmt.Errorf("update enrichment for %s: %w", e.Hash, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update_enrichment_batch transaction: %w", err)
	}
	return nil
}

// UpdateComplexity sets the complexity triple for a single commit file.
func (s *Store) UpdateComplexity(ctx context.Context, c models.Complexity) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE commit_files
		SET lines_of_code = ?, indent_complexity = ?, max_indent = ?
		WHERE commit_hash = ? AND file_path = ?
	`, c.LinesOfCode, c.IndentSum, c.MaxIndent, c.CommitHash, c.FilePath)
	if err != nil {
		return fmt.Errorf("update complexity for %s/%s: %w", c.CommitHash, c.FilePath, err)
	}
	return nil
}

// UpdateComplexityBatch applies many complexity measurements in one transaction.
func (s *Store) UpdateComplexityBatch(ctx context.Context, items []models.Complexity) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update_complexity_batch transaction: %w", err)
	}
	defer tx.Rollback()

	for _, c := range items {
		if _, err := tx.ExecContext(ctx, `
			UPDATE commit_files
			SET lines_of_code = ?, indent_complexity = ?, max_indent = ?
			WHERE commit_hash = ? AND file_path = ?
		`, c.LinesOfCode, c.IndentSum, c.MaxIndent, c.CommitHash, c.FilePath); err != nil {
			return fmt.Errorf("update complexity for %s/%s: %w", c.CommitHash, c.FilePath, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update_complexity_batch transaction: %w", err)
	}
	return nil
}

// IndexedHashes returns every hash already present in the commits table,
// for set-difference against a fresh git log during discovery.
func (s *Store) IndexedHashes(ctx context.Context) (map[string]bool, error) {
	var hashes []string
	if err := s.db.SelectContext(ctx, &hashes, `SELECT hash FROM commits`); err != nil {
		return nil, fmt.Errorf("query indexed hashes: %w", err)
	}
	out := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		out[h] = true
	}
	return out, nil
}

// resolvePrefixCap bounds how many candidate rows ResolvePrefix fetches
// before reporting ambiguity; enough to report a useful candidate list
// without risking an unbounded scan on a pathologically short prefix.
const resolvePrefixCap = 20

// ResolvePrefix returns the single commit whose hash starts with prefix.
// Zero matches is errs.NotFound; more than one is *errs.AmbiguousHashError
// carrying every candidate hash found (up to resolvePrefixCap).
func (s *Store) ResolvePrefix(ctx context.Context, prefix string) (*models.Commit, error) {
	var rows []models.Commit
	err := s.db.SelectContext(ctx, &rows, `
		SELECT hash, author_name, author_email, committed_at, message,
		       classification, summary, enriched_at, model_used
		FROM commits
		WHERE hash LIKE ? ESCAPE '\'
		LIMIT ?
	`, escapePrefixLike(prefix)+"%", resolvePrefixCap+1)
	if err != nil {
		return nil, fmt.Errorf("resolve hash prefix %q: %w", prefix, err)
	}

	switch len(rows) {
	case 0:
		return nil, errs.New(errs.NotFound)
	case 1:
		return &rows[0], nil
	default:
		candidates := make([]string, len(rows))
		for i, r := range rows {
			candidates[i] = r.Hash
		}
		return nil, &errs.AmbiguousHashError{Prefix: prefix, Candidates: candidates}
	}
}

func escapePrefixLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\', '%', '_':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

// templateMergeMessagePrefix and templateMergeSummaryPrefix define a
// "template merge" per the glossary: a commit whose message begins with
// "Merge" and whose prior enrichment summary begins with "Merge commit:" —
// excluded from judge/random sampling by default.
const (
	templateMergeMessagePrefix = "Merge"
	templateMergeSummaryPrefix = "Merge commit:"
)

// RandomEnriched returns n enriched commits chosen uniformly at random,
// excluding the given hash set and, if requested, commits that look like
// template merge records. Exclusion sets over maxChunk hashes are
// materialized through a temporary table to stay within bound-parameter
// limits.
func (s *Store) RandomEnriched(ctx context.Context, n int, exclude map[string]bool, excludeTemplateMerges bool) ([]models.Commit, error) {
	var rows []models.Commit

	run := func(tx sqlx.ExtContext) error {
		query := `
			SELECT hash, author_name, author_email, committed_at, message,
			       classification, summary, enriched_at, model_used
			FROM commits
			WHERE enriched_at IS NOT NULL
		`
		var args []any
		if len(exclude) > 0 {
			if len(exclude) > maxChunk {
				query += ` AND hash NOT IN (SELECT hash FROM excluded_hashes)`
			} else {
				placeholders, excludeArgs := inClause(exclude)
				query += ` AND hash NOT IN (` + placeholders + `)`
				args = append(args, excludeArgs...)
			}
		}
		if excludeTemplateMerges {
			query += ` AND NOT (message LIKE ? AND summary LIKE ?)`
			args = append(args, templateMergeMessagePrefix+"%", templateMergeSummaryPrefix+"%")
		}
		query += ` ORDER BY RANDOM() LIMIT ?`
		args = append(args, n)

		return sqlx.SelectContext(ctx, tx, &rows, query, args...)
	}

	if len(exclude) > maxChunk {
		return rows, s.withTempExclusionTable(ctx, exclude, func(tx *sqlx.Tx) error {
			return run(tx)
		})
	}

	if err := run(s.db); err != nil {
		return nil, fmt.Errorf("sample random enriched commits: %w", err)
	}
	return rows, nil
}

// withTempExclusionTable materializes hashes into a session-local temp
// table and runs fn inside the same connection/transaction so the table
// is visible to fn's queries, then drops the table before committing so
// the pooled connection can run this again.
func (s *Store) withTempExclusionTable(ctx context.Context, hashes map[string]bool, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin temp exclusion table transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `CREATE TEMP TABLE excluded_hashes (hash TEXT PRIMARY KEY)`); err != nil {
		return fmt.Errorf("create temp exclusion table: %w", err)
	}

	all := make([]string, 0, len(hashes))
	for h := range hashes {
		all = append(all, h)
	}
	for _, group := range chunk(all, maxChunk) {
		placeholders, args := inClauseSlice(group)
		if _, err := tx.ExecContext(ctx, `INSERT INTO excluded_hashes (hash) VALUES `+valuesClause(placeholders), args...); err != nil {
			return fmt.Errorf("populate temp exclusion table: %w", err)
		}
	}

	if err := fn(tx); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DROP TABLE excluded_hashes`); err != nil {
		return fmt.Errorf("drop temp exclusion table: %w", err)
	}
	return tx.Commit()
}

func inClause(set map[string]bool) (string, []any) {
	items := make([]string, 0, len(set))
	for k := range set {
		items = append(items, k)
	}
	return inClauseSlice(items)
}

func inClauseSlice(items []string) (string, []any) {
	placeholders := ""
	args := make([]any, len(items))
	for i, v := range items {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args[i] = v
	}
	return placeholders, args
}

// valuesClause turns "?,?,?" into "(?),(?),(?)" for a multi-row INSERT.
func valuesClause(placeholders string) string {
	out := ""
	first := true
	for _, p := range splitComma(placeholders) {
		if !first {
			out += ","
		}
		first = false
		out += "(" + p + ")"
	}
	return out
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

// FilesByHashes returns, for each of the given hashes, its commit_files
// rows in original insertion order. Processed in chunks of maxChunk.
func (s *Store) FilesByHashes(ctx context.Context, hashes []string) (map[string][]models.CommitFile, error) {
	out := make(map[string][]models.CommitFile, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}

	for _, group := range chunk(hashes, maxChunk) {
		placeholders, args := inClauseSlice(group)
		var rows []models.CommitFile
		query := `
			SELECT commit_hash, file_path, change_type, additions, deletions,
			       lines_of_code, indent_complexity, max_indent
			FROM commit_files
			WHERE commit_hash IN (` + placeholders + `)
			ORDER BY rowid
		`
		if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
			return nil, fmt.Errorf("query files by hashes: %w", err)
		}
		for _, r := range rows {
			out[r.CommitHash] = append(out[r.CommitHash], r)
		}
	}
	return out, nil
}

// RecentForFile returns the most recent commits touching path, newest first.
func (s *Store) RecentForFile(ctx context.Context, path string, limit int) ([]models.RecentCommit, error) {
	var rows []models.RecentCommit
	err := s.db.SelectContext(ctx, &rows, `
		SELECT c.hash, c.message, c.committed_at, c.author_name
		FROM commits c
		JOIN commit_files f ON f.commit_hash = c.hash
		WHERE f.file_path = ?
		ORDER BY c.committed_at DESC
		LIMIT ?
	`, path, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent commits for file %s: %w", path, err)
	}
	return rows, nil
}

// RecentForDirectory returns the most recent commits touching any file
// whose path starts with prefix, deduplicated by commit.
func (s *Store) RecentForDirectory(ctx context.Context, prefix string, limit int) ([]models.RecentCommit, error) {
	var rows []models.RecentCommit
	err := s.db.SelectContext(ctx, &rows, `
		SELECT c.hash, c.message, c.committed_at, c.author_name
		FROM commits c
		WHERE c.hash IN (
			SELECT DISTINCT f.commit_hash
			FROM commit_files f
			WHERE f.file_path LIKE ? ESCAPE '\'
		)
		ORDER BY c.committed_at DESC
		LIMIT ?
	`, escapePrefixLike(prefix)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("query recent commits for directory %s: %w", prefix, err)
	}
	return rows, nil
}

func nowRFC3339() string {
	return timeNow().UTC().Format(time.RFC3339)
}

// timeNow is a package-level var so tests can override "now" deterministically.
var timeNow = time.Now
