// Package aggregate rebuilds gitmem's derived tables — file_stats,
// file_contributors, file_coupling — from the commits and commit_files
// tables, and answers on-demand trend queries over the same raw data.
// Rebuild is destructive-then-repopulate inside a single transaction, so
// readers never observe a half-updated set of derived tables.
package aggregate

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/jmcdonald-ut/gitmem/internal/errs"
	"github.com/jmcdonald-ut/gitmem/internal/models"
	"github.com/jmoiron/sqlx"
)

// maxCouplingFilesPerCommit caps the number of files (by additions +
// deletions, descending) that contribute coupling pairs for a single
// commit. Without this a generated-file-heavy merge touching thousands of
// files would produce O(n^2) pairs.
const maxCouplingFilesPerCommit = 256

// Aggregator rebuilds and queries gitmem's derived tables.
type Aggregator struct {
	db *sqlx.DB
}

// New wraps db for aggregate rebuild and trend-query operations.
func New(db *sqlx.DB) *Aggregator {
	return &Aggregator{db: db}
}

type commitRow struct {
	Hash           string         `db:"hash"`
	AuthorName     string         `db:"author_name"`
	AuthorEmail    string         `db:"author_email"`
	CommittedAt    time.Time      `db:"committed_at"`
	Classification sql.NullString `db:"classification"`
}

type fileRow struct {
	CommitHash       string        `db:"commit_hash"`
	FilePath         string        `db:"file_path"`
	Additions        int           `db:"additions"`
	Deletions        int           `db:"deletions"`
	LinesOfCode      sql.NullInt64 `db:"lines_of_code"`
	IndentComplexity sql.NullInt64 `db:"indent_complexity"`
}

// fileAcc accumulates one file's derived row across the chronological
// commit walk; AvgComplexity is derived from the running sum/count only
// at the end, since models.FileStats has no room for intermediate state.
type fileAcc struct {
	stats           models.FileStats
	complexitySum   int64
	complexityCount int64
}

func (a *fileAcc) bump(c Classification) {
	switch c {
	case classBugFix:
		a.stats.BugFixCount++
	case classFeature:
		a.stats.FeatureCount++
	case classRefactor:
		a.stats.RefactorCount++
	case classDocs:
		a.stats.DocsCount++
	case classChore:
		a.stats.ChoreCount++
	case classPerf:
		a.stats.PerfCount++
	case classTest:
		a.stats.TestCount++
	case classStyle:
		a.stats.StyleCount++
	}
}

// Classification aliases models.Classification locally so bump's switch
// reads without the package qualifier on every case.
type Classification = models.Classification

const (
	classBugFix   = models.ClassBugFix
	classFeature  = models.ClassFeature
	classRefactor = models.ClassRefactor
	classDocs     = models.ClassDocs
	classChore    = models.ClassChore
	classPerf     = models.ClassPerf
	classTest     = models.ClassTest
	classStyle    = models.ClassStyle
)

// Rebuild recomputes file_stats, file_contributors, and file_coupling from
// the current commits and commit_files rows and atomically replaces the
// previous derived tables with the result. Safe to call with zero commits
// (every derived table ends up empty) and idempotent: rerunning on
// unchanged inputs reproduces the same rows.
func (a *Aggregator) Rebuild(ctx context.Context) error {
	var commits []commitRow
	if err := a.db.SelectContext(ctx, &commits, `
		SELECT hash, author_name, author_email, committed_at, classification
		FROM commits
		ORDER BY committed_at ASC, hash ASC
	`); err != nil {
		return fmt.Errorf("query commits for rebuild: %w", err)
	}

	var files []fileRow
	if err := a.db.SelectContext(ctx, &files, `
		SELECT commit_hash, file_path, additions, deletions, lines_of_code, indent_complexity
		FROM commit_files
		ORDER BY rowid ASC
	`); err != nil {
		return fmt.Errorf("query commit_files for rebuild: %w", err)
	}

	filesByCommit := make(map[string][]fileRow, len(commits))
	for _, f := range files {
		filesByCommit[f.CommitHash] = append(filesByCommit[f.CommitHash], f)
	}

	fileStats := make(map[string]*fileAcc)
	contributors := make(map[string]map[string]*models.FileContributor)
	coupling := make(map[[2]string]int)

	for _, c := range commits {
		cfiles := filesByCommit[c.Hash]

		for _, f := range cfiles {
			acc, ok := fileStats[f.FilePath]
			if !ok {
				acc = &fileAcc{stats: models.FileStats{FilePath: f.FilePath, FirstSeen: c.CommittedAt}}
				fileStats[f.FilePath] = acc
			}
			acc.stats.TotalChanges++
			acc.stats.TotalAdditions += f.Additions
			acc.stats.TotalDeletions += f.Deletions
			acc.stats.LastChanged = c.CommittedAt
			if f.LinesOfCode.Valid {
				acc.stats.CurrentLOC = int(f.LinesOfCode.Int64)
				acc.stats.CurrentComplexity = int(f.IndentComplexity.Int64)
				acc.complexitySum += f.IndentComplexity.Int64
				acc.complexityCount++
				if int(f.IndentComplexity.Int64) > acc.stats.MaxComplexity {
					acc.stats.MaxComplexity = int(f.IndentComplexity.Int64)
				}
			}
			if c.Classification.Valid {
				acc.bump(models.Classification(c.Classification.String))
			}

			byEmail, ok := contributors[f.FilePath]
			if !ok {
				byEmail = make(map[string]*models.FileContributor)
				contributors[f.FilePath] = byEmail
			}
			fc, ok := byEmail[c.AuthorEmail]
			if !ok {
				fc = &models.FileContributor{FilePath: f.FilePath, AuthorEmail: c.AuthorEmail}
				byEmail[c.AuthorEmail] = fc
			}
			fc.DisplayName = c.AuthorName
			fc.CommitCount++
		}

		for _, pair := range couplingPairs(cfiles) {
			coupling[pair]++
		}
	}

	return a.writeDerivedTables(ctx, fileStats, contributors, coupling)
}

// couplingPairs returns every canonicalized (a, b) pair, a < b, among the
// top maxCouplingFilesPerCommit files by additions+deletions in cfiles.
// Commits touching fewer than two files contribute no pairs.
func couplingPairs(cfiles []fileRow) [][2]string {
	if len(cfiles) < 2 {
		return nil
	}

	ranked := make([]fileRow, len(cfiles))
	copy(ranked, cfiles)
	sort.Slice(ranked, func(i, j int) bool {
		ci := ranked[i].Additions + ranked[i].Deletions
		cj := ranked[j].Additions + ranked[j].Deletions
		if ci != cj {
			return ci > cj
		}
		return ranked[i].FilePath < ranked[j].FilePath
	})
	if len(ranked) > maxCouplingFilesPerCommit {
		ranked = ranked[:maxCouplingFilesPerCommit]
	}

	var pairs [][2]string
	for i := 0; i < len(ranked); i++ {
		for j := i + 1; j < len(ranked); j++ {
			a, b := ranked[i].FilePath, ranked[j].FilePath
			if a > b {
				a, b = b, a
			}
			pairs = append(pairs, [2]string{a, b})
		}
	}
	return pairs
}

func (a *Aggregator) writeDerivedTables(
	ctx context.Context,
	fileStats map[string]*fileAcc,
	contributors map[string]map[string]*models.FileContributor,
	coupling map[[2]string]int,
) error {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rebuild transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"file_stats", "file_contributors", "file_coupling"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	const statsSQL = `
		INSERT INTO file_stats (
			file_path, total_changes, bug_fix_count, feature_count, refactor_count,
			docs_count, chore_count, perf_count, test_count, style_count,
			first_seen, last_changed, total_additions, total_deletions,
			current_loc, current_complexity, avg_complexity, max_complexity
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, acc := range fileStats {
		s := acc.stats
		avgComplexity := 0.0
		if acc.complexityCount > 0 {
			avgComplexity = float64(acc.complexitySum) / float64(acc.complexityCount)
		}
		if _, err := tx.ExecContext(ctx, statsSQL,
			s.FilePath, s.TotalChanges, s.BugFixCount, s.FeatureCount, s.RefactorCount,
			s.DocsCount, s.ChoreCount, s.PerfCount, s.TestCount, s.StyleCount,
			s.FirstSeen.UTC().Format(time.RFC3339), s.LastChanged.UTC().Format(time.RFC3339),
			s.TotalAdditions, s.TotalDeletions,
			s.CurrentLOC, s.CurrentComplexity, avgComplexity, s.MaxComplexity,
		); err != nil {
			return fmt.Errorf("insert file_stats %s: %w", s.FilePath, err)
		}
	}

	const contribSQL = `
		INSERT INTO file_contributors (file_path, author_email, display_name, commit_count)
		VALUES (?, ?, ?, ?)
	`
	for _, byEmail := range contributors {
		for _, fc := range byEmail {
			if _, err := tx.ExecContext(ctx, contribSQL, fc.FilePath, fc.AuthorEmail, fc.DisplayName, fc.CommitCount); err != nil {
				return fmt.Errorf("insert file_contributors %s/%s: %w", fc.FilePath, fc.AuthorEmail, err)
			}
		}
	}

	const couplingSQL = `
		INSERT INTO file_coupling (file_a, file_b, co_change_count)
		VALUES (?, ?, ?)
	`
	for pair, count := range coupling {
		if _, err := tx.ExecContext(ctx, couplingSQL, pair[0], pair[1], count); err != nil {
			return fmt.Errorf("insert file_coupling %s/%s: %w", pair[0], pair[1], err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rebuild transaction: %w", err)
	}
	return nil
}

// FileStats returns the derived aggregate row for path, or nil if path has
// never appeared in a commit.
func (a *Aggregator) FileStats(ctx context.Context, path string) (*models.FileStats, error) {
	var s models.FileStats
	err := a.db.GetContext(ctx, &s, `SELECT * FROM file_stats WHERE file_path = ?`, path)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query file_stats %q: %w", path, err)
	}
	return &s, nil
}

// FileContributors returns path's contributors ordered by commit count
// descending.
func (a *Aggregator) FileContributors(ctx context.Context, path string) ([]models.FileContributor, error) {
	var rows []models.FileContributor
	err := a.db.SelectContext(ctx, &rows, `
		SELECT file_path, author_email, display_name, commit_count
		FROM file_contributors WHERE file_path = ? ORDER BY commit_count DESC
	`, path)
	if err != nil {
		return nil, fmt.Errorf("query file_contributors %q: %w", path, err)
	}
	return rows, nil
}

// FileCoupling returns path's top co-changed files, most frequent first.
func (a *Aggregator) FileCoupling(ctx context.Context, path string, limit int) ([]models.FileCoupling, error) {
	var rows []models.FileCoupling
	err := a.db.SelectContext(ctx, &rows, `
		SELECT file_a, file_b, co_change_count FROM file_coupling
		WHERE file_a = ? OR file_b = ?
		ORDER BY co_change_count DESC
		LIMIT ?
	`, path, path, limit)
	if err != nil {
		return nil, fmt.Errorf("query file_coupling %q: %w", path, err)
	}
	return rows, nil
}

// Trends computes on-demand, windowed period statistics for every commit
// touching a file whose path starts with prefix (an exact file path or a
// directory prefix), grouped by ISO 8601 period label. Unlike file_stats,
// nothing here is materialized: every call re-derives its answer from
// commits and commit_files.
func (a *Aggregator) Trends(ctx context.Context, prefix string, window models.TrendWindow) ([]models.TrendPeriod, error) {
	switch window {
	case models.TrendWeekly, models.TrendMonthly, models.TrendQuarterly:
	default:
		return nil, errs.Newf(errs.Validation, "unknown trend window %q", window)
	}

	type row struct {
		CommittedAt      time.Time      `db:"committed_at"`
		Classification   sql.NullString `db:"classification"`
		LinesOfCode      sql.NullInt64  `db:"lines_of_code"`
		IndentComplexity sql.NullInt64  `db:"indent_complexity"`
	}
	var rows []row
	err := a.db.SelectContext(ctx, &rows, `
		SELECT c.committed_at, c.classification, f.lines_of_code, f.indent_complexity
		FROM commits c
		JOIN commit_files f ON f.commit_hash = c.hash
		WHERE f.file_path = ? OR f.file_path LIKE ? ESCAPE '\'
		ORDER BY c.committed_at ASC
	`, prefix, escapeLikePrefix(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("query trend rows for %q: %w", prefix, err)
	}

	type bucket struct {
		period          models.TrendPeriod
		locSum          int64
		locCount        int64
		complexitySum   int64
		complexityCount int64
	}
	buckets := make(map[string]*bucket)
	var order []string

	for _, r := range rows {
		label := periodLabel(r.CommittedAt, window)
		b, ok := buckets[label]
		if !ok {
			b = &bucket{period: models.TrendPeriod{PeriodLabel: label, ClassCounts: map[models.Classification]int{}}}
			buckets[label] = b
			order = append(order, label)
		}
		b.period.TotalChanges++
		if r.Classification.Valid {
			b.period.ClassCounts[models.Classification(r.Classification.String)]++
		}
		if r.LinesOfCode.Valid {
			b.locSum += r.LinesOfCode.Int64
			b.locCount++
			b.complexitySum += r.IndentComplexity.Int64
			b.complexityCount++
		}
	}

	sort.Strings(order)
	periods := make([]models.TrendPeriod, 0, len(order))
	for _, label := range order {
		b := buckets[label]
		if b.locCount > 0 {
			b.period.AvgLOC = float64(b.locSum) / float64(b.locCount)
			b.period.AvgComplexity = float64(b.complexitySum) / float64(b.complexityCount)
		}
		periods = append(periods, b.period)
	}
	return periods, nil
}

func periodLabel(t time.Time, window models.TrendWindow) string {
	t = t.UTC()
	switch window {
	case models.TrendWeekly:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case models.TrendQuarterly:
		quarter := (int(t.Month())-1)/3 + 1
		return fmt.Sprintf("%04d-Q%d", t.Year(), quarter)
	default: // models.TrendMonthly
		return t.Format("2006-01")
	}
}

func escapeLikePrefix(s string) string {
	r := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\', '%', '_':
			r = append(r, '\\')
		}
		r = append(r, s[i])
	}
	return string(r)
}

// ComputeTrend reduces a chronologically ordered period list to a single
// direction judgement: the most recent half is compared against the
// earlier half for total volume, bug-fix volume, and average complexity,
// each using the >=1.15 increasing / <=0.85 decreasing / else stable
// threshold.
func ComputeTrend(periods []models.TrendPeriod) models.TrendSummary {
	if len(periods) == 0 {
		return models.TrendSummary{Direction: models.TrendStable, BugFixTrend: models.TrendStable, ComplexityTrend: models.TrendStable}
	}

	mid := len(periods) / 2
	historical := periods[:mid]
	recent := periods[mid:]

	recentAvg := avgTotalChanges(recent)
	historicalAvg := avgTotalChanges(historical)

	return models.TrendSummary{
		Direction:       direction(recentAvg, historicalAvg),
		RecentAvg:       recentAvg,
		HistoricalAvg:   historicalAvg,
		BugFixTrend:     direction(avgClassCount(recent, models.ClassBugFix), avgClassCount(historical, models.ClassBugFix)),
		ComplexityTrend: direction(avgComplexity(recent), avgComplexity(historical)),
	}
}

func avgTotalChanges(periods []models.TrendPeriod) float64 {
	if len(periods) == 0 {
		return 0
	}
	var sum int
	for _, p := range periods {
		sum += p.TotalChanges
	}
	return float64(sum) / float64(len(periods))
}

func avgClassCount(periods []models.TrendPeriod, c models.Classification) float64 {
	if len(periods) == 0 {
		return 0
	}
	var sum int
	for _, p := range periods {
		sum += p.ClassCounts[c]
	}
	return float64(sum) / float64(len(periods))
}

func avgComplexity(periods []models.TrendPeriod) float64 {
	if len(periods) == 0 {
		return 0
	}
	var sum float64
	for _, p := range periods {
		sum += p.AvgComplexity
	}
	return sum / float64(len(periods))
}

// direction compares recent against historical using spec.md §4.9's
// >=1.15 increasing / <=0.85 decreasing / else stable thresholds. A zero
// historical baseline is increasing if anything happened since, else stable.
func direction(recent, historical float64) models.TrendDirection {
	if historical == 0 {
		if recent > 0 {
			return models.TrendIncreasing
		}
		return models.TrendStable
	}
	ratio := recent / historical
	switch {
	case ratio >= 1.15:
		return models.TrendIncreasing
	case ratio <= 0.85:
		return models.TrendDecreasing
	default:
		return models.TrendStable
	}
}
