// Package models holds the shared data types for gitmem's commit store,
// enrichment pipeline, and derived aggregates.
package models

import "time"

// Classification is the closed vocabulary an enrichment assigns to a commit.
type Classification string

const (
	ClassBugFix   Classification = "bug-fix"
	ClassFeature  Classification = "feature"
	ClassRefactor Classification = "refactor"
	ClassDocs     Classification = "docs"
	ClassChore    Classification = "chore"
	ClassPerf     Classification = "perf"
	ClassTest     Classification = "test"
	ClassStyle    Classification = "style"
)

// ValidClassifications is the full closed set, in a stable display order.
var ValidClassifications = []Classification{
	ClassBugFix, ClassFeature, ClassRefactor, ClassDocs,
	ClassChore, ClassPerf, ClassTest, ClassStyle,
}

// IsValid reports whether c is one of the eight known labels.
func (c Classification) IsValid() bool {
	for _, v := range ValidClassifications {
		if v == c {
			return true
		}
	}
	return false
}

// NoSummarySentinel is substituted when the model returns a non-string summary.
const NoSummarySentinel = "No summary"

// Commit is a single commit row plus its (possibly absent) enrichment.
type Commit struct {
	Hash          string     `db:"hash"`
	AuthorName    string     `db:"author_name"`
	AuthorEmail   string     `db:"author_email"`
	CommittedAt   time.Time  `db:"committed_at"`
	Message       string     `db:"message"`
	Classification *string   `db:"classification"`
	Summary        *string   `db:"summary"`
	EnrichedAt     *time.Time `db:"enriched_at"`
	ModelUsed      *string    `db:"model_used"`
}

// IsEnriched reports whether the enrichment triple is present.
func (c *Commit) IsEnriched() bool { return c.EnrichedAt != nil }

// ChangeType is the single-character git change-type code.
type ChangeType string

const (
	ChangeAdded     ChangeType = "A"
	ChangeModified  ChangeType = "M"
	ChangeDeleted   ChangeType = "D"
	ChangeRenamed   ChangeType = "R"
	ChangeCopied    ChangeType = "C"
	ChangeTypeEdit  ChangeType = "T"
)

// CommitFile is a (commit, path) row with change stats and optional
// complexity measurements.
type CommitFile struct {
	CommitHash      string   `db:"commit_hash"`
	FilePath        string   `db:"file_path"`
	ChangeType      string   `db:"change_type"`
	Additions       int      `db:"additions"`
	Deletions       int      `db:"deletions"`
	LinesOfCode     *int     `db:"lines_of_code"`
	IndentComplexity *int    `db:"indent_complexity"`
	MaxIndent       *int     `db:"max_indent"`
}

// IsMeasured reports whether the complexity triple has been filled in.
func (f *CommitFile) IsMeasured() bool { return f.LinesOfCode != nil }

// RawCommit is what the git adapter returns before it is persisted:
// full commit metadata plus its file change list.
type RawCommit struct {
	Hash        string
	AuthorName  string
	AuthorEmail string
	CommittedAt time.Time
	Message     string
	Files       []RawCommitFile
}

// RawCommitFile is one file entry inside a RawCommit.
type RawCommitFile struct {
	Path       string
	ChangeType string
	Additions  int
	Deletions  int
}

// Enrichment is the (classification, summary, model) triple produced for
// one commit by the classifier.
type Enrichment struct {
	Hash           string
	Classification Classification
	Summary        string
	Model          string
}

// Complexity is the per-file measurement triple.
type Complexity struct {
	CommitHash  string
	FilePath    string
	LinesOfCode int
	IndentSum   int
	MaxIndent   int
}

// FileStats is the derived per-file aggregate row.
type FileStats struct {
	FilePath          string     `db:"file_path"`
	TotalChanges      int        `db:"total_changes"`
	BugFixCount       int        `db:"bug_fix_count"`
	FeatureCount      int        `db:"feature_count"`
	RefactorCount     int        `db:"refactor_count"`
	DocsCount         int        `db:"docs_count"`
	ChoreCount        int        `db:"chore_count"`
	PerfCount         int        `db:"perf_count"`
	TestCount         int        `db:"test_count"`
	StyleCount        int        `db:"style_count"`
	FirstSeen         time.Time  `db:"first_seen"`
	LastChanged        time.Time `db:"last_changed"`
	TotalAdditions    int        `db:"total_additions"`
	TotalDeletions    int        `db:"total_deletions"`
	CurrentLOC        int        `db:"current_loc"`
	CurrentComplexity int        `db:"current_complexity"`
	AvgComplexity     float64    `db:"avg_complexity"`
	MaxComplexity     int        `db:"max_complexity"`
}

// CountFor returns the counter column for a classification label.
func (s *FileStats) CountFor(c Classification) int {
	switch c {
	case ClassBugFix:
		return s.BugFixCount
	case ClassFeature:
		return s.FeatureCount
	case ClassRefactor:
		return s.RefactorCount
	case ClassDocs:
		return s.DocsCount
	case ClassChore:
		return s.ChoreCount
	case ClassPerf:
		return s.PerfCount
	case ClassTest:
		return s.TestCount
	case ClassStyle:
		return s.StyleCount
	}
	return 0
}

// FileContributor is the derived per (file, author) row.
type FileContributor struct {
	FilePath     string `db:"file_path"`
	AuthorEmail  string `db:"author_email"`
	DisplayName  string `db:"display_name"`
	CommitCount  int    `db:"commit_count"`
}

// FileCoupling is a canonicalized co-change pair: FileA < FileB.
type FileCoupling struct {
	FileA          string `db:"file_a"`
	FileB          string `db:"file_b"`
	CoChangeCount  int    `db:"co_change_count"`
}

// BatchJobType distinguishes an enrichment batch from a judge ("check") batch.
type BatchJobType string

const (
	BatchTypeIndex BatchJobType = "index"
	BatchTypeCheck BatchJobType = "check"
)

// BatchJobStatus is the lifecycle state of a submitted batch.
type BatchJobStatus string

const (
	BatchStatusSubmitted  BatchJobStatus = "submitted"
	BatchStatusInProgress BatchJobStatus = "in_progress"
	BatchStatusEnded      BatchJobStatus = "ended"
	BatchStatusFailed     BatchJobStatus = "failed"
)

// IsTerminal reports whether the status ends the batch's lifecycle.
func (s BatchJobStatus) IsTerminal() bool {
	return s == BatchStatusEnded || s == BatchStatusFailed
}

// BatchJob is one outstanding or completed vendor batch submission.
type BatchJob struct {
	BatchID        string         `db:"batch_id"`
	Type           BatchJobType   `db:"type"`
	Status         BatchJobStatus `db:"status"`
	RequestCount   int            `db:"request_count"`
	SucceededCount int            `db:"succeeded_count"`
	FailedCount    int            `db:"failed_count"`
	SubmittedAt    time.Time      `db:"submitted_at"`
	CompletedAt    *time.Time     `db:"completed_at"`
	ModelUsed      string         `db:"model_used"`
}

// CheckBatchItem snapshots the enrichment under evaluation for one commit
// in a judge batch, so the verdict can be attached correctly even if the
// commit's enrichment changed before results came back.
type CheckBatchItem struct {
	BatchID        string `db:"batch_id"`
	Hash           string `db:"hash"`
	Classification string `db:"classification"`
	Summary        string `db:"summary"`
}

// Verdict is the judge's pass/fail call on one evaluation dimension.
type Verdict struct {
	Pass                   bool    `json:"pass"`
	Reasoning              string  `json:"reasoning"`
	SuggestedClassification *string `json:"suggested_classification,omitempty"`
}

// EvalResult is the judge's full output for one commit.
type EvalResult struct {
	Hash                  string
	Classification        string
	Summary               string
	ClassificationVerdict Verdict
	AccuracyVerdict       Verdict
	CompletenessVerdict   Verdict
}

// EvalSummary aggregates pass counts across a batch of EvalResults.
type EvalSummary struct {
	Total                  int
	ClassificationPassed   int
	AccuracyPassed         int
	CompletenessPassed     int
}

// RecentCommit is the shape returned by the "recent touches" queries.
type RecentCommit struct {
	Hash        string    `db:"hash"`
	Message     string    `db:"message"`
	CommittedAt time.Time `db:"committed_at"`
	AuthorName  string    `db:"author_name"`
}

// TrendWindow is the bucket key for trend queries.
type TrendWindow string

const (
	TrendWeekly    TrendWindow = "weekly"
	TrendMonthly   TrendWindow = "monthly"
	TrendQuarterly TrendWindow = "quarterly"
)

// TrendPeriod is one bucketed period's counters.
type TrendPeriod struct {
	PeriodLabel       string
	TotalChanges      int
	ClassCounts       map[Classification]int
	AvgComplexity     float64
	AvgLOC            float64
}

// TrendDirection classifies how a metric moved between two halves of a period list.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// TrendSummary reduces a period list to a single direction judgement.
type TrendSummary struct {
	Direction       TrendDirection
	RecentAvg       float64
	HistoricalAvg   float64
	BugFixTrend     TrendDirection
	ComplexityTrend TrendDirection
}
