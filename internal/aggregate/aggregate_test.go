package aggregate

import (
	"context"
	"testing"
	"time"

	"github.com/jmcdonald-ut/gitmem/internal/commitstore"
	"github.com/jmcdonald-ut/gitmem/internal/models"
	"github.com/jmcdonald-ut/gitmem/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAggregator(t *testing.T) (*Aggregator, *commitstore.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st.DB()), commitstore.New(st.DB())
}

// seedThreeCommitScenario reproduces the A1/A2/A3 worked example: two
// files that co-change across all three commits, with a feature/bug-fix/
// feature classification split.
func seedThreeCommitScenario(t *testing.T, cs *commitstore.Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	commits := []models.RawCommit{
		{
			Hash: "a1", AuthorName: "Ada", AuthorEmail: "ada@example.com",
			CommittedAt: base, Message: "initial",
			Files: []models.RawCommitFile{
				{Path: "src/app.ts", ChangeType: "A", Additions: 100, Deletions: 0},
				{Path: "src/utils.ts", ChangeType: "A", Additions: 50, Deletions: 0},
			},
		},
		{
			Hash: "a2", AuthorName: "Ada", AuthorEmail: "ada@example.com",
			CommittedAt: base.Add(time.Hour), Message: "fix bug",
			Files: []models.RawCommitFile{
				{Path: "src/app.ts", ChangeType: "M", Additions: 5, Deletions: 3},
				{Path: "src/utils.ts", ChangeType: "M", Additions: 2, Deletions: 1},
			},
		},
		{
			Hash: "a3", AuthorName: "Grace", AuthorEmail: "grace@example.com",
			CommittedAt: base.Add(2 * time.Hour), Message: "add feature",
			Files: []models.RawCommitFile{
				{Path: "src/app.ts", ChangeType: "M", Additions: 20, Deletions: 5},
			},
		},
	}
	require.NoError(t, cs.InsertRaw(ctx, commits))

	enrichments := []models.Enrichment{
		{Hash: "a1", Classification: models.ClassFeature, Summary: "Initial setup", Model: "stub"},
		{Hash: "a2", Classification: models.ClassBugFix, Summary: "Fixed bug", Model: "stub"},
		{Hash: "a3", Classification: models.ClassFeature, Summary: "New feature", Model: "stub"},
	}
	require.NoError(t, cs.UpdateEnrichmentBatch(ctx, enrichments))
}

func TestAggregator_Rebuild_FileStatsMatchWorkedExample(t *testing.T) {
	agg, cs := newTestAggregator(t)
	seedThreeCommitScenario(t, cs)
	ctx := context.Background()

	require.NoError(t, agg.Rebuild(ctx))

	var stats models.FileStats
	require.NoError(t, agg.db.GetContext(ctx, &stats, `SELECT * FROM file_stats WHERE file_path = ?`, "src/app.ts"))
	assert.Equal(t, 3, stats.TotalChanges)
	assert.Equal(t, 2, stats.FeatureCount)
	assert.Equal(t, 1, stats.BugFixCount)
	assert.Equal(t, 125, stats.TotalAdditions)
	assert.Equal(t, 8, stats.TotalDeletions)
}

func TestAggregator_Rebuild_CouplingCountsCoChanges(t *testing.T) {
	agg, cs := newTestAggregator(t)
	seedThreeCommitScenario(t, cs)
	ctx := context.Background()

	require.NoError(t, agg.Rebuild(ctx))

	var coupling models.FileCoupling
	require.NoError(t, agg.db.GetContext(ctx, &coupling, `SELECT * FROM file_coupling WHERE file_a = ? AND file_b = ?`, "src/app.ts", "src/utils.ts"))
	assert.Equal(t, 2, coupling.CoChangeCount)
}

func TestAggregator_Rebuild_SingleFileCommitContributesNoCoupling(t *testing.T) {
	agg, cs := newTestAggregator(t)
	seedThreeCommitScenario(t, cs)
	ctx := context.Background()
	require.NoError(t, agg.Rebuild(ctx))

	var count int
	require.NoError(t, agg.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM file_coupling WHERE file_a = ? OR file_b = ?`, "src/app.ts", "src/app.ts"))
	// a3 alone touches only src/app.ts and contributes zero new pairs beyond
	// the a1/a2 (app.ts, utils.ts) pairing already counted above.
	assert.Equal(t, 1, count)
}

func TestAggregator_Rebuild_EmptyRepositoryProducesEmptyTables(t *testing.T) {
	agg, _ := newTestAggregator(t)
	ctx := context.Background()

	require.NoError(t, agg.Rebuild(ctx))

	for _, table := range []string{"file_stats", "file_contributors", "file_coupling"} {
		var count int
		require.NoError(t, agg.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM `+table))
		assert.Zero(t, count, table)
	}
}

func TestAggregator_Rebuild_IsIdempotent(t *testing.T) {
	agg, cs := newTestAggregator(t)
	seedThreeCommitScenario(t, cs)
	ctx := context.Background()

	require.NoError(t, agg.Rebuild(ctx))
	var first models.FileStats
	require.NoError(t, agg.db.GetContext(ctx, &first, `SELECT * FROM file_stats WHERE file_path = ?`, "src/app.ts"))

	require.NoError(t, agg.Rebuild(ctx))
	var second models.FileStats
	require.NoError(t, agg.db.GetContext(ctx, &second, `SELECT * FROM file_stats WHERE file_path = ?`, "src/app.ts"))

	assert.Equal(t, first, second)
}

func TestAggregator_Rebuild_ContributorsTrackPerAuthorCounts(t *testing.T) {
	agg, cs := newTestAggregator(t)
	seedThreeCommitScenario(t, cs)
	ctx := context.Background()
	require.NoError(t, agg.Rebuild(ctx))

	var contributors []models.FileContributor
	require.NoError(t, agg.db.SelectContext(ctx, &contributors, `SELECT * FROM file_contributors WHERE file_path = ? ORDER BY author_email`, "src/app.ts"))
	require.Len(t, contributors, 2)
	assert.Equal(t, "ada@example.com", contributors[0].AuthorEmail)
	assert.Equal(t, 2, contributors[0].CommitCount)
	assert.Equal(t, "grace@example.com", contributors[1].AuthorEmail)
	assert.Equal(t, 1, contributors[1].CommitCount)
}

func TestAggregator_Rebuild_CouplingCanonicalization(t *testing.T) {
	agg, cs := newTestAggregator(t)
	ctx := context.Background()
	require.NoError(t, cs.InsertRaw(ctx, []models.RawCommit{{
		Hash: "z1", AuthorName: "A", AuthorEmail: "a@example.com", CommittedAt: time.Now(), Message: "m",
		Files: []models.RawCommitFile{
			{Path: "z.go", ChangeType: "M", Additions: 1},
			{Path: "a.go", ChangeType: "M", Additions: 1},
		},
	}}))
	require.NoError(t, agg.Rebuild(ctx))

	var coupling models.FileCoupling
	require.NoError(t, agg.db.GetContext(ctx, &coupling, `SELECT * FROM file_coupling`))
	assert.Equal(t, "a.go", coupling.FileA)
	assert.Equal(t, "z.go", coupling.FileB)
	assert.True(t, coupling.FileA < coupling.FileB)
}

func TestAggregator_Rebuild_CapsCouplingPairsPerCommit(t *testing.T) {
	agg, cs := newTestAggregator(t)
	ctx := context.Background()

	files := make([]models.RawCommitFile, 0, maxCouplingFilesPerCommit+10)
	for i := 0; i < maxCouplingFilesPerCommit+10; i++ {
		files = append(files, models.RawCommitFile{Path: rankedName(i), ChangeType: "M", Additions: maxCouplingFilesPerCommit + 10 - i})
	}
	require.NoError(t, cs.InsertRaw(ctx, []models.RawCommit{{
		Hash: "big", AuthorName: "A", AuthorEmail: "a@example.com", CommittedAt: time.Now(), Message: "huge merge",
		Files: files,
	}}))
	require.NoError(t, agg.Rebuild(ctx))

	var count int
	require.NoError(t, agg.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM file_coupling`))
	expected := maxCouplingFilesPerCommit * (maxCouplingFilesPerCommit - 1) / 2
	assert.Equal(t, expected, count)
}

func rankedName(i int) string {
	return "file_" + string(rune('a'+i%26)) + "_" + string(rune('0'+i/26))
}

func TestAggregator_Trends_MonthlyWindowMatchesWorkedExample(t *testing.T) {
	agg, cs := newTestAggregator(t)
	seedThreeCommitScenario(t, cs)
	ctx := context.Background()

	periods, err := agg.Trends(ctx, "src/app.ts", models.TrendMonthly)
	require.NoError(t, err)
	require.Len(t, periods, 1)
	assert.Equal(t, 3, periods[0].TotalChanges)
	assert.Equal(t, 2, periods[0].ClassCounts[models.ClassFeature])
	assert.Equal(t, 1, periods[0].ClassCounts[models.ClassBugFix])
}

func TestAggregator_Trends_DirectoryPrefixMatchesNestedFiles(t *testing.T) {
	agg, cs := newTestAggregator(t)
	seedThreeCommitScenario(t, cs)
	ctx := context.Background()

	periods, err := agg.Trends(ctx, "src/", models.TrendMonthly)
	require.NoError(t, err)
	require.Len(t, periods, 1)
	assert.Equal(t, 5, periods[0].TotalChanges) // app.ts x3 + utils.ts x2
}

func TestAggregator_Trends_RejectsUnknownWindow(t *testing.T) {
	agg, _ := newTestAggregator(t)
	_, err := agg.Trends(context.Background(), "src/", models.TrendWindow("daily"))
	assert.Error(t, err)
}

func TestComputeTrend_IncreasingRecentVolume(t *testing.T) {
	periods := []models.TrendPeriod{
		{PeriodLabel: "2026-01", TotalChanges: 10, ClassCounts: map[models.Classification]int{}},
		{PeriodLabel: "2026-02", TotalChanges: 20, ClassCounts: map[models.Classification]int{}},
	}
	summary := ComputeTrend(periods)
	assert.Equal(t, models.TrendIncreasing, summary.Direction)
	assert.Equal(t, 10.0, summary.HistoricalAvg)
	assert.Equal(t, 20.0, summary.RecentAvg)
}

func TestComputeTrend_StableWithinThreshold(t *testing.T) {
	periods := []models.TrendPeriod{
		{PeriodLabel: "2026-01", TotalChanges: 10, ClassCounts: map[models.Classification]int{}},
		{PeriodLabel: "2026-02", TotalChanges: 11, ClassCounts: map[models.Classification]int{}},
	}
	summary := ComputeTrend(periods)
	assert.Equal(t, models.TrendStable, summary.Direction)
}

func TestComputeTrend_DecreasingBugFixVolume(t *testing.T) {
	periods := []models.TrendPeriod{
		{PeriodLabel: "2026-01", ClassCounts: map[models.Classification]int{models.ClassBugFix: 10}},
		{PeriodLabel: "2026-02", ClassCounts: map[models.Classification]int{models.ClassBugFix: 2}},
	}
	summary := ComputeTrend(periods)
	assert.Equal(t, models.TrendDecreasing, summary.BugFixTrend)
}

func TestComputeTrend_EmptyPeriodsIsStable(t *testing.T) {
	summary := ComputeTrend(nil)
	assert.Equal(t, models.TrendStable, summary.Direction)
	assert.Equal(t, models.TrendStable, summary.BugFixTrend)
	assert.Equal(t, models.TrendStable, summary.ComplexityTrend)
}
