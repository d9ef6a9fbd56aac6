package enrich

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmcdonald-ut/gitmem/internal/commitstore"
	"github.com/jmcdonald-ut/gitmem/internal/gitrepo"
	"github.com/jmcdonald-ut/gitmem/internal/measure"
	"github.com/jmcdonald-ut/gitmem/internal/models"
	"github.com/jmcdonald-ut/gitmem/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAggregator and fakeSearch stand in for the aggregate and search
// packages so the Enricher's finalization step can be exercised against
// its narrow interfaces.
type fakeAggregator struct{ rebuilds int }

func (f *fakeAggregator) Rebuild(ctx context.Context) error { f.rebuilds++; return nil }

type fakeSearch struct{ indexed []string }

func (f *fakeSearch) IndexNewCommits(ctx context.Context, hashes []string) error {
	f.indexed = append(f.indexed, hashes...)
	return nil
}

func setupRepo(t *testing.T) (dir string, commitAt func(msg, path, contents string) time.Time) {
	t.Helper()
	dir = t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-q")
	run("config", "user.email", "a@b.com")
	run("config", "user.name", "A")

	commitAt = func(msg, path, contents string) time.Time {
		require.NoError(t, os.WriteFile(filepath.Join(dir, path), []byte(contents), 0644))
		run("add", ".")
		run("commit", "-q", "-m", msg)
		cmd := exec.Command("git", "log", "-1", "--format=%aI")
		cmd.Dir = dir
		out, err := cmd.Output()
		require.NoError(t, err)
		ts, err := time.Parse(time.RFC3339, string(out[:len(out)-1]))
		require.NoError(t, err)
		return ts
	}
	return dir, commitAt
}

func newEnricherForDiscovery(t *testing.T, dir string) (*Enricher, *commitstore.Store, *fakeAggregator, *fakeSearch) {
	t.Helper()
	git := gitrepo.New(dir)
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	cs := commitstore.New(st.DB())
	measurer := measure.New(git, cs)
	agg := &fakeAggregator{}
	search := &fakeSearch{}
	e := New(git, st, cs, measurer, nil, nil, nil, agg, search)
	return e, cs, agg, search
}

func TestEnricher_Discover_InsertsAndMeasuresNewCommits(t *testing.T) {
	dir, commitAt := setupRepo(t)
	commitAt("first", "a.go", "package main\nfunc A() {}\n")
	commitAt("second", "b.go", "package main\nfunc B() {}\n")

	e, cs, _, _ := newEnricherForDiscovery(t, dir)
	ctx := context.Background()

	var progressed []Progress
	require.NoError(t, e.discover(ctx, nil, func(p Progress) { progressed = append(progressed, p) }))

	unenriched, err := cs.Unenriched(ctx)
	require.NoError(t, err)
	assert.Len(t, unenriched, 2)

	var sawDiscovering, sawMeasuring bool
	for _, p := range progressed {
		if p.Phase == PhaseDiscovering {
			sawDiscovering = true
		}
		if p.Phase == PhaseMeasuring {
			sawMeasuring = true
		}
	}
	assert.True(t, sawDiscovering)
	assert.True(t, sawMeasuring)

	// Re-running discovery against the same repo is a no-op: everything is
	// already indexed, so nothing new gets measured.
	require.NoError(t, e.discover(ctx, nil, func(Progress) {}))
	unenriched, err = cs.Unenriched(ctx)
	require.NoError(t, err)
	assert.Len(t, unenriched, 2)
}

func TestEnricher_Discover_DropsCommitsBeforeIndexStartDate(t *testing.T) {
	dir, commitAt := setupRepo(t)
	oldAt := commitAt("old", "old.go", "package main\n")
	cutoff := oldAt.Add(500 * time.Millisecond)
	time.Sleep(1100 * time.Millisecond) // ensure "new"'s committed_at lands after cutoff
	commitAt("new", "new.go", "package main\n")

	e, cs, _, _ := newEnricherForDiscovery(t, dir)
	ctx := context.Background()
	require.NoError(t, e.discover(ctx, &cutoff, func(Progress) {}))

	unenriched, err := cs.Unenriched(ctx)
	require.NoError(t, err)
	require.Len(t, unenriched, 1)
	assert.Equal(t, "new", unenriched[0].Message)
}

func TestEnricher_DryRun_DiscoversWithoutClassifyingOrIndexing(t *testing.T) {
	dir, commitAt := setupRepo(t)
	commitAt("first", "a.go", "package main\nfunc A() {}\n")
	commitAt("second", "b.go", "package main\nfunc B() {}\n")

	e, cs, agg, search := newEnricherForDiscovery(t, dir)
	ctx := context.Background()

	result, err := e.DryRun(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeComplete, result.Outcome)
	assert.Zero(t, result.Enriched)
	assert.Zero(t, result.Failed)

	unenriched, err := cs.Unenriched(ctx)
	require.NoError(t, err)
	assert.Len(t, unenriched, 2)

	assert.Zero(t, agg.rebuilds)
	assert.Empty(t, search.indexed)
}

func TestEnricher_DryRun_NoWorkWhenRepoHasNoCommits(t *testing.T) {
	dir, _ := setupRepo(t)

	e, _, agg, search := newEnricherForDiscovery(t, dir)
	ctx := context.Background()

	result, err := e.DryRun(ctx, nil, func(Progress) {})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoWork, result.Outcome)
	assert.Zero(t, agg.rebuilds)
	assert.Empty(t, search.indexed)
}

func TestEnricher_Finalize_RebuildsAndIndexesAndStampsMetadata(t *testing.T) {
	dir, commitAt := setupRepo(t)
	commitAt("only", "a.go", "package main\n")

	e, _, agg, search := newEnricherForDiscovery(t, dir)
	ctx := context.Background()

	require.NoError(t, e.finalize(ctx, []string{"h1", "h2"}, "claude-test", func(Progress) {}))
	assert.Equal(t, 1, agg.rebuilds)
	assert.Equal(t, []string{"h1", "h2"}, search.indexed)

	lastRun, ok, err := e.store.GetMetadata(ctx, store.MetaLastRun)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, lastRun)

	modelUsed, ok, err := e.store.GetMetadata(ctx, store.MetaModelUsed)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "claude-test", modelUsed)
}

func TestEnricher_Finalize_SkipsSearchWhenNoHashesEnriched(t *testing.T) {
	dir, commitAt := setupRepo(t)
	commitAt("only", "a.go", "package main\n")

	e, _, agg, search := newEnricherForDiscovery(t, dir)
	ctx := context.Background()

	require.NoError(t, e.finalize(ctx, nil, "claude-test", func(Progress) {}))
	assert.Equal(t, 1, agg.rebuilds)
	assert.Empty(t, search.indexed)
}

func TestToRawFiles(t *testing.T) {
	files := []models.CommitFile{
		{CommitHash: "h1", FilePath: "a.go", ChangeType: "M", Additions: 3, Deletions: 1},
	}
	raw := toRawFiles(files)
	require.Len(t, raw, 1)
	assert.Equal(t, "a.go", raw[0].Path)
	assert.Equal(t, "M", raw[0].ChangeType)
	assert.Equal(t, 3, raw[0].Additions)
	assert.Equal(t, 1, raw[0].Deletions)
}

func TestHashesOf(t *testing.T) {
	commits := []models.Commit{{Hash: "a"}, {Hash: "b"}}
	assert.Equal(t, []string{"a", "b"}, hashesOf(commits))
}
