package judge

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/jmcdonald-ut/gitmem/internal/commitstore"
	"github.com/jmcdonald-ut/gitmem/internal/gitrepo"
	"github.com/jmcdonald-ut/gitmem/internal/models"
	"github.com/jmcdonald-ut/gitmem/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEnrichedRepo(t *testing.T) (*Orchestrator, *commitstore.Store, []string) {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-q")
	run("config", "user.email", "a@b.com")
	run("config", "user.name", "A")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package main\nfunc A() {}\n"), 0644))
	run("add", ".")
	run("commit", "-q", "-m", "add A")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package main\nfunc A() { return }\n"), 0644))
	run("add", ".")
	run("commit", "-q", "-m", "fix A")

	git := gitrepo.New(dir)
	ctx := context.Background()
	branch, err := git.DefaultBranch(ctx)
	require.NoError(t, err)
	hashes, err := git.CommitHashes(ctx, branch)
	require.NoError(t, err)
	raw, err := git.CommitInfoBatch(ctx, hashes)
	require.NoError(t, err)

	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	cs := commitstore.New(st.DB())
	require.NoError(t, cs.InsertRaw(ctx, raw))

	for _, h := range hashes {
		require.NoError(t, cs.UpdateEnrichment(ctx, models.Enrichment{
			Hash: h, Classification: models.ClassBugFix, Summary: "did a thing", Model: "claude-test",
		}))
	}

	o := NewOrchestrator(git, cs, nil, nil, nil)
	return o, cs, hashes
}

func TestOrchestrator_SelectOne(t *testing.T) {
	o, _, hashes := setupEnrichedRepo(t)
	ctx := context.Background()

	commits, err := o.SelectOne(ctx, hashes[0])
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, hashes[0], commits[0].Hash)
}

func TestOrchestrator_SelectSample(t *testing.T) {
	o, _, _ := setupEnrichedRepo(t)
	ctx := context.Background()

	commits, err := o.SelectSample(ctx, 10, true)
	require.NoError(t, err)
	assert.Len(t, commits, 2)
}

func TestOrchestrator_BuildRequests(t *testing.T) {
	o, _, hashes := setupEnrichedRepo(t)
	ctx := context.Background()

	commits, err := o.SelectOne(ctx, hashes[1])
	require.NoError(t, err)

	reqs, err := o.buildRequests(ctx, commits)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, hashes[1], reqs[0].Hash)
	assert.Equal(t, "bug-fix", reqs[0].Classification)
	assert.Equal(t, "did a thing", reqs[0].Summary)
	require.Len(t, reqs[0].Files, 1)
	assert.Equal(t, "a.go", reqs[0].Files[0].Path)
}
