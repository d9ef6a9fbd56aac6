package measure

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

func TestLeadingIndentLevel(t *testing.T) {
	assert.Equal(t, 0, leadingIndentLevel("no indent"))
	assert.Equal(t, 1, leadingIndentLevel("    four spaces"))
	assert.Equal(t, 2, leadingIndentLevel("\t\teight via tabs"))
	assert.Equal(t, 1, leadingIndentLevel("  \ttwo spaces then a tab")) // 2 + 4 = 6 / 4 = 1
}

func TestIsGeneratedOrVendored(t *testing.T) {
	assert.True(t, isGeneratedOrVendored("web/package-lock.json"))
	assert.True(t, isGeneratedOrVendored("dist/app.min.js"))
	assert.True(t, isGeneratedOrVendored("dist/app.min.css"))
	assert.True(t, isGeneratedOrVendored("build/out.map"))
	assert.True(t, isGeneratedOrVendored("Gemfile.lock"))
	assert.False(t, isGeneratedOrVendored("src/app.go"))
}

func TestIsBinary(t *testing.T) {
	assert.True(t, isBinary([]byte("abc\x00def")))
	assert.False(t, isBinary([]byte("abcdef")))
}

func TestMeasurer_Run(t *testing.T) {
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
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.go"), []byte("package main\n\nfunc main() {\n    println(\"hi\")\n}\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "yarn.lock"), []byte("# lockfile\n"), 0644))
	run("add", ".")
	run("commit", "-q", "-m", "init")

	git := gitrepo.New(dir)
	ctx := context.Background()
	branch, err := git.DefaultBranch(ctx)
	require.NoError(t, err)
	hashes, err := git.CommitHashes(ctx, branch)
	require.NoError(t, err)
	rawCommits, err := git.CommitInfoBatch(ctx, hashes)
	require.NoError(t, err)

	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	defer st.Close()
	cs := commitstore.New(st.DB())
	require.NoError(t, cs.InsertRaw(ctx, rawCommits))

	measurer := New(git, cs)
	var progressCalls int
	require.NoError(t, measurer.Run(ctx, hashes, func(p Progress) { progressCalls++ }))
	assert.Greater(t, progressCalls, 0)

	filesByHash, err := cs.FilesByHashes(ctx, hashes)
	require.NoError(t, err)
	var appGo, yarnLock models.CommitFile
	for _, f := range filesByHash[hashes[0]] {
		switch f.FilePath {
		case "app.go":
			appGo = f
		case "yarn.lock":
			yarnLock = f
		}
	}
	require.True(t, appGo.IsMeasured())
	assert.Equal(t, 4, *appGo.LinesOfCode)

	require.True(t, yarnLock.IsMeasured())
	assert.Equal(t, 0, *yarnLock.LinesOfCode) // short-circuited lockfile
}
