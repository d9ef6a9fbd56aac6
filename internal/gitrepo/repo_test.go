package gitrepo

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-q")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test User")

	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}

	write("src/app.ts", "console.log('a')\n")
	write("src/utils.ts", "export const x = 1\n")
	run("add", ".")
	run("commit", "-q", "-m", "initial")

	write("src/app.ts", "console.log('a')\nconsole.log('b')\n")
	run("add", ".")
	run("commit", "-q", "-m", "fix bug")

	return dir
}

func TestAdapter_CommitHashesAndInfo(t *testing.T) {
	dir := initRepo(t)
	a := New(dir)
	ctx := context.Background()

	require.True(t, a.IsRepo(ctx))

	branch, err := a.DefaultBranch(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, branch)

	hashes, err := a.CommitHashes(ctx, branch)
	require.NoError(t, err)
	require.Len(t, hashes, 2)

	commits, err := a.CommitInfoBatch(ctx, hashes)
	require.NoError(t, err)
	require.Len(t, commits, 2)
	// Newest first, same order as the hash list we passed in.
	assert.Equal(t, hashes[0], commits[0].Hash)
	assert.Equal(t, "fix bug", commits[0].Message)
	assert.Equal(t, "test@example.com", commits[0].AuthorEmail)
	require.Len(t, commits[0].Files, 1)
	assert.Equal(t, "src/app.ts", commits[0].Files[0].Path)
	assert.Equal(t, "M", commits[0].Files[0].ChangeType)
	assert.Equal(t, 1, commits[0].Files[0].Additions)

	count, err := a.TotalCommitCount(ctx, branch)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestAdapter_FileContentsBatch(t *testing.T) {
	dir := initRepo(t)
	a := New(dir)
	ctx := context.Background()

	branch, err := a.DefaultBranch(ctx)
	require.NoError(t, err)
	hashes, err := a.CommitHashes(ctx, branch)
	require.NoError(t, err)

	contents, err := a.FileContentsBatch(ctx, []FileRef{
		{Hash: hashes[0], Path: "src/app.ts"},
		{Hash: hashes[0], Path: "does/not/exist.ts"},
	})
	require.NoError(t, err)
	assert.Contains(t, string(contents[FileRef{Hash: hashes[0], Path: "src/app.ts"}]), "console.log")
	_, missing := contents[FileRef{Hash: hashes[0], Path: "does/not/exist.ts"}]
	assert.False(t, missing)
}

func TestAdapter_DiffBatch(t *testing.T) {
	dir := initRepo(t)
	a := New(dir)
	ctx := context.Background()

	branch, err := a.DefaultBranch(ctx)
	require.NoError(t, err)
	hashes, err := a.CommitHashes(ctx, branch)
	require.NoError(t, err)

	diffs, err := a.DiffBatch(ctx, hashes, 10000)
	require.NoError(t, err)
	assert.Contains(t, diffs[hashes[0]], "console.log")
}

func TestFairTruncate_SmallSectionsSurviveIntact(t *testing.T) {
	section := func(path string, body string) string {
		return "diff --git a/" + path + " b/" + path + "\n" + body
	}
	a := section("a.txt", repeatStr("a", 5000))
	b := section("b.txt", repeatStr("b", 5000))
	c := section("c.txt", repeatStr("c", 200000))
	d := section("d.txt", repeatStr("d", 200000))
	diff := a + b + c + d

	out := fairTruncate(diff, 20000)

	assert.Contains(t, out, a)
	assert.Contains(t, out, b)
	assert.LessOrEqual(t, len(out), 20000+2*len(truncationMarker)+100)
	assert.Contains(t, out, truncationMarker)
}

func TestFairTruncate_NeverSplitsSurrogatePair(t *testing.T) {
	section := "diff --git a/f.txt b/f.txt\n" + repeatStr("x", 100) + "😀" + repeatStr("y", 100)
	out := fairTruncate(section, 101)
	// The string must remain valid UTF-8: no split mid-rune.
	assert.True(t, isValidUTF8(out))
}

func repeatStr(s string, n int) string {
	b := make([]byte, 0, n*len(s))
	for i := 0; i < n; i++ {
		b = append(b, s...)
	}
	return string(b)
}

func isValidUTF8(s string) bool {
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			return false
		}
		i += size
	}
	return true
}
