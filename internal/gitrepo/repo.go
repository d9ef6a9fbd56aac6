// Package gitrepo is gitmem's read-only adapter over a local git working
// copy. Every operation shells out to the system git binary (no go-git
// object-model dependency — numstat/diff/cat-file --batch streaming have
// no first-class equivalent there) and every batched form issues a bounded
// number of subprocess invocations regardless of input size.
package gitrepo

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Adapter is a read-only handle on one local repository.
type Adapter struct {
	repoPath string
	logger   *logrus.Entry
}

// New returns an Adapter rooted at repoPath (any directory inside the
// working tree; git resolves the root itself).
func New(repoPath string) *Adapter {
	return &Adapter{
		repoPath: repoPath,
		logger:   logrus.WithField("component", "gitrepo"),
	}
}

func (a *Adapter) command(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = a.repoPath
	return cmd
}

// IsRepo reports whether the adapter's directory is inside a git working tree.
func (a *Adapter) IsRepo(ctx context.Context) bool {
	return a.command(ctx, "rev-parse", "--is-inside-work-tree").Run() == nil
}

// DefaultBranch resolves the remote HEAD symbolic ref, falling back to
// "main", then "master", then the current HEAD if neither exists.
func (a *Adapter) DefaultBranch(ctx context.Context) (string, error) {
	out, err := a.command(ctx, "symbolic-ref", "refs/remotes/origin/HEAD").Output()
	if err == nil {
		ref := strings.TrimSpace(string(out))
		if idx := strings.LastIndex(ref, "/"); idx >= 0 {
			return ref[idx+1:], nil
		}
	}

	for _, candidate := range []string{"main", "master"} {
		if a.command(ctx, "show-ref", "--verify", "--quiet", "refs/heads/"+candidate).Run() == nil {
			return candidate, nil
		}
	}

	out, err = a.command(ctx, "rev-parse", "--abbrev-ref", "HEAD").Output()
	if err != nil {
		return "", fmt.Errorf("resolve current HEAD: %w", err)
	}
	branch := strings.TrimSpace(string(out))
	if branch == "" || branch == "HEAD" {
		return "", fmt.Errorf("repository has no resolvable branch (detached HEAD with no remote)")
	}
	return branch, nil
}

// CommitHashes returns every hash reachable from branch, newest first.
func (a *Adapter) CommitHashes(ctx context.Context, branch string) ([]string, error) {
	out, err := a.command(ctx, "rev-list", branch).Output()
	if err != nil {
		return nil, fmt.Errorf("rev-list %s: %w", branch, err)
	}
	return splitNonEmptyLines(string(out)), nil
}

// TotalCommitCount returns the number of commits reachable from branch.
func (a *Adapter) TotalCommitCount(ctx context.Context, branch string) (int, error) {
	out, err := a.command(ctx, "rev-list", "--count", branch).Output()
	if err != nil {
		return 0, fmt.Errorf("rev-list --count %s: %w", branch, err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0, fmt.Errorf("parse commit count: %w", err)
	}
	return n, nil
}

// TrackedFiles returns the current working-tree file list.
func (a *Adapter) TrackedFiles(ctx context.Context) ([]string, error) {
	out, err := a.command(ctx, "ls-files").Output()
	if err != nil {
		return nil, fmt.Errorf("ls-files: %w", err)
	}
	return splitNonEmptyLines(string(out)), nil
}

func splitNonEmptyLines(s string) []string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	result := make([]string, 0, len(lines))
	for _, l := range lines {
		if l != "" {
			result = append(result, l)
		}
	}
	return result
}

// runWithStdin feeds input on stdin and captures stdout, used for the
// batched forms so a large hash list never blows an argv length limit.
func (a *Adapter) runWithStdin(ctx context.Context, stdin string, args ...string) ([]byte, error) {
	cmd := a.command(ctx, args...)
	cmd.Stdin = strings.NewReader(stdin)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git %s: %w (stderr: %s)", strings.Join(args, " "), err, stderr.String())
	}
	return out.Bytes(), nil
}

// chunk splits items into groups of at most size, preserving order.
func chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		return [][]T{items}
	}
	var chunks [][]T
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[i:end])
	}
	return chunks
}

const maxHashesPerChunk = 500
