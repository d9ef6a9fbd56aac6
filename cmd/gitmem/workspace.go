package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/jmcdonald-ut/gitmem/internal/config"
	"github.com/jmcdonald-ut/gitmem/internal/errs"
	"github.com/jmcdonald-ut/gitmem/internal/gitrepo"
	"github.com/jmcdonald-ut/gitmem/internal/store"
)

// workspaceDirName is .gitmem's name inside a repository root.
const workspaceDirName = ".gitmem"

// repoRoot finds the repository root: --workspace if given, otherwise the
// nearest ancestor of the current directory containing a .git entry.
func repoRoot() (string, error) {
	if workspaceFlag != "" {
		return filepath.Abs(workspaceFlag)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current directory: %w", err)
	}

	dir := cwd
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errs.New(errs.NotARepo)
		}
		dir = parent
	}
}

// dotGitmemDir returns <root>/.gitmem.
func dotGitmemDir(root string) string {
	return filepath.Join(root, workspaceDirName)
}

// runContext bundles the handles every subcommand but init needs: the resolved repo root, loaded config, open store, and git
// adapter. Matches spec.md §6's invocation protocol.
type runContext struct {
	root  string
	dir   string
	cfg   *config.Config
	store *store.Store
	git   *gitrepo.Adapter
}

// resolveExisting loads an already-initialized workspace. Read paths use
// this (store.OpenExisting surfaces errs.DBMissing rather than silently
// creating a database).
func resolveExisting() (*runContext, error) {
	root, err := repoRoot()
	if err != nil {
		return nil, err
	}
	dir := dotGitmemDir(root)

	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}

	st, err := store.OpenExisting(dir)
	if err != nil {
		return nil, err
	}

	return &runContext{
		root:  root,
		dir:   dir,
		cfg:   cfg,
		store: st,
		git:   gitrepo.New(root),
	}, nil
}

// anthropicAPIKey resolves the Anthropic API key: environment variable
// first, then the OS keychain (if the user stored one via
// 'gitmem configure'), else errs.APIKeyMissing.
func anthropicAPIKey() (string, error) {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return key, nil
	}
	km := config.NewKeyringManager()
	if key, err := km.GetAPIKey(); err == nil && key != "" {
		return key, nil
	}
	return "", errs.New(errs.APIKeyMissing)
}

// newAnthropicClient builds an anthropic.Client against key.
func newAnthropicClient(key string) *anthropic.Client {
	client := anthropic.NewClient(option.WithAPIKey(key))
	return &client
}

// exitCodeFor maps an error's errs.Kind to a stable non-zero exit code,
// per spec.md §6's "failure taxonomy maps to distinct non-zero exit
// codes." Unrecognized errors exit 1.
//
// errors.Is is used rather than an Unwrap walk because LockFileError and
// AmbiguousHashError only implement Is against errs.Error, they don't wrap
// one.
func exitCodeFor(err error) int {
	for kind, code := range exitCodes {
		if errors.Is(err, errs.New(kind)) {
			return code
		}
	}
	return 1
}

var exitCodes = map[errs.Kind]int{
	errs.NotInitialized:     10,
	errs.ConfigInvalid:      11,
	errs.NotARepo:           12,
	errs.DBMissing:          13,
	errs.LockHeld:           14,
	errs.APIKeyMissing:      15,
	errs.AmbiguousHash:      16,
	errs.NotFound:           17,
	errs.Validation:         18,
	errs.AIRequired:         19,
	errs.InvalidSearchQuery: 20,
	errs.ModelTransport:     21,
}

// detectDefaultBranch is a small convenience wrapper used by commands that
// print the branch name before running a git-backed operation.
func detectDefaultBranch(ctx context.Context, g *gitrepo.Adapter) (string, error) {
	return g.DefaultBranch(ctx)
}

// gitRemoteSummary returns "owner/repo" parsed from the origin remote, for
// display purposes only (never persisted; gitmem has no GitHub dependency).
func gitRemoteSummary(root string) string {
	cmd := exec.Command("git", "-C", root, "remote", "get-url", "origin")
	out, err := cmd.Output()
	if err != nil {
		return filepath.Base(root)
	}
	url := strings.TrimSpace(string(out))
	url = strings.TrimSuffix(url, ".git")
	if idx := strings.LastIndex(url, "/"); idx >= 0 {
		if idx2 := strings.LastIndex(url[:idx], "/"); idx2 >= 0 {
			return url[idx2+1:]
		}
	}
	return url
}
