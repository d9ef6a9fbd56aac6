package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jmcdonald-ut/gitmem/internal/errs"
)

const lockFileName = "index.lock"

// acquireLock creates the workspace lock file exclusively. Presence is the
// entire protocol: the contents (our PID) are advisory only, read by
// humans debugging a stale lock, never compared against by gitmem itself
// (spec.md §9's stale-lock policy — no self-healing, no PID checks).
func acquireLock(workspaceDir string) (string, error) {
	path := filepath.Join(workspaceDir, lockFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return "", &errs.LockFileError{Path: path}
		}
		return "", fmt.Errorf("acquire lock file %s: %w", path, err)
	}
	defer f.Close()
	fmt.Fprintf(f, "%d\n", os.Getpid())
	_ = strconv.Itoa(os.Getpid()) // pid is advisory content only, never parsed back
	return path, nil
}

func releaseLock(path string) {
	// Best-effort: a failed removal here would otherwise mask the error or
	// panic that triggered cleanup. A stale lock left behind on abnormal
	// exit is the documented, intentional behavior.
	_ = os.Remove(path)
}
