// Package store is gitmem's embedded SQL database: schema, idempotent
// migrations, WAL + foreign-key pragmas, a transaction helper, and the
// exclusive lock-file guard that makes commit/enrichment/aggregate/
// batch-job writes single-writer.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmcdonald-ut/gitmem/internal/errs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// DBFileName is the embedded database's filename inside the workspace dir.
const DBFileName = "index.db"

// Store wraps the workspace's SQLite database.
type Store struct {
	db           *sqlx.DB
	workspaceDir string
	logger       *logrus.Entry
}

// Open creates (if absent) and migrates the database at
// <workspaceDir>/index.db. workspaceDir itself must already exist — Open
// does not create the .gitmem directory.
func Open(workspaceDir string) (*Store, error) {
	dbPath := filepath.Join(workspaceDir, DBFileName)
	db, err := sqlx.Connect("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // single-writer per spec.md §5; avoids SQLITE_BUSY from our own pool

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply base schema: %w", err)
	}
	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, fmt.Errorf("run column migrations: %w", err)
	}

	return &Store{
		db:           db,
		workspaceDir: workspaceDir,
		logger:       logrus.WithField("component", "store"),
	}, nil
}

// OpenExisting opens a workspace database that must already exist,
// returning errs.DBMissing if it does not. Read-only query paths use this
// so they surface a clear error instead of silently creating an empty DB.
func OpenExisting(workspaceDir string) (*Store, error) {
	dbPath := filepath.Join(workspaceDir, DBFileName)
	if _, err := os.Stat(dbPath); err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(errs.DBMissing)
		}
		return nil, fmt.Errorf("stat %s: %w", dbPath, err)
	}
	return Open(workspaceDir)
}

// DB exposes the underlying *sqlx.DB for packages that need raw query access.
func (s *Store) DB() *sqlx.DB { return s.db }

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic. Panics are re-raised after rollback.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.WithError(rbErr).Warn("rollback failed after handler error")
		}
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// WithLock acquires the workspace's exclusive lock file, runs fn, and
// releases the lock on every return path (success, error, panic, or an
// interrupting signal handled by the caller's context). It does not wait
// for a held lock and does not steal it — a concurrent holder causes an
// immediate *errs.LockFileError.
func (s *Store) WithLock(fn func() error) (err error) {
	path, lockErr := acquireLock(s.workspaceDir)
	if lockErr != nil {
		return lockErr
	}
	defer func() {
		releaseLock(path)
		if p := recover(); p != nil {
			panic(p)
		}
	}()
	return fn()
}

// WorkspaceDir returns the directory the store was opened against.
func (s *Store) WorkspaceDir() string { return s.workspaceDir }
