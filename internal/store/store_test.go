package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesSchemaAndIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	// Reopening must not error even though every table already exists.
	s2, err := Open(dir)
	require.NoError(t, err)
	defer s2.Close()

	var count int
	err = s2.DB().Get(&count, `SELECT count(*) FROM sqlite_master WHERE type='table' AND name='commits'`)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestOpenExisting_MissingDatabase(t *testing.T) {
	dir := t.TempDir()
	_, err := OpenExisting(dir)
	require.Error(t, err)
}

func TestMetadata_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	_, ok, err := s.GetMetadata(ctx, MetaLastRun)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetMetadata(ctx, nil, MetaLastRun, "2026-01-01T00:00:00Z"))
	val, ok, err := s.GetMetadata(ctx, MetaLastRun)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2026-01-01T00:00:00Z", val)

	require.NoError(t, s.SetMetadata(ctx, nil, MetaLastRun, "2026-02-01T00:00:00Z"))
	val, _, err = s.GetMetadata(ctx, MetaLastRun)
	require.NoError(t, err)
	assert.Equal(t, "2026-02-01T00:00:00Z", val)
}

func TestWithLock_ExclusivityAndCleanup(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	var innerRan bool
	err = s.WithLock(func() error {
		innerRan = true
		// A second acquisition attempt while the first is held must fail.
		_, lockErr := acquireLock(dir)
		require.Error(t, lockErr)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, innerRan)

	// Lock must be released after WithLock returns, so a fresh acquisition succeeds.
	path, err := acquireLock(dir)
	require.NoError(t, err)
	releaseLock(path)
}

func TestWithLock_ReleasedOnHandlerError(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	err = s.WithLock(func() error {
		return assert.AnError
	})
	require.Error(t, err)

	path, err := acquireLock(dir)
	require.NoError(t, err, "lock must be released even when the handler errors")
	releaseLock(path)
}
