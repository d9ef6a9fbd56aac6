package batchjobs

import (
	"context"
	"testing"
	"time"

	"github.com/jmcdonald-ut/gitmem/internal/models"
	"github.com/jmcdonald-ut/gitmem/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st.DB())
}

func TestStore_InsertAndGetByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	job := models.BatchJob{
		BatchID: "batch_1", Type: models.BatchTypeIndex, Status: models.BatchStatusSubmitted,
		RequestCount: 50, SubmittedAt: time.Now(), ModelUsed: "claude-test",
	}
	require.NoError(t, s.Insert(ctx, job))

	got, err := s.GetByID(ctx, "batch_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 50, got.RequestCount)
	assert.Equal(t, models.BatchStatusSubmitted, got.Status)

	missing, err := s.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_GetPendingByType_ExcludesTerminal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, models.BatchJob{
		BatchID: "old", Type: models.BatchTypeIndex, Status: models.BatchStatusEnded,
		SubmittedAt: time.Now().Add(-time.Hour), ModelUsed: "m",
	}))
	pending, err := s.GetPendingByType(ctx, models.BatchTypeIndex)
	require.NoError(t, err)
	assert.Nil(t, pending)

	require.NoError(t, s.Insert(ctx, models.BatchJob{
		BatchID: "new", Type: models.BatchTypeIndex, Status: models.BatchStatusSubmitted,
		SubmittedAt: time.Now(), ModelUsed: "m",
	}))
	pending, err = s.GetPendingByType(ctx, models.BatchTypeIndex)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, "new", pending.BatchID)
}

func TestStore_UpdateStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, models.BatchJob{
		BatchID: "b1", Type: models.BatchTypeCheck, Status: models.BatchStatusInProgress,
		RequestCount: 10, SubmittedAt: time.Now(), ModelUsed: "m",
	}))
	now := time.Now()
	require.NoError(t, s.UpdateStatus(ctx, "b1", models.BatchStatusEnded, 8, 2, &now))

	got, err := s.GetByID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusEnded, got.Status)
	assert.Equal(t, 8, got.SucceededCount)
	assert.Equal(t, 2, got.FailedCount)
	require.NotNil(t, got.CompletedAt)
}

func TestStore_InsertAndGetItems(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	items := []models.CheckBatchItem{
		{BatchID: "b1", Hash: "h1", Classification: "bug-fix", Summary: "fixes x"},
		{BatchID: "b1", Hash: "h2", Classification: "feature", Summary: "adds y"},
	}
	require.NoError(t, s.InsertItems(ctx, items))

	got, err := s.GetItems(ctx, "b1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
