package jobstore

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumanthpn07/lazyApply/pkg/types"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(sampleJob("j1"))

	require.NoError(t, m.UpdateStatus(ctx, "j1", types.StatusQueued, ""))
	require.NoError(t, m.UpdateStatus(ctx, "j1", types.StatusSubmitting, ""))
	fields := []types.Field{{Key: "years_experience", Required: true}}
	require.NoError(t, m.SetNeedsInput(ctx, "j1", fields))

	got, err := m.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusNeedsInput, got.Status)
	assert.Equal(t, fields, got.Fields)
	assert.Equal(t, []types.JobStatus{types.StatusQueued, types.StatusSubmitting, types.StatusNeedsInput}, m.History("j1"))

	// returned copies do not alias the store
	got.Fields[0].Key = "changed"
	again, _ := m.Get(ctx, "j1")
	assert.Equal(t, "years_experience", again.Fields[0].Key)

	assert.True(t, errors.Is(m.UpdateStatus(ctx, "nope", types.StatusFailed, ""), ErrNotFound))
	assert.True(t, errors.Is(m.SetNeedsInput(ctx, "nope", nil), ErrNotFound))
	_, err = m.Get(ctx, "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStoreUpsertAndList(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	require.NoError(t, m.Upsert(ctx, sampleJob("b")))
	require.NoError(t, m.Upsert(ctx, sampleJob("a")))
	require.NoError(t, m.UpdateStatus(ctx, "a", types.StatusSubmitted, ""))

	j := sampleJob("a")
	j.Title = "New title"
	require.NoError(t, m.Upsert(ctx, j))

	all, err := m.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, types.JobRef("a"), all[0].Ref)
	assert.Equal(t, "New title", all[0].Title)
	assert.Equal(t, types.StatusSubmitted, all[0].Status)

	sub, err := m.List(ctx, types.StatusSubmitted)
	require.NoError(t, err)
	assert.Len(t, sub, 1)
}
