package savedqueries

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stormlightlabs.org/hoopscore/internal/core"
	"stormlightlabs.org/hoopscore/internal/testutils"
)

func newPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping testcontainers-backed test in short mode")
	}

	ctx := context.Background()
	pc, err := testutils.NewPostgresContainer(ctx, testutils.WithMigrations("../db/sql"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Terminate(ctx) })

	return NewPostgresStore(pc.DB)
}

func TestPostgresStore_createGetListUpdateDelete(t *testing.T) {
	ctx := context.Background()
	s := newPostgresStore(t)

	created, err := s.Create(ctx, "top scorers", sampleIR())
	require.NoError(t, err)
	assert.Equal(t, 1, created.Version)

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ContentHash, got.ContentHash)
	assert.Equal(t, created.IR, got.IR)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	updatedIR := sampleIR()
	updatedIR.Page.Limit = 99
	updated, err := s.Update(ctx, created.ID, "renamed", updatedIR, created.Version)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, "renamed", updated.Name)

	_, err = s.Update(ctx, created.ID, "renamed again", updatedIR, 1)
	require.Error(t, err)
	kind, ok := core.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, core.SavedQueryConflict, kind)

	require.NoError(t, s.Delete(ctx, created.ID))
	require.NoError(t, s.Delete(ctx, created.ID)) // idempotent

	_, err = s.Get(ctx, created.ID)
	require.Error(t, err)
	kind, ok = core.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, core.SavedQueryNotFound, kind)
}

func TestPostgresStore_recordResultRowCount(t *testing.T) {
	ctx := context.Background()
	s := newPostgresStore(t)

	created, err := s.Create(ctx, "counted", sampleIR())
	require.NoError(t, err)

	require.NoError(t, s.RecordResultRowCount(ctx, created.ID, 7))

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastResultRowCount)
	assert.Equal(t, 7, *got.LastResultRowCount)
}
