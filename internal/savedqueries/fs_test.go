package savedqueries

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stormlightlabs.org/hoopscore/internal/core"
	"stormlightlabs.org/hoopscore/internal/query"
)

func sampleIR() query.Query {
	return query.Query{
		Subject:    query.SubjectLeaderboards,
		EntityType: query.EntityPlayer,
		Metrics:    []query.MetricRef{{ID: "pts_per_game"}},
		Page:       query.Page{Limit: 10},
	}
}

func newFSStore(t *testing.T) *FSStore {
	t.Helper()
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestFSStore_createThenGet(t *testing.T) {
	ctx := context.Background()
	s := newFSStore(t)

	created, err := s.Create(ctx, "top scorers", sampleIR())
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 1, created.Version)
	assert.Equal(t, CurrentSchemaVersion, created.SchemaVersion)
	assert.NotEmpty(t, created.ContentHash)

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "top scorers", got.Name)
	assert.Equal(t, created.ContentHash, got.ContentHash)
}

func TestFSStore_getMissing(t *testing.T) {
	s := newFSStore(t)
	_, err := s.Get(context.Background(), "does-not-exist")
	require.Error(t, err)
	kind, ok := core.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, core.SavedQueryNotFound, kind)
}

func TestFSStore_list_ordersByNameAndExcludesDeleted(t *testing.T) {
	ctx := context.Background()
	s := newFSStore(t)

	b, err := s.Create(ctx, "b query", sampleIR())
	require.NoError(t, err)
	_, err = s.Create(ctx, "a query", sampleIR())
	require.NoError(t, err)
	c, err := s.Create(ctx, "c query", sampleIR())
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, c.ID))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a query", list[0].Name)
	assert.Equal(t, "b query", list[1].Name)
	assert.NotEqual(t, b.ID, c.ID)
}

func TestFSStore_update_incrementsVersion(t *testing.T) {
	ctx := context.Background()
	s := newFSStore(t)

	created, err := s.Create(ctx, "original", sampleIR())
	require.NoError(t, err)

	updatedIR := sampleIR()
	updatedIR.Page.Limit = 50
	updated, err := s.Update(ctx, created.ID, "renamed", updatedIR, created.Version)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, "renamed", updated.Name)
	assert.NotEqual(t, created.ContentHash, updated.ContentHash)
}

func TestFSStore_update_rejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	s := newFSStore(t)

	created, err := s.Create(ctx, "original", sampleIR())
	require.NoError(t, err)

	_, err = s.Update(ctx, created.ID, "renamed", sampleIR(), created.Version+1)
	require.Error(t, err)
	kind, ok := core.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, core.SavedQueryConflict, kind)
}

func TestFSStore_update_zeroVersionSkipsCheck(t *testing.T) {
	ctx := context.Background()
	s := newFSStore(t)

	created, err := s.Create(ctx, "original", sampleIR())
	require.NoError(t, err)

	updated, err := s.Update(ctx, created.ID, "renamed", sampleIR(), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
}

func TestFSStore_delete_isIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newFSStore(t)

	created, err := s.Create(ctx, "throwaway", sampleIR())
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, created.ID))
	require.NoError(t, s.Delete(ctx, created.ID))

	_, err = s.Get(ctx, created.ID)
	require.Error(t, err)
	kind, ok := core.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, core.SavedQueryNotFound, kind)
}

func TestFSStore_delete_missingIDIsNotAnError(t *testing.T) {
	s := newFSStore(t)
	err := s.Delete(context.Background(), "never-existed")
	assert.NoError(t, err)
}

func TestFSStore_recordResultRowCount(t *testing.T) {
	ctx := context.Background()
	s := newFSStore(t)

	created, err := s.Create(ctx, "counted", sampleIR())
	require.NoError(t, err)

	require.NoError(t, s.RecordResultRowCount(ctx, created.ID, 42))

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastResultRowCount)
	assert.Equal(t, 42, *got.LastResultRowCount)
}

func TestContentHash_stableForIdenticalIR(t *testing.T) {
	h1, err := contentHash(sampleIR())
	require.NoError(t, err)
	h2, err := contentHash(sampleIR())
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}
