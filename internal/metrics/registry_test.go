package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stormlightlabs.org/hoopscore/internal/core"
)

func TestLoad_parsesCatalogInOrder(t *testing.T) {
	r, err := Load("testdata/metrics.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"pts_per_game", "reb_per_game", "true_shooting_pct", "per"}, r.order)
}

func TestGet_returnsEntry(t *testing.T) {
	r, err := Load("testdata/metrics.yaml")
	require.NoError(t, err)

	e, err := r.Get("pts_per_game")
	require.NoError(t, err)
	assert.Equal(t, "player_season_per_game", e.BaseTable)
	assert.Equal(t, AggAvg, e.Aggregation)
}

func TestGet_unknownMetric(t *testing.T) {
	r, err := Load("testdata/metrics.yaml")
	require.NoError(t, err)

	_, err = r.Get("does_not_exist")
	require.Error(t, err)
	kind, ok := core.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, core.MetricUnknown, kind)
}

func TestList_filtersByCategory(t *testing.T) {
	r, err := Load("testdata/metrics.yaml")
	require.NoError(t, err)

	derived := "derived"
	list := r.List(core.MetricFilter{Category: &derived})
	assert.Len(t, list, 2)
	for _, e := range list {
		assert.Equal(t, CategoryDerived, e.Category)
	}
}

func TestResolveDependencies_topologicalOrder(t *testing.T) {
	r, err := Load("testdata/metrics.yaml")
	require.NoError(t, err)

	order, err := r.ResolveDependencies("per")
	require.NoError(t, err)
	assert.Equal(t, []string{"pts_per_game", "true_shooting_pct", "per"}, order)
}

func TestLoad_rejectsDependencyCycle(t *testing.T) {
	_, err := Load("testdata/cycle.yaml")
	require.Error(t, err)
	kind, ok := core.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, core.DependencyCycle, kind)
}

func TestLoad_rejectsUnknownColumn(t *testing.T) {
	_, err := Load("testdata/bad_column.yaml")
	require.Error(t, err)
	kind, ok := core.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, core.RegistryInvalid, kind)
}

func TestLoad_missingFile(t *testing.T) {
	_, err := Load("testdata/does_not_exist.yaml")
	require.Error(t, err)
	kind, ok := core.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, core.RegistryInvalid, kind)
}
