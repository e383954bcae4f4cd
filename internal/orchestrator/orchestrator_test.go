package orchestrator

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stormlightlabs.org/hoopscore/internal/loader"
	"stormlightlabs.org/hoopscore/internal/manifest"
)

func TestStages_coverEveryTopologyStepExactlyOnce(t *testing.T) {
	seen := make(map[string]int)
	for _, st := range stages {
		for _, step := range st.steps {
			seen[step]++
		}
	}
	for _, step := range loader.Topology {
		assert.Equal(t, 1, seen[step], "step %q should appear exactly once across stages", step)
	}
	assert.Len(t, seen, len(loader.Topology), "stages should not name a step Topology doesn't have")
}

func TestStepFiles_coverEveryTopologyStep(t *testing.T) {
	for _, step := range loader.Topology {
		_, ok := stepFiles[step]
		assert.True(t, ok, "stepFiles is missing an entry for %q", step)
	}
}

func TestExpandToPredecessors_includesEverythingUpToLastRequestedFile(t *testing.T) {
	got := expandToPredecessors([]string{"team_season_hub"})
	want := loader.Topology[:10] // through team_season_hub inclusive
	assert.Equal(t, want, got)
}

func TestExpandToPredecessors_emptyInputYieldsNil(t *testing.T) {
	got := expandToPredecessors(nil)
	assert.Nil(t, got)
}

func TestExpandToPredecessors_unknownStepYieldsNil(t *testing.T) {
	got := expandToPredecessors([]string{"not_a_real_step"})
	assert.Nil(t, got)
}

func TestFilterStage_keepsOnlyWantedStepsInOriginalOrder(t *testing.T) {
	st := stage{steps: []string{"a", "b", "c"}}
	wanted := map[string]bool{"a": true, "c": true}
	assert.Equal(t, []string{"a", "c"}, filterStage(st, wanted))
}

func TestExpectedCounts_subtractsHeaderRow(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/manifest.yaml"
	require.NoError(t, os.WriteFile(path, []byte(`
files:
  seasons.csv:
    target_table: seasons
    line_count: 11
    sha256: abc
`), 0o644))
	m, err := manifest.Load(path)
	require.NoError(t, err)

	got := expectedCounts(m, []string{"seasons.csv"})
	assert.Equal(t, int64(10), got["seasons"])
}

func TestExpectedCounts_ignoresFilesNotInManifest(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/manifest.yaml"
	require.NoError(t, os.WriteFile(path, []byte(`
files:
  seasons.csv:
    target_table: seasons
    line_count: 11
    sha256: abc
`), 0o644))
	m, err := manifest.Load(path)
	require.NoError(t, err)

	got := expectedCounts(m, []string{"seasons.csv", "unknown.csv"})
	assert.Len(t, got, 1)
}
