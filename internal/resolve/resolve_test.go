package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stormlightlabs.org/hoopscore/internal/core"
)

func TestResolvePlayer_uniqueAliasResolves(t *testing.T) {
	r := New()
	r.LoadPlayerAliases([]core.PlayerAlias{
		{PlayerID: "p1", Alias: "lebron-james", Source: "player.csv"},
	})

	id, err := r.ResolvePlayer(context.Background(), "lebron-james")
	require.NoError(t, err)
	assert.Equal(t, core.PlayerID("p1"), id)
}

func TestResolvePlayer_unresolvedWhenAbsent(t *testing.T) {
	r := New()
	_, err := r.ResolvePlayer(context.Background(), "nobody")
	require.Error(t, err)
	kind, ok := core.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, core.UnresolvedPlayer, kind)
}

func TestResolvePlayer_ambiguousWhenMultipleCandidates(t *testing.T) {
	r := New()
	r.LoadPlayerAliases([]core.PlayerAlias{
		{PlayerID: "p1", Alias: "shared-slug", Source: "a.csv"},
		{PlayerID: "p2", Alias: "shared-slug", Source: "b.csv"},
	})

	_, err := r.ResolvePlayer(context.Background(), "shared-slug")
	require.Error(t, err)
	kind, ok := core.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, core.AmbiguousResolution, kind)
}

func TestResolveTeam_honorsFranchiseWindow(t *testing.T) {
	r := New()
	r.LoadTeamAbbrevMappings([]core.TeamAbbrevMapping{
		{Abbrev: "SEA", TeamID: "sonics", FirstSeason: 1980, LastSeason: 2008},
		{Abbrev: "OKC", TeamID: "thunder", FirstSeason: 2009, LastSeason: 2024},
	})

	id, err := r.ResolveTeam(context.Background(), "SEA", 2000)
	require.NoError(t, err)
	assert.Equal(t, core.TeamID("sonics"), id)

	id, err = r.ResolveTeam(context.Background(), "OKC", 2020)
	require.NoError(t, err)
	assert.Equal(t, core.TeamID("thunder"), id)

	_, err = r.ResolveTeam(context.Background(), "SEA", 2020)
	require.Error(t, err)
}

func TestResolveSeason_deterministicFromYear(t *testing.T) {
	r := New()
	r.LoadSeasons([]core.Season{
		{SeasonID: DeriveSeasonID(2024), SeasonEndYear: 2024},
	})

	id, err := r.ResolveSeason(context.Background(), 2024)
	require.NoError(t, err)
	assert.Equal(t, DeriveSeasonID(2024), id)
}

func TestSeasID_stableAndDistinguishesTotalFromTeamRow(t *testing.T) {
	teamA := core.TeamID("lal")
	a := SeasID("p1", "season_2024", &teamA)
	b := SeasID("p1", "season_2024", &teamA)
	assert.Equal(t, a, b, "same inputs must hash identically")

	tot := SeasID("p1", "season_2024", nil)
	assert.NotEqual(t, a, tot, "TOT row must hash differently from a team-specific row")
}

func TestSeasID_differsAcrossPlayers(t *testing.T) {
	teamA := core.TeamID("lal")
	a := SeasID("p1", "season_2024", &teamA)
	b := SeasID("p2", "season_2024", &teamA)
	assert.NotEqual(t, a, b)
}
