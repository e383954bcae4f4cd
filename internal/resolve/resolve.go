// Package resolve builds the in-memory lookup maps the loader pipeline
// uses to turn natural keys (player names/slugs, team abbreviations,
// season end years) into surrogate IDs. The cache is built once per run
// from the just-loaded dimension tables and is read-only afterward.
package resolve

import (
	"context"
	"fmt"
	"hash/fnv"

	"stormlightlabs.org/hoopscore/internal/core"
)

// Resolver holds the warmed lookup maps for one ETL run.
type Resolver struct {
	playerByAlias map[string][]core.PlayerID // >1 entries signal ambiguity
	teamByAbbrev  map[abbrevKey]core.TeamID
	seasonByYear  map[core.SeasonEndYear]core.SeasonID
}

type abbrevKey struct {
	abbrev string
	year   core.SeasonEndYear
}

// New builds an empty resolver; callers populate it via the Load*
// functions before any Resolve* call.
func New() *Resolver {
	return &Resolver{
		playerByAlias: make(map[string][]core.PlayerID),
		teamByAbbrev:  make(map[abbrevKey]core.TeamID),
		seasonByYear:  make(map[core.SeasonEndYear]core.SeasonID),
	}
}

// LoadPlayerAliases indexes every (alias → player_id) pair. Call once per
// run after the players/player_aliases loaders commit.
func (r *Resolver) LoadPlayerAliases(aliases []core.PlayerAlias) {
	for _, a := range aliases {
		r.playerByAlias[a.Alias] = append(r.playerByAlias[a.Alias], a.PlayerID)
	}
}

// LoadTeamAbbrevMappings indexes every (abbrev, season_end_year) → team_id
// mapping, honoring franchise moves/renames.
func (r *Resolver) LoadTeamAbbrevMappings(mappings []core.TeamAbbrevMapping) {
	for _, m := range mappings {
		for year := m.FirstSeason; year <= m.LastSeason; year++ {
			key := abbrevKey{abbrev: m.Abbrev, year: year}
			r.teamByAbbrev[key] = m.TeamID
		}
	}
}

// LoadSeasons indexes every season_end_year → season_id mapping.
func (r *Resolver) LoadSeasons(seasons []core.Season) {
	for _, s := range seasons {
		r.seasonByYear[s.SeasonEndYear] = s.SeasonID
	}
}

// ResolvePlayer resolves an alias (name, slug, or source-native ID) to the
// canonical player_id. Zero matches is UNRESOLVED_PLAYER; more than one is
// AMBIGUOUS_RESOLUTION with the candidate set attached.
func (r *Resolver) ResolvePlayer(ctx context.Context, alias string) (core.PlayerID, error) {
	candidates, ok := r.playerByAlias[alias]
	if !ok || len(candidates) == 0 {
		return "", core.New("resolve", core.UnresolvedPlayer, alias, nil)
	}
	if len(candidates) > 1 {
		return "", core.New("resolve", core.AmbiguousResolution,
			fmt.Sprintf("alias %q resolves to %d players: %v", alias, len(candidates), candidates), nil)
	}
	return candidates[0], nil
}

// ResolveTeam resolves a (possibly historical) abbreviation scoped to the
// season it was in use in, honoring franchise relocations and renames.
func (r *Resolver) ResolveTeam(ctx context.Context, abbrev string, seasonEndYear core.SeasonEndYear) (core.TeamID, error) {
	id, ok := r.teamByAbbrev[abbrevKey{abbrev: abbrev, year: seasonEndYear}]
	if !ok {
		return "", core.New("resolve", core.UnresolvedTeam,
			fmt.Sprintf("%s in %d", abbrev, seasonEndYear), nil)
	}
	return id, nil
}

// ResolveSeason resolves a season_end_year to its surrogate season_id.
// Unlike player/team resolution, a miss here is expected during the
// dimension load itself: the season must already have been created
// deterministically before any dependent loader calls this.
func (r *Resolver) ResolveSeason(ctx context.Context, seasonEndYear core.SeasonEndYear) (core.SeasonID, error) {
	id, ok := r.seasonByYear[seasonEndYear]
	if !ok {
		return "", core.New("resolve", core.UnresolvedSeason, fmt.Sprintf("%d", seasonEndYear), nil)
	}
	return id, nil
}

// DeriveSeasonID builds the deterministic season_id for a season_end_year.
// Used by the seasons loader when creating rows, and mirrored here so
// ResolveSeason and the loader always agree on the surrogate key shape.
func DeriveSeasonID(seasonEndYear core.SeasonEndYear) core.SeasonID {
	return core.SeasonID(fmt.Sprintf("season_%d", seasonEndYear))
}

// SeasID computes the stable 64-bit hash that forms the Player_Season hub
// grain: hash(player_id, season_id, team_id-or-TOT). A nil teamID
// (multi-team / is_total row) hashes against the literal "TOT" so the same
// player-season always produces the same TOT seas_id regardless of load
// order.
func SeasID(playerID core.PlayerID, seasonID core.SeasonID, teamID *core.TeamID) core.SeasID {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|", playerID, seasonID)
	if teamID == nil {
		h.Write([]byte("TOT"))
	} else {
		h.Write([]byte(*teamID))
	}
	return core.SeasID(fmt.Sprintf("%d", h.Sum64()))
}
