package orchestrator

import (
	"context"
	"time"

	"stormlightlabs.org/hoopscore/internal/core"
	"stormlightlabs.org/hoopscore/internal/db"
)

// loadSeasonsFromDB, loadTeamAbbrevMappingsFromDB, and
// loadPlayerAliasesFromDB re-read the just-committed dimension tables so
// resolve.Resolver can be warmed without the orchestrator tracking any
// loaded rows itself -- the loaders already own the only writes, and
// Postgres is the single source of truth for what actually landed.

func loadSeasonsFromDB(ctx context.Context, conn *db.DB) ([]core.Season, error) {
	rows, err := conn.QueryContext(ctx, `SELECT season_id, season_end_year, start_date, end_date FROM seasons`)
	if err != nil {
		return nil, core.New("orchestrator", core.UnresolvedSeason, "loading seasons for resolver bootstrap", err)
	}
	defer rows.Close()

	var out []core.Season
	for rows.Next() {
		var s core.Season
		var start, end time.Time
		if err := rows.Scan(&s.SeasonID, &s.SeasonEndYear, &start, &end); err != nil {
			return nil, core.New("orchestrator", core.UnresolvedSeason, "scanning season row", err)
		}
		s.StartDate, s.EndDate = start, end
		out = append(out, s)
	}
	return out, rows.Err()
}

func loadTeamAbbrevMappingsFromDB(ctx context.Context, conn *db.DB) ([]core.TeamAbbrevMapping, error) {
	rows, err := conn.QueryContext(ctx, `SELECT abbrev, team_id, first_season, last_season FROM team_abbrev_mappings`)
	if err != nil {
		return nil, core.New("orchestrator", core.UnresolvedTeam, "loading team abbrev mappings for resolver bootstrap", err)
	}
	defer rows.Close()

	var out []core.TeamAbbrevMapping
	for rows.Next() {
		var m core.TeamAbbrevMapping
		if err := rows.Scan(&m.Abbrev, &m.TeamID, &m.FirstSeason, &m.LastSeason); err != nil {
			return nil, core.New("orchestrator", core.UnresolvedTeam, "scanning team abbrev mapping row", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func loadPlayerAliasesFromDB(ctx context.Context, conn *db.DB) ([]core.PlayerAlias, error) {
	rows, err := conn.QueryContext(ctx, `SELECT player_id, alias, source FROM player_aliases`)
	if err != nil {
		return nil, core.New("orchestrator", core.UnresolvedPlayer, "loading player aliases for resolver bootstrap", err)
	}
	defer rows.Close()

	var out []core.PlayerAlias
	for rows.Next() {
		var a core.PlayerAlias
		if err := rows.Scan(&a.PlayerID, &a.Alias, &a.Source); err != nil {
			return nil, core.New("orchestrator", core.UnresolvedPlayer, "scanning player alias row", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
