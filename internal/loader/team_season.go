package loader

import (
	"context"
	"time"

	"stormlightlabs.org/hoopscore/internal/core"
	"stormlightlabs.org/hoopscore/internal/db"
	"stormlightlabs.org/hoopscore/internal/resolve"
)

func init() {
	register("team_season_hub", loadTeamSeasonHub)
	register("team_season_totals", loadTeamSeasonTotals)
	register("team_season_per_game", loadTeamSeasonPerGame)
	register("team_season_per100", loadTeamSeasonPer100)
	register("team_season_opponent", loadTeamSeasonOpponent)
	register("team_summaries", loadTeamSummaries)
}

type teamSeasonRow struct {
	Team          string `csv:"team"`
	SeasonEndYear int    `csv:"season_end_year"`
	GameType      string `csv:"game_type"`
}

func loadTeamSeasonHub(ctx context.Context, src Source, r *resolve.Resolver, conn *db.DB) (Result, error) {
	started := time.Now()
	var raw []teamSeasonRow
	if err := decodeCSV(src.DataDir, src.Filename, &raw); err != nil {
		return Result{}, core.New("load", core.TypeCoercionError, "team_season hub decode", err)
	}

	rows := make([][]any, 0, len(raw))
	for _, t := range raw {
		teamID, err := r.ResolveTeam(ctx, t.Team, core.SeasonEndYear(t.SeasonEndYear))
		if err != nil {
			return Result{}, err
		}
		seasonID, err := r.ResolveSeason(ctx, core.SeasonEndYear(t.SeasonEndYear))
		if err != nil {
			return Result{}, err
		}
		rows = append(rows, []any{string(teamID), string(seasonID), t.GameType})
	}

	n, err := conn.CopyRows(ctx, "team_season", []string{"team_id", "season_id", "game_type"}, rows)
	if err != nil {
		return Result{}, core.New("load", core.CheckViolation, "team_season", err)
	}

	return Result{Step: "team_season_hub", RowsIn: int64(len(raw)), RowsOut: n, Duration: time.Since(started)}, nil
}

type teamTotalsRow struct {
	Team          string `csv:"team"`
	SeasonEndYear int    `csv:"season_end_year"`
	GameType      string `csv:"game_type"`
	GP            int    `csv:"gp"`
	W             int    `csv:"w"`
	L             int    `csv:"l"`
	Pts           int    `csv:"pts"`
	Reb           int    `csv:"reb"`
	Ast           int    `csv:"ast"`
}

func loadTeamSeasonTotals(ctx context.Context, src Source, r *resolve.Resolver, conn *db.DB) (Result, error) {
	started := time.Now()
	var raw []teamTotalsRow
	if err := decodeCSV(src.DataDir, src.Filename, &raw); err != nil {
		return Result{}, core.New("load", core.TypeCoercionError, "team_season_totals decode", err)
	}

	rows := make([][]any, 0, len(raw))
	for _, t := range raw {
		teamID, err := r.ResolveTeam(ctx, t.Team, core.SeasonEndYear(t.SeasonEndYear))
		if err != nil {
			return Result{}, err
		}
		seasonID, err := r.ResolveSeason(ctx, core.SeasonEndYear(t.SeasonEndYear))
		if err != nil {
			return Result{}, err
		}
		rows = append(rows, []any{string(teamID), string(seasonID), t.GameType, t.GP, t.W, t.L, t.Pts, t.Reb, t.Ast})
	}

	n, err := conn.CopyRows(ctx, "team_season_totals",
		[]string{"team_id", "season_id", "game_type", "gp", "w", "l", "pts", "reb", "ast"}, rows)
	if err != nil {
		return Result{}, core.New("load", core.CheckViolation, "team_season_totals", err)
	}

	return Result{Step: "team_season_totals", RowsIn: int64(len(raw)), RowsOut: n, Duration: time.Since(started)}, nil
}

// loadTeamSeasonPerGame derives per-game rates from totals post-load.
func loadTeamSeasonPerGame(ctx context.Context, src Source, r *resolve.Resolver, conn *db.DB) (Result, error) {
	started := time.Now()
	const sql = `
		INSERT INTO team_season_per_game (team_id, season_id, pts_pg, reb_pg, ast_pg)
		SELECT team_id, season_id,
			CASE WHEN gp = 0 THEN 0 ELSE pts::float / gp END,
			CASE WHEN gp = 0 THEN 0 ELSE reb::float / gp END,
			CASE WHEN gp = 0 THEN 0 ELSE ast::float / gp END
		FROM team_season_totals
		ON CONFLICT (team_id, season_id) DO NOTHING
	`
	if _, err := conn.ExecContext(ctx, sql); err != nil {
		return Result{}, core.New("load", core.CheckViolation, "team_season_per_game", err)
	}
	n, err := rowCount(ctx, conn, "team_season_per_game")
	if err != nil {
		return Result{}, err
	}
	return Result{Step: "team_season_per_game", RowsOut: n, Duration: time.Since(started)}, nil
}

// loadTeamSeasonPer100 derives per-100-possession rates using the team's
// own pace figure from team_summaries.
func loadTeamSeasonPer100(ctx context.Context, src Source, r *resolve.Resolver, conn *db.DB) (Result, error) {
	started := time.Now()
	const sql = `
		INSERT INTO team_season_per100 (team_id, season_id, pts_p100)
		SELECT t.team_id, t.season_id,
			CASE WHEN ts.pace = 0 OR ts.pace IS NULL THEN 0 ELSE t.pts::float * 100 / ts.pace END
		FROM team_season_totals t
		JOIN team_summaries ts ON ts.team_id = t.team_id AND ts.season_id = t.season_id
		ON CONFLICT (team_id, season_id) DO NOTHING
	`
	if _, err := conn.ExecContext(ctx, sql); err != nil {
		return Result{}, core.New("load", core.CheckViolation, "team_season_per100", err)
	}
	n, err := rowCount(ctx, conn, "team_season_per100")
	if err != nil {
		return Result{}, err
	}
	return Result{Step: "team_season_per100", RowsOut: n, Duration: time.Since(started)}, nil
}

// loadTeamSeasonOpponent derives opponent splits by joining each team's
// games to the boxscore_team row of the opposing team.
func loadTeamSeasonOpponent(ctx context.Context, src Source, r *resolve.Resolver, conn *db.DB) (Result, error) {
	started := time.Now()
	const sql = `
		INSERT INTO team_season_opponent (team_id, season_id, opp_pts_pg, opp_reb_pg, opp_ast_pg)
		SELECT g.team_id, g.season_id,
			AVG(opp.pts), AVG(opp.oreb + opp.dreb), AVG(opp.ast)
		FROM (
			SELECT game_id, home_team_id AS team_id, away_team_id AS opp_team_id, season_id FROM games
			UNION ALL
			SELECT game_id, away_team_id AS team_id, home_team_id AS opp_team_id, season_id FROM games
		) g
		JOIN boxscore_team opp ON opp.game_id = g.game_id AND opp.team_id = g.opp_team_id
		GROUP BY g.team_id, g.season_id
		ON CONFLICT (team_id, season_id) DO NOTHING
	`
	if _, err := conn.ExecContext(ctx, sql); err != nil {
		return Result{}, core.New("load", core.CheckViolation, "team_season_opponent", err)
	}
	n, err := rowCount(ctx, conn, "team_season_opponent")
	if err != nil {
		return Result{}, err
	}
	return Result{Step: "team_season_opponent", RowsOut: n, Duration: time.Since(started)}, nil
}

type teamSummaryRow struct {
	Team          string  `csv:"team"`
	SeasonEndYear int     `csv:"season_end_year"`
	Pace          float64 `csv:"pace"`
	ORtg          float64 `csv:"ortg"`
	DRtg          float64 `csv:"drtg"`
}

func loadTeamSummaries(ctx context.Context, src Source, r *resolve.Resolver, conn *db.DB) (Result, error) {
	started := time.Now()
	var raw []teamSummaryRow
	if err := decodeCSV(src.DataDir, src.Filename, &raw); err != nil {
		return Result{}, core.New("load", core.TypeCoercionError, "team_summaries decode", err)
	}

	rows := make([][]any, 0, len(raw))
	for _, t := range raw {
		teamID, err := r.ResolveTeam(ctx, t.Team, core.SeasonEndYear(t.SeasonEndYear))
		if err != nil {
			return Result{}, err
		}
		seasonID, err := r.ResolveSeason(ctx, core.SeasonEndYear(t.SeasonEndYear))
		if err != nil {
			return Result{}, err
		}
		rows = append(rows, []any{string(teamID), string(seasonID), t.Pace, t.ORtg, t.DRtg})
	}

	n, err := conn.CopyRows(ctx, "team_summaries", []string{"team_id", "season_id", "pace", "ortg", "drtg"}, rows)
	if err != nil {
		return Result{}, core.New("load", core.DomainRuleViolation, "team_summaries", err)
	}

	return Result{Step: "team_summaries", RowsIn: int64(len(raw)), RowsOut: n, Duration: time.Since(started)}, nil
}
