package loader

import (
	"context"
	"strings"
	"time"

	"stormlightlabs.org/hoopscore/internal/core"
	"stormlightlabs.org/hoopscore/internal/db"
	"stormlightlabs.org/hoopscore/internal/resolve"
)

func init() {
	register("player_season_hub", loadPlayerSeasonHub)
	register("player_season_per_game", loadPlayerSeasonPerGame)
	register("player_season_totals", loadPlayerSeasonTotals)
	register("player_season_per36", loadPlayerSeasonPer36)
	register("player_season_per100", loadPlayerSeasonPer100)
	register("player_season_advanced", loadPlayerSeasonAdvanced)
}

type playerSeasonRow struct {
	PlayerID      string `csv:"player_id"`
	SeasonEndYear int    `csv:"season_end_year"`
	Team          string `csv:"team"` // abbrev, or "TOT" for multi-team seasons
	GameType      string `csv:"game_type"`
}

// loadPlayerSeasonHub assigns seas_id per row and detects is_total: a row
// whose team field is "TOT" gets team_id = NULL and is_total = true,
// regardless of what abbreviation case the source used.
func loadPlayerSeasonHub(ctx context.Context, src Source, r *resolve.Resolver, conn *db.DB) (Result, error) {
	started := time.Now()
	var raw []playerSeasonRow
	if err := decodeCSV(src.DataDir, src.Filename, &raw); err != nil {
		return Result{}, core.New("load", core.TypeCoercionError, "player_season hub decode", err)
	}

	rows := make([][]any, 0, len(raw))
	for _, p := range raw {
		seasonID, err := r.ResolveSeason(ctx, core.SeasonEndYear(p.SeasonEndYear))
		if err != nil {
			return Result{}, err
		}

		var teamID *core.TeamID
		isTotal := strings.EqualFold(p.Team, "TOT")
		if !isTotal {
			id, err := r.ResolveTeam(ctx, p.Team, core.SeasonEndYear(p.SeasonEndYear))
			if err != nil {
				return Result{}, err
			}
			teamID = &id
		}

		seasID := resolve.SeasID(core.PlayerID(p.PlayerID), seasonID, teamID)
		var teamCol any
		if teamID != nil {
			teamCol = string(*teamID)
		}
		rows = append(rows, []any{string(seasID), p.PlayerID, string(seasonID), teamCol, isTotal, p.GameType})
	}

	n, err := conn.CopyRows(ctx, "player_season",
		[]string{"seas_id", "player_id", "season_id", "team_id", "is_total", "game_type"}, rows)
	if err != nil {
		return Result{}, core.New("load", core.CheckViolation, "player_season", err)
	}

	return Result{Step: "player_season_hub", RowsIn: int64(len(raw)), RowsOut: n, Duration: time.Since(started)}, nil
}

type perGameRow struct {
	SeasID string  `csv:"seas_id"`
	GP     int     `csv:"gp"`
	GS     int     `csv:"gs"`
	MinPG  float64 `csv:"min_pg"`
	PtsPG  float64 `csv:"pts_pg"`
	RebPG  float64 `csv:"reb_pg"`
	AstPG  float64 `csv:"ast_pg"`
	StlPG  float64 `csv:"stl_pg"`
	BlkPG  float64 `csv:"blk_pg"`
	TovPG  float64 `csv:"tov_pg"`
	FGPct  float64 `csv:"fg_pct"`
	FG3Pct float64 `csv:"fg3_pct"`
	FTPct  float64 `csv:"ft_pct"`
}

func loadPlayerSeasonPerGame(ctx context.Context, src Source, r *resolve.Resolver, conn *db.DB) (Result, error) {
	started := time.Now()
	var raw []perGameRow
	if err := decodeCSV(src.DataDir, src.Filename, &raw); err != nil {
		return Result{}, core.New("load", core.TypeCoercionError, "player_season_per_game decode", err)
	}

	rows := make([][]any, 0, len(raw))
	for _, p := range raw {
		rows = append(rows, []any{p.SeasID, p.GP, p.GS, p.MinPG, p.PtsPG, p.RebPG, p.AstPG, p.StlPG, p.BlkPG, p.TovPG, p.FGPct, p.FG3Pct, p.FTPct})
	}

	n, err := conn.CopyRows(ctx, "player_season_per_game",
		[]string{"seas_id", "gp", "gs", "min_pg", "pts_pg", "reb_pg", "ast_pg", "stl_pg", "blk_pg", "tov_pg", "fg_pct", "fg3_pct", "ft_pct"}, rows)
	if err != nil {
		return Result{}, core.New("load", core.FKViolation, "player_season_per_game", err)
	}

	return Result{Step: "player_season_per_game", RowsIn: int64(len(raw)), RowsOut: n, Duration: time.Since(started)}, nil
}

type totalsRow struct {
	SeasID string `csv:"seas_id"`
	GP     int    `csv:"gp"`
	MinSec int    `csv:"min_sec"`
	Pts    int    `csv:"pts"`
	Reb    int    `csv:"reb"`
	Ast    int    `csv:"ast"`
	Stl    int    `csv:"stl"`
	Blk    int    `csv:"blk"`
	Tov    int    `csv:"tov"`
	FGM    int    `csv:"fgm"`
	FGA    int    `csv:"fga"`
	FG3M   int    `csv:"fg3m"`
	FG3A   int    `csv:"fg3a"`
	FTM    int    `csv:"ftm"`
	FTA    int    `csv:"fta"`
}

func loadPlayerSeasonTotals(ctx context.Context, src Source, r *resolve.Resolver, conn *db.DB) (Result, error) {
	started := time.Now()
	var raw []totalsRow
	if err := decodeCSV(src.DataDir, src.Filename, &raw); err != nil {
		return Result{}, core.New("load", core.TypeCoercionError, "player_season_totals decode", err)
	}

	rows := make([][]any, 0, len(raw))
	for _, p := range raw {
		rows = append(rows, []any{p.SeasID, p.GP, p.MinSec, p.Pts, p.Reb, p.Ast, p.Stl, p.Blk, p.Tov, p.FGM, p.FGA, p.FG3M, p.FG3A, p.FTM, p.FTA})
	}

	n, err := conn.CopyRows(ctx, "player_season_totals",
		[]string{"seas_id", "gp", "min_sec", "pts", "reb", "ast", "stl", "blk", "tov", "fgm", "fga", "fg3m", "fg3a", "ftm", "fta"}, rows)
	if err != nil {
		return Result{}, core.New("load", core.CheckViolation, "player_season_totals", err)
	}

	return Result{Step: "player_season_totals", RowsIn: int64(len(raw)), RowsOut: n, Duration: time.Since(started)}, nil
}

// loadPlayerSeasonPer36 computes pts/reb/ast per 36 minutes directly from
// the just-loaded totals satellite via SQL, never trusting a per36 column
// from source (per the spec's "derived columns computed post-load" rule).
func loadPlayerSeasonPer36(ctx context.Context, src Source, r *resolve.Resolver, conn *db.DB) (Result, error) {
	started := time.Now()
	const sql = `
		INSERT INTO player_season_per36 (seas_id, pts_p36, reb_p36, ast_p36)
		SELECT seas_id,
			CASE WHEN min_sec = 0 THEN 0 ELSE pts::float * 36 * 60 / min_sec END,
			CASE WHEN min_sec = 0 THEN 0 ELSE reb::float * 36 * 60 / min_sec END,
			CASE WHEN min_sec = 0 THEN 0 ELSE ast::float * 36 * 60 / min_sec END
		FROM player_season_totals
		ON CONFLICT (seas_id) DO NOTHING
	`
	if _, err := conn.ExecContext(ctx, sql); err != nil {
		return Result{}, core.New("load", core.CheckViolation, "player_season_per36", err)
	}

	n, err := rowCount(ctx, conn, "player_season_per36")
	if err != nil {
		return Result{}, err
	}
	return Result{Step: "player_season_per36", RowsOut: n, Duration: time.Since(started)}, nil
}

// loadPlayerSeasonPer100 computes per-100-possessions rates. Possessions
// are estimated from the team_season pace figure joined via team_id;
// TOT (is_total) rows are excluded since they have no single team pace.
func loadPlayerSeasonPer100(ctx context.Context, src Source, r *resolve.Resolver, conn *db.DB) (Result, error) {
	started := time.Now()
	const sql = `
		INSERT INTO player_season_per100 (seas_id, pts_p100, reb_p100, ast_p100)
		SELECT t.seas_id,
			CASE WHEN ts.pace = 0 OR ts.pace IS NULL THEN 0 ELSE t.pts::float * 100 / ts.pace END,
			CASE WHEN ts.pace = 0 OR ts.pace IS NULL THEN 0 ELSE t.reb::float * 100 / ts.pace END,
			CASE WHEN ts.pace = 0 OR ts.pace IS NULL THEN 0 ELSE t.ast::float * 100 / ts.pace END
		FROM player_season_totals t
		JOIN player_season ps ON ps.seas_id = t.seas_id AND NOT ps.is_total
		JOIN team_summaries ts ON ts.team_id = ps.team_id AND ts.season_id = ps.season_id
		ON CONFLICT (seas_id) DO NOTHING
	`
	if _, err := conn.ExecContext(ctx, sql); err != nil {
		return Result{}, core.New("load", core.CheckViolation, "player_season_per100", err)
	}

	n, err := rowCount(ctx, conn, "player_season_per100")
	if err != nil {
		return Result{}, err
	}
	return Result{Step: "player_season_per100", RowsOut: n, Duration: time.Since(started)}, nil
}

type advancedRow struct {
	SeasID    string  `csv:"seas_id"`
	PER       float64 `csv:"per"`
	TSPct     float64 `csv:"ts_pct"`
	UsagePct  float64 `csv:"usage_pct"`
	ORtg      float64 `csv:"ortg"`
	DRtg      float64 `csv:"drtg"`
	WinShares float64 `csv:"win_shares"`
	BPM       float64 `csv:"bpm"`
	VORP      float64 `csv:"vorp"`
}

func loadPlayerSeasonAdvanced(ctx context.Context, src Source, r *resolve.Resolver, conn *db.DB) (Result, error) {
	started := time.Now()
	var raw []advancedRow
	if err := decodeCSV(src.DataDir, src.Filename, &raw); err != nil {
		return Result{}, core.New("load", core.TypeCoercionError, "player_season_advanced decode", err)
	}

	rows := make([][]any, 0, len(raw))
	for _, a := range raw {
		rows = append(rows, []any{a.SeasID, a.PER, a.TSPct, a.UsagePct, a.ORtg, a.DRtg, a.WinShares, a.BPM, a.VORP})
	}

	n, err := conn.CopyRows(ctx, "player_season_advanced",
		[]string{"seas_id", "per", "ts_pct", "usage_pct", "ortg", "drtg", "win_shares", "bpm", "vorp"}, rows)
	if err != nil {
		return Result{}, core.New("load", core.DomainRuleViolation, "player_season_advanced", err)
	}

	return Result{Step: "player_season_advanced", RowsIn: int64(len(raw)), RowsOut: n, Duration: time.Since(started)}, nil
}
