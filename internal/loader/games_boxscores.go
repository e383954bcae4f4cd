package loader

import (
	"context"
	"time"

	"stormlightlabs.org/hoopscore/internal/core"
	"stormlightlabs.org/hoopscore/internal/db"
	"stormlightlabs.org/hoopscore/internal/resolve"
)

func init() {
	register("games", loadGames)
	register("boxscore_team", loadBoxscoreTeam)
	register("boxscore_player", loadBoxscorePlayer)
}

type gameRow struct {
	GameID     string `csv:"game_id"`
	SeasonEndYear int `csv:"season_end_year"`
	Date       string `csv:"date"`
	HomeTeamID string `csv:"home_team_id"`
	AwayTeamID string `csv:"away_team_id"`
	Venue      string `csv:"venue"`
	Attendance *int   `csv:"attendance"`
	GameType   string `csv:"game_type"`
	Status     string `csv:"status"`
}

// loadGames loads the single games artifact named by the manifest entry;
// it does not read or merge gamesummary.csv, linescore.csv,
// other_stats.csv or game_info.csv. It resolves season_end_year to the
// already-loaded season_id via the resolver (seasons must precede games
// in the topology).
func loadGames(ctx context.Context, src Source, r *resolve.Resolver, conn *db.DB) (Result, error) {
	started := time.Now()
	var raw []gameRow
	if err := decodeCSV(src.DataDir, src.Filename, &raw); err != nil {
		return Result{}, core.New("load", core.TypeCoercionError, "games.csv decode", err)
	}

	rows := make([][]any, 0, len(raw))
	for _, g := range raw {
		seasonID, err := r.ResolveSeason(ctx, core.SeasonEndYear(g.SeasonEndYear))
		if err != nil {
			return Result{}, err
		}
		var venue, attendance any
		if g.Venue != "" {
			venue = g.Venue
		}
		if g.Attendance != nil {
			attendance = *g.Attendance
		}
		rows = append(rows, []any{g.GameID, string(seasonID), g.Date, g.HomeTeamID, g.AwayTeamID, venue, attendance, g.GameType, g.Status})
	}

	n, err := conn.CopyRows(ctx, "games",
		[]string{"game_id", "season_id", "date", "home_team_id", "away_team_id", "venue", "attendance", "game_type", "status"}, rows)
	if err != nil {
		return Result{}, core.New("load", core.FKViolation, "games", err)
	}

	return Result{Step: "games", RowsIn: int64(len(raw)), RowsOut: n, Duration: time.Since(started)}, nil
}

type boxscoreTeamRow struct {
	GameID string  `csv:"game_id"`
	TeamID string  `csv:"team_id"`
	Pts    int     `csv:"pts"`
	FGM    int     `csv:"fgm"`
	FGA    int     `csv:"fga"`
	FG3M   int     `csv:"fg3m"`
	FG3A   int     `csv:"fg3a"`
	FTM    int     `csv:"ftm"`
	FTA    int     `csv:"fta"`
	OREB   int     `csv:"oreb"`
	DREB   int     `csv:"dreb"`
	AST    int     `csv:"ast"`
	STL    int     `csv:"stl"`
	BLK    int     `csv:"blk"`
	TOV    int     `csv:"tov"`
	PF     int     `csv:"pf"`
	Pace   *float64 `csv:"pace"`
}

func loadBoxscoreTeam(ctx context.Context, src Source, r *resolve.Resolver, conn *db.DB) (Result, error) {
	started := time.Now()
	var raw []boxscoreTeamRow
	if err := decodeCSV(src.DataDir, src.Filename, &raw); err != nil {
		return Result{}, core.New("load", core.TypeCoercionError, "boxscore_team.csv decode", err)
	}

	rows := make([][]any, 0, len(raw))
	for _, b := range raw {
		var pace any
		if b.Pace != nil {
			pace = *b.Pace
		}
		rows = append(rows, []any{
			b.GameID, b.TeamID, b.Pts, b.FGM, b.FGA, b.FG3M, b.FG3A, b.FTM, b.FTA,
			b.OREB, b.DREB, b.AST, b.STL, b.BLK, b.TOV, b.PF, pace,
		})
	}

	n, err := conn.CopyRows(ctx, "boxscore_team",
		[]string{"game_id", "team_id", "pts", "fgm", "fga", "fg3m", "fg3a", "ftm", "fta",
			"oreb", "dreb", "ast", "stl", "blk", "tov", "pf", "pace"}, rows)
	if err != nil {
		return Result{}, core.New("load", core.CheckViolation, "boxscore_team", err)
	}

	return Result{Step: "boxscore_team", RowsIn: int64(len(raw)), RowsOut: n, Duration: time.Since(started)}, nil
}

type boxscorePlayerRow struct {
	GameID   string `csv:"game_id"`
	PlayerID string `csv:"player_id"`
	TeamID   string `csv:"team_id"`
	MinSec   int    `csv:"min_sec"`
	Pts      int    `csv:"pts"`
	FGM      int    `csv:"fgm"`
	FGA      int    `csv:"fga"`
	FG3M     int    `csv:"fg3m"`
	FG3A     int    `csv:"fg3a"`
	FTM      int    `csv:"ftm"`
	FTA      int    `csv:"fta"`
	OREB     int    `csv:"oreb"`
	DREB     int    `csv:"dreb"`
	AST      int    `csv:"ast"`
	STL      int    `csv:"stl"`
	BLK      int    `csv:"blk"`
	TOV      int    `csv:"tov"`
	PF       int    `csv:"pf"`
	Started  bool   `csv:"started"`
}

func loadBoxscorePlayer(ctx context.Context, src Source, r *resolve.Resolver, conn *db.DB) (Result, error) {
	started := time.Now()
	var raw []boxscorePlayerRow
	if err := decodeCSV(src.DataDir, src.Filename, &raw); err != nil {
		return Result{}, core.New("load", core.TypeCoercionError, "boxscore_player.csv decode", err)
	}

	rows := make([][]any, 0, len(raw))
	for _, b := range raw {
		rows = append(rows, []any{
			b.GameID, b.PlayerID, b.TeamID, b.MinSec, b.Pts, b.FGM, b.FGA, b.FG3M, b.FG3A,
			b.FTM, b.FTA, b.OREB, b.DREB, b.AST, b.STL, b.BLK, b.TOV, b.PF, b.Started,
		})
	}

	n, err := conn.CopyRows(ctx, "boxscore_player",
		[]string{"game_id", "player_id", "team_id", "min_sec", "pts", "fgm", "fga", "fg3m", "fg3a",
			"ftm", "fta", "oreb", "dreb", "ast", "stl", "blk", "tov", "pf", "started"}, rows)
	if err != nil {
		return Result{}, core.New("load", core.CheckViolation, "boxscore_player", err)
	}

	return Result{Step: "boxscore_player", RowsIn: int64(len(raw)), RowsOut: n, Duration: time.Since(started)}, nil
}
