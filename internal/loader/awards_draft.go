package loader

import (
	"context"
	"time"

	"stormlightlabs.org/hoopscore/internal/core"
	"stormlightlabs.org/hoopscore/internal/db"
	"stormlightlabs.org/hoopscore/internal/resolve"
)

func init() {
	register("all_star_selections", loadAllStarSelections)
	register("player_award_shares", loadPlayerAwardShares)
	register("end_of_season_teams", loadEndOfSeasonTeams)
	register("end_of_season_voting", loadEndOfSeasonVoting)
	register("draft_picks", loadDraftPicks)
	register("draft_combine_stats", loadDraftCombineStats)
	register("inactive_players", loadInactivePlayers)
	register("game_officials", loadGameOfficials)
	register("player_play_by_play_stats", loadPlayerPlayByPlayStats)
	register("player_shooting_stats", loadPlayerShootingStats)
}

type allStarRow struct {
	PlayerID      string `csv:"player_id"`
	SeasonEndYear int    `csv:"season_end_year"`
	Team          string `csv:"team"`
}

func loadAllStarSelections(ctx context.Context, src Source, r *resolve.Resolver, conn *db.DB) (Result, error) {
	started := time.Now()
	var raw []allStarRow
	if err := decodeCSV(src.DataDir, src.Filename, &raw); err != nil {
		return Result{}, core.New("load", core.TypeCoercionError, "all_star_selections decode", err)
	}

	rows := make([][]any, 0, len(raw))
	for _, a := range raw {
		seasonID, err := r.ResolveSeason(ctx, core.SeasonEndYear(a.SeasonEndYear))
		if err != nil {
			return Result{}, err
		}
		teamID, err := r.ResolveTeam(ctx, a.Team, core.SeasonEndYear(a.SeasonEndYear))
		if err != nil {
			return Result{}, err
		}
		var playerCol any
		if a.PlayerID != "" {
			playerCol = a.PlayerID
		}
		rows = append(rows, []any{playerCol, string(seasonID), string(teamID)})
	}

	n, err := conn.CopyRows(ctx, "all_star_selections", []string{"player_id", "season_id", "team_id"}, rows)
	if err != nil {
		return Result{}, core.New("load", core.FKViolation, "all_star_selections", err)
	}
	return Result{Step: "all_star_selections", RowsIn: int64(len(raw)), RowsOut: n, Duration: time.Since(started)}, nil
}

type awardShareRow struct {
	PlayerID      string  `csv:"player_id"`
	AwardID       string  `csv:"award_id"`
	SeasonEndYear int     `csv:"season_end_year"`
	SharePct      float64 `csv:"share_pct"`
	Votes         int     `csv:"votes"`
	Rank          *int    `csv:"rank"`
}

func loadPlayerAwardShares(ctx context.Context, src Source, r *resolve.Resolver, conn *db.DB) (Result, error) {
	started := time.Now()
	var raw []awardShareRow
	if err := decodeCSV(src.DataDir, src.Filename, &raw); err != nil {
		return Result{}, core.New("load", core.TypeCoercionError, "player_award_shares decode", err)
	}

	rows := make([][]any, 0, len(raw))
	for _, a := range raw {
		seasonID, err := r.ResolveSeason(ctx, core.SeasonEndYear(a.SeasonEndYear))
		if err != nil {
			return Result{}, err
		}
		var playerCol, rankCol any
		if a.PlayerID != "" {
			playerCol = a.PlayerID
		}
		if a.Rank != nil {
			rankCol = *a.Rank
		}
		rows = append(rows, []any{playerCol, a.AwardID, string(seasonID), a.SharePct, a.Votes, rankCol})
	}

	n, err := conn.CopyRows(ctx, "player_award_shares",
		[]string{"player_id", "award_id", "season_id", "share_pct", "votes", "rank"}, rows)
	if err != nil {
		return Result{}, core.New("load", core.FKViolation, "player_award_shares", err)
	}
	return Result{Step: "player_award_shares", RowsIn: int64(len(raw)), RowsOut: n, Duration: time.Since(started)}, nil
}

type endOfSeasonTeamRow struct {
	PlayerID      string `csv:"player_id"`
	AwardID       string `csv:"award_id"`
	SeasonEndYear int    `csv:"season_end_year"`
}

func loadEndOfSeasonTeams(ctx context.Context, src Source, r *resolve.Resolver, conn *db.DB) (Result, error) {
	started := time.Now()
	var raw []endOfSeasonTeamRow
	if err := decodeCSV(src.DataDir, src.Filename, &raw); err != nil {
		return Result{}, core.New("load", core.TypeCoercionError, "end_of_season_teams decode", err)
	}

	rows := make([][]any, 0, len(raw))
	for _, e := range raw {
		seasonID, err := r.ResolveSeason(ctx, core.SeasonEndYear(e.SeasonEndYear))
		if err != nil {
			return Result{}, err
		}
		var playerCol any
		if e.PlayerID != "" {
			playerCol = e.PlayerID
		}
		rows = append(rows, []any{playerCol, e.AwardID, string(seasonID)})
	}

	n, err := conn.CopyRows(ctx, "end_of_season_teams", []string{"player_id", "award_id", "season_id"}, rows)
	if err != nil {
		return Result{}, core.New("load", core.FKViolation, "end_of_season_teams", err)
	}
	return Result{Step: "end_of_season_teams", RowsIn: int64(len(raw)), RowsOut: n, Duration: time.Since(started)}, nil
}

type endOfSeasonVotingRow struct {
	PlayerID      string  `csv:"player_id"`
	AwardID       string  `csv:"award_id"`
	SeasonEndYear int     `csv:"season_end_year"`
	Points        float64 `csv:"points"`
	Rank          *int    `csv:"rank"`
}

func loadEndOfSeasonVoting(ctx context.Context, src Source, r *resolve.Resolver, conn *db.DB) (Result, error) {
	started := time.Now()
	var raw []endOfSeasonVotingRow
	if err := decodeCSV(src.DataDir, src.Filename, &raw); err != nil {
		return Result{}, core.New("load", core.TypeCoercionError, "end_of_season_voting decode", err)
	}

	rows := make([][]any, 0, len(raw))
	for _, e := range raw {
		seasonID, err := r.ResolveSeason(ctx, core.SeasonEndYear(e.SeasonEndYear))
		if err != nil {
			return Result{}, err
		}
		var playerCol, rankCol any
		if e.PlayerID != "" {
			playerCol = e.PlayerID
		}
		if e.Rank != nil {
			rankCol = *e.Rank
		}
		rows = append(rows, []any{playerCol, e.AwardID, string(seasonID), e.Points, rankCol})
	}

	n, err := conn.CopyRows(ctx, "end_of_season_voting",
		[]string{"player_id", "award_id", "season_id", "points", "rank"}, rows)
	if err != nil {
		return Result{}, core.New("load", core.FKViolation, "end_of_season_voting", err)
	}
	return Result{Step: "end_of_season_voting", RowsIn: int64(len(raw)), RowsOut: n, Duration: time.Since(started)}, nil
}

type draftPickRow struct {
	Year     int    `csv:"year"`
	Round    int    `csv:"round"`
	Pick     int    `csv:"pick"`
	Team     string `csv:"team"`
	PlayerID string `csv:"player_id"`
}

func loadDraftPicks(ctx context.Context, src Source, r *resolve.Resolver, conn *db.DB) (Result, error) {
	started := time.Now()
	var raw []draftPickRow
	if err := decodeCSV(src.DataDir, src.Filename, &raw); err != nil {
		return Result{}, core.New("load", core.TypeCoercionError, "draft_picks decode", err)
	}

	rows := make([][]any, 0, len(raw))
	for _, d := range raw {
		teamID, err := r.ResolveTeam(ctx, d.Team, core.SeasonEndYear(d.Year))
		if err != nil {
			return Result{}, err
		}
		var playerCol any
		if d.PlayerID != "" {
			playerCol = d.PlayerID
		}
		rows = append(rows, []any{d.Year, d.Round, d.Pick, string(teamID), playerCol})
	}

	n, err := conn.CopyRows(ctx, "draft_picks", []string{"year", "round", "pick", "team_id", "player_id"}, rows)
	if err != nil {
		return Result{}, core.New("load", core.FKViolation, "draft_picks", err)
	}
	return Result{Step: "draft_picks", RowsIn: int64(len(raw)), RowsOut: n, Duration: time.Since(started)}, nil
}

type combineRow struct {
	PlayerID      string   `csv:"player_id"`
	Year          int      `csv:"year"`
	HeightNoShoes *float64 `csv:"height_no_shoes"`
	Wingspan      *float64 `csv:"wingspan"`
	VerticalMax   *float64 `csv:"vertical_max"`
}

func loadDraftCombineStats(ctx context.Context, src Source, r *resolve.Resolver, conn *db.DB) (Result, error) {
	started := time.Now()
	var raw []combineRow
	if err := decodeCSV(src.DataDir, src.Filename, &raw); err != nil {
		return Result{}, core.New("load", core.TypeCoercionError, "draft_combine_stats decode", err)
	}

	rows := make([][]any, 0, len(raw))
	for _, c := range raw {
		var height, wing, vert any
		if c.HeightNoShoes != nil {
			height = *c.HeightNoShoes
		}
		if c.Wingspan != nil {
			wing = *c.Wingspan
		}
		if c.VerticalMax != nil {
			vert = *c.VerticalMax
		}
		rows = append(rows, []any{c.PlayerID, c.Year, height, wing, vert})
	}

	n, err := conn.CopyRows(ctx, "draft_combine_stats",
		[]string{"player_id", "year", "height_no_shoes", "wingspan", "vertical_max"}, rows)
	if err != nil {
		return Result{}, core.New("load", core.FKViolation, "draft_combine_stats", err)
	}
	return Result{Step: "draft_combine_stats", RowsIn: int64(len(raw)), RowsOut: n, Duration: time.Since(started)}, nil
}

type inactiveRow struct {
	GameID   string `csv:"game_id"`
	PlayerID string `csv:"player_id"`
	TeamID   string `csv:"team_id"`
}

func loadInactivePlayers(ctx context.Context, src Source, r *resolve.Resolver, conn *db.DB) (Result, error) {
	started := time.Now()
	var raw []inactiveRow
	if err := decodeCSV(src.DataDir, src.Filename, &raw); err != nil {
		return Result{}, core.New("load", core.TypeCoercionError, "inactive_players decode", err)
	}

	rows := make([][]any, 0, len(raw))
	for _, i := range raw {
		rows = append(rows, []any{i.GameID, i.PlayerID, i.TeamID})
	}

	n, err := conn.CopyRows(ctx, "inactive_players", []string{"game_id", "player_id", "team_id"}, rows)
	if err != nil {
		return Result{}, core.New("load", core.FKViolation, "inactive_players", err)
	}
	return Result{Step: "inactive_players", RowsIn: int64(len(raw)), RowsOut: n, Duration: time.Since(started)}, nil
}

type officialRow struct {
	GameID string `csv:"game_id"`
	Name   string `csv:"name"`
}

func loadGameOfficials(ctx context.Context, src Source, r *resolve.Resolver, conn *db.DB) (Result, error) {
	started := time.Now()
	var raw []officialRow
	if err := decodeCSV(src.DataDir, src.Filename, &raw); err != nil {
		return Result{}, core.New("load", core.TypeCoercionError, "game_officials decode", err)
	}

	rows := make([][]any, 0, len(raw))
	for _, o := range raw {
		rows = append(rows, []any{o.GameID, o.Name})
	}

	n, err := conn.CopyRows(ctx, "game_officials", []string{"game_id", "name"}, rows)
	if err != nil {
		return Result{}, core.New("load", core.FKViolation, "game_officials", err)
	}
	return Result{Step: "game_officials", RowsIn: int64(len(raw)), RowsOut: n, Duration: time.Since(started)}, nil
}

type pbpStatRow struct {
	SeasID          string  `csv:"seas_id"`
	PtsOnCourtPG    float64 `csv:"pts_on_court_pg"`
	PtsOffCourtPG   float64 `csv:"pts_off_court_pg"`
}

func loadPlayerPlayByPlayStats(ctx context.Context, src Source, r *resolve.Resolver, conn *db.DB) (Result, error) {
	started := time.Now()
	var raw []pbpStatRow
	if err := decodeCSV(src.DataDir, src.Filename, &raw); err != nil {
		return Result{}, core.New("load", core.TypeCoercionError, "player_play_by_play_stats decode", err)
	}

	rows := make([][]any, 0, len(raw))
	for _, p := range raw {
		rows = append(rows, []any{p.SeasID, p.PtsOnCourtPG, p.PtsOffCourtPG})
	}

	n, err := conn.CopyRows(ctx, "player_play_by_play_stats",
		[]string{"seas_id", "pts_on_court_pg", "pts_off_court_pg"}, rows)
	if err != nil {
		return Result{}, core.New("load", core.FKViolation, "player_play_by_play_stats", err)
	}
	return Result{Step: "player_play_by_play_stats", RowsIn: int64(len(raw)), RowsOut: n, Duration: time.Since(started)}, nil
}

type shootingStatRow struct {
	SeasID      string `csv:"seas_id"`
	FGPctByZone string `csv:"fg_pct_by_zone"` // raw JSON blob in source
}

func loadPlayerShootingStats(ctx context.Context, src Source, r *resolve.Resolver, conn *db.DB) (Result, error) {
	started := time.Now()
	var raw []shootingStatRow
	if err := decodeCSV(src.DataDir, src.Filename, &raw); err != nil {
		return Result{}, core.New("load", core.TypeCoercionError, "player_shooting_stats decode", err)
	}

	rows := make([][]any, 0, len(raw))
	for _, s := range raw {
		var zones any
		if s.FGPctByZone != "" {
			zones = s.FGPctByZone
		}
		rows = append(rows, []any{s.SeasID, zones})
	}

	n, err := conn.CopyRows(ctx, "player_shooting_stats", []string{"seas_id", "fg_pct_by_zone"}, rows)
	if err != nil {
		return Result{}, core.New("load", core.FKViolation, "player_shooting_stats", err)
	}
	return Result{Step: "player_shooting_stats", RowsIn: int64(len(raw)), RowsOut: n, Duration: time.Since(started)}, nil
}
