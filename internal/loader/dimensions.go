package loader

import (
	"context"
	"time"

	"stormlightlabs.org/hoopscore/internal/core"
	"stormlightlabs.org/hoopscore/internal/db"
	"stormlightlabs.org/hoopscore/internal/resolve"
)

func init() {
	register("seasons", loadSeasons)
	register("teams", loadTeams)
	register("team_history", loadTeamHistory)
	register("team_abbrev_mappings", loadTeamAbbrevMappings)
	register("players", loadPlayers)
	register("player_aliases", loadPlayerAliases)
}

type seasonRow struct {
	SeasonEndYear int    `csv:"season_end_year"`
	StartDate     string `csv:"start_date"`
	EndDate       string `csv:"end_date"`
}

// loadSeasons generates season_id deterministically from season_end_year
// (resolve.DeriveSeasonID) rather than trusting any ID column in source.
func loadSeasons(ctx context.Context, src Source, r *resolve.Resolver, conn *db.DB) (Result, error) {
	started := time.Now()
	var raw []seasonRow
	if err := decodeCSV(src.DataDir, src.Filename, &raw); err != nil {
		return Result{}, core.New("load", core.TypeCoercionError, "seasons.csv decode", err)
	}

	rows := make([][]any, 0, len(raw))
	seasons := make([]core.Season, 0, len(raw))
	for _, s := range raw {
		id := resolve.DeriveSeasonID(core.SeasonEndYear(s.SeasonEndYear))
		rows = append(rows, []any{string(id), s.SeasonEndYear, s.StartDate, s.EndDate})
		seasons = append(seasons, core.Season{SeasonID: id, SeasonEndYear: core.SeasonEndYear(s.SeasonEndYear)})
	}

	n, err := conn.CopyRows(ctx, "seasons", []string{"season_id", "season_end_year", "start_date", "end_date"}, rows)
	if err != nil {
		return Result{}, core.New("load", core.FKViolation, "seasons", err)
	}
	r.LoadSeasons(seasons)

	return Result{Step: "seasons", RowsIn: int64(len(raw)), RowsOut: n, Duration: time.Since(started)}, nil
}

type teamRow struct {
	TeamID      string `csv:"team_id"`
	Abbrev      string `csv:"abbrev"`
	FranchiseID string `csv:"franchise_id"`
	City        string `csv:"city"`
	Name        string `csv:"name"`
	FirstSeason int    `csv:"first_season"`
	LastSeason  *int   `csv:"last_season"`
}

func loadTeams(ctx context.Context, src Source, r *resolve.Resolver, conn *db.DB) (Result, error) {
	started := time.Now()
	var raw []teamRow
	if err := decodeCSV(src.DataDir, src.Filename, &raw); err != nil {
		return Result{}, core.New("load", core.TypeCoercionError, "teams.csv decode", err)
	}

	franchises := map[string]struct{}{}
	rows := make([][]any, 0, len(raw))
	for _, t := range raw {
		franchises[t.FranchiseID] = struct{}{}
		var last any
		if t.LastSeason != nil {
			last = *t.LastSeason
		}
		rows = append(rows, []any{t.TeamID, t.Abbrev, t.FranchiseID, t.City, t.Name, t.FirstSeason, last})
	}

	franchiseRows := make([][]any, 0, len(franchises))
	for fid := range franchises {
		franchiseRows = append(franchiseRows, []any{fid})
	}
	if _, err := conn.CopyRows(ctx, "franchises", []string{"franchise_id"}, franchiseRows); err != nil {
		return Result{}, core.New("load", core.FKViolation, "franchises", err)
	}

	n, err := conn.CopyRows(ctx, "teams",
		[]string{"team_id", "abbrev", "franchise_id", "city", "name", "first_season", "last_season"}, rows)
	if err != nil {
		return Result{}, core.New("load", core.FKViolation, "teams", err)
	}

	return Result{Step: "teams", RowsIn: int64(len(raw)), RowsOut: n, Duration: time.Since(started)}, nil
}

type teamHistoryRow struct {
	FranchiseID   string `csv:"franchise_id"`
	TeamID        string `csv:"team_id"`
	EffectiveYear int    `csv:"effective_year"`
	City          string `csv:"city"`
	Name          string `csv:"name"`
}

func loadTeamHistory(ctx context.Context, src Source, r *resolve.Resolver, conn *db.DB) (Result, error) {
	started := time.Now()
	var raw []teamHistoryRow
	if err := decodeCSV(src.DataDir, src.Filename, &raw); err != nil {
		return Result{}, core.New("load", core.TypeCoercionError, "team_history.csv decode", err)
	}

	rows := make([][]any, 0, len(raw))
	for _, h := range raw {
		rows = append(rows, []any{h.FranchiseID, h.TeamID, h.EffectiveYear, h.City, h.Name})
	}

	n, err := conn.CopyRows(ctx, "team_history",
		[]string{"franchise_id", "team_id", "effective_year", "city", "name"}, rows)
	if err != nil {
		return Result{}, core.New("load", core.FKViolation, "team_history", err)
	}

	return Result{Step: "team_history", RowsIn: int64(len(raw)), RowsOut: n, Duration: time.Since(started)}, nil
}

type teamAbbrevRow struct {
	Abbrev      string `csv:"abbrev"`
	TeamID      string `csv:"team_id"`
	FirstSeason int    `csv:"first_season"`
	LastSeason  int    `csv:"last_season"`
}

func loadTeamAbbrevMappings(ctx context.Context, src Source, r *resolve.Resolver, conn *db.DB) (Result, error) {
	started := time.Now()
	var raw []teamAbbrevRow
	if err := decodeCSV(src.DataDir, src.Filename, &raw); err != nil {
		return Result{}, core.New("load", core.TypeCoercionError, "team_abbrev_mappings.csv decode", err)
	}

	rows := make([][]any, 0, len(raw))
	mappings := make([]core.TeamAbbrevMapping, 0, len(raw))
	for _, m := range raw {
		rows = append(rows, []any{m.Abbrev, m.TeamID, m.FirstSeason, m.LastSeason})
		mappings = append(mappings, core.TeamAbbrevMapping{
			Abbrev: m.Abbrev, TeamID: core.TeamID(m.TeamID),
			FirstSeason: core.SeasonEndYear(m.FirstSeason), LastSeason: core.SeasonEndYear(m.LastSeason),
		})
	}

	n, err := conn.CopyRows(ctx, "team_abbrev_mappings",
		[]string{"abbrev", "team_id", "first_season", "last_season"}, rows)
	if err != nil {
		return Result{}, core.New("load", core.FKViolation, "team_abbrev_mappings", err)
	}
	r.LoadTeamAbbrevMappings(mappings)

	return Result{Step: "team_abbrev_mappings", RowsIn: int64(len(raw)), RowsOut: n, Duration: time.Since(started)}, nil
}

type playerRow struct {
	PlayerID    string `csv:"player_id"`
	FullName    string `csv:"full_name"`
	BirthDate   string `csv:"birth_date"`
	Positions   string `csv:"positions"` // pipe-delimited, e.g. "G|F"
	HeightIn    *int   `csv:"height_in"`
	WeightLb    *int   `csv:"weight_lb"`
	DebutSeason *int   `csv:"debut_season"`
	LastSeason  *int   `csv:"last_season"`
}

// loadPlayers loads the single player artifact named by the manifest
// entry and does not merge player.csv, playerdirectory.csv,
// playercareerinfo.csv or common_player_info.csv itself; the file is
// assumed to already be the merged artifact the upstream pipeline
// produced, in the artifact-preparation stage the manifest snapshots.
func loadPlayers(ctx context.Context, src Source, r *resolve.Resolver, conn *db.DB) (Result, error) {
	started := time.Now()
	var raw []playerRow
	if err := decodeCSV(src.DataDir, src.Filename, &raw); err != nil {
		return Result{}, core.New("load", core.TypeCoercionError, "players.csv decode", err)
	}

	rows := make([][]any, 0, len(raw))
	for _, p := range raw {
		var birth any
		if p.BirthDate != "" {
			birth = p.BirthDate
		}
		var height, weight, debut, last any
		if p.HeightIn != nil {
			height = *p.HeightIn
		}
		if p.WeightLb != nil {
			weight = *p.WeightLb
		}
		if p.DebutSeason != nil {
			debut = *p.DebutSeason
		}
		if p.LastSeason != nil {
			last = *p.LastSeason
		}
		rows = append(rows, []any{p.PlayerID, p.FullName, birth, splitPositions(p.Positions), height, weight, debut, last})
	}

	n, err := conn.CopyRows(ctx, "players",
		[]string{"player_id", "full_name", "birth_date", "positions", "height_in", "weight_lb", "debut_season", "last_season"}, rows)
	if err != nil {
		return Result{}, core.New("load", core.FKViolation, "players", err)
	}

	return Result{Step: "players", RowsIn: int64(len(raw)), RowsOut: n, Duration: time.Since(started)}, nil
}

func splitPositions(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	cur := ""
	for _, c := range s {
		if c == '|' {
			out = append(out, cur)
			cur = ""
			continue
		}
		cur += string(c)
	}
	out = append(out, cur)
	return out
}

type playerAliasRow struct {
	PlayerID string `csv:"player_id"`
	Alias    string `csv:"alias"`
	Source   string `csv:"source"`
}

func loadPlayerAliases(ctx context.Context, src Source, r *resolve.Resolver, conn *db.DB) (Result, error) {
	started := time.Now()
	var raw []playerAliasRow
	if err := decodeCSV(src.DataDir, src.Filename, &raw); err != nil {
		return Result{}, core.New("load", core.TypeCoercionError, "player_aliases.csv decode", err)
	}

	rows := make([][]any, 0, len(raw))
	aliases := make([]core.PlayerAlias, 0, len(raw))
	for _, a := range raw {
		rows = append(rows, []any{a.PlayerID, a.Alias, a.Source})
		aliases = append(aliases, core.PlayerAlias{PlayerID: core.PlayerID(a.PlayerID), Alias: a.Alias, Source: a.Source})
	}

	n, err := conn.CopyRows(ctx, "player_aliases", []string{"player_id", "alias", "source"}, rows)
	if err != nil {
		return Result{}, core.New("load", core.FKViolation, "player_aliases", err)
	}
	r.LoadPlayerAliases(aliases)

	return Result{Step: "player_aliases", RowsIn: int64(len(raw)), RowsOut: n, Duration: time.Since(started)}, nil
}
