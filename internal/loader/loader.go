// Package loader implements the per-domain loaders that consume manifest
// entries, stream CSVs, apply transformations, and bulk-copy rows into
// Postgres. Every loader is a pure function of (manifest entry, resolver,
// conn) with no shared mutable state outside the resolver cache.
package loader

import (
	"context"
	"time"

	"stormlightlabs.org/hoopscore/internal/core"
	"stormlightlabs.org/hoopscore/internal/db"
	"stormlightlabs.org/hoopscore/internal/manifest"
	"stormlightlabs.org/hoopscore/internal/resolve"
)

// Result mirrors the spec's LoadResult contract: rows in, rows out, and
// any non-fatal issues surfaced for etl_run_issues.
type Result struct {
	Step     string
	RowsIn   int64
	RowsOut  int64
	Duration time.Duration
	Issues   []core.EtlRunIssue
}

// Source bundles the manifest entry with the identity (filename, data
// directory) a loader needs to locate its artifact on disk. The manifest
// itself only indexes entries by filename, so callers build a Source per
// step from the manifest + data dir once, before the topology walk.
type Source struct {
	Filename string
	DataDir  string
	Entry    manifest.Entry
}

// Func is the pure-function shape every loader implements.
type Func func(ctx context.Context, src Source, r *resolve.Resolver, conn *db.DB) (Result, error)

// Step names the loaders in strict topological order, mirroring the
// dependency groups named in the spec's Loader Pipeline section. The
// Orchestrator walks this slice in order; run_subset expands predecessors
// by truncating at the last requested step's index (a requested manifest
// filename stands for its step).
// team_summaries (team pace/ORtg/DRtg) must precede the per100 satellites
// that divide by pace, for both team_season and player_season; it is
// grouped with team_season here since it shares the team-season grain.
var Topology = []string{
	"seasons",
	"teams",
	"team_history",
	"team_abbrev_mappings",
	"players",
	"player_aliases",
	"games",
	"boxscore_team",
	"boxscore_player",
	"team_season_hub",
	"team_season_totals",
	"team_summaries",
	"team_season_per_game",
	"team_season_per100",
	"team_season_opponent",
	"player_season_hub",
	"player_season_per_game",
	"player_season_totals",
	"player_season_per36",
	"player_season_per100",
	"player_season_advanced",
	"pbp_events",
	"all_star_selections",
	"player_award_shares",
	"end_of_season_teams",
	"end_of_season_voting",
	"draft_picks",
	"draft_combine_stats",
	"inactive_players",
	"game_officials",
	"player_play_by_play_stats",
	"player_shooting_stats",
}

// Registry maps a step name to its implementing Func. Each loader file's
// init() registers its steps; the package tests cross-check Topology and
// Registry, and the orchestrator fails a step that has no registered Func.
var Registry = map[string]Func{}

func register(step string, fn Func) {
	Registry[step] = fn
}

// rowCount runs a SELECT COUNT(*) against table, used to populate
// Result.RowsOut for loaders that write with INSERT ... SELECT.
func rowCount(ctx context.Context, conn *db.DB, table string) (int64, error) {
	var n int64
	err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n)
	return n, err
}
