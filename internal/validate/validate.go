// Package validate implements the three-phase Validation Harness:
// pre-load manifest verification, mid-load constraint enforcement (left
// entirely to Postgres), and the post-load assertion suite.
package validate

import (
	"context"
	"fmt"

	"stormlightlabs.org/hoopscore/internal/core"
	"stormlightlabs.org/hoopscore/internal/db"
)

// fkDeclaration is one declared FK edge checked for coverage post-load.
type fkDeclaration struct {
	child, childCol, parent, parentCol string
}

// declaredFKs mirrors the FK edges the migrations in internal/db/sql
// declare; kept here explicitly so FK coverage checks don't depend on
// introspecting information_schema (simpler, and matches what the
// migrations actually enforce).
var declaredFKs = []fkDeclaration{
	{"teams", "franchise_id", "franchises", "franchise_id"},
	{"player_aliases", "player_id", "players", "player_id"},
	{"games", "season_id", "seasons", "season_id"},
	{"games", "home_team_id", "teams", "team_id"},
	{"games", "away_team_id", "teams", "team_id"},
	{"boxscore_team", "game_id", "games", "game_id"},
	{"boxscore_player", "game_id", "games", "game_id"},
	{"boxscore_player", "player_id", "players", "player_id"},
	{"player_season", "player_id", "players", "player_id"},
	{"player_season", "season_id", "seasons", "season_id"},
	{"pbp_events", "game_id", "games", "game_id"},
}

// Issue mirrors core.EtlRunIssue but without a run_id, since the
// orchestrator stamps that in once a run is underway.
type Issue struct {
	Step     string
	Severity core.IssueSeverity
	Message  string
}

// Report is the outcome of a validation phase: ERROR-severity issues are
// fatal to the enclosing run.
type Report struct {
	Issues []Issue
}

func (r *Report) HasErrors() bool {
	for _, i := range r.Issues {
		if i.Severity == core.SeverityError {
			return true
		}
	}
	return false
}

func (r *Report) add(step string, severity core.IssueSeverity, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{Step: step, Severity: severity, Message: fmt.Sprintf(format, args...)})
}

// RowCountEquality checks, for every (table, expectedCount) pair supplied
// by the caller (manifest.line_count - 1 per loaded file), that Postgres's
// actual row count matches exactly.
func RowCountEquality(ctx context.Context, conn *db.DB, expected map[string]int64) (*Report, error) {
	report := &Report{}
	for table, want := range expected {
		var got int64
		if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&got); err != nil {
			return nil, core.New("validate", core.RowCountMismatch, fmt.Sprintf("counting %s", table), err)
		}
		if got != want {
			report.add(table, core.SeverityError, "row count mismatch for %s: manifest expects %d, table has %d", table, want, got)
		}
	}
	return report, nil
}

// FKCoverage runs `SELECT COUNT(*) FROM child LEFT JOIN parent ... WHERE
// parent.col IS NULL` for every declared FK; a nonzero count is an
// orphaned child row.
func FKCoverage(ctx context.Context, conn *db.DB) (*Report, error) {
	report := &Report{}
	for _, fk := range declaredFKs {
		q := fmt.Sprintf(
			`SELECT COUNT(*) FROM %s c LEFT JOIN %s p ON c.%s = p.%s WHERE c.%s IS NOT NULL AND p.%s IS NULL`,
			fk.child, fk.parent, fk.childCol, fk.parentCol, fk.childCol, fk.parentCol,
		)
		var orphans int64
		if err := conn.QueryRowContext(ctx, q).Scan(&orphans); err != nil {
			return nil, core.New("validate", core.FKCoverageFail, fmt.Sprintf("checking %s.%s -> %s.%s", fk.child, fk.childCol, fk.parent, fk.parentCol), err)
		}
		if orphans > 0 {
			report.add(fk.child, core.SeverityError, "%d rows in %s have %s with no matching %s.%s", orphans, fk.child, fk.childCol, fk.parent, fk.parentCol)
		}
	}
	return report, nil
}

// DomainRules runs the basketball-specific arithmetic, temporal,
// categorical, and numeric-bound checks named in spec.md §3/§4.5. Postgres
// CHECK constraints already enforce the hard invariants at insert time;
// this phase re-derives the aggregate/statistical ones that span rows.
func DomainRules(ctx context.Context, conn *db.DB) (*Report, error) {
	report := &Report{}

	type rule struct {
		name, query, message string
	}
	rules := []rule{
		{
			name: "boxscore_player_arithmetic",
			query: `SELECT COUNT(*) FROM boxscore_player
				WHERE ABS(pts - (2*(fgm - fg3m) + 3*fg3m + ftm)) > 1`,
			message: "boxscore_player rows fail PTS = 2*(FGM-3PM)+3*3PM+FTM within tolerance",
		},
		{
			name: "player_season_gp_bounds",
			query: `SELECT COUNT(*) FROM player_season_totals t
				JOIN player_season ps ON ps.seas_id = t.seas_id
				WHERE (ps.game_type = 'regular' AND t.gp > 82)
				   OR (ps.game_type = 'playoffs' AND t.gp > 106)`,
			message: "player_season_totals rows exceed GP bounds (82 regular / 106 incl. playoffs)",
		},
		{
			name: "player_season_min_bounds",
			query: `SELECT COUNT(*) FROM player_season_totals t
				JOIN player_season ps ON ps.seas_id = t.seas_id
				WHERE NOT ps.is_total AND t.min_sec > t.gp * 48 * 60`,
			message: "player_season_totals rows exceed MIN <= GP*48 for non-TOT rows",
		},
		{
			name: "pbp_period_bounds",
			query: `SELECT COUNT(*) FROM pbp_events WHERE period NOT BETWEEN 1 AND 10`,
			message: "pbp_events rows outside the 1..10 period bound",
		},
		{
			name: "advanced_metric_bounds",
			query: `SELECT COUNT(*) FROM player_season_advanced
				WHERE per NOT BETWEEN -20 AND 50
				   OR ts_pct NOT BETWEEN 0 AND 1
				   OR ortg NOT BETWEEN 60 AND 150
				   OR drtg NOT BETWEEN 60 AND 150`,
			message: "player_season_advanced rows outside declared numeric bounds",
		},
		{
			name: "team_season_win_loss",
			query: `SELECT COUNT(*) FROM team_season_totals WHERE w + l <> gp`,
			message: "team_season_totals rows fail W + L = GP",
		},
		{
			name: "game_dates_within_season",
			query: `SELECT COUNT(*) FROM games g JOIN seasons s ON s.season_id = g.season_id
				WHERE g.date < s.start_date OR g.date > s.end_date`,
			message: "games exist outside their season's start/end window",
		},
	}

	for _, rl := range rules {
		var violations int64
		if err := conn.QueryRowContext(ctx, rl.query).Scan(&violations); err != nil {
			return nil, core.New("validate", core.DomainRuleViolation, rl.name, err)
		}
		if violations > 0 {
			report.add(rl.name, core.SeverityError, "%s: %d violating rows", rl.message, violations)
		}
	}

	return report, nil
}

// CrossTableSanity flags games whose home and away team scores are equal
// (no winner), and team-games whose summed player minutes differ from
// 240 minutes by more than 2, per spec.md §4.5.
func CrossTableSanity(ctx context.Context, conn *db.DB) (*Report, error) {
	report := &Report{}

	var scoreMismatches int64
	const scoreQuery = `
		SELECT COUNT(*) FROM games g
		JOIN boxscore_team home ON home.game_id = g.game_id AND home.team_id = g.home_team_id
		JOIN boxscore_team away ON away.game_id = g.game_id AND away.team_id = g.away_team_id
		WHERE home.pts = away.pts
	`
	if err := conn.QueryRowContext(ctx, scoreQuery).Scan(&scoreMismatches); err != nil {
		return nil, core.New("validate", core.CrossTableInconsistency, "team score cross-check", err)
	}
	if scoreMismatches > 0 {
		report.add("cross_table_scores", core.SeverityWarn, "%d games have tied team point totals (verify no data duplication)", scoreMismatches)
	}

	var minuteMismatches int64
	const minutesQuery = `
		SELECT COUNT(*) FROM (
			SELECT bp.game_id, bp.team_id, SUM(bp.min_sec) AS player_min_sec
			FROM boxscore_player bp
			GROUP BY bp.game_id, bp.team_id
		) pm
		WHERE ABS(pm.player_min_sec - 240*60) > 2*60
	`
	if err := conn.QueryRowContext(ctx, minutesQuery).Scan(&minuteMismatches); err != nil {
		return nil, core.New("validate", core.CrossTableInconsistency, "team minutes cross-check", err)
	}
	if minuteMismatches > 0 {
		report.add("cross_table_minutes", core.SeverityWarn, "%d team-games have summed player minutes off by more than 2 min from team total", minuteMismatches)
	}

	return report, nil
}

// PostLoad runs the full post-load suite and merges every phase's issues.
// Any ERROR aborts the run per spec.md §4.5.
func PostLoad(ctx context.Context, conn *db.DB, expectedCounts map[string]int64) (*Report, error) {
	merged := &Report{}

	rowCounts, err := RowCountEquality(ctx, conn, expectedCounts)
	if err != nil {
		return nil, err
	}
	merged.Issues = append(merged.Issues, rowCounts.Issues...)

	fkCoverage, err := FKCoverage(ctx, conn)
	if err != nil {
		return nil, err
	}
	merged.Issues = append(merged.Issues, fkCoverage.Issues...)

	domain, err := DomainRules(ctx, conn)
	if err != nil {
		return nil, err
	}
	merged.Issues = append(merged.Issues, domain.Issues...)

	crossTable, err := CrossTableSanity(ctx, conn)
	if err != nil {
		return nil, err
	}
	merged.Issues = append(merged.Issues, crossTable.Issues...)

	return merged, nil
}
