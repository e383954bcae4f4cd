package query

import (
	"fmt"
	"strings"

	"stormlightlabs.org/hoopscore/internal/core"
	"stormlightlabs.org/hoopscore/internal/metrics"
)

// resolveFactMetric resolves exactly one MetricRef against the per-game
// fact table (boxscore_player/boxscore_team); spans/streaks/splits/versus
// all operate on a single metric's time series. A metric whose
// base_table isn't the entity's fact table is rejected -- these subjects
// need game-level grain, not season aggregates.
func resolveFactMetric(ref MetricRef, schema entitySchema, reg *metrics.Registry) (metrics.Entry, error) {
	entry, err := reg.Get(ref.ID)
	if err != nil {
		return metrics.Entry{}, err
	}
	if entry.BaseTable != schema.factTable {
		return metrics.Entry{}, core.New("query", core.InvalidFilterShape,
			fmt.Sprintf("metric %q (base_table %s) is not game-grain; this subject requires a metric over %s", ref.ID, entry.BaseTable, schema.factTable), nil)
	}
	return entry, nil
}

// applyFactFilters renders Filters against the per-game fact table joined
// to games, in the declared order: temporal, entity identity, game
// scope, location/result, advanced condition.
func applyFactFilters(f Filters, schema entitySchema, known map[string]bool, b *builder) ([]string, error) {
	var clauses []string

	if f.DateRange != nil {
		if f.DateRange.From != nil {
			clauses = append(clauses, fmt.Sprintf("g.date >= %s", b.bind(*f.DateRange.From)))
		}
		if f.DateRange.To != nil {
			clauses = append(clauses, fmt.Sprintf("g.date <= %s", b.bind(*f.DateRange.To)))
		}
	}
	if f.Season != nil {
		c, err := seasonClause(*f.Season, "s", b)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, c...)
	}

	if schema.factIDCol == "player_id" {
		if len(f.PlayerInclude) > 0 {
			clauses = append(clauses, inClause("fc.player_id", toAny(f.PlayerInclude), b))
		}
		if len(f.PlayerExclude) > 0 {
			clauses = append(clauses, notInClause("fc.player_id", toAny(f.PlayerExclude), b))
		}
	}
	if len(f.TeamInclude) > 0 {
		clauses = append(clauses, inClause("fc.team_id", toAny(f.TeamInclude), b))
	}
	if len(f.TeamExclude) > 0 {
		clauses = append(clauses, notInClause("fc.team_id", toAny(f.TeamExclude), b))
	}
	if f.Opponent != nil {
		clauses = append(clauses, opponentClause(b, *f.Opponent))
	}

	if f.GameType != nil {
		clauses = append(clauses, fmt.Sprintf("g.game_type = %s", b.bind(string(*f.GameType))))
	}

	if f.Location != nil {
		clauses = append(clauses, locationClause(*f.Location))
	}
	if f.Result != nil && *f.Result != ResultAny {
		clauses = append(clauses, resultClause(*f.Result))
	}

	if f.AdvancedCondition != nil {
		c, err := advancedConditionClause(f.AdvancedCondition, known, b)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, c)
	}

	return clauses, nil
}

func opponentClause(b *builder, opp core.TeamID) string {
	return fmt.Sprintf(
		"EXISTS (SELECT 1 FROM boxscore_team ot WHERE ot.game_id = fc.game_id AND ot.team_id = %s AND ot.team_id <> fc.team_id)",
		b.bind(opp),
	)
}

func locationClause(loc Location) string {
	switch loc {
	case LocationHome:
		return "g.home_team_id = fc.team_id"
	case LocationAway:
		return "g.away_team_id = fc.team_id"
	default:
		return "TRUE"
	}
}

func resultClause(res Result) string {
	own := fmt.Sprintf(
		"(SELECT bt.pts FROM boxscore_team bt WHERE bt.game_id = fc.game_id AND bt.team_id = fc.team_id)",
	)
	opp := fmt.Sprintf(
		"(SELECT bt.pts FROM boxscore_team bt WHERE bt.game_id = fc.game_id AND bt.team_id <> fc.team_id)",
	)
	if res == ResultWin {
		return fmt.Sprintf("%s > %s", own, opp)
	}
	return fmt.Sprintf("%s < %s", own, opp)
}

// compileSpans builds a rolling window aggregate over the per-game
// time series: ROWS BETWEEN (WindowSize-1) PRECEDING AND CURRENT ROW,
// partitioned by entity, ordered by date (games mode) using a row-number
// based window; dates mode uses a RANGE window over an interval instead.
func compileSpans(q Query, schema entitySchema, reg *metrics.Registry) (*Compiled, error) {
	if q.Span == nil {
		return nil, core.New("query", core.InvalidFilterShape, "spans subject requires a span spec", nil)
	}
	if len(q.Metrics) != 1 {
		return nil, core.New("query", core.InvalidFilterShape, "spans subject takes exactly one metric", nil)
	}
	entry, err := resolveFactMetric(q.Metrics[0], schema, reg)
	if err != nil {
		return nil, err
	}

	b := &builder{}
	var sb strings.Builder

	windowFrame := fmt.Sprintf("ROWS BETWEEN %d PRECEDING AND CURRENT ROW", q.Span.WindowSize-1)
	if q.Span.Mode == SpanModeDates {
		windowFrame = fmt.Sprintf("RANGE BETWEEN INTERVAL '%d days' PRECEDING AND CURRENT ROW", q.Span.WindowSize)
	}

	sb.WriteString(fmt.Sprintf(
		"SELECT fc.%s AS entity_id, g.date, SUM(fc.%s) OVER (PARTITION BY fc.%s ORDER BY g.date %s) AS %s\n",
		schema.factIDCol, entry.Expression, schema.factIDCol, windowFrame, q.Metrics[0].ID,
	))
	sb.WriteString(fmt.Sprintf("FROM %s fc\n", schema.factTable))
	sb.WriteString(fmt.Sprintf("JOIN games g ON g.game_id = fc.%s\n", schema.factGameCol))
	sb.WriteString("JOIN seasons s ON s.season_id = g.season_id\n")

	known := map[string]bool{q.Metrics[0].ID: true}
	where, err := applyFactFilters(q.Filters, schema, known, b)
	if err != nil {
		return nil, err
	}
	if len(where) > 0 {
		sb.WriteString("WHERE " + strings.Join(where, " AND ") + "\n")
	}

	sb.WriteString(fmt.Sprintf("ORDER BY fc.%s ASC, g.date ASC\n", schema.factIDCol))
	limit, offset := clampPage(q.Page)
	sb.WriteString(fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset))

	return &Compiled{SQL: sb.String(), Args: b.args}, nil
}

// compileStreaks implements gaps-and-islands: a running SUM of
// non-matching games, partitioned by entity and ordered by date, builds a group key that is constant within a
// run of games satisfying the predicate; islands of length >= MinLength
// are selected.
func compileStreaks(q Query, schema entitySchema, reg *metrics.Registry) (*Compiled, error) {
	if q.Streak == nil {
		return nil, core.New("query", core.InvalidFilterShape, "streaks subject requires a streak spec", nil)
	}
	entry, err := resolveFactMetric(MetricRef{ID: q.Streak.MetricID}, schema, reg)
	if err != nil {
		return nil, err
	}

	b := &builder{}
	predicate, err := streakPredicateSQL(*q.Streak, entry.Expression, b)
	if err != nil {
		return nil, err
	}

	known := map[string]bool{q.Streak.MetricID: true}
	where, err := applyFactFilters(q.Filters, schema, known, b)
	if err != nil {
		return nil, err
	}
	whereSQL := ""
	if len(where) > 0 {
		whereSQL = "WHERE " + strings.Join(where, " AND ") + "\n"
	}

	var sb strings.Builder
	sb.WriteString("WITH hits AS (\n")
	sb.WriteString(fmt.Sprintf("  SELECT fc.%s AS entity_id, g.date, (%s) AS hit\n", schema.factIDCol, predicate))
	sb.WriteString(fmt.Sprintf("  FROM %s fc\n", schema.factTable))
	sb.WriteString(fmt.Sprintf("  JOIN games g ON g.game_id = fc.%s\n", schema.factGameCol))
	sb.WriteString("  JOIN seasons s ON s.season_id = g.season_id\n")
	sb.WriteString("  " + whereSQL)
	sb.WriteString("),\n")
	sb.WriteString("islands AS (\n")
	sb.WriteString("  SELECT entity_id, date, hit,\n")
	sb.WriteString("    SUM(CASE WHEN hit THEN 0 ELSE 1 END) OVER (PARTITION BY entity_id ORDER BY date) AS island_key\n")
	sb.WriteString("  FROM hits\n")
	sb.WriteString(")\n")
	sb.WriteString("SELECT entity_id, island_key, MIN(date) AS streak_start, MAX(date) AS streak_end, COUNT(*) AS streak_length\n")
	sb.WriteString("FROM islands\n")
	sb.WriteString("WHERE hit\n")
	sb.WriteString("GROUP BY entity_id, island_key\n")
	sb.WriteString(fmt.Sprintf("HAVING COUNT(*) >= %s\n", b.bind(q.Streak.MinLength)))
	sb.WriteString("ORDER BY streak_length DESC, entity_id ASC\n")

	limit, offset := clampPage(q.Page)
	sb.WriteString(fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset))

	return &Compiled{SQL: sb.String(), Args: b.args}, nil
}

func streakPredicateSQL(spec StreakSpec, col string, b *builder) (string, error) {
	switch spec.Predicate {
	case CmpGTE:
		return fmt.Sprintf("fc.%s >= %s", col, b.bind(spec.Threshold)), nil
	case CmpLTE:
		return fmt.Sprintf("fc.%s <= %s", col, b.bind(spec.Threshold)), nil
	case CmpEQ:
		return fmt.Sprintf("fc.%s = %s", col, b.bind(spec.Threshold)), nil
	case CmpGT:
		return fmt.Sprintf("fc.%s > %s", col, b.bind(spec.Threshold)), nil
	case CmpLT:
		return fmt.Sprintf("fc.%s < %s", col, b.bind(spec.Threshold)), nil
	case CmpBetween:
		if spec.Threshold2 == nil {
			return "", core.New("query", core.InvalidFilterShape, "between streak predicate requires threshold2", nil)
		}
		return fmt.Sprintf("fc.%s BETWEEN %s AND %s", col, b.bind(spec.Threshold), b.bind(*spec.Threshold2)), nil
	default:
		return "", core.New("query", core.InvalidFilterShape, fmt.Sprintf("unknown streak predicate %q", spec.Predicate), nil)
	}
}

// splitDimensionExpr resolves a SplitDimension to a SQL expression over
// the per-game fact+games join.
func splitDimensionExpr(schema entitySchema, dim SplitDimension) (string, error) {
	switch dim {
	case SplitSeason:
		return "s.season_end_year", nil
	case SplitMonth:
		return "EXTRACT(MONTH FROM g.date)", nil
	case SplitOpponent:
		return "(SELECT ot.team_id FROM boxscore_team ot WHERE ot.game_id = fc.game_id AND ot.team_id <> fc.team_id)", nil
	case SplitLocation:
		return "(CASE WHEN g.home_team_id = fc.team_id THEN 'home' ELSE 'away' END)", nil
	case SplitResult:
		return fmt.Sprintf(
			"(CASE WHEN (SELECT bt.pts FROM boxscore_team bt WHERE bt.game_id = fc.game_id AND bt.team_id = fc.team_id) > "+
				"(SELECT bt2.pts FROM boxscore_team bt2 WHERE bt2.game_id = fc.game_id AND bt2.team_id <> fc.team_id) THEN 'win' ELSE 'loss' END)",
		), nil
	case SplitRestDays:
		return "(g.date - LAG(g.date) OVER (PARTITION BY fc." + schema.factIDCol + " ORDER BY g.date))", nil
	default:
		return "", core.New("query", core.InvalidFilterShape, fmt.Sprintf("unknown split_dimension %q", dim), nil)
	}
}

// splitMetricExpr renders a metric's per-group aggregate expression for
// compileSplits, honoring an aggregation_override and rejecting a raw
// "none" aggregation -- splits GROUP BY (entity, split_value), so every
// selected metric column must be wrapped in an aggregate function.
func splitMetricExpr(ref MetricRef, entry metrics.Entry) (string, error) {
	agg := string(entry.Aggregation)
	if ref.AggregationOverride != nil {
		agg = *ref.AggregationOverride
	}
	col := fmt.Sprintf("fc.%s", entry.Expression)
	switch metrics.Aggregation(agg) {
	case metrics.AggSum:
		return fmt.Sprintf("SUM(%s) AS %s", col, ref.ID), nil
	case metrics.AggAvg:
		return fmt.Sprintf("AVG(%s) AS %s", col, ref.ID), nil
	case metrics.AggMin:
		return fmt.Sprintf("MIN(%s) AS %s", col, ref.ID), nil
	case metrics.AggMax:
		return fmt.Sprintf("MAX(%s) AS %s", col, ref.ID), nil
	case metrics.AggCount:
		return fmt.Sprintf("COUNT(%s) AS %s", col, ref.ID), nil
	default:
		return "", core.New("query", core.InvalidFilterShape,
			fmt.Sprintf("metric %q has aggregation \"none\", which cannot be grouped by split_dimension; supply an aggregation_override", ref.ID), nil)
	}
}

// compileSplits builds a CTE computing the split dimension per row, then
// groups by (entity, split) for each requested metric.
func compileSplits(q Query, schema entitySchema, reg *metrics.Registry) (*Compiled, error) {
	if q.SplitDimension == nil {
		return nil, core.New("query", core.InvalidFilterShape, "splits subject requires a split_dimension", nil)
	}
	dimExpr, err := splitDimensionExpr(schema, *q.SplitDimension)
	if err != nil {
		return nil, err
	}

	b := &builder{}
	resolvedCols := make([]string, 0, len(q.Metrics))
	known := make(map[string]bool, len(q.Metrics))
	for _, ref := range q.Metrics {
		entry, err := resolveFactMetric(ref, schema, reg)
		if err != nil {
			return nil, err
		}
		col, err := splitMetricExpr(ref, entry)
		if err != nil {
			return nil, err
		}
		resolvedCols = append(resolvedCols, col)
		known[ref.ID] = true
	}

	var sb strings.Builder
	sb.WriteString("WITH rows_split AS (\n")
	sb.WriteString(fmt.Sprintf("  SELECT fc.%s AS entity_id, (%s) AS split_value, fc.*\n", schema.factIDCol, dimExpr))
	sb.WriteString(fmt.Sprintf("  FROM %s fc\n", schema.factTable))
	sb.WriteString(fmt.Sprintf("  JOIN games g ON g.game_id = fc.%s\n", schema.factGameCol))
	sb.WriteString("  JOIN seasons s ON s.season_id = g.season_id\n")

	where, err := applyFactFilters(q.Filters, schema, known, b)
	if err != nil {
		return nil, err
	}
	if len(where) > 0 {
		sb.WriteString("  WHERE " + strings.Join(where, " AND ") + "\n")
	}
	sb.WriteString(")\n")
	sb.WriteString(fmt.Sprintf("SELECT entity_id, split_value, %s\n", strings.Join(resolvedCols, ", ")))
	sb.WriteString("FROM rows_split\n")
	sb.WriteString("GROUP BY entity_id, split_value\n")
	sb.WriteString("ORDER BY entity_id ASC, split_value ASC\n")

	limit, offset := clampPage(q.Page)
	sb.WriteString(fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset))

	return &Compiled{SQL: sb.String(), Args: b.args}, nil
}

// compileVersus implements head-to-head (restrict to shared games) or
// parallel (two independent per-subject queries unioned, tagged by
// subject) comparisons.
func compileVersus(q Query, schema entitySchema, reg *metrics.Registry) (*Compiled, error) {
	if q.Versus == nil {
		return nil, core.New("query", core.InvalidFilterShape, "versus subject requires a versus spec", nil)
	}
	if len(q.Metrics) != 1 {
		return nil, core.New("query", core.InvalidFilterShape, "versus subject takes exactly one metric", nil)
	}
	entry, err := resolveFactMetric(q.Metrics[0], schema, reg)
	if err != nil {
		return nil, err
	}

	b := &builder{}
	var sb strings.Builder

	if q.Versus.Mode == VersusHeadToHead {
		sb.WriteString(fmt.Sprintf(
			"SELECT a.%s AS subject_id, g.game_id, g.date, a.%s AS %s\n",
			schema.factIDCol, entry.Expression, q.Metrics[0].ID,
		))
		sb.WriteString(fmt.Sprintf("FROM %s a\n", schema.factTable))
		sb.WriteString(fmt.Sprintf("JOIN %s opp ON opp.game_id = a.game_id AND opp.%s <> a.%s\n", schema.factTable, schema.factIDCol, schema.factIDCol))
		sb.WriteString("JOIN games g ON g.game_id = a.game_id\n")
		sb.WriteString("JOIN seasons s ON s.season_id = g.season_id\n")
		sb.WriteString(fmt.Sprintf(
			"WHERE a.%s = %s AND opp.%s = %s\n",
			schema.factIDCol, b.bind(q.Versus.SubjectAID), schema.factIDCol, b.bind(q.Versus.SubjectBID),
		))
		sb.WriteString("ORDER BY g.date ASC\n")
	} else {
		sb.WriteString(fmt.Sprintf(
			"SELECT %s AS subject_id, s.season_end_year, g.game_type, SUM(fc.%s) AS %s\n",
			b.bind(q.Versus.SubjectAID), entry.Expression, q.Metrics[0].ID,
		))
		sb.WriteString(fmt.Sprintf("FROM %s fc\n", schema.factTable))
		sb.WriteString(fmt.Sprintf("JOIN games g ON g.game_id = fc.%s\n", schema.factGameCol))
		sb.WriteString("JOIN seasons s ON s.season_id = g.season_id\n")
		sb.WriteString(fmt.Sprintf("WHERE fc.%s = %s\n", schema.factIDCol, b.bind(q.Versus.SubjectAID)))
		sb.WriteString("GROUP BY s.season_end_year, g.game_type\n")
		sb.WriteString("UNION ALL\n")
		sb.WriteString(fmt.Sprintf(
			"SELECT %s AS subject_id, s.season_end_year, g.game_type, SUM(fc.%s) AS %s\n",
			b.bind(q.Versus.SubjectBID), entry.Expression, q.Metrics[0].ID,
		))
		sb.WriteString(fmt.Sprintf("FROM %s fc\n", schema.factTable))
		sb.WriteString(fmt.Sprintf("JOIN games g ON g.game_id = fc.%s\n", schema.factGameCol))
		sb.WriteString("JOIN seasons s ON s.season_id = g.season_id\n")
		sb.WriteString(fmt.Sprintf("WHERE fc.%s = %s\n", schema.factIDCol, b.bind(q.Versus.SubjectBID)))
		sb.WriteString("GROUP BY s.season_end_year, g.game_type\n")
		sb.WriteString("ORDER BY season_end_year ASC, subject_id ASC\n")
	}

	limit, offset := clampPage(q.Page)
	sb.WriteString(fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset))

	return &Compiled{SQL: sb.String(), Args: b.args}, nil
}
