package query

import (
	"fmt"
	"strings"

	"stormlightlabs.org/hoopscore/internal/core"
	"stormlightlabs.org/hoopscore/internal/metrics"
)

// MaxRows is the hard ceiling the compiler enforces on every query's
// LIMIT, regardless of what the caller's Page.Limit requests.
const MaxRows = 100_000

// DefaultPageSize is used when Page.Limit is zero.
const DefaultPageSize = 25

// Compiled is a parameterized, ready-to-execute statement.
type Compiled struct {
	SQL  string
	Args []any
}

type builder struct {
	args   []any
	argNum int
}

func (b *builder) bind(v any) string {
	b.args = append(b.args, idPlaceholder(v))
	b.argNum++
	return fmt.Sprintf("$%d", b.argNum)
}

// resolvedMetric pairs a requested MetricRef with its catalog entry and
// the join alias its base_table is reachable through.
type resolvedMetric struct {
	ref   MetricRef
	entry metrics.Entry
	alias string
}

// Compile dispatches q to the subject-specific compiler. reg must already
// be loaded; every metric referenced is resolved against it up front so
// an unknown id fails fast with METRIC_UNKNOWN before any SQL is built.
func Compile(q Query, reg *metrics.Registry) (*Compiled, error) {
	if len(q.Metrics) == 0 {
		return nil, core.New("query", core.InvalidFilterShape, "metrics list must not be empty", nil)
	}
	schema, ok := schemaFor(q.EntityType)
	if !ok {
		return nil, core.New("query", core.InvalidFilterShape, fmt.Sprintf("unknown entity_type %q", q.EntityType), nil)
	}

	switch q.Subject {
	case SubjectLeaderboards:
		return compileLeaderboards(q, schema, reg)
	case SubjectSpans:
		return compileSpans(q, schema, reg)
	case SubjectStreaks:
		return compileStreaks(q, schema, reg)
	case SubjectSplits:
		return compileSplits(q, schema, reg)
	case SubjectVersus:
		return compileVersus(q, schema, reg)
	default:
		return nil, core.New("query", core.InvalidFilterShape, fmt.Sprintf("unknown subject %q", q.Subject), nil)
	}
}

// resolveHubMetrics resolves each MetricRef against the season-grain hub
// satellites (used by leaderboards/splits-on-season-data) and assigns one
// join alias per distinct base_table.
func resolveHubMetrics(q Query, reg *metrics.Registry) ([]resolvedMetric, map[string]string, error) {
	resolved := make([]resolvedMetric, 0, len(q.Metrics))
	aliasOf := make(map[string]string)
	next := 0
	for _, ref := range q.Metrics {
		entry, err := reg.Get(ref.ID)
		if err != nil {
			return nil, nil, err
		}
		alias, ok := aliasOf[entry.BaseTable]
		if !ok {
			alias = fmt.Sprintf("m%d", next)
			next++
			aliasOf[entry.BaseTable] = alias
		}
		resolved = append(resolved, resolvedMetric{ref: ref, entry: entry, alias: alias})
	}
	return resolved, aliasOf, nil
}

func aggExpr(rm resolvedMetric) string {
	agg := string(rm.entry.Aggregation)
	if rm.ref.AggregationOverride != nil {
		agg = *rm.ref.AggregationOverride
	}
	col := fmt.Sprintf("%s.%s", rm.alias, rm.entry.Expression)
	switch metrics.Aggregation(agg) {
	case metrics.AggSum:
		return fmt.Sprintf("SUM(%s)", col)
	case metrics.AggAvg:
		return fmt.Sprintf("AVG(%s)", col)
	case metrics.AggMin:
		return fmt.Sprintf("MIN(%s)", col)
	case metrics.AggMax:
		return fmt.Sprintf("MAX(%s)", col)
	case metrics.AggCount:
		return fmt.Sprintf("COUNT(%s)", col)
	default:
		return col
	}
}

// compileLeaderboards builds: SELECT hub id, one aggregate column per
// metric FROM hub JOIN seasons JOIN each distinct satellite WHERE
// (filters, applied in declared order) GROUP BY hub id ORDER BY sort,
// entity_id ASC LIMIT/OFFSET.
func compileLeaderboards(q Query, schema entitySchema, reg *metrics.Registry) (*Compiled, error) {
	resolved, aliasOf, err := resolveHubMetrics(q, reg)
	if err != nil {
		return nil, err
	}

	b := &builder{}
	var sb strings.Builder

	selectCols := []string{fmt.Sprintf("h.%s AS entity_id", schema.hubIDCol)}
	for _, rm := range resolved {
		selectCols = append(selectCols, fmt.Sprintf("%s AS %s", aggExpr(rm), rm.ref.ID))
	}
	sb.WriteString("SELECT " + strings.Join(selectCols, ", ") + "\n")
	sb.WriteString(fmt.Sprintf("FROM %s h\n", schema.hubTable))
	sb.WriteString(fmt.Sprintf("JOIN seasons s ON s.season_id = h.%s\n", schema.seasonIDCol))

	for baseTable, alias := range aliasOf {
		onClauses := make([]string, 0, len(schema.hubJoinCols))
		for _, col := range schema.hubJoinCols {
			onClauses = append(onClauses, fmt.Sprintf("%s.%s = h.%s", alias, col, col))
		}
		sb.WriteString(fmt.Sprintf("JOIN %s %s ON %s\n", baseTable, alias, strings.Join(onClauses, " AND ")))
	}

	where, err := applyHubFilters(q.Filters, schema, resolved, b)
	if err != nil {
		return nil, err
	}
	if len(where) > 0 {
		sb.WriteString("WHERE " + strings.Join(where, " AND ") + "\n")
	}

	sb.WriteString(fmt.Sprintf("GROUP BY h.%s\n", schema.hubIDCol))

	orderBy, err := buildOrderBy(q.Sort, resolved, "entity_id")
	if err != nil {
		return nil, err
	}
	sb.WriteString("ORDER BY " + orderBy + "\n")

	limit, offset := clampPage(q.Page)
	sb.WriteString(fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset))

	return &Compiled{SQL: sb.String(), Args: b.args}, nil
}

// applyHubFilters renders Filters against the season-grain hub in the
// deterministic order spec.md §4.7 names: temporal, entity identity, game
// scope, location/result, advanced condition. Location/result have no
// representation at season grain (they're per-game facts), so those two
// filters are rejected here with INVALID_FILTER_SHAPE if set; they apply
// to spans/streaks/splits/versus, which query the per-game fact table
// instead.
func applyHubFilters(f Filters, schema entitySchema, resolved []resolvedMetric, b *builder) ([]string, error) {
	var clauses []string
	known := make(map[string]bool, len(resolved))
	for _, rm := range resolved {
		known[rm.ref.ID] = true
	}

	if f.Season != nil {
		c, err := seasonClause(*f.Season, "s", b)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, c...)
	}

	if len(f.PlayerInclude) > 0 && schema.hubIDCol == "player_id" {
		clauses = append(clauses, inClause("h.player_id", toAny(f.PlayerInclude), b))
	}
	if len(f.PlayerExclude) > 0 && schema.hubIDCol == "player_id" {
		clauses = append(clauses, notInClause("h.player_id", toAny(f.PlayerExclude), b))
	}
	if len(f.TeamInclude) > 0 {
		clauses = append(clauses, inClause("h.team_id", toAny(f.TeamInclude), b))
	}
	if len(f.TeamExclude) > 0 {
		clauses = append(clauses, notInClause("h.team_id", toAny(f.TeamExclude), b))
	}

	if f.GameType != nil {
		clauses = append(clauses, fmt.Sprintf("h.game_type = %s", b.bind(string(*f.GameType))))
	}

	if f.Location != nil || f.Result != nil {
		return nil, core.New("query", core.InvalidFilterShape, "location/result filters require a per-game subject (spans, streaks, splits, versus)", nil)
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

func seasonClause(sr SeasonRange, alias string, b *builder) ([]string, error) {
	if len(sr.Discrete) > 0 {
		vals := make([]any, len(sr.Discrete))
		for i, y := range sr.Discrete {
			vals[i] = int(y)
		}
		return []string{inClause(alias+".season_end_year", vals, b)}, nil
	}
	var clauses []string
	if sr.From != nil {
		clauses = append(clauses, fmt.Sprintf("%s.season_end_year >= %s", alias, b.bind(int(*sr.From))))
	}
	if sr.To != nil {
		clauses = append(clauses, fmt.Sprintf("%s.season_end_year <= %s", alias, b.bind(int(*sr.To))))
	}
	if len(clauses) == 0 {
		return nil, core.New("query", core.InvalidFilterShape, "season filter must set discrete or from/to", nil)
	}
	return clauses, nil
}

func inClause(col string, vals []any, b *builder) string {
	placeholders := make([]string, len(vals))
	for i, v := range vals {
		placeholders[i] = b.bind(v)
	}
	return fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", "))
}

func notInClause(col string, vals []any, b *builder) string {
	placeholders := make([]string, len(vals))
	for i, v := range vals {
		placeholders[i] = b.bind(v)
	}
	return fmt.Sprintf("%s NOT IN (%s)", col, strings.Join(placeholders, ", "))
}

func toAny[T any](xs []T) []any {
	out := make([]any, len(xs))
	for i, x := range xs {
		out[i] = x
	}
	return out
}

// advancedConditionClause renders a nested AND/OR predicate tree. Each
// leaf predicate's MetricID must be one of the query's requested metrics
// (known); it compares against an already-aggregated column, so it
// is rendered as a HAVING-shaped boolean expression usable in either a
// WHERE (per-row metrics) or HAVING (aggregated metrics) position by the
// caller.
func advancedConditionClause(ac *AdvancedCondition, known map[string]bool, b *builder) (string, error) {
	if ac.Predicate != nil {
		return predicateClause(*ac.Predicate, known, b)
	}
	if len(ac.Children) == 0 {
		return "", core.New("query", core.InvalidFilterShape, "advanced_condition node has neither predicate nor children", nil)
	}
	parts := make([]string, 0, len(ac.Children))
	for _, child := range ac.Children {
		c, err := advancedConditionClause(child, known, b)
		if err != nil {
			return "", err
		}
		parts = append(parts, c)
	}
	op := " AND "
	if ac.Op == BoolOr {
		op = " OR "
	}
	return "(" + strings.Join(parts, op) + ")", nil
}

// predicateClause renders one leaf predicate. MetricID must be one of the
// query's own requested metrics (known) -- same restriction buildOrderBy
// applies to sort -- since it stands in for that metric's SELECT alias and
// is spliced into the clause text directly; rejecting anything outside
// that set closes off passing arbitrary SQL through metric_id.
func predicateClause(p Predicate, known map[string]bool, b *builder) (string, error) {
	if !known[p.MetricID] {
		return "", core.New("query", core.MetricUnknown, fmt.Sprintf("predicate metric %q is not in the requested metrics list", p.MetricID), nil)
	}
	col := p.MetricID
	switch p.Comparator {
	case CmpGTE:
		return fmt.Sprintf("%s >= %s", col, b.bind(p.Value)), nil
	case CmpLTE:
		return fmt.Sprintf("%s <= %s", col, b.bind(p.Value)), nil
	case CmpEQ:
		return fmt.Sprintf("%s = %s", col, b.bind(p.Value)), nil
	case CmpGT:
		return fmt.Sprintf("%s > %s", col, b.bind(p.Value)), nil
	case CmpLT:
		return fmt.Sprintf("%s < %s", col, b.bind(p.Value)), nil
	case CmpBetween:
		if p.Value2 == nil {
			return "", core.New("query", core.InvalidFilterShape, "between predicate requires value2", nil)
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", col, b.bind(p.Value), b.bind(*p.Value2)), nil
	default:
		return "", core.New("query", core.InvalidFilterShape, fmt.Sprintf("unknown comparator %q", p.Comparator), nil)
	}
}

// sortableFields is the allowlist for SortSpec.Field -- bare identifiers a
// caller may sort by outside the requested metrics list. Anything else is
// rejected rather than spliced into ORDER BY. Only entity_id is actually
// selected by compileLeaderboards today, so that's the entire allowlist.
var sortableFields = map[string]bool{
	"entity_id": true,
}

// buildOrderBy renders Sort, falling back to the first requested metric
// descending, then always appending a deterministic entity_id ASC
// tie-break per spec.md §4.7.
func buildOrderBy(sort []SortSpec, resolved []resolvedMetric, tieBreakCol string) (string, error) {
	known := make(map[string]bool, len(resolved))
	for _, rm := range resolved {
		known[rm.ref.ID] = true
	}

	var parts []string
	for _, s := range sort {
		dir := "ASC"
		if s.Direction == SortDesc {
			dir = "DESC"
		}
		switch {
		case s.MetricID != nil:
			if !known[*s.MetricID] {
				return "", core.New("query", core.InvalidFilterShape, fmt.Sprintf("sort metric %q is not in the requested metrics list", *s.MetricID), nil)
			}
			parts = append(parts, fmt.Sprintf("%s %s", *s.MetricID, dir))
		case s.Field != nil:
			if !sortableFields[*s.Field] {
				return "", core.New("query", core.InvalidFilterShape, fmt.Sprintf("sort field %q is not sortable", *s.Field), nil)
			}
			parts = append(parts, fmt.Sprintf("%s %s", *s.Field, dir))
		default:
			return "", core.New("query", core.InvalidFilterShape, "sort entry has neither metric_id nor field", nil)
		}
	}
	if len(parts) == 0 && len(resolved) > 0 {
		parts = append(parts, fmt.Sprintf("%s DESC", resolved[0].ref.ID))
	}
	parts = append(parts, tieBreakCol+" ASC")
	return strings.Join(parts, ", "), nil
}

func clampPage(p Page) (limit, offset int) {
	limit = p.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxRows {
		limit = MaxRows
	}
	offset = p.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
