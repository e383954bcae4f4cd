package query

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stormlightlabs.org/hoopscore/internal/core"
	"stormlightlabs.org/hoopscore/internal/metrics"
)

func loadTestRegistry(t *testing.T) *metrics.Registry {
	t.Helper()
	r, err := metrics.Load("testdata/metrics.yaml")
	require.NoError(t, err)
	return r
}

func TestCompile_unknownSubject(t *testing.T) {
	reg := loadTestRegistry(t)
	_, err := Compile(Query{Subject: "nonsense", EntityType: EntityPlayer, Metrics: []MetricRef{{ID: "pts_per_game"}}}, reg)
	require.Error(t, err)
	kind, ok := core.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, core.InvalidFilterShape, kind)
}

func TestCompile_emptyMetrics(t *testing.T) {
	reg := loadTestRegistry(t)
	_, err := Compile(Query{Subject: SubjectLeaderboards, EntityType: EntityPlayer}, reg)
	require.Error(t, err)
	kind, _ := core.KindOf(err)
	assert.Equal(t, core.InvalidFilterShape, kind)
}

func TestCompile_unknownMetric(t *testing.T) {
	reg := loadTestRegistry(t)
	_, err := Compile(Query{
		Subject:    SubjectLeaderboards,
		EntityType: EntityPlayer,
		Metrics:    []MetricRef{{ID: "does_not_exist"}},
	}, reg)
	require.Error(t, err)
	kind, _ := core.KindOf(err)
	assert.Equal(t, core.MetricUnknown, kind)
}

func TestCompileLeaderboards_basicShape(t *testing.T) {
	reg := loadTestRegistry(t)
	season := core.SeasonEndYear(2024)
	q := Query{
		Subject:    SubjectLeaderboards,
		EntityType: EntityPlayer,
		Metrics:    []MetricRef{{ID: "pts_per_game"}},
		Filters: Filters{
			Season: &SeasonRange{From: &season},
		},
		Page: Page{Limit: 10},
	}

	c, err := Compile(q, reg)
	require.NoError(t, err)
	assert.Contains(t, c.SQL, "SELECT h.player_id AS entity_id, AVG(m0.pts_pg) AS pts_per_game")
	assert.Contains(t, c.SQL, "FROM player_season h")
	assert.Contains(t, c.SQL, "JOIN seasons s ON s.season_id = h.season_id")
	assert.Contains(t, c.SQL, "JOIN player_season_per_game m0 ON m0.seas_id = h.seas_id")
	assert.Contains(t, c.SQL, "WHERE s.season_end_year >= $1")
	assert.Contains(t, c.SQL, "GROUP BY h.player_id")
	assert.Contains(t, c.SQL, "ORDER BY pts_per_game DESC, entity_id ASC")
	assert.Contains(t, c.SQL, "LIMIT 10 OFFSET 0")
	assert.Equal(t, []any{2024}, c.Args)
}

func TestCompileLeaderboards_rejectsLocationFilter(t *testing.T) {
	reg := loadTestRegistry(t)
	loc := LocationHome
	q := Query{
		Subject:    SubjectLeaderboards,
		EntityType: EntityPlayer,
		Metrics:    []MetricRef{{ID: "pts_per_game"}},
		Filters:    Filters{Location: &loc},
	}
	_, err := Compile(q, reg)
	require.Error(t, err)
	kind, _ := core.KindOf(err)
	assert.Equal(t, core.InvalidFilterShape, kind)
}

func TestCompileLeaderboards_teamEntity(t *testing.T) {
	reg := loadTestRegistry(t)
	q := Query{
		Subject:    SubjectLeaderboards,
		EntityType: EntityTeam,
		Metrics:    []MetricRef{{ID: "team_wins"}},
	}
	c, err := Compile(q, reg)
	require.NoError(t, err)
	assert.Contains(t, c.SQL, "FROM team_season h")
	assert.Contains(t, c.SQL, "JOIN team_season_totals m0 ON m0.team_id = h.team_id AND m0.season_id = h.season_id")
	assert.Contains(t, c.SQL, "SUM(m0.w) AS team_wins")
}

func TestCompileLeaderboards_multiMetricMultiJoin(t *testing.T) {
	reg := loadTestRegistry(t)
	q := Query{
		Subject:    SubjectLeaderboards,
		EntityType: EntityPlayer,
		Metrics:    []MetricRef{{ID: "pts_per_game"}, {ID: "reb_per_game"}},
	}
	c, err := Compile(q, reg)
	require.NoError(t, err)
	assert.Contains(t, c.SQL, "AVG(m0.pts_pg) AS pts_per_game")
	assert.Contains(t, c.SQL, "AVG(m0.reb_pg) AS reb_per_game")
	// both metrics share player_season_per_game, so only one join alias is used
	assert.Equal(t, 1, strings.Count(c.SQL, "JOIN player_season_per_game"))
}

func TestCompileLeaderboards_advancedCondition(t *testing.T) {
	reg := loadTestRegistry(t)
	q := Query{
		Subject:    SubjectLeaderboards,
		EntityType: EntityPlayer,
		Metrics:    []MetricRef{{ID: "pts_per_game"}, {ID: "reb_per_game"}},
		Filters: Filters{
			AdvancedCondition: &AdvancedCondition{
				Op: BoolAnd,
				Children: []*AdvancedCondition{
					{Predicate: &Predicate{MetricID: "pts_per_game", Comparator: CmpGTE, Value: 20}},
					{Predicate: &Predicate{MetricID: "reb_per_game", Comparator: CmpLT, Value: 10}},
				},
			},
		},
	}
	c, err := Compile(q, reg)
	require.NoError(t, err)
	assert.Contains(t, c.SQL, "(pts_per_game >= $1 AND reb_per_game < $2)")
}

func TestCompileLeaderboards_advancedConditionRejectsUnknownMetric(t *testing.T) {
	reg := loadTestRegistry(t)
	q := Query{
		Subject:    SubjectLeaderboards,
		EntityType: EntityPlayer,
		Metrics:    []MetricRef{{ID: "pts_per_game"}},
		Filters: Filters{
			AdvancedCondition: &AdvancedCondition{
				Predicate: &Predicate{MetricID: "1)) UNION SELECT pg_sleep(5) --", Comparator: CmpGTE, Value: 20},
			},
		},
	}
	_, err := Compile(q, reg)
	require.Error(t, err)
	kind, _ := core.KindOf(err)
	assert.Equal(t, core.MetricUnknown, kind)
}

func TestCompileLeaderboards_sortRejectsUnknownMetric(t *testing.T) {
	reg := loadTestRegistry(t)
	metricID := "reb_per_game"
	q := Query{
		Subject:    SubjectLeaderboards,
		EntityType: EntityPlayer,
		Metrics:    []MetricRef{{ID: "pts_per_game"}},
		Sort:       []SortSpec{{MetricID: &metricID, Direction: SortDesc}},
	}
	_, err := Compile(q, reg)
	require.Error(t, err)
	kind, _ := core.KindOf(err)
	assert.Equal(t, core.InvalidFilterShape, kind)
}

func TestCompileLeaderboards_sortFieldAllowsEntityID(t *testing.T) {
	reg := loadTestRegistry(t)
	field := "entity_id"
	q := Query{
		Subject:    SubjectLeaderboards,
		EntityType: EntityPlayer,
		Metrics:    []MetricRef{{ID: "pts_per_game"}},
		Sort:       []SortSpec{{Field: &field, Direction: SortAsc}},
	}
	c, err := Compile(q, reg)
	require.NoError(t, err)
	assert.Contains(t, c.SQL, "ORDER BY entity_id ASC, entity_id ASC")
}

func TestCompileLeaderboards_sortRejectsUnknownField(t *testing.T) {
	reg := loadTestRegistry(t)
	field := "1; DROP TABLE players; --"
	q := Query{
		Subject:    SubjectLeaderboards,
		EntityType: EntityPlayer,
		Metrics:    []MetricRef{{ID: "pts_per_game"}},
		Sort:       []SortSpec{{Field: &field, Direction: SortAsc}},
	}
	_, err := Compile(q, reg)
	require.Error(t, err)
	kind, _ := core.KindOf(err)
	assert.Equal(t, core.InvalidFilterShape, kind)
}

func TestCompileLeaderboards_pageClamp(t *testing.T) {
	reg := loadTestRegistry(t)
	q := Query{
		Subject:    SubjectLeaderboards,
		EntityType: EntityPlayer,
		Metrics:    []MetricRef{{ID: "pts_per_game"}},
		Page:       Page{Limit: MaxRows + 1, Offset: -5},
	}
	c, err := Compile(q, reg)
	require.NoError(t, err)
	assert.Contains(t, c.SQL, "LIMIT 100000 OFFSET 0")
}

func TestCompileSpans_gamesMode(t *testing.T) {
	reg := loadTestRegistry(t)
	q := Query{
		Subject:    SubjectSpans,
		EntityType: EntityPlayer,
		Metrics:    []MetricRef{{ID: "game_pts"}},
		Span:       &SpanSpec{Mode: SpanModeGames, WindowSize: 5, Step: 1},
	}
	c, err := Compile(q, reg)
	require.NoError(t, err)
	assert.Contains(t, c.SQL, "ROWS BETWEEN 4 PRECEDING AND CURRENT ROW")
	assert.Contains(t, c.SQL, "PARTITION BY fc.player_id ORDER BY g.date")
	assert.Contains(t, c.SQL, "FROM boxscore_player fc")
}

func TestCompileSpans_datesMode(t *testing.T) {
	reg := loadTestRegistry(t)
	q := Query{
		Subject:    SubjectSpans,
		EntityType: EntityPlayer,
		Metrics:    []MetricRef{{ID: "game_pts"}},
		Span:       &SpanSpec{Mode: SpanModeDates, WindowSize: 30, Step: 1},
	}
	c, err := Compile(q, reg)
	require.NoError(t, err)
	assert.Contains(t, c.SQL, "RANGE BETWEEN INTERVAL '30 days' PRECEDING AND CURRENT ROW")
}

func TestCompileSpans_rejectsSeasonGrainMetric(t *testing.T) {
	reg := loadTestRegistry(t)
	q := Query{
		Subject:    SubjectSpans,
		EntityType: EntityPlayer,
		Metrics:    []MetricRef{{ID: "pts_per_game"}},
		Span:       &SpanSpec{Mode: SpanModeGames, WindowSize: 5, Step: 1},
	}
	_, err := Compile(q, reg)
	require.Error(t, err)
	kind, _ := core.KindOf(err)
	assert.Equal(t, core.InvalidFilterShape, kind)
}

func TestCompileSpans_rejectsMultipleMetrics(t *testing.T) {
	reg := loadTestRegistry(t)
	q := Query{
		Subject:    SubjectSpans,
		EntityType: EntityPlayer,
		Metrics:    []MetricRef{{ID: "game_pts"}, {ID: "game_ast"}},
		Span:       &SpanSpec{Mode: SpanModeGames, WindowSize: 5, Step: 1},
	}
	_, err := Compile(q, reg)
	require.Error(t, err)
}

func TestCompileSpans_appliesFactFilters(t *testing.T) {
	reg := loadTestRegistry(t)
	loc := LocationHome
	opp := core.TeamID("LAL")
	q := Query{
		Subject:    SubjectSpans,
		EntityType: EntityPlayer,
		Metrics:    []MetricRef{{ID: "game_pts"}},
		Span:       &SpanSpec{Mode: SpanModeGames, WindowSize: 10, Step: 1},
		Filters: Filters{
			Location: &loc,
			Opponent: &opp,
		},
	}
	c, err := Compile(q, reg)
	require.NoError(t, err)
	assert.Contains(t, c.SQL, "g.home_team_id = fc.team_id")
	assert.Contains(t, c.SQL, "EXISTS (SELECT 1 FROM boxscore_team ot")
	assert.Equal(t, []any{"LAL"}, c.Args)
}

func TestCompileStreaks_gapsAndIslandsShape(t *testing.T) {
	reg := loadTestRegistry(t)
	q := Query{
		Subject:    SubjectStreaks,
		EntityType: EntityPlayer,
		Metrics:    []MetricRef{{ID: "game_pts"}},
		Streak: &StreakSpec{
			MetricID:  "game_pts",
			Predicate: CmpGTE,
			Threshold: 20,
			MinLength: 3,
		},
	}
	c, err := Compile(q, reg)
	require.NoError(t, err)
	assert.Contains(t, c.SQL, "WITH hits AS (")
	assert.Contains(t, c.SQL, "fc.pts >= $1")
	assert.Contains(t, c.SQL, "SUM(CASE WHEN hit THEN 0 ELSE 1 END) OVER (PARTITION BY entity_id ORDER BY date) AS island_key")
	assert.Contains(t, c.SQL, "HAVING COUNT(*) >= $2")
	assert.Contains(t, c.SQL, "ORDER BY streak_length DESC, entity_id ASC")
	assert.Equal(t, []any{20.0, 3}, c.Args)
}

func TestCompileStreaks_betweenRequiresThreshold2(t *testing.T) {
	reg := loadTestRegistry(t)
	q := Query{
		Subject:    SubjectStreaks,
		EntityType: EntityPlayer,
		Metrics:    []MetricRef{{ID: "game_pts"}},
		Streak: &StreakSpec{
			MetricID:  "game_pts",
			Predicate: CmpBetween,
			Threshold: 10,
			MinLength: 2,
		},
	}
	_, err := Compile(q, reg)
	require.Error(t, err)
	kind, _ := core.KindOf(err)
	assert.Equal(t, core.InvalidFilterShape, kind)
}

func TestCompileSplits_bySeason(t *testing.T) {
	reg := loadTestRegistry(t)
	dim := SplitSeason
	sumAgg := "sum"
	q := Query{
		Subject:        SubjectSplits,
		EntityType:     EntityPlayer,
		Metrics:        []MetricRef{{ID: "game_pts", AggregationOverride: &sumAgg}},
		SplitDimension: &dim,
	}
	c, err := Compile(q, reg)
	require.NoError(t, err)
	assert.Contains(t, c.SQL, "WITH rows_split AS (")
	assert.Contains(t, c.SQL, "(s.season_end_year) AS split_value")
	assert.Contains(t, c.SQL, "SUM(fc.pts) AS game_pts")
	assert.Contains(t, c.SQL, "GROUP BY entity_id, split_value")
}

func TestCompileSplits_byLocation(t *testing.T) {
	reg := loadTestRegistry(t)
	dim := SplitLocation
	sumAgg := "sum"
	q := Query{
		Subject:        SubjectSplits,
		EntityType:     EntityPlayer,
		Metrics:        []MetricRef{{ID: "game_pts", AggregationOverride: &sumAgg}},
		SplitDimension: &dim,
	}
	c, err := Compile(q, reg)
	require.NoError(t, err)
	assert.Contains(t, c.SQL, "CASE WHEN g.home_team_id = fc.team_id THEN 'home' ELSE 'away' END")
}

func TestCompileSplits_requiresDimension(t *testing.T) {
	reg := loadTestRegistry(t)
	sumAgg := "sum"
	q := Query{
		Subject:    SubjectSplits,
		EntityType: EntityPlayer,
		Metrics:    []MetricRef{{ID: "game_pts", AggregationOverride: &sumAgg}},
	}
	_, err := Compile(q, reg)
	require.Error(t, err)
}

func TestCompileSplits_rejectsNoneAggregationWithoutOverride(t *testing.T) {
	reg := loadTestRegistry(t)
	dim := SplitSeason
	q := Query{
		Subject:        SubjectSplits,
		EntityType:     EntityPlayer,
		Metrics:        []MetricRef{{ID: "game_pts"}},
		SplitDimension: &dim,
	}
	_, err := Compile(q, reg)
	require.Error(t, err)
	kind, _ := core.KindOf(err)
	assert.Equal(t, core.InvalidFilterShape, kind)
}

func TestCompileVersus_headToHead(t *testing.T) {
	reg := loadTestRegistry(t)
	q := Query{
		Subject:    SubjectVersus,
		EntityType: EntityPlayer,
		Metrics:    []MetricRef{{ID: "game_pts"}},
		Versus: &VersusSpec{
			SubjectAID: "p1",
			SubjectBID: "p2",
			Mode:       VersusHeadToHead,
		},
	}
	c, err := Compile(q, reg)
	require.NoError(t, err)
	assert.Contains(t, c.SQL, "JOIN boxscore_player opp ON opp.game_id = a.game_id AND opp.player_id <> a.player_id")
	assert.Contains(t, c.SQL, "WHERE a.player_id = $1 AND opp.player_id = $2")
	assert.Equal(t, []any{"p1", "p2"}, c.Args)
}

func TestCompileVersus_parallelUnion(t *testing.T) {
	reg := loadTestRegistry(t)
	q := Query{
		Subject:    SubjectVersus,
		EntityType: EntityPlayer,
		Metrics:    []MetricRef{{ID: "game_pts"}},
		Versus: &VersusSpec{
			SubjectAID: "p1",
			SubjectBID: "p2",
			Mode:       VersusParallel,
		},
	}
	c, err := Compile(q, reg)
	require.NoError(t, err)
	assert.Contains(t, c.SQL, "UNION ALL")
	assert.Contains(t, c.SQL, "GROUP BY s.season_end_year, g.game_type")
	assert.Contains(t, c.SQL, "ORDER BY season_end_year ASC, subject_id ASC")
}

func TestCompileVersus_rejectsMultipleMetrics(t *testing.T) {
	reg := loadTestRegistry(t)
	q := Query{
		Subject:    SubjectVersus,
		EntityType: EntityPlayer,
		Metrics:    []MetricRef{{ID: "game_pts"}, {ID: "game_ast"}},
		Versus:     &VersusSpec{SubjectAID: "p1", SubjectBID: "p2", Mode: VersusHeadToHead},
	}
	_, err := Compile(q, reg)
	require.Error(t, err)
}

func TestSeasonClause_discreteVsRange(t *testing.T) {
	b := &builder{}
	clauses, err := seasonClause(SeasonRange{Discrete: []core.SeasonEndYear{2022, 2023}}, "s", b)
	require.NoError(t, err)
	assert.Equal(t, []string{"s.season_end_year IN ($1, $2)"}, clauses)
	assert.Equal(t, []any{2022, 2023}, b.args)
}

func TestSeasonClause_requiresDiscreteOrRange(t *testing.T) {
	b := &builder{}
	_, err := seasonClause(SeasonRange{}, "s", b)
	require.Error(t, err)
	kind, _ := core.KindOf(err)
	assert.Equal(t, core.InvalidFilterShape, kind)
}

func TestClampPage_defaults(t *testing.T) {
	limit, offset := clampPage(Page{})
	assert.Equal(t, DefaultPageSize, limit)
	assert.Equal(t, 0, offset)
}
