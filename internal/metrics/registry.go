// Package metrics implements the Metrics Registry: a declarative YAML
// catalog that lets the Query Engine compose SQL without per-metric Go
// code. The catalog is parsed and validated once at process start.
package metrics

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"stormlightlabs.org/hoopscore/internal/core"
)

// Category groups a metric by how it is computed.
type Category string

const (
	CategoryCounting Category = "counting"
	CategoryDerived  Category = "derived"
	CategoryRate     Category = "rate"
)

// Aggregation is how a metric's expression rolls up across the grouping
// grain the Query Engine applies.
type Aggregation string

const (
	AggSum  Aggregation = "sum"
	AggAvg  Aggregation = "avg"
	AggMin  Aggregation = "min"
	AggMax  Aggregation = "max"
	AggCount Aggregation = "count"
	AggNone Aggregation = "none"
)

// Bounds is an inclusive [Min, Max] range used for soft and hard bounds.
type Bounds struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max" validate:"required,gtfield=Min"`
}

// Entry is one catalog entry, matching spec.md §4.6's schema exactly.
type Entry struct {
	ID           string      `yaml:"id" validate:"required"`
	Description  string      `yaml:"description"`
	Category     Category    `yaml:"category" validate:"required,oneof=counting derived rate"`
	EntityType   string      `yaml:"entity_type" validate:"required,oneof=player team game pbp"`
	Level        string      `yaml:"level" validate:"required,oneof=season career game"`
	BaseTable    string      `yaml:"base_table" validate:"required"`
	Expression   string      `yaml:"expression" validate:"required"`
	Aggregation  Aggregation `yaml:"aggregation" validate:"required,oneof=sum avg min max count none"`
	Unit         string      `yaml:"unit,omitempty"`
	SoftBounds   *Bounds     `yaml:"soft_bounds,omitempty"`
	HardBounds   *Bounds     `yaml:"hard_bounds,omitempty"`
	Dependencies []string    `yaml:"dependencies,omitempty"`
}

// Registry is the loaded, validated catalog, memoized by id.
type Registry struct {
	entries map[string]Entry
	order   []string
}

type catalogDoc struct {
	Metrics []Entry `yaml:"metrics"`
}

// tableColumns is the allowlist of base_table.column combinations a
// metric expression may reference, mirroring the columns declared in
// internal/db/sql. Kept as a static map rather than introspecting
// information_schema at load time, so the registry can validate before a
// database connection even exists (mid-bootstrap, per spec.md §4.6).
var tableColumns = map[string]map[string]bool{
	"player_season_per_game": cols("seas_id", "gp", "gs", "min_pg", "pts_pg", "reb_pg", "ast_pg", "stl_pg", "blk_pg", "tov_pg", "fg_pct", "fg3_pct", "ft_pct"),
	"player_season_totals":   cols("seas_id", "gp", "min_sec", "pts", "reb", "ast", "stl", "blk", "tov", "fgm", "fga", "fg3m", "fg3a", "ftm", "fta"),
	"player_season_per36":    cols("seas_id", "pts_p36", "reb_p36", "ast_p36"),
	"player_season_per100":   cols("seas_id", "pts_p100", "reb_p100", "ast_p100"),
	"player_season_advanced": cols("seas_id", "per", "ts_pct", "usage_pct", "ortg", "drtg", "win_shares", "bpm", "vorp"),
	"team_season_totals":     cols("team_id", "season_id", "game_type", "gp", "w", "l", "pts", "reb", "ast"),
	"team_season_per_game":   cols("team_id", "season_id", "pts_pg", "reb_pg", "ast_pg"),
	"team_season_per100":     cols("team_id", "season_id", "pts_p100"),
	"team_season_opponent":   cols("team_id", "season_id", "opp_pts_pg", "opp_reb_pg", "opp_ast_pg"),
	"team_summaries":         cols("team_id", "season_id", "pace", "ortg", "drtg"),
	"boxscore_player":        cols("game_id", "player_id", "team_id", "min_sec", "pts", "fgm", "fga", "fg3m", "fg3a", "ftm", "fta", "oreb", "dreb", "ast", "stl", "blk", "tov", "pf", "started"),
	"boxscore_team":          cols("game_id", "team_id", "pts", "fgm", "fga", "fg3m", "fg3a", "ftm", "fta", "oreb", "dreb", "ast", "stl", "blk", "tov", "pf", "pace"),
	"pbp_events":             cols("game_id", "eventnum", "period", "clock_remaining", "home_score", "away_score", "event_type"),
}

func cols(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// Load parses path, validates every entry's shape and column references,
// and checks the dependency graph is acyclic. Any defect fails the whole
// catalog with REGISTRY_INVALID -- there is no partial-catalog mode.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.New("registry", core.RegistryInvalid, fmt.Sprintf("reading metrics catalog %s", path), err)
	}

	var doc catalogDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, core.New("registry", core.RegistryInvalid, "metrics catalog YAML is not well-formed", err)
	}

	v := validator.New()
	entries := make(map[string]Entry, len(doc.Metrics))
	order := make([]string, 0, len(doc.Metrics))

	for _, e := range doc.Metrics {
		if err := v.Struct(e); err != nil {
			return nil, core.New("registry", core.RegistryInvalid, fmt.Sprintf("metric %q fails validation: %v", e.ID, err), err)
		}
		if _, dup := entries[e.ID]; dup {
			return nil, core.New("registry", core.RegistryInvalid, fmt.Sprintf("duplicate metric id %q", e.ID), nil)
		}
		if err := checkBaseColumn(e); err != nil {
			return nil, err
		}
		entries[e.ID] = e
		order = append(order, e.ID)
	}

	r := &Registry{entries: entries, order: order}

	for _, id := range order {
		for _, dep := range entries[id].Dependencies {
			if _, ok := entries[dep]; !ok {
				return nil, core.New("registry", core.RegistryInvalid, fmt.Sprintf("metric %q depends on unknown metric %q", id, dep), nil)
			}
		}
	}

	if cyc := findCycle(entries); cyc != "" {
		return nil, core.New("registry", core.DependencyCycle, cyc, nil)
	}

	return r, nil
}

// checkBaseColumn verifies e.BaseTable is known and, when the expression
// is a bare column name (no SQL operators), that the column is declared
// for that table. Expressions that are SQL snippets (containing an
// operator or function call) are trusted as-is, since validating
// arbitrary SQL syntax against the schema is the Query Engine compiler's
// job, not the registry's.
func checkBaseColumn(e Entry) error {
	known, ok := tableColumns[e.BaseTable]
	if !ok {
		return core.New("registry", core.RegistryInvalid, fmt.Sprintf("metric %q references unknown base_table %q", e.ID, e.BaseTable), nil)
	}
	if isBareIdentifier(e.Expression) && !known[e.Expression] {
		return core.New("registry", core.RegistryInvalid, fmt.Sprintf("metric %q expression %q is not a column of %s", e.ID, e.Expression, e.BaseTable), nil)
	}
	return nil
}

func isBareIdentifier(expr string) bool {
	if expr == "" {
		return false
	}
	for _, r := range expr {
		isLower := r >= 'a' && r <= 'z'
		isDigit := r >= '0' && r <= '9'
		if !isLower && !isDigit && r != '_' {
			return false
		}
	}
	return true
}

// findCycle runs Kahn's algorithm over the dependency graph and returns a
// description of one offending id if a cycle exists, or "" if acyclic.
func findCycle(entries map[string]Entry) string {
	indegree := make(map[string]int, len(entries))
	for id := range entries {
		indegree[id] = 0
	}
	for _, e := range entries {
		for range e.Dependencies {
			indegree[e.ID]++
		}
	}

	queue := make([]string, 0, len(entries))
	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, e := range entries {
			for _, dep := range e.Dependencies {
				if dep == id {
					indegree[e.ID]--
					if indegree[e.ID] == 0 {
						queue = append(queue, e.ID)
					}
				}
			}
		}
	}

	if visited < len(entries) {
		for id, deg := range indegree {
			if deg > 0 {
				return fmt.Sprintf("dependency cycle involving metric %q", id)
			}
		}
		return "dependency cycle detected"
	}
	return ""
}

// Get returns entry by id, or METRIC_UNKNOWN.
func (r *Registry) Get(id string) (Entry, error) {
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, core.New("registry", core.MetricUnknown, id, nil)
	}
	return e, nil
}

// List returns catalog entries matching filter, in catalog order.
func (r *Registry) List(filter core.MetricFilter) []Entry {
	out := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		e := r.entries[id]
		if filter.Category != nil && string(e.Category) != *filter.Category {
			continue
		}
		if filter.EntityType != nil && e.EntityType != *filter.EntityType {
			continue
		}
		if filter.Level != nil && e.Level != *filter.Level {
			continue
		}
		out = append(out, e)
	}
	return out
}

// ResolveDependencies returns id's transitive dependencies in topological
// order (dependencies before dependents), id itself last.
func (r *Registry) ResolveDependencies(id string) ([]string, error) {
	if _, ok := r.entries[id]; !ok {
		return nil, core.New("registry", core.MetricUnknown, id, nil)
	}

	var order []string
	visited := make(map[string]bool)
	var visit func(string) error
	visit = func(cur string) error {
		if visited[cur] {
			return nil
		}
		visited[cur] = true
		e, ok := r.entries[cur]
		if !ok {
			return core.New("registry", core.MetricUnknown, cur, nil)
		}
		for _, dep := range e.Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		order = append(order, cur)
		return nil
	}
	if err := visit(id); err != nil {
		return nil, err
	}
	return order, nil
}
