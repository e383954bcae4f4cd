// Package query implements the Query Engine: it compiles a Query IR into
// parameterized, read-only SQL and executes it with a statement timeout
// and max-rows guard, per spec.md §4.7.
package query

import "stormlightlabs.org/hoopscore/internal/core"

// Subject is the shape of result the query produces.
type Subject string

const (
	SubjectLeaderboards Subject = "leaderboards"
	SubjectSpans        Subject = "spans"
	SubjectSplits       Subject = "splits"
	SubjectStreaks      Subject = "streaks"
	SubjectVersus       Subject = "versus"
)

// EntityType is the grain a query groups by.
type EntityType string

const (
	EntityPlayer EntityType = "player"
	EntityTeam   EntityType = "team"
)

// MetricRef names a catalog metric, optionally overriding its declared
// aggregation (e.g. "sum" instead of the catalog's "avg" for a span total).
type MetricRef struct {
	ID                  string `json:"id"`
	AggregationOverride *string `json:"aggregation_override,omitempty"`
}

// Comparator is a streak/advanced-condition predicate operator.
type Comparator string

const (
	CmpGTE     Comparator = ">="
	CmpLTE     Comparator = "<="
	CmpEQ      Comparator = "=="
	CmpGT      Comparator = ">"
	CmpLT      Comparator = "<"
	CmpBetween Comparator = "between"
)

// Location narrows by home/away/neutral.
type Location string

const (
	LocationHome    Location = "home"
	LocationAway    Location = "away"
	LocationNeutral Location = "neutral"
)

// Result narrows by win/loss.
type Result string

const (
	ResultWin  Result = "win"
	ResultLoss Result = "loss"
	ResultAny  Result = "any"
)

// BoolOp joins AdvancedCondition predicates.
type BoolOp string

const (
	BoolAnd BoolOp = "AND"
	BoolOr  BoolOp = "OR"
)

// Predicate is one simple leaf condition in an AdvancedCondition tree:
// metric_id COMPARATOR value(s).
type Predicate struct {
	MetricID   string     `json:"metric_id" validate:"required"`
	Comparator Comparator `json:"comparator" validate:"required"`
	Value      float64    `json:"value"`
	Value2     *float64   `json:"value2,omitempty"` // upper bound when Comparator == between
}

// AdvancedCondition is a nested AND/OR tree over Predicates. Exactly one
// of Predicate or (Op + Children) is set.
type AdvancedCondition struct {
	Predicate *Predicate           `json:"predicate,omitempty"`
	Op        BoolOp               `json:"op,omitempty"`
	Children  []*AdvancedCondition `json:"children,omitempty"`
}

// SeasonRange narrows by a discrete set of seasons or a from/to range;
// exactly one of Discrete or (From, To) should be set.
type SeasonRange struct {
	Discrete []core.SeasonEndYear `json:"discrete,omitempty"`
	From     *core.SeasonEndYear  `json:"from,omitempty"`
	To       *core.SeasonEndYear  `json:"to,omitempty"`
}

// DateRange narrows games by RFC3339 date bounds.
type DateRange struct {
	From *string `json:"from,omitempty"`
	To   *string `json:"to,omitempty"`
}

// Filters is the structured filter set spec.md §4.7 names.
type Filters struct {
	Season            *SeasonRange       `json:"season,omitempty"`
	DateRange         *DateRange         `json:"date_range,omitempty"`
	TeamInclude       []core.TeamID      `json:"team_include,omitempty"`
	TeamExclude       []core.TeamID      `json:"team_exclude,omitempty"`
	PlayerInclude     []core.PlayerID    `json:"player_include,omitempty"`
	PlayerExclude     []core.PlayerID    `json:"player_exclude,omitempty"`
	Opponent          *core.TeamID       `json:"opponent,omitempty"`
	Location          *Location          `json:"location,omitempty"`
	GameType          *core.GameType     `json:"game_type,omitempty"`
	Result            *Result            `json:"result,omitempty"`
	AdvancedCondition *AdvancedCondition `json:"advanced_condition,omitempty"`
}

// SplitDimension names the GROUP BY axis for a splits query.
type SplitDimension string

const (
	SplitSeason   SplitDimension = "season"
	SplitMonth    SplitDimension = "month"
	SplitOpponent SplitDimension = "opponent"
	SplitLocation SplitDimension = "location"
	SplitResult   SplitDimension = "result"
	SplitRestDays SplitDimension = "rest_days"
)

// SpanMode is the windowing unit for a spans query.
type SpanMode string

const (
	SpanModeGames SpanMode = "games"
	SpanModeDates SpanMode = "dates"
)

// SpanSpec configures a spans query's rolling window.
type SpanSpec struct {
	Mode       SpanMode `json:"mode" validate:"required,oneof=games dates"`
	WindowSize int      `json:"window_size" validate:"required,min=1"`
	Step       int      `json:"step" validate:"required,min=1"`
}

// StreakDirection is whether a streak must be contiguous going forward
// from the earliest game (asc) or is detected irrespective of direction.
type StreakDirection string

const (
	StreakForward StreakDirection = "forward"
	StreakAny     StreakDirection = "any"
)

// StreakSpec configures a streaks query: consecutive games where metric
// satisfies predicate, selecting islands of length >= MinLength.
type StreakSpec struct {
	MetricID   string     `json:"metric_id" validate:"required"`
	Predicate  Comparator `json:"predicate" validate:"required"`
	Threshold  float64    `json:"threshold"`
	Threshold2 *float64   `json:"threshold2,omitempty"`
	MinLength  int        `json:"min_length" validate:"required,min=1"`
	Direction  StreakDirection `json:"direction,omitempty"`
}

// VersusMode is head-to-head (shared games only) or parallel (independent
// per-subject queries merged by season+game_type).
type VersusMode string

const (
	VersusHeadToHead VersusMode = "head-to-head"
	VersusParallel   VersusMode = "parallel"
)

// VersusSpec names the two subjects being compared.
type VersusSpec struct {
	SubjectAID string     `json:"subject_a_id" validate:"required"`
	SubjectBID string     `json:"subject_b_id" validate:"required"`
	Mode       VersusMode `json:"mode" validate:"required,oneof=head-to-head parallel"`
}

// SortDirection is asc/desc on a sort key.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SortSpec names a sort key: either a catalog metric id or a bare field
// (e.g. "entity_id", "season").
type SortSpec struct {
	MetricID  *string       `json:"metric_id,omitempty"`
	Field     *string       `json:"field,omitempty"`
	Direction SortDirection `json:"direction"`
}

// Page is LIMIT+OFFSET with a hard max limit enforced by the compiler
// regardless of what the caller requests.
type Page struct {
	Limit  int `json:"limit" validate:"min=0"`
	Offset int `json:"offset" validate:"min=0"`
}

// Query is the full, language-neutral Query IR spec.md §4.7 defines.
type Query struct {
	Subject       Subject     `json:"subject" validate:"required,oneof=leaderboards spans splits streaks versus"`
	EntityType    EntityType  `json:"entity_type" validate:"required,oneof=player team"`
	Metrics       []MetricRef `json:"metrics" validate:"required,min=1,dive"`
	Filters       Filters     `json:"filters"`
	SplitDimension *SplitDimension `json:"split_dimension,omitempty"`
	Span          *SpanSpec       `json:"span,omitempty"`
	Streak        *StreakSpec     `json:"streak,omitempty"`
	Versus        *VersusSpec     `json:"versus,omitempty"`
	Sort          []SortSpec      `json:"sort,omitempty"`
	Page          Page            `json:"page"`
}
