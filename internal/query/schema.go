package query

import "stormlightlabs.org/hoopscore/internal/core"

// entitySchema describes how an EntityType's hub/fact table joins to the
// season-grain satellites a leaderboard metric lives in, and to the
// per-game fact table spans/streaks/splits/versus metrics live in. Only
// identifiers named here, or column names the Metrics Registry already
// validated against its own schema allowlist, are ever interpolated into
// compiled SQL -- no user-supplied string reaches a FROM/JOIN/ORDER BY
// clause directly.
type entitySchema struct {
	// Season-grain hub (player_season / team_season).
	hubTable    string
	hubIDCol    string // player_id or team_id
	hubJoinCols []string // columns joining hub <-> satellite tables
	seasonIDCol string

	// Per-game fact table (boxscore_player / boxscore_team), used by
	// spans/streaks/splits/versus.
	factTable  string
	factIDCol  string
	factGameCol string
}

var entitySchemas = map[EntityType]entitySchema{
	EntityPlayer: {
		hubTable:    "player_season",
		hubIDCol:    "player_id",
		hubJoinCols: []string{"seas_id"},
		seasonIDCol: "season_id",
		factTable:   "boxscore_player",
		factIDCol:   "player_id",
		factGameCol: "game_id",
	},
	EntityTeam: {
		hubTable:    "team_season",
		hubIDCol:    "team_id",
		hubJoinCols: []string{"team_id", "season_id"},
		seasonIDCol: "season_id",
		factTable:   "boxscore_team",
		factIDCol:   "team_id",
		factGameCol: "game_id",
	},
}

func schemaFor(e EntityType) (entitySchema, bool) {
	s, ok := entitySchemas[e]
	return s, ok
}

// idPlaceholder renders a core ID newtype as a bound parameter value.
func idPlaceholder(v any) any {
	switch x := v.(type) {
	case core.PlayerID:
		return string(x)
	case core.TeamID:
		return string(x)
	case core.SeasonID:
		return string(x)
	case core.GameID:
		return string(x)
	default:
		return v
	}
}
