// Package core holds the domain types shared by every component: entity
// structs, surrogate ID newtypes, filter/pagination shapes, and the typed
// error taxonomy.
package core

// PlayerID is the surrogate key assigned to a player dimension row.
type PlayerID string

// TeamID is the surrogate key assigned to a team dimension row.
type TeamID string

// FranchiseID groups TeamIDs that share lineage across relocations/renames.
type FranchiseID string

// SeasonID is the surrogate key for a season row.
type SeasonID string

// SeasonEndYear is the natural key a season is derived from (e.g. 2024 for
// the 2023-24 season).
type SeasonEndYear int

// GameID is the surrogate key for a game row.
type GameID string

// SeasID is the hub grain for Player_Season: a stable 64-bit hash of
// (player_id, season_id, team_id-or-TOT). Stored as a decimal string so it
// prints and round-trips through JSON without precision loss.
type SeasID string

// AwardID identifies an award/voting category (MVP, DPOY, All-NBA, ...).
type AwardID string
