// Package orchestrator is the single-shot ETL run driver, per spec.md
// §4.9: manifest verification, migrations, the loader topology (as a
// bounded-parallelism DAG), post-load validation, and run bookkeeping
// (etl_runs/etl_run_steps/etl_run_issues/load_manifests). It owns the
// only writes to those four tables.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"stormlightlabs.org/hoopscore/internal/core"
	"stormlightlabs.org/hoopscore/internal/db"
	"stormlightlabs.org/hoopscore/internal/loader"
	"stormlightlabs.org/hoopscore/internal/manifest"
	"stormlightlabs.org/hoopscore/internal/resolve"
	"stormlightlabs.org/hoopscore/internal/validate"
)

// Orchestrator drives one ETL command (run_full, run_subset, verify_only)
// against a single Postgres connection pool.
type Orchestrator struct {
	conn           *db.DB
	manifestPath   string
	dataDir        string
	workerPoolSize int
}

// New builds an Orchestrator. workerPoolSize bounds how many independent
// loader stages run concurrently (spec.md §5's default 2-4); values <1
// fall back to 2.
func New(conn *db.DB, manifestPath, dataDir string, workerPoolSize int) *Orchestrator {
	if workerPoolSize < 1 {
		workerPoolSize = 2
	}
	return &Orchestrator{conn: conn, manifestPath: manifestPath, dataDir: dataDir, workerPoolSize: workerPoolSize}
}

// Summary is the outcome of a run, returned to the CLI layer for exit-code
// mapping and reporting.
type Summary struct {
	RunID  string
	Mode   core.RunMode
	Status core.RunStatus
	Steps  []core.EtlRunStep
	Issues []core.EtlRunIssue
}

// stage is one wave of the loader DAG: Parallel stages run their Steps
// concurrently (bounded by workerPoolSize), since spec.md §5 calls out
// "bounded parallelism across independent loaders when no FK dependency
// exists." Sequential stages run their steps one at a time, preserving the strict
// topological order Topology documents for hub→satellite chains.
type stage struct {
	steps    []string
	parallel bool
}

// stages groups internal/loader.Topology into dependency waves. Dimension
// and fact-table loaders are FK-chained and run one at a time; once a
// hub's satellites have no FK relationship to each other they run as a
// pool. This grouping is a design decision (Topology itself is a flat,
// valid topological order with no explicit graph) grounded directly in
// the dependency commentary already on internal/loader.Topology and
// spec.md §5's named example (awards/draft/inactive after dimensions).
var stages = []stage{
	{steps: []string{"seasons", "teams", "team_history", "team_abbrev_mappings", "players", "player_aliases"}},
	{steps: []string{"games", "boxscore_team", "boxscore_player"}},
	{steps: []string{"team_season_hub", "team_season_totals", "team_summaries"}},
	{steps: []string{"team_season_per_game", "team_season_per100", "team_season_opponent"}, parallel: true},
	{steps: []string{"player_season_hub", "player_season_totals"}},
	{steps: []string{"player_season_per_game", "player_season_per36", "player_season_per100", "player_season_advanced"}, parallel: true},
	{steps: []string{
		"pbp_events",
		"all_star_selections", "player_award_shares", "end_of_season_teams", "end_of_season_voting",
		"draft_picks", "draft_combine_stats", "inactive_players", "game_officials",
		"player_play_by_play_stats", "player_shooting_stats",
	}, parallel: true},
}

// stepFiles maps a loader step name to the CSV artifact the manifest
// declares for it. The Manifest Service indexes entries by filename, the
// loader Registry indexes by step name; the orchestrator is the one
// component that needs both, so it owns the join.
var stepFiles = map[string]string{
	"seasons": "seasons.csv", "teams": "teams.csv", "team_history": "team_history.csv",
	"team_abbrev_mappings": "team_abbrev_mappings.csv", "players": "players.csv",
	"player_aliases": "player_aliases.csv", "games": "games.csv",
	"boxscore_team": "boxscore_team.csv", "boxscore_player": "boxscore_player.csv",
	"team_season_hub": "team_season_hub.csv", "team_season_totals": "team_season_totals.csv",
	"team_summaries": "team_summaries.csv", "team_season_per_game": "team_season_per_game.csv",
	"team_season_per100": "team_season_per100.csv", "team_season_opponent": "team_season_opponent.csv",
	"player_season_hub": "player_season_hub.csv", "player_season_per_game": "player_season_per_game.csv",
	"player_season_totals": "player_season_totals.csv", "player_season_per36": "player_season_per36.csv",
	"player_season_per100": "player_season_per100.csv", "player_season_advanced": "player_season_advanced.csv",
	"pbp_events": "pbp_events.csv", "all_star_selections": "all_star_selections.csv",
	"player_award_shares": "player_award_shares.csv", "end_of_season_teams": "end_of_season_teams.csv",
	"end_of_season_voting": "end_of_season_voting.csv", "draft_picks": "draft_picks.csv",
	"draft_combine_stats": "draft_combine_stats.csv", "inactive_players": "inactive_players.csv",
	"game_officials": "game_officials.csv", "player_play_by_play_stats": "player_play_by_play_stats.csv",
	"player_shooting_stats": "player_shooting_stats.csv",
}

// RunFull executes manifest.verify_all → migrate → every stage in
// Topology → validation → bookkeeping, per spec.md §4.9. inspect=true
// runs in inspect mode: manifest verification collects every mismatch
// instead of stopping at the first.
func (o *Orchestrator) RunFull(ctx context.Context, inspect bool) (*Summary, error) {
	mode := core.RunModeFull
	if inspect {
		mode = core.RunModeInspect
	}
	return o.run(ctx, mode, nil, inspect)
}

// RunSubset restricts the run to files, expanding to their predecessors
// in Topology so dependency order is respected even for a partial run.
func (o *Orchestrator) RunSubset(ctx context.Context, files []string) (*Summary, error) {
	return o.run(ctx, core.RunModeSubset, files, false)
}

// VerifyOnly runs manifest.verify_all plus the read-only validation
// suite with no writes: no etl_runs row, no load_manifests rows.
func (o *Orchestrator) VerifyOnly(ctx context.Context) (map[string]manifest.VerifyResult, *validate.Report, error) {
	m, err := manifest.Load(o.manifestPath)
	if err != nil {
		return nil, nil, err
	}
	verifyResults, err := manifest.VerifyAll(m, o.dataDir, true)
	if err != nil {
		return verifyResults, nil, err
	}

	expected := expectedCounts(m, m.Files())
	report, err := validate.PostLoad(ctx, o.conn, expected)
	if err != nil {
		return verifyResults, nil, err
	}
	return verifyResults, report, nil
}

func expandToPredecessors(files []string) []string {
	wanted := make(map[string]bool, len(files))
	for _, f := range files {
		wanted[f] = true
	}

	lastWantedIdx := -1
	for i, step := range loader.Topology {
		if wanted[step] || wanted[stepFiles[step]] {
			lastWantedIdx = i
		}
	}
	if lastWantedIdx < 0 {
		return nil
	}
	return append([]string{}, loader.Topology[:lastWantedIdx+1]...)
}

func expectedCounts(m *manifest.Manifest, files []string) map[string]int64 {
	expected := make(map[string]int64, len(files))
	for _, filename := range files {
		entry, ok := m.Entries[filename]
		if !ok {
			continue
		}
		expected[entry.TargetTable] = entry.LineCount - 1 // header row
	}
	return expected
}

func (o *Orchestrator) run(ctx context.Context, mode core.RunMode, subsetFiles []string, inspect bool) (*Summary, error) {
	m, err := manifest.Load(o.manifestPath)
	if err != nil {
		return nil, err
	}
	if _, err := manifest.VerifyAll(m, o.dataDir, inspect); err != nil {
		return nil, err
	}

	if err := o.conn.Migrate(ctx); err != nil {
		return nil, err
	}

	runID := newRunID()
	if err := o.insertRun(ctx, runID, mode); err != nil {
		return nil, err
	}

	summary := &Summary{RunID: runID, Mode: mode, Status: core.RunStatusRunning}

	steps := loader.Topology
	if mode == core.RunModeSubset {
		steps = expandToPredecessors(subsetFiles)
	}
	wanted := make(map[string]bool, len(steps))
	for _, s := range steps {
		wanted[s] = true
	}

	r := resolve.New()
	loadedFiles := make([]string, 0, len(steps))

	for _, st := range stages {
		filtered := filterStage(st, wanted)
		if len(filtered) == 0 {
			continue
		}

		results, err := o.runStage(ctx, runID, filtered, st.parallel, m, r)
		if err != nil {
			o.failRun(ctx, runID, err)
			summary.Status = core.RunStatusFailed
			return summary, err
		}
		for _, res := range results {
			summary.Steps = append(summary.Steps, res)
			loadedFiles = append(loadedFiles, stepFiles[res.Step])
		}

		if err := bootstrapResolverIfNeeded(ctx, o.conn, r, filtered); err != nil {
			o.failRun(ctx, runID, err)
			summary.Status = core.RunStatusFailed
			return summary, err
		}
	}

	if ctx.Err() != nil {
		o.cancelRun(ctx, runID)
		summary.Status = core.RunStatusCancelled
		return summary, core.New("orchestrator", core.RunCancelled, "run cancelled", ctx.Err())
	}

	expected := expectedCounts(m, loadedFiles)
	report, err := validate.PostLoad(ctx, o.conn, expected)
	if err != nil {
		o.failRun(ctx, runID, err)
		summary.Status = core.RunStatusFailed
		return summary, err
	}
	for _, issue := range report.Issues {
		o.insertIssue(ctx, runID, issue.Step, issue.Severity, issue.Message)
		summary.Issues = append(summary.Issues, core.EtlRunIssue{RunID: runID, Step: issue.Step, Severity: issue.Severity, Message: issue.Message})
	}
	if report.HasErrors() {
		err := core.New("orchestrator", core.CrossTableInconsistency, "post-load validation reported ERROR-severity issues", nil)
		o.failRun(ctx, runID, err)
		summary.Status = core.RunStatusFailed
		return summary, err
	}

	for _, filename := range loadedFiles {
		if entry, ok := m.Entries[filename]; ok {
			o.insertLoadManifest(ctx, filename, entry)
		}
	}
	if err := o.completeRun(ctx, runID); err != nil {
		return summary, err
	}
	summary.Status = core.RunStatusCompleted
	return summary, nil
}

func filterStage(st stage, wanted map[string]bool) []string {
	out := make([]string, 0, len(st.steps))
	for _, s := range st.steps {
		if wanted[s] {
			out = append(out, s)
		}
	}
	return out
}

// runStage runs steps either sequentially or, when parallel, through a
// bounded errgroup pool. PBP gets its own step here like everything
// else -- it is already isolated at the transaction level because
// loadPBPEvents commits each chunk via its own conn.CopyRows call,
// independent of any other step's.
func (o *Orchestrator) runStage(ctx context.Context, runID string, steps []string, parallel bool, m *manifest.Manifest, r *resolve.Resolver) ([]core.EtlRunStep, error) {
	if !parallel {
		results := make([]core.EtlRunStep, 0, len(steps))
		for _, step := range steps {
			res, err := o.runStep(ctx, runID, step, m, r)
			if err != nil {
				return results, err
			}
			results = append(results, res)
		}
		return results, nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.workerPoolSize)
	results := make([]core.EtlRunStep, len(steps))
	for i, step := range steps {
		i, step := i, step
		g.Go(func() error {
			res, err := o.runStep(gCtx, runID, step, m, r)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (o *Orchestrator) runStep(ctx context.Context, runID, step string, m *manifest.Manifest, r *resolve.Resolver) (core.EtlRunStep, error) {
	fn, ok := loader.Registry[step]
	if !ok {
		return core.EtlRunStep{}, core.New("orchestrator", core.LoadCountMismatch, fmt.Sprintf("no loader registered for step %q", step), nil)
	}
	filename := stepFiles[step]
	entry := m.Entries[filename]

	started := time.Now()
	o.insertStepStarted(ctx, runID, step, started)

	src := loader.Source{Filename: filename, DataDir: o.dataDir, Entry: entry}
	result, err := fn(ctx, src, r, o.conn)
	if err != nil {
		o.updateStepFinished(ctx, runID, step, core.RunStatusFailed, result.RowsIn, result.RowsOut)
		o.insertIssue(ctx, runID, step, core.SeverityError, err.Error())
		return core.EtlRunStep{}, err
	}

	for _, issue := range result.Issues {
		o.insertIssue(ctx, runID, step, issue.Severity, issue.Message)
	}
	o.updateStepFinished(ctx, runID, step, core.RunStatusCompleted, result.RowsIn, result.RowsOut)

	return core.EtlRunStep{
		RunID: runID, Step: step, RowsIn: result.RowsIn, RowsOut: result.RowsOut,
		Status: core.RunStatusCompleted, StartedAt: started,
	}, nil
}

// bootstrapResolverIfNeeded reloads the resolver's in-memory lookup maps
// from Postgres right after the dimension loaders' stage commits, so
// every subsequent stage resolves natural keys against the just-loaded
// rows. Safe to call repeatedly; each call only re-populates what its
// stage actually touched.
func bootstrapResolverIfNeeded(ctx context.Context, conn *db.DB, r *resolve.Resolver, completedSteps []string) error {
	touched := make(map[string]bool, len(completedSteps))
	for _, s := range completedSteps {
		touched[s] = true
	}

	if touched["seasons"] {
		seasons, err := loadSeasonsFromDB(ctx, conn)
		if err != nil {
			return err
		}
		r.LoadSeasons(seasons)
	}
	if touched["team_abbrev_mappings"] {
		mappings, err := loadTeamAbbrevMappingsFromDB(ctx, conn)
		if err != nil {
			return err
		}
		r.LoadTeamAbbrevMappings(mappings)
	}
	if touched["player_aliases"] {
		aliases, err := loadPlayerAliasesFromDB(ctx, conn)
		if err != nil {
			return err
		}
		r.LoadPlayerAliases(aliases)
	}
	return nil
}
