package orchestrator

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"stormlightlabs.org/hoopscore/internal/core"
	"stormlightlabs.org/hoopscore/internal/manifest"
)

func newRunID() string {
	return ulid.Make().String()
}

func (o *Orchestrator) insertRun(ctx context.Context, runID string, mode core.RunMode) error {
	_, err := o.conn.ExecContext(ctx,
		`INSERT INTO etl_runs (id, started_at, mode, status) VALUES ($1, now(), $2, 'running')`,
		runID, string(mode))
	if err != nil {
		return core.New("orchestrator", core.RunBookkeepingFailed, "inserting etl_runs row", err)
	}
	return nil
}

func (o *Orchestrator) completeRun(ctx context.Context, runID string) error {
	_, err := o.conn.ExecContext(ctx,
		`UPDATE etl_runs SET status = 'completed', ended_at = now() WHERE id = $1`, runID)
	if err != nil {
		return core.New("orchestrator", core.RunBookkeepingFailed, "completing etl_runs row", err)
	}
	return nil
}

// failRun and cancelRun swallow their own bookkeeping errors: the caller
// already has a fatal error to return, and a bookkeeping write failing on
// top of that shouldn't mask the original cause.
func (o *Orchestrator) failRun(ctx context.Context, runID string, cause error) {
	_, _ = o.conn.ExecContext(ctx, `UPDATE etl_runs SET status = 'failed', ended_at = now() WHERE id = $1`, runID)
	o.insertIssue(ctx, runID, "run", core.SeverityError, cause.Error())
}

func (o *Orchestrator) cancelRun(ctx context.Context, runID string) {
	_, _ = o.conn.ExecContext(context.Background(), `UPDATE etl_runs SET status = 'cancelled', ended_at = now() WHERE id = $1`, runID)
}

func (o *Orchestrator) insertStepStarted(ctx context.Context, runID, step string, started time.Time) {
	_, _ = o.conn.ExecContext(ctx,
		`INSERT INTO etl_run_steps (run_id, step, status, started_at) VALUES ($1, $2, 'running', $3)`,
		runID, step, started)
}

func (o *Orchestrator) updateStepFinished(ctx context.Context, runID, step string, status core.RunStatus, rowsIn, rowsOut int64) {
	_, _ = o.conn.ExecContext(ctx,
		`UPDATE etl_run_steps SET status = $3, rows_in = $4, rows_out = $5, ended_at = now()
		 WHERE run_id = $1 AND step = $2`,
		runID, step, string(status), rowsIn, rowsOut)
}

func (o *Orchestrator) insertIssue(ctx context.Context, runID, step string, severity core.IssueSeverity, message string) {
	_, _ = o.conn.ExecContext(ctx,
		`INSERT INTO etl_run_issues (run_id, step, severity, message) VALUES ($1, $2, $3, $4)`,
		runID, step, string(severity), message)
}

func (o *Orchestrator) insertLoadManifest(ctx context.Context, filename string, entry manifest.Entry) {
	_, _ = o.conn.ExecContext(ctx,
		`INSERT INTO load_manifests (file, sha256, row_count, operator)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (file, sha256) DO NOTHING`,
		filename, entry.SHA256, entry.LineCount-1, "orchestrator")
}
