package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"stormlightlabs.org/hoopscore/internal/core"
	"stormlightlabs.org/hoopscore/internal/db"
	"stormlightlabs.org/hoopscore/internal/echo"
	"stormlightlabs.org/hoopscore/internal/orchestrator"
)

// IngestCmd creates the ingest command group: spec.md §6's orchestrator
// CLI (run_full, run_subset folded into --files, verify_only).
func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "ETL run driver",
		Long:  "Manifest verification, migration, the loader topology, and post-load validation in one run.",
	}
	cmd.AddCommand(IngestRunCmd())
	cmd.AddCommand(IngestVerifyCmd())
	return cmd
}

// IngestRunCmd creates the run command, covering both run_full and
// run_subset depending on whether --files is given.
func IngestRunCmd() *cobra.Command {
	var filesFlag string
	var inspect bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the ETL pipeline, in full or over a subset of manifest files",
		Long:  "Executes manifest verification, migration, the loader topology, and post-load validation. With --files, restricts the run to those files and their predecessors.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, filesFlag, inspect)
		},
	}
	cmd.Flags().StringVar(&filesFlag, "files", "", "Comma-separated manifest filenames to run (plus their predecessors); omit for a full run")
	cmd.Flags().BoolVar(&inspect, "inspect", false, "Collect every manifest mismatch instead of stopping at the first")
	return cmd
}

// IngestVerifyCmd creates the verify command: spec.md §6's verify_only,
// no writes, exit codes 0 clean / 2 issues found.
func IngestVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify the manifest and run post-load validation with no writes",
		RunE:  runVerifyOnly,
	}
}

func buildOrchestrator(cmd *cobra.Command) (*orchestrator.Orchestrator, *db.DB, error) {
	cfg, err := loadConfigForCmd(cmd)
	if err != nil {
		return nil, nil, err
	}

	database, err := db.Connect(cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}

	o := orchestrator.New(database, cfg.Ingest.ManifestPath, cfg.Ingest.DataDir, cfg.Ingest.WorkerPoolMax)
	return o, database, nil
}

func runIngest(cmd *cobra.Command, filesFlag string, inspect bool) error {
	echo.Header("ETL Run")

	o, database, err := buildOrchestrator(cmd)
	if err != nil {
		echo.Errorf("setup failed: %v", err)
		os.Exit(3)
		return err
	}
	defer database.Close()

	ctx := cmd.Context()

	var summary *orchestrator.Summary
	if filesFlag == "" {
		echo.Info("Running full ETL...")
		summary, err = o.RunFull(ctx, inspect)
	} else {
		files := splitCommaList(filesFlag)
		echo.Infof("Running subset: %s", strings.Join(files, ", "))
		summary, err = o.RunSubset(ctx, files)
	}

	if summary != nil {
		echo.Infof("run %s: %d step(s), %d issue(s)", summary.RunID, len(summary.Steps), len(summary.Issues))
		var totalRows int64
		for _, step := range summary.Steps {
			totalRows += step.RowsOut
			echo.Infof("  %-28s %s rows (started %s)", step.Step, formatLargeNumber(step.RowsOut), humanizeModTime(step.StartedAt))
		}
		echo.Infof("total rows loaded: %s", formatLargeNumber(totalRows))
	}
	if err != nil {
		echo.Errorf("run failed: %v", err)
		os.Exit(exitCodeForRunErr(err))
		return err
	}

	echo.Success("✓ ETL run completed")
	return nil
}

func runVerifyOnly(cmd *cobra.Command, args []string) error {
	echo.Header("Verify Only")

	o, database, err := buildOrchestrator(cmd)
	if err != nil {
		echo.Errorf("setup failed: %v", err)
		os.Exit(2)
		return err
	}
	defer database.Close()

	verifyResults, report, err := o.VerifyOnly(cmd.Context())
	if err != nil {
		echo.Errorf("verify failed: %v", err)
		os.Exit(2)
		return err
	}

	mismatches := 0
	for filename, res := range verifyResults {
		if !res.OK {
			mismatches++
			echo.Errorf("  %s: %v", filename, res.Errors)
		}
	}

	hasErrors := report != nil && report.HasErrors()
	if report != nil {
		for _, issue := range report.Issues {
			echo.Infof("  [%s] %s: %s", issue.Severity, issue.Step, issue.Message)
		}
	}

	if mismatches > 0 || hasErrors {
		echo.Error("✗ verification found issues")
		os.Exit(2)
		return nil
	}

	echo.Success("✓ manifest and post-load validation clean")
	return nil
}

func splitCommaList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p := strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// exitCodeForRunErr maps a run failure's core.Kind to spec.md §6's
// run_full exit codes: 2 validation, 3 manifest, 4 migration, 5 load, 7
// cancelled. Anything outside the named taxonomy falls back to 1.
func exitCodeForRunErr(err error) int {
	kind, ok := core.KindOf(err)
	if !ok {
		return 1
	}
	switch kind {
	case core.ManifestMismatch, core.ManifestMissingFile, core.ManifestIncomplete:
		return 3
	case core.MigrationChecksumMismatch, core.MigrationApplyError:
		return 4
	case core.RowCountMismatch, core.FKCoverageFail, core.DomainRuleViolation, core.CrossTableInconsistency:
		return 2
	case core.LoadCountMismatch, core.FKViolation, core.CheckViolation, core.TypeCoercionError, core.ChunkCheckpointFailed,
		core.UnresolvedPlayer, core.UnresolvedTeam, core.UnresolvedSeason, core.AmbiguousResolution:
		return 5
	case core.RunCancelled:
		return 7
	default:
		return 1
	}
}
