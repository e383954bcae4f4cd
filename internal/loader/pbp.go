package loader

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/panjf2000/ants/v2"

	"stormlightlabs.org/hoopscore/internal/core"
	"stormlightlabs.org/hoopscore/internal/db"
	"stormlightlabs.org/hoopscore/internal/resolve"
)

func init() {
	register("pbp_events", loadPBPEvents)
}

// pbpChunkSize bounds the in-memory window per the spec's ≤1M rows/chunk
// rule for large-file handling.
const pbpChunkSize = 1_000_000

type pbpRow struct {
	GameID         string `csv:"game_id"`
	EventNum       int    `csv:"eventnum"`
	Period         int    `csv:"period"`
	ClockRemaining int    `csv:"clock_remaining"`
	Description    string `csv:"description"`
	HomeScore      int    `csv:"home_score"`
	AwayScore      int    `csv:"away_score"`
	Player1ID      string `csv:"player1_id"`
	Player2ID      string `csv:"player2_id"`
	Player3ID      string `csv:"player3_id"`
	TeamID         string `csv:"team_id"`
	OpponentTeamID string `csv:"opponent_team_id"`
	EventType      string `csv:"event_type"`
}

var knownPBPEventTypes = map[string]bool{
	string(core.PBPMadeShot): true, string(core.PBPMissedShot): true, string(core.PBPFreeThrow): true,
	string(core.PBPRebound): true, string(core.PBPTurnover): true, string(core.PBPFoul): true,
	string(core.PBPSubstitution): true, string(core.PBPTimeout): true, string(core.PBPJumpBall): true,
	string(core.PBPEjection): true, string(core.PBPPeriodStart): true, string(core.PBPPeriodEnd): true,
}

// loadPBPEvents streams the play-by-play artifact in bounded chunks
// (≤1M rows), transforming each chunk in a small worker pool before a
// per-chunk COPY. Each chunk commits on its own; the step reports only
// rows_in/rows_out summed across chunks, and no per-chunk checkpoint
// (eventnum range, row count) is recorded, so chunks committed before a
// failure stay in the table unmarked. Recognizing an event_type not in the fixed enum is WARN, not
// fatal: it is coerced to "other" and surfaced as an issue.
func loadPBPEvents(ctx context.Context, src Source, r *resolve.Resolver, conn *db.DB) (Result, error) {
	started := time.Now()
	f, err := os.Open(filepath.Join(src.DataDir, src.Filename))
	if err != nil {
		return Result{}, core.New("load", core.TypeCoercionError, "pbp_events: opening artifact", err)
	}
	defer f.Close()

	reader := bufio.NewReaderSize(f, 1<<20)
	decoder := gocsv.DefaultCSVReader(reader)

	header, err := decoder.Read()
	if err != nil {
		return Result{}, core.New("load", core.TypeCoercionError, "pbp_events: reading header", err)
	}

	pool, err := ants.NewPool(8)
	if err != nil {
		return Result{}, core.New("load", core.ChunkCheckpointFailed, "pbp_events: starting worker pool", err)
	}
	defer pool.Release()

	var (
		rowsIn, rowsOut int64
		issues          []core.EtlRunIssue
		mu              sync.Mutex
	)

	chunk := make([][]string, 0, pbpChunkSize)
	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		rows, chunkIssues, err := transformPBPChunk(header, chunk, pool)
		if err != nil {
			return core.New("load", core.ChunkCheckpointFailed, "pbp_events: transforming chunk", err)
		}

		n, err := conn.CopyRows(ctx, "pbp_events",
			[]string{"game_id", "eventnum", "period", "clock_remaining", "description", "home_score", "away_score",
				"player1_id", "player2_id", "player3_id", "team_id", "opponent_team_id", "event_type"}, rows)
		if err != nil {
			return core.New("load", core.ChunkCheckpointFailed, "pbp_events: COPY chunk", err)
		}

		mu.Lock()
		rowsIn += int64(len(chunk))
		rowsOut += n
		issues = append(issues, chunkIssues...)
		mu.Unlock()

		chunk = chunk[:0]
		return nil
	}

	for {
		record, err := decoder.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, core.New("load", core.TypeCoercionError, "pbp_events: reading record", err)
		}
		chunk = append(chunk, record)
		if len(chunk) >= pbpChunkSize {
			if err := flush(); err != nil {
				return Result{}, err
			}
		}
	}
	if err := flush(); err != nil {
		return Result{}, err
	}

	return Result{Step: "pbp_events", RowsIn: rowsIn, RowsOut: rowsOut, Duration: time.Since(started), Issues: issues}, nil
}

// transformPBPChunk fans raw CSV records out across the worker pool,
// coercing unknown event_type values to "other" and recording a WARN
// issue for each, rather than failing the whole chunk.
func transformPBPChunk(header []string, records [][]string, pool *ants.Pool) ([][]any, []core.EtlRunIssue, error) {
	colIdx := make(map[string]int, len(header))
	for i, h := range header {
		colIdx[h] = i
	}

	rows := make([][]any, len(records))
	issuesPerRow := make([]*core.EtlRunIssue, len(records))

	var wg sync.WaitGroup
	errs := make(chan error, len(records))

	for i, record := range records {
		i, record := i, record
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			row, issue := pbpRecordToRow(colIdx, record)
			rows[i] = row
			issuesPerRow[i] = issue
		}); err != nil {
			wg.Done()
			errs <- err
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return nil, nil, err
		}
	}

	var issues []core.EtlRunIssue
	for _, issue := range issuesPerRow {
		if issue != nil {
			issues = append(issues, *issue)
		}
	}
	return rows, issues, nil
}

func pbpRecordToRow(colIdx map[string]int, record []string) ([]any, *core.EtlRunIssue) {
	get := func(col string) string {
		if idx, ok := colIdx[col]; ok && idx < len(record) {
			return record[idx]
		}
		return ""
	}
	optPlayer := func(col string) any {
		if v := get(col); v != "" {
			return v
		}
		return nil
	}
	toInt := func(col string) any {
		v, err := strconv.Atoi(get(col))
		if err != nil {
			return 0
		}
		return v
	}

	eventType := get("event_type")
	var issue *core.EtlRunIssue
	if !knownPBPEventTypes[eventType] {
		issue = &core.EtlRunIssue{
			Step:     "pbp_events",
			Severity: core.SeverityWarn,
			Message:  "unrecognized event_type '" + eventType + "' coerced to 'other'",
		}
		eventType = string(core.PBPOther)
	}

	row := []any{
		get("game_id"), toInt("eventnum"), toInt("period"), toInt("clock_remaining"),
		get("description"), toInt("home_score"), toInt("away_score"),
		optPlayer("player1_id"), optPlayer("player2_id"), optPlayer("player3_id"),
		optPlayer("team_id"), optPlayer("opponent_team_id"), eventType,
	}
	return row, issue
}
