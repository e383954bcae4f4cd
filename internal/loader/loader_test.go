package loader

import (
	"testing"

	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopology_everyStepHasARegisteredLoader(t *testing.T) {
	for _, step := range Topology {
		_, ok := Registry[step]
		assert.True(t, ok, "step %q has no registered loader", step)
	}
}

func TestTopology_noDuplicateSteps(t *testing.T) {
	seen := make(map[string]bool)
	for _, step := range Topology {
		assert.False(t, seen[step], "duplicate step %q", step)
		seen[step] = true
	}
}

func TestSplitPositions(t *testing.T) {
	assert.Equal(t, []string{"G", "F"}, splitPositions("G|F"))
	assert.Nil(t, splitPositions(""))
	assert.Equal(t, []string{"C"}, splitPositions("C"))
}

func TestPbpRecordToRow_knownEventTypePassesThroughUnchanged(t *testing.T) {
	header := []string{"game_id", "eventnum", "period", "clock_remaining", "description",
		"home_score", "away_score", "player1_id", "player2_id", "player3_id",
		"team_id", "opponent_team_id", "event_type"}
	colIdx := make(map[string]int, len(header))
	for i, h := range header {
		colIdx[h] = i
	}

	record := []string{"g1", "5", "1", "700", "jump ball", "0", "0", "p1", "p2", "", "t1", "t2", "jump_ball"}
	row, issue := pbpRecordToRow(colIdx, record)
	require.Nil(t, issue)
	assert.Equal(t, "jump_ball", row[12])
}

func TestPbpRecordToRow_unknownEventTypeCoercedToOtherWithWarnIssue(t *testing.T) {
	header := []string{"game_id", "eventnum", "period", "clock_remaining", "description",
		"home_score", "away_score", "player1_id", "player2_id", "player3_id",
		"team_id", "opponent_team_id", "event_type"}
	colIdx := make(map[string]int, len(header))
	for i, h := range header {
		colIdx[h] = i
	}

	record := []string{"g1", "6", "1", "690", "weird code", "2", "0", "", "", "", "", "", "replay_review"}
	row, issue := pbpRecordToRow(colIdx, record)
	require.NotNil(t, issue)
	assert.Equal(t, "other", row[12])
	assert.Contains(t, issue.Message, "replay_review")
}

func TestTransformPBPChunk_processesAllRecordsConcurrently(t *testing.T) {
	header := []string{"game_id", "eventnum", "period", "clock_remaining", "description",
		"home_score", "away_score", "player1_id", "player2_id", "player3_id",
		"team_id", "opponent_team_id", "event_type"}

	records := make([][]string, 0, 10)
	for i := 0; i < 10; i++ {
		records = append(records, []string{"g1", "1", "1", "700", "", "0", "0", "", "", "", "", "", "rebound"})
	}

	pool, err := ants.NewPool(4)
	require.NoError(t, err)
	defer pool.Release()

	rows, issues, err := transformPBPChunk(header, records, pool)
	require.NoError(t, err)
	assert.Len(t, rows, 10)
	assert.Empty(t, issues)
}
