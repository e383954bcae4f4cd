package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifestYAML(t *testing.T, dir string, body string) string {
	t.Helper()
	path := filepath.Join(dir, "manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_parsesEntries(t *testing.T) {
	dir := t.TempDir()
	path := writeManifestYAML(t, dir, `
files:
  players.csv:
    target_table: players
    line_count: 3
    sha256: abc123
  games.csv:
    target_table: games
    line_count: 10
    sha256: def456
    fk_columns: ["season_id", "home_team_id"]
`)

	m, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, m.Entries, 2)
	assert.Equal(t, []string{"games.csv", "players.csv"}, m.Files())
	assert.Equal(t, "players", m.Entries["players.csv"].TargetTable)
	assert.Equal(t, []string{"season_id", "home_team_id"}, m.Entries["games.csv"].FKColumns)
}

func TestLoad_missingTargetTableIsIncomplete(t *testing.T) {
	dir := t.TempDir()
	path := writeManifestYAML(t, dir, `
files:
  players.csv:
    line_count: 3
    sha256: abc123
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MANIFEST_INCOMPLETE")
}

func TestVerifyFile_matchesShaAndLineCount(t *testing.T) {
	dir := t.TempDir()
	content := "a,b,c\n1,2,3\n4,5,6\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "players.csv"), []byte(content), 0o644))

	sum := sha256.Sum256([]byte(content))
	entry := Entry{TargetTable: "players", LineCount: 3, SHA256: hex.EncodeToString(sum[:])}

	res, err := VerifyFile(dir, "players.csv", entry)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Empty(t, res.Errors)
}

func TestVerifyFile_detectsShaMismatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "players.csv"), []byte("a,b\n1,2\n"), 0o644))

	entry := Entry{TargetTable: "players", LineCount: 2, SHA256: "deadbeef"}
	res, err := VerifyFile(dir, "players.csv", entry)
	require.NoError(t, err)
	assert.False(t, res.OK)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Error(), "MANIFEST_MISMATCH")
}

func TestVerifyFile_detectsLineCountMismatch(t *testing.T) {
	dir := t.TempDir()
	content := "a,b\n1,2\n3,4\n"
	sum := sha256.Sum256([]byte(content))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "players.csv"), []byte(content), 0o644))

	entry := Entry{TargetTable: "players", LineCount: 99, SHA256: hex.EncodeToString(sum[:])}
	res, err := VerifyFile(dir, "players.csv", entry)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Contains(t, res.Errors[0].Error(), "line count mismatch")
}

func TestVerifyFile_missingFile(t *testing.T) {
	dir := t.TempDir()
	entry := Entry{TargetTable: "players", LineCount: 1, SHA256: "x"}
	_, err := VerifyFile(dir, "missing.csv", entry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MANIFEST_MISSING_FILE")
}

func TestVerifyAll_inspectOnlyCollectsAllFailures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "players.csv"), []byte("a\n1\n"), 0o644))

	m := &Manifest{
		Entries: map[string]Entry{
			"players.csv": {TargetTable: "players", LineCount: 99, SHA256: "wrong"},
			"missing.csv": {TargetTable: "teams", LineCount: 1, SHA256: "x"},
		},
		order: []string{"missing.csv", "players.csv"},
	}

	results, err := VerifyAll(m, dir, true)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.False(t, results["players.csv"].OK)
	assert.NotEmpty(t, results["missing.csv"].Errors)
}

func TestVerifyAll_stopsAtFirstFailureWhenNotInspectOnly(t *testing.T) {
	dir := t.TempDir()
	m := &Manifest{
		Entries: map[string]Entry{
			"missing.csv": {TargetTable: "teams", LineCount: 1, SHA256: "x"},
		},
		order: []string{"missing.csv"},
	}

	_, err := VerifyAll(m, dir, false)
	require.Error(t, err)
}
