package storage

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/steveyegge/diyqa/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadJSONMissingUpstream(t *testing.T) {
	var v []types.TracedRecord
	err := ReadJSON(filepath.Join(t.TempDir(), ValidPairsFile), &v)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingUpstream)
}

func TestReadJSONMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	var v map[string]any
	err := ReadJSON(path, &v)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMissingUpstream)
}

func TestWriteJSONCreatesDirAndReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out", ValidationSummaryFile)

	require.NoError(t, WriteJSON(path, types.ValidationSummary{TotalGenerated: 3}))
	require.NoError(t, WriteJSON(path, types.ValidationSummary{TotalGenerated: 5, ValidSamples: 5, ValidationRate: 1}))

	var got types.ValidationSummary
	require.NoError(t, ReadJSON(path, &got))
	assert.Equal(t, 5, got.TotalGenerated)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestWriteJudgeCSV(t *testing.T) {
	qa := types.QARecord{
		Question:         "How do I fix a leaky faucet, quickly?",
		Answer:           "Replace the washer after shutting off the water supply.",
		EquipmentProblem: "Leaky faucet",
		ToolsRequired:    []string{"wrench", "washer"},
		Steps:            []string{"Shut off water", "Replace washer"},
		SafetyInfo:       "Turn off water supply first.",
		Tips:             "Take the old washer to the store.",
	}
	rows := []types.JudgeRecord{
		types.NewJudgeRecord("t1", qa, [types.NumModes]int{0, 1, 0, 0, 0, 0}, [types.NumModes]string{"0", "1", "0", "0", "0", "0"}),
	}

	path := filepath.Join(t.TempDir(), LabeledDataCSVFile)
	require.NoError(t, WriteJudgeCSV(path, rows))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	recs, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, types.CSVHeader(), recs[0])
	assert.Equal(t, "t1", recs[1][0])
	assert.Equal(t, "How do I fix a leaky faucet, quickly?", recs[1][1])
	assert.Equal(t, `["wrench","washer"]`, recs[1][4])
	assert.Equal(t, "1", recs[1][len(recs[1])-2])
	assert.Equal(t, "1", recs[1][len(recs[1])-1])
}

func TestOutputLock(t *testing.T) {
	dir := t.TempDir()

	lockPath, err := AcquireOutputLock(dir, "label", "test")
	require.NoError(t, err)
	assert.FileExists(t, lockPath)

	// The same process may re-acquire its own lock.
	again, err := AcquireOutputLock(dir, "analyze", "test")
	require.NoError(t, err)
	assert.Equal(t, lockPath, again)

	require.NoError(t, ReleaseOutputLock(lockPath))
	assert.NoFileExists(t, lockPath)
	assert.NoError(t, ReleaseOutputLock(lockPath))
}

func TestOutputLockStale(t *testing.T) {
	dir := t.TempDir()
	host, err := os.Hostname()
	require.NoError(t, err)

	// PIDs above the kernel's pid_max cannot exist.
	stale := []byte(`{"command":"run","pid":2147483000,"hostname":"` + host + `"}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, LockFile), stale, 0644))

	lockPath, err := AcquireOutputLock(dir, "run", "test")
	require.NoError(t, err)
	defer ReleaseOutputLock(lockPath)
}

func TestOutputLockHeldByRemoteHost(t *testing.T) {
	dir := t.TempDir()
	held := []byte(`{"command":"loop","pid":1,"hostname":"some-other-host.invalid"}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, LockFile), held, 0644))

	_, err := AcquireOutputLock(dir, "run", "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in use")
}
