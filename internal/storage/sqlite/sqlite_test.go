package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/steveyegge/diyqa/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(context.Background(), filepath.Join(t.TempDir(), "sub", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func judgeRow(traceID string, scores [types.NumModes]int) types.JudgeRecord {
	var responses [types.NumModes]string
	for i, s := range scores {
		if s == 1 {
			responses[i] = "1"
		} else {
			responses[i] = "0"
		}
	}
	return types.NewJudgeRecord(traceID, types.QARecord{Question: "q " + traceID}, scores, responses)
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t)

	id, err := l.StartRun(ctx, "label", "openai", "gpt-3.5-turbo")
	require.NoError(t, err)

	run, err := l.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, run.Status)
	assert.Nil(t, run.FinishedAt)
	assert.Nil(t, run.FailureRate)

	rate := 0.25
	require.NoError(t, l.FinishRun(ctx, id, 4, &rate, nil))

	run, err = l.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, run.Status)
	assert.Equal(t, 4, run.Records)
	require.NotNil(t, run.FailureRate)
	assert.InDelta(t, 0.25, *run.FailureRate, 1e-12)
	require.NotNil(t, run.FinishedAt)
}

func TestFinishRunFailed(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t)

	id, err := l.StartRun(ctx, "generate", "anthropic", "claude")
	require.NoError(t, err)
	require.NoError(t, l.FinishRun(ctx, id, 0, nil, errors.New("boom")))

	run, err := l.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, "boom", run.Error)
}

func TestUnknownRun(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t)

	_, err := l.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, l.FinishRun(ctx, "missing", 0, nil, nil), ErrRunNotFound)
}

func TestJudgeRowsAndModeCounts(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t)

	id, err := l.StartRun(ctx, "label", "openai", "m")
	require.NoError(t, err)

	rows := []types.JudgeRecord{
		judgeRow("t1", [types.NumModes]int{1, 0, 0, 0, 0, 1}),
		judgeRow("t2", [types.NumModes]int{1, 0, 0, 0, 0, 0}),
		judgeRow("t3", [types.NumModes]int{0, 0, 0, 0, 0, 0}),
	}
	require.NoError(t, l.RecordJudgeRows(ctx, id, rows))
	// Re-recording replaces rather than duplicates.
	require.NoError(t, l.RecordJudgeRows(ctx, id, rows))

	counts, err := l.ModeFailureCounts(ctx, id)
	require.NoError(t, err)
	assert.Len(t, counts, types.NumModes)
	assert.Equal(t, 2, counts[types.ModeIncompleteAnswer])
	assert.Equal(t, 1, counts[types.ModePoorQualityTips])
	assert.Equal(t, 0, counts[types.ModeSafetyViolations])
}

func TestIterations(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t)

	id, err := l.StartRun(ctx, "loop", "openai", "m")
	require.NoError(t, err)

	require.NoError(t, l.RecordIteration(ctx, id, Iteration{Iteration: 2, TotalRecords: 10, FailedRecords: 1, Corrected: 3, FailureRate: 0.1}))
	require.NoError(t, l.RecordIteration(ctx, id, Iteration{Iteration: 1, TotalRecords: 10, FailedRecords: 4, Corrected: 0, FailureRate: 0.4}))

	its, err := l.Iterations(ctx, id)
	require.NoError(t, err)
	require.Len(t, its, 2)
	assert.Equal(t, 1, its[0].Iteration)
	assert.Equal(t, 4, its[0].FailedRecords)
	assert.Equal(t, 3, its[1].Corrected)
	assert.False(t, its[1].CreatedAt.IsZero())
}

func TestListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i, cmd := range []string{"generate", "validate", "label"} {
		l.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		id, err := l.StartRun(ctx, cmd, "openai", "m")
		require.NoError(t, err)
		ids = append(ids, id)
	}

	runs, err := l.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, "validate", runs[1].Command)

	all, err := l.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	l, err := Open(ctx, path)
	require.NoError(t, err)
	id, err := l.StartRun(ctx, "run", "openai", "m")
	require.NoError(t, err)
	require.NoError(t, l.Close())

	l, err = Open(ctx, path)
	require.NoError(t, err)
	defer l.Close()

	run, err := l.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "run", run.Command)
}
