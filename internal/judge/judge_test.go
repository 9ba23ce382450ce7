package judge

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/steveyegge/diyqa/internal/ai"
	"github.com/steveyegge/diyqa/internal/ai/aitest"
	"github.com/steveyegge/diyqa/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func sampleRecord() types.QARecord {
	return types.QARecord{
		Question:         "How do I replace a furnace air filter?",
		Answer:           "Turn off the furnace, slide out the old filter and insert a new one with the arrow toward the blower.",
		EquipmentProblem: "Clogged furnace filter",
		ToolsRequired:    []string{"replacement filter"},
		Steps:            []string{"Turn off furnace", "Remove old filter", "Insert new filter"},
		SafetyInfo:       "Switch the furnace off before opening the filter slot.",
		Tips:             "Write the install date on the filter frame.",
	}
}

// modeOf identifies which criterion a judge prompt is about.
func modeOf(req ai.Request) types.FailureMode {
	for _, m := range Modes {
		first := strings.SplitN(strings.TrimSpace(m.render(sampleRecord())), "\n", 2)[0]
		if strings.Contains(req.User, first) {
			return m.Mode
		}
	}
	return ""
}

func (m Mode) render(qa types.QARecord) string {
	p, err := m.Prompt(qa)
	if err != nil {
		panic(err)
	}
	return p
}

func byMode(answers map[types.FailureMode]string) *aitest.ScriptedGateway {
	return aitest.New(func(req ai.Request) (string, error) {
		return answers[modeOf(req)], nil
	})
}

func newTestJudge(gw ai.Gateway, opts ...Option) *Judge {
	return New(gw, append([]Option{WithPacer(nil)}, opts...)...)
}

func TestParseScoreBinaryClosure(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"0", 0},
		{" 0\n", 0},
		{"1", 1},
		{"2", 1},
		{"-1", 1},
		{"", 1},
		{"0 or 1", 1},
		{"0.0", 1},
		{"The answer is 0", 1},
		{"1\n0", 1},
		{"zero", 1},
	}
	for _, tt := range tests {
		got := ParseScore(tt.raw)
		assert.Equal(t, tt.want, got, "raw %q", tt.raw)
		assert.Contains(t, []int{0, 1}, got)
	}
}

func TestPromptsAreScoped(t *testing.T) {
	qa := sampleRecord()

	tools, _ := Lookup(types.ModeUnrealisticTools)
	p := tools.render(qa)
	assert.Contains(t, p, `Tools Required: ["replacement filter"]`)
	assert.Contains(t, p, "Equipment Problem: Clogged furnace filter")
	assert.NotContains(t, p, qa.Answer)

	safety, _ := Lookup(types.ModeSafetyViolations)
	p = safety.render(qa)
	assert.Contains(t, p, "Safety Info: "+qa.SafetyInfo)
	assert.NotContains(t, p, qa.Tips)

	for i, m := range Modes {
		assert.Equal(t, types.FailureModes[i], m.Mode, "table order")
		assert.True(t, strings.HasSuffix(m.render(qa), "Respond with only the number.\n"))
	}
}

func TestEvaluateMode(t *testing.T) {
	gw := aitest.Fixed(" 0 ")
	j := newTestJudge(gw)

	score, raw := j.EvaluateMode(context.Background(), sampleRecord(), types.ModeMissingContext, "t1")
	assert.Equal(t, 0, score)
	assert.Equal(t, "0", raw)

	calls := gw.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, SystemPrompt, calls[0].System)
	assert.Equal(t, Temperature, calls[0].Temperature)
	assert.Equal(t, MaxTokens, calls[0].MaxTokens)
	assert.Equal(t, ai.OpJudge, calls[0].Operation)
	assert.Equal(t, "t1", calls[0].TraceID)
}

func TestEvaluateModeAmbiguousIsFailure(t *testing.T) {
	j := newTestJudge(aitest.Fixed("I think it is fine"))
	score, raw := j.EvaluateMode(context.Background(), sampleRecord(), types.ModePoorQualityTips, "t1")
	assert.Equal(t, 1, score)
	assert.Equal(t, "I think it is fine", raw)
}

func TestEvaluateModeGatewayError(t *testing.T) {
	j := newTestJudge(aitest.Failing(errors.New("connection reset")))
	score, raw := j.EvaluateMode(context.Background(), sampleRecord(), types.ModeSafetyViolations, "t1")
	assert.Equal(t, 1, score)
	assert.True(t, strings.HasPrefix(raw, "Error: "))
	assert.Contains(t, raw, "connection reset")
}

func TestEvaluateModeUnknown(t *testing.T) {
	gw := aitest.Fixed("0")
	score, _ := newTestJudge(gw).EvaluateMode(context.Background(), sampleRecord(), "made_up", "t1")
	assert.Equal(t, 1, score)
	assert.Empty(t, gw.Calls())
}

func TestEvaluateRecord(t *testing.T) {
	answers := map[types.FailureMode]string{
		types.ModeIncompleteAnswer:        "0",
		types.ModeSafetyViolations:        "1",
		types.ModeUnrealisticTools:        "0",
		types.ModeOvercomplicatedSolution: "maybe",
		types.ModeMissingContext:          "0",
		types.ModePoorQualityTips:         "0",
	}

	for _, parallel := range []bool{false, true} {
		gw := byMode(answers)
		j := newTestJudge(gw, WithParallelModes(parallel))

		row := j.EvaluateRecord(context.Background(), sampleRecord(), "t1")

		assert.Equal(t, 6, gw.CallsFor(ai.OpJudge), "six independent calls")
		assert.Equal(t, [types.NumModes]int{0, 1, 0, 1, 0, 0}, row.Scores)
		assert.Equal(t, "maybe", row.Responses[3])
		assert.Equal(t, 2, row.FailureCount)
		assert.Equal(t, 1, row.OverallFailure)
		assert.Equal(t, "t1", row.TraceID)
		assert.Equal(t, sampleRecord(), row.QARecord)
	}
}

func TestEvaluateRecordAllPass(t *testing.T) {
	row := newTestJudge(aitest.Fixed("0")).EvaluateRecord(context.Background(), sampleRecord(), "t1")
	assert.Equal(t, 0, row.FailureCount)
	assert.Equal(t, 0, row.OverallFailure)
	assert.False(t, row.Failed())
}

func TestEvaluateRecordGatewayDownStillScoresAllModes(t *testing.T) {
	row := newTestJudge(aitest.Failing(errors.New("down"))).EvaluateRecord(context.Background(), sampleRecord(), "t1")
	assert.Equal(t, 6, row.FailureCount)
	for _, r := range row.Responses {
		assert.True(t, strings.HasPrefix(r, "Error: "))
	}
}

func traced(ids ...string) []types.TracedRecord {
	out := make([]types.TracedRecord, len(ids))
	for i, id := range ids {
		qa := sampleRecord()
		qa.Question = "Question for " + id + "?"
		out[i] = types.TracedRecord{QARecord: qa, TraceID: id}
	}
	return out
}

func TestLabelBatchOrderIndependentOfConcurrency(t *testing.T) {
	// Fail records whose question mentions an odd id.
	gw := aitest.New(func(req ai.Request) (string, error) {
		if strings.Contains(req.User, "for t1?") || strings.Contains(req.User, "for t3?") {
			return "1", nil
		}
		return "0", nil
	})
	recs := traced("t0", "t1", "t2", "t3", "t4", "t5")

	sequential, err := newTestJudge(gw).LabelBatch(context.Background(), recs)
	require.NoError(t, err)

	concurrent, err := newTestJudge(gw, WithConcurrency(4), WithParallelModes(true)).LabelBatch(context.Background(), recs)
	require.NoError(t, err)

	require.Len(t, concurrent, len(recs))
	assert.Equal(t, sequential, concurrent)
	for i, row := range concurrent {
		assert.Equal(t, recs[i].TraceID, row.TraceID)
		assert.Equal(t, row.FailureCount > 0, row.OverallFailure == 1)
	}
	assert.Equal(t, 1, concurrent[1].OverallFailure)
	assert.Equal(t, 0, concurrent[2].OverallFailure)
}

func TestLabelBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	gw := aitest.New(func(ai.Request) (string, error) {
		// cancel after the first record's six calls
		if calls.Add(1) == 6 {
			cancel()
		}
		return "0", nil
	})

	rows, err := newTestJudge(gw).LabelBatch(ctx, traced("t0", "t1", "t2"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, rows, 0, "the record finishing during cancellation is dropped")
}

func TestLabelBatchEmpty(t *testing.T) {
	rows, err := newTestJudge(aitest.Fixed("0")).LabelBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
