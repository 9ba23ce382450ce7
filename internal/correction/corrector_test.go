package correction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/steveyegge/diyqa/internal/ai"
	"github.com/steveyegge/diyqa/internal/ai/aitest"
	"github.com/steveyegge/diyqa/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const fixedJSON = `{
  "question": "How do I stop a running toilet from wasting water?",
  "answer": "Shut off the supply valve, flush to drain the tank, then replace the worn flapper and adjust the chain.",
  "equipment_problem": "Running toilet flapper",
  "tools_required": ["replacement flapper", "towel"],
  "steps": ["Shut off the water", "Flush to empty the tank", "Swap the flapper", "Restore water and test"],
  "safety_info": "Turn off the supply valve before working inside the tank.",
  "tips": "Take the old flapper to the store to match the size."
}`

func judged(id string, qa types.QARecord, flags ...int) types.JudgeRecord {
	var scores [types.NumModes]int
	copy(scores[:], flags)
	return types.NewJudgeRecord(id, qa, scores, [types.NumModes]string{})
}

func record(question string) types.QARecord {
	return types.QARecord{
		Question:         question,
		Answer:           "Original answer text for this record.",
		EquipmentProblem: "Leaky faucet",
		ToolsRequired:    []string{"wrench"},
		Steps:            []string{"step one", "step two"},
		SafetyInfo:       "Turn off the water first.",
		Tips:             "Keep parts in order.",
	}
}

func newTestCorrector(gw ai.Gateway) *Corrector {
	return New(gw, WithPacer(nil))
}

func TestPromptListsOnlyFailedModes(t *testing.T) {
	r := judged("t1", record("How do I fix a dripping faucet?"), 0, 1, 0, 0, 0, 1)
	p := Prompt(r)

	assert.Contains(t, p, "FAILURES TO FIX")
	assert.Contains(t, p, "- **safety_violations**: Judge expects: \"")
	assert.Contains(t, p, FixInstructions[types.ModeSafetyViolations])
	assert.Contains(t, p, FixInstructions[types.ModePoorQualityTips])
	assert.NotContains(t, p, FixInstructions[types.ModeIncompleteAnswer])
	assert.Contains(t, p, "Question: How do I fix a dripping faucet?")
	assert.Contains(t, p, `Tools Required: ["wrench"]`)
	assert.Contains(t, p, `"equipment_problem"`)
	assert.NotContains(t, p, FallbackFix)
}

func TestPromptFallbackWithoutFlags(t *testing.T) {
	r := judged("t1", record("How do I fix a dripping faucet?"))
	lines := FixLines(r)
	assert.Equal(t, []string{FallbackFix}, lines)
}

func TestEveryModeHasInstruction(t *testing.T) {
	for _, m := range types.FailureModes {
		assert.NotEmpty(t, FixInstructions[m], m)
	}
}

func TestCorrectOneValid(t *testing.T) {
	gw := &aitest.MockGateway{}
	gw.On("Complete", mock.Anything, mock.MatchedBy(func(req ai.Request) bool {
		return req.Operation == ai.OpCorrection &&
			req.Temperature == Temperature &&
			req.MaxTokens == MaxTokens &&
			req.System == SystemPrompt &&
			req.TraceID == "t2"
	})).Return(&ai.Response{Text: "  " + fixedJSON + "\n"}, nil).Once()

	res := newTestCorrector(gw).CorrectOne(context.Background(), judged("t2", record("Q2 original question"), 1))

	gw.AssertExpectations(t)
	assert.Equal(t, "t2", res.TraceID)
	assert.True(t, res.IsValid)
	assert.Empty(t, res.ValidationErrors)
	require.NotNil(t, res.QAPair)
	assert.Equal(t, "Running toilet flapper", res.QAPair.EquipmentProblem)
	assert.Equal(t, strings.TrimSpace(fixedJSON), res.RawResponse)
	assert.NotEmpty(t, res.Timestamp)
}

func TestCorrectOneGatewayError(t *testing.T) {
	gw := aitest.Failing(errors.New("boom"))
	res := newTestCorrector(gw).CorrectOne(context.Background(), judged("t9", record("Q9 original question"), 1))

	assert.False(t, res.IsValid)
	assert.Nil(t, res.QAPair)
	require.Len(t, res.ValidationErrors, 1)
	assert.True(t, strings.HasPrefix(res.ValidationErrors[0], "Correction error: "))
	assert.Contains(t, res.ValidationErrors[0], "boom")
}

func TestCorrectOneInvalidOutput(t *testing.T) {
	res := newTestCorrector(aitest.Fixed("not json")).CorrectOne(context.Background(), judged("t3", record("Q3 original question"), 1))

	assert.False(t, res.IsValid)
	assert.Equal(t, "not json", res.RawResponse)
	assert.NotEmpty(t, res.ValidationErrors)
}

func TestCorrectOneRejectsWrappedOutput(t *testing.T) {
	for _, raw := range []string{
		"[" + fixedJSON + "]",
		"Here is the corrected pair: " + fixedJSON,
	} {
		res := newTestCorrector(aitest.Fixed(raw)).CorrectOne(context.Background(), judged("t5", record("Q5 original question"), 1))
		assert.False(t, res.IsValid, raw)
		assert.Nil(t, res.QAPair, raw)
		require.Len(t, res.ValidationErrors, 1, raw)
		assert.True(t, strings.HasPrefix(res.ValidationErrors[0], "MalformedJSON: "), res.ValidationErrors[0])
	}
}

func TestCorrectBatchSkipsPassingRows(t *testing.T) {
	gw := aitest.Fixed(fixedJSON)
	rows := []types.JudgeRecord{
		judged("t1", record("Q1 original question")),
		judged("t2", record("Q2 original question"), 0, 0, 1),
		judged("t3", record("Q3 original question")),
		judged("t4", record("Q4 original question"), 1, 1),
	}

	results, err := newTestCorrector(gw).CorrectBatch(context.Background(), rows)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "t2", results[0].TraceID)
	assert.Equal(t, "t4", results[1].TraceID)
	assert.Equal(t, 2, gw.CallsFor(ai.OpCorrection))
}

func TestCorrectBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(aitest.Fixed(fixedJSON), WithPacer(ai.NewPacer(ai.DefaultPacing)))
	results, err := c.CorrectBatch(ctx, []types.JudgeRecord{judged("t1", record("Q1 original question"), 1)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}
