// Package humaneval collects human failure-mode labels and measures how well
// the LLM judge agrees with them.
package humaneval

import (
	"encoding/json"
	"strings"

	"github.com/steveyegge/diyqa/internal/types"
)

// HumanLabel is one reviewer verdict. It serializes flat, in the same column
// order as the judge output.
type HumanLabel struct {
	TraceID        string
	Flags          [types.NumModes]int
	Comment        *string
	OverallFailure int
}

// NewHumanLabel builds a label from the modes the reviewer flagged. A blank
// comment is stored as null.
func NewHumanLabel(traceID string, failed []types.FailureMode, comment string) HumanLabel {
	l := HumanLabel{TraceID: traceID}
	for _, m := range failed {
		if i := m.Index(); i >= 0 {
			l.Flags[i] = 1
		}
	}
	if c := strings.TrimSpace(comment); c != "" {
		l.Comment = &c
	}
	l.derive()
	return l
}

func (l *HumanLabel) derive() {
	l.OverallFailure = 0
	for i, f := range l.Flags {
		l.Flags[i] = types.NormalizeScore(f)
		if l.Flags[i] == 1 {
			l.OverallFailure = 1
		}
	}
}

// FailedModes lists the flagged modes in declaration order.
func (l HumanLabel) FailedModes() []types.FailureMode {
	var out []types.FailureMode
	for i, m := range types.FailureModes {
		if l.Flags[i] == 1 {
			out = append(out, m)
		}
	}
	return out
}

type labelRow struct {
	TraceID                 string  `json:"trace_id"`
	IncompleteAnswer        int     `json:"incomplete_answer"`
	SafetyViolations        int     `json:"safety_violations"`
	UnrealisticTools        int     `json:"unrealistic_tools"`
	OvercomplicatedSolution int     `json:"overcomplicated_solution"`
	MissingContext          int     `json:"missing_context"`
	PoorQualityTips         int     `json:"poor_quality_tips"`
	Comment                 *string `json:"comment"`
	OverallFailure          int     `json:"overall_failure"`
}

// MarshalJSON writes the flat form.
func (l HumanLabel) MarshalJSON() ([]byte, error) {
	f := l.Flags
	return json.Marshal(labelRow{
		TraceID:                 l.TraceID,
		IncompleteAnswer:        f[0],
		SafetyViolations:        f[1],
		UnrealisticTools:        f[2],
		OvercomplicatedSolution: f[3],
		MissingContext:          f[4],
		PoorQualityTips:         f[5],
		Comment:                 l.Comment,
		OverallFailure:          l.OverallFailure,
	})
}

// UnmarshalJSON reads the flat form. overall_failure is derived again from
// the flags.
func (l *HumanLabel) UnmarshalJSON(data []byte) error {
	var w labelRow
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*l = HumanLabel{
		TraceID: w.TraceID,
		Flags: [types.NumModes]int{
			w.IncompleteAnswer, w.SafetyViolations, w.UnrealisticTools,
			w.OvercomplicatedSolution, w.MissingContext, w.PoorQualityTips,
		},
		Comment: w.Comment,
	}
	l.derive()
	return nil
}

// ParseCodes reads "ia,sv" or "ia sv" into modes. Unknown codes are returned
// separately and otherwise ignored. Blank input means no failures.
func ParseCodes(raw string) (modes []types.FailureMode, unknown []string) {
	seen := make(map[types.FailureMode]bool)
	for _, part := range strings.Fields(strings.ReplaceAll(raw, ",", " ")) {
		m, err := types.ModeFromShortCode(part)
		if err != nil {
			unknown = append(unknown, part)
			continue
		}
		if !seen[m] {
			seen[m] = true
			modes = append(modes, m)
		}
	}
	return modes, unknown
}
