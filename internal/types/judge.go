package types

import (
	"encoding/json"
	"strconv"
)

// JudgeRecord is one labeled row: the record fields, one binary flag and raw
// judge text per failure mode, and the derived aggregate columns.
type JudgeRecord struct {
	TraceID string
	QARecord
	Scores         [NumModes]int
	Responses      [NumModes]string
	OverallFailure int
	FailureCount   int
}

// NewJudgeRecord builds a row and derives the aggregates. Any score outside
// {0,1} is stored as 1.
func NewJudgeRecord(traceID string, qa QARecord, scores [NumModes]int, responses [NumModes]string) JudgeRecord {
	r := JudgeRecord{
		TraceID:   traceID,
		QARecord:  qa.Clone(),
		Responses: responses,
	}
	for i, s := range scores {
		r.Scores[i] = NormalizeScore(s)
		r.FailureCount += r.Scores[i]
	}
	if r.FailureCount > 0 {
		r.OverallFailure = 1
	}
	return r
}

// NormalizeScore maps anything but an exact 0 to 1.
func NormalizeScore(s int) int {
	if s == 0 {
		return 0
	}
	return 1
}

// Score returns the flag for m.
func (r JudgeRecord) Score(m FailureMode) int {
	i := m.Index()
	if i < 0 {
		return 0
	}
	return r.Scores[i]
}

// Failed reports whether any mode flagged the record.
func (r JudgeRecord) Failed() bool {
	return r.OverallFailure == 1
}

// FailedModes lists the flagged modes in declaration order.
func (r JudgeRecord) FailedModes() []FailureMode {
	var out []FailureMode
	for i, m := range FailureModes {
		if r.Scores[i] == 1 {
			out = append(out, m)
		}
	}
	return out
}

// Traced drops the judge columns.
func (r JudgeRecord) Traced() TracedRecord {
	return TracedRecord{QARecord: r.QARecord.Clone(), TraceID: r.TraceID}
}

// judgeRow fixes the flat column order used for JSON and CSV.
type judgeRow struct {
	TraceID                         string   `json:"trace_id"`
	Question                        string   `json:"question"`
	Answer                          string   `json:"answer"`
	EquipmentProblem                string   `json:"equipment_problem"`
	ToolsRequired                   []string `json:"tools_required"`
	Steps                           []string `json:"steps"`
	SafetyInfo                      string   `json:"safety_info"`
	Tips                            string   `json:"tips"`
	IncompleteAnswer                int      `json:"incomplete_answer"`
	IncompleteAnswerResponse        string   `json:"incomplete_answer_response"`
	SafetyViolations                int      `json:"safety_violations"`
	SafetyViolationsResponse        string   `json:"safety_violations_response"`
	UnrealisticTools                int      `json:"unrealistic_tools"`
	UnrealisticToolsResponse        string   `json:"unrealistic_tools_response"`
	OvercomplicatedSolution         int      `json:"overcomplicated_solution"`
	OvercomplicatedSolutionResponse string   `json:"overcomplicated_solution_response"`
	MissingContext                  int      `json:"missing_context"`
	MissingContextResponse          string   `json:"missing_context_response"`
	PoorQualityTips                 int      `json:"poor_quality_tips"`
	PoorQualityTipsResponse         string   `json:"poor_quality_tips_response"`
	OverallFailure                  int      `json:"overall_failure"`
	FailureCount                    int      `json:"failure_count"`
}

func (r JudgeRecord) row() judgeRow {
	return judgeRow{
		TraceID:                         r.TraceID,
		Question:                        r.Question,
		Answer:                          r.Answer,
		EquipmentProblem:                r.EquipmentProblem,
		ToolsRequired:                   nonNil(r.ToolsRequired),
		Steps:                           nonNil(r.Steps),
		SafetyInfo:                      r.SafetyInfo,
		Tips:                            r.Tips,
		IncompleteAnswer:                r.Scores[0],
		IncompleteAnswerResponse:        r.Responses[0],
		SafetyViolations:                r.Scores[1],
		SafetyViolationsResponse:        r.Responses[1],
		UnrealisticTools:                r.Scores[2],
		UnrealisticToolsResponse:        r.Responses[2],
		OvercomplicatedSolution:         r.Scores[3],
		OvercomplicatedSolutionResponse: r.Responses[3],
		MissingContext:                  r.Scores[4],
		MissingContextResponse:          r.Responses[4],
		PoorQualityTips:                 r.Scores[5],
		PoorQualityTipsResponse:         r.Responses[5],
		OverallFailure:                  r.OverallFailure,
		FailureCount:                    r.FailureCount,
	}
}

func (w judgeRow) record() JudgeRecord {
	qa := QARecord{
		Question:         w.Question,
		Answer:           w.Answer,
		EquipmentProblem: w.EquipmentProblem,
		ToolsRequired:    w.ToolsRequired,
		Steps:            w.Steps,
		SafetyInfo:       w.SafetyInfo,
		Tips:             w.Tips,
	}
	scores := [NumModes]int{w.IncompleteAnswer, w.SafetyViolations, w.UnrealisticTools,
		w.OvercomplicatedSolution, w.MissingContext, w.PoorQualityTips}
	responses := [NumModes]string{w.IncompleteAnswerResponse, w.SafetyViolationsResponse, w.UnrealisticToolsResponse,
		w.OvercomplicatedSolutionResponse, w.MissingContextResponse, w.PoorQualityTipsResponse}
	return NewJudgeRecord(w.TraceID, qa, scores, responses)
}

// MarshalJSON writes the flat row.
func (r JudgeRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.row())
}

// UnmarshalJSON reads a flat row. The aggregate columns are re-derived from
// the mode flags rather than trusted.
func (r *JudgeRecord) UnmarshalJSON(data []byte) error {
	var w judgeRow
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = w.record()
	return nil
}

// CSVHeader is the column list for tabular export.
func CSVHeader() []string {
	cols := []string{"trace_id", "question", "answer", "equipment_problem", "tools_required", "steps", "safety_info", "tips"}
	for _, m := range FailureModes {
		cols = append(cols, string(m), string(m)+"_response")
	}
	return append(cols, "overall_failure", "failure_count")
}

// CSVRow renders r in CSVHeader order. List columns are JSON arrays.
func (r JudgeRecord) CSVRow() ([]string, error) {
	tools, err := json.Marshal(nonNil(r.ToolsRequired))
	if err != nil {
		return nil, err
	}
	steps, err := json.Marshal(nonNil(r.Steps))
	if err != nil {
		return nil, err
	}
	row := []string{r.TraceID, r.Question, r.Answer, r.EquipmentProblem, string(tools), string(steps), r.SafetyInfo, r.Tips}
	for i := range FailureModes {
		row = append(row, strconv.Itoa(r.Scores[i]), r.Responses[i])
	}
	return append(row, strconv.Itoa(r.OverallFailure), strconv.Itoa(r.FailureCount)), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
