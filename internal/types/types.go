package types

import (
	"fmt"
	"strings"
	"time"
)

// QARecord is a single DIY repair question/answer pair.
// Records are values: corrections build a new record, they never edit one in place.
type QARecord struct {
	Question         string   `json:"question" validate:"required,min=10,max=500"`
	Answer           string   `json:"answer" validate:"required,min=20,max=2000"`
	EquipmentProblem string   `json:"equipment_problem" validate:"required,min=5,max=200"`
	ToolsRequired    []string `json:"tools_required" validate:"min=1,max=15,dive,required"`
	Steps            []string `json:"steps" validate:"min=2,max=20,dive,required"`
	SafetyInfo       string   `json:"safety_info" validate:"required,min=10,max=500"`
	Tips             string   `json:"tips" validate:"required,min=10,max=500"`
}

// Clone returns a deep copy so list fields are never shared between records.
func (q QARecord) Clone() QARecord {
	out := q
	out.ToolsRequired = append([]string(nil), q.ToolsRequired...)
	out.Steps = append([]string(nil), q.Steps...)
	return out
}

// Trimmed returns a copy with every string and list item trimmed.
func (q QARecord) Trimmed() QARecord {
	out := QARecord{
		Question:         strings.TrimSpace(q.Question),
		Answer:           strings.TrimSpace(q.Answer),
		EquipmentProblem: strings.TrimSpace(q.EquipmentProblem),
		SafetyInfo:       strings.TrimSpace(q.SafetyInfo),
		Tips:             strings.TrimSpace(q.Tips),
	}
	out.ToolsRequired = trimAll(q.ToolsRequired)
	out.Steps = trimAll(q.Steps)
	return out
}

func trimAll(items []string) []string {
	if items == nil {
		return nil
	}
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = strings.TrimSpace(s)
	}
	return out
}

// TracedRecord is a QARecord tagged with the trace_id assigned at generation.
// It serializes flat: the record fields plus trace_id.
type TracedRecord struct {
	QARecord
	TraceID string `json:"trace_id"`
}

// GenerationResult wraps one generation attempt.
type GenerationResult struct {
	TraceID             string    `json:"trace_id"`
	QAPair              *QARecord `json:"qa_pair"`
	RawResponse         string    `json:"raw_response"`
	IsValid             bool      `json:"is_valid"`
	ValidationErrors    []string  `json:"validation_errors"`
	GenerationTimestamp string    `json:"generation_timestamp"`
}

// CorrectionResult is the outcome of one correction attempt for a failed record.
type CorrectionResult struct {
	TraceID          string    `json:"trace_id"`
	QAPair           *QARecord `json:"qa_pair"`
	RawResponse      string    `json:"raw_response"`
	IsValid          bool      `json:"is_valid"`
	ValidationErrors []string  `json:"validation_errors"`
	Timestamp        string    `json:"generation_timestamp"`
}

// ValidationSummary aggregates structural validation over a batch.
type ValidationSummary struct {
	TotalGenerated int      `json:"total_generated"`
	ValidSamples   int      `json:"valid_samples"`
	InvalidSamples int      `json:"invalid_samples"`
	ValidationRate float64  `json:"validation_rate"`
	CommonErrors   []string `json:"common_errors"`
}

// Timestamp formats t the way every stage stamps its results.
func Timestamp(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

// FailureMode is one of the six fixed judging criteria.
type FailureMode string

const (
	ModeIncompleteAnswer        FailureMode = "incomplete_answer"
	ModeSafetyViolations        FailureMode = "safety_violations"
	ModeUnrealisticTools        FailureMode = "unrealistic_tools"
	ModeOvercomplicatedSolution FailureMode = "overcomplicated_solution"
	ModeMissingContext          FailureMode = "missing_context"
	ModePoorQualityTips         FailureMode = "poor_quality_tips"
)

// NumModes is the size of the taxonomy.
const NumModes = 6

// FailureModes lists the taxonomy in declaration order. Every per-mode array
// in this module is indexed by position in this list.
var FailureModes = [NumModes]FailureMode{
	ModeIncompleteAnswer,
	ModeSafetyViolations,
	ModeUnrealisticTools,
	ModeOvercomplicatedSolution,
	ModeMissingContext,
	ModePoorQualityTips,
}

var shortCodes = map[FailureMode]string{
	ModeIncompleteAnswer:        "ia",
	ModeSafetyViolations:        "sv",
	ModeUnrealisticTools:        "ut",
	ModeOvercomplicatedSolution: "os",
	ModeMissingContext:          "mc",
	ModePoorQualityTips:         "pt",
}

// IsValid checks if the mode is part of the taxonomy
func (m FailureMode) IsValid() bool {
	return m.Index() >= 0
}

// Index returns the declaration position of m, or -1.
func (m FailureMode) Index() int {
	for i, mode := range FailureModes {
		if mode == m {
			return i
		}
	}
	return -1
}

// ShortCode is the two-letter code used by the labeling prompt.
func (m FailureMode) ShortCode() string {
	return shortCodes[m]
}

// Title renders "safety_violations" as "Safety Violations".
func (m FailureMode) Title() string {
	words := strings.Split(string(m), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// Label renders "safety_violations" as "safety violations".
func (m FailureMode) Label() string {
	return strings.ReplaceAll(string(m), "_", " ")
}

// ModeFromShortCode resolves a two-letter code.
func ModeFromShortCode(code string) (FailureMode, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, m := range FailureModes {
		if shortCodes[m] == code {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown failure mode code: %q", code)
}
