package correction

import "github.com/steveyegge/diyqa/internal/types"

// MergeStats counts what a merge did.
type MergeStats struct {
	Total    int `json:"total"`
	Replaced int `json:"replaced"`
	Kept     int `json:"kept"`
}

// Merge substitutes corrected content into valid by trace id. A record is
// replaced only when judged marks it overall_failure = 1 and a valid
// correction with a record exists for it (the last one wins). The output has
// the same length, order and trace ids as valid.
func Merge(valid []types.TracedRecord, judged []types.JudgeRecord, corrections []types.CorrectionResult) ([]types.TracedRecord, MergeStats) {
	failed := make(map[string]bool, len(judged))
	for _, r := range judged {
		if r.Failed() {
			failed[r.TraceID] = true
		}
	}

	fixes := make(map[string]types.QARecord, len(corrections))
	for _, c := range corrections {
		if c.IsValid && c.QAPair != nil {
			fixes[c.TraceID] = *c.QAPair
		}
	}

	out := make([]types.TracedRecord, len(valid))
	stats := MergeStats{Total: len(valid)}
	for i, rec := range valid {
		fix, ok := fixes[rec.TraceID]
		if ok && failed[rec.TraceID] {
			out[i] = types.TracedRecord{QARecord: fix.Clone(), TraceID: rec.TraceID}
			stats.Replaced++
			continue
		}
		out[i] = types.TracedRecord{QARecord: rec.QARecord.Clone(), TraceID: rec.TraceID}
		stats.Kept++
	}
	return out, stats
}
