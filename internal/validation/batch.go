package validation

import (
	"sort"

	"github.com/steveyegge/diyqa/internal/types"
)

// TopErrors is the number of distinct errors kept in a summary.
const TopErrors = 5

// ValidateBatch re-checks every generation result and returns copies of the
// ones that are still valid, plus the batch summary. A result is never
// upgraded: invalid inputs stay invalid with their original errors.
func ValidateBatch(results []types.GenerationResult) ([]types.GenerationResult, types.ValidationSummary) {
	var valid []types.GenerationResult
	tally := newErrorTally()

	for _, r := range results {
		out, ok := revalidate(r)
		if ok {
			valid = append(valid, out)
			continue
		}
		tally.add(out.ValidationErrors...)
	}

	return valid, Summarize(len(results), len(valid), tally.top(TopErrors))
}

func revalidate(r types.GenerationResult) (types.GenerationResult, bool) {
	out := r
	out.ValidationErrors = append([]string(nil), r.ValidationErrors...)

	switch {
	case !r.IsValid:
		return out, false
	case r.QAPair == nil:
		out.IsValid = false
		out.ValidationErrors = append(out.ValidationErrors, NoRecordError)
		return out, false
	}

	qa := r.QAPair.Trimmed()
	if errs := Check(qa); len(errs) > 0 {
		out.IsValid = false
		out.QAPair = nil
		out.ValidationErrors = append(out.ValidationErrors, errs...)
		return out, false
	}
	out.QAPair = &qa
	return out, true
}

// Summarize builds the summary. The rate is a percentage, 0 for an empty batch.
func Summarize(total, valid int, commonErrors []string) types.ValidationSummary {
	s := types.ValidationSummary{
		TotalGenerated: total,
		ValidSamples:   valid,
		InvalidSamples: total - valid,
		CommonErrors:   commonErrors,
	}
	if s.CommonErrors == nil {
		s.CommonErrors = []string{}
	}
	if total > 0 {
		s.ValidationRate = float64(valid) / float64(total) * 100
	}
	return s
}

// ValidRecords keeps the valid results as trace-tagged records.
func ValidRecords(results []types.GenerationResult) []types.TracedRecord {
	out := make([]types.TracedRecord, 0, len(results))
	for _, r := range results {
		if r.IsValid && r.QAPair != nil {
			out = append(out, types.TracedRecord{QARecord: r.QAPair.Clone(), TraceID: r.TraceID})
		}
	}
	return out
}

// errorTally counts distinct error strings, remembering first-seen order.
type errorTally struct {
	counts map[string]int
	order  []string
}

func newErrorTally() *errorTally {
	return &errorTally{counts: make(map[string]int)}
}

func (t *errorTally) add(errs ...string) {
	for _, e := range errs {
		if _, seen := t.counts[e]; !seen {
			t.order = append(t.order, e)
		}
		t.counts[e]++
	}
}

func (t *errorTally) top(n int) []string {
	ranked := append([]string(nil), t.order...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return t.counts[ranked[i]] > t.counts[ranked[j]]
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
