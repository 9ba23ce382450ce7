package humaneval

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"

	"github.com/steveyegge/diyqa/internal/types"
)

// ErrNoOverlap means no trace id carries both a judge row and a human label.
var ErrNoOverlap = errors.New("no samples with both LLM and human labels")

// Agreement is the confusion matrix of one mode, with the human label as truth.
type Agreement struct {
	TruePositives  int     `json:"true_positives"`
	TrueNegatives  int     `json:"true_negatives"`
	FalsePositives int     `json:"false_positives"`
	FalseNegatives int     `json:"false_negatives"`
	Accuracy       float64 `json:"accuracy"`
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`
	F1             float64 `json:"f1"`
}

// Comparison holds one Agreement per mode. It serializes as an object keyed
// by mode name in declaration order.
type Comparison struct {
	Samples int
	Modes   [types.NumModes]Agreement
}

// Get returns the agreement for m.
func (c Comparison) Get(m types.FailureMode) Agreement {
	i := m.Index()
	if i < 0 {
		return Agreement{}
	}
	return c.Modes[i]
}

// MarshalJSON writes {"incomplete_answer": {...}, ...}.
func (c Comparison) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range types.FailureModes {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(string(m))
		val, err := json.Marshal(c.Modes[i])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Compare inner-joins judge rows and human labels on trace id and scores
// each mode. If a trace id is labeled more than once the last label counts.
func Compare(judged []types.JudgeRecord, human []HumanLabel) (*Comparison, error) {
	byID := make(map[string]HumanLabel, len(human))
	for _, h := range human {
		byID[h.TraceID] = h
	}

	var c Comparison
	for _, r := range judged {
		h, ok := byID[r.TraceID]
		if !ok {
			continue
		}
		c.Samples++
		for i := range types.FailureModes {
			a := &c.Modes[i]
			switch llm, truth := r.Scores[i], h.Flags[i]; {
			case llm == 1 && truth == 1:
				a.TruePositives++
			case llm == 0 && truth == 0:
				a.TrueNegatives++
			case llm == 1:
				a.FalsePositives++
			default:
				a.FalseNegatives++
			}
		}
	}
	if c.Samples == 0 {
		return nil, ErrNoOverlap
	}

	for i := range c.Modes {
		c.Modes[i].score()
	}
	return &c, nil
}

func (a *Agreement) score() {
	tp, tn, fp, fn := float64(a.TruePositives), float64(a.TrueNegatives), float64(a.FalsePositives), float64(a.FalseNegatives)
	if total := tp + tn + fp + fn; total > 0 {
		a.Accuracy = (tp + tn) / total
	}
	if tp+fp > 0 {
		a.Precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		a.Recall = tp / (tp + fn)
	}
	if a.Precision+a.Recall > 0 {
		a.F1 = 2 * a.Precision * a.Recall / (a.Precision + a.Recall)
	}
	a.Accuracy = round4(a.Accuracy)
	a.Precision = round4(a.Precision)
	a.Recall = round4(a.Recall)
	a.F1 = round4(a.F1)
}

func round4(x float64) float64 {
	return math.Round(x*1e4) / 1e4
}
