package analysis

import (
	"bytes"
	"encoding/json"

	"github.com/steveyegge/diyqa/internal/types"
)

// Correlations is the six-by-six Pearson matrix in declaration order.
// It marshals as {mode: {mode: r|null}}.
type Correlations [types.NumModes][types.NumModes]*float64

// Get returns r for (a, b) and whether it is defined.
func (c Correlations) Get(a, b types.FailureMode) (float64, bool) {
	i, j := a.Index(), b.Index()
	if i < 0 || j < 0 || c[i][j] == nil {
		return 0, false
	}
	return *c[i][j], true
}

// MarshalJSON implements json.Marshaler
func (c Correlations) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, a := range types.FailureModes {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeKey(&buf, string(a))
		buf.WriteByte('{')
		for j, b := range types.FailureModes {
			if j > 0 {
				buf.WriteByte(',')
			}
			writeKey(&buf, string(b))
			v, err := json.Marshal(c[i][j])
			if err != nil {
				return nil, err
			}
			buf.Write(v)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (c *Correlations) UnmarshalJSON(data []byte) error {
	var m map[types.FailureMode]map[types.FailureMode]*float64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*c = Correlations{}
	for a, row := range m {
		i := a.Index()
		if i < 0 {
			continue
		}
		for b, v := range row {
			if j := b.Index(); j >= 0 {
				c[i][j] = v
			}
		}
	}
	return nil
}

// PatternList keeps pattern order when serialized as a JSON object.
type PatternList []Pattern

// Histogram marshals as {pattern name: count} in list order.
type Histogram PatternList

// MarshalJSON implements json.Marshaler
func (h Histogram) MarshalJSON() ([]byte, error) {
	return orderedObject(len(h), func(i int) (string, any) { return h[i].Name, len(h[i].Indices) })
}

// MarshalJSON writes {pattern name: [record indices]} in list order.
func (p PatternList) MarshalJSON() ([]byte, error) {
	return orderedObject(len(p), func(i int) (string, any) {
		idx := p[i].Indices
		if idx == nil {
			idx = []int{}
		}
		return p[i].Name, idx
	})
}

func orderedObject(n int, entry func(i int) (string, any)) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i := 0; i < n; i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, v := entry(i)
		writeKey(&buf, k)
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeKey(buf *bytes.Buffer, k string) {
	b, _ := json.Marshal(k)
	buf.Write(b)
	buf.WriteByte(':')
}

// Report is the full analysis written to failure_analysis_report.json.
type Report struct {
	Summary          Summary      `json:"summary"`
	Correlations     Correlations `json:"correlations"`
	FailurePatterns  Histogram    `json:"failure_patterns"`
	DetailedPatterns PatternList  `json:"detailed_patterns"`
	Recommendations  []string     `json:"recommendations"`
}

// Report assembles every analysis.
func (a *Analyzer) Report() Report {
	summary := a.Summary()
	patterns := a.Patterns()
	return Report{
		Summary:          summary,
		Correlations:     a.Correlations(),
		FailurePatterns:  Histogram(patterns),
		DetailedPatterns: PatternList(patterns),
		Recommendations:  Recommend(summary, patterns),
	}
}
