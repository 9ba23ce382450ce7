package storage

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/steveyegge/diyqa/internal/types"
)

// WriteJudgeCSV writes the labeled rows with a header line.
func WriteJudgeCSV(path string, rows []types.JudgeRecord) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(types.CSVHeader()); err != nil {
		return err
	}
	for _, r := range rows {
		rec, err := r.CSVRow()
		if err != nil {
			return fmt.Errorf("failed to render %s: %w", r.TraceID, err)
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to encode csv: %w", err)
	}
	return writeAtomic(path, buf.Bytes())
}
