// Package storage reads and writes the JSON and CSV files that hand data from
// one pipeline stage to the next.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Stage output files, relative to the output directory.
const (
	GenerationResultsFile = "generation_results.json"
	ValidPairsFile        = "structurally_valid_qa_pairs.json"
	ValidationSummaryFile = "validation_summary.json"
	LabeledDataFile       = "failure_labeled_data.json"
	LabeledDataCSVFile    = "failure_labeled_data.csv"
	PartialLabeledFile    = "failure_labeled_data.partial.json"
	AnalysisReportFile    = "failure_analysis_report.json"
	CorrectedPairsFile    = "corrected_qa_pairs.json"
	MergedPairsFile       = "qa_after_correction.json"
	HumanLabelsFile       = "human_labels.json"
	HumanComparisonFile   = "human_vs_llm_comparison.json"
	CostStateFile         = "cost_state.json"
	LedgerFile            = "ledger.db"
)

// ErrMissingUpstream is returned when a stage's input file does not exist,
// usually because the previous stage has not been run.
var ErrMissingUpstream = errors.New("upstream output not found")

// Exists reports whether path names an existing file.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ReadJSON decodes the file at path into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrMissingUpstream, path)
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// WriteJSON writes v as indented JSON, replacing path atomically.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	return writeAtomic(path, append(data, '\n'))
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
