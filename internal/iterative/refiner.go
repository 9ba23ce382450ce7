package iterative

import (
	"context"
	"fmt"

	"github.com/steveyegge/diyqa/internal/correction"
	"github.com/steveyegge/diyqa/internal/types"
	"go.uber.org/zap"
)

// Corrector rewrites failed rows. Satisfied by *correction.Corrector.
type Corrector interface {
	CorrectBatch(ctx context.Context, judged []types.JudgeRecord) ([]types.CorrectionResult, error)
}

// Labeler re-judges records. Satisfied by *judge.Judge.
type Labeler interface {
	LabelBatch(ctx context.Context, records []types.TracedRecord) ([]types.JudgeRecord, error)
}

// PipelineRefiner is the production Refiner: correct, merge, re-label.
type PipelineRefiner struct {
	corrector Corrector
	labeler   Labeler
	logger    *zap.Logger

	// OnPass, when set, sees every pass's corrections and merged records
	// before re-labeling.
	OnPass func(corrections []types.CorrectionResult, merged []types.TracedRecord)
}

// NewPipelineRefiner creates a refiner.
func NewPipelineRefiner(c Corrector, l Labeler, logger *zap.Logger) *PipelineRefiner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PipelineRefiner{corrector: c, labeler: l, logger: logger}
}

// Refine implements Refiner
func (p *PipelineRefiner) Refine(ctx context.Context, ds *Dataset) (*Dataset, int, error) {
	corrections, err := p.corrector.CorrectBatch(ctx, ds.Judged)
	if err != nil {
		return nil, 0, fmt.Errorf("correct: %w", err)
	}

	merged, stats := correction.Merge(ds.Records, ds.Judged, corrections)
	p.logger.Info("merged corrections",
		zap.Int("corrections", len(corrections)),
		zap.Int("replaced", stats.Replaced),
		zap.Int("kept", stats.Kept))

	if p.OnPass != nil {
		p.OnPass(corrections, merged)
	}

	judged, err := p.labeler.LabelBatch(ctx, merged)
	if err != nil {
		return nil, 0, fmt.Errorf("relabel: %w", err)
	}
	return &Dataset{Records: merged, Judged: judged}, stats.Replaced, nil
}
