package engine

import (
	"context"

	"github.com/Veraticus/spice-cascade/internal/model"
)

// Stage is one strategy of the cascade. A nil result without error means the
// stage has nothing confident to say and the next stage runs.
type Stage interface {
	Name() string
	Classify(ctx context.Context, txn model.Transaction) (*model.ClassificationResult, error)
}

// MetricsRecorder persists classification outcomes. Implementations must not
// fail the classification: errors are theirs to log.
type MetricsRecorder interface {
	Record(ctx context.Context, txn model.Transaction, result *model.ClassificationResult)
}
