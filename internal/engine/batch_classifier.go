package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/Veraticus/spice-cascade/internal/model"
	"golang.org/x/sync/errgroup"
)

// BatchSummary contains statistics about a batch run.
type BatchSummary struct {
	Total          int
	AutoClassified int
	NeedsReview    int
	Failed         int
	ProcessingTime time.Duration
}

// ClassifyBatch classifies transactions with at most BatchWindow running at
// once. Results are returned in input order.
func (e *ClassificationEngine) ClassifyBatch(ctx context.Context, txns []model.Transaction) ([]*model.ClassificationResult, BatchSummary) {
	start := time.Now()
	results := make([]*model.ClassificationResult, len(txns))

	var g errgroup.Group
	g.SetLimit(e.cfg.BatchWindow)
	for i, txn := range txns {
		g.Go(func() error {
			results[i] = e.Classify(ctx, txn)
			return nil
		})
	}
	_ = g.Wait() // Classify never returns errors

	summary := BatchSummary{Total: len(txns), ProcessingTime: time.Since(start)}
	for _, r := range results {
		switch {
		case !r.Success:
			summary.Failed++
		case r.NeedsReview:
			summary.NeedsReview++
		default:
			summary.AutoClassified++
		}
	}

	slog.Info("Batch classification complete",
		"total", summary.Total,
		"auto_classified", summary.AutoClassified,
		"needs_review", summary.NeedsReview,
		"failed", summary.Failed,
		"duration", summary.ProcessingTime)

	return results, summary
}
