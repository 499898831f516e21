// Package metrics records classification outcomes and serves the analytics
// built from them.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/spice-cascade/internal/model"
	"github.com/Veraticus/spice-cascade/internal/service"
	"github.com/google/uuid"
)

// DefaultWindowDays is the analytics window when none is given.
const DefaultWindowDays = 30

// Recorder persists one metric per classification. Recording is best
// effort: a failing store is logged and never reaches the caller.
type Recorder struct {
	store service.MetricsStore
	now   func() time.Time
}

// NewRecorder creates a recorder over store.
func NewRecorder(store service.MetricsStore) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// Record stores the outcome of classifying txn.
func (r *Recorder) Record(ctx context.Context, txn model.Transaction, result *model.ClassificationResult) {
	if result == nil {
		return
	}
	metric := &model.ClassificationMetric{
		ID:            uuid.NewString(),
		CreatedAt:     r.now(),
		Tenant:        txn.Tenant,
		TransactionID: txn.ID,
		Method:        result.Method,
		Confidence:    result.Confidence,
		NeedsReview:   result.NeedsReview,
		Latency:       result.Latency,
		Debug:         result.Debug,
	}
	if err := r.store.SaveMetric(ctx, metric); err != nil {
		slog.Warn("Failed to record classification metric",
			"transaction_id", txn.ID,
			"method", result.Method,
			"error", err)
	}
}

// Analytics returns the aggregates for the trailing window of days.
func (r *Recorder) Analytics(ctx context.Context, tenant string, days int) (*model.Analytics, error) {
	if days <= 0 {
		days = DefaultWindowDays
	}
	since := r.now().AddDate(0, 0, -days)
	a, err := r.store.GetAnalytics(ctx, tenant, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load analytics: %w", err)
	}
	a.WindowDays = days
	return a, nil
}
