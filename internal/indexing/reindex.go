package indexing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/spice-cascade/internal/common"
	"github.com/Veraticus/spice-cascade/internal/service"
)

// Reindex defaults.
const (
	DefaultReindexLimit     = 5000
	DefaultReindexBatchSize = 10
)

// Reindex states.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ReindexProgress tracks a full reindex.
type ReindexProgress struct {
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Status      string     `json:"status"`
	Phase       string     `json:"phase"`
	Errors      []string   `json:"errors,omitempty"`
	Processed   int        `json:"processed"`
	Indexed     int        `json:"indexed"`
	Skipped     int        `json:"skipped"`
	Batches     int        `json:"batches"`
	Limit       int        `json:"limit"`
}

// ReindexOptions tunes ReindexAll. Zero values use the defaults.
type ReindexOptions struct {
	// OnBatch, when set, receives a progress snapshot after every batch.
	OnBatch   func(ReindexProgress)
	Limit     int
	BatchSize int
}

// Reindexer rebuilds the vector collection from the relational store.
type Reindexer struct {
	indexer  *Indexer
	progress ReindexProgress
	mu       sync.RWMutex
}

// NewReindexer creates a reindexer.
func NewReindexer(indexer *Indexer) *Reindexer {
	return &Reindexer{indexer: indexer, progress: ReindexProgress{Status: StatusPending}}
}

// Progress returns a snapshot of the current or last run.
func (r *Reindexer) Progress() ReindexProgress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p := r.progress
	p.Errors = append([]string(nil), r.progress.Errors...)
	return p
}

// ReindexAll drops and recreates the collection, then indexes up to
// opts.Limit completed transactions of tenant in batches.
func (r *Reindexer) ReindexAll(ctx context.Context, tenant string, opts ReindexOptions) (ReindexProgress, error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultReindexLimit
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultReindexBatchSize
	}

	r.mu.Lock()
	r.progress = ReindexProgress{
		Status:    StatusInProgress,
		Phase:     "recreate_collection",
		StartedAt: time.Now(),
		Limit:     opts.Limit,
	}
	r.mu.Unlock()

	slog.Info("Starting reindex", "tenant", tenant, "limit", opts.Limit, "batch_size", opts.BatchSize)

	if err := r.indexer.recreateCollection(ctx); err != nil {
		return r.fail(err)
	}

	r.setPhase("indexing")
	for offset := 0; offset < opts.Limit; offset += opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return r.fail(err)
		}

		size := min(opts.BatchSize, opts.Limit-offset)
		txns, err := r.indexer.store.ListClassifiedTransactions(ctx, service.TransactionFilter{
			Tenant: tenant,
			Limit:  size,
			Offset: offset,
		})
		if err != nil {
			return r.fail(fmt.Errorf("failed to load page at offset %d: %w", offset, err))
		}
		if len(txns) == 0 {
			break
		}

		points := r.indexer.embedAll(ctx, txns)
		if len(points) > 0 {
			if err := r.indexer.upsert(ctx, points); err != nil {
				return r.fail(err)
			}
		}

		r.mu.Lock()
		r.progress.Batches++
		r.progress.Processed += len(txns)
		r.progress.Indexed += len(points)
		r.progress.Skipped += len(txns) - len(points)
		snapshot := r.progress
		r.mu.Unlock()

		slog.Info("Reindex progress",
			"tenant", tenant,
			"batch", snapshot.Batches,
			"processed", snapshot.Processed,
			"indexed", snapshot.Indexed)
		if opts.OnBatch != nil {
			opts.OnBatch(snapshot)
		}

		if len(txns) < size {
			break
		}
	}

	r.mu.Lock()
	now := time.Now()
	r.progress.Status = StatusCompleted
	r.progress.Phase = "done"
	r.progress.CompletedAt = &now
	r.mu.Unlock()

	final := r.Progress()
	slog.Info("Reindex completed",
		"tenant", tenant,
		"processed", final.Processed,
		"indexed", final.Indexed,
		"skipped", final.Skipped,
		"duration", now.Sub(final.StartedAt))
	return final, nil
}

func (r *Reindexer) setPhase(phase string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress.Phase = phase
}

func (r *Reindexer) fail(err error) (ReindexProgress, error) {
	r.mu.Lock()
	now := time.Now()
	r.progress.Status = StatusFailed
	r.progress.CompletedAt = &now
	r.progress.Errors = append(r.progress.Errors, err.Error())
	phase := r.progress.Phase
	r.mu.Unlock()

	common.LogError(context.Background(), err, "Reindex failed", common.Fields{"phase": phase})
	return r.Progress(), err
}
