package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/spice-cascade/internal/common"
	"github.com/Veraticus/spice-cascade/internal/indexing"
	"github.com/hibiken/asynq"
)

// TransactionIndexer is the part of the indexer the worker drives.
type TransactionIndexer interface {
	IndexTransaction(ctx context.Context, tenant, id string) error
}

// Reindexer rebuilds a tenant's collection.
type Reindexer interface {
	ReindexAll(ctx context.Context, tenant string, opts indexing.ReindexOptions) (indexing.ReindexProgress, error)
}

// Handlers process indexing tasks.
type Handlers struct {
	indexer   TransactionIndexer
	reindexer Reindexer
}

// NewHandlers creates task handlers. reindexer may be nil, in which case
// reindex tasks are rejected.
func NewHandlers(indexer TransactionIndexer, reindexer Reindexer) *Handlers {
	return &Handlers{indexer: indexer, reindexer: reindexer}
}

// ProcessIndexTask indexes one transaction. Transactions that vanished or
// are no longer completed are dropped without retry.
func (h *Handlers) ProcessIndexTask(ctx context.Context, task *asynq.Task) error {
	var p IndexPayload
	if err := decode(task, &p); err != nil {
		return err
	}

	err := h.indexer.IndexTransaction(ctx, p.Tenant, p.TransactionID)
	switch {
	case err == nil:
		slog.Info("Indexed transaction", "tenant", p.Tenant, "transaction_id", p.TransactionID)
		return nil
	case errors.Is(err, common.ErrNotFound):
		slog.Warn("Dropping index task", "tenant", p.Tenant, "transaction_id", p.TransactionID, "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	default:
		return err
	}
}

// ProcessReindexTask rebuilds a tenant's collection.
func (h *Handlers) ProcessReindexTask(ctx context.Context, task *asynq.Task) error {
	if h.reindexer == nil {
		return fmt.Errorf("reindexing is not configured: %w", asynq.SkipRetry)
	}
	var p ReindexPayload
	if err := decode(task, &p); err != nil {
		return err
	}
	progress, err := h.reindexer.ReindexAll(ctx, p.Tenant, indexing.ReindexOptions{Limit: p.Limit})
	if err != nil {
		return err
	}
	slog.Info("Reindex task finished", "tenant", p.Tenant, "indexed", progress.Indexed, "skipped", progress.Skipped)
	return nil
}

// Mux routes task types to handlers.
func (h *Handlers) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeIndexTransaction, h.ProcessIndexTask)
	mux.HandleFunc(TypeReindex, h.ProcessReindexTask)
	return mux
}

// WorkerConfig configures the worker server.
type WorkerConfig struct {
	RedisURL    string
	Queue       string
	Concurrency int
}

// NewServer builds the asynq server that consumes the indexing queue.
func NewServer(cfg WorkerConfig) (*asynq.Server, error) {
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if cfg.Queue == "" {
		cfg.Queue = DefaultQueue
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{cfg.Queue: 1},
		Logger:      slogAdapter{slog.Default()},
	}), nil
}

// slogAdapter routes asynq's internal logging through slog.
type slogAdapter struct {
	l *slog.Logger
}

func (a slogAdapter) Debug(args ...any) { a.l.Debug(fmt.Sprint(args...), "component", "asynq") }
func (a slogAdapter) Info(args ...any)  { a.l.Info(fmt.Sprint(args...), "component", "asynq") }
func (a slogAdapter) Warn(args ...any)  { a.l.Warn(fmt.Sprint(args...), "component", "asynq") }
func (a slogAdapter) Error(args ...any) { a.l.Error(fmt.Sprint(args...), "component", "asynq") }
func (a slogAdapter) Fatal(args ...any) {
	a.l.Error(fmt.Sprint(args...), "component", "asynq")
	panic(fmt.Sprint(args...))
}
