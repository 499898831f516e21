// Package indexing feeds confirmed classifications into the vector index.
package indexing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Veraticus/spice-cascade/internal/common"
	"github.com/Veraticus/spice-cascade/internal/model"
	"github.com/Veraticus/spice-cascade/internal/semantic"
	"github.com/Veraticus/spice-cascade/internal/service"
	"golang.org/x/sync/errgroup"
)

// MaxBatchSize is the largest batch IndexBatch accepts.
const MaxBatchSize = 50

const embedConcurrency = 10

// Config configures the indexer.
type Config struct {
	Retry      service.RetryOptions
	Collection string
}

// Indexer embeds classified transactions and upserts them into the index.
type Indexer struct {
	store    service.TransactionStore
	embedder service.Embedder
	index    service.VectorIndex
	cfg      Config
	ready    atomic.Bool
}

// NewIndexer creates an indexer.
func NewIndexer(store service.TransactionStore, embedder service.Embedder, index service.VectorIndex, cfg Config) *Indexer {
	return &Indexer{store: store, embedder: embedder, index: index, cfg: cfg}
}

// BatchResult summarizes an IndexBatch call.
type BatchResult struct {
	Indexed    int           `json:"indexed_count"`
	Skipped    int           `json:"skipped_count"`
	Latency    time.Duration `json:"latency"`
	AvgLatency time.Duration `json:"avg_latency"`
}

// IndexTransaction indexes one completed transaction. Transactions that do
// not exist or are not completed yield common.ErrNotFound.
func (ix *Indexer) IndexTransaction(ctx context.Context, tenant, id string) error {
	txn, err := ix.store.GetClassifiedTransaction(ctx, tenant, id)
	if err != nil {
		return fmt.Errorf("failed to load transaction %s: %w", id, err)
	}
	if txn.Status != model.StatusCompleted {
		return fmt.Errorf("transaction %s is %s, not %s: %w", id, txn.Status, model.StatusCompleted, common.ErrNotFound)
	}

	if err := ix.ensureCollection(ctx); err != nil {
		return err
	}

	vector, err := ix.embed(ctx, *txn)
	if err != nil {
		return err
	}
	if err := ix.upsert(ctx, []model.VectorPoint{point(*txn, vector)}); err != nil {
		return err
	}

	slog.Debug("Indexed transaction", "transaction_id", id, "tenant", tenant)
	return nil
}

// IndexBatch indexes up to MaxBatchSize transactions. Ineligible ids and
// transactions whose embedding fails are counted as skipped.
func (ix *Indexer) IndexBatch(ctx context.Context, tenant string, ids []string) (*BatchResult, error) {
	start := time.Now()
	ids = unique(ids)
	if len(ids) == 0 {
		return &BatchResult{}, nil
	}
	if len(ids) > MaxBatchSize {
		return nil, fmt.Errorf("%w: %w: %d ids, at most %d", common.ErrInvalidInput, common.ErrBatchTooLarge, len(ids), MaxBatchSize)
	}

	txns, err := ix.store.ListClassifiedTransactions(ctx, service.TransactionFilter{Tenant: tenant, IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	result := &BatchResult{Skipped: len(ids) - len(txns)}
	if len(txns) > 0 {
		if err := ix.ensureCollection(ctx); err != nil {
			return nil, err
		}
		points := ix.embedAll(ctx, txns)
		result.Skipped += len(txns) - len(points)
		if len(points) > 0 {
			if err := ix.upsert(ctx, points); err != nil {
				return nil, err
			}
		}
		result.Indexed = len(points)
	}

	result.Latency = time.Since(start)
	if result.Indexed > 0 {
		result.AvgLatency = result.Latency / time.Duration(result.Indexed)
	}

	slog.Info("Indexed transaction batch",
		"tenant", tenant,
		"indexed", result.Indexed,
		"skipped", result.Skipped,
		"latency", result.Latency)
	return result, nil
}

// embedAll embeds transactions in parallel, keeping input order and
// dropping the ones that fail.
func (ix *Indexer) embedAll(ctx context.Context, txns []model.ClassifiedTransaction) []model.VectorPoint {
	vectors := make([][]float32, len(txns))

	var g errgroup.Group
	g.SetLimit(embedConcurrency)
	for i, txn := range txns {
		g.Go(func() error {
			v, err := ix.embed(ctx, txn)
			if err != nil {
				slog.Warn("Skipping transaction, embedding failed",
					"transaction_id", txn.ID,
					"error", err)
				return nil
			}
			vectors[i] = v
			return nil
		})
	}
	_ = g.Wait()

	points := make([]model.VectorPoint, 0, len(txns))
	for i, v := range vectors {
		if v != nil {
			points = append(points, point(txns[i], v))
		}
	}
	return points
}

func (ix *Indexer) embed(ctx context.Context, txn model.ClassifiedTransaction) ([]float32, error) {
	text := semantic.EmbeddingText(txn.Description, txn.Amount)
	var vector []float32
	err := common.WithRetry(ctx, func(ctx context.Context) error {
		v, err := ix.embedder.Embed(ctx, text)
		if err != nil {
			return err
		}
		vector = v
		return nil
	}, ix.retry("embed"))
	if err != nil {
		return nil, fmt.Errorf("failed to embed transaction %s: %w", txn.ID, err)
	}
	return vector, nil
}

func (ix *Indexer) upsert(ctx context.Context, points []model.VectorPoint) error {
	err := common.WithRetry(ctx, func(ctx context.Context) error {
		return ix.index.Upsert(ctx, ix.cfg.Collection, points)
	}, ix.retry("upsert"))
	if err != nil {
		return fmt.Errorf("failed to upsert %d points: %w", len(points), err)
	}
	return nil
}

// ensureCollection creates the collection on first use.
func (ix *Indexer) ensureCollection(ctx context.Context) error {
	if ix.ready.Load() {
		return nil
	}
	exists, err := ix.index.CollectionExists(ctx, ix.cfg.Collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		if err := ix.index.CreateCollection(ctx, ix.cfg.Collection, ix.embedder.Dimensions()); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
	}
	ix.ready.Store(true)
	return nil
}

// recreateCollection drops and recreates the collection.
func (ix *Indexer) recreateCollection(ctx context.Context) error {
	ix.ready.Store(false)
	if err := ix.index.DeleteCollection(ctx, ix.cfg.Collection); err != nil && !errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	if err := ix.index.CreateCollection(ctx, ix.cfg.Collection, ix.embedder.Dimensions()); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	ix.ready.Store(true)
	return nil
}

func (ix *Indexer) retry(op string) service.RetryOptions {
	opts := ix.cfg.Retry
	opts.Name = "indexing." + op
	return opts
}

func point(txn model.ClassifiedTransaction, vector []float32) model.VectorPoint {
	return model.VectorPoint{
		ID:     txn.ID,
		Vector: vector,
		Payload: model.VectorPayload{
			TransactionID:           txn.ID,
			Tenant:                  txn.Tenant,
			Description:             txn.Description,
			PaymentType:             txn.PaymentType,
			Amount:                  txn.Amount,
			Date:                    txn.Date,
			Target:                  txn.Target,
			ClassificationFrequency: txn.ClassificationFrequency,
		},
	}
}

func unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
