package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/spice-cascade/internal/common"
	"github.com/Veraticus/spice-cascade/internal/config"
	"github.com/Veraticus/spice-cascade/internal/embedding"
	"github.com/Veraticus/spice-cascade/internal/engine"
	"github.com/Veraticus/spice-cascade/internal/indexing"
	"github.com/Veraticus/spice-cascade/internal/jobs"
	"github.com/Veraticus/spice-cascade/internal/metrics"
	"github.com/Veraticus/spice-cascade/internal/model"
	"github.com/Veraticus/spice-cascade/internal/service"
	"github.com/Veraticus/spice-cascade/internal/storage"
	"github.com/Veraticus/spice-cascade/internal/vectorindex"
	"github.com/spf13/viper"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, common.NewUserError("configuration is invalid", err)
	}
	return cfg, nil
}

// initStorage opens the database and brings its schema up to date.
func initStorage(ctx context.Context, cfg *config.Config) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// app bundles everything the commands share. indexer and reindexer are nil
// when either the embedding model or the vector index is not configured.
type app struct {
	cfg       *config.Config
	store     *storage.SQLiteStorage
	engine    *engine.ClassificationEngine
	recorder  *metrics.Recorder
	indexer   *indexing.Indexer
	reindexer *indexing.Reindexer
	deps      engine.Dependencies
	engineCfg engine.Config
}

func initApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	store, err := initStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	embedder, index, err := initSemantic(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a := &app{cfg: cfg, store: store, recorder: metrics.NewRecorder(store)}

	engineCfg := engine.DefaultConfig(cfg.VectorIndex.Collection, cfg.Classification.AttemptTimeout)
	engineCfg.BatchWindow = cfg.Classification.BatchWindow
	deps := engine.Dependencies{Store: store, Metrics: a.recorder}
	if embedder != nil && index != nil {
		deps.Embedder = embedder
		deps.Index = index
		a.indexer = indexing.NewIndexer(store, embedder, index, indexing.Config{
			Collection: cfg.VectorIndex.Collection,
			Retry:      service.NetworkRetry("index", cfg.Classification.AttemptTimeout),
		})
		a.reindexer = indexing.NewReindexer(a.indexer)
	}
	a.deps, a.engineCfg = deps, engineCfg
	a.engine = engine.New(deps, engineCfg)

	return a, nil
}

func initSemantic(cfg *config.Config) (*embedding.Client, service.VectorIndex, error) {
	if !cfg.Embedding.Enabled() || !cfg.VectorIndex.Enabled() {
		slog.Debug("Semantic search disabled",
			"embedding_configured", cfg.Embedding.Enabled(),
			"vector_index_configured", cfg.VectorIndex.Enabled())
		return nil, nil, nil
	}

	embedder, err := embedding.NewClient(embedding.Config{
		BaseURL:           cfg.Embedding.BaseURL,
		APIKey:            cfg.Embedding.APIKey,
		Model:             cfg.Embedding.Model,
		Dimensions:        cfg.Embedding.Dimensions,
		Timeout:           cfg.Embedding.Timeout,
		RequestsPerMinute: cfg.Embedding.RequestsPerMinute,
		CacheTTL:          cfg.Embedding.CacheTTL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedding client: %w", err)
	}

	index, err := newVectorIndex(cfg)
	if err != nil {
		_ = embedder.Close()
		return nil, nil, fmt.Errorf("failed to create vector index client: %w", err)
	}
	return embedder, index, nil
}

// preview runs the cascade without recording a metric, for commands that
// only need to know what the engine would suggest.
func (a *app) preview(ctx context.Context, txn model.Transaction) *model.ClassificationResult {
	deps := a.deps
	deps.Metrics = nil
	return engine.New(deps, a.engineCfg).Classify(ctx, txn)
}

func (a *app) tenant() string {
	return a.cfg.Tenant
}

// requireIndexer fails with a user-facing message when indexing is off.
func (a *app) requireIndexer() error {
	if a.indexer == nil {
		return common.NewUserError("indexing requires embedding.model and vector_index.url to be configured",
			common.ErrMissingConfig)
	}
	return nil
}

// index makes confirmed transactions searchable, through the queue when
// enqueue is set and inline otherwise. Indexing failures are logged; the
// confirmation itself already succeeded.
func (a *app) index(ctx context.Context, ids []string, enqueue bool) {
	if len(ids) == 0 {
		return
	}
	if enqueue {
		q, err := jobs.NewQueue(a.cfg.Queue.RedisURL, a.cfg.Queue.Name)
		if err != nil {
			slog.Warn("Queue unavailable, transactions not indexed", "error", err)
			return
		}
		defer func() { _ = q.Close() }()
		for _, id := range ids {
			if err := q.EnqueueIndex(ctx, a.tenant(), id); err != nil {
				slog.Warn("Failed to enqueue index task", "transaction_id", id, "error", err)
			}
		}
		return
	}
	if a.indexer == nil {
		return
	}
	for start := 0; start < len(ids); start += indexing.MaxBatchSize {
		end := min(start+indexing.MaxBatchSize, len(ids))
		if _, err := a.indexer.IndexBatch(ctx, a.tenant(), ids[start:end]); err != nil {
			slog.Warn("Failed to index confirmed transactions", "count", end-start, "error", err)
		}
	}
}

func (a *app) Close() error {
	return errors.Join(a.engine.Close(), a.store.Close())
}

func newVectorIndex(cfg *config.Config) (*vectorindex.TypesenseIndex, error) {
	return vectorindex.NewTypesenseIndex(vectorindex.Config{
		URL:     cfg.VectorIndex.URL,
		APIKey:  cfg.VectorIndex.APIKey,
		Timeout: cfg.VectorIndex.Timeout,
	})
}
