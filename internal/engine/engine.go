// Package engine orchestrates the classification cascade: rule, historical
// match, semantic search, entity match, then manual review.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Veraticus/spice-cascade/internal/common"
	"github.com/Veraticus/spice-cascade/internal/entity"
	"github.com/Veraticus/spice-cascade/internal/history"
	"github.com/Veraticus/spice-cascade/internal/model"
	"github.com/Veraticus/spice-cascade/internal/pattern"
	"github.com/Veraticus/spice-cascade/internal/semantic"
	"github.com/Veraticus/spice-cascade/internal/service"
)

// Config holds every threshold and weight of the cascade. It is copied into
// the engine at construction and never changed afterwards.
type Config struct {
	History     history.Config
	Entity      entity.Config
	Semantic    semantic.Config
	BatchWindow int
}

// DefaultConfig returns the production configuration for the given vector
// collection and per-attempt network timeout.
func DefaultConfig(collection string, attemptTimeout time.Duration) Config {
	return Config{
		History:     history.DefaultConfig(),
		Entity:      entity.DefaultConfig(),
		Semantic:    semantic.DefaultConfig(collection, attemptTimeout),
		BatchWindow: 5,
	}
}

// Dependencies are the collaborators the engine is built from. Embedder and
// Index may be nil, in which case semantic search is disabled.
type Dependencies struct {
	Store    service.ClassificationStore
	Embedder service.Embedder
	Index    service.VectorIndex
	Metrics  MetricsRecorder
}

// ClassificationEngine runs the cascade for single transactions and batches.
type ClassificationEngine struct {
	deps      Dependencies
	rules     Stage
	history   Stage
	semantic  Stage
	entity    Stage
	suggester *pattern.Suggester
	cfg       Config
}

// New creates a classification engine.
func New(deps Dependencies, cfg Config) *ClassificationEngine {
	if cfg.BatchWindow <= 0 {
		cfg.BatchWindow = 5
	}

	e := &ClassificationEngine{
		deps:      deps,
		cfg:       cfg,
		rules:     pattern.NewStage(deps.Store),
		history:   history.NewMatcher(deps.Store, cfg.History),
		entity:    entity.NewMatcher(deps.Store, cfg.Entity),
		suggester: pattern.NewSuggester(deps.Store),
	}
	if deps.Embedder != nil && deps.Index != nil {
		e.semantic = semantic.NewSearcher(deps.Embedder, deps.Index, deps.Store, cfg.Semantic)
	}
	return e
}

// Config returns a copy of the engine configuration.
func (e *ClassificationEngine) Config() Config {
	return e.cfg
}

// Classify runs the cascade for one transaction. It never fails: internal
// errors come back as an unsuccessful result flagged for review.
func (e *ClassificationEngine) Classify(ctx context.Context, txn model.Transaction) *model.ClassificationResult {
	start := time.Now()

	result, err := e.classify(ctx, txn)
	if err != nil {
		common.LogError(ctx, err, "Classification failed", common.Fields{
			"transaction_id": txn.ID,
			"tenant":         txn.Tenant,
		})
		result = failed(err)
	}
	result.TransactionID = txn.ID
	result.Latency = time.Since(start)
	if result.Suggestions == nil {
		result.Suggestions = []model.Suggestion{}
	}

	slog.Debug("Transaction classified",
		"transaction_id", txn.ID,
		"method", result.Method,
		"confidence", result.Confidence,
		"needs_review", result.NeedsReview,
		"latency", result.Latency)

	if e.deps.Metrics != nil {
		e.deps.Metrics.Record(ctx, txn, result)
	}
	return result
}

func (e *ClassificationEngine) classify(ctx context.Context, txn model.Transaction) (*model.ClassificationResult, error) {
	if err := txn.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidInput, err)
	}

	for _, stage := range []Stage{e.rules, e.history} {
		result, err := e.run(ctx, stage, txn)
		if err != nil || result != nil {
			return result, err
		}
	}

	var review *model.ClassificationResult
	if e.semantic != nil {
		result, err := e.run(ctx, e.semantic, txn)
		if err != nil {
			return nil, err
		}
		if result != nil && result.Classification != nil {
			return result, nil
		}
		review = result
	}

	result, err := e.run(ctx, e.entity, txn)
	if err != nil || result != nil {
		return result, err
	}

	if review == nil {
		return model.NeedsReviewResult("No stage produced a confident classification", nil), nil
	}
	return review, nil
}

// run invokes one stage, converting a panic into an error.
func (e *ClassificationEngine) run(ctx context.Context, stage Stage, txn model.Transaction) (result *model.ClassificationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: %s stage panicked: %v", common.ErrClassificationFailed, stage.Name(), r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err = stage.Classify(ctx, txn)
	if err != nil {
		return nil, fmt.Errorf("%s stage: %w", stage.Name(), err)
	}
	if result != nil {
		result.Confidence = model.ClampConfidence(result.Confidence)
	}
	return result, nil
}

func failed(err error) *model.ClassificationResult {
	if !errors.Is(err, common.ErrClassificationFailed) && !errors.Is(err, common.ErrInvalidInput) {
		err = fmt.Errorf("%w: %w", common.ErrClassificationFailed, err)
	}
	return &model.ClassificationResult{
		Method:      model.MethodManual,
		Reasoning:   "Classification failed, manual review required",
		Error:       err.Error(),
		Suggestions: []model.Suggestion{},
		NeedsReview: true,
		Success:     false,
	}
}

// SuggestRules mines correction history for rule candidates.
func (e *ClassificationEngine) SuggestRules(ctx context.Context, tenant string, opts pattern.SuggestOptions) (*model.RuleSuggestionReport, error) {
	return e.suggester.Suggest(ctx, tenant, opts)
}

// Close releases the embedding and vector-index clients.
func (e *ClassificationEngine) Close() error {
	var errs []error
	for _, dep := range []any{e.deps.Embedder, e.deps.Index} {
		if c, ok := dep.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
