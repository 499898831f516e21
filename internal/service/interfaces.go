// Package service defines the contracts between the classification core and its collaborators.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/spice-cascade/internal/model"
)

// FeedbackFilter selects feedback records. Zero-valued fields are not applied.
type FeedbackFilter struct {
	Since       *time.Time
	Until       *time.Time
	Tenant      string
	Contains    []string // description must contain at least one of these (case-insensitive)
	Limit       int
	CorrectedTo *model.Triple
}

// TransactionFilter selects classified transactions for indexing.
type TransactionFilter struct {
	Tenant string
	IDs    []string
	Limit  int
	Offset int
}

// RuleStore reads classification rules.
type RuleStore interface {
	GetEnabledRules(ctx context.Context, tenant string) ([]model.ClassificationRule, error)
}

// TaxonomyStore resolves triples to names. ResolveTriple returns
// common.ErrNotFound when any level of the triple no longer exists.
type TaxonomyStore interface {
	ResolveTriple(ctx context.Context, tenant string, triple model.Triple) (*model.ResolvedTriple, error)
}

// FeedbackStore reads and appends correction history.
type FeedbackStore interface {
	ListFeedback(ctx context.Context, filter FeedbackFilter) ([]model.Feedback, error)
	CountCorrections(ctx context.Context, tenant string, since time.Time) (map[string]int, error)
	GetEntityUsage(ctx context.Context, tenant string, since time.Time) ([]model.EntityUsage, error)
	SaveFeedback(ctx context.Context, feedback *model.Feedback) (bool, error)
}

// TransactionStore reads classified transactions for the vector index.
type TransactionStore interface {
	GetClassifiedTransaction(ctx context.Context, tenant, id string) (*model.ClassifiedTransaction, error)
	ListClassifiedTransactions(ctx context.Context, filter TransactionFilter) ([]model.ClassifiedTransaction, error)
}

// MetricsStore persists and aggregates classification metrics.
type MetricsStore interface {
	SaveMetric(ctx context.Context, metric *model.ClassificationMetric) error
	GetAnalytics(ctx context.Context, tenant string, since time.Time) (*model.Analytics, error)
}

// ClassificationStore is everything the cascade reads from the relational store.
type ClassificationStore interface {
	RuleStore
	TaxonomyStore
	FeedbackStore
}

// Embedder produces embedding vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
	Dimensions() int
}

// VectorIndex is the vector search service contract.
type VectorIndex interface {
	CollectionExists(ctx context.Context, collection string) (bool, error)
	CreateCollection(ctx context.Context, collection string, dimensions int) error
	DeleteCollection(ctx context.Context, collection string) error
	Upsert(ctx context.Context, collection string, points []model.VectorPoint) error
	Search(ctx context.Context, collection string, query model.VectorQuery) ([]model.VectorHit, error)
	Ping(ctx context.Context) error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	Sleep          func(time.Duration) <-chan time.Time
	Name           string
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
	Multiplier     float64
}

// After returns a channel that fires after d, honouring a test override.
func (o RetryOptions) After(d time.Duration) <-chan time.Time {
	if o.Sleep != nil {
		return o.Sleep(d)
	}
	return time.After(d)
}

// NetworkRetry is the policy for embedding and vector-index calls: three
// attempts with 1s, 2s, 4s backoff, each attempt bounded by timeout.
func NetworkRetry(name string, timeout time.Duration) RetryOptions {
	return RetryOptions{
		Name:           name,
		MaxAttempts:    3,
		InitialDelay:   time.Second,
		MaxDelay:       4 * time.Second,
		AttemptTimeout: timeout,
		Multiplier:     2,
	}
}
