// Package semantic implements the vector-search stage: it embeds the
// incoming transaction, retrieves similar classified transactions from the
// vector index and clusters them by target.
package semantic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/Veraticus/spice-cascade/internal/common"
	"github.com/Veraticus/spice-cascade/internal/model"
	"github.com/Veraticus/spice-cascade/internal/service"
	"github.com/Veraticus/spice-cascade/internal/similarity"
)

// Weights is the per-hit re-ranking formula.
type Weights struct {
	Vector    float64
	Amount    float64
	Recency   float64
	Frequency float64
}

// ClusterWeights is the cluster confidence formula.
type ClusterWeights struct {
	Average float64
	Share   float64
	Top     float64
}

// Config holds the semantic stage thresholds.
type Config struct {
	Retry          service.RetryOptions
	Collection     string
	Weights        Weights
	Cluster        ClusterWeights
	RecencyHorizon time.Duration
	TopK           int
	MinScore       float64
	FrequencyCap   int
	MinConfidence  int
	MaxExemplars   int
	MaxSuggestions int
}

// DefaultConfig returns the production thresholds.
func DefaultConfig(collection string, attemptTimeout time.Duration) Config {
	return Config{
		Retry:          service.NetworkRetry("semantic", attemptTimeout),
		Collection:     collection,
		Weights:        Weights{Vector: 0.40, Amount: 0.30, Recency: 0.15, Frequency: 0.15},
		Cluster:        ClusterWeights{Average: 0.50, Share: 0.30, Top: 0.20},
		RecencyHorizon: similarity.Days(365),
		TopK:           12,
		MinScore:       0.82,
		FrequencyCap:   20,
		MinConfidence:  70,
		MaxExemplars:   3,
		MaxSuggestions: 3,
	}
}

// Searcher is the semantic-search stage.
type Searcher struct {
	embedder service.Embedder
	index    service.VectorIndex
	taxonomy service.TaxonomyStore
	now      func() time.Time
	cfg      Config
}

// NewSearcher creates the semantic stage.
func NewSearcher(embedder service.Embedder, index service.VectorIndex, taxonomy service.TaxonomyStore, cfg Config) *Searcher {
	return &Searcher{
		embedder: embedder,
		index:    index,
		taxonomy: taxonomy,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Name identifies the stage in logs.
func (s *Searcher) Name() string {
	return "semantic"
}

type rankedHit struct {
	hit       model.VectorHit
	amount    float64
	recency   float64
	frequency float64
	composite float64
}

type cluster struct {
	target     model.ResolvedTriple
	hits       []rankedHit
	average    float64
	vector     float64
	amount     float64
	recency    float64
	frequency  float64
	top        float64
	confidence int
}

// Classify never returns nil: below the gate, or when a dependency is
// unavailable, it returns a needs-review result carrying the clusters found
// as suggestions.
func (s *Searcher) Classify(ctx context.Context, txn model.Transaction) (*model.ClassificationResult, error) {
	text := EmbeddingText(txn.Description, txn.Amount)

	var vector []float32
	err := common.WithRetry(ctx, func(ctx context.Context) error {
		v, err := s.embedder.Embed(ctx, text)
		if err != nil {
			return err
		}
		vector = v
		return nil
	}, s.retry("embed"))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("Embedding unavailable, deferring to review",
			"transaction_id", txn.ID,
			"error", err)
		result := model.NeedsReviewResult("Embedding service unavailable", nil)
		result.Debug = &model.Debug{EmbeddingFailed: true}
		return result, nil
	}

	var hits []model.VectorHit
	err = common.WithRetry(ctx, func(ctx context.Context) error {
		h, err := s.index.Search(ctx, s.cfg.Collection, model.VectorQuery{
			Tenant:   txn.Tenant,
			Vector:   vector,
			TopK:     s.cfg.TopK,
			MinScore: s.cfg.MinScore,
		})
		if errors.Is(err, common.ErrNotFound) {
			return common.Permanent(err)
		}
		if err != nil {
			return err
		}
		hits = h
		return nil
	}, s.retry("search"))
	switch {
	case errors.Is(err, common.ErrNotFound):
		slog.Debug("Vector collection missing, treating as empty", "collection", s.cfg.Collection)
		hits = nil
	case err != nil:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("Vector search unavailable, deferring to review",
			"transaction_id", txn.ID,
			"error", err)
		result := model.NeedsReviewResult("Vector index unavailable", nil)
		result.Debug = &model.Debug{SearchFailed: true}
		return result, nil
	}

	clusters, err := s.cluster(ctx, txn, hits)
	if err != nil {
		return nil, err
	}
	if len(clusters) == 0 {
		result := model.NeedsReviewResult("No similar classified transactions found", nil)
		result.Debug = &model.Debug{CandidateCount: len(hits)}
		return result, nil
	}

	best := clusters[0]
	debug := &model.Debug{
		VectorScore:    &best.vector,
		AmountScore:    &best.amount,
		RecencyScore:   &best.recency,
		FrequencyScore: &best.frequency,
		CandidateCount: len(hits),
		ClusterCount:   len(clusters),
		ClusterSize:    len(best.hits),
	}

	if best.confidence < s.cfg.MinConfidence {
		suggestions := s.suggestions(clusters, s.cfg.MaxSuggestions)
		result := model.NeedsReviewResult(fmt.Sprintf(
			"Best semantic cluster %q scored %d, below %d", best.target.Label(), best.confidence, s.cfg.MinConfidence),
			suggestions)
		result.Debug = debug
		return result, nil
	}

	target := best.target
	return &model.ClassificationResult{
		Classification: &target,
		Confidence:     best.confidence,
		Method:         model.MethodSemantic,
		Reasoning: fmt.Sprintf("%d of %d similar transactions were classified as %s (avg similarity %.2f)",
			len(best.hits), countHits(clusters), target.Label(), best.vector),
		Similar:     s.exemplars(best),
		Suggestions: s.suggestions(clusters[1:], 2),
		Debug:       debug,
		Success:     true,
	}, nil
}

func (s *Searcher) retry(op string) service.RetryOptions {
	opts := s.cfg.Retry
	opts.Name = "semantic." + op
	return opts
}

// cluster re-ranks hits and groups them by target. Hits whose target no
// longer exists are dropped.
func (s *Searcher) cluster(ctx context.Context, txn model.Transaction, hits []model.VectorHit) ([]*cluster, error) {
	now := s.now()
	w := s.cfg.Weights
	byKey := make(map[string]*cluster)
	missing := make(map[string]bool)
	var clusters []*cluster

	for _, hit := range hits {
		key := hit.Payload.Target.Key()
		if missing[key] {
			continue
		}
		c, ok := byKey[key]
		if !ok {
			target, err := s.taxonomy.ResolveTriple(ctx, txn.Tenant, hit.Payload.Target.Triple)
			if errors.Is(err, common.ErrNotFound) {
				missing[key] = true
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to resolve semantic target: %w", err)
			}
			c = &cluster{target: *target}
			byKey[key] = c
			clusters = append(clusters, c)
		}

		r := rankedHit{
			hit:       hit,
			amount:    similarity.AmountProximity(txn.Amount, hit.Payload.Amount),
			recency:   similarity.Recency(hit.Payload.Date, now, s.cfg.RecencyHorizon),
			frequency: similarity.Frequency(hit.Payload.ClassificationFrequency, s.cfg.FrequencyCap),
		}
		r.composite = w.Vector*hit.Score + w.Amount*r.amount + w.Recency*r.recency + w.Frequency*r.frequency
		c.hits = append(c.hits, r)
	}

	total := countHits(clusters)
	cw := s.cfg.Cluster
	for _, c := range clusters {
		sort.SliceStable(c.hits, func(i, j int) bool { return c.hits[i].composite > c.hits[j].composite })
		var sum, vsum, asum, rsum, fsum float64
		for _, h := range c.hits {
			sum += h.composite
			vsum += h.hit.Score
			asum += h.amount
			rsum += h.recency
			fsum += h.frequency
		}
		n := float64(len(c.hits))
		c.average = sum / n
		c.vector = vsum / n
		c.amount = asum / n
		c.recency = rsum / n
		c.frequency = fsum / n
		c.top = c.hits[0].composite
		share := float64(len(c.hits)) / float64(total)
		c.confidence = model.ClampConfidence(int(math.Round(100 * (c.average*cw.Average + share*cw.Share + c.top*cw.Top))))
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		if clusters[i].confidence != clusters[j].confidence {
			return clusters[i].confidence > clusters[j].confidence
		}
		if len(clusters[i].hits) != len(clusters[j].hits) {
			return len(clusters[i].hits) > len(clusters[j].hits)
		}
		return clusters[i].target.Key() < clusters[j].target.Key()
	})

	return clusters, nil
}

func (s *Searcher) exemplars(c *cluster) []model.SimilarTransaction {
	n := min(len(c.hits), s.cfg.MaxExemplars)
	out := make([]model.SimilarTransaction, 0, n)
	for _, h := range c.hits[:n] {
		out = append(out, model.SimilarTransaction{
			TransactionID: h.hit.Payload.TransactionID,
			Description:   h.hit.Payload.Description,
			Amount:        h.hit.Payload.Amount,
			Date:          h.hit.Payload.Date,
			Score:         h.hit.Score,
		})
	}
	return out
}

func (s *Searcher) suggestions(clusters []*cluster, limit int) []model.Suggestion {
	n := min(len(clusters), limit)
	out := make([]model.Suggestion, 0, n)
	for _, c := range clusters[:n] {
		out = append(out, model.Suggestion{
			Target:     c.target,
			Confidence: c.confidence,
			Support:    len(c.hits),
			Reasoning:  fmt.Sprintf("%d similar transactions (avg similarity %.2f)", len(c.hits), c.vector),
			Similar:    s.exemplars(c),
		})
	}
	return out
}

func countHits(clusters []*cluster) int {
	n := 0
	for _, c := range clusters {
		n += len(c.hits)
	}
	return n
}
