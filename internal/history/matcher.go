// Package history implements the historical-match stage, which compares an
// incoming description against past user corrections at three levels of
// decreasing strictness.
package history

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/Veraticus/spice-cascade/internal/common"
	"github.com/Veraticus/spice-cascade/internal/model"
	"github.com/Veraticus/spice-cascade/internal/normalize"
	"github.com/Veraticus/spice-cascade/internal/service"
	"github.com/Veraticus/spice-cascade/internal/similarity"
)

// Match levels reported in debug output.
const (
	LevelOriginal   = "original"
	LevelNormalized = "normalized"
	LevelTokens     = "tokens"
)

// Weights is a composite scoring formula.
type Weights struct {
	Text      float64
	Amount    float64
	Recency   float64
	Frequency float64
}

// Config holds the historical-match thresholds.
type Config struct {
	TextWeights          Weights
	TokenWeights         Weights
	TextWindow           time.Duration
	TokenWindow          time.Duration
	RecencyHorizon       time.Duration
	OriginalSimilarity   float64
	OriginalFloor        float64
	NormalizedSimilarity float64
	NormalizedFloor      float64
	NormalizedCap        int
	TokenCap             int
	TokenFloor           int
	FrequencyCap         int
	PoolLimit            int
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		TextWeights:          Weights{Text: 0.50, Amount: 0.30, Recency: 0.10, Frequency: 0.10},
		TokenWeights:         Weights{Text: 0.40, Amount: 0.35, Recency: 0.15, Frequency: 0.10},
		TextWindow:           similarity.Days(182),
		TokenWindow:          similarity.Days(365),
		RecencyHorizon:       similarity.Days(180),
		OriginalSimilarity:   0.85,
		OriginalFloor:        0.85,
		NormalizedSimilarity: 0.70,
		NormalizedFloor:      0.70,
		NormalizedCap:        92,
		TokenCap:             88,
		TokenFloor:           60,
		FrequencyCap:         10,
		PoolLimit:            5000,
	}
}

// Store is what the historical stage reads.
type Store interface {
	service.TaxonomyStore
	ListFeedback(ctx context.Context, filter service.FeedbackFilter) ([]model.Feedback, error)
	CountCorrections(ctx context.Context, tenant string, since time.Time) (map[string]int, error)
}

// Matcher is the historical-match stage.
type Matcher struct {
	store Store
	now   func() time.Time
	cfg   Config
}

// NewMatcher creates the historical-match stage.
func NewMatcher(store Store, cfg Config) *Matcher {
	return &Matcher{store: store, cfg: cfg, now: time.Now}
}

// Name identifies the stage in logs.
func (m *Matcher) Name() string {
	return "history"
}

type scored struct {
	feedback  model.Feedback
	text      float64
	amount    float64
	recency   float64
	frequency float64
	composite float64
	tokens    []string
}

// Classify tries the original-text, normalized-text and token-overlap
// levels in turn and returns the first confident match, or nil.
func (m *Matcher) Classify(ctx context.Context, txn model.Transaction) (*model.ClassificationResult, error) {
	now := m.now()
	textSince := now.Add(-m.cfg.TextWindow)

	pool, err := m.store.ListFeedback(ctx, service.FeedbackFilter{
		Tenant: txn.Tenant,
		Since:  &textSince,
		Limit:  m.cfg.PoolLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load feedback: %w", err)
	}

	if len(pool) > 0 {
		counts, err := m.store.CountCorrections(ctx, txn.Tenant, textSince)
		if err != nil {
			return nil, fmt.Errorf("failed to count corrections: %w", err)
		}

		result, err := m.original(ctx, txn, pool, counts, now)
		if err != nil || result != nil {
			return result, err
		}
		result, err = m.normalized(ctx, txn, pool, counts, now)
		if err != nil || result != nil {
			return result, err
		}
	}

	return m.tokens(ctx, txn, now)
}

func (m *Matcher) original(ctx context.Context, txn model.Transaction, pool []model.Feedback, counts map[string]int, now time.Time) (*model.ClassificationResult, error) {
	var candidates []scored
	for _, fb := range pool {
		sim := similarity.Trigram(txn.Description, fb.OriginalDescription)
		if sim <= m.cfg.OriginalSimilarity {
			continue
		}
		c := m.score(m.cfg.TextWeights, sim, txn, fb, counts, now)
		if c.composite < m.cfg.OriginalFloor {
			continue
		}
		candidates = append(candidates, c)
	}

	return m.pick(ctx, txn, candidates, LevelOriginal, model.MethodExact, 100, func(c scored) string {
		return fmt.Sprintf("Matches past correction %q (text similarity %.2f)", c.feedback.OriginalDescription, c.text)
	})
}

func (m *Matcher) normalized(ctx context.Context, txn model.Transaction, pool []model.Feedback, counts map[string]int, now time.Time) (*model.ClassificationResult, error) {
	incoming := normalize.Description(txn.Description)
	if incoming == "" {
		return nil, nil //nolint:nilnil // Nothing left after normalization
	}

	var candidates []scored
	for _, fb := range pool {
		sim := similarity.Trigram(incoming, normalize.Description(fb.OriginalDescription))
		if sim <= m.cfg.NormalizedSimilarity {
			continue
		}
		c := m.score(m.cfg.TextWeights, sim, txn, fb, counts, now)
		if c.composite < m.cfg.NormalizedFloor {
			continue
		}
		candidates = append(candidates, c)
	}

	return m.pick(ctx, txn, candidates, LevelNormalized, model.MethodExact, m.cfg.NormalizedCap, func(c scored) string {
		return fmt.Sprintf("Matches past correction %q after normalization (similarity %.2f)", c.feedback.OriginalDescription, c.text)
	})
}

func (m *Matcher) tokens(ctx context.Context, txn model.Transaction, now time.Time) (*model.ClassificationResult, error) {
	tokens := normalize.Tokens(txn.Description)
	if len(tokens) == 0 {
		return nil, nil //nolint:nilnil // No significant tokens
	}

	since := now.Add(-m.cfg.TokenWindow)
	pool, err := m.store.ListFeedback(ctx, service.FeedbackFilter{
		Tenant:   txn.Tenant,
		Since:    &since,
		Contains: tokens,
		Limit:    m.cfg.PoolLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load token candidates: %w", err)
	}
	if len(pool) == 0 {
		return nil, nil //nolint:nilnil // No candidate shares a token
	}

	counts, err := m.store.CountCorrections(ctx, txn.Tenant, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count corrections: %w", err)
	}

	var candidates []scored
	for _, fb := range pool {
		upper := strings.ToUpper(fb.OriginalDescription)
		var matched []string
		for _, tok := range tokens {
			if strings.Contains(upper, tok) {
				matched = append(matched, tok)
			}
		}
		if len(matched) == 0 {
			continue
		}
		overlap := float64(len(matched)) / float64(len(tokens))
		c := m.score(m.cfg.TokenWeights, overlap, txn, fb, counts, now)
		c.tokens = matched
		if capped(c.composite, m.cfg.TokenCap) < m.cfg.TokenFloor {
			continue
		}
		candidates = append(candidates, c)
	}

	return m.pick(ctx, txn, candidates, LevelTokens, model.MethodFeedbackLearning, m.cfg.TokenCap, func(c scored) string {
		return fmt.Sprintf("Shares %s with past correction %q", strings.Join(c.tokens, ", "), c.feedback.OriginalDescription)
	})
}

func (m *Matcher) score(w Weights, text float64, txn model.Transaction, fb model.Feedback, counts map[string]int, now time.Time) scored {
	c := scored{
		feedback:  fb,
		text:      text,
		amount:    similarity.AmountProximity(txn.Amount, fb.Amount),
		recency:   similarity.Recency(fb.CreatedAt, now, m.cfg.RecencyHorizon),
		frequency: similarity.Frequency(counts[fb.CorrectedTriple.Key()], m.cfg.FrequencyCap),
	}
	c.composite = w.Text*c.text + w.Amount*c.amount + w.Recency*c.recency + w.Frequency*c.frequency
	return c
}

// pick returns the best candidate whose target still resolves.
func (m *Matcher) pick(ctx context.Context, txn model.Transaction, candidates []scored, level string, method model.Method, limit int, reason func(scored) string) (*model.ClassificationResult, error) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].composite != candidates[j].composite {
			return candidates[i].composite > candidates[j].composite
		}
		return candidates[i].feedback.CreatedAt.After(candidates[j].feedback.CreatedAt)
	})

	for _, c := range candidates {
		target, err := m.store.ResolveTriple(ctx, txn.Tenant, c.feedback.CorrectedTriple)
		if errors.Is(err, common.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve historical target: %w", err)
		}

		debug := &model.Debug{
			MatchLevel:     level,
			AmountScore:    &c.amount,
			RecencyScore:   &c.recency,
			FrequencyScore: &c.frequency,
			CandidateCount: len(candidates),
		}
		if level == LevelTokens {
			debug.TokenOverlap = &c.text
			debug.MatchedTokens = c.tokens
		} else {
			debug.TextSimilarity = &c.text
		}

		return &model.ClassificationResult{
			Classification: target,
			Confidence:     capped(c.composite, limit),
			Method:         method,
			Reasoning:      reason(c),
			Suggestions:    []model.Suggestion{},
			Debug:          debug,
			Success:        true,
		}, nil
	}

	return nil, nil //nolint:nilnil // No candidate at this level
}

func capped(composite float64, limit int) int {
	c := model.ClampConfidence(int(math.Round(composite * 100)))
	if c > limit {
		return limit
	}
	return c
}
