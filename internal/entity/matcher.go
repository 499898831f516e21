// Package entity implements the entity-name fallback stage: it recognizes
// subject and detail names that appear verbatim in a description and scores
// them by how often and at what amounts they were used before.
package entity

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/Veraticus/spice-cascade/internal/model"
	"github.com/Veraticus/spice-cascade/internal/normalize"
	"github.com/Veraticus/spice-cascade/internal/similarity"
)

// Config holds the entity matcher thresholds.
type Config struct {
	Window          time.Duration
	AmountTolerance float64
	MinNameLength   int
	MinConfidence   int
	MaxNameScore    float64
	MaxFreqScore    float64
	MaxAmountScore  float64
	FreqPerUse      float64
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		Window:          similarity.Days(365),
		AmountTolerance: 0.15,
		MinNameLength:   3,
		MinConfidence:   80,
		MaxNameScore:    40,
		MaxFreqScore:    30,
		MaxAmountScore:  30,
		FreqPerUse:      3,
	}
}

// UsageStore provides aggregated feedback per corrected triple.
type UsageStore interface {
	GetEntityUsage(ctx context.Context, tenant string, since time.Time) ([]model.EntityUsage, error)
}

// Matcher is the entity-match stage.
type Matcher struct {
	store UsageStore
	now   func() time.Time
	cfg   Config
}

// NewMatcher creates the entity matcher.
func NewMatcher(store UsageStore, cfg Config) *Matcher {
	return &Matcher{store: store, cfg: cfg, now: time.Now}
}

// Name identifies the stage in logs.
func (m *Matcher) Name() string {
	return "entity"
}

type candidate struct {
	usage     model.EntityUsage
	name      string
	nameScore float64
	freqScore float64
	amtScore  float64
	total     float64
}

// Classify returns the best-scoring entity whose name appears in the
// description, or nil when none reaches the confidence floor.
func (m *Matcher) Classify(ctx context.Context, txn model.Transaction) (*model.ClassificationResult, error) {
	description := normalize.Description(txn.Description)
	if description == "" {
		return nil, nil //nolint:nilnil // Nothing to match against
	}

	usage, err := m.store.GetEntityUsage(ctx, txn.Tenant, m.now().Add(-m.cfg.Window))
	if err != nil {
		return nil, fmt.Errorf("failed to load entity usage: %w", err)
	}

	var candidates []candidate
	for _, u := range usage {
		name, ok := m.matchedName(description, u.Target)
		if !ok {
			continue
		}
		c := candidate{
			usage:     u,
			name:      name,
			nameScore: m.nameScore(description, name),
			freqScore: math.Min(m.cfg.MaxFreqScore, float64(u.UsageCount)*m.cfg.FreqPerUse),
			amtScore:  m.cfg.MaxAmountScore * similarity.AmountSimilarity(txn.Amount, u.AverageAmount, m.cfg.AmountTolerance),
		}
		c.total = c.nameScore + c.freqScore + c.amtScore
		candidates = append(candidates, c)
	}
	if len(candidates) == 0 {
		return nil, nil //nolint:nilnil // No entity named in the description
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].total != candidates[j].total {
			return candidates[i].total > candidates[j].total
		}
		if candidates[i].usage.UsageCount != candidates[j].usage.UsageCount {
			return candidates[i].usage.UsageCount > candidates[j].usage.UsageCount
		}
		return candidates[i].usage.Target.Key() < candidates[j].usage.Target.Key()
	})

	best := candidates[0]
	confidence := model.ClampConfidence(int(math.Round(best.total)))
	if confidence < m.cfg.MinConfidence {
		return nil, nil //nolint:nilnil // Below the entity gate
	}

	target := best.usage.Target
	nameScore, freqScore, amtScore := best.nameScore, best.freqScore, best.amtScore
	return &model.ClassificationResult{
		Classification: &target,
		Confidence:     confidence,
		Method:         model.MethodEntityMatch,
		Reasoning: fmt.Sprintf("Description names %q, used %d times in the last year (avg amount %.2f)",
			best.name, best.usage.UsageCount, best.usage.AverageAmount),
		Suggestions: []model.Suggestion{},
		Debug: &model.Debug{
			NameScore:      &nameScore,
			FrequencyScore: &freqScore,
			AmountScore:    &amtScore,
			CandidateCount: len(candidates),
		},
		Success: true,
	}, nil
}

// matchedName returns the longest of the subject and detail names that occurs
// in the normalized description.
func (m *Matcher) matchedName(description string, target model.ResolvedTriple) (string, bool) {
	names := []string{target.SubjectName}
	if target.DetailName != nil {
		names = append(names, *target.DetailName)
	}

	best := ""
	for _, name := range names {
		if len([]rune(strings.TrimSpace(name))) < m.cfg.MinNameLength {
			continue
		}
		needle := normalize.Description(name)
		if needle == "" || !strings.Contains(description, needle) {
			continue
		}
		if len(needle) > len(best) {
			best = needle
		}
	}
	return best, best != ""
}

// nameScore rewards longer names; a name equal to the whole description
// gets the maximum.
func (m *Matcher) nameScore(description, name string) float64 {
	if description == name {
		return m.cfg.MaxNameScore
	}
	return math.Min(m.cfg.MaxNameScore-5, 15+2*float64(len([]rune(name))))
}
