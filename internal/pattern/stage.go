package pattern

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/spice-cascade/internal/common"
	"github.com/Veraticus/spice-cascade/internal/model"
	"github.com/Veraticus/spice-cascade/internal/service"
)

// RuleStore is what the rule stage reads.
type RuleStore interface {
	service.RuleStore
	service.TaxonomyStore
}

// Stage is the first stage of the cascade: operator rules.
type Stage struct {
	store RuleStore
}

// NewStage creates the rule stage.
func NewStage(store RuleStore) *Stage {
	return &Stage{store: store}
}

// Name identifies the stage in logs.
func (s *Stage) Name() string {
	return "rule"
}

// Classify returns the result of the first matching rule whose target still
// exists, or nil when no rule applies.
func (s *Stage) Classify(ctx context.Context, txn model.Transaction) (*model.ClassificationResult, error) {
	rules, err := s.store.GetEnabledRules(ctx, txn.Tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	if len(rules) == 0 {
		return nil, nil //nolint:nilnil // No rules is a valid fall-through
	}

	for _, rule := range NewMatcher(rules).Match(txn) {
		target, err := s.store.ResolveTriple(ctx, txn.Tenant, rule.Target)
		if errors.Is(err, common.ErrNotFound) {
			slog.Warn("Rule targets a missing classification, skipping",
				"rule_id", rule.ID,
				"rule", rule.Name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve rule target: %w", err)
		}

		return &model.ClassificationResult{
			Classification: target,
			Confidence:     model.ClampConfidence(rule.Confidence),
			Method:         model.MethodRule,
			Reasoning:      rule.Reasoning,
			Suggestions:    []model.Suggestion{},
			Debug:          &model.Debug{RuleID: rule.ID},
			Success:        true,
		}, nil
	}

	return nil, nil //nolint:nilnil // No match falls through to the next stage
}
