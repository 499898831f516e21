// Package pattern evaluates operator-defined classification rules and mines
// correction history for new rule candidates.
package pattern

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/Veraticus/spice-cascade/internal/common"
	"github.com/Veraticus/spice-cascade/internal/model"
)

// Rule is an alias to the model.ClassificationRule type for convenience.
type Rule = model.ClassificationRule

type compiledRule struct {
	patterns []*regexp.Regexp
	Rule
}

// Matcher evaluates transactions against rules in descending priority order.
type Matcher struct {
	rules []compiledRule
}

// NewMatcher compiles the enabled rules. Patterns that fail to compile are
// dropped with a warning; a rule whose patterns all fail can never match.
func NewMatcher(rules []Rule) *Matcher {
	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		cr := compiledRule{Rule: rule}
		for _, p := range rule.DescriptionPatterns {
			re, err := common.CompileInsensitive(p)
			if err != nil {
				slog.Warn("Skipping invalid rule pattern",
					"rule_id", rule.ID,
					"rule", rule.Name,
					"pattern", p,
					"error", err)
				continue
			}
			cr.patterns = append(cr.patterns, re)
		}
		compiled = append(compiled, cr)
	}

	// Ties keep id order so repeated runs agree.
	sort.SliceStable(compiled, func(i, j int) bool {
		if compiled[i].Priority != compiled[j].Priority {
			return compiled[i].Priority > compiled[j].Priority
		}
		return compiled[i].ID < compiled[j].ID
	})

	return &Matcher{rules: compiled}
}

// Match returns every rule the transaction satisfies, highest priority first.
func (m *Matcher) Match(txn model.Transaction) []Rule {
	var matches []Rule
	for _, rule := range m.rules {
		if rule.matches(txn) {
			matches = append(matches, rule.Rule)
		}
	}
	return matches
}

func (r compiledRule) matches(txn model.Transaction) bool {
	return r.matchesDescription(txn) && r.matchesAmount(txn) && r.matchesPaymentType(txn)
}

// matchesDescription requires at least one pattern to match when any were
// configured, even if none of them compiled.
func (r compiledRule) matchesDescription(txn model.Transaction) bool {
	if len(r.DescriptionPatterns) == 0 {
		return true
	}
	for _, re := range r.patterns {
		if re.MatchString(txn.Description) {
			return true
		}
	}
	return false
}

func (r compiledRule) matchesAmount(txn model.Transaction) bool {
	amount := txn.AbsAmount()
	if r.AmountMin != nil && amount < *r.AmountMin {
		return false
	}
	if r.AmountMax != nil && amount > *r.AmountMax {
		return false
	}
	return true
}

func (r compiledRule) matchesPaymentType(txn model.Transaction) bool {
	if len(r.PaymentTypes) == 0 {
		return true
	}
	for _, pt := range r.PaymentTypes {
		if strings.EqualFold(pt, txn.PaymentType) {
			return true
		}
	}
	return false
}
