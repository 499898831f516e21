package pattern

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/Veraticus/spice-cascade/internal/common"
	"github.com/Veraticus/spice-cascade/internal/model"
	"github.com/Veraticus/spice-cascade/internal/normalize"
	"github.com/Veraticus/spice-cascade/internal/service"
)

// Defaults for rule mining.
const (
	DefaultMinOccurrences = 3
	DefaultMinConsistency = 0.70
	maxExamples           = 3
	maxFeedbackScanned    = 50000
)

// SuggesterStore is what the rule suggester reads.
type SuggesterStore interface {
	service.RuleStore
	service.TaxonomyStore
	ListFeedback(ctx context.Context, filter service.FeedbackFilter) ([]model.Feedback, error)
}

// SuggestOptions tunes rule mining. Zero values fall back to the defaults.
type SuggestOptions struct {
	Lookback       time.Duration // zero scans all history
	MinOccurrences int
	MinConsistency float64
}

// Suggester mines feedback for recurring, consistent description patterns
// that no enabled rule covers yet.
type Suggester struct {
	store SuggesterStore
	now   func() time.Time
}

// NewSuggester creates a rule suggester.
func NewSuggester(store SuggesterStore) *Suggester {
	return &Suggester{store: store, now: time.Now}
}

type patternGroup struct {
	votes    map[string]int
	triples  map[string]model.Triple
	key      string
	order    []string // triple keys in first-seen order
	examples []string
	amounts  []float64
}

// Suggest returns rule suggestions for tenant, most frequent first.
func (s *Suggester) Suggest(ctx context.Context, tenant string, opts SuggestOptions) (*model.RuleSuggestionReport, error) {
	if opts.MinOccurrences <= 0 {
		opts.MinOccurrences = DefaultMinOccurrences
	}
	if opts.MinConsistency <= 0 {
		opts.MinConsistency = DefaultMinConsistency
	}
	if opts.MinConsistency > 1 {
		return nil, fmt.Errorf("%w: min consistency %.2f above 1", common.ErrInvalidInput, opts.MinConsistency)
	}

	filter := service.FeedbackFilter{Tenant: tenant, Limit: maxFeedbackScanned}
	if opts.Lookback > 0 {
		since := s.now().Add(-opts.Lookback)
		filter.Since = &since
	}
	feedback, err := s.store.ListFeedback(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load feedback: %w", err)
	}

	rules, err := s.store.GetEnabledRules(ctx, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	groups := groupByPattern(feedback)
	report := &model.RuleSuggestionReport{
		Suggestions: []model.RuleSuggestion{},
		Stats: model.RuleSuggestionStats{
			FeedbackAnalyzed: len(feedback),
			PatternsFound:    len(groups),
		},
	}

	for _, g := range groups {
		if len(g.amounts) < opts.MinOccurrences {
			continue
		}
		report.Stats.FrequentPatterns++

		majority, agreeing := g.majority()
		consistency := float64(agreeing) / float64(len(g.amounts))
		if consistency < opts.MinConsistency {
			continue
		}
		report.Stats.ConsistentPatterns++

		if coveredByRule(g.key, majority, rules) {
			report.Stats.AlreadyCovered++
			continue
		}

		target, err := s.store.ResolveTriple(ctx, tenant, majority)
		if errors.Is(err, common.ErrNotFound) {
			slog.Warn("Pattern targets a missing classification, skipping", "pattern", g.key)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve pattern target: %w", err)
		}

		report.Suggestions = append(report.Suggestions, g.suggestion(*target, agreeing, consistency))
	}

	sort.SliceStable(report.Suggestions, func(i, j int) bool {
		a, b := report.Suggestions[i], report.Suggestions[j]
		if a.Occurrences != b.Occurrences {
			return a.Occurrences > b.Occurrences
		}
		if a.Consistency != b.Consistency {
			return a.Consistency > b.Consistency
		}
		return a.Pattern < b.Pattern
	})
	report.Stats.Suggestions = len(report.Suggestions)

	slog.Info("Rule suggestion analysis complete",
		"tenant", tenant,
		"feedback", report.Stats.FeedbackAnalyzed,
		"patterns", report.Stats.PatternsFound,
		"suggestions", report.Stats.Suggestions)

	return report, nil
}

func groupByPattern(feedback []model.Feedback) []*patternGroup {
	index := make(map[string]*patternGroup)
	var groups []*patternGroup

	for _, fb := range feedback {
		key := normalize.PatternKey(fb.OriginalDescription)
		if key == "" {
			continue
		}
		g, ok := index[key]
		if !ok {
			g = &patternGroup{
				key:     key,
				votes:   make(map[string]int),
				triples: make(map[string]model.Triple),
			}
			index[key] = g
			groups = append(groups, g)
		}

		tk := fb.CorrectedTriple.Key()
		if _, seen := g.triples[tk]; !seen {
			g.triples[tk] = fb.CorrectedTriple
			g.order = append(g.order, tk)
		}
		g.votes[tk]++
		g.amounts = append(g.amounts, fb.Amount)
		if len(g.examples) < maxExamples && !containsString(g.examples, fb.OriginalDescription) {
			g.examples = append(g.examples, fb.OriginalDescription)
		}
	}

	return groups
}

// majority returns the most voted triple; ties go to the first seen.
func (g *patternGroup) majority() (model.Triple, int) {
	bestKey, bestVotes := "", 0
	for _, tk := range g.order {
		if g.votes[tk] > bestVotes {
			bestKey, bestVotes = tk, g.votes[tk]
		}
	}
	return g.triples[bestKey], bestVotes
}

func (g *patternGroup) suggestion(target model.ResolvedTriple, agreeing int, consistency float64) model.RuleSuggestion {
	sum, lo, hi := 0.0, math.Inf(1), math.Inf(-1)
	for _, a := range g.amounts {
		sum += a
		lo = math.Min(lo, a)
		hi = math.Max(hi, a)
	}

	return model.RuleSuggestion{
		Name:        "Auto: " + g.key,
		Pattern:     g.key,
		Regex:       patternRegex(g.key),
		Examples:    g.examples,
		Target:      target,
		Occurrences: len(g.amounts),
		Agreeing:    agreeing,
		Consistency: consistency,
		Confidence:  model.ClampConfidence(int(math.Round(consistency * 100))),
		AvgAmount:   sum / float64(len(g.amounts)),
		MinAmount:   lo,
		MaxAmount:   hi,
	}
}

// patternRegex turns a pattern key into a rule pattern tolerant of the
// digits and punctuation that PatternKey removed.
func patternRegex(key string) string {
	words := strings.Fields(key)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(words, `[\s\d\W]+`)
}

// coveredByRule reports whether an enabled rule with the same target already
// handles the pattern: either a rule pattern and the key contain one another
// once regex syntax is stripped, or a rule pattern matches the key outright.
func coveredByRule(key string, target model.Triple, rules []Rule) bool {
	for _, rule := range rules {
		if !rule.Enabled || !rule.Target.Equal(target) {
			continue
		}
		for _, p := range rule.DescriptionPatterns {
			literal := normalize.PatternKey(stripRegexSyntax(p))
			if literal != "" && (strings.Contains(key, literal) || strings.Contains(literal, key)) {
				return true
			}
			if re, err := common.CompileInsensitive(p); err == nil && re.MatchString(key) {
				return true
			}
		}
	}
	return false
}

var regexSyntax = regexp.MustCompile(`\\[a-zA-Z]|[\^$.*+?()\[\]{}|\\]`)

func stripRegexSyntax(p string) string {
	return regexSyntax.ReplaceAllString(p, " ")
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
