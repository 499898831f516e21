package pattern

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Veraticus/spice-cascade/internal/model"
	"github.com/Veraticus/spice-cascade/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedbackFor(tenant, desc string, target model.Triple, amount float64, age time.Duration) model.Feedback {
	return model.Feedback{
		Tenant:              tenant,
		OriginalDescription: desc,
		CorrectedTriple:     target,
		Amount:              amount,
		Method:              model.MethodManual,
		CreatedAt:           time.Now().Add(-age),
	}
}

func TestSuggester_ConsistentPatternBecomesSuggestion(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemoryStore()
	rent := store.Taxonomy("acme", "Casa", "Affitto", "")

	for i := 0; i < 10; i++ {
		store.AddFeedback(feedbackFor("acme",
			fmt.Sprintf("CANONE LOCAZIONE %d/2024", i+1), rent, 800+float64(i), time.Duration(i)*time.Hour))
	}

	report, err := NewSuggester(store).Suggest(ctx, "acme", SuggestOptions{})
	require.NoError(t, err)
	require.Len(t, report.Suggestions, 1)

	s := report.Suggestions[0]
	assert.Equal(t, "CANONE LOCAZIONE", s.Pattern)
	assert.Equal(t, "Auto: CANONE LOCAZIONE", s.Name)
	assert.Equal(t, 10, s.Occurrences)
	assert.Equal(t, 100, s.Confidence)
	assert.InDelta(t, 1.0, s.Consistency, 1e-9)
	assert.Equal(t, "Casa > Affitto", s.Target.Label())
	assert.InDelta(t, 804.5, s.AvgAmount, 1e-9)
	assert.InDelta(t, 800, s.MinAmount, 1e-9)
	assert.InDelta(t, 809, s.MaxAmount, 1e-9)
	assert.Len(t, s.Examples, 3)
	assert.Regexp(t, s.Regex, "CANONE  LOCAZIONE")
	assert.Equal(t, 10, report.Stats.FeedbackAnalyzed)
	assert.Equal(t, 1, report.Stats.Suggestions)
}

func TestSuggester_Filters(t *testing.T) {
	ctx := context.Background()

	t.Run("inconsistent pattern is dropped", func(t *testing.T) {
		store := testutil.NewMemoryStore()
		a := store.Taxonomy("acme", "Spese", "A", "")
		b := store.Taxonomy("acme", "Spese", "B", "")
		for i := 0; i < 3; i++ {
			store.AddFeedback(feedbackFor("acme", "PAGAMENTO POS ESSELUNGA", a, 50, time.Hour))
			store.AddFeedback(feedbackFor("acme", "PAGAMENTO POS ESSELUNGA", b, 50, time.Hour))
		}

		report, err := NewSuggester(store).Suggest(ctx, "acme", SuggestOptions{})
		require.NoError(t, err)
		assert.Empty(t, report.Suggestions)
		assert.Equal(t, 1, report.Stats.FrequentPatterns)
		assert.Equal(t, 0, report.Stats.ConsistentPatterns)
	})

	t.Run("rare pattern is dropped", func(t *testing.T) {
		store := testutil.NewMemoryStore()
		a := store.Taxonomy("acme", "Spese", "A", "")
		store.AddFeedback(feedbackFor("acme", "BAR CENTRALE", a, 3, time.Hour))
		store.AddFeedback(feedbackFor("acme", "BAR CENTRALE", a, 3, time.Hour))

		report, err := NewSuggester(store).Suggest(ctx, "acme", SuggestOptions{})
		require.NoError(t, err)
		assert.Empty(t, report.Suggestions)
		assert.Equal(t, 0, report.Stats.FrequentPatterns)
	})

	t.Run("pattern covered by a rule is dropped", func(t *testing.T) {
		store := testutil.NewMemoryStore()
		rent := store.Taxonomy("acme", "Casa", "Affitto", "")
		store.AddRule(model.ClassificationRule{
			Tenant:              "acme",
			Name:                "Rent",
			DescriptionPatterns: []string{`CANONE\s+LOCAZIONE`},
			Target:              rent,
			Confidence:          95,
			Enabled:             true,
		})
		for i := 0; i < 4; i++ {
			store.AddFeedback(feedbackFor("acme", "CANONE LOCAZIONE", rent, 800, time.Hour))
		}

		report, err := NewSuggester(store).Suggest(ctx, "acme", SuggestOptions{})
		require.NoError(t, err)
		assert.Empty(t, report.Suggestions)
		assert.Equal(t, 1, report.Stats.AlreadyCovered)
	})

	t.Run("lookback excludes old feedback", func(t *testing.T) {
		store := testutil.NewMemoryStore()
		rent := store.Taxonomy("acme", "Casa", "Affitto", "")
		for i := 0; i < 5; i++ {
			store.AddFeedback(feedbackFor("acme", "CANONE LOCAZIONE", rent, 800, 400*24*time.Hour))
		}

		report, err := NewSuggester(store).Suggest(ctx, "acme", SuggestOptions{Lookback: 90 * 24 * time.Hour})
		require.NoError(t, err)
		assert.Empty(t, report.Suggestions)
		assert.Equal(t, 0, report.Stats.FeedbackAnalyzed)
	})

	t.Run("consistency above one is rejected", func(t *testing.T) {
		_, err := NewSuggester(testutil.NewMemoryStore()).Suggest(ctx, "acme", SuggestOptions{MinConsistency: 1.5})
		require.Error(t, err)
	})
}

func TestSuggester_OrdersByOccurrences(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemoryStore()
	rent := store.Taxonomy("acme", "Casa", "Affitto", "")
	power := store.Taxonomy("acme", "Casa", "Luce", "")
	for i := 0; i < 3; i++ {
		store.AddFeedback(feedbackFor("acme", "CANONE LOCAZIONE", rent, 800, time.Hour))
	}
	for i := 0; i < 5; i++ {
		store.AddFeedback(feedbackFor("acme", "EDISON BOLLETTA LUCE", power, 90, time.Hour))
	}

	report, err := NewSuggester(store).Suggest(ctx, "acme", SuggestOptions{})
	require.NoError(t, err)
	require.Len(t, report.Suggestions, 2)
	assert.Equal(t, "EDISON BOLLETTA LUCE", report.Suggestions[0].Pattern)
	assert.Equal(t, "CANONE LOCAZIONE", report.Suggestions[1].Pattern)
}
