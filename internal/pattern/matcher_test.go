package pattern

import (
	"context"
	"testing"

	"github.com/Veraticus/spice-cascade/internal/model"
	"github.com/Veraticus/spice-cascade/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_Match(t *testing.T) {
	floatPtr := func(f float64) *float64 { return &f }
	target := model.Triple{CategoryID: 1, SubjectID: 2}

	tests := []struct {
		name    string
		rules   []Rule
		txn     model.Transaction
		wantIDs []int64
	}{
		{
			name: "case insensitive description match",
			rules: []Rule{
				{ID: 1, DescriptionPatterns: []string{"delega unica"}, Target: target, Enabled: true},
			},
			txn:     model.Transaction{Description: "DELEGA UNICA - F24 124/2024", Amount: -300},
			wantIDs: []int64{1},
		},
		{
			name: "any pattern is enough",
			rules: []Rule{
				{ID: 1, DescriptionPatterns: []string{"NOPE", `F24`}, Target: target, Enabled: true},
			},
			txn:     model.Transaction{Description: "Delega F24", Amount: -10},
			wantIDs: []int64{1},
		},
		{
			name: "disabled rules never match",
			rules: []Rule{
				{ID: 1, DescriptionPatterns: []string{"F24"}, Target: target, Enabled: false},
			},
			txn: model.Transaction{Description: "F24"},
		},
		{
			name: "amount range uses absolute amount",
			rules: []Rule{
				{ID: 1, AmountMin: floatPtr(100), AmountMax: floatPtr(200), Target: target, Enabled: true},
				{ID: 2, AmountMin: floatPtr(500), Target: target, Enabled: true},
			},
			txn:     model.Transaction{Description: "ANY", Amount: -150},
			wantIDs: []int64{1},
		},
		{
			name: "payment type compared case-insensitively",
			rules: []Rule{
				{ID: 1, PaymentTypes: []string{"sdd"}, Target: target, Enabled: true},
				{ID: 2, PaymentTypes: []string{"POS"}, Target: target, Enabled: true},
			},
			txn:     model.Transaction{Description: "ENEL", PaymentType: "SDD"},
			wantIDs: []int64{1},
		},
		{
			name: "invalid pattern is skipped but valid sibling still matches",
			rules: []Rule{
				{ID: 1, DescriptionPatterns: []string{"([unclosed", "ENEL"}, Target: target, Enabled: true},
			},
			txn:     model.Transaction{Description: "ENEL ENERGIA"},
			wantIDs: []int64{1},
		},
		{
			name: "rule whose only pattern is invalid never matches",
			rules: []Rule{
				{ID: 1, DescriptionPatterns: []string{"([unclosed"}, Target: target, Enabled: true},
			},
			txn: model.Transaction{Description: "([unclosed"},
		},
		{
			name: "priority descending then id ascending",
			rules: []Rule{
				{ID: 3, Priority: 5, Target: target, Enabled: true},
				{ID: 2, Priority: 10, Target: target, Enabled: true},
				{ID: 1, Priority: 5, Target: target, Enabled: true},
			},
			txn:     model.Transaction{Description: "X"},
			wantIDs: []int64{2, 1, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches := NewMatcher(tt.rules).Match(tt.txn)
			var ids []int64
			for _, m := range matches {
				ids = append(ids, m.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestMatcher_TieBreakIsDeterministic(t *testing.T) {
	rules := []Rule{
		{ID: 7, Priority: 1, Enabled: true},
		{ID: 4, Priority: 1, Enabled: true},
	}
	txn := model.Transaction{Description: "ANYTHING"}

	for i := 0; i < 20; i++ {
		matches := NewMatcher(rules).Match(txn)
		require.Len(t, matches, 2)
		assert.Equal(t, int64(4), matches[0].ID)
	}
}

func TestStage_Classify(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemoryStore()
	taxes := store.Taxonomy("acme", "Imposte", "F24", "")
	rule := store.AddRule(model.ClassificationRule{
		Tenant:              "acme",
		Name:                "F24",
		DescriptionPatterns: []string{`F24`, `DELEGA\s+UNICA`},
		Target:              taxes,
		Priority:            100,
		Confidence:          98,
		Reasoning:           "Tax payment via F24",
		Enabled:             true,
	})

	stage := NewStage(store)

	t.Run("matching rule classifies", func(t *testing.T) {
		result, err := stage.Classify(ctx, model.Transaction{
			Tenant:      "acme",
			Description: "Delega Unica - F24 124/2024",
			Amount:      -1250,
		})
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, model.MethodRule, result.Method)
		assert.Equal(t, 98, result.Confidence)
		assert.Equal(t, "Imposte > F24", result.Classification.Label())
		assert.Equal(t, rule.ID, result.Debug.RuleID)
		assert.True(t, result.Success)
		assert.False(t, result.NeedsReview)
	})

	t.Run("other tenant falls through", func(t *testing.T) {
		result, err := stage.Classify(ctx, model.Transaction{Tenant: "other", Description: "F24"})
		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("rule with vanished target is skipped", func(t *testing.T) {
		fallback := store.Taxonomy("acme", "Imposte", "Altro", "")
		store.AddRule(model.ClassificationRule{
			Tenant:              "acme",
			Name:                "Fallback",
			DescriptionPatterns: []string{`UNICA`},
			Target:              fallback,
			Priority:            1,
			Confidence:          80,
			Enabled:             true,
		})
		store.DeleteSubject(taxes.SubjectID)

		result, err := stage.Classify(ctx, model.Transaction{Tenant: "acme", Description: "DELEGA UNICA"})
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, 80, result.Confidence)
		assert.Equal(t, "Imposte > Altro", result.Classification.Label())
	})
}
