package entity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Veraticus/spice-cascade/internal/model"
	"github.com/Veraticus/spice-cascade/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(store *testutil.MemoryStore, target model.Triple, n int, amount float64) {
	for i := 0; i < n; i++ {
		store.AddFeedback(model.Feedback{
			Tenant:              "acme",
			OriginalDescription: "SOMETHING",
			CorrectedTriple:     target,
			Amount:              amount,
			CreatedAt:           time.Now().Add(-time.Duration(i+1) * 24 * time.Hour),
		})
	}
}

func TestMatcher_Classify(t *testing.T) {
	ctx := context.Background()

	t.Run("frequent entity at similar amount matches", func(t *testing.T) {
		store := testutil.NewMemoryStore()
		edison := store.Taxonomy("acme", "Utenze", "Edison", "")
		seed(store, edison, 12, -95)

		result, err := NewMatcher(store, DefaultConfig()).Classify(ctx, model.Transaction{
			Tenant:      "acme",
			Description: "ADDEBITO SDD EDISON ENERGIA RIF 99812",
			Amount:      -100,
		})
		require.NoError(t, err)
		require.NotNil(t, result)

		// name 15+2*6=27, frequency 30, amount 30
		assert.Equal(t, 87, result.Confidence)
		assert.Equal(t, model.MethodEntityMatch, result.Method)
		assert.Equal(t, "Utenze > Edison", result.Classification.Label())
		assert.InDelta(t, 27, *result.Debug.NameScore, 1e-9)
		assert.InDelta(t, 30, *result.Debug.FrequencyScore, 1e-9)
	})

	t.Run("whole description equal to the name scores maximum", func(t *testing.T) {
		store := testutil.NewMemoryStore()
		edison := store.Taxonomy("acme", "Utenze", "Edison", "")
		seed(store, edison, 10, 50)

		result, err := NewMatcher(store, DefaultConfig()).Classify(ctx, model.Transaction{
			Tenant: "acme", Description: "edison", Amount: 50,
		})
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, 100, result.Confidence)
	})

	t.Run("detail name counts and prefers the longer name", func(t *testing.T) {
		store := testutil.NewMemoryStore()
		target := store.Taxonomy("acme", "Auto", "Carburante", "Esso Station")
		seed(store, target, 10, 60)

		result, err := NewMatcher(store, DefaultConfig()).Classify(ctx, model.Transaction{
			Tenant: "acme", Description: "POS ESSO STATION MILANO", Amount: 60,
		})
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, "Auto > Carburante > Esso Station", result.Classification.Label())
		assert.InDelta(t, 35, *result.Debug.NameScore, 1e-9)
	})

	t.Run("rare entity is rejected", func(t *testing.T) {
		store := testutil.NewMemoryStore()
		edison := store.Taxonomy("acme", "Utenze", "Edison", "")
		seed(store, edison, 2, -95)

		result, err := NewMatcher(store, DefaultConfig()).Classify(ctx, model.Transaction{
			Tenant: "acme", Description: "EDISON ENERGIA", Amount: -95,
		})
		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("short names are ignored", func(t *testing.T) {
		store := testutil.NewMemoryStore()
		tv := store.Taxonomy("acme", "Svago", "TV", "")
		seed(store, tv, 20, 10)

		result, err := NewMatcher(store, DefaultConfig()).Classify(ctx, model.Transaction{
			Tenant: "acme", Description: "ABBONAMENTO TV", Amount: 10,
		})
		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("store errors propagate", func(t *testing.T) {
		store := testutil.NewMemoryStore()
		store.Err = errors.New("db down")

		_, err := NewMatcher(store, DefaultConfig()).Classify(ctx, model.Transaction{
			Tenant: "acme", Description: "EDISON",
		})
		require.Error(t, err)
	})
}
