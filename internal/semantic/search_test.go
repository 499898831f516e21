package semantic

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Veraticus/spice-cascade/internal/model"
	"github.com/Veraticus/spice-cascade/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const collection = "transactions"

type fixture struct {
	store    *testutil.MemoryStore
	embedder *testutil.FakeEmbedder
	index    *testutil.FakeVectorIndex
	searcher *Searcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    testutil.NewMemoryStore(),
		embedder: testutil.NewFakeEmbedder(),
		index:    testutil.NewFakeVectorIndex(),
	}
	require.NoError(t, f.index.CreateCollection(context.Background(), collection, f.embedder.Dims))

	cfg := DefaultConfig(collection, time.Second)
	cfg.Retry.Sleep = func(time.Duration) <-chan time.Time {
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}
	f.searcher = NewSearcher(f.embedder, f.index, f.store, cfg)
	return f
}

func (f *fixture) point(t *testing.T, id, tenant, desc string, amount float64, target model.Triple, age time.Duration, frequency int) {
	t.Helper()
	ctx := context.Background()
	resolved, err := f.store.ResolveTriple(ctx, tenant, target)
	require.NoError(t, err)
	vec, err := f.embedder.Embed(ctx, EmbeddingText(desc, amount))
	require.NoError(t, err)
	require.NoError(t, f.index.Upsert(ctx, collection, []model.VectorPoint{{
		ID:     id,
		Vector: vec,
		Payload: model.VectorPayload{
			TransactionID:           id,
			Tenant:                  tenant,
			Description:             desc,
			Amount:                  amount,
			Date:                    time.Now().Add(-age),
			Target:                  *resolved,
			ClassificationFrequency: frequency,
		},
	}}))
}

func TestSearcher_ConfidentCluster(t *testing.T) {
	f := newFixture(t)
	streaming := f.store.Taxonomy("acme", "Svago", "Streaming", "")
	for i := 0; i < 5; i++ {
		f.point(t, fmt.Sprintf("t%d", i), "acme", "NETFLIX ABBONAMENTO", -12.99, streaming, time.Hour, 20)
	}

	result, err := f.searcher.Classify(context.Background(), model.Transaction{
		Tenant: "acme", Description: "NETFLIX ABBONAMENTO", Amount: -12.99,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Classification)
	assert.Equal(t, model.MethodSemantic, result.Method)
	assert.Equal(t, 100, result.Confidence)
	assert.Equal(t, "Svago > Streaming", result.Classification.Label())
	assert.Len(t, result.Similar, 3)
	assert.Empty(t, result.Suggestions)
	assert.Equal(t, 5, result.Debug.ClusterSize)
	assert.False(t, result.NeedsReview)

	require.NotNil(t, result.Debug.VectorScore)
	require.NotNil(t, result.Debug.AmountScore)
	require.NotNil(t, result.Debug.RecencyScore)
	require.NotNil(t, result.Debug.FrequencyScore)
	assert.InDelta(t, 1.0, *result.Debug.AmountScore, 1e-9)
	assert.InDelta(t, 1.0, *result.Debug.RecencyScore, 0.01)
	assert.InDelta(t, 1.0, *result.Debug.FrequencyScore, 1e-9)
}

func TestSearcher_BelowGateSuggests(t *testing.T) {
	f := newFixture(t)
	a := f.store.Taxonomy("acme", "Spese", "Alfa", "")
	b := f.store.Taxonomy("acme", "Spese", "Beta", "")
	old := 2 * 365 * 24 * time.Hour
	f.point(t, "a1", "acme", "AMAZON MARKETPLACE", -30, a, old, 0)
	f.point(t, "a2", "acme", "AMAZON MARKETPLACE", -30, a, old, 0)
	f.point(t, "b1", "acme", "AMAZON MARKETPLACE", -30, b, old, 0)
	f.point(t, "b2", "acme", "AMAZON MARKETPLACE", -30, b, old, 0)

	result, err := f.searcher.Classify(context.Background(), model.Transaction{
		Tenant: "acme", Description: "AMAZON MARKETPLACE", Amount: -30,
	})
	require.NoError(t, err)
	assert.Nil(t, result.Classification)
	assert.True(t, result.NeedsReview)
	assert.Equal(t, model.MethodManual, result.Method)
	require.Len(t, result.Suggestions, 2)
	// 100 * (0.70*0.5 + 0.5*0.3 + 0.70*0.2)
	assert.Equal(t, 64, result.Suggestions[0].Confidence)
	assert.Equal(t, 2, result.Suggestions[0].Support)
	assert.Equal(t, "Spese > Alfa", result.Suggestions[0].Target.Label())
}

func TestSearcher_NoHits(t *testing.T) {
	f := newFixture(t)

	result, err := f.searcher.Classify(context.Background(), model.Transaction{
		Tenant: "acme", Description: "PAGAMENTO POS SUPERMERCATO XYZ", Amount: -45.30,
	})
	require.NoError(t, err)
	assert.Nil(t, result.Classification)
	assert.True(t, result.NeedsReview)
	assert.NotNil(t, result.Suggestions)
	assert.Empty(t, result.Suggestions)
}

func TestSearcher_TenantIsolation(t *testing.T) {
	f := newFixture(t)
	other := f.store.Taxonomy("globex", "Svago", "Streaming", "")
	f.point(t, "g1", "globex", "NETFLIX ABBONAMENTO", -12.99, other, time.Hour, 20)

	result, err := f.searcher.Classify(context.Background(), model.Transaction{
		Tenant: "acme", Description: "NETFLIX ABBONAMENTO", Amount: -12.99,
	})
	require.NoError(t, err)
	assert.Nil(t, result.Classification)
	assert.Empty(t, result.Suggestions)
}

func TestSearcher_DropsVanishedTargets(t *testing.T) {
	f := newFixture(t)
	streaming := f.store.Taxonomy("acme", "Svago", "Streaming", "")
	f.point(t, "t1", "acme", "NETFLIX ABBONAMENTO", -12.99, streaming, time.Hour, 20)
	f.store.DeleteSubject(streaming.SubjectID)

	result, err := f.searcher.Classify(context.Background(), model.Transaction{
		Tenant: "acme", Description: "NETFLIX ABBONAMENTO", Amount: -12.99,
	})
	require.NoError(t, err)
	assert.Nil(t, result.Classification)
	assert.Empty(t, result.Suggestions)
}

func TestSearcher_FailOpen(t *testing.T) {
	t.Run("embedding exhausted", func(t *testing.T) {
		f := newFixture(t)
		f.embedder.Err = errors.New("503 service unavailable")

		result, err := f.searcher.Classify(context.Background(), model.Transaction{
			Tenant: "acme", Description: "NETFLIX", Amount: -10,
		})
		require.NoError(t, err)
		assert.True(t, result.NeedsReview)
		assert.True(t, result.Success)
		assert.True(t, result.Debug.EmbeddingFailed)
		assert.Equal(t, 3, f.embedder.Calls())
	})

	t.Run("search exhausted", func(t *testing.T) {
		f := newFixture(t)
		f.index.SearchErr = errors.New("connection refused")

		result, err := f.searcher.Classify(context.Background(), model.Transaction{
			Tenant: "acme", Description: "NETFLIX", Amount: -10,
		})
		require.NoError(t, err)
		assert.True(t, result.NeedsReview)
		assert.True(t, result.Debug.SearchFailed)
	})

	t.Run("missing collection is empty", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.index.DeleteCollection(context.Background(), collection))

		result, err := f.searcher.Classify(context.Background(), model.Transaction{
			Tenant: "acme", Description: "NETFLIX", Amount: -10,
		})
		require.NoError(t, err)
		assert.True(t, result.NeedsReview)
		assert.Nil(t, result.Debug.VectorScore)
		assert.False(t, result.Debug.SearchFailed)
	})
}

func TestAmountBucket(t *testing.T) {
	tests := []struct {
		want   string
		amount float64
	}{
		{BucketMicro, 9.99},
		{BucketMicro, -3},
		{BucketSmall, 10},
		{BucketSmall, -49.99},
		{BucketMedium, 50},
		{BucketMedium, 149.99},
		{BucketLarge, 150},
		{BucketLarge, -499},
		{BucketXLarge, 500},
		{BucketXLarge, -12000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AmountBucket(tt.amount), "amount %v", tt.amount)
	}
}

func TestEmbeddingText(t *testing.T) {
	assert.Equal(t, "EDISON BOLLETTA amount:medium", EmbeddingText("  EDISON   BOLLETTA ", -60))
}
