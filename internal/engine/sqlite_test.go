package engine

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/spice-cascade/internal/indexing"
	"github.com/Veraticus/spice-cascade/internal/metrics"
	"github.com/Veraticus/spice-cascade/internal/model"
	"github.com/Veraticus/spice-cascade/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCascadeOverSQLite drives the full feedback loop against the real store:
// unknown transaction, human correction, indexing, then automatic matches.
func TestCascadeOverSQLite(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t, "acme")
	embedder := testutil.NewFakeEmbedder()
	index := testutil.NewFakeVectorIndex()
	recorder := metrics.NewRecorder(db)

	cfg := testConfig()
	eng := New(Dependencies{Store: db, Embedder: embedder, Index: index, Metrics: recorder}, cfg)
	indexer := indexing.NewIndexer(db, embedder, index, indexing.Config{Collection: collection, Retry: cfg.Semantic.Retry})

	taxes := db.Triple("Imposte", "F24", "")
	db.Rule(model.ClassificationRule{
		Name:                "F24",
		DescriptionPatterns: []string{`F24`},
		Confidence:          98,
		Priority:            10,
		Target:              taxes,
	})

	result := eng.Classify(ctx, model.Transaction{ID: "f24", Tenant: "acme", Description: "PAGAMENTO F24 DELEGA", Amount: -1200})
	require.NotNil(t, result.Classification)
	assert.Equal(t, model.MethodRule, result.Method)
	assert.Equal(t, 98, result.Confidence)

	phone := db.Triple("Utenze", "Telefono", "TIM")
	first := model.Transaction{ID: "tim-1", Tenant: "acme", Description: "BOLLETTA TIM MOBILE", Amount: -30, Date: time.Now().AddDate(0, 0, -30)}
	_, err := db.ImportTransactions(ctx, []model.Transaction{first})
	require.NoError(t, err)

	result = eng.Classify(ctx, first)
	assert.True(t, result.NeedsReview)
	assert.Nil(t, result.Classification)

	// The user classifies it by hand.
	saved, err := db.SaveFeedback(ctx, &model.Feedback{
		Tenant:              "acme",
		OriginalDescription: first.Description,
		Amount:              first.Amount,
		Date:                first.Date,
		CorrectedTriple:     phone,
		Method:              model.MethodManual,
	})
	require.NoError(t, err)
	require.True(t, saved)
	require.NoError(t, db.ConfirmClassification(ctx, "acme", first.ID, phone))
	require.NoError(t, indexer.IndexTransaction(ctx, "acme", first.ID))
	assert.Equal(t, 1, index.Points(collection))

	next := model.Transaction{ID: "tim-2", Tenant: "acme", Description: "BOLLETTA TIM MOBILE", Amount: -30}
	result = eng.Classify(ctx, next)
	require.NotNil(t, result.Classification)
	assert.Equal(t, model.MethodExact, result.Method)
	assert.Equal(t, "Utenze > Telefono > TIM", result.Classification.Label())
	assert.False(t, result.NeedsReview)

	analytics, err := recorder.Analytics(ctx, "acme", 7)
	require.NoError(t, err)
	assert.Equal(t, 3, analytics.Total)
	assert.Equal(t, 1, analytics.NeedsReview)
	assert.Equal(t, model.RuleCounts{Total: 1, Enabled: 1}, analytics.Rules)
}
