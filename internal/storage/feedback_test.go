package storage

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/spice-cascade/internal/common"
	"github.com/Veraticus/spice-cascade/internal/model"
	"github.com/Veraticus/spice-cascade/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveFeedback(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	edison := mustTriple(t, store, "Utilities", "Edison", "")
	enel := mustTriple(t, store, "Utilities", "Enel", "")

	t.Run("correction is stored", func(t *testing.T) {
		fb := &model.Feedback{
			Tenant:              tenant,
			OriginalDescription: "SDD EDISON ENERGIA",
			Amount:              -84.2,
			Date:                time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
			SuggestedTriple:     &enel,
			CorrectedTriple:     edison,
			Method:              model.MethodSemantic,
			OriginalConfidence:  72,
		}
		saved, err := store.SaveFeedback(ctx, fb)
		require.NoError(t, err)
		assert.True(t, saved)
		assert.NotEmpty(t, fb.ID)

		list, err := store.ListFeedback(ctx, service.FeedbackFilter{Tenant: tenant})
		require.NoError(t, err)
		require.Len(t, list, 1)
		got := list[0]
		assert.Equal(t, fb.ID, got.ID)
		assert.True(t, got.CorrectedTriple.Equal(edison))
		require.NotNil(t, got.SuggestedTriple)
		assert.True(t, got.SuggestedTriple.Equal(enel))
		assert.Equal(t, model.MethodSemantic, got.Method)
		assert.Equal(t, 72, got.OriginalConfidence)
		assert.True(t, got.Date.Equal(fb.Date))
	})

	t.Run("confirmation of the suggestion is not stored", func(t *testing.T) {
		saved, err := store.SaveFeedback(ctx, &model.Feedback{
			Tenant:              tenant,
			OriginalDescription: "SDD EDISON ENERGIA",
			SuggestedTriple:     &edison,
			CorrectedTriple:     edison,
		})
		require.NoError(t, err)
		assert.False(t, saved)
	})

	t.Run("invalid feedback", func(t *testing.T) {
		_, err := store.SaveFeedback(ctx, &model.Feedback{Tenant: tenant, OriginalDescription: "X"})
		assert.ErrorIs(t, err, common.ErrInvalidInput)
		_, err = store.SaveFeedback(ctx, &model.Feedback{Tenant: tenant, CorrectedTriple: edison})
		assert.ErrorIs(t, err, common.ErrInvalidInput)
		_, err = store.SaveFeedback(ctx, nil)
		assert.ErrorIs(t, err, common.ErrInvalidInput)
	})
}

func TestListFeedback_Filters(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	edison := mustTriple(t, store, "Utilities", "Edison", "")
	esselunga := mustTriple(t, store, "Spesa", "Esselunga", "")
	now := time.Now().UTC()

	records := []model.Feedback{
		{Tenant: tenant, OriginalDescription: "SDD EDISON ENERGIA", CorrectedTriple: edison, CreatedAt: now.AddDate(0, 0, -1)},
		{Tenant: tenant, OriginalDescription: "POS ESSELUNGA MILANO", CorrectedTriple: esselunga, CreatedAt: now.AddDate(0, 0, -2)},
		{Tenant: tenant, OriginalDescription: "POS ESSELUNGA 100%_OFF", CorrectedTriple: esselunga, CreatedAt: now.AddDate(0, -8, 0)},
		{Tenant: "other", OriginalDescription: "POS ESSELUNGA", CorrectedTriple: esselunga, CreatedAt: now},
	}
	for i := range records {
		_, err := store.SaveFeedback(ctx, &records[i])
		require.NoError(t, err)
	}
	since := now.AddDate(0, -6, 0)

	tests := []struct {
		name   string
		filter service.FeedbackFilter
		want   []string
	}{
		{
			name:   "tenant, newest first",
			filter: service.FeedbackFilter{Tenant: tenant},
			want:   []string{"SDD EDISON ENERGIA", "POS ESSELUNGA MILANO", "POS ESSELUNGA 100%_OFF"},
		},
		{
			name:   "since",
			filter: service.FeedbackFilter{Tenant: tenant, Since: &since},
			want:   []string{"SDD EDISON ENERGIA", "POS ESSELUNGA MILANO"},
		},
		{
			name:   "until",
			filter: service.FeedbackFilter{Tenant: tenant, Until: &since},
			want:   []string{"POS ESSELUNGA 100%_OFF"},
		},
		{
			name:   "contains any, case-insensitive",
			filter: service.FeedbackFilter{Tenant: tenant, Contains: []string{"milano", "energia"}},
			want:   []string{"SDD EDISON ENERGIA", "POS ESSELUNGA MILANO"},
		},
		{
			name:   "like wildcards are literal",
			filter: service.FeedbackFilter{Tenant: tenant, Contains: []string{"%_"}},
			want:   []string{"POS ESSELUNGA 100%_OFF"},
		},
		{
			name:   "corrected to",
			filter: service.FeedbackFilter{Tenant: tenant, CorrectedTo: &esselunga},
			want:   []string{"POS ESSELUNGA MILANO", "POS ESSELUNGA 100%_OFF"},
		},
		{
			name:   "limit",
			filter: service.FeedbackFilter{Tenant: tenant, Limit: 1},
			want:   []string{"SDD EDISON ENERGIA"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := store.ListFeedback(ctx, tt.filter)
			require.NoError(t, err)
			got := make([]string, len(list))
			for i, fb := range list {
				got[i] = fb.OriginalDescription
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCountCorrectionsAndEntityUsage(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	edison := mustTriple(t, store, "Utilities", "Edison", "")
	luce := mustTriple(t, store, "Utilities", "Edison", "Luce")
	gone := mustTriple(t, store, "Svago", "Cinema", "")
	now := time.Now().UTC()

	add := func(target model.Triple, amount float64, age time.Duration) {
		_, err := store.SaveFeedback(ctx, &model.Feedback{
			Tenant:              tenant,
			OriginalDescription: "SDD EDISON",
			Amount:              amount,
			CorrectedTriple:     target,
			CreatedAt:           now.Add(-age),
		})
		require.NoError(t, err)
	}
	add(edison, -80, time.Hour)
	add(edison, -100, 2*time.Hour)
	add(luce, -50, time.Hour)
	add(gone, -9, time.Hour)
	add(edison, -1000, 400*24*time.Hour)
	require.NoError(t, store.DeleteSubject(ctx, tenant, gone.SubjectID))

	since := now.AddDate(0, 0, -365)
	counts, err := store.CountCorrections(ctx, tenant, since)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[edison.Key()])
	assert.Equal(t, 1, counts[luce.Key()])
	assert.Equal(t, 1, counts[gone.Key()], "counts do not resolve targets")

	usage, err := store.GetEntityUsage(ctx, tenant, since)
	require.NoError(t, err)
	require.Len(t, usage, 2)
	assert.Equal(t, "Utilities > Edison", usage[0].Target.Label())
	assert.Equal(t, 2, usage[0].UsageCount)
	assert.InDelta(t, -90.0, usage[0].AverageAmount, 1e-9)
	assert.Equal(t, "Utilities > Edison > Luce", usage[1].Target.Label())
}
