package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Veraticus/spice-cascade/internal/common"
	"github.com/Veraticus/spice-cascade/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tenant = "acme"

// createTestStorage opens a migrated database in a temp dir.
func createTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func mustTriple(t *testing.T, s *SQLiteStorage, category, subject, detail string) model.Triple {
	t.Helper()
	triple, err := s.EnsureTriple(context.Background(), tenant, category, subject, detail)
	require.NoError(t, err)
	return triple
}

func TestMigrate_IsIdempotent(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.Migrate(ctx))
	v, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, v)
}

func TestNewSQLiteStorage_InMemory(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	require.NoError(t, store.Migrate(context.Background()))

	_, err = NewSQLiteStorage("  ")
	assert.ErrorIs(t, err, ErrEmptyString)
}

func TestTaxonomy(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	t.Run("ensure is idempotent", func(t *testing.T) {
		first := mustTriple(t, store, "Utilities", "Edison", "Luce")
		second := mustTriple(t, store, "Utilities", "Edison", "Luce")
		assert.True(t, first.Equal(second))

		subjectLevel := mustTriple(t, store, "Utilities", "Edison", "")
		assert.Nil(t, subjectLevel.DetailID)
		assert.Equal(t, first.SubjectID, subjectLevel.SubjectID)
	})

	t.Run("resolve", func(t *testing.T) {
		triple := mustTriple(t, store, "Casa", "Affitto", "")
		resolved, err := store.ResolveTriple(ctx, tenant, triple)
		require.NoError(t, err)
		assert.Equal(t, "Casa > Affitto", resolved.Label())

		withDetail := mustTriple(t, store, "Utilities", "Edison", "Luce")
		resolved, err = store.ResolveTriple(ctx, tenant, withDetail)
		require.NoError(t, err)
		assert.Equal(t, "Utilities > Edison > Luce", resolved.Label())
	})

	t.Run("resolve rejects foreign tenant and mismatched parents", func(t *testing.T) {
		triple := mustTriple(t, store, "Casa", "Affitto", "")
		_, err := store.ResolveTriple(ctx, "other", triple)
		assert.ErrorIs(t, err, common.ErrNotFound)

		other := mustTriple(t, store, "Utilities", "Edison", "Luce")
		mixed := model.Triple{CategoryID: triple.CategoryID, SubjectID: other.SubjectID}
		_, err = store.ResolveTriple(ctx, tenant, mixed)
		assert.ErrorIs(t, err, common.ErrNotFound)

		wrongDetail := model.Triple{CategoryID: triple.CategoryID, SubjectID: triple.SubjectID, DetailID: other.DetailID}
		_, err = store.ResolveTriple(ctx, tenant, wrongDetail)
		assert.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("duplicate category", func(t *testing.T) {
		_, err := store.CreateCategory(ctx, tenant, "Casa")
		assert.ErrorIs(t, err, common.ErrDuplicateEntry)

		_, err = store.CreateCategory(ctx, "other", "Casa")
		assert.NoError(t, err)
	})

	t.Run("list", func(t *testing.T) {
		all, err := store.ListTaxonomy(ctx, tenant)
		require.NoError(t, err)
		labels := make([]string, len(all))
		for i, r := range all {
			labels[i] = r.Label()
		}
		assert.Equal(t, []string{"Casa > Affitto", "Utilities > Edison", "Utilities > Edison > Luce"}, labels)
	})

	t.Run("deleted subject stops resolving", func(t *testing.T) {
		triple := mustTriple(t, store, "Svago", "Cinema", "")
		require.NoError(t, store.DeleteSubject(ctx, tenant, triple.SubjectID))
		_, err := store.ResolveTriple(ctx, tenant, triple)
		assert.ErrorIs(t, err, common.ErrNotFound)
		assert.ErrorIs(t, store.DeleteSubject(ctx, tenant, triple.SubjectID), common.ErrNotFound)
	})
}

func TestRules(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	taxes := mustTriple(t, store, "Imposte", "F24", "")
	lo := 10.0

	low := &model.ClassificationRule{
		Tenant: tenant, Name: "generic", Confidence: 80, Priority: 1, Enabled: true,
		DescriptionPatterns: []string{"DELEGA"}, Target: taxes,
	}
	high := &model.ClassificationRule{
		Tenant: tenant, Name: "f24", Confidence: 98, Priority: 10, Enabled: true,
		DescriptionPatterns: []string{`F24`, `DELEGA\s+UNIFICATA`}, PaymentTypes: []string{"F24"},
		AmountMin: &lo, Target: taxes, Reasoning: "tax payment",
	}
	disabled := &model.ClassificationRule{
		Tenant: tenant, Name: "off", Confidence: 90, Priority: 50, Target: taxes,
	}
	for _, r := range []*model.ClassificationRule{low, high, disabled} {
		require.NoError(t, store.CreateRule(ctx, r))
		assert.NotZero(t, r.ID)
	}

	rules, err := store.GetEnabledRules(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "f24", rules[0].Name)
	assert.Equal(t, []string{`F24`, `DELEGA\s+UNIFICATA`}, rules[0].DescriptionPatterns)
	assert.Equal(t, []string{"F24"}, rules[0].PaymentTypes)
	require.NotNil(t, rules[0].AmountMin)
	assert.InDelta(t, 10.0, *rules[0].AmountMin, 1e-9)
	assert.Nil(t, rules[0].AmountMax)
	assert.True(t, rules[0].Target.Equal(taxes))
	assert.Empty(t, rules[1].PaymentTypes)

	all, err := store.ListRules(ctx, tenant)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, store.SetRuleEnabled(ctx, tenant, high.ID, false))
	rules, err = store.GetEnabledRules(ctx, tenant)
	require.NoError(t, err)
	assert.Len(t, rules, 1)

	assert.ErrorIs(t, store.SetRuleEnabled(ctx, "other", low.ID, false), common.ErrNotFound)
	require.NoError(t, store.DeleteRule(ctx, tenant, low.ID))
	assert.ErrorIs(t, store.DeleteRule(ctx, tenant, low.ID), common.ErrNotFound)

	t.Run("invalid rules are rejected", func(t *testing.T) {
		bad := &model.ClassificationRule{Tenant: tenant, Name: "x", Confidence: 150, Target: taxes}
		assert.ErrorIs(t, store.CreateRule(ctx, bad), common.ErrInvalidInput)

		dangling := &model.ClassificationRule{Tenant: tenant, Name: "x", Confidence: 50,
			Target: model.Triple{CategoryID: 999, SubjectID: 999}}
		assert.ErrorIs(t, store.CreateRule(ctx, dangling), common.ErrNotFound)
	})
}
