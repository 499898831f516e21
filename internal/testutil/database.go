// Package testutil provides shared test fixtures: a migrated in-memory
// database, an in-memory store and fakes for the embedding and vector
// services.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/spice-cascade/internal/model"
	"github.com/Veraticus/spice-cascade/internal/storage"
)

// TestDB is a migrated in-memory database.
type TestDB struct {
	*storage.SQLiteStorage
	t      *testing.T
	Tenant string
}

// SetupTestDB creates a migrated in-memory database closed at test cleanup.
func SetupTestDB(t *testing.T, tenant string) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return &TestDB{SQLiteStorage: store, t: t, Tenant: tenant}
}

// Triple returns the target named category > subject > detail, creating it
// as needed. Pass an empty detail for a subject-level target.
func (db *TestDB) Triple(category, subject, detail string) model.Triple {
	db.t.Helper()
	triple, err := db.EnsureTriple(context.Background(), db.Tenant, category, subject, detail)
	if err != nil {
		db.t.Fatalf("failed to create %s > %s: %v", category, subject, err)
	}
	return triple
}

// Rule stores an enabled rule for the database tenant.
func (db *TestDB) Rule(rule model.ClassificationRule) model.ClassificationRule {
	db.t.Helper()
	rule.Tenant = db.Tenant
	rule.Enabled = true
	if err := db.CreateRule(context.Background(), &rule); err != nil {
		db.t.Fatalf("failed to create rule %q: %v", rule.Name, err)
	}
	return rule
}

// Completed imports txn and confirms it as target.
func (db *TestDB) Completed(txn model.Transaction, target model.Triple) {
	db.t.Helper()
	ctx := context.Background()
	txn.Tenant = db.Tenant
	if _, err := db.ImportTransactions(ctx, []model.Transaction{txn}); err != nil {
		db.t.Fatalf("failed to import %s: %v", txn.ID, err)
	}
	if err := db.ConfirmClassification(ctx, db.Tenant, txn.ID, target); err != nil {
		db.t.Fatalf("failed to confirm %s: %v", txn.ID, err)
	}
}
