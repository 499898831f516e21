package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Veraticus/spice-cascade/internal/model"
	"github.com/Veraticus/spice-cascade/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_SQLStore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	rec := NewRecorder(storage.NewWithDB(db))
	txn := model.Transaction{ID: "t1", Tenant: "acme"}
	result := &model.ClassificationResult{Method: model.MethodSemantic, Confidence: 84, Latency: 12 * time.Millisecond}

	t.Run("insert", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO classification_metrics").
			WithArgs(sqlmock.AnyArg(), "acme", "t1", "semantic", 84, false, 12.0, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		rec.Record(context.Background(), txn, result)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed insert does not reach the caller", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO classification_metrics").
			WillReturnError(errors.New("database is locked"))

		assert.NotPanics(t, func() { rec.Record(context.Background(), txn, result) })
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("analytics error is wrapped", func(t *testing.T) {
		mock.ExpectQuery("SELECT method").WillReturnError(errors.New("disk I/O error"))

		_, err := rec.Analytics(context.Background(), "acme", 7)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load analytics")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
