package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/spice-cascade/internal/common"
	"github.com/Veraticus/spice-cascade/internal/model"
	"github.com/Veraticus/spice-cascade/internal/service"
)

// classifiedSelect reads a transaction, its resolved target and how many
// completed transactions of the tenant share that target.
const classifiedSelect = `
	SELECT t.id, t.tenant, t.date, t.description, t.payment_type, t.owner_id, t.amount, t.status,
		t.category_id, t.subject_id, t.detail_id, c.name, s.name, d.name,
		(SELECT COUNT(*) FROM transactions f
			WHERE f.tenant = t.tenant AND f.status = 'completed'
			AND f.category_id = t.category_id AND f.subject_id = t.subject_id
			AND f.detail_id IS t.detail_id)
	FROM transactions t
	LEFT JOIN categories c ON c.id = t.category_id
	LEFT JOIN subjects s ON s.id = t.subject_id
	LEFT JOIN details d ON d.id = t.detail_id`

// ImportTransactions stores transactions as pending. Rows whose hash is
// already present are skipped; the number actually inserted is returned.
func (s *SQLiteStorage) ImportTransactions(ctx context.Context, transactions []model.Transaction) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateTransactions(transactions); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO transactions (
			id, tenant, hash, date, description, payment_type, owner_id, amount, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := utc(time.Now())
	inserted := 0
	for _, txn := range transactions {
		res, err := stmt.ExecContext(ctx,
			txn.ID, txn.Tenant, txn.GenerateHash(), utc(txn.Date),
			txn.Description, strings.ToUpper(strings.TrimSpace(txn.PaymentType)), txn.OwnerID,
			txn.Amount, string(model.StatusPending), now)
		if err != nil {
			return 0, fmt.Errorf("failed to insert transaction %s: %w", txn.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit import: %w", err)
	}

	slog.Info("Imported transactions",
		"received", len(transactions),
		"inserted", inserted,
		"duplicates", len(transactions)-inserted)
	return inserted, nil
}

// GetClassifiedTransaction returns a transaction in any state, with its
// target resolved when it has one.
func (s *SQLiteStorage) GetClassifiedTransaction(ctx context.Context, tenant, id string) (*model.ClassifiedTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, classifiedSelect+` WHERE t.tenant = ? AND t.id = ?`, tenant, id)
	txn, err := scanClassified(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// ListClassifiedTransactions returns completed transactions ordered by id.
func (s *SQLiteStorage) ListClassifiedTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.ClassifiedTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	where := []string{"t.tenant = ?", "t.status = 'completed'"}
	args := []any{filter.Tenant}
	if len(filter.IDs) > 0 {
		where = append(where, "t.id IN ("+placeholders(len(filter.IDs))+")")
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}

	query := classifiedSelect + " WHERE " + strings.Join(where, " AND ") + " ORDER BY t.id"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, max(filter.Offset, 0))
	} else if filter.Offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, filter.Offset)
	}

	return s.queryClassified(ctx, query, args...)
}

// ListPendingTransactions returns up to limit transactions that still need a
// classification, oldest first.
func (s *SQLiteStorage) ListPendingTransactions(ctx context.Context, tenant string, limit int) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	query := classifiedSelect + ` WHERE t.tenant = ? AND t.status = 'pending' ORDER BY t.date, t.id`
	args := []any{tenant}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	classified, err := s.queryClassified(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	out := make([]model.Transaction, len(classified))
	for i, c := range classified {
		out[i] = c.Transaction
	}
	return out, nil
}

// ConfirmClassification marks a transaction completed with target.
func (s *SQLiteStorage) ConfirmClassification(ctx context.Context, tenant, id string, target model.Triple) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTriple(target); err != nil {
		return err
	}
	if _, err := s.ResolveTriple(ctx, tenant, target); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = 'completed', category_id = ?, subject_id = ?, detail_id = ?, classified_at = ?
		WHERE tenant = ? AND id = ?`,
		target.CategoryID, target.SubjectID, nullInt64(target.DetailID), utc(time.Now()),
		tenant, id)
	if err != nil {
		return fmt.Errorf("failed to confirm classification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	return nil
}

// MarkForReview parks a pending transaction for manual review.
func (s *SQLiteStorage) MarkForReview(ctx context.Context, tenant, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET status = 'review' WHERE tenant = ? AND id = ? AND status = 'pending'`,
		tenant, id)
	if err != nil {
		return fmt.Errorf("failed to mark for review: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pending transaction %s: %w", id, common.ErrNotFound)
	}
	return nil
}

// CountTransactions counts tenant's transactions by status.
func (s *SQLiteStorage) CountTransactions(ctx context.Context, tenant string) (map[model.TransactionStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM transactions WHERE tenant = ? GROUP BY status`, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[model.TransactionStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[model.TransactionStatus(status)] = n
	}
	return counts, rows.Err()
}

func (s *SQLiteStorage) queryClassified(ctx context.Context, query string, args ...any) ([]model.ClassifiedTransaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ClassifiedTransaction
	for rows.Next() {
		txn, err := scanClassified(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanClassified(row scanner) (*model.ClassifiedTransaction, error) {
	var (
		txn                       model.ClassifiedTransaction
		status                    string
		categoryID, subjectID     sql.NullInt64
		detailID                  sql.NullInt64
		categoryName, subjectName sql.NullString
		detailName                sql.NullString
	)
	err := row.Scan(
		&txn.ID, &txn.Tenant, &txn.Date, &txn.Description, &txn.PaymentType, &txn.OwnerID, &txn.Amount, &status,
		&categoryID, &subjectID, &detailID, &categoryName, &subjectName, &detailName,
		&txn.ClassificationFrequency,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}

	txn.Status = model.TransactionStatus(status)
	if categoryID.Valid && subjectID.Valid {
		txn.Target = model.ResolvedTriple{
			Triple: model.Triple{
				CategoryID: categoryID.Int64,
				SubjectID:  subjectID.Int64,
				DetailID:   int64Ptr(detailID),
			},
			CategoryName: categoryName.String,
			SubjectName:  subjectName.String,
			DetailName:   stringPtr(detailName),
		}
	}
	return &txn, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
