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
	sqlite3 "github.com/mattn/go-sqlite3"
)

// CreateCategory creates a category for tenant.
func (s *SQLiteStorage) CreateCategory(ctx context.Context, tenant, name string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenant, "tenant"); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	cat := model.Category{Tenant: tenant, Name: strings.TrimSpace(name), CreatedAt: utc(time.Now())}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (tenant, name, created_at) VALUES (?, ?, ?)`,
		cat.Tenant, cat.Name, cat.CreatedAt)
	if err != nil {
		return nil, wrapConstraint(err, "category %q", cat.Name)
	}
	if cat.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("failed to get category ID: %w", err)
	}

	slog.Debug("created category", "tenant", tenant, "name", cat.Name, "id", cat.ID)
	return &cat, nil
}

// CreateSubject creates a subject under categoryID.
func (s *SQLiteStorage) CreateSubject(ctx context.Context, categoryID int64, name string) (*model.Subject, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	sub := model.Subject{CategoryID: categoryID, Name: strings.TrimSpace(name)}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO subjects (category_id, name) VALUES (?, ?)`, categoryID, sub.Name)
	if err != nil {
		return nil, wrapConstraint(err, "subject %q", sub.Name)
	}
	if sub.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("failed to get subject ID: %w", err)
	}
	return &sub, nil
}

// CreateDetail creates a detail under subjectID.
func (s *SQLiteStorage) CreateDetail(ctx context.Context, subjectID int64, name string) (*model.Detail, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	det := model.Detail{SubjectID: subjectID, Name: strings.TrimSpace(name)}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO details (subject_id, name) VALUES (?, ?)`, subjectID, det.Name)
	if err != nil {
		return nil, wrapConstraint(err, "detail %q", det.Name)
	}
	if det.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("failed to get detail ID: %w", err)
	}
	return &det, nil
}

// EnsureTriple finds the triple named category > subject > detail, creating
// missing levels. An empty detail yields a subject-level triple.
func (s *SQLiteStorage) EnsureTriple(ctx context.Context, tenant, category, subject, detail string) (model.Triple, error) {
	if err := validateContext(ctx); err != nil {
		return model.Triple{}, err
	}
	if err := validateString(tenant, "tenant"); err != nil {
		return model.Triple{}, err
	}
	if err := validateString(category, "category"); err != nil {
		return model.Triple{}, err
	}
	if err := validateString(subject, "subject"); err != nil {
		return model.Triple{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Triple{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var triple model.Triple
	triple.CategoryID, err = findOrCreate(ctx, tx,
		`SELECT id FROM categories WHERE tenant = ? AND name = ?`,
		`INSERT INTO categories (tenant, name, created_at) VALUES (?, ?, ?)`,
		[]any{tenant, strings.TrimSpace(category)},
		[]any{tenant, strings.TrimSpace(category), utc(time.Now())})
	if err != nil {
		return model.Triple{}, fmt.Errorf("category %q: %w", category, err)
	}

	triple.SubjectID, err = findOrCreate(ctx, tx,
		`SELECT id FROM subjects WHERE category_id = ? AND name = ?`,
		`INSERT INTO subjects (category_id, name) VALUES (?, ?)`,
		[]any{triple.CategoryID, strings.TrimSpace(subject)},
		[]any{triple.CategoryID, strings.TrimSpace(subject)})
	if err != nil {
		return model.Triple{}, fmt.Errorf("subject %q: %w", subject, err)
	}

	if strings.TrimSpace(detail) != "" {
		id, err := findOrCreate(ctx, tx,
			`SELECT id FROM details WHERE subject_id = ? AND name = ?`,
			`INSERT INTO details (subject_id, name) VALUES (?, ?)`,
			[]any{triple.SubjectID, strings.TrimSpace(detail)},
			[]any{triple.SubjectID, strings.TrimSpace(detail)})
		if err != nil {
			return model.Triple{}, fmt.Errorf("detail %q: %w", detail, err)
		}
		triple.DetailID = &id
	}

	if err := tx.Commit(); err != nil {
		return model.Triple{}, fmt.Errorf("failed to commit taxonomy: %w", err)
	}
	return triple, nil
}

func findOrCreate(ctx context.Context, tx *sql.Tx, selectQuery, insertQuery string, selectArgs, insertArgs []any) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, selectQuery, selectArgs...).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up: %w", err)
	}
	res, err := tx.ExecContext(ctx, insertQuery, insertArgs...)
	if err != nil {
		return 0, fmt.Errorf("failed to create: %w", err)
	}
	return res.LastInsertId()
}

// ResolveTriple reads the names of triple's levels. It returns
// common.ErrNotFound when any level is missing, belongs to another parent,
// or belongs to another tenant.
func (s *SQLiteStorage) ResolveTriple(ctx context.Context, tenant string, triple model.Triple) (*model.ResolvedTriple, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	resolved := &model.ResolvedTriple{Triple: triple}
	err := s.db.QueryRowContext(ctx, `
		SELECT c.name, s.name
		FROM categories c
		JOIN subjects s ON s.category_id = c.id
		WHERE c.tenant = ? AND c.id = ? AND s.id = ?`,
		tenant, triple.CategoryID, triple.SubjectID,
	).Scan(&resolved.CategoryName, &resolved.SubjectName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("target %s: %w", triple.Key(), common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve target: %w", err)
	}

	if triple.DetailID != nil {
		var name string
		err := s.db.QueryRowContext(ctx,
			`SELECT name FROM details WHERE id = ? AND subject_id = ?`,
			*triple.DetailID, triple.SubjectID,
		).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("target %s: %w", triple.Key(), common.ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve detail: %w", err)
		}
		resolved.DetailName = &name
	}
	return resolved, nil
}

// ListTaxonomy returns every subject-level and detail-level target of tenant,
// ordered by name.
func (s *SQLiteStorage) ListTaxonomy(ctx context.Context, tenant string) ([]model.ResolvedTriple, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, s.id, s.name, d.id, d.name
		FROM categories c
		JOIN subjects s ON s.category_id = c.id
		LEFT JOIN details d ON d.subject_id = s.id
		WHERE c.tenant = ?
		ORDER BY c.name, s.name, d.name`, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to query taxonomy: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ResolvedTriple
	seenSubject := make(map[int64]bool)
	for rows.Next() {
		var (
			r          model.ResolvedTriple
			detailID   sql.NullInt64
			detailName sql.NullString
		)
		if err := rows.Scan(&r.CategoryID, &r.CategoryName, &r.SubjectID, &r.SubjectName, &detailID, &detailName); err != nil {
			return nil, fmt.Errorf("failed to scan taxonomy: %w", err)
		}
		if !seenSubject[r.SubjectID] {
			seenSubject[r.SubjectID] = true
			out = append(out, r)
		}
		if detailID.Valid {
			r.DetailID = int64Ptr(detailID)
			r.DetailName = stringPtr(detailName)
			out = append(out, r)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating taxonomy: %w", err)
	}
	return out, nil
}

// DeleteSubject removes a subject and its details. Rules, feedback and
// transactions pointing at it stop resolving.
func (s *SQLiteStorage) DeleteSubject(ctx context.Context, tenant string, subjectID int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM subjects
		WHERE id = ? AND category_id IN (SELECT id FROM categories WHERE tenant = ?)`,
		subjectID, tenant)
	if err != nil {
		return fmt.Errorf("failed to delete subject: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("subject %d: %w", subjectID, common.ErrNotFound)
	}
	return nil
}

// wrapConstraint maps unique violations to common.ErrDuplicateEntry.
func wrapConstraint(err error, format string, args ...any) error {
	what := fmt.Sprintf(format, args...)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		if sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return fmt.Errorf("%s: %w", what, common.ErrDuplicateEntry)
		}
		return fmt.Errorf("%s: %w: %v", what, common.ErrInvalidInput, err)
	}
	return fmt.Errorf("failed to create %s: %w", what, err)
}
