package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/spice-cascade/internal/model"
	"github.com/Veraticus/spice-cascade/internal/service"
	"github.com/google/uuid"
)

const feedbackColumns = `
	id, tenant, transaction_date, original_description, amount,
	suggested_category_id, suggested_subject_id, suggested_detail_id,
	corrected_category_id, corrected_subject_id, corrected_detail_id,
	method, original_confidence, created_at`

// SaveFeedback stores a correction. A record whose corrected target equals
// the suggested one carries no information and is not stored; the returned
// bool reports whether a row was written.
func (s *SQLiteStorage) SaveFeedback(ctx context.Context, fb *model.Feedback) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateFeedback(fb); err != nil {
		return false, err
	}
	if !fb.CarriesInformation() {
		return false, nil
	}

	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now()
	}
	fb.CreatedAt = utc(fb.CreatedAt)

	var suggested struct {
		category, subject, detail sql.NullInt64
	}
	if fb.SuggestedTriple != nil {
		suggested.category = sql.NullInt64{Int64: fb.SuggestedTriple.CategoryID, Valid: true}
		suggested.subject = sql.NullInt64{Int64: fb.SuggestedTriple.SubjectID, Valid: true}
		suggested.detail = nullInt64(fb.SuggestedTriple.DetailID)
	}
	var date sql.NullTime
	if !fb.Date.IsZero() {
		date = sql.NullTime{Time: utc(fb.Date), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO classification_feedback (`+feedbackColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fb.ID, fb.Tenant, date, fb.OriginalDescription, fb.Amount,
		suggested.category, suggested.subject, suggested.detail,
		fb.CorrectedTriple.CategoryID, fb.CorrectedTriple.SubjectID, nullInt64(fb.CorrectedTriple.DetailID),
		string(fb.Method), fb.OriginalConfidence, fb.CreatedAt,
	)
	if err != nil {
		return false, wrapConstraint(err, "feedback %s", fb.ID)
	}
	return true, nil
}

// ListFeedback returns feedback matching filter, newest first.
func (s *SQLiteStorage) ListFeedback(ctx context.Context, filter service.FeedbackFilter) ([]model.Feedback, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	where, args := feedbackPredicates(filter)
	query := `SELECT ` + feedbackColumns + ` FROM classification_feedback`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Feedback
	for rows.Next() {
		fb, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feedback: %w", err)
	}
	return out, nil
}

// feedbackPredicates renders filter as a parameterized predicate list.
func feedbackPredicates(filter service.FeedbackFilter) ([]string, []any) {
	var (
		where []string
		args  []any
	)
	if filter.Tenant != "" {
		where = append(where, "tenant = ?")
		args = append(args, filter.Tenant)
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, utc(*filter.Since))
	}
	if filter.Until != nil {
		where = append(where, "created_at <= ?")
		args = append(args, utc(*filter.Until))
	}
	if filter.CorrectedTo != nil {
		where = append(where,
			"corrected_category_id = ?",
			"corrected_subject_id = ?",
			"corrected_detail_id IS ?")
		args = append(args,
			filter.CorrectedTo.CategoryID,
			filter.CorrectedTo.SubjectID,
			nullInt64(filter.CorrectedTo.DetailID))
	}
	if len(filter.Contains) > 0 {
		likes := make([]string, 0, len(filter.Contains))
		for _, token := range filter.Contains {
			if strings.TrimSpace(token) == "" {
				continue
			}
			likes = append(likes, `UPPER(original_description) LIKE ? ESCAPE '\'`)
			args = append(args, "%"+escapeLike(strings.ToUpper(token))+"%")
		}
		if len(likes) > 0 {
			where = append(where, "("+strings.Join(likes, " OR ")+")")
		}
	}
	return where, args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scanFeedback(row scanner) (model.Feedback, error) {
	var (
		fb                           model.Feedback
		date                         sql.NullTime
		sCategory, sSubject, sDetail sql.NullInt64
		cDetail                      sql.NullInt64
		method                       string
	)
	err := row.Scan(
		&fb.ID, &fb.Tenant, &date, &fb.OriginalDescription, &fb.Amount,
		&sCategory, &sSubject, &sDetail,
		&fb.CorrectedTriple.CategoryID, &fb.CorrectedTriple.SubjectID, &cDetail,
		&method, &fb.OriginalConfidence, &fb.CreatedAt,
	)
	if err != nil {
		return fb, fmt.Errorf("failed to scan feedback: %w", err)
	}
	if date.Valid {
		fb.Date = date.Time
	}
	if sCategory.Valid && sSubject.Valid {
		fb.SuggestedTriple = &model.Triple{
			CategoryID: sCategory.Int64,
			SubjectID:  sSubject.Int64,
			DetailID:   int64Ptr(sDetail),
		}
	}
	fb.CorrectedTriple.DetailID = int64Ptr(cDetail)
	fb.Method = model.Method(method)
	return fb, nil
}

// CountCorrections counts feedback per corrected target key since the given time.
func (s *SQLiteStorage) CountCorrections(ctx context.Context, tenant string, since time.Time) (map[string]int, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT corrected_category_id, corrected_subject_id, corrected_detail_id, COUNT(*)
		FROM classification_feedback
		WHERE tenant = ? AND created_at >= ?
		GROUP BY corrected_category_id, corrected_subject_id, corrected_detail_id`,
		tenant, utc(since))
	if err != nil {
		return nil, fmt.Errorf("failed to count corrections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			triple model.Triple
			detail sql.NullInt64
			n      int
		)
		if err := rows.Scan(&triple.CategoryID, &triple.SubjectID, &detail, &n); err != nil {
			return nil, fmt.Errorf("failed to scan correction count: %w", err)
		}
		triple.DetailID = int64Ptr(detail)
		counts[triple.Key()] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating correction counts: %w", err)
	}
	return counts, nil
}

// GetEntityUsage aggregates feedback per corrected target with resolved
// names. Targets that no longer resolve are left out.
func (s *SQLiteStorage) GetEntityUsage(ctx context.Context, tenant string, since time.Time) ([]model.EntityUsage, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.corrected_category_id, f.corrected_subject_id, f.corrected_detail_id,
			c.name, s.name, d.name, COUNT(*), AVG(f.amount)
		FROM classification_feedback f
		JOIN categories c ON c.id = f.corrected_category_id AND c.tenant = f.tenant
		JOIN subjects s ON s.id = f.corrected_subject_id AND s.category_id = c.id
		LEFT JOIN details d ON d.id = f.corrected_detail_id AND d.subject_id = s.id
		WHERE f.tenant = ? AND f.created_at >= ?
			AND (f.corrected_detail_id IS NULL OR d.id IS NOT NULL)
		GROUP BY f.corrected_category_id, f.corrected_subject_id, f.corrected_detail_id
		ORDER BY COUNT(*) DESC`,
		tenant, utc(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query entity usage: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var usage []model.EntityUsage
	for rows.Next() {
		var (
			u          model.EntityUsage
			detailID   sql.NullInt64
			detailName sql.NullString
		)
		if err := rows.Scan(
			&u.Target.CategoryID, &u.Target.SubjectID, &detailID,
			&u.Target.CategoryName, &u.Target.SubjectName, &detailName,
			&u.UsageCount, &u.AverageAmount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan entity usage: %w", err)
		}
		u.Target.DetailID = int64Ptr(detailID)
		u.Target.DetailName = stringPtr(detailName)
		usage = append(usage, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entity usage: %w", err)
	}
	return usage, nil
}
