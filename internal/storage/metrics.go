package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/Veraticus/spice-cascade/internal/model"
)

// topN is how many categories and subjects analytics reports.
const topN = 5

// confidenceBuckets partition suggestion confidence for the accuracy report.
var confidenceBuckets = []struct {
	label string
	lo    int
}{
	{"90-100", 90},
	{"80-89", 80},
	{"70-79", 70},
	{"0-69", 0},
}

// SaveMetric records one classification outcome.
func (s *SQLiteStorage) SaveMetric(ctx context.Context, metric *model.ClassificationMetric) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if metric == nil {
		return fmt.Errorf("%w: metric", ErrNilParameter)
	}
	if err := validateString(metric.ID, "id"); err != nil {
		return err
	}

	var debug sql.NullString
	if metric.Debug != nil {
		b, err := json.Marshal(metric.Debug)
		if err != nil {
			return fmt.Errorf("failed to encode debug: %w", err)
		}
		debug = sql.NullString{String: string(b), Valid: true}
	}

	createdAt := metric.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO classification_metrics (
			id, tenant, transaction_id, method, confidence, needs_review, latency_ms, debug, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		metric.ID, metric.Tenant, metric.TransactionID, string(metric.Method),
		metric.Confidence, metric.NeedsReview, float64(metric.Latency)/float64(time.Millisecond),
		debug, utc(createdAt))
	if err != nil {
		return fmt.Errorf("failed to save metric: %w", err)
	}
	return nil
}

// GetAnalytics aggregates tenant's metrics, feedback, transactions and rules
// recorded at or after since.
func (s *SQLiteStorage) GetAnalytics(ctx context.Context, tenant string, since time.Time) (*model.Analytics, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	since = utc(since)
	a := &model.Analytics{
		Since:            since,
		Methods:          []model.MethodCount{},
		WeeklyConfidence: []model.WeeklyConfidence{},
		Accuracy:         []model.AccuracyBucket{},
		TopCategories:    []model.NamedCount{},
		TopSubjects:      []model.NamedCount{},
	}

	steps := []func(context.Context, string, time.Time, *model.Analytics) error{
		s.methodDistribution,
		s.weeklyConfidence,
		s.accuracyBuckets,
		s.topTargets,
		s.ruleCounts,
	}
	for _, step := range steps {
		if err := step(ctx, tenant, since, a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (s *SQLiteStorage) methodDistribution(ctx context.Context, tenant string, since time.Time, a *model.Analytics) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT method, COUNT(*), AVG(confidence), AVG(latency_ms), SUM(needs_review)
		FROM classification_metrics
		WHERE tenant = ? AND created_at >= ?
		GROUP BY method
		ORDER BY COUNT(*) DESC, method`, tenant, since)
	if err != nil {
		return fmt.Errorf("failed to query method distribution: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var latencySum float64
	for rows.Next() {
		var (
			m      model.MethodCount
			method string
			review int
		)
		if err := rows.Scan(&method, &m.Count, &m.AvgConfidence, &m.AvgLatencyMs, &review); err != nil {
			return fmt.Errorf("failed to scan method count: %w", err)
		}
		m.Method = model.Method(method)
		a.Methods = append(a.Methods, m)
		a.Total += m.Count
		a.NeedsReview += review
		latencySum += m.AvgLatencyMs * float64(m.Count)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating method counts: %w", err)
	}
	if a.Total > 0 {
		a.AvgLatencyMs = latencySum / float64(a.Total)
	}
	return nil
}

// weeklyConfidence groups by ISO week in Go; the stored timestamps carry a
// zone suffix SQLite's strftime does not always accept.
func (s *SQLiteStorage) weeklyConfidence(ctx context.Context, tenant string, since time.Time, a *model.Analytics) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT created_at, confidence
		FROM classification_metrics
		WHERE tenant = ? AND created_at >= ? AND needs_review = 0`, tenant, since)
	if err != nil {
		return fmt.Errorf("failed to query weekly confidence: %w", err)
	}
	defer func() { _ = rows.Close() }()

	type agg struct{ n, sum int }
	weeks := make(map[string]*agg)
	for rows.Next() {
		var (
			at         time.Time
			confidence int
		)
		if err := rows.Scan(&at, &confidence); err != nil {
			return fmt.Errorf("failed to scan metric: %w", err)
		}
		year, week := at.UTC().ISOWeek()
		key := fmt.Sprintf("%d-W%02d", year, week)
		w, ok := weeks[key]
		if !ok {
			w = &agg{}
			weeks[key] = w
		}
		w.n++
		w.sum += confidence
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating metrics: %w", err)
	}

	for key, w := range weeks {
		a.WeeklyConfidence = append(a.WeeklyConfidence, model.WeeklyConfidence{
			Week:          key,
			Count:         w.n,
			AvgConfidence: float64(w.sum) / float64(w.n),
		})
	}
	sort.Slice(a.WeeklyConfidence, func(i, j int) bool {
		return a.WeeklyConfidence[i].Week < a.WeeklyConfidence[j].Week
	})
	return nil
}

// accuracyBuckets compares automatic classifications per confidence bucket
// with the corrections users made to suggestions of the same confidence.
func (s *SQLiteStorage) accuracyBuckets(ctx context.Context, tenant string, since time.Time, a *model.Analytics) error {
	totals := make([]int, len(confidenceBuckets))
	corrected := make([]int, len(confidenceBuckets))

	if err := s.bucketize(ctx, totals, `
		SELECT confidence FROM classification_metrics
		WHERE tenant = ? AND created_at >= ? AND needs_review = 0`, tenant, since); err != nil {
		return err
	}
	if err := s.bucketize(ctx, corrected, `
		SELECT original_confidence FROM classification_feedback
		WHERE tenant = ? AND created_at >= ? AND suggested_category_id IS NOT NULL`, tenant, since); err != nil {
		return err
	}

	for i, b := range confidenceBuckets {
		if totals[i] == 0 && corrected[i] == 0 {
			continue
		}
		bucket := model.AccuracyBucket{Bucket: b.label, Total: totals[i], Corrected: corrected[i]}
		if totals[i] > 0 {
			bucket.Accuracy = max(0, 1-float64(corrected[i])/float64(totals[i]))
		}
		a.Accuracy = append(a.Accuracy, bucket)
	}
	return nil
}

func (s *SQLiteStorage) bucketize(ctx context.Context, counts []int, query string, args ...any) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query confidence: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var c int
		if err := rows.Scan(&c); err != nil {
			return fmt.Errorf("failed to scan confidence: %w", err)
		}
		counts[bucketOf(c)]++
	}
	return rows.Err()
}

func bucketOf(confidence int) int {
	for i, b := range confidenceBuckets {
		if confidence >= b.lo {
			return i
		}
	}
	return len(confidenceBuckets) - 1
}

func (s *SQLiteStorage) topTargets(ctx context.Context, tenant string, since time.Time, a *model.Analytics) error {
	var err error
	a.TopCategories, err = s.namedCounts(ctx, `
		SELECT c.name, COUNT(*)
		FROM transactions t JOIN categories c ON c.id = t.category_id
		WHERE t.tenant = ? AND t.status = 'completed' AND t.classified_at >= ?
		GROUP BY c.id
		ORDER BY COUNT(*) DESC, c.name
		LIMIT ?`, tenant, since, topN)
	if err != nil {
		return err
	}
	a.TopSubjects, err = s.namedCounts(ctx, `
		SELECT c.name || ' > ' || s.name, COUNT(*)
		FROM transactions t
		JOIN subjects s ON s.id = t.subject_id
		JOIN categories c ON c.id = s.category_id
		WHERE t.tenant = ? AND t.status = 'completed' AND t.classified_at >= ?
		GROUP BY s.id
		ORDER BY COUNT(*) DESC, s.name
		LIMIT ?`, tenant, since, topN)
	return err
}

func (s *SQLiteStorage) namedCounts(ctx context.Context, query string, args ...any) ([]model.NamedCount, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query top targets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []model.NamedCount{}
	for rows.Next() {
		var nc model.NamedCount
		if err := rows.Scan(&nc.Name, &nc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan top target: %w", err)
		}
		out = append(out, nc)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) ruleCounts(ctx context.Context, tenant string, _ time.Time, a *model.Analytics) error {
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(enabled), 0)
		FROM classification_rules WHERE tenant = ?`, tenant,
	).Scan(&a.Rules.Total, &a.Rules.Enabled)
	if err != nil {
		return fmt.Errorf("failed to count rules: %w", err)
	}
	return nil
}
