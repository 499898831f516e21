package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Veraticus/spice-cascade/internal/common"
	"github.com/Veraticus/spice-cascade/internal/model"
)

const ruleColumns = `
	id, tenant, name, description_patterns, payment_types, amount_min, amount_max,
	category_id, subject_id, detail_id, confidence, priority, reasoning, enabled, created_at`

// CreateRule validates and stores a rule. Its target must resolve for the
// rule's tenant.
func (s *SQLiteStorage) CreateRule(ctx context.Context, rule *model.ClassificationRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRule, err)
	}
	if _, err := s.ResolveTriple(ctx, rule.Tenant, rule.Target); err != nil {
		return fmt.Errorf("rule target: %w", err)
	}

	patterns, err := json.Marshal(nonNil(rule.DescriptionPatterns))
	if err != nil {
		return fmt.Errorf("failed to encode patterns: %w", err)
	}
	paymentTypes, err := json.Marshal(nonNil(rule.PaymentTypes))
	if err != nil {
		return fmt.Errorf("failed to encode payment types: %w", err)
	}

	rule.CreatedAt = utc(time.Now())
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO classification_rules (
			tenant, name, description_patterns, payment_types, amount_min, amount_max,
			category_id, subject_id, detail_id, confidence, priority, reasoning, enabled, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.Tenant, rule.Name, string(patterns), string(paymentTypes),
		nullFloat64(rule.AmountMin), nullFloat64(rule.AmountMax),
		rule.Target.CategoryID, rule.Target.SubjectID, nullInt64(rule.Target.DetailID),
		rule.Confidence, rule.Priority, rule.Reasoning, rule.Enabled, rule.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}

	if rule.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("failed to get rule ID: %w", err)
	}
	return nil
}

// GetEnabledRules returns tenant's enabled rules by descending priority,
// ties broken by id.
func (s *SQLiteStorage) GetEnabledRules(ctx context.Context, tenant string) ([]model.ClassificationRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.queryRules(ctx, `SELECT `+ruleColumns+`
		FROM classification_rules
		WHERE tenant = ? AND enabled = 1
		ORDER BY priority DESC, id ASC`, tenant)
}

// ListRules returns all of tenant's rules, enabled or not.
func (s *SQLiteStorage) ListRules(ctx context.Context, tenant string) ([]model.ClassificationRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.queryRules(ctx, `SELECT `+ruleColumns+`
		FROM classification_rules
		WHERE tenant = ?
		ORDER BY priority DESC, id ASC`, tenant)
}

// SetRuleEnabled enables or disables a rule.
func (s *SQLiteStorage) SetRuleEnabled(ctx context.Context, tenant string, id int64, enabled bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE classification_rules SET enabled = ? WHERE tenant = ? AND id = ?`,
		enabled, tenant, id)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("rule %d: %w", id, common.ErrNotFound)
	}
	return nil
}

// DeleteRule removes a rule.
func (s *SQLiteStorage) DeleteRule(ctx context.Context, tenant string, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM classification_rules WHERE tenant = ? AND id = ?`, tenant, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("rule %d: %w", id, common.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStorage) queryRules(ctx context.Context, query string, args ...any) ([]model.ClassificationRule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.ClassificationRule
	for rows.Next() {
		var (
			rule                   model.ClassificationRule
			patterns, paymentTypes string
			amountMin, amountMax   sql.NullFloat64
			detailID               sql.NullInt64
		)
		if err := rows.Scan(
			&rule.ID, &rule.Tenant, &rule.Name, &patterns, &paymentTypes, &amountMin, &amountMax,
			&rule.Target.CategoryID, &rule.Target.SubjectID, &detailID,
			&rule.Confidence, &rule.Priority, &rule.Reasoning, &rule.Enabled, &rule.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		if err := json.Unmarshal([]byte(patterns), &rule.DescriptionPatterns); err != nil {
			return nil, fmt.Errorf("rule %d has malformed patterns: %w", rule.ID, err)
		}
		if err := json.Unmarshal([]byte(paymentTypes), &rule.PaymentTypes); err != nil {
			return nil, fmt.Errorf("rule %d has malformed payment types: %w", rule.ID, err)
		}
		rule.AmountMin = float64Ptr(amountMin)
		rule.AmountMax = float64Ptr(amountMax)
		rule.Target.DetailID = int64Ptr(detailID)
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rules, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
