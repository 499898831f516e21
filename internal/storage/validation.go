// Package storage provides the SQLite persistence layer for the cascade.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/Veraticus/spice-cascade/internal/common"
	"github.com/Veraticus/spice-cascade/internal/model"
)

// Validation errors. All of them wrap common.ErrInvalidInput.
var (
	ErrNilContext      = fmt.Errorf("%w: context cannot be nil", common.ErrInvalidInput)
	ErrEmptyString     = fmt.Errorf("%w: string parameter cannot be empty", common.ErrInvalidInput)
	ErrNilParameter    = fmt.Errorf("%w: parameter cannot be nil", common.ErrInvalidInput)
	ErrEmptySlice      = fmt.Errorf("%w: slice cannot be empty", common.ErrInvalidInput)
	ErrInvalidTriple   = fmt.Errorf("%w: invalid classification target", common.ErrInvalidInput)
	ErrInvalidFeedback = fmt.Errorf("%w: invalid feedback", common.ErrInvalidInput)
	ErrInvalidRule     = fmt.Errorf("%w: invalid rule", common.ErrInvalidInput)
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateTransactions validates a slice of transactions for import.
func validateTransactions(transactions []model.Transaction) error {
	if transactions == nil {
		return fmt.Errorf("%w: transactions", ErrNilParameter)
	}
	if len(transactions) == 0 {
		return fmt.Errorf("%w: transactions", ErrEmptySlice)
	}
	for i, txn := range transactions {
		if txn.ID == "" {
			return fmt.Errorf("transaction at index %d: %w: missing ID", i, common.ErrInvalidInput)
		}
		if txn.Date.IsZero() {
			return fmt.Errorf("transaction at index %d: %w: missing date", i, common.ErrInvalidInput)
		}
		if err := txn.Validate(); err != nil {
			return fmt.Errorf("transaction at index %d: %w: %w", i, common.ErrInvalidInput, err)
		}
	}
	return nil
}

// validateTriple checks that the mandatory levels are set.
func validateTriple(t model.Triple) error {
	if t.CategoryID <= 0 || t.SubjectID <= 0 {
		return fmt.Errorf("%w: category and subject are required", ErrInvalidTriple)
	}
	if t.DetailID != nil && *t.DetailID <= 0 {
		return fmt.Errorf("%w: detail id must be positive", ErrInvalidTriple)
	}
	return nil
}

// validateFeedback validates a correction record.
func validateFeedback(fb *model.Feedback) error {
	if fb == nil {
		return fmt.Errorf("%w: feedback", ErrNilParameter)
	}
	if strings.TrimSpace(fb.Tenant) == "" {
		return fmt.Errorf("%w: missing tenant", ErrInvalidFeedback)
	}
	if strings.TrimSpace(fb.OriginalDescription) == "" {
		return fmt.Errorf("%w: missing description", ErrInvalidFeedback)
	}
	if err := validateTriple(fb.CorrectedTriple); err != nil {
		return fmt.Errorf("corrected target: %w", err)
	}
	if fb.Method != "" && !fb.Method.Valid() {
		return fmt.Errorf("%w: unknown method %q", ErrInvalidFeedback, fb.Method)
	}
	return nil
}
