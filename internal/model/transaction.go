// Package model defines the core domain models used throughout the application.
package model

import (
	"crypto/sha256"
	"fmt"
	"math"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// TransactionStatus is the lifecycle state of a stored transaction.
type TransactionStatus string

// Transaction status constants.
const (
	StatusPending   TransactionStatus = "pending"
	StatusReview    TransactionStatus = "review"
	StatusCompleted TransactionStatus = "completed"
)

// Transaction represents a single bank-statement line item.
type Transaction struct {
	Date        time.Time
	ID          string
	Tenant      string
	Description string // Raw description as printed on the statement
	PaymentType string // Payment channel, e.g. POS, SDD, BONIFICO, F24
	OwnerID     string
	Amount      float64
}

// Validate reports missing required fields.
func (t Transaction) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Tenant, validation.Required),
		validation.Field(&t.Description, validation.Required),
		validation.Field(&t.Amount, validation.By(finiteAmount)),
	)
}

// AbsAmount returns the unsigned amount.
func (t Transaction) AbsAmount() float64 {
	return math.Abs(t.Amount)
}

// GenerateHash creates a unique hash for duplicate detection.
func (t *Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%s:%.2f:%s:%s",
		t.Tenant,
		t.Date.Format("2006-01-02"),
		t.Amount,
		t.Description,
		t.OwnerID)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// ClassifiedTransaction is a stored transaction together with its confirmed
// classification, as needed by the vector index.
type ClassifiedTransaction struct {
	Transaction
	Target                  ResolvedTriple
	Status                  TransactionStatus
	ClassificationFrequency int
}

func finiteAmount(value any) error {
	v, _ := value.(float64)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return validation.NewError("validation_amount_finite", "must be a finite number")
	}
	return nil
}
