package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ClassificationRule is an operator-defined pattern rule. Rules are evaluated in
// descending priority order and the first full match wins.
type ClassificationRule struct {
	CreatedAt           time.Time `json:"created_at"`
	AmountMin           *float64  `json:"amount_min,omitempty"`
	AmountMax           *float64  `json:"amount_max,omitempty"`
	Tenant              string    `json:"tenant"`
	Name                string    `json:"name"`
	Reasoning           string    `json:"reasoning"`
	DescriptionPatterns []string  `json:"description_patterns,omitempty"`
	PaymentTypes        []string  `json:"payment_types,omitempty"`
	Target              Triple    `json:"target"`
	ID                  int64     `json:"id"`
	Priority            int       `json:"priority"`
	Confidence          int       `json:"confidence"`
	Enabled             bool      `json:"enabled"`
}

// Validate checks the rule definition. Regex syntax is not checked here: a
// malformed pattern only disables that pattern at match time.
func (r ClassificationRule) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Tenant, validation.Required),
		validation.Field(&r.Name, validation.Required),
		validation.Field(&r.Confidence, validation.Min(0), validation.Max(100)),
		validation.Field(&r.Target, validation.By(func(any) error {
			if r.Target.CategoryID == 0 || r.Target.SubjectID == 0 {
				return validation.NewError("validation_rule_target", "category and subject are required")
			}
			return nil
		})),
		validation.Field(&r.AmountMax, validation.By(func(any) error {
			if r.AmountMin != nil && r.AmountMax != nil && *r.AmountMax < *r.AmountMin {
				return validation.NewError("validation_rule_amount", "must not be below amount_min")
			}
			return nil
		})),
	)
}
