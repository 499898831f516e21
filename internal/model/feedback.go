package model

import "time"

// Feedback records a human correction of a suggested classification.
type Feedback struct {
	Date                time.Time
	CreatedAt           time.Time
	SuggestedTriple     *Triple
	ID                  string
	Tenant              string
	OriginalDescription string
	Method              Method
	CorrectedTriple     Triple
	Amount              float64
	OriginalConfidence  int
}

// CarriesInformation reports whether storing the record teaches the engine
// anything. Confirmations of the suggestion do not.
func (f Feedback) CarriesInformation() bool {
	return f.SuggestedTriple == nil || !f.SuggestedTriple.Equal(f.CorrectedTriple)
}

// EntityUsage aggregates feedback per corrected triple for entity matching.
type EntityUsage struct {
	Target        ResolvedTriple
	UsageCount    int
	AverageAmount float64
}
