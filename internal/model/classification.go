package model

import (
	"fmt"
	"time"
)

// Method identifies the stage that produced a classification.
type Method string

// Classification methods, one per stage of the cascade.
const (
	MethodRule             Method = "rule"
	MethodEntityMatch      Method = "entity_match"
	MethodExact            Method = "exact"
	MethodFeedbackLearning Method = "feedback_learning"
	MethodSemantic         Method = "semantic"
	MethodManual           Method = "manual"
)

// Methods lists every method in cascade order.
var Methods = []Method{
	MethodRule,
	MethodExact,
	MethodFeedbackLearning,
	MethodSemantic,
	MethodEntityMatch,
	MethodManual,
}

// Valid reports whether m is one of the known methods.
func (m Method) Valid() bool {
	switch m {
	case MethodRule, MethodEntityMatch, MethodExact, MethodFeedbackLearning, MethodSemantic, MethodManual:
		return true
	}
	return false
}

// ParseMethod converts a stored string back into a Method.
func ParseMethod(s string) (Method, error) {
	m := Method(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown classification method %q", s)
	}
	return m, nil
}

// Debug carries the component sub-scores behind a decision.
type Debug struct {
	TextSimilarity  *float64 `json:"text_similarity,omitempty"`
	VectorScore     *float64 `json:"vector_score,omitempty"`
	AmountScore     *float64 `json:"amount_score,omitempty"`
	RecencyScore    *float64 `json:"recency_score,omitempty"`
	FrequencyScore  *float64 `json:"frequency_score,omitempty"`
	TokenOverlap    *float64 `json:"token_overlap,omitempty"`
	NameScore       *float64 `json:"name_score,omitempty"`
	MatchLevel      string   `json:"match_level,omitempty"`
	MatchedTokens   []string `json:"matched_tokens,omitempty"`
	CandidateCount  int      `json:"candidate_count,omitempty"`
	ClusterCount    int      `json:"cluster_count,omitempty"`
	ClusterSize     int      `json:"cluster_size,omitempty"`
	RuleID          int64    `json:"rule_id,omitempty"`
	EmbeddingFailed bool     `json:"embedding_failed,omitempty"`
	SearchFailed    bool     `json:"search_failed,omitempty"`
}

// SimilarTransaction is an exemplar from the vector index.
type SimilarTransaction struct {
	Date          time.Time `json:"date"`
	TransactionID string    `json:"transaction_id"`
	Description   string    `json:"description"`
	Amount        float64   `json:"amount"`
	Score         float64   `json:"score"`
}

// Suggestion is a ranked alternative target.
type Suggestion struct {
	Similar    []SimilarTransaction `json:"similar,omitempty"`
	Reasoning  string               `json:"reasoning"`
	Target     ResolvedTriple       `json:"target"`
	Confidence int                  `json:"confidence"`
	Support    int                  `json:"support"`
}

// ClassificationResult is the outcome of running the cascade for one transaction.
type ClassificationResult struct {
	Classification *ResolvedTriple      `json:"classification"`
	Debug          *Debug               `json:"debug,omitempty"`
	TransactionID  string               `json:"transaction_id,omitempty"`
	Method         Method               `json:"method"`
	Reasoning      string               `json:"reasoning"`
	Error          string               `json:"error,omitempty"`
	Suggestions    []Suggestion         `json:"suggestions"`
	Similar        []SimilarTransaction `json:"similar_transactions,omitempty"`
	Latency        time.Duration        `json:"latency"`
	Confidence     int                  `json:"confidence"`
	NeedsReview    bool                 `json:"needs_review"`
	Success        bool                 `json:"success"`
}

// NeedsReviewResult builds a manual-review result carrying suggestions.
func NeedsReviewResult(reasoning string, suggestions []Suggestion) *ClassificationResult {
	if suggestions == nil {
		suggestions = []Suggestion{}
	}
	return &ClassificationResult{
		Method:      MethodManual,
		Reasoning:   reasoning,
		Suggestions: suggestions,
		NeedsReview: true,
		Success:     true,
	}
}

// ClampConfidence bounds a confidence value to [0, 100].
func ClampConfidence(c int) int {
	switch {
	case c < 0:
		return 0
	case c > 100:
		return 100
	}
	return c
}
