package model

import "time"

// ClassificationMetric is one recorded classification outcome.
type ClassificationMetric struct {
	CreatedAt     time.Time
	Debug         *Debug
	ID            string
	Tenant        string
	TransactionID string
	Method        Method
	Latency       time.Duration
	Confidence    int
	NeedsReview   bool
}

// MethodCount is the number of classifications produced by one method.
type MethodCount struct {
	Method        Method  `json:"method"`
	Count         int     `json:"count"`
	AvgConfidence float64 `json:"avg_confidence"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
}

// WeeklyConfidence is the average confidence for one ISO week.
type WeeklyConfidence struct {
	Week          string  `json:"week"`
	Count         int     `json:"count"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// AccuracyBucket relates suggestion confidence to how often users kept it.
type AccuracyBucket struct {
	Bucket    string  `json:"bucket"`
	Total     int     `json:"total"`
	Corrected int     `json:"corrected"`
	Accuracy  float64 `json:"accuracy"`
}

// NamedCount is a label with an occurrence count.
type NamedCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// RuleCounts summarises the rule set.
type RuleCounts struct {
	Total   int `json:"total"`
	Enabled int `json:"enabled"`
}

// Analytics aggregates classification metrics over a trailing window.
type Analytics struct {
	Since            time.Time          `json:"since"`
	Methods          []MethodCount      `json:"methods"`
	WeeklyConfidence []WeeklyConfidence `json:"weekly_confidence"`
	Accuracy         []AccuracyBucket   `json:"accuracy"`
	TopCategories    []NamedCount       `json:"top_categories"`
	TopSubjects      []NamedCount       `json:"top_subjects"`
	Rules            RuleCounts         `json:"rules"`
	Total            int                `json:"total"`
	NeedsReview      int                `json:"needs_review"`
	AvgLatencyMs     float64            `json:"avg_latency_ms"`
	WindowDays       int                `json:"window_days"`
}
