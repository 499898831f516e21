package model

// RuleSuggestion is a candidate rule mined from feedback.
type RuleSuggestion struct {
	Name        string         `json:"name"`
	Pattern     string         `json:"pattern"`
	Regex       string         `json:"regex"`
	Examples    []string       `json:"examples"`
	Target      ResolvedTriple `json:"target"`
	Occurrences int            `json:"occurrences"`
	Agreeing    int            `json:"agreeing"`
	Consistency float64        `json:"consistency"`
	Confidence  int            `json:"confidence"`
	AvgAmount   float64        `json:"avg_amount"`
	MinAmount   float64        `json:"min_amount"`
	MaxAmount   float64        `json:"max_amount"`
}

// RuleSuggestionStats describes the mining run.
type RuleSuggestionStats struct {
	FeedbackAnalyzed   int `json:"feedback_analyzed"`
	PatternsFound      int `json:"patterns_found"`
	FrequentPatterns   int `json:"frequent_patterns"`
	ConsistentPatterns int `json:"consistent_patterns"`
	AlreadyCovered     int `json:"already_covered"`
	Suggestions        int `json:"suggestions"`
}

// RuleSuggestionReport is the analyzer output.
type RuleSuggestionReport struct {
	Suggestions []RuleSuggestion    `json:"suggestions"`
	Stats       RuleSuggestionStats `json:"stats"`
}
