package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/Veraticus/spice-cascade/internal/model"
	"github.com/stretchr/testify/assert"
)

func resolved(cat, subj string, detail *string) model.ResolvedTriple {
	return model.ResolvedTriple{
		CategoryName: cat,
		SubjectName:  subj,
		DetailName:   detail,
		Triple:       model.Triple{CategoryID: 1, SubjectID: 2},
	}
}

func TestRenderResult(t *testing.T) {
	txn := model.Transaction{
		Date:        time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		Description: "PAGAMENTO POS ESSELUNGA",
		Amount:      -42.5,
	}
	target := resolved("Casa", "Spesa", nil)

	tests := []struct {
		result *model.ClassificationResult
		name   string
		want   []string
	}{
		{
			name: "classified",
			result: &model.ClassificationResult{
				Classification: &target, Method: model.MethodExact, Confidence: 92, Success: true,
			},
			want: []string{"2025-03-14", "ESSELUNGA", "Casa > Spesa", "92%", "exact"},
		},
		{
			name: "needs review",
			result: &model.ClassificationResult{
				Method: model.MethodManual, Reasoning: "No stage produced a confident classification",
				NeedsReview: true, Success: true,
				Suggestions: []model.Suggestion{{Target: target, Confidence: 61}},
			},
			want: []string{"No stage produced", "1. Casa > Spesa", "(61%)"},
		},
		{
			name: "failed",
			result: &model.ClassificationResult{
				Method: model.MethodManual, Error: "classification failed: boom", NeedsReview: true,
			},
			want: []string{"classification failed: boom"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			RenderResult(&out, txn, tt.result)
			for _, w := range tt.want {
				assert.Contains(t, out.String(), w)
			}
		})
	}
}

func TestRenderAnalytics(t *testing.T) {
	var out bytes.Buffer
	RenderAnalytics(&out, &model.Analytics{
		WindowDays: 30,
		Total:      4,
		Methods: []model.MethodCount{
			{Method: model.MethodRule, Count: 3, AvgConfidence: 95},
			{Method: model.MethodManual, Count: 1},
		},
		Accuracy:      []model.AccuracyBucket{{Bucket: "90-100", Total: 3, Corrected: 0, Accuracy: 1}},
		TopCategories: []model.NamedCount{{Name: "Utenze", Count: 3}},
		Rules:         model.RuleCounts{Total: 2, Enabled: 1},
	})

	s := out.String()
	assert.Contains(t, s, "last 30 days")
	assert.Contains(t, s, "75.0%")
	assert.Contains(t, s, "90-100")
	assert.Contains(t, s, "Utenze")
	assert.Contains(t, s, "1/2 enabled")
	assert.NotContains(t, s, "Top subjects")
}

func TestRenderHealth(t *testing.T) {
	var out bytes.Buffer
	RenderHealth(&out,
		[]ServiceHealth{{Name: "embedding", Status: "ok"}, {Name: "vector_index", Status: "unavailable"}},
		map[string]bool{"semantic_search": false, "indexing": false},
		[]string{"vector index: connection refused"})

	s := out.String()
	assert.Contains(t, s, "embedding")
	assert.Contains(t, s, "semantic_search disabled")
	assert.Contains(t, s, "connection refused")
}

func TestRenderRuleSuggestions_Empty(t *testing.T) {
	var out bytes.Buffer
	RenderRuleSuggestions(&out, &model.RuleSuggestionReport{Stats: model.RuleSuggestionStats{FeedbackAnalyzed: 7}})
	assert.Contains(t, out.String(), "Analyzed 7 corrections")
	assert.Contains(t, out.String(), "No rule suggestions.")
}

func TestRenderTaxonomy(t *testing.T) {
	detail := "TIM"
	entry := resolved("Utenze", "Telefono", &detail)
	entry.DetailID = model.Int64Ptr(9)

	var out bytes.Buffer
	RenderTaxonomy(&out, []model.ResolvedTriple{resolved("Utenze", "Telefono", nil), entry})
	assert.Contains(t, out.String(), "Utenze > Telefono > TIM")
	assert.Contains(t, out.String(), "9")
}
