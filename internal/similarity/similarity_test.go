package similarity

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrigram(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		min  float64
		max  float64
	}{
		{name: "identical", a: "EDISON BOLLETTA LUCE", b: "edison bolletta luce", min: 1, max: 1},
		{name: "disjoint", a: "abc", b: "xyz", min: 0, max: 0},
		{name: "empty", a: "", b: "abc", min: 0, max: 0},
		{name: "reference differs", a: "EDISON BOLLETTA LUCE RIF:12345", b: "EDISON BOLLETTA LUCE RIF:98765", min: 0.6, max: 0.85},
		{name: "word order irrelevant", a: "canone locazione", b: "locazione canone", min: 1, max: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Trigram(tt.a, tt.b)
			assert.GreaterOrEqual(t, got, tt.min)
			assert.LessOrEqual(t, got, tt.max)
			assert.InDelta(t, got, Trigram(tt.b, tt.a), 1e-12)
		})
	}
}

func TestTrigram_KnownValue(t *testing.T) {
	// "cat" -> {"  c"," ca","cat","at "}; "cap" -> {"  c"," ca","cap","ap "}
	assert.InDelta(t, 2.0/6.0, Trigram("cat", "cap"), 1e-12)
}

func TestAmountProximity(t *testing.T) {
	assert.Equal(t, 1.0, AmountProximity(60, 60))
	assert.Equal(t, 1.0, AmountProximity(-60, 60))
	assert.Equal(t, 0.5, AmountProximity(0.4, 100))
	assert.Equal(t, 0.5, AmountProximity(100, -0.99))
	assert.Equal(t, 0.0, AmountProximity(1, 1000))

	want := 1 - math.Log(2)/3
	assert.InDelta(t, want, AmountProximity(50, 100), 1e-12)

	pairs := [][2]float64{{58, 60}, {1, 3}, {-45.3, 1200}, {0.2, 7}}
	for _, p := range pairs {
		assert.InDelta(t, AmountProximity(p[0], p[1]), AmountProximity(p[1], p[0]), 1e-12)
	}
}

func TestAmountSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, AmountSimilarity(100, 110, 0.15))
	assert.Equal(t, 1.0, AmountSimilarity(-100, 85, 0.15))
	assert.Equal(t, 0.0, AmountSimilarity(100, 250, 0.15))
	assert.Equal(t, 0.5, AmountSimilarity(0.5, 100, 0.15))
	assert.InDelta(t, 1-(0.5-0.15)/0.85, AmountSimilarity(100, 150, 0.15), 1e-12)
}

func TestRecency(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	horizon := Days(180)

	assert.Equal(t, 1.0, Recency(now, now, horizon))
	assert.Equal(t, 1.0, Recency(now.Add(time.Hour), now, horizon))
	assert.Equal(t, 0.0, Recency(now.Add(-horizon), now, horizon))
	assert.Equal(t, 0.0, Recency(now.AddDate(-2, 0, 0), now, horizon))
	assert.InDelta(t, 0.5, Recency(now.Add(-Days(90)), now, horizon), 1e-9)
}

func TestFrequency(t *testing.T) {
	assert.Equal(t, 0.0, Frequency(0, 10))
	assert.Equal(t, 0.3, Frequency(3, 10))
	assert.Equal(t, 1.0, Frequency(25, 10))
	assert.Equal(t, 0.0, Frequency(5, 0))
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-6)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.Equal(t, 0.0, Cosine([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 2}))
}
