// Package similarity holds the pure scoring primitives shared by the
// classification stages.
package similarity

import (
	"math"
	"strings"
	"time"
	"unicode"
)

// Trigram returns the trigram similarity of a and b in [0, 1], following the
// pg_trgm definition: words are lower-cased and padded with two leading
// blanks and one trailing blank before 3-grams are taken, and the score is
// the size of the intersection over the size of the union.
func Trigram(a, b string) float64 {
	ta := trigrams(a)
	tb := trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	shared := 0
	for g := range ta {
		if _, ok := tb[g]; ok {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	return float64(shared) / float64(union)
}

func trigrams(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, word := range words(s) {
		padded := []rune("  " + word + " ")
		for i := 0; i+3 <= len(padded); i++ {
			set[string(padded[i:i+3])] = struct{}{}
		}
	}
	return set
}

// words splits on anything that is not a letter or digit.
func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// AmountProximity compares two amounts on a log scale:
// 1 - min(1, |ln|a| - ln|b|| / 3). When either absolute amount is below 1 the
// logarithm is not meaningful and a flat 0.5 is returned.
func AmountProximity(a, b float64) float64 {
	absA, absB := math.Abs(a), math.Abs(b)
	if absA < 1 || absB < 1 {
		return 0.5
	}
	distance := math.Abs(math.Log(absA) - math.Log(absB))
	return 1 - math.Min(1, distance/3)
}

// AmountSimilarity scores b against reference amount a with a tolerance band:
// within tolerance (a fraction of |a|) the score is 1, beyond it the score
// falls linearly to 0 at a relative difference of 100%. Amounts below 1 get
// a flat 0.5.
func AmountSimilarity(a, b, tolerance float64) float64 {
	absA, absB := math.Abs(a), math.Abs(b)
	if absA < 1 || absB < 1 {
		return 0.5
	}
	rel := math.Abs(absA-absB) / absA
	if rel <= tolerance {
		return 1
	}
	if rel >= 1 {
		return 0
	}
	return 1 - (rel-tolerance)/(1-tolerance)
}

// Recency decays linearly from 1 at now to 0 at horizon. Future dates count
// as fully recent.
func Recency(at, now time.Time, horizon time.Duration) float64 {
	if horizon <= 0 {
		return 0
	}
	age := now.Sub(at)
	if age <= 0 {
		return 1
	}
	if age >= horizon {
		return 0
	}
	return 1 - float64(age)/float64(horizon)
}

// Frequency returns min(1, count/limit).
func Frequency(count, limit int) float64 {
	if limit <= 0 || count <= 0 {
		return 0
	}
	return math.Min(1, float64(count)/float64(limit))
}

// Cosine returns the cosine similarity of two vectors of equal length.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Days is a convenience for day-denominated horizons.
func Days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
