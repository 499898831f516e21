package semantic

import (
	"math"
	"strings"
)

// Amount bucket labels.
const (
	BucketMicro  = "micro"
	BucketSmall  = "small"
	BucketMedium = "medium"
	BucketLarge  = "large"
	BucketXLarge = "xlarge"
)

// AmountBucket maps an amount to a coarse size label so that embeddings of
// otherwise identical descriptions separate by order of magnitude.
func AmountBucket(amount float64) string {
	abs := math.Abs(amount)
	switch {
	case abs < 10:
		return BucketMicro
	case abs < 50:
		return BucketSmall
	case abs < 150:
		return BucketMedium
	case abs < 500:
		return BucketLarge
	default:
		return BucketXLarge
	}
}

// EmbeddingText is the text embedded for both queries and indexed points.
func EmbeddingText(description string, amount float64) string {
	return strings.Join(strings.Fields(description), " ") + " amount:" + AmountBucket(amount)
}
