package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriple_KeyAndEqual(t *testing.T) {
	withDetail := Triple{CategoryID: 1, SubjectID: 2, DetailID: Int64Ptr(3)}
	sameDetail := Triple{CategoryID: 1, SubjectID: 2, DetailID: Int64Ptr(3)}
	noDetail := Triple{CategoryID: 1, SubjectID: 2}

	assert.Equal(t, "1:2:3", withDetail.Key())
	assert.Equal(t, "1:2:-", noDetail.Key())
	assert.True(t, withDetail.Equal(sameDetail))
	assert.False(t, withDetail.Equal(noDetail))
	assert.True(t, Triple{}.IsZero())
	assert.False(t, noDetail.IsZero())
}

func TestResolvedTriple_Label(t *testing.T) {
	detail := "Luce"
	r := ResolvedTriple{CategoryName: "Utilities", SubjectName: "Edison"}
	assert.Equal(t, "Utilities > Edison", r.Label())

	r.DetailName = &detail
	assert.Equal(t, "Utilities > Edison > Luce", r.Label())
}

func TestMethod_Valid(t *testing.T) {
	for _, m := range Methods {
		assert.True(t, m.Valid(), m)
	}
	assert.False(t, Method("vendor").Valid())

	m, err := ParseMethod("semantic")
	require.NoError(t, err)
	assert.Equal(t, MethodSemantic, m)

	_, err = ParseMethod("llm")
	assert.Error(t, err)
}

func TestTransaction_Validate(t *testing.T) {
	tests := []struct {
		name    string
		txn     Transaction
		wantErr bool
	}{
		{
			name: "valid",
			txn:  Transaction{Tenant: "acme", Description: "PAGAMENTO POS", Amount: -12.5},
		},
		{
			name:    "missing description",
			txn:     Transaction{Tenant: "acme", Amount: -12.5},
			wantErr: true,
		},
		{
			name:    "missing tenant",
			txn:     Transaction{Description: "PAGAMENTO POS"},
			wantErr: true,
		},
		{
			name:    "nan amount",
			txn:     Transaction{Tenant: "acme", Description: "X", Amount: math.NaN()},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.txn.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClassificationRule_Validate(t *testing.T) {
	lo, hi := 100.0, 10.0
	valid := ClassificationRule{
		Tenant:     "acme",
		Name:       "F24",
		Confidence: 98,
		Target:     Triple{CategoryID: 1, SubjectID: 2},
	}
	require.NoError(t, valid.Validate())

	tooConfident := valid
	tooConfident.Confidence = 120
	assert.Error(t, tooConfident.Validate())

	noTarget := valid
	noTarget.Target = Triple{}
	assert.Error(t, noTarget.Validate())

	inverted := valid
	inverted.AmountMin, inverted.AmountMax = &lo, &hi
	assert.Error(t, inverted.Validate())
}

func TestFeedback_CarriesInformation(t *testing.T) {
	target := Triple{CategoryID: 1, SubjectID: 2}
	other := Triple{CategoryID: 1, SubjectID: 3}

	assert.True(t, Feedback{CorrectedTriple: target}.CarriesInformation())
	assert.True(t, Feedback{SuggestedTriple: &other, CorrectedTriple: target}.CarriesInformation())
	assert.False(t, Feedback{SuggestedTriple: &target, CorrectedTriple: target}.CarriesInformation())
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0, ClampConfidence(-4))
	assert.Equal(t, 100, ClampConfidence(140))
	assert.Equal(t, 73, ClampConfidence(73))
}

func TestNeedsReviewResult(t *testing.T) {
	r := NeedsReviewResult("nothing matched", nil)
	assert.Nil(t, r.Classification)
	assert.True(t, r.NeedsReview)
	assert.Equal(t, MethodManual, r.Method)
	assert.NotNil(t, r.Suggestions)
	assert.Empty(t, r.Suggestions)
}
