package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescription(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "reference number",
			in:   "EDISON BOLLETTA LUCE RIF:12345",
			want: "EDISON BOLLETTA LUCE",
		},
		{
			name: "same bill different reference",
			in:   "Edison bolletta luce rif. 98765",
			want: "EDISON BOLLETTA LUCE",
		},
		{
			name: "date and time",
			in:   "PAGAMENTO POS 12/03/2024 14:35 SUPERMERCATO XYZ",
			want: "PAGAMENTO POS SUPERMERCATO XYZ",
		},
		{
			name: "card mask",
			in:   "PAGAMENTO CARTA ****1234 AMAZON",
			want: "PAGAMENTO CARTA AMAZON",
		},
		{
			name: "protocol code and standalone numbers",
			in:   "SDD A2A ENERGIA MANDATO IT12ZZZ0000012345 N. 001",
			want: "SDD A2A ENERGIA MANDATO",
		},
		{
			name: "short codes survive",
			in:   "Delega Unica - F24 124/2024",
			want: "DELEGA UNICA F24",
		},
		{
			name: "empty",
			in:   "  ",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Description(tt.in))
		})
	}
}

func TestDescription_Idempotent(t *testing.T) {
	inputs := []string{
		"EDISON BOLLETTA LUCE RIF:12345",
		"BONIFICO SEPA A FAVORE DI MARIO ROSSI CRO 0301512345 CANONE LOCAZIONE 01/2024",
		"RIF 12/03/2024 F24",
		"ID 2024-01-01 X-Y-Z ... 33",
		"N N N 12 N 1A2B3C4D",
		"ÀÈÌ òù -- perché?",
		"",
	}
	for _, in := range inputs {
		once := Description(in)
		assert.Equal(t, once, Description(once), in)
	}
}

func TestTokens(t *testing.T) {
	got := Tokens("PAGAMENTO POS SUPERMERCATO XYZ 2024 del supermercato xyz")
	assert.Equal(t, []string{"SUPERMERCATO", "XYZ"}, got)

	got = Tokens("BONIFICO SEPA A FAVORE DI IMMOBILIARE ROSSI CANONE LOCAZIONE 123456")
	assert.Equal(t, []string{"IMMOBILIARE", "ROSSI", "CANONE", "LOCAZIONE"}, got)

	for _, tok := range Tokens("IL PAGAMENTO DELLA RATA PER LA CARTA 99 E 1234") {
		assert.False(t, IsStopword(tok), tok)
		assert.False(t, isNumeric(tok), tok)
	}
	assert.Empty(t, Tokens("IL PAGAMENTO DELLA RATA PER LA CARTA 99 E 1234"))
}

func TestPatternKey(t *testing.T) {
	assert.Equal(t, "CANONE LOCAZIONE", PatternKey("Canone locazione 01/2024"))
	assert.Equal(t, "CANONE LOCAZIONE", PatternKey("CANONE LOCAZIONE 12/2023"))
	assert.Equal(t, "EDISON BOLLETTA LUCE RIF", PatternKey("EDISON BOLLETTA LUCE RIF:12345"))

	long := "ABBONAMENTO MENSILE PALESTRA FITNESS CLUB CENTRO CITTA"
	key := PatternKey(long)
	assert.LessOrEqual(t, len([]rune(key)), PatternKeyLength)
	assert.Equal(t, "ABBONAMENTO MENSILE PALESTRA FITNESS CLU", key)
}
