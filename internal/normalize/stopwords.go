package normalize

// stopwords are words that appear in most bank descriptions and say nothing
// about the counterparty.
var stopwords = map[string]struct{}{
	// Italian articles, prepositions and conjunctions.
	"DEL": {}, "DELLA": {}, "DELLE": {}, "DEGLI": {}, "DEI": {}, "DAL": {}, "DALLA": {},
	"NEL": {}, "NELLA": {}, "SUL": {}, "SULLA": {}, "PER": {}, "CON": {}, "TRA": {},
	"FRA": {}, "UNA": {}, "UNO": {}, "GLI": {}, "LE": {}, "IL": {}, "LO": {}, "LA": {},
	"AL": {}, "ALLA": {}, "AI": {}, "ED": {}, "O": {}, "E": {}, "DI": {}, "DA": {},
	"IN": {}, "SU": {}, "VS": {}, "NS": {},

	// Banking boilerplate.
	"PAGAMENTO": {}, "PAGAMENTI": {}, "POS": {}, "BONIFICO": {}, "BONIF": {},
	"ADDEBITO": {}, "ACCREDITO": {}, "DIRETTO": {}, "SEPA": {}, "SDD": {}, "SCT": {},
	"CARTA": {}, "CARD": {}, "DEBIT": {}, "CREDIT": {}, "OPERAZIONE": {}, "DISPOSIZIONE": {},
	"FAVORE": {}, "ORDINANTE": {}, "BENEFICIARIO": {}, "CAUSALE": {}, "DATA": {},
	"VALUTA": {}, "PRELIEVO": {}, "BANCOMAT": {}, "ATM": {}, "COMMISSIONE": {},
	"COMMISSIONI": {}, "SPESE": {}, "INCASSO": {}, "RATA": {}, "MANDATO": {},
	"ESEGUITO": {}, "PRESSO": {}, "ONLINE": {}, "WEB": {}, "INTERNET": {}, "BANKING": {},
	"EUR": {}, "EURO": {}, "ITA": {}, "ITALIA": {}, "SRL": {}, "SPA": {}, "SNC": {}, "SAS": {},

	// English.
	"THE": {}, "AND": {}, "FOR": {}, "FROM": {}, "WITH": {}, "PAYMENT": {}, "TRANSFER": {},
	"PURCHASE": {},
}

// IsStopword reports whether an upper-cased token is a stopword.
func IsStopword(tok string) bool {
	_, ok := stopwords[tok]
	return ok
}
