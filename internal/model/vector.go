package model

import "time"

// VectorPoint is one entry of the vector index, keyed by transaction id.
type VectorPoint struct {
	Payload VectorPayload
	ID      string
	Vector  []float32
}

// VectorPayload is the denormalized transaction and classification stored
// alongside each embedding.
type VectorPayload struct {
	Date                    time.Time
	TransactionID           string
	Tenant                  string
	Description             string
	PaymentType             string
	Target                  ResolvedTriple
	Amount                  float64
	ClassificationFrequency int
}

// VectorQuery describes a nearest-neighbour search.
type VectorQuery struct {
	Tenant   string
	Vector   []float32
	TopK     int
	MinScore float64
}

// VectorHit is one search result; Score is cosine similarity in [-1, 1].
type VectorHit struct {
	Payload VectorPayload
	ID      string
	Score   float64
}
