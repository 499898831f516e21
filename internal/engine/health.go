package engine

import (
	"context"
	"time"
)

// Service states reported by HealthCheck.
const (
	StatusOK          = "ok"
	StatusUnavailable = "unavailable"
	StatusDisabled    = "disabled"
)

const healthTimeout = 5 * time.Second

// Capabilities lists what the engine can currently do beyond rules and history.
type Capabilities struct {
	SemanticSearch bool `json:"semantic_search"`
	Indexing       bool `json:"indexing"`
}

// Health reports the state of the external services.
type Health struct {
	EmbeddingService   string       `json:"embedding_service"`
	VectorIndexService string       `json:"vector_index_service"`
	Errors             []string     `json:"errors,omitempty"`
	Capabilities       Capabilities `json:"capabilities"`
}

// HealthCheck probes the embedding and vector-index services. An unavailable
// service degrades capabilities; it is not an error.
func (e *ClassificationEngine) HealthCheck(ctx context.Context) Health {
	h := Health{EmbeddingService: StatusDisabled, VectorIndexService: StatusDisabled}

	if e.deps.Embedder != nil {
		h.EmbeddingService = StatusOK
		probeCtx, cancel := context.WithTimeout(ctx, healthTimeout)
		if _, err := e.deps.Embedder.Embed(probeCtx, "health check"); err != nil {
			h.EmbeddingService = StatusUnavailable
			h.Errors = append(h.Errors, "embedding: "+err.Error())
		}
		cancel()
	}

	if e.deps.Index != nil {
		h.VectorIndexService = StatusOK
		probeCtx, cancel := context.WithTimeout(ctx, healthTimeout)
		if err := e.deps.Index.Ping(probeCtx); err != nil {
			h.VectorIndexService = StatusUnavailable
			h.Errors = append(h.Errors, "vector index: "+err.Error())
		}
		cancel()
	}

	ready := h.EmbeddingService == StatusOK && h.VectorIndexService == StatusOK
	h.Capabilities = Capabilities{SemanticSearch: ready, Indexing: ready}
	return h
}
