// Package vectorindex stores transaction embeddings in a Typesense
// collection and runs nearest-neighbour queries against it.
package vectorindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Veraticus/spice-cascade/internal/common"
	"github.com/Veraticus/spice-cascade/internal/model"
	"github.com/Veraticus/spice-cascade/internal/service"
	"github.com/Veraticus/spice-cascade/internal/similarity"
	"github.com/typesense/typesense-go/typesense"
	"github.com/typesense/typesense-go/typesense/api"
)

const embeddingField = "embedding"

// Config configures the Typesense connection.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// TypesenseIndex implements service.VectorIndex on Typesense.
type TypesenseIndex struct {
	client  *typesense.Client
	timeout time.Duration
}

var _ service.VectorIndex = (*TypesenseIndex)(nil)

// NewTypesenseIndex creates a Typesense-backed vector index.
func NewTypesenseIndex(cfg Config) (*TypesenseIndex, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: vector index url is required", common.ErrMissingConfig)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}

	client := typesense.NewClient(
		typesense.WithServer(cfg.URL),
		typesense.WithAPIKey(cfg.APIKey),
		typesense.WithConnectionTimeout(cfg.Timeout),
		typesense.WithCircuitBreakerMaxRequests(50),
		typesense.WithCircuitBreakerInterval(2*time.Minute),
		typesense.WithCircuitBreakerTimeout(time.Minute),
	)
	return &TypesenseIndex{client: client, timeout: cfg.Timeout}, nil
}

// CollectionExists reports whether the collection has been created.
func (t *TypesenseIndex) CollectionExists(ctx context.Context, collection string) (bool, error) {
	_, err := t.client.Collection(collection).Retrieve(ctx)
	if err == nil {
		return true, nil
	}
	if isStatus(err, http.StatusNotFound) {
		return false, nil
	}
	return false, classify(err, "retrieve collection")
}

// CreateCollection creates the collection with a cosine vector field of the
// given size. An existing collection is left untouched.
func (t *TypesenseIndex) CreateCollection(ctx context.Context, collection string, dimensions int) error {
	_, err := t.client.Collections().Create(ctx, Schema(collection, dimensions))
	if err != nil {
		if isStatus(err, http.StatusConflict) || strings.Contains(err.Error(), "already exists") {
			return nil
		}
		return classify(err, "create collection")
	}
	slog.Info("Created vector collection", "collection", collection, "dimensions", dimensions)
	return nil
}

// DeleteCollection drops the collection and every point in it.
func (t *TypesenseIndex) DeleteCollection(ctx context.Context, collection string) error {
	if _, err := t.client.Collection(collection).Delete(ctx); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return fmt.Errorf("collection %s: %w", collection, common.ErrNotFound)
		}
		return classify(err, "delete collection")
	}
	return nil
}

// Upsert writes points keyed by their id.
func (t *TypesenseIndex) Upsert(ctx context.Context, collection string, points []model.VectorPoint) error {
	docs := t.client.Collection(collection).Documents()
	for _, p := range points {
		if _, err := docs.Upsert(ctx, Document(p)); err != nil {
			if isStatus(err, http.StatusNotFound) {
				return fmt.Errorf("collection %s: %w", collection, common.ErrNotFound)
			}
			return classify(err, "upsert "+p.ID)
		}
	}
	return nil
}

// Search returns the tenant's nearest points with cosine similarity of at
// least query.MinScore, best first. The query vector travels in a
// multi_search POST body; a GET query string cannot carry a full embedding.
func (t *TypesenseIndex) Search(ctx context.Context, collection string, query model.VectorQuery) ([]model.VectorHit, error) {
	searches := api.MultiSearchSearchesParameter{
		Searches: []api.MultiSearchCollectionParameters{SearchParams(collection, query)},
	}
	resp, err := t.client.MultiSearch.PerformWithContentType(ctx, &api.MultiSearchParams{}, searches, "application/json")
	if err == nil && resp.StatusCode() != http.StatusOK {
		err = &typesense.HTTPError{Status: resp.StatusCode(), Body: resp.Body}
	}
	var docs []map[string]any
	if err == nil {
		docs, err = decodeMultiSearch(resp.Body)
	}
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, fmt.Errorf("collection %s: %w", collection, common.ErrNotFound)
		}
		return nil, classify(err, "search")
	}

	hits := make([]model.VectorHit, 0, len(docs))
	for _, doc := range docs {
		hit, err := HitFromDocument(doc, query.Vector)
		if err != nil {
			slog.Warn("Skipping malformed vector document", "error", err)
			continue
		}
		if hit.Score < query.MinScore {
			continue
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// multiSearchBody is the multi_search response. Each search reports its own
// failure through code and error while the request itself answers 200.
type multiSearchBody struct {
	Results []struct {
		Hits []struct {
			Document map[string]any `json:"document"`
		} `json:"hits"`
		Code  int    `json:"code"`
		Error string `json:"error"`
	} `json:"results"`
}

func decodeMultiSearch(body []byte) ([]map[string]any, error) {
	var parsed multiSearchBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode multi_search response: %w", err)
	}
	if len(parsed.Results) == 0 {
		return nil, nil
	}
	result := parsed.Results[0]
	if result.Code != 0 && result.Code != http.StatusOK {
		return nil, &typesense.HTTPError{Status: result.Code, Body: []byte(result.Error)}
	}
	docs := make([]map[string]any, 0, len(result.Hits))
	for _, h := range result.Hits {
		if h.Document != nil {
			docs = append(docs, h.Document)
		}
	}
	return docs, nil
}

// Ping checks that the server answers its health endpoint.
func (t *TypesenseIndex) Ping(ctx context.Context) error {
	ok, err := t.client.Health(ctx, t.timeout)
	if err != nil {
		return classify(err, "health")
	}
	if !ok {
		return fmt.Errorf("%w: vector index reports unhealthy", common.ErrDependencyUnavailable)
	}
	return nil
}

// Schema returns the collection schema for transaction points.
func Schema(collection string, dimensions int) *api.CollectionSchema {
	optional := true
	facet := true
	return &api.CollectionSchema{
		Name: collection,
		Fields: []api.Field{
			{Name: "transaction_id", Type: "string"},
			{Name: "tenant", Type: "string", Facet: &facet},
			{Name: "description", Type: "string"},
			{Name: "payment_type", Type: "string", Optional: &optional},
			{Name: "amount", Type: "float"},
			{Name: "date", Type: "int64"},
			{Name: "category_id", Type: "int64", Facet: &facet},
			{Name: "subject_id", Type: "int64", Facet: &facet},
			{Name: "detail_id", Type: "int64", Optional: &optional},
			{Name: "category_name", Type: "string"},
			{Name: "subject_name", Type: "string"},
			{Name: "detail_name", Type: "string", Optional: &optional},
			{Name: "classification_frequency", Type: "int32"},
			{Name: embeddingField, Type: "float[]", NumDim: &dimensions},
		},
	}
}

// SearchParams renders a vector query as one multi_search entry.
func SearchParams(collection string, query model.VectorQuery) api.MultiSearchCollectionParameters {
	values := make([]string, len(query.Vector))
	for i, v := range query.Vector {
		values[i] = fmt.Sprintf("%g", v)
	}
	// Typesense cosine distance is 1 - similarity.
	vectorQuery := fmt.Sprintf("%s:([%s], k:%d, distance_threshold:%g)",
		embeddingField, strings.Join(values, ","), query.TopK, 1-query.MinScore)
	q := "*"
	filter := fmt.Sprintf("tenant:=`%s`", strings.ReplaceAll(query.Tenant, "`", ""))
	perPage := query.TopK

	return api.MultiSearchCollectionParameters{
		Collection:  collection,
		Q:           &q,
		FilterBy:    &filter,
		VectorQuery: &vectorQuery,
		PerPage:     &perPage,
	}
}

// Document converts a point into a Typesense document.
func Document(p model.VectorPoint) map[string]any {
	doc := map[string]any{
		"id":                       p.ID,
		"transaction_id":           p.Payload.TransactionID,
		"tenant":                   p.Payload.Tenant,
		"description":              p.Payload.Description,
		"payment_type":             p.Payload.PaymentType,
		"amount":                   p.Payload.Amount,
		"date":                     p.Payload.Date.Unix(),
		"category_id":              p.Payload.Target.CategoryID,
		"subject_id":               p.Payload.Target.SubjectID,
		"category_name":            p.Payload.Target.CategoryName,
		"subject_name":             p.Payload.Target.SubjectName,
		"classification_frequency": p.Payload.ClassificationFrequency,
		embeddingField:             p.Vector,
	}
	if p.Payload.Target.DetailID != nil {
		doc["detail_id"] = *p.Payload.Target.DetailID
	}
	if p.Payload.Target.DetailName != nil {
		doc["detail_name"] = *p.Payload.Target.DetailName
	}
	return doc
}

// HitFromDocument decodes a returned document and scores it against the
// query vector.
func HitFromDocument(doc map[string]any, query []float32) (model.VectorHit, error) {
	id, _ := doc["id"].(string)
	if id == "" {
		return model.VectorHit{}, errors.New("document without id")
	}
	vector, err := floats(doc[embeddingField])
	if err != nil {
		return model.VectorHit{}, fmt.Errorf("document %s: %w", id, err)
	}

	payload := model.VectorPayload{
		TransactionID:           str(doc["transaction_id"]),
		Tenant:                  str(doc["tenant"]),
		Description:             str(doc["description"]),
		PaymentType:             str(doc["payment_type"]),
		Amount:                  num(doc["amount"]),
		Date:                    time.Unix(int64(num(doc["date"])), 0).UTC(),
		ClassificationFrequency: int(num(doc["classification_frequency"])),
		Target: model.ResolvedTriple{
			Triple: model.Triple{
				CategoryID: int64(num(doc["category_id"])),
				SubjectID:  int64(num(doc["subject_id"])),
			},
			CategoryName: str(doc["category_name"]),
			SubjectName:  str(doc["subject_name"]),
		},
	}
	if v, ok := doc["detail_id"]; ok && v != nil {
		payload.Target.DetailID = model.Int64Ptr(int64(num(v)))
	}
	if v, ok := doc["detail_name"].(string); ok && v != "" {
		payload.Target.DetailName = &v
	}

	return model.VectorHit{
		ID:      id,
		Score:   similarity.Cosine(query, vector),
		Payload: payload,
	}, nil
}

func floats(v any) ([]float32, error) {
	switch vals := v.(type) {
	case []float32:
		return vals, nil
	case []any:
		out := make([]float32, len(vals))
		for i, x := range vals {
			f, ok := x.(float64)
			if !ok {
				return nil, fmt.Errorf("embedding element %d is %T", i, x)
			}
			out[i] = float32(f)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("embedding missing or %T", v)
	}
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func isStatus(err error, status int) bool {
	var httpErr *typesense.HTTPError
	return errors.As(err, &httpErr) && httpErr.Status == status
}

// classify marks server-side and transport failures retryable; client
// errors are permanent.
func classify(err error, op string) error {
	var httpErr *typesense.HTTPError
	if errors.As(err, &httpErr) && httpErr.Status < 500 && httpErr.Status != http.StatusTooManyRequests {
		return common.Permanent(fmt.Errorf("vector index %s: %w", op, err))
	}
	return fmt.Errorf("%w: vector index %s: %w", common.ErrDependencyUnavailable, op, err)
}
