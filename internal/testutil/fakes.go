package testutil

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Veraticus/spice-cascade/internal/common"
	"github.com/Veraticus/spice-cascade/internal/model"
	"github.com/Veraticus/spice-cascade/internal/service"
	"github.com/Veraticus/spice-cascade/internal/similarity"
)

// FakeEmbedder hashes words into a fixed-size bag-of-words vector, so texts
// sharing words produce vectors with high cosine similarity.
type FakeEmbedder struct {
	// Err, when set, fails every call.
	Err   error
	Dims  int
	calls atomic.Int64
}

var _ service.Embedder = (*FakeEmbedder)(nil)

// NewFakeEmbedder creates an embedder with 64 dimensions.
func NewFakeEmbedder() *FakeEmbedder {
	return &FakeEmbedder{Dims: 64}
}

// Embed returns the normalized bag-of-words vector of text.
func (f *FakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.Err != nil {
		return nil, f.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, f.Dims)
	for _, word := range strings.Fields(strings.ToUpper(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[int(h.Sum32())%f.Dims]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range vec {
			vec[i] /= n
		}
	}
	return vec, nil
}

// Calls reports how many times Embed was invoked.
func (f *FakeEmbedder) Calls() int {
	return int(f.calls.Load())
}

// Model names the fake model.
func (f *FakeEmbedder) Model() string { return "fake-embedding" }

// Dimensions returns the vector size.
func (f *FakeEmbedder) Dimensions() int { return f.Dims }

// FakeVectorIndex is an in-memory brute-force cosine index.
type FakeVectorIndex struct {
	collections map[string]map[string]model.VectorPoint
	// SearchErr and UpsertErr inject failures.
	SearchErr error
	UpsertErr error
	PingErr   error
	upserts   int
	mu        sync.Mutex
}

var _ service.VectorIndex = (*FakeVectorIndex)(nil)

// NewFakeVectorIndex creates an empty index.
func NewFakeVectorIndex() *FakeVectorIndex {
	return &FakeVectorIndex{collections: make(map[string]map[string]model.VectorPoint)}
}

// CollectionExists reports whether collection was created.
func (f *FakeVectorIndex) CollectionExists(_ context.Context, collection string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.collections[collection]
	return ok, nil
}

// CreateCollection creates an empty collection; existing ones are kept.
func (f *FakeVectorIndex) CreateCollection(_ context.Context, collection string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.collections[collection]; !ok {
		f.collections[collection] = make(map[string]model.VectorPoint)
	}
	return nil
}

// DeleteCollection drops a collection and its points.
func (f *FakeVectorIndex) DeleteCollection(_ context.Context, collection string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.collections[collection]; !ok {
		return fmt.Errorf("collection %s: %w", collection, common.ErrNotFound)
	}
	delete(f.collections, collection)
	return nil
}

// Upsert replaces points by id.
func (f *FakeVectorIndex) Upsert(_ context.Context, collection string, points []model.VectorPoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UpsertErr != nil {
		return f.UpsertErr
	}
	coll, ok := f.collections[collection]
	if !ok {
		return fmt.Errorf("collection %s: %w", collection, common.ErrNotFound)
	}
	for _, p := range points {
		coll[p.ID] = p
	}
	f.upserts++
	return nil
}

// Search returns the tenant's points ranked by cosine similarity.
func (f *FakeVectorIndex) Search(_ context.Context, collection string, query model.VectorQuery) ([]model.VectorHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SearchErr != nil {
		return nil, f.SearchErr
	}
	coll, ok := f.collections[collection]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", collection, common.ErrNotFound)
	}
	var hits []model.VectorHit
	for _, p := range coll {
		if p.Payload.Tenant != query.Tenant {
			continue
		}
		score := similarity.Cosine(query.Vector, p.Vector)
		if score < query.MinScore {
			continue
		}
		hits = append(hits, model.VectorHit{ID: p.ID, Score: score, Payload: p.Payload})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if query.TopK > 0 && len(hits) > query.TopK {
		hits = hits[:query.TopK]
	}
	return hits, nil
}

// Ping reports PingErr.
func (f *FakeVectorIndex) Ping(context.Context) error {
	return f.PingErr
}

// Points returns the number of points stored in collection.
func (f *FakeVectorIndex) Points(collection string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.collections[collection])
}

// UpsertCalls reports how many successful Upsert calls were made.
func (f *FakeVectorIndex) UpsertCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upserts
}
