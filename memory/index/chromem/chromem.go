// Package chromem implements the vector index on chromem-go, a pure Go
// embedded vector database. Each channel gets its own collection so
// retrieval is strictly scoped.
package chromem

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/chanmem/chanmem/memory"
)

// Index is the chromem-backed memory.VectorIndex. The dimension is
// fixed at construction; a mismatched upsert fails with
// memory.ErrDimensionMismatch.
type Index struct {
	db         *chromem.DB
	dimensions int

	collections map[string]*chromem.Collection
	mu          sync.RWMutex
}

var _ memory.VectorIndex = (*Index)(nil)

// New creates an in-memory index for vectors of the given dimension.
func New(dimensions int) *Index {
	return &Index{
		db:          chromem.NewDB(),
		dimensions:  dimensions,
		collections: make(map[string]*chromem.Collection),
	}
}

// NewPersistent creates an index that stores collections under dir so
// embeddings survive restarts.
func NewPersistent(dir string, dimensions int) (*Index, error) {
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open persistent index: %w", err)
	}
	return &Index{
		db:          db,
		dimensions:  dimensions,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

// Dimensions returns the fixed vector size accepted by the index.
func (x *Index) Dimensions() int {
	return x.dimensions
}

func collectionName(channel string) string {
	return "channel_" + channel
}

// getOrCreateCollection returns the collection for a channel, creating
// it on first use.
func (x *Index) getOrCreateCollection(channel string) (*chromem.Collection, error) {
	x.mu.RLock()
	col, exists := x.collections[channel]
	x.mu.RUnlock()
	if exists {
		return col, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if col, exists := x.collections[channel]; exists {
		return col, nil
	}

	// No embedding func and no custom distance func: vectors arrive
	// pre-computed and unit-normalized, cosine is the default.
	col, err := x.db.GetOrCreateCollection(collectionName(channel), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	x.collections[channel] = col
	return col, nil
}

// getCollection returns the channel's collection without creating one,
// or nil when the channel has no embeddings yet.
func (x *Index) getCollection(channel string) *chromem.Collection {
	x.mu.RLock()
	col, exists := x.collections[channel]
	x.mu.RUnlock()
	if exists {
		return col
	}
	// A persistent DB may have loaded the collection from disk.
	return x.db.GetCollection(collectionName(channel), nil)
}

// Upsert associates a vector with a message id. Re-adding an id
// replaces the previous document, so a message never accumulates more
// than one embedding.
func (x *Index) Upsert(ctx context.Context, channel string, messageID int64, vector []float32) error {
	if len(vector) != x.dimensions {
		return fmt.Errorf("%w: got %d, want %d", memory.ErrDimensionMismatch, len(vector), x.dimensions)
	}

	col, err := x.getOrCreateCollection(channel)
	if err != nil {
		return fmt.Errorf("%w: %v", memory.ErrIndexUnavailable, err)
	}

	doc := chromem.Document{
		ID:        strconv.FormatInt(messageID, 10),
		Embedding: vector,
		Metadata:  map[string]string{"channel": channel},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("%w: add document: %v", memory.ErrIndexUnavailable, err)
	}
	return nil
}

// Search returns up to limit nearest neighbors in the channel, sorted
// ascending by cosine distance with ties broken by message id so
// repeated calls on identical input are stable.
func (x *Index) Search(ctx context.Context, channel string, query []float32, limit int) ([]memory.Hit, error) {
	if len(query) != x.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", memory.ErrDimensionMismatch, len(query), x.dimensions)
	}

	col := x.getCollection(channel)
	if col == nil {
		return nil, nil
	}

	// chromem rejects nResults larger than the collection size.
	if count := col.Count(); count < limit {
		limit = count
	}
	if limit <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, query, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	hits := make([]memory.Hit, 0, len(results))
	for _, result := range results {
		id, err := strconv.ParseInt(result.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed document id %q: %w", result.ID, err)
		}
		distance := 1 - result.Similarity
		if distance < 0 {
			distance = 0 // float error on identical vectors
		}
		hits = append(hits, memory.Hit{MessageID: id, Distance: distance})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].MessageID < hits[j].MessageID
	})
	return hits, nil
}

// Delete removes embeddings for the given message ids. Absent ids and
// unknown channels are a no-op.
func (x *Index) Delete(ctx context.Context, channel string, messageIDs ...int64) error {
	if len(messageIDs) == 0 {
		return nil
	}
	col := x.getCollection(channel)
	if col == nil {
		return nil
	}

	ids := make([]string, len(messageIDs))
	for i, id := range messageIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("%w: delete documents: %v", memory.ErrIndexUnavailable, err)
	}
	return nil
}
