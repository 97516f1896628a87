package memory

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/dgraph-io/ristretto"
)

// Manager is the memory engine facade: it owns the write path
// (StoreMessage), the hybrid read path (GetContext), diagnostics, and
// the retention sweeper.
type Manager struct {
	store    MessageStore
	index    VectorIndex
	embedder Embedder
	pipeline *Pipeline
	sweeper  *Sweeper
	config   *Config
	sink     Sink

	// queryCache memoizes query-text embeddings. Queries repeat and an
	// embedding can cost seconds on cold start.
	queryCache *ristretto.Cache

	ready atomic.Bool
}

// Option configures the manager.
type Option func(*Manager)

// WithSink replaces the default LogSink for pipeline and sweep
// outcomes.
func WithSink(s Sink) Option {
	return func(m *Manager) {
		if s != nil {
			m.sink = s
		}
	}
}

// NewManager wires the engine together and starts its background work.
// The embedder must already be loaded; it is shared read-only by all
// callers.
func NewManager(store MessageStore, index VectorIndex, embedder Embedder, config *Config, opts ...Option) (*Manager, error) {
	if config == nil {
		config = DefaultConfig
	}

	m := &Manager{
		store:    store,
		index:    index,
		embedder: embedder,
		config:   config,
		sink:     LogSink{},
	}
	for _, opt := range opts {
		opt(m)
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     8 << 20, // bytes of cached vectors
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("query cache: %w", err)
	}
	m.queryCache = cache

	m.pipeline = NewPipeline(embedder, index, config.QueueSize, config.Workers, m.sink)
	m.pipeline.Start()

	m.sweeper = NewSweeper(store, index, config.Retention(), config.SweepInterval)
	if config.Enabled && config.RetentionDays > 0 {
		m.sweeper.Start()
	}

	if config.Enabled {
		m.ready.Store(true)
	}
	return m, nil
}

// Ready reports whether the engine can serve requests: the embedding
// provider is loaded, the store is open, and the engine is enabled.
func (m *Manager) Ready() bool {
	return m.ready.Load()
}

// StoreMessage durably records a chat turn and returns its id. The
// embedding is computed in the background; ingestion latency never
// includes embedding latency. Returns -1 without error when the engine
// is disabled. This is the only operation that propagates storage
// failures.
func (m *Manager) StoreMessage(ctx context.Context, channel, author, text string, role Role) (int64, error) {
	if !m.config.Enabled {
		return -1, nil
	}
	if !role.Valid() {
		return -1, fmt.Errorf("memory: invalid role %q", role)
	}

	id, err := m.store.Append(ctx, channel, author, text, role)
	if err != nil {
		return -1, fmt.Errorf("append message: %w", err)
	}

	m.pipeline.Submit(id, channel, text)
	return id, nil
}

// GetContext answers "relevant context for channel given query": the
// chronological recency block first, then older-but-relevant messages
// in most-similar-first order. The output is deduplicated and the
// similarity contribution is capped at SimilarK - RecentK. Never
// returns an error: any internal failure degrades to the surviving
// slices, down to an empty result.
func (m *Manager) GetContext(ctx context.Context, channel, query string) []Message {
	if !m.config.Enabled || !m.ready.Load() {
		return nil
	}
	recentK, similarK := m.config.RecentK, m.config.SimilarK

	type fetched struct {
		msgs []Message
		err  error
	}
	recentCh := make(chan fetched, 1)
	go func() {
		msgs, err := m.store.Recent(ctx, channel, recentK)
		recentCh <- fetched{msgs, err}
	}()

	// The similarity path pays the query-embedding cost, so it runs
	// alongside the recency fetch. When the budget is zero it could
	// never contribute and is skipped entirely.
	var similar []Message
	if similarK-recentK > 0 && query != "" {
		similar = m.similarMessages(ctx, channel, query, similarK)
	}

	rec := <-recentCh
	if rec.err != nil {
		log.Printf("[MEMORY] recent fetch failed for %s: %v", channel, rec.err)
		rec.msgs = nil
	}

	return mergeContext(rec.msgs, similar, recentK, similarK)
}

// similarMessages resolves the similarity slice: query embedding
// (cached), index search, id join on the store. Any failure yields nil.
func (m *Manager) similarMessages(ctx context.Context, channel, query string, limit int) []Message {
	vector, err := m.queryEmbedding(ctx, query)
	if err != nil {
		log.Printf("[MEMORY] query embedding failed: %v", err)
		return nil
	}

	hits, err := m.index.Search(ctx, channel, vector, limit)
	if err != nil {
		log.Printf("[MEMORY] similarity search failed for %s: %v", channel, err)
		return nil
	}
	if len(hits) == 0 {
		return nil
	}

	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.MessageID
	}
	byID, err := m.store.Resolve(ctx, ids)
	if err != nil {
		log.Printf("[MEMORY] resolving %d similar messages failed: %v", len(ids), err)
		return nil
	}

	// Preserve the ranking; an id missing from the store (purged after
	// indexing) is skipped.
	msgs := make([]Message, 0, len(hits))
	for _, h := range hits {
		if msg, ok := byID[h.MessageID]; ok {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

func (m *Manager) queryEmbedding(ctx context.Context, query string) ([]float32, error) {
	if cached, ok := m.queryCache.Get(query); ok {
		if vector, ok := cached.([]float32); ok {
			return vector, nil
		}
	}
	vector, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	m.queryCache.Set(query, vector, int64(4*len(vector)))
	return vector, nil
}

// mergeContext concatenates the chronological recency block with the
// similarity block. Ids already present in the recency slice are
// excluded, and the similarity contribution is capped at
// similarK - recentK, so the similarity slice contributes nothing when
// recentK >= similarK.
func mergeContext(recent, similar []Message, recentK, similarK int) []Message {
	seen := make(map[int64]bool, len(recent))
	for _, msg := range recent {
		seen[msg.ID] = true
	}

	out := append([]Message(nil), recent...)
	budget := similarK - recentK
	for _, msg := range similar {
		if budget <= 0 {
			break
		}
		if seen[msg.ID] {
			continue
		}
		seen[msg.ID] = true
		out = append(out, msg)
		budget--
	}
	return out
}

// GetStats returns aggregate counts. Best-effort and observability-only:
// query errors yield zeroed stats, never a failure.
func (m *Manager) GetStats(ctx context.Context) Stats {
	stats, err := m.store.Stats(ctx)
	if err != nil {
		log.Printf("[MEMORY] stats query failed: %v", err)
		return Stats{PerChannel: map[string]int64{}}
	}
	return stats
}

// SweepNow runs a retention sweep immediately, independent of the
// schedule. Returns the number of messages purged.
func (m *Manager) SweepNow(ctx context.Context) (int64, error) {
	return m.sweeper.SweepNow(ctx)
}

// Flush blocks until all queued embedding jobs have completed. Callers
// that need a just-stored message to be similarity-searchable (tests,
// shutdown) use this; normal operation never waits.
func (m *Manager) Flush() {
	m.pipeline.Flush()
}

// Close stops background work and releases resources.
func (m *Manager) Close() error {
	m.ready.Store(false)
	m.sweeper.Stop()
	m.pipeline.Stop()
	m.queryCache.Close()
	return m.store.Close()
}
