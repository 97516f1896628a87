package memory

import (
	"context"
	"errors"
	"log"
	"time"
)

// Role distinguishes human input from generated replies.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the two defined roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is a single chat turn. Messages are created once on ingestion,
// never updated, and deleted only by retention sweeps.
type Message struct {
	ID        int64     // monotonically increasing, assigned at insertion
	Channel   string    // logical scope; all retrieval is isolated per channel
	Author    string    // originating identity
	Role      Role      // user or assistant
	Text      string    // message body, bounded length
	Timestamp time.Time // creation time, used for ordering and retention
}

// Ref identifies a stored message together with its channel. Retention
// sweeps use refs to delete vectors before purging rows.
type Ref struct {
	ID      int64
	Channel string
}

// Hit is one nearest-neighbor result from the vector index.
type Hit struct {
	MessageID int64
	// Distance is 1 - cosine_similarity, in [0, 2]. 0 means identical
	// direction.
	Distance float32
}

// Stats holds aggregate message counts for diagnostics.
type Stats struct {
	TotalCount int64
	PerChannel map[string]int64
}

var (
	// ErrDimensionMismatch is returned by VectorIndex.Upsert when the
	// vector length differs from the configured dimension. This is a
	// programming error, not a recoverable runtime state.
	ErrDimensionMismatch = errors.New("memory: embedding dimension mismatch")

	// ErrIndexUnavailable wraps vector index backend failures.
	ErrIndexUnavailable = errors.New("memory: vector index unavailable")
)

// Embedder converts text to vector embeddings. Implementations:
// mock.Embedder (testing/dev), onnx.Embedder (local all-MiniLM-L6-v2).
//
// An Embedder is loaded once at process startup (model loading can take
// seconds) and shared read-only by all callers.
type Embedder interface {
	// Embed converts a single text to an embedding vector. Vectors are
	// unit-normalized so cosine distance is well-defined.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// MessageStore is the durable, ordered record of all messages per
// channel. Append is the only operation allowed to fail loudly: losing
// a write silently would be a correctness violation, while every read
// path degrades to "no data".
type MessageStore interface {
	// Append inserts a new message with a fresh monotonic id and the
	// current timestamp, returning the id. It never waits on embedding
	// computation.
	Append(ctx context.Context, channel, author, text string, role Role) (int64, error)

	// Recent returns up to limit most recent messages for the channel,
	// ordered oldest to newest. An unknown or empty channel yields an
	// empty slice, not an error.
	Recent(ctx context.Context, channel string, limit int) ([]Message, error)

	// Resolve loads messages by id. Missing ids are simply absent from
	// the result map.
	Resolve(ctx context.Context, ids []int64) (map[int64]Message, error)

	// Stats returns aggregate counts across all channels.
	Stats(ctx context.Context) (Stats, error)

	// ListOlderThan returns refs for all messages with a timestamp
	// before cutoff, across all channels.
	ListOlderThan(ctx context.Context, cutoff time.Time) ([]Ref, error)

	// PurgeOlderThan deletes all messages older than cutoff and reports
	// the number of rows removed. Idempotent; a no-op when nothing
	// qualifies.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases the underlying database.
	Close() error
}

// VectorIndex associates message ids with embeddings and answers
// nearest-neighbor queries scoped to a channel.
type VectorIndex interface {
	// Upsert associates a vector with a message id. A second upsert for
	// the same id replaces the previous vector. Fails with
	// ErrDimensionMismatch or ErrIndexUnavailable.
	Upsert(ctx context.Context, channel string, messageID int64, vector []float32) error

	// Search returns up to limit nearest neighbors within the channel,
	// ascending by cosine distance, ties broken by message id ascending
	// so results are reproducible. An empty channel yields an empty
	// slice.
	Search(ctx context.Context, channel string, query []float32, limit int) ([]Hit, error)

	// Delete removes embeddings for the given message ids; absent ids
	// are a no-op.
	Delete(ctx context.Context, channel string, messageIDs ...int64) error
}

// Outcome is the result of one background embedding job. Outcomes are
// delivered to a Sink so the recover-locally failure policy is explicit
// and observable rather than implicit in control flow.
type Outcome struct {
	JobID     string
	MessageID int64
	Channel   string
	// Dropped is set when the job was rejected because the queue was
	// full. The message stays queryable via recency.
	Dropped bool
	Err     error
	Elapsed time.Duration
}

// OK reports whether the embedding was computed and stored.
func (o Outcome) OK() bool {
	return !o.Dropped && o.Err == nil
}

// Sink receives outcomes from the embedding pipeline and retention
// sweeps. Implementations must be safe for concurrent use.
type Sink interface {
	Observe(Outcome)
}

// LogSink is the default Sink: failures and drops go to the standard
// logger, successes stay quiet.
type LogSink struct{}

func (LogSink) Observe(o Outcome) {
	switch {
	case o.Dropped:
		log.Printf("[MEMORY] embed queue full, dropped message %d in %s (job %s)",
			o.MessageID, o.Channel, o.JobID)
	case o.Err != nil:
		log.Printf("[MEMORY] embed job %s failed for message %d in %s: %v",
			o.JobID, o.MessageID, o.Channel, o.Err)
	}
}
