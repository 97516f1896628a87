// Package memory implements conversational memory for a chat-relay bot.
//
// Every message flowing through a channel is durably recorded, embedded
// out-of-band, and later retrievable as context for a new message by
// combining a recency window with a semantic-similarity search.
//
// Architecture:
//   - MessageStore: append-only durable log of messages per channel
//     (SQLite implementation in memory/store/sqlite)
//   - VectorIndex: message-id to embedding association with
//     nearest-neighbor search (chromem-go implementation in
//     memory/index/chromem)
//   - Embedder: text-to-vector conversion (mock for tests/dev, ONNX
//     all-MiniLM-L6-v2 behind the "onnx" build tag)
//   - Pipeline: bounded background queue that embeds stored messages
//     without delaying ingestion
//   - Manager: orchestrates ingestion, hybrid retrieval, and retention
//
// Write path: Manager.StoreMessage appends to the store and returns the
// new id immediately; the embedding is computed by the Pipeline and
// upserted into the index afterwards. A message is therefore briefly
// (or, on embedding failure, permanently) absent from similarity
// results while always remaining reachable through recency.
//
// Read path: Manager.GetContext fetches the recency slice and the
// similarity slice concurrently, removes duplicates, caps the
// similarity contribution, and never returns an error: every internal
// failure degrades to a smaller (possibly empty) context.
package memory
