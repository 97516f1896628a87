package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Pipeline converts message text into vectors and persists them without
// delaying the caller. Jobs are fire-and-forget: failures are reported
// to the Sink and swallowed, never retried. A message whose embedding
// never materializes is simply absent from similarity results.
type Pipeline struct {
	embedder Embedder
	index    VectorIndex
	sink     Sink

	jobs    chan embedJob
	workers int

	inflight sync.WaitGroup // submitted but not yet finished jobs
	wg       sync.WaitGroup // running workers

	mu     sync.Mutex
	closed bool
}

type embedJob struct {
	id        string
	messageID int64
	channel   string
	text      string
}

// NewPipeline creates a pipeline with a bounded queue. The sink must
// not be nil.
func NewPipeline(embedder Embedder, index VectorIndex, queueSize, workers int, sink Sink) *Pipeline {
	if queueSize <= 0 {
		queueSize = DefaultConfig.QueueSize
	}
	if workers <= 0 {
		workers = DefaultConfig.Workers
	}
	return &Pipeline{
		embedder: embedder,
		index:    index,
		sink:     sink,
		jobs:     make(chan embedJob, queueSize),
		workers:  workers,
	}
}

// Start launches the worker goroutines.
func (p *Pipeline) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
}

// Submit enqueues an embedding job for a freshly stored message. It
// never blocks: when the queue is full the job is rejected, a Dropped
// outcome is emitted, and false is returned. Rejecting new work keeps
// already-queued older messages searchable under burst.
func (p *Pipeline) Submit(messageID int64, channel, text string) bool {
	j := embedJob{
		id:        uuid.New().String(),
		messageID: messageID,
		channel:   channel,
		text:      text,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}

	p.inflight.Add(1)
	select {
	case p.jobs <- j:
		return true
	default:
		p.inflight.Done()
		p.sink.Observe(Outcome{JobID: j.id, MessageID: messageID, Channel: channel, Dropped: true})
		return false
	}
}

// Flush blocks until every submitted job has finished. Used by tests
// and shutdown paths that need the index to reflect prior submissions.
func (p *Pipeline) Flush() {
	p.inflight.Wait()
}

// Stop drains the queue and waits for the workers to exit. Submit
// returns false afterwards.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pipeline) run() {
	defer p.wg.Done()
	for j := range p.jobs {
		start := time.Now()
		err := p.process(j)
		p.sink.Observe(Outcome{
			JobID:     j.id,
			MessageID: j.messageID,
			Channel:   j.channel,
			Err:       err,
			Elapsed:   time.Since(start),
		})
		p.inflight.Done()
	}
}

func (p *Pipeline) process(j embedJob) error {
	// Detached from the request that triggered storage: the caller has
	// already returned with the message id.
	ctx := context.Background()

	vector, err := p.embedder.Embed(ctx, j.text)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if err := p.index.Upsert(ctx, j.channel, j.messageID, vector); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	return nil
}
