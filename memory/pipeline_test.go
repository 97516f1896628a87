package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/chanmem/chanmem/memory"
	"github.com/chanmem/chanmem/memory/index/chromem"
)

// captureSink records every outcome for assertions.
type captureSink struct {
	mu       sync.Mutex
	outcomes []memory.Outcome
}

func (s *captureSink) Observe(o memory.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, o)
}

func (s *captureSink) all() []memory.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]memory.Outcome(nil), s.outcomes...)
}

// blockingEmbedder parks in Embed until released, to fill the queue
// deterministically.
type blockingEmbedder struct {
	started chan struct{}
	release chan struct{}
	dims    int
}

func (e *blockingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.started <- struct{}{}
	<-e.release
	vec := make([]float32, e.dims)
	vec[0] = 1
	return vec, nil
}

func (e *blockingEmbedder) Dimensions() int {
	return e.dims
}

func TestPipeline_RejectsWhenQueueFull(t *testing.T) {
	embedder := &blockingEmbedder{
		started: make(chan struct{}, 4),
		release: make(chan struct{}),
		dims:    4,
	}
	sink := &captureSink{}
	pipeline := memory.NewPipeline(embedder, chromem.New(4), 1, 1, sink)
	pipeline.Start()
	defer pipeline.Stop()

	if !pipeline.Submit(1, "#a", "first") {
		t.Fatal("first submission should be accepted")
	}
	<-embedder.started // worker is now parked, queue is empty

	if !pipeline.Submit(2, "#a", "second") {
		t.Fatal("second submission should fill the queue")
	}
	if pipeline.Submit(3, "#a", "third") {
		t.Error("third submission should be rejected, queue is full")
	}

	close(embedder.release)
	pipeline.Flush()

	var ok, dropped int
	for _, o := range sink.all() {
		switch {
		case o.Dropped:
			dropped++
			if o.MessageID != 3 {
				t.Errorf("dropped wrong message: %d", o.MessageID)
			}
		case o.OK():
			ok++
		default:
			t.Errorf("unexpected failure outcome: %+v", o)
		}
	}
	if ok != 2 || dropped != 1 {
		t.Errorf("outcomes: %d ok, %d dropped; want 2 ok, 1 dropped", ok, dropped)
	}
}

func TestPipeline_SwallowsEmbedFailure(t *testing.T) {
	sink := &captureSink{}
	pipeline := memory.NewPipeline(&failingEmbedder{dims: 4}, chromem.New(4), 8, 1, sink)
	pipeline.Start()
	defer pipeline.Stop()

	if !pipeline.Submit(1, "#a", "doomed") {
		t.Fatal("submission should be accepted")
	}
	pipeline.Flush()

	outcomes := sink.all()
	if len(outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outcomes))
	}
	if outcomes[0].Err == nil || outcomes[0].OK() {
		t.Errorf("expected failed outcome, got %+v", outcomes[0])
	}
}

func TestPipeline_DimensionMismatchReported(t *testing.T) {
	// Embedder produces 8-dim vectors, index expects 4: a programming
	// error that must surface through the sink, not crash the worker.
	sink := &captureSink{}
	pipeline := memory.NewPipeline(&wordEmbedder{dims: 8}, chromem.New(4), 8, 1, sink)
	pipeline.Start()
	defer pipeline.Stop()

	pipeline.Submit(1, "#a", "some words")
	pipeline.Flush()

	outcomes := sink.all()
	if len(outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outcomes))
	}
	if !errors.Is(outcomes[0].Err, memory.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", outcomes[0].Err)
	}
}

func TestPipeline_SubmitAfterStop(t *testing.T) {
	pipeline := memory.NewPipeline(&wordEmbedder{dims: 4}, chromem.New(4), 8, 1, &captureSink{})
	pipeline.Start()
	pipeline.Stop()

	if pipeline.Submit(1, "#a", "late") {
		t.Error("submission after Stop should be rejected")
	}
}
