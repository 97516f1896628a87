// Package metrics exposes Prometheus instrumentation for the memory
// engine and adapts the engine's outcome stream to counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chanmem/chanmem/memory"
)

var (
	EmbedJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chanmem_embed_jobs_total",
			Help: "Background embedding jobs by result",
		},
		[]string{"result"}, // "ok", "failed", "dropped"
	)

	EmbedDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chanmem_embed_duration_seconds",
			Help:    "Embedding computation and upsert latency",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	MessagesStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chanmem_messages_stored_total",
			Help: "Messages appended to the durable store",
		},
		[]string{"role"},
	)

	ContextRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chanmem_context_requests_total",
			Help: "Hybrid context retrievals served",
		},
	)
)

// Sink counts pipeline outcomes. Chain another sink (typically
// memory.LogSink) through Next.
type Sink struct {
	Next memory.Sink
}

var _ memory.Sink = Sink{}

func (s Sink) Observe(o memory.Outcome) {
	switch {
	case o.Dropped:
		EmbedJobs.WithLabelValues("dropped").Inc()
	case o.Err != nil:
		EmbedJobs.WithLabelValues("failed").Inc()
	default:
		EmbedJobs.WithLabelValues("ok").Inc()
		EmbedDuration.Observe(o.Elapsed.Seconds())
	}
	if s.Next != nil {
		s.Next.Observe(o)
	}
}
