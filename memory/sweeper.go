package memory

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Sweeper bounds storage growth by periodically purging messages older
// than the retention window, together with their embeddings. Embeddings
// are deleted before the rows they reference, so a vector never
// outlives its message.
type Sweeper struct {
	store     MessageStore
	index     VectorIndex
	retention time.Duration // 0 = unbounded, sweeper is a no-op
	interval  time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	started  bool
}

// NewSweeper creates a sweeper. It does nothing until Start is called.
func NewSweeper(store MessageStore, index VectorIndex, retention, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultConfig.SweepInterval
	}
	return &Sweeper{
		store:     store,
		index:     index,
		retention: retention,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the periodic sweep loop. With an unbounded retention
// window it logs and returns without starting anything.
func (s *Sweeper) Start() {
	if s.retention <= 0 {
		log.Printf("[SWEEPER] retention unbounded, sweeper disabled")
		return
	}
	s.started = true
	log.Printf("[SWEEPER] sweeping every %s, retention %s", s.interval, s.retention)
	go s.run()
}

// Stop terminates the sweep loop. Safe to call multiple times and when
// never started.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

func (s *Sweeper) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.SweepNow(context.Background()); err != nil {
				log.Printf("[SWEEPER] sweep failed: %v", err)
			}
		case <-s.stopCh:
			return
		}
	}
}

// SweepNow purges everything older than now minus the retention window.
// A no-op when retention is unbounded.
func (s *Sweeper) SweepNow(ctx context.Context) (int64, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	return s.PurgeBefore(ctx, time.Now().Add(-s.retention))
}

// PurgeBefore deletes all messages older than cutoff across all
// channels, vectors first. Idempotent. If any vector deletion fails the
// rows are left in place and retried on the next sweep: an orphaned
// message without a vector is an accepted state, a dangling vector
// without a message is not.
func (s *Sweeper) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	refs, err := s.store.ListOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list expired messages: %w", err)
	}
	if len(refs) == 0 {
		return 0, nil
	}

	byChannel := make(map[string][]int64)
	for _, ref := range refs {
		byChannel[ref.Channel] = append(byChannel[ref.Channel], ref.ID)
	}
	for channel, ids := range byChannel {
		if err := s.index.Delete(ctx, channel, ids...); err != nil {
			return 0, fmt.Errorf("delete %d vectors in %s: %w", len(ids), channel, err)
		}
	}

	purged, err := s.store.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge messages: %w", err)
	}
	if purged > 0 {
		log.Printf("[SWEEPER] purged %d messages older than %s across %d channels",
			purged, cutoff.UTC().Format(time.RFC3339), len(byChannel))
	}
	return purged, nil
}
