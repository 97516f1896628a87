package memory_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/chanmem/chanmem/memory"
	"github.com/chanmem/chanmem/memory/embedder/mock"
	"github.com/chanmem/chanmem/memory/index/chromem"
	"github.com/chanmem/chanmem/memory/store/sqlite"
)

func newSweeperFixture(t *testing.T) (*sqlite.Store, *chromem.Index, *memory.Manager) {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.New(ctx, filepath.Join(t.TempDir(), "messages.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	index := chromem.New(8)

	manager, err := memory.NewManager(store, index, mock.New(8),
		&memory.Config{Enabled: true, RecentK: 2, SimilarK: 4})
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	t.Cleanup(func() { manager.Close() })
	return store, index, manager
}

func TestSweeper_PurgeCascade(t *testing.T) {
	ctx := context.Background()
	store, index, manager := newSweeperFixture(t)

	for _, channel := range []string{"#a", "#b"} {
		mustStore(t, manager, channel, "old news", memory.RoleUser)
		mustStore(t, manager, channel, "older news", memory.RoleAssistant)
	}
	manager.Flush() // embeddings are in the index now

	sweeper := memory.NewSweeper(store, index, time.Hour, time.Minute)
	purged, err := sweeper.PurgeBefore(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("PurgeBefore failed: %v", err)
	}
	if purged != 4 {
		t.Errorf("purged = %d, want 4", purged)
	}

	queryVec, _ := mock.New(8).Embed(ctx, "old news")
	for _, channel := range []string{"#a", "#b"} {
		recent, err := store.Recent(ctx, channel, 10)
		if err != nil {
			t.Fatalf("Recent failed: %v", err)
		}
		if len(recent) != 0 {
			t.Errorf("channel %s still has %d messages after purge", channel, len(recent))
		}

		hits, err := index.Search(ctx, channel, queryVec, 10)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(hits) != 0 {
			t.Errorf("channel %s still has %d embeddings after purge", channel, len(hits))
		}
	}
}

func TestSweeper_PurgeIdempotent(t *testing.T) {
	ctx := context.Background()
	store, index, manager := newSweeperFixture(t)

	mustStore(t, manager, "#a", "something", memory.RoleUser)
	manager.Flush()

	sweeper := memory.NewSweeper(store, index, time.Hour, time.Minute)
	cutoff := time.Now().Add(time.Hour)

	if purged, err := sweeper.PurgeBefore(ctx, cutoff); err != nil || purged != 1 {
		t.Fatalf("first purge = (%d, %v), want (1, nil)", purged, err)
	}
	if purged, err := sweeper.PurgeBefore(ctx, cutoff); err != nil || purged != 0 {
		t.Errorf("second purge = (%d, %v), want (0, nil)", purged, err)
	}
}

func TestSweeper_UnboundedRetentionIsNoop(t *testing.T) {
	ctx := context.Background()
	store, index, manager := newSweeperFixture(t)

	mustStore(t, manager, "#a", "keep me", memory.RoleUser)
	manager.Flush()

	sweeper := memory.NewSweeper(store, index, 0, time.Minute)
	if purged, err := sweeper.SweepNow(ctx); err != nil || purged != 0 {
		t.Fatalf("SweepNow = (%d, %v), want (0, nil)", purged, err)
	}

	recent, err := store.Recent(ctx, "#a", 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 1 {
		t.Errorf("expected message to survive unbounded retention, got %d", len(recent))
	}
}

func TestSweeper_StopWithoutStart(t *testing.T) {
	store, index, _ := newSweeperFixture(t)
	sweeper := memory.NewSweeper(store, index, time.Hour, time.Minute)
	sweeper.Stop()
	sweeper.Stop() // must be safe to call repeatedly
}
