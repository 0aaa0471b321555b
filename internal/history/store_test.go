package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/janekbaraniewski/usagewatch/internal/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_RecordAndListSnapshots(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	for i, consumed := range []float64{100, 150, 200} {
		store.now = func() time.Time { return base.Add(time.Duration(i) * time.Hour) }
		if err := store.RecordSnapshot(ctx, consumed); err != nil {
			t.Fatalf("RecordSnapshot: %v", err)
		}
	}

	snaps, err := store.Snapshots(ctx)
	if err != nil {
		t.Fatalf("Snapshots: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("got %d snapshots, want 3", len(snaps))
	}
	for i := 1; i < len(snaps); i++ {
		if snaps[i].Timestamp.Before(snaps[i-1].Timestamp) {
			t.Fatal("snapshots not ordered oldest first")
		}
	}
	if snaps[0].Consumed != 100 || snaps[2].Consumed != 200 {
		t.Fatalf("unexpected series: %+v", snaps)
	}
}

func TestStore_PruneDropsExpiredSnapshots(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	store.now = func() time.Time { return base.Add(-core.SnapshotRetention - time.Hour) }
	if err := store.RecordSnapshot(ctx, 50); err != nil {
		t.Fatalf("RecordSnapshot: %v", err)
	}

	// Recording inside the window prunes the expired reading as a side effect.
	store.now = func() time.Time { return base }
	if err := store.RecordSnapshot(ctx, 100); err != nil {
		t.Fatalf("RecordSnapshot: %v", err)
	}

	snaps, err := store.Snapshots(ctx)
	if err != nil {
		t.Fatalf("Snapshots: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("got %d snapshots after prune, want 1", len(snaps))
	}
	if snaps[0].Consumed != 100 {
		t.Fatalf("surviving snapshot = %+v, want the recent one", snaps[0])
	}
}

func TestStore_UsageStateRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Fresh store returns zero state, not an error.
	u, err := store.LoadUsage(ctx)
	if err != nil {
		t.Fatalf("LoadUsage on empty store: %v", err)
	}
	if u.TotalUsage != 0 || len(u.DailyUsage) != 0 {
		t.Fatalf("empty store usage = %+v, want zero values", u)
	}

	want := PersistedUsage{
		TotalUsage:     1234.5,
		DailyUsage:     map[string]float64{"2026-08-19": 40, "2026-08-20": 60},
		LastResetDate:  "2026-08-01",
		LastUpdateDate: "2026-08-20",
	}
	if err := store.SaveUsage(ctx, want); err != nil {
		t.Fatalf("SaveUsage: %v", err)
	}

	got, err := store.LoadUsage(ctx)
	if err != nil {
		t.Fatalf("LoadUsage: %v", err)
	}
	if got.TotalUsage != want.TotalUsage ||
		got.LastResetDate != want.LastResetDate ||
		got.LastUpdateDate != want.LastUpdateDate {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if got.DailyUsage["2026-08-20"] != 60 {
		t.Fatalf("daily usage lost in round trip: %+v", got.DailyUsage)
	}

	// Upsert replaces rather than duplicates.
	want.TotalUsage = 2000
	if err := store.SaveUsage(ctx, want); err != nil {
		t.Fatalf("SaveUsage (update): %v", err)
	}
	got, err = store.LoadUsage(ctx)
	if err != nil {
		t.Fatalf("LoadUsage: %v", err)
	}
	if got.TotalUsage != 2000 {
		t.Fatalf("TotalUsage = %v after update, want 2000", got.TotalUsage)
	}
}

func TestStore_ThresholdState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	v, err := store.LastNotified(ctx)
	if err != nil {
		t.Fatalf("LastNotified on empty store: %v", err)
	}
	if v != 0 {
		t.Fatalf("LastNotified = %d on empty store, want 0", v)
	}

	if err := store.SetLastNotified(ctx, 90); err != nil {
		t.Fatalf("SetLastNotified: %v", err)
	}
	v, err = store.LastNotified(ctx)
	if err != nil {
		t.Fatalf("LastNotified: %v", err)
	}
	if v != 90 {
		t.Fatalf("LastNotified = %d, want 90", v)
	}

	if err := store.SetLastNotified(ctx, 0); err != nil {
		t.Fatalf("SetLastNotified reset: %v", err)
	}
	v, _ = store.LastNotified(ctx)
	if v != 0 {
		t.Fatalf("LastNotified = %d after reset, want 0", v)
	}
}
