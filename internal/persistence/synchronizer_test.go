package persistence

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cwrk-planet/board-service/internal/domain"
	"github.com/cwrk-planet/board-service/internal/session"
)

// blockingStore parks UpsertRooms until release is closed.
type blockingStore struct {
	*MemoryStore
	entered chan struct{}
	release chan struct{}
	upserts atomic.Int32
}

func (b *blockingStore) UpsertRooms(ctx context.Context, recs []domain.RoomRecord) error {
	b.upserts.Add(1)
	b.entered <- struct{}{}
	<-b.release
	return b.MemoryStore.UpsertRooms(ctx, recs)
}

type failingStore struct {
	*MemoryStore
}

func (failingStore) UpsertRooms(context.Context, []domain.RoomRecord) error {
	return errors.New("connection refused")
}

func (failingStore) DeleteRoomsOlderThan(context.Context, time.Time, []string) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestSyncOnceSkipsWhileRunning(t *testing.T) {
	reg := session.NewRegistry(session.Options{})
	defer reg.Close()
	reg.Create("room1", "", false, "alice")

	store := &blockingStore{
		MemoryStore: NewMemoryStore(),
		entered:     make(chan struct{}, 1),
		release:     make(chan struct{}),
	}
	s := NewSynchronizer(store, reg, Config{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if ran, err := s.SyncOnce(context.Background()); !ran || err != nil {
			t.Errorf("first sync: ran=%v err=%v", ran, err)
		}
	}()
	<-store.entered

	ran, err := s.SyncOnce(context.Background())
	if ran || err != nil {
		t.Fatalf("overlapping sync should be skipped, ran=%v err=%v", ran, err)
	}

	close(store.release)
	wg.Wait()

	if got := store.upserts.Load(); got != 1 {
		t.Fatalf("expected exactly one write, got %d", got)
	}
	if store.Len() != 1 {
		t.Fatalf("expected one stored room, got %d", store.Len())
	}
}

func TestSyncOnceStoresDurableFields(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reg := session.NewRegistry(session.Options{Now: func() time.Time { return now }})
	defer reg.Close()
	sess := reg.Create("room1", "Board", true, "alice")
	_, _ = sess.Join("alice", "Alice", "c1")
	_ = sess.AppendStroke(domain.Stroke{Points: []domain.Point{{X: 1, Y: 2}}, Color: "#111111", Width: 4})
	_, _ = sess.ToggleLock()

	store := NewMemoryStore()
	s := NewSynchronizer(store, reg, Config{}, WithClock(func() time.Time { return now }))
	if _, err := s.SyncOnce(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	recs, _ := store.LoadRooms(context.Background())
	if len(recs) != 1 {
		t.Fatalf("expected one record, got %d", len(recs))
	}
	rec := recs[0]
	if rec.Name != "Board" || !rec.IsPrivate || !rec.Locked || rec.CreatedBy != "alice" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if len(rec.CanvasState) != 1 || !rec.LastSyncedAt.Equal(now) {
		t.Fatalf("unexpected record content: %+v", rec)
	}
}

func TestSyncReportsHealth(t *testing.T) {
	reg := session.NewRegistry(session.Options{})
	defer reg.Close()
	reg.Create("room1", "", false, "alice")

	var healthy []bool
	s := NewSynchronizer(failingStore{NewMemoryStore()}, reg, Config{},
		WithHealthReporter(func(ok bool) { healthy = append(healthy, ok) }))

	if _, err := s.SyncOnce(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(healthy) != 1 || healthy[0] {
		t.Fatalf("expected unhealthy report, got %v", healthy)
	}
	if reg.Len() != 1 {
		t.Fatal("registry must stay authoritative on storage failure")
	}
}

func TestHydrateFirstWriterWins(t *testing.T) {
	reg := session.NewRegistry(session.Options{})
	defer reg.Close()
	reg.Create("live", "Live name", false, "alice")

	store := NewMemoryStore()
	_ = store.UpsertRooms(context.Background(), []domain.RoomRecord{
		{ID: "live", Name: "Stored name", CreatedAt: time.Now()},
		{ID: "cold", Name: "Cold", CreatedAt: time.Now(), Messages: []domain.ChatMessage{{ID: "1", Text: "hi"}}},
	})

	s := NewSynchronizer(store, reg, Config{})
	n, err := s.Hydrate(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("hydrate: n=%d err=%v", n, err)
	}

	live, _ := reg.Get("live")
	if d, _ := live.Details(false); d.Name != "Live name" {
		t.Fatalf("live session overwritten: %q", d.Name)
	}
	cold, ok := reg.Get("cold")
	if !ok {
		t.Fatal("stored room not restored")
	}
	if msgs, _ := cold.RecentMessages(); len(msgs) != 1 {
		t.Fatalf("messages not restored: %+v", msgs)
	}
}

func TestCleanupEvictsRegardlessOfOccupancy(t *testing.T) {
	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	clock := now.Add(-48 * time.Hour)
	reg := session.NewRegistry(session.Options{Now: func() time.Time { return clock }})
	defer reg.Close()

	old := reg.Create("old", "", false, "alice")
	_, _ = old.Join("alice", "Alice", "c1")
	clock = now
	reg.Create("fresh", "", false, "bob")

	store := NewMemoryStore()
	_ = store.UpsertRooms(context.Background(), []domain.RoomRecord{
		{ID: "old", CreatedAt: now.Add(-48 * time.Hour)},
		{ID: "gone", CreatedAt: now.Add(-30 * time.Hour)},
		{ID: "fresh", CreatedAt: now},
	})

	var evicted []string
	s := NewSynchronizer(store, reg, Config{Lifetime: 24 * time.Hour},
		WithClock(func() time.Time { return now }),
		WithEvictHook(func(id string) { evicted = append(evicted, id) }))

	res, err := s.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if res.StoreDeleted != 2 || store.Len() != 1 {
		t.Fatalf("unexpected store state: deleted=%d len=%d", res.StoreDeleted, store.Len())
	}
	if _, ok := reg.Get("old"); ok {
		t.Fatal("occupied expired room should be evicted")
	}
	if _, ok := reg.Get("fresh"); !ok {
		t.Fatal("fresh room evicted")
	}
	if len(evicted) != 1 || evicted[0] != "old" {
		t.Fatalf("unexpected evict hook calls: %v", evicted)
	}
}

func TestCleanupSkipOccupied(t *testing.T) {
	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	past := now.Add(-48 * time.Hour)
	reg := session.NewRegistry(session.Options{Now: func() time.Time { return past }})
	defer reg.Close()

	busy := reg.Create("busy", "", false, "alice")
	_, _ = busy.Join("alice", "Alice", "c1")
	reg.Create("empty", "", false, "alice")

	store := NewMemoryStore()
	_ = store.UpsertRooms(context.Background(), []domain.RoomRecord{
		{ID: "busy", CreatedAt: past},
		{ID: "empty", CreatedAt: past},
	})

	s := NewSynchronizer(store, reg, Config{Lifetime: 24 * time.Hour, SkipOccupied: true},
		WithClock(func() time.Time { return now }))
	res, _ := s.Cleanup(context.Background())

	if len(res.Evicted) != 1 || res.Evicted[0] != "empty" {
		t.Fatalf("unexpected eviction: %v", res.Evicted)
	}
	if _, ok := reg.Get("busy"); !ok {
		t.Fatal("occupied room should be kept")
	}
	if store.Len() != 1 {
		t.Fatalf("occupied room should stay stored, len=%d", store.Len())
	}
}

func TestCleanupCleansMemoryWhenStoreFails(t *testing.T) {
	now := time.Now()
	past := now.Add(-48 * time.Hour)
	reg := session.NewRegistry(session.Options{Now: func() time.Time { return past }})
	defer reg.Close()
	reg.Create("old", "", false, "alice")

	s := NewSynchronizer(failingStore{NewMemoryStore()}, reg, Config{Lifetime: time.Hour})
	res, err := s.Cleanup(context.Background())
	if err == nil {
		t.Fatal("expected store error")
	}
	if len(res.Evicted) != 1 || reg.Len() != 0 {
		t.Fatalf("memory should be cleaned: %+v", res)
	}
}

func TestRunFlushesOnShutdown(t *testing.T) {
	reg := session.NewRegistry(session.Options{})
	defer reg.Close()
	reg.Create("room1", "", false, "alice")

	store := NewMemoryStore()
	s := NewSynchronizer(store, reg, Config{Interval: time.Hour, CleanupInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	if store.Len() != 1 {
		t.Fatalf("expected final flush to store the room, len=%d", store.Len())
	}
}

func TestForgetDuringSyncIsNotResurrected(t *testing.T) {
	reg := session.NewRegistry(session.Options{})
	defer reg.Close()
	reg.Create("room1", "", false, "alice")
	reg.Create("room2", "", false, "bob")

	store := &blockingStore{
		MemoryStore: NewMemoryStore(),
		entered:     make(chan struct{}, 1),
		release:     make(chan struct{}),
	}
	s := NewSynchronizer(store, reg, Config{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := s.SyncOnce(context.Background()); err != nil {
			t.Errorf("sync: %v", err)
		}
	}()
	<-store.entered

	// the running sync already holds a snapshot of room1
	reg.Delete("room1")
	if err := s.Forget(context.Background(), "room1"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	close(store.release)
	<-done

	recs, _ := store.LoadRooms(context.Background())
	if len(recs) != 1 || recs[0].ID != "room2" {
		t.Fatalf("deleted room came back: %+v", recs)
	}

	// a room re-created under the same id later is stored normally
	store.entered = make(chan struct{}, 1)
	reg.Create("room1", "", false, "carol")
	if _, err := s.SyncOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if store.Len() != 2 {
		t.Fatalf("re-created room not stored, have %d", store.Len())
	}
}
