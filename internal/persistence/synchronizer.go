package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwrk-planet/board-service/internal/domain"
	"github.com/cwrk-planet/board-service/internal/session"
)

type Config struct {
	Interval        time.Duration
	CleanupInterval time.Duration
	Lifetime        time.Duration
	// SkipOccupied keeps expired rooms that still have participants.
	SkipOccupied bool
}

type Option func(*Synchronizer)

// WithEvictHook registers fn to run for every room removed by cleanup.
func WithEvictHook(fn func(roomID string)) Option {
	return func(s *Synchronizer) { s.onEvict = fn }
}

// WithHealthReporter registers fn to receive the outcome of each sync.
func WithHealthReporter(fn func(healthy bool)) Option {
	return func(s *Synchronizer) { s.onHealth = fn }
}

func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

// Synchronizer mirrors live sessions into a Store and evicts expired rooms.
type Synchronizer struct {
	store Store
	reg   *session.Registry
	cfg   Config

	now      func() time.Time
	onEvict  func(string)
	onHealth func(bool)

	syncing  atomic.Bool
	inflight sync.WaitGroup

	// rooms forgotten while a sync was running; that sync deletes them
	// again after its upsert
	mu         sync.Mutex
	tombstones map[string]struct{}
}

func NewSynchronizer(store Store, reg *session.Registry, cfg Config, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		store: store,
		reg:   reg,
		cfg:   cfg,
		now:   time.Now,

		tombstones: make(map[string]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type CleanupResult struct {
	StoreDeleted int64
	Evicted      []string
}

// SyncOnce writes a snapshot of every live session. It returns false without
// touching the store when another sync is still running.
func (s *Synchronizer) SyncOnce(ctx context.Context) (bool, error) {
	if !s.syncing.CompareAndSwap(false, true) {
		slog.Debug("sync skipped, previous still running")
		return false, nil
	}
	synced := make(map[string]struct{})
	defer s.finishSync(ctx, synced)

	start := s.now()
	sessions := s.reg.All()
	recs := make([]domain.RoomRecord, 0, len(sessions))
	for _, sess := range sessions {
		rec, err := sess.Snapshot()
		if err != nil {
			// deleted between All and Snapshot
			continue
		}
		rec.LastSyncedAt = start
		recs = append(recs, rec)
		synced[rec.ID] = struct{}{}
	}

	if len(recs) > 0 {
		if err := s.store.UpsertRooms(ctx, recs); err != nil {
			s.report(false)
			return true, fmt.Errorf("upsert rooms: %w", err)
		}
	}
	s.report(true)
	slog.Debug("sync done", "rooms", len(recs), "took", s.now().Sub(start))
	return true, nil
}

// finishSync removes rooms that were forgotten while this sync held an old
// snapshot of them, then releases the single-flight flag.
func (s *Synchronizer) finishSync(ctx context.Context, synced map[string]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.tombstones {
		if _, ok := synced[id]; !ok {
			continue
		}
		if err := s.store.DeleteRoom(ctx, id); err != nil {
			slog.Error("re-delete forgotten room", "room", id, "err", err)
		}
	}
	clear(s.tombstones)
	s.syncing.Store(false)
}

// Hydrate restores stored rooms that are not already live.
func (s *Synchronizer) Hydrate(ctx context.Context) (int, error) {
	recs, err := s.store.LoadRooms(ctx)
	if err != nil {
		s.report(false)
		return 0, fmt.Errorf("load rooms: %w", err)
	}
	s.report(true)

	restored := 0
	for _, rec := range recs {
		if s.reg.Restore(rec) {
			restored++
		}
	}
	slog.Info("rooms hydrated", "stored", len(recs), "restored", restored)
	return restored, nil
}

// Cleanup deletes rooms older than the configured lifetime from the store and
// from the registry. Memory is cleaned even when the store call fails.
func (s *Synchronizer) Cleanup(ctx context.Context) (CleanupResult, error) {
	var res CleanupResult
	if s.cfg.Lifetime <= 0 {
		return res, nil
	}
	cutoff := s.now().Add(-s.cfg.Lifetime)

	var expired, keep []string
	for _, sess := range s.reg.All() {
		if !sess.CreatedAt().Before(cutoff) {
			continue
		}
		if s.cfg.SkipOccupied {
			info, err := sess.Info()
			if err == nil && info.ParticipantCount > 0 {
				keep = append(keep, sess.ID())
				continue
			}
		}
		expired = append(expired, sess.ID())
	}

	n, storeErr := s.store.DeleteRoomsOlderThan(ctx, cutoff, keep)
	if storeErr != nil {
		storeErr = fmt.Errorf("delete expired rooms: %w", storeErr)
	}
	res.StoreDeleted = n

	for _, id := range expired {
		if !s.reg.Delete(id) {
			continue
		}
		res.Evicted = append(res.Evicted, id)
		if s.onEvict != nil {
			s.onEvict(id)
		}
	}

	slog.Info("room cleanup", "stored_deleted", n, "evicted", len(res.Evicted), "kept", len(keep))
	return res, storeErr
}

// Forget removes a room from the store, used after an explicit delete. The
// room must already be gone from the registry.
func (s *Synchronizer) Forget(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.syncing.Load() {
		s.tombstones[id] = struct{}{}
	}
	s.mu.Unlock()

	if err := s.store.DeleteRoom(ctx, id); err != nil {
		return fmt.Errorf("delete room %s: %w", id, err)
	}
	return nil
}

// Run drives periodic sync and cleanup until ctx is done, then waits for a
// running sync and flushes once more.
func (s *Synchronizer) Run(ctx context.Context) {
	syncEvery := s.cfg.Interval
	if syncEvery <= 0 {
		syncEvery = 3 * time.Second
	}
	cleanupEvery := s.cfg.CleanupInterval
	if cleanupEvery <= 0 {
		cleanupEvery = time.Hour
	}

	syncT := time.NewTicker(syncEvery)
	defer syncT.Stop()
	cleanupT := time.NewTicker(cleanupEvery)
	defer cleanupT.Stop()

	// storage calls are never cut short by shutdown
	bg := context.WithoutCancel(ctx)

	slog.Info("synchronizer started", "interval", syncEvery, "cleanup_interval", cleanupEvery, "lifetime", s.cfg.Lifetime)
	for {
		select {
		case <-ctx.Done():
			if err := s.Flush(bg); err != nil {
				slog.Error("final flush failed", "err", err)
			}
			slog.Info("synchronizer stopped")
			return
		case <-syncT.C:
			s.inflight.Add(1)
			go func() {
				defer s.inflight.Done()
				if _, err := s.SyncOnce(bg); err != nil {
					slog.Error("sync failed", "err", err)
				}
			}()
		case <-cleanupT.C:
			if _, err := s.Cleanup(bg); err != nil {
				slog.Error("cleanup failed", "err", err)
			}
		}
	}
}

// Flush waits for any running sync and then writes one more snapshot.
func (s *Synchronizer) Flush(ctx context.Context) error {
	s.inflight.Wait()
	for {
		ran, err := s.SyncOnce(ctx)
		if ran || err != nil {
			return err
		}
		// a direct SyncOnce caller holds the flag
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (s *Synchronizer) report(ok bool) {
	if s.onHealth != nil {
		s.onHealth(ok)
	}
}

