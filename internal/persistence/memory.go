package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cwrk-planet/board-service/internal/domain"
)

// MemoryStore keeps records in process. Used for storage.driver=memory and
// in tests.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]domain.RoomRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]domain.RoomRecord)}
}

func (m *MemoryStore) UpsertRooms(_ context.Context, recs []domain.RoomRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range recs {
		m.rooms[rec.ID] = copyRecord(rec)
	}
	return nil
}

func (m *MemoryStore) LoadRooms(_ context.Context) ([]domain.RoomRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.RoomRecord, 0, len(m.rooms))
	for _, rec := range m.rooms {
		out = append(out, copyRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) DeleteRoomsOlderThan(_ context.Context, cutoff time.Time, keep []string) (int64, error) {
	skip := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		skip[id] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, rec := range m.rooms {
		if _, ok := skip[id]; ok {
			continue
		}
		if rec.CreatedAt.Before(cutoff) {
			delete(m.rooms, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) DeleteRoom(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, id)
	return nil
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

func copyRecord(rec domain.RoomRecord) domain.RoomRecord {
	msgs := make([]domain.ChatMessage, len(rec.Messages))
	copy(msgs, rec.Messages)
	rec.Messages = msgs

	canvas := make([]domain.Stroke, len(rec.CanvasState))
	for i, s := range rec.CanvasState {
		canvas[i] = s.Clone()
	}
	rec.CanvasState = canvas
	return rec
}
