package persistence

import (
	"context"
	"time"

	"github.com/cwrk-planet/board-service/internal/domain"
)

// Store is the durable side of the room registry. Records are keyed by room
// id; participants and drawing status are never stored.
type Store interface {
	UpsertRooms(ctx context.Context, recs []domain.RoomRecord) error
	LoadRooms(ctx context.Context) ([]domain.RoomRecord, error)
	// DeleteRoomsOlderThan removes rooms created before cutoff, except the
	// ids listed in keep, and returns how many were removed.
	DeleteRoomsOlderThan(ctx context.Context, cutoff time.Time, keep []string) (int64, error)
	DeleteRoom(ctx context.Context, id string) error
}
