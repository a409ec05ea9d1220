package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwrk-planet/board-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RoomRepository хранит снапшоты комнат; сообщения и холст лежат в jsonb.
type RoomRepository struct {
	db *pgxpool.Pool
}

func NewRoomRepository(db *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{db: db}
}

// UpsertRooms — пишет все снапшоты одним batch'ем, ключ — id комнаты.
func (r *RoomRepository) UpsertRooms(ctx context.Context, recs []domain.RoomRecord) error {
	if len(recs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range recs {
		messages, canvas, err := encodeRecord(rec)
		if err != nil {
			return fmt.Errorf("room %s: %w", rec.ID, err)
		}
		batch.Queue(queryUpsertRoom,
			rec.ID,
			rec.Name,
			rec.IsPrivate,
			rec.CreatedBy,
			rec.CreatedAt,
			rec.Locked,
			rec.MessageLimit,
			messages,
			canvas,
			nullTime(rec.LastSyncedAt),
		)
	}

	return r.db.SendBatch(ctx, batch).Close()
}

func (r *RoomRepository) LoadRooms(ctx context.Context) ([]domain.RoomRecord, error) {
	rows, err := r.db.Query(ctx, queryLoadRooms)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RoomRecord
	for rows.Next() {
		var (
			rec      domain.RoomRecord
			messages []byte
			canvas   []byte
			synced   *time.Time
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.Name,
			&rec.IsPrivate,
			&rec.CreatedBy,
			&rec.CreatedAt,
			&rec.Locked,
			&rec.MessageLimit,
			&messages,
			&canvas,
			&synced,
		); err != nil {
			return nil, err
		}
		if err := decodeRow(&rec, messages, canvas); err != nil {
			slog.Warn("room restored partially", "room", rec.ID, "err", err)
		}
		if synced != nil {
			rec.LastSyncedAt = *synced
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// decodeRow разбирает jsonb-поля. Битое поле заменяется пустым списком,
// остальная комната восстанавливается.
func decodeRow(rec *domain.RoomRecord, messages, canvas []byte) error {
	var errs []error
	if err := json.Unmarshal(messages, &rec.Messages); err != nil {
		rec.Messages = nil
		errs = append(errs, fmt.Errorf("messages: %w", err))
	}
	if rec.Messages == nil {
		rec.Messages = []domain.ChatMessage{}
	}
	// старые записи могли хранить холст в произвольном виде
	strokes, err := domain.NormalizeCanvas(canvas)
	if err != nil {
		strokes = []domain.Stroke{}
		errs = append(errs, fmt.Errorf("canvas: %w", err))
	}
	rec.CanvasState = strokes
	return errors.Join(errs...)
}

func (r *RoomRepository) DeleteRoomsOlderThan(ctx context.Context, cutoff time.Time, keep []string) (int64, error) {
	if keep == nil {
		// NULL в ANY() дал бы NULL и ни одной удалённой строки
		keep = []string{}
	}
	tag, err := r.db.Exec(ctx, queryDeleteRoomsOlderThan, cutoff, keep)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *RoomRepository) DeleteRoom(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, queryDeleteRoom, id)
	return err
}

func encodeRecord(rec domain.RoomRecord) (messages, canvas []byte, err error) {
	msgs := rec.Messages
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	strokes := rec.CanvasState
	if strokes == nil {
		strokes = []domain.Stroke{}
	}
	if messages, err = json.Marshal(msgs); err != nil {
		return nil, nil, err
	}
	if canvas, err = json.Marshal(strokes); err != nil {
		return nil, nil, err
	}
	return messages, canvas, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
