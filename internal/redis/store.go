package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cwrk-planet/board-service/internal/domain"
)

type Config struct {
	Addr        string
	Password    string
	DB          int
	KeyPrefix   string
	DialTimeout time.Duration
}

// Store keeps each room as a JSON value under <prefix>room:<id> and indexes
// ids in the sorted set <prefix>rooms scored by createdAt (unix millis).
type Store struct {
	client *redis.Client
	prefix string
}

func Connect(ctx context.Context, cfg Config) (*Store, error) {
	dial := cfg.DialTimeout
	if dial <= 0 {
		dial = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  dial,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, dial)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return newStore(client, cfg.KeyPrefix), nil
}

func newStore(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "board:"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) roomKey(id string) string { return s.prefix + "room:" + id }
func (s *Store) indexKey() string         { return s.prefix + "rooms" }

func (s *Store) UpsertRooms(ctx context.Context, recs []domain.RoomRecord) error {
	if len(recs) == 0 {
		return nil
	}
	pipe := s.client.TxPipeline()
	for _, rec := range recs {
		data, err := encodeRecord(rec)
		if err != nil {
			return fmt.Errorf("encode room %s: %w", rec.ID, err)
		}
		pipe.Set(ctx, s.roomKey(rec.ID), data, 0)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: score(rec.CreatedAt), Member: rec.ID})
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) LoadRooms(ctx context.Context) ([]domain.RoomRecord, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []domain.RoomRecord{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.roomKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]domain.RoomRecord, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// индекс пережил значение; при следующем cleanup уйдёт
			continue
		}
		rec, err := decodeRecord([]byte(raw))
		switch {
		case err == nil:
		case rec.ID != "":
			slog.Warn("room restored partially", "room", rec.ID, "err", err)
		default:
			slog.Warn("skip undecodable room", "room", ids[i], "err", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) DeleteRoomsOlderThan(ctx context.Context, cutoff time.Time, keep []string) (int64, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatFloat(score(cutoff), 'f', -1, 64),
	}).Result()
	if err != nil {
		return 0, err
	}
	victims := expired(ids, keep)
	if len(victims) == 0 {
		return 0, nil
	}

	keys := make([]string, len(victims))
	members := make([]any, len(victims))
	for i, id := range victims {
		keys[i] = s.roomKey(id)
		members[i] = id
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keys...)
	removed := pipe.ZRem(ctx, s.indexKey(), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return removed.Val(), nil
}

func (s *Store) DeleteRoom(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.roomKey(id))
	pipe.ZRem(ctx, s.indexKey(), id)
	_, err := pipe.Exec(ctx)
	return err
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func expired(ids, keep []string) []string {
	if len(keep) == 0 {
		return ids
	}
	skip := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		skip[id] = struct{}{}
	}
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := skip[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

type roomValue struct {
	domain.RoomRecord
	Messages    json.RawMessage `json:"messages"`
	CanvasState json.RawMessage `json:"canvasState"`
}

func encodeRecord(rec domain.RoomRecord) ([]byte, error) {
	if rec.Messages == nil {
		rec.Messages = []domain.ChatMessage{}
	}
	if rec.CanvasState == nil {
		rec.CanvasState = []domain.Stroke{}
	}
	return json.Marshal(rec)
}

// decodeRecord прогоняет холст через NormalizeCanvas, как и postgres.
// Битые messages или canvasState становятся пустыми: запись возвращается
// вместе с ошибкой. Пустой ID значит, что значение не читается целиком.
func decodeRecord(data []byte) (domain.RoomRecord, error) {
	var v roomValue
	if err := json.Unmarshal(data, &v); err != nil {
		return domain.RoomRecord{}, err
	}
	rec := v.RoomRecord
	var errs []error

	rec.Messages = []domain.ChatMessage{}
	if len(v.Messages) > 0 && string(v.Messages) != "null" {
		if err := json.Unmarshal(v.Messages, &rec.Messages); err != nil {
			rec.Messages = []domain.ChatMessage{}
			errs = append(errs, fmt.Errorf("messages: %w", err))
		}
	}
	for i := range rec.Messages {
		rec.Messages[i].RoomID = rec.ID
		if rec.Messages[i].Type != domain.KindSystem {
			rec.Messages[i].Type = domain.KindUser
		}
	}

	canvas, err := domain.NormalizeCanvas(v.CanvasState)
	if err != nil {
		canvas = []domain.Stroke{}
		errs = append(errs, fmt.Errorf("canvas: %w", err))
	}
	rec.CanvasState = canvas
	return rec, errors.Join(errs...)
}
