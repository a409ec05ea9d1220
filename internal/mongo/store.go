package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cwrk-planet/board-service/internal/domain"
)

type Config struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
}

// Store keeps one document per room, keyed by roomId.
type Store struct {
	client *mongo.Client
	rooms  *mongo.Collection
}

func Connect(ctx context.Context, cfg Config) (*Store, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	s := &Store{
		client: client,
		rooms:  client.Database(cfg.Database).Collection(cfg.Collection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.rooms.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "roomId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "createdAt", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("mongo indexes: %w", err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) UpsertRooms(ctx context.Context, recs []domain.RoomRecord) error {
	if len(recs) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(recs))
	for _, rec := range recs {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"roomId": rec.ID}).
			SetReplacement(toDoc(rec)).
			SetUpsert(true))
	}
	_, err := s.rooms.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	return err
}

func (s *Store) LoadRooms(ctx context.Context) ([]domain.RoomRecord, error) {
	cur, err := s.rooms.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]domain.RoomRecord, 0)
	for cur.Next(ctx) {
		var d roomDoc
		if err := cur.Decode(&d); err != nil {
			id, _ := cur.Current.Lookup("roomId").StringValueOK()
			slog.Warn("skip undecodable room", "room", id, "err", err)
			continue
		}
		out = append(out, d.record())
	}
	return out, cur.Err()
}

func (s *Store) DeleteRoomsOlderThan(ctx context.Context, cutoff time.Time, keep []string) (int64, error) {
	filter := bson.M{"createdAt": bson.M{"$lt": cutoff}}
	if len(keep) > 0 {
		filter["roomId"] = bson.M{"$nin": keep}
	}
	res, err := s.rooms.DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (s *Store) DeleteRoom(ctx context.Context, id string) error {
	_, err := s.rooms.DeleteOne(ctx, bson.M{"roomId": id})
	return err
}

type roomDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	RoomID       string             `bson:"roomId"`
	Name         string             `bson:"name"`
	IsPrivate    bool               `bson:"isPrivate"`
	CreatedBy    string             `bson:"createdBy"`
	CreatedAt    time.Time          `bson:"createdAt"`
	IsLocked     bool               `bson:"isLocked"`
	MessageLimit int                `bson:"messageLimit"`
	Messages     []messageDoc       `bson:"messages"`
	CanvasState  []strokeDoc        `bson:"canvasState"`
	LastSyncedAt time.Time          `bson:"lastSyncedAt"`
}

type messageDoc struct {
	ID        string `bson:"id"`
	UserID    string `bson:"userId"`
	Username  string `bson:"username"`
	Text      string `bson:"text"`
	Timestamp int64  `bson:"timestamp"`
	Type      string `bson:"type"`
	Color     string `bson:"color,omitempty"`
}

type strokeDoc struct {
	Points []pointDoc `bson:"points"`
	Color  string     `bson:"color"`
	Width  float64    `bson:"width"`
}

type pointDoc struct {
	X float64 `bson:"x"`
	Y float64 `bson:"y"`
}

func toDoc(rec domain.RoomRecord) roomDoc {
	d := roomDoc{
		RoomID:       rec.ID,
		Name:         rec.Name,
		IsPrivate:    rec.IsPrivate,
		CreatedBy:    rec.CreatedBy,
		CreatedAt:    rec.CreatedAt,
		IsLocked:     rec.Locked,
		MessageLimit: rec.MessageLimit,
		Messages:     make([]messageDoc, 0, len(rec.Messages)),
		CanvasState:  make([]strokeDoc, 0, len(rec.CanvasState)),
		LastSyncedAt: rec.LastSyncedAt,
	}
	for _, m := range rec.Messages {
		d.Messages = append(d.Messages, messageDoc{
			ID:        m.ID,
			UserID:    m.UserID,
			Username:  m.Username,
			Text:      m.Text,
			Timestamp: m.Timestamp,
			Type:      string(m.Type),
			Color:     m.Color,
		})
	}
	for _, s := range rec.CanvasState {
		sd := strokeDoc{Color: s.Color, Width: s.Width, Points: make([]pointDoc, len(s.Points))}
		for i, p := range s.Points {
			sd.Points[i] = pointDoc{X: p.X, Y: p.Y}
		}
		d.CanvasState = append(d.CanvasState, sd)
	}
	return d
}

func (d roomDoc) record() domain.RoomRecord {
	rec := domain.RoomRecord{
		ID:           d.RoomID,
		Name:         d.Name,
		IsPrivate:    d.IsPrivate,
		CreatedBy:    d.CreatedBy,
		CreatedAt:    d.CreatedAt,
		Locked:       d.IsLocked,
		MessageLimit: d.MessageLimit,
		Messages:     make([]domain.ChatMessage, 0, len(d.Messages)),
		CanvasState:  make([]domain.Stroke, 0, len(d.CanvasState)),
		LastSyncedAt: d.LastSyncedAt,
	}
	for _, m := range d.Messages {
		kind := domain.MessageKind(m.Type)
		if kind != domain.KindSystem {
			kind = domain.KindUser
		}
		rec.Messages = append(rec.Messages, domain.ChatMessage{
			ID:        m.ID,
			RoomID:    d.RoomID,
			UserID:    m.UserID,
			Username:  m.Username,
			Text:      m.Text,
			Timestamp: m.Timestamp,
			Type:      kind,
			Color:     m.Color,
		})
	}
	for _, s := range d.CanvasState {
		st := domain.Stroke{Color: s.Color, Width: s.Width, Points: make([]domain.Point, len(s.Points))}
		for i, p := range s.Points {
			st.Points[i] = domain.Point{X: p.X, Y: p.Y}
		}
		if st.Color == "" {
			st.Color = domain.DefaultStrokeColor
		}
		if st.Width <= 0 {
			st.Width = domain.DefaultStrokeWidth
		}
		rec.CanvasState = append(rec.CanvasState, st)
	}
	return rec
}
