package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/google/uuid"

	"github.com/cwrk-planet/board-service/internal/domain"
	"github.com/cwrk-planet/board-service/internal/session"
)

const anonymousCreator = "anonymous"

var (
	nameAdjectives = []string{"Creative", "Brilliant", "Amazing", "Awesome", "Fantastic"}
	nameNouns      = []string{"Whiteboard", "Canvas", "Space", "Room", "Board"}
)

// Forgetter removes a room from durable storage.
type Forgetter interface {
	Forget(ctx context.Context, id string) error
}

type Option func(*RoomService)

// WithForgetter makes DeleteRoom drop the durable record as well.
func WithForgetter(f Forgetter) Option {
	return func(s *RoomService) { s.forgetter = f }
}

// WithCloseNotifier is called with the room id after a successful delete.
func WithCloseNotifier(fn func(roomID string)) Option {
	return func(s *RoomService) { s.onClose = fn }
}

func WithIDGenerator(fn func() string) Option {
	return func(s *RoomService) { s.newID = fn }
}

// RoomService is the request/response surface over the in-memory registry.
type RoomService struct {
	reg       *session.Registry
	forgetter Forgetter
	onClose   func(roomID string)
	newID     func() string
	newName   func() string
}

func NewRoomService(reg *session.Registry, opts ...Option) *RoomService {
	s := &RoomService{
		reg:     reg,
		newID:   generateRoomID,
		newName: generateRoomName,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func generateRoomID() string {
	return uuid.NewString()[:8]
}

func generateRoomName() string {
	return nameAdjectives[rand.Intn(len(nameAdjectives))] + " " + nameNouns[rand.Intn(len(nameNouns))]
}

// CreateRoom создаёт комнату; пустое имя заменяется сгенерированным.
func (s *RoomService) CreateRoom(ctx context.Context, name string, private bool, creator string) (domain.RoomDetails, error) {
	if name == "" {
		name = s.newName()
	}
	if creator == "" {
		creator = anonymousCreator
	}

	var id string
	for attempt := 0; ; attempt++ {
		id = s.newID()
		if _, taken := s.reg.Get(id); !taken {
			break
		}
		if attempt == 4 {
			return domain.RoomDetails{}, fmt.Errorf("create room: no free id after %d attempts", attempt+1)
		}
	}

	sess := s.reg.Create(id, name, private, creator)
	d, err := sess.Details(false)
	if err != nil {
		return domain.RoomDetails{}, fmt.Errorf("create room %s: %w", id, err)
	}
	slog.InfoContext(ctx, "room created", "room", id, "creator", creator, "private", private)
	return d, nil
}

// ListPublic возвращает публичные комнаты (без участников).
func (s *RoomService) ListPublic(_ context.Context) []domain.RoomDetails {
	return s.reg.ListPublic()
}

// GetRoom возвращает комнату вместе со списком участников.
func (s *RoomService) GetRoom(_ context.Context, id string) (domain.RoomDetails, error) {
	sess, err := s.get(id)
	if err != nil {
		return domain.RoomDetails{}, err
	}
	d, err := sess.Details(true)
	return d, notFoundIfClosed(err)
}

func (s *RoomService) RenameRoom(_ context.Context, id, name string) (domain.RoomDetails, error) {
	sess, err := s.get(id)
	if err != nil {
		return domain.RoomDetails{}, err
	}
	d, err := sess.UpdateName(name)
	return d, notFoundIfClosed(err)
}

func (s *RoomService) ToggleVisibility(_ context.Context, id string) (domain.RoomDetails, error) {
	sess, err := s.get(id)
	if err != nil {
		return domain.RoomDetails{}, err
	}
	d, err := sess.ToggleVisibility()
	return d, notFoundIfClosed(err)
}

// DeleteRoom убирает комнату из памяти, оповещает участников и удаляет запись
// из хранилища. Ошибка хранилища только логируется.
func (s *RoomService) DeleteRoom(ctx context.Context, id string) error {
	if !s.reg.Delete(id) {
		return domain.ErrRoomNotFound
	}
	if s.onClose != nil {
		s.onClose(id)
	}
	if s.forgetter != nil {
		if err := s.forgetter.Forget(ctx, id); err != nil {
			slog.WarnContext(ctx, "room deleted from memory only", "room", id, "err", err)
		}
	}
	slog.InfoContext(ctx, "room deleted", "room", id)
	return nil
}

// CheckAccess reports whether the room exists and what a joiner needs to know.
func (s *RoomService) CheckAccess(_ context.Context, id string) (session.Info, error) {
	sess, err := s.get(id)
	if err != nil {
		return session.Info{}, err
	}
	info, err := sess.Info()
	return info, notFoundIfClosed(err)
}

func (s *RoomService) get(id string) (*session.Session, error) {
	sess, ok := s.reg.Get(id)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return sess, nil
}

// сессия могла быть остановлена между Get и вызовом
func notFoundIfClosed(err error) error {
	if errors.Is(err, domain.ErrRoomClosed) {
		return domain.ErrRoomNotFound
	}
	return err
}
