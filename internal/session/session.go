package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cwrk-planet/board-service/internal/domain"
)

// Session is the authoritative state of one room. All reads and writes run
// inside a single goroutine; callers reach it through the inbox only.
type Session struct {
	id        string
	createdBy string
	createdAt time.Time

	inbox   chan func(*state)
	quit    chan struct{}
	stopped chan struct{}
	once    sync.Once

	st state
}

type JoinResult struct {
	Participant  domain.Participant
	Participants []domain.Participant
	Canvas       []domain.Stroke
	Messages     []domain.ChatMessage
	Locked       bool
}

type LeaveResult struct {
	Removed      bool
	Participant  domain.Participant
	Participants []domain.Participant
}

type Info struct {
	ID               string
	Name             string
	IsPrivate        bool
	CreatedBy        string
	CreatedAt        time.Time
	Locked           bool
	ParticipantCount int
}

func newSession(st state) *Session {
	if st.participants == nil {
		st.participants = make(map[string]domain.Participant)
	}
	if st.drawing == nil {
		st.drawing = make(map[string]domain.DrawingStatus)
	}
	s := &Session{
		id:        st.id,
		createdBy: st.createdBy,
		createdAt: st.createdAt,
		inbox:     make(chan func(*state)),
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
		st:        st,
	}
	go s.run()
	return s
}

func (s *Session) run() {
	defer close(s.stopped)
	for {
		select {
		case fn := <-s.inbox:
			s.call(fn)
		case <-s.quit:
			return
		}
	}
}

func (s *Session) call(fn func(*state)) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("session panic", "room", s.id, "panic", r)
		}
	}()
	fn(&s.st)
}

// do runs fn inside the session goroutine and waits for it to finish.
func (s *Session) do(fn func(st *state)) error {
	done := make(chan struct{})
	select {
	case s.inbox <- func(st *state) { defer close(done); fn(st) }:
	case <-s.quit:
		return domain.ErrRoomClosed
	}
	<-done
	return nil
}

// Stop terminates the session goroutine. Later calls return ErrRoomClosed.
func (s *Session) Stop() {
	s.once.Do(func() { close(s.quit) })
	<-s.stopped
}

func (s *Session) ID() string           { return s.id }
func (s *Session) CreatedBy() string    { return s.createdBy }
func (s *Session) CreatedAt() time.Time { return s.createdAt }

func (s *Session) IsCreator(identity string) bool {
	return identity != "" && identity == s.createdBy
}

// Join adds or replaces the participant entry for identity and returns
// what a newly joined client needs to render the room.
func (s *Session) Join(identity, displayName, connID string) (res JoinResult, err error) {
	err = s.Update(func(tx *Tx) error {
		res = tx.Join(identity, displayName, connID)
		return nil
	})
	return res, err
}

// LeaveConnection removes identity only while connID is still its current
// connection, so a stale socket cannot evict a reconnected participant.
func (s *Session) LeaveConnection(identity, connID string) (res LeaveResult, err error) {
	err = s.Update(func(tx *Tx) error {
		res = tx.LeaveConnection(identity, connID)
		return nil
	})
	return res, err
}

func (s *Session) Rename(identity, displayName string) (roster []domain.Participant, err error) {
	if _, ok := cleanName(displayName); !ok {
		return nil, domain.ErrInvalidName
	}
	err = s.Update(func(tx *Tx) (opErr error) {
		roster, opErr = tx.Rename(identity, displayName)
		return opErr
	})
	return roster, err
}

// SetDrawingStatus records or clears the drawing color of a participant.
func (s *Session) SetDrawingStatus(identity string, isDrawing bool, color string) error {
	return s.Update(func(tx *Tx) error {
		_, err := tx.SetDrawingStatus(identity, isDrawing, color)
		return err
	})
}

func (s *Session) AppendStroke(stroke domain.Stroke) error {
	return s.Update(func(tx *Tx) error { return tx.AppendStroke(stroke) })
}

func (s *Session) ReplaceCanvas(strokes []domain.Stroke) error {
	return s.Update(func(tx *Tx) error { return tx.ReplaceCanvas(strokes) })
}

func (s *Session) ClearCanvas() error {
	return s.Update(func(tx *Tx) error { return tx.ClearCanvas() })
}

func (s *Session) Canvas() (out []domain.Stroke, err error) {
	err = s.Update(func(tx *Tx) error {
		out = tx.Canvas()
		return nil
	})
	return out, err
}

// ToggleLock flips the lock and returns the new value. Creator checks are
// the caller's job.
func (s *Session) ToggleLock() (locked bool, err error) {
	err = s.Update(func(tx *Tx) error {
		locked = tx.ToggleLock()
		return nil
	})
	return locked, err
}

// AddChatMessage appends a user message authored by identity. The author
// name and color come from the roster and drawing status.
func (s *Session) AddChatMessage(identity, text string) (msg domain.ChatMessage, err error) {
	if text == "" {
		return domain.ChatMessage{}, domain.ErrEmptyMessage
	}
	err = s.Update(func(tx *Tx) (opErr error) {
		msg, opErr = tx.AddChatMessage(identity, text)
		return opErr
	})
	return msg, err
}

func (s *Session) AddSystemMessage(text string) (msg domain.ChatMessage, err error) {
	if text == "" {
		return domain.ChatMessage{}, domain.ErrEmptyMessage
	}
	err = s.Update(func(tx *Tx) (opErr error) {
		msg, opErr = tx.AddSystemMessage(text)
		return opErr
	})
	return msg, err
}

func (s *Session) RecentMessages() ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	err := s.do(func(st *state) { out = cloneMessages(st.messages) })
	return out, err
}

func (s *Session) Details(includeParticipants bool) (domain.RoomDetails, error) {
	var d domain.RoomDetails
	err := s.do(func(st *state) { d = st.details(includeParticipants) })
	return d, err
}

func (s *Session) Info() (Info, error) {
	var info Info
	err := s.do(func(st *state) {
		info = Info{
			ID:               st.id,
			Name:             st.name,
			IsPrivate:        st.isPrivate,
			CreatedBy:        st.createdBy,
			CreatedAt:        st.createdAt,
			Locked:           st.locked,
			ParticipantCount: len(st.participants),
		}
	})
	return info, err
}

func (s *Session) Participant(identity string) (domain.Participant, bool, error) {
	var (
		p  domain.Participant
		ok bool
	)
	err := s.do(func(st *state) { p, ok = st.participants[identity] })
	return p, ok, err
}

// IdentityOf returns the identity bound to connID in this room.
func (s *Session) IdentityOf(connID string) (string, bool, error) {
	var (
		identity string
		ok       bool
	)
	err := s.do(func(st *state) {
		for _, id := range st.order {
			if st.participants[id].ConnectionID == connID {
				identity, ok = id, true
				return
			}
		}
	})
	return identity, ok, err
}

func (s *Session) UpdateName(name string) (d domain.RoomDetails, err error) {
	if _, ok := cleanName(name); !ok {
		return domain.RoomDetails{}, domain.ErrInvalidName
	}
	err = s.Update(func(tx *Tx) (opErr error) {
		d, opErr = tx.UpdateName(name)
		return opErr
	})
	return d, err
}

func (s *Session) ToggleVisibility() (d domain.RoomDetails, err error) {
	err = s.Update(func(tx *Tx) error {
		d = tx.ToggleVisibility()
		return nil
	})
	return d, err
}

// Snapshot returns the durable projection of the session.
func (s *Session) Snapshot() (domain.RoomRecord, error) {
	var rec domain.RoomRecord
	err := s.do(func(st *state) { rec = st.record() })
	return rec, err
}
