package session

import (
	"strings"
	"time"

	"github.com/cwrk-planet/board-service/internal/domain"
)

// state is owned by exactly one session goroutine; nothing here locks.
type state struct {
	id        string
	name      string
	isPrivate bool
	createdBy string
	createdAt time.Time

	participants map[string]domain.Participant
	order        []string // join order of identities
	drawing      map[string]domain.DrawingStatus

	canvas       []domain.Stroke
	messages     []domain.ChatMessage
	messageLimit int
	locked       bool

	now   func() time.Time
	newID func() string
}

func (st *state) upsertParticipant(p domain.Participant) {
	if _, ok := st.participants[p.Identity]; ok {
		st.dropFromOrder(p.Identity)
	}
	st.participants[p.Identity] = p
	st.order = append(st.order, p.Identity)
}

func (st *state) removeParticipant(identity string) bool {
	if _, ok := st.participants[identity]; !ok {
		return false
	}
	delete(st.participants, identity)
	delete(st.drawing, identity)
	st.dropFromOrder(identity)
	return true
}

func (st *state) dropFromOrder(identity string) {
	for i, id := range st.order {
		if id == identity {
			st.order = append(st.order[:i], st.order[i+1:]...)
			return
		}
	}
}

func (st *state) roster() []domain.Participant {
	out := make([]domain.Participant, 0, len(st.order))
	for _, id := range st.order {
		out = append(out, st.participants[id])
	}
	return out
}

func (st *state) addMessage(m domain.ChatMessage) domain.ChatMessage {
	st.messages = append(st.messages, m)
	if over := len(st.messages) - st.messageLimit; over > 0 {
		// keep the tail, drop the oldest
		kept := make([]domain.ChatMessage, st.messageLimit)
		copy(kept, st.messages[over:])
		st.messages = kept
	}
	return m
}

func (st *state) newMessage(kind domain.MessageKind, userID, username, text string) domain.ChatMessage {
	return domain.ChatMessage{
		ID:        st.newID(),
		RoomID:    st.id,
		UserID:    userID,
		Username:  username,
		Text:      text,
		Timestamp: st.now().UnixMilli(),
		Type:      kind,
	}
}

func (st *state) displayName(identity string) string {
	if p, ok := st.participants[identity]; ok && p.DisplayName != "" {
		return p.DisplayName
	}
	return domain.DefaultDisplayName
}

func (st *state) details(includeParticipants bool) domain.RoomDetails {
	d := domain.RoomDetails{
		ID:               st.id,
		Name:             st.name,
		IsPrivate:        st.isPrivate,
		ParticipantCount: len(st.participants),
		CreatedAt:        st.createdAt,
		IsLocked:         st.locked,
	}
	if !includeParticipants {
		return d
	}
	d.Participants = make([]domain.ParticipantView, 0, len(st.order))
	for _, id := range st.order {
		p := st.participants[id]
		v := domain.ParticipantView{
			ID:       p.Identity,
			Username: p.DisplayName,
			IsAdmin:  p.Identity == st.createdBy,
		}
		if ds, ok := st.drawing[id]; ok {
			c := ds.Color
			v.DrawingColor = &c
		}
		d.Participants = append(d.Participants, v)
	}
	return d
}

func (st *state) record() domain.RoomRecord {
	return domain.RoomRecord{
		ID:           st.id,
		Name:         st.name,
		IsPrivate:    st.isPrivate,
		CreatedBy:    st.createdBy,
		CreatedAt:    st.createdAt,
		Locked:       st.locked,
		Messages:     cloneMessages(st.messages),
		CanvasState:  cloneStrokes(st.canvas),
		MessageLimit: st.messageLimit,
	}
}

func cleanName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	return name, name != ""
}

func cloneStrokes(in []domain.Stroke) []domain.Stroke {
	out := make([]domain.Stroke, len(in))
	for i, s := range in {
		out[i] = s.Clone()
	}
	return out
}

func cloneMessages(in []domain.ChatMessage) []domain.ChatMessage {
	out := make([]domain.ChatMessage, len(in))
	copy(out, in)
	return out
}
