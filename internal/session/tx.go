package session

import "github.com/cwrk-planet/board-service/internal/domain"

// Tx is a view of the session state valid only inside Update. Everything
// done through it, including sends made by the caller, happens before the
// next operation on the room starts.
type Tx struct {
	st *state
}

// Update runs fn as one step of the session goroutine. Fan-out that must
// follow the order of changes belongs inside fn.
func (s *Session) Update(fn func(tx *Tx) error) error {
	var opErr error
	if err := s.do(func(st *state) { opErr = fn(&Tx{st: st}) }); err != nil {
		return err
	}
	return opErr
}

func (tx *Tx) RoomID() string { return tx.st.id }

func (tx *Tx) Join(identity, displayName, connID string) JoinResult {
	st := tx.st
	if displayName == "" {
		displayName = domain.DefaultDisplayName
	}
	p := domain.Participant{
		Identity:     identity,
		DisplayName:  displayName,
		ConnectionID: connID,
		JoinedAt:     st.now(),
	}
	st.upsertParticipant(p)
	return JoinResult{
		Participant:  p,
		Participants: st.roster(),
		Canvas:       cloneStrokes(st.canvas),
		Messages:     cloneMessages(st.messages),
		Locked:       st.locked,
	}
}

// LeaveConnection removes identity only while connID is still its current
// connection.
func (tx *Tx) LeaveConnection(identity, connID string) LeaveResult {
	st := tx.st
	var res LeaveResult
	if p, ok := st.participants[identity]; ok && p.ConnectionID == connID {
		res.Participant = p
		res.Removed = st.removeParticipant(identity)
	}
	res.Participants = st.roster()
	return res
}

func (tx *Tx) Participant(identity string) (domain.Participant, bool) {
	p, ok := tx.st.participants[identity]
	return p, ok
}

func (tx *Tx) Rename(identity, displayName string) ([]domain.Participant, error) {
	name, ok := cleanName(displayName)
	if !ok {
		return nil, domain.ErrInvalidName
	}
	p, ok := tx.st.participants[identity]
	if !ok {
		return nil, domain.ErrNotInRoom
	}
	p.DisplayName = name
	tx.st.participants[identity] = p
	return tx.st.roster(), nil
}

// SetDrawingStatus records or clears the drawing color of a participant and
// returns the color in effect.
func (tx *Tx) SetDrawingStatus(identity string, isDrawing bool, color string) (string, error) {
	st := tx.st
	if _, ok := st.participants[identity]; !ok {
		return "", domain.ErrNotInRoom
	}
	if color == "" {
		color = domain.DefaultStrokeColor
	}
	if !isDrawing {
		delete(st.drawing, identity)
		return color, nil
	}
	st.drawing[identity] = domain.DrawingStatus{Color: color}
	return color, nil
}

func (tx *Tx) AppendStroke(stroke domain.Stroke) error {
	if tx.st.locked {
		return domain.ErrCanvasLocked
	}
	tx.st.canvas = append(tx.st.canvas, stroke.Clone())
	return nil
}

func (tx *Tx) ReplaceCanvas(strokes []domain.Stroke) error {
	if tx.st.locked {
		return domain.ErrCanvasLocked
	}
	tx.st.canvas = cloneStrokes(strokes)
	return nil
}

func (tx *Tx) ClearCanvas() error {
	if tx.st.locked {
		return domain.ErrCanvasLocked
	}
	tx.st.canvas = nil
	return nil
}

func (tx *Tx) Canvas() []domain.Stroke { return cloneStrokes(tx.st.canvas) }

func (tx *Tx) ToggleLock() bool {
	tx.st.locked = !tx.st.locked
	return tx.st.locked
}

func (tx *Tx) AddChatMessage(identity, text string) (domain.ChatMessage, error) {
	if text == "" {
		return domain.ChatMessage{}, domain.ErrEmptyMessage
	}
	st := tx.st
	msg := st.newMessage(domain.KindUser, identity, st.displayName(identity), text)
	if ds, ok := st.drawing[identity]; ok {
		msg.Color = ds.Color
	}
	return st.addMessage(msg), nil
}

func (tx *Tx) AddSystemMessage(text string) (domain.ChatMessage, error) {
	if text == "" {
		return domain.ChatMessage{}, domain.ErrEmptyMessage
	}
	st := tx.st
	return st.addMessage(st.newMessage(domain.KindSystem, domain.SystemUserID, domain.SystemUsername, text)), nil
}

func (tx *Tx) RecentMessages() []domain.ChatMessage { return cloneMessages(tx.st.messages) }

func (tx *Tx) Details(includeParticipants bool) domain.RoomDetails {
	return tx.st.details(includeParticipants)
}

func (tx *Tx) UpdateName(name string) (domain.RoomDetails, error) {
	name, ok := cleanName(name)
	if !ok {
		return domain.RoomDetails{}, domain.ErrInvalidName
	}
	tx.st.name = name
	return tx.st.details(false), nil
}

func (tx *Tx) ToggleVisibility() domain.RoomDetails {
	tx.st.isPrivate = !tx.st.isPrivate
	return tx.st.details(false)
}
