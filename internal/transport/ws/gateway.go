package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/cwrk-planet/board-service/internal/domain"
	"github.com/cwrk-planet/board-service/internal/identity"
	"github.com/cwrk-planet/board-service/internal/session"
)

// Client is the per-connection state kept by the gateway.
type Client struct {
	conn     Conn
	identity string // from a token at connect time, "" when anonymous

	mu    sync.Mutex
	rooms map[string]string // roomID -> identity used to join
}

func (cl *Client) ID() string { return cl.conn.ID() }

func (cl *Client) joined(roomID string) (string, bool) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	id, ok := cl.rooms[roomID]
	return id, ok
}

// defaultRoom picks the only joined room when an event omits roomId.
func (cl *Client) defaultRoom() string {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if len(cl.rooms) != 1 {
		return ""
	}
	for id := range cl.rooms {
		return id
	}
	return ""
}

func (cl *Client) remember(roomID, identity string) {
	cl.mu.Lock()
	cl.rooms[roomID] = identity
	cl.mu.Unlock()
}

func (cl *Client) forget(roomID string) {
	cl.mu.Lock()
	delete(cl.rooms, roomID)
	cl.mu.Unlock()
}

type handlerFunc func(cl *Client, payload json.RawMessage) error

// Gateway routes inbound events to room sessions and fans results out
// through the hub.
type Gateway struct {
	reg *session.Registry
	hub *Hub
	ids *identity.Resolver

	mu      sync.RWMutex
	clients map[string]*Client

	handlers map[string]handlerFunc
}

func NewGateway(reg *session.Registry, hub *Hub, ids *identity.Resolver) *Gateway {
	g := &Gateway{
		reg:     reg,
		hub:     hub,
		ids:     ids,
		clients: make(map[string]*Client),
	}
	g.handlers = map[string]handlerFunc{
		EvJoinRoom:             g.handleJoin,
		EvLeaveRoom:            g.handleLeave,
		EvDrawLine:             g.handleDrawLine,
		EvUpdateCanvasState:    g.handleCanvasState,
		EvClearCanvas:          g.handleClearCanvas,
		EvUpdateDrawingStatus:  g.handleDrawingStatus,
		EvCursorPosition:       g.handleCursor,
		EvToggleCanvasLock:     g.handleToggleLock,
		EvSendMessage:          g.handleSendMessage,
		EvGetRecentMessages:    g.handleRecentMessages,
		EvUpdateUsername:       g.handleUpdateUsername,
		EvUpdateRoomName:       g.handleUpdateRoomName,
		EvToggleRoomVisibility: g.handleToggleVisibility,
		EvVoiceJoinRequest:     g.handleVoiceJoin,
		EvVoiceOffer:           g.relayVoice(TypeVoiceOffer),
		EvVoiceAnswer:          g.relayVoice(TypeVoiceAnswer),
		EvVoiceIceCandidate:    g.relayVoice(TypeVoiceIceCandidate),
		EvVoiceLeave:           g.handleVoiceLeave,
	}
	return g
}

// Connect registers a new connection. identity may be empty.
func (g *Gateway) Connect(c Conn, identity string) *Client {
	cl := &Client{conn: c, identity: identity, rooms: make(map[string]string)}
	g.hub.Register(c)

	g.mu.Lock()
	g.clients[c.ID()] = cl
	g.mu.Unlock()
	return cl
}

// Disconnect removes every participant entry still bound to this
// connection. Entries already taken over by a newer connection stay.
func (g *Gateway) Disconnect(cl *Client) {
	g.mu.Lock()
	delete(g.clients, cl.ID())
	g.mu.Unlock()
	g.hub.Unregister(cl.conn)

	for _, sess := range g.reg.FindByConnection(cl.ID()) {
		ident, ok, err := sess.IdentityOf(cl.ID())
		if err != nil || !ok {
			continue
		}
		g.leave(sess, ident, cl.ID())
	}
}

// Handle decodes one inbound frame and runs its handler to completion.
func (g *Gateway) Handle(cl *Client, data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		g.fail(cl, "", CodeBadRequest, "malformed message")
		return
	}
	h, ok := g.handlers[msg.Type]
	if !ok {
		slog.Debug("ws unknown event", "conn", cl.ID(), "type", msg.Type)
		return
	}
	if err := h(cl, msg.Payload); err != nil {
		g.reportError(cl, msg.Type, err)
	}
}

// CloseRoom tells every member that the room is gone and drops hub
// membership. Call it after the session has left the registry.
func (g *Gateway) CloseRoom(roomID, reason string) {
	conns := g.hub.RemoveRoom(roomID)
	msg := Message{Type: TypeRoomClosed, Payload: RoomClosedPayload{RoomID: roomID, Reason: reason}}
	for _, c := range conns {
		if err := c.Send(msg); err != nil {
			slog.Warn("ws drop message", "room", roomID, "conn", c.ID(), "type", msg.Type, "err", err)
		}
		g.mu.RLock()
		cl := g.clients[c.ID()]
		g.mu.RUnlock()
		if cl != nil {
			cl.forget(roomID)
		}
	}
	slog.Info("room closed", "room", roomID, "reason", reason, "members", len(conns))
}

// --- helpers ---

var errBadPayload = errors.New("malformed payload")

func decode(payload json.RawMessage, dst any) error {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("%w: %v", errBadPayload, err)
	}
	return nil
}

// member resolves a room the client has joined and its live session. ok is
// false when either is missing; such events are dropped silently.
func (g *Gateway) member(cl *Client, roomID string) (sess *session.Session, ident string, ok bool) {
	if roomID == "" {
		roomID = cl.defaultRoom()
	}
	ident, joined := cl.joined(roomID)
	if !joined {
		slog.Debug("ws event for room not joined", "conn", cl.ID(), "room", roomID)
		return nil, "", false
	}
	sess, found := g.reg.Get(roomID)
	if !found {
		slog.Debug("ws event for unknown room", "conn", cl.ID(), "room", roomID)
		return nil, "", false
	}
	return sess, ident, true
}

func (g *Gateway) send(cl *Client, typ string, payload any) {
	if err := cl.conn.Send(Message{Type: typ, Payload: payload}); err != nil {
		slog.Warn("ws drop message", "conn", cl.ID(), "type", typ, "err", err)
	}
}

func (g *Gateway) fail(cl *Client, event, code, text string) {
	g.send(cl, TypeError, ErrorPayload{Message: text, Code: code, Event: event})
}

func (g *Gateway) reportError(cl *Client, event string, err error) {
	switch {
	case errors.Is(err, domain.ErrRoomClosed), errors.Is(err, domain.ErrRoomNotFound):
		slog.Debug("ws event for closed room", "conn", cl.ID(), "type", event)
	case errors.Is(err, domain.ErrNotInRoom):
		slog.Debug("ws event from non-participant", "conn", cl.ID(), "type", event)
	case errors.Is(err, domain.ErrCanvasLocked):
		g.fail(cl, event, CodeLocked, "canvas is locked")
	case errors.Is(err, domain.ErrNotCreator):
		g.fail(cl, event, CodeUnauthorized, "only the room creator can do this")
	case errors.Is(err, domain.ErrEmptyMessage):
		g.fail(cl, event, CodeValidation, "message text is empty")
	case errors.Is(err, domain.ErrInvalidName):
		g.fail(cl, event, CodeValidation, "name must not be empty")
	case errors.Is(err, domain.ErrInvalidStroke):
		g.fail(cl, event, CodeValidation, err.Error())
	case errors.Is(err, errBadPayload):
		g.fail(cl, event, CodeBadRequest, err.Error())
	default:
		slog.Error("ws handler failed", "conn", cl.ID(), "type", event, "err", err)
		g.fail(cl, event, CodeInternal, "internal error")
	}
}

func (g *Gateway) leave(sess *session.Session, ident, connID string) {
	_ = sess.Update(func(tx *session.Tx) error {
		g.leaveTx(tx, ident, connID)
		return nil
	})
}

// leaveTx removes ident while connID still owns it and tells the room.
func (g *Gateway) leaveTx(tx *session.Tx, ident, connID string) {
	res := tx.LeaveConnection(ident, connID)
	if !res.Removed {
		return
	}
	g.hub.Broadcast(tx.RoomID(), Message{Type: TypeParticipantLeft, Payload: PresencePayload{
		RoomID:       tx.RoomID(),
		UserID:       ident,
		Username:     res.Participant.DisplayName,
		Count:        len(res.Participants),
		Participants: participantItems(res.Participants),
	}})
	slog.Info("participant left", "room", tx.RoomID(), "user", ident, "conn", connID)
}

func (g *Gateway) broadcastDetails(tx *session.Tx) {
	g.hub.Broadcast(tx.RoomID(), Message{Type: TypeSessionUpdated, Payload: tx.Details(true)})
}

// --- room lifecycle ---

func (g *Gateway) handleJoin(cl *Client, raw json.RawMessage) error {
	var p JoinRoomPayload
	if err := decode(raw, &p); err != nil {
		return err
	}
	roomID := strings.TrimSpace(p.RoomID)
	if roomID == "" {
		g.fail(cl, EvJoinRoom, CodeValidation, "roomId is required")
		return nil
	}

	claimed := p.Identity
	if claimed == "" {
		claimed = p.UserID
	}
	ident := g.ids.Pick(cl.identity, claimed, cl.ID())
	name := strings.TrimSpace(p.DisplayName)
	if name == "" {
		name = strings.TrimSpace(p.Username)
	}
	creator := ident
	if p.CreatorID != "" && !g.ids.Verifying() {
		creator = p.CreatorID
	}
	prev, rejoin := cl.joined(roomID)

	var err error
	// a concurrent delete may stop the session between lookup and join
	for attempt := 0; attempt < 2; attempt++ {
		sess, created := g.reg.GetOrCreate(roomID, creator)
		if created {
			slog.Info("room auto-created", "room", roomID, "creator", creator)
		}
		err = sess.Update(func(tx *session.Tx) error {
			if rejoin && prev != ident {
				g.leaveTx(tx, prev, cl.ID())
			}
			g.joinTx(tx, cl, ident, name)
			return nil
		})
		if !errors.Is(err, domain.ErrRoomClosed) {
			break
		}
	}
	return err
}

// joinTx subscribes the connection and sends the snapshot in the same step,
// so no change lands between the two.
func (g *Gateway) joinTx(tx *session.Tx, cl *Client, ident, name string) {
	roomID := tx.RoomID()
	res := tx.Join(ident, name, cl.ID())
	g.hub.Join(roomID, cl.conn)
	cl.remember(roomID, ident)
	joined := res.Participant
	slog.Info("participant joined", "room", roomID, "user", ident, "conn", cl.ID(), "count", len(res.Participants))

	g.send(cl, TypeCanvasState, res.Canvas)

	if sys, err := tx.AddSystemMessage(joined.DisplayName + " has joined the room"); err == nil {
		g.hub.BroadcastExcept(roomID, cl.ID(), Message{Type: TypeReceiveMessage, Payload: sys})
	}
	g.send(cl, TypeRecentMessages, RecentMessagesPayload{RoomID: roomID, Messages: tx.RecentMessages()})
	g.send(cl, TypeLockStatus, LockStatusPayload{RoomID: roomID, IsLocked: res.Locked})

	g.hub.Broadcast(roomID, Message{Type: TypeParticipantJoined, Payload: PresencePayload{
		RoomID:       roomID,
		UserID:       ident,
		Username:     joined.DisplayName,
		Count:        len(res.Participants),
		Participants: participantItems(res.Participants),
	}})
	g.broadcastDetails(tx)
}

func (g *Gateway) handleLeave(cl *Client, raw json.RawMessage) error {
	var p roomRef
	if err := decode(raw, &p); err != nil {
		return err
	}
	roomID := p.RoomID
	if roomID == "" {
		roomID = cl.defaultRoom()
	}
	ident, ok := cl.joined(roomID)
	if !ok {
		return nil
	}
	cl.forget(roomID)
	g.hub.Leave(roomID, cl.conn)

	if sess, found := g.reg.Get(roomID); found {
		g.leave(sess, ident, cl.ID())
	}
	return nil
}

// --- canvas ---

func (g *Gateway) handleDrawLine(cl *Client, raw json.RawMessage) error {
	var p DrawLinePayload
	if err := decode(raw, &p); err != nil {
		return err
	}
	sess, _, ok := g.member(cl, p.RoomID)
	if !ok {
		return nil
	}
	stroke, err := domain.NormalizeStroke(p.Line)
	if err != nil {
		return err
	}
	return sess.Update(func(tx *session.Tx) error {
		if err := tx.AppendStroke(stroke); err != nil {
			return err
		}
		g.hub.BroadcastExcept(tx.RoomID(), cl.ID(), Message{Type: TypeDrawLine, Payload: stroke})
		return nil
	})
}

func (g *Gateway) handleCanvasState(cl *Client, raw json.RawMessage) error {
	var p CanvasStatePayload
	if err := decode(raw, &p); err != nil {
		return err
	}
	sess, _, ok := g.member(cl, p.RoomID)
	if !ok {
		return nil
	}
	strokes, err := domain.NormalizeCanvas(p.CanvasState)
	if err != nil {
		return err
	}
	return sess.Update(func(tx *session.Tx) error {
		if err := tx.ReplaceCanvas(strokes); err != nil {
			return err
		}
		g.hub.BroadcastExcept(tx.RoomID(), cl.ID(), Message{Type: TypeCanvasState, Payload: strokes})
		return nil
	})
}

func (g *Gateway) handleClearCanvas(cl *Client, raw json.RawMessage) error {
	var p roomRef
	if err := decode(raw, &p); err != nil {
		return err
	}
	sess, _, ok := g.member(cl, p.RoomID)
	if !ok {
		return nil
	}
	return sess.Update(func(tx *session.Tx) error {
		if err := tx.ClearCanvas(); err != nil {
			return err
		}
		g.hub.BroadcastExcept(tx.RoomID(), cl.ID(), Message{Type: TypeClearCanvas, Payload: roomRef{RoomID: tx.RoomID()}})
		return nil
	})
}

func (g *Gateway) handleDrawingStatus(cl *Client, raw json.RawMessage) error {
	var p DrawingStatusPayload
	if err := decode(raw, &p); err != nil {
		return err
	}
	sess, ident, ok := g.member(cl, p.RoomID)
	if !ok {
		return nil
	}
	return sess.Update(func(tx *session.Tx) error {
		color, err := tx.SetDrawingStatus(ident, p.IsDrawing, p.Color)
		if err != nil {
			return err
		}
		part, _ := tx.Participant(ident)
		g.hub.Broadcast(tx.RoomID(), Message{Type: TypeDrawingStatusUpdate, Payload: DrawingStatusUpdatePayload{
			RoomID:    tx.RoomID(),
			UserID:    ident,
			Username:  part.DisplayName,
			IsDrawing: p.IsDrawing,
			Color:     color,
		}})
		return nil
	})
}

func (g *Gateway) handleCursor(cl *Client, raw json.RawMessage) error {
	var p CursorPayload
	if err := decode(raw, &p); err != nil {
		return err
	}
	sess, ident, ok := g.member(cl, p.RoomID)
	if !ok {
		return nil
	}
	return sess.Update(func(tx *session.Tx) error {
		part, found := tx.Participant(ident)
		if !found {
			return domain.ErrNotInRoom
		}
		name := part.DisplayName
		if name == "" {
			name = domain.DefaultDisplayName
		}
		g.hub.BroadcastExcept(tx.RoomID(), cl.ID(), Message{Type: TypeCursorPosition, Payload: CursorUpdatePayload{
			RoomID:         tx.RoomID(),
			UserID:         ident,
			Position:       p.Position,
			CursorUsername: name,
		}})
		return nil
	})
}

func (g *Gateway) handleToggleLock(cl *Client, raw json.RawMessage) error {
	var p roomRef
	if err := decode(raw, &p); err != nil {
		return err
	}
	sess, ident, ok := g.member(cl, p.RoomID)
	if !ok {
		return nil
	}
	if !sess.IsCreator(ident) {
		return domain.ErrNotCreator
	}
	return sess.Update(func(tx *session.Tx) error {
		locked := tx.ToggleLock()
		part, _ := tx.Participant(ident)
		action := "unlocked"
		if locked {
			action = "locked"
		}
		if sys, err := tx.AddSystemMessage(fmt.Sprintf("%s %s the canvas", part.DisplayName, action)); err == nil {
			g.hub.Broadcast(tx.RoomID(), Message{Type: TypeReceiveMessage, Payload: sys})
		}
		g.hub.Broadcast(tx.RoomID(), Message{Type: TypeLockStatus, Payload: LockStatusPayload{
			RoomID:   tx.RoomID(),
			IsLocked: locked,
			LockedBy: ident,
		}})
		slog.Info("canvas lock toggled", "room", tx.RoomID(), "user", ident, "locked", locked)
		g.broadcastDetails(tx)
		return nil
	})
}

// --- chat ---

func (g *Gateway) handleSendMessage(cl *Client, raw json.RawMessage) error {
	var p SendMessagePayload
	if err := decode(raw, &p); err != nil {
		return err
	}
	text := strings.TrimSpace(p.Text)
	if text == "" {
		return domain.ErrEmptyMessage
	}
	sess, ident, ok := g.member(cl, p.RoomID)
	if !ok {
		return nil
	}
	return sess.Update(func(tx *session.Tx) error {
		msg, err := tx.AddChatMessage(ident, text)
		if err != nil {
			return err
		}
		g.hub.Broadcast(tx.RoomID(), Message{Type: TypeReceiveMessage, Payload: msg})
		return nil
	})
}

func (g *Gateway) handleRecentMessages(cl *Client, raw json.RawMessage) error {
	var p roomRef
	if err := decode(raw, &p); err != nil {
		return err
	}
	sess, _, ok := g.member(cl, p.RoomID)
	if !ok {
		return nil
	}
	msgs, err := sess.RecentMessages()
	if err != nil {
		return err
	}
	g.send(cl, TypeRecentMessages, RecentMessagesPayload{RoomID: sess.ID(), Messages: msgs})
	return nil
}

func (g *Gateway) handleUpdateUsername(cl *Client, raw json.RawMessage) error {
	var p UsernamePayload
	if err := decode(raw, &p); err != nil {
		return err
	}
	sess, ident, ok := g.member(cl, p.RoomID)
	if !ok {
		return nil
	}
	return sess.Update(func(tx *session.Tx) error {
		roster, err := tx.Rename(ident, p.Username)
		if err != nil {
			return err
		}
		g.hub.Broadcast(tx.RoomID(), Message{Type: TypeUsernameUpdated, Payload: UsernameUpdatedPayload{
			RoomID:       tx.RoomID(),
			UserID:       ident,
			Username:     strings.TrimSpace(p.Username),
			Participants: participantItems(roster),
		}})
		return nil
	})
}

// --- room metadata ---

func (g *Gateway) handleUpdateRoomName(cl *Client, raw json.RawMessage) error {
	var p RoomNamePayload
	if err := decode(raw, &p); err != nil {
		return err
	}
	sess, _, ok := g.member(cl, p.RoomID)
	if !ok {
		return nil
	}
	return sess.Update(func(tx *session.Tx) error {
		if _, err := tx.UpdateName(p.Name); err != nil {
			return err
		}
		g.broadcastDetails(tx)
		return nil
	})
}

func (g *Gateway) handleToggleVisibility(cl *Client, raw json.RawMessage) error {
	var p roomRef
	if err := decode(raw, &p); err != nil {
		return err
	}
	sess, _, ok := g.member(cl, p.RoomID)
	if !ok {
		return nil
	}
	return sess.Update(func(tx *session.Tx) error {
		tx.ToggleVisibility()
		g.broadcastDetails(tx)
		return nil
	})
}
