package ws

import (
	"encoding/json"

	"github.com/cwrk-planet/board-service/internal/domain"
)

// Входящие события
const (
	EvJoinRoom             = "join-room"
	EvLeaveRoom            = "leave-room"
	EvDrawLine             = "draw-line"
	EvUpdateCanvasState    = "update-canvas-state"
	EvClearCanvas          = "clear-canvas"
	EvUpdateDrawingStatus  = "update-drawing-status"
	EvCursorPosition       = "cursor-position"
	EvToggleCanvasLock     = "toggle-canvas-lock"
	EvSendMessage          = "send-message"
	EvGetRecentMessages    = "get-recent-messages"
	EvUpdateUsername       = "update-username"
	EvUpdateRoomName       = "update-room-name"
	EvToggleRoomVisibility = "toggle-room-visibility"

	EvVoiceJoinRequest  = "voice-join-request"
	EvVoiceOffer        = "voice-offer"
	EvVoiceAnswer       = "voice-answer"
	EvVoiceIceCandidate = "voice-ice-candidate"
	EvVoiceLeave        = "voice-leave"
)

// Исходящие события
const (
	TypeCanvasState         = "canvas-state"
	TypeRecentMessages      = "recent-messages"
	TypeLockStatus          = "lock-status"
	TypeParticipantJoined   = "participant-joined"
	TypeParticipantLeft     = "participant-left"
	TypeSessionUpdated      = "session-updated"
	TypeDrawLine            = "draw-line"
	TypeClearCanvas         = "clear-canvas"
	TypeDrawingStatusUpdate = "drawing-status-update"
	TypeCursorPosition      = "cursor-position"
	TypeReceiveMessage      = "receive-message"
	TypeUsernameUpdated     = "username-updated"
	TypeVoiceUserJoined     = "voice-user-joined"
	TypeVoiceOffer          = "voice-offer"
	TypeVoiceAnswer         = "voice-answer"
	TypeVoiceIceCandidate   = "voice-ice-candidate"
	TypeVoiceUserLeft       = "voice-user-left"
	TypeRoomClosed          = "room-closed"
	TypeError               = "error"
)

// Коды ошибок в событии error
const (
	CodeValidation   = "validation"
	CodeUnauthorized = "unauthorized"
	CodeLocked       = "locked"
	CodeBadRequest   = "bad_request"
	CodeInternal     = "internal"
)

// Причины в room-closed
const (
	ReasonExpired = "expired"
	ReasonDeleted = "deleted"
)

// Message is the outbound envelope.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type roomRef struct {
	RoomID string `json:"roomId"`
}

type JoinRoomPayload struct {
	RoomID      string `json:"roomId"`
	Identity    string `json:"identity"`
	UserID      string `json:"userId"` // старое имя поля identity
	DisplayName string `json:"displayName"`
	Username    string `json:"username"` // старое имя поля displayName
	CreatorID   string `json:"creatorId"`
}

type DrawLinePayload struct {
	RoomID string          `json:"roomId"`
	Line   json.RawMessage `json:"line"`
}

type CanvasStatePayload struct {
	RoomID      string          `json:"roomId"`
	CanvasState json.RawMessage `json:"canvasState"`
}

type DrawingStatusPayload struct {
	RoomID    string `json:"roomId"`
	IsDrawing bool   `json:"isDrawing"`
	Color     string `json:"color"`
}

type CursorPayload struct {
	RoomID   string          `json:"roomId"`
	Position json.RawMessage `json:"position"`
}

type SendMessagePayload struct {
	RoomID string `json:"roomId"`
	Text   string `json:"text"`
}

type UsernamePayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

type RoomNamePayload struct {
	RoomID string `json:"roomId"`
	Name   string `json:"name"`
}

type VoiceSignalPayload struct {
	RoomID  string          `json:"roomId"`
	Target  string          `json:"target"`
	Payload json.RawMessage `json:"payload"`
}

// --- outbound payloads ---

type ParticipantItem struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type PresencePayload struct {
	RoomID       string            `json:"roomId"`
	UserID       string            `json:"userId"`
	Username     string            `json:"username,omitempty"`
	Count        int               `json:"count"`
	Participants []ParticipantItem `json:"participants"`
}

type RecentMessagesPayload struct {
	RoomID   string               `json:"roomId"`
	Messages []domain.ChatMessage `json:"messages"`
}

type LockStatusPayload struct {
	RoomID   string `json:"roomId"`
	IsLocked bool   `json:"isLocked"`
	LockedBy string `json:"lockedBy,omitempty"`
}

type DrawingStatusUpdatePayload struct {
	RoomID    string `json:"roomId"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	IsDrawing bool   `json:"isDrawing"`
	Color     string `json:"color"`
}

type CursorUpdatePayload struct {
	RoomID         string          `json:"roomId"`
	UserID         string          `json:"userId"`
	Position       json.RawMessage `json:"position"`
	CursorUsername string          `json:"cursorUsername"`
}

type UsernameUpdatedPayload struct {
	RoomID       string            `json:"roomId"`
	UserID       string            `json:"userId"`
	Username     string            `json:"username"`
	Participants []ParticipantItem `json:"participants"`
}

type VoiceUserPayload struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
}

type VoiceRelayPayload struct {
	RoomID  string          `json:"roomId"`
	Sender  string          `json:"sender"`
	Payload json.RawMessage `json:"payload"`
}

type RoomClosedPayload struct {
	RoomID string `json:"roomId"`
	Reason string `json:"reason"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Event   string `json:"event,omitempty"`
}

func participantItems(ps []domain.Participant) []ParticipantItem {
	out := make([]ParticipantItem, 0, len(ps))
	for _, p := range ps {
		out = append(out, ParticipantItem{ID: p.Identity, Username: p.DisplayName})
	}
	return out
}
