package domain

import "time"

type MessageKind string

const (
	KindUser   MessageKind = "user-message"
	KindSystem MessageKind = "system-notification"
)

const (
	SystemUserID   = "system"
	SystemUsername = "System"

	DefaultMessageLimit = 100
)

type ChatMessage struct {
	ID        string      `json:"id"`
	RoomID    string      `json:"roomId"`
	UserID    string      `json:"userId"`
	Username  string      `json:"username"`
	Text      string      `json:"text"`
	Timestamp int64       `json:"timestamp"` // unix millis
	Type      MessageKind `json:"type"`
	Color     string      `json:"color,omitempty"`
}

func (m ChatMessage) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}
