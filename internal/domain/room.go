package domain

import "time"

// RoomRecord is the durable projection of a room session. Participants and
// drawing status are never part of it.
type RoomRecord struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	IsPrivate    bool          `json:"isPrivate"`
	CreatedBy    string        `json:"createdBy"`
	CreatedAt    time.Time     `json:"createdAt"`
	Locked       bool          `json:"isLocked"`
	Messages     []ChatMessage `json:"messages"`
	CanvasState  []Stroke      `json:"canvasState"`
	MessageLimit int           `json:"messageLimit"`
	LastSyncedAt time.Time     `json:"lastSyncedAt"`
}

type RoomDetails struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	IsPrivate        bool              `json:"isPrivate"`
	ParticipantCount int               `json:"participantCount"`
	CreatedAt        time.Time         `json:"createdAt"`
	IsLocked         bool              `json:"isLocked"`
	Participants     []ParticipantView `json:"participants,omitempty"`
}

// DefaultRoomName is used when a room is created without a name.
func DefaultRoomName(id string) string {
	r := []rune(id)
	if len(r) > 6 {
		r = r[:6]
	}
	return "Room " + string(r)
}
