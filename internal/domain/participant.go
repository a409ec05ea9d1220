package domain

import "time"

const DefaultDisplayName = "Anonymous"

type Participant struct {
	Identity     string    `json:"id"`
	DisplayName  string    `json:"username"`
	ConnectionID string    `json:"-"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// DrawingStatus is transient and never persisted.
type DrawingStatus struct {
	Color string `json:"color"`
}

// ParticipantView is the external projection of a participant.
type ParticipantView struct {
	ID           string  `json:"id"`
	Username     string  `json:"username"`
	DrawingColor *string `json:"drawingColor"`
	IsAdmin      bool    `json:"isAdmin"`
}
