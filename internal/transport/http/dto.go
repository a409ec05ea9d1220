package http

import (
	"time"

	"github.com/cwrk-planet/board-service/internal/domain"
)

type CreateRoomRequest struct {
	Name      string `json:"name"`
	IsPrivate bool   `json:"isPrivate"`
	UserID    string `json:"userId"`
}

type RenameRoomRequest struct {
	Name string `json:"name"`
}

type RoomResponse struct {
	Success bool               `json:"success"`
	Room    domain.RoomDetails `json:"room"`
	Message string             `json:"message,omitempty"`
}

type RoomsListResponse struct {
	Success bool                 `json:"success"`
	Count   int                  `json:"count"`
	Rooms   []domain.RoomDetails `json:"rooms"`
}

type AccessItem struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	IsPrivate        bool      `json:"isPrivate"`
	ParticipantCount int       `json:"participantCount"`
	CreatedAt        time.Time `json:"createdAt"`
}

type AccessResponse struct {
	Success bool       `json:"success"`
	Room    AccessItem `json:"room"`
}

type UserIDResponse struct {
	Success bool   `json:"success"`
	UserID  string `json:"userId"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
