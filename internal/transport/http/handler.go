package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cwrk-planet/board-service/internal/domain"
	"github.com/cwrk-planet/board-service/internal/identity"
	"github.com/cwrk-planet/board-service/internal/logger"
	"github.com/cwrk-planet/board-service/internal/service"
)

const userCookieMaxAge = 365 * 24 * time.Hour

type Handler struct {
	roomSvc    *service.RoomService
	ids        *identity.Resolver
	cookieName string
}

func NewHandler(rooms *service.RoomService, ids *identity.Resolver, cookieName string) *Handler {
	if cookieName == "" {
		cookieName = "userId"
	}
	return &Handler{
		roomSvc:    rooms,
		ids:        ids,
		cookieName: cookieName,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Success: false, Message: msg})
}

// writeServiceError maps domain errors to statuses; anything unknown is a 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		writeError(w, http.StatusNotFound, "Room not found")
	case errors.Is(err, domain.ErrInvalidName):
		writeError(w, http.StatusBadRequest, "Invalid room name")
	default:
		logger.FromContext(r.Context()).Error("handler."+op, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to "+op)
	}
}

// POST /api/rooms/create
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ident, err := h.ids.Resolve(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid identity token")
		return
	}
	creator := h.ids.Pick(ident, req.UserID, "")

	room, err := h.roomSvc.CreateRoom(r.Context(), req.Name, req.IsPrivate, creator)
	if err != nil {
		h.writeServiceError(w, r, "create room", err)
		return
	}
	writeJSON(w, http.StatusCreated, RoomResponse{Success: true, Room: room})
}

// GET /api/rooms/public
func (h *Handler) ListPublicRooms(w http.ResponseWriter, r *http.Request) {
	rooms := h.roomSvc.ListPublic(r.Context())
	writeJSON(w, http.StatusOK, RoomsListResponse{Success: true, Count: len(rooms), Rooms: rooms})
}

// GET /api/rooms/{roomId}
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.roomSvc.GetRoom(r.Context(), chi.URLParam(r, "roomId"))
	if err != nil {
		h.writeServiceError(w, r, "get room details", err)
		return
	}
	writeJSON(w, http.StatusOK, RoomResponse{Success: true, Room: room})
}

// PUT /api/rooms/{roomId}/name
func (h *Handler) RenameRoom(w http.ResponseWriter, r *http.Request) {
	var req RenameRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	room, err := h.roomSvc.RenameRoom(r.Context(), chi.URLParam(r, "roomId"), req.Name)
	if err != nil {
		h.writeServiceError(w, r, "update room name", err)
		return
	}
	writeJSON(w, http.StatusOK, RoomResponse{Success: true, Room: room})
}

// PUT /api/rooms/{roomId}/visibility
func (h *Handler) ToggleVisibility(w http.ResponseWriter, r *http.Request) {
	room, err := h.roomSvc.ToggleVisibility(r.Context(), chi.URLParam(r, "roomId"))
	if err != nil {
		h.writeServiceError(w, r, "toggle room visibility", err)
		return
	}
	msg := "Room is now public"
	if room.IsPrivate {
		msg = "Room is now private"
	}
	writeJSON(w, http.StatusOK, RoomResponse{Success: true, Room: room, Message: msg})
}

// DELETE /api/rooms/{roomId}
func (h *Handler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	if err := h.roomSvc.DeleteRoom(r.Context(), chi.URLParam(r, "roomId")); err != nil {
		h.writeServiceError(w, r, "delete room", err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Room deleted successfully"})
}

// GET /api/rooms/{roomId}/access
func (h *Handler) CheckAccess(w http.ResponseWriter, r *http.Request) {
	info, err := h.roomSvc.CheckAccess(r.Context(), chi.URLParam(r, "roomId"))
	if err != nil {
		h.writeServiceError(w, r, "check room access", err)
		return
	}
	writeJSON(w, http.StatusOK, AccessResponse{Success: true, Room: AccessItem{
		ID:               info.ID,
		Name:             info.Name,
		IsPrivate:        info.IsPrivate,
		ParticipantCount: info.ParticipantCount,
		CreatedAt:        info.CreatedAt,
	}})
}

// GET /api/user/id — выдаёт анонимный id в cookie, если его ещё нет.
func (h *Handler) UserID(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(h.cookieName); err == nil && c.Value != "" {
		writeJSON(w, http.StatusOK, UserIDResponse{Success: true, UserID: c.Value})
		return
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(userCookieMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusCreated, UserIDResponse{Success: true, UserID: id})
}
