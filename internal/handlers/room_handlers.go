package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"taskchat-gateway/internal/auth"
	"taskchat-gateway/internal/models"
	"taskchat-gateway/internal/services"
	"taskchat-gateway/pkg/logger"
)

// Presence lets the member list report who is currently connected.
type Presence interface {
	IsOnline(userID string) bool
}

type RoomHandlers struct {
	roomService *services.RoomService
	authService *auth.Service
	presence    Presence
}

func NewRoomHandlers(roomService *services.RoomService, authService *auth.Service, presence Presence) *RoomHandlers {
	return &RoomHandlers{
		roomService: roomService,
		authService: authService,
		presence:    presence,
	}
}

func (h *RoomHandlers) CreateRoom(w http.ResponseWriter, r *http.Request) {
	user, err := h.getUserFromToken(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req models.CreateChatRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	room, err := h.roomService.CreateRoom(r.Context(), &req, user.ID)
	if err != nil {
		logger.Error("Create room error: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, room)
}

func (h *RoomHandlers) ListRooms(w http.ResponseWriter, r *http.Request) {
	user, err := h.getUserFromToken(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	rooms, err := h.roomService.ListUserRooms(r.Context(), user.ID)
	if err != nil {
		logger.Error("List rooms error: %v", err)
		http.Error(w, "error listing rooms", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, rooms)
}

func (h *RoomHandlers) GetRoom(w http.ResponseWriter, r *http.Request) {
	user, err := h.getUserFromToken(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	roomID, ok := roomIDFromPath(w, r)
	if !ok {
		return
	}

	canAccess, err := h.roomService.CanUserAccessRoom(r.Context(), user.ID, roomID)
	if err != nil || !canAccess {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	room, err := h.roomService.GetRoom(r.Context(), roomID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, room)
}

type memberStatus struct {
	models.Member
	Online bool `json:"online"`
}

func (h *RoomHandlers) GetRoomMembers(w http.ResponseWriter, r *http.Request) {
	user, err := h.getUserFromToken(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	roomID, ok := roomIDFromPath(w, r)
	if !ok {
		return
	}

	members, err := h.roomService.GetRoomMembers(r.Context(), roomID, user.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := make([]memberStatus, 0, len(members))
	for _, m := range members {
		out = append(out, memberStatus{
			Member: *m,
			Online: h.presence.IsOnline(strconv.Itoa(m.ID)),
		})
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *RoomHandlers) AddMember(w http.ResponseWriter, r *http.Request) {
	user, err := h.getUserFromToken(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	roomID, ok := roomIDFromPath(w, r)
	if !ok {
		return
	}

	var req models.AddMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	if err := h.roomService.AddMember(r.Context(), roomID, req.UserID, user.ID); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "member added"})
}

func (h *RoomHandlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	user, err := h.getUserFromToken(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	parts := strings.Split(r.URL.Path, "/")
	// /chatrooms/{id}/members/{memberId}
	if len(parts) != 5 {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}
	roomID, err1 := strconv.Atoi(parts[2])
	memberID, err2 := strconv.Atoi(parts[4])
	if err1 != nil || err2 != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	if err := h.roomService.RemoveMember(r.Context(), roomID, memberID, user.ID); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "member removed"})
}

// ForceAddMember is the admin path: it skips the room-level permission
// check, mirroring the moderation dashboard.
func (h *RoomHandlers) ForceAddMember(w http.ResponseWriter, r *http.Request) {
	if _, err := h.getUserFromToken(r); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	roomID, ok := roomIDFromPath(w, r)
	if !ok {
		return
	}

	var req models.AddMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	member, err := h.roomService.ForceAddMember(r.Context(), roomID, req.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, member)
}

func (h *RoomHandlers) DeleteMessages(w http.ResponseWriter, r *http.Request) {
	if _, err := h.getUserFromToken(r); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	roomID, ok := roomIDFromPath(w, r)
	if !ok {
		return
	}

	var req models.DeleteMessagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	deleted, err := h.roomService.DeleteMessages(r.Context(), roomID, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"deletedCount": deleted})
}

func (h *RoomHandlers) ClearMessages(w http.ResponseWriter, r *http.Request) {
	user, err := h.getUserFromToken(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	roomID, ok := roomIDFromPath(w, r)
	if !ok {
		return
	}

	deleted, err := h.roomService.ClearMessages(r.Context(), roomID, user.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"deletedCount": deleted})
}

func (h *RoomHandlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	user, err := h.getUserFromToken(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	roomID, ok := roomIDFromPath(w, r)
	if !ok {
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	messages, err := h.roomService.GetHistory(r.Context(), roomID, user.ID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messages)
}

func (h *RoomHandlers) PostMessage(w http.ResponseWriter, r *http.Request) {
	user, err := h.getUserFromToken(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	roomID, ok := roomIDFromPath(w, r)
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	msg, err := h.roomService.SaveMessage(r.Context(), roomID, user.ID, req.Content)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

func (h *RoomHandlers) getUserFromToken(r *http.Request) (*models.User, error) {
	return h.authService.GetUserFromToken(r.Context(), extractToken(r))
}

func roomIDFromPath(w http.ResponseWriter, r *http.Request) (int, bool) {
	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 3 || parts[2] == "" {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return 0, false
	}
	roomID, err := strconv.Atoi(parts[2])
	if err != nil {
		http.Error(w, "invalid room id", http.StatusBadRequest)
		return 0, false
	}
	return roomID, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeServiceError(w http.ResponseWriter, err error) {
	logger.Error("Room service error: %v", err)
	switch {
	case errors.Is(err, services.ErrRoomNotFound), errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrNotParticipant):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, services.ErrAlreadyParticipant), errors.Is(err, services.ErrDirectMessageRoom):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
