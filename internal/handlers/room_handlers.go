package handlers

import (
	"fmt"
	"net/http"
	"strings"
)

type RoomHandlers struct {
	authn    Authenticator
	sessions SessionProvider
}

func NewRoomHandlers(authn Authenticator, sessions SessionProvider) *RoomHandlers {
	return &RoomHandlers{
		authn:    authn,
		sessions: sessions,
	}
}

func (h *RoomHandlers) ListRooms(w http.ResponseWriter, r *http.Request) {
	session, err := sessionFromRequest(r, h.authn, h.sessions)
	if err != nil {
		writeError(w, "List rooms", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rooms":       session.Rooms(),
		"active_room": session.ActiveRoom(),
	})
}

func (h *RoomHandlers) RefreshRooms(w http.ResponseWriter, r *http.Request) {
	session, err := sessionFromRequest(r, h.authn, h.sessions)
	if err != nil {
		writeError(w, "Refresh rooms", err)
		return
	}

	rooms, err := session.RefreshRooms(r.Context())
	if err != nil {
		writeError(w, "Refresh rooms", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rooms":       rooms,
		"active_room": session.ActiveRoom(),
	})
}

func (h *RoomHandlers) SetActiveRoom(w http.ResponseWriter, r *http.Request) {
	session, err := sessionFromRequest(r, h.authn, h.sessions)
	if err != nil {
		writeError(w, "Set active room", err)
		return
	}

	roomID, err := h.getRoomIDFromPath(r)
	if err != nil {
		http.Error(w, "invalid room ID", http.StatusBadRequest)
		return
	}

	if err := session.SetActiveRoom(r.Context(), roomID); err != nil {
		writeError(w, "Set active room", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"active_room": roomID,
		"messages":    session.Messages(roomID),
	})
}

func (h *RoomHandlers) MarkRead(w http.ResponseWriter, r *http.Request) {
	session, err := sessionFromRequest(r, h.authn, h.sessions)
	if err != nil {
		writeError(w, "Mark read", err)
		return
	}

	roomID, err := h.getRoomIDFromPath(r)
	if err != nil {
		http.Error(w, "invalid room ID", http.StatusBadRequest)
		return
	}

	if err := session.MarkRead(r.Context(), roomID); err != nil {
		writeError(w, "Mark read", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *RoomHandlers) GetMessages(w http.ResponseWriter, r *http.Request) {
	session, err := sessionFromRequest(r, h.authn, h.sessions)
	if err != nil {
		writeError(w, "Get messages", err)
		return
	}

	roomID, err := h.getRoomIDFromPath(r)
	if err != nil {
		http.Error(w, "invalid room ID", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"room_id":  roomID,
		"messages": session.Messages(roomID),
	})
}

// getRoomIDFromPath reads {id} from /rooms/{id}/...
func (h *RoomHandlers) getRoomIDFromPath(r *http.Request) (string, error) {
	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 3 || parts[2] == "" {
		return "", fmt.Errorf("invalid path")
	}
	return parts[2], nil
}
