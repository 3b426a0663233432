package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"chat-sync/internal/services"
)

type SendMessageRequest struct {
	Content string `json:"content"`
}

type MessageHandlers struct {
	authn    Authenticator
	sessions SessionProvider
}

func NewMessageHandlers(authn Authenticator, sessions SessionProvider) *MessageHandlers {
	return &MessageHandlers{
		authn:    authn,
		sessions: sessions,
	}
}

// SendMessage posts to the active room. A rolled back send answers 502 with
// the outbound record so the caller can offer a retry.
func (h *MessageHandlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	session, err := sessionFromRequest(r, h.authn, h.sessions)
	if err != nil {
		writeError(w, "Send message", err)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	out, err := session.Send(r.Context(), req.Content)
	var failure *services.SendFailure
	if errors.As(err, &failure) {
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":    failure.Error(),
			"outbound": out,
		})
		return
	}
	if err != nil {
		writeError(w, "Send message", err)
		return
	}

	writeJSON(w, http.StatusAccepted, out)
}
