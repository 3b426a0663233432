package handlers

import (
	"net/http"

	ws "chat-sync/internal/websocket"
	"chat-sync/pkg/logger"

	"github.com/gorilla/websocket"
)

type WebSocketHandlers struct {
	authn      Authenticator
	sessions   SessionProvider
	hubManager *ws.Manager
	upgrader   websocket.Upgrader
}

func NewWebSocketHandlers(authn Authenticator, sessions SessionProvider, hubManager *ws.Manager) *WebSocketHandlers {
	return &WebSocketHandlers{
		authn:      authn,
		sessions:   sessions,
		hubManager: hubManager,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Configure for production
		},
	}
}

// HandleWebSocket streams a room snapshot to the viewer whenever the
// session's messages change.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	session, err := sessionFromRequest(r, h.authn, h.sessions)
	if err != nil {
		writeError(w, "WebSocket", err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	hub := h.hubManager.GetHub(session.Actor().ID, session)
	viewer := ws.NewViewer(hub, conn)
	if !hub.Add(viewer) {
		conn.Close()
		return
	}

	go viewer.WritePump()
	go viewer.ReadPump()
}
