package handlers

import (
	"net/http"
	"strings"
)

// NewRouter wires the sync agent's endpoints.
func NewRouter(roomHandlers *RoomHandlers, messageHandlers *MessageHandlers, wsHandlers *WebSocketHandlers) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/rooms", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		roomHandlers.ListRooms(w, r)
	})

	mux.HandleFunc("/rooms/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		if len(parts) < 3 || parts[2] == "" {
			http.Error(w, "invalid path", http.StatusBadRequest)
			return
		}

		// /rooms/refresh
		if len(parts) == 3 && parts[2] == "refresh" && r.Method == http.MethodPost {
			roomHandlers.RefreshRooms(w, r)
			return
		}

		// /rooms/{id}/active
		if len(parts) == 4 && parts[3] == "active" && r.Method == http.MethodPost {
			roomHandlers.SetActiveRoom(w, r)
			return
		}

		// /rooms/{id}/read
		if len(parts) == 4 && parts[3] == "read" && r.Method == http.MethodPost {
			roomHandlers.MarkRead(w, r)
			return
		}

		// /rooms/{id}/messages
		if len(parts) == 4 && parts[3] == "messages" && r.Method == http.MethodGet {
			roomHandlers.GetMessages(w, r)
			return
		}

		http.Error(w, "endpoint not found", http.StatusNotFound)
	})

	mux.HandleFunc("/messages", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		messageHandlers.SendMessage(w, r)
	})

	mux.HandleFunc("/ws", wsHandlers.HandleWebSocket)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
