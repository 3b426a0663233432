package websocket

import (
	"time"

	"chat-sync/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

// Viewer is one presentation connection receiving room snapshots.
type Viewer struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string
}

func NewViewer(hub *Hub, conn *websocket.Conn) *Viewer {
	return &Viewer{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		id:   uuid.NewString(),
	}
}

func (v *Viewer) ID() string {
	return v.id
}

// ReadPump only services control frames. It returns when the peer goes away.
func (v *Viewer) ReadPump() {
	defer func() {
		v.hub.Remove(v)
		v.conn.Close()
	}()

	v.conn.SetReadLimit(maxMessageSize)
	v.conn.SetReadDeadline(time.Now().Add(pongWait))
	v.conn.SetPongHandler(func(string) error {
		v.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("Viewer %s read error: %v", v.id, err)
			}
			return
		}
	}
}

func (v *Viewer) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		v.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-v.send:
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				v.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := v.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Error("Viewer %s write error: %v", v.id, err)
				return
			}

		case <-ticker.C:
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
