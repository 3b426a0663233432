package websocket

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"chat-sync/internal/models"
	"chat-sync/pkg/logger"
)

// SnapshotSource is the session state a hub streams to its viewers.
type SnapshotSource interface {
	Messages(roomID string) []models.Message
	Rooms() []models.Room
	ActiveRoom() string
	Watch(fn func(roomID string)) (cancel func())
}

// Hub fans room snapshots of one actor's session out to every viewer of
// that actor.
type Hub struct {
	clients    map[*Viewer]bool
	broadcast  chan []byte
	register   chan *Viewer
	unregister chan *Viewer

	actorID string
	source  SnapshotSource

	viewers      atomic.Int32
	lastActivity atomic.Int64
	stopWatch    func()
	done         chan struct{}
	once         sync.Once
}

func NewHub(actorID string, source SnapshotSource) *Hub {
	h := &Hub{
		clients:    make(map[*Viewer]bool),
		broadcast:  make(chan []byte, sendBuffer),
		register:   make(chan *Viewer),
		unregister: make(chan *Viewer),
		actorID:    actorID,
		source:     source,
		done:       make(chan struct{}),
	}
	h.lastActivity.Store(time.Now().UnixNano())
	h.stopWatch = source.Watch(h.Publish)
	return h
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.viewers.Store(0)
			return

		case client := <-h.register:
			h.clients[client] = true
			h.viewers.Store(int32(len(h.clients)))
			h.touch()
			if data, ok := h.snapshot(h.source.ActiveRoom()); ok {
				h.deliver(client, data)
			}
			logger.Info("Viewer %s attached to session %s", client.id, h.actorID)

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.viewers.Store(int32(len(h.clients)))
				logger.Info("Viewer %s left session %s", client.id, h.actorID)
			}

		case message := <-h.broadcast:
			h.touch()
			for client := range h.clients {
				h.deliver(client, message)
			}
		}
	}
}

// deliver drops viewers that cannot keep up.
func (h *Hub) deliver(client *Viewer, message []byte) {
	select {
	case client.send <- message:
	default:
		close(client.send)
		delete(h.clients, client)
		h.viewers.Store(int32(len(h.clients)))
	}
}

// Add registers a viewer. It reports false if the hub has shut down.
func (h *Hub) Add(v *Viewer) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.register <- v:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Remove(v *Viewer) {
	select {
	case h.unregister <- v:
	case <-h.done:
	}
}

// Publish queues a snapshot of roomID for every viewer.
func (h *Hub) Publish(roomID string) {
	data, ok := h.snapshot(roomID)
	if !ok {
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.done:
	}
}

func (h *Hub) snapshot(roomID string) ([]byte, bool) {
	if roomID == "" {
		return nil, false
	}
	snap := models.RoomSnapshot{
		Type:     models.EventRoomSnapshot,
		RoomID:   roomID,
		Messages: h.source.Messages(roomID),
		Rooms:    h.source.Rooms(),
	}
	data, err := json.Marshal(snap)
	if err != nil {
		logger.Error("Error marshaling room snapshot: %v", err)
		return nil, false
	}
	return data, true
}

func (h *Hub) touch() {
	h.lastActivity.Store(time.Now().UnixNano())
}

func (h *Hub) ViewerCount() int {
	return int(h.viewers.Load())
}

func (h *Hub) LastActivity() time.Time {
	return time.Unix(0, h.lastActivity.Load())
}

func (h *Hub) Shutdown() {
	h.once.Do(func() {
		h.stopWatch()
		close(h.done)
	})
}

// Manager keeps one hub per actor.
type Manager struct {
	hubs  map[string]*Hub
	mutex sync.Mutex
	stop  chan struct{}
	once  sync.Once
}

func NewManager() *Manager {
	manager := &Manager{
		hubs: make(map[string]*Hub),
		stop: make(chan struct{}),
	}

	go manager.cleanupUnusedHubs()
	return manager
}

// GetHub returns the actor's hub, starting one fed by source if needed.
func (m *Manager) GetHub(actorID string, source SnapshotSource) *Hub {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	hub, exists := m.hubs[actorID]
	if !exists || hub.source != source {
		if exists {
			hub.Shutdown()
		}
		hub = NewHub(actorID, source)
		m.hubs[actorID] = hub
		go hub.Run()
	}
	return hub
}

// CleanupUnused shuts down hubs without viewers that have been quiet for
// longer than idle, and returns how many were removed.
func (m *Manager) CleanupUnused(idle time.Duration) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	n := 0
	for actorID, hub := range m.hubs {
		if hub.ViewerCount() == 0 && time.Since(hub.LastActivity()) > idle {
			hub.Shutdown()
			delete(m.hubs, actorID)
			logger.Debug("Cleaned up unused hub for actor %s", actorID)
			n++
		}
	}
	return n
}

func (m *Manager) cleanupUnusedHubs() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.CleanupUnused(5 * time.Minute)
		}
	}
}

func (m *Manager) Shutdown() {
	m.once.Do(func() { close(m.stop) })

	m.mutex.Lock()
	defer m.mutex.Unlock()
	for actorID, hub := range m.hubs {
		hub.Shutdown()
		delete(m.hubs, actorID)
	}
}
