package services

import (
	"context"
	"sync"
	"time"

	"chat-sync/internal/database"
	"chat-sync/internal/models"
)

// Directory is the list of rooms the actor can access, with previews and
// unread counters, plus the currently active room.
type Directory struct {
	backend database.RoomBackend
	gate    *SetupGate
	actorID string

	mu     sync.RWMutex
	rooms  []models.Room
	index  map[string]int
	active string
}

func NewDirectory(backend database.RoomBackend, gate *SetupGate, actorID string) *Directory {
	return &Directory{
		backend: backend,
		gate:    gate,
		actorID: actorID,
		index:   make(map[string]int),
	}
}

// ListRooms refreshes the directory from the backend. If no room is active,
// the first returned room becomes active.
func (d *Directory) ListRooms(ctx context.Context) ([]models.Room, error) {
	if err := d.gate.Check(ctx); err != nil {
		return nil, err
	}

	rooms, err := d.backend.ListRooms(ctx, d.actorID)
	if err != nil {
		return nil, &TransientFetchError{Op: "list rooms", Err: err}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.rooms = make([]models.Room, len(rooms))
	copy(d.rooms, rooms)
	d.index = make(map[string]int, len(rooms))
	for i, r := range d.rooms {
		d.index[r.ID] = i
	}

	if d.active == "" && len(d.rooms) > 0 {
		d.active = d.rooms[0].ID
	}
	if i, ok := d.index[d.active]; ok {
		d.rooms[i].UnreadCount = 0
	}

	return d.snapshotLocked(), nil
}

// MarkRead zeroes the room's unread counter once the backend accepts it.
// On failure local state is untouched.
func (d *Directory) MarkRead(ctx context.Context, roomID string) error {
	if err := d.gate.Check(ctx); err != nil {
		return err
	}

	if err := d.backend.MarkRead(ctx, d.actorID, roomID); err != nil {
		return err
	}

	d.mu.Lock()
	if i, ok := d.index[roomID]; ok {
		d.rooms[i].UnreadCount = 0
	}
	d.mu.Unlock()
	return nil
}

// SetActive makes roomID the active room and returns the previous one.
func (d *Directory) SetActive(roomID string) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev := d.active
	d.active = roomID
	if i, ok := d.index[roomID]; ok {
		d.rooms[i].UnreadCount = 0
	}
	return prev
}

func (d *Directory) Active() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.active
}

// Touch records a new last message for the room. Older timestamps never
// replace a newer preview. The active room's unread count stays at 0.
func (d *Directory) Touch(roomID, preview string, at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	i, ok := d.index[roomID]
	if !ok {
		return
	}
	r := &d.rooms[i]
	if !at.Before(r.LastMessageAt) {
		r.LastMessage = preview
		r.LastMessageAt = at
	}
	if roomID == d.active {
		r.UnreadCount = 0
	}
}

func (d *Directory) Rooms() []models.Room {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshotLocked()
}

func (d *Directory) Room(roomID string) (models.Room, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	i, ok := d.index[roomID]
	if !ok {
		return models.Room{}, false
	}
	return d.rooms[i], true
}

func (d *Directory) snapshotLocked() []models.Room {
	out := make([]models.Room, len(d.rooms))
	copy(out, d.rooms)
	return out
}
