package models

type EventType string

const (
	EventMessageInsert   EventType = "message.insert"
	EventDirectoryChange EventType = "rooms.change"
	EventRoomSnapshot    EventType = "room.snapshot"
)

// MessageEvent is the payload of a message.insert push event: the row as the
// durable store wrote it.
type MessageEvent struct {
	ID        string `json:"id"`
	RoomID    string `json:"room_id"`
	SenderID  string `json:"sender_id"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// DirectoryEvent is the payload of a rooms.change push event. Receivers
// refresh the whole directory, so the fields are informational.
type DirectoryEvent struct {
	Operation string `json:"operation,omitempty"`
	RoomID    string `json:"room_id,omitempty"`
}

// RoomSnapshot is pushed to presentation clients whenever a room's message
// list changes.
type RoomSnapshot struct {
	Type     EventType `json:"type"`
	RoomID   string    `json:"room_id"`
	Messages []Message `json:"messages"`
	Rooms    []Room    `json:"rooms,omitempty"`
}
