package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TempIDPrefix marks client-assigned identifiers of messages that the durable
// store has not confirmed yet. Durable identifiers are bare UUIDs.
const TempIDPrefix = "temp-"

var ErrEmptyContent = errors.New("message content is empty")

type Room struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	LastMessage   string    `json:"last_message,omitempty"`
	LastMessageAt time.Time `json:"last_message_at,omitempty"`
	UnreadCount   int       `json:"unread_count"`
}

type Message struct {
	ID        string         `json:"id"`
	RoomID    string         `json:"room_id"`
	SenderID  string         `json:"sender_id"`
	Content   string         `json:"content"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Sender    SenderMetadata `json:"sender"`
}

// NewMessage builds a message with placeholder sender metadata. Content is
// trimmed and must not be empty.
func NewMessage(id, roomID, senderID, content string, createdAt time.Time) (Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Message{}, ErrEmptyContent
	}
	return Message{
		ID:        id,
		RoomID:    roomID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
		Sender:    PlaceholderSender(senderID),
	}, nil
}

// NewTempID returns an identifier for an optimistic entry.
func NewTempID() string {
	return TempIDPrefix + uuid.NewString()
}

// IsTempID reports whether id was produced by NewTempID.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// IsPending reports whether the message is still an optimistic entry.
func (m Message) IsPending() bool {
	return IsTempID(m.ID)
}

// HasResolvedSender reports whether the sender metadata came from a real
// identity source rather than the placeholder.
func (m Message) HasResolvedSender() bool {
	return m.Sender.Name != "" && !m.Sender.IsPlaceholderFor(m.SenderID)
}
