package models

import (
	"fmt"
	"time"
)

// Message converts the push payload into a Message with placeholder sender
// metadata. Timestamps are RFC 3339 with optional fractional seconds.
func (e MessageEvent) Message() (Message, error) {
	created, err := time.Parse(time.RFC3339Nano, e.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("invalid created_at %q: %w", e.CreatedAt, err)
	}
	msg, err := NewMessage(e.ID, e.RoomID, e.SenderID, e.Content, created)
	if err != nil {
		return Message{}, err
	}
	if e.UpdatedAt != "" {
		if updated, err := time.Parse(time.RFC3339Nano, e.UpdatedAt); err == nil {
			msg.UpdatedAt = updated
		}
	}
	return msg, nil
}

// NewMessageEvent is the inverse of MessageEvent.Message.
func NewMessageEvent(m Message) MessageEvent {
	return MessageEvent{
		ID:        m.ID,
		RoomID:    m.RoomID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt: m.UpdatedAt.Format(time.RFC3339Nano),
	}
}
