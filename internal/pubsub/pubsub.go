package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	roomTopicFormat = "chat:room:%s:messages"

	// DirectoryTopic carries any change to the rooms collection.
	DirectoryTopic = "chat:rooms"
)

var ErrClosed = errors.New("pubsub: transport closed")

// RoomTopic is the topic carrying message inserts for one room.
func RoomTopic(roomID string) string {
	return fmt.Sprintf(roomTopicFormat, roomID)
}

// Event represents a message delivered by the push transport.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic,omitempty"`
	RoomID    string          `json:"room_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType, roomID string, payload interface{}) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:      eventType,
		RoomID:    roomID,
		Payload:   data,
		Timestamp: time.Now(),
	}, nil
}

// UnmarshalPayload unmarshals the event payload into the given struct.
func (e *Event) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// Filter restricts which events of a topic reach a handler. An empty filter
// accepts everything.
type Filter struct {
	EventTypes []string
}

func (f Filter) Match(e *Event) bool {
	if len(f.EventTypes) == 0 {
		return true
	}
	for _, t := range f.EventTypes {
		if t == e.Type {
			return true
		}
	}
	return false
}

// Handler receives events. Transports call it from their own goroutine.
type Handler func(ctx context.Context, e *Event)

// Handle identifies one live subscription.
type Handle interface {
	Topic() string
	Close() error
}

// Transport is the subscribing side of the push channel.
type Transport interface {
	Subscribe(ctx context.Context, topic string, filter Filter, fn Handler) (Handle, error)
	Unsubscribe(h Handle) error
	Close() error
}

// Publisher publishes events to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, e *Event) error
}

// Decode parses a wire event and stamps the topic it arrived on.
func Decode(topic string, data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	e.Topic = topic
	return &e, nil
}
