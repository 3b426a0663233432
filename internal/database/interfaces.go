package database

import (
	"context"
	"errors"

	"chat-sync/internal/models"
)

// ErrNotFound is returned by ProfileRPC when no profile exists for the identifier.
var ErrNotFound = errors.New("not found")

type RoomBackend interface {
	ListRooms(ctx context.Context, actorID string) ([]models.Room, error)
	MarkRead(ctx context.Context, actorID, roomID string) error
}

type MessageBackend interface {
	FetchMessages(ctx context.Context, roomID string) ([]models.Message, error)
	// InsertMessage durably writes a message and returns it with the
	// server-assigned identifier and timestamps.
	InsertMessage(ctx context.Context, roomID, senderID, content string) (models.Message, error)
}

// ProfileStore is a batch profile read. Missing keys in the result mean not found.
type ProfileStore interface {
	LookupProfiles(ctx context.Context, userIDs []string) (map[string]models.Profile, error)
}

// ProfileRPC is the single-identifier fallback lookup.
type ProfileRPC interface {
	LookupProfileRPC(ctx context.Context, userID string) (models.Profile, error)
}

// SetupProber checks that the remote procedures the core depends on exist.
type SetupProber interface {
	Probe(ctx context.Context) error
}

type Backend interface {
	RoomBackend
	MessageBackend
	ProfileStore
	ProfileRPC
	SetupProber
	Close() error
}
