package services

import (
	"errors"
	"fmt"

	"chat-sync/internal/models"
)

var (
	ErrEmptyContent    = models.ErrEmptyContent
	ErrNoActiveRoom    = errors.New("no active room")
	ErrUnauthenticated = errors.New("no authenticated actor")
	ErrSessionClosed   = errors.New("session closed")
)

// SetupError means the backing remote procedures are missing or misconfigured.
// It is fatal to every operation of the session and is never retried.
type SetupError struct {
	Hint string
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("database setup required: %v (%s)", e.Err, e.Hint)
}

func (e *SetupError) Unwrap() error { return e.Err }

// TransientFetchError means a single read failed. Local state was left
// unchanged and the caller may retry.
type TransientFetchError struct {
	Op     string
	RoomID string
	Err    error
}

func (e *TransientFetchError) Error() string {
	if e.RoomID != "" {
		return fmt.Sprintf("%s for room %s failed: %v", e.Op, e.RoomID, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// SendFailure means the durable insert failed after the optimistic entry was
// shown. The entry has been rolled back; the room preview has not.
type SendFailure struct {
	RoomID string
	TempID string
	Err    error
}

func (e *SendFailure) Error() string {
	return fmt.Sprintf("send to room %s failed: %v", e.RoomID, e.Err)
}

func (e *SendFailure) Unwrap() error { return e.Err }
