package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"chat-sync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupGateProbesOnce(t *testing.T) {
	backend := newFakeBackend()
	backend.probeErr = errors.New("function chat_list_rooms(uuid) does not exist")
	gate := NewSetupGate(backend)

	err := gate.Check(context.Background())
	var setupErr *SetupError
	require.ErrorAs(t, err, &setupErr)
	assert.NotEmpty(t, setupErr.Hint)

	backend.probeErr = nil
	assert.ErrorAs(t, gate.Check(context.Background()), &setupErr)
	assert.Equal(t, 1, backend.probes)
	assert.False(t, gate.Ready())
}

func TestSetupGateDoesNotCacheCancellation(t *testing.T) {
	backend := newFakeBackend()
	backend.probeErr = context.Canceled
	gate := NewSetupGate(backend)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, gate.Check(ctx), context.Canceled)

	backend.probeErr = nil
	require.NoError(t, gate.Check(context.Background()))
	assert.True(t, gate.Ready())
	assert.Equal(t, 2, backend.probes)
}

func TestSetupGateNilProberPasses(t *testing.T) {
	assert.NoError(t, NewSetupGate(nil).Check(context.Background()))
}

func TestListRoomsEmpty(t *testing.T) {
	backend := newFakeBackend()
	dir := NewDirectory(backend, NewSetupGate(backend), "me")

	rooms, err := dir.ListRooms(context.Background())

	require.NoError(t, err)
	assert.Empty(t, rooms)
	assert.Empty(t, dir.Active())
}

func TestListRoomsActivatesFirstRoom(t *testing.T) {
	backend := newFakeBackend()
	backend.rooms = []models.Room{{ID: "r1", UnreadCount: 3}, {ID: "r2", UnreadCount: 1}}
	dir := NewDirectory(backend, NewSetupGate(backend), "me")

	rooms, err := dir.ListRooms(context.Background())

	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "r1", dir.Active())
	assert.Zero(t, rooms[0].UnreadCount)
	assert.Equal(t, 1, rooms[1].UnreadCount)
}

func TestListRoomsKeepsActiveRoom(t *testing.T) {
	backend := newFakeBackend()
	backend.rooms = []models.Room{{ID: "r1"}, {ID: "r2", UnreadCount: 4}}
	dir := NewDirectory(backend, NewSetupGate(backend), "me")
	dir.SetActive("r2")

	rooms, err := dir.ListRooms(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "r2", dir.Active())
	assert.Zero(t, rooms[1].UnreadCount)
}

func TestListRoomsFailureKeepsState(t *testing.T) {
	backend := newFakeBackend()
	backend.rooms = []models.Room{{ID: "r1"}}
	dir := NewDirectory(backend, NewSetupGate(backend), "me")
	_, err := dir.ListRooms(context.Background())
	require.NoError(t, err)

	backend.listErr = errBackend
	_, err = dir.ListRooms(context.Background())

	var fetchErr *TransientFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.ErrorIs(t, err, errBackend)
	assert.Len(t, dir.Rooms(), 1)
}

func TestListRoomsSetupFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.probeErr = errors.New("missing procedure")
	dir := NewDirectory(backend, NewSetupGate(backend), "me")

	_, err := dir.ListRooms(context.Background())

	var setupErr *SetupError
	assert.ErrorAs(t, err, &setupErr)
}

func TestMarkRead(t *testing.T) {
	backend := newFakeBackend()
	backend.rooms = []models.Room{{ID: "r1"}, {ID: "r2", UnreadCount: 5}}
	dir := NewDirectory(backend, NewSetupGate(backend), "me")
	_, err := dir.ListRooms(context.Background())
	require.NoError(t, err)

	t.Run("failure leaves unread count", func(t *testing.T) {
		backend.markReadErr = errBackend
		assert.ErrorIs(t, dir.MarkRead(context.Background(), "r2"), errBackend)
		r, ok := dir.Room("r2")
		require.True(t, ok)
		assert.Equal(t, 5, r.UnreadCount)
	})

	t.Run("success zeroes unread count", func(t *testing.T) {
		backend.markReadErr = nil
		require.NoError(t, dir.MarkRead(context.Background(), "r2"))
		r, _ := dir.Room("r2")
		assert.Zero(t, r.UnreadCount)
	})
}

func TestTouchNeverMovesPreviewBack(t *testing.T) {
	backend := newFakeBackend()
	backend.rooms = []models.Room{{ID: "r1"}}
	dir := NewDirectory(backend, NewSetupGate(backend), "me")
	_, err := dir.ListRooms(context.Background())
	require.NoError(t, err)

	now := time.Now()
	dir.Touch("r1", "newer", now)
	dir.Touch("r1", "older", now.Add(-time.Minute))
	dir.Touch("missing", "ignored", now)

	r, _ := dir.Room("r1")
	assert.Equal(t, "newer", r.LastMessage)
	assert.Equal(t, now, r.LastMessageAt)
}

func TestSetActiveReturnsPrevious(t *testing.T) {
	dir := NewDirectory(newFakeBackend(), nil, "me")

	assert.Equal(t, "", dir.SetActive("r1"))
	assert.Equal(t, "r1", dir.SetActive("r2"))
	assert.Equal(t, "r2", dir.Active())
}
