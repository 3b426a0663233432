package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chat-sync/internal/database"
	"chat-sync/internal/models"
)

var errBackend = errors.New("backend unavailable")

type fakeBackend struct {
	mu sync.Mutex

	rooms       []models.Room
	listErr     error
	markReadErr error
	markReads   []string

	messages map[string][]models.Message
	fetchErr error
	// fetchGate, when set for a room, blocks FetchMessages until closed.
	fetchGate map[string]chan struct{}
	fetches   []string

	insertErr error
	// insertHook runs before InsertMessage returns.
	insertHook func(m models.Message)
	inserted   []models.Message
	nextID     int
	clock      time.Time

	profiles map[string]models.Profile
	rpc      map[string]models.Profile
	lookups  int

	probeErr error
	probes   int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		messages:  make(map[string][]models.Message),
		fetchGate: make(map[string]chan struct{}),
		profiles:  make(map[string]models.Profile),
		rpc:       make(map[string]models.Profile),
		clock:     time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC),
	}
}

func (f *fakeBackend) ListRooms(ctx context.Context, actorID string) ([]models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]models.Room(nil), f.rooms...), nil
}

func (f *fakeBackend) MarkRead(ctx context.Context, actorID, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReads = append(f.markReads, roomID)
	return f.markReadErr
}

func (f *fakeBackend) FetchMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	f.mu.Lock()
	f.fetches = append(f.fetches, roomID)
	gate := f.fetchGate[roomID]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return append([]models.Message(nil), f.messages[roomID]...), nil
}

func (f *fakeBackend) InsertMessage(ctx context.Context, roomID, senderID, content string) (models.Message, error) {
	f.mu.Lock()
	if f.insertErr != nil {
		err := f.insertErr
		f.mu.Unlock()
		return models.Message{}, err
	}
	f.nextID++
	m, err := models.NewMessage(fmt.Sprintf("m%d", f.nextID), roomID, senderID, content, f.clock)
	if err != nil {
		f.mu.Unlock()
		return models.Message{}, err
	}
	f.inserted = append(f.inserted, m)
	hook := f.insertHook
	f.mu.Unlock()

	if hook != nil {
		hook(m)
	}
	return m, nil
}

func (f *fakeBackend) LookupProfiles(ctx context.Context, ids []string) (map[string]models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	out := make(map[string]models.Profile)
	for _, id := range ids {
		if p, ok := f.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (f *fakeBackend) LookupProfileRPC(ctx context.Context, id string) (models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rpc[id]
	if !ok {
		return models.Profile{}, database.ErrNotFound
	}
	return p, nil
}

func (f *fakeBackend) Probe(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	return f.probeErr
}

func (f *fakeBackend) Close() error { return nil }

func (f *fakeBackend) setProfile(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[id] = models.Profile{ID: id, DisplayName: name}
}

func (f *fakeBackend) fetchCount(roomID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.fetches {
		if r == roomID {
			n++
		}
	}
	return n
}

func mustMessage(id, roomID, senderID, content string, at time.Time) models.Message {
	m, err := models.NewMessage(id, roomID, senderID, content, at)
	if err != nil {
		panic(err)
	}
	return m
}

var testActor = models.NewActor("me", "Me", "me@example.com", "")
