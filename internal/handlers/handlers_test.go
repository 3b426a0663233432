package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"chat-sync/internal/auth"
	"chat-sync/internal/config"
	"chat-sync/internal/database"
	"chat-sync/internal/models"
	"chat-sync/internal/pubsub"
	"chat-sync/internal/services"
	ws "chat-sync/internal/websocket"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	mu        sync.Mutex
	rooms     []models.Room
	messages  map[string][]models.Message
	insertErr error
	probeErr  error
	nextID    int
}

func (b *stubBackend) ListRooms(ctx context.Context, actorID string) ([]models.Room, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.Room(nil), b.rooms...), nil
}

func (b *stubBackend) MarkRead(ctx context.Context, actorID, roomID string) error { return nil }

func (b *stubBackend) FetchMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.Message(nil), b.messages[roomID]...), nil
}

func (b *stubBackend) InsertMessage(ctx context.Context, roomID, senderID, content string) (models.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.insertErr != nil {
		return models.Message{}, b.insertErr
	}
	b.nextID++
	return models.NewMessage(fmt.Sprintf("m%d", b.nextID), roomID, senderID, content, time.Now())
}

func (b *stubBackend) LookupProfiles(ctx context.Context, ids []string) (map[string]models.Profile, error) {
	return map[string]models.Profile{}, nil
}

func (b *stubBackend) LookupProfileRPC(ctx context.Context, id string) (models.Profile, error) {
	return models.Profile{}, database.ErrNotFound
}

func (b *stubBackend) Probe(ctx context.Context) error { return b.probeErr }

func (b *stubBackend) Close() error { return nil }

type testServer struct {
	*httptest.Server
	backend *stubBackend
	token   string
}

func newTestServer(t *testing.T, backend *stubBackend) *testServer {
	t.Helper()
	if backend.messages == nil {
		backend.messages = make(map[string][]models.Message)
	}

	cfg := &config.Config{JWT: config.JWTConfig{Secret: []byte("test-secret"), ExpiresIn: time.Hour}}
	authService := auth.NewService(backend, cfg)
	registry := services.NewSessionRegistry(services.SessionDeps{
		Backend:   backend,
		Transport: pubsub.NewMemoryTransport(),
	}, time.Hour)
	hubManager := ws.NewManager()
	t.Cleanup(func() {
		hubManager.Shutdown()
		registry.Shutdown()
	})

	router := NewRouter(
		NewRoomHandlers(authService, registry),
		NewMessageHandlers(authService, registry),
		NewWebSocketHandlers(authService, registry, hubManager),
	)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	token, err := authService.IssueToken(uuid.NewString(), "Me", "me@example.com", "")
	require.NoError(t, err)

	return &testServer{Server: srv, backend: backend, token: token}
}

func (s *testServer) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+s.token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	srv := newTestServer(t, &stubBackend{})

	resp, err := http.Get(srv.URL + "/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp2, err := http.Get(srv.URL + "/rooms?token=garbage")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestListRooms(t *testing.T) {
	srv := newTestServer(t, &stubBackend{rooms: []models.Room{{ID: "r1", Name: "general"}, {ID: "r2"}}})

	resp := srv.do(t, http.MethodGet, "/rooms", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Rooms      []models.Room `json:"rooms"`
		ActiveRoom string        `json:"active_room"`
	}
	decode(t, resp, &body)
	assert.Len(t, body.Rooms, 2)
	assert.Equal(t, "r1", body.ActiveRoom)
}

func TestSendMessageThenRead(t *testing.T) {
	srv := newTestServer(t, &stubBackend{rooms: []models.Room{{ID: "r1"}}})

	resp := srv.do(t, http.MethodPost, "/messages", `{"content":"Hello"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var out struct {
		State     string          `json:"state"`
		Confirmed *models.Message `json:"confirmed"`
	}
	decode(t, resp, &out)
	assert.Equal(t, "confirmed", out.State)
	require.NotNil(t, out.Confirmed)
	assert.Equal(t, "m1", out.Confirmed.ID)

	msgs := srv.do(t, http.MethodGet, "/rooms/r1/messages", "")
	require.Equal(t, http.StatusOK, msgs.StatusCode)
	var body struct {
		Messages []models.Message `json:"messages"`
	}
	decode(t, msgs, &body)
	require.Len(t, body.Messages, 1)
	assert.Equal(t, "Hello", body.Messages[0].Content)
}

func TestSendMessageErrors(t *testing.T) {
	t.Run("empty content", func(t *testing.T) {
		srv := newTestServer(t, &stubBackend{rooms: []models.Room{{ID: "r1"}}})
		resp := srv.do(t, http.MethodPost, "/messages", `{"content":"   "}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("no active room", func(t *testing.T) {
		srv := newTestServer(t, &stubBackend{})
		resp := srv.do(t, http.MethodPost, "/messages", `{"content":"hi"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("insert failure", func(t *testing.T) {
		srv := newTestServer(t, &stubBackend{rooms: []models.Room{{ID: "r1"}}, insertErr: errors.New("db down")})
		resp := srv.do(t, http.MethodPost, "/messages", `{"content":"hi"}`)
		require.Equal(t, http.StatusBadGateway, resp.StatusCode)

		var body struct {
			Outbound struct {
				State string `json:"state"`
			} `json:"outbound"`
		}
		decode(t, resp, &body)
		assert.Equal(t, "rolled_back", body.Outbound.State)
	})

	t.Run("setup failure", func(t *testing.T) {
		srv := newTestServer(t, &stubBackend{probeErr: errors.New("missing procedure")})
		resp := srv.do(t, http.MethodPost, "/messages", `{"content":"hi"}`)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}

func TestSetActiveAndMarkRead(t *testing.T) {
	backend := &stubBackend{rooms: []models.Room{{ID: "r1"}, {ID: "r2"}}}
	backend.messages = map[string][]models.Message{}
	m, err := models.NewMessage("m9", "r2", uuid.NewString(), "earlier", time.Now())
	require.NoError(t, err)
	backend.messages["r2"] = []models.Message{m}
	srv := newTestServer(t, backend)

	resp := srv.do(t, http.MethodPost, "/rooms/r2/active", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		ActiveRoom string           `json:"active_room"`
		Messages   []models.Message `json:"messages"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "r2", body.ActiveRoom)
	assert.Len(t, body.Messages, 1)

	read := srv.do(t, http.MethodPost, "/rooms/r2/read", "")
	assert.Equal(t, http.StatusNoContent, read.StatusCode)

	refresh := srv.do(t, http.MethodPost, "/rooms/refresh", "")
	assert.Equal(t, http.StatusOK, refresh.StatusCode)

	missing := srv.do(t, http.MethodGet, "/rooms/r2/unknown", "")
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestWebSocketStreamsSnapshots(t *testing.T) {
	srv := newTestServer(t, &stubBackend{rooms: []models.Room{{ID: "r1"}}})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + srv.token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first models.RoomSnapshot
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "r1", first.RoomID)
	assert.Empty(t, first.Messages)

	resp := srv.do(t, http.MethodPost, "/messages", `{"content":"Hello"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var next models.RoomSnapshot
	require.NoError(t, conn.ReadJSON(&next))
	require.Len(t, next.Messages, 1)
	assert.Equal(t, "Hello", next.Messages[0].Content)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&services.SetupError{Err: errors.New("x")}, http.StatusServiceUnavailable},
		{&services.TransientFetchError{Op: "fetch", Err: errors.New("x")}, http.StatusBadGateway},
		{&services.SendFailure{Err: errors.New("x")}, http.StatusBadGateway},
		{services.ErrEmptyContent, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", services.ErrNoActiveRoom), http.StatusBadRequest},
		{auth.ErrInvalidToken, http.StatusUnauthorized},
		{services.ErrSessionClosed, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
