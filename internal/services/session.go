package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"chat-sync/internal/database"
	"chat-sync/internal/identity"
	"chat-sync/internal/models"
	"chat-sync/internal/pubsub"
	"chat-sync/internal/store"
	"chat-sync/pkg/logger"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// SessionDeps are the collaborators shared by every session.
type SessionDeps struct {
	Backend         database.Backend
	Transport       pubsub.Transport
	Gate            *SetupGate
	DuplicateWindow time.Duration
}

// Session ties the sync components together for one authenticated actor.
type Session struct {
	actor     *models.Actor
	backend   database.Backend
	gate      *SetupGate
	directory *Directory
	store     *store.Store
	resolver  *identity.Resolver
	pipeline  *Pipeline
	subs      *SubscriptionManager
	log       zerolog.Logger

	watchMu  sync.RWMutex
	watchers map[int]func(roomID string)
	nextID   int
	watching atomic.Int32

	lastUsed atomic.Int64
	closed   atomic.Bool
}

func NewSession(actor *models.Actor, deps SessionDeps) (*Session, error) {
	if actor == nil || actor.ID == "" {
		return nil, ErrUnauthenticated
	}
	gate := deps.Gate
	if gate == nil {
		gate = NewSetupGate(deps.Backend)
	}

	s := &Session{
		actor:    actor,
		backend:  deps.Backend,
		gate:     gate,
		store:    store.New(store.WithDuplicateWindow(deps.DuplicateWindow)),
		resolver: identity.NewDefaultResolver(deps.Backend, deps.Backend),
		watchers: make(map[int]func(string)),
		log:      logger.Component("session").With().Str("actor_id", actor.ID).Logger(),
	}
	s.resolver.Seed(actor.ID, actor.Metadata)
	s.store.OnChange(s.notifyWatchers)

	s.directory = NewDirectory(deps.Backend, gate, actor.ID)
	s.pipeline = NewPipeline(deps.Backend, s.store, s.directory, gate, actor)
	s.subs = NewSubscriptionManager(deps.Transport, s.store, s.directory, s.resolver, actor)
	s.subs.OnDirectoryChange(func(ctx context.Context) {
		if _, err := s.RefreshRooms(ctx); err != nil {
			s.log.Warn().Err(err).Msg("directory refresh after push event failed")
		}
	})

	s.touch()
	return s, nil
}

// Open runs the setup gate, then opens the directory subscription and loads
// the directory in parallel.
func (s *Session) Open(ctx context.Context) error {
	if err := s.gate.Check(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.subs.AttachDirectory(gctx)
	})
	g.Go(func() error {
		_, err := s.RefreshRooms(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	s.log.Info().Int("rooms", len(s.directory.Rooms())).Str("active_room", s.directory.Active()).Msg("session opened")
	return nil
}

// RefreshRooms reloads the directory. When the refresh leaves an active room
// that is not yet attached, that room is activated.
func (s *Session) RefreshRooms(ctx context.Context) ([]models.Room, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	s.touch()

	rooms, err := s.directory.ListRooms(ctx)
	if err != nil {
		return nil, err
	}

	if active := s.directory.Active(); active != "" && s.subs.Attached() != active {
		if err := s.SetActiveRoom(ctx, active); err != nil {
			return rooms, err
		}
	}
	return rooms, nil
}

// SetActiveRoom switches the active room, moves the room subscription and
// fetches the room's history if it has not been loaded yet. A room that only
// holds push events or pending sends is still fetched.
func (s *Session) SetActiveRoom(ctx context.Context, roomID string) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if roomID == "" {
		return ErrNoActiveRoom
	}
	s.touch()

	s.directory.SetActive(roomID)
	if err := s.subs.Attach(ctx, roomID); err != nil {
		return err
	}
	if s.store.Loaded(roomID) {
		return nil
	}
	return s.populate(ctx, roomID)
}

func (s *Session) populate(ctx context.Context, roomID string) error {
	if err := s.gate.Check(ctx); err != nil {
		return err
	}

	msgs, err := s.backend.FetchMessages(ctx, roomID)
	if err != nil {
		if s.directory.Active() != roomID {
			s.log.Debug().Err(err).Str("room_id", roomID).Msg("ignoring failed fetch for inactive room")
			return nil
		}
		return &TransientFetchError{Op: "fetch messages", RoomID: roomID, Err: err}
	}
	if s.directory.Active() != roomID {
		s.log.Debug().Str("room_id", roomID).Msg("dropping stale fetch result")
		return nil
	}

	seen := make(map[string]bool)
	var senders []string
	for _, m := range msgs {
		if m.SenderID == s.actor.ID || seen[m.SenderID] {
			continue
		}
		seen[m.SenderID] = true
		senders = append(senders, m.SenderID)
	}
	s.resolver.Preload(ctx, senders)

	var unresolved []string
	pending := make(map[string]bool)
	for i := range msgs {
		m := &msgs[i]
		if m.SenderID == s.actor.ID {
			m.Sender = s.actor.Metadata
			continue
		}
		if meta, ok := s.resolver.Cached(m.SenderID); ok {
			m.Sender = meta
			continue
		}
		m.Sender = models.PlaceholderSender(m.SenderID)
		if !pending[m.SenderID] {
			pending[m.SenderID] = true
			unresolved = append(unresolved, m.SenderID)
		}
	}

	if s.directory.Active() != roomID {
		s.log.Debug().Str("room_id", roomID).Msg("dropping stale fetch result")
		return nil
	}
	s.store.Load(roomID, msgs)
	s.subs.ResolveAsync(roomID, unresolved...)
	return nil
}

// Send posts content to the active room.
func (s *Session) Send(ctx context.Context, content string) (*Outbound, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	s.touch()
	return s.pipeline.Send(ctx, s.directory.Active(), content)
}

// MarkRead marks roomID read, or the active room when roomID is empty.
func (s *Session) MarkRead(ctx context.Context, roomID string) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	s.touch()
	if roomID == "" {
		roomID = s.directory.Active()
	}
	if roomID == "" {
		return ErrNoActiveRoom
	}
	return s.directory.MarkRead(ctx, roomID)
}

// Messages returns the room's messages, or the active room's when roomID is
// empty.
func (s *Session) Messages(roomID string) []models.Message {
	s.touch()
	if roomID == "" {
		roomID = s.directory.Active()
	}
	return s.store.Get(roomID)
}

func (s *Session) Rooms() []models.Room {
	s.touch()
	return s.directory.Rooms()
}

func (s *Session) ActiveRoom() string {
	return s.directory.Active()
}

func (s *Session) Actor() *models.Actor {
	return s.actor
}

func (s *Session) InFlight() int {
	return s.pipeline.InFlight()
}

// Watch registers fn to run after every change to a room's messages. The
// returned function removes it.
func (s *Session) Watch(fn func(roomID string)) (cancel func()) {
	s.watchMu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.watching.Add(1)
	s.watchMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.watchMu.Lock()
			delete(s.watchers, id)
			s.watching.Add(-1)
			s.watchMu.Unlock()
		})
	}
}

// Watching returns the number of registered watchers.
func (s *Session) Watching() int {
	return int(s.watching.Load())
}

func (s *Session) notifyWatchers(roomID string) {
	s.watchMu.RLock()
	fns := make([]func(string), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.watchMu.RUnlock()

	for _, fn := range fns {
		fn(roomID)
	}
}

// LastUsed is the time of the last operation on the session.
func (s *Session) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

func (s *Session) touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}

func (s *Session) Closed() bool {
	return s.closed.Load()
}

func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	err := s.subs.Close()
	s.log.Info().Msg("session closed")
	return err
}
