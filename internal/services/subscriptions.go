package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"chat-sync/internal/identity"
	"chat-sync/internal/models"
	"chat-sync/internal/pubsub"
	"chat-sync/internal/store"
	"chat-sync/pkg/logger"

	"github.com/rs/zerolog"
)

// SubscriptionManager owns the push subscriptions of one session: a single
// room slot that follows the active room, and the directory subscription.
type SubscriptionManager struct {
	transport pubsub.Transport
	store     *store.Store
	directory *Directory
	resolver  *identity.Resolver
	actor     *models.Actor
	log       zerolog.Logger

	// onDirectoryChange runs for every directory event.
	onDirectoryChange func(ctx context.Context)

	mu         sync.Mutex
	roomHandle pubsub.Handle
	dirHandle  pubsub.Handle
	closed     bool

	// attached is read by event handlers without taking mu.
	attached atomic.Pointer[string]

	ctx    context.Context
	cancel context.CancelFunc

	asyncMu     sync.RWMutex
	asyncClosed bool
	wg          sync.WaitGroup
}

func NewSubscriptionManager(transport pubsub.Transport, st *store.Store, dir *Directory, resolver *identity.Resolver, actor *models.Actor) *SubscriptionManager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &SubscriptionManager{
		transport: transport,
		store:     st,
		directory: dir,
		resolver:  resolver,
		actor:     actor,
		log:       logger.Component("subscriptions"),
		ctx:       ctx,
		cancel:    cancel,
	}
	empty := ""
	m.attached.Store(&empty)
	return m
}

// OnDirectoryChange sets the callback for directory events. It must be set
// before AttachDirectory.
func (m *SubscriptionManager) OnDirectoryChange(fn func(ctx context.Context)) {
	m.onDirectoryChange = fn
}

// Attached returns the room the slot currently follows, or "".
func (m *SubscriptionManager) Attached() string {
	return *m.attached.Load()
}

// Attach points the room slot at roomID. The previous subscription is closed
// before the new one is opened, so at most one room subscription is live.
func (m *SubscriptionManager) Attach(ctx context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrSessionClosed
	}
	if m.roomHandle != nil && m.Attached() == roomID {
		return nil
	}

	m.detachLocked()
	m.setAttached(roomID)

	h, err := m.transport.Subscribe(ctx, pubsub.RoomTopic(roomID), pubsub.Filter{
		EventTypes: []string{string(models.EventMessageInsert)},
	}, m.handleRoomEvent)
	if err != nil {
		m.setAttached("")
		return fmt.Errorf("failed to subscribe to room %s: %w", roomID, err)
	}
	m.roomHandle = h

	m.log.Debug().Str("room_id", roomID).Msg("room subscription attached")
	return nil
}

func (m *SubscriptionManager) Detach() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.detachLocked()
	return nil
}

func (m *SubscriptionManager) detachLocked() {
	if m.roomHandle != nil {
		if err := m.transport.Unsubscribe(m.roomHandle); err != nil {
			m.log.Warn().Err(err).Str("topic", m.roomHandle.Topic()).Msg("failed to close room subscription")
		}
		m.roomHandle = nil
	}
	m.setAttached("")
}

func (m *SubscriptionManager) setAttached(roomID string) {
	m.attached.Store(&roomID)
}

// AttachDirectory opens the directory subscription once.
func (m *SubscriptionManager) AttachDirectory(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrSessionClosed
	}
	if m.dirHandle != nil {
		return nil
	}

	h, err := m.transport.Subscribe(ctx, pubsub.DirectoryTopic, pubsub.Filter{}, m.handleDirectoryEvent)
	if err != nil {
		return fmt.Errorf("failed to subscribe to directory: %w", err)
	}
	m.dirHandle = h
	return nil
}

func (m *SubscriptionManager) handleDirectoryEvent(ctx context.Context, e *pubsub.Event) {
	if m.onDirectoryChange == nil {
		return
	}
	m.onDirectoryChange(m.ctx)
}

func (m *SubscriptionManager) handleRoomEvent(ctx context.Context, e *pubsub.Event) {
	var payload models.MessageEvent
	if err := e.UnmarshalPayload(&payload); err != nil {
		m.log.Warn().Err(err).Str("topic", e.Topic).Msg("dropping undecodable message event")
		return
	}
	if payload.RoomID == "" {
		payload.RoomID = e.RoomID
	}

	msg, err := payload.Message()
	if err != nil {
		m.log.Warn().Err(err).Str("topic", e.Topic).Msg("dropping invalid message event")
		return
	}
	m.HandleMessage(ctx, msg)
}

// HandleMessage applies a pushed message to the store. Messages for a room
// other than the attached one are ignored and reported as Duplicate.
func (m *SubscriptionManager) HandleMessage(ctx context.Context, msg models.Message) store.MergeResult {
	if msg.RoomID == "" || msg.RoomID != m.Attached() {
		return store.Duplicate
	}

	resolve := false
	switch {
	case m.actor != nil && msg.SenderID == m.actor.ID:
		msg.Sender = m.actor.Metadata
	default:
		if meta, ok := m.resolver.Cached(msg.SenderID); ok {
			msg.Sender = meta
		} else {
			msg.Sender = models.PlaceholderSender(msg.SenderID)
			resolve = true
		}
	}

	result := m.store.Merge(msg.RoomID, msg)
	if result == store.Duplicate {
		return result
	}

	m.directory.Touch(msg.RoomID, msg.Content, msg.CreatedAt)
	if resolve {
		m.ResolveAsync(msg.RoomID, msg.SenderID)
	}
	return result
}

// ResolveAsync resolves each sender in the background and patches the room's
// placeholder entries once metadata is known. It is a no-op after Close.
func (m *SubscriptionManager) ResolveAsync(roomID string, senderIDs ...string) {
	m.asyncMu.RLock()
	defer m.asyncMu.RUnlock()

	if m.asyncClosed {
		return
	}
	for _, id := range senderIDs {
		m.wg.Add(1)
		go func(senderID string) {
			defer m.wg.Done()
			meta := m.resolver.Resolve(m.ctx, senderID)
			m.store.PatchSender(roomID, senderID, meta)
		}(id)
	}
}

// Close drops both subscriptions and waits for pending resolutions.
func (m *SubscriptionManager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.detachLocked()
	if m.dirHandle != nil {
		if err := m.transport.Unsubscribe(m.dirHandle); err != nil {
			m.log.Warn().Err(err).Msg("failed to close directory subscription")
		}
		m.dirHandle = nil
	}
	m.mu.Unlock()

	m.cancel()

	m.asyncMu.Lock()
	m.asyncClosed = true
	m.asyncMu.Unlock()

	m.wg.Wait()
	return nil
}
