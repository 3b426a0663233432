// Package store holds the in-memory, per-room ordered message lists that the
// presentation layer reads.
package store

import (
	"sort"
	"sync"
	"time"

	"chat-sync/internal/models"
)

// DefaultDuplicateWindow is how far apart the timestamps of an optimistic entry
// and its confirmed counterpart may be while still collapsing into one.
const DefaultDuplicateWindow = 5 * time.Second

// MergeResult reports what Merge did with a message.
type MergeResult int

const (
	// Inserted means the message was new and has been added.
	Inserted MergeResult = iota
	// Reconciled means a confirmed message replaced its pending counterpart.
	Reconciled
	// Duplicate means nothing changed.
	Duplicate
)

func (r MergeResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Reconciled:
		return "reconciled"
	default:
		return "duplicate"
	}
}

// Option configures a Store.
type Option func(*Store)

// WithDuplicateWindow overrides DefaultDuplicateWindow. Non-positive values are ignored.
func WithDuplicateWindow(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.window = d
		}
	}
}

// Store is safe for concurrent use. Each room has its own lock, so mutating
// one room never waits on another.
type Store struct {
	mu        sync.Mutex
	rooms     map[string]*roomLog
	window    time.Duration
	listeners []func(roomID string)
}

type roomLog struct {
	mu       sync.RWMutex
	messages []models.Message
	loaded   bool
}

func New(opts ...Option) *Store {
	s := &Store{
		rooms:  make(map[string]*roomLog),
		window: DefaultDuplicateWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange registers fn to be called after every mutation of a room. It must
// be called before the store is shared.
func (s *Store) OnChange(fn func(roomID string)) {
	s.listeners = append(s.listeners, fn)
}

func (s *Store) Window() time.Duration {
	return s.window
}

func (s *Store) room(roomID string, create bool) *roomLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok && create {
		r = &roomLog{}
		s.rooms[roomID] = r
	}
	return r
}

func (s *Store) notify(roomID string) {
	for _, fn := range s.listeners {
		fn(roomID)
	}
}

// Get returns a copy of the room's messages in creation order.
func (s *Store) Get(roomID string) []models.Message {
	r := s.room(roomID, false)
	if r == nil {
		return []models.Message{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Loaded reports whether the room has been bulk-loaded. Messages merged from
// push events or optimistic sends do not count.
func (s *Store) Loaded(roomID string) bool {
	r := s.room(roomID, false)
	if r == nil {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// Replace sets the room's messages to msgs.
func (s *Store) Replace(roomID string, msgs []models.Message) {
	r := s.room(roomID, true)

	r.mu.Lock()
	r.messages = sorted(msgs)
	r.loaded = true
	r.mu.Unlock()

	s.notify(roomID)
}

// Load replaces the room's messages with a fetched snapshot but keeps every
// existing entry the snapshot does not cover: pending sends and push events
// that arrived while the fetch was in flight.
func (s *Store) Load(roomID string, fetched []models.Message) {
	r := s.room(roomID, true)

	r.mu.Lock()
	next := sorted(fetched)
	for _, existing := range r.messages {
		if i := s.findDuplicate(next, existing); i >= 0 {
			if next[i].Sender.IsPlaceholderFor(next[i].SenderID) && existing.HasResolvedSender() {
				next[i].Sender = existing.Sender
			}
			continue
		}
		next = insertSorted(next, existing)
	}
	r.messages = next
	r.loaded = true
	r.mu.Unlock()

	s.notify(roomID)
}

// Merge adds msg to the room unless it duplicates an existing entry. Two
// messages are duplicates if their identifiers are equal, or if sender and
// content are equal and their creation times are less than the window apart.
// A confirmed message that duplicates a pending entry takes over that entry.
func (s *Store) Merge(roomID string, msg models.Message) MergeResult {
	r := s.room(roomID, true)

	r.mu.Lock()
	result := s.mergeLocked(r, msg)
	r.mu.Unlock()

	if result != Duplicate {
		s.notify(roomID)
	}
	return result
}

func (s *Store) mergeLocked(r *roomLog, msg models.Message) MergeResult {
	i := s.findDuplicate(r.messages, msg)
	if i < 0 {
		r.messages = insertSorted(r.messages, msg)
		return Inserted
	}

	existing := r.messages[i]
	if !existing.IsPending() || msg.IsPending() {
		return Duplicate
	}

	confirmed := msg
	if !confirmed.HasResolvedSender() && existing.HasResolvedSender() {
		confirmed.Sender = existing.Sender
	}
	r.messages = append(r.messages[:i], r.messages[i+1:]...)
	r.messages = insertSorted(r.messages, confirmed)
	return Reconciled
}

// IsDuplicate reports whether Merge would treat msg as a duplicate of an
// existing entry.
func (s *Store) IsDuplicate(roomID string, msg models.Message) bool {
	r := s.room(roomID, false)
	if r == nil {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return s.findDuplicate(r.messages, msg) >= 0
}

// RemoveByTempID drops an optimistic entry. Confirmed identifiers are never
// removed through this path.
func (s *Store) RemoveByTempID(roomID, tempID string) bool {
	if !models.IsTempID(tempID) {
		return false
	}
	r := s.room(roomID, false)
	if r == nil {
		return false
	}

	r.mu.Lock()
	removed := false
	for i, m := range r.messages {
		if m.ID == tempID {
			r.messages = append(r.messages[:i], r.messages[i+1:]...)
			removed = true
			break
		}
	}
	r.mu.Unlock()

	if removed {
		s.notify(roomID)
	}
	return removed
}

// PatchSender fills in metadata on every message from senderID that still
// carries the placeholder. It returns the number of messages changed.
func (s *Store) PatchSender(roomID, senderID string, meta models.SenderMetadata) int {
	r := s.room(roomID, false)
	if r == nil {
		return 0
	}

	r.mu.Lock()
	n := 0
	for i := range r.messages {
		m := &r.messages[i]
		if m.SenderID != senderID || !m.Sender.IsPlaceholderFor(senderID) {
			continue
		}
		if m.Sender == meta {
			continue
		}
		m.Sender = meta
		n++
	}
	r.mu.Unlock()

	if n > 0 {
		s.notify(roomID)
	}
	return n
}

func (s *Store) findDuplicate(msgs []models.Message, msg models.Message) int {
	for i := range msgs {
		if msgs[i].ID == msg.ID {
			return i
		}
	}
	for i := range msgs {
		m := &msgs[i]
		if m.SenderID == msg.SenderID && m.Content == msg.Content && absDuration(m.CreatedAt.Sub(msg.CreatedAt)) < s.window {
			return i
		}
	}
	return -1
}

func sorted(msgs []models.Message) []models.Message {
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// insertSorted places msg after every entry created at or before it.
func insertSorted(msgs []models.Message, msg models.Message) []models.Message {
	i := sort.Search(len(msgs), func(i int) bool {
		return msgs[i].CreatedAt.After(msg.CreatedAt)
	})
	msgs = append(msgs, models.Message{})
	copy(msgs[i+1:], msgs[i:])
	msgs[i] = msg
	return msgs
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
