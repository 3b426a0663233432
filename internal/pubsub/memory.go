package pubsub

import (
	"context"
	"sync"
)

// MemoryTransport delivers events in-process. Publish calls matching handlers
// synchronously on the publishing goroutine.
type MemoryTransport struct {
	mu     sync.RWMutex
	subs   map[*memoryHandle]struct{}
	closed bool
}

type memoryHandle struct {
	t      *MemoryTransport
	topic  string
	filter Filter
	fn     Handler
	once   sync.Once
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{subs: make(map[*memoryHandle]struct{})}
}

func (m *MemoryTransport) Subscribe(ctx context.Context, topic string, filter Filter, fn Handler) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	h := &memoryHandle{t: m, topic: topic, filter: filter, fn: fn}
	m.subs[h] = struct{}{}
	return h, nil
}

func (m *MemoryTransport) Unsubscribe(h Handle) error {
	if h == nil {
		return nil
	}
	return h.Close()
}

func (m *MemoryTransport) Publish(ctx context.Context, topic string, e *Event) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	var targets []*memoryHandle
	for h := range m.subs {
		if h.topic == topic && h.filter.Match(e) {
			targets = append(targets, h)
		}
	}
	m.mu.RUnlock()

	for _, h := range targets {
		ev := *e
		ev.Topic = topic
		h.fn(ctx, &ev)
	}
	return nil
}

// Subscribers returns the number of live subscriptions on topic.
func (m *MemoryTransport) Subscribers(topic string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for h := range m.subs {
		if h.topic == topic {
			n++
		}
	}
	return n
}

func (m *MemoryTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.subs = make(map[*memoryHandle]struct{})
	return nil
}

func (h *memoryHandle) Topic() string { return h.topic }

func (h *memoryHandle) Close() error {
	h.once.Do(func() {
		h.t.mu.Lock()
		delete(h.t.subs, h)
		h.t.mu.Unlock()
	})
	return nil
}
