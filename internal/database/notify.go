package database

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"chat-sync/internal/pubsub"
	"chat-sync/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const unlistenTimeout = 5 * time.Second

// NotifyTransport delivers push events over Postgres LISTEN/NOTIFY. The
// triggers installed by the migrations notify on the room and directory
// topics. Each subscription holds its own pooled connection.
type NotifyTransport struct {
	pool *pgxpool.Pool

	mu     sync.Mutex
	subs   map[*notifyHandle]struct{}
	closed bool
}

type notifyHandle struct {
	t      *NotifyTransport
	topic  string
	cancel context.CancelFunc
	once   sync.Once
}

func NewNotifyTransport(pool *pgxpool.Pool) *NotifyTransport {
	return &NotifyTransport{
		pool: pool,
		subs: make(map[*notifyHandle]struct{}),
	}
}

// Subscribe returns once LISTEN has been acknowledged.
func (t *NotifyTransport) Subscribe(ctx context.Context, topic string, filter pubsub.Filter, fn pubsub.Handler) (pubsub.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, pubsub.ErrClosed
	}

	conn, err := t.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{topic}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", topic, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	h := &notifyHandle{t: t, topic: topic, cancel: cancel}
	t.subs[h] = struct{}{}

	go h.listen(loopCtx, conn, filter, fn)
	return h, nil
}

func (t *NotifyTransport) Unsubscribe(h pubsub.Handle) error {
	if h == nil {
		return nil
	}
	return h.Close()
}

// Publish sends e through pg_notify. Payloads are limited to 8000 bytes by
// the server.
func (t *NotifyTransport) Publish(ctx context.Context, topic string, e *pubsub.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := t.pool.Exec(ctx, "SELECT pg_notify($1, $2)", topic, string(data)); err != nil {
		return fmt.Errorf("notify %s: %w", topic, err)
	}
	return nil
}

// Close ends every subscription. The pool stays open.
func (t *NotifyTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	handles := make([]*notifyHandle, 0, len(t.subs))
	for h := range t.subs {
		handles = append(handles, h)
	}
	t.mu.Unlock()

	for _, h := range handles {
		h.Close()
	}
	return nil
}

func (h *notifyHandle) Topic() string { return h.topic }

func (h *notifyHandle) Close() error {
	h.once.Do(func() {
		h.cancel()

		h.t.mu.Lock()
		delete(h.t.subs, h)
		h.t.mu.Unlock()
	})
	return nil
}

func (h *notifyHandle) listen(ctx context.Context, conn *pgxpool.Conn, filter pubsub.Filter, fn pubsub.Handler) {
	l := logger.Component("notify")
	defer h.release(conn)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				l.Error().Err(err).Str("topic", h.topic).Msg("listen connection lost")
				h.Close()
			}
			return
		}

		e, err := pubsub.Decode(n.Channel, []byte(n.Payload))
		if err != nil {
			l.Warn().Err(err).Str("topic", n.Channel).Msg("dropping undecodable notification")
			continue
		}
		if filter.Match(e) {
			fn(ctx, e)
		}
	}
}

// release returns the connection to the pool without its LISTEN registration.
func (h *notifyHandle) release(conn *pgxpool.Conn) {
	c := conn.Conn()
	if !c.IsClosed() {
		ctx, cancel := context.WithTimeout(context.Background(), unlistenTimeout)
		if _, err := c.Exec(ctx, "UNLISTEN *"); err != nil {
			c.Close(ctx)
		}
		cancel()
	}
	conn.Release()
}
