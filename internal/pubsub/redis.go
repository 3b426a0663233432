package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"chat-sync/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis-specific configuration.
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisTransport implements Transport and Publisher over Redis pub/sub. Each
// handle owns its own *redis.PubSub so closing one never affects another.
type RedisTransport struct {
	client *redis.Client
	mu     sync.Mutex
	subs   map[*redisHandle]struct{}
	closed bool
}

type redisHandle struct {
	t      *RedisTransport
	topic  string
	ps     *redis.PubSub
	cancel context.CancelFunc
	once   sync.Once
	err    error
}

// NewRedisTransport creates a new Redis-based transport.
func NewRedisTransport(cfg RedisConfig) (*RedisTransport, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisTransportFromClient(client), nil
}

func NewRedisTransportFromClient(client *redis.Client) *RedisTransport {
	return &RedisTransport{
		client: client,
		subs:   make(map[*redisHandle]struct{}),
	}
}

func (r *RedisTransport) Publish(ctx context.Context, topic string, e *Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return r.client.Publish(ctx, topic, data).Err()
}

// Subscribe waits for the SUBSCRIBE confirmation so that no event published
// after it returns is missed.
func (r *RedisTransport) Subscribe(ctx context.Context, topic string, filter Filter, fn Handler) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}

	ps := r.client.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	h := &redisHandle{
		t:      r,
		topic:  topic,
		ps:     ps,
		cancel: cancel,
	}
	r.subs[h] = struct{}{}

	go h.processMessages(loopCtx, filter, fn)

	return h, nil
}

func (r *RedisTransport) Unsubscribe(h Handle) error {
	if h == nil {
		return nil
	}
	return h.Close()
}

// Close closes all subscriptions and the Redis client.
func (r *RedisTransport) Close() error {
	r.mu.Lock()
	r.closed = true
	handles := make([]*redisHandle, 0, len(r.subs))
	for h := range r.subs {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	for _, h := range handles {
		h.Close()
	}
	return r.client.Close()
}

// Client returns the underlying Redis client.
func (r *RedisTransport) Client() *redis.Client {
	return r.client
}

func (h *redisHandle) Topic() string { return h.topic }

// Close does not wait for an in-progress handler call to return, so it is
// safe to call from inside a handler.
func (h *redisHandle) Close() error {
	h.once.Do(func() {
		h.cancel()
		h.err = h.ps.Close()

		h.t.mu.Lock()
		delete(h.t.subs, h)
		h.t.mu.Unlock()
	})
	return h.err
}

func (h *redisHandle) processMessages(ctx context.Context, filter Filter, fn Handler) {
	ch := h.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			e, err := Decode(msg.Channel, []byte(msg.Payload))
			if err != nil {
				l := logger.Component("pubsub")
				l.Warn().Err(err).Str("topic", msg.Channel).Msg("dropping undecodable event")
				continue
			}
			if filter.Match(e) {
				fn(ctx, e)
			}
		}
	}
}
