package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"chat-sync/internal/pubsub"
	"chat-sync/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// Command is sent by the transport to the push server.
type Command struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

// Transport subscribes to push topics over a single websocket connection.
// The server answers subscribe commands by streaming pubsub.Event frames with
// their topic set.
type Transport struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	subs   map[string]map[*transportHandle]struct{}
	closed bool

	done      chan struct{}
	closeOnce sync.Once
}

type transportHandle struct {
	t      *Transport
	topic  string
	filter pubsub.Filter
	fn     pubsub.Handler
	once   sync.Once
}

// Dial connects to the push server at url.
func Dial(ctx context.Context, url string, header http.Header) (*Transport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial push server: %w", err)
	}

	t := &Transport{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		subs: make(map[string]map[*transportHandle]struct{}),
		done: make(chan struct{}),
	}
	go t.writePump()
	go t.readPump()
	return t, nil
}

func (t *Transport) Subscribe(ctx context.Context, topic string, filter pubsub.Filter, fn pubsub.Handler) (pubsub.Handle, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, pubsub.ErrClosed
	}
	h := &transportHandle{t: t, topic: topic, filter: filter, fn: fn}
	first := len(t.subs[topic]) == 0
	if first {
		t.subs[topic] = make(map[*transportHandle]struct{})
	}
	t.subs[topic][h] = struct{}{}
	t.mu.Unlock()

	if first {
		if err := t.command(ctx, ActionSubscribe, topic); err != nil {
			h.Close()
			return nil, err
		}
	}
	return h, nil
}

func (t *Transport) Unsubscribe(h pubsub.Handle) error {
	if h == nil {
		return nil
	}
	return h.Close()
}

func (t *Transport) command(ctx context.Context, action, topic string) error {
	data, err := json.Marshal(Command{Action: action, Topic: topic})
	if err != nil {
		return err
	}
	select {
	case t.send <- data:
		return nil
	case <-t.done:
		return pubsub.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.subs = make(map[string]map[*transportHandle]struct{})
		t.mu.Unlock()
		close(t.done)
	})
	return nil
}

// Done is closed when the connection ends.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

func (t *Transport) readPump() {
	defer func() {
		t.Close()
		t.conn.Close()
	}()

	t.conn.SetReadDeadline(time.Now().Add(pongWait))
	t.conn.SetPongHandler(func(string) error {
		t.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Error("Push connection error: %v", err)
			}
			return
		}
		t.conn.SetReadDeadline(time.Now().Add(pongWait))

		var e pubsub.Event
		if err := json.Unmarshal(data, &e); err != nil {
			logger.Warn("Dropping undecodable push frame: %v", err)
			continue
		}
		t.dispatch(&e)
	}
}

func (t *Transport) dispatch(e *pubsub.Event) {
	t.mu.Lock()
	targets := make([]*transportHandle, 0, len(t.subs[e.Topic]))
	for h := range t.subs[e.Topic] {
		if h.filter.Match(e) {
			targets = append(targets, h)
		}
	}
	t.mu.Unlock()

	for _, h := range targets {
		ev := *e
		h.fn(context.Background(), &ev)
	}
}

func (t *Transport) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		t.conn.Close()
	}()

	for {
		select {
		case <-t.done:
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			t.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case msg := <-t.send:
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Error("Push write error: %v", err)
				t.Close()
				return
			}

		case <-ticker.C:
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				t.Close()
				return
			}
		}
	}
}

func (h *transportHandle) Topic() string { return h.topic }

// Close sends an unsubscribe command once the last handle on the topic is
// gone. It does not wait for the command to be written.
func (h *transportHandle) Close() error {
	h.once.Do(func() {
		t := h.t
		t.mu.Lock()
		subs := t.subs[h.topic]
		delete(subs, h)
		last := subs != nil && len(subs) == 0
		if last {
			delete(t.subs, h.topic)
		}
		closed := t.closed
		t.mu.Unlock()

		if last && !closed {
			data, _ := json.Marshal(Command{Action: ActionUnsubscribe, Topic: h.topic})
			select {
			case t.send <- data:
			case <-t.done:
			default:
				logger.Warn("Push send buffer full, dropping unsubscribe for %s", h.topic)
			}
		}
	})
	return nil
}
