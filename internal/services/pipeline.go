package services

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"chat-sync/internal/database"
	"chat-sync/internal/models"
	"chat-sync/internal/store"
	"chat-sync/pkg/logger"
)

type SendState int

const (
	StateComposing SendState = iota
	StatePending
	StateConfirmed
	StateRolledBack
)

func (s SendState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConfirmed:
		return "confirmed"
	case StateRolledBack:
		return "rolled_back"
	default:
		return "composing"
	}
}

func (s SendState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outbound tracks one send from the optimistic entry to its final state.
// Collapsed is set when the optimistic entry matched an existing entry with
// the same content inside the duplicate window and was not shown separately.
type Outbound struct {
	TempID     string          `json:"temp_id"`
	RoomID     string          `json:"room_id"`
	State      SendState       `json:"state"`
	Collapsed  bool            `json:"collapsed,omitempty"`
	Optimistic models.Message  `json:"optimistic"`
	Confirmed  *models.Message `json:"confirmed,omitempty"`
}

// Pipeline shows a message locally before the durable insert completes and
// undoes it if the insert fails.
type Pipeline struct {
	backend   database.MessageBackend
	store     *store.Store
	directory *Directory
	gate      *SetupGate
	actor     *models.Actor

	inFlight atomic.Int64
	now      func() time.Time
}

func NewPipeline(backend database.MessageBackend, st *store.Store, dir *Directory, gate *SetupGate, actor *models.Actor) *Pipeline {
	return &Pipeline{
		backend:   backend,
		store:     st,
		directory: dir,
		gate:      gate,
		actor:     actor,
		now:       time.Now,
	}
}

// Send inserts an optimistic entry, then writes the message durably. On
// success the store is left alone: the push event for the insert reconciles
// the optimistic entry. On failure the entry is removed and a *SendFailure is
// returned. The room preview is not rolled back.
//
// Repeating the same text within the duplicate window collapses into the
// earlier entry in the store; Outbound.Collapsed reports it. The durable
// insert still happens.
func (p *Pipeline) Send(ctx context.Context, roomID, content string) (*Outbound, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if roomID == "" {
		return nil, ErrNoActiveRoom
	}
	if p.actor == nil || p.actor.ID == "" {
		return nil, ErrUnauthenticated
	}
	if err := p.gate.Check(ctx); err != nil {
		return nil, err
	}

	out := &Outbound{TempID: models.NewTempID(), RoomID: roomID, State: StateComposing}

	optimistic, err := models.NewMessage(out.TempID, roomID, p.actor.ID, content, p.now())
	if err != nil {
		return nil, err
	}
	optimistic.Sender = p.actor.Metadata
	out.Optimistic = optimistic

	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)

	if p.store.Merge(roomID, optimistic) == store.Duplicate {
		out.Collapsed = true
	}
	p.directory.Touch(roomID, content, optimistic.CreatedAt)
	out.State = StatePending

	confirmed, err := p.backend.InsertMessage(ctx, roomID, p.actor.ID, content)
	if err != nil {
		if !out.Collapsed {
			p.store.RemoveByTempID(roomID, out.TempID)
		}
		out.State = StateRolledBack

		l := logger.Component("pipeline")
		l.Warn().Err(err).Str("room_id", roomID).Str("temp_id", out.TempID).Msg("send rolled back")
		return out, &SendFailure{RoomID: roomID, TempID: out.TempID, Err: err}
	}

	out.State = StateConfirmed
	out.Confirmed = &confirmed
	return out, nil
}

// InFlight returns the number of sends awaiting the durable insert.
func (p *Pipeline) InFlight() int {
	return int(p.inFlight.Load())
}
