package identity

import (
	"context"
	"errors"

	"chat-sync/internal/database"
	"chat-sync/internal/models"
	"chat-sync/pkg/logger"
)

// ProfileStoreStrategy looks a single identifier up through the batch profile store.
type ProfileStoreStrategy struct {
	Store database.ProfileStore
}

func (ProfileStoreStrategy) Name() string { return "profile_store" }

func (s ProfileStoreStrategy) Resolve(ctx context.Context, userID string) (models.SenderMetadata, bool) {
	if s.Store == nil {
		return models.SenderMetadata{}, false
	}

	profiles, err := s.Store.LookupProfiles(ctx, []string{userID})
	if err != nil {
		l := logger.Component("identity")
		l.Debug().Err(err).Str("user_id", userID).Str("strategy", s.Name()).Msg("lookup failed")
		return models.SenderMetadata{}, false
	}

	p, ok := profiles[userID]
	if !ok {
		return models.SenderMetadata{}, false
	}
	p.ID = userID
	return p.Metadata(), true
}

// RPCStrategy is the single-identifier remote procedure fallback.
type RPCStrategy struct {
	RPC database.ProfileRPC
}

func (RPCStrategy) Name() string { return "profile_rpc" }

func (s RPCStrategy) Resolve(ctx context.Context, userID string) (models.SenderMetadata, bool) {
	if s.RPC == nil {
		return models.SenderMetadata{}, false
	}

	p, err := s.RPC.LookupProfileRPC(ctx, userID)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			l := logger.Component("identity")
			l.Debug().Err(err).Str("user_id", userID).Str("strategy", s.Name()).Msg("lookup failed")
		}
		return models.SenderMetadata{}, false
	}
	p.ID = userID
	return p.Metadata(), true
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc struct {
	Label string
	Fn    func(ctx context.Context, userID string) (models.SenderMetadata, bool)
}

func (f StrategyFunc) Name() string { return f.Label }

func (f StrategyFunc) Resolve(ctx context.Context, userID string) (models.SenderMetadata, bool) {
	return f.Fn(ctx, userID)
}
