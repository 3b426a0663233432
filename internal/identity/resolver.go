// Package identity resolves sender identifiers to display metadata.
//
// Resolution walks an ordered list of strategies and stops at the first one
// that produces a result. When every strategy comes up empty the resolver
// generates placeholder metadata, so callers always get a usable value. The
// outcome is cached for the lifetime of the Resolver.
package identity

import (
	"context"
	"sync"

	"chat-sync/internal/database"
	"chat-sync/internal/models"
	"chat-sync/pkg/logger"

	"golang.org/x/sync/singleflight"
)

// Strategy is one step of the lookup cascade. ok is false when the strategy
// has no answer, whether because of an error or a miss.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, userID string) (meta models.SenderMetadata, ok bool)
}

// Cache stores resolved metadata for the session.
type Cache interface {
	Get(userID string) (models.SenderMetadata, bool)
	Set(userID string, meta models.SenderMetadata)
}

type Resolver struct {
	cache      Cache
	batch      database.ProfileStore
	strategies []Strategy
	group      singleflight.Group
}

// NewResolver builds a resolver trying strategies in order. batch serves
// Preload and may be nil.
func NewResolver(cache Cache, batch database.ProfileStore, strategies ...Strategy) *Resolver {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Resolver{cache: cache, batch: batch, strategies: strategies}
}

// NewDefaultResolver wires the profile store first and the RPC fallback second.
func NewDefaultResolver(store database.ProfileStore, rpc database.ProfileRPC) *Resolver {
	return NewResolver(NewMemoryCache(), store, ProfileStoreStrategy{Store: store}, RPCStrategy{RPC: rpc})
}

// Cached returns metadata already known for userID without any lookup.
func (r *Resolver) Cached(userID string) (models.SenderMetadata, bool) {
	return r.cache.Get(userID)
}

// Seed records metadata that is already known, such as the actor's own.
func (r *Resolver) Seed(userID string, meta models.SenderMetadata) {
	r.cache.Set(userID, meta)
}

// Resolve never fails. Concurrent calls for the same identifier share one lookup.
func (r *Resolver) Resolve(ctx context.Context, userID string) models.SenderMetadata {
	if meta, ok := r.cache.Get(userID); ok {
		return meta
	}

	v, _, _ := r.group.Do(userID, func() (interface{}, error) {
		if meta, ok := r.cache.Get(userID); ok {
			return meta, nil
		}
		meta := r.cascade(ctx, userID)
		r.cache.Set(userID, meta)
		return meta, nil
	})
	return v.(models.SenderMetadata)
}

func (r *Resolver) cascade(ctx context.Context, userID string) models.SenderMetadata {
	for _, s := range r.strategies {
		if meta, ok := s.Resolve(ctx, userID); ok {
			return meta
		}
	}

	l := logger.Component("identity")
	l.Debug().Str("user_id", userID).Msg("no identity source knows user, using placeholder")
	return models.PlaceholderSender(userID)
}

// Preload resolves many identifiers with one batch read. Identifiers the batch
// does not return are left for on-demand resolution.
func (r *Resolver) Preload(ctx context.Context, userIDs []string) int {
	if r.batch == nil {
		return 0
	}

	seen := make(map[string]struct{}, len(userIDs))
	missing := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := r.cache.Get(id); !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return 0
	}

	profiles, err := r.batch.LookupProfiles(ctx, missing)
	if err != nil {
		l := logger.Component("identity")
		l.Warn().Err(err).Int("count", len(missing)).Msg("batch profile preload failed")
		return 0
	}

	n := 0
	for _, id := range missing {
		if p, ok := profiles[id]; ok {
			p.ID = id
			r.cache.Set(id, p.Metadata())
			n++
		}
	}
	return n
}

// MemoryCache is a goroutine-safe session cache that never evicts.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]models.SenderMetadata
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]models.SenderMetadata)}
}

func (c *MemoryCache) Get(userID string) (models.SenderMetadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	meta, ok := c.entries[userID]
	return meta, ok
}

func (c *MemoryCache) Set(userID string, meta models.SenderMetadata) {
	c.mu.Lock()
	c.entries[userID] = meta
	c.mu.Unlock()
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
