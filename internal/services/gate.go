package services

import (
	"context"
	"sync"

	"chat-sync/internal/database"
	"chat-sync/pkg/logger"
)

const setupHint = "apply migrations/001_chat_sync.sql to install the chat procedures"

// SetupGate runs a capability probe once and remembers the outcome. A failed
// probe turns into a SetupError that every later Check returns without
// probing again.
type SetupGate struct {
	prober database.SetupProber

	mu      sync.Mutex
	checked bool
	err     error
}

func NewSetupGate(prober database.SetupProber) *SetupGate {
	return &SetupGate{prober: prober}
}

func (g *SetupGate) Check(ctx context.Context) error {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.checked {
		return g.err
	}
	if g.prober == nil {
		g.checked = true
		return nil
	}

	err := g.prober.Probe(ctx)
	if err != nil && ctx.Err() != nil {
		// The caller gave up; that says nothing about the deployment.
		return ctx.Err()
	}

	g.checked = true
	if err != nil {
		g.err = &SetupError{Hint: setupHint, Err: err}
		l := logger.Component("setup_gate")
		l.Error().Err(err).Str("hint", setupHint).Msg("database setup probe failed")
	}
	return g.err
}

// Ready reports whether the probe has run and passed.
func (g *SetupGate) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.checked && g.err == nil
}
