package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"chat-sync/internal/auth"
	"chat-sync/internal/models"
	"chat-sync/internal/services"
	"chat-sync/pkg/logger"
)

// Authenticator turns a bearer token into the actor it was issued for.
type Authenticator interface {
	ActorFromToken(ctx context.Context, token string) (*models.Actor, error)
}

// SessionProvider returns the open session of an actor.
type SessionProvider interface {
	GetOrOpen(ctx context.Context, actor *models.Actor) (*services.Session, error)
}

// tokenFromRequest reads the Authorization bearer token, falling back to the
// token query parameter used by browsers opening websockets.
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

func authenticate(r *http.Request, authn Authenticator) (*models.Actor, error) {
	tokenStr := tokenFromRequest(r)
	if tokenStr == "" {
		return nil, fmt.Errorf("missing token: %w", services.ErrUnauthenticated)
	}
	return authn.ActorFromToken(r.Context(), tokenStr)
}

func sessionFromRequest(r *http.Request, authn Authenticator, sessions SessionProvider) (*services.Session, error) {
	actor, err := authenticate(r, authn)
	if err != nil {
		return nil, err
	}
	return sessions.GetOrOpen(r.Context(), actor)
}

func statusFor(err error) int {
	var (
		setupErr *services.SetupError
		fetchErr *services.TransientFetchError
		sendErr  *services.SendFailure
	)
	switch {
	case errors.As(err, &setupErr):
		return http.StatusServiceUnavailable
	case errors.As(err, &fetchErr), errors.As(err, &sendErr):
		return http.StatusBadGateway
	case errors.Is(err, services.ErrEmptyContent), errors.Is(err, services.ErrNoActiveRoom):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrSessionClosed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("%s error: %v", op, err)
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
