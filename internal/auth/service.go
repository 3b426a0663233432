package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chat-sync/internal/config"
	"chat-sync/internal/database"
	"chat-sync/internal/models"
	"chat-sync/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carries the actor identity and the self metadata shown on the
// actor's own messages.
type Claims struct {
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	jwt.RegisteredClaims
}

type Service struct {
	profiles database.ProfileRPC
	cfg      *config.Config
}

// NewService builds the token service. profiles fills in self metadata the
// token does not carry and may be nil.
func NewService(profiles database.ProfileRPC, cfg *config.Config) *Service {
	return &Service{
		profiles: profiles,
		cfg:      cfg,
	}
}

func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.cfg.JWT.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if err := uuid.Validate(claims.Subject); err != nil {
		return nil, fmt.Errorf("%w: subject is not a user id", ErrInvalidToken)
	}
	return claims, nil
}

// ActorFromToken resolves a bearer token to the authenticated actor. When
// the token has no display name the actor's profile is looked up.
func (s *Service) ActorFromToken(ctx context.Context, tokenString string) (*models.Actor, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	name, email, avatar := claims.Name, claims.Email, claims.AvatarURL
	if name == "" && s.profiles != nil {
		p, err := s.profiles.LookupProfileRPC(ctx, claims.Subject)
		switch {
		case err == nil:
			name = p.DisplayName
			if email == "" {
				email = p.Email
			}
			if avatar == "" {
				avatar = p.AvatarURL
			}
		case !errors.Is(err, database.ErrNotFound):
			logger.Warn("Profile lookup for actor %s failed: %v", claims.Subject, err)
		}
	}

	return models.NewActor(claims.Subject, name, email, avatar), nil
}

// IssueToken signs a token for actorID. The server never logs users in; this
// serves local tooling and tests.
func (s *Service) IssueToken(actorID, name, email, avatarURL string) (string, error) {
	now := time.Now()
	claims := Claims{
		Name:      name,
		Email:     email,
		AvatarURL: avatarURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWT.ExpiresIn)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.cfg.JWT.Secret)
}
