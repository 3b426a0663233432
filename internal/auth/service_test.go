package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"chat-sync/internal/config"
	"chat-sync/internal/database"
	"chat-sync/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProfiles struct {
	profile models.Profile
	err     error
	calls   int
}

func (f *fakeProfiles) LookupProfileRPC(ctx context.Context, id string) (models.Profile, error) {
	f.calls++
	return f.profile, f.err
}

func testConfig() *config.Config {
	return &config.Config{JWT: config.JWTConfig{Secret: []byte("test-secret"), ExpiresIn: time.Hour}}
}

func TestIssueAndValidate(t *testing.T) {
	svc := NewService(nil, testConfig())
	id := uuid.NewString()

	token, err := svc.IssueToken(id, "Ada", "ada@example.com", "")
	require.NoError(t, err)

	actor, err := svc.ActorFromToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, id, actor.ID)
	assert.Equal(t, "Ada", actor.Metadata.Name)
	assert.Equal(t, "ada@example.com", actor.Metadata.Contact)
	assert.Equal(t, models.GeneratedAvatar("Ada"), actor.Metadata.AvatarURL)
}

func TestActorFromTokenLooksUpMissingName(t *testing.T) {
	profiles := &fakeProfiles{profile: models.Profile{DisplayName: "Grace", Email: "grace@example.com"}}
	svc := NewService(profiles, testConfig())
	token, err := svc.IssueToken(uuid.NewString(), "", "", "")
	require.NoError(t, err)

	actor, err := svc.ActorFromToken(context.Background(), token)

	require.NoError(t, err)
	assert.Equal(t, "Grace", actor.Metadata.Name)
	assert.Equal(t, "grace@example.com", actor.Metadata.Contact)
	assert.Equal(t, 1, profiles.calls)
}

func TestActorFromTokenFallsBackToPlaceholder(t *testing.T) {
	svc := NewService(&fakeProfiles{err: database.ErrNotFound}, testConfig())
	id := "abcdef12-0000-4000-8000-000000000000"
	token, err := svc.IssueToken(id, "", "", "")
	require.NoError(t, err)

	actor, err := svc.ActorFromToken(context.Background(), token)

	require.NoError(t, err)
	assert.Equal(t, "User abcdef", actor.Metadata.Name)
}

func TestValidateTokenRejects(t *testing.T) {
	svc := NewService(nil, testConfig())

	t.Run("wrong secret", func(t *testing.T) {
		other := NewService(nil, &config.Config{JWT: config.JWTConfig{Secret: []byte("other"), ExpiresIn: time.Hour}})
		token, err := other.IssueToken(uuid.NewString(), "Ada", "", "")
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		expired := NewService(nil, &config.Config{JWT: config.JWTConfig{Secret: []byte("test-secret"), ExpiresIn: -time.Minute}})
		token, err := expired.IssueToken(uuid.NewString(), "Ada", "", "")
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("subject is not a uuid", func(t *testing.T) {
		token, err := svc.IssueToken("42", "Ada", "", "")
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unsigned", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": uuid.NewString()}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.True(t, errors.Is(err, ErrInvalidToken))
	})
}
